package graph

const (
	// Link weights
	genericLinkWeight = 1.0 // Client-managed relationships
	derivedLinkWeight = 0.5 // Relationships owned by derivation

	// DefaultDepth is the hop limit of a neighborhood when none is given
	DefaultDepth = 1

	defaultModelColor = "rgba(149, 165, 166, 0.3)" // Transparent gray
)

// modelColors colors nodes by artifact model
var modelColors = map[string]string{
	"core":   "#34495e",
	"xsd":    "#2980b9",
	"wsdl":   "#27ae60",
	"policy": "#8e44ad",
	"soa":    "#e67e22",
	"ext":    "#7f8c8d",
}
