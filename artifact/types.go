package artifact

import (
	"sort"
	"strings"
)

// Artifact models (namespaces of artifact types)
const (
	ModelCore                  = "core"
	ModelXsd                   = "xsd"
	ModelPolicy                = "policy"
	ModelSoapWsdl              = "soapWsdl"
	ModelWsdl                  = "wsdl"
	ModelServiceImplementation = "serviceImplementation"
	ModelSoa                   = "soa"
	ModelExt                   = "ext"
)

// Frequently referenced type names
const (
	TypeDocument               = "Document"
	TypeXmlDocument            = "XmlDocument"
	TypeXsdDocument            = "XsdDocument"
	TypeWsdlDocument           = "WsdlDocument"
	TypePolicyDocument         = "PolicyDocument"
	TypeExtendedArtifactType   = "ExtendedArtifactType"
	TypeExtendedDocument       = "ExtendedDocument"
	TypeElementDeclaration     = "ElementDeclaration"
	TypeAttributeDeclaration   = "AttributeDeclaration"
	TypeSimpleTypeDeclaration  = "SimpleTypeDeclaration"
	TypeComplexTypeDeclaration = "ComplexTypeDeclaration"
	TypeXsdType                = "XsdType"
	TypeMessage                = "Message"
	TypePart                   = "Part"
	TypePortType               = "PortType"
	TypeOperation              = "Operation"
	TypeOperationInput         = "OperationInput"
	TypeOperationOutput        = "OperationOutput"
	TypeFault                  = "Fault"
	TypeBinding                = "Binding"
	TypeBindingOperation       = "BindingOperation"
	TypeBindingOperationInput  = "BindingOperationInput"
	TypeBindingOperationOutput = "BindingOperationOutput"
	TypeBindingOperationFault  = "BindingOperationFault"
	TypeWsdlService            = "WsdlService"
	TypePort                   = "Port"
	TypeWsdlExtension          = "WsdlExtension"
	TypeSoapAddress            = "SoapAddress"
	TypeSoapBinding            = "SoapBinding"
)

// TypeInfo is one entry of the static artifact type table.
type TypeInfo struct {
	Model string
	Type  string
	// Derived types can only be produced by derivation
	Derived bool
	// Document types carry content
	Document bool
}

// Kind classifies an artifact type into one of four closed categories.
type Kind int

const (
	// KindDocument artifacts carry content
	KindDocument Kind = iota
	// KindDerived artifacts are parsed out of a document and carry a qualified name
	KindDerived
	// KindLogical artifacts are content-less SOA or service implementation entities
	KindLogical
	// KindExtended artifacts are client-defined content-less types
	KindExtended
)

func (k Kind) String() string {
	switch k {
	case KindDocument:
		return "document"
	case KindDerived:
		return "derived"
	case KindLogical:
		return "logical"
	case KindExtended:
		return "extended"
	}
	return "unknown"
}

// Capability is a bit set of optional artifact traits.
type Capability uint8

const (
	HasContent Capability = 1 << iota
	HasRelationships
	HasNamedIdentity
)

// Capabilities returns the traits every artifact of kind k has.
func (k Kind) Capabilities() Capability {
	switch k {
	case KindDocument:
		return HasContent | HasRelationships
	case KindDerived:
		return HasNamedIdentity | HasRelationships
	case KindLogical, KindExtended:
		return HasRelationships
	}
	return 0
}

// Kind returns the category of the type
func (t TypeInfo) Kind() Kind {
	switch {
	case t.Document:
		return KindDocument
	case t.Derived:
		return KindDerived
	case t.Model == ModelExt:
		return KindExtended
	default:
		return KindLogical
	}
}

var typeTable = []TypeInfo{
	{ModelCore, TypeDocument, false, true},
	{ModelCore, TypeXmlDocument, false, true},

	{ModelXsd, TypeXsdDocument, false, true},
	{ModelXsd, TypeAttributeDeclaration, true, false},
	{ModelXsd, TypeElementDeclaration, true, false},
	{ModelXsd, TypeSimpleTypeDeclaration, true, false},
	{ModelXsd, TypeComplexTypeDeclaration, true, false},
	{ModelXsd, TypeXsdType, true, false},

	{ModelPolicy, TypePolicyDocument, false, true},
	{ModelPolicy, "PolicyExpression", true, false},
	{ModelPolicy, "PolicyAttachment", true, false},

	{ModelSoapWsdl, TypeSoapAddress, true, false},
	{ModelSoapWsdl, TypeSoapBinding, true, false},

	{ModelWsdl, TypeWsdlDocument, false, true},
	{ModelWsdl, TypeWsdlService, true, false},
	{ModelWsdl, TypePort, true, false},
	{ModelWsdl, TypeWsdlExtension, true, false},
	{ModelWsdl, TypePart, true, false},
	{ModelWsdl, TypeMessage, true, false},
	{ModelWsdl, TypeFault, true, false},
	{ModelWsdl, TypePortType, true, false},
	{ModelWsdl, TypeOperation, true, false},
	{ModelWsdl, TypeOperationInput, true, false},
	{ModelWsdl, TypeOperationOutput, true, false},
	{ModelWsdl, TypeBinding, true, false},
	{ModelWsdl, TypeBindingOperation, true, false},
	{ModelWsdl, TypeBindingOperationInput, true, false},
	{ModelWsdl, TypeBindingOperationOutput, true, false},
	{ModelWsdl, TypeBindingOperationFault, true, false},

	{ModelServiceImplementation, "ServiceEndpoint", false, false},
	{ModelServiceImplementation, "ServiceInstance", false, false},
	{ModelServiceImplementation, "ServiceOperation", false, false},
	{ModelServiceImplementation, "Organization", false, false},

	{ModelExt, TypeExtendedArtifactType, false, false},
	{ModelExt, TypeExtendedDocument, false, true},

	{ModelSoa, "Actor", false, false},
	{ModelSoa, "Choreography", false, false},
	{ModelSoa, "ChoreographyProcess", false, false},
	{ModelSoa, "Collaboration", false, false},
	{ModelSoa, "CollaborationProcess", false, false},
	{ModelSoa, "Composition", false, false},
	{ModelSoa, "Effect", false, false},
	{ModelSoa, "Element", false, false},
	{ModelSoa, "Event", false, false},
	{ModelSoa, "InformationType", false, false},
	{ModelSoa, "Orchestration", false, false},
	{ModelSoa, "OrchestrationProcess", false, false},
	{ModelSoa, "Policy", false, false},
	{ModelSoa, "PolicySubject", false, false},
	{ModelSoa, "Process", false, false},
	{ModelSoa, "Service", false, false},
	{ModelSoa, "ServiceContract", false, false},
	{ModelSoa, "ServiceComposition", false, false},
	{ModelSoa, "ServiceInterface", false, false},
	{ModelSoa, "System", false, false},
	{ModelSoa, "Task", false, false},
}

var (
	typesByName  = map[string]TypeInfo{}
	typesByModel = map[string][]TypeInfo{}
)

func init() {
	for _, t := range typeTable {
		typesByName[t.Type] = t
		typesByModel[t.Model] = append(typesByModel[t.Model], t)
	}
}

// LookupType finds a built-in type by its (globally unique) name.
func LookupType(typeName string) (TypeInfo, bool) {
	t, ok := typesByName[typeName]
	return t, ok
}

// LookupTypeInModel finds a built-in type that belongs to model.
func LookupTypeInModel(model, typeName string) (TypeInfo, bool) {
	t, ok := typesByName[typeName]
	if !ok || t.Model != model {
		return TypeInfo{}, false
	}
	return t, true
}

// IsModel reports whether model names a known artifact model.
func IsModel(model string) bool {
	_, ok := typesByModel[model]
	return ok
}

// Models returns the known model names, sorted
func Models() []string {
	out := make([]string, 0, len(typesByModel))
	for m := range typesByModel {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// TypesInModel returns the built-in types of model in table order
func TypesInModel(model string) []TypeInfo {
	return append([]TypeInfo(nil), typesByModel[model]...)
}

// ResolveType turns a client-supplied type name into a TypeInfo.
// Unknown names become extended types; document selects ExtendedDocument over ExtendedArtifactType.
// The returned extended name is empty for built-in types.
func ResolveType(typeName string, document bool) (TypeInfo, string) {
	if t, ok := LookupType(typeName); ok && t.Model != ModelExt {
		return t, ""
	}
	ext := typeName
	if t, ok := LookupType(typeName); ok && t.Model == ModelExt {
		ext = ""
		document = t.Document
	}
	if document {
		return typesByName[TypeExtendedDocument], ext
	}
	return typesByName[TypeExtendedArtifactType], ext
}

// IsValidExtendedName reports whether name can be used as an extended type name:
// an XML NCName-like token that does not shadow a built-in type.
func IsValidExtendedName(name string) bool {
	if name == "" || strings.ContainsAny(name, " /:[]@") {
		return false
	}
	if _, ok := LookupType(name); ok {
		return false
	}
	first := name[0]
	return first == '_' || (first >= 'A' && first <= 'Z') || (first >= 'a' && first <= 'z')
}
