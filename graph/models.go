package graph

import (
	"time"
)

// Graph is an artifact neighborhood laid out for visualization
type Graph struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`
	Meta  Meta   `json:"meta"`
}

// Node is one artifact in the graph
type Node struct {
	ID         string                 `json:"id"`              // Artifact uuid
	Type       string                 `json:"type"`            // Query name of the artifact type, e.g. "XsdDocument"
	TypeSource string                 `json:"-"`               // Internal only: "primary" or "derived"
	Label      string                 `json:"label"`           // Artifact name
	Visible    bool                   `json:"visible"`         // Backend controls visibility
	Group      int                    `json:"group,omitempty"` // Hop distance from the root
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Link is one relationship target edge
type Link struct {
	Source string  `json:"source"` // Node ID
	Target string  `json:"target"` // Node ID
	Type   string  `json:"type"`   // Relationship name
	Weight float64 `json:"value"`  // Link strength/weight (D3 uses "value")
	Label  string  `json:"label,omitempty"`
	Hidden bool    `json:"hidden,omitempty"` // Structural relatedDocument edges
}

// Meta contains metadata about the graph
type Meta struct {
	GeneratedAt       time.Time              `json:"generated_at"`
	Stats             Stats                  `json:"stats"`
	Config            map[string]string      `json:"config"`
	NodeTypes         []NodeTypeInfo         `json:"node_types"`
	RelationshipTypes []RelationshipTypeInfo `json:"relationship_types"`
}

// NodeTypeInfo describes a node type present in the graph
type NodeTypeInfo struct {
	Type  string `json:"type"`
	Label string `json:"label"`
	Model string `json:"model,omitempty"`
	Color string `json:"color,omitempty"`
	Count int    `json:"count,omitempty"`
}

// RelationshipTypeInfo describes a relationship name present in the graph
type RelationshipTypeInfo struct {
	Type    string `json:"type"`
	Label   string `json:"label"`
	Generic bool   `json:"generic"`
	Count   int    `json:"count,omitempty"`
}

// Stats provides graph statistics
type Stats struct {
	TotalNodes int `json:"total_nodes,omitempty"`
	TotalEdges int `json:"total_edges,omitempty"`
}
