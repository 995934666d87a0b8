package graph

import (
	"sort"
)

// collectNodeTypeInfo counts the node types present in the graph.
// Models maps node type to artifact model for coloring.
func collectNodeTypeInfo(nodes []Node, models map[string]string) []NodeTypeInfo {
	typeCounts := make(map[string]int)
	for _, node := range nodes {
		typeCounts[node.Type]++
	}

	nodeTypes := make([]NodeTypeInfo, 0, len(typeCounts))
	for nodeType, count := range typeCounts {
		model := models[nodeType]
		color, ok := modelColors[model]
		if !ok {
			color = defaultModelColor
		}
		nodeTypes = append(nodeTypes, NodeTypeInfo{
			Type:  nodeType,
			Label: nodeType,
			Model: model,
			Color: color,
			Count: count,
		})
	}

	// Most common types first, ties by name for stable output
	sort.Slice(nodeTypes, func(i, j int) bool {
		if nodeTypes[i].Count != nodeTypes[j].Count {
			return nodeTypes[i].Count > nodeTypes[j].Count
		}
		return nodeTypes[i].Type < nodeTypes[j].Type
	})

	return nodeTypes
}
