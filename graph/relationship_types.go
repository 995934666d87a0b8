package graph

import (
	"sort"
)

// collectRelationshipTypeInfo counts the relationship names present in the graph.
// A name counts as generic when any of its links is.
func collectRelationshipTypeInfo(links []Link) []RelationshipTypeInfo {
	byType := make(map[string]*RelationshipTypeInfo)
	for _, link := range links {
		info, ok := byType[link.Type]
		if !ok {
			info = &RelationshipTypeInfo{Type: link.Type, Label: link.Type}
			byType[link.Type] = info
		}
		info.Count++
		if link.Weight == genericLinkWeight {
			info.Generic = true
		}
	}

	relationshipTypes := make([]RelationshipTypeInfo, 0, len(byType))
	for _, info := range byType {
		relationshipTypes = append(relationshipTypes, *info)
	}
	sort.Slice(relationshipTypes, func(i, j int) bool {
		if relationshipTypes[i].Count != relationshipTypes[j].Count {
			return relationshipTypes[i].Count > relationshipTypes[j].Count
		}
		return relationshipTypes[i].Type < relationshipTypes[j].Type
	})

	return relationshipTypes
}
