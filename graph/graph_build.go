package graph

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/artificer/artifact"
	"github.com/teranos/artificer/storage"
)

// ArtifactReader loads artifacts by uuid. SQLStore and Tx satisfy it.
type ArtifactReader interface {
	GetArtifact(ctx context.Context, uuid string) (*artifact.Artifact, error)
}

// Options shapes a neighborhood graph
type Options struct {
	// Depth is the hop limit from the root; zero means DefaultDepth
	Depth int
	// HideDerived marks derived artifacts invisible and their structural links hidden
	HideDerived bool
}

// Builder renders the relationship neighborhood of an artifact
type Builder struct {
	engine *Engine
	store  ArtifactReader
	q      storage.Querier
	logger *zap.SugaredLogger
}

// NewBuilder creates a neighborhood builder reading through store and q
func NewBuilder(engine *Engine, store ArtifactReader, q storage.Querier, logger *zap.SugaredLogger) *Builder {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Builder{
		engine: engine,
		store:  store,
		q:      q,
		logger: logger.Named("graph.builder"),
	}
}

// Neighborhood walks forward and reverse relationships breadth first from root.
// Nodes at the depth limit are included but not expanded.
func (b *Builder) Neighborhood(ctx context.Context, root string, opts Options) (*Graph, error) {
	if opts.Depth <= 0 {
		opts.Depth = DefaultDepth
	}

	nodeMap := make(map[string]*Node)
	linkMap := make(map[string]*Link)
	models := make(map[string]string)

	visit := func(id string, depth int) (*artifact.Artifact, bool, error) {
		if _, seen := nodeMap[id]; seen {
			return nil, false, nil
		}
		a, err := b.store.GetArtifact(ctx, id)
		if err != nil {
			return nil, false, err
		}
		nodeMap[id] = newNode(a, depth, opts)
		models[a.Type.QueryName()] = a.Type.Model
		return a, true, nil
	}
	addLink := func(source, target, name string, generic bool) {
		linkID := fmt.Sprintf("%s_%s_%s", source, name, target)
		if _, exists := linkMap[linkID]; exists {
			return
		}
		weight := derivedLinkWeight
		if generic {
			weight = genericLinkWeight
		}
		linkMap[linkID] = &Link{
			Source: source,
			Target: target,
			Type:   name,
			Weight: weight,
			Label:  name,
			Hidden: opts.HideDerived && name == artifact.RelRelatedDocument,
		}
	}

	first, _, err := visit(root, 0)
	if err != nil {
		return nil, err
	}
	frontier := []*artifact.Artifact{first}
	for depth := 0; depth < opts.Depth && len(frontier) > 0; depth++ {
		var next []*artifact.Artifact
		for _, a := range frontier {
			for _, rel := range a.Relationships {
				for _, target := range rel.TargetUUIDs() {
					addLink(a.UUID, target, rel.Name, rel.Generic)
					n, fresh, err := visit(target, depth+1)
					if err != nil {
						return nil, err
					}
					if fresh {
						next = append(next, n)
					}
				}
			}

			reverse, err := b.engine.ReverseRelationships(ctx, b.q, a.UUID)
			if err != nil {
				return nil, err
			}
			for _, r := range reverse {
				addLink(r.Source, a.UUID, r.Name, r.Generic)
				n, fresh, err := visit(r.Source, depth+1)
				if err != nil {
					return nil, err
				}
				if fresh {
					next = append(next, n)
				}
			}
		}
		frontier = next
	}

	graph := &Graph{
		Nodes: make([]Node, 0, len(nodeMap)),
		Links: make([]Link, 0, len(linkMap)),
		Meta: Meta{
			GeneratedAt: time.Now(),
			Config: map[string]string{
				"root":        root,
				"depth":       strconv.Itoa(opts.Depth),
				"description": fmt.Sprintf("Neighborhood of %s", nodeMap[root].Label),
			},
		},
	}

	// Sort by ID for consistent output across runs
	nodeIDs := make([]string, 0, len(nodeMap))
	for id := range nodeMap {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)
	for _, id := range nodeIDs {
		graph.Nodes = append(graph.Nodes, *nodeMap[id])
	}

	linkIDs := make([]string, 0, len(linkMap))
	for id := range linkMap {
		linkIDs = append(linkIDs, id)
	}
	sort.Strings(linkIDs)
	for _, id := range linkIDs {
		graph.Links = append(graph.Links, *linkMap[id])
	}

	graph.Meta.Stats.TotalNodes = len(graph.Nodes)
	graph.Meta.Stats.TotalEdges = len(graph.Links)
	graph.Meta.NodeTypes = collectNodeTypeInfo(graph.Nodes, models)
	graph.Meta.RelationshipTypes = collectRelationshipTypeInfo(graph.Links)

	b.logger.Debugw("Built neighborhood", "root", root, "nodes", len(graph.Nodes), "links", len(graph.Links))
	return graph, nil
}

func newNode(a *artifact.Artifact, depth int, opts Options) *Node {
	source := "primary"
	if a.IsDerived() {
		source = "derived"
	}
	meta := map[string]interface{}{
		"model": a.Type.Model,
		"path":  storage.PathOf(a),
	}
	if a.Version != "" {
		meta["version"] = a.Version
	}
	if a.Identity.Namespace != "" {
		meta["namespace"] = a.Identity.Namespace
	}
	return &Node{
		ID:         a.UUID,
		Type:       a.Type.QueryName(),
		TypeSource: source,
		Label:      a.Name,
		Visible:    !(opts.HideDerived && a.IsDerived()),
		Group:      depth,
		Metadata:   meta,
	}
}
