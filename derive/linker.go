package derive

import (
	"context"

	"github.com/teranos/artificer/artifact"
	"github.com/teranos/artificer/errors"
	"github.com/teranos/artificer/storage"
)

// QNameFinder looks up persisted artifacts by qualified name
type QNameFinder interface {
	FindByQName(ctx context.Context, ref artifact.UnresolvedRef) (string, bool, error)
}

type qname struct {
	namespace string
	ncName    string
}

// LinkContext resolves name-based references of one derivation run: first
// against the artifacts of the run, then against persisted artifacts.
type LinkContext struct {
	finder     QNameFinder
	byUUID     map[string]*artifact.Artifact
	byQName    map[qname][]*artifact.Artifact
	docs       []*artifact.Artifact
	unresolved []artifact.UnresolvedRef
}

func newLinkContext(finder QNameFinder) *LinkContext {
	return &LinkContext{
		finder:  finder,
		byUUID:  make(map[string]*artifact.Artifact),
		byQName: make(map[qname][]*artifact.Artifact),
	}
}

// add indexes a document or derived artifact of the run
func (lc *LinkContext) add(a *artifact.Artifact) {
	lc.byUUID[a.UUID] = a
	if a.Identity.NCName != "" {
		k := qname{a.Identity.Namespace, a.Identity.NCName}
		lc.byQName[k] = append(lc.byQName[k], a)
	}
	if a.Has(artifact.HasContent) {
		lc.docs = append(lc.docs, a)
	}
}

// Artifact returns an artifact of the run by uuid
func (lc *LinkContext) Artifact(uuid string) (*artifact.Artifact, bool) {
	a, ok := lc.byUUID[uuid]
	return a, ok
}

// Resolve maps ref to a uuid. A ref without NCName names a document by target namespace.
func (lc *LinkContext) Resolve(ctx context.Context, ref artifact.UnresolvedRef) (string, bool, error) {
	if ref.NCName == "" {
		for _, d := range lc.docs {
			if d.UUID != ref.Source && d.TargetNamespace == ref.Namespace && matchesType(d, ref) {
				return d.UUID, true, nil
			}
		}
	} else {
		for _, a := range lc.byQName[qname{ref.Namespace, ref.NCName}] {
			if matchesType(a, ref) {
				return a.UUID, true, nil
			}
		}
	}
	if lc.finder == nil {
		return "", false, nil
	}
	return lc.finder.FindByQName(ctx, ref)
}

func matchesType(a *artifact.Artifact, ref artifact.UnresolvedRef) bool {
	return (ref.Model == "" || a.Type.Model == ref.Model) && (ref.Type == "" || a.Type.Type == ref.Type)
}

// Link adds the resolved target of ref to the source's derived relationship.
// An unresolvable ref leaves the relationship present but empty and is kept for relinking.
func (lc *LinkContext) Link(ctx context.Context, ref artifact.UnresolvedRef) error {
	src, ok := lc.byUUID[ref.Source]
	if !ok {
		return errors.AssertionFailedf("reference source %s is not part of the derivation", ref.Source)
	}
	rel := src.EnsureRelationship(ref.Relationship, false)

	target, found, err := lc.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	if !found {
		lc.unresolved = append(lc.unresolved, ref)
		return nil
	}
	rel.AddTarget(target)
	return nil
}

// Unresolved returns the references Link could not resolve
func (lc *LinkContext) Unresolved() []artifact.UnresolvedRef {
	return lc.unresolved
}

// Relink resolves the pending references of the given artifacts against the
// store and wires the targets it finds. It returns the number resolved.
func Relink(ctx context.Context, tx *storage.Tx, members []string) (int, error) {
	var pending []storage.PendingRef
	for _, id := range members {
		refs, err := tx.PendingRefs(ctx, id)
		if err != nil {
			return 0, err
		}
		pending = append(pending, refs...)
	}
	return relink(ctx, tx, pending)
}

// RelinkAll is Relink over every pending reference in the store
func RelinkAll(ctx context.Context, tx *storage.Tx) (int, error) {
	pending, err := tx.PendingRefs(ctx, "")
	if err != nil {
		return 0, err
	}
	return relink(ctx, tx, pending)
}

func relink(ctx context.Context, tx *storage.Tx, pending []storage.PendingRef) (int, error) {
	resolved := 0
	for _, p := range pending {
		target, found, err := tx.FindByQName(ctx, p.UnresolvedRef)
		if err != nil {
			return resolved, err
		}
		if !found || target == p.Source {
			continue
		}
		if err := tx.AddTarget(ctx, p.Source, p.Relationship, target); err != nil {
			return resolved, err
		}
		if err := tx.DeleteUnresolved(ctx, p.ID); err != nil {
			return resolved, err
		}
		resolved++
	}
	return resolved, nil
}
