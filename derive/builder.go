package derive

import (
	"context"

	"github.com/teranos/artificer/artifact"
)

// BuildResult is what one builder parsed out of a document
type BuildResult struct {
	// Derived are new artifacts of derived types; the pipeline ties them to the primary
	Derived []*artifact.Artifact
	// Contents holds bytes of derived documents by uuid
	Contents map[string][]byte
	// Unresolved are name-based references the pipeline links after every builder ran
	Unresolved []artifact.UnresolvedRef
}

// Builder derives artifacts from one primary document. BuildArtifacts runs
// first on every builder of a run; BuildRelationships then runs with a link
// context that sees the whole generation.
type Builder interface {
	BuildArtifacts(ctx context.Context, primary *artifact.Artifact, content []byte) (*BuildResult, error)
	BuildRelationships(ctx context.Context, lc *LinkContext) error
}

// BuilderFunc adapts a function to a Builder without a relationship phase
type BuilderFunc func(ctx context.Context, primary *artifact.Artifact, content []byte) (*BuildResult, error)

// BuildArtifacts implements Builder
func (f BuilderFunc) BuildArtifacts(ctx context.Context, primary *artifact.Artifact, content []byte) (*BuildResult, error) {
	return f(ctx, primary, content)
}

// BuildRelationships implements Builder
func (BuilderFunc) BuildRelationships(context.Context, *LinkContext) error {
	return nil
}

// ProviderFunc adapts a function to a BuilderProvider
type ProviderFunc func(primary *artifact.Artifact, content []byte) []Builder

// CreateBuilders implements BuilderProvider
func (f ProviderFunc) CreateBuilders(primary *artifact.Artifact, content []byte) []Builder {
	return f(primary, content)
}

// TypeProvider offers a builder factory for primaries of one type
func TypeProvider(typeName string, newBuilder func() Builder) BuilderProvider {
	return ProviderFunc(func(primary *artifact.Artifact, _ []byte) []Builder {
		if primary.Type.Type != typeName {
			return nil
		}
		return []Builder{newBuilder()}
	})
}
