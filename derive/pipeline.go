package derive

import (
	"context"
	"os"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/artificer/artifact"
	"github.com/teranos/artificer/errors"
	"github.com/teranos/artificer/graph"
	"github.com/teranos/artificer/logger"
	"github.com/teranos/artificer/metrics"
	"github.com/teranos/artificer/storage"
)

// PathAttribute names the expandedFromDocument attribute holding an entry's path in its archive
const PathAttribute = "path"

// RunOptions tune one derivation
type RunOptions struct {
	// RelinkDependents re-resolves every pending reference in the store after
	// the new generation is persisted
	RelinkDependents bool
}

// Result summarises a completed derivation
type Result struct {
	Derived    int
	Unresolved int
	Relinked   int
}

// Pipeline derives and persists the generation of a primary artifact
type Pipeline struct {
	store    *storage.SQLStore
	engine   *graph.Engine
	registry *Registry
	workDir  string
	logger   *zap.SugaredLogger
}

// NewPipeline creates a pipeline. workDir holds unpacked archives; empty means the OS temp dir.
func NewPipeline(store *storage.SQLStore, engine *graph.Engine, registry *Registry, workDir string, log *zap.SugaredLogger) *Pipeline {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Pipeline{
		store:    store,
		engine:   engine,
		registry: registry,
		workDir:  workDir,
		logger:   log.Named("derive"),
	}
}

// Registry returns the pipeline's registry
func (p *Pipeline) Registry() *Registry {
	return p.registry
}

// generation is the derived set of one document of a run
type generation struct {
	primary  *artifact.Artifact
	derived  []*artifact.Artifact
	contents map[string][]byte
}

// run is the state of one Pipeline.Run
type run struct {
	p        *Pipeline
	root     *artifact.Artifact
	gens     []*generation
	builders []Builder
	refs     []artifact.UnresolvedRef
	lc       *LinkContext
	archives []*ArchiveContext
}

// Run derives primary's content and replaces its previous generation. primary
// must already be persisted. Parsing happens before the transaction; the cascade
// of the old generation, linking and persistence of the new one commit together
// or not at all. A builder failure returns a derivation error and leaves the
// store unchanged.
func (p *Pipeline) Run(ctx context.Context, primary *artifact.Artifact, content []byte, opts RunOptions) (*Result, error) {
	start := time.Now()
	res, err := p.run(ctx, primary, content, opts)
	took := time.Since(start)

	log := p.logger.With(logger.FieldArtifactUUID, primary.UUID, logger.FieldArtifactType, primary.Type.QueryName(),
		logger.FieldDurationMS, took.Milliseconds())
	if err != nil {
		metrics.RecordDerivation(metrics.OutcomeFailed, 0, 0, took)
		log.Warnw("Derivation failed", logger.FieldError, err, logger.FieldErrorCode, errors.Code(err))
		return nil, err
	}
	metrics.RecordDerivation(metrics.OutcomeCompleted, res.Derived, res.Unresolved, took)
	log.Infow("Derivation complete", logger.FieldDerivedCount, res.Derived,
		"unresolved", res.Unresolved, "relinked", res.Relinked)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, primary *artifact.Artifact, content []byte, opts RunOptions) (*Result, error) {
	root := primary.Clone()
	root.Relationships = root.GenericRelationships()

	r := &run{p: p, root: root, lc: newLinkContext(nil)}
	defer r.cleanup()

	archive := p.registry.Detect(Content{Name: root.Name, Bytes: content}, nil).Archive
	if err := r.build(ctx, root, content, archive, nil); err != nil {
		return nil, err
	}

	res := &Result{}
	err := p.store.InTx(ctx, func(tx *storage.Tx) error {
		if _, err := tx.GetArtifact(ctx, root.UUID); err != nil {
			return err
		}
		if err := p.engine.CheckReplaceable(ctx, tx.SQL(), root.UUID); err != nil {
			return err
		}
		if err := tx.DeleteUnresolvedOf(ctx, root.UUID); err != nil {
			return err
		}
		if err := p.engine.CascadeDelete(ctx, tx, root.UUID); err != nil {
			return err
		}
		if err := tx.DeleteRelationships(ctx, root.UUID, false); err != nil {
			return err
		}

		if err := r.link(ctx, tx); err != nil {
			return err
		}

		if err := tx.UpdateDocumentAttributes(ctx, root); err != nil {
			return err
		}
		gens := make([]storage.Generation, len(r.gens))
		for i, g := range r.gens {
			gens[i] = storage.Generation{Primary: g.primary, Derived: g.derived, Content: g.contents}
			res.Derived += len(g.derived)
		}
		if err := tx.PersistGenerations(ctx, gens); err != nil {
			return err
		}
		if err := tx.InsertRelationships(ctx, root.UUID, derivedRelationships(root)); err != nil {
			return err
		}

		unresolved := r.lc.Unresolved()
		res.Unresolved = len(unresolved)
		if err := tx.SaveUnresolved(ctx, root.UUID, unresolved); err != nil {
			return err
		}

		if opts.RelinkDependents {
			n, err := RelinkAll(ctx, tx)
			if err != nil {
				return err
			}
			res.Relinked = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// build parses doc and, for an archive, every entry below it. actx is set for
// documents that came out of an archive.
func (r *run) build(ctx context.Context, doc *artifact.Artifact, content []byte, archive bool, actx *ArchiveContext) error {
	g := &generation{primary: doc, contents: make(map[string][]byte)}
	r.gens = append(r.gens, g)
	r.lc.add(doc)

	for _, b := range r.p.registry.Builders(doc, content) {
		built, err := b.BuildArtifacts(ctx, doc, content)
		if err != nil {
			return errors.WithDetailf(errors.NewDerivation(doc.UUID, err), "builder %T on %s", b, doc.Name)
		}
		r.builders = append(r.builders, b)
		if built == nil {
			continue
		}
		for _, d := range built.Derived {
			if !d.IsDerived() {
				return errors.NewDerivation(doc.UUID,
					errors.AssertionFailedf("builder %T produced non-derived type %s", b, d.Type.Type))
			}
			d.RelatedDocument = doc.UUID
			g.derived = append(g.derived, d)
			r.lc.add(d)
		}
		for id, c := range built.Contents {
			g.contents[id] = c
		}
		r.refs = append(r.refs, built.Unresolved...)
	}

	if !archive || actx.IsExpandedFromArchive() || r.p.registry.unpacker == nil {
		return nil
	}
	return r.expand(ctx, g, content)
}

// expand unpacks an archive and derives each entry as a derived document of it
func (r *run) expand(ctx context.Context, g *generation, content []byte) error {
	archive := g.primary
	dir, err := os.MkdirTemp(r.p.workDir, "artificer-archive-")
	if err != nil {
		return errors.Wrap(err, "failed to create archive work dir")
	}
	actx := newArchiveContext(dir, archive.Type.QueryName())
	r.archives = append(r.archives, actx)

	if err := r.p.registry.unpacker.Unpack(content, dir); err != nil {
		return errors.NewDerivation(archive.UUID, errors.Wrapf(err, "failed to expand %s", archive.Name))
	}
	entries, err := actx.Entries()
	if err != nil {
		return errors.NewDerivation(archive.UUID, err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		det := r.p.registry.Detect(entry, actx)
		doc := newEntry(archive, entry, det)
		g.derived = append(g.derived, doc)
		g.contents[doc.UUID] = entry.Bytes
		if err := r.build(ctx, doc, entry.Bytes, det.Archive, actx); err != nil {
			return err
		}
	}
	r.p.logger.Debugw("Expanded archive", logger.FieldArtifactUUID, archive.UUID, logger.FieldCount, len(entries))
	return nil
}

func newEntry(archive *artifact.Artifact, entry Content, det Detection) *artifact.Artifact {
	info, ext := artifact.ResolveType(det.Type, true)
	doc := &artifact.Artifact{
		UUID:            uuid.NewString(),
		Name:            path.Base(entry.Name),
		Type:            artifact.Descriptor{Model: info.Model, Type: info.Type, Derived: true, ExtendedType: ext},
		Content:         Describe(entry.Name, entry.Bytes),
		RelatedDocument: archive.UUID,
	}
	doc.Relationships = []artifact.Relationship{{
		Name:       artifact.RelExpandedFrom,
		Targets:    []artifact.Target{{UUID: archive.UUID}},
		Attributes: map[string]string{PathAttribute: entry.Name},
	}}
	return doc
}

// link resolves the run's references and runs the relationship phase of every builder.
// It runs inside the transaction, after the old generation is gone.
func (r *run) link(ctx context.Context, tx *storage.Tx) error {
	r.lc.finder = tx
	for _, ref := range r.refs {
		if err := r.lc.Link(ctx, ref); err != nil {
			return err
		}
	}
	for _, b := range r.builders {
		if err := b.BuildRelationships(ctx, r.lc); err != nil {
			if errors.KindOf(err) == errors.KindRepository {
				return err
			}
			return errors.WithDetailf(errors.NewDerivation(r.root.UUID, err), "builder %T", b)
		}
	}
	return nil
}

func (r *run) cleanup() {
	for _, actx := range r.archives {
		if err := actx.Cleanup(); err != nil {
			r.p.logger.Warnw("Failed to remove archive work dir", logger.FieldPath, actx.WorkDir, logger.FieldError, err)
		}
	}
}

func derivedRelationships(a *artifact.Artifact) []artifact.Relationship {
	var out []artifact.Relationship
	for _, rel := range a.Relationships {
		if !rel.Generic {
			out = append(out, rel)
		}
	}
	return out
}
