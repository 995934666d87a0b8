package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/artificer/artifact"
	"github.com/teranos/artificer/errors"
	"github.com/teranos/artificer/ontology"
)

func TestStoredQueryCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sq := &StoredQuery{
		Name:          "findXsds",
		Query:         "/s-ramp/xsd/XsdDocument[@prop1 = ?]",
		PropertyNames: []string{"name", "prop1"},
		OrderBy:       "name",
		Ascending:     true,
		CreatedBy:     "tester",
	}
	require.NoError(t, s.CreateStoredQuery(ctx, sq))

	err := s.CreateStoredQuery(ctx, sq)
	require.Error(t, err)
	assert.Equal(t, "conflict.duplicate_stored_query", errors.Code(err))

	got, err := s.GetStoredQuery(ctx, "findXsds")
	require.NoError(t, err)
	assert.Equal(t, sq.Query, got.Query)
	assert.Equal(t, []string{"name", "prop1"}, got.PropertyNames)
	assert.True(t, got.Ascending)
	assert.Equal(t, "tester", got.CreatedBy)

	sq.Query = "/s-ramp/xsd/XsdDocument"
	sq.PropertyNames = nil
	require.NoError(t, s.UpdateStoredQuery(ctx, sq))
	got, err = s.GetStoredQuery(ctx, "findXsds")
	require.NoError(t, err)
	assert.Equal(t, "/s-ramp/xsd/XsdDocument", got.Query)
	assert.Empty(t, got.PropertyNames)

	require.NoError(t, s.CreateStoredQuery(ctx, &StoredQuery{Name: "all", Query: "/s-ramp"}))
	all, err := s.ListStoredQueries(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "all", all[0].Name)

	require.NoError(t, s.DeleteStoredQuery(ctx, "findXsds"))
	_, err = s.GetStoredQuery(ctx, "findXsds")
	assert.True(t, errors.IsNotFoundError(err))
	assert.True(t, errors.IsNotFoundError(s.DeleteStoredQuery(ctx, "findXsds")))
	assert.True(t, errors.IsNotFoundError(s.UpdateStoredQuery(ctx, sq)))
}

func colorOntology(t *testing.T) *ontology.Ontology {
	t.Helper()
	o := ontology.New("http://example.org/colors", "Colors", "Colors")
	o.UUID = "0b3c2d1e-0000-4000-8000-000000000001"
	o.Audit.CreatedBy = "tester"
	color := o.NewClass("Color", "Color")
	red := o.NewClass("Red", "Red")
	blue := o.NewClass("Blue", "Blue")
	crimson := o.NewClass("Crimson", "Crimson")
	require.NoError(t, o.AddRoot(color))
	require.NoError(t, o.AddChild(color, red))
	require.NoError(t, o.AddChild(color, blue))
	require.NoError(t, o.AddChild(red, crimson))
	return o
}

func TestOntologyRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	o := colorOntology(t)
	require.NoError(t, s.SaveOntology(ctx, o))

	got, err := s.GetOntology(ctx, o.UUID)
	require.NoError(t, err)
	assert.Equal(t, "http://example.org/colors", got.Base)
	assert.Equal(t, "tester", got.Audit.CreatedBy)
	require.Len(t, got.Classes, 1)
	color := got.Classes[0]
	require.Len(t, color.Children, 2)
	assert.Equal(t, "Red", color.Children[0].ID)
	assert.Equal(t, "Blue", color.Children[1].ID)
	crimson := got.FindClass("Crimson")
	require.NotNil(t, crimson)
	assert.Equal(t, []string{
		"http://example.org/colors#Crimson",
		"http://example.org/colors#Red",
		"http://example.org/colors#Color",
	}, ontology.Normalize(crimson))

	dup := colorOntology(t)
	dup.UUID = "0b3c2d1e-0000-4000-8000-000000000002"
	err = s.SaveOntology(ctx, dup)
	require.Error(t, err)
	assert.True(t, errors.IsConflictError(err))

	list, err := s.ListOntologies(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestOntologyInUse(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	o := colorOntology(t)
	require.NoError(t, s.SaveOntology(ctx, o))
	loaded, err := s.GetOntology(ctx, o.UUID)
	require.NoError(t, err)
	s.SetClassifier(ontology.NewSet(loaded))

	a := artifact.New("Service", "billing")
	a.Classifications = []string{"http://example.org/colors#Crimson"}
	persist(t, s, a)

	err = s.DeleteOntology(ctx, o.UUID)
	require.Error(t, err)
	assert.True(t, errors.IsConstraintError(err))
	assert.Equal(t, "constraint.classifier", errors.Code(err))

	// Blue classifies nothing and may go
	edit := loaded.Copy()
	color := edit.FindClass("Color")
	color.Children = color.Children[:1]
	require.NoError(t, s.UpdateOntology(ctx, edit))

	// Red is an implied classification of the artifact
	edit = loaded.Copy()
	edit.Classes[0].Children = nil
	err = s.UpdateOntology(ctx, edit)
	require.Error(t, err)
	assert.Equal(t, "constraint.classifier", errors.Code(err))

	got, err := s.GetOntology(ctx, o.UUID)
	require.NoError(t, err)
	assert.Nil(t, got.FindClass("Blue"))
	assert.NotNil(t, got.FindClass("Crimson"))

	require.NoError(t, s.DeleteArtifact(ctx, a.UUID))
	require.NoError(t, s.DeleteOntology(ctx, o.UUID))
	_, err = s.GetOntology(ctx, o.UUID)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestAuditTrail(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id := "5c1e1f4a-0000-4000-8000-00000000000a"
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.InTx(ctx, func(tx *Tx) error {
		if err := tx.AppendAudit(ctx, &AuditEntry{ArtifactUUID: id, Type: AuditAdd, Who: "tester", At: at,
			Items: []AuditItem{{Name: "name", Value: "a.xsd"}}}); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, &AuditEntry{ArtifactUUID: id, Type: AuditDelete, Who: "tester", At: at.Add(time.Minute)})
	}))

	trail, err := s.AuditTrail(ctx, id)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, AuditAdd, trail[0].Type)
	assert.Equal(t, []AuditItem{{Name: "name", Value: "a.xsd"}}, trail[0].Items)
	assert.True(t, at.Equal(trail[0].At))
	assert.Equal(t, AuditDelete, trail[1].Type)
	assert.Empty(t, trail[1].Items)

	e, err := s.GetAuditEntry(ctx, id, trail[1].UUID)
	require.NoError(t, err)
	assert.Equal(t, trail[1].UUID, e.UUID)

	_, err = s.GetAuditEntry(ctx, id, "missing")
	assert.True(t, errors.IsNotFoundError(err))
}
