package commands

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/teranos/artificer/artifact"
	"github.com/teranos/artificer/errors"
	"github.com/teranos/artificer/query"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want query.Value
	}{
		{"ops", query.String("ops")},
		{"string:3", query.String("3")},
		{"number:3", query.Int(3)},
		{"number:2.5", query.Number(2.5)},
		{"bool:true", query.Bool(true)},
		{"urn:x:y", query.String("urn:x:y")},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseValue(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parseValue("number:many")
	assert.True(t, errors.IsInvalidRequestError(err))
	_, err = parseValue("bool:maybe")
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"value1", "number:2"}, []string{"owner=ops"})
	require.NoError(t, err)
	assert.Equal(t, []query.Value{query.String("value1"), query.Int(2)}, params.Positional)
	assert.Equal(t, query.String("ops"), params.Named["owner"])

	_, err = parseParams(nil, []string{"novalue"})
	assert.Error(t, err)
}

func TestParseProperties(t *testing.T) {
	props, err := parseProperties([]string{"owner=ops", "tier=gold"})
	require.NoError(t, err)
	assert.Equal(t, []string{"owner", "tier"}, props.Names())

	_, err = parseProperties([]string{"=x"})
	assert.Error(t, err)
}

func TestWriteArtifactsRecords(t *testing.T) {
	a := artifact.New("Service", "billing")
	a.Properties.Set("owner", "ops")

	var buf bytes.Buffer
	require.NoError(t, writeArtifacts(&buf, OutputJSON, []*artifact.Artifact{a}))
	var records []artifact.Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "billing", records[0].Name)

	buf.Reset()
	require.NoError(t, writeArtifacts(&buf, OutputYAML, []*artifact.Artifact{a}))
	var generic []map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &generic))
	assert.Equal(t, a.UUID, generic[0]["uuid"])

	assert.Error(t, writeValue(&buf, "xml", a))
}

func TestWriteArtifactsYAMLKeys(t *testing.T) {
	doc := artifact.NewDocument(artifact.TypeXsdDocument, "order.xsd")
	doc.Audit.CreatedBy = "tester"
	doc.Content = &artifact.Content{Type: "application/xml", Size: 12, Encoding: "UTF-8", Hash: "deadbeef"}

	var buf bytes.Buffer
	require.NoError(t, writeArtifacts(&buf, OutputYAML, []*artifact.Artifact{doc}))
	assert.NotContains(t, buf.String(), "deadbeef")

	var generic []map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &generic))
	require.Len(t, generic, 1)
	rec := generic[0]

	typ := rec["type"].(map[string]interface{})
	assert.ElementsMatch(t, []string{"model", "type", "derived"}, keys(typ), "extendedType is omitted when empty")

	audit := rec["audit"].(map[string]interface{})
	assert.ElementsMatch(t, []string{"createdBy", "createdAt", "modifiedBy", "modifiedAt"}, keys(audit))
	assert.Equal(t, "tester", audit["createdBy"])

	content := rec["content"].(map[string]interface{})
	assert.ElementsMatch(t, []string{"type", "size", "encoding"}, keys(content))

	ext := artifact.New("MyThing", "thing")
	buf.Reset()
	require.NoError(t, writeArtifacts(&buf, OutputYAML, []*artifact.Artifact{ext}))
	generic = nil
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &generic))
	assert.Equal(t, "MyThing", generic[0]["type"].(map[string]interface{})["extendedType"])
	_, hasContent := generic[0]["content"]
	assert.False(t, hasContent)
}

func keys(m map[string]interface{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestFormatError(t *testing.T) {
	err := errors.WithHint(errors.NewConflict("derived_create", "ElementDeclaration", "derived artifacts can only be created by derivation"), "upload the document")
	out := FormatError(err)
	assert.Contains(t, out, "code: conflict.derived_create")
	assert.Contains(t, out, "hint: upload the document")

	_, qerr := query.Compile("/s-ramp/xsd/XsdDocument[")
	require.Error(t, qerr)
	assert.NotEmpty(t, FormatError(qerr))
}
