package errors

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestKindsMatchSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		kind     Kind
		code     string
	}{
		{"syntax", NewQuerySyntax("]", "unexpected token"), ErrQuerySyntax, KindQuerySyntax, "query_syntax.syntax"},
		{"validation", NewQueryValidation("unknown_model", "foo", "unknown model"), ErrQueryValidation, KindQueryValidation, "query_validation.unknown_model"},
		{"conflict", NewConflict("duplicate_uuid", "abc", "artifact exists"), ErrConflict, KindConflict, "conflict.duplicate_uuid"},
		{"not found", NewNotFound("artifact", "abc"), ErrNotFound, KindNotFound, "not_found.artifact"},
		{"constraint", NewConstraint(ConstraintRelationship, "abc", "still referenced"), ErrConstraint, KindConstraint, "constraint.relationship"},
		{"derivation", NewDerivation("abc", New("bad xml")), ErrDerivation, KindDerivation, "derivation.builder"},
		{"repository", NewRepository(CodeBusy, true, sql.ErrConnDone), ErrRepository, KindRepository, "repository.busy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, Is(tt.err, tt.sentinel))
			assert.Equal(t, tt.kind, KindOf(tt.err))
			assert.Equal(t, tt.code, Code(tt.err))

			wrapped := Wrap(tt.err, "outer context")
			assert.True(t, Is(wrapped, tt.sentinel))
			assert.Equal(t, tt.kind, KindOf(wrapped))
		})
	}
}

func TestKindsDoNotCrossMatch(t *testing.T) {
	err := NewConflict("duplicate_name", "q1", "stored query exists")
	assert.False(t, Is(err, ErrNotFound))
	assert.False(t, IsNotFoundError(err))
	assert.True(t, IsConflictError(err))
}

func TestErrorMessageIncludesSubject(t *testing.T) {
	err := NewConstraint(ConstraintRelationship, "1234", "artifact is the target of relationships")
	assert.Contains(t, err.Error(), "1234")

	var e *Error
	require.True(t, As(err, &e))
	assert.Equal(t, "1234", e.Subject)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewRepository(CodeSequencingTimeout, true, New("timed out"))))
	assert.False(t, IsRetryable(NewRepository(CodeStore, false, New("disk full"))))
	assert.False(t, IsRetryable(New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestRepositoryUnwrapsCause(t *testing.T) {
	err := NewRepository(CodeStore, false, sql.ErrTxDone)
	assert.True(t, Is(err, sql.ErrTxDone))
}

func TestUnclassifiedCode(t *testing.T) {
	assert.Equal(t, "unknown", Code(New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}
