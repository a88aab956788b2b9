package apperrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRecoverable_ClassifiedKinds(t *testing.T) {
	assert.True(t, IsRecoverable(New(KindTimeout, "timed out")))
	assert.True(t, IsRecoverable(New(KindTransport, "connection reset")))
	assert.False(t, IsRecoverable(New(KindSchemaViolation, "bad row")))
	assert.False(t, IsRecoverable(New(KindCorruptedJobPayload, "bad json")))
}

func TestIsRecoverable_UnclassifiedErrorDefaultsTrue(t *testing.T) {
	assert.True(t, IsRecoverable(errors.New("some random stdlib error")))
}

func TestClassifyOf_ReturnsKindForClassifiedError(t *testing.T) {
	kind, ok := ClassifyOf(New(KindRateLimited, "slow down"))
	assert.True(t, ok)
	assert.Equal(t, KindRateLimited, kind)
}

func TestClassifyOf_FalseForUnclassifiedError(t *testing.T) {
	_, ok := ClassifyOf(errors.New("plain error"))
	assert.False(t, ok)
}

func TestWrap_PreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	wrapped := Wrap(KindTransport, "fetch failed", cause)
	assert.ErrorIs(t, wrapped, cause)
}

func TestError_MessageIncludesPathWhenSet(t *testing.T) {
	err := New(KindParse, "unexpected token").WithParseContext("meetings[0].days", "garbage-input-data", 5)
	assert.Contains(t, err.Error(), "path=meetings[0].days")
	assert.NotEmpty(t, err.Snippet)
}

func TestError_WithParseContextClampsWindowToStringBounds(t *testing.T) {
	err := New(KindParse, "bad").WithParseContext("field", "short", 2)
	assert.LessOrEqual(t, len(err.Snippet), len("short"))
}
