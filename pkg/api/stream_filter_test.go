package api

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGinContext(rawQuery string) *gin.Context {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/stream?"+rawQuery, nil)
	return c
}

func TestParseStreamFilter_EmptyQueryYieldsNormalizedDefaults(t *testing.T) {
	f := parseStreamFilter(newTestGinContext(""))
	assert.Empty(t, f.Fields)
	assert.Empty(t, f.Subjects)
	assert.Empty(t, f.Term)
	assert.Greater(t, f.Limit, 0)
}

func TestParseStreamFilter_ParsesCSVFields(t *testing.T) {
	f := parseStreamFilter(newTestGinContext("fields=title, enrollment_current ,crn"))
	assert.Equal(t, []string{"title", "enrollment_current", "crn"}, f.Fields)
}

func TestParseStreamFilter_ParsesValidSince(t *testing.T) {
	f := parseStreamFilter(newTestGinContext("since=2026-01-15T00:00:00Z"))
	require.NotNil(t, f.Since)
	assert.Equal(t, 2026, f.Since.Year())
}

func TestParseStreamFilter_MalformedSinceIsDropped(t *testing.T) {
	f := parseStreamFilter(newTestGinContext("since=not-a-timestamp"))
	assert.Nil(t, f.Since)
}

func TestParseStreamFilter_MalformedLimitIsDropped(t *testing.T) {
	f := parseStreamFilter(newTestGinContext("limit=abc"))
	assert.Greater(t, f.Limit, 0)
}

func TestParseStreamFilter_ParsesTermAndSubjects(t *testing.T) {
	f := parseStreamFilter(newTestGinContext("term=202620&subjects=CS,MA"))
	assert.Equal(t, "202620", f.Term)
	assert.Equal(t, []string{"CS", "MA"}, f.Subjects)
}
