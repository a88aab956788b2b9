package adapters

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew_SetsBaseURLAndDefaultTimeout(t *testing.T) {
	c := New("https://example.edu", 5, 10)
	assert.Equal(t, "https://example.edu", c.BaseURL)
	assert.Equal(t, 30*time.Second, c.HTTP.Timeout)
}

func TestNew_ConfiguresLimiterRate(t *testing.T) {
	c := New("https://example.edu", 5, 10)
	assert.Equal(t, float64(5), float64(c.Limiter.Limit()))
	assert.Equal(t, 10, c.Limiter.Burst())
}
