package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campusgraph/coursesync/pkg/stream"
)

// parseStreamFilter reads {since,fields,subjects,term,limit} off the query
// string into a stream.Filter. Malformed values are dropped rather than
// rejected, matching the "any means any" default of an empty Filter.
func parseStreamFilter(c *gin.Context) stream.Filter {
	var f stream.Filter

	if raw := c.Query("since"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			f.Since = &t
		}
	}
	if raw := c.Query("fields"); raw != "" {
		f.Fields = splitCSV(raw)
	}
	if raw := c.Query("subjects"); raw != "" {
		f.Subjects = splitCSV(raw)
	}
	f.Term = c.Query("term")
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			f.Limit = n
		}
	}
	return f.Normalize()
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
