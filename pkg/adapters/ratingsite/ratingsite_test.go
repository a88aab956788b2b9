package ratingsite

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusgraph/coursesync/pkg/adapters"
)

func TestRefreshCadence_BucketsByRatingCount(t *testing.T) {
	assert.Equal(t, 14, RefreshCadence(0))
	assert.Equal(t, 7, RefreshCadence(3))
	assert.Equal(t, 3, RefreshCadence(10))
	assert.Equal(t, 1, RefreshCadence(100))
}

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := adapters.New(srv.URL, 0, 0)
	return New("school-1", client)
}

func TestFetchAllProfessors_SinglePageDeduplicatesByLegacyID(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"school": map[string]any{
					"professors": map[string]any{
						"pageInfo": map[string]any{"hasNextPage": false, "endCursor": ""},
						"edges": []map[string]any{
							{"node": map[string]any{"legacyId": 1, "firstName": "Ada", "lastName": "Lovelace", "numRatings": 10}},
							{"node": map[string]any{"legacyId": 1, "firstName": "Ada", "lastName": "Lovelace", "numRatings": 10}},
							{"node": map[string]any{"legacyId": 2, "firstName": "Grace", "lastName": "Hopper", "numRatings": 0}},
						},
					},
				},
			},
		})
	})

	profiles, err := a.FetchAllProfessors(context.Background())
	require.NoError(t, err)
	require.Len(t, profiles, 2)
}

func TestFetchAllProfessors_FollowsPagination(t *testing.T) {
	calls := 0
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		hasNext := calls == 1
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"school": map[string]any{
					"professors": map[string]any{
						"pageInfo": map[string]any{"hasNextPage": hasNext, "endCursor": "cursor-1"},
						"edges": []map[string]any{
							{"node": map[string]any{"legacyId": calls, "firstName": "P", "lastName": "Q", "numRatings": 5}},
						},
					},
				},
			},
		})
	})

	profiles, err := a.FetchAllProfessors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, profiles, 2)
}

func TestPost_GraphQLErrorSurfacesAsParseError(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]any{{"message": "boom"}},
		})
	})

	_, err := a.FetchCoursePrefixes(context.Background(), 1)
	assert.Error(t, err)
}

func TestPost_TooManyRequestsSurfacesAsRateLimited(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := a.FetchCoursePrefixes(context.Background(), 1)
	assert.Error(t, err)
}
