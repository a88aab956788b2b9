// Package ratingsite implements the GraphQL rating-site adapter (C10):
// cursor-paginated professor listing, per-profile histogram/course-code
// fetch, and a per-profile review refresh cadence.
//
// No dedicated GraphQL client library is grounded in the retrieved
// reference pack, so query documents are hand-built strings posted over
// net/http and decoded with encoding/json — documented as a deliberate
// stdlib exception in DESIGN.md.
package ratingsite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/campusgraph/coursesync/pkg/adapters"
	"github.com/campusgraph/coursesync/pkg/apperrors"
	"github.com/campusgraph/coursesync/pkg/model"
)

// Adapter drives the rating site's GraphQL API. schoolID identifies the
// institution; injected rather than hardcoded so tests can substitute one.
type Adapter struct {
	client   *adapters.Client
	schoolID string
}

// New constructs a rating-site adapter on top of the shared adapter Client.
func New(schoolID string, client *adapters.Client) *Adapter {
	return &Adapter{client: client, schoolID: schoolID}
}

// RefreshCadence returns how often (in days) a profile's reviews should be
// refreshed, given its current rating count (spec §4.10).
func RefreshCadence(numRatings int) int {
	switch {
	case numRatings == 0:
		return 14
	case numRatings <= 5:
		return 7
	case numRatings <= 20:
		return 3
	default:
		return 1
	}
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type gqlError struct {
	Message string `json:"message"`
}

func (a *Adapter) post(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(gqlRequest{Query: query, Variables: variables})
	if err != nil {
		return apperrors.Wrap(apperrors.KindTransport, "encoding graphql request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.client.BaseURL+"/graphql", bytes.NewReader(body))
	if err != nil {
		return apperrors.Wrap(apperrors.KindTransport, "building graphql request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := a.client.Limiter.Wait(ctx); err != nil {
		return apperrors.Wrap(apperrors.KindTransport, "rating site rate limiter wait", err)
	}
	resp, err := a.client.HTTP.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.KindTransport, "graphql request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return apperrors.New(apperrors.KindRateLimited, "rating site rate limited")
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []gqlError      `json:"errors"`
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&envelope); err != nil {
		return apperrors.Wrap(apperrors.KindParse, "decoding graphql envelope", err)
	}
	if len(envelope.Errors) > 0 {
		return apperrors.New(apperrors.KindParse, fmt.Sprintf("graphql error: %s", envelope.Errors[0].Message))
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return apperrors.Wrap(apperrors.KindParse, "decoding graphql data", err).WithParseContext("data", string(envelope.Data), 0)
	}
	return nil
}

const professorsQuery = `
query Professors($schoolId: ID!, $after: String) {
  school(id: $schoolId) {
    professors(first: 50, after: $after) {
      pageInfo { hasNextPage endCursor }
      edges { node { legacyId firstName lastName department avgRating avgDifficulty numRatings wouldTakeAgainPercent } }
    }
  }
}`

type professorsPage struct {
	School struct {
		Professors struct {
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
			Edges []struct {
				Node struct {
					LegacyID             int32   `json:"legacyId"`
					FirstName            string  `json:"firstName"`
					LastName             string  `json:"lastName"`
					Department           string  `json:"department"`
					AvgRating            float64 `json:"avgRating"`
					AvgDifficulty        float64 `json:"avgDifficulty"`
					NumRatings           int     `json:"numRatings"`
					WouldTakeAgainPercent float64 `json:"wouldTakeAgainPercent"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"professors"`
	} `json:"school"`
}

// FetchAllProfessors paginates the full professor directory for the
// configured school, deduplicating by legacy id since the same professor
// can appear twice across pages when the upstream's ranking shifts
// mid-pagination (spec §4.10).
func (a *Adapter) FetchAllProfessors(ctx context.Context) ([]model.RatingProfile, error) {
	seen := make(map[int32]bool)
	var out []model.RatingProfile
	cursor := ""
	for {
		var page professorsPage
		vars := map[string]any{"schoolId": a.schoolID}
		if cursor != "" {
			vars["after"] = cursor
		}
		if err := a.post(ctx, professorsQuery, vars, &page); err != nil {
			return nil, err
		}
		for _, e := range page.School.Professors.Edges {
			n := e.Node
			if seen[n.LegacyID] {
				continue
			}
			seen[n.LegacyID] = true
			profile := model.RatingProfile{
				LegacyID:           n.LegacyID,
				FirstName:          n.FirstName,
				LastName:           n.LastName,
				Department:         n.Department,
				AvgRating:          n.AvgRating,
				AvgDifficulty:      n.AvgDifficulty,
				NumRatings:         n.NumRatings,
				WouldTakeAgainPct:  n.WouldTakeAgainPercent,
				RefreshCadenceDays: RefreshCadence(n.NumRatings),
			}
			out = append(out, profile)
		}
		info := page.School.Professors.PageInfo
		if !info.HasNextPage {
			break
		}
		cursor = info.EndCursor
	}
	return out, nil
}

const courseCodesQuery = `
query ProfessorCourses($legacyId: ID!) {
  professor(legacyId: $legacyId) { courseCodes }
}`

type courseCodesResponse struct {
	Professor struct {
		CourseCodes []string `json:"courseCodes"`
	} `json:"professor"`
}

// FetchCoursePrefixes fetches the observed course-code prefixes for a
// single professor, used by the composite match score's review_courses
// component.
func (a *Adapter) FetchCoursePrefixes(ctx context.Context, legacyID int32) ([]string, error) {
	var resp courseCodesResponse
	if err := a.post(ctx, courseCodesQuery, map[string]any{"legacyId": legacyID}, &resp); err != nil {
		return nil, err
	}
	return resp.Professor.CourseCodes, nil
}

const reviewsPageQuery = `
query ProfessorReviews($legacyId: ID!, $after: String) {
  professor(legacyId: $legacyId) {
    ratings(first: 20, after: $after) {
      pageInfo { hasNextPage endCursor }
      edges { node { comment qualityRating } }
    }
  }
}`

type reviewsPage struct {
	Professor struct {
		Ratings struct {
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
			Edges []struct {
				Node struct {
					Comment       string  `json:"comment"`
					QualityRating float64 `json:"qualityRating"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"ratings"`
	} `json:"professor"`
}

// FetchReviews pages through every review for one professor, 20 at a time.
func (a *Adapter) FetchReviews(ctx context.Context, legacyID int32) ([]string, error) {
	var comments []string
	cursor := ""
	for {
		var page reviewsPage
		vars := map[string]any{"legacyId": legacyID}
		if cursor != "" {
			vars["after"] = cursor
		}
		if err := a.post(ctx, reviewsPageQuery, vars, &page); err != nil {
			return nil, err
		}
		for _, e := range page.Professor.Ratings.Edges {
			comments = append(comments, e.Node.Comment)
		}
		info := page.Professor.Ratings.PageInfo
		if !info.HasNextPage {
			break
		}
		cursor = info.EndCursor
	}
	return comments, nil
}

// Store is the persistence dependency the sync entrypoint needs.
type Store interface {
	ReplaceProfiles(ctx context.Context, profiles []model.RatingProfile) error
	ProfilesDueForReviewRefresh(ctx context.Context) ([]model.RatingProfile, error)
}

// Sync refreshes the professor directory, fetches course prefixes for
// every profile, and replaces the stored profiles with the result. It does
// not consult ProfilesDueForReviewRefresh. Used as a scheduler SubSync
// (spec §4.8).
func (a *Adapter) Sync(ctx context.Context, store Store) error {
	profiles, err := a.FetchAllProfessors(ctx)
	if err != nil {
		return err
	}
	for i, p := range profiles {
		prefixes, err := a.FetchCoursePrefixes(ctx, p.LegacyID)
		if err != nil {
			return err
		}
		profiles[i].CoursePrefixes = prefixes
	}
	return store.ReplaceProfiles(ctx, profiles)
}
