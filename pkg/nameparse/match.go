package nameparse

import (
	"context"
	"fmt"

	"github.com/campusgraph/coursesync/pkg/model"
)

// EvalMatchStore is the transactional dependency the evaluation-site
// auto-match pipeline needs. Implemented by pkg/db against a single
// in-flight transaction, so a crash mid-run leaves existing manual
// decisions (approved/rejected) untouched (spec §5).
type EvalMatchStore interface {
	DeleteAutoAndPendingEvalLinks(ctx context.Context) error
	DistinctEvalNamesWithoutDecision(ctx context.Context) ([]EvalNameGroup, error)
	InstructorsByCRNTerm(ctx context.Context, crnTerms [][2]string) ([]model.Instructor, error)
	AllInstructors(ctx context.Context) ([]model.Instructor, error)
	UpsertEvalLink(ctx context.Context, link model.EvalLink) error
}

// EvalNameGroup is one distinct evaluation-site instructor name together
// with the (crn, term) pairs its evaluation rows reference, used for the
// CRN+term join step.
type EvalNameGroup struct {
	Name     string
	Subject  string
	CRNTerms [][2]string
}

// RunEvaluationMatch implements the evaluation-site <-> ERP auto-match
// pipeline (spec §4.5). Callers are expected to run this inside a single
// database transaction via their EvalMatchStore implementation.
func RunEvaluationMatch(ctx context.Context, store EvalMatchStore) error {
	if err := store.DeleteAutoAndPendingEvalLinks(ctx); err != nil {
		return fmt.Errorf("delete auto/pending eval links: %w", err)
	}

	groups, err := store.DistinctEvalNamesWithoutDecision(ctx)
	if err != nil {
		return fmt.Errorf("list undecided eval names: %w", err)
	}

	directory, err := store.AllInstructors(ctx)
	if err != nil {
		return fmt.Errorf("load instructor directory: %w", err)
	}
	directoryCandidates := instructorCandidates(directory)

	for _, g := range groups {
		target, err := ParseERPName(g.Name)
		if err != nil {
			// Unparseable raw evaluation-site names are recorded as an
			// unresolved pending link rather than dropped silently.
			if uerr := store.UpsertEvalLink(ctx, model.EvalLink{
				InstructorName: g.Name,
				Subject:        g.Subject,
				Status:         model.EvalPending,
			}); uerr != nil {
				return uerr
			}
			continue
		}

		link := model.EvalLink{InstructorName: g.Name, Subject: g.Subject}

		if len(g.CRNTerms) > 0 {
			joined, err := store.InstructorsByCRNTerm(ctx, g.CRNTerms)
			if err != nil {
				return fmt.Errorf("CRN+term join for %q: %w", g.Name, err)
			}
			if len(joined) > 0 {
				candidates := instructorCandidates(joined)
				id, quality, ok := FindBestCandidate(target, candidates)
				switch {
				case ok && quality == Full:
					conf := quality.Confidence()
					link.Status, link.InstructorID, link.Confidence = model.EvalAuto, &id, &conf
				case ok && quality == Partial && len(joined) == 1:
					conf := 0.9
					link.Status, link.InstructorID, link.Confidence = model.EvalAuto, &id, &conf
				case ok && quality == Partial:
					conf := 0.8
					link.Status, link.InstructorID, link.Confidence = model.EvalAuto, &id, &conf
				default:
					conf := 0.1
					link.Status, link.Confidence = model.EvalPending, &conf
				}
				if err := store.UpsertEvalLink(ctx, link); err != nil {
					return err
				}
				continue
			}
		}

		id, quality, ok := FindBestCandidate(target, directoryCandidates)
		switch {
		case ok && quality == Full:
			conf := 0.5
			link.Status, link.InstructorID, link.Confidence = model.EvalPending, &id, &conf
		case ok && quality == Partial:
			conf := 0.3
			link.Status, link.InstructorID, link.Confidence = model.EvalPending, &id, &conf
		default:
			link.Status = model.EvalPending
		}
		if err := store.UpsertEvalLink(ctx, link); err != nil {
			return err
		}
	}
	return nil
}

func instructorCandidates(instructors []model.Instructor) []Candidate[int32] {
	out := make([]Candidate[int32], 0, len(instructors))
	for _, ins := range instructors {
		out = append(out, Candidate[int32]{
			Name:  Name{First: ins.FirstName, Last: ins.LastName, Suffix: ins.Suffix},
			Value: ins.ID,
		})
	}
	return out
}

// RmpMatchStore is the transactional dependency the rating-site auto-match
// pipeline needs.
type RmpMatchStore interface {
	DeletePendingCandidatesAndAutoLinks(ctx context.Context) error
	ResetAutoInstructorsToUnmatched(ctx context.Context) error
	AllRatingProfiles(ctx context.Context) ([]model.RatingProfile, error)
	MatchableInstructors(ctx context.Context) ([]model.Instructor, error)
	UpsertCandidate(ctx context.Context, c model.RmpCandidate) error
	AutoLinkInstructor(ctx context.Context, instructorID, ratingLegacyID int32) error
}

// RunRatingMatch implements the rating-site <-> ERP auto-match pipeline
// (spec §4.5), building a name index over all rating profiles and scoring
// every still-matchable instructor against it.
func RunRatingMatch(ctx context.Context, store RmpMatchStore) error {
	if err := store.DeletePendingCandidatesAndAutoLinks(ctx); err != nil {
		return fmt.Errorf("delete pending candidates / auto links: %w", err)
	}
	if err := store.ResetAutoInstructorsToUnmatched(ctx); err != nil {
		return fmt.Errorf("reset auto instructors: %w", err)
	}

	profiles, err := store.AllRatingProfiles(ctx)
	if err != nil {
		return fmt.Errorf("load rating profiles: %w", err)
	}
	index := buildProfileIndex(profiles)

	instructors, err := store.MatchableInstructors(ctx)
	if err != nil {
		return fmt.Errorf("load matchable instructors: %w", err)
	}

	for _, ins := range instructors {
		name := Name{First: ins.FirstName, Last: ins.LastName, Suffix: ins.Suffix}
		matched := matchProfiles(name, index)
		if len(matched) == 0 {
			continue
		}

		type scored struct {
			profile model.RatingProfile
			score   float64
			bd      model.MatchBreakdown
		}
		results := make([]scored, 0, len(matched))
		for _, m := range matched {
			score, bd := CompositeScore(ScoreInputs{
				MatchedKeyOrigin:   m.origin,
				InstructorSubjects: ins.Subjects,
				ProfileDepartment:  m.profile.Department,
				ProfileCoursePrefs: m.profile.CoursePrefixes,
				NumRatings:         m.profile.NumRatings,
				CandidateCount:     len(matched),
			})
			if score < MinCandidateThreshold {
				continue
			}
			results = append(results, scored{profile: m.profile, score: score, bd: bd})
		}

		for _, r := range results {
			status := model.RmpCandidatePending
			if r.score >= AutoAcceptThreshold {
				status = model.RmpCandidateAccepted
			}
			if err := store.UpsertCandidate(ctx, model.RmpCandidate{
				InstructorID:   ins.ID,
				RatingLegacyID: r.profile.LegacyID,
				Score:          r.score,
				Breakdown:      r.bd,
				Status:         status,
			}); err != nil {
				return err
			}
			if status == model.RmpCandidateAccepted {
				if err := store.AutoLinkInstructor(ctx, ins.ID, r.profile.LegacyID); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

type profileMatch struct {
	profile model.RatingProfile
	origin  KeyOrigin
}

// buildProfileIndex maps every matching key produced by every profile back
// to that profile, so each profile appears under every key it produces.
func buildProfileIndex(profiles []model.RatingProfile) map[Key][]model.RatingProfile {
	index := make(map[Key][]model.RatingProfile)
	for _, p := range profiles {
		name := Name{First: p.FirstName, Last: p.LastName}
		for _, k := range Keys(name) {
			index[k] = append(index[k], p)
		}
	}
	return index
}

// matchProfiles intersects an instructor's keys with the profile index,
// deduplicating by legacy id and recording the best-origin key each profile
// matched on.
func matchProfiles(name Name, index map[Key][]model.RatingProfile) []profileMatch {
	seen := make(map[int32]int) // legacy id -> index into result
	var out []profileMatch
	for _, k := range Keys(name) {
		for _, p := range index[k] {
			if i, ok := seen[p.LegacyID]; ok {
				if k.Origin == OriginPrimary && out[i].origin == OriginNickname {
					out[i].origin = OriginPrimary
				}
				continue
			}
			seen[p.LegacyID] = len(out)
			out = append(out, profileMatch{profile: p, origin: k.Origin})
		}
	}
	return out
}
