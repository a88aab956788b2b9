package model

// RmpMatchStatus tracks the rating-site matching workflow for an instructor.
type RmpMatchStatus string

const (
	RmpUnmatched RmpMatchStatus = "unmatched"
	RmpPending   RmpMatchStatus = "pending"
	RmpAuto      RmpMatchStatus = "auto"
	RmpConfirmed RmpMatchStatus = "confirmed"
	RmpRejected  RmpMatchStatus = "rejected"
)

// Instructor is the canonical identity that external reviews are matched to.
// Instructors are never destroyed once created, so that historical scores
// and reviews remain attributable.
type Instructor struct {
	ID         int32
	Subjects   []string // subject codes this instructor has taught, for department scoring
	FirstName  string
	LastName   string
	Suffix     string
	Slug       string // lowercase letters/digits + 3-char suffix
	Email      string
	RmpStatus  RmpMatchStatus
}

// DisplayName reconstructs the ERP "Last, First" form when both parts are
// known, falling back to whatever is present.
func (i Instructor) DisplayName() string {
	switch {
	case i.LastName != "" && i.FirstName != "":
		if i.Suffix != "" {
			return i.LastName + ", " + i.FirstName + " " + i.Suffix
		}
		return i.LastName + ", " + i.FirstName
	case i.LastName != "":
		return i.LastName
	default:
		return i.FirstName
	}
}

// RatingProfile is a professor profile scraped from the rating site.
type RatingProfile struct {
	LegacyID           int32
	FirstName          string
	LastName           string
	Department         string
	AvgRating          float64
	AvgDifficulty      float64
	NumRatings         int
	WouldTakeAgainPct  float64
	CoursePrefixes     []string // observed course-code prefixes, e.g. "CS", "CS3"
	RefreshCadenceDays int
}

// EvaluationRecord is a single row from the internal course-evaluation site.
type EvaluationRecord struct {
	Subject        string
	CourseNumber   string
	Section        string
	Term           string
	InstructorName string // raw, as printed by the evaluation site
	Rating         float64
	ResponseCount  int
	Department     string
}

// NaturalKey returns the identity tuple used for de-duplication and upsert.
func (e EvaluationRecord) NaturalKey() [5]string {
	return [5]string{e.Subject, e.CourseNumber, e.Section, e.Term, e.InstructorName}
}

// EvalLinkStatus tracks the evaluation-name-to-instructor matching workflow.
type EvalLinkStatus string

const (
	EvalAuto     EvalLinkStatus = "auto"
	EvalPending  EvalLinkStatus = "pending"
	EvalApproved EvalLinkStatus = "approved"
	EvalRejected EvalLinkStatus = "rejected"
)

// EvalLink associates a free-text evaluation-site instructor name (scoped
// to an optional subject) with a canonical instructor.
type EvalLink struct {
	InstructorName string
	Subject        string // may be empty; unique key coalesces it to ""
	InstructorID   *int32
	Status         EvalLinkStatus
	Confidence     *float64
}

// RmpCandidateStatus tracks the rating-site matching workflow for a single
// (instructor, profile) pair.
type RmpCandidateStatus string

const (
	RmpCandidatePending  RmpCandidateStatus = "pending"
	RmpCandidateAccepted RmpCandidateStatus = "accepted"
	RmpCandidateRejected RmpCandidateStatus = "rejected"
)

// RmpLink is a confirmed one-to-one link between an instructor and a rating
// profile. A rating_legacy_id appears in at most one row.
type RmpLink struct {
	InstructorID   int32
	RatingLegacyID int32
}

// RmpCandidate is a scored, not-yet-resolved (or resolved) pairing proposal.
type RmpCandidate struct {
	InstructorID   int32
	RatingLegacyID int32
	Score          float64
	Breakdown      MatchBreakdown
	Status         RmpCandidateStatus
	ResolvedBy     string
}

// MatchBreakdown records the composite-score components for audit/debugging.
type MatchBreakdown struct {
	Name          float64
	Department    float64
	Uniqueness    float64
	Volume        float64
	ReviewCourses float64
}
