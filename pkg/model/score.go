package model

import "time"

// ScoreSource records which upstream rating sources fed a Score.
type ScoreSource string

const (
	SourceRMP      ScoreSource = "rmp"
	SourceBluebook ScoreSource = "bluebook"
	SourceBoth     ScoreSource = "both"
)

// Score is the derived Bayesian-aggregate rating for one instructor.
type Score struct {
	InstructorID int32
	DisplayScore float64
	SortScore    float64 // CI lower bound; used for ranking
	CILower      float64
	CIUpper      float64
	Confidence   float64
	Source       ScoreSource

	RmpRating     float64
	RmpCount      int
	BbRating      float64
	BbCount       int
	CalibratedBB  float64

	ComputedAt time.Time
}

// UnratedSortSentinel is the fallback sort score for instructors with no
// rating inputs at all, so they still sort (below rated instructors) rather
// than being omitted. See spec §4.6.
const UnratedSortSentinel = 2.465
