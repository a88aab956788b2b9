// Package rating implements the Bayesian conjugate rating aggregator
// (spec §4.6): a normal-normal posterior update blending rating-site and
// evaluation-site ("bluebook") signals into one calibrated display score
// per instructor.
package rating

import (
	"math"

	"github.com/campusgraph/coursesync/pkg/model"
)

// Prior and per-observation noise constants (spec §4.6).
const (
	priorMean     = 3.775
	priorVariance = 1.045

	rmpNoiseVariance = 1.5
	bbNoiseVariance  = 1.036

	// normalZ80 is the z-score for an 80% two-sided confidence interval.
	normalZ80 = 1.2816
)

// UnratedSortSentinel is the prior-rank value COALESCED in for instructors
// with no rating inputs, so they sort among (below) the rated ones.
const UnratedSortSentinel = model.UnratedSortSentinel

// Inputs bundles the raw per-instructor aggregates the update is computed
// from, as streamed from storage.
type Inputs struct {
	RmpRating float64
	NumRmp    int
	BBRaw     float64 // evaluation-site raw average, pre-calibration
	NumBB     int
}

// CalibrateBluebook maps an evaluation-site raw average onto the
// rating-site's 1-5 scale.
func CalibrateBluebook(raw float64) float64 {
	return clamp(-2.58+1.45*raw, 1, 5)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Compute runs the conjugate normal-normal update for one instructor. When
// neither source has observations, the zero-value Score (with Source ==
// "") is returned and the caller is expected to treat the instructor as
// unrated (property P10).
func Compute(in Inputs) (model.Score, bool) {
	if in.NumRmp == 0 && in.NumBB == 0 {
		return model.Score{}, false
	}

	precision := 1 / priorVariance
	weightedMean := priorMean / priorVariance

	var source model.ScoreSource
	switch {
	case in.NumRmp > 0 && in.NumBB > 0:
		source = model.SourceBoth
	case in.NumRmp > 0:
		source = model.SourceRMP
	default:
		source = model.SourceBluebook
	}

	if in.NumRmp > 0 {
		nEff := 2 * math.Sqrt(float64(in.NumRmp))
		precision += nEff / rmpNoiseVariance
		weightedMean += in.RmpRating * nEff / rmpNoiseVariance
	}
	if in.NumBB > 0 {
		nEff := math.Sqrt(float64(in.NumBB))
		calibrated := CalibrateBluebook(in.BBRaw)
		precision += nEff / bbNoiseVariance
		weightedMean += calibrated * nEff / bbNoiseVariance
	}

	mean := weightedMean / precision
	sigmaPost := math.Sqrt(1 / precision)

	display := clamp(mean, 1, 5)
	ciLower := math.Max(1, mean-normalZ80*sigmaPost)
	ciUpper := math.Min(5, mean+normalZ80*sigmaPost)
	confidence := clamp(1-sigmaPost/math.Sqrt(priorVariance), 0, 1)

	var calibratedBB float64
	if in.NumBB > 0 {
		calibratedBB = CalibrateBluebook(in.BBRaw)
	}

	return model.Score{
		DisplayScore: display,
		CILower:      ciLower,
		CIUpper:      ciUpper,
		SortScore:    ciLower,
		Confidence:   confidence,
		Source:       source,
		RmpRating:    in.RmpRating,
		RmpCount:     in.NumRmp,
		BbRating:     in.BBRaw,
		BbCount:      in.NumBB,
		CalibratedBB: calibratedBB,
	}, true
}
