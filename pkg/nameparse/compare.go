package nameparse

// Quality is the result of comparing two names.
type Quality int

const (
	None Quality = iota
	Partial
	Full
)

// Confidence maps a Quality to its spec-defined numeric confidence.
func (q Quality) Confidence() float64 {
	switch q {
	case Full:
		return 1.0
	case Partial:
		return 0.8
	default:
		return 0.0
	}
}

// Compare intersects the matching-key sets of two names. Result is Full if
// the full normalized first and last names are identical, Partial if any
// key overlaps without being Full, None otherwise. Compare(a, b) ==
// Compare(b, a) for all a, b (property P6): the computation only depends on
// the (unordered) intersection of each side's key set.
func Compare(a, b Name) Quality {
	keysA := Keys(a)
	keysB := Keys(b)
	if len(keysA) == 0 || len(keysB) == 0 {
		return None
	}

	if keysA[0].Last == keysB[0].Last && keysA[0].First == keysB[0].First && keysA[0].First != "" {
		return Full
	}

	setB := make(map[Key]bool, len(keysB))
	for _, k := range keysB {
		setB[k] = true
	}
	for _, k := range keysA {
		if setB[k] {
			return Partial
		}
	}
	return None
}

// Candidate pairs an arbitrary payload with the name used to score it.
type Candidate[T any] struct {
	Name  Name
	Value T
}

// FindBestCandidate returns the highest-quality match against target among
// candidates. Ties at the same (non-None) quality level are ambiguous and
// yield no match, per spec §4.5 and scenario 2.
func FindBestCandidate[T any](target Name, candidates []Candidate[T]) (T, Quality, bool) {
	var zero T
	best := None
	bestIdx := -1
	tie := false

	for i, c := range candidates {
		q := Compare(target, c.Name)
		if q == None {
			continue
		}
		switch {
		case q > best:
			best = q
			bestIdx = i
			tie = false
		case q == best:
			tie = true
		}
	}

	if bestIdx < 0 || tie {
		return zero, None, false
	}
	return candidates[bestIdx].Value, best, true
}
