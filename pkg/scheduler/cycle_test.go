package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubtractPayloads_RemovesExistingEntries(t *testing.T) {
	all := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	existing := [][]byte{[]byte("b")}
	got := subtractPayloads(all, existing)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("c")}, got)
}

func TestSubtractPayloads_NoOverlapReturnsAllUnchanged(t *testing.T) {
	all := [][]byte{[]byte("a"), []byte("b")}
	got := subtractPayloads(all, nil)
	assert.Equal(t, all, got)
}

func TestSubtractPayloads_EverythingExistingReturnsEmpty(t *testing.T) {
	all := [][]byte{[]byte("a")}
	got := subtractPayloads(all, all)
	assert.Empty(t, got)
}

func TestScheduler_LastCycleAtIsZeroBeforeFirstCycle(t *testing.T) {
	s := New(Deps{})
	assert.True(t, s.LastCycleAt().IsZero())
}

func TestScheduler_MarkEvaluatedThenRecentlyEvaluatedIsTrueWithinInterval(t *testing.T) {
	s := New(Deps{})
	now := time.Now()
	s.markEvaluated("202510", now)
	assert.True(t, s.recentlyEvaluated("202510", now.Add(time.Minute)))
}

func TestScheduler_RecentlyEvaluatedIsFalseAfterArchivedIntervalElapses(t *testing.T) {
	s := New(Deps{})
	now := time.Now()
	s.markEvaluated("202510", now)
	assert.False(t, s.recentlyEvaluated("202510", now.Add(ArchivedInterval+time.Second)))
}

func TestScheduler_RecentlyEvaluatedIsFalseForUnmarkedTerm(t *testing.T) {
	s := New(Deps{})
	assert.False(t, s.recentlyEvaluated("202510", time.Now()))
}
