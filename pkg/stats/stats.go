// Package stats derives the gamification metrics from the event log. Compute
// is a pure function of the snapshot and the reference instant, so every
// metric can be recomputed from scratch at any time.
package stats

import (
	"time"

	"readquest/pkg/domain"
	"readquest/pkg/store"
)

const (
	weeklyWindow = 7 * 24 * time.Hour

	// maxStreakDays bounds the backward calendar walk so it always
	// terminates even on pathological data.
	maxStreakDays = 1000

	xpPerQuizCorrect = 3

	streakBadgeThreshold = 3
	xpBadgeThreshold     = 100
)

// Compute folds the snapshot into derived metrics for its user. now supplies
// both the instant for the rolling weekly window and the timezone for
// calendar-day streak comparison. Empty logs yield zero-valued metrics.
func Compute(snap store.Snapshot, now time.Time) domain.Stats {
	userID := snap.User.ID
	s := domain.Stats{
		WeeklyMinutes: weeklyMinutes(snap, userID, now),
		XP:            xp(snap, userID),
		Streak:        streak(snap, userID, now),
		QuizAccuracy:  quizAccuracy(snap, userID),
	}
	s.Achievements = achievements(s.XP, s.Streak)
	return s
}

// weeklyMinutes sums session minutes inside the strict 7x24h rolling window.
// The boundary is inclusive: a session at exactly now-7d counts.
func weeklyMinutes(snap store.Snapshot, userID string, now time.Time) int {
	cutoff := now.Add(-weeklyWindow)
	total := 0
	for sess := range snap.SessionsFor(userID) {
		if !sess.CreatedAt.Before(cutoff) {
			total += sess.Minutes
		}
	}
	return total
}

// xp is the lifetime total over all sessions: half a point per minute rounded
// half-up, plus three per correct quiz answer recorded on the session. It is
// monotonically non-decreasing as the log grows.
func xp(snap store.Snapshot, userID string) int {
	total := 0
	for sess := range snap.SessionsFor(userID) {
		total += (sess.Minutes+1)/2 + sess.QuizCorrect*xpPerQuizCorrect
	}
	return total
}

// streak counts consecutive calendar days with at least one session, walking
// backward from today in now's location. The walk stops at the first gapped
// day including day zero: no session today means streak 0 regardless of
// history. Two sessions on the same day contribute one streak day.
func streak(snap store.Snapshot, userID string, now time.Time) int {
	days := make(map[string]struct{})
	loc := now.Location()
	for sess := range snap.SessionsFor(userID) {
		days[sess.CreatedAt.In(loc).Format(time.DateOnly)] = struct{}{}
	}
	count := 0
	for i := 0; i < maxStreakDays; i++ {
		day := now.AddDate(0, 0, -i).Format(time.DateOnly)
		if _, ok := days[day]; !ok {
			break
		}
		count++
	}
	return count
}

// quizAccuracy is the mean score over all quiz results, rounded to the
// nearest integer; zero when there is no quiz history.
func quizAccuracy(snap store.Snapshot, userID string) int {
	sum, n := 0, 0
	for q := range snap.QuizResultsFor(userID) {
		sum += q.Score
		n++
	}
	if n == 0 {
		return 0
	}
	return (sum + n/2) / n
}

// achievements is purely a function of the current aggregates; badges are not
// tracked historically.
func achievements(xp, streak int) []domain.Achievement {
	var out []domain.Achievement
	if streak >= streakBadgeThreshold {
		out = append(out, domain.Achievement{ID: "streak-3", Label: "3-day streak"})
	}
	if xp >= xpBadgeThreshold {
		out = append(out, domain.Achievement{ID: "xp-100", Label: "100 XP"})
	}
	return out
}
