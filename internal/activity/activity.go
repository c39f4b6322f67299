// Package activity computes the dashboard summary of a user's testing activity.
//
// Summarize is a pure function of its inputs. All windows are computed in
// UTC and are inclusive on both boundary instants.
package activity

import (
	"math"
	"slices"
	"time"

	"github.com/pavelanni/testmaker/internal/model"
)

// RecentTestsLimit is the number of attempts reported in RecentTests.
const RecentTestsLimit = 3

const recentWindow = 24 * time.Hour

// Window is a time range. End is the last millisecond in the range, for
// display. Membership is decided against the exclusive upper bound, so
// sub-millisecond instants after End still belong to the window.
type Window struct {
	Start time.Time
	End   time.Time
	until time.Time
}

func newWindow(start, until time.Time) Window {
	return Window{Start: start, End: until.Add(-time.Millisecond), until: until}
}

// Contains reports whether t lies in w. Start is included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.until)
}

// WeekBounds returns the ISO week containing now: Monday 00:00:00.000 through
// Sunday 23:59:59.999 UTC.
func WeekBounds(now time.Time) Window {
	now = now.UTC()
	// time.Weekday has Sunday as 0; shift so Monday is 0.
	offset := (int(now.Weekday()) + 6) % 7
	start := time.Date(now.Year(), now.Month(), now.Day()-offset, 0, 0, 0, 0, time.UTC)
	return newWindow(start, start.AddDate(0, 0, 7))
}

// MonthBounds returns the calendar month containing now in UTC.
func MonthBounds(now time.Time) Window {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return newWindow(start, start.AddDate(0, 1, 0))
}

// RecentBounds returns the trailing 24 hours ending at now, both ends included.
func RecentBounds(now time.Time) Window {
	now = now.UTC()
	return Window{Start: now.Add(-recentWindow), End: now, until: now.Add(time.Nanosecond)}
}

// Percentage returns score/totalMarks*100. A missing score counts as 0 and a
// missing or zero denominator yields 0.
func Percentage(score, totalMarks *float64) float64 {
	if totalMarks == nil || *totalMarks == 0 || math.IsNaN(*totalMarks) || math.IsInf(*totalMarks, 0) {
		return 0
	}
	var s float64
	if score != nil && !math.IsNaN(*score) && !math.IsInf(*score, 0) {
		s = *score
	}
	return s / *totalMarks * 100
}

// Summarize builds the activity summary for one user from their templates and
// the attempts recorded against them.
func Summarize(templates []model.TestTemplate, attempts []model.TestAttempt, now time.Time) model.ActivitySummary {
	week := WeekBounds(now)
	month := MonthBounds(now)
	recent := RecentBounds(now)

	summary := model.ActivitySummary{
		TotalTests:    len(templates),
		TotalAttempts: len(attempts),
		RecentTests:   []model.RecentTest{},
	}

	for _, t := range templates {
		if week.Contains(t.CreatedAt) {
			summary.TestsThisWeek++
		}
	}

	var monthSum float64
	var monthCount int
	for _, a := range attempts {
		if week.Contains(a.SubmittedAt) {
			summary.AttemptsThisWeek++
		}
		if month.Contains(a.SubmittedAt) {
			monthSum += Percentage(a.Score, a.TotalMarks)
			monthCount++
		}
		if recent.Contains(a.SubmittedAt) {
			summary.RecentActivity++
		}
	}
	if monthCount > 0 {
		summary.AverageScoreThisMonth = int(math.Round(monthSum / float64(monthCount)))
	}

	sorted := slices.Clone(attempts)
	slices.SortStableFunc(sorted, func(a, b model.TestAttempt) int {
		return b.SubmittedAt.Compare(a.SubmittedAt)
	})
	if len(sorted) > RecentTestsLimit {
		sorted = sorted[:RecentTestsLimit]
	}
	for _, a := range sorted {
		summary.RecentTests = append(summary.RecentTests, model.RecentTest{
			ID:          a.ID,
			TestID:      a.TestID,
			TestTitle:   a.TestTitle,
			Score:       a.Score,
			TotalMarks:  a.TotalMarks,
			SubmittedAt: a.SubmittedAt,
			Percentage:  int(math.Round(Percentage(a.Score, a.TotalMarks))),
		})
	}

	return summary
}
