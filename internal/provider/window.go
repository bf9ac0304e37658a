package provider

import (
	"time"

	"github.com/altafino/inbox-verifier/internal/models"
)

const (
	// Window for fresh tests; covers emails sent slightly before the test
	// record was created.
	freshWindow = 2 * time.Hour
	// A test counts as fresh while younger than this.
	freshAge = time.Hour
	// Hard lower bound for old tests.
	maxLookback = 7 * 24 * time.Hour
	// Conservative default when no test reference is resolvable.
	defaultLookback = 3 * 24 * time.Hour
)

// ResolveSince computes the search window start for a verification attempt.
//
//   - test created under an hour ago: now − 2h
//   - older test: max(created − 1h, now − 7d)
//   - no test reference: now − 3d
func ResolveSince(testCreatedAt *time.Time, now time.Time) time.Time {
	if testCreatedAt == nil || testCreatedAt.IsZero() {
		return now.Add(-defaultLookback)
	}

	if now.Sub(*testCreatedAt) < freshAge {
		return now.Add(-freshWindow)
	}

	start := testCreatedAt.Add(-time.Hour)
	floor := now.Add(-maxLookback)
	if start.Before(floor) {
		return floor
	}
	return start
}

// NewSearchTarget builds the per-attempt search target. The resolved window
// start is computed once so every folder of the account scans the same
// range.
func NewSearchTarget(marker string, testCreatedAt *time.Time) models.SearchTarget {
	return models.SearchTarget{
		Marker:        marker,
		TestCreatedAt: testCreatedAt,
		Since:         ResolveSince(testCreatedAt, time.Now().UTC()),
	}
}
