package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyForUsesUTCDay(t *testing.T) {
	assert.Equal(t, "schooltrack:checkins:2026-03-14",
		KeyFor(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)))

	// Late evening east of UTC is already the next UTC-day boundary case;
	// keys follow the UTC calendar, not the local one.
	loc := time.FixedZone("UTC+3", 3*3600)
	assert.Equal(t, "schooltrack:checkins:2026-03-13",
		KeyFor(time.Date(2026, 3, 14, 1, 30, 0, 0, loc)))
}

func TestKeyForSameDayIsStable(t *testing.T) {
	morning := time.Date(2026, 3, 14, 7, 45, 0, 0, time.UTC)
	evening := time.Date(2026, 3, 14, 16, 5, 0, 0, time.UTC)
	assert.Equal(t, KeyFor(morning), KeyFor(evening))
}
