package clock_test

import (
	"testing"
	"time"

	"ms-clinic-queue/internal/clock"
	"ms-clinic-queue/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKolkataCrossesMidnightBeforeUTC(t *testing.T) {
	day := clock.Kolkata()

	// 18:29 UTC is 23:59 IST, 18:30 UTC is 00:00 IST the next day.
	before := time.Date(2025, 3, 9, 18, 29, 0, 0, time.UTC)
	after := time.Date(2025, 3, 9, 18, 30, 0, 0, time.UTC)

	assert.Equal(t, models.BusinessDay("2025-03-09"), day(before))
	assert.Equal(t, models.BusinessDay("2025-03-10"), day(after))
}

func TestInZoneRejectsUnknownZone(t *testing.T) {
	_, err := clock.InZone("Mars/Olympus")
	require.Error(t, err)
}

func TestFixedClockToday(t *testing.T) {
	c := clock.NewFixed(time.Date(2025, 1, 1, 20, 0, 0, 0, time.UTC))
	assert.Equal(t, models.BusinessDay("2025-01-02"), clock.Today(c, clock.Kolkata()))
}

func TestManualClockAdvance(t *testing.T) {
	c := clock.NewManual(time.Date(2025, 3, 9, 18, 0, 0, 0, time.UTC))
	assert.Equal(t, models.BusinessDay("2025-03-09"), clock.Today(c, clock.Kolkata()))

	c.Advance(45 * time.Minute)
	assert.Equal(t, models.BusinessDay("2025-03-10"), clock.Today(c, clock.Kolkata()))
}
