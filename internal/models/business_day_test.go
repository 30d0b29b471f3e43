package models_test

import (
	"testing"

	"ms-clinic-queue/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBusinessDay(t *testing.T) {
	day, err := models.ParseBusinessDay("2025-02-28")
	require.NoError(t, err)
	assert.Equal(t, models.BusinessDay("2025-02-28"), day)

	_, err = models.ParseBusinessDay("28/02/2025")
	assert.ErrorIs(t, err, models.ErrInvalidBusinessDay)
}

func TestBusinessDayArithmetic(t *testing.T) {
	day := models.BusinessDay("2025-03-01")
	assert.Equal(t, models.BusinessDay("2025-02-28"), day.AddDays(-1))
	assert.Equal(t, models.BusinessDay("2025-03-31"), day.AddDays(30))
	assert.True(t, day.AddDays(-1).Before(day))
	assert.False(t, day.Before(day))
}
