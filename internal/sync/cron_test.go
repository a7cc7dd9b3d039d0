package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseCron_Valid(t *testing.T) {
	for _, expr := range []string{
		"* * * * *",
		"0 */6 * * *",
		"0 3 1 * *",
		"15,45 9 * * 1",
	} {
		_, err := parseCron(expr)
		require.NoError(t, err, "expr %q", expr)
	}
}

func TestParseCron_Invalid(t *testing.T) {
	for _, expr := range []string{
		"",
		"* * * *",
		"* * * * * *",
		"x * * * *",
		"*/0 * * * *",
		"*/x * * * *",
	} {
		_, err := parseCron(expr)
		require.Error(t, err, "expr %q", expr)
	}
}

func TestNextCronTime_EveryMinute(t *testing.T) {
	after := time.Date(2025, 6, 1, 10, 30, 45, 0, time.UTC)
	next, err := nextCronTime("* * * * *", after, time.UTC)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 6, 1, 10, 31, 0, 0, time.UTC), next)
}

func TestNextCronTime_SixHourly(t *testing.T) {
	after := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	next, err := nextCronTime("0 */6 * * *", after, time.UTC)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), next)
}

func TestNextCronTime_MonthlyRollsOver(t *testing.T) {
	after := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	next, err := nextCronTime("0 3 1 * *", after, time.UTC)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 7, 1, 3, 0, 0, 0, time.UTC), next)
}

func TestNextCronTime_HonoursLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 03:00 UTC on June 1st is 23:00 the previous day in New York, so the
	// next 09:00 New York match falls later the same UTC day.
	after := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)
	next, err := nextCronTime("0 9 * * *", after, loc)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 6, 1, 9, 0, 0, 0, loc), next)
}

func TestNextCronTime_WeekdayField(t *testing.T) {
	// June 2nd 2025 is a Monday.
	after := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	next, err := nextCronTime("0 0 * * 1", after, time.UTC)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), next)
	require.Equal(t, time.Monday, next.Weekday())
}

func TestCronField_StepMatching(t *testing.T) {
	f, err := parseCronField("*/15")
	require.NoError(t, err)
	require.True(t, f.matches(0))
	require.True(t, f.matches(30))
	require.False(t, f.matches(20))
}
