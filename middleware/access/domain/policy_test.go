package domain

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeUnit_NormalizesCase(t *testing.T) {
	u, err := ParseTimeUnit(" Minute ")
	require.NoError(t, err)
	assert.Equal(t, UnitMinute, u)

	u, err = ParseTimeUnit("month")
	require.NoError(t, err)
	assert.Equal(t, UnitMonth, u)
}

func TestParseTimeUnit_RejectsUnknown(t *testing.T) {
	_, err := ParseTimeUnit("fortnight")
	require.Error(t, err)
	assert.True(t, IsInvalidArgument(err))
}

func TestWindow_MinuteAlignsToMinute(t *testing.T) {
	now := time.Date(2026, 10, 18, 10, 15, 42, 0, time.UTC)

	start, end := UnitMinute.Window(now, 1)
	assert.Equal(t, time.Date(2026, 10, 18, 10, 15, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 10, 18, 10, 16, 0, 0, time.UTC), end)
}

func TestWindow_IntervalMultipliesLength(t *testing.T) {
	now := time.Date(2026, 10, 18, 10, 17, 42, 0, time.UTC)

	start, end := UnitMinute.Window(now, 5)
	assert.Equal(t, time.Date(2026, 10, 18, 10, 15, 0, 0, time.UTC), start)
	assert.Equal(t, 5*time.Minute, end.Sub(start))
}

func TestWindow_MonthUsesCalendar(t *testing.T) {
	now := time.Date(2026, 2, 27, 23, 0, 0, 0, time.UTC)

	start, end := UnitMonth.Window(now, 1)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), end)

	// 2026-02 é o mês 673 desde jan/1970; 673 - 673%3 = 672 => janeiro.
	start, end = UnitMonth.Window(now, 3)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestWindow_ContainsNow(t *testing.T) {
	now := time.Now()
	for _, u := range []TimeUnit{UnitSecond, UnitMinute, UnitHour, UnitDay, UnitWeek, UnitMonth} {
		start, end := u.Window(now, 2)
		assert.False(t, now.Before(start), "unit %s", u)
		assert.True(t, now.Before(end), "unit %s", u)
	}
}

func TestSpikeArrestPolicy_Interval(t *testing.T) {
	p := SpikeArrestPolicy{Allow: 10, TimeUnit: "second"}
	assert.Equal(t, 100*time.Millisecond, p.Interval())

	p = SpikeArrestPolicy{Allow: 30, TimeUnit: "minute"}
	assert.Equal(t, 2*time.Second, p.Interval())
}

func TestQuotaPolicy_CounterKey(t *testing.T) {
	p := QuotaPolicy{Identifier: "id1", TimeUnit: "minute", Interval: 1}
	assert.Equal(t, "id1:minute:1", p.CounterKey())
}

func TestBackendError_ClassifiesDeadline(t *testing.T) {
	err := BackendError(fmt.Errorf("dial: %w", context.DeadlineExceeded), "map.get")
	assert.True(t, IsTimeout(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	cause := fmt.Errorf("connection refused")
	err = BackendError(cause, "map.put")
	assert.Equal(t, CodeBackend, CodeOf(err))
	assert.ErrorIs(t, err, cause)

	assert.NoError(t, BackendError(nil, "noop"))
}

func TestBackendError_KeepsExistingKind(t *testing.T) {
	unavailable := BackendUnavailable("quota")
	assert.Same(t, unavailable, BackendError(unavailable, "quota.apply"))
}

func TestReadOnlyVariable_Code(t *testing.T) {
	err := ReadOnlyVariable("client.received.start.time")
	assert.True(t, IsReadOnlyVariable(err))
	assert.Contains(t, err.Error(), "client.received.start.time")
}
