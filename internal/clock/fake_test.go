package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func TestFake_AdvanceFiresInDeadlineOrder(t *testing.T) {
	c := Fake(epoch)
	var order []string

	c.AfterFunc(2*time.Minute, func() { order = append(order, "second") })
	c.AfterFunc(time.Minute, func() { order = append(order, "first") })
	require.Equal(t, 2, c.PendingCount())

	c.Advance(90 * time.Second)
	assert.Equal(t, []string{"first"}, order)
	assert.Equal(t, epoch.Add(90*time.Second), c.Now())

	c.Advance(time.Minute)
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Zero(t, c.PendingCount())
}

func TestFake_StopPreventsFiring(t *testing.T) {
	c := Fake(epoch)
	fired := false
	tm := c.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, tm.Stop())
	assert.False(t, tm.Stop())

	c.Advance(time.Hour)
	assert.False(t, fired)
}

func TestFake_StopAfterFire(t *testing.T) {
	c := Fake(epoch)
	tm := c.AfterFunc(time.Second, func() {})
	c.Advance(time.Second)
	assert.False(t, tm.Stop())
}

func TestFake_CallbackSchedulesWithinWindow(t *testing.T) {
	c := Fake(epoch)
	count := 0
	c.AfterFunc(time.Second, func() {
		count++
		c.AfterFunc(0, func() { count++ })
	})

	c.Advance(time.Second)
	assert.Equal(t, 2, count)
}

func TestFake_Set(t *testing.T) {
	c := Fake(epoch)
	later := epoch.Add(24 * time.Hour)
	c.Set(later)
	assert.Equal(t, later, c.Now())
}

func TestReal_AfterFuncStops(t *testing.T) {
	tm := Real().AfterFunc(time.Hour, func() { t.Error("should not fire") })
	assert.True(t, tm.Stop())
	assert.WithinDuration(t, time.Now(), Real().Now(), time.Second)
}
