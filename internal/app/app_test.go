package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationOrDefault_ZeroUsesDefault(t *testing.T) {
	assert.Equal(t, 5*time.Second, durationOrDefault(0, 5*time.Second))
}

func TestDurationOrDefault_PositiveConvertsSeconds(t *testing.T) {
	assert.Equal(t, 2500*time.Millisecond, durationOrDefault(2.5, time.Second))
}

func TestGearFactorOrOne(t *testing.T) {
	assert.Equal(t, 1.0, gearFactorOrOne(0))
	assert.Equal(t, 2.5, gearFactorOrOne(2.5))
}

func TestClampSpeed(t *testing.T) {
	assert.Equal(t, float32(5), clampSpeed(10, 0, 5))
	assert.Equal(t, float32(2), clampSpeed(1, 2, 0))
	assert.Equal(t, float32(3), clampSpeed(3, 0, 0))
}

func TestClampNonNegative(t *testing.T) {
	assert.EqualValues(t, 0, clampNonNegative(-5))
	assert.EqualValues(t, 42, clampNonNegative(42))
}

func TestSplitAdapterList(t *testing.T) {
	got := splitAdapterList(" hci0, hci1 ,")
	require.Equal(t, []string{"hci0", "hci1"}, got)
	assert.Nil(t, splitAdapterList(""))
}

func TestResetTimer_FiredTimerCanBeReset(t *testing.T) {
	timer := time.NewTimer(1 * time.Millisecond)
	<-timer.C
	resetTimer(timer, 10*time.Millisecond)
	select {
	case <-timer.C:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("reset timer never fired")
	}
}
