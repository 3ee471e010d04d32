package dhcp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// midJitter pins RAND to its midpoint so intervals equal their base
// value exactly.
func midJitter() float64 { return 0.5 }

func TestRetransmitDoublesUpToMRT(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	spec := TimerSpec{IRT: 4 * time.Second, MRT: 16 * time.Second}

	r := newRetransmit(spec, start, midJitter)
	assert.Equal(t, 1, r.count)
	assert.Equal(t, start.Add(4*time.Second), r.deadline)

	now := r.deadline
	require.True(t, r.next(now))
	assert.Equal(t, now.Add(8*time.Second), r.deadline)

	now = r.deadline
	require.True(t, r.next(now))
	assert.Equal(t, now.Add(16*time.Second), r.deadline)

	// capped at MRT from here on
	now = r.deadline
	require.True(t, r.next(now))
	assert.Equal(t, now.Add(16*time.Second), r.deadline)
}

func TestRetransmitJitterBounds(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	spec := TimerSpec{IRT: 10 * time.Second}

	low := newRetransmit(spec, start, func() float64 { return 0 })
	high := newRetransmit(spec, start, func() float64 { return 1 })

	assert.Equal(t, start.Add(9*time.Second), low.deadline)
	assert.Equal(t, start.Add(11*time.Second), high.deadline)
}

func TestRetransmitMRCExhaustion(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	spec := TimerSpec{IRT: time.Second, MRT: 30 * time.Second, MRC: 3}

	r := newRetransmit(spec, start, midJitter)
	now := start
	for i := 0; i < 2; i++ {
		now = r.deadline
		require.True(t, r.next(now), "transmission %d", r.count)
	}
	assert.Equal(t, 3, r.count)
	assert.True(t, r.exhausted(now))
	assert.False(t, r.next(r.deadline))
}

func TestRetransmitMRDExhaustion(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	spec := TimerSpec{IRT: time.Second, MRD: 5 * time.Second}

	r := newRetransmit(spec, start, midJitter)
	assert.False(t, r.exhausted(start.Add(4*time.Second)))
	assert.True(t, r.exhausted(start.Add(5*time.Second)))
	assert.False(t, r.next(start.Add(6*time.Second)))
}

func TestRetransmitNoLimitsNeverExhausts(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	r := newRetransmit(discoverSpec, start, midJitter)
	now := start
	for i := 0; i < 50; i++ {
		now = r.deadline
		require.True(t, r.next(now))
	}
	assert.Equal(t, 51, r.count)
}

func TestRetransmitElapsed(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	r := newRetransmit(solicitSpec, start, midJitter)
	assert.Equal(t, 90*time.Second, r.elapsed(start.Add(90*time.Second)))
}
