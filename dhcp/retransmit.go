package dhcp

import "time"

// TimerSpec holds the retransmission parameters of one message exchange,
// in RFC 8415 §15 terms: initial and maximum retransmission time, maximum
// retransmission count and duration. A zero MRT means no interval cap, a
// zero MRC/MRD means that limit does not apply.
type TimerSpec struct {
	IRT time.Duration
	MRT time.Duration
	MRC int
	MRD time.Duration
}

// Transmission parameters per exchange, from RFC 8415 §7.6 and the
// RFC 2131 §4.1 backoff recommendations. Renew and Rebind get their MRD
// bound to the remaining T2/expiry window at arm time.
var (
	discoverSpec = TimerSpec{IRT: 4 * time.Second, MRT: 64 * time.Second}
	requestSpec4 = TimerSpec{IRT: 4 * time.Second, MRT: 64 * time.Second, MRC: 4}
	solicitSpec  = TimerSpec{IRT: 1 * time.Second, MRT: 3600 * time.Second}
	requestSpec6 = TimerSpec{IRT: 1 * time.Second, MRT: 30 * time.Second, MRC: 10}
	renewSpec    = TimerSpec{IRT: 10 * time.Second, MRT: 600 * time.Second}
	rebindSpec   = TimerSpec{IRT: 10 * time.Second, MRT: 600 * time.Second}
)

// jitterFactor is RAND from RFC 8415 §15: each interval is multiplied by
// a value uniform in [1-jitterFactor, 1+jitterFactor].
const jitterFactor = 0.1

// retransmit tracks one exchange's retransmission schedule. It is pure
// bookkeeping: the caller supplies every timestamp, so tests can drive it
// with a synthetic clock.
type retransmit struct {
	spec TimerSpec
	rand func() float64

	count     int           // transmissions so far, including the first
	rt        time.Duration // current base interval, un-jittered
	firstSent time.Time
	deadline  time.Time
}

// newRetransmit records the first transmission at now and arms the first
// retransmission deadline at IRT with jitter applied.
func newRetransmit(spec TimerSpec, now time.Time, rand func() float64) *retransmit {
	r := &retransmit{
		spec:      spec,
		rand:      rand,
		count:     1,
		rt:        spec.IRT,
		firstSent: now,
	}
	r.deadline = now.Add(r.jittered(r.rt))
	return r
}

func (r *retransmit) jittered(d time.Duration) time.Duration {
	f := 1 + jitterFactor*(2*r.rand()-1)
	return time.Duration(float64(d) * f)
}

// exhausted reports whether the schedule allows no further transmission.
func (r *retransmit) exhausted(now time.Time) bool {
	if r.spec.MRC > 0 && r.count >= r.spec.MRC {
		return true
	}
	if r.spec.MRD > 0 && now.Sub(r.firstSent) >= r.spec.MRD {
		return true
	}
	return false
}

// next advances the schedule after the current deadline fired: the base
// interval doubles, capped at MRT, and a fresh jittered deadline is armed.
// It reports false when the schedule is exhausted instead.
func (r *retransmit) next(now time.Time) bool {
	if r.exhausted(now) {
		return false
	}
	rt := 2 * r.rt
	if r.spec.MRT > 0 && rt > r.spec.MRT {
		rt = r.spec.MRT
	}
	r.rt = rt
	r.count++
	r.deadline = now.Add(r.jittered(rt))
	return true
}

// elapsed returns the time since the first transmission of the exchange.
func (r *retransmit) elapsed(now time.Time) time.Duration {
	return now.Sub(r.firstSent)
}
