package dhcp

import (
	"time"

	v4 "github.com/wirelab/dhclient/dhcp/v4"
	v6 "github.com/wirelab/dhclient/dhcp/v6"
)

// clampLeaseTimers enforces 0 < T1 <= T2 <= leaseTime, substituting the
// RFC defaults (T1 = 0.5, T2 = 0.875 of the lease time) for absent or
// inconsistent server values.
func clampLeaseTimers(leaseTime, t1, t2 uint32) (uint32, uint32) {
	if t1 == 0 || t1 > leaseTime {
		t1 = leaseTime / 2
	}
	if t2 == 0 || t2 > leaseTime || t2 < t1 {
		t2 = leaseTime - leaseTime/8
	}
	if t1 > t2 {
		t1 = t2
	}
	// halving a one- or two-second lease rounds T1 down to zero, which
	// would fire the renew timer at bind time
	if t1 == 0 && leaseTime > 0 {
		t1 = 1
	}
	if t2 < t1 {
		t2 = t1
	}
	return t1, t2
}

func deadlineAt(bind time.Time, secs uint32) time.Time {
	return bind.Add(time.Duration(secs) * time.Second)
}

// leaseStore4 holds the committed DHCPv4 lease and its derived absolute
// deadlines. The state machine is the sole writer.
type leaseStore4 struct {
	lease  *v4.Lease
	t1     time.Time
	t2     time.Time
	expiry time.Time
}

// commit replaces the stored lease, clamping its T1/T2 per the invariant
// and recomputing the absolute deadlines from the bind timestamp.
func (s *leaseStore4) commit(l *v4.Lease, bind time.Time) {
	l.T1, l.T2 = clampLeaseTimers(l.LeaseTime, l.T1, l.T2)
	s.lease = l
	s.t1 = deadlineAt(bind, l.T1)
	s.t2 = deadlineAt(bind, l.T2)
	s.expiry = deadlineAt(bind, l.LeaseTime)
}

func (s *leaseStore4) clear() {
	*s = leaseStore4{}
}

func (s *leaseStore4) current() *v4.Lease { return s.lease }

// leaseStore6 is the DHCPv6 counterpart; the valid lifetime plays the
// lease-time role in the timer invariant.
type leaseStore6 struct {
	lease  *v6.Lease
	t1     time.Time
	t2     time.Time
	expiry time.Time
}

func (s *leaseStore6) commit(l *v6.Lease, bind time.Time) {
	l.T1, l.T2 = clampLeaseTimers(l.Valid, l.T1, l.T2)
	s.lease = l
	s.t1 = deadlineAt(bind, l.T1)
	s.t2 = deadlineAt(bind, l.T2)
	s.expiry = deadlineAt(bind, l.Valid)
}

func (s *leaseStore6) clear() {
	*s = leaseStore6{}
}

func (s *leaseStore6) current() *v6.Lease { return s.lease }
