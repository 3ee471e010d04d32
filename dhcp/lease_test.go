package dhcp

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	v4 "github.com/wirelab/dhclient/dhcp/v4"
	v6 "github.com/wirelab/dhclient/dhcp/v6"
)

func TestClampLeaseTimers(t *testing.T) {
	cases := []struct {
		name           string
		lease, t1, t2  uint32
		wantT1, wantT2 uint32
	}{
		{"defaults when absent", 120, 0, 0, 60, 105},
		{"server values kept", 120, 40, 100, 40, 100},
		{"t1 above lease replaced", 120, 200, 0, 60, 105},
		{"t2 above lease replaced", 120, 40, 200, 40, 105},
		{"t2 below t1 replaced", 120, 80, 50, 80, 105},
		{"t1 clamped down to t2", 120, 110, 0, 105, 105},
		{"one second lease", 1, 0, 0, 1, 1},
		{"two second lease", 2, 0, 0, 1, 2},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t1, t2 := clampLeaseTimers(c.lease, c.t1, c.t2)
			assert.Equal(t, c.wantT1, t1)
			assert.Equal(t, c.wantT2, t2)
			assert.LessOrEqual(t, t1, t2)
			assert.LessOrEqual(t, t2, c.lease)
		})
	}
}

func TestLeaseStore4Commit(t *testing.T) {
	bind := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var s leaseStore4

	s.commit(&v4.Lease{Addr: net.IPv4(192, 0, 2, 50), LeaseTime: 120}, bind)

	assert.Equal(t, bind.Add(60*time.Second), s.t1)
	assert.Equal(t, bind.Add(105*time.Second), s.t2)
	assert.Equal(t, bind.Add(120*time.Second), s.expiry)
	assert.Equal(t, uint32(60), s.current().T1)
	assert.Equal(t, uint32(105), s.current().T2)

	s.clear()
	assert.Nil(t, s.current())
	assert.True(t, s.t1.IsZero())
}

func TestLeaseStore6CommitUsesValidLifetime(t *testing.T) {
	bind := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var s leaseStore6

	s.commit(&v6.Lease{
		Addr:  net.ParseIP("2001:db8::1"),
		T1:    50,
		T2:    80,
		Valid: 100,
	}, bind)

	assert.Equal(t, bind.Add(50*time.Second), s.t1)
	assert.Equal(t, bind.Add(80*time.Second), s.t2)
	assert.Equal(t, bind.Add(100*time.Second), s.expiry)
}
