package v6

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMAC(t *testing.T, s string) net.HardwareAddr {
	mac, err := net.ParseMAC(s)
	if err != nil {
		t.Fatal(err)
	}
	return mac
}

func TestNewDUIDLL(t *testing.T) {
	mac := mustMAC(t, "e4:b3:18:64:dc:14")

	d := NewDUIDLL(mac)
	require.Len(t, d, 10)
	assert.Equal(t, []byte{0x00, 0x03, 0x00, 0x01}, []byte(d[:4]))
	assert.Equal(t, []byte(mac), []byte(d[4:]))
}

func TestNewDUIDLLT(t *testing.T) {
	mac := mustMAC(t, "e4:b3:18:64:dc:14")
	// one hour past the DUID epoch
	now := time.Date(2000, 1, 1, 1, 0, 0, 0, time.UTC)

	d := NewDUIDLLT(mac, now)
	require.Len(t, d, 14)
	assert.Equal(t, []byte{0x00, 0x01, 0x00, 0x01}, []byte(d[:4]))
	assert.Equal(t, []byte{0x00, 0x00, 0x0e, 0x10}, []byte(d[4:8]))
	assert.Equal(t, []byte(mac), []byte(d[8:]))
}

func TestNewDUIDEN(t *testing.T) {
	d := NewDUIDEN(9, []byte{0xca, 0xfe})
	require.Len(t, d, 8)
	assert.Equal(t, []byte{0x00, 0x02, 0x00, 0x00, 0x00, 0x09, 0xca, 0xfe}, []byte(d))
}

func TestNewDUIDUUID(t *testing.T) {
	d := NewDUIDUUID()
	require.Len(t, d, 18)
	assert.Equal(t, []byte{0x00, 0x04}, []byte(d[:2]))

	// distinct per call
	assert.False(t, d.Equal(NewDUIDUUID()))
}

func TestDUIDEqual(t *testing.T) {
	mac := mustMAC(t, "e4:b3:18:64:dc:14")

	assert.True(t, NewDUIDLL(mac).Equal(NewDUIDLL(mac)))
	assert.False(t, NewDUIDLL(mac).Equal(nil))
}

func TestIAIDForInterfaceStable(t *testing.T) {
	a := mustMAC(t, "e4:b3:18:64:dc:14")
	b := mustMAC(t, "e4:b3:18:64:dc:15")

	assert.Equal(t, IAIDForInterface(a), IAIDForInterface(a))
	assert.NotEqual(t, IAIDForInterface(a), IAIDForInterface(b))
}
