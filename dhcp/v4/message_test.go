package v4

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMAC(t *testing.T) net.HardwareAddr {
	mac, err := net.ParseMAC("e4:b3:18:64:dc:14")
	if err != nil {
		t.Fatal(err)
	}
	return mac
}

func TestMessageRoundTrip(t *testing.T) {
	mac := testMAC(t)

	m := NewRequest(mac, 0xdeadbeef)
	m.Secs = 7
	m.SetBroadcast()
	m.SetMessageType(MessageTypeDiscover)
	m.SetRequestedIP(net.IPv4(192, 0, 2, 99))
	m.SetHostName("host-a")
	m.SetParameterRequestList(OptionSubnetMask, OptionRouter, OptionDomainNameServer)

	b := m.Marshal()
	require.GreaterOrEqual(t, len(b), minEncodedLen)

	got, err := Unmarshal(b)
	require.NoError(t, err)

	assert.Equal(t, byte(OpcodeBootRequest), got.Op)
	assert.Equal(t, uint32(0xdeadbeef), got.XID)
	assert.Equal(t, uint16(7), got.Secs)
	assert.True(t, got.Broadcast())
	assert.Equal(t, mac, got.CHAddr)
	assert.Equal(t, MessageTypeDiscover, got.Type())

	ip, ok := got.Option(OptionRequestedIPAddress)
	require.True(t, ok)
	assert.Equal(t, net.IP{192, 0, 2, 99}, net.IP(ip))

	assert.Equal(t, "host-a", got.HostName())
}

func TestMessageMarshalPadsToMinimum(t *testing.T) {
	m := NewRequest(testMAC(t), 1)
	m.SetMessageType(MessageTypeDiscover)

	b := m.Marshal()
	assert.Len(t, b, minEncodedLen)
	// everything after the End tag is zero padding
	end := headerLen + 4 + 3 + 1
	for _, v := range b[end:] {
		assert.Zero(t, v)
	}
}

func TestUnmarshalRejectsTruncated(t *testing.T) {
	m := NewRequest(testMAC(t), 1)
	m.SetMessageType(MessageTypeOffer)
	b := m.Marshal()

	cases := [][]byte{
		nil,
		b[:20],
		b[:headerLen],   // no cookie
		b[:headerLen+2], // cookie cut short
	}
	for _, c := range cases {
		_, err := Unmarshal(c)
		assert.ErrorIs(t, err, ErrMalformedPacket)
	}
}

func TestUnmarshalRejectsBadCookie(t *testing.T) {
	b := NewRequest(testMAC(t), 1).Marshal()
	b[headerLen] = 0x00

	_, err := Unmarshal(b)
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestUnmarshalRejectsTruncatedOption(t *testing.T) {
	b := NewRequest(testMAC(t), 1).Marshal()[:headerLen+4]
	// length byte claims 4 bytes of data, only 1 present
	b = append(b, OptionDHCPMessageType, 4, 1)

	_, err := Unmarshal(b)
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestUnmarshalKeepsFirstDuplicate(t *testing.T) {
	m := NewRequest(testMAC(t), 1)
	m.AddOption(OptionHostName, []byte("first"))
	m.AddOption(OptionHostName, []byte("second"))

	got, err := Unmarshal(m.Marshal())
	require.NoError(t, err)
	assert.Equal(t, "first", got.HostName())
}

func TestUnmarshalStopsAtEndTag(t *testing.T) {
	b := NewRequest(testMAC(t), 1).Marshal()[:headerLen+4]
	b = append(b, OptionDHCPMessageType, 1, byte(MessageTypeAck))
	b = append(b, OptionEnd)
	// garbage after End must be ignored
	b = append(b, 0xff, 0xff, 0xde, 0xad)

	got, err := Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeAck, got.Type())
	assert.Len(t, got.Options, 1)
}

func TestUnmarshalUnknownOptionKeptOpaque(t *testing.T) {
	m := NewRequest(testMAC(t), 1)
	m.AddOption(224, []byte{0xca, 0xfe}) // site-specific
	m.SetMessageType(MessageTypeAck)

	got, err := Unmarshal(m.Marshal())
	require.NoError(t, err)

	d, ok := got.Option(224)
	require.True(t, ok)
	assert.Equal(t, []byte{0xca, 0xfe}, d)
}

func TestTypedGetters(t *testing.T) {
	m := NewRequest(testMAC(t), 1)
	m.SetMessageType(MessageTypeAck)
	m.AddOption(OptionSubnetMask, []byte{255, 255, 255, 0})
	m.AddOption(OptionRouter, []byte{192, 0, 2, 1, 192, 0, 2, 2})
	m.AddOption(OptionIPAddressLeaseTime, []byte{0, 0, 0, 60})
	m.AddOption(OptionRenewalTime, []byte{0, 0, 0, 30})
	m.AddOption(OptionInterfaceMTU, []byte{0x05, 0xdc})
	m.AddOption(OptionDomainName, []byte("example.org"))

	got, err := Unmarshal(m.Marshal())
	require.NoError(t, err)

	assert.Equal(t, net.IPv4Mask(255, 255, 255, 0), got.SubnetMask())

	assert.Equal(t, []net.IP{{192, 0, 2, 1}, {192, 0, 2, 2}}, got.Routers())

	lt, ok := got.LeaseTime()
	require.True(t, ok)
	assert.Equal(t, uint32(60), lt)

	t1, ok := got.RenewalTime()
	require.True(t, ok)
	assert.Equal(t, uint32(30), t1)

	mtu, ok := got.InterfaceMTU()
	require.True(t, ok)
	assert.Equal(t, uint16(1500), mtu)

	assert.Equal(t, "example.org", got.DomainName())
}

func TestLeaseFromMessage(t *testing.T) {
	m := NewRequest(testMAC(t), 1)
	m.Op = OpcodeBootReply
	m.YIAddr = net.IPv4(192, 0, 2, 50)
	m.SIAddr = net.IPv4(192, 0, 2, 2)
	m.SetMessageType(MessageTypeAck)
	m.SetServerIdentifier(net.IPv4(192, 0, 2, 1))
	m.AddOption(OptionIPAddressLeaseTime, []byte{0, 0, 1, 0})

	got, err := Unmarshal(m.Marshal())
	require.NoError(t, err)

	lease, err := LeaseFromMessage(got)
	require.NoError(t, err)
	assert.Equal(t, net.IP{192, 0, 2, 50}, lease.Addr)
	assert.Equal(t, uint32(256), lease.LeaseTime)
	assert.Equal(t, net.IP{192, 0, 2, 1}, lease.Server())
}

func TestLeaseFromMessageNeedsAddress(t *testing.T) {
	m := NewRequest(testMAC(t), 1)
	m.Op = OpcodeBootReply
	m.SetMessageType(MessageTypeAck)

	got, err := Unmarshal(m.Marshal())
	require.NoError(t, err)

	_, err = LeaseFromMessage(got)
	assert.Error(t, err)
}

func TestLeaseServerFallsBackToSIAddr(t *testing.T) {
	l := &Lease{SIAddr: net.IPv4(192, 0, 2, 2)}
	assert.Equal(t, net.IPv4(192, 0, 2, 2), l.Server())

	l.ServerID = net.IPv4(192, 0, 2, 1)
	assert.Equal(t, net.IPv4(192, 0, 2, 1), l.Server())
}

func TestMarshalSplitsLongOption(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = byte(i)
	}
	m := NewRequest(testMAC(t), 1)
	m.AddOption(224, long)

	b := m.Marshal()
	opts := b[minPacketLen:]

	// first instance carries the 255-byte maximum
	require.Equal(t, byte(224), opts[0])
	require.Equal(t, byte(255), opts[1])
	assert.Equal(t, long[:255], opts[2:257])

	// remainder follows under the same code
	require.Equal(t, byte(224), opts[257])
	require.Equal(t, byte(45), opts[258])
	assert.Equal(t, long[255:], opts[259:304])
	assert.Equal(t, byte(OptionEnd), opts[304])
}
