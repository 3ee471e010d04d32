package v4

import (
	"encoding/binary"
	"net"
)

// Option tags from RFC 2132.
const (
	OptionPad                  = 0
	OptionSubnetMask           = 1
	OptionRouter               = 3
	OptionDomainNameServer     = 6
	OptionHostName             = 12
	OptionDomainName           = 15
	OptionInterfaceMTU         = 26
	OptionBroadcastAddress     = 28
	OptionNTPServers           = 42
	OptionRequestedIPAddress   = 50
	OptionIPAddressLeaseTime   = 51
	OptionDHCPMessageType      = 53
	OptionServerIdentifier     = 54
	OptionParameterRequestList = 55
	OptionMessage              = 56
	OptionMaxMessageSize       = 57
	OptionRenewalTime          = 58
	OptionRebindingTime        = 59
	OptionClientIdentifier     = 61
	OptionEnd                  = 255
)

func uint32Bytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func uint16Bytes(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func ipBytes(ip net.IP) []byte {
	if ip4 := ip.To4(); ip4 != nil {
		return append([]byte(nil), ip4...)
	}
	return make([]byte, 4)
}

func (m *Message) SetMessageType(t MessageType) {
	m.AddOption(OptionDHCPMessageType, []byte{byte(t)})
}

func (m *Message) SetRequestedIP(ip net.IP) {
	m.AddOption(OptionRequestedIPAddress, ipBytes(ip))
}

func (m *Message) SetServerIdentifier(ip net.IP) {
	m.AddOption(OptionServerIdentifier, ipBytes(ip))
}

func (m *Message) SetClientIdentifier(id []byte) {
	m.AddOption(OptionClientIdentifier, append([]byte(nil), id...))
}

func (m *Message) SetHostName(name string) {
	m.AddOption(OptionHostName, []byte(name))
}

func (m *Message) SetMaxMessageSize(size uint16) {
	m.AddOption(OptionMaxMessageSize, uint16Bytes(size))
}

func (m *Message) SetParameterRequestList(codes ...byte) {
	m.AddOption(OptionParameterRequestList, append([]byte(nil), codes...))
}

func (m *Message) optionUint32(code byte) (uint32, bool) {
	d, ok := m.Option(code)
	if !ok || len(d) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(d), true
}

func (m *Message) optionIP(code byte) net.IP {
	d, ok := m.Option(code)
	if !ok || len(d) != 4 {
		return nil
	}
	return net.IP(append([]byte(nil), d...))
}

func (m *Message) optionIPs(code byte) []net.IP {
	d, ok := m.Option(code)
	if !ok || len(d) < 4 || len(d)%4 != 0 {
		return nil
	}
	ips := make([]net.IP, 0, len(d)/4)
	for i := 0; i+4 <= len(d); i += 4 {
		ips = append(ips, net.IP(append([]byte(nil), d[i:i+4]...)))
	}
	return ips
}

// LeaseTime returns the address lease time option in seconds.
func (m *Message) LeaseTime() (uint32, bool) { return m.optionUint32(OptionIPAddressLeaseTime) }

// RenewalTime returns the T1 option in seconds.
func (m *Message) RenewalTime() (uint32, bool) { return m.optionUint32(OptionRenewalTime) }

// RebindingTime returns the T2 option in seconds.
func (m *Message) RebindingTime() (uint32, bool) { return m.optionUint32(OptionRebindingTime) }

// ServerIdentifier returns the server identifier option, or nil.
func (m *Message) ServerIdentifier() net.IP { return m.optionIP(OptionServerIdentifier) }

func (m *Message) SubnetMask() net.IPMask {
	d, ok := m.Option(OptionSubnetMask)
	if !ok || len(d) != 4 {
		return nil
	}
	return net.IPMask(append([]byte(nil), d...))
}

func (m *Message) Routers() []net.IP { return m.optionIPs(OptionRouter) }

func (m *Message) DNSServers() []net.IP { return m.optionIPs(OptionDomainNameServer) }

func (m *Message) NTPServers() []net.IP { return m.optionIPs(OptionNTPServers) }

func (m *Message) BroadcastAddress() net.IP { return m.optionIP(OptionBroadcastAddress) }

func (m *Message) InterfaceMTU() (uint16, bool) {
	d, ok := m.Option(OptionInterfaceMTU)
	if !ok || len(d) != 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(d), true
}

func (m *Message) DomainName() string {
	d, ok := m.Option(OptionDomainName)
	if !ok {
		return ""
	}
	return cutString(d)
}

func (m *Message) HostName() string {
	d, ok := m.Option(OptionHostName)
	if !ok {
		return ""
	}
	return cutString(d)
}
