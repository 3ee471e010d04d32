package v4

import (
	"fmt"
	"net"
)

// Lease is the negotiated DHCPv4 binding extracted from an Offer or Ack.
// Times are in seconds as carried on the wire; zero means the server did
// not supply the option.
type Lease struct {
	Addr       net.IP
	SubnetMask net.IPMask
	Routers    []net.IP
	DNSServers []net.IP
	NTPServers []net.IP
	Broadcast  net.IP

	ServerID net.IP
	SIAddr   net.IP
	// ServerMAC is the source hardware address of the frame that carried
	// the Offer/Ack, when the transport could observe it. Informational;
	// renewals are addressed by IP.
	ServerMAC net.HardwareAddr

	LeaseTime uint32
	T1        uint32
	T2        uint32

	MTU        uint16
	HostName   string
	DomainName string

	// Options carries the full option bag for collaborators that apply
	// the lease to the OS.
	Options []Option
}

// LeaseFromMessage extracts a lease from a server reply. The caller has
// already validated the message type and transaction id.
func LeaseFromMessage(m *Message) (*Lease, error) {
	if m.YIAddr == nil || m.YIAddr.Equal(net.IPv4zero) {
		return nil, fmt.Errorf("reply carries no yiaddr")
	}
	l := &Lease{
		Addr:       m.YIAddr,
		SubnetMask: m.SubnetMask(),
		Routers:    m.Routers(),
		DNSServers: m.DNSServers(),
		NTPServers: m.NTPServers(),
		Broadcast:  m.BroadcastAddress(),
		ServerID:   m.ServerIdentifier(),
		SIAddr:     m.SIAddr,
		HostName:   m.HostName(),
		DomainName: m.DomainName(),
		Options:    m.Options,
	}
	l.LeaseTime, _ = m.LeaseTime()
	l.T1, _ = m.RenewalTime()
	l.T2, _ = m.RebindingTime()
	l.MTU, _ = m.InterfaceMTU()
	return l, nil
}

// Server returns the address to unicast renewals to: the server identifier
// when present, the siaddr field otherwise.
func (l *Lease) Server() net.IP {
	if l.ServerID != nil && !l.ServerID.Equal(net.IPv4zero) {
		return l.ServerID
	}
	return l.SIAddr
}
