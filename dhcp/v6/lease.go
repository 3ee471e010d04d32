package v6

import (
	"fmt"
	"net"
)

// Lease is the negotiated DHCPv6 binding extracted from an Advertise or
// Reply. Times are in seconds as carried in the IA; zero T1/T2 means the
// server left the choice to the client.
type Lease struct {
	Addr      net.IP
	PrefixLen uint8

	IAID      uint32
	T1        uint32
	T2        uint32
	Preferred uint32
	Valid     uint32

	ClientDUID DUID
	ServerDUID DUID
	// ServerUnicast is set when the server allows unicast exchanges
	// (RFC 8415 §21.12), nil otherwise.
	ServerUnicast net.IP

	DNSServers []net.IP

	// Options carries the full top-level option bag for collaborators
	// that apply the lease to the OS.
	Options []Option
}

// LeaseFromMessage extracts a lease from a validated Advertise or Reply.
// A non-success status code, at message or IA level, is returned as an
// error: the v6 analogue of a v4 Nak.
func LeaseFromMessage(m *Message) (*Lease, error) {
	if err := m.Status().Err(); err != nil {
		return nil, err
	}

	ia, err := m.IANA()
	if err != nil {
		return nil, err
	}
	if err := ia.Status().Err(); err != nil {
		return nil, err
	}
	addr := ia.Addr()
	if addr == nil {
		return nil, fmt.Errorf("IA_NA carries no address")
	}

	l := &Lease{
		Addr:       addr.IP,
		PrefixLen:  128,
		IAID:       ia.IAID,
		T1:         ia.T1,
		T2:         ia.T2,
		Preferred:  addr.Preferred,
		Valid:      addr.Valid,
		DNSServers: m.DNSServers(),
		Options:    m.Options,
	}
	l.ClientDUID, _ = m.ClientID()
	l.ServerDUID, _ = m.ServerID()
	l.ServerUnicast = m.ServerUnicast()
	return l, nil
}
