package dhcp

import (
	"net"
	"time"
)

// PacketConn is the transport a client owns exclusively for its lifetime.
// Implementations hide the delivery mode: the DHCPv4 pre-lease raw channel
// frames and broadcasts manually, the bound-mode UDP socket and the DHCPv6
// multicast socket are ordinary datagram sockets.
//
// Recv returns a nil payload with a nil error when the timeout expires.
// The source IP and hardware address are informational; transports that
// cannot observe the hardware address return nil for it.
type PacketConn interface {
	Send(payload []byte) error
	Recv(timeout time.Duration) ([]byte, net.IP, net.HardwareAddr, error)
	Close() error
}

// unicastSwitcher is implemented by transports that can redirect sends at
// a single known server (the DHCPv6 socket).
type unicastSwitcher interface {
	SetUnicast(server net.IP)
	SetMulticast()
}
