package v4

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// UDPConn is the bound-mode transport: once the client holds a lease and
// the address is configured on the interface, an ordinary UDP socket on
// port 68 replaces the raw channel. The destination is fixed at open time:
// the known server for unicast renewals, the limited broadcast address
// while rebinding.
type UDPConn struct {
	conn *net.UDPConn
	dst  *net.UDPAddr
}

// OpenUDP binds laddr:68 and directs sends at dst:67. A nil or unspecified
// dst selects the limited broadcast address.
func OpenUDP(laddr, dst net.IP) (*UDPConn, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: laddr, Port: ClientPort})
	if err != nil {
		return nil, fmt.Errorf("udp listen on %s: %w", laddr, err)
	}

	if dst == nil || dst.Equal(net.IPv4zero) {
		dst = net.IPv4bcast
	}
	if dst.Equal(net.IPv4bcast) {
		if err := setBroadcast(conn); err != nil {
			conn.Close()
			return nil, err
		}
	}

	return &UDPConn{
		conn: conn,
		dst:  &net.UDPAddr{IP: dst, Port: ServerPort},
	}, nil
}

func setBroadcast(conn *net.UDPConn) error {
	sc, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	err = sc.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return serr
}

func (c *UDPConn) Send(payload []byte) error {
	_, err := c.conn.WriteToUDP(payload, c.dst)
	return err
}

// Recv waits up to timeout for a datagram on the client port. A nil
// payload with nil error means the timeout expired. The hardware address
// is not observable on a UDP socket and is returned nil.
func (c *UDPConn) Recv(timeout time.Duration) ([]byte, net.IP, net.HardwareAddr, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, nil, nil, err
	}

	p := make([]byte, readBufferSize)
	n, src, err := c.conn.ReadFromUDP(p)
	if err != nil {
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			return nil, nil, nil, nil
		}
		return nil, nil, nil, err
	}
	return p[:n], src.IP, nil, nil
}

func (c *UDPConn) Close() error {
	return c.conn.Close()
}
