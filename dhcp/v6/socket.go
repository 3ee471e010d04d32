package v6

import (
	"fmt"
	"net"
	"time"
)

const readBufferSize = 1500

// Conn is the DHCPv6 client transport: a UDP socket bound to the
// interface's link-local address on port 546. DHCPv6 never needs raw
// link-layer access, the link-local address exists before any lease does.
// Messages go to the All_DHCP_Relay_Agents_and_Servers multicast group
// unless a unicast server destination has been set.
type Conn struct {
	conn  *net.UDPConn
	iface *net.Interface
	dst   *net.UDPAddr
}

func Listen(iface *net.Interface) (*Conn, error) {
	laddr, err := linkLocalAddr(iface)
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenUDP("udp6", &net.UDPAddr{IP: laddr, Port: ClientPort, Zone: iface.Name})
	if err != nil {
		return nil, fmt.Errorf("udp6 listen on %s: %w", iface.Name, err)
	}

	return &Conn{
		conn:  conn,
		iface: iface,
		dst:   multicastDst(iface),
	}, nil
}

func multicastDst(iface *net.Interface) *net.UDPAddr {
	return &net.UDPAddr{
		IP:   net.ParseIP(AllDHCPRelayAgentsAndServers),
		Port: ServerPort,
		Zone: iface.Name,
	}
}

func linkLocalAddr(iface *net.Interface) (net.IP, error) {
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, err
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		if ipNet.IP.To4() == nil && ipNet.IP.IsLinkLocalUnicast() {
			return ipNet.IP, nil
		}
	}
	return nil, fmt.Errorf("interface %s has no IPv6 link-local address", iface.Name)
}

// SetUnicast directs subsequent sends at the given server address instead
// of the multicast group. Only valid when the server advertised the
// Server Unicast option.
func (c *Conn) SetUnicast(server net.IP) {
	c.dst = &net.UDPAddr{IP: server, Port: ServerPort}
}

// SetMulticast restores the default multicast destination.
func (c *Conn) SetMulticast() {
	c.dst = multicastDst(c.iface)
}

func (c *Conn) Send(payload []byte) error {
	_, err := c.conn.WriteToUDP(payload, c.dst)
	return err
}

// Recv waits up to timeout for a datagram on the client port. A nil
// payload with nil error means the timeout expired. DHCPv6 runs over UDP
// only, so no hardware address is observable; it is returned nil.
func (c *Conn) Recv(timeout time.Duration) ([]byte, net.IP, net.HardwareAddr, error) {
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

func (c *Conn) Close() error {
	return c.conn.Close()
}
