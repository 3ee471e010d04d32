package v4

import (
	"fmt"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/mdlayher/raw"
	"golang.org/x/net/bpf"
)

const (
	defaultTTL = 128
	// enough for a full ethernet frame carrying a DHCP reply
	readBufferSize = 1500
)

// dhcpFilter selects IPv4/UDP frames destined to the DHCP client port,
// regardless of destination MAC. Equivalent to
// `tcpdump -dd 'ip and udp dst port 68'`.
func dhcpFilter() ([]bpf.RawInstruction, error) {
	return bpf.Assemble([]bpf.Instruction{
		bpf.LoadAbsolute{Off: 12, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 0x0800, SkipFalse: 8},
		bpf.LoadAbsolute{Off: 23, Size: 1},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 0x11, SkipFalse: 6},
		bpf.LoadAbsolute{Off: 20, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpBitsSet, Val: 0x1fff, SkipTrue: 4},
		bpf.LoadMemShift{Off: 14},
		bpf.LoadIndirect{Off: 16, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: ClientPort, SkipFalse: 1},
		bpf.RetConstant{Val: 262144},
		bpf.RetConstant{Val: 0},
	})
}

// RawConn is the pre-lease transport: an AF_PACKET channel on the
// configured interface. The client has no IP address yet, so outgoing
// messages are framed manually (Ethernet/IPv4/UDP) and broadcast, and the
// capture filter accepts replies regardless of destination MAC.
type RawConn struct {
	conn  *raw.Conn
	iface *net.Interface
}

func ListenRaw(iface *net.Interface) (*RawConn, error) {
	conn, err := raw.ListenPacket(iface, uint16(layers.EthernetTypeIPv4), &raw.Config{})
	if err != nil {
		return nil, fmt.Errorf("raw listen on %s: %w", iface.Name, err)
	}

	filter, err := dhcpFilter()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.SetBPF(filter); err != nil {
		conn.Close()
		return nil, fmt.Errorf("attach capture filter: %w", err)
	}

	return &RawConn{conn: conn, iface: iface}, nil
}

// Send broadcasts a DHCP payload from 0.0.0.0:68 to 255.255.255.255:67.
func (c *RawConn) Send(payload []byte) error {
	udp := layers.UDP{
		SrcPort: ClientPort,
		DstPort: ServerPort,
	}

	ip4 := layers.IPv4{
		Version:  4,
		TTL:      defaultTTL,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4zero,
		DstIP:    net.IPv4bcast,
	}

	eth := layers.Ethernet{
		SrcMAC:       c.iface.HardwareAddr,
		DstMAC:       net.HardwareAddr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
		EthernetType: layers.EthernetTypeIPv4,
	}

	if err := udp.SetNetworkLayerForChecksum(&ip4); err != nil {
		return err
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		ComputeChecksums: true,
		FixLengths:       true,
	}
	if err := gopacket.SerializeLayers(buf, opts, &eth, &ip4, &udp, gopacket.Payload(payload)); err != nil {
		return err
	}

	_, err := c.conn.WriteTo(buf.Bytes(), &raw.Addr{HardwareAddr: eth.DstMAC})
	return err
}

// Recv waits up to timeout for a DHCP reply and returns its UDP payload
// together with the source IP and MAC of the carrying frame. A nil payload
// with nil error means the timeout expired.
func (c *RawConn) Recv(timeout time.Duration) ([]byte, net.IP, net.HardwareAddr, error) {
	deadline := time.Now().Add(timeout)
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, nil, nil, err
	}

	p := make([]byte, readBufferSize)
	for {
		n, _, err := c.conn.ReadFrom(p)
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				return nil, nil, nil, nil
			}
			return nil, nil, nil, err
		}

		pack := gopacket.NewPacket(p[:n], layers.LayerTypeEthernet, gopacket.Default)

		ethLayer, ok := pack.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
		if !ok || ethLayer.EthernetType != layers.EthernetTypeIPv4 {
			continue
		}
		ip4Layer, ok := pack.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
		if !ok || ip4Layer.Protocol != layers.IPProtocolUDP {
			continue
		}
		udpLayer, ok := pack.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || udpLayer.DstPort != ClientPort {
			continue
		}

		return udpLayer.Payload, ip4Layer.SrcIP, ethLayer.SrcMAC, nil
	}
}

func (c *RawConn) Close() error {
	return c.conn.Close()
}
