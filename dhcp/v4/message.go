// Package v4 implements the DHCPv4 (RFC 2131) wire codec and the
// link-layer/UDP transports used by the client state machine.
package v4

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
)

const (
	ServerPort = 67
	ClientPort = 68
)

const (
	OpcodeBootRequest = 1
	OpcodeBootReply   = 2
)

const (
	HTypeEthernet = 1
	ethAddrLen    = 6
)

// MagicCookie separates the BOOTP header from the DHCP options (RFC 2131 §3).
const MagicCookie uint32 = 0x63825363

const (
	headerLen = 236
	// minimum decodable packet: fixed header plus magic cookie
	minPacketLen = headerLen + 4
	// BOOTP requires packets padded to at least 300 bytes
	minEncodedLen = 300
)

// FlagBroadcast asks the server to broadcast its reply (RFC 2131 §4.1).
const FlagBroadcast uint16 = 0x8000

var ErrMalformedPacket = errors.New("dhcpv4: malformed packet")

type MessageType byte

const (
	MessageTypeDiscover MessageType = 1
	MessageTypeOffer    MessageType = 2
	MessageTypeRequest  MessageType = 3
	MessageTypeDecline  MessageType = 4
	MessageTypeAck      MessageType = 5
	MessageTypeNak      MessageType = 6
	MessageTypeRelease  MessageType = 7
	MessageTypeInform   MessageType = 8
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeDiscover:
		return "DISCOVER"
	case MessageTypeOffer:
		return "OFFER"
	case MessageTypeRequest:
		return "REQUEST"
	case MessageTypeDecline:
		return "DECLINE"
	case MessageTypeAck:
		return "ACK"
	case MessageTypeNak:
		return "NAK"
	case MessageTypeRelease:
		return "RELEASE"
	case MessageTypeInform:
		return "INFORM"
	}
	return fmt.Sprintf("UNKNOWN(%d)", byte(t))
}

// Option is a single (tag, value) pair. Unknown tags are carried opaque.
type Option struct {
	Code byte
	Data []byte
}

// Message is one DHCPv4 packet: the fixed BOOTP-style header plus the
// option list in the order it appears on the wire.
type Message struct {
	Op     byte
	HType  byte
	HLen   byte
	Hops   byte
	XID    uint32
	Secs   uint16
	Flags  uint16
	CIAddr net.IP
	YIAddr net.IP
	SIAddr net.IP
	GIAddr net.IP
	CHAddr net.HardwareAddr
	SName  string
	File   string

	Options []Option
}

// NewRequest returns a client-to-server message skeleton for the given
// hardware address and transaction id.
func NewRequest(chaddr net.HardwareAddr, xid uint32) *Message {
	return &Message{
		Op:     OpcodeBootRequest,
		HType:  HTypeEthernet,
		HLen:   byte(len(chaddr)),
		XID:    xid,
		CHAddr: chaddr,
	}
}

// AddOption appends an option, preserving insertion order.
func (m *Message) AddOption(code byte, data []byte) {
	m.Options = append(m.Options, Option{Code: code, Data: data})
}

// Option returns the value of the first occurrence of code.
func (m *Message) Option(code byte) ([]byte, bool) {
	for _, o := range m.Options {
		if o.Code == code {
			return o.Data, true
		}
	}
	return nil, false
}

// Type returns the DHCP message type option, or 0 if absent or invalid.
func (m *Message) Type() MessageType {
	d, ok := m.Option(OptionDHCPMessageType)
	if !ok || len(d) != 1 {
		return 0
	}
	return MessageType(d[0])
}

// Broadcast reports whether the broadcast flag is set.
func (m *Message) Broadcast() bool {
	return m.Flags&FlagBroadcast != 0
}

func (m *Message) SetBroadcast() {
	m.Flags |= FlagBroadcast
}

func putIP4(dst []byte, ip net.IP) {
	if ip4 := ip.To4(); ip4 != nil {
		copy(dst, ip4)
	}
}

// maxOptionLen is the largest value a single option's one-byte length
// field can carry; longer values are split per RFC 3396.
const maxOptionLen = 255

// Marshal encodes the message into wire bytes. Options are written in the
// order they were added, terminated by the End tag, and the packet is padded
// to the BOOTP minimum length. An option longer than 255 bytes is emitted
// as consecutive instances of the same code (RFC 3396).
func (m *Message) Marshal() []byte {
	b := make([]byte, headerLen+4, minEncodedLen)

	b[0] = m.Op
	b[1] = m.HType
	b[2] = m.HLen
	b[3] = m.Hops
	binary.BigEndian.PutUint32(b[4:8], m.XID)
	binary.BigEndian.PutUint16(b[8:10], m.Secs)
	binary.BigEndian.PutUint16(b[10:12], m.Flags)
	putIP4(b[12:16], m.CIAddr)
	putIP4(b[16:20], m.YIAddr)
	putIP4(b[20:24], m.SIAddr)
	putIP4(b[24:28], m.GIAddr)
	copy(b[28:44], m.CHAddr)
	copy(b[44:108], m.SName)
	copy(b[108:236], m.File)
	binary.BigEndian.PutUint32(b[236:240], MagicCookie)

	for _, o := range m.Options {
		data := o.Data
		for {
			n := len(data)
			if n > maxOptionLen {
				n = maxOptionLen
			}
			b = append(b, o.Code, byte(n))
			b = append(b, data[:n]...)
			data = data[n:]
			if len(data) == 0 {
				break
			}
		}
	}
	b = append(b, OptionEnd)

	for len(b) < minEncodedLen {
		b = append(b, OptionPad)
	}
	return b
}

func cutString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// Unmarshal decodes wire bytes into a Message. When the same option code
// appears more than once only the first occurrence is kept. Unknown option
// codes are preserved as opaque bytes.
func Unmarshal(b []byte) (*Message, error) {
	if len(b) < minPacketLen {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformedPacket, len(b), minPacketLen)
	}
	if cookie := binary.BigEndian.Uint32(b[236:240]); cookie != MagicCookie {
		return nil, fmt.Errorf("%w: bad magic cookie 0x%08x", ErrMalformedPacket, cookie)
	}

	m := &Message{
		Op:    b[0],
		HType: b[1],
		HLen:  b[2],
		Hops:  b[3],
		XID:   binary.BigEndian.Uint32(b[4:8]),
		Secs:  binary.BigEndian.Uint16(b[8:10]),
		Flags: binary.BigEndian.Uint16(b[10:12]),
		SName: cutString(b[44:108]),
		File:  cutString(b[108:236]),
	}
	m.CIAddr = net.IP(append([]byte(nil), b[12:16]...))
	m.YIAddr = net.IP(append([]byte(nil), b[16:20]...))
	m.SIAddr = net.IP(append([]byte(nil), b[20:24]...))
	m.GIAddr = net.IP(append([]byte(nil), b[24:28]...))

	hlen := int(m.HLen)
	if hlen > 16 {
		hlen = 16
	}
	m.CHAddr = net.HardwareAddr(append([]byte(nil), b[28:28+hlen]...))

	seen := make(map[byte]bool)
	opts := b[240:]
	for i := 0; i < len(opts); {
		code := opts[i]
		if code == OptionPad {
			i++
			continue
		}
		if code == OptionEnd {
			break
		}
		if i+1 >= len(opts) {
			return nil, fmt.Errorf("%w: option %d truncated", ErrMalformedPacket, code)
		}
		length := int(opts[i+1])
		if i+2+length > len(opts) {
			return nil, fmt.Errorf("%w: option %d length %d exceeds buffer", ErrMalformedPacket, code, length)
		}
		if !seen[code] {
			seen[code] = true
			data := append([]byte(nil), opts[i+2:i+2+length]...)
			m.Options = append(m.Options, Option{Code: code, Data: data})
		}
		i += 2 + length
	}
	return m, nil
}
