// Package v6 implements the DHCPv6 (RFC 8415) wire codec, DUID handling
// and the UDP transport used by the client state machine.
package v6

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	ServerPort = 547
	ClientPort = 546
)

// AllDHCPRelayAgentsAndServers is the link-scoped multicast group every
// client-originated message is sent to (RFC 8415 §7.1).
const AllDHCPRelayAgentsAndServers = "ff02::1:2"

// AllDHCPServers is the site-scoped group, used by relays.
const AllDHCPServers = "ff05::1:3"

var ErrMalformedPacket = errors.New("dhcpv6: malformed packet")

type MessageType byte

const (
	MessageTypeSolicit            MessageType = 1
	MessageTypeAdvertise          MessageType = 2
	MessageTypeRequest            MessageType = 3
	MessageTypeConfirm            MessageType = 4
	MessageTypeRenew              MessageType = 5
	MessageTypeRebind             MessageType = 6
	MessageTypeReply              MessageType = 7
	MessageTypeRelease            MessageType = 8
	MessageTypeDecline            MessageType = 9
	MessageTypeReconfigure        MessageType = 10
	MessageTypeInformationRequest MessageType = 11
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeSolicit:
		return "SOLICIT"
	case MessageTypeAdvertise:
		return "ADVERTISE"
	case MessageTypeRequest:
		return "REQUEST"
	case MessageTypeConfirm:
		return "CONFIRM"
	case MessageTypeRenew:
		return "RENEW"
	case MessageTypeRebind:
		return "REBIND"
	case MessageTypeReply:
		return "REPLY"
	case MessageTypeRelease:
		return "RELEASE"
	case MessageTypeDecline:
		return "DECLINE"
	case MessageTypeReconfigure:
		return "RECONFIGURE"
	case MessageTypeInformationRequest:
		return "INFORMATION-REQUEST"
	}
	return fmt.Sprintf("UNKNOWN(%d)", byte(t))
}

// Option is a single (code, value) pair. Values of container options
// (IA_NA, IA_TA, ...) hold their sub-options serialized; see option.go for
// the typed views. Unknown codes are carried opaque.
type Option struct {
	Code uint16
	Data []byte
}

// Message is one DHCPv6 packet: message type, 24-bit transaction id and
// the option list in wire order.
type Message struct {
	Type    MessageType
	XID     [3]byte
	Options []Option
}

func NewMessage(t MessageType, xid [3]byte) *Message {
	return &Message{Type: t, XID: xid}
}

func (m *Message) AddOption(code uint16, data []byte) {
	m.Options = append(m.Options, Option{Code: code, Data: data})
}

// Option returns the value of the first occurrence of code.
func (m *Message) Option(code uint16) ([]byte, bool) {
	for _, o := range m.Options {
		if o.Code == code {
			return o.Data, true
		}
	}
	return nil, false
}

// Marshal encodes the message into wire bytes, options in the order they
// were added.
func (m *Message) Marshal() []byte {
	b := make([]byte, 4, 128)
	b[0] = byte(m.Type)
	copy(b[1:4], m.XID[:])
	return appendOptions(b, m.Options)
}

func appendOptions(b []byte, opts []Option) []byte {
	for _, o := range opts {
		var hdr [4]byte
		binary.BigEndian.PutUint16(hdr[0:2], o.Code)
		binary.BigEndian.PutUint16(hdr[2:4], uint16(len(o.Data)))
		b = append(b, hdr[:]...)
		b = append(b, o.Data...)
	}
	return b
}

// Unmarshal decodes wire bytes into a Message.
func Unmarshal(b []byte) (*Message, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("%w: %d bytes, need at least 4", ErrMalformedPacket, len(b))
	}
	m := &Message{Type: MessageType(b[0])}
	copy(m.XID[:], b[1:4])

	opts, err := parseOptions(b[4:])
	if err != nil {
		return nil, err
	}
	m.Options = opts
	return m, nil
}

func parseOptions(b []byte) ([]Option, error) {
	var opts []Option
	for i := 0; i < len(b); {
		if i+4 > len(b) {
			return nil, fmt.Errorf("%w: option header truncated at offset %d", ErrMalformedPacket, i)
		}
		code := binary.BigEndian.Uint16(b[i : i+2])
		length := int(binary.BigEndian.Uint16(b[i+2 : i+4]))
		if i+4+length > len(b) {
			return nil, fmt.Errorf("%w: option %d length %d exceeds buffer", ErrMalformedPacket, code, length)
		}
		data := append([]byte(nil), b[i+4:i+4+length]...)
		opts = append(opts, Option{Code: code, Data: data})
		i += 4 + length
	}
	return opts, nil
}
