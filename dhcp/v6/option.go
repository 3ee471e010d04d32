package v6

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Option codes from RFC 8415 and the IANA registry.
const (
	OptionClientID    uint16 = 1
	OptionServerID    uint16 = 2
	OptionIANA        uint16 = 3
	OptionIATA        uint16 = 4
	OptionIAAddr      uint16 = 5
	OptionORO         uint16 = 6
	OptionPreference  uint16 = 7
	OptionElapsedTime uint16 = 8
	OptionUnicast     uint16 = 12
	OptionStatusCode  uint16 = 13
	OptionRapidCommit uint16 = 14
	OptionDNSServers  uint16 = 23
	OptionDomainList  uint16 = 24
	OptionIAPD        uint16 = 25
	OptionIAPrefix    uint16 = 26
	OptionNTPServer   uint16 = 56
	OptionSolMaxRT    uint16 = 82
)

// Status codes from RFC 8415 §21.13.
const (
	StatusSuccess      uint16 = 0
	StatusUnspecFail   uint16 = 1
	StatusNoAddrsAvail uint16 = 2
	StatusNoBinding    uint16 = 3
	StatusNotOnLink    uint16 = 4
	StatusUseMulticast uint16 = 5
)

// IANA is the Identity Association for Non-temporary Addresses container
// option (RFC 8415 §21.4). T1/T2 are in seconds.
type IANA struct {
	IAID    uint32
	T1      uint32
	T2      uint32
	Options []Option
}

func (ia *IANA) Marshal() []byte {
	b := make([]byte, 12, 12+16)
	binary.BigEndian.PutUint32(b[0:4], ia.IAID)
	binary.BigEndian.PutUint32(b[4:8], ia.T1)
	binary.BigEndian.PutUint32(b[8:12], ia.T2)
	return appendOptions(b, ia.Options)
}

func ParseIANA(data []byte) (*IANA, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("%w: IA_NA needs 12 bytes, got %d", ErrMalformedPacket, len(data))
	}
	opts, err := parseOptions(data[12:])
	if err != nil {
		return nil, err
	}
	return &IANA{
		IAID:    binary.BigEndian.Uint32(data[0:4]),
		T1:      binary.BigEndian.Uint32(data[4:8]),
		T2:      binary.BigEndian.Uint32(data[8:12]),
		Options: opts,
	}, nil
}

// Addr returns the first IA Address sub-option, or nil.
func (ia *IANA) Addr() *IAAddr {
	for _, o := range ia.Options {
		if o.Code == OptionIAAddr {
			a, err := ParseIAAddr(o.Data)
			if err != nil {
				return nil
			}
			return a
		}
	}
	return nil
}

// Status returns the IA's status code sub-option, defaulting to success
// when absent (RFC 8415 §21.13).
func (ia *IANA) Status() *StatusCode {
	for _, o := range ia.Options {
		if o.Code == OptionStatusCode {
			s, err := ParseStatusCode(o.Data)
			if err != nil {
				return &StatusCode{Code: StatusUnspecFail, Message: "unparseable status"}
			}
			return s
		}
	}
	return &StatusCode{Code: StatusSuccess}
}

// IAAddr is the IA Address sub-option (RFC 8415 §21.6). Lifetimes are in
// seconds.
type IAAddr struct {
	IP        net.IP
	Preferred uint32
	Valid     uint32
	Options   []Option
}

func (a *IAAddr) Marshal() []byte {
	b := make([]byte, 24)
	copy(b[0:16], a.IP.To16())
	binary.BigEndian.PutUint32(b[16:20], a.Preferred)
	binary.BigEndian.PutUint32(b[20:24], a.Valid)
	return appendOptions(b, a.Options)
}

func ParseIAAddr(data []byte) (*IAAddr, error) {
	if len(data) < 24 {
		return nil, fmt.Errorf("%w: IA Address needs 24 bytes, got %d", ErrMalformedPacket, len(data))
	}
	opts, err := parseOptions(data[24:])
	if err != nil {
		return nil, err
	}
	return &IAAddr{
		IP:        net.IP(append([]byte(nil), data[0:16]...)),
		Preferred: binary.BigEndian.Uint32(data[16:20]),
		Valid:     binary.BigEndian.Uint32(data[20:24]),
		Options:   opts,
	}, nil
}

// StatusCode is the Status Code option (RFC 8415 §21.13).
type StatusCode struct {
	Code    uint16
	Message string
}

func (s *StatusCode) Marshal() []byte {
	b := make([]byte, 2+len(s.Message))
	binary.BigEndian.PutUint16(b[0:2], s.Code)
	copy(b[2:], s.Message)
	return b
}

func ParseStatusCode(data []byte) (*StatusCode, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: status code needs 2 bytes, got %d", ErrMalformedPacket, len(data))
	}
	return &StatusCode{
		Code:    binary.BigEndian.Uint16(data[0:2]),
		Message: string(data[2:]),
	}, nil
}

func (s *StatusCode) Err() error {
	if s.Code == StatusSuccess {
		return nil
	}
	return fmt.Errorf("server status %d: %s", s.Code, s.Message)
}

func (m *Message) SetClientID(duid DUID) {
	m.AddOption(OptionClientID, duid)
}

func (m *Message) SetServerID(duid DUID) {
	m.AddOption(OptionServerID, duid)
}

func (m *Message) ClientID() (DUID, bool) {
	d, ok := m.Option(OptionClientID)
	return DUID(d), ok
}

func (m *Message) ServerID() (DUID, bool) {
	d, ok := m.Option(OptionServerID)
	return DUID(d), ok
}

// SetElapsedTime records time since the first transmission of the current
// exchange, in hundredths of a second, saturating at the field maximum.
func (m *Message) SetElapsedTime(hundredths uint64) {
	if hundredths > 0xffff {
		hundredths = 0xffff
	}
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(hundredths))
	m.AddOption(OptionElapsedTime, b)
}

func (m *Message) SetORO(codes ...uint16) {
	b := make([]byte, 0, 2*len(codes))
	for _, c := range codes {
		var cb [2]byte
		binary.BigEndian.PutUint16(cb[:], c)
		b = append(b, cb[:]...)
	}
	m.AddOption(OptionORO, b)
}

func (m *Message) SetIANA(ia *IANA) {
	m.AddOption(OptionIANA, ia.Marshal())
}

// IANA returns the first IA_NA option, parsed.
func (m *Message) IANA() (*IANA, error) {
	d, ok := m.Option(OptionIANA)
	if !ok {
		return nil, fmt.Errorf("no IA_NA option")
	}
	return ParseIANA(d)
}

// Status returns the message-level status code, defaulting to success
// when absent.
func (m *Message) Status() *StatusCode {
	d, ok := m.Option(OptionStatusCode)
	if !ok {
		return &StatusCode{Code: StatusSuccess}
	}
	s, err := ParseStatusCode(d)
	if err != nil {
		return &StatusCode{Code: StatusUnspecFail, Message: "unparseable status"}
	}
	return s
}

// DNSServers returns the DNS Recursive Name Server option addresses.
func (m *Message) DNSServers() []net.IP {
	d, ok := m.Option(OptionDNSServers)
	if !ok || len(d)%16 != 0 {
		return nil
	}
	ips := make([]net.IP, 0, len(d)/16)
	for i := 0; i+16 <= len(d); i += 16 {
		ips = append(ips, net.IP(append([]byte(nil), d[i:i+16]...)))
	}
	return ips
}

// ServerUnicast returns the Server Unicast option address, or nil.
func (m *Message) ServerUnicast() net.IP {
	d, ok := m.Option(OptionUnicast)
	if !ok || len(d) != 16 {
		return nil
	}
	return net.IP(append([]byte(nil), d...))
}
