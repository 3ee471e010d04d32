// Package dhcp drives DHCPv4 (RFC 2131) and DHCPv6 (RFC 8415) address
// acquisition for a single network interface: it builds and validates
// messages via the codec packages, schedules retransmissions and lease
// timers, and walks the protocol state machines.
package dhcp

// State is the client state machine position. The same enumeration serves
// both families; for DHCPv6, StateSelecting covers the Solicit exchange
// and StateRequesting the Request exchange.
type State int

const (
	StateInit State = iota
	StateSelecting
	StateRequesting
	StateBound
	StateRenewing
	StateRebinding
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSelecting:
		return "selecting"
	case StateRequesting:
		return "requesting"
	case StateBound:
		return "bound"
	case StateRenewing:
		return "renewing"
	case StateRebinding:
		return "rebinding"
	case StateReleased:
		return "released"
	}
	return "unknown"
}
