package dhcp

import (
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"math/rand"
	"net"
	"sync/atomic"
	"time"

	v4 "github.com/wirelab/dhclient/dhcp/v4"
)

// recv waits are capped so a concurrent Close or a shortened deadline is
// observed promptly.
const maxRecvWait = time.Second

// restartDelay is the pause before discovery restarts after a Nak or a
// failed Request exchange.
const defaultRestartDelay = 2 * time.Second

// defaultParameterRequest is the option set asked of the server in every
// Discover and Request.
var defaultParameterRequest = []byte{
	v4.OptionSubnetMask,
	v4.OptionRouter,
	v4.OptionDomainNameServer,
	v4.OptionDomainName,
	v4.OptionInterfaceMTU,
	v4.OptionNTPServers,
	v4.OptionHostName,
}

// ConfigV4 configures one DHCPv4 client run. It is read-only for the life
// of the client.
type ConfigV4 struct {
	// Iface is the network interface to acquire a lease on.
	Iface string
	// HostName, when set, is sent in the host name option.
	HostName string
	// ClientID is an explicit client identifier. When nil the client
	// identifier defaults to the hardware address (type 1, RFC 2132
	// §9.14) unless HostNameAsClientID is set.
	ClientID []byte
	// HostNameAsClientID selects a type-0 client identifier built from
	// HostName.
	HostNameAsClientID bool
	// Timeout bounds the whole acquisition. Zero waits indefinitely.
	Timeout time.Duration
	// DiscoverRetry overrides the Discover retransmission schedule. The
	// zero value uses the default, which retries forever.
	DiscoverRetry TimerSpec
}

func (c *ConfigV4) clientID(hwAddr net.HardwareAddr) []byte {
	if c.HostNameAsClientID && c.HostName != "" {
		return append([]byte{0}, c.HostName...)
	}
	if len(c.ClientID) > 0 {
		return c.ClientID
	}
	return append([]byte{v4.HTypeEthernet}, hwAddr...)
}

// StatusV4 is the observable client state after one step. Lease is
// non-nil exactly while the client is bound (including while renewing or
// rebinding an existing lease).
type StatusV4 struct {
	State State
	Lease *v4.Lease
}

// ClientV4 is a single-interface DHCPv4 client. It is not safe for
// concurrent use except for Close, which may interrupt a blocked Step.
type ClientV4 struct {
	cfg      ConfigV4
	hwAddr   net.HardwareAddr
	clientID []byte

	conn    PacketConn
	rawOpen bool // current conn is the raw pre-lease channel
	openRaw func() (PacketConn, error)
	openUDP func(laddr, server net.IP) (PacketConn, error)

	now  func() time.Time
	rand *rand.Rand

	discoverRetry TimerSpec

	state    State
	xid      uint32
	retrans  *retransmit
	acqStart time.Time // first Discover of the current acquisition, for secs
	offered  *v4.Lease
	store    leaseStore4

	deadline  time.Time // overall timeout, zero when unbounded
	restartAt time.Time // earliest moment discovery may restart
	closed    atomic.Bool
}

// NewClientV4 resolves the interface and binds the pre-lease raw channel.
// The caller drives the returned client by calling Step in a loop and
// must Close it when done.
func NewClientV4(cfg ConfigV4) (*ClientV4, error) {
	iface, err := net.InterfaceByName(cfg.Iface)
	if err != nil {
		return nil, fmt.Errorf("dhcp: interface %q: %w", cfg.Iface, err)
	}

	c := &ClientV4{
		cfg:      cfg,
		hwAddr:   iface.HardwareAddr,
		clientID: cfg.clientID(iface.HardwareAddr),
		openRaw: func() (PacketConn, error) {
			return v4.ListenRaw(iface)
		},
		openUDP: func(laddr, server net.IP) (PacketConn, error) {
			return v4.OpenUDP(laddr, server)
		},
		now:  time.Now,
		rand: newRand(iface.HardwareAddr),

		discoverRetry: cfg.DiscoverRetry,
	}
	if c.discoverRetry.IRT == 0 {
		c.discoverRetry = discoverSpec
	}

	c.conn, err = c.openRaw()
	if err != nil {
		return nil, &TransportError{Op: "open", Err: err}
	}
	c.rawOpen = true

	if cfg.Timeout > 0 {
		c.deadline = c.now().Add(cfg.Timeout)
	}
	return c, nil
}

// newRand seeds from the hardware address and current time so concurrent
// clients pick distinct transaction ids (RFC 2131 §4.1).
func newRand(hwAddr net.HardwareAddr) *rand.Rand {
	h := fnv.New64()
	h.Write(hwAddr)
	return rand.New(rand.NewSource(int64(h.Sum64()) + time.Now().UnixNano()))
}

func (c *ClientV4) status() StatusV4 {
	return StatusV4{State: c.state, Lease: c.store.current()}
}

// Step performs one suspend-resume step: it sends whatever the current
// state requires, waits for at most one inbound packet or deadline, and
// applies at most one transition. The caller loops until it has what it
// wants; a Step may return with the status unchanged.
func (c *ClientV4) Step() (StatusV4, error) {
	if c.closed.Load() {
		return c.status(), ErrClosed
	}

	var err error
	switch c.state {
	case StateInit:
		err = c.stepInit()
	case StateSelecting:
		err = c.stepSelecting()
	case StateRequesting:
		err = c.stepRequesting()
	case StateBound:
		err = c.stepBound()
	case StateRenewing:
		err = c.stepRenewing()
	case StateRebinding:
		err = c.stepRebinding()
	case StateReleased:
		// terminal
	}
	return c.status(), err
}

// recvUntil waits for one packet until the given deadline, in bounded
// polls. A nil payload with nil error means the deadline (or poll cap)
// expired.
func (c *ClientV4) recvUntil(deadline time.Time) ([]byte, net.IP, net.HardwareAddr, error) {
	now := c.now()
	if !deadline.After(now) {
		return nil, nil, nil, nil
	}
	d := deadline.Sub(now)
	if d > maxRecvWait {
		d = maxRecvWait
	}
	payload, ip, mac, err := c.conn.Recv(d)
	if err != nil {
		return nil, nil, nil, c.transportError("recv", err)
	}
	return payload, ip, mac, nil
}

func (c *ClientV4) send(m *v4.Message) error {
	if err := c.conn.Send(m.Marshal()); err != nil {
		return c.transportError("send", err)
	}
	return nil
}

// transportError distinguishes a caller-initiated Close, which interrupts
// a blocked Recv with a closed-socket error, from a genuine transport
// failure. The former is a clean stop, not a fault.
func (c *ClientV4) transportError(op string, err error) error {
	if c.closed.Load() || errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return &TransportError{Op: op, Err: err}
}

// overallDeadline folds the caller timeout into a state deadline. The
// overall timeout only applies while no lease is bound.
func (c *ClientV4) overallDeadline(d time.Time) time.Time {
	if c.deadline.IsZero() || c.store.current() != nil {
		return d
	}
	if c.deadline.Before(d) {
		return c.deadline
	}
	return d
}

func (c *ClientV4) overallExpired(now time.Time) bool {
	return !c.deadline.IsZero() && c.store.current() == nil && !now.Before(c.deadline)
}

func (c *ClientV4) secs() uint16 {
	s := c.now().Sub(c.acqStart) / time.Second
	if s > 0xffff {
		s = 0xffff
	}
	return uint16(s)
}

// toRaw swaps the transport back to the pre-lease raw channel. Used on
// every path that returns to broadcast operation.
func (c *ClientV4) toRaw() error {
	if c.rawOpen {
		return nil
	}
	c.conn.Close()
	conn, err := c.openRaw()
	if err != nil {
		return &TransportError{Op: "open", Err: err}
	}
	c.conn = conn
	c.rawOpen = true
	return nil
}

// toInit abandons the current exchange and schedules a discovery restart.
func (c *ClientV4) toInit(delay time.Duration) error {
	c.offered = nil
	c.retrans = nil
	c.state = StateInit
	c.restartAt = c.now().Add(delay)
	return c.toRaw()
}

func (c *ClientV4) stepInit() error {
	// honor the post-Nak restart delay, discarding stray traffic
	if now := c.now(); c.restartAt.After(now) {
		_, _, _, err := c.recvUntil(c.overallDeadline(c.restartAt))
		if err != nil {
			return err
		}
		if c.overallExpired(c.now()) {
			return ErrTimeout
		}
		return nil
	}

	c.xid = c.rand.Uint32()
	c.acqStart = c.now()
	c.restartAt = time.Time{}

	if err := c.send(c.buildDiscover()); err != nil {
		return err
	}
	log.Printf("dhcp4: sent DISCOVER xid 0x%08x on %s", c.xid, c.cfg.Iface)
	c.retrans = newRetransmit(c.discoverRetry, c.now(), c.rand.Float64)
	c.state = StateSelecting
	return nil
}

func (c *ClientV4) stepSelecting() error {
	payload, _, srcMAC, err := c.recvUntil(c.overallDeadline(c.retrans.deadline))
	if err != nil {
		return err
	}

	if payload == nil {
		now := c.now()
		if c.overallExpired(now) {
			return ErrTimeout
		}
		if now.Before(c.retrans.deadline) {
			return nil // idle wake
		}
		if !c.retrans.next(now) {
			log.Printf("dhcp4: DISCOVER retries exhausted without an offer")
			if err := c.toInit(defaultRestartDelay); err != nil {
				return err
			}
			return ErrNoOffer
		}
		log.Printf("dhcp4: no OFFER yet, resending DISCOVER (attempt %d)", c.retrans.count)
		return c.send(c.buildDiscover())
	}

	m, err := v4.Unmarshal(payload)
	if err != nil {
		log.Printf("dhcp4: discarding packet: %v", err)
		return nil
	}
	if !c.validReply(m, v4.MessageTypeOffer) {
		return nil
	}

	lease, err := v4.LeaseFromMessage(m)
	if err != nil {
		log.Printf("dhcp4: discarding OFFER: %v", err)
		return nil
	}
	if server := lease.Server(); server == nil || server.Equal(net.IPv4zero) {
		log.Printf("dhcp4: discarding OFFER without server identifier")
		return nil
	}
	lease.ServerMAC = srcMAC

	// first valid offer wins
	c.offered = lease
	log.Printf("dhcp4: got OFFER of %s from %s", lease.Addr, lease.Server())

	if err := c.send(c.buildRequest(requestSelecting)); err != nil {
		return err
	}
	c.retrans = newRetransmit(requestSpec4, c.now(), c.rand.Float64)
	c.state = StateRequesting
	return nil
}

func (c *ClientV4) stepRequesting() error {
	payload, _, srcMAC, err := c.recvUntil(c.overallDeadline(c.retrans.deadline))
	if err != nil {
		return err
	}

	if payload == nil {
		now := c.now()
		if c.overallExpired(now) {
			return ErrTimeout
		}
		if now.Before(c.retrans.deadline) {
			return nil
		}
		if !c.retrans.next(now) {
			log.Printf("dhcp4: REQUEST retries exhausted, restarting discovery")
			return c.toInit(defaultRestartDelay)
		}
		return c.send(c.buildRequest(requestSelecting))
	}

	m, err := v4.Unmarshal(payload)
	if err != nil {
		log.Printf("dhcp4: discarding packet: %v", err)
		return nil
	}
	if !c.validReply(m, v4.MessageTypeAck, v4.MessageTypeNak) {
		return nil
	}

	if m.Type() == v4.MessageTypeNak {
		log.Printf("dhcp4: server refused REQUEST with NAK, restarting discovery")
		return c.toInit(defaultRestartDelay)
	}
	return c.commitAck(m, srcMAC)
}

// commitAck validates an Ack's lease content, commits it and enters
// Bound. Invalid content is discarded without a state change.
func (c *ClientV4) commitAck(m *v4.Message, srcMAC net.HardwareAddr) error {
	lease, err := v4.LeaseFromMessage(m)
	if err != nil {
		log.Printf("dhcp4: discarding ACK: %v", err)
		return nil
	}
	if lease.LeaseTime == 0 {
		log.Printf("dhcp4: discarding ACK without lease time")
		return nil
	}
	lease.ServerMAC = srcMAC
	if srcMAC == nil {
		if prev := c.store.current(); prev != nil {
			lease.ServerMAC = prev.ServerMAC
		} else if c.offered != nil {
			lease.ServerMAC = c.offered.ServerMAC
		}
	}

	c.offered = nil
	c.retrans = nil
	c.store.commit(lease, c.now())
	c.state = StateBound
	log.Printf("dhcp4: bound to %s for %ds (T1 %ds, T2 %ds)",
		lease.Addr, lease.LeaseTime, lease.T1, lease.T2)
	return c.toRaw()
}

func (c *ClientV4) stepBound() error {
	// nothing outstanding: everything received here is discarded
	payload, _, _, err := c.recvUntil(c.store.t1)
	if err != nil {
		return err
	}
	if payload != nil || c.now().Before(c.store.t1) {
		return nil
	}

	// T1 fired: unicast Renew to the lease's server. When the unicast
	// socket cannot be opened the renew goes out over the broadcast
	// channel instead of failing the run.
	lease := c.store.current()
	if conn, err := c.openUDP(lease.Addr, lease.Server()); err != nil {
		log.Printf("dhcp4: unicast socket for RENEW unavailable: %v, broadcasting instead", err)
	} else {
		c.conn.Close()
		c.conn = conn
		c.rawOpen = false
	}

	c.xid = c.rand.Uint32()
	c.acqStart = c.now()
	if err := c.send(c.buildRequest(requestRenewing)); err != nil {
		return err
	}
	log.Printf("dhcp4: T1 reached, sent RENEW for %s to %s", lease.Addr, lease.Server())

	spec := renewSpec
	spec.MRD = c.store.t2.Sub(c.now())
	c.retrans = newRetransmit(spec, c.now(), c.rand.Float64)
	c.state = StateRenewing
	return nil
}

func (c *ClientV4) stepRenewing() error {
	payload, _, srcMAC, err := c.recvUntil(minTime(c.retrans.deadline, c.store.t2))
	if err != nil {
		return err
	}

	if payload == nil {
		now := c.now()
		if !now.Before(c.store.t2) || c.retrans.exhausted(now) {
			return c.enterRebinding()
		}
		if now.Before(c.retrans.deadline) {
			return nil
		}
		if !c.retrans.next(now) {
			return c.enterRebinding()
		}
		return c.send(c.buildRequest(requestRenewing))
	}

	m, err := v4.Unmarshal(payload)
	if err != nil {
		log.Printf("dhcp4: discarding packet: %v", err)
		return nil
	}
	if !c.validReply(m, v4.MessageTypeAck, v4.MessageTypeNak) {
		return nil
	}

	if m.Type() == v4.MessageTypeNak {
		log.Printf("dhcp4: RENEW refused with NAK, lease dropped")
		c.store.clear()
		return c.toInit(defaultRestartDelay)
	}
	return c.commitAck(m, srcMAC)
}

// enterRebinding broadcasts a Rebind; the server identifier is no longer
// honored.
func (c *ClientV4) enterRebinding() error {
	if err := c.toRaw(); err != nil {
		return err
	}
	c.xid = c.rand.Uint32()
	c.acqStart = c.now()
	if err := c.send(c.buildRequest(requestRebinding)); err != nil {
		return err
	}
	log.Printf("dhcp4: T2 reached, broadcast REBIND for %s", c.store.current().Addr)

	spec := rebindSpec
	spec.MRD = c.store.expiry.Sub(c.now())
	c.retrans = newRetransmit(spec, c.now(), c.rand.Float64)
	c.state = StateRebinding
	return nil
}

func (c *ClientV4) stepRebinding() error {
	payload, _, srcMAC, err := c.recvUntil(minTime(c.retrans.deadline, c.store.expiry))
	if err != nil {
		return err
	}

	if payload == nil {
		now := c.now()
		if !now.Before(c.store.expiry) {
			log.Printf("dhcp4: lease on %s expired while rebinding", c.cfg.Iface)
			c.store.clear()
			if err := c.toInit(0); err != nil {
				return err
			}
			return ErrLeaseLost
		}
		if now.Before(c.retrans.deadline) {
			return nil
		}
		if !c.retrans.next(now) {
			return nil // MRD is the expiry; keep waiting for it
		}
		return c.send(c.buildRequest(requestRebinding))
	}

	m, err := v4.Unmarshal(payload)
	if err != nil {
		log.Printf("dhcp4: discarding packet: %v", err)
		return nil
	}
	if !c.validReply(m, v4.MessageTypeAck, v4.MessageTypeNak) {
		return nil
	}

	if m.Type() == v4.MessageTypeNak {
		log.Printf("dhcp4: REBIND refused with NAK, lease lost")
		c.store.clear()
		if err := c.toInit(defaultRestartDelay); err != nil {
			return err
		}
		return ErrLeaseLost
	}
	return c.commitAck(m, srcMAC)
}

// Release sends a best-effort Release for the held lease, discards it
// locally without waiting for a reply, and shuts the client down.
func (c *ClientV4) Release() error {
	if c.closed.Load() {
		return ErrClosed
	}
	lease := c.store.current()
	if lease == nil {
		return ErrNoLease
	}

	m := v4.NewRequest(c.hwAddr, c.rand.Uint32())
	m.CIAddr = lease.Addr
	m.SetMessageType(v4.MessageTypeRelease)
	m.SetServerIdentifier(lease.Server())
	m.SetClientIdentifier(c.clientID)

	// prefer a unicast release; fall back to the current transport
	if conn, err := c.openUDP(lease.Addr, lease.Server()); err == nil {
		c.conn.Close()
		c.conn = conn
		c.rawOpen = false
	}
	if err := c.conn.Send(m.Marshal()); err != nil {
		log.Printf("dhcp4: RELEASE send failed: %v", err)
	} else {
		log.Printf("dhcp4: released %s", lease.Addr)
	}

	c.store.clear()
	c.state = StateReleased
	return c.Close()
}

// Decline tells the server the bound or offered address is already in use
// (e.g. duplicate address detection failed) and restarts discovery.
func (c *ClientV4) Decline() error {
	if c.closed.Load() {
		return ErrClosed
	}
	lease := c.store.current()
	if lease == nil {
		lease = c.offered
	}
	if lease == nil {
		return ErrNoLease
	}

	if err := c.toRaw(); err != nil {
		return err
	}
	m := v4.NewRequest(c.hwAddr, c.rand.Uint32())
	m.SetMessageType(v4.MessageTypeDecline)
	m.SetRequestedIP(lease.Addr)
	m.SetServerIdentifier(lease.Server())
	m.SetClientIdentifier(c.clientID)
	if err := c.conn.Send(m.Marshal()); err != nil {
		log.Printf("dhcp4: DECLINE send failed: %v", err)
	} else {
		log.Printf("dhcp4: declined %s", lease.Addr)
	}

	c.store.clear()
	return c.toInit(defaultRestartDelay)
}

// Close releases the transport. It is idempotent and safe to call from
// another goroutine to interrupt a blocked Step.
func (c *ClientV4) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.conn.Close()
}

// validReply applies the RFC discard rules: the transaction id must match
// the outstanding exchange and the message type must be one the current
// state expects.
func (c *ClientV4) validReply(m *v4.Message, want ...v4.MessageType) bool {
	if m.Op != v4.OpcodeBootReply {
		return false
	}
	if m.XID != c.xid {
		log.Printf("dhcp4: discarding %s with xid 0x%08x, want 0x%08x", m.Type(), m.XID, c.xid)
		return false
	}
	for _, t := range want {
		if m.Type() == t {
			return true
		}
	}
	log.Printf("dhcp4: discarding unexpected %s in state %s", m.Type(), c.state)
	return false
}

func (c *ClientV4) buildDiscover() *v4.Message {
	m := v4.NewRequest(c.hwAddr, c.xid)
	m.Secs = c.secs()
	m.SetMessageType(v4.MessageTypeDiscover)
	m.SetParameterRequestList(defaultParameterRequest...)
	m.SetClientIdentifier(c.clientID)
	if c.cfg.HostName != "" {
		m.SetHostName(c.cfg.HostName)
	}
	return m
}

type requestKind int

const (
	requestSelecting requestKind = iota // answer to an Offer
	requestRenewing                     // unicast lease extension
	requestRebinding                    // broadcast lease extension
)

// buildRequest builds the three RFC 2131 §4.3.2 Request variants: the
// SELECTING form names the offered address and server, the RENEWING and
// REBINDING forms carry the bound address in ciaddr instead.
func (c *ClientV4) buildRequest(kind requestKind) *v4.Message {
	m := v4.NewRequest(c.hwAddr, c.xid)
	m.Secs = c.secs()
	m.SetMessageType(v4.MessageTypeRequest)

	switch kind {
	case requestSelecting:
		m.SetRequestedIP(c.offered.Addr)
		m.SetServerIdentifier(c.offered.Server())
	case requestRenewing, requestRebinding:
		m.CIAddr = c.store.current().Addr
	}

	m.SetParameterRequestList(defaultParameterRequest...)
	m.SetClientIdentifier(c.clientID)
	if c.cfg.HostName != "" {
		m.SetHostName(c.cfg.HostName)
	}
	return m
}

func minTime(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}
