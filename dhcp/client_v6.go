package dhcp

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net"
	"sync/atomic"
	"time"

	v6 "github.com/wirelab/dhclient/dhcp/v6"
)

// solicitMaxDelay is SOL_MAX_DELAY from RFC 8415 §7.6: the first Solicit
// is delayed by a random amount in [0, 1s) to desynchronize clients after
// a power event.
const solicitMaxDelay = time.Second

// defaultORO is the option set requested from the server in every
// client-originated message.
var defaultORO = []uint16{
	v6.OptionDNSServers,
	v6.OptionDomainList,
	v6.OptionNTPServer,
	v6.OptionSolMaxRT,
}

// ConfigV6 configures one DHCPv6 client run.
type ConfigV6 struct {
	// Iface is the network interface to acquire a lease on.
	Iface string
	// DUID identifies this client across restarts. When nil a link-layer
	// DUID (type 3) is derived from the interface hardware address.
	DUID v6.DUID
	// IAID distinguishes this interface's identity association. Zero
	// derives a stable value from the hardware address.
	IAID uint32
	// Timeout bounds the whole acquisition. Zero waits indefinitely.
	Timeout time.Duration
	// SolicitRetry overrides the Solicit retransmission schedule. The
	// zero value uses the default, which retries forever.
	SolicitRetry TimerSpec
}

// StatusV6 is the observable client state after one step.
type StatusV6 struct {
	State State
	Lease *v6.Lease
}

// ClientV6 is a single-interface DHCPv6 client for non-temporary
// addresses. Like ClientV4 it is single-threaded apart from Close.
type ClientV6 struct {
	cfg    ConfigV6
	hwAddr net.HardwareAddr
	duid   v6.DUID
	iaid   uint32

	conn     PacketConn
	openConn func() (PacketConn, error)

	now  func() time.Time
	rand *rand.Rand

	solicitRetry TimerSpec

	state     State
	xid       [3]byte
	retrans   *retransmit
	exchStart time.Time // first transmission of the exchange, for elapsed time
	offered   *v6.Lease
	store     leaseStore6

	deadline  time.Time
	restartAt time.Time
	closed    atomic.Bool
}

// NewClientV6 resolves the interface, fills in DUID and IAID defaults and
// binds the link-local UDP socket.
func NewClientV6(cfg ConfigV6) (*ClientV6, error) {
	iface, err := net.InterfaceByName(cfg.Iface)
	if err != nil {
		return nil, fmt.Errorf("dhcp: interface %q: %w", cfg.Iface, err)
	}

	c := &ClientV6{
		cfg:    cfg,
		hwAddr: iface.HardwareAddr,
		duid:   cfg.DUID,
		iaid:   cfg.IAID,
		openConn: func() (PacketConn, error) {
			return v6.Listen(iface)
		},
		now:  time.Now,
		rand: newRand(iface.HardwareAddr),

		solicitRetry: cfg.SolicitRetry,
	}
	if c.solicitRetry.IRT == 0 {
		c.solicitRetry = solicitSpec
	}
	if c.duid == nil {
		c.duid = v6.NewDUIDLL(iface.HardwareAddr)
	}
	if c.iaid == 0 {
		c.iaid = v6.IAIDForInterface(iface.HardwareAddr)
	}

	c.conn, err = c.openConn()
	if err != nil {
		return nil, &TransportError{Op: "open", Err: err}
	}

	if cfg.Timeout > 0 {
		c.deadline = c.now().Add(cfg.Timeout)
	}
	// first Solicit waits out the random delay
	c.restartAt = c.now().Add(time.Duration(c.rand.Float64() * float64(solicitMaxDelay)))
	return c, nil
}

func (c *ClientV6) status() StatusV6 {
	return StatusV6{State: c.state, Lease: c.store.current()}
}

// Step performs one suspend-resume step, mirroring ClientV4.Step.
func (c *ClientV6) Step() (StatusV6, error) {
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
	}
	return c.status(), err
}

func (c *ClientV6) recvUntil(deadline time.Time) ([]byte, net.IP, error) {
	now := c.now()
	if !deadline.After(now) {
		return nil, nil, nil
	}
	d := deadline.Sub(now)
	if d > maxRecvWait {
		d = maxRecvWait
	}
	payload, ip, _, err := c.conn.Recv(d)
	if err != nil {
		return nil, nil, c.transportError("recv", err)
	}
	return payload, ip, nil
}

func (c *ClientV6) send(m *v6.Message) error {
	if err := c.conn.Send(m.Marshal()); err != nil {
		return c.transportError("send", err)
	}
	return nil
}

// transportError mirrors ClientV4.transportError: a Close racing a
// blocked Recv stops the run cleanly instead of failing it.
func (c *ClientV6) transportError(op string, err error) error {
	if c.closed.Load() || errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return &TransportError{Op: op, Err: err}
}

func (c *ClientV6) overallDeadline(d time.Time) time.Time {
	if c.deadline.IsZero() || c.store.current() != nil {
		return d
	}
	if c.deadline.Before(d) {
		return c.deadline
	}
	return d
}

func (c *ClientV6) overallExpired(now time.Time) bool {
	return !c.deadline.IsZero() && c.store.current() == nil && !now.Before(c.deadline)
}

func (c *ClientV6) newXID() [3]byte {
	var xid [3]byte
	v := c.rand.Uint32()
	xid[0], xid[1], xid[2] = byte(v>>16), byte(v>>8), byte(v)
	return xid
}

// elapsedHundredths feeds the Elapsed Time option: hundredths of a second
// since the first transmission of the running exchange.
func (c *ClientV6) elapsedHundredths() uint64 {
	if c.retrans == nil || c.retrans.count <= 1 {
		return 0
	}
	return uint64(c.now().Sub(c.exchStart) / (10 * time.Millisecond))
}

// toMulticast undoes a server-unicast switch before any exchange that
// must reach all servers.
func (c *ClientV6) toMulticast() {
	if sw, ok := c.conn.(unicastSwitcher); ok {
		sw.SetMulticast()
	}
}

func (c *ClientV6) toInit(delay time.Duration) error {
	c.offered = nil
	c.retrans = nil
	c.state = StateInit
	c.restartAt = c.now().Add(delay)
	c.toMulticast()
	return nil
}

func (c *ClientV6) stepInit() error {
	if now := c.now(); c.restartAt.After(now) {
		_, _, err := c.recvUntil(c.overallDeadline(c.restartAt))
		if err != nil {
			return err
		}
		if c.overallExpired(c.now()) {
			return ErrTimeout
		}
		return nil
	}

	c.xid = c.newXID()
	c.exchStart = c.now()
	c.restartAt = time.Time{}
	c.retrans = nil

	if err := c.send(c.buildSolicit()); err != nil {
		return err
	}
	log.Printf("dhcp6: sent SOLICIT xid %x on %s", c.xid, c.cfg.Iface)
	c.retrans = newRetransmit(c.solicitRetry, c.now(), c.rand.Float64)
	c.state = StateSelecting
	return nil
}

func (c *ClientV6) stepSelecting() error {
	payload, _, err := c.recvUntil(c.overallDeadline(c.retrans.deadline))
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
			log.Printf("dhcp6: SOLICIT retries exhausted without an advertise")
			if err := c.toInit(defaultRestartDelay); err != nil {
				return err
			}
			return ErrNoOffer
		}
		log.Printf("dhcp6: no ADVERTISE yet, resending SOLICIT (attempt %d)", c.retrans.count)
		return c.send(c.buildSolicit())
	}

	m := c.validReply(payload, v6.MessageTypeAdvertise)
	if m == nil {
		return nil
	}

	lease, err := v6.LeaseFromMessage(m)
	if err != nil {
		log.Printf("dhcp6: discarding ADVERTISE: %v", err)
		return nil
	}

	// first valid advertise wins
	c.offered = lease
	log.Printf("dhcp6: got ADVERTISE of %s from server %s", lease.Addr, lease.ServerDUID)

	c.xid = c.newXID()
	c.exchStart = c.now()
	c.retrans = nil
	if err := c.send(c.buildRequest(v6.MessageTypeRequest)); err != nil {
		return err
	}
	c.retrans = newRetransmit(requestSpec6, c.now(), c.rand.Float64)
	c.state = StateRequesting
	return nil
}

func (c *ClientV6) stepRequesting() error {
	payload, _, err := c.recvUntil(c.overallDeadline(c.retrans.deadline))
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
			log.Printf("dhcp6: REQUEST retries exhausted, restarting solicitation")
			return c.toInit(defaultRestartDelay)
		}
		return c.send(c.buildRequest(v6.MessageTypeRequest))
	}

	m := c.validReply(payload, v6.MessageTypeReply)
	if m == nil {
		return nil
	}
	if server, _ := m.ServerID(); c.offered != nil && !server.Equal(c.offered.ServerDUID) {
		log.Printf("dhcp6: discarding REPLY from unexpected server %s", server)
		return nil
	}
	return c.commitReply(m)
}

// commitReply validates a Reply's lease content, commits it and enters
// Bound. A non-success status code restarts solicitation, the v6
// counterpart of a v4 Nak.
func (c *ClientV6) commitReply(m *v6.Message) error {
	lease, err := v6.LeaseFromMessage(m)
	if err != nil {
		log.Printf("dhcp6: REPLY refused: %v, restarting solicitation", err)
		c.store.clear()
		return c.toInit(defaultRestartDelay)
	}
	if lease.Valid == 0 {
		log.Printf("dhcp6: discarding REPLY without valid lifetime")
		return nil
	}

	c.offered = nil
	c.retrans = nil
	c.store.commit(lease, c.now())
	c.state = StateBound
	if lease.ServerUnicast != nil {
		log.Printf("dhcp6: server allows unicast at %s", lease.ServerUnicast)
	}
	log.Printf("dhcp6: bound to %s, valid %ds (T1 %ds, T2 %ds)",
		lease.Addr, lease.Valid, lease.T1, lease.T2)
	return nil
}

func (c *ClientV6) stepBound() error {
	payload, _, err := c.recvUntil(c.store.t1)
	if err != nil {
		return err
	}
	if payload != nil || c.now().Before(c.store.t1) {
		return nil
	}

	// T1 fired: Renew, unicast when the server allowed it
	lease := c.store.current()
	if lease.ServerUnicast != nil {
		if sw, ok := c.conn.(unicastSwitcher); ok {
			sw.SetUnicast(lease.ServerUnicast)
		}
	}

	c.xid = c.newXID()
	c.exchStart = c.now()
	c.retrans = nil
	if err := c.send(c.buildRequest(v6.MessageTypeRenew)); err != nil {
		return err
	}
	log.Printf("dhcp6: T1 reached, sent RENEW for %s", lease.Addr)

	spec := renewSpec
	spec.MRD = c.store.t2.Sub(c.now())
	c.retrans = newRetransmit(spec, c.now(), c.rand.Float64)
	c.state = StateRenewing
	return nil
}

func (c *ClientV6) stepRenewing() error {
	payload, _, err := c.recvUntil(minTime(c.retrans.deadline, c.store.t2))
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
		return c.send(c.buildRequest(v6.MessageTypeRenew))
	}

	m := c.validReply(payload, v6.MessageTypeReply)
	if m == nil {
		return nil
	}
	return c.commitReply(m)
}

// enterRebinding multicasts a Rebind; the server identifier is dropped so
// any server with knowledge of the binding may answer.
func (c *ClientV6) enterRebinding() error {
	c.toMulticast()
	c.xid = c.newXID()
	c.exchStart = c.now()
	c.retrans = nil
	if err := c.send(c.buildRequest(v6.MessageTypeRebind)); err != nil {
		return err
	}
	log.Printf("dhcp6: T2 reached, multicast REBIND for %s", c.store.current().Addr)

	spec := rebindSpec
	spec.MRD = c.store.expiry.Sub(c.now())
	c.retrans = newRetransmit(spec, c.now(), c.rand.Float64)
	c.state = StateRebinding
	return nil
}

func (c *ClientV6) stepRebinding() error {
	payload, _, err := c.recvUntil(minTime(c.retrans.deadline, c.store.expiry))
	if err != nil {
		return err
	}

	if payload == nil {
		now := c.now()
		if !now.Before(c.store.expiry) {
			log.Printf("dhcp6: lease on %s expired while rebinding", c.cfg.Iface)
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
			return nil
		}
		return c.send(c.buildRequest(v6.MessageTypeRebind))
	}

	m := c.validReply(payload, v6.MessageTypeReply)
	if m == nil {
		return nil
	}
	if _, err := v6.LeaseFromMessage(m); err != nil {
		log.Printf("dhcp6: REBIND refused: %v, lease lost", err)
		c.store.clear()
		if err := c.toInit(defaultRestartDelay); err != nil {
			return err
		}
		return ErrLeaseLost
	}
	return c.commitReply(m)
}

// Release sends a best-effort Release for the held lease and shuts the
// client down without waiting for the server's Reply.
func (c *ClientV6) Release() error {
	if c.closed.Load() {
		return ErrClosed
	}
	lease := c.store.current()
	if lease == nil {
		return ErrNoLease
	}

	c.xid = c.newXID()
	c.exchStart = c.now()
	c.retrans = nil
	if err := c.send(c.buildRequest(v6.MessageTypeRelease)); err != nil {
		log.Printf("dhcp6: RELEASE send failed: %v", err)
	} else {
		log.Printf("dhcp6: released %s", lease.Addr)
	}

	c.store.clear()
	c.state = StateReleased
	return c.Close()
}

// Decline reports the bound or offered address as unusable (duplicate
// address detection failed) and restarts solicitation.
func (c *ClientV6) Decline() error {
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

	c.toMulticast()
	c.xid = c.newXID()
	c.exchStart = c.now()
	c.retrans = nil

	m := v6.NewMessage(v6.MessageTypeDecline, c.xid)
	m.SetClientID(c.duid)
	m.SetServerID(lease.ServerDUID)
	m.SetElapsedTime(0)
	m.SetIANA(&v6.IANA{
		IAID: c.iaid,
		Options: []v6.Option{{
			Code: v6.OptionIAAddr,
			Data: (&v6.IAAddr{IP: lease.Addr}).Marshal(),
		}},
	})
	if err := c.send(m); err != nil {
		log.Printf("dhcp6: DECLINE send failed: %v", err)
	} else {
		log.Printf("dhcp6: declined %s", lease.Addr)
	}

	c.store.clear()
	return c.toInit(defaultRestartDelay)
}

// Close releases the transport. It is idempotent and safe to call from
// another goroutine to interrupt a blocked Step.
func (c *ClientV6) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.conn.Close()
}

// validReply parses and applies the RFC 8415 §16 discard rules: the
// transaction id must match, the message must carry a server identifier
// and a client identifier naming this client, and the type must be one
// the state expects.
func (c *ClientV6) validReply(payload []byte, want v6.MessageType) *v6.Message {
	m, err := v6.Unmarshal(payload)
	if err != nil {
		log.Printf("dhcp6: discarding packet: %v", err)
		return nil
	}
	if m.Type != want {
		log.Printf("dhcp6: discarding unexpected %s in state %s", m.Type, c.state)
		return nil
	}
	if m.XID != c.xid {
		log.Printf("dhcp6: discarding %s with xid %x, want %x", m.Type, m.XID, c.xid)
		return nil
	}
	if _, ok := m.ServerID(); !ok {
		log.Printf("dhcp6: discarding %s without server identifier", m.Type)
		return nil
	}
	if client, ok := m.ClientID(); !ok || !client.Equal(c.duid) {
		log.Printf("dhcp6: discarding %s not addressed to this client", m.Type)
		return nil
	}
	return m
}

func (c *ClientV6) buildSolicit() *v6.Message {
	m := v6.NewMessage(v6.MessageTypeSolicit, c.xid)
	m.SetClientID(c.duid)
	m.SetElapsedTime(c.elapsedHundredths())
	m.SetORO(defaultORO...)
	m.SetIANA(&v6.IANA{IAID: c.iaid})
	return m
}

// buildRequest builds the Request, Renew, Rebind and Release messages:
// all carry the client identifier, elapsed time and the IA under
// negotiation; Rebind omits the server identifier.
func (c *ClientV6) buildRequest(t v6.MessageType) *v6.Message {
	m := v6.NewMessage(t, c.xid)
	m.SetClientID(c.duid)

	lease := c.store.current()
	if lease == nil {
		lease = c.offered
	}
	if t != v6.MessageTypeRebind && lease != nil && lease.ServerDUID != nil {
		m.SetServerID(lease.ServerDUID)
	}
	m.SetElapsedTime(c.elapsedHundredths())
	m.SetORO(defaultORO...)

	ia := &v6.IANA{IAID: c.iaid}
	if lease != nil && lease.Addr != nil {
		ia.Options = []v6.Option{{
			Code: v6.OptionIAAddr,
			Data: (&v6.IAAddr{
				IP:        lease.Addr,
				Preferred: lease.Preferred,
				Valid:     lease.Valid,
			}).Marshal(),
		}}
	}
	m.SetIANA(ia)
	return m
}
