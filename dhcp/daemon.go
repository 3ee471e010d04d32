package dhcp

import (
	"errors"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/wirelab/dhclient/configuration"
)

// Daemon drives one DHCPv4 and/or DHCPv6 client on a single interface
// until shutdown, stepping each in its own goroutine.
type Daemon struct {
	Configuration *configuration.Configuration

	v4 *ClientV4
	v6 *ClientV6

	group errgroup.Group
}

// NewDaemon builds the clients enabled in config for the given interface.
// Config values have been validated by the configuration package.
func NewDaemon(config *configuration.Configuration, iface string) (*Daemon, error) {
	d := &Daemon{Configuration: config}

	timeout, err := config.TimeoutDuration()
	if err != nil {
		return nil, err
	}

	if config.V4.Enabled {
		clientID, err := config.V4.ClientIDBytes()
		if err != nil {
			return nil, err
		}
		d.v4, err = NewClientV4(ConfigV4{
			Iface:              iface,
			HostName:           config.HostName,
			ClientID:           clientID,
			HostNameAsClientID: config.V4.HostNameAsClientID(),
			Timeout:            timeout,
		})
		if err != nil {
			return nil, err
		}
	}

	if config.V6.Enabled {
		duid, err := config.V6.DUIDBytes()
		if err != nil {
			d.Shutdown()
			return nil, err
		}
		d.v6, err = NewClientV6(ConfigV6{
			Iface:   iface,
			DUID:    duid,
			IAID:    config.V6.IAID,
			Timeout: timeout,
		})
		if err != nil {
			d.Shutdown()
			return nil, err
		}
	}

	return d, nil
}

// Start launches the run loops. It returns immediately; Wait reports the
// outcome.
func (d *Daemon) Start() {
	log.Println("Starting client.")

	if d.v4 != nil {
		d.group.Go(d.runV4)
	}
	if d.v6 != nil {
		d.group.Go(d.runV6)
	}
}

// Shutdown interrupts the run loops. Leases are kept, not released; use
// the clients' Release for a clean exit.
func (d *Daemon) Shutdown() {
	log.Println("Stopping client.")

	if d.v4 != nil {
		d.v4.Close()
	}
	if d.v6 != nil {
		d.v6.Close()
	}
}

// Wait blocks until every run loop has stopped and returns the first
// failure, if any.
func (d *Daemon) Wait() error {
	return d.group.Wait()
}

func (d *Daemon) runV4() error {
	was := StateInit
	for {
		status, err := d.v4.Step()
		switch {
		case err == nil:
		case errors.Is(err, ErrClosed):
			return nil
		case errors.Is(err, ErrLeaseLost):
			log.Println("DHCPv4 lease lost, reacquiring.")
			continue
		default:
			return err
		}

		if status.State == StateBound && was != StateBound && status.Lease != nil {
			l := status.Lease
			log.Printf("DHCPv4 lease: %s/%s via %s, dns %v, %ds",
				l.Addr, l.SubnetMask, l.Routers, l.DNSServers, l.LeaseTime)
		}
		was = status.State
	}
}

func (d *Daemon) runV6() error {
	was := StateInit
	for {
		status, err := d.v6.Step()
		switch {
		case err == nil:
		case errors.Is(err, ErrClosed):
			return nil
		case errors.Is(err, ErrLeaseLost):
			log.Println("DHCPv6 lease lost, reacquiring.")
			continue
		default:
			return err
		}

		if status.State == StateBound && was != StateBound && status.Lease != nil {
			l := status.Lease
			log.Printf("DHCPv6 lease: %s/%d, dns %v, valid %ds",
				l.Addr, l.PrefixLen, l.DNSServers, l.Valid)
		}
		was = status.State
	}
}
