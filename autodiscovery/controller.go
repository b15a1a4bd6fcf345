/*
File Name:  controller.go
Author:     Eastsea Contributors

Auto-discovery controller: two cooperatively-scheduled loops that carry
addresses through the discovered -> connecting -> connected state
machine. Grounded on the teacher's bootstrap()/autoMulticastBroadcast()
phased-loop functions in Bootstrap.go as the model for "a background
loop on its own ticker, observing a shutdown signal", generalized from
their one-shot phased schedule into the two fixed-interval steady-state
loops this module's specification calls for.

The controller owns its dependencies rather than reaching back into a
shared global, mirroring the no-import-cycle shape already used by the
bootstrap package: Connector is a small interface that the node binary
satisfies with a one-method adapter around the node hub, so this package
never imports it.
*/

package autodiscovery

import (
	"context"
	"net"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kjaylee/eastsea-node-sub000/bootstrap"
	"github.com/kjaylee/eastsea-node-sub000/dht"
	"github.com/kjaylee/eastsea-node-sub000/localdiscovery"
)

// DefaultMaxPeers is the default ceiling on the connected set's size.
const DefaultMaxPeers = 10

// DiscoveryInterval and ConnectionInterval are the two loops' tick
// periods, fixed per spec.
const (
	DiscoveryInterval  = 5 * time.Second
	ConnectionInterval = time.Second
)

// portScanEvery is how many discovery ticks elapse between port-scan
// sweeps (every 10th tick, per spec).
const portScanEvery = 10

// dhtCandidateCount is how many of the routing table's peers closest to
// the local ID each discovery tick gathers.
const dhtCandidateCount = 10

// livenessRequest and livenessReply are the literal ASCII exchange used
// to probe an already-connected peer's reachability.
const (
	livenessRequest = "PING"
	livenessReply   = "PONG"
)

// Connector dials a remote peer through the node hub and reports whether
// a hub session to it already exists. Defined locally so this package
// never imports the node hub package; the hub's Connect returns a session
// as well as an error, so the node binary wraps the hub in a small adapter
// to satisfy this interface.
type Connector interface {
	Connect(ctx context.Context, remote string) error
	IsConnected(remote string) bool
}

// Dialer abstracts net.DialTimeout for the handshake/liveness probes so
// tests can substitute a fake without touching a real socket.
type Dialer func(network, address string, timeout time.Duration) (net.Conn, error)

// Controller runs the discovery and connection loops described in
// spec.md §4.11 against a shared set of candidate sources.
type Controller struct {
	Overlay   *dht.Overlay
	Bootstrap *bootstrap.Client
	Scanner   *localdiscovery.Scanner
	ScanHosts []string
	ScanPorts []int
	Announcer *localdiscovery.BroadcastAnnouncer
	Connector Connector
	MaxPeers  int
	Dial      Dialer

	sets *AddressSets
	tick int
	stop context.CancelFunc
	wg   *errgroup.Group
}

// NewController builds a controller with its own address sets and
// package defaults for anything left unset by the caller.
func NewController() *Controller {
	return &Controller{
		MaxPeers: DefaultMaxPeers,
		Dial:     net.DialTimeout,
		sets:     NewAddressSets(),
	}
}

// Sets exposes the controller's address-set membership, primarily for
// observability and tests.
func (c *Controller) Sets() *AddressSets {
	return c.sets
}

// Run launches the discovery and connection loops as two goroutines
// under a shared errgroup, observing ctx for cancellation. It returns
// immediately; call Stop to cancel and join both loops.
func (c *Controller) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.stop = cancel

	g, gctx := errgroup.WithContext(ctx)
	c.wg = g

	g.Go(func() error { return c.discoveryLoop(gctx) })
	g.Go(func() error { return c.connectionLoop(gctx) })
}

// Stop cancels both loops and blocks until they have returned, within
// the spec's bounded shutdown window (both loops wait on ctx.Done()
// alongside their ticker, and the connection loop also checks it between
// per-address probes, each bounded by the dial timeout).
func (c *Controller) Stop() error {
	if c.stop != nil {
		c.stop()
	}
	if c.wg != nil {
		return c.wg.Wait()
	}
	return nil
}

func (c *Controller) discoveryLoop(ctx context.Context) error {
	ticker := time.NewTicker(DiscoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.tick++
			c.gatherCandidates()
		}
	}
}

// gatherCandidates pulls addresses from every configured source, adds
// each newly-seen one to discovered, and promotes as many as capacity
// allows straight to connecting.
func (c *Controller) gatherCandidates() {
	var candidates []string

	if c.Overlay != nil {
		table := c.Overlay.Table()
		for _, peer := range table.Closest(table.Local(), dhtCandidateCount) {
			candidates = append(candidates, net.JoinHostPort(peer.Address, strconv.Itoa(int(peer.Port))))
		}
	}

	if c.Bootstrap != nil {
		candidates = append(candidates, c.Bootstrap.Seeds...)
	}

	if c.tick%portScanEvery == 0 && c.Scanner != nil {
		candidates = append(candidates, c.Scanner.Scan(c.ScanHosts, c.ScanPorts)...)
	}

	if c.Announcer != nil {
		candidates = append(candidates, c.Announcer.ActivePeers()...)
	}

	for _, addr := range candidates {
		if addr == "" {
			continue
		}
		if c.sets.AddDiscovered(addr) && c.sets.ConnectedCount()+len(c.sets.Connecting()) < c.MaxPeers {
			c.sets.PromoteToConnecting(addr)
		}
	}
}

func (c *Controller) connectionLoop(ctx context.Context) error {
	ticker := time.NewTicker(ConnectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.driveConnecting(ctx)
			c.probeConnected(ctx)
		}
	}
}

// driveConnecting attempts the fixed handshake against every address
// currently in connecting, promoting on success and dropping back to ∅
// on failure.
func (c *Controller) driveConnecting(ctx context.Context) {
	for _, addr := range c.sets.Connecting() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !c.probe(addr, localdiscovery.HandshakeRequest, localdiscovery.HandshakeAck) {
			c.sets.FailConnecting(addr)
			continue
		}

		if c.Connector != nil {
			if err := c.Connector.Connect(ctx, addr); err != nil {
				c.sets.FailConnecting(addr)
				continue
			}
		}

		c.sets.PromoteToConnected(addr)
	}
}

// probeConnected liveness-checks every connected address, removing any
// that no longer answers.
func (c *Controller) probeConnected(ctx context.Context) {
	for _, addr := range c.sets.Connected() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !c.probe(addr, livenessRequest, livenessReply) {
			c.sets.RemoveConnected(addr)
		}
	}
}

// probe dials addr, writes request, and reports whether the reply
// matches want exactly.
func (c *Controller) probe(addr, request, want string) bool {
	conn, err := c.Dial("tcp", addr, localdiscovery.DialTimeout)
	if err != nil {
		return false
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(localdiscovery.DialTimeout))

	if _, err := conn.Write([]byte(request)); err != nil {
		return false
	}

	buf := make([]byte, len(want))
	n, err := conn.Read(buf)
	if err != nil {
		return false
	}

	return string(buf[:n]) == want
}
