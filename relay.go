package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-version"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"

	"github.com/cwsl/ultron/adif"
	"github.com/cwsl/ultron/qso"
	"github.com/cwsl/ultron/wsjtx"
)

// maxDatagram is the largest UDP payload we accept.
const maxDatagram = 64 * 1024

// ListenUDP binds the relay socket with SO_REUSEADDR and SO_REUSEPORT so
// other listeners can share the port. A multicast listen address is joined
// on the configured interface and on loopback.
func ListenUDP(cfg RelayConfig) (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp4", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve listen address %q: %w", cfg.Listen, err)
	}

	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
					sockErr = fmt.Errorf("failed to set SO_REUSEADDR: %w", err)
					return
				}
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
					sockErr = fmt.Errorf("failed to set SO_REUSEPORT: %w", err)
				}
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	conn, err := lc.ListenPacket(context.Background(), "udp4", addr.String())
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	udpConn := conn.(*net.UDPConn)

	if addr.IP.IsMulticast() {
		joinMulticast(udpConn, addr, cfg.Interface)
	}
	return udpConn, nil
}

func joinMulticast(conn *net.UDPConn, addr *net.UDPAddr, ifaceName string) {
	p := ipv4.NewPacketConn(conn)
	group := &net.UDPAddr{IP: addr.IP}

	var iface *net.Interface
	if ifaceName != "" {
		var err error
		if iface, err = net.InterfaceByName(ifaceName); err != nil {
			log.Printf("Relay: Warning: interface %s not found: %v", ifaceName, err)
		}
	}
	if err := p.JoinGroup(iface, group); err != nil {
		log.Printf("Relay: Warning: failed to join multicast group %s: %v", addr.IP, err)
	}
	if err := p.SetMulticastLoopback(true); err != nil && DebugMode {
		log.Printf("Relay: failed to enable multicast loopback: %v", err)
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return
	}
	for i := range ifaces {
		if ifaces[i].Flags&net.FlagLoopback == 0 || ifaces[i].Flags&net.FlagUp == 0 {
			continue
		}
		if err := p.JoinGroup(&ifaces[i], group); err != nil && DebugMode {
			log.Printf("Relay: failed to join multicast group on %s: %v", ifaces[i].Name, err)
		}
		break
	}
}

// Relay owns the UDP socket. It forwards every datagram downstream, feeds
// decoded messages to the engine and sends the engine's replies back to the
// client that sent the datagram.
type Relay struct {
	cfg     RelayConfig
	conn    *net.UDPConn
	engine  *qso.Engine
	decoder *wsjtx.Decoder
	sink    EventSink
	clock   func() time.Time
	minPeer *version.Version

	fwdConn *net.UDPConn
	forward chan []byte

	// receive goroutine only
	peer     *net.UDPAddr
	grid     string
	lastTick time.Time
	peers    map[string]string

	wg sync.WaitGroup
}

// RelayOptions carries the optional collaborators of a relay.
type RelayOptions struct {
	Sink           EventSink
	StationGrid    string
	MinPeerVersion string
	Clock          func() time.Time
}

// NewRelay serves conn. The forward socket is opened immediately; an empty
// cfg.Forward disables forwarding.
func NewRelay(cfg RelayConfig, conn *net.UDPConn, engine *qso.Engine, decoder *wsjtx.Decoder, opts RelayOptions) (*Relay, error) {
	r := &Relay{
		cfg:     cfg,
		conn:    conn,
		engine:  engine,
		decoder: decoder,
		sink:    opts.Sink,
		clock:   opts.Clock,
		grid:    opts.StationGrid,
		peers:   make(map[string]string),
	}
	if r.sink == nil {
		r.sink = Sinks(nil)
	}
	if r.clock == nil {
		r.clock = time.Now
	}
	if r.cfg.PollIntervalMs <= 0 {
		r.cfg.PollIntervalMs = 1000
	}
	if opts.MinPeerVersion != "" {
		v, err := version.NewVersion(opts.MinPeerVersion)
		if err != nil {
			return nil, fmt.Errorf("%w: min_peer_version %q: %v", ErrConfig, opts.MinPeerVersion, err)
		}
		r.minPeer = v
	}

	if cfg.Forward != "" {
		addr, err := net.ResolveUDPAddr("udp", cfg.Forward)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve forward address %q: %w", cfg.Forward, err)
		}
		if r.fwdConn, err = net.DialUDP("udp", nil, addr); err != nil {
			return nil, fmt.Errorf("failed to open forward socket: %w", err)
		}
		size := cfg.ForwardQueue
		if size <= 0 {
			size = 256
		}
		r.forward = make(chan []byte, size)
	}
	return r, nil
}

// Run receives until ctx is cancelled or the socket fails. Cancelling ctx
// closes the socket.
func (r *Relay) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		r.wg.Wait()
	}()

	if r.forward != nil {
		r.wg.Add(1)
		go r.forwardLoop(ctx)
	}
	go func() {
		<-ctx.Done()
		r.conn.Close()
	}()

	log.Printf("Relay: listening on %s, forwarding to %s", r.conn.LocalAddr(), r.forwardTarget())

	poll := r.cfg.PollInterval()
	buf := make([]byte, maxDatagram)
	for {
		if err := r.conn.SetReadDeadline(time.Now().Add(poll)); err != nil && ctx.Err() == nil {
			log.Printf("Relay: failed to set read deadline: %v", err)
		}
		n, from, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				r.tick(r.clock(), true)
				continue
			}
			log.Printf("Relay: read error: %v", err)
			continue
		}

		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		now := r.clock()
		r.HandlePacket(pkt, from, now)
		r.tick(now, false)
	}
}

func (r *Relay) forwardTarget() string {
	if r.fwdConn == nil {
		return "nowhere"
	}
	return r.fwdConn.RemoteAddr().String()
}

func (r *Relay) forwardLoop(ctx context.Context) {
	defer r.wg.Done()
	defer r.fwdConn.Close()

	// a missing downstream listener fails every write; log transitions only
	failing := false
	for {
		select {
		case <-ctx.Done():
			return
		case pkt := <-r.forward:
			_, err := r.fwdConn.Write(pkt)
			switch {
			case err != nil && (!failing || DebugMode):
				log.Printf("Relay: forward to %s failed: %v", r.fwdConn.RemoteAddr(), err)
				failing = true
			case err == nil && failing:
				log.Printf("Relay: forwarding to %s resumed", r.fwdConn.RemoteAddr())
				failing = false
			}
		}
	}
}

// enqueueForward never blocks; a full queue drops the datagram.
func (r *Relay) enqueueForward(pkt []byte) {
	if r.forward == nil {
		return
	}
	select {
	case r.forward <- pkt:
	default:
		r.sink.Dropped(DropForwardFull, nil)
	}
}

// tick runs engine housekeeping on every poll timeout and at least once
// per poll interval under continuous traffic.
func (r *Relay) tick(now time.Time, force bool) {
	if !force && now.Sub(r.lastTick) < r.cfg.PollInterval() {
		return
	}
	r.lastTick = now
	r.send(r.engine.Tick(now), r.peer)
}

// HandlePacket forwards pkt and dispatches it by message type.
func (r *Relay) HandlePacket(pkt []byte, from *net.UDPAddr, now time.Time) {
	r.enqueueForward(pkt)

	h, err := wsjtx.DecodeHeader(pkt)
	if err != nil {
		r.drop(err)
		return
	}
	if from != nil {
		r.peer = from
	}

	switch h.Type {
	case wsjtx.TypeHeartbeat:
		hb, err := r.decoder.DecodeHeartbeat(pkt)
		if err != nil {
			r.drop(err)
			return
		}
		r.checkPeer(hb)

	case wsjtx.TypeStatus:
		st, err := r.decoder.DecodeStatus(pkt)
		if err != nil {
			r.drop(err)
			return
		}
		if st.DEGrid != "" {
			r.grid = st.DEGrid
		}
		actions := r.engine.HandleStatus(st, now)
		r.sink.Status(st)
		r.send(actions, from)

	case wsjtx.TypeDecode:
		d, err := r.decoder.DecodeDecode(pkt)
		if err != nil {
			r.drop(err)
			return
		}
		// an invalid sender still yields a decision for display
		decision, _ := r.engine.HandleDecode(qso.SignalFromDecode(d), now)
		r.sink.Decision(NewDecisionEvent(decision, r.grid))
		r.send(decision.Actions, from)

	case wsjtx.TypeLoggedADIF:
		l, err := r.decoder.DecodeLoggedADIF(pkt)
		if err != nil {
			r.drop(err)
			return
		}
		records := adif.ParseString(l.ADIF)
		log.Printf("Relay: %s logged %d contact(s)", l.ID, len(records))
		r.send(r.engine.HandleLoggedADIF(records, now), from)

	default:
		r.sink.Dropped(DropUnsupported, fmt.Errorf("%s message from %s", h.Type, h.Vendor()))
	}
}

func (r *Relay) drop(err error) {
	reason := DropMalformed
	if errors.Is(err, wsjtx.ErrDecodeFieldOverrun) {
		reason = DropOverrun
	}
	r.sink.Dropped(reason, err)
}

// send writes actions to addr. Without an address (no packet seen yet)
// the actions are logged and discarded.
func (r *Relay) send(actions []qso.Action, addr *net.UDPAddr) {
	for _, a := range actions {
		r.sink.Action(a)
		if addr == nil {
			log.Printf("Relay: no client address, %s for %s not sent", a.Kind, a.Call)
			continue
		}
		if _, err := r.conn.WriteToUDP(a.Encode(), addr); err != nil {
			log.Printf("Relay: failed to send %s to %s: %v", a.Kind, addr, err)
		}
	}
}

// checkPeer logs each client once per version and warns about versions
// older than the configured minimum.
func (r *Relay) checkPeer(hb *wsjtx.Heartbeat) {
	if r.peers[hb.ID] == hb.Version {
		return
	}
	r.peers[hb.ID] = hb.Version
	log.Printf("Relay: client %s (%s) version %s %s, schema %d", hb.ID, hb.Header.Vendor(), hb.Version, hb.Revision, hb.MaxSchema)

	if r.minPeer == nil {
		return
	}
	v, err := version.NewVersion(hb.Version)
	if err != nil {
		if DebugMode {
			log.Printf("Relay: cannot parse client version %q: %v", hb.Version, err)
		}
		return
	}
	if v.LessThan(r.minPeer) {
		log.Printf("Relay: Warning: client %s version %s is older than %s", hb.ID, v, r.minPeer)
	}
}
