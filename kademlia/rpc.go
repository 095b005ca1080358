package kademlia

import (
	"fmt"
	"net"
	"sync"
	"time"

	ethlog "github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
)

// ReqHandle is an inbound request awaiting exactly one reply: the original
// correlation token, the (address-corrected) source Contact, and the
// parsed Request body (spec.md §4.4).
type ReqHandle struct {
	token Key
	src   Contact
	req   Request

	rpc      *Rpc
	replied  bool
	repliedM sync.Mutex
}

// Token returns the correlation token this handle must reply with.
func (h *ReqHandle) Token() Key { return h.token }

// Src returns the peer that sent this request.
func (h *ReqHandle) Src() Contact { return h.src }

// Req returns the parsed request body.
func (h *ReqHandle) Req() Request { return h.req }

// Reply transmits rep with the original token and src/dst swapped. Calling
// Reply more than once on the same handle is a no-op after the first call,
// giving the exactly-once semantics spec.md §4.4 requires.
func (h *ReqHandle) Reply(rep Reply) error {
	h.repliedM.Lock()
	if h.replied {
		h.repliedM.Unlock()
		return nil
	}
	h.replied = true
	h.repliedM.Unlock()

	env := envelope{
		Token: h.token.String(),
		Src:   toWireContact(h.rpc.self),
		Dst:   toWireContact(h.src),
		Body:  replyToBody(rep),
	}
	return h.rpc.sendEnvelope(env, h.src.Addr)
}

// Rpc is the connectionless, token-correlated, timeout-bounded request/
// reply transport of spec.md §4.4, built over a *net.UDPConn.
//
// Grounded on labs/kademlia/network.go's inflight-map-plus-readLoop shape;
// generalized from a fixed PING/FIND_NODE message set to the full tagged
// Request/Reply/Kill union, and extended with a per-peer gobreaker circuit
// breaker and Prometheus counters per SPEC_FULL.md §4.9.
type Rpc struct {
	conn    *net.UDPConn
	self    Contact
	timeout time.Duration
	maxLen  int
	metrics *metrics
	log     ethlog.Logger

	pendingMu sync.Mutex
	pending   map[Key]chan *Reply

	breakersMu sync.Mutex
	breakers   map[Key]*gobreaker.CircuitBreaker[*Reply]

	reqCh    chan *ReqHandle
	stopped  chan struct{}
	stopOnce sync.Once
}

// Open takes over the already-bound conn, starts the receiver task, and returns the transport
// handle plus the stream of inbound ReqHandles. self.NetID gates which
// peers this node will exchange messages with.
func Open(conn *net.UDPConn, self Contact, timeout time.Duration, maxLen int, m *metrics) (*Rpc, <-chan *ReqHandle) {
	if m == nil {
		m = newMetrics()
	}
	r := &Rpc{
		conn:     conn,
		self:     self,
		timeout:  timeout,
		maxLen:   maxLen,
		metrics:  m,
		log:      ethlog.New("component", "rpc", "self", self.ID.String()[:8]),
		pending:  make(map[Key]chan *Reply),
		breakers: make(map[Key]*gobreaker.CircuitBreaker[*Reply]),
		reqCh:    make(chan *ReqHandle),
		stopped:  make(chan struct{}),
	}
	go r.readLoop()
	return r, r.reqCh
}

// Metrics exposes the per-transport Prometheus registry.
func (r *Rpc) Metrics() *metrics { return r.metrics }

// Close stops the receiver task. In-flight handlers and pending requests
// are unaffected; pending requests still resolve via their own timeouts.
func (r *Rpc) Close() error {
	r.stopOnce.Do(func() { close(r.stopped) })
	return r.conn.Close()
}

func (r *Rpc) sendEnvelope(env envelope, addr string) error {
	dst, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	b, err := env.marshal(r.maxLen)
	if err != nil {
		return err
	}
	_, err = r.conn.WriteToUDP(b, dst)
	return err
}

func (r *Rpc) breakerFor(id Key) *gobreaker.CircuitBreaker[*Reply] {
	r.breakersMu.Lock()
	defer r.breakersMu.Unlock()
	if cb, ok := r.breakers[id]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[*Reply](gobreaker.Settings{
		Name:        id.String(),
		MaxRequests: 1,
		Timeout:     r.timeout * 10,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	r.breakers[id] = cb
	return cb
}

// SendReq allocates a fresh correlation token, registers it, transmits the
// request, arms a T_timeout timer, and returns the reply or nil if no
// reply arrived in time. A send failure, and a peer whose breaker has
// tripped open, are surfaced the same way: as a nil reply, so the caller
// never distinguishes "peer never got it" from "peer didn't answer"
// (spec.md §7).
func (r *Rpc) SendReq(dst Contact, req Request) *Reply {
	traceID := uuid.New()
	cb := r.breakerFor(dst.ID)

	result, err := cb.Execute(func() (*Reply, error) {
		rep := r.sendReqOnce(dst, req, traceID)
		if rep == nil {
			return nil, errRPCTimeout
		}
		return rep, nil
	})
	if err != nil {
		r.log.Debug("rpc failed", "trace", traceID, "peer", dst.ID.String()[:8], "err", err)
		return nil
	}
	return result
}

var errRPCTimeout = fmt.Errorf("kademlia: rpc timed out")

func (r *Rpc) sendReqOnce(dst Contact, req Request, traceID uuid.UUID) *Reply {
	token := r.freshToken()
	sink := make(chan *Reply, 1)

	r.pendingMu.Lock()
	r.pending[token] = sink
	r.pendingMu.Unlock()
	r.metrics.pendingRequests.Inc()
	defer r.metrics.pendingRequests.Dec()

	env := envelope{
		Token: token.String(),
		Src:   toWireContact(r.self),
		Dst:   toWireContact(dst),
		Body:  requestToBody(req),
	}
	r.log.Debug("rpc send", "trace", traceID, "kind", req.Kind, "to", dst.Addr)
	if err := r.sendEnvelope(env, dst.Addr); err != nil {
		r.log.Debug("rpc send failed, treating as timeout", "trace", traceID, "err", err)
		r.removePending(token)
		return nil
	}

	timer := time.AfterFunc(r.timeout, func() {
		select {
		case sink <- nil:
		default:
		}
		r.removePending(token)
	})
	defer timer.Stop()

	rep := <-sink
	if rep == nil {
		r.metrics.rpcTimeouts.Inc()
	}
	return rep
}

func (r *Rpc) removePending(token Key) {
	r.pendingMu.Lock()
	delete(r.pending, token)
	r.pendingMu.Unlock()
}

// freshToken draws a random Key and redraws on collision against the
// currently pending set (spec.md §4.3).
func (r *Rpc) freshToken() Key {
	for {
		token := RandomKey()
		r.pendingMu.Lock()
		_, taken := r.pending[token]
		r.pendingMu.Unlock()
		if !taken {
			return token
		}
	}
}

func (r *Rpc) readLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, srcAddr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		env, err := unmarshalEnvelope(append([]byte(nil), buf[:n]...), r.maxLen)
		if err != nil {
			r.metrics.decodeErrors.Inc()
			if err == errMessageTooLarge {
				r.log.Warn("dropping oversize datagram", "len", n, "max", r.maxLen)
			} else {
				r.log.Debug("dropping undecodable datagram", "err", err)
			}
			continue
		}
		r.handleEnvelope(env, srcAddr)
	}
}

func (r *Rpc) handleEnvelope(env envelope, srcAddr *net.UDPAddr) {
	src, err := env.Src.toContact()
	if err != nil {
		r.metrics.decodeErrors.Inc()
		return
	}
	// Defeat address spoofing: the observed datagram source always wins
	// over whatever the envelope body claimed.
	src.Addr = srcAddr.String()

	if src.NetID != r.self.NetID {
		r.metrics.droppedMessages.WithLabelValues("net_mismatch").Inc()
		r.log.Debug("dropping cross-network message", "their_net", src.NetID)
		return
	}

	dst, err := env.Dst.toContact()
	if err != nil {
		r.metrics.decodeErrors.Inc()
		return
	}
	if !dst.ID.Equal(r.self.ID) {
		r.metrics.droppedMessages.WithLabelValues("misrouted").Inc()
		r.log.Debug("dropping misrouted message", "intended_for", dst.ID.String()[:8])
		return
	}

	token, err := NewKeyFromHex(env.Token)
	if err != nil {
		r.metrics.decodeErrors.Inc()
		return
	}

	switch env.Body.Kind {
	case KindKill:
		r.log.Info("received kill, stopping receiver")
		_ = r.Close()

	case KindPong, KindNodes, KindValue:
		rep, err := bodyToReply(env.Body)
		if err != nil {
			r.metrics.decodeErrors.Inc()
			return
		}
		r.pendingMu.Lock()
		sink, ok := r.pending[token]
		if ok {
			delete(r.pending, token)
		}
		r.pendingMu.Unlock()
		if !ok {
			r.metrics.unsolicitedReply.Inc()
			r.log.Debug("dropping unsolicited reply", "token", token.String()[:8])
			return
		}
		select {
		case sink <- &rep:
		default:
		}

	default:
		req, err := bodyToRequest(env.Body)
		if err != nil {
			r.metrics.decodeErrors.Inc()
			return
		}
		handle := &ReqHandle{token: token, src: src, req: req, rpc: r}
		select {
		case r.reqCh <- handle:
		case <-r.stopped:
		}
	}
}

// SendKill transmits a Kill envelope to dst, instructing its receiver task
// to stop.
func (r *Rpc) SendKill(dst Contact) error {
	env := envelope{
		Token: RandomKey().String(),
		Src:   toWireContact(r.self),
		Dst:   toWireContact(dst),
		Body:  body{Kind: KindKill},
	}
	return r.sendEnvelope(env, dst.Addr)
}
