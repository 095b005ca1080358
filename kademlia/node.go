package kademlia

import (
	"fmt"
	"net"
	"time"

	ethlog "github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
)

// Node is a single Kademlia participant: a routing table, a local key/value
// store, and the RPC transport, plus the request handler that serves
// PING/STORE/FIND_NODE/FIND_VALUE (spec.md §4.5).
//
// Grounded on labs/kademlia/kademlia.go's Kademlia struct; split into
// node.go (C5 handler + lifecycle), lookup.go (C6), and api.go (C7) instead
// of one file, and generalized from fixed alpha/timeout constants to a
// Config.
type Node struct {
	self   Contact
	cfg    Config
	hash   HashFunc
	routes *RoutingTable
	store  *localStore
	rpc    *Rpc
	log    ethlog.Logger

	reqCh <-chan *ReqHandle

	republishStop chan struct{}
	originKeys    *localStore // reuses the same map-with-lock shape to track origin keys -> last known value
}

// NewNode binds bind_addr, starts the RPC transport, and begins serving
// requests. hash is the externally supplied digest contract of spec.md
// §4.1 (e.g. SHA-1 truncated/extended to KeyLen).
func NewNode(cfg Config, hash HashFunc) (*Node, error) {
	nodeID, err := resolveNodeID(cfg.NodeID)
	if err != nil {
		return nil, err
	}
	udpAddr, err := net.ResolveUDPAddr("udp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("kademlia: resolving bind addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("kademlia: binding udp socket: %w", err)
	}

	self := Contact{ID: nodeID, Addr: conn.LocalAddr().String(), NetID: cfg.NetID}
	m := newMetrics()
	rpc, reqCh := Open(conn, self, cfg.Timeout, cfg.MaxMsg, m)

	routes := NewRoutingTable(self, cfg.K)
	routes.SetPingFunc(func(c Contact) bool {
		return rpc.SendReq(c, PingRequest()) != nil
	})

	n := &Node{
		self:          self,
		cfg:           cfg,
		hash:          hash,
		routes:        routes,
		store:         newLocalStore(),
		rpc:           rpc,
		log:           ethlog.New("component", "node", "self", self.ID.String()[:8]),
		reqCh:         reqCh,
		republishStop: make(chan struct{}),
		originKeys:    newLocalStore(),
	}

	go n.serve()
	if cfg.RepublishInterval > 0 {
		go n.republishLoop()
	}
	return n, nil
}

func resolveNodeID(hexID string) (Key, error) {
	if hexID == "" {
		return RandomKey(), nil
	}
	return NewKeyFromHex(hexID)
}

// Self returns this node's own Contact.
func (n *Node) Self() Contact { return n.self }

// Routes exposes the routing table for read-only inspection (tests,
// diagnostics).
func (n *Node) Routes() *RoutingTable { return n.routes }

// MetricsRegistry exposes this node's Prometheus registry, e.g. to serve
// /metrics over HTTP.
func (n *Node) MetricsRegistry() *prometheus.Registry { return n.rpc.Metrics().Registry() }

// Close stops the receiver task and the republish loop, if running.
// In-flight handlers continue to completion; pending requests time out
// normally (spec.md §5).
func (n *Node) Close() error {
	close(n.republishStop)
	return n.rpc.Close()
}

// serve is the request-handler loop: for every inbound ReqHandle, learn the
// sender (spec.md §4.5's passive-learning rule), dispatch, and reply.
// Handlers run concurrently and never hold a lock across the outbound
// Reply call.
func (n *Node) serve() {
	for handle := range n.reqCh {
		go n.handleOne(handle)
	}
}

func (n *Node) handleOne(h *ReqHandle) {
	n.routes.Update(h.Src())

	switch h.Req().Kind {
	case KindPing:
		_ = h.Reply(PongReply())

	case KindStore:
		n.store.Put(h.Req().StoreKey, h.Req().StoreValue)
		_ = h.Reply(PongReply())

	case KindFindNode:
		closest := n.routes.Closest(h.Req().Target, n.cfg.K)
		_ = h.Reply(NodesReply(closest))

	case KindFindValue:
		key := h.Req().FindKey
		if value, ok := n.store.Get(key); ok {
			_ = h.Reply(ValueReply(value))
			return
		}
		target := n.hash(key)
		closest := n.routes.Closest(target, n.cfg.K)
		_ = h.Reply(NodesReply(closest))

	default:
		n.log.Debug("dropping request with unknown kind", "kind", h.Req().Kind)
	}
}

// Bootstrap seeds the routing table with a known peer and then runs a
// self-lookup to populate neighbouring buckets (spec.md §6).
func (n *Node) Bootstrap(peer Contact) error {
	if peer.Addr == "" {
		return fmt.Errorf("kademlia: bootstrap contact has no address")
	}
	n.routes.Update(peer)
	n.LookupNodes(n.self.ID)
	return nil
}

// republishLoop periodically re-replicates every key this node originated
// (SPEC_FULL.md §4.10, an acceptable extension per spec.md §1). Disabled
// unless Config.RepublishInterval is positive.
func (n *Node) republishLoop() {
	ticker := time.NewTicker(n.cfg.RepublishInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n.republishOriginKeys()
		case <-n.republishStop:
			return
		}
	}
}

func (n *Node) republishOriginKeys() {
	for _, key := range n.originKeys.Keys() {
		value, ok := n.originKeys.Get(key)
		if !ok {
			continue
		}
		n.replicateToClosest(key, value)
	}
}
