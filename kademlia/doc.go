// Package kademlia implements a Kademlia distributed hash table node:
// routing table, iterative lookup, and a UDP request/reply transport.
//
// Layout
//
//	key.go            Key/Distance, XOR metric, prefix (C1)
//	contact.go        NodeInfo (Contact)
//	bucket.go         LRU bucket with a bounded replacement cache
//	routingtable.go   RoutingTable, bucket-full ping/evict policy (C2)
//	message.go        wire envelope + tagged Request/Reply/Kill codec (C3)
//	rpc.go            RPC transport: PendingTable, timeouts, breaker (C4)
//	store.go          local key/value store
//	node.go           request handler + lifecycle (C5)
//	lookup.go         iterative lookup, alpha-bounded via errgroup (C6)
//	api.go            Put/Get (C7)
//	config.go         Config, YAML loading (C8)
//	metrics.go        Prometheus counters/gauges (C9)
//	cli.go            interactive REPL over a live Node (C10)
//
// A node is built with NewNode, given a Config and the external hash
// contract (spec.md §4.1). Bootstrap joins a known peer and seeds the
// routing table with a self-lookup. Put/Get are the public key/value API;
// LookupNodes/LookupValue are the lower-level iterative search primitives
// they're built on.
package kademlia
