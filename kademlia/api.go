package kademlia

// Put implements spec.md §4.8: store locally (mirroring the teacher's
// storeLocal), then resolve the K closest peers to H(key) via LookupNodes
// and fire-and-forget a Store(key, value) to each in parallel. It marks
// key as an origin key so the (opt-in) republisher will keep re-placing it
// as closer nodes join later.
func (n *Node) Put(key, value string) {
	n.store.Put(key, value)
	n.originKeys.Put(key, value)
	n.replicateToClosest(key, value)
}

func (n *Node) replicateToClosest(key, value string) {
	target := n.hash(key)
	closest := n.LookupNodes(target)
	for _, cd := range closest {
		cd := cd
		go n.rpc.SendReq(cd.Contact, StoreRequestMsg(key, value))
	}
}

// Get implements spec.md §4.8: return the value from the local store if
// this node holds it; otherwise run LookupValue and return what it found.
// The opportunistic caching store at the closest non-holding responder
// happens inside LookupValue itself (spec.md §4.6 step 5), so a local hit
// caches nothing.
func (n *Node) Get(key string) (value string, found bool) {
	if v, ok := n.store.Get(key); ok {
		return v, true
	}
	v, found, _ := n.LookupValue(key)
	return v, found
}

// Ping is the typed RPC wrapper for a bare liveness check, used directly
// by callers (e.g. the CLI) outside of any lookup.
func (n *Node) Ping(dst Contact) bool {
	rep := n.rpc.SendReq(dst, PingRequest())
	if rep == nil || rep.Kind != KindPong {
		n.routes.Remove(dst)
		return false
	}
	n.routes.Update(dst)
	return true
}
