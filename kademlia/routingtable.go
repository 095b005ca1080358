package kademlia

import (
	"sort"
	"sync"

	ethlog "github.com/ethereum/go-ethereum/log"
)

// RoutingTable is the bucketed nearest-neighbour index described in
// spec.md §3/§4.2: one Bucket per prefix length, bucket[i] holding only
// peers whose distance from self has prefix i.
//
// Grounded on labs/kademlia/routingtable.go's single-lock, snapshot-then-
// ping bucket-full policy; generalized to an injectable PingFunc and a
// configurable bucket size K instead of the fixed bucketSize constant.
type RoutingTable struct {
	self Contact
	k    int

	mu      sync.Mutex
	buckets [NumBuckets]*bucket

	// ping probes a candidate's liveness when its target bucket is full.
	// Invoked with the table's lock released; must not be nil once wired.
	ping func(Contact) bool

	log ethlog.Logger
}

// NewRoutingTable builds an empty table for self with bucket capacity k.
func NewRoutingTable(self Contact, k int) *RoutingTable {
	rt := &RoutingTable{
		self: self,
		k:    k,
		log:  ethlog.New("component", "routingtable", "self", self.ID.String()[:8]),
	}
	for i := range rt.buckets {
		rt.buckets[i] = newBucket(k)
	}
	return rt
}

// SetPingFunc wires the liveness probe the bucket-full policy uses. Must be
// called once, before the table sees contention, typically right after the
// owning node's transport is up.
func (rt *RoutingTable) SetPingFunc(ping func(Contact) bool) {
	rt.mu.Lock()
	rt.ping = ping
	rt.mu.Unlock()
}

func (rt *RoutingTable) bucketIndex(id Key) int {
	return XOR(rt.self.ID, id).Prefix()
}

// Update records peer as seen: refreshes it to the tail if already present,
// appends it if there is room, or runs the bucket-full policy (spec.md
// §4.2) otherwise. Self is silently ignored and never stored in any bucket.
func (rt *RoutingTable) Update(peer Contact) {
	if peer.ID.Equal(rt.self.ID) {
		return
	}
	idx := rt.bucketIndex(peer.ID)

	rt.mu.Lock()
	b := rt.buckets[idx]
	if b.touch(peer) {
		rt.mu.Unlock()
		return
	}
	if b.tryAppend(peer) {
		rt.mu.Unlock()
		return
	}
	least, ok := b.least()
	rt.mu.Unlock()
	if !ok {
		// Bucket reported full but has no head; nothing sane to do.
		return
	}

	// Bucket-full policy: ping the head OUTSIDE the lock, then re-apply the
	// decision under the lock. The head may have changed in the meantime;
	// only act if it is still there.
	alive := rt.ping != nil && rt.ping(least)

	rt.mu.Lock()
	defer rt.mu.Unlock()
	b = rt.buckets[idx]
	if alive {
		// Head is reliable: keep it, refresh it to the tail, and remember
		// the newcomer in case a slot frees up later.
		b.touch(least)
		b.addReplacement(peer)
		rt.log.Debug("bucket full, head alive, dropping newcomer", "bucket", idx, "head", least.ID.String()[:8])
		return
	}
	b.remove(least.ID)
	b.tryAppend(peer)
	rt.log.Debug("bucket full, head unresponsive, evicted", "bucket", idx, "evicted", least.ID.String()[:8])
}

// Remove deletes peer from its bucket, e.g. after a typed RPC wrapper
// (spec.md §4.7) concludes it is unresponsive or misbehaving. If the
// removal frees a slot, the newest standby waiting in the bucket's
// replacement cache (populated by the bucket-full policy in Update) is
// promoted into it, so a removal outside the bucket-full path doesn't
// leave the bucket short until some unrelated peer happens to Update.
func (rt *RoutingTable) Remove(peer Contact) {
	if peer.ID.Equal(rt.self.ID) {
		return
	}
	idx := rt.bucketIndex(peer.ID)
	rt.mu.Lock()
	defer rt.mu.Unlock()
	b := rt.buckets[idx]
	if b.remove(peer.ID) {
		b.promoteReplacement()
	}
}

// Closest returns up to count peers minimising distance to target, sorted
// ascending by distance. It scans outward from bucket[prefix(target)] and
// returns the same result set a full linear scan would (spec.md §4.2):
// every contact in that bucket is closer to target than any other contact;
// the buckets above it come next, taken together because they are not
// ordered among themselves; the buckets below it get strictly farther as
// the index drops, so the scan stops once count candidates are gathered.
func (rt *RoutingTable) Closest(target Key, count int) []ContactDistance {
	if count <= 0 {
		return nil
	}
	rt.mu.Lock()
	idx := rt.bucketIndex(target)
	candidates := make([]ContactDistance, 0, count*2)
	collect := func(i int) {
		for _, c := range rt.buckets[i].all() {
			candidates = append(candidates, ContactDistance{Contact: c, Distance: XOR(c.ID, target)})
		}
	}
	collect(idx)
	if len(candidates) < count {
		for i := idx + 1; i < NumBuckets; i++ {
			collect(i)
		}
	}
	for i := idx - 1; i >= 0 && len(candidates) < count; i-- {
		collect(i)
	}
	rt.mu.Unlock()

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Distance.Less(candidates[j].Distance)
	})
	if len(candidates) > count {
		candidates = candidates[:count]
	}
	return candidates
}

// Contains reports whether id is currently tracked in any bucket.
func (rt *RoutingTable) Contains(id Key) bool {
	idx := rt.bucketIndex(id)
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.buckets[idx].find(id) != nil
}
