package kademlia

import "container/list"

// replacementCacheSize bounds how many overflow contacts a full bucket
// remembers as standbys for its least-recently-seen entry.
const replacementCacheSize = 16

// bucket is an ordered sequence of Contact, least-recently-seen at the
// front and most-recently-seen at the back, capacity K. It never holds a
// duplicate id.
//
// Grounded on labs/kademlia/bucket.go's container/list LRU plus a bounded
// replacement cache for contacts that arrived while the bucket was full.
type bucket struct {
	entries *list.List // of Contact, front = least-recently-seen
	cap     int
	repl    []Contact
}

func newBucket(capacity int) *bucket {
	return &bucket{entries: list.New(), cap: capacity}
}

func (b *bucket) len() int { return b.entries.Len() }

func (b *bucket) find(id Key) *list.Element {
	for e := b.entries.Front(); e != nil; e = e.Next() {
		if e.Value.(Contact).ID.Equal(id) {
			return e
		}
	}
	return nil
}

// touch moves an existing contact to the back (most-recently-seen) and
// reports whether it was present.
func (b *bucket) touch(c Contact) bool {
	e := b.find(c.ID)
	if e == nil {
		return false
	}
	e.Value = c
	b.entries.MoveToBack(e)
	return true
}

// tryAppend appends c at the back if the bucket has room, reporting success.
func (b *bucket) tryAppend(c Contact) bool {
	if b.entries.Len() >= b.cap {
		return false
	}
	b.entries.PushBack(c)
	return true
}

// least returns the least-recently-seen (head) contact, if any.
func (b *bucket) least() (Contact, bool) {
	e := b.entries.Front()
	if e == nil {
		return Contact{}, false
	}
	return e.Value.(Contact), true
}

// evictLeastAndAppend drops the head and appends newContact at the back.
// No-op if the bucket is empty.
func (b *bucket) evictLeastAndAppend(newContact Contact) {
	if e := b.entries.Front(); e != nil {
		b.entries.Remove(e)
	}
	b.entries.PushBack(newContact)
}

// remove deletes a contact by id, reporting whether it was present. It
// does not touch the replacement cache; callers that want the freed slot
// backfilled from standbys call promoteReplacement explicitly (the
// bucket-full eviction path in RoutingTable.Update deliberately does not,
// since it has its own newcomer to insert into the freed slot).
func (b *bucket) remove(id Key) bool {
	e := b.find(id)
	if e == nil {
		return false
	}
	b.entries.Remove(e)
	return true
}

// promoteReplacement moves the newest standby out of the replacement cache
// and into the bucket, if there is room and a standby is waiting.
func (b *bucket) promoteReplacement() {
	if len(b.repl) == 0 || b.entries.Len() >= b.cap {
		return
	}
	next := b.repl[len(b.repl)-1]
	b.repl = b.repl[:len(b.repl)-1]
	b.entries.PushBack(next)
}

// addReplacement remembers c as a standby for when a slot frees up, bounded
// and de-duplicated.
func (b *bucket) addReplacement(c Contact) {
	if b.find(c.ID) != nil {
		return
	}
	for _, r := range b.repl {
		if r.ID.Equal(c.ID) {
			return
		}
	}
	if len(b.repl) >= replacementCacheSize {
		copy(b.repl, b.repl[1:])
		b.repl = b.repl[:len(b.repl)-1]
	}
	b.repl = append(b.repl, c)
}

// all returns every contact currently in the bucket, front to back.
func (b *bucket) all() []Contact {
	out := make([]Contact, 0, b.entries.Len())
	for e := b.entries.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(Contact))
	}
	return out
}
