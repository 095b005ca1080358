package kademlia

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sameBucketID returns a Key that, XORed against the zero self-id used by
// these tests, always lands in bucket 0: the MSB is set (so the first
// differing bit is bit 0), and the last byte varies so each id is distinct.
func sameBucketID(i int) Key {
	var k Key
	k[0] = 0x80
	k[KeyLen-1] = byte(i)
	return k
}

func sameBucketContact(i int) Contact {
	return NewContact(sameBucketID(i), fmt.Sprintf("127.0.0.1:%d", 10000+i), "net")
}

func containsID(cds []ContactDistance, id Key) bool {
	for _, cd := range cds {
		if cd.Contact.ID.Equal(id) {
			return true
		}
	}
	return false
}

func TestRoutingTableClosestReturnsWhatWasAdded(t *testing.T) {
	self := NewContact(ZeroKey, "127.0.0.1:9999", "net")
	rt := NewRoutingTable(self, 20)

	var added []Contact
	for i := 0; i < 6; i++ {
		c := sameBucketContact(i)
		added = append(added, c)
		rt.Update(c)
	}

	got := rt.Closest(sameBucketID(3), 20)
	require.Len(t, got, 6)
	for _, c := range added {
		assert.True(t, containsID(got, c.ID))
	}
}

func TestRoutingTableIgnoresSelf(t *testing.T) {
	self := NewContact(ZeroKey, "127.0.0.1:9999", "net")
	rt := NewRoutingTable(self, 20)
	rt.Update(self)
	assert.False(t, rt.Contains(self.ID))
}

// Fill a bucket to capacity, then offer a new contact while the head is
// "dead": the head should be evicted and the newcomer inserted.
func TestRoutingTableEvictsDeadHeadAndInsertsNew(t *testing.T) {
	self := NewContact(ZeroKey, "127.0.0.1:9999", "net")
	rt := NewRoutingTable(self, 4)
	rt.SetPingFunc(func(Contact) bool { return false })

	var first Contact
	for i := 0; i < 4; i++ {
		c := sameBucketContact(i)
		if i == 0 {
			first = c
		}
		rt.Update(c)
	}

	newcomer := sameBucketContact(200)
	rt.Update(newcomer)

	got := rt.Closest(sameBucketID(3), 20)
	require.Len(t, got, 4)
	assert.False(t, containsID(got, first.ID), "dead head should have been evicted")
	assert.True(t, containsID(got, newcomer.ID))
}

// Same setup, but the head answers: it should be kept and refreshed, and the
// newcomer should not enter the bucket.
func TestRoutingTableKeepsAliveHeadAndDropsNewcomer(t *testing.T) {
	self := NewContact(ZeroKey, "127.0.0.1:9999", "net")
	rt := NewRoutingTable(self, 4)
	rt.SetPingFunc(func(Contact) bool { return true })

	var first Contact
	for i := 0; i < 4; i++ {
		c := sameBucketContact(i)
		if i == 0 {
			first = c
		}
		rt.Update(c)
	}

	newcomer := sameBucketContact(201)
	rt.Update(newcomer)

	got := rt.Closest(sameBucketID(3), 20)
	require.Len(t, got, 4)
	assert.True(t, containsID(got, first.ID), "alive head should be kept")
	assert.False(t, containsID(got, newcomer.ID), "newcomer should not displace an alive head")
}

func TestRoutingTableUpdateOnExistingContactIsIdempotent(t *testing.T) {
	self := NewContact(ZeroKey, "127.0.0.1:9999", "net")
	rt := NewRoutingTable(self, 4)
	rt.SetPingFunc(func(Contact) bool { return true })

	for i := 0; i < 4; i++ {
		rt.Update(sameBucketContact(i))
	}
	again := sameBucketContact(2)
	rt.Update(again)

	got := rt.Closest(sameBucketID(3), 20)
	assert.Len(t, got, 4)
	assert.True(t, containsID(got, again.ID))
}

func TestRoutingTableRemove(t *testing.T) {
	self := NewContact(ZeroKey, "127.0.0.1:9999", "net")
	rt := NewRoutingTable(self, 20)
	c := sameBucketContact(1)
	rt.Update(c)
	require.True(t, rt.Contains(c.ID))

	rt.Remove(c)
	assert.False(t, rt.Contains(c.ID))
}

// When a full bucket's head survives the bucket-full ping, the newcomer it
// displaced is remembered in the bucket's replacement cache. A later Remove
// of an unrelated member of that same bucket should promote that standby
// into the freed slot rather than leaving the bucket permanently short.
func TestRoutingTableRemovePromotesStandbyFromBucketFullPolicy(t *testing.T) {
	self := NewContact(ZeroKey, "127.0.0.1:9999", "net")
	rt := NewRoutingTable(self, 4)
	rt.SetPingFunc(func(Contact) bool { return true })

	for i := 0; i < 4; i++ {
		rt.Update(sameBucketContact(i))
	}
	standby := sameBucketContact(200)
	rt.Update(standby) // bucket full, head alive: standby goes into the replacement cache

	victim := sameBucketContact(2)
	rt.Remove(victim)

	assert.False(t, rt.Contains(victim.ID))
	assert.True(t, rt.Contains(standby.ID), "standby should be promoted into the slot Remove freed")
}

func TestRoutingTableClosestOrdersByDistance(t *testing.T) {
	self := NewContact(ZeroKey, "127.0.0.1:9999", "net")
	rt := NewRoutingTable(self, 20)
	for i := 0; i < 6; i++ {
		rt.Update(sameBucketContact(i))
	}

	target := sameBucketID(3)
	got := rt.Closest(target, 3)
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].Distance.Less(got[i-1].Distance), "result must be ascending by distance")
	}
}
