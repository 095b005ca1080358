package kademlia

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeyFromHexRoundTrip(t *testing.T) {
	k := RandomKey()
	parsed, err := NewKeyFromHex(k.String())
	require.NoError(t, err)
	assert.True(t, k.Equal(parsed))
}

func TestNewKeyFromHexRejectsWrongLength(t *testing.T) {
	_, err := NewKeyFromHex("aabb")
	assert.Error(t, err)
}

func TestNewKeyFromHexRejectsNonHex(t *testing.T) {
	bad := "zz112233445566778899aabbccddeeff0011223"
	_, err := NewKeyFromHex(bad)
	assert.Error(t, err)
}

func TestKeyLess(t *testing.T) {
	var a, b Key
	a[0] = 1
	b[0] = 2
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.False(t, a.Less(a))
}

func TestXORIsZeroForEqualKeys(t *testing.T) {
	k := RandomKey()
	d := XOR(k, k)
	assert.True(t, d.IsZero())
}

func TestXORIsSymmetric(t *testing.T) {
	a, b := RandomKey(), RandomKey()
	assert.Equal(t, XOR(a, b), XOR(b, a))
}

// Prefix must return NumBuckets-1 for the zero distance (and, by the same
// indexing, for a distance whose only set bit is the last one), and must scan
// most-significant-byte-first, most-significant-bit-first within a byte. A
// once-dead implementation's empty `for j := 8; j < 0; j++` loop always fell
// through to this terminal case for every distance, routing every peer into
// the last bucket regardless of actual distance.
func TestDistancePrefixZero(t *testing.T) {
	var d Distance
	assert.Equal(t, NumBuckets-1, d.Prefix())
}

func TestDistancePrefixMSBFirstByte(t *testing.T) {
	var d Distance
	d[0] = 0x80 // bit 0 set: first byte, first bit
	assert.Equal(t, 0, d.Prefix())
}

func TestDistancePrefixWithinByte(t *testing.T) {
	var d Distance
	d[0] = 0x01 // first byte, last (8th) bit
	assert.Equal(t, 7, d.Prefix())
}

func TestDistancePrefixSecondByte(t *testing.T) {
	var d Distance
	d[1] = 0x40 // second byte, second bit -> bucket 9
	assert.Equal(t, 9, d.Prefix())
}

func TestDistancePrefixSkipsLeadingZeroBytes(t *testing.T) {
	var d Distance
	d[KeyLen-1] = 0x01 // only the very last bit set
	assert.Equal(t, NumBuckets-1, d.Prefix())
}
