package kademlia

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContact() Contact {
	return NewContact(RandomKey(), "127.0.0.1:9001", "testnet")
}

func TestEnvelopeRoundTripPing(t *testing.T) {
	env := envelope{
		Token: RandomKey().String(),
		Src:   toWireContact(testContact()),
		Dst:   toWireContact(testContact()),
		Body:  requestToBody(PingRequest()),
	}
	raw, err := env.marshal(MaxMessageLen)
	require.NoError(t, err)

	got, err := unmarshalEnvelope(raw, MaxMessageLen)
	require.NoError(t, err)
	assert.Equal(t, env.Token, got.Token)
	assert.Equal(t, KindPing, got.Body.Kind)
}

func TestEnvelopeRoundTripFindNode(t *testing.T) {
	target := RandomKey()
	env := envelope{
		Token: RandomKey().String(),
		Src:   toWireContact(testContact()),
		Dst:   toWireContact(testContact()),
		Body:  requestToBody(FindNodeRequest(target)),
	}
	raw, err := env.marshal(MaxMessageLen)
	require.NoError(t, err)

	got, err := unmarshalEnvelope(raw, MaxMessageLen)
	require.NoError(t, err)
	req, err := bodyToRequest(got.Body)
	require.NoError(t, err)
	assert.True(t, req.Target.Equal(target))
}

func TestEnvelopeRoundTripNodesReply(t *testing.T) {
	nodes := []ContactDistance{
		{Contact: testContact(), Distance: XOR(RandomKey(), RandomKey())},
		{Contact: testContact(), Distance: XOR(RandomKey(), RandomKey())},
	}
	env := envelope{
		Token: RandomKey().String(),
		Src:   toWireContact(testContact()),
		Dst:   toWireContact(testContact()),
		Body:  replyToBody(NodesReply(nodes)),
	}
	raw, err := env.marshal(MaxMessageLen)
	require.NoError(t, err)

	got, err := unmarshalEnvelope(raw, MaxMessageLen)
	require.NoError(t, err)
	rep, err := bodyToReply(got.Body)
	require.NoError(t, err)
	require.Len(t, rep.Nodes, 2)
	assert.True(t, rep.Nodes[0].Contact.ID.Equal(nodes[0].Contact.ID))
}

func TestEnvelopeRoundTripValueReply(t *testing.T) {
	env := envelope{
		Token: RandomKey().String(),
		Src:   toWireContact(testContact()),
		Dst:   toWireContact(testContact()),
		Body:  replyToBody(ValueReply("hello world")),
	}
	raw, err := env.marshal(MaxMessageLen)
	require.NoError(t, err)

	got, err := unmarshalEnvelope(raw, MaxMessageLen)
	require.NoError(t, err)
	rep, err := bodyToReply(got.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello world", rep.Value)
}

func TestEnvelopeMarshalRejectsOversizeMessage(t *testing.T) {
	env := envelope{
		Token: RandomKey().String(),
		Src:   toWireContact(testContact()),
		Dst:   toWireContact(testContact()),
		Body:  replyToBody(ValueReply(strings.Repeat("x", 64))),
	}
	_, err := env.marshal(16) // absurdly small budget
	assert.ErrorIs(t, err, errMessageTooLarge)
}

func TestUnmarshalEnvelopeRejectsOversizeMessage(t *testing.T) {
	env := envelope{
		Token: RandomKey().String(),
		Src:   toWireContact(testContact()),
		Dst:   toWireContact(testContact()),
		Body:  requestToBody(PingRequest()),
	}
	raw, err := env.marshal(MaxMessageLen)
	require.NoError(t, err)

	_, err = unmarshalEnvelope(raw, len(raw)-1)
	assert.ErrorIs(t, err, errMessageTooLarge)
}

func TestUnmarshalEnvelopeRejectsGarbage(t *testing.T) {
	_, err := unmarshalEnvelope([]byte("not json"), MaxMessageLen)
	assert.Error(t, err)
}

func TestBodyToRequestRejectsReplyKind(t *testing.T) {
	_, err := bodyToRequest(body{Kind: KindPong})
	assert.Error(t, err)
}

func TestBodyToReplyRejectsRequestKind(t *testing.T) {
	_, err := bodyToReply(body{Kind: KindPing})
	assert.Error(t, err)
}
