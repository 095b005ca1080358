package kademlia

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MaxMessageLen bounds a serialised envelope: a longer inbound datagram is
// dropped with a warning rather than processed, and marshal refuses to
// produce a longer one (spec.md §4.3).
const MaxMessageLen = 8 * 1024

// BodyKind tags the closed sum of envelope bodies: Kill, one of the four
// Request variants, or one of the three Reply variants.
//
// Grounded on labs/kademlia/wire.go's msgType enum, generalized to cover
// the full Request/Reply/Kill union spec.md §3 describes rather than just
// PING/FIND_NODE.
type BodyKind string

const (
	KindKill      BodyKind = "KILL"
	KindPing      BodyKind = "PING"
	KindStore     BodyKind = "STORE"
	KindFindNode  BodyKind = "FIND_NODE"
	KindFindValue BodyKind = "FIND_VALUE"
	KindPong      BodyKind = "PONG"
	KindNodes     BodyKind = "NODES"
	KindValue     BodyKind = "VALUE"
)

// wireContact is Contact's on-the-wire shape; the field names are the
// stable envelope contract, independent of the in-memory struct's field
// names or layout.
type wireContact struct {
	ID    string `json:"id"`
	Addr  string `json:"addr"`
	NetID string `json:"net_id"`
}

func toWireContact(c Contact) wireContact {
	return wireContact{ID: c.ID.String(), Addr: c.Addr, NetID: c.NetID}
}

func (w wireContact) toContact() (Contact, error) {
	id, err := NewKeyFromHex(w.ID)
	if err != nil {
		return Contact{}, fmt.Errorf("kademlia: decoding contact id: %w", err)
	}
	return Contact{ID: id, Addr: w.Addr, NetID: w.NetID}, nil
}

// wireNodeDistance is a (NodeInfo, Distance) pair as carried in a Nodes
// reply.
type wireNodeDistance struct {
	Contact  wireContact `json:"contact"`
	Distance string      `json:"distance"`
}

// body is the tagged union of everything an envelope can carry: Kill, a
// Request, or a Reply. Only the optional fields that belong to Kind are
// populated (none for PING/PONG/KILL, both store fields for STORE). A flat, exhaustively-switched struct is used instead of
// an interface{} body so the codec stays a single json.Marshal/Unmarshal
// round trip with no registry of concrete types.
type body struct {
	Kind BodyKind `json:"kind"`

	// Request payloads.
	StoreKey   string `json:"store_key,omitempty"`
	StoreValue string `json:"store_value,omitempty"`
	Target     string `json:"target,omitempty"`
	FindKey    string `json:"find_key,omitempty"`

	// Reply payloads.
	Nodes []wireNodeDistance `json:"nodes,omitempty"`
	Value string             `json:"value,omitempty"`
}

// envelope is the wire record of spec.md §3: a correlation token, source
// and destination NodeInfo, and a tagged body.
type envelope struct {
	Token string      `json:"token"`
	Src   wireContact `json:"src"`
	Dst   wireContact `json:"dst"`
	Body  body        `json:"body"`
}

var errMessageTooLarge = errors.New("kademlia: message exceeds configured maximum length")

func (e envelope) marshal(maxLen int) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	if len(b) > maxLen {
		return nil, errMessageTooLarge
	}
	return b, nil
}

func unmarshalEnvelope(raw []byte, maxLen int) (envelope, error) {
	if len(raw) > maxLen {
		return envelope{}, errMessageTooLarge
	}
	var e envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return envelope{}, err
	}
	return e, nil
}

// --- Request/Reply: the in-memory tagged variants handlers and callers use ---

// Request is the closed sum of inbound request payloads.
type Request struct {
	Kind BodyKind

	StoreKey   string
	StoreValue string
	Target     Key
	FindKey    string
}

func PingRequest() Request { return Request{Kind: KindPing} }
func StoreRequestMsg(key, value string) Request {
	return Request{Kind: KindStore, StoreKey: key, StoreValue: value}
}
func FindNodeRequest(target Key) Request  { return Request{Kind: KindFindNode, Target: target} }
func FindValueRequest(key string) Request { return Request{Kind: KindFindValue, FindKey: key} }

// Reply is the closed sum of reply payloads. FindValue replies use either
// Nodes or Value, never both.
type Reply struct {
	Kind  BodyKind
	Nodes []ContactDistance
	Value string
}

func PongReply() Reply                         { return Reply{Kind: KindPong} }
func NodesReply(nodes []ContactDistance) Reply { return Reply{Kind: KindNodes, Nodes: nodes} }
func ValueReply(value string) Reply            { return Reply{Kind: KindValue, Value: value} }

func requestToBody(r Request) body {
	switch r.Kind {
	case KindPing:
		return body{Kind: KindPing}
	case KindStore:
		return body{Kind: KindStore, StoreKey: r.StoreKey, StoreValue: r.StoreValue}
	case KindFindNode:
		return body{Kind: KindFindNode, Target: r.Target.String()}
	case KindFindValue:
		return body{Kind: KindFindValue, FindKey: r.FindKey}
	default:
		return body{Kind: r.Kind}
	}
}

func bodyToRequest(b body) (Request, error) {
	switch b.Kind {
	case KindPing:
		return Request{Kind: KindPing}, nil
	case KindStore:
		return Request{Kind: KindStore, StoreKey: b.StoreKey, StoreValue: b.StoreValue}, nil
	case KindFindNode:
		target, err := NewKeyFromHex(b.Target)
		if err != nil {
			return Request{}, err
		}
		return Request{Kind: KindFindNode, Target: target}, nil
	case KindFindValue:
		return Request{Kind: KindFindValue, FindKey: b.FindKey}, nil
	default:
		return Request{}, fmt.Errorf("kademlia: not a request kind: %s", b.Kind)
	}
}

func replyToBody(r Reply) body {
	switch r.Kind {
	case KindPong:
		return body{Kind: KindPong}
	case KindNodes:
		out := make([]wireNodeDistance, 0, len(r.Nodes))
		for _, cd := range r.Nodes {
			out = append(out, wireNodeDistance{Contact: toWireContact(cd.Contact), Distance: cd.Distance.String()})
		}
		return body{Kind: KindNodes, Nodes: out}
	case KindValue:
		return body{Kind: KindValue, Value: r.Value}
	default:
		return body{Kind: r.Kind}
	}
}

func bodyToReply(b body) (Reply, error) {
	switch b.Kind {
	case KindPong:
		return Reply{Kind: KindPong}, nil
	case KindNodes:
		nodes := make([]ContactDistance, 0, len(b.Nodes))
		for _, wn := range b.Nodes {
			c, err := wn.Contact.toContact()
			if err != nil {
				return Reply{}, err
			}
			var d Distance
			db, err := decodeDistanceHex(wn.Distance)
			if err != nil {
				return Reply{}, err
			}
			d = db
			nodes = append(nodes, ContactDistance{Contact: c, Distance: d})
		}
		return Reply{Kind: KindNodes, Nodes: nodes}, nil
	case KindValue:
		return Reply{Kind: KindValue, Value: b.Value}, nil
	default:
		return Reply{}, fmt.Errorf("kademlia: not a reply kind: %s", b.Kind)
	}
}

func decodeDistanceHex(s string) (Distance, error) {
	k, err := NewKeyFromHex(s)
	return Distance(k), err
}
