package types

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeMessageKind tags the payload carried inside a NodeMessage. Block and
// IBC frames are reserved: a Node accepts and no-ops on them today, but the
// wire format and dispatch switch already branch on them so a future
// implementation does not need to change the envelope.
type NodeMessageKind int

const (
	KindBlock NodeMessageKind = iota
	KindTransaction
	KindIBC
	KindUnknown
)

func (k NodeMessageKind) String() string {
	switch k {
	case KindBlock:
		return "block"
	case KindTransaction:
		return "tx"
	case KindIBC:
		return "ibc"
	default:
		return "unknown"
	}
}

// NodeMessage is the envelope a Transport delivers between mailboxes. Bytes
// holds the kind-specific payload (a Transaction frame, a serialized
// IBCPacket, ...); it is opaque to the transport and only the receiving
// Node interprets it.
type NodeMessage struct {
	FromAddress string
	Kind        NodeMessageKind
	Bytes       string
}

// EncodeNodeMessage renders msg as "fromAddress|kind|bytes". Bytes is never
// escaped: only the first two pipes are delimiters, so an embedded pipe in
// the payload passes through untouched.
func EncodeNodeMessage(msg NodeMessage) string {
	return fmt.Sprintf("%s|%d|%s", msg.FromAddress, int(msg.Kind), msg.Bytes)
}

// DecodeNodeMessage parses a frame built by EncodeNodeMessage.
func DecodeNodeMessage(frame string) (NodeMessage, error) {
	p1 := strings.IndexByte(frame, '|')
	if p1 < 0 {
		return NodeMessage{}, fmt.Errorf("types: malformed node message")
	}
	rest := frame[p1+1:]
	p2 := strings.IndexByte(rest, '|')
	if p2 < 0 {
		return NodeMessage{}, fmt.Errorf("types: malformed node message")
	}
	p2 += p1 + 1

	kindInt, err := strconv.Atoi(frame[p1+1 : p2])
	if err != nil {
		return NodeMessage{}, fmt.Errorf("types: malformed node message kind: %w", err)
	}

	return NodeMessage{
		FromAddress: frame[:p1],
		Kind:        NodeMessageKind(kindInt),
		Bytes:       frame[p2+1:],
	}, nil
}
