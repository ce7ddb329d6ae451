// Package ibc implements a minimal inter-chain messaging layer: packets,
// per-port/channel sequencing, and demultiplexing of inbound packets to
// bound channels.
package ibc

import (
	"strconv"
	"strings"

	"chainmesh/core/status"
)

// PacketType distinguishes a data packet from its acknowledgement.
type PacketType int

const (
	Data PacketType = iota
	Ack
)

// Packet is a single IBC message in flight between two chains. Sequence is
// assigned by the sending channel and is per (srcPort, srcChannel).
type Packet struct {
	Type       PacketType
	SrcChain   string
	DstChain   string
	SrcPort    string
	SrcChannel string
	DstPort    string
	DstChannel string
	Sequence   uint64
	Payload    string
}

// Serialize renders pkt as a pipe-delimited frame:
// type|srcChain|dstChain|srcPort|srcChan|dstPort|dstChan|seq|payload
// Every string field is escaped so an embedded '|' or '\' cannot be mistaken
// for a delimiter.
func Serialize(pkt Packet) string {
	fields := []string{
		strconv.Itoa(int(pkt.Type)),
		escape(pkt.SrcChain),
		escape(pkt.DstChain),
		escape(pkt.SrcPort),
		escape(pkt.SrcChannel),
		escape(pkt.DstPort),
		escape(pkt.DstChannel),
		strconv.FormatUint(pkt.Sequence, 10),
		escape(pkt.Payload),
	}
	return strings.Join(fields, "|")
}

// Deserialize parses a frame produced by Serialize. It fails if the frame
// does not split into exactly 9 fields or if the type/sequence fields are
// not integers.
func Deserialize(frame string) (Packet, error) {
	parts := split(frame, '|')
	if len(parts) != 9 {
		return Packet{}, status.New(status.Serialization, "malformed packet frame")
	}

	typeInt, err := strconv.Atoi(parts[0])
	if err != nil {
		return Packet{}, status.New(status.Serialization, "malformed packet type")
	}
	seq, err := strconv.ParseUint(parts[7], 10, 64)
	if err != nil {
		return Packet{}, status.New(status.Serialization, "malformed packet sequence")
	}

	return Packet{
		Type:       PacketType(typeInt),
		SrcChain:   unescape(parts[1]),
		DstChain:   unescape(parts[2]),
		SrcPort:    unescape(parts[3]),
		SrcChannel: unescape(parts[4]),
		DstPort:    unescape(parts[5]),
		DstChannel: unescape(parts[6]),
		Sequence:   seq,
		Payload:    unescape(parts[8]),
	}, nil
}

func escape(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '|':
			b.WriteString(`\|`)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

func unescape(s string) string {
	var b strings.Builder
	escaped := false
	for _, c := range s {
		if escaped {
			b.WriteRune(c)
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// split breaks s on delimiter, treating a backslash-escaped delimiter as
// literal. The backslash and the escaped character are both kept in the
// returned field verbatim; callers unescape each field separately.
func split(s string, delimiter byte) []string {
	var result []string
	var current strings.Builder
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			current.WriteByte(c)
			escaped = false
		case c == '\\':
			escaped = true
			current.WriteByte(c)
		case c == delimiter:
			result = append(result, current.String())
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}
	result = append(result, current.String())
	return result
}
