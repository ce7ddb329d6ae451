package ibc

import (
	"testing"

	"chainmesh/core/status"
)

func TestOpenThenReopenFails(t *testing.T) {
	c := NewChannel("chain-a", "port-a", "chan-a")
	if err := c.Open(); err != nil {
		t.Fatalf("unexpected error opening: %v", err)
	}
	if err := c.Open(); !status.Is(err, status.InvalidState) {
		t.Fatalf("expected InvalidState reopening, got %v", err)
	}
}

func TestOpenAfterCloseFails(t *testing.T) {
	c := NewChannel("chain-a", "port-a", "chan-a")
	c.Open()
	c.Close()
	if err := c.Open(); !status.Is(err, status.ChannelClosed) {
		t.Fatalf("expected ChannelClosed, got %v", err)
	}
}

func TestMakePacketRequiresOpen(t *testing.T) {
	c := NewChannel("chain-a", "port-a", "chan-a")
	if _, err := c.MakePacket("chain-b", "port-b", "chan-b", "x"); !status.Is(err, status.InvalidState) {
		t.Fatalf("expected InvalidState before open, got %v", err)
	}
}

func TestMakePacketIncrementsSequence(t *testing.T) {
	c := NewChannel("chain-a", "port-a", "chan-a")
	c.Open()
	p1, err := c.MakePacket("chain-b", "port-b", "chan-b", "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p2, _ := c.MakePacket("chain-b", "port-b", "chan-b", "y")
	if p1.Sequence != 1 || p2.Sequence != 2 {
		t.Fatalf("expected sequences 1,2, got %d,%d", p1.Sequence, p2.Sequence)
	}
}

func TestAcceptPacketRejectsClosed(t *testing.T) {
	c := NewChannel("chain-a", "port-a", "chan-a")
	if err := c.AcceptPacket(Packet{Sequence: 1}); !status.Is(err, status.ChannelClosed) {
		t.Fatalf("expected ChannelClosed, got %v", err)
	}
}

func TestAcceptPacketRejectsSequenceGapAndDuplicate(t *testing.T) {
	c := NewChannel("chain-a", "port-a", "chan-a")
	c.Open()
	if err := c.AcceptPacket(Packet{Sequence: 2}); !status.Is(err, status.InvalidState) {
		t.Fatalf("expected InvalidState on gap, got %v", err)
	}
	if err := c.AcceptPacket(Packet{Sequence: 1}); err != nil {
		t.Fatalf("unexpected error accepting first packet: %v", err)
	}
	if err := c.AcceptPacket(Packet{Sequence: 1}); !status.Is(err, status.InvalidState) {
		t.Fatalf("expected InvalidState on duplicate, got %v", err)
	}
}
