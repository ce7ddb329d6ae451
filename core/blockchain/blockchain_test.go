package blockchain

import (
	"testing"

	"chainmesh/core/eventbus"
	"chainmesh/core/ibc"
	"chainmesh/core/metrics"
	"chainmesh/core/status"
	"chainmesh/core/types"
)

func newTestChain(id string) (*Chain, *eventbus.Bus) {
	bus := eventbus.New()
	return New(id, bus, metrics.Noop()), bus
}

func TestGenesisHead(t *testing.T) {
	c, _ := newTestChain("chain-a")
	head := c.Head()
	if head.Header.Height != 0 || head.Header.ChainID != "chain-a" {
		t.Fatalf("unexpected genesis block: %+v", head)
	}
}

func TestAppendBlockRejectsWrongHeight(t *testing.T) {
	c, _ := newTestChain("chain-a")
	err := c.AppendBlock(types.Block{Header: types.BlockHeader{ChainID: "chain-a", Height: 5}})
	if !status.Is(err, status.InvalidState) {
		t.Fatalf("expected InvalidState, got %v", err)
	}
}

func TestAppendBlockPublishesFinalized(t *testing.T) {
	c, bus := newTestChain("chain-a")
	var got eventbus.Event
	bus.Subscribe(eventbus.BlockFinalized, func(e eventbus.Event) { got = e })

	err := c.AppendBlock(types.Block{Header: types.BlockHeader{ChainID: "chain-a", Height: 1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Kind != eventbus.BlockFinalized || got.ChainID != "chain-a" {
		t.Fatalf("expected BlockFinalized event, got %+v", got)
	}
	if c.Head().Header.Height != 1 {
		t.Fatalf("expected head height 1, got %d", c.Head().Header.Height)
	}
}

func TestOpenChannelBindsAndOpens(t *testing.T) {
	c, _ := newTestChain("chain-a")
	if err := c.OpenChannel("port-a", "chan-a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.Router().IsBound("port-a", "chan-a") {
		t.Fatal("expected channel bound in router")
	}
	// Opening an already-bound pair again fails: the router rejects the
	// second Bind before the channel itself is consulted.
	if err := c.OpenChannel("port-a", "chan-a"); err == nil {
		t.Fatal("expected double-bind to surface an error from the router")
	}
}

func TestCloseChannelOnlyUnbindsRouter(t *testing.T) {
	c, _ := newTestChain("chain-a")
	c.OpenChannel("port-a", "chan-a")
	if err := c.CloseChannel("port-a", "chan-a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Router().IsBound("port-a", "chan-a") {
		t.Fatal("expected channel unbound")
	}

	// Closing leaves the channel object itself Open, so sending on it
	// after close still succeeds and issues the first sequence number.
	pkt1, err := c.SendIBC("port-a", "chan-a", "chain-b", "port-b", "chan-b", "x")
	if err != nil {
		t.Fatalf("unexpected error sending after close: %v", err)
	}
	if pkt1.Sequence != 1 {
		t.Fatalf("expected first sequence 1, got %d", pkt1.Sequence)
	}
}

func TestSendIBCPublishesEvent(t *testing.T) {
	c, bus := newTestChain("chain-a")
	var got eventbus.Event
	bus.Subscribe(eventbus.IBCPacketSend, func(e eventbus.Event) { got = e })

	pkt, err := c.SendIBC("port-a", "chan-a", "chain-b", "port-b", "chan-b", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Kind != eventbus.IBCPacketSend {
		t.Fatal("expected IBCPacketSend event")
	}
	decoded, err := ibc.Deserialize(got.Detail)
	if err != nil {
		t.Fatalf("unexpected deserialize error: %v", err)
	}
	if decoded != pkt {
		t.Fatalf("event detail does not match sent packet: got %+v, want %+v", decoded, pkt)
	}
}

func TestOnIBCPacketAutoOpensAndAcks(t *testing.T) {
	c, bus := newTestChain("chain-b")
	var recv, ackSend eventbus.Event
	bus.Subscribe(eventbus.IBCPacketRecv, func(e eventbus.Event) { recv = e })
	bus.Subscribe(eventbus.IBCAckSend, func(e eventbus.Event) { ackSend = e })

	pkt := ibc.Packet{
		Type: ibc.Data, SrcChain: "chain-a", DstChain: "chain-b",
		SrcPort: "port-a", SrcChannel: "chan-a",
		DstPort: "port-b", DstChannel: "chan-b",
		Sequence: 1, Payload: "hi",
	}
	if err := c.OnIBCPacket(pkt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recv.Kind != eventbus.IBCPacketRecv {
		t.Fatal("expected IBCPacketRecv published")
	}
	ack, err := ibc.Deserialize(ackSend.Detail)
	if err != nil {
		t.Fatalf("unexpected error decoding ack: %v", err)
	}
	if ack.Payload != "ack_1" || ack.SrcChain != "chain-b" || ack.DstChain != "chain-a" {
		t.Fatalf("unexpected ack contents: %+v", ack)
	}
}

func TestOnIBCPacketSequenceGapFails(t *testing.T) {
	c, _ := newTestChain("chain-b")
	pkt := ibc.Packet{DstPort: "port-b", DstChannel: "chan-b", Sequence: 2}
	if err := c.OnIBCPacket(pkt); !status.Is(err, status.InvalidState) {
		t.Fatalf("expected InvalidState on sequence gap, got %v", err)
	}
}

func TestRegisterNodeIDDedups(t *testing.T) {
	c, _ := newTestChain("chain-a")
	c.RegisterNodeID("node-1")
	c.RegisterNodeID("node-1")
	c.RegisterNodeID("node-2")
	if len(c.nodeIDs) != 2 {
		t.Fatalf("expected 2 distinct node ids, got %v", c.nodeIDs)
	}
}
