// Package transport simulates a lossy, latent network between node
// mailboxes. Sends are scheduled on a deadline min-heap; a dedicated lane
// per destination delivers them one at a time, in deadline order, so two
// sends to the same mailbox can never be reordered no matter how many lanes
// are running concurrently. A semaphore bounds how many lanes may be
// delivering at once, which is what keeps the number of in-flight
// deliveries bounded regardless of send volume.
package transport

import (
	"container/heap"
	"math/rand"
	"sync"
	"time"

	"chainmesh/core/queue"
	"chainmesh/core/status"
)

// DefaultWorkers is the maximum number of deliveries allowed to run
// concurrently across all destination lanes.
const DefaultWorkers = 4

// DeliverFunc is invoked with the raw payload once a scheduled delivery's
// deadline elapses. It runs on a worker goroutine, never on the caller of
// Send.
type DeliverFunc func(data string)

// NetworkParams configures latency and drop behavior. They apply to every
// send issued after SetParams, not to sends already scheduled.
type NetworkParams struct {
	Latency  time.Duration
	DropRate float64
}

// DefaultNetworkParams holds the same latency and drop rate as
// SimulationConfig's defaults. New does not apply it: a Transport starts
// with whatever params are passed to New.
var DefaultNetworkParams = NetworkParams{Latency: 50 * time.Millisecond, DropRate: 0.01}

type scheduledDelivery struct {
	deadline time.Time
	seq      uint64
	to       string
	data     string
}

type deliveryHeap []scheduledDelivery

func (h deliveryHeap) Len() int { return len(h) }
func (h deliveryHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h deliveryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *deliveryHeap) Push(x any)   { *h = append(*h, x.(scheduledDelivery)) }
func (h *deliveryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// lane serializes delivery to a single destination: one goroutine pops its
// queue strictly in FIFO order and blocks on the next delivery until the
// current one's DeliverFunc returns.
type lane struct {
	q *queue.Queue[scheduledDelivery]
}

// Transport delivers string payloads between registered endpoints with
// simulated latency and random drops.
type Transport struct {
	mu        sync.Mutex
	endpoints map[string]DeliverFunc
	params    NetworkParams
	rng       *rand.Rand
	pending   deliveryHeap
	nextSeq   uint64
	closed    bool

	wake chan struct{}
	stop chan struct{}

	lanes  map[string]*lane
	sem    chan struct{}
	laneWG sync.WaitGroup

	wg sync.WaitGroup

	inFlight sync.WaitGroup
}

// New constructs a Transport that allows up to numWorkers deliveries to run
// concurrently, seeded for reproducible drop rolls, and immediately starts
// its scheduler.
func New(seed int64, params NetworkParams, numWorkers int) *Transport {
	if numWorkers <= 0 {
		numWorkers = DefaultWorkers
	}
	t := &Transport{
		endpoints: make(map[string]DeliverFunc),
		params:    params,
		rng:       rand.New(rand.NewSource(seed)),
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		lanes:     make(map[string]*lane),
		sem:       make(chan struct{}, numWorkers),
	}

	t.wg.Add(1)
	go t.scheduleLoop()
	return t
}

// RegisterEndpoint registers deliver as the mailbox for address. Registering
// an address twice fails with InvalidState.
func (t *Transport) RegisterEndpoint(address string, deliver DeliverFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.endpoints[address]; exists {
		return status.New(status.InvalidState, "endpoint already registered")
	}
	t.endpoints[address] = deliver
	return nil
}

// UnregisterEndpoint removes address's mailbox. Unregistering an address
// that was never registered fails with NotFound.
func (t *Transport) UnregisterEndpoint(address string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.endpoints[address]; !exists {
		return status.New(status.NotFound, "endpoint not registered")
	}
	delete(t.endpoints, address)
	return nil
}

// SetParams updates latency and drop rate for sends issued from this point
// on.
func (t *Transport) SetParams(p NetworkParams) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.params = p
}

// Send checks that to is registered, rolls for a random drop, and if
// neither fails, schedules an asynchronous delivery after the configured
// latency. from is accepted for symmetry with the wire contract but is not
// otherwise used by the simulated network.
func (t *Transport) Send(from, to, data string) error {
	t.mu.Lock()
	if _, exists := t.endpoints[to]; !exists {
		t.mu.Unlock()
		return status.New(status.NotFound, "destination endpoint not found")
	}
	dropRate := t.params.DropRate
	latency := t.params.Latency
	roll := t.rng.Float64()
	t.mu.Unlock()

	if roll < dropRate {
		return status.New(status.NetworkDrop, "packet dropped by network")
	}

	t.inFlight.Add(1)
	t.mu.Lock()
	t.nextSeq++
	heap.Push(&t.pending, scheduledDelivery{deadline: time.Now().Add(latency), seq: t.nextSeq, to: to, data: data})
	t.mu.Unlock()
	t.signalWake()
	return nil
}

// getOrCreateLane returns the delivery lane for destination, starting its
// drain goroutine the first time it's needed. Must be called with t.mu held.
func (t *Transport) getOrCreateLane(to string) *lane {
	if ln, ok := t.lanes[to]; ok {
		return ln
	}
	ln := &lane{q: queue.New[scheduledDelivery](0)}
	t.lanes[to] = ln
	t.laneWG.Add(1)
	go t.laneLoop(ln)
	return ln
}

// laneLoop drains one destination's queue strictly in order: the next
// delivery for this destination is never started until the previous one's
// DeliverFunc has returned, which is what guarantees same-destination FIFO
// regardless of how many lanes are delivering elsewhere at once.
func (t *Transport) laneLoop(ln *lane) {
	defer t.laneWG.Done()
	for {
		d, ok := ln.q.WaitPop()
		if !ok {
			return
		}

		t.sem <- struct{}{}
		t.mu.Lock()
		deliver := t.endpoints[d.to]
		t.mu.Unlock()
		if deliver != nil {
			deliver(d.data)
		}
		<-t.sem

		t.inFlight.Done()
	}
}

func (t *Transport) signalWake() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// scheduleLoop pops due deliveries off the heap in deadline (then send)
// order and routes each to its destination's lane. Because due deliveries
// for the same destination are always pushed onto that destination's lane
// in this same order, and the lane drains them one at a time, same-latency
// sends to one mailbox are always delivered FIFO.
func (t *Transport) scheduleLoop() {
	defer t.wg.Done()
	for {
		t.mu.Lock()
		if t.closed && t.pending.Len() == 0 {
			lanes := make([]*lane, 0, len(t.lanes))
			for _, ln := range t.lanes {
				lanes = append(lanes, ln)
			}
			t.mu.Unlock()
			for _, ln := range lanes {
				ln.q.Close()
			}
			t.laneWG.Wait()
			return
		}
		var wait time.Duration
		if t.pending.Len() == 0 {
			wait = time.Hour
		} else {
			wait = time.Until(t.pending[0].deadline)
			if wait < 0 {
				wait = 0
			}
		}
		t.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-t.wake:
			timer.Stop()
		}

		t.mu.Lock()
		var due []scheduledDelivery
		now := time.Now()
		for t.pending.Len() > 0 && !t.pending[0].deadline.After(now) {
			due = append(due, heap.Pop(&t.pending).(scheduledDelivery))
		}
		lns := make([]*lane, len(due))
		for i, d := range due {
			lns[i] = t.getOrCreateLane(d.to)
		}
		t.mu.Unlock()

		for i, d := range due {
			lns[i].q.Push(d)
		}
	}
}

// WaitForPendingDeliveries blocks until every scheduled send has been
// delivered (or its destination removed mid-flight).
func (t *Transport) WaitForPendingDeliveries() {
	t.inFlight.Wait()
}

// Shutdown drains any still-pending deliveries and stops the scheduler and
// every destination lane. Shutdown blocks until every goroutine it started
// has exited.
func (t *Transport) Shutdown() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.signalWake()
	t.wg.Wait()
}
