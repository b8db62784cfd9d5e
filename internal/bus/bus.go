// Package bus implements the consciousness bus: a shared, non-blocking signal
// queue that hydras publish to on spawn or prediction and drain at the start
// of every pulse.
package bus

import "sync"

// Kind identifies a bus message type.
type Kind uint8

const (
	EnergyRipple Kind = iota // Spawn side effect: boosts energy of whoever drains it
	FutureEcho               // Deep-hydra profit prediction
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case EnergyRipple:
		return "energy_ripple"
	case FutureEcho:
		return "future_echo"
	default:
		return "unknown"
	}
}

// Message is one pending signal. Fields not relevant to Kind are zero.
type Message struct {
	Kind            Kind    `json:"kind"`
	Amount          int     `json:"amount,omitempty"`
	SourceDepth     int     `json:"source_depth,omitempty"`
	PredictedProfit float64 `json:"predicted_profit,omitempty"`
	Horizon         int     `json:"horizon,omitempty"`
}

// Bus is an unbounded queue. Every message is consumed at most once.
type Bus struct {
	mu        sync.Mutex
	pending   []Message
	published uint64
	consumed  uint64
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{}
}

// Publish enqueues msg. It never blocks.
func (b *Bus) Publish(msg Message) {
	b.mu.Lock()
	b.pending = append(b.pending, msg)
	b.published++
	b.mu.Unlock()
}

// TryReceive pops the oldest pending message. ok is false when the bus is
// empty, which is the normal end of a drain.
func (b *Bus) TryReceive() (msg Message, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 {
		return Message{}, false
	}
	msg = b.pending[0]
	b.pending[0] = Message{}
	b.pending = b.pending[1:]
	b.consumed++
	return msg, true
}

// Drain hands every pending message to fn and returns how many were consumed.
func (b *Bus) Drain(fn func(Message)) int {
	n := 0
	for {
		msg, ok := b.TryReceive()
		if !ok {
			return n
		}
		fn(msg)
		n++
	}
}

// Len returns the number of pending messages.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Stats returns lifetime publish and consume counts.
func (b *Bus) Stats() (published, consumed uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.published, b.consumed
}
