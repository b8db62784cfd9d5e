// Package ledger holds the run-wide record shared by every hydra in a colony:
// profits, clone events, energy history, mutations, votes, pending future
// echoes and per-specialty success statistics.
//
// The ledger is the single source of truth for aggregate statistics. Hydras
// write to it and never keep private totals.
package ledger

import (
	"sort"
	"sync"
)

// EchoCapacity bounds the future-echo ring.
const EchoCapacity = 20

// Clone describes one spawn event.
type Clone struct {
	Depth     int    `json:"depth"`
	Specialty string `json:"specialty"`
}

// Vote is a weighted consensus proposal.
type Vote struct {
	Proposal string  `json:"proposal"`
	Weight   float64 `json:"weight"`
}

// Echo is a pending prediction signal received from the bus.
type Echo struct {
	PredictedProfit float64 `json:"predicted_profit"`
	Horizon         int     `json:"horizon"`
}

// SuccessStats counts pulse outcomes for one specialty.
type SuccessStats struct {
	Success int `json:"success"`
	Fail    int `json:"fail"`
}

// Total returns the number of recorded outcomes.
func (s SuccessStats) Total() int { return s.Success + s.Fail }

// Fraction returns the success fraction, or 0 with no observations.
func (s SuccessStats) Fraction() float64 {
	if s.Total() == 0 {
		return 0
	}
	return float64(s.Success) / float64(s.Total())
}

// Ledger is safe for concurrent readers; the simulation itself is the only writer.
type Ledger struct {
	mu sync.RWMutex

	profits         []float64
	totalProfit     float64
	clones          []Clone
	mutations       int
	energyLog       []int
	maxDepthReached int
	successRate     map[string]*SuccessStats
	votes           []Vote
	echoes          []Echo
	chains          []string
}

// New returns an empty ledger with the initial chain list.
func New() *Ledger {
	return &Ledger{
		successRate: make(map[string]*SuccessStats),
		chains:      []string{"Solana"},
	}
}

// AddProfit appends one profit value.
func (l *Ledger) AddProfit(p float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.profits = append(l.profits, p)
	l.totalProfit += p
}

// RecordClone appends a spawn event and raises the max depth reached.
func (l *Ledger) RecordClone(c Clone) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clones = append(l.clones, c)
	if c.Depth > l.maxDepthReached {
		l.maxDepthReached = c.Depth
	}
}

// AddMutation increments the mutation counter.
func (l *Ledger) AddMutation() {
	l.mu.Lock()
	l.mutations++
	l.mu.Unlock()
}

// LogEnergy appends an energy reading.
func (l *Ledger) LogEnergy(e int) {
	l.mu.Lock()
	l.energyLog = append(l.energyLog, e)
	l.mu.Unlock()
}

// RecordOutcome counts one success or failure for specialty and returns the
// updated statistics.
func (l *Ledger) RecordOutcome(specialty string, success bool) SuccessStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.successRate[specialty]
	if !ok {
		st = &SuccessStats{}
		l.successRate[specialty] = st
	}
	if success {
		st.Success++
	} else {
		st.Fail++
	}
	return *st
}

// CastVote appends a vote.
func (l *Ledger) CastVote(v Vote) {
	l.mu.Lock()
	l.votes = append(l.votes, v)
	l.mu.Unlock()
}

// PushEcho adds a future echo, dropping the oldest once EchoCapacity is reached.
func (l *Ledger) PushEcho(e Echo) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.echoes = append(l.echoes, e)
	if len(l.echoes) > EchoCapacity {
		l.echoes = l.echoes[len(l.echoes)-EchoCapacity:]
	}
}

// LastProfitsSum returns the sum of the last n profits, or 0 when fewer than
// n have been recorded.
func (l *Ledger) LastProfitsSum(n int) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 || len(l.profits) < n {
		return 0
	}
	sum := 0.0
	for _, p := range l.profits[len(l.profits)-n:] {
		sum += p
	}
	return sum
}

// CloneCount returns the number of spawn events so far.
func (l *Ledger) CloneCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.clones)
}

// MaxDepthReached returns the deepest spawn so far.
func (l *Ledger) MaxDepthReached() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.maxDepthReached
}

// Mutations returns the mutation count.
func (l *Ledger) Mutations() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.mutations
}

// Profits returns a copy of the recorded profits.
func (l *Ledger) Profits() []float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]float64(nil), l.profits...)
}

// Clones returns a copy of the spawn events.
func (l *Ledger) Clones() []Clone {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Clone(nil), l.clones...)
}

// EnergyLog returns a copy of the energy readings.
func (l *Ledger) EnergyLog() []int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]int(nil), l.energyLog...)
}

// Votes returns a copy of the votes in insertion order.
func (l *Ledger) Votes() []Vote {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Vote(nil), l.votes...)
}

// Echoes returns a copy of the pending future echoes, oldest first.
func (l *Ledger) Echoes() []Echo {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Echo(nil), l.echoes...)
}

// Stats returns the success statistics for specialty.
func (l *Ledger) Stats(specialty string) SuccessStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if st, ok := l.successRate[specialty]; ok {
		return *st
	}
	return SuccessStats{}
}

// Specialties returns the specialties with recorded outcomes, sorted.
func (l *Ledger) Specialties() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.successRate))
	for name := range l.successRate {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot is a read-only copy of the ledger aggregates.
type Snapshot struct {
	TotalProfit     float64                 `json:"total_profit"`
	ProfitCount     int                     `json:"profit_count"`
	CloneCount      int                     `json:"clone_count"`
	CloneDepths     map[int]int             `json:"clone_depths"`
	MaxDepthReached int                     `json:"max_depth_reached"`
	Mutations       int                     `json:"mutations"`
	EnergyLogLen    int                     `json:"energy_log_len"`
	Votes           []Vote                  `json:"votes"`
	EchoCount       int                     `json:"echo_count"`
	Chains          []string                `json:"chains"`
	Specialties     map[string]SuccessStats `json:"specialties"`
}

// Snapshot copies the current aggregates.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	depths := make(map[int]int)
	for _, c := range l.clones {
		depths[c.Depth]++
	}
	specs := make(map[string]SuccessStats, len(l.successRate))
	for name, st := range l.successRate {
		specs[name] = *st
	}

	return Snapshot{
		TotalProfit:     l.totalProfit,
		ProfitCount:     len(l.profits),
		CloneCount:      len(l.clones),
		CloneDepths:     depths,
		MaxDepthReached: l.maxDepthReached,
		Mutations:       l.mutations,
		EnergyLogLen:    len(l.energyLog),
		Votes:           append([]Vote(nil), l.votes...),
		EchoCount:       len(l.echoes),
		Chains:          append([]string(nil), l.chains...),
		Specialties:     specs,
	}
}
