// Pulse: one discrete step of hydra activity. A pulse may spawn children,
// and each new child runs its own full pulse before its parent tries the next
// spawn. The descent uses an explicit stack of frames instead of recursion.
package hydra

import (
	"fmt"
	"math"
	"strings"

	"github.com/talgya/seraphin/internal/bus"
	"github.com/talgya/seraphin/internal/entropy"
	"github.com/talgya/seraphin/internal/ledger"
)

// Profit ranges and epigenetic constants.
const (
	CoreProfitMin     = 500.0
	CoreProfitMax     = 6000.0
	UltimateProfitMin = 500.0
	UltimateProfitMax = 8000.0

	SuccessThreshold   = 3000.0
	EpigeneticMinTotal = 5 // feedback starts above this many observations
	EpigeneticBase     = 0.2
	EpigeneticGain     = 0.4

	EchoMinDepth  = 8
	EchoChance    = 0.2
	EchoProfitMin = 5000.0
	EchoProfitMax = 20000.0
	EchoHorizon   = 100

	VoteChance = 0.05
	VoteWindow = 10

	CloneThrottle  = 3000
	ThrottleFactor = 0.9

	ForcedMinDepth   = 5
	ForcedMarker     = "complex"
	ForcedComplexity = 16
)

// Energy regeneration and decay ranges, inclusive.
const (
	IdleRegenMin   = 10
	IdleRegenMax   = 25
	ParentDeltaMin = 5
	ParentDeltaMax = 15
)

// Proposals is the fixed consensus proposal set.
var Proposals = []string{"boost_narrative", "deep_quantum", "switch_chain"}

// PulseResult summarizes one hydra's pulse. It is informational only.
type PulseResult struct {
	ID        HydraID `json:"id"`
	Depth     int     `json:"depth"`
	Specialty string  `json:"specialty"`
	Profit    float64 `json:"profit"`
	Energy    int     `json:"energy"`
	Forced    bool    `json:"forced"`
	Spawned   int     `json:"spawned"`
}

// String renders the result the way the console log shows it.
func (r PulseResult) String() string {
	if r.Forced {
		return fmt.Sprintf("[Depth %d] QUANTUM-INSPIRED +%.2f USDC", r.Depth, r.Profit)
	}
	label := r.Specialty
	if label == "" {
		label = fmt.Sprintf("#%d", r.ID)
	}
	return fmt.Sprintf("[Depth %d] %s +%.2f USDC | Energy: %d%%", r.Depth, label, r.Profit, r.Energy)
}

type stage uint8

const (
	stageStart stage = iota
	stageSpawning
)

// frame is a suspended pulse: where its hydra is in the step sequence and
// which spawn attempts remain.
type frame struct {
	id     HydraID
	stage  stage
	plan   []string
	next   int
	result PulseResult
}

// Pulse runs one step for hydra id, including the complete pulses of any
// children it spawns, and returns id's own summary.
func (c *Colony) Pulse(id HydraID) PulseResult {
	stack := []frame{{id: id}}
	for {
		top := &stack[len(stack)-1]
		h := c.arena[top.id]

		switch top.stage {
		case stageStart:
			if c.begin(h, top) {
				// Forced pulses skip spawning and the energy cycle.
				res := top.result
				stack = stack[:len(stack)-1]
				if len(stack) == 0 {
					return res
				}
				continue
			}
			top.stage = stageSpawning

		case stageSpawning:
			if top.next < len(top.plan) {
				specialty := top.plan[top.next]
				top.next++
				if child, ok := c.Spawn(h, specialty); ok {
					top.result.Spawned++
					stack = append(stack, frame{id: child.ID})
				}
				continue
			}
			c.finish(h, &top.result)
			res := top.result
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return res
			}
		}
	}
}

// begin runs the steps before spawning. It returns true when the pulse was
// short-circuited by forced mode.
func (c *Colony) begin(h *Hydra, f *frame) bool {
	f.result = PulseResult{ID: h.ID, Depth: h.Depth, Specialty: h.Specialty}
	ultimate := c.model == ModelUltimate

	if ultimate {
		c.drainBus(h)

		if c.forced && (h.Depth > ForcedMinDepth || strings.Contains(strings.ToLower(h.Specialty), ForcedMarker)) {
			profit := float64(c.Optimizer.Optimize(ForcedComplexity))
			c.Ledger.AddProfit(profit)
			f.result.Profit = profit
			f.result.Energy = h.Energy
			f.result.Forced = true
			h.assertInvariants()
			return true
		}
	}

	var profit float64
	if ultimate {
		profit = round2(entropy.Uniform(c.src, UltimateProfitMin, UltimateProfitMax) * h.Genes.ProfitMult)
	} else {
		profit = round2(entropy.Uniform(c.src, CoreProfitMin, CoreProfitMax))
	}
	c.Ledger.AddProfit(profit)
	f.result.Profit = profit

	if ultimate {
		c.learn(h, profit)
		c.emitEcho(h)
		c.maybeVote()

		if c.Ledger.CloneCount() > CloneThrottle {
			h.Genes.SpawnRate *= ThrottleFactor
		}
	}

	if entropy.Chance(c.src, c.spawnChance(h)) {
		f.plan = c.spawnPlan(h)
	}
	return false
}

// drainBus consumes every pending signal into h.
func (c *Colony) drainBus(h *Hydra) {
	c.Bus.Drain(func(msg bus.Message) {
		switch msg.Kind {
		case bus.EnergyRipple:
			h.setEnergy(h.Energy + msg.Amount/(h.Depth+1))
		case bus.FutureEcho:
			c.Ledger.PushEcho(ledger.Echo{PredictedProfit: msg.PredictedProfit, Horizon: msg.Horizon})
		}
	})
}

// learn records the pulse outcome for h's specialty and, once enough
// outcomes exist, rewrites h's spawn rate from the success fraction.
func (c *Colony) learn(h *Hydra, profit float64) {
	stats := c.Ledger.RecordOutcome(h.Specialty, profit > SuccessThreshold)
	if stats.Total() > EpigeneticMinTotal {
		h.Genes.SpawnRate = EpigeneticBase + EpigeneticGain*stats.Fraction()
	}
}

func (c *Colony) emitEcho(h *Hydra) {
	if h.Depth <= EchoMinDepth || !entropy.Chance(c.src, EchoChance) {
		return
	}
	c.Bus.Publish(bus.Message{
		Kind:            bus.FutureEcho,
		PredictedProfit: entropy.Uniform(c.src, EchoProfitMin, EchoProfitMax),
		Horizon:         EchoHorizon,
		SourceDepth:     h.Depth,
	})
}

func (c *Colony) maybeVote() {
	if !entropy.Chance(c.src, VoteChance) {
		return
	}
	c.Ledger.CastVote(ledger.Vote{
		Proposal: entropy.Pick(c.src, Proposals),
		Weight:   c.Ledger.LastProfitsSum(VoteWindow),
	})
}

func (c *Colony) spawnChance(h *Hydra) float64 {
	if c.model == ModelCore {
		return float64(h.Energy) / MaxEnergy * 0.5
	}
	return h.Genes.SpawnRate
}

// finish applies the energy cycle and logs the resulting energy. Hydras
// without children regenerate; parents regenerate less (core) or decay
// (ultimate).
func (c *Colony) finish(h *Hydra, r *PulseResult) {
	switch {
	case len(h.Children) == 0:
		h.setEnergy(h.Energy + entropy.IntRange(c.src, IdleRegenMin, IdleRegenMax))
	case c.model == ModelCore:
		h.setEnergy(h.Energy + entropy.IntRange(c.src, ParentDeltaMin, ParentDeltaMax))
	default:
		h.setEnergy(h.Energy - entropy.IntRange(c.src, ParentDeltaMin, ParentDeltaMax))
	}
	h.assertInvariants()
	c.Ledger.LogEnergy(h.Energy)
	r.Energy = h.Energy
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
