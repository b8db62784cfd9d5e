// Hydra spawning: creates one child under its parent, gated by the spawn
// budget, the parent's energy and the depth limit.
package hydra

import (
	"log/slog"
	"math"

	"github.com/talgya/seraphin/internal/bus"
	"github.com/talgya/seraphin/internal/entropy"
	"github.com/talgya/seraphin/internal/ledger"
)

// Spawn costs.
const (
	CoreSpawnCost     = 30
	BaseSpawnCost     = 30.0
	MinSpawnCost      = 15
	RippleAmount      = 10
	MaxSpawnsPerPulse = 3
)

// Specialty tags.
const (
	RootSpecialty = "root"
	CoreSpecialty = "core"
)

// Specialties is the pool ultimate hydras sample child specialties from.
var Specialties = []string{"arbitrage", "quantum", "narrative", "discovery", "airdrop"}

// SpawnCost returns what h pays to spawn one child. The ultimate model
// charges max(15, 30/energyEfficiency), rounded up to whole energy units.
func (c *Colony) SpawnCost(h *Hydra) int {
	if c.model == ModelCore {
		return CoreSpawnCost
	}
	eff := h.Genes.EnergyEfficiency
	if eff <= 0 {
		return MaxEnergy + 1
	}
	cost := int(math.Ceil(BaseSpawnCost / eff))
	if cost < MinSpawnCost {
		cost = MinSpawnCost
	}
	return cost
}

// Spawn tries to create one child of parent. ok is false when the budget is
// spent, the parent cannot pay the cost, or the parent is at max depth; none
// of these is an error.
func (c *Colony) Spawn(parent *Hydra, specialty string) (child *Hydra, ok bool) {
	if !c.Budget.Available() {
		return nil, false
	}
	cost := c.SpawnCost(parent)
	if parent.Energy <= cost {
		return nil, false
	}
	if parent.Depth >= parent.MaxDepth {
		return nil, false
	}

	parent.setEnergy(parent.Energy - cost)

	genes := parent.Genes
	if c.model == ModelUltimate {
		var mutated bool
		genes, mutated = Inherit(c.src, parent.Genes, MutationRate)
		if mutated {
			c.Ledger.AddMutation()
		}
	}

	child = c.add(&Hydra{
		ParentID:  parent.ID,
		Depth:     parent.Depth + 1,
		MaxDepth:  parent.MaxDepth,
		Energy:    parent.Energy,
		Specialty: specialty,
		Genes:     genes,
	})
	parent.Children = append(parent.Children, child.ID)

	c.Ledger.RecordClone(ledger.Clone{Depth: child.Depth, Specialty: specialty})
	c.Budget.Take()

	if c.model == ModelUltimate {
		c.Bus.Publish(bus.Message{
			Kind:        bus.EnergyRipple,
			Amount:      RippleAmount,
			SourceDepth: child.Depth,
		})
	}

	slog.Debug("hydra spawned",
		"parent", parent.ID,
		"child", child.ID,
		"depth", child.Depth,
		"specialty", specialty,
		"cost", cost,
		"budget", c.Budget.Remaining(),
	)
	return child, true
}

// spawnPlan returns the specialties of the children h will try to spawn this
// pulse: 1–3 untagged attempts in the core model, 3 distinct specialties in
// the ultimate model.
func (c *Colony) spawnPlan(h *Hydra) []string {
	if c.model == ModelCore {
		return make([]string, entropy.IntRange(c.src, 1, MaxSpawnsPerPulse))
	}
	return entropy.Sample(c.src, Specialties, MaxSpawnsPerPulse)
}
