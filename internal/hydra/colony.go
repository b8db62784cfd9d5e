package hydra

import (
	"github.com/talgya/seraphin/internal/bus"
	"github.com/talgya/seraphin/internal/entropy"
	"github.com/talgya/seraphin/internal/ledger"
	"github.com/talgya/seraphin/internal/quantum"
)

// Unbounded disables the spawn budget.
const Unbounded = -1

// DefaultBudget is the ultimate model's spawn budget per run.
const DefaultBudget = 5000

// Budget caps spawn events across a whole run. It never goes negative.
type Budget struct {
	remaining int
}

// NewBudget returns a budget of n spawns, or an unbounded one when n is
// Unbounded.
func NewBudget(n int) *Budget {
	if n < 0 {
		n = Unbounded
	}
	return &Budget{remaining: n}
}

// Available reports whether at least one spawn may still happen.
func (b *Budget) Available() bool {
	return b.remaining == Unbounded || b.remaining > 0
}

// Take consumes one spawn. It returns false once the budget is exhausted.
func (b *Budget) Take() bool {
	if b.remaining == Unbounded {
		return true
	}
	if b.remaining <= 0 {
		return false
	}
	b.remaining--
	return true
}

// Remaining returns the spawns left, or Unbounded.
func (b *Budget) Remaining() int { return b.remaining }

// ColonyConfig holds the per-run rule switches.
type ColonyConfig struct {
	Model Model
	// Forced enables the quantum-inspired short circuit for deep or
	// "complex" hydras (ultimate model only).
	Forced bool
	// Budget is the spawn budget. 0 selects the model default; Unbounded
	// disables it.
	Budget int
}

// Colony is the explicit run context every hydra operation goes through. It
// owns the arena of all hydras plus the shared ledger, budget and bus.
type Colony struct {
	model  Model
	forced bool

	Ledger    *ledger.Ledger
	Budget    *Budget
	Bus       *bus.Bus
	Optimizer quantum.Optimizer

	src   entropy.Source
	arena []*Hydra
}

// NewColony creates an empty colony. A nil optimizer selects the fallback.
func NewColony(cfg ColonyConfig, src entropy.Source, opt quantum.Optimizer) *Colony {
	if opt == nil {
		opt = quantum.NewFallback(src)
	}
	return &Colony{
		model:     cfg.Model,
		forced:    cfg.Forced,
		Ledger:    ledger.New(),
		Budget:    NewBudget(budgetFor(cfg)),
		Bus:       bus.New(),
		Optimizer: opt,
		src:       src,
	}
}

func budgetFor(cfg ColonyConfig) int {
	if cfg.Budget != 0 {
		return cfg.Budget
	}
	if cfg.Model == ModelCore {
		return Unbounded
	}
	return DefaultBudget
}

// Model returns the colony's rule set.
func (c *Colony) Model() Model { return c.model }

// Forced reports whether forced mode is on.
func (c *Colony) Forced() bool { return c.forced }

// NewRoot adds a depth-0 hydra with full energy and founder genes.
func (c *Colony) NewRoot(maxDepth int) *Hydra {
	specialty := RootSpecialty
	if c.model == ModelCore {
		specialty = CoreSpecialty
	}
	return c.add(&Hydra{
		ParentID:  NoParent,
		Depth:     0,
		MaxDepth:  maxDepth,
		Energy:    RootEnergy,
		Specialty: specialty,
		Genes:     DefaultGenes(),
	})
}

func (c *Colony) add(h *Hydra) *Hydra {
	h.ID = HydraID(len(c.arena))
	c.arena = append(c.arena, h)
	return h
}

// Get returns the hydra with id, or nil.
func (c *Colony) Get(id HydraID) *Hydra {
	if id < 0 || int(id) >= len(c.arena) {
		return nil
	}
	return c.arena[id]
}

// Len returns the number of hydras ever created.
func (c *Colony) Len() int { return len(c.arena) }

// Walk visits every hydra in creation order until fn returns false.
func (c *Colony) Walk(fn func(*Hydra) bool) {
	for _, h := range c.arena {
		if !fn(h) {
			return
		}
	}
}
