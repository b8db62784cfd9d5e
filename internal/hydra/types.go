// Package hydra provides the self-replicating entity model: gene sets, hydra
// nodes held in a colony arena, the spawn operation and the pulse step.
package hydra

import (
	"fmt"
	"strings"
)

// HydraID indexes a hydra in its colony arena.
type HydraID int

// NoParent marks the root hydra.
const NoParent HydraID = -1

// Model selects the rule set a colony runs under.
type Model uint8

const (
	ModelCore     Model = iota // Energy-gated recursion only
	ModelUltimate              // Genes, epigenetics, bus, consensus, spawn budget
)

// String returns the model's config name.
func (m Model) String() string {
	switch m {
	case ModelCore:
		return "core"
	case ModelUltimate:
		return "ultimate"
	default:
		return fmt.Sprintf("model(%d)", m)
	}
}

// ParseModel accepts "core"/"basic" and "ultimate"/"advanced".
func ParseModel(s string) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "core", "basic":
		return ModelCore, nil
	case "ultimate", "advanced", "":
		return ModelUltimate, nil
	default:
		return 0, fmt.Errorf("unknown model %q (valid: core, ultimate)", s)
	}
}

// Energy bounds.
const (
	MinEnergy  = 0
	MaxEnergy  = 100
	RootEnergy = 100
)

// Hydra is one node of the self-similar tree. Children are owned exclusively
// by their parent and only ever appended.
type Hydra struct {
	ID        HydraID   `json:"id"`
	ParentID  HydraID   `json:"parent_id"`
	Depth     int       `json:"depth"`
	MaxDepth  int       `json:"max_depth"`
	Energy    int       `json:"energy"` // 0–100, clamped on every update
	Specialty string    `json:"specialty"`
	Genes     Genes     `json:"genes"`
	Children  []HydraID `json:"children,omitempty"`
}

// IsRoot reports whether h has no parent.
func (h *Hydra) IsRoot() bool { return h.ParentID == NoParent }

// setEnergy stores e clamped to [MinEnergy, MaxEnergy].
func (h *Hydra) setEnergy(e int) {
	if e < MinEnergy {
		e = MinEnergy
	}
	if e > MaxEnergy {
		e = MaxEnergy
	}
	h.Energy = e
}

// assertInvariants panics on a state no operation may produce.
func (h *Hydra) assertInvariants() {
	if h.Energy < MinEnergy || h.Energy > MaxEnergy {
		panic(fmt.Sprintf("hydra %d: energy %d out of range", h.ID, h.Energy))
	}
	if h.Depth > h.MaxDepth {
		panic(fmt.Sprintf("hydra %d: depth %d exceeds max depth %d", h.ID, h.Depth, h.MaxDepth))
	}
}
