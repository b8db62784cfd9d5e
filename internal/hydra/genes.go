package hydra

import "github.com/talgya/seraphin/internal/entropy"

// Gene identifies one inheritable trait.
type Gene uint8

const (
	GeneSpawnRate Gene = iota
	GeneProfitMult
	GeneEnergyEfficiency
	GeneConsensusWeight
)

// NumGenes is the number of traits in a Genes set.
const NumGenes = 4

// Mutation parameters.
const (
	MutationRate     = 0.1
	MutationScaleMin = 0.9
	MutationScaleMax = 1.1
)

// Genes is the inheritable trait vector.
type Genes struct {
	SpawnRate        float64 `json:"spawn_rate"`
	ProfitMult       float64 `json:"profit_mult"`
	EnergyEfficiency float64 `json:"energy_efficiency"`
	ConsensusWeight  float64 `json:"consensus_weight"`
}

// DefaultGenes returns the founder trait vector.
func DefaultGenes() Genes {
	return Genes{
		SpawnRate:        0.3,
		ProfitMult:       1.0,
		EnergyEfficiency: 1.0,
		ConsensusWeight:  1.0,
	}
}

// Get returns the value of one gene.
func (g Genes) Get(gene Gene) float64 {
	switch gene {
	case GeneSpawnRate:
		return g.SpawnRate
	case GeneProfitMult:
		return g.ProfitMult
	case GeneEnergyEfficiency:
		return g.EnergyEfficiency
	default:
		return g.ConsensusWeight
	}
}

func (g *Genes) scale(gene Gene, factor float64) {
	switch gene {
	case GeneSpawnRate:
		g.SpawnRate *= factor
	case GeneProfitMult:
		g.ProfitMult *= factor
	case GeneEnergyEfficiency:
		g.EnergyEfficiency *= factor
	default:
		g.ConsensusWeight *= factor
	}
}

// Inherit copies parent. With probability rate one gene, chosen uniformly,
// is scaled by a factor in [0.9, 1.1]; mutated reports whether that happened.
func Inherit(src entropy.Source, parent Genes, rate float64) (child Genes, mutated bool) {
	child = parent
	if !entropy.Chance(src, rate) {
		return child, false
	}
	gene := Gene(src.IntN(NumGenes))
	child.scale(gene, entropy.Uniform(src, MutationScaleMin, MutationScaleMax))
	return child, true
}
