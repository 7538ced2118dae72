package moses

import (
	"runtime"

	"github.com/linas/moseskit/internal/parameters"
	"github.com/pkg/errors"
)

// MinPoolKeepTop is the number of highest-scoring entries resize never
// touches, regardless of cap pressure (spec.md §4.7.3, §6).
const MinPoolKeepTop = 50

// defaultMinPoolSize is MIN_POOL from spec.md §4.7.2/§6.
const defaultMinPoolSize = 250

// Unlimited marks MaxCandidates as having no bound (spec.md §6).
const Unlimited = 0

// Params holds the recognized engine options (spec.md §6).
type Params struct {
	// IncludeDominated, if false, applies non-dominated filtering during
	// merge (spec.md §4.7.2 step 7). Default true.
	IncludeDominated bool

	// KeepBScore forces behavioral-score computation even when dominance
	// filtering and diversity pressure don't otherwise require it.
	KeepBScore bool

	DiversityPressure float64
	DiversityExponent float64
	DiversityPNorm    PNorm

	// ComplexityTemperature (tau) controls both Boltzmann exemplar
	// selection and the "useful range" trim/resize bound. Must be > 0;
	// typically 6-12.
	ComplexityTemperature float64

	// MaxCandidates bounds survivors considered per merge; Unlimited (0)
	// means no bound.
	MaxCandidates int

	// Jobs is the worker-pool size for parallel loops. <= 0 defaults to
	// runtime.GOMAXPROCS(0).
	Jobs int

	// MinPoolSize is MIN_POOL, the floor resize/trim never goes below.
	MinPoolSize int
}

// DefaultParams returns the spec's documented defaults.
func DefaultParams() Params {
	return Params{
		IncludeDominated:      true,
		ComplexityTemperature: 6,
		MaxCandidates:         Unlimited,
		MinPoolSize:           defaultMinPoolSize,
		DiversityPNorm:        L2,
	}
}

func (p Params) jobs() int {
	if p.Jobs > 0 {
		return p.Jobs
	}
	return runtime.GOMAXPROCS(0)
}

// ParamsFromConfig parses Params from the generic parameters.Params
// key/value map, reusing the teacher's parser
// (internal/parameters.GetParamOr), and popping every recognized key so
// callers can detect unrecognized leftovers.
func ParamsFromConfig(cfg parameters.Params) (Params, error) {
	p := DefaultParams()
	var err error

	p.IncludeDominated, err = parameters.PopParamOr(cfg, "include_dominated", p.IncludeDominated)
	if err != nil {
		return p, err
	}
	p.KeepBScore, err = parameters.PopParamOr(cfg, "keep_bscore", p.KeepBScore)
	if err != nil {
		return p, err
	}
	p.DiversityPressure, err = parameters.PopParamOr(cfg, "diversity_pressure", p.DiversityPressure)
	if err != nil {
		return p, err
	}
	p.DiversityExponent, err = parameters.PopParamOr(cfg, "diversity_exponent", p.DiversityExponent)
	if err != nil {
		return p, err
	}
	pNorm, err := parameters.PopParamOr(cfg, "diversity_p_norm", "2")
	if err != nil {
		return p, err
	}
	switch pNorm {
	case "1":
		p.DiversityPNorm = L1
	case "2":
		p.DiversityPNorm = L2
	case "inf":
		p.DiversityPNorm = LInf
	default:
		return p, errors.Errorf("failed to parse configuration diversity_p_norm=%q: want 1, 2 or inf", pNorm)
	}
	p.ComplexityTemperature, err = parameters.PopParamOr(cfg, "complexity_temperature", p.ComplexityTemperature)
	if err != nil {
		return p, err
	}
	p.MaxCandidates, err = parameters.PopParamOr(cfg, "max_candidates", p.MaxCandidates)
	if err != nil {
		return p, err
	}
	p.Jobs, err = parameters.PopParamOr(cfg, "jobs", p.Jobs)
	if err != nil {
		return p, err
	}
	p.MinPoolSize, err = parameters.PopParamOr(cfg, "min_pool_size", p.MinPoolSize)
	if err != nil {
		return p, err
	}
	return p, nil
}

// usefulRange is 0.30 * tau: scores below top - usefulRange are
// effectively unreachable by Boltzmann selection (spec.md glossary,
// §4.7.2 step 2, §4.7.3 Phase A).
func usefulRange(tau float64) float64 {
	return 0.30 * tau
}
