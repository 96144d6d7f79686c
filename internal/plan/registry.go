// Package plan holds the fixed per-tier allowances.
package plan

import (
	"errors"
	"fmt"

	"github.com/kiranshivaraju/pdfgate/pkg/models"
)

// ErrUnknownPlan is a configuration error: a plan identifier outside the
// registry reached the quota core.
var ErrUnknownPlan = errors.New("unknown plan")

// Limits is the allowance attached to one plan.
type Limits struct {
	MonthlyLimit      int  `json:"monthly_limit"`
	WatermarkRequired bool `json:"watermark"`
	Priority          bool `json:"priority"`
}

// Defaults are the production allowances.
var Defaults = map[models.Plan]Limits{
	models.PlanFree:     {MonthlyLimit: 50, WatermarkRequired: true},
	models.PlanStarter:  {MonthlyLimit: 500},
	models.PlanPro:      {MonthlyLimit: 5000, Priority: true},
	models.PlanBusiness: {MonthlyLimit: 20000, Priority: true},
}

// Registry maps every plan to its Limits. It is immutable after construction
// and safe for concurrent reads.
type Registry struct {
	limits map[models.Plan]Limits
}

// NewRegistry validates that every enumerated plan has a positive monthly
// limit and that no unknown plan is present.
func NewRegistry(limits map[models.Plan]Limits) (*Registry, error) {
	copied := make(map[models.Plan]Limits, len(limits))
	for p, l := range limits {
		if !p.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPlan, p)
		}
		if l.MonthlyLimit <= 0 {
			return nil, fmt.Errorf("plan %q: monthly limit must be positive, got %d", p, l.MonthlyLimit)
		}
		copied[p] = l
	}
	for _, p := range models.Plans {
		if _, ok := copied[p]; !ok {
			return nil, fmt.Errorf("plan %q: missing limits", p)
		}
	}
	return &Registry{limits: copied}, nil
}

// DefaultRegistry returns a Registry built from Defaults.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Defaults)
	if err != nil {
		panic(err)
	}
	return r
}

// WithOverrides returns Defaults with the given monthly limits replaced.
func WithOverrides(monthly map[models.Plan]int) map[models.Plan]Limits {
	out := make(map[models.Plan]Limits, len(Defaults))
	for p, l := range Defaults {
		if n, ok := monthly[p]; ok {
			l.MonthlyLimit = n
		}
		out[p] = l
	}
	for p, n := range monthly {
		if _, ok := out[p]; !ok {
			out[p] = Limits{MonthlyLimit: n}
		}
	}
	return out
}

// Lookup returns the limits for p. It never falls back to a default plan.
func (r *Registry) Lookup(p models.Plan) (Limits, error) {
	l, ok := r.limits[p]
	if !ok {
		return Limits{}, fmt.Errorf("%w: %q", ErrUnknownPlan, p)
	}
	return l, nil
}

// Plans returns the registered plans in ascending order of allowance.
func (r *Registry) Plans() []models.Plan {
	out := make([]models.Plan, 0, len(models.Plans))
	for _, p := range models.Plans {
		if _, ok := r.limits[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
