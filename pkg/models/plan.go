package models

import "fmt"

// Plan is the closed set of subscription tiers.
type Plan string

const (
	PlanFree     Plan = "free"
	PlanStarter  Plan = "starter"
	PlanPro      Plan = "pro"
	PlanBusiness Plan = "business"
)

// Plans lists every tier in ascending order of allowance.
var Plans = []Plan{PlanFree, PlanStarter, PlanPro, PlanBusiness}

// Valid reports whether p is one of the enumerated tiers.
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanStarter, PlanPro, PlanBusiness:
		return true
	}
	return false
}

// ParsePlan converts s to a Plan, rejecting anything outside the enumeration.
func ParsePlan(s string) (Plan, error) {
	p := Plan(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown plan %q: must be one of free, starter, pro, business", s)
	}
	return p, nil
}
