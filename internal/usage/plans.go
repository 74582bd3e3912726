package usage

// PlanResolver answers how many generations a plan allows per billing period.
// The real answer lives with the billing provider; this abstraction keeps it
// out of the orchestrator.
type PlanResolver interface {
	MonthlyGenerations(planID string) int
}

// StaticPlans resolves plan limits from a fixed table with a default for
// unknown plan ids.
type StaticPlans struct {
	Limits       map[string]int
	DefaultLimit int
}

// MonthlyGenerations implements PlanResolver.
func (p StaticPlans) MonthlyGenerations(planID string) int {
	if limit, ok := p.Limits[planID]; ok {
		return limit
	}
	return p.DefaultLimit
}
