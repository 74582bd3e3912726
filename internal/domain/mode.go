package domain

// Mode enumerates the supported generation modes.
type Mode string

const (
	ModeRedesign Mode = "redesign"
	ModeStaging  Mode = "staging"
	ModeCompose  Mode = "compose"
	ModeImagine  Mode = "imagine"
)

// ModePolicy captures the per-mode rules consumed by the moderation gate,
// the prompt engine and the orchestrator, so all three derive from one table.
type ModePolicy struct {
	RequiresInput1 bool
	RequiresInput2 bool
	// HasStructuralGuardrail is true for modes that operate on an input photo
	// and must preserve the room architecture in the prompt.
	HasStructuralGuardrail bool
}

var modePolicies = map[Mode]ModePolicy{
	ModeRedesign: {RequiresInput1: true, HasStructuralGuardrail: true},
	ModeStaging:  {RequiresInput1: true, HasStructuralGuardrail: true},
	ModeCompose:  {RequiresInput1: true, RequiresInput2: true},
	ModeImagine:  {},
}

// Policy returns the policy table entry for the mode. Unknown modes report
// ok=false; every caller must fail closed on them.
func (m Mode) Policy() (ModePolicy, bool) {
	p, ok := modePolicies[m]
	return p, ok
}

// Valid reports whether the mode is one of the supported set.
func (m Mode) Valid() bool {
	_, ok := modePolicies[m]
	return ok
}
