package promptengine

import (
	"strings"

	"server/internal/domain"
)

// Input carries the user-controlled parameters for prompt assembly.
type Input struct {
	Mode       domain.Mode
	RoomType   string
	Style      string
	UserPrompt string
}

// Result is the composed prompt plus the metadata persisted with the job.
type Result struct {
	Prompt        string
	Length        int
	Version       string
	HadUserPrompt bool
}

const (
	structuralGuardrail = "Keep the existing room architecture: walls, windows, doors, ceiling and overall layout must remain exactly as in the photo."
	redesignInstruction = "Restyle the furnishings, materials, colors and decor of this room."
	stagingInstruction  = "The room may be empty; furnish and stage it with suitable furniture and decor while retaining the existing color mood."
	composeInstruction  = "Use the first image as the base room architecture. Treat the second image strictly as a style and object reference, not as a scene. Harmonize lighting and perspective across both."
	imagineInstruction  = "Photorealistic interior photograph of a beautifully designed room."
)

var modeInstructions = map[domain.Mode]string{
	domain.ModeRedesign: redesignInstruction,
	domain.ModeStaging:  stagingInstruction,
	domain.ModeCompose:  composeInstruction,
	domain.ModeImagine:  imagineInstruction,
}

// Compose assembles the final prompt for a job. It is a pure function of its
// arguments: no I/O, no randomness. Unknown modes fail closed with a
// validation error rather than borrowing another mode's defaults.
//
// The guardrail and the mode instruction are never sacrificed to the
// character budget: an over-budget prompt sheds optional segments first, the
// seeds before the user's own words, and only hard-truncates once nothing
// optional is left.
func Compose(in Input, cfg Config) (Result, error) {
	policy, ok := in.Mode.Policy()
	if !ok {
		return Result{}, domain.NewValidationError("unsupported mode " + string(in.Mode))
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}

	user := Sanitize(in.UserPrompt)

	var mandatory []string
	if policy.HasStructuralGuardrail {
		mandatory = append(mandatory, structuralGuardrail)
	}
	mandatory = append(mandatory, modeInstructions[in.Mode])

	// Optional segments in display order; dropOrder lists their indices from
	// the most expendable to the least.
	optional := make([]string, 4)
	if seed := cfg.StyleSeeds[in.Style]; seed != "" {
		optional[0] = sentence(seed)
	}
	if seed := cfg.RoomSeeds[in.RoomType]; seed != "" {
		optional[1] = sentence("The scene is " + seed + ".")
	}
	if user != "" {
		optional[2] = sentence(user)
	}
	optional[3] = cfg.Negatives
	dropOrder := []int{1, 0, 3, 2}

	prompt := JoinSegments(append(append([]string{}, mandatory...), optional...))
	for _, idx := range dropOrder {
		if len([]rune(prompt)) <= cfg.MaxChars {
			break
		}
		optional[idx] = ""
		prompt = JoinSegments(append(append([]string{}, mandatory...), optional...))
	}
	// Mandatory segments alone can still exceed a very small budget.
	prompt = ClampToBudget(prompt, cfg.MaxChars)
	return Result{
		Prompt:        prompt,
		Length:        len([]rune(prompt)),
		Version:       cfg.Version,
		HadUserPrompt: user != "",
	}, nil
}

// sentence upper-cases the first rune and guarantees terminal punctuation so
// that seed phrases read as complete sentences after joining.
func sentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	runes := []rune(s)
	runes[0] = []rune(strings.ToUpper(string(runes[0])))[0]
	s = string(runes)
	switch s[len(s)-1] {
	case '.', '!', '?':
		return s
	}
	return s + "."
}
