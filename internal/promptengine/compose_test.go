package promptengine

import (
	"strings"
	"testing"

	"server/internal/domain"
)

func TestComposeDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	in := Input{
		Mode:       domain.ModeRedesign,
		RoomType:   "living_room",
		Style:      "scandinavian",
		UserPrompt: "add a reading nook by the window",
	}

	first, err := Compose(in, cfg)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	second, err := Compose(in, cfg)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if first.Prompt != second.Prompt {
		t.Fatalf("Compose() is not deterministic:\n%q\n%q", first.Prompt, second.Prompt)
	}
	if !first.HadUserPrompt {
		t.Fatal("HadUserPrompt = false, want true")
	}
	if first.Version != cfg.Version {
		t.Fatalf("Version = %q, want %q", first.Version, cfg.Version)
	}
}

func TestComposeModeSegments(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name        string
		mode        domain.Mode
		wantContain string
		wantAbsent  string
	}{
		{
			name:        "redesign keeps architecture guardrail",
			mode:        domain.ModeRedesign,
			wantContain: "Keep the existing room architecture",
		},
		{
			name:        "staging keeps architecture guardrail",
			mode:        domain.ModeStaging,
			wantContain: "furnish and stage",
		},
		{
			name:        "compose references both images",
			mode:        domain.ModeCompose,
			wantContain: "second image strictly as a style",
			wantAbsent:  "Keep the existing room architecture",
		},
		{
			name:        "imagine has no guardrail",
			mode:        domain.ModeImagine,
			wantContain: "Photorealistic interior photograph",
			wantAbsent:  "Keep the existing room architecture",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Compose(Input{Mode: tc.mode}, cfg)
			if err != nil {
				t.Fatalf("Compose() error = %v", err)
			}
			if !strings.Contains(res.Prompt, tc.wantContain) {
				t.Fatalf("prompt %q does not contain %q", res.Prompt, tc.wantContain)
			}
			if tc.wantAbsent != "" && strings.Contains(res.Prompt, tc.wantAbsent) {
				t.Fatalf("prompt %q unexpectedly contains %q", res.Prompt, tc.wantAbsent)
			}
		})
	}
}

func TestComposeMandatorySegmentsSurviveBudget(t *testing.T) {
	cfg := DefaultConfig()
	longWish := strings.Repeat("please add plenty of cozy details everywhere ", 10)
	tests := []struct {
		mode        domain.Mode
		instruction string
		guardrail   bool
	}{
		{domain.ModeRedesign, "Restyle the furnishings", true},
		{domain.ModeStaging, "furnish and stage", true},
		{domain.ModeCompose, "second image strictly as a style", false},
		{domain.ModeImagine, "Photorealistic interior photograph", false},
	}
	for _, tc := range tests {
		t.Run(string(tc.mode), func(t *testing.T) {
			for _, userPrompt := range []string{"", longWish} {
				res, err := Compose(Input{
					Mode:       tc.mode,
					RoomType:   "living_room",
					Style:      "scandinavian",
					UserPrompt: userPrompt,
				}, cfg)
				if err != nil {
					t.Fatalf("Compose() error = %v", err)
				}
				if res.Length > cfg.MaxChars {
					t.Fatalf("prompt length %d exceeds budget %d", res.Length, cfg.MaxChars)
				}
				if !strings.Contains(res.Prompt, tc.instruction) {
					t.Fatalf("prompt %q lost instruction %q", res.Prompt, tc.instruction)
				}
				if got := strings.Contains(res.Prompt, "Keep the existing room architecture"); got != tc.guardrail {
					t.Fatalf("guardrail present = %v, want %v in %q", got, tc.guardrail, res.Prompt)
				}
			}
		})
	}
}

func TestComposeUnknownModeFailsClosed(t *testing.T) {
	_, err := Compose(Input{Mode: domain.Mode("holodeck")}, DefaultConfig())
	if err == nil {
		t.Fatal("Compose() with unknown mode returned nil error")
	}
	if !domain.IsKind(err, domain.KindValidation) {
		t.Fatalf("error kind = %v, want validation", domain.KindOf(err))
	}
}

func TestComposeUnknownSeedsIgnored(t *testing.T) {
	cfg := DefaultConfig()
	res, err := Compose(Input{
		Mode:     domain.ModeImagine,
		RoomType: "spaceship_bridge",
		Style:    "brutalist_disco",
	}, cfg)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	baseline, err := Compose(Input{Mode: domain.ModeImagine}, cfg)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if res.Prompt != baseline.Prompt {
		t.Fatalf("unknown seeds changed the prompt:\n%q\n%q", res.Prompt, baseline.Prompt)
	}
}

func TestComposeRespectsBudget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxChars = 120
	res, err := Compose(Input{
		Mode:       domain.ModeRedesign,
		RoomType:   "living_room",
		Style:      "scandinavian",
		UserPrompt: strings.Repeat("a very long wish from the user ", 20),
	}, cfg)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if res.Length > cfg.MaxChars {
		t.Fatalf("prompt length %d exceeds budget %d", res.Length, cfg.MaxChars)
	}
	if res.Length != len([]rune(res.Prompt)) {
		t.Fatalf("Length = %d, want rune count %d", res.Length, len([]rune(res.Prompt)))
	}
}

func TestSentence(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"warm woods and soft light", "Warm woods and soft light."},
		{"already terminal.", "Already terminal."},
		{"question?", "Question?"},
		{"  ", ""},
	}
	for _, tc := range tests {
		if got := sentence(tc.in); got != tc.want {
			t.Fatalf("sentence(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
