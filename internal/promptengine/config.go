package promptengine

// Config drives prompt assembly. Compose is a pure function of its input and
// this config; swapping seed maps never requires code changes.
type Config struct {
	// Version is persisted alongside composed prompts for analytics.
	Version string
	// MaxChars is the character budget enforced by the sanitizer.
	MaxChars int
	// StyleSeeds and RoomSeeds map configured ids to seed phrases. Unresolved
	// ids yield no seed; raw labels are never used as a fallback so that
	// unvetted text cannot leak into the prompt.
	StyleSeeds map[string]string
	RoomSeeds  map[string]string
	// Negatives is the trailing negative-constraints clause.
	Negatives string
}

// DefaultMaxChars is the prompt character budget applied when the config
// leaves MaxChars unset.
const DefaultMaxChars = 320

// DefaultConfig returns the built-in seed catalog.
func DefaultConfig() Config {
	return Config{
		Version:  "2025-06",
		MaxChars: DefaultMaxChars,
		StyleSeeds: map[string]string{
			"scandinavian": "light scandinavian style, pale woods, soft textiles, airy and uncluttered",
			"industrial":   "industrial style, exposed brick and metal, dark accents, utilitarian fixtures",
			"minimalist":   "minimalist style, clean lines, neutral palette, hidden storage",
			"bohemian":     "bohemian style, layered patterns, plants, warm earthy tones",
			"japandi":      "japandi style, natural materials, low furniture, calm muted palette",
			"midcentury":   "mid-century modern style, teak furniture, organic curves, saturated accents",
			"coastal":      "coastal style, white and blue palette, linen textures, natural light",
			"rustic":       "rustic style, reclaimed wood, stone surfaces, cozy layered textiles",
			"artdeco":      "art deco style, geometric patterns, brass details, rich jewel tones",
			"contemporary": "contemporary style, balanced proportions, mixed textures, refined neutral tones",
		},
		RoomSeeds: map[string]string{
			"living_room": "a living room",
			"bedroom":     "a bedroom",
			"kitchen":     "a kitchen",
			"bathroom":    "a bathroom",
			"dining_room": "a dining room",
			"home_office": "a home office",
			"kids_room":   "a children's room",
			"hallway":     "a hallway",
			"balcony":     "a balcony",
		},
		Negatives: "Avoid distorted geometry, warped furniture, duplicated objects, text, watermarks and low-resolution artifacts.",
	}
}
