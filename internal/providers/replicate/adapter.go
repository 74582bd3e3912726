package replicate

import (
	"strings"

	"server/internal/domain"
)

// WebhookPath is the relative path the provider calls back on.
const WebhookPath = "/v1/webhooks/replicate"

// SignedInputs carries short-lived signed URLs for a job's input images.
type SignedInputs struct {
	Input1URL string
	Input2URL string
}

type inferenceParams struct {
	Steps         int
	GuidanceScale float64
	OutputQuality int
}

// qualityTable maps the internal quality tiers to provider inference
// parameters. auto and medium intentionally share the defaults.
var qualityTable = map[string]inferenceParams{
	domain.QualityAuto:   {Steps: 28, GuidanceScale: 3.0, OutputQuality: 80},
	domain.QualityMedium: {Steps: 28, GuidanceScale: 3.0, OutputQuality: 80},
	domain.QualityLow:    {Steps: 18, GuidanceScale: 2.5, OutputQuality: 70},
	domain.QualityHigh:   {Steps: 40, GuidanceScale: 3.5, OutputQuality: 95},
}

// ToProviderInputs shapes the provider request for a job. The variant count
// is clamped to maxVariants regardless of what the job recorded, as a last
// line of defense against misconfiguration upstream.
func ToProviderInputs(job *domain.GenerationJob, signed SignedInputs, maxVariants int) map[string]any {
	variants := job.VariantsRequested
	if variants < 1 {
		variants = 1
	}
	if maxVariants > 0 && variants > maxVariants {
		variants = maxVariants
	}
	params, ok := qualityTable[job.Quality]
	if !ok {
		params = qualityTable[domain.QualityAuto]
	}
	inputs := map[string]any{
		"prompt":              job.Prompt,
		"aspect_ratio":        job.AspectRatio,
		"num_outputs":         variants,
		"num_inference_steps": params.Steps,
		"guidance_scale":      params.GuidanceScale,
		"output_quality":      params.OutputQuality,
		"output_format":       "jpg",
	}
	// Image inputs are present only for modes that take them; imagine mode
	// omits the fields entirely.
	if signed.Input1URL != "" {
		inputs["image"] = signed.Input1URL
	}
	if signed.Input2URL != "" {
		inputs["reference_image"] = signed.Input2URL
	}
	return inputs
}

// BuildWebhookURL joins the configured public base URL with the webhook path,
// tolerating a base with or without a trailing slash.
func BuildWebhookURL(base string) string {
	return strings.TrimRight(base, "/") + WebhookPath
}
