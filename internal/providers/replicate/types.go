package replicate

import (
	"encoding/json"
	"time"

	"server/internal/domain"
)

// Prediction is the normalized representation of one provider generation run.
type Prediction struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Output      OutputList `json:"output,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// OutputList tolerates the provider returning either a single URL string or
// an array of URLs.
type OutputList []string

func (o *OutputList) UnmarshalJSON(data []byte) error {
	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		*o = many
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	if one != "" {
		*o = OutputList{one}
	}
	return nil
}

// MapStatus translates the provider status vocabulary to internal job states.
// The known five states map by identity; anything unrecognized maps to
// processing so the orchestrator keeps polling instead of abandoning the job.
func MapStatus(raw string) domain.JobStatus {
	switch raw {
	case "starting":
		return domain.JobStatusStarting
	case "processing":
		return domain.JobStatusProcessing
	case "succeeded":
		return domain.JobStatusSucceeded
	case "failed":
		return domain.JobStatusFailed
	case "canceled":
		return domain.JobStatusCanceled
	default:
		return domain.JobStatusProcessing
	}
}
