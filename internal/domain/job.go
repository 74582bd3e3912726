package domain

import "time"

// JobStatus enumerates the generation job lifecycle states.
type JobStatus string

const (
	JobStatusStarting   JobStatus = "starting"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCanceled   JobStatus = "canceled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

// InFlight reports whether a job in this status counts against the
// one-active-job-per-owner rule.
func (s JobStatus) InFlight() bool {
	return s == JobStatusStarting || s == JobStatusProcessing
}

// CanTransitionTo enforces the forward-only state machine:
// starting -> processing -> {succeeded|failed|canceled}.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.Terminal() || s == next {
		return false
	}
	switch s {
	case JobStatusStarting:
		return next == JobStatusProcessing || next.Terminal()
	case JobStatusProcessing:
		return next.Terminal()
	}
	return false
}

// Quality tiers accepted on submission.
const (
	QualityAuto   = "auto"
	QualityLow    = "low"
	QualityMedium = "medium"
	QualityHigh   = "high"
)

// AllowedAspectRatios is the closed vocabulary shared with the provider.
var AllowedAspectRatios = map[string]struct{}{
	"1:1":  {},
	"4:3":  {},
	"3:4":  {},
	"16:9": {},
	"9:16": {},
}

// MaxVariantsPerJob caps how many outputs a single job may request.
const MaxVariantsPerJob = 3

// GenerationJob is one user-initiated generation request tracked through its
// asynchronous lifecycle.
type GenerationJob struct {
	ID      string
	OwnerID string

	Mode              Mode
	RoomType          string
	Style             string
	Prompt            string
	AspectRatio       string
	Quality           string
	VariantsRequested int
	Input1Path        string
	Input2Path        string

	// PredictionID links the job to the external provider run. It is set
	// exactly once, when the provider accepts the job, and never changes.
	PredictionID string

	Status         JobStatus
	ErrorMessage   string
	IdempotencyKey string
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

// InFlight reports whether the job currently blocks new submissions for its
// owner.
func (j *GenerationJob) InFlight() bool {
	return j.Status.InFlight()
}
