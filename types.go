package genlab

import (
	"strings"
	"time"

	"genlab/apierr"
)

// Geometry and batch bounds accepted by the generation service.
const (
	MinDimension = 384
	MaxDimension = 1024
	MaxBatchSize = 8

	defaultDimension = 1024
	defaultMIMEType  = "image/png"
)

// GenerationRequest describes one user-facing request for a batch of images.
type GenerationRequest struct {
	// Prompt is the caption to generate from. Required.
	Prompt string
	// NegativePrompt lists concepts the image should avoid. Optional.
	NegativePrompt string
	// Width and Height must each be in [384, 1024] and divisible by 8.
	// Zero values default to 1024.
	Width  int
	Height int
	// BatchSize is the number of images to generate, in [1, 8]. Zero
	// defaults to 1.
	BatchSize int
	// Seed controls seeding; the zero value picks random seeds per job.
	Seed Seed
	// Model overrides the client's configured inference model.
	Model string
	// Enhance toggles prompt enhancement. Nil defaults to enabled.
	Enhance *bool
}

// enhanceEnabled resolves the tri-state Enhance flag.
func (r GenerationRequest) enhanceEnabled() bool {
	return r.Enhance == nil || *r.Enhance
}

// withDefaults returns a copy with zero-value fields resolved.
func (r GenerationRequest) withDefaults(model string) GenerationRequest {
	out := r
	if out.Width == 0 {
		out.Width = defaultDimension
	}
	if out.Height == 0 {
		out.Height = defaultDimension
	}
	if out.BatchSize == 0 {
		out.BatchSize = 1
	}
	if strings.TrimSpace(out.Model) == "" {
		out.Model = model
	}
	return out
}

// Validate checks the request bounds. Violations carry the generation error
// kind and are raised before any network call.
func (r GenerationRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return apierr.New(apierr.KindGeneration, "prompt is required")
	}
	if err := validateDimension("width", r.Width); err != nil {
		return err
	}
	if err := validateDimension("height", r.Height); err != nil {
		return err
	}
	if r.BatchSize < 1 || r.BatchSize > MaxBatchSize {
		return apierr.Newf(apierr.KindGeneration, "batch size must be between 1 and %d, got %d", MaxBatchSize, r.BatchSize)
	}
	return nil
}

func validateDimension(name string, value int) error {
	if value < MinDimension || value > MaxDimension || value%8 != 0 {
		return apierr.Newf(apierr.KindGeneration, "%s must be between %d and %d and divisible by 8, got %d", name, MinDimension, MaxDimension, value)
	}
	return nil
}

// BatchResult is the reduction of all per-job outcomes of one batch.
type BatchResult struct {
	// ImageURLs holds one data URI per successful job, ordered by dispatch
	// index rather than completion order.
	ImageURLs []string `json:"imageUrls"`
	// Seed is the reference seed: the seed the first job actually used.
	Seed int64 `json:"seed"`
	// Prompt echoes the original, unexpanded prompt.
	Prompt string `json:"prompt"`
	// EnhancedPrompt is the enhanced prompt of the first job, kept singular
	// for backward compatibility.
	EnhancedPrompt string `json:"enhancedPrompt,omitempty"`
	// EnhancedPrompts lists the prompt used by every job, in dispatch
	// order, and is present only when more than one distinct variant was
	// used across the batch.
	EnhancedPrompts []string `json:"enhancedPrompts,omitempty"`
	// NegativePrompt echoes the request's negative prompt, if any.
	NegativePrompt string `json:"negativePrompt,omitempty"`
	// CompletedAt is stamped after every job in the batch has resolved.
	CompletedAt time.Time `json:"completedAt"`
}

// jobSpec carries the resolved inputs for one batch slot through its
// submit/poll pipeline. It is created by the orchestrator and discarded
// once the pipeline completes.
type jobSpec struct {
	index          int
	caption        string
	original       string
	negative       string
	width          int
	height         int
	seed           int64
	model          string
	enhanceEnabled bool
	inlineEnhance  bool
}

// jobOutcome is the per-job result of a successful pipeline.
type jobOutcome struct {
	imageURL       string
	seed           int64
	enhancedPrompt string
}
