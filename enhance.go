package genlab

import (
	"context"
	"strings"
)

// enhanceResult is the outcome of one enhancement call. Fallback marks the
// named failure branch: the service could not deliver variants, so Prompts
// holds the original prompt unchanged. Callers never see an error.
type enhanceResult struct {
	Prompts  []string
	Fallback bool
}

type inferRequest struct {
	Inputs    inferInputs `json:"inputs"`
	ModelID   string      `json:"model_id"`
	ProjectID string      `json:"project_id"`
}

type inferInputs struct {
	Prompt      string `json:"prompt"`
	NumVariants int    `json:"num_variants"`
}

// inferSnapshot is one progress entry in the synchronous inference response.
// The service may return several; only the last one is authoritative.
type inferSnapshot struct {
	Status  string `json:"status"`
	Outputs struct {
		ExpandedPrompts []string `json:"expanded_prompts"`
	} `json:"outputs"`
}

// enhancePrompt asks the enhancement model for variantCount rewrites of
// prompt. On any failure it silently falls back to the original prompt; the
// batch must never die because enhancement was unavailable.
func (c *Client) enhancePrompt(ctx context.Context, projectID, prompt string, variantCount int) enhanceResult {
	fallback := enhanceResult{Prompts: []string{prompt}, Fallback: true}
	if variantCount < 1 {
		variantCount = 1
	}

	body := inferRequest{
		Inputs:    inferInputs{Prompt: prompt, NumVariants: variantCount},
		ModelID:   c.enhanceModelID,
		ProjectID: projectID,
	}
	var snapshots []inferSnapshot
	if err := c.api.PostJSON(ctx, "/misc/model_infer_sync", body, &snapshots); err != nil {
		c.logger.Warn().Err(err).Msg("prompt enhancement failed, using original prompt")
		return fallback
	}
	if len(snapshots) == 0 {
		c.logger.Warn().Msg("prompt enhancement returned no snapshots, using original prompt")
		return fallback
	}

	last := snapshots[len(snapshots)-1]
	if last.Status != "success" {
		c.logger.Warn().Str("status", last.Status).Msg("prompt enhancement did not succeed, using original prompt")
		return fallback
	}
	variants := make([]string, 0, len(last.Outputs.ExpandedPrompts))
	for _, v := range last.Outputs.ExpandedPrompts {
		if strings.TrimSpace(v) != "" {
			variants = append(variants, v)
		}
	}
	if len(variants) == 0 {
		c.logger.Warn().Msg("prompt enhancement returned no variants, using original prompt")
		return fallback
	}
	return enhanceResult{Prompts: variants}
}
