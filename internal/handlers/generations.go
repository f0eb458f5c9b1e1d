package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"genlab"
	"genlab/apierr"
)

type generateRequest struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	BatchSize      int    `json:"batch_size"`
	Seed           *int64 `json:"seed"`
	Model          string `json:"model"`
	Enhance        *bool  `json:"enhance"`
}

// CreateGeneration runs one synchronous batch generation and returns the
// reduced result. The request blocks until every job resolves, so callers
// should size their timeouts to the polling budget.
func (a *App) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, string(apierr.KindValidation), "invalid payload")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		a.error(w, http.StatusBadRequest, string(apierr.KindValidation), "prompt is required")
		return
	}

	gen := genlab.GenerationRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Width:          req.Width,
		Height:         req.Height,
		BatchSize:      req.BatchSize,
		Model:          req.Model,
		Enhance:        req.Enhance,
	}
	if req.Seed != nil {
		gen.Seed = genlab.SeedFromInt(*req.Seed)
	}

	result, err := a.Generator.Generate(r.Context(), gen)
	if err != nil {
		kind := apierr.KindOf(err)
		a.Logger.Error().Err(err).Str("kind", string(kind)).Msg("generation failed")
		a.error(w, statusForKind(kind), string(kind), err.Error())
		return
	}
	a.json(w, http.StatusOK, result)
}

// statusForKind maps client error kinds onto HTTP statuses for API callers.
func statusForKind(kind apierr.Kind) int {
	switch kind {
	case apierr.KindValidation, apierr.KindGeneration:
		return http.StatusBadRequest
	case apierr.KindAuth:
		return http.StatusUnauthorized
	case apierr.KindTimeout:
		return http.StatusGatewayTimeout
	case apierr.KindAPI, apierr.KindRequest, apierr.KindUnexpectedResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
