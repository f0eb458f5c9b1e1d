package genlab

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"genlab/apierr"
)

const (
	submitNodeName        = "genlab generation"
	submitNodeDescription = "image generation job submitted by the genlab client"
)

type generationPayload struct {
	Node generationNode `json:"node"`
	Data generationData `json:"data"`
}

type generationNode struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type generationData struct {
	InferenceInputs inferenceInputs `json:"inference_inputs"`
	InferenceModel  string          `json:"inference_model"`
	ClientMetadata  clientMetadata  `json:"client_metadata"`
}

type inferenceInputs struct {
	Caption         string `json:"caption"`
	NegativeCaption string `json:"negative_caption"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	Seed            int64  `json:"seed"`
}

type clientMetadata struct {
	AspectRatio      string `json:"aspectRatio"`
	Instruction      string `json:"instruction"`
	OptimizeEnabled  bool   `json:"optimizeEnabled"`
	UnexpandedPrompt string `json:"unexpandedPrompt"`
}

// submitJob sends one generation request and returns the service-assigned
// job handle. Geometry bounds are re-checked before any I/O so a bad spec
// never reaches the wire.
func (c *Client) submitJob(ctx context.Context, projectID string, spec jobSpec) (string, error) {
	if err := validateDimension("width", spec.width); err != nil {
		return "", err
	}
	if err := validateDimension("height", spec.height); err != nil {
		return "", err
	}

	payload := generationPayload{
		Node: generationNode{
			ID:          uuid.NewString(),
			Name:        submitNodeName,
			Description: submitNodeDescription,
		},
		Data: generationData{
			InferenceInputs: inferenceInputs{
				Caption:         spec.caption,
				NegativeCaption: spec.negative,
				Width:           spec.width,
				Height:          spec.height,
				Seed:            spec.seed,
			},
			InferenceModel: spec.model,
			ClientMetadata: clientMetadata{
				AspectRatio:      fmt.Sprintf("%d:%d", spec.width, spec.height),
				Instruction:      spec.original,
				OptimizeEnabled:  spec.enhanceEnabled,
				UnexpandedPrompt: spec.original,
			},
		},
	}

	var raw json.RawMessage
	if err := c.api.PostJSON(ctx, "/project/"+projectID+"/generation", payload, &raw); err != nil {
		return "", err
	}
	return extractJobID(raw)
}

// jobIDParser attempts to read a job handle out of one historical response
// shape, reporting whether it matched.
type jobIDParser func(raw []byte) (id string, ok bool)

// jobIDParsers are tried in order; adding support for a new historical
// shape is a one-entry addition.
var jobIDParsers = []jobIDParser{parseNestedCreateID, parseFlatGenerationID}

func parseNestedCreateID(raw []byte) (string, bool) {
	var shape struct {
		Create struct {
			Node struct {
				ID string `json:"id"`
			} `json:"node"`
		} `json:"create"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return "", false
	}
	return shape.Create.Node.ID, shape.Create.Node.ID != ""
}

func parseFlatGenerationID(raw []byte) (string, bool) {
	var shape struct {
		GenerationID string `json:"generation_id"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return "", false
	}
	return shape.GenerationID, shape.GenerationID != ""
}

// extractJobID resolves the job handle from a submission response, keeping
// the raw payload in the error when no known shape matches.
func extractJobID(raw json.RawMessage) (string, error) {
	for _, parse := range jobIDParsers {
		if id, ok := parse(raw); ok {
			return id, nil
		}
	}
	return "", apierr.New(apierr.KindUnexpectedResponse, "no job id in generation response: "+string(raw))
}
