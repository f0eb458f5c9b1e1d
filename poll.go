package genlab

import (
	"context"
	"time"

	"genlab/apierr"
	"genlab/pkg/datauri"
)

// nodeEntry is one job in the project's node listing.
type nodeEntry struct {
	Node struct {
		ID string `json:"id"`
	} `json:"node"`
	Data struct {
		Output          string `json:"output"`
		Error           string `json:"error"`
		InferenceInputs struct {
			Seed *int64 `json:"seed"`
		} `json:"inference_inputs"`
	} `json:"data"`
}

// pollJob drives one job through its lifecycle: query the node listing until
// the job reaches a terminal state or the attempt budget runs out, then
// fetch and encode the resulting asset.
//
// Three failure modes get three different policies: a job-level error from
// the service terminates immediately; a transient asset-fetch failure after
// a successful status transition consumes one attempt and is retried; budget
// exhaustion without a terminal state is a timeout. A job absent from the
// listing counts as still pending, since list visibility may lag submission.
func (c *Client) pollJob(ctx context.Context, projectID, jobID string, spec jobSpec) (*jobOutcome, error) {
	for attempt := 1; attempt <= c.maxPollAttempts; attempt++ {
		var nodes []nodeEntry
		if err := c.api.GetJSON(ctx, "/project/"+projectID+"/node", &nodes); err != nil {
			return nil, err
		}

		entry, found := findNode(nodes, jobID)
		switch {
		case found && entry.Data.Error != "":
			return nil, apierr.New(apierr.KindGeneration, "generation failed: "+entry.Data.Error)
		case found && entry.Data.Output != "":
			outcome, err := c.fetchOutcome(ctx, projectID, entry, spec)
			if err == nil {
				return outcome, nil
			}
			// Transient fetch failure: the job itself succeeded, so
			// keep polling within the shared attempt budget.
			c.logger.Debug().Err(err).Str("job_id", jobID).Int("attempt", attempt).Msg("asset fetch failed, retrying")
		case found:
			c.logger.Debug().Str("job_id", jobID).Int("attempt", attempt).Msg("job still running")
		default:
			c.logger.Debug().Str("job_id", jobID).Int("attempt", attempt).Msg("job not yet listed")
		}

		if attempt == c.maxPollAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
	return nil, apierr.Newf(apierr.KindTimeout, "generation did not complete after %d polling attempts", c.maxPollAttempts)
}

// fetchOutcome downloads the finished asset and assembles the job outcome.
// The seed echoed back in the status entry is authoritative; the service may
// have normalized the one we submitted.
func (c *Client) fetchOutcome(ctx context.Context, projectID string, entry nodeEntry, spec jobSpec) (*jobOutcome, error) {
	data, contentType, err := c.api.GetBinary(ctx, "/project/"+projectID+"/image/"+entry.Data.Output+"/url")
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = defaultMIMEType
	}
	seed := spec.seed
	if echoed := entry.Data.InferenceInputs.Seed; echoed != nil {
		seed = *echoed
	}
	outcome := &jobOutcome{
		imageURL: datauri.Encode(contentType, data),
		seed:     seed,
	}
	if spec.enhanceEnabled {
		outcome.enhancedPrompt = spec.caption
	}
	return outcome, nil
}

func findNode(nodes []nodeEntry, jobID string) (nodeEntry, bool) {
	for _, n := range nodes {
		if n.Node.ID == jobID {
			return n, true
		}
	}
	return nodeEntry{}, false
}
