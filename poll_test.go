package genlab

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"genlab/apierr"
)

// listEntry builds one node-listing entry for scripted poll responses.
func listEntry(id string, fields map[string]any) map[string]any {
	return map[string]any{"node": map[string]string{"id": id}, "data": fields}
}

func TestPollJobPendingThenSuccess(t *testing.T) {
	listings := []any{
		[]any{},
		[]any{listEntry("job-1", map[string]any{})},
		[]any{listEntry("job-1", map[string]any{
			"output":           "img-9",
			"inference_inputs": map[string]any{"seed": 999},
		})},
	}
	listCalls := 0
	api := &stubBackend{
		get: func(path string, out any) error {
			listCalls++
			return assignJSON(listings[listCalls-1], out)
		},
		bin: func(path string) ([]byte, string, error) {
			if !strings.Contains(path, "/image/img-9/url") {
				t.Fatalf("unexpected binary path %s", path)
			}
			return []byte("webp-bytes"), "image/webp", nil
		},
	}
	c := newTestClient(api, Options{})

	spec := validSpec()
	outcome, err := c.pollJob(context.Background(), "proj-1", "job-1", spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if listCalls != 3 {
		t.Fatalf("list calls = %d, want 3", listCalls)
	}
	want := "data:image/webp;base64," + base64.StdEncoding.EncodeToString([]byte("webp-bytes"))
	if outcome.imageURL != want {
		t.Fatalf("image url = %q, want %q", outcome.imageURL, want)
	}
	// The seed echoed by the service wins over the one we submitted.
	if outcome.seed != 999 {
		t.Fatalf("seed = %d, want echoed 999", outcome.seed)
	}
	if outcome.enhancedPrompt != spec.caption {
		t.Fatalf("enhanced prompt = %q, want %q", outcome.enhancedPrompt, spec.caption)
	}
}

func TestPollJobFailureStopsImmediately(t *testing.T) {
	listCalls := 0
	api := &stubBackend{get: func(path string, out any) error {
		listCalls++
		return assignJSON([]any{listEntry("job-1", map[string]any{"error": "NSFW content detected"})}, out)
	}}
	c := newTestClient(api, Options{MaxPollAttempts: 10})

	_, err := c.pollJob(context.Background(), "proj-1", "job-1", validSpec())
	if err == nil {
		t.Fatalf("expected generation error")
	}
	if kind := apierr.KindOf(err); kind != apierr.KindGeneration {
		t.Fatalf("kind = %s, want %s", kind, apierr.KindGeneration)
	}
	if !strings.Contains(err.Error(), "NSFW content detected") {
		t.Fatalf("error should carry the service message: %v", err)
	}
	if listCalls != 1 {
		t.Fatalf("polling should stop on failure, got %d list calls", listCalls)
	}
}

func TestPollJobTimeoutAfterBudget(t *testing.T) {
	listCalls := 0
	api := &stubBackend{get: func(path string, out any) error {
		listCalls++
		return assignJSON([]any{}, out)
	}}
	c := newTestClient(api, Options{MaxPollAttempts: 4})

	_, err := c.pollJob(context.Background(), "proj-1", "job-1", validSpec())
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if kind := apierr.KindOf(err); kind != apierr.KindTimeout {
		t.Fatalf("kind = %s, want %s", kind, apierr.KindTimeout)
	}
	if !strings.Contains(err.Error(), "4") {
		t.Fatalf("error should name the attempt count: %v", err)
	}
	if listCalls != 4 {
		t.Fatalf("list calls = %d, want exactly 4", listCalls)
	}
}

func TestPollJobRetriesTransientFetchFailure(t *testing.T) {
	fetches := 0
	api := &stubBackend{
		get: func(path string, out any) error {
			return assignJSON([]any{listEntry("job-1", map[string]any{"output": "img-1"})}, out)
		},
		bin: func(path string) ([]byte, string, error) {
			fetches++
			if fetches < 3 {
				return nil, "", errors.New("connection reset")
			}
			return []byte("data"), "image/png", nil
		},
	}
	c := newTestClient(api, Options{MaxPollAttempts: 5})

	outcome, err := c.pollJob(context.Background(), "proj-1", "job-1", validSpec())
	if err != nil {
		t.Fatalf("fetch failures within budget should recover: %v", err)
	}
	if fetches != 3 {
		t.Fatalf("fetches = %d, want 3", fetches)
	}
	if !strings.HasPrefix(outcome.imageURL, "data:image/png;base64,") {
		t.Fatalf("unexpected image url %q", outcome.imageURL)
	}
}

func TestPollJobFetchFailuresExhaustBudget(t *testing.T) {
	api := &stubBackend{
		get: func(path string, out any) error {
			return assignJSON([]any{listEntry("job-1", map[string]any{"output": "img-1"})}, out)
		},
		bin: func(path string) ([]byte, string, error) {
			return nil, "", errors.New("connection reset")
		},
	}
	c := newTestClient(api, Options{MaxPollAttempts: 3})

	_, err := c.pollJob(context.Background(), "proj-1", "job-1", validSpec())
	if kind := apierr.KindOf(err); kind != apierr.KindTimeout {
		t.Fatalf("kind = %s, want %s", kind, apierr.KindTimeout)
	}
}

func TestPollJobDefaultsContentType(t *testing.T) {
	api := &stubBackend{
		get: func(path string, out any) error {
			return assignJSON([]any{listEntry("job-1", map[string]any{"output": "img-1"})}, out)
		},
		bin: func(path string) ([]byte, string, error) {
			return []byte("data"), "", nil
		},
	}
	c := newTestClient(api, Options{})

	outcome, err := c.pollJob(context.Background(), "proj-1", "job-1", validSpec())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(outcome.imageURL, "data:image/png;base64,") {
		t.Fatalf("missing default content type: %q", outcome.imageURL)
	}
}

func TestPollJobFallsBackToRequestedSeed(t *testing.T) {
	api := &stubBackend{
		get: func(path string, out any) error {
			return assignJSON([]any{listEntry("job-1", map[string]any{"output": "img-1"})}, out)
		},
		bin: func(path string) ([]byte, string, error) {
			return []byte("data"), "image/png", nil
		},
	}
	c := newTestClient(api, Options{})

	spec := validSpec()
	outcome, err := c.pollJob(context.Background(), "proj-1", "job-1", spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.seed != spec.seed {
		t.Fatalf("seed = %d, want requested %d when no echo present", outcome.seed, spec.seed)
	}
}

func TestPollJobListingErrorIsTerminal(t *testing.T) {
	listCalls := 0
	api := &stubBackend{get: func(path string, out any) error {
		listCalls++
		return apierr.New(apierr.KindAPI, "boom").WithStatus(500)
	}}
	c := newTestClient(api, Options{MaxPollAttempts: 5})

	_, err := c.pollJob(context.Background(), "proj-1", "job-1", validSpec())
	if kind := apierr.KindOf(err); kind != apierr.KindAPI {
		t.Fatalf("kind = %s, want %s", kind, apierr.KindAPI)
	}
	if listCalls != 1 {
		t.Fatalf("transport failures surviving retries are terminal, got %d calls", listCalls)
	}
}
