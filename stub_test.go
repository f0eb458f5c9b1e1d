package genlab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// stubBackend scripts individual transport calls for component tests.
type stubBackend struct {
	post func(path string, body, out any) error
	get  func(path string, out any) error
	bin  func(path string) ([]byte, string, error)
}

func (s *stubBackend) PostJSON(ctx context.Context, path string, body, out any) error {
	if s.post == nil {
		return errors.New("unexpected PostJSON " + path)
	}
	return s.post(path, body, out)
}

func (s *stubBackend) GetJSON(ctx context.Context, path string, out any) error {
	if s.get == nil {
		return errors.New("unexpected GetJSON " + path)
	}
	return s.get(path, out)
}

func (s *stubBackend) GetBinary(ctx context.Context, path string) ([]byte, string, error) {
	if s.bin == nil {
		return nil, "", errors.New("unexpected GetBinary " + path)
	}
	return s.bin(path)
}

// assignJSON routes a scripted value through JSON into the caller's out
// parameter, the same way the real transport decodes a response body.
func assignJSON(v, out any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// fakeService emulates the remote generation service for orchestrator tests:
// submissions are assigned sequential job ids, the node listing reports every
// known job as finished (or failed, for captions matching failCaption), and
// the image endpoint serves bytes derived from the job's caption so tests can
// tie results back to dispatch slots.
type fakeService struct {
	mu sync.Mutex

	projects      any
	projectsCalls int

	enhanceReqs []inferRequest
	enhanceResp any
	enhanceErr  error

	jobs        []*fakeJob
	submitPaths []string
	listCalls   int

	failCaption string
	failMessage string

	// delayCaption holds back the matching job's output until the listing
	// has been fetched delayLists times, forcing out-of-order completion.
	delayCaption string
	delayLists   int
}

type fakeJob struct {
	id      string
	payload generationPayload
}

func (f *fakeService) PostJSON(ctx context.Context, path string, body, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case strings.HasPrefix(path, "/misc/model_infer_sync"):
		req, ok := body.(inferRequest)
		if !ok {
			return fmt.Errorf("unexpected enhance body %T", body)
		}
		f.enhanceReqs = append(f.enhanceReqs, req)
		if f.enhanceErr != nil {
			return f.enhanceErr
		}
		return assignJSON(f.enhanceResp, out)
	case strings.HasSuffix(path, "/generation"):
		payload, ok := body.(generationPayload)
		if !ok {
			return fmt.Errorf("unexpected generation body %T", body)
		}
		job := &fakeJob{id: fmt.Sprintf("job-%d", len(f.jobs)+1), payload: payload}
		f.jobs = append(f.jobs, job)
		f.submitPaths = append(f.submitPaths, path)
		return assignJSON(map[string]any{"create": map[string]any{"node": map[string]string{"id": job.id}}}, out)
	default:
		return fmt.Errorf("unexpected POST %s", path)
	}
}

func (f *fakeService) GetJSON(ctx context.Context, path string, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case path == "/projects":
		f.projectsCalls++
		return assignJSON(f.projects, out)
	case strings.HasSuffix(path, "/node"):
		f.listCalls++
		entries := make([]map[string]any, 0, len(f.jobs))
		for _, job := range f.jobs {
			data := map[string]any{
				"inference_inputs": map[string]any{"seed": job.payload.Data.InferenceInputs.Seed},
			}
			caption := job.payload.Data.InferenceInputs.Caption
			switch {
			case f.failCaption != "" && caption == f.failCaption:
				data["error"] = f.failMessage
			case f.delayCaption != "" && caption == f.delayCaption && f.listCalls <= f.delayLists:
				// still running
			default:
				data["output"] = "out-" + job.id
			}
			entries = append(entries, map[string]any{
				"node": map[string]string{"id": job.id},
				"data": data,
			})
		}
		return assignJSON(entries, out)
	default:
		return fmt.Errorf("unexpected GET %s", path)
	}
}

func (f *fakeService) GetBinary(ctx context.Context, path string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range f.jobs {
		if strings.Contains(path, "/image/out-"+job.id+"/url") {
			return []byte("png:" + job.payload.Data.InferenceInputs.Caption), "image/png", nil
		}
	}
	return nil, "", fmt.Errorf("unknown image path %s", path)
}

// newTestClient builds a client over the given backend with test-friendly
// polling settings.
func newTestClient(api backend, opts Options) *Client {
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Millisecond
	}
	if opts.MaxPollAttempts == 0 {
		opts.MaxPollAttempts = 5
	}
	if opts.ProjectID == "" {
		opts.ProjectID = "proj-1"
	}
	return newClient(api, opts)
}
