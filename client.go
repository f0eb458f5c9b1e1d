// Package genlab is a client for an asynchronous image-generation service.
// One call to Client.Generate fans a batch request out into independent
// submit/poll pipelines, optionally enhancing the prompt first, and reduces
// the per-job results into a single BatchResult.
package genlab

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"genlab/apierr"
	"genlab/internal/transport"
)

const (
	defaultModel           = "sdxl-base-1.0"
	defaultEnhanceModelID  = "prompt-expansion-v1"
	defaultMaxPollAttempts = 30
	defaultPollInterval    = 2 * time.Second
)

// backend is the transport contract consumed by the orchestration core. The
// real implementation lives in internal/transport; tests substitute stubs.
type backend interface {
	PostJSON(ctx context.Context, path string, body, out any) error
	GetJSON(ctx context.Context, path string, out any) error
	GetBinary(ctx context.Context, path string) ([]byte, string, error)
}

// Options configures a Client.
type Options struct {
	// BaseURL is the root of the generation service API. Required.
	BaseURL string
	// Token is a static bearer token attached to every request.
	Token string
	// TokenSource re-acquires a token after an authentication failure has
	// invalidated the cached one. Optional.
	TokenSource transport.TokenSource
	// SessionCookie is attached to every request alongside the token.
	SessionCookie string
	// ProjectID scopes all jobs. When empty the client discovers a default
	// project via GET /projects on first use.
	ProjectID string
	// Model is the inference model used when a request names none.
	Model string
	// EnhanceModelID is the model used for prompt enhancement.
	EnhanceModelID string
	// MaxPollAttempts bounds how often one job is polled before the client
	// gives up. Zero defaults to 30.
	MaxPollAttempts int
	// PollInterval is the fixed delay between polling attempts. Zero
	// defaults to 2s.
	PollInterval time.Duration
	// HTTPClient overrides the underlying HTTP client.
	HTTPClient *http.Client
	// RequestTimeout bounds each individual HTTP call when no HTTPClient
	// is supplied.
	RequestTimeout time.Duration
	// Logger receives structured diagnostics. Nil logs nothing.
	Logger *zerolog.Logger
}

// Client orchestrates generation batches. All job state is in-memory and
// scoped to one Generate call; the client itself only carries read-only
// configuration plus the cached project id.
type Client struct {
	api             backend
	logger          zerolog.Logger
	model           string
	enhanceModelID  string
	maxPollAttempts int
	pollInterval    time.Duration

	mu        sync.Mutex
	projectID string
}

// New constructs a Client backed by the authenticated transport.
func New(opts Options) (*Client, error) {
	api, err := transport.New(transport.Options{
		BaseURL:       opts.BaseURL,
		Token:         opts.Token,
		TokenSource:   opts.TokenSource,
		SessionCookie: opts.SessionCookie,
		HTTPClient:    opts.HTTPClient,
		Timeout:       opts.RequestTimeout,
		Logger:        opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	return newClient(api, opts), nil
}

func newClient(api backend, opts Options) *Client {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	enhanceModel := strings.TrimSpace(opts.EnhanceModelID)
	if enhanceModel == "" {
		enhanceModel = defaultEnhanceModelID
	}
	attempts := opts.MaxPollAttempts
	if attempts <= 0 {
		attempts = defaultMaxPollAttempts
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Client{
		api:             api,
		logger:          logger,
		model:           model,
		enhanceModelID:  enhanceModel,
		maxPollAttempts: attempts,
		pollInterval:    interval,
		projectID:       strings.TrimSpace(opts.ProjectID),
	}
}

// Generate runs one batch: validate, enhance, fan out batchSize submit/poll
// pipelines concurrently, and reduce their outcomes. Any single job failure
// fails the whole batch and cancels the remaining pipelines; there is no
// partial-success mode.
func (c *Client) Generate(ctx context.Context, req GenerationRequest) (*BatchResult, error) {
	req = req.withDefaults(c.model)
	if err := req.Validate(); err != nil {
		return nil, err
	}
	projectID, err := c.resolveProject(ctx)
	if err != nil {
		return nil, err
	}

	enhance := req.enhanceEnabled()
	batch := req.BatchSize

	// One enhancement call amortized across the batch. Single-image
	// requests instead enhance inline inside their pipeline.
	var variants []string
	if enhance && batch > 1 {
		res := c.enhancePrompt(ctx, projectID, req.Prompt, batch)
		variants = res.Prompts
	}

	seeds := make([]int64, batch)
	for i := range seeds {
		seeds[i] = req.Seed.Derive()
	}

	outcomes := make([]*jobOutcome, batch)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < batch; i++ {
		spec := jobSpec{
			index:          i,
			caption:        req.Prompt,
			original:       req.Prompt,
			negative:       req.NegativePrompt,
			width:          req.Width,
			height:         req.Height,
			seed:           seeds[i],
			model:          req.Model,
			enhanceEnabled: enhance,
			inlineEnhance:  enhance && batch == 1,
		}
		if enhance && batch > 1 {
			spec.caption = variants[i%len(variants)]
		}
		g.Go(func() error {
			outcome, err := c.runPipeline(gctx, projectID, spec)
			if err != nil {
				return err
			}
			outcomes[spec.index] = outcome
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reduceOutcomes(req, outcomes), nil
}

// runPipeline executes submit then poll for one job slot.
func (c *Client) runPipeline(ctx context.Context, projectID string, spec jobSpec) (*jobOutcome, error) {
	if spec.inlineEnhance {
		res := c.enhancePrompt(ctx, projectID, spec.original, 1)
		spec.caption = res.Prompts[0]
	}
	jobID, err := c.submitJob(ctx, projectID, spec)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().Int("job", spec.index).Str("job_id", jobID).Int64("seed", spec.seed).Msg("job submitted")
	return c.pollJob(ctx, projectID, jobID, spec)
}

// reduceOutcomes folds per-job outcomes into the batch-level result,
// preserving dispatch order.
func reduceOutcomes(req GenerationRequest, outcomes []*jobOutcome) *BatchResult {
	result := &BatchResult{
		ImageURLs:      make([]string, 0, len(outcomes)),
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		CompletedAt:    time.Now().UTC(),
	}
	used := make([]string, 0, len(outcomes))
	distinct := make(map[string]struct{})
	for _, outcome := range outcomes {
		result.ImageURLs = append(result.ImageURLs, outcome.imageURL)
		if outcome.enhancedPrompt != "" {
			used = append(used, outcome.enhancedPrompt)
			distinct[outcome.enhancedPrompt] = struct{}{}
		}
	}
	if len(outcomes) > 0 {
		result.Seed = outcomes[0].seed
		result.EnhancedPrompt = outcomes[0].enhancedPrompt
	}
	if len(distinct) > 1 {
		result.EnhancedPrompts = used
	}
	return result
}

// resolveProject returns the configured project id, discovering and caching
// a default one when the client was built without.
func (c *Client) resolveProject(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.projectID != "" {
		return c.projectID, nil
	}
	var projects []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := c.api.GetJSON(ctx, "/projects", &projects); err != nil {
		return "", err
	}
	if len(projects) == 0 || strings.TrimSpace(projects[0].ID) == "" {
		return "", apierr.New(apierr.KindAPI, "no projects available to use as default")
	}
	c.projectID = projects[0].ID
	c.logger.Debug().Str("project_id", c.projectID).Msg("discovered default project")
	return c.projectID, nil
}
