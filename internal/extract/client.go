package extract

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/foodtruck-cli/internal/config"
	"github.com/sells-group/foodtruck-cli/internal/model"
	"github.com/sells-group/foodtruck-cli/internal/monitoring"
	"github.com/sells-group/foodtruck-cli/internal/resilience"
	"github.com/sells-group/foodtruck-cli/pkg/anthropic"
)

const (
	defaultModel     = "claude-haiku-4-5-20251001"
	defaultMaxTokens = 4096
)

// Usage meters generative API calls against the daily quota.
type Usage interface {
	Reserve(ctx context.Context, service string, estTokens int64) error
	Record(ctx context.Context, service string, tokens int64) error
}

// Result is the outcome of one Extract call. Data is set only when
// Status is StatusOK.
type Result struct {
	Status        Status               `json:"status"`
	Kind          Kind                 `json:"kind"`
	Data          Payload              `json:"data,omitempty"`
	Error         string               `json:"error,omitempty"`
	Warnings      []string             `json:"warnings,omitempty"`
	Attempts      int                  `json:"attempts"`
	ParseAttempts int                  `json:"parse_attempts"`
	Usage         anthropic.TokenUsage `json:"usage"`
	Raw           string               `json:"-"`
}

// OK reports whether extraction produced a payload.
func (r *Result) OK() bool { return r.Status == StatusOK }

// Err returns the result as an error, or nil when OK. Rate limits keep
// monitoring.ErrLimitExceeded in the chain.
func (r *Result) Err() error {
	switch r.Status {
	case StatusOK:
		return nil
	case StatusRateLimited:
		return eris.Wrapf(monitoring.ErrLimitExceeded, "extract %s", r.Kind)
	default:
		return eris.Errorf("extract %s: %s: %s", r.Kind, r.Status, r.Error)
	}
}

// Client runs generative extractions.
type Client struct {
	llm           anthropic.Client
	usage         Usage
	model         string
	maxTokens     int64
	parseAttempts int
	retry         resilience.RetryConfig
	breaker       *resilience.CircuitBreaker
}

// Option configures a Client.
type Option func(*Client)

// WithRetry overrides the transport retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithBreaker routes calls through a circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// NewClient creates an extraction client. A nil llm yields a client whose
// every call returns StatusConfigError.
func NewClient(llm anthropic.Client, usage Usage, cfg config.AnthropicConfig, opts ...Option) *Client {
	c := &Client{
		llm:           llm,
		usage:         usage,
		model:         cfg.Model,
		maxTokens:     cfg.MaxTokens,
		parseAttempts: cfg.MaxParseAttempts,
		retry:         resilience.DefaultRetryConfig(),
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}
	if c.parseAttempts <= 0 {
		c.parseAttempts = 3
	}
	c.retry.OnRetry = resilience.RetryLogger(model.ServiceAnthropic, "extract")
	for _, o := range opts {
		o(c)
	}
	return c
}

// Configured reports whether a model client is available.
func (c *Client) Configured() bool {
	return c != nil && c.llm != nil
}

// FullExtraction extracts a complete truck profile from page markdown.
func (c *Client) FullExtraction(ctx context.Context, markdown, sourceURL string) *Result {
	return c.extract(ctx, KindFullExtraction, markdown, sourceURL)
}

// Extract runs one extraction of kind over input.
func (c *Client) Extract(ctx context.Context, kind Kind, input string) *Result {
	return c.extract(ctx, kind, input, "")
}

func (c *Client) extract(ctx context.Context, kind Kind, input, sourceURL string) *Result {
	res := &Result{Kind: kind}
	if !c.Configured() {
		res.Status = StatusConfigError
		res.Error = "anthropic API key not configured"
		return res
	}

	prompt, err := BuildPrompt(kind, input, sourceURL)
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		return res
	}

	log := zap.L().With(zap.String("component", "extract"), zap.String("kind", string(kind)))
	est := monitoring.EstimateTokens(systemPrompt + prompt)

	resp, state, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		if c.usage != nil {
			if rerr := c.usage.Reserve(ctx, model.ServiceAnthropic, est); rerr != nil {
				return nil, rerr
			}
		}
		resp, cerr := c.call(ctx, prompt)

		var tokens int64
		if cerr == nil {
			res.Usage.InputTokens += resp.Usage.InputTokens
			res.Usage.OutputTokens += resp.Usage.OutputTokens
			tokens = resp.Usage.Total()
		} else {
			tokens = int64(len(prompt) / 4)
		}
		if c.usage != nil {
			if uerr := c.usage.Record(ctx, model.ServiceAnthropic, tokens); uerr != nil {
				log.Warn("record usage failed", zap.Error(uerr))
			}
		}
		return resp, cerr
	})
	res.Attempts = state.Attempt

	if err != nil {
		if errors.Is(err, monitoring.ErrLimitExceeded) {
			res.Status = StatusRateLimited
		} else {
			res.Status = StatusFailed
		}
		res.Error = err.Error()
		log.Warn("extraction call failed", zap.String("status", string(res.Status)), zap.Error(err))
		return res
	}
	resp.Usage.LogCost(c.model, string(kind))

	res.Raw = resp.Text()
	value, parseAttempts, err := Decode(res.Raw, c.parseAttempts)
	res.ParseAttempts = parseAttempts
	if err != nil {
		res.Status = StatusParseError
		res.Error = err.Error()
		log.Warn("unparseable model output", zap.Int("parse_attempts", parseAttempts), zap.Error(err))
		return res
	}

	payload, warnings, err := Validate(kind, value, sourceURL)
	res.Warnings = warnings
	if err != nil {
		res.Status = StatusParseError
		res.Error = err.Error()
		return res
	}
	if len(warnings) > 0 {
		log.Debug("dropped invalid fields", zap.Strings("warnings", warnings))
	}

	res.Status = StatusOK
	res.Data = payload
	return res
}

func (c *Client) call(ctx context.Context, prompt string) (*anthropic.MessageResponse, error) {
	temperature := 0.0
	req := anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      systemPrompt,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temperature,
	}
	if c.breaker == nil {
		return c.llm.CreateMessage(ctx, req)
	}
	return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return c.llm.CreateMessage(ctx, req)
	})
}
