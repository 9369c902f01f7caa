package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/raine/review-moderator/internal/llm"
	"github.com/raine/review-moderator/internal/prompt"
	"github.com/raine/review-moderator/internal/schema"
	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds a single model call when none is configured.
const DefaultTimeout = 45 * time.Second

// Flow declares one structured prompt: the template that renders its
// input and the shape its output must have. Input constraints live in
// the input type's `validate` tags.
type Flow[In, Out any] struct {
	Name     string
	Template *prompt.Template
	Output   *schema.Schema
	// Check applies constraints the schema cannot express. Optional.
	Check func(*Out) error
}

// Render renders the flow's prompt without calling a model.
func (f *Flow[In, Out]) Render(input In) (prompt.Payload, error) {
	return f.Template.Render(input)
}

// InvokerConfig configures an Invoker.
type InvokerConfig struct {
	// Mode declares whether the provider enforces the output schema or
	// returns free-text JSON.
	Mode    llm.OutputMode
	Timeout time.Duration
	// Retries is the number of extra attempts after a transport failure.
	// Input and output validation failures are never retried.
	Retries    int
	RetryDelay time.Duration
}

// Invoker runs flows against a model provider.
type Invoker struct {
	provider  llm.Provider
	validator *schema.Validator
	cfg       InvokerConfig
}

// NewInvoker creates an Invoker for the given provider.
func NewInvoker(provider llm.Provider, cfg InvokerConfig) *Invoker {
	if cfg.Mode == "" {
		cfg.Mode = llm.OutputStructured
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	return &Invoker{
		provider:  provider,
		validator: schema.NewValidator(),
		cfg:       cfg,
	}
}

// ProviderName returns the provider identifier used in logs and records.
func (inv *Invoker) ProviderName() string {
	return inv.provider.Name()
}

// Validate checks input against its `validate` tags.
func (inv *Invoker) Validate(flow string, input any) error {
	err := inv.validator.Struct(input)
	if err == nil {
		return nil
	}
	var ferr *schema.FieldError
	if errors.As(err, &ferr) {
		return &InputValidationError{Flow: flow, Field: ferr.Field, Constraint: ferr.Constraint, Err: err}
	}
	return &InputValidationError{Flow: flow, Err: err}
}

// Invoke validates input, renders the flow's prompt, makes one model call
// and returns the validated output.
func Invoke[In, Out any](ctx context.Context, inv *Invoker, flow *Flow[In, Out], input In) (*Out, error) {
	if err := inv.Validate(flow.Name, input); err != nil {
		return nil, err
	}

	payload, err := flow.Render(input)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", flow.Name, err)
	}
	log.Debug().Str("flow", flow.Name).Str("prompt", payload.Text()).Msg("rendered prompt")

	resp, err := inv.generate(ctx, &llm.Request{
		Flow:    flow.Name,
		Payload: payload,
		Schema:  flow.Output,
		Mode:    inv.cfg.Mode,
	})
	if err != nil {
		if errors.Is(err, llm.ErrEmptyResponse) {
			return nil, &ModelOutputError{Flow: flow.Name, Reason: err.Error(), Err: err}
		}
		return nil, &TransportError{Flow: flow.Name, Provider: inv.provider.Name(), Err: err}
	}

	out, err := decodeOutput(flow, resp.Text)
	if err != nil {
		log.Warn().Err(err).Str("flow", flow.Name).Str("response", resp.Text).Msg("model output rejected")
		return nil, err
	}
	return out, nil
}

func decodeOutput[In, Out any](flow *Flow[In, Out], raw string) (*Out, error) {
	if err := flow.Output.Validate([]byte(raw)); err != nil {
		return nil, &ModelOutputError{Flow: flow.Name, Reason: err.Error(), Raw: raw, Err: err}
	}

	var out Out
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, &ModelOutputError{Flow: flow.Name, Reason: err.Error(), Raw: raw, Err: err}
	}

	if flow.Check != nil {
		if err := flow.Check(&out); err != nil {
			return nil, &ModelOutputError{Flow: flow.Name, Reason: err.Error(), Raw: raw, Err: err}
		}
	}
	return &out, nil
}

// generate calls the provider with the configured timeout, retrying only
// transport failures.
func (inv *Invoker) generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= inv.cfg.Retries; attempt++ {
		if attempt > 0 {
			log.Warn().Err(lastErr).Str("flow", req.Flow).Int("attempt", attempt+1).Msg("retrying model call")
			select {
			case <-ctx.Done():
				return nil, lastErr
			case <-time.After(inv.cfg.RetryDelay):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, inv.cfg.Timeout)
		resp, err := inv.provider.Generate(callCtx, req)
		timedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded)
		cancel()
		if err == nil {
			return resp, nil
		}
		// SDKs do not always wrap the context error.
		if timedOut && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		if errors.Is(err, llm.ErrEmptyResponse) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}
