package moderation

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DraftMode selects how DraftPrompt produces its prompt.
type DraftMode string

const (
	// DraftModel asks the model to draft the prompt.
	DraftModel DraftMode = "model"
	// DraftLocal renders the moderation prompt locally, with images
	// replaced by positional markers. No model call is made.
	DraftLocal DraftMode = "local"
)

// ParseDraftMode parses a DRAFT_MODE value. Empty means DraftModel.
func ParseDraftMode(s string) (DraftMode, error) {
	switch DraftMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", DraftModel:
		return DraftModel, nil
	case DraftLocal:
		return DraftLocal, nil
	default:
		return "", fmt.Errorf("unknown draft mode %q, expected model or local", s)
	}
}

// Decision is a recorded verdict.
type Decision struct {
	ID             string    `json:"id"`
	ProductDetails string    `json:"productDetails"`
	ImageCount     int       `json:"imageCount"`
	Approved       bool      `json:"approved"`
	Reason         string    `json:"reason"`
	Model          string    `json:"model"`
	Cached         bool      `json:"cached"`
	CreatedAt      time.Time `json:"createdAt"`
}

// VerdictCache stores verdicts by request key. GetVerdict returns nil, nil
// on a miss.
type VerdictCache interface {
	GetVerdict(ctx context.Context, key string) (*ModerationVerdict, error)
	SetVerdict(ctx context.Context, key string, v *ModerationVerdict) error
}

// DecisionLog persists decisions.
type DecisionLog interface {
	RecordDecision(ctx context.Context, d *Decision) error
}

// RejectionNotifier is told about every rejected image.
type RejectionNotifier interface {
	NotifyRejection(ctx context.Context, d *Decision) error
}

// Service exposes the three moderation operations.
type Service struct {
	invoker   *Invoker
	draftMode DraftMode
	cache     VerdictCache
	decisions DecisionLog
	notifier  RejectionNotifier
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithDraftMode selects how DraftPrompt produces its prompt.
func WithDraftMode(mode DraftMode) Option {
	return func(s *Service) { s.draftMode = mode }
}

// WithVerdictCache enables verdict caching for Moderate.
func WithVerdictCache(c VerdictCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithDecisionLog records every verdict returned by Moderate.
func WithDecisionLog(l DecisionLog) Option {
	return func(s *Service) { s.decisions = l }
}

// WithNotifier reports rejected images to n.
func WithNotifier(n RejectionNotifier) Option {
	return func(s *Service) { s.notifier = n }
}

// NewService creates a Service backed by the given invoker.
func NewService(invoker *Invoker, opts ...Option) *Service {
	s := &Service{
		invoker:   invoker,
		draftMode: DraftModel,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Moderate returns the model's verdict on a customer image.
func (s *Service) Moderate(ctx context.Context, req ModerationRequest) (*ModerationVerdict, error) {
	if err := s.invoker.Validate(FlowModerate, req); err != nil {
		return nil, err
	}

	var key string
	if s.cache != nil {
		key = VerdictKey(req)
		cached, err := s.cache.GetVerdict(ctx, key)
		if err != nil {
			log.Warn().Err(err).Msg("failed to read verdict cache")
		} else if cached != nil {
			log.Info().Bool("approved", cached.Approved).Msg("verdict cache hit")
			s.record(ctx, req, cached, true)
			return cached, nil
		}
	}

	verdict, err := Invoke(ctx, s.invoker, VerdictFlow, req)
	if err != nil {
		return nil, err
	}

	log.Info().
		Bool("approved", verdict.Approved).
		Str("reason", verdict.Reason).
		Int("productImages", len(req.ProductImages)).
		Msg("image moderated")

	if s.cache != nil {
		if err := s.cache.SetVerdict(ctx, key, verdict); err != nil {
			log.Warn().Err(err).Msg("failed to cache verdict")
		}
	}
	s.record(ctx, req, verdict, false)
	return verdict, nil
}

func (s *Service) record(ctx context.Context, req ModerationRequest, v *ModerationVerdict, cached bool) {
	if s.decisions == nil && s.notifier == nil {
		return
	}
	d := &Decision{
		ID:             uuid.NewString(),
		ProductDetails: req.ProductDetails,
		ImageCount:     len(req.ProductImages),
		Approved:       v.Approved,
		Reason:         v.Reason,
		Model:          s.invoker.ProviderName(),
		Cached:         cached,
		CreatedAt:      s.now().UTC(),
	}
	if s.decisions != nil {
		if err := s.decisions.RecordDecision(ctx, d); err != nil {
			log.Warn().Err(err).Str("decisionId", d.ID).Msg("failed to record decision")
		}
	}
	if s.notifier != nil && !d.Approved {
		if err := s.notifier.NotifyRejection(ctx, d); err != nil {
			log.Warn().Err(err).Str("decisionId", d.ID).Msg("failed to send rejection notification")
		}
	}
}

// ExplainRejections explains the identified violations. The number of
// explanations returned may differ from the number of violations.
func (s *Service) ExplainRejections(ctx context.Context, req ExplanationRequest) (*ExplanationResult, error) {
	res, err := Invoke(ctx, s.invoker, ExplainFlow, req)
	if err != nil {
		return nil, err
	}
	if len(res.Explanations) != len(req.IdentifiedViolations) {
		log.Debug().
			Int("violations", len(req.IdentifiedViolations)).
			Int("explanations", len(res.Explanations)).
			Msg("explanation count differs from violation count")
	}
	return res, nil
}

// DraftPrompt drafts a moderation prompt, either with the model or by
// rendering locally depending on the configured DraftMode.
func (s *Service) DraftPrompt(ctx context.Context, req DraftPromptRequest) (*DraftPromptResult, error) {
	if s.draftMode != DraftLocal {
		return Invoke(ctx, s.invoker, DraftFlow, req)
	}

	if err := s.invoker.Validate(FlowDraft, req); err != nil {
		return nil, err
	}
	payload, err := checklistTemplate.Render(req)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", FlowDraft, err)
	}
	return &DraftPromptResult{Prompt: payload.Text()}, nil
}

// VerdictKey returns a cache key for a moderation request. Fields are
// length-prefixed so that no two distinct requests share a key.
func VerdictKey(req ModerationRequest) string {
	h := sha256.New()
	write := func(s string) {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}
	write(FlowModerate)
	write(req.ProductDetails)
	write(fmt.Sprint(len(req.ProductImages)))
	for _, img := range req.ProductImages {
		write(img)
	}
	write(req.CustomerImage)
	return hex.EncodeToString(h.Sum(nil))
}
