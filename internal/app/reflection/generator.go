// Package reflection turns a mood payload into a validated reflection
// artifact using an LLM, and generates notification and referral copy.
// Generation is never retried and never falls back to canned text: callers
// get either a validated value, a *domain.ValidationError, or a
// *domain.GenerationError.
package reflection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/moodi-app/moodi/internal/domain"
	"github.com/moodi-app/moodi/internal/infra/cache"
	"github.com/moodi-app/moodi/internal/infra/metrics"
)

// Generation kinds, used as metric labels.
const (
	KindReflection   = "reflection"
	KindNotification = "notification"
	KindCaption      = "caption"
	KindClassifier   = "classifier"
)

// Generator produces artifacts and microcopy.
type Generator struct {
	llm      domain.ChatCompleter
	cache    domain.ArtifactCache
	validate *validator.Validate
	clean    sanitizer
	log      *zap.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithCache enables artifact caching.
func WithCache(c domain.ArtifactCache) Option {
	return func(g *Generator) { g.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.log = l.Named("reflection")
		}
	}
}

// NewGenerator creates a generator over llm.
func NewGenerator(llm domain.ChatCompleter, opts ...Option) *Generator {
	g := &Generator{
		llm:      llm,
		validate: newValidator(),
		clean:    newSanitizer(),
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// ValidatePayload checks a mood payload's field rules.
func (g *Generator) ValidatePayload(p domain.MoodPayload) error {
	return check(g.validate, "payload", p)
}

// Generate produces a validated artifact for p.
func (g *Generator) Generate(ctx context.Context, p domain.MoodPayload) (domain.Artifact, error) {
	if err := g.ValidatePayload(p); err != nil {
		return domain.Artifact{}, err
	}
	p = g.clean.payload(p)

	key := g.lookupKey(p)
	if a, ok := g.cached(ctx, key); ok {
		return a, nil
	}

	payloadJSON, err := encodeIndent(p)
	if err != nil {
		return domain.Artifact{}, &domain.GenerationError{Op: "encode payload", Err: err}
	}

	raw, err := g.complete(ctx, KindReflection, domain.ChatRequest{
		Messages: []domain.ChatMessage{
			{Role: "system", Content: reflectionSystemPrompt},
			{Role: "user", Content: fmt.Sprintf(reflectionUserPrompt, payloadJSON)},
		},
		Temperature: reflectionTemperature,
	})
	if err != nil {
		return domain.Artifact{}, err
	}

	a, err := g.parseArtifact(raw)
	if err != nil {
		g.fail(KindReflection, err)
		return domain.Artifact{}, err
	}

	if a.SafetyFlag == domain.SafetyElevate {
		metrics.SafetyElevations.WithLabelValues("artifact").Inc()
	}
	g.store(ctx, key, a)
	return a, nil
}

// parseArtifact checks key presence, decodes, sanitizes and validates raw.
func (g *Generator) parseArtifact(raw string) (domain.Artifact, error) {
	if !gjson.Valid(raw) || !gjson.Parse(raw).IsObject() {
		return domain.Artifact{}, &domain.GenerationError{Op: "parse artifact", Err: errors.New("response is not a JSON object")}
	}

	var problems []string
	for _, f := range domain.ArtifactFields {
		if !gjson.Get(raw, f).Exists() {
			problems = append(problems, "Missing required field: "+f)
		}
	}
	if tags := gjson.Get(raw, "tags"); tags.Exists() && !tags.IsArray() {
		problems = append(problems, "tags must be an array")
	}
	if len(problems) > 0 {
		return domain.Artifact{}, &domain.ValidationError{Subject: "artifact", Problems: problems}
	}

	var a domain.Artifact
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return domain.Artifact{}, &domain.ValidationError{Subject: "artifact", Problems: []string{err.Error()}}
	}
	a = g.clean.artifact(a)
	if err := check(g.validate, "artifact", a); err != nil {
		return domain.Artifact{}, err
	}
	return a, nil
}

// Notification generates push-notification copy.
func (g *Generator) Notification(ctx context.Context, req domain.NotificationRequest) (domain.NotificationCopy, error) {
	if err := check(g.validate, "notification request", req); err != nil {
		return domain.NotificationCopy{}, err
	}

	raw, err := g.complete(ctx, KindNotification, domain.ChatRequest{
		Messages: []domain.ChatMessage{
			{Role: "system", Content: notificationSystemPrompt},
			{Role: "user", Content: fmt.Sprintf(notificationUserPrompt, req.UserLocale, req.Theme, req.DaysStreak)},
		},
		Temperature: notificationTemperature,
	})
	if err != nil {
		return domain.NotificationCopy{}, err
	}

	var out domain.NotificationCopy
	if err := g.decodeCopy(raw, &out); err != nil {
		g.fail(KindNotification, err)
		return domain.NotificationCopy{}, err
	}
	out.Title = g.clean.text(out.Title)
	out.Body = g.clean.text(out.Body)
	if err := check(g.validate, "notification", out); err != nil {
		g.fail(KindNotification, err)
		return domain.NotificationCopy{}, err
	}
	return out, nil
}

// ReferralCaption generates a short social share caption. An empty Benefit
// uses domain.DefaultCaptionBenefit.
func (g *Generator) ReferralCaption(ctx context.Context, req domain.CaptionRequest) (domain.Caption, error) {
	if req.Benefit == "" {
		req.Benefit = domain.DefaultCaptionBenefit
	}
	req.Benefit = g.clean.text(req.Benefit)
	if err := check(g.validate, "caption request", req); err != nil {
		return domain.Caption{}, err
	}

	raw, err := g.complete(ctx, KindCaption, domain.ChatRequest{
		Messages: []domain.ChatMessage{
			{Role: "system", Content: captionSystemPrompt},
			{Role: "user", Content: fmt.Sprintf(captionUserPrompt, req.UserLocale, req.MoodEmoji, req.Benefit)},
		},
		Temperature: captionTemperature,
	})
	if err != nil {
		return domain.Caption{}, err
	}

	var out domain.Caption
	if err := g.decodeCopy(raw, &out); err != nil {
		g.fail(KindCaption, err)
		return domain.Caption{}, err
	}
	out.Caption = g.clean.text(out.Caption)
	if err := check(g.validate, "caption", out); err != nil {
		g.fail(KindCaption, err)
		return domain.Caption{}, err
	}
	return out, nil
}

// complete calls the LLM, recording latency and wrapping failures.
func (g *Generator) complete(ctx context.Context, kind string, req domain.ChatRequest) (string, error) {
	start := time.Now()
	raw, err := g.llm.Complete(ctx, req)
	metrics.GenerationLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		gerr := &domain.GenerationError{Op: "generate " + kind, Err: err}
		g.fail(kind, gerr)
		return "", gerr
	}
	return raw, nil
}

func (g *Generator) decodeCopy(raw string, v any) error {
	if !gjson.Valid(raw) || !gjson.Parse(raw).IsObject() {
		return &domain.GenerationError{Op: "parse response", Err: errors.New("response is not a JSON object")}
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return &domain.ValidationError{Subject: "response", Problems: []string{err.Error()}}
	}
	return nil
}

func (g *Generator) fail(kind string, err error) {
	class := "generation"
	if errors.Is(err, domain.ErrValidation) {
		class = "validation"
	}
	metrics.GenerationFailures.WithLabelValues(kind, class).Inc()
	g.log.Warn("generation failed", zap.String("kind", kind), zap.String("class", class), zap.Error(err))
}

// ─── Cache ──────────────────────────────────────────────────────────────────

func (g *Generator) lookupKey(p domain.MoodPayload) string {
	if g.cache == nil {
		return ""
	}
	key, err := cache.Key(p)
	if err != nil {
		g.log.Warn("cache key", zap.Error(err))
		return ""
	}
	return key
}

// cached returns a hit. Cache errors are logged and treated as misses.
func (g *Generator) cached(ctx context.Context, key string) (domain.Artifact, bool) {
	if key == "" {
		return domain.Artifact{}, false
	}
	a, err := g.cache.Get(ctx, key)
	switch {
	case err == nil:
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return a, true
	case errors.Is(err, domain.ErrCacheMiss):
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	default:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		g.log.Warn("cache get", zap.Error(err))
	}
	return domain.Artifact{}, false
}

func (g *Generator) store(ctx context.Context, key string, a domain.Artifact) {
	if key == "" {
		return
	}
	if err := g.cache.Set(ctx, key, a); err != nil {
		g.log.Warn("cache set", zap.Error(err))
	}
}

// encodeIndent renders v as indented JSON without HTML escaping, so emoji and
// non-Latin text reach the model unchanged.
func encodeIndent(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
