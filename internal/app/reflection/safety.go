package reflection

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/moodi-app/moodi/internal/domain"
	"github.com/moodi-app/moodi/internal/infra/metrics"
)

// Precheck is the outcome of screening a payload's context text.
type Precheck struct {
	Flag      domain.SafetyFlag `json:"safety_flag"`
	Moderated bool              `json:"moderated"`
	Flagged   bool              `json:"flagged"`
}

// SafetyChecker screens free text before generation: the moderation endpoint
// first, then a JSON classifier for flagged text. Failures are logged and
// read as "ok"; the generated artifact's own flag is validated separately.
type SafetyChecker struct {
	mod domain.Moderator
	llm domain.ChatCompleter
	log *zap.Logger
}

// NewSafetyChecker creates a checker. A nil logger disables logging.
func NewSafetyChecker(mod domain.Moderator, llm domain.ChatCompleter, log *zap.Logger) *SafetyChecker {
	if log == nil {
		log = zap.NewNop()
	}
	return &SafetyChecker{mod: mod, llm: llm, log: log.Named("safety")}
}

// Check screens text.
func (s *SafetyChecker) Check(ctx context.Context, text string) Precheck {
	out := Precheck{Flag: domain.SafetyOK}
	if strings.TrimSpace(text) == "" || s.mod == nil {
		return out
	}

	flagged, err := s.mod.Moderate(ctx, text)
	if err != nil {
		s.log.Warn("moderation check failed", zap.Error(err))
		return out
	}
	out.Moderated = true
	out.Flagged = flagged
	if !flagged {
		return out
	}

	out.Flag = s.classify(ctx, text)
	if out.Flag == domain.SafetyElevate {
		metrics.SafetyElevations.WithLabelValues("precheck").Inc()
		s.log.Info("safety concern detected, escalation required")
	}
	return out
}

func (s *SafetyChecker) classify(ctx context.Context, text string) domain.SafetyFlag {
	if s.llm == nil {
		return domain.SafetyOK
	}
	raw, err := s.llm.Complete(ctx, domain.ChatRequest{
		Messages: []domain.ChatMessage{
			{Role: "system", Content: classifierSystemPrompt},
			{Role: "user", Content: fmt.Sprintf(classifierUserPrompt, text)},
		},
		Temperature: classifierTemperature,
	})
	if err != nil {
		metrics.GenerationFailures.WithLabelValues(KindClassifier, "generation").Inc()
		s.log.Warn("safety classification failed", zap.Error(err))
		return domain.SafetyOK
	}
	flag := domain.SafetyFlag(gjson.Get(raw, "safety_flag").String())
	if !flag.Valid() {
		s.log.Warn("safety classification returned unknown flag", zap.String("safety_flag", string(flag)))
		return domain.SafetyOK
	}
	return flag
}
