package reflection

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moodi-app/moodi/internal/domain"
)

func intensity(n int) *int { return &n }

func frenchPayload() domain.MoodPayload {
	return domain.MoodPayload{
		MoodEmoji:     "😌",
		MoodColor:     "#7FD1AE",
		Intensity:     intensity(4),
		ContextText:   "petite promenade au bord de mer",
		MediaPresent:  true,
		TimeBucket:    domain.TimeEvening,
		GeoHint:       "Casablanca",
		UserLocale:    domain.LocaleFrench,
		UserAgeBucket: domain.AgeAdult,
	}
}

func darijaPayload() domain.MoodPayload {
	return domain.MoodPayload{
		MoodEmoji:     "😣",
		MoodColor:     "#F08A5D",
		Intensity:     intensity(8),
		ContextText:   "pressure dial lkhdma w deadlines",
		TimeBucket:    domain.TimeLateNight,
		GeoHint:       "Rabat",
		UserLocale:    domain.LocaleDarija,
		UserAgeBucket: domain.AgeYoungAdult,
	}
}

const validArtifact = `{
	"reflection_text": "Une petite balade au bord de mer, ça apaise. Garde ce calme avec toi ce soir.",
	"action_suggestion": "Respire profondément trois fois avant de dormir.",
	"share_caption": "La mer, le calme, et moi.",
	"soundtrack_hint": "ambient acoustique",
	"tags": ["calme", "mer", "soir", "gratitude"],
	"safety_flag": "ok"
}`

const darijaArtifact = `{
	"reflection_text": "الضغط ديال الخدمة تقيل، ولكن نتا ماشي بوحدك. خود نفس.",
	"action_suggestion": "سد الحاسوب عشر دقايق وشرب كاس ديال الما.",
	"share_caption": "نهار صعيب، ولكن غادي يدوز.",
	"soundtrack_hint": "gnawa hadi",
	"tags": ["ضغط", "خدمة", "ليل"],
	"safety_flag": "elevate"
}`

func artifactWith(field, value string) string {
	fields := map[string]string{
		"reflection_text":   `"Calm evening."`,
		"action_suggestion": `"Breathe."`,
		"share_caption":     `"Sea and calm."`,
		"soundtrack_hint":   `"lo-fi"`,
		"tags":              `["calm","sea","evening"]`,
		"safety_flag":       `"ok"`,
	}
	if value == "" {
		delete(fields, field)
	} else {
		fields[field] = value
	}
	parts := make([]string, 0, len(fields))
	for _, k := range domain.ArtifactFields {
		if v, ok := fields[k]; ok {
			parts = append(parts, `"`+k+`":`+v)
		}
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// ─── Generate ───────────────────────────────────────────────────────────────

func TestGenerate_ValidArtifact(t *testing.T) {
	llm := &fakeLLM{responses: []string{validArtifact}}
	g := NewGenerator(llm)

	a, err := g.Generate(context.Background(), frenchPayload())
	require.NoError(t, err)
	assert.Equal(t, domain.SafetyOK, a.SafetyFlag)
	assert.Len(t, a.Tags, 4)
	assert.Equal(t, "ambient acoustique", a.SoundtrackHint)

	require.Equal(t, 1, llm.callCount())
	req := llm.calls[0]
	assert.InDelta(t, 0.7, req.Temperature, 0.0001)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "MOODI Reflection Engine")
	assert.Contains(t, req.Messages[1].Content, `"geo_hint": "Casablanca"`)
	assert.Contains(t, req.Messages[1].Content, "😌")
}

func TestGenerate_DarijaSafetyFlagAndTags(t *testing.T) {
	llm := &fakeLLM{responses: []string{darijaArtifact}}
	g := NewGenerator(llm)

	a, err := g.Generate(context.Background(), darijaPayload())
	require.NoError(t, err)
	assert.True(t, a.SafetyFlag.Valid())
	assert.Equal(t, domain.SafetyElevate, a.SafetyFlag)
	assert.GreaterOrEqual(t, len(a.Tags), domain.MinTags)
	assert.LessOrEqual(t, len(a.Tags), domain.MaxTags)
}

func TestGenerate_InvalidPayloadSkipsLLM(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.MoodPayload)
		want   string
	}{
		{"intensity too high", func(p *domain.MoodPayload) { p.Intensity = intensity(11) }, "intensity_0_10"},
		{"intensity missing", func(p *domain.MoodPayload) { p.Intensity = nil }, "intensity_0_10"},
		{"bad color", func(p *domain.MoodPayload) { p.MoodColor = "teal" }, "mood_color"},
		{"bad locale", func(p *domain.MoodPayload) { p.UserLocale = "de" }, "user_locale"},
		{"bad time bucket", func(p *domain.MoodPayload) { p.TimeBucket = "noon" }, "time_bucket"},
		{"bad age bucket", func(p *domain.MoodPayload) { p.UserAgeBucket = "kid" }, "user_age_bucket"},
		{"missing emoji", func(p *domain.MoodPayload) { p.MoodEmoji = "" }, "mood_emoji"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &fakeLLM{responses: []string{validArtifact}}
			g := NewGenerator(llm)
			p := frenchPayload()
			tt.mutate(&p)

			_, err := g.Generate(context.Background(), p)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "payload", verr.Subject)
			assert.Contains(t, strings.Join(verr.Problems, "; "), tt.want)
			assert.Equal(t, 0, llm.callCount())
		})
	}
}

func TestGenerate_IntensityZeroIsValid(t *testing.T) {
	g := NewGenerator(&fakeLLM{responses: []string{validArtifact}})
	p := frenchPayload()
	p.Intensity = intensity(0)

	_, err := g.Generate(context.Background(), p)
	assert.NoError(t, err)
}

func TestGenerate_TransportFailure(t *testing.T) {
	g := NewGenerator(&fakeLLM{err: errors.New("connection reset")})

	_, err := g.Generate(context.Background(), frenchPayload())
	assert.True(t, errors.Is(err, domain.ErrGeneration), "got %v", err)
	assert.False(t, errors.Is(err, domain.ErrValidation))

	var gerr *domain.GenerationError
	require.ErrorAs(t, err, &gerr)
	assert.Contains(t, gerr.Err.Error(), "connection reset")
}

func TestGenerate_UnparsableResponse(t *testing.T) {
	for _, raw := range []string{"Sure! Here is your reflection.", `["not","an","object"]`, ""} {
		g := NewGenerator(&fakeLLM{responses: []string{raw}})
		_, err := g.Generate(context.Background(), frenchPayload())
		assert.True(t, errors.Is(err, domain.ErrGeneration), "raw %q: got %v", raw, err)
	}
}

func TestGenerate_ConstraintViolations(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		wants string
	}{
		{"missing soundtrack", artifactWith("soundtrack_hint", ""), "Missing required field: soundtrack_hint"},
		{"missing safety flag", artifactWith("safety_flag", ""), "Missing required field: safety_flag"},
		{"reflection too long", artifactWith("reflection_text", `"`+strings.Repeat("a", 361)+`"`), "reflection_text too long: 361 chars (max 360)"},
		{"action too long", artifactWith("action_suggestion", `"`+strings.Repeat("a", 121)+`"`), "action_suggestion too long"},
		{"caption too long", artifactWith("share_caption", `"`+strings.Repeat("a", 91)+`"`), "share_caption too long"},
		{"two tags", artifactWith("tags", `["a","b"]`), "tags must have 3-6 items, got 2"},
		{"seven tags", artifactWith("tags", `["a","b","c","d","e","f","g"]`), "tags must have 3-6 items, got 7"},
		{"tags not array", artifactWith("tags", `"calm"`), "tags must be an array"},
		{"unknown safety flag", artifactWith("safety_flag", `"high"`), "safety_flag must be one of 'ok', 'elevate'"},
		{"wrong type", artifactWith("reflection_text", `42`), "reflection_text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGenerator(&fakeLLM{responses: []string{tt.raw}})

			_, err := g.Generate(context.Background(), frenchPayload())
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr, "raw: %s", tt.raw)
			assert.True(t, errors.Is(err, domain.ErrValidation))
			assert.Contains(t, strings.Join(verr.Problems, "; "), tt.wants)
		})
	}
}

func TestGenerate_LengthsCountCodePoints(t *testing.T) {
	// 360 Arabic letters: 720 bytes, still within the limit.
	text := strings.Repeat("م", domain.MaxReflectionChars)
	g := NewGenerator(&fakeLLM{responses: []string{artifactWith("reflection_text", `"`+text+`"`)}})

	a, err := g.Generate(context.Background(), darijaPayload())
	require.NoError(t, err)
	assert.Equal(t, text, a.ReflectionText)
}

func TestGenerate_StripsMarkup(t *testing.T) {
	raw := artifactWith("reflection_text", `"<b>Breathe</b> &amp; rest <script>alert(1)</script>"`)
	g := NewGenerator(&fakeLLM{responses: []string{raw}})

	a, err := g.Generate(context.Background(), frenchPayload())
	require.NoError(t, err)
	assert.Equal(t, "Breathe & rest", a.ReflectionText)
}

func TestGenerate_SanitizesContextBeforePrompt(t *testing.T) {
	llm := &fakeLLM{responses: []string{validArtifact}}
	g := NewGenerator(llm)
	p := frenchPayload()
	p.ContextText = `<img src=x onerror=alert(1)>long day`

	_, err := g.Generate(context.Background(), p)
	require.NoError(t, err)
	assert.NotContains(t, llm.calls[0].Messages[1].Content, "onerror")
	assert.Contains(t, llm.calls[0].Messages[1].Content, "long day")
}

func TestGenerate_CacheHitSkipsLLM(t *testing.T) {
	llm := &fakeLLM{responses: []string{validArtifact}}
	g := NewGenerator(llm, WithCache(newMemCache()))

	first, err := g.Generate(context.Background(), frenchPayload())
	require.NoError(t, err)
	second, err := g.Generate(context.Background(), frenchPayload())
	require.NoError(t, err)

	assert.Equal(t, 1, llm.callCount())
	assert.Equal(t, first, second)
}

func TestGenerate_InvalidArtifactNotCached(t *testing.T) {
	c := newMemCache()
	llm := &fakeLLM{responses: []string{artifactWith("tags", `["a"]`), validArtifact}}
	g := NewGenerator(llm, WithCache(c))

	_, err := g.Generate(context.Background(), frenchPayload())
	require.Error(t, err)
	assert.Empty(t, c.items)

	_, err = g.Generate(context.Background(), frenchPayload())
	require.NoError(t, err)
	assert.Equal(t, 2, llm.callCount())
}

// ─── Notification ───────────────────────────────────────────────────────────

func TestNotification_Valid(t *testing.T) {
	llm := &fakeLLM{responses: []string{`{"title":"Petit check-in","body":"Comment tu te sens ce soir ?"}`}}
	g := NewGenerator(llm)

	out, err := g.Notification(context.Background(), domain.NotificationRequest{
		UserLocale: domain.LocaleFrench, Theme: domain.ThemeEveningCheckin, DaysStreak: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, "Petit check-in", out.Title)
	assert.InDelta(t, 0.7, llm.calls[0].Temperature, 0.0001)
	assert.Contains(t, llm.calls[0].Messages[1].Content, `theme="evening_checkin"`)
	assert.Contains(t, llm.calls[0].Messages[1].Content, "days_streak=4")
}

func TestNotification_TooLong(t *testing.T) {
	long := strings.Repeat("x", 81)
	g := NewGenerator(&fakeLLM{responses: []string{`{"title":"` + long + `","body":"ok"}`}})

	_, err := g.Notification(context.Background(), domain.NotificationRequest{
		UserLocale: domain.LocaleEnglish, Theme: domain.ThemeGentleReminder,
	})
	assert.True(t, errors.Is(err, domain.ErrValidation), "got %v", err)
}

func TestNotification_InvalidTheme(t *testing.T) {
	llm := &fakeLLM{}
	g := NewGenerator(llm)

	_, err := g.Notification(context.Background(), domain.NotificationRequest{
		UserLocale: domain.LocaleEnglish, Theme: "spam",
	})
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Equal(t, 0, llm.callCount())
}

func TestNotification_FailureSurfaced(t *testing.T) {
	g := NewGenerator(&fakeLLM{err: errors.New("timeout")})

	_, err := g.Notification(context.Background(), domain.NotificationRequest{
		UserLocale: domain.LocaleArabic, Theme: domain.ThemeMilestone, DaysStreak: 30,
	})
	assert.True(t, errors.Is(err, domain.ErrGeneration))
}

// ─── Referral Caption ───────────────────────────────────────────────────────

func TestReferralCaption_DefaultBenefit(t *testing.T) {
	llm := &fakeLLM{responses: []string{`{"caption":"Track your mood, feel lighter 🌊"}`}}
	g := NewGenerator(llm)

	out, err := g.ReferralCaption(context.Background(), domain.CaptionRequest{
		UserLocale: domain.LocaleEnglish, MoodEmoji: "🌊",
	})
	require.NoError(t, err)
	assert.Equal(t, "Track your mood, feel lighter 🌊", out.Caption)
	assert.Contains(t, llm.calls[0].Messages[1].Content, domain.DefaultCaptionBenefit)
	assert.InDelta(t, 0.8, llm.calls[0].Temperature, 0.0001)
}

func TestReferralCaption_Missing(t *testing.T) {
	g := NewGenerator(&fakeLLM{responses: []string{`{"text":"hello"}`}})

	_, err := g.ReferralCaption(context.Background(), domain.CaptionRequest{
		UserLocale: domain.LocaleFrench, MoodEmoji: "😊",
	})
	assert.True(t, errors.Is(err, domain.ErrValidation), "got %v", err)
}

func TestReferralCaption_TooLong(t *testing.T) {
	g := NewGenerator(&fakeLLM{responses: []string{`{"caption":"` + strings.Repeat("y", 73) + `"}`}})

	_, err := g.ReferralCaption(context.Background(), domain.CaptionRequest{
		UserLocale: domain.LocaleFrench, MoodEmoji: "😊",
	})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}
