package domain

import "time"

// ─── Mood Payload ───────────────────────────────────────────────────────────

// Time-of-day buckets.
const (
	TimeMorning   = "morning"
	TimeAfternoon = "afternoon"
	TimeEvening   = "evening"
	TimeLateNight = "late-night"
)

// Supported locales.
const (
	LocaleArabic  = "ar"
	LocaleDarija  = "ar-darija"
	LocaleFrench  = "fr"
	LocaleEnglish = "en"
)

// Age buckets.
const (
	AgeTeen       = "teen"
	AgeYoungAdult = "young-adult"
	AgeAdult      = "adult"
	AgeSenior     = "senior"
)

// MoodPayload is what a user submits. Field rules are enforced by the
// reflection package validator.
type MoodPayload struct {
	MoodEmoji     string `json:"mood_emoji" validate:"required"`
	MoodColor     string `json:"mood_color" validate:"required,hexcolor"`
	Intensity     *int   `json:"intensity_0_10" validate:"required,gte=0,lte=10"`
	ContextText   string `json:"context_text,omitempty"`
	MediaPresent  bool   `json:"media_present"`
	TimeBucket    string `json:"time_bucket" validate:"required,oneof=morning afternoon evening late-night"`
	GeoHint       string `json:"geo_hint,omitempty"`
	UserLocale    string `json:"user_locale" validate:"required,oneof=ar ar-darija fr en"`
	UserAgeBucket string `json:"user_age_bucket" validate:"required,oneof=teen young-adult adult senior"`
}

// IntensityValue returns the intensity, or 0 if unset.
func (p MoodPayload) IntensityValue() int {
	if p.Intensity == nil {
		return 0
	}
	return *p.Intensity
}

// ─── Artifact ───────────────────────────────────────────────────────────────

// SafetyFlag is the two-valued content classification.
type SafetyFlag string

const (
	SafetyOK      SafetyFlag = "ok"
	SafetyElevate SafetyFlag = "elevate"
)

// Valid reports whether f is exactly one of the two allowed values.
func (f SafetyFlag) Valid() bool {
	return f == SafetyOK || f == SafetyElevate
}

// Artifact field limits, in Unicode code points.
const (
	MaxReflectionChars = 360
	MaxActionChars     = 120
	MaxCaptionChars    = 90
	MinTags            = 3
	MaxTags            = 6
)

// Artifact is a validated reflection generated for one mood.
type Artifact struct {
	ReflectionText   string     `json:"reflection_text" validate:"max=360"`
	ActionSuggestion string     `json:"action_suggestion" validate:"max=120"`
	ShareCaption     string     `json:"share_caption" validate:"max=90"`
	SoundtrackHint   string     `json:"soundtrack_hint"`
	Tags             []string   `json:"tags" validate:"min=3,max=6"`
	SafetyFlag       SafetyFlag `json:"safety_flag" validate:"oneof=ok elevate"`
}

// ArtifactFields lists the keys a generated artifact must contain.
var ArtifactFields = []string{
	"reflection_text", "action_suggestion", "share_caption",
	"soundtrack_hint", "tags", "safety_flag",
}

// ─── Notification & Caption Copy ────────────────────────────────────────────

// Notification themes.
const (
	ThemeGentleReminder = "gentle_reminder"
	ThemeStreakNudge    = "streak_nudge"
	ThemeEveningCheckin = "evening_checkin"
	ThemeMilestone      = "milestone"
)

// NotificationRequest asks for push-notification copy.
type NotificationRequest struct {
	UserLocale string `json:"user_locale" validate:"required,oneof=ar ar-darija fr en"`
	Theme      string `json:"theme" validate:"required,oneof=gentle_reminder streak_nudge evening_checkin milestone"`
	DaysStreak int    `json:"days_streak" validate:"gte=0"`
}

// NotificationCopy is generated notification text.
type NotificationCopy struct {
	Title string `json:"title" validate:"required,max=80"`
	Body  string `json:"body" validate:"required,max=80"`
}

// DefaultCaptionBenefit is used when a caption request omits the benefit.
const DefaultCaptionBenefit = "Track your mood, get a tiny AI nudge"

// CaptionRequest asks for a referral share caption.
type CaptionRequest struct {
	UserLocale string `json:"user_locale" validate:"required,oneof=ar ar-darija fr en"`
	MoodEmoji  string `json:"mood_emoji" validate:"required"`
	Benefit    string `json:"benefit,omitempty"`
}

// Caption is a generated referral caption.
type Caption struct {
	Caption string `json:"caption" validate:"required,max=72"`
}

// ─── Mood Records ───────────────────────────────────────────────────────────

// MoodRecord is a stored mood submission with its artifact.
type MoodRecord struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	MoodDate     Date      `json:"mood_date"`
	MoodEmoji    string    `json:"mood_emoji"`
	MoodColor    string    `json:"mood_color"`
	Intensity    int       `json:"intensity_0_10"`
	TimeBucket   string    `json:"time_bucket"`
	UserLocale   string    `json:"user_locale"`
	MediaPresent bool      `json:"media_present"`
	Artifact     Artifact  `json:"artifact"`
	CreatedAt    time.Time `json:"created_at"`
}
