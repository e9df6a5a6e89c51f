// Package profile resolves parsed header keys into a complete narration
// configuration.
package profile

import (
	"math"
	"strconv"
	"strings"

	"github.com/book-expert/narration-service/internal/core"
)

// Recognized header keys.
const (
	KeyLanguage   = "lang"
	KeyVoice      = "voice"
	KeyStability  = "stability"
	KeySimilarity = "similarity"
	KeyStyle      = "style"
)

// Default values applied when a header key is missing or unusable.
const (
	DefaultSourceLanguage = "en"
	DefaultVoiceID        = "CwhRBWXzGAHq8TQ4Fs17"
	DefaultStability      = 50
	DefaultSimilarity     = 75
	DefaultStyle          = 0
)

const (
	percentMin   = 0
	percentMax   = 100
	percentScale = 100.0
)

// Defaults holds the deployment-level fallbacks for a run. Empty fields fall back to
// DefaultSourceLanguage and DefaultVoiceID.
type Defaults struct {
	SourceLanguage string
	VoiceID        string
}

// Configuration is the resolved tuning state for a single run.
type Configuration struct {
	// TargetLanguage is empty when no translation is requested.
	TargetLanguage string
	SourceLanguage string
	VoiceID        string
	Tuning         core.Tuning
}

// WantsTranslation reports whether the run must translate the body.
func (c Configuration) WantsTranslation() bool {
	return c.TargetLanguage != ""
}

// Resolve merges headers with defaults. Malformed values never fail the run; they
// degrade to the documented default.
func Resolve(headers map[string]string, defaults Defaults) Configuration {
	sourceLanguage := defaults.SourceLanguage
	if sourceLanguage == "" {
		sourceLanguage = DefaultSourceLanguage
	}

	voiceID := defaults.VoiceID
	if voiceID == "" {
		voiceID = DefaultVoiceID
	}

	if voice := headers[KeyVoice]; voice != "" {
		voiceID = voice
	}

	return Configuration{
		TargetLanguage: targetLanguage(headers[KeyLanguage], sourceLanguage),
		SourceLanguage: sourceLanguage,
		VoiceID:        voiceID,
		Tuning: core.Tuning{
			Stability:  percentage(headers, KeyStability, DefaultStability),
			Similarity: percentage(headers, KeySimilarity, DefaultSimilarity),
			Style:      percentage(headers, KeyStyle, DefaultStyle),
		},
	}
}

func targetLanguage(requested, sourceLanguage string) string {
	if requested == "" || strings.EqualFold(requested, sourceLanguage) {
		return ""
	}

	return requested
}

// percentage reads key as a 0..100 value and scales it to [0,1].
func percentage(headers map[string]string, key string, fallback int) float64 {
	value := float64(fallback)

	raw, ok := headers[key]
	if ok {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err == nil && !math.IsNaN(parsed) && parsed >= percentMin && parsed <= percentMax {
			value = parsed
		}
	}

	return clamp(value / percentScale)
}

func clamp(value float64) float64 {
	return math.Min(1, math.Max(0, value))
}
