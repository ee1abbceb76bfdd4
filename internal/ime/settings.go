package ime

import (
	"time"

	"kboverlay/internal/overlay"
)

// Settings are the user-tunable parts of an engine, already resolved from
// configuration, locale tables and the snippet store.
type Settings struct {
	HoldThreshold time.Duration
	SettleDelay   time.Duration

	DiacriticsEnabled bool
	Diacritics        overlay.DiacriticTable

	EmojiEnabled        bool
	EmojiPrefix         string
	EmojiMinQueryLength int

	ExpansionEnabled  bool
	RequireTriggerKey bool
	TriggerKey        overlay.Key
	Expansions        map[string]string
}

// DefaultSettings mirrors the defaults of the individual triggers.
func DefaultSettings() Settings {
	return Settings{
		HoldThreshold:       overlay.DefaultHoldThreshold,
		SettleDelay:         overlay.DefaultSettleDelay,
		DiacriticsEnabled:   true,
		Diacritics:          overlay.DefaultDiacritics(),
		EmojiPrefix:         overlay.DefaultPrefix,
		EmojiMinQueryLength: overlay.DefaultMinQueryLength,
		RequireTriggerKey:   true,
		TriggerKey:          overlay.KeyTab,
	}
}
