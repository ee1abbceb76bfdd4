//go:build linux

package main

import (
	"fmt"
	"log/slog"
	"maps"

	"kboverlay/internal/config"
	"kboverlay/internal/emoji"
	"kboverlay/internal/ime"
	"kboverlay/internal/locale"
	"kboverlay/internal/overlay"
	"kboverlay/internal/store"
)

// resolved is a configuration turned into engine settings, with every
// referenced file already loaded.
type resolved struct {
	settings ime.Settings
	source   overlay.CandidateSource
}

// resolve never fails: a table, index or database that cannot be read is
// logged and left out, and the engine runs with what remains.
func resolve(cfg *config.Config, log *slog.Logger) resolved {
	s := ime.DefaultSettings()
	s.HoldThreshold = cfg.Overlay.HoldThreshold()
	s.SettleDelay = cfg.Overlay.SettleDelay()

	s.DiacriticsEnabled = cfg.Diacritics.Enabled
	table, t, err := locale.Load(cfg.Diacritics.TablePath, cfg.Diacritics.Merge)
	if err != nil {
		log.Warn("diacritics table not loaded; using built-in table", "path", cfg.Diacritics.TablePath, "error", err)
	} else if t != nil {
		log.Info("diacritics table loaded", "path", cfg.Diacritics.TablePath, "locale", t.Locale, "letters", len(t.Letters))
	}
	s.Diacritics = table

	s.EmojiEnabled = cfg.Emoji.Enabled
	s.EmojiPrefix = cfg.Emoji.Prefix
	s.EmojiMinQueryLength = cfg.Emoji.MinQueryLength

	var r resolved
	if cfg.Emoji.Enabled && cfg.Emoji.DataPath != "" {
		ix, err := emoji.LoadFile(cfg.Emoji.DataPath)
		if err != nil {
			log.Warn("emoji index not loaded; emoji search stays idle", "path", cfg.Emoji.DataPath, "error", err)
		} else {
			log.Info("emoji index loaded", "path", cfg.Emoji.DataPath, "entries", ix.Len())
			r.source = ix
		}
	}

	s.ExpansionEnabled = cfg.Expansion.Enabled
	s.RequireTriggerKey = cfg.Expansion.RequireTriggerKey
	if key, err := cfg.Expansion.ParsedTriggerKey(); err == nil {
		s.TriggerKey = key
	}
	if cfg.Expansion.Enabled {
		abbrevs, err := loadAbbreviations(cfg.Expansion)
		if err != nil {
			log.Warn("snippet store not loaded; using inline abbreviations only", "path", cfg.Expansion.DatabasePath, "error", err)
		}
		s.Expansions = abbrevs
	}

	r.settings = s
	return r
}

// loadAbbreviations merges the enabled snippets of the store with the
// inline abbreviations, which win on conflict. On a store error the inline
// abbreviations are still returned.
func loadAbbreviations(e config.ExpansionConfig) (map[string]string, error) {
	out := make(map[string]string)
	var storeErr error
	if e.DatabasePath != "" {
		if err := readStore(e.DatabasePath, out); err != nil {
			storeErr = err
		}
	}
	maps.Copy(out, e.Abbreviations)
	return out, storeErr
}

func readStore(path string, into map[string]string) error {
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()

	abbrevs, err := st.Abbreviations()
	if err != nil {
		return fmt.Errorf("read snippets: %w", err)
	}
	maps.Copy(into, abbrevs)
	return nil
}
