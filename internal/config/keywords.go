package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"attnroute/internal/logging"
)

// KeywordEntry maps a prompt token to one or more target files. Patterns are
// case-insensitive whole words. Immutable for the duration of a session.
type KeywordEntry struct {
	Pattern  string   `json:"pattern"`
	Targets  []string `json:"targets"`
	Category Category `json:"category"`
	Weight   float64  `json:"weight"`
}

// Validate normalizes an entry and reports whether it is usable.
func (k *KeywordEntry) Validate() error {
	k.Pattern = strings.ToLower(strings.TrimSpace(k.Pattern))
	if k.Pattern == "" {
		return fmt.Errorf("empty pattern")
	}
	if len(k.Targets) == 0 {
		return fmt.Errorf("pattern %q has no targets", k.Pattern)
	}
	if k.Category == "" {
		k.Category = CategoryMixed
	}
	if !ValidCategory(k.Category) {
		return fmt.Errorf("pattern %q has unknown category %q", k.Pattern, k.Category)
	}
	if k.Weight == 0 {
		k.Weight = 1.0
	}
	if k.Weight < 0 || k.Weight > 1.2 {
		return fmt.Errorf("pattern %q weight %v out of range", k.Pattern, k.Weight)
	}
	return nil
}

// LoadKeywords reads keywords.json. Malformed entries are skipped with a
// warning; the rest load. A missing file yields an empty list.
func LoadKeywords(path string) []KeywordEntry {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Get(logging.CategoryConfig).Warnw("cannot read keywords", "path", path, "err", err)
		}
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		logging.Get(logging.CategoryConfig).Warnw("malformed keywords file, ignoring", "path", path, "err", err)
		return nil
	}

	entries := make([]KeywordEntry, 0, len(raw))
	for i, msg := range raw {
		var entry KeywordEntry
		if err := json.Unmarshal(msg, &entry); err != nil {
			logging.Get(logging.CategoryConfig).Warnw("skipping malformed keyword entry", "index", i, "err", err)
			continue
		}
		if err := entry.Validate(); err != nil {
			logging.Get(logging.CategoryConfig).Warnw("skipping invalid keyword entry", "index", i, "err", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

// KeywordIndex maps normalized pattern -> entries for O(1) token lookup.
type KeywordIndex map[string][]KeywordEntry

// BuildKeywordIndex indexes entries by pattern.
func BuildKeywordIndex(entries []KeywordEntry) KeywordIndex {
	idx := make(KeywordIndex, len(entries))
	for _, e := range entries {
		idx[e.Pattern] = append(idx[e.Pattern], e)
	}
	return idx
}

// WriteDefaultKeywords writes a starter keywords file for `attnroute init`.
func WriteDefaultKeywords(path string) error {
	starter := []KeywordEntry{
		{Pattern: "readme", Targets: []string{"README.md"}, Category: CategoryMarkdown, Weight: 0.9},
	}
	data, err := json.MarshalIndent(starter, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal keywords skeleton: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
