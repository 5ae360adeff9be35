// Package followup offers non-authoritative follow-up question hints.
package followup

import "kb-assistant-be/internal/constant"

type Generator interface {
	Suggest(question, answer string) []string
}

// Static always offers the same fixed suggestions.
type Static struct {
	Suggestions []string
}

func NewStatic() *Static {
	return &Static{Suggestions: constant.DefaultFollowUpSuggestions}
}

func (s *Static) Suggest(_, _ string) []string {
	return append([]string(nil), s.Suggestions...)
}

// None never suggests anything.
type None struct{}

func (None) Suggest(_, _ string) []string { return nil }
