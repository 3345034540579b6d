package service

import "strings"

// MatcherFunc adapts a function to the domain.Matcher interface.
type MatcherFunc func(term string, skills []string) bool

func (f MatcherFunc) Matches(term string, skills []string) bool { return f(term, skills) }

// SkillMatcher matches a term against skills exactly, case-insensitively,
// by substring in either direction and finally ignoring spaces.
type SkillMatcher struct{}

func (SkillMatcher) Matches(term string, skills []string) bool {
	t := strings.ToLower(strings.TrimSpace(term))
	if t == "" {
		return false
	}
	compact := strings.ReplaceAll(t, " ", "")

	for _, skill := range skills {
		if skill == term {
			return true
		}
		s := strings.ToLower(strings.TrimSpace(skill))
		if s == "" {
			continue
		}
		if s == t || strings.Contains(s, t) || strings.Contains(t, s) {
			return true
		}
		if strings.Contains(strings.ReplaceAll(s, " ", ""), compact) {
			return true
		}
	}
	return false
}

// DefaultKeywords maps a service type to the skill keywords that serve it.
var DefaultKeywords = map[string][]string{
	"electrician": {"electrician", "electrical", "wiring", "electric"},
	"plumber":     {"plumber", "plumbing", "pipe", "water"},
	"carpenter":   {"carpenter", "carpentry", "wood", "furniture"},
	"cleaner":     {"cleaner", "cleaning", "housekeeping", "maid"},
	"painter":     {"painter", "painting", "paint"},
	"ac":          {"ac", "air conditioning", "hvac", "cooling"},
}

// KeywordMatcher expands a known service type into its keywords before
// delegating to Base. Unknown terms go to Base unchanged.
type KeywordMatcher struct {
	Base     interface{ Matches(string, []string) bool }
	Keywords map[string][]string
}

func NewKeywordMatcher() KeywordMatcher {
	return KeywordMatcher{Base: SkillMatcher{}, Keywords: DefaultKeywords}
}

func (m KeywordMatcher) Matches(term string, skills []string) bool {
	if m.Base.Matches(term, skills) {
		return true
	}
	for _, kw := range m.Keywords[strings.ToLower(strings.TrimSpace(term))] {
		if m.Base.Matches(kw, skills) {
			return true
		}
	}
	return false
}
