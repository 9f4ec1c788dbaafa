package processing

import (
	"strings"
)

// CleaningRule represents a single content cleaning rule
type CleaningRule interface {
	Name() string
	Apply(content string) (string, error)
}

// ProseCleaner applies rule-based cleaning to scraped prose before it is
// used in a training completion. It is only ever applied to prose: code
// fragments bypass the cleaner entirely so fenced blocks stay verbatim.
type ProseCleaner struct {
	rules        []CleaningRule
	enabledRules map[string]bool
}

// NewProseCleaner creates a cleaner with the default rules for wiki and
// forum text
func NewProseCleaner() *ProseCleaner {
	cleaner := &ProseCleaner{
		enabledRules: make(map[string]bool),
	}

	cleaner.AddRule(&EncodingFixRule{})
	cleaner.AddRule(&EntityDecodeRule{})
	cleaner.AddRule(&WhitespaceRule{})
	cleaner.AddRule(&PunctuationRule{})
	cleaner.AddRule(&DuplicateLineRule{})

	return cleaner
}

// AddRule adds a cleaning rule and enables it
func (pc *ProseCleaner) AddRule(rule CleaningRule) {
	pc.rules = append(pc.rules, rule)
	pc.enabledRules[rule.Name()] = true
}

// DisableRule disables a specific rule by name
func (pc *ProseCleaner) DisableRule(name string) {
	pc.enabledRules[name] = false
}

// Clean runs all enabled rules over the text in registration order.
// A rule that fails is skipped rather than aborting the chain.
func (pc *ProseCleaner) Clean(text string) string {
	cleaned := text
	for _, rule := range pc.rules {
		if !pc.enabledRules[rule.Name()] {
			continue
		}
		result, err := rule.Apply(cleaned)
		if err != nil {
			continue
		}
		cleaned = result
	}
	return strings.TrimSpace(cleaned)
}
