// Package classify scores a user utterance into a coarse difficulty
// tier. The classifier is pure and deterministic: ordered rules over
// static pattern sets, no I/O, no mutable state.
package classify

import (
	"regexp"
	"strings"

	"github.com/concierge-ai/concierge/internal/domain"
)

// simplePatterns match short greetings, acknowledgments, and
// time-of-day queries.
var simplePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(hi|hello|hey|thanks|thank you|yes|no|ok|okay|sure|good|great|bye|cool|nice|yep|nope|got it|alright)\b`),
	regexp.MustCompile(`(?i)^(what time|what day|what date)`),
	regexp.MustCompile(`(?i)^(gm|gn|good morning|good night|good evening)\b`),
}

// complexPatterns match requests that need a capable model: code,
// analysis and strategy work, long creation requests, deep
// explanations, multi-step and pros-and-cons requests.
var complexPatterns = []*regexp.Regexp{
	regexp.MustCompile("```"),
	regexp.MustCompile(`\b(function|class|import|export|const|let|var|def|async|await)\s`),
	regexp.MustCompile(`(?i)\b(analyze|compare|evaluate|research|strategy|proposal|implement|architect|design|refactor|debug|optimize)\b`),
	regexp.MustCompile(`(?i)\b(write me|build|create|develop|code)\s.{20,}`),
	regexp.MustCompile(`(?i)\b(explain|how does|why does|what happens when)\b.{50,}`),
	regexp.MustCompile(`(?i)\b(step.by.step|multi.?step|detailed|comprehensive|thorough)\b`),
	regexp.MustCompile(`(?i)\b(pros? and cons?|trade.?offs?|advantages|disadvantages)\b`),
}

// Complexity classifies the utterance. Rules are evaluated in order and
// the first match wins; there is no scoring sum.
func Complexity(message string) domain.Complexity {
	trimmed := strings.TrimSpace(message)

	if len(trimmed) < 15 {
		return domain.ComplexitySimple
	}

	if len(trimmed) < 30 {
		for _, p := range simplePatterns {
			if p.MatchString(trimmed) {
				return domain.ComplexitySimple
			}
		}
	}

	for _, p := range complexPatterns {
		if p.MatchString(trimmed) {
			return domain.ComplexityComplex
		}
	}

	if len(trimmed) > 500 {
		return domain.ComplexityComplex
	}

	return domain.ComplexityModerate
}
