package route

import (
	"regexp"
	"strings"

	"github.com/concierge-ai/concierge/internal/domain"
)

// triggerPatterns are high-confidence multi-word tool intents: a verb
// plus a tool-domain object. Single keywords over-trigger on casual
// conversation, exact phrases under-trigger on paraphrase, so the
// upgrader escalates through three tiers of matching.
var triggerPatterns = []*regexp.Regexp{
	// Task management
	regexp.MustCompile(`(?i)\b(add|create|new|make|set up|setup)\b.{0,20}\b(task|todo|to-do|to do|item|ticket)\b`),
	regexp.MustCompile(`(?i)\b(mark|move|update|change|set|put)\b.{0,30}\b(done|complete|progress|status|pending|archived|in.progress)\b`),
	regexp.MustCompile(`(?i)\b(pending|done|complete|progress|in.progress)\b.{0,30}\b(task|todo|to-do|to do|all|back)\b`),
	regexp.MustCompile(`(?i)\b(show|list|what are|check|my|get)\b.{0,20}\b(task|todo|to-do|to do|pending|backlog)\b`),
	regexp.MustCompile(`(?i)\b(finish|complete|archive|delete|remove)\b.{0,15}\b(task|todo|to-do)\b`),
	// Email
	regexp.MustCompile(`(?i)\b(check|read|send|draft|write|reply)\b.{0,15}\b(email|mail|inbox|gmail)\b`),
	regexp.MustCompile(`(?i)\b(email|mail)\b.{0,15}\b(check|send|draft|unread)\b`),
	// Calendar
	regexp.MustCompile(`(?i)\b(check|show|what|schedule|book|add)\b.{0,15}\b(calendar|meeting|schedule|event|appointment)\b`),
	// Web search
	regexp.MustCompile(`(?i)\b(search|look up|find|research|browse|google)\b.{0,20}\b(web|online|internet|about|for)\b`),
	// Memory
	regexp.MustCompile(`(?i)\b(remember|save|store|recall|what do you know)\b`),
	// Telephony
	regexp.MustCompile(`(?i)\b(call me|phone me|ring me|remind me by call)\b`),
	// Channel analytics
	regexp.MustCompile(`(?i)\b(youtube|channel|video|subscriber|upload|content).{0,15}\b(stats|analytics|performance|views|trending)\b`),
	regexp.MustCompile(`(?i)\b(analyze|check|how.s).{0,15}\b(youtube|channel|video)\b`),
}

// toolKeywords is the broad second tier: any mention of a
// tool-actionable concept.
var toolKeywords = regexp.MustCompile(`(?i)\b(task|tasks|todo|to-?do|email|mail|inbox|gmail|calendar|meeting|schedule|event|search|remember|recall|memory|call me|phone|youtube|channel|pending|in.progress|completed|done|archived|progress|priority|deadline)\b`)

// affirmative matches short confirmations that should stay on the tool
// model when the recent conversation already involved tools.
var affirmative = regexp.MustCompile(`(?i)^(yes|yeah|yep|yea|ok|okay|sure|go ahead|do it|please|confirm|alright|right|correct|exactly|that one|this one|go|proceed|y)\b`)

// toolContext matches explicit tool-result markers or tool-domain
// keywords in prior messages.
var toolContext = regexp.MustCompile(`(?i)\b(task|email|calendar|manage_task|check_email)\b`)

// toolContextWindow is how many trailing messages are inspected for
// prior tool context when the user sends a bare affirmative.
const toolContextWindow = 8

// Upgrade names the fixed model/provider pair known to emit structured
// tool calls reliably.
type Upgrade struct {
	Model    string
	Provider string
}

// Upgrader detects tool intent in a turn and forces a switch to a
// reliable tool-calling model.
type Upgrader struct {
	target   Upgrade
	reliable map[string]bool
}

// NewUpgrader creates an upgrader targeting the given capable pair.
// Providers in reliable never need upgrading.
func NewUpgrader(target Upgrade, reliable []string) *Upgrader {
	set := make(map[string]bool, len(reliable))
	for _, p := range reliable {
		set[p] = true
	}
	return &Upgrader{target: target, reliable: set}
}

// Target returns the capable pair the upgrader switches to.
func (u *Upgrader) Target() Upgrade {
	return u.target
}

// Reliable reports whether a provider's structured tool-call output is
// trusted without post-hoc text inspection.
func (u *Upgrader) Reliable(provider string) bool {
	return u.reliable[provider]
}

// NeedsUpgrade reports whether the turn should move to the capable
// pair: tools are requested, the current provider is outside the
// reliable set, and the latest user message signals tool intent.
func (u *Upgrader) NeedsUpgrade(messages []domain.Message, tools []domain.ToolSpec, currentProvider string) bool {
	if len(tools) == 0 {
		return false
	}
	if u.reliable[currentProvider] {
		return false
	}

	text := lastUserText(messages)
	if text == "" {
		return false
	}

	if matchesAny(triggerPatterns, text) {
		return true
	}
	if toolKeywords.MatchString(text) {
		return true
	}

	if affirmative.MatchString(strings.TrimSpace(text)) {
		recent := messages
		if len(recent) > toolContextWindow {
			recent = recent[len(recent)-toolContextWindow:]
		}
		for _, m := range recent {
			if strings.Contains(m.Content, "[Tool Results]") ||
				strings.Contains(m.Content, "[Called tools:") ||
				toolContext.MatchString(m.Content) {
				return true
			}
		}
	}

	return false
}

func lastUserText(messages []domain.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
