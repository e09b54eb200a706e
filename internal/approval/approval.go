// Package approval gates execution of sensitive tool calls behind
// explicit prior user consent.
package approval

import (
	"fmt"
	"strings"

	"github.com/concierge-ai/concierge/internal/domain"
)

// DefaultSensitivePrefixes flags tools whose effects are outward-facing
// or destructive. The table is configuration; these are the defaults.
var DefaultSensitivePrefixes = []string{
	"send_email",
	"post_",
	"publish_",
	"delete_",
	"archive_",
	"remove_",
	"execute_",
}

// Gate evaluates requested tool names against a sensitive-tool policy.
type Gate struct {
	sensitivePrefixes []string
}

// NewGate creates a gate with the given sensitive-name prefixes. Nil
// uses DefaultSensitivePrefixes.
func NewGate(sensitivePrefixes []string) *Gate {
	if sensitivePrefixes == nil {
		sensitivePrefixes = DefaultSensitivePrefixes
	}
	return &Gate{sensitivePrefixes: sensitivePrefixes}
}

// Sensitive reports whether a tool name is flagged by the policy table.
func (g *Gate) Sensitive(toolName string) bool {
	for _, prefix := range g.sensitivePrefixes {
		if strings.HasPrefix(toolName, prefix) {
			return true
		}
	}
	return false
}

// Evaluate checks every requested tool name. Sensitive tools absent
// from the approved set block the turn; the caller must not execute any
// tool call when Approved is false.
func (g *Gate) Evaluate(toolNames, approvedTools []string) domain.ApprovalResult {
	approved := make(map[string]bool, len(approvedTools))
	for _, name := range approvedTools {
		approved[name] = true
	}

	var blocked []string
	for _, name := range toolNames {
		if g.Sensitive(name) && !approved[name] {
			blocked = append(blocked, name)
		}
	}

	if len(blocked) == 0 {
		return domain.ApprovalResult{Approved: true}
	}

	return domain.ApprovalResult{
		Approved:     false,
		BlockedTools: blocked,
		Message:      fmt.Sprintf("Approval required for sensitive tools: %s", strings.Join(blocked, ", ")),
	}
}
