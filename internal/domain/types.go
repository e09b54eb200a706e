package domain

// Role values for chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolParam describes a single parameter of a tool.
type ToolParam struct {
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Default     any    `json:"default,omitempty"`
}

// ToolSpec is the canonical, backend-agnostic tool definition.
// Provider adapters encode it into each backend's wire shape.
type ToolSpec struct {
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Parameters  map[string]ToolParam `json:"parameters,omitempty"`
}

// ToolCall is a structured tool invocation produced by a provider result.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Usage represents token usage reported by a provider.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Request is the canonical provider request: ordered messages plus
// optional tool definitions.
type Request struct {
	Model    string     `json:"model"`
	Messages []Message  `json:"messages"`
	Tools    []ToolSpec `json:"tools,omitempty"`
	// MaxTokens caps the completion length when positive.
	MaxTokens int `json:"max_tokens,omitempty"`
	// UserID identifies whose credentials serve the call.
	UserID string `json:"-"`
}

// Result is the canonical provider result. Exactly one of Text and
// ToolCalls is populated on a successful call.
type Result struct {
	Text      string     `json:"text,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Model     string     `json:"model"`
	Usage     Usage      `json:"usage"`
}

// HasToolCalls reports whether the provider asked for tool execution.
func (r *Result) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// Complexity is the coarse difficulty tier of an utterance.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// RoutingDecision is the outcome of tier routing. Routed is false
// whenever the caller pinned a non-default model: manual choice wins.
type RoutingDecision struct {
	Model      string     `json:"model"`
	Complexity Complexity `json:"complexity"`
	Routed     bool       `json:"routed"`
}

// CostDecision is the outcome of the cost policy selector.
type CostDecision struct {
	OriginalModel       string  `json:"original_model"`
	SelectedModel       string  `json:"selected_model"`
	Tier                string  `json:"tier"`
	EstimatedCostUSD    float64 `json:"estimated_cost_usd"`
	Reason              string  `json:"reason"`
	DowngradedForBudget bool    `json:"downgraded_for_budget"`
}

// CallOutcome is the outcome of a resilient provider call.
// UsedFallback=true implies Provider differs from the primary provider.
type CallOutcome struct {
	Result       *Result
	Provider     string
	Model        string
	UsedFallback bool
}

// CompactionResult is the outcome of a compaction attempt. Messages
// always begins with the original system message (if any) and ends with
// the most recent non-system messages verbatim.
type CompactionResult struct {
	Messages    []Message
	Compacted   bool
	SavedTokens int
}

// ApprovalResult is the outcome of the approval gate.
type ApprovalResult struct {
	Approved     bool     `json:"approved"`
	BlockedTools []string `json:"blocked_tools,omitempty"`
	Message      string   `json:"message,omitempty"`
}
