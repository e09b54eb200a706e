package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/concierge-ai/concierge/internal/domain"
)

// ToolExecutor runs one named tool. Errors become tool-result text so
// the model can react to them.
type ToolExecutor func(ctx context.Context, name string, args map[string]any) (string, error)

// RunAgent drives the multi-round agent loop: the model proposes tool
// calls, the executor runs them one after another, results are fed back
// and the model gets another turn. The loop is bounded by
// MaxAgentRounds; an approval-required response ends it immediately so
// the sensitive call never executes.
func (o *Orchestrator) RunAgent(ctx context.Context, req *TurnRequest, exec ToolExecutor) (*TurnResponse, error) {
	messages := make([]domain.Message, len(req.Messages))
	copy(messages, req.Messages)

	var last *TurnResponse
	for round := 0; round < o.cfg.MaxAgentRounds; round++ {
		turnReq := *req
		turnReq.Messages = messages

		resp, err := o.Turn(ctx, &turnReq)
		if err != nil {
			return nil, err
		}
		last = resp

		if resp.ApprovalRequired || len(resp.ToolCalls) == 0 {
			return resp, nil
		}
		if exec == nil {
			return resp, nil
		}

		var names []string
		var results []string
		for _, call := range resp.ToolCalls {
			names = append(names, call.Name)
			out, err := exec(ctx, call.Name, call.Arguments)
			if err != nil {
				out = fmt.Sprintf("error: %v", err)
			}
			results = append(results, fmt.Sprintf("%s: %s", call.Name, out))
		}
		o.logger.Info("agent round executed tools", "round", round+1, "tools", names)

		messages = append(messages,
			domain.Message{
				Role:    domain.RoleAssistant,
				Content: fmt.Sprintf("[Called tools: %s]", strings.Join(names, ", ")),
			},
			domain.Message{
				Role:    domain.RoleSystem,
				Content: "Tool results:\n" + strings.Join(results, "\n"),
			},
		)
	}

	o.logger.Warn("agent loop hit round limit", "rounds", o.cfg.MaxAgentRounds)
	return last, nil
}
