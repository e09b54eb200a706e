package approval

import (
	"strings"
	"testing"
)

func TestEvaluate(t *testing.T) {
	g := NewGate(nil)

	tests := []struct {
		name        string
		toolNames   []string
		approved    []string
		wantOK      bool
		wantBlocked []string
	}{
		{"no tools", nil, nil, true, nil},
		{"benign tool", []string{"check_email"}, nil, true, nil},
		{"sensitive unapproved", []string{"send_email"}, nil, false, []string{"send_email"}},
		{"sensitive approved", []string{"send_email"}, []string{"send_email"}, true, nil},
		{"prefix match", []string{"delete_task"}, nil, false, []string{"delete_task"}},
		{
			"mixed batch blocks only sensitive",
			[]string{"check_calendar", "publish_post", "remove_event"},
			[]string{"publish_post"},
			false,
			[]string{"remove_event"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.Evaluate(tt.toolNames, tt.approved)
			if got.Approved != tt.wantOK {
				t.Errorf("Approved = %v, want %v", got.Approved, tt.wantOK)
			}
			if len(got.BlockedTools) != len(tt.wantBlocked) {
				t.Fatalf("BlockedTools = %v, want %v", got.BlockedTools, tt.wantBlocked)
			}
			for i, name := range tt.wantBlocked {
				if got.BlockedTools[i] != name {
					t.Errorf("BlockedTools[%d] = %q, want %q", i, got.BlockedTools[i], name)
				}
			}
			if !got.Approved && !strings.Contains(got.Message, got.BlockedTools[0]) {
				t.Errorf("Message %q should name the blocked tool", got.Message)
			}
		})
	}
}
