// Package memory stores long-lived user facts and surfaces the ones
// relevant to the current utterance.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/concierge-ai/concierge/internal/storage"
)

// Memory is one stored fact about a user.
type Memory struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"-"`
	Category  string    `db:"category" json:"category"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ContextSource surfaces memories relevant to an utterance.
type ContextSource interface {
	Relevant(ctx context.Context, userID, utterance string, limit int) ([]Memory, error)
}

// Store is the sqlite-backed memory store.
type Store struct {
	db *storage.DB
}

var _ ContextSource = (*Store)(nil)

// NewStore returns a Store backed by db.
func NewStore(db *storage.DB) *Store {
	return &Store{db: db}
}

// Add stores a fact. Empty category defaults to "general".
func (s *Store) Add(ctx context.Context, userID, category, content string) (*Memory, error) {
	if category == "" {
		category = "general"
	}
	m := &Memory{
		ID:        uuid.New().String(),
		UserID:    userID,
		Category:  category,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO memories (id, user_id, category, content, created_at)
		 VALUES (:id, :user_id, :category, :content, :created_at)`, m)
	if err != nil {
		return nil, fmt.Errorf("store memory: %w", err)
	}
	return m, nil
}

// List returns all of a user's memories, newest first.
func (s *Store) List(ctx context.Context, userID string) ([]Memory, error) {
	var out []Memory
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, user_id, category, content, created_at
		 FROM memories WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	return out, nil
}

// Delete removes one memory.
func (s *Store) Delete(ctx context.Context, userID, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	return nil
}

// Relevant scores memories by keyword overlap with the utterance and
// returns at most limit matches, best first. Words of three characters
// or fewer carry no signal and are ignored.
func (s *Store) Relevant(ctx context.Context, userID, utterance string, limit int) ([]Memory, error) {
	all, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	keywords := queryKeywords(utterance)
	if len(keywords) == 0 {
		return nil, nil
	}

	type scored struct {
		memory Memory
		score  int
	}
	var matches []scored
	for _, m := range all {
		content := strings.ToLower(m.Content)
		score := 0
		for _, kw := range keywords {
			if strings.Contains(content, kw) {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scored{memory: m, score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	out := make([]Memory, len(matches))
	for i, m := range matches {
		out[i] = m.memory
	}
	return out, nil
}

func queryKeywords(utterance string) []string {
	fields := strings.FieldsFunc(strings.ToLower(utterance), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	seen := map[string]bool{}
	var out []string
	for _, f := range fields {
		if len(f) <= 3 || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
