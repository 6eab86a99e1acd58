package assistant

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"sdsdg/internal/conversation"
	"sdsdg/internal/generator"
	"sdsdg/internal/schema"
	"sdsdg/internal/tokens"
	"sdsdg/internal/types"
)

// HistoryEntry is one recorded generation run.
type HistoryEntry struct {
	Key        string            `json:"key"`
	Connection string            `json:"connection"`
	Schema     string            `json:"schema"`
	Prompt     string            `json:"prompt"`
	Result     *generator.Result `json:"result"`
	At         time.Time         `json:"at"`
}

// Session holds the conversation and run history of one user. It is not safe
// for concurrent use.
type Session struct {
	ID           string
	Conversation *conversation.Conversation
	history      []HistoryEntry
}

// NewSession returns an empty session.
func NewSession(counter tokens.Counter) *Session {
	return &Session{
		ID:           uuid.NewString(),
		Conversation: conversation.New(counter),
	}
}

// NewSession returns an empty session weighing turns with the assistant's counter.
func (a *Assistant) NewSession() *Session {
	return NewSession(a.counter)
}

// History returns the recorded runs, oldest first.
func (s *Session) History() []HistoryEntry {
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// Entry returns the run recorded under key, such as "gen1".
func (s *Session) Entry(key string) (HistoryEntry, bool) {
	for _, e := range s.history {
		if e.Key == key {
			return e, true
		}
	}
	return HistoryEntry{}, false
}

func (s *Session) record(conn, text string, sc *schema.Schema, res *generator.Result) HistoryEntry {
	e := HistoryEntry{
		Key:        fmt.Sprintf("gen%d", len(s.history)+1),
		Connection: conn,
		Schema:     sc.Name,
		Prompt:     text,
		Result:     res,
		At:         time.Now(),
	}
	s.history = append(s.history, e)
	s.Conversation.Append(types.RoleUser, text)
	s.Conversation.Append(types.RoleAssistant, summary(res))
	return e
}
