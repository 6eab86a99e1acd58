package types

import "time"

// Record is one generated row keyed by column name.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat message sent to an LLM transport.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Provenance records which LLM call produced a record.
type Provenance struct {
	CallID  string    `json:"call_id"`
	Batch   int       `json:"batch"`
	Attempt int       `json:"attempt"`
	At      time.Time `json:"at"`
}
