// Package conversation holds the prompt/response history of one generation session.
package conversation

import (
	"sdsdg/internal/tokens"
	"sdsdg/internal/types"
)

// Turn is one message in the history with its token weight.
type Turn struct {
	Role    types.Role `json:"role"`
	Content string     `json:"content"`
	Tokens  int        `json:"tokens"`
}

// Conversation is an ordered, token-weighted history. It is owned by a single
// session and is not safe for concurrent use.
type Conversation struct {
	turns   []Turn
	counter tokens.Counter
}

// New returns an empty conversation that weighs turns with counter.
func New(counter tokens.Counter) *Conversation {
	if counter == nil {
		counter = tokens.Heuristic{}
	}
	return &Conversation{counter: counter}
}

// Append adds a turn at the end of the history.
func (c *Conversation) Append(role types.Role, content string) {
	c.turns = append(c.turns, Turn{Role: role, Content: content, Tokens: c.counter.Count(content)})
}

// Turns returns a copy of the history, oldest first.
func (c *Conversation) Turns() []Turn {
	if c == nil {
		return nil
	}
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	if c == nil {
		return 0
	}
	return len(c.turns)
}

// Tokens returns the total token weight of the history.
func (c *Conversation) Tokens() int {
	if c == nil {
		return 0
	}
	total := 0
	for _, t := range c.turns {
		total += t.Tokens
	}
	return total
}

// DropOldest removes the n oldest turns.
func (c *Conversation) DropOldest(n int) {
	if n <= 0 {
		return
	}
	if n >= len(c.turns) {
		c.turns = nil
		return
	}
	c.turns = append([]Turn(nil), c.turns[n:]...)
}

// Snapshot returns an independent copy that can be read while the original
// keeps changing.
func (c *Conversation) Snapshot() *Conversation {
	if c == nil {
		return nil
	}
	return &Conversation{turns: c.Turns(), counter: c.counter}
}

// Messages converts the history into chat messages, oldest first.
func (c *Conversation) Messages() []types.Message {
	if c == nil {
		return nil
	}
	msgs := make([]types.Message, len(c.turns))
	for i, t := range c.turns {
		msgs[i] = types.Message{Role: t.Role, Content: t.Content}
	}
	return msgs
}
