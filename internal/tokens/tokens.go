// Package tokens estimates how many LLM tokens a piece of text occupies.
package tokens

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter counts tokens in text. Implementations must be safe for concurrent use.
type Counter interface {
	Count(text string) int
}

// Heuristic approximates tokens as one per four bytes, rounded up. It needs no
// encoding files and is monotonic in the text length.
type Heuristic struct{}

// Count implements Counter.
func (Heuristic) Count(text string) int {
	return (len(text) + 3) / 4
}

// Tiktoken counts tokens with the BPE encoding of an OpenAI model.
type Tiktoken struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads the encoding for model. Loading may download the BPE ranks on
// first use unless an offline loader is installed.
func NewTiktoken(model string) (*Tiktoken, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("load token encoding for %s: %w", model, err)
		}
	}
	return &Tiktoken{enc: enc}, nil
}

// Count implements Counter.
func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.enc.Encode(text, nil, nil))
}

// Sum counts tokens over several strings.
func Sum(c Counter, texts ...string) int {
	total := 0
	for _, t := range texts {
		total += c.Count(t)
	}
	return total
}
