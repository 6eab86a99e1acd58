package console

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sdsdg/internal/assistant"
	"sdsdg/internal/generator"
	"sdsdg/internal/llm"
	"sdsdg/internal/schema"
	"sdsdg/internal/types"
)

type fakeGenerator struct {
	prompts []string
	err     error
}

func (f *fakeGenerator) GenerateData(_ context.Context, _ *assistant.Session, _, text string, _ map[string]int, _ ...assistant.DataOption) (*generator.Result, error) {
	f.prompts = append(f.prompts, text)
	if f.err != nil {
		return nil, f.err
	}
	return &generator.Result{
		Order:  []string{"notes"},
		Tables: map[string]*generator.TableResult{"notes": {Table: "notes", Status: generator.StatusAccepted, Requested: 1, Records: []types.Record{{"id": int64(1)}}}},
	}, nil
}

func TestAskValidatesOptions(t *testing.T) {
	var out bytes.Buffer
	c := New(strings.NewReader("M\nx\n"), &out)

	answer, err := c.Ask(Prompt{Question: "choice? ", Options: []string{"c", "m"}})
	require.NoError(t, err)
	assert.Equal(t, "m", answer)

	_, err = c.Ask(Prompt{Question: "choice? ", Options: []string{"c", "m"}})
	require.Error(t, err)
	assert.Equal(t, "choice? choice? ", out.String())
}

func TestAskLastLineWithoutNewline(t *testing.T) {
	c := New(strings.NewReader("hello"), &bytes.Buffer{})
	answer, err := c.Ask(Prompt{})
	require.NoError(t, err)
	assert.Equal(t, "hello", answer)

	_, err = c.Ask(Prompt{})
	assert.ErrorIs(t, err, io.EOF)
}

func TestConfirmRepeatsUntilValid(t *testing.T) {
	var out bytes.Buffer
	c := New(strings.NewReader("maybe\nYes\n"), &out)
	ok, err := c.Confirm("Save?")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, out.String(), "invalid option: maybe")
}

func TestChatKeepsConfirmedResults(t *testing.T) {
	var out bytes.Buffer
	input := "5 notes\ny\n\n:unknown\n3 notes\nn\n:quit\nignored\n"
	c := New(strings.NewReader(input), &out)
	gen := &fakeGenerator{}

	kept := 0
	err := c.Chat(context.Background(), gen, assistant.NewSession(nil), "notes", func(res *generator.Result, err error) error {
		kept++
		assert.NoError(t, err)
		assert.Equal(t, []string{"notes"}, res.Order)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"5 notes", "3 notes"}, gen.prompts)
	assert.Equal(t, 1, kept)
	assert.Contains(t, out.String(), "unknown command :unknown")
	assert.Contains(t, out.String(), "ACCEPTED")
}

func TestChatReportsErrorsAndContinues(t *testing.T) {
	var out bytes.Buffer
	gen := &fakeGenerator{err: errors.New("schema unavailable")}
	c := New(strings.NewReader("1 note\n2 notes\n"), &out)

	require.NoError(t, c.Chat(context.Background(), gen, assistant.NewSession(nil), "notes", nil))
	assert.Len(t, gen.prompts, 2)
	assert.Equal(t, 2, strings.Count(out.String(), "error: schema unavailable"))
}

func TestChatStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := New(strings.NewReader("1 note\n"), &bytes.Buffer{})
	err := c.Chat(ctx, &fakeGenerator{}, assistant.NewSession(nil), "notes", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

type staticSource struct{ s *schema.Schema }

func (src staticSource) Load(context.Context, string) (*schema.Schema, error) { return src.s, nil }

func TestChatHistoryWithAssistant(t *testing.T) {
	s, err := schema.Build(&schema.RawSchema{
		Name: "memo",
		Tables: []schema.RawTable{{
			Name:       "notes",
			Columns:    []schema.RawColumn{{Name: "id", DataType: "integer"}, {Name: "body", DataType: "text"}},
			PrimaryKey: []string{"id"},
		}},
	})
	require.NoError(t, err)

	pattern := regexp.MustCompile(`Generate (\d+) rows for table "notes"`)
	next := 0
	mock := &llm.MockTransport{CompleteFunc: func(_ context.Context, messages []types.Message, _ int) (string, error) {
		m := pattern.FindStringSubmatch(messages[len(messages)-1].Content)
		n, _ := strconv.Atoi(m[1])
		var rows [][]any
		for i := 0; i < n; i++ {
			next++
			rows = append(rows, []any{next, "note"})
		}
		b, _ := json.Marshal(map[string]any{"notes": map[string]any{"columns": []string{"id", "body"}, "rows": rows}})
		return string(b), nil
	}}

	cfg := generator.DefaultConfig()
	cfg.RetryDelay = 0
	a := assistant.New(staticSource{s}, mock, nil, assistant.Options{Generation: cfg, ContextWindow: 16000}, zap.NewNop())
	sess := a.NewSession()

	var out bytes.Buffer
	c := New(strings.NewReader("2 notes\nn\n4 notes\nn\n:history\n:show gen2\n:show gen9\n"), &out)
	require.NoError(t, c.Chat(context.Background(), a, sess, "memo", nil))

	text := out.String()
	assert.Contains(t, text, "gen1")
	assert.Contains(t, text, "gen2: 4 notes")
	assert.Contains(t, text, `no run "gen9"`)
	assert.Len(t, sess.History(), 2)
}
