package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sdsdg/internal/apperrors"
	"sdsdg/internal/codegen"
	"sdsdg/internal/config"
	"sdsdg/internal/generator"
	"sdsdg/internal/hints"
	"sdsdg/internal/llm"
	"sdsdg/internal/schema"
	"sdsdg/internal/types"
)

type sourceFunc func(ctx context.Context, name string) (*schema.Schema, error)

func (f sourceFunc) Load(ctx context.Context, name string) (*schema.Schema, error) {
	return f(ctx, name)
}

func shopSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.Build(&schema.RawSchema{
		Name: "shop",
		Tables: []schema.RawTable{
			{
				Name: "customers",
				Columns: []schema.RawColumn{
					{Name: "id", DataType: "integer"},
					{Name: "email", DataType: "varchar(80)", IsUnique: true},
				},
				PrimaryKey: []string{"id"},
			},
			{
				Name: "orders",
				Columns: []schema.RawColumn{
					{Name: "id", DataType: "integer"},
					{Name: "customer_id", DataType: "integer"},
				},
				PrimaryKey:  []string{"id"},
				ForeignKeys: []schema.RawForeignKey{{Column: "customer_id", ReferencedTable: "customers", ReferencedColumn: "id"}},
			},
			{
				Name:       "product_categories",
				Columns:    []schema.RawColumn{{Name: "id", DataType: "integer"}, {Name: "label", DataType: "text"}},
				PrimaryKey: []string{"id"},
			},
		},
	})
	require.NoError(t, err)
	return s
}

func shopSource(t *testing.T) SchemaSource {
	s := shopSchema(t)
	return sourceFunc(func(_ context.Context, name string) (*schema.Schema, error) {
		if name != "shop" {
			return nil, fmt.Errorf("%w: %q", apperrors.ErrConnectionNotFound, name)
		}
		return s, nil
	})
}

var callPattern = regexp.MustCompile(`Generate (\d+) rows for table "([^"]+)"`)

// shopTransport answers every table request with sequential ids.
func shopTransport(t *testing.T) *llm.MockTransport {
	var mu sync.Mutex
	next := map[string]int{}
	return &llm.MockTransport{CompleteFunc: func(_ context.Context, messages []types.Message, _ int) (string, error) {
		m := callPattern.FindStringSubmatch(messages[len(messages)-1].Content)
		require.NotNil(t, m)
		n, _ := strconv.Atoi(m[1])
		table := m[2]

		mu.Lock()
		defer mu.Unlock()
		var cols []string
		var rows [][]any
		for i := 0; i < n; i++ {
			next[table]++
			id := next[table]
			switch table {
			case "customers":
				cols = []string{"id", "email"}
				rows = append(rows, []any{id, fmt.Sprintf("c%d@example.com", id)})
			case "orders":
				cols = []string{"id", "customer_id"}
				rows = append(rows, []any{id, 1})
			default:
				cols = []string{"id", "label"}
				rows = append(rows, []any{id, fmt.Sprintf("label %d", id)})
			}
		}
		b, _ := json.Marshal(map[string]any{table: map[string]any{"columns": cols, "rows": rows}})
		return string(b), nil
	}}
}

func testOptions() Options {
	cfg := generator.DefaultConfig()
	cfg.RetryDelay = 0
	return Options{Generation: cfg, ContextWindow: 16000, ModelsDir: "models"}
}

func TestParseCountsAndMentions(t *testing.T) {
	s := shopSchema(t)

	counts := ParseCounts(s, "Create 10 customers, 25 big orders and 3 product categories.")
	assert.Equal(t, map[string]int{"customers": 10, "orders": 25, "product_categories": 3}, counts)

	assert.Equal(t, map[string]int{"customers": 1}, ParseCounts(s, "just 1 customer please"))
	assert.Empty(t, ParseCounts(s, "some customers"))
	assert.Equal(t, map[string]int{"customers": 5}, ParseCounts(s, "5 customers and orders"))
	assert.Equal(t, map[string]int{"customers": 5, "orders": 2}, ParseCounts(s, "5 customers and orders, 2 orders each"))

	assert.Equal(t, []string{"orders"}, MentionedTables(s, "Orders for the summer sale"))
	assert.Equal(t, []string{"customers", "product_categories"}, MentionedTables(s, "a customer and a product category"))
	assert.Empty(t, MentionedTables(s, "anything you like"))
}

func TestGenerateDataFromPrompt(t *testing.T) {
	mock := shopTransport(t)
	a := New(shopSource(t), mock, nil, testOptions(), zap.NewNop())
	sess := a.NewSession()

	res, err := a.GenerateData(context.Background(), sess, "shop", "Generate 4 orders", nil)
	require.NoError(t, err)

	// customers are required by orders and get the default count.
	assert.Equal(t, []string{"customers", "orders"}, res.Order)
	assert.Equal(t, map[string]int{"customers": 10, "orders": 4}, res.Counts())
	assert.Nil(t, res.Table("product_categories"))

	entry, ok := sess.Entry("gen1")
	require.True(t, ok)
	assert.Equal(t, "Generate 4 orders", entry.Prompt)
	assert.Equal(t, "shop", entry.Schema)
	assert.Same(t, res, entry.Result)
	assert.Equal(t, 2, sess.Conversation.Len())
}

func TestGenerateDataExplicitCountsWin(t *testing.T) {
	a := New(shopSource(t), shopTransport(t), nil, testOptions(), zap.NewNop())

	res, err := a.GenerateData(context.Background(), nil, "shop", "10 customers", map[string]int{"Customers": 2})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"customers": 2}, res.Counts())

	_, err = a.GenerateData(context.Background(), nil, "shop", "x", map[string]int{"invoices": 2})
	require.Error(t, err)
}

func TestGenerateDataWithHints(t *testing.T) {
	mock := shopTransport(t)
	a := New(shopSource(t), mock, nil, testOptions(), zap.NewNop())

	f := &hints.File{
		Intent: "Portuguese names",
		Tables: map[string]hints.TableHints{
			"customers": {Count: 3, Columns: map[string]string{"email": "use example.org"}},
		},
	}
	res, err := a.GenerateData(context.Background(), nil, "shop", "fill the shop", nil, WithHints(f))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"customers": 3}, res.Counts())

	msgs := mock.Requests()[0]
	var all string
	for _, m := range msgs {
		all += m.Content + "\n"
	}
	assert.Contains(t, all, "Portuguese names")
	assert.Contains(t, all, "use example.org")
}

func TestGenerateDataCarriesConversation(t *testing.T) {
	mock := shopTransport(t)
	a := New(shopSource(t), mock, nil, testOptions(), zap.NewNop())
	sess := a.NewSession()

	_, err := a.GenerateData(context.Background(), sess, "shop", "2 customers", nil)
	require.NoError(t, err)
	_, err = a.GenerateData(context.Background(), sess, "shop", "2 product categories", nil)
	require.NoError(t, err)

	history := sess.History()
	require.Len(t, history, 2)
	assert.Equal(t, "gen2", history[1].Key)

	second := mock.Requests()[mock.Calls()-1]
	assert.Equal(t, "2 customers", second[1].Content)
	assert.Contains(t, second[2].Content, "customers: 2 of 2 (ACCEPTED)")
}

func TestGenerateDataInsufficientCapacity(t *testing.T) {
	mock := shopTransport(t)
	opts := testOptions()
	opts.ContextWindow = 1100
	a := New(shopSource(t), mock, nil, opts, zap.NewNop())

	_, err := a.GenerateData(context.Background(), nil, "shop", "2 customers", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInsufficientCapacity))
	assert.Zero(t, mock.Calls())
}

func TestGenerateDataUnknownConnection(t *testing.T) {
	a := New(shopSource(t), shopTransport(t), nil, testOptions(), zap.NewNop())
	_, err := a.GenerateData(context.Background(), nil, "crm", "2 customers", nil)
	assert.ErrorIs(t, err, apperrors.ErrConnectionNotFound)
}

func TestGenerateModels(t *testing.T) {
	opts := testOptions()
	opts.ModelsDir = filepath.Join(t.TempDir(), "models")
	a := New(shopSource(t), shopTransport(t), nil, opts, zap.NewNop())

	m, err := a.GenerateModels(context.Background(), "shop", codegen.FormatGORM, false)
	require.NoError(t, err)
	assert.Contains(t, m.Code, "type Customer struct")
	assert.Empty(t, m.Path)

	m, err = a.GenerateModels(context.Background(), "shop", codegen.FormatOpenAPI, true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(opts.ModelsDir, "shop.yaml"), m.Path)
	data, err := os.ReadFile(m.Path)
	require.NoError(t, err)
	assert.Equal(t, m.Code, string(data))

	_, err = a.GenerateModels(context.Background(), "shop", codegen.Format("sqlalchemy"), false)
	require.Error(t, err)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{
		LLM:        config.LLMConfig{ContextWindow: 32000, MaxOutputTokens: 2048},
		Generation: config.GenerationConfig{BatchSize: 7, DuplicatePolicy: "regenerate", OverlengthPolicy: "reject", Language: "pt-BR", DefaultCount: 5, ConversationShare: 0.5},
		Output:     config.OutputConfig{ModelsDir: "out/models"},
	}
	opts := OptionsFromConfig(cfg)
	assert.Equal(t, 32000, opts.ContextWindow)
	assert.Equal(t, 2048, opts.Generation.MaxOutputTokens)
	assert.Equal(t, 7, opts.Generation.BatchSize)
	assert.Equal(t, generator.DuplicateRegenerate, opts.Generation.DuplicatePolicy)
	assert.Equal(t, "pt-BR", opts.Generation.Prompt.Language)
	assert.Equal(t, 5, opts.Generation.Prompt.DefaultCount)
	assert.Equal(t, 0.5, opts.ConversationShare)
	assert.Equal(t, "out/models", opts.ModelsDir)
}
