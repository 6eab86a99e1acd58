package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sdsdg/internal/apperrors"
	"sdsdg/internal/llm"
	"sdsdg/internal/schema"
	"sdsdg/internal/types"
	"sdsdg/internal/validator"
)

var callPattern = regexp.MustCompile(`Generate (\d+) rows for table "([^"]+)"`)

// parseCall extracts the requested table and count from the last message.
func parseCall(t *testing.T, messages []types.Message) (string, int) {
	t.Helper()
	m := callPattern.FindStringSubmatch(messages[len(messages)-1].Content)
	require.NotNil(t, m, "no table request in prompt")
	n, err := strconv.Atoi(m[1])
	require.NoError(t, err)
	return m[2], n
}

func response(table string, columns []string, rows [][]any) string {
	b, _ := json.Marshal(map[string]any{table: map[string]any{"columns": columns, "rows": rows}})
	return string(b)
}

func buildSchema(t *testing.T, raw *schema.RawSchema) *schema.Schema {
	t.Helper()
	s, err := schema.Build(raw)
	require.NoError(t, err)
	return s
}

func shopSchema(t *testing.T) *schema.Schema {
	return buildSchema(t, &schema.RawSchema{
		Name: "shop",
		Tables: []schema.RawTable{
			{
				Name: "orders",
				Columns: []schema.RawColumn{
					{Name: "id", DataType: "integer"},
					{Name: "customer_id", DataType: "integer"},
					{Name: "total", DataType: "numeric(8,2)"},
				},
				PrimaryKey:  []string{"id"},
				ForeignKeys: []schema.RawForeignKey{{Column: "customer_id", ReferencedTable: "customers", ReferencedColumn: "id"}},
			},
			{
				Name: "customers",
				Columns: []schema.RawColumn{
					{Name: "id", DataType: "integer"},
					{Name: "email", DataType: "varchar(80)", IsUnique: true},
				},
				PrimaryKey: []string{"id"},
			},
		},
	})
}

// shopTransport answers customers and orders requests with sequential ids.
// Orders spread over customer ids 1..customers.
func shopTransport(t *testing.T, customers int) *llm.MockTransport {
	var mu sync.Mutex
	next := map[string]int{}
	return &llm.MockTransport{CompleteFunc: func(_ context.Context, messages []types.Message, _ int) (string, error) {
		table, n := parseCall(t, messages)
		mu.Lock()
		defer mu.Unlock()
		var rows [][]any
		for i := 0; i < n; i++ {
			next[table]++
			id := next[table]
			switch table {
			case "customers":
				rows = append(rows, []any{id, fmt.Sprintf("user%d@example.com", id)})
			case "orders":
				rows = append(rows, []any{id, (id-1)%customers + 1, "19.90"})
			}
		}
		if table == "customers" {
			return response(table, []string{"id", "email"}, rows), nil
		}
		return response(table, []string{"id", "customer_id", "total"}, rows), nil
	}}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryDelay = 0
	return cfg
}

func TestGenerateCustomersAndOrders(t *testing.T) {
	s := shopSchema(t)
	mock := shopTransport(t, 5)
	g := New(mock, nil, testConfig(), zap.NewNop())

	res, err := g.Generate(context.Background(), s, Request{
		Counts: map[string]int{"customers": 5, "Orders": 10},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"customers", "orders"}, res.Order)
	assert.False(t, res.Incomplete)
	assert.Equal(t, map[string]int{"customers": 5, "orders": 10}, res.Counts())

	customers := map[int64]bool{}
	for _, rec := range res.Table("customers").Records {
		customers[rec["id"].(int64)] = true
	}
	for _, rec := range res.Table("orders").Records {
		assert.True(t, customers[rec["customer_id"].(int64)], "order %v references unknown customer", rec["id"])
	}

	orders := res.Table("orders")
	assert.Equal(t, StatusAccepted, orders.Status)
	require.Len(t, orders.Provenance, 10)
	assert.NotEmpty(t, orders.Provenance[0].CallID)
	assert.Equal(t, 1, orders.Provenance[0].Batch)
	assert.Equal(t, 2, mock.Calls())

	// Parent keys reach the child's prompt.
	last := mock.Requests()[1]
	assert.Contains(t, last[len(last)-1].Content, "- customer_id must be one of customers.id: 1, 2, 3, 4, 5")
}

func TestGenerateAddsRequiredParents(t *testing.T) {
	s := shopSchema(t)
	g := New(shopTransport(t, 3), nil, testConfig(), zap.NewNop())

	res, err := g.Generate(context.Background(), s, Request{
		Tables:       []string{"orders"},
		Counts:       map[string]int{"orders": 4},
		DefaultCount: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"customers", "orders"}, res.Order)
	assert.Len(t, res.Table("customers").Records, 3)
	assert.Len(t, res.Table("orders").Records, 4)
}

func TestGenerateBatchesKeepEmailsUnique(t *testing.T) {
	s := shopSchema(t)
	mock := shopTransport(t, 1)
	cfg := testConfig()
	cfg.BatchSize = 5
	g := New(mock, nil, cfg, zap.NewNop())

	res, err := g.Generate(context.Background(), s, Request{
		Tables: []string{"customers"},
		Counts: map[string]int{"customers": 12},
	})
	require.NoError(t, err)

	customers := res.Table("customers")
	assert.Equal(t, StatusAccepted, customers.Status)
	require.Len(t, customers.Records, 12)
	assert.Equal(t, 3, mock.Calls())

	emails := map[string]bool{}
	for _, rec := range customers.Records {
		email := rec["email"].(string)
		assert.False(t, emails[email], "duplicate %s", email)
		emails[email] = true
	}

	reqs := mock.Requests()
	_, n := parseCall(t, reqs[2])
	assert.Equal(t, 2, n)
	assert.Contains(t, reqs[1][len(reqs[1])-1].Content, "## ALREADY USED")
	assert.Equal(t, 3, customers.Provenance[11].Batch)
}

func TestGenerateRegeneratesDuplicates(t *testing.T) {
	s := shopSchema(t)
	mock := llm.NewMockTransport(
		response("customers", []string{"id", "email"}, [][]any{
			{1, "a@example.com"}, {2, "b@example.com"}, {3, "b@example.com"},
		}),
		response("customers", []string{"id", "email"}, [][]any{{3, "c@example.com"}}),
	)
	cfg := testConfig()
	cfg.DuplicatePolicy = DuplicateRegenerate
	g := New(mock, nil, cfg, zap.NewNop())

	res, err := g.Generate(context.Background(), s, Request{
		Tables: []string{"customers"},
		Counts: map[string]int{"customers": 3},
	})
	require.NoError(t, err)

	customers := res.Table("customers")
	assert.Equal(t, StatusAccepted, customers.Status)
	assert.Len(t, customers.Records, 3)
	_, n := parseCall(t, mock.Requests()[1])
	assert.Equal(t, 1, n)
	require.NotEmpty(t, customers.Violations)
	assert.Equal(t, "dropped", string(customers.Violations[0].Action))
}

func TestGenerateRegenerateCountsOnlyTheSuccessfulAttempt(t *testing.T) {
	s := shopSchema(t)
	cols := []string{"id", "email"}
	mock := llm.NewMockTransport(
		response("customers", cols, [][]any{{1, "a@example.com"}, {2, "b@example.com"}}),
		// every row duplicates an accepted key, so the attempt is retried
		response("customers", cols, [][]any{{1, "x@example.com"}, {2, "y@example.com"}}),
		response("customers", cols, [][]any{{3, "c@example.com"}}),
		response("customers", cols, [][]any{{4, "d@example.com"}, {5, "e@example.com"}}),
	)
	cfg := testConfig()
	cfg.BatchSize = 2
	cfg.DuplicatePolicy = DuplicateRegenerate
	g := New(mock, nil, cfg, zap.NewNop())

	res, err := g.Generate(context.Background(), s, Request{
		Tables: []string{"customers"},
		Counts: map[string]int{"customers": 5},
	})
	require.NoError(t, err)

	customers := res.Table("customers")
	assert.Equal(t, StatusAccepted, customers.Status)
	assert.Len(t, customers.Records, 5)
	require.Equal(t, 4, mock.Calls())
	_, n := parseCall(t, mock.Requests()[3])
	assert.Equal(t, 2, n, "duplicates of a retried attempt are not asked for again")
}

func TestGenerateNullsDeferredCycleReferences(t *testing.T) {
	s := buildSchema(t, &schema.RawSchema{
		Name: "org",
		Tables: []schema.RawTable{
			{
				Name: "departments",
				Columns: []schema.RawColumn{
					{Name: "id", DataType: "int"},
					{Name: "head_id", DataType: "int", Nullable: true},
				},
				PrimaryKey:  []string{"id"},
				ForeignKeys: []schema.RawForeignKey{{Column: "head_id", ReferencedTable: "employees", ReferencedColumn: "id"}},
			},
			{
				Name: "employees",
				Columns: []schema.RawColumn{
					{Name: "id", DataType: "int"},
					{Name: "department_id", DataType: "int"},
				},
				PrimaryKey:  []string{"id"},
				ForeignKeys: []schema.RawForeignKey{{Column: "department_id", ReferencedTable: "departments", ReferencedColumn: "id"}},
			},
		},
	})
	mock := llm.NewMockTransport(
		response("departments", []string{"id", "head_id"}, [][]any{{1, 7}, {2, nil}}),
		response("employees", []string{"id", "department_id"}, [][]any{{7, 1}, {8, 2}}),
	)
	g := New(mock, nil, testConfig(), zap.NewNop())

	res, err := g.Generate(context.Background(), s, Request{DefaultCount: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"departments", "employees"}, res.Order)

	depts := res.Table("departments")
	assert.Equal(t, StatusAccepted, depts.Status)
	require.Len(t, depts.Records, 2)
	assert.Nil(t, depts.Records[0]["head_id"], "employees are generated after departments")
	assert.Nil(t, depts.Records[1]["head_id"])
	require.Len(t, depts.Violations, 1)
	assert.Equal(t, validator.ActionNulled, depts.Violations[0].Action)
	assert.Equal(t, "head_id", depts.Violations[0].Column)

	emps := res.Table("employees")
	assert.Equal(t, StatusAccepted, emps.Status)
	assert.Equal(t, []any{int64(1), int64(2)}, []any{emps.Records[0]["department_id"], emps.Records[1]["department_id"]})
}

func TestGenerateMutualRequiredKeysFailBeforeAnyCall(t *testing.T) {
	s := buildSchema(t, &schema.RawSchema{
		Name: "loop",
		Tables: []schema.RawTable{
			{
				Name:        "a",
				Columns:     []schema.RawColumn{{Name: "id", DataType: "int"}, {Name: "b_id", DataType: "int"}},
				PrimaryKey:  []string{"id"},
				ForeignKeys: []schema.RawForeignKey{{Column: "b_id", ReferencedTable: "b", ReferencedColumn: "id"}},
			},
			{
				Name:        "b",
				Columns:     []schema.RawColumn{{Name: "id", DataType: "int"}, {Name: "a_id", DataType: "int"}},
				PrimaryKey:  []string{"id"},
				ForeignKeys: []schema.RawForeignKey{{Column: "a_id", ReferencedTable: "a", ReferencedColumn: "id"}},
			},
		},
	})
	mock := llm.NewMockTransport()
	g := New(mock, nil, testConfig(), zap.NewNop())

	res, err := g.Generate(context.Background(), s, Request{})
	require.ErrorIs(t, err, apperrors.ErrUnsatisfiableSchema)
	assert.Nil(t, res)
	assert.Zero(t, mock.Calls())
}

func TestGenerateTimeoutsFailOnlyThatTable(t *testing.T) {
	s := buildSchema(t, &schema.RawSchema{
		Name: "two",
		Tables: []schema.RawTable{
			{Name: "fast", Columns: []schema.RawColumn{{Name: "id", DataType: "int"}}, PrimaryKey: []string{"id"}},
			{Name: "slow", Columns: []schema.RawColumn{{Name: "id", DataType: "int"}}, PrimaryKey: []string{"id"}},
		},
	})

	var mu sync.Mutex
	slowCalls := 0
	mock := &llm.MockTransport{CompleteFunc: func(ctx context.Context, messages []types.Message, _ int) (string, error) {
		table, n := parseCall(t, messages)
		if table == "slow" {
			mu.Lock()
			slowCalls++
			mu.Unlock()
			<-ctx.Done()
			return "", ctx.Err()
		}
		rows := make([][]any, n)
		for i := range rows {
			rows[i] = []any{i + 1}
		}
		return response(table, []string{"id"}, rows), nil
	}}
	cfg := testConfig()
	cfg.CallTimeout = 20 * time.Millisecond
	cfg.MaxAttempts = 3
	g := New(mock, nil, cfg, zap.NewNop())

	res, err := g.Generate(context.Background(), s, Request{DefaultCount: 2})
	require.NoError(t, err)

	slow := res.Table("slow")
	assert.Equal(t, StatusFailed, slow.Status)
	assert.ErrorIs(t, slow.Err, apperrors.ErrGenerationFailed)
	assert.Equal(t, 3, slow.Calls)
	assert.Equal(t, 3, slowCalls)
	assert.NotEmpty(t, slow.Error)

	assert.Equal(t, StatusAccepted, res.Table("fast").Status)
	assert.True(t, res.Incomplete)
	assert.Equal(t, []string{"slow"}, res.Failed())
}

func TestGenerateFailedParentSkipsChildren(t *testing.T) {
	s := shopSchema(t)
	mock := &llm.MockTransport{CompleteFunc: func(context.Context, []types.Message, int) (string, error) {
		return "{}", nil
	}}
	g := New(mock, nil, testConfig(), zap.NewNop())

	res, err := g.Generate(context.Background(), s, Request{DefaultCount: 2})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, res.Table("customers").Status)
	orders := res.Table("orders")
	assert.Equal(t, StatusFailed, orders.Status)
	assert.Zero(t, orders.Calls)
	assert.Contains(t, orders.Error, `parent table "customers" has no records`)
	assert.Equal(t, 3, mock.Calls())
}

func TestGenerateBackfillsSelfReferences(t *testing.T) {
	s := buildSchema(t, &schema.RawSchema{
		Name: "hr",
		Tables: []schema.RawTable{{
			Name: "employees",
			Columns: []schema.RawColumn{
				{Name: "id", DataType: "int"},
				{Name: "manager_id", DataType: "int", Nullable: true},
			},
			PrimaryKey:  []string{"id"},
			ForeignKeys: []schema.RawForeignKey{{Column: "manager_id", ReferencedTable: "employees", ReferencedColumn: "id"}},
		}},
	})
	cols := []string{"id", "manager_id"}
	mock := llm.NewMockTransport(
		response("employees", cols, [][]any{{1, 3}, {2, 1}}),
		response("employees", cols, [][]any{{3, nil}}),
	)
	cfg := testConfig()
	cfg.BatchSize = 2
	g := New(mock, nil, cfg, zap.NewNop())

	res, err := g.Generate(context.Background(), s, Request{Counts: map[string]int{"employees": 3}})
	require.NoError(t, err)

	emp := res.Table("employees")
	require.Len(t, emp.Records, 3)
	assert.Equal(t, int64(3), emp.Records[0]["manager_id"])
	assert.Equal(t, int64(1), emp.Records[1]["manager_id"])
	assert.Nil(t, emp.Records[2]["manager_id"])

	// The second call offers the keys accepted so far.
	second := mock.Requests()[1]
	assert.Contains(t, second[len(second)-1].Content, "Use one of 1, 2 or the id of a row in this response, or null.")
}

func TestGenerateRejectsTableOverBudget(t *testing.T) {
	s := shopSchema(t)
	mock := llm.NewMockTransport()
	cfg := testConfig()
	cfg.InputBudget = 10
	g := New(mock, nil, cfg, zap.NewNop())

	res, err := g.Generate(context.Background(), s, Request{Tables: []string{"customers"}})
	require.NoError(t, err)
	customers := res.Table("customers")
	assert.Equal(t, StatusFailed, customers.Status)
	assert.ErrorIs(t, customers.Err, apperrors.ErrTokenBudgetExceeded)
	assert.Zero(t, mock.Calls())
}

func TestGenerateCancellation(t *testing.T) {
	s := shopSchema(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mock := &llm.MockTransport{CompleteFunc: func(ctx context.Context, _ []types.Message, _ int) (string, error) {
		cancel()
		return "", ctx.Err()
	}}
	g := New(mock, nil, testConfig(), zap.NewNop())

	res, err := g.Generate(ctx, s, Request{DefaultCount: 2})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.True(t, res.Incomplete)
	assert.Equal(t, 1, mock.Calls())
	assert.Equal(t, StatusPending, res.Table("orders").Status)
	assert.ErrorIs(t, res.Table("customers").Err, context.Canceled)
}

func TestGenerateUnknownTable(t *testing.T) {
	g := New(llm.NewMockTransport(), nil, testConfig(), zap.NewNop())
	_, err := g.Generate(context.Background(), shopSchema(t), Request{Tables: []string{"invoices"}})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "invoices"))
}

func TestGenerateSendsCallInfo(t *testing.T) {
	s := shopSchema(t)
	var got llm.CallInfo
	mock := &llm.MockTransport{CompleteFunc: func(ctx context.Context, _ []types.Message, _ int) (string, error) {
		got, _ = llm.GetCallInfo(ctx)
		return response("customers", []string{"id", "email"}, [][]any{{1, "a@example.com"}}), nil
	}}
	g := New(mock, nil, testConfig(), zap.NewNop())

	res, err := g.Generate(context.Background(), s, Request{Tables: []string{"customers"}, DefaultCount: 1})
	require.NoError(t, err)
	assert.Equal(t, "customers", got.Table)
	assert.Equal(t, 1, got.Batch)
	assert.Equal(t, 1, got.Attempt)
	assert.Equal(t, res.Table("customers").Provenance[0].CallID, got.CallID)
}
