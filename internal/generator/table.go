package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sdsdg/internal/apperrors"
	"sdsdg/internal/llm"
	"sdsdg/internal/prompt"
	"sdsdg/internal/retry"
	"sdsdg/internal/schema"
	"sdsdg/internal/serializer"
	"sdsdg/internal/tokens"
	"sdsdg/internal/types"
	"sdsdg/internal/validator"
)

// deferredRef is an accepted record whose nullable self references were nulled
// until the table's final key set is known.
type deferredRef struct {
	record int
	values map[string]any
}

// tableRun is the mutable state of one table while it is generated.
type tableRun struct {
	shared   *run
	table    *schema.Table
	state    *validator.State
	result   *TableResult
	deferred []deferredRef
}

// generateTable runs the batches of one table, resolves deferred self
// references and publishes the table's keys for its children.
func (g *Generator) generateTable(ctx context.Context, r *run, id schema.TableID, tr *TableResult) error {
	t := r.schema.Table(id)
	tr.Records = []types.Record{}
	tr.Provenance = []types.Provenance{}
	tbl := &tableRun{
		shared: r,
		table:  t,
		state:  validator.NewState(t, referencedColumns(r.schema, id)...),
		result: tr,
	}
	log := g.logger.With(zap.String("table", t.Name))
	start := time.Now()

	var err error
	regenerate := 0
	for batch := 1; tbl.state.Accepted() < tr.Requested; batch++ {
		if err = ctx.Err(); err != nil {
			break
		}
		n := min(tr.Requested-tbl.state.Accepted(), g.config.BatchSize)
		if regenerate > 0 {
			n = 1
			regenerate--
		}

		var dropped int
		dropped, err = g.generateBatch(ctx, tbl, batch, n)
		if err != nil {
			break
		}
		if g.config.DuplicatePolicy == DuplicateRegenerate {
			regenerate += dropped
		}
	}

	tbl.backfill()
	keys := make(map[int][]any)
	for _, col := range referencedColumns(r.schema, id) {
		keys[col] = tbl.state.KeyValues(col)
	}
	if perr := r.registry.Publish(id, keys); perr != nil && err == nil {
		err = perr
	}

	tr.finish()
	tr.fail(err)
	fields := []zap.Field{
		zap.String("status", string(tr.Status)),
		zap.Int("records", len(tr.Records)),
		zap.Int("requested", tr.Requested),
		zap.Int("calls", tr.Calls),
		zap.Int("violations", len(tr.Violations)),
		zap.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		log.Warn("Table generation ended early", append(fields, zap.Error(err))...)
	} else {
		log.Info("Table generated", fields...)
	}
	return err
}

// generateBatch asks for n records with one prompt, retrying the call until a
// response yields at least one valid record. It returns the number of records
// dropped as duplicates.
func (g *Generator) generateBatch(ctx context.Context, tbl *tableRun, batch, n int) (int, error) {
	t, tr := tbl.table, tbl.result
	r := tbl.shared

	request := g.tableRequest(tbl, n).Render()
	used := tokens.Sum(g.counter, prompt.SystemInstruction(g.config.Prompt), schemaHeader, request) +
		r.req.Conversation.Tokens()
	schemaText, err := serializer.Serialize(r.schema, []string{t.Name}, g.config.InputBudget-used, g.counter)
	if err != nil {
		return 0, err
	}
	tr.Status = StatusSchemaSerialized

	messages := prompt.Compose(g.config.Prompt, schemaText, r.req.Conversation, request)
	tr.Status = StatusPrompted

	dropped := 0
	err = retry.Do(ctx, retry.ForAttempts(g.config.MaxAttempts, g.config.RetryDelay), func(attempt int) error {
		// Only the attempt that succeeds decides how many records to ask for again.
		dropped = 0
		tr.Calls++
		callID := uuid.NewString()
		tr.Status = StatusAwaitingResponse

		callCtx, cancel := context.WithTimeout(ctx, g.config.CallTimeout)
		defer cancel()
		callCtx = llm.WithCallInfo(callCtx, llm.CallInfo{CallID: callID, Table: t.Name, Batch: batch, Attempt: attempt})
		response, err := g.transport.Complete(callCtx, messages, g.config.MaxOutputTokens)
		if err != nil {
			return err
		}

		tr.Status = StatusValidating
		raw, err := validator.Parse(response, t.Name)
		if err != nil {
			return err
		}
		if len(raw) == 0 {
			return errEmptyResponse
		}
		if need := tr.Requested - tbl.state.Accepted(); len(raw) > need {
			raw = raw[:need]
		}

		accepted, violations := r.validator.Validate(t.ID, raw, tbl.state)
		tr.Violations = append(tr.Violations, violations...)
		for _, v := range violations {
			if v.Action == validator.ActionDropped {
				dropped++
			}
		}

		at := time.Now().UTC()
		for _, a := range accepted {
			tr.Records = append(tr.Records, a.Record)
			tr.Provenance = append(tr.Provenance, types.Provenance{CallID: callID, Batch: batch, Attempt: attempt, At: at})
			if a.Deferred != nil {
				tbl.deferred = append(tbl.deferred, deferredRef{record: len(tr.Records) - 1, values: a.Deferred})
			}
		}
		if len(accepted) == 0 {
			return fmt.Errorf("%w: all %d records rejected", errNoneAccepted, len(raw))
		}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return dropped, ctxErr
		}
		return dropped, &apperrors.GenerationFailedError{Table: t.Name, Attempts: g.config.MaxAttempts, Cause: err}
	}
	return dropped, nil
}

// tableRequest collects what the next call for the table must know: parent
// keys, values already taken and self reference targets.
func (g *Generator) tableRequest(tbl *tableRun, n int) prompt.TableRequest {
	r, t, st := tbl.shared, tbl.table, tbl.state
	limit := g.config.MaxReferenceValues

	req := prompt.TableRequest{
		Table:   t.Name,
		Count:   n,
		Columns: t.ColumnNames(allColumns(t)),
		Intent:  r.req.Intent,
		Hints:   r.req.Hints[t.Name],
	}

	for _, fk := range t.ForeignKeys {
		from := t.Columns[fk.From.Column].Name
		to := r.schema.Column(fk.To).Name
		if fk.SelfReference() {
			req.Self = append(req.Self, prompt.SelfReference{
				Column:    from,
				RefColumn: to,
				Nullable:  fk.Nullable,
				Existing:  lastN(st.KeyValues(fk.To.Column), limit),
			})
			continue
		}
		req.Parents = append(req.Parents, prompt.ParentKeys{
			Column:    from,
			Table:     r.schema.Table(fk.To.Table).Name,
			RefColumn: to,
			Nullable:  fk.Nullable,
			Values:    firstN(r.registry.Values(fk.To), limit),
		})
	}

	for i, cols := range st.Sets() {
		if tuples := st.Tuples(i); len(tuples) > 0 {
			req.Used = append(req.Used, prompt.UsedValues{
				Columns: t.ColumnNames(cols),
				Tuples:  lastN(tuples, limit),
			})
		}
	}
	return req
}

// backfill restores deferred self references whose target was generated later.
func (tbl *tableRun) backfill() {
	t := tbl.table
	for _, d := range tbl.deferred {
		rec := tbl.result.Records[d.record]
		for col, orig := range d.values {
			fk, ok := t.ForeignKeyFor(t.ColumnIndex(col))
			if !ok || !tbl.state.HasKey(fk.To.Column, validator.KeyOf(orig)) {
				continue
			}
			rec[col] = orig
			tbl.result.Violations = append(tbl.result.Violations, validator.Violation{
				Table:  t.Name,
				Record: d.record,
				Column: col,
				Reason: "deferred self reference restored",
				Value:  orig,
				Action: validator.ActionRepaired,
			})
		}
	}
	tbl.deferred = nil
}

func allColumns(t *schema.Table) []int {
	cols := make([]int, len(t.Columns))
	for i := range cols {
		cols[i] = i
	}
	return cols
}

func firstN[T any](values []T, n int) []T {
	if len(values) > n {
		return values[:n]
	}
	return values
}

func lastN[T any](values []T, n int) []T {
	if len(values) > n {
		return values[len(values)-n:]
	}
	return values
}
