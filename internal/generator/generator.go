// Package generator orchestrates LLM calls that fill a schema with synthetic
// records: tables run in foreign-key order, each in batches, each batch checked
// by the validator before its keys become visible to child tables.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"sdsdg/internal/apperrors"
	"sdsdg/internal/conversation"
	"sdsdg/internal/executor"
	"sdsdg/internal/llm"
	"sdsdg/internal/prompt"
	"sdsdg/internal/schema"
	"sdsdg/internal/tokens"
	"sdsdg/internal/validator"
)

// DuplicatePolicy decides how records dropped as duplicates are replaced.
type DuplicatePolicy string

const (
	// DuplicateDrop lets the next regular batch make up for dropped records.
	DuplicateDrop DuplicatePolicy = "drop"
	// DuplicateRegenerate asks for each dropped record again in a single-record call.
	DuplicateRegenerate DuplicatePolicy = "regenerate"
)

// schemaHeader is prepended to the schema text by prompt.Compose.
const schemaHeader = "## DATABASE SCHEMA\n"

var (
	errEmptyResponse = errors.New("response contained no records")
	errNoneAccepted  = errors.New("no record passed validation")
)

// Config tunes a generation run.
type Config struct {
	BatchSize          int
	MaxAttempts        int
	RetryDelay         time.Duration
	CallTimeout        time.Duration
	MaxInFlight        int
	MaxReferenceValues int
	// InputBudget is the number of prompt tokens one call may use.
	InputBudget     int
	MaxOutputTokens int
	DuplicatePolicy DuplicatePolicy
	Overlength      validator.OverlengthPolicy
	Prompt          prompt.Options
}

// DefaultConfig returns the settings used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		BatchSize:          20,
		MaxAttempts:        3,
		RetryDelay:         time.Second,
		CallTimeout:        2 * time.Minute,
		MaxInFlight:        4,
		MaxReferenceValues: 200,
		InputBudget:        100000,
		MaxOutputTokens:    4096,
		DuplicatePolicy:    DuplicateDrop,
		Overlength:         validator.OverlengthTruncate,
		Prompt:             prompt.Options{Language: prompt.DefaultLanguage, DefaultCount: 10},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = d.CallTimeout
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = d.MaxInFlight
	}
	if c.MaxReferenceValues <= 0 {
		c.MaxReferenceValues = d.MaxReferenceValues
	}
	if c.InputBudget <= 0 {
		c.InputBudget = d.InputBudget
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = d.MaxOutputTokens
	}
	if c.DuplicatePolicy == "" {
		c.DuplicatePolicy = d.DuplicatePolicy
	}
	if c.Overlength == "" {
		c.Overlength = d.Overlength
	}
	if c.Prompt.Language == "" {
		c.Prompt.Language = d.Prompt.Language
	}
	if c.Prompt.DefaultCount <= 0 {
		c.Prompt.DefaultCount = d.Prompt.DefaultCount
	}
	return c
}

// Request describes what to generate.
type Request struct {
	// Tables to fill. Empty means every table. Tables referenced through
	// non-nullable foreign keys are added.
	Tables []string
	// Counts per table name. Tables without an entry get DefaultCount.
	Counts       map[string]int
	DefaultCount int
	Intent       string
	// Hints maps table name to column name to a free-text hint.
	Hints map[string]map[string]string
	// Conversation holds prior turns; it is only read.
	Conversation *conversation.Conversation
}

// Generator runs generation requests against one transport.
type Generator struct {
	transport llm.Transport
	counter   tokens.Counter
	config    Config
	logger    *zap.Logger
}

// New returns a generator. Zero fields of config take DefaultConfig values.
func New(transport llm.Transport, counter tokens.Counter, config Config, logger *zap.Logger) *Generator {
	if counter == nil {
		counter = tokens.Heuristic{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		transport: transport,
		counter:   counter,
		config:    config.withDefaults(),
		logger:    logger.Named("generator"),
	}
}

// Config returns the effective configuration.
func (g *Generator) Config() Config { return g.config }

// run is the shared state of one Generate call.
type run struct {
	schema    *schema.Schema
	req       Request
	plan      *Plan
	registry  *KeyRegistry
	validator *validator.Validator
}

// Generate fills the requested tables. Table failures are reported per table in
// the result and do not fail the run. An unsatisfiable schema fails before any
// LLM call. On cancellation the partial result is returned with the context error.
func (g *Generator) Generate(ctx context.Context, s *schema.Schema, req Request) (*Result, error) {
	ids, err := g.targets(s, req)
	if err != nil {
		return nil, err
	}
	plan, err := NewPlan(s, ids)
	if err != nil {
		return nil, err
	}

	registry := NewKeyRegistry()
	r := &run{
		schema:    s,
		req:       req,
		plan:      plan,
		registry:  registry,
		validator: validator.New(s, validator.Policy{Overlength: g.config.Overlength}, registry),
	}

	result := &Result{Tables: make(map[string]*TableResult, len(ids)), Order: plan.Order(s)}
	counts := g.counts(req)
	for _, id := range ids {
		name := s.Table(id).Name
		result.Tables[name] = &TableResult{Table: name, Status: StatusPending, Requested: counts(name)}
	}

	g.logger.Info("Starting generation",
		zap.String("schema", s.Name),
		zap.Strings("order", result.Order),
		zap.Int("levels", len(plan.Levels)),
		zap.Int("deferred_fks", len(plan.Deferred)))

	failed := make(map[schema.TableID]bool)
	for _, level := range plan.Levels {
		if ctx.Err() != nil {
			break
		}

		var tasks []executor.Task[struct{}]
		var started []schema.TableID
		for _, id := range level {
			tr := result.Tables[s.Table(id).Name]
			if parent := g.failedParent(r, id, failed); parent != "" {
				tr.Status = StatusFailed
				tr.fail(&apperrors.GenerationFailedError{
					Table: tr.Table,
					Cause: fmt.Errorf("parent table %q has no records", parent),
				})
				failed[id] = true
				_ = registry.Publish(id, nil)
				g.logger.Warn("Skipping table", zap.String("table", tr.Table), zap.String("failed_parent", parent))
				continue
			}
			id := id
			started = append(started, id)
			tasks = append(tasks, executor.Task[struct{}]{
				ID: tr.Table,
				Run: func(ctx context.Context) (struct{}, error) {
					return struct{}{}, g.generateTable(ctx, r, id, tr)
				},
			})
		}

		executor.Run(ctx, g.config.MaxInFlight, tasks)
		for _, id := range started {
			if result.Tables[s.Table(id).Name].Status == StatusFailed {
				failed[id] = true
			}
		}
	}

	for _, tr := range result.Tables {
		if tr.Status != StatusAccepted {
			result.Incomplete = true
		}
	}
	if err := ctx.Err(); err != nil {
		g.logger.Warn("Generation cancelled", zap.Error(err))
		return result, err
	}
	return result, nil
}

// targets resolves the requested table names and adds the parents of required
// foreign keys.
func (g *Generator) targets(s *schema.Schema, req Request) ([]schema.TableID, error) {
	var queue []schema.TableID
	if len(req.Tables) == 0 {
		for i := range s.Tables {
			queue = append(queue, s.Tables[i].ID)
		}
	}
	for _, name := range req.Tables {
		t, ok := s.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("table %q not in schema %q", name, s.Name)
		}
		queue = append(queue, t.ID)
	}

	seen := make(map[schema.TableID]bool)
	var ids []schema.TableID
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
		for _, fk := range s.Table(id).ForeignKeys {
			if !fk.Nullable && !fk.SelfReference() {
				queue = append(queue, fk.To.Table)
			}
		}
	}
	return ids, nil
}

func (g *Generator) counts(req Request) func(table string) int {
	byName := make(map[string]int, len(req.Counts))
	for name, n := range req.Counts {
		byName[strings.ToLower(name)] = n
	}
	def := req.DefaultCount
	if def <= 0 {
		def = g.config.Prompt.DefaultCount
	}
	return func(table string) int {
		if n, ok := byName[strings.ToLower(table)]; ok && n >= 0 {
			return n
		}
		return def
	}
}

// failedParent returns the name of a FAILED table that id needs keys from.
func (g *Generator) failedParent(r *run, id schema.TableID, failed map[schema.TableID]bool) string {
	for _, fk := range r.schema.Table(id).ForeignKeys {
		if fk.Nullable || fk.SelfReference() {
			continue
		}
		if failed[fk.To.Table] {
			return r.schema.Table(fk.To.Table).Name
		}
	}
	return ""
}

// referencedColumns returns the columns of id that some foreign key points at.
func referencedColumns(s *schema.Schema, id schema.TableID) []int {
	seen := make(map[int]bool)
	var cols []int
	for i := range s.Tables {
		for _, fk := range s.Tables[i].ForeignKeys {
			if fk.To.Table == id && !seen[fk.To.Column] {
				seen[fk.To.Column] = true
				cols = append(cols, fk.To.Column)
			}
		}
	}
	return cols
}
