// Package assistant is the caller-facing API: it loads a connection's schema,
// turns a natural language request into a generation run, and keeps the
// per-session history of prompts and results.
package assistant

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"sdsdg/internal/apperrors"
	"sdsdg/internal/codegen"
	"sdsdg/internal/config"
	"sdsdg/internal/generator"
	"sdsdg/internal/hints"
	"sdsdg/internal/llm"
	"sdsdg/internal/prompt"
	"sdsdg/internal/reporter"
	"sdsdg/internal/schema"
	"sdsdg/internal/serializer"
	"sdsdg/internal/tokens"
	"sdsdg/internal/validator"
)

// MinOutputTokens is the smallest response budget worth a call.
const MinOutputTokens = 1000

// promptOverhead covers message framing not visible in the text.
const promptOverhead = 40

// SchemaSource loads the schema of a named connection.
type SchemaSource interface {
	Load(ctx context.Context, name string) (*schema.Schema, error)
}

// Options configures an Assistant.
type Options struct {
	Generation    generator.Config
	ContextWindow int
	// ConversationShare is the fraction of the input budget prior turns may use.
	ConversationShare float64
	ModelsDir         string
}

// OptionsFromConfig maps the application configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	g := cfg.Generation
	return Options{
		Generation: generator.Config{
			BatchSize:          g.BatchSize,
			MaxAttempts:        g.MaxAttempts,
			RetryDelay:         g.RetryDelay,
			CallTimeout:        g.CallTimeout,
			MaxInFlight:        g.MaxInFlight,
			MaxReferenceValues: g.MaxReferenceValues,
			MaxOutputTokens:    cfg.LLM.MaxOutputTokens,
			DuplicatePolicy:    generator.DuplicatePolicy(g.DuplicatePolicy),
			Overlength:         validator.OverlengthPolicy(g.OverlengthPolicy),
			Prompt:             prompt.Options{Language: g.Language, DefaultCount: g.DefaultCount},
		},
		ContextWindow:     cfg.LLM.ContextWindow,
		ConversationShare: g.ConversationShare,
		ModelsDir:         cfg.Output.ModelsDir,
	}
}

// Assistant serves data and model generation for the configured connections.
type Assistant struct {
	source  SchemaSource
	client  *llm.Client
	counter tokens.Counter
	options Options
	logger  *zap.Logger
}

// New returns an Assistant calling the model through transport.
func New(source SchemaSource, transport llm.Transport, counter tokens.Counter, options Options, logger *zap.Logger) *Assistant {
	if counter == nil {
		counter = tokens.Heuristic{}
	}
	if options.ContextWindow <= 0 {
		options.ContextWindow = llm.NewDefaultConfig().ContextWindow
	}
	if options.ConversationShare <= 0 || options.ConversationShare > 1 {
		options.ConversationShare = 0.25
	}
	if options.Generation.MaxOutputTokens <= 0 {
		options.Generation.MaxOutputTokens = generator.DefaultConfig().MaxOutputTokens
	}
	return &Assistant{
		source:  source,
		client:  llm.NewClient(transport, counter, logger),
		counter: counter,
		options: options,
		logger:  logger.Named("assistant"),
	}
}

// DataOption adjusts one GenerateData call.
type DataOption func(*dataRequest)

type dataRequest struct {
	hints *hints.File
}

// WithHints applies a hints file: its counts rank below counts in the prompt
// and explicit counts, and its intent is appended to the prompt.
func WithHints(f *hints.File) DataOption {
	return func(r *dataRequest) { r.hints = f }
}

// GenerateData generates records for connection conn as described by text.
// Explicit counts override counts found in text. The run is recorded in sess,
// which may be nil for a one-off request.
// A partial result is returned alongside a cancellation error.
func (a *Assistant) GenerateData(ctx context.Context, sess *Session, conn, text string, counts map[string]int, opts ...DataOption) (*generator.Result, error) {
	if sess == nil {
		sess = a.NewSession()
	}
	var dr dataRequest
	for _, opt := range opts {
		opt(&dr)
	}

	s, err := a.source.Load(ctx, conn)
	if err != nil {
		return nil, err
	}

	req, err := a.buildRequest(s, text, counts, dr)
	if err != nil {
		return nil, err
	}

	genCfg := a.options.Generation
	output, err := a.outputBudget(genCfg, req.Intent)
	if err != nil {
		return nil, err
	}
	genCfg.MaxOutputTokens = output
	genCfg.InputBudget = a.options.ContextWindow - output

	conv := sess.Conversation.Snapshot()
	if dropped := serializer.FitConversation(conv, int(float64(genCfg.InputBudget)*a.options.ConversationShare)); dropped > 0 {
		a.logger.Debug("Dropped oldest conversation turns", zap.Int("dropped", dropped))
	}
	req.Conversation = conv

	a.logger.Info("Generating data",
		zap.String("session", sess.ID),
		zap.String("connection", conn),
		zap.Strings("tables", req.Tables),
		zap.Int("output_tokens", output))

	gen := generator.New(a.client, a.counter, genCfg, a.logger)
	res, err := gen.Generate(ctx, s, req)
	if res != nil {
		sess.record(conn, text, s, res)
	}
	return res, err
}

func (a *Assistant) buildRequest(s *schema.Schema, text string, explicit map[string]int, dr dataRequest) (generator.Request, error) {
	req := generator.Request{
		Counts:       make(map[string]int),
		DefaultCount: a.options.Generation.Prompt.DefaultCount,
		Intent:       text,
	}
	targets := make(map[string]bool)

	if dr.hints != nil {
		hintCounts, columns, err := dr.hints.Resolve(s)
		if err != nil {
			return req, err
		}
		for name, n := range hintCounts {
			req.Counts[name] = n
			targets[name] = true
		}
		req.Hints = columns
		if dr.hints.Intent != "" {
			req.Intent = strings.TrimSpace(text + "\n" + dr.hints.Intent)
		}
	}
	for name, n := range ParseCounts(s, text) {
		req.Counts[name] = n
	}
	for _, name := range MentionedTables(s, text) {
		targets[name] = true
	}
	for name, n := range explicit {
		t, ok := s.Lookup(name)
		if !ok {
			return req, fmt.Errorf("unknown table %q", name)
		}
		req.Counts[t.Name] = n
		targets[t.Name] = true
	}

	for name := range targets {
		req.Tables = append(req.Tables, name)
	}
	sort.Strings(req.Tables)
	return req, nil
}

// outputBudget returns the response tokens left once the fixed prompt parts
// are counted, capped at the configured maximum.
func (a *Assistant) outputBudget(cfg generator.Config, intent string) (int, error) {
	used := tokens.Sum(a.counter, prompt.SystemInstruction(cfg.Prompt), intent) + promptOverhead
	available := a.options.ContextWindow - used
	output := min(cfg.MaxOutputTokens, available)
	if output < MinOutputTokens {
		return 0, &apperrors.InsufficientCapacityError{Available: output, Minimum: MinOutputTokens}
	}
	return output, nil
}

// Models is the outcome of GenerateModels.
type Models struct {
	Code string
	// Path is set when the models were saved.
	Path string
}

// GenerateModels renders the schema of conn as model source in format and,
// when save is set, writes it to <models dir>/<conn><ext>.
func (a *Assistant) GenerateModels(ctx context.Context, conn string, format codegen.Format, save bool) (*Models, error) {
	s, err := a.source.Load(ctx, conn)
	if err != nil {
		return nil, err
	}
	g, err := codegen.New(format)
	if err != nil {
		return nil, err
	}
	code, err := g.GenerateModels(s)
	if err != nil {
		return nil, fmt.Errorf("failed to generate models for %s: %w", conn, err)
	}

	m := &Models{Code: code}
	if save {
		m.Path, err = reporter.SaveModels(a.options.ModelsDir, conn, g.Extension(), code)
		if err != nil {
			return m, err
		}
		a.logger.Info("Saved models", zap.String("connection", conn), zap.String("path", m.Path))
	}
	return m, nil
}

// summary describes a result for the conversation history.
func summary(res *generator.Result) string {
	parts := make([]string, 0, len(res.Order))
	for _, name := range res.Order {
		tr := res.Tables[name]
		parts = append(parts, fmt.Sprintf("%s: %d of %d (%s)", name, len(tr.Records), tr.Requested, tr.Status))
	}
	return "Generated " + strings.Join(parts, ", ")
}
