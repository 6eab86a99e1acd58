package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"sdsdg/internal/assistant"
	"sdsdg/internal/codegen"
	"sdsdg/internal/config"
	"sdsdg/internal/console"
	"sdsdg/internal/database"
	"sdsdg/internal/generator"
	"sdsdg/internal/hints"
	"sdsdg/internal/llm"
	"sdsdg/internal/logger"
	"sdsdg/internal/parser"
	"sdsdg/internal/reporter"
	"sdsdg/internal/tokens"
)

const usage = `Usage:
  sdsdg generate -conn NAME -prompt TEXT [-count N] [-table NAME=N ...] [-hints FILE] [-config PATH]
  sdsdg generate -schema FILE -prompt TEXT [-dialect postgres|mysql|sqlserver] ...
  sdsdg chat     -conn NAME [-schema FILE] [-hints FILE] [-config PATH]
  sdsdg models   -conn NAME [-format gorm|openapi] [-save] [-config PATH]`

// tableCounts collects repeated -table name=N flags.
type tableCounts map[string]int

func (c tableCounts) String() string {
	parts := make([]string, 0, len(c))
	for k, v := range c {
		parts = append(parts, fmt.Sprintf("%s=%d", k, v))
	}
	return strings.Join(parts, ",")
}

func (c tableCounts) Set(value string) error {
	name, n, ok := strings.Cut(value, "=")
	if !ok || name == "" {
		return fmt.Errorf("expected NAME=N, got %q", value)
	}
	count, err := strconv.Atoi(n)
	if err != nil || count <= 0 {
		return fmt.Errorf("invalid count in %q", value)
	}
	c[name] = count
	return nil
}

// app holds what every command needs.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	dbs     *database.Manager
	counter tokens.Counter
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	l, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.LogDir)
	if err != nil {
		return nil, err
	}
	dbs, err := database.NewManager(cfg.Connections, l.Logger)
	if err != nil {
		_ = l.Close()
		return nil, err
	}

	var counter tokens.Counter = tokens.Heuristic{}
	if tk, err := tokens.NewTiktoken(cfg.LLM.Model); err == nil {
		counter = tk
	} else {
		l.Debug("Falling back to heuristic token counting", zap.String("model", cfg.LLM.Model), zap.Error(err))
	}
	return &app{cfg: cfg, log: l, dbs: dbs, counter: counter}, nil
}

func (a *app) close() {
	if err := a.dbs.Close(); err != nil {
		a.log.Warn("Failed to close database connections", zap.Error(err))
	}
	_ = a.log.Close()
}

// source returns where schemas come from: the OpenAPI document at schemaFile
// when set, the configured databases otherwise.
func (a *app) source(schemaFile string) assistant.SchemaSource {
	if schemaFile != "" {
		return &parser.FileSource{Location: schemaFile}
	}
	return a.dbs
}

// dialect picks the SQL flavour of exported inserts.
func (a *app) dialect(conn, schemaFile, override string) (database.Dialect, error) {
	if override != "" {
		return database.ParseDialect(override)
	}
	if schemaFile != "" {
		return database.Postgres, nil
	}
	return a.dbs.Dialect(conn)
}

func (a *app) reporter() *reporter.Reporter {
	return reporter.NewReporter(reporter.ReportingConfig{
		Formats:   a.cfg.Output.Formats,
		OutputDir: a.cfg.Output.Dir,
		Detailed:  true,
	}, a.log.Logger)
}

func (a *app) assistant(source assistant.SchemaSource) (*assistant.Assistant, error) {
	llmCfg := &llm.Config{
		Provider:        a.cfg.LLM.Provider,
		APIKey:          a.cfg.LLM.APIKey,
		Model:           a.cfg.LLM.Model,
		BaseURL:         a.cfg.LLM.BaseURL,
		Temperature:     float64(a.cfg.LLM.Temperature),
		ContextWindow:   a.cfg.LLM.ContextWindow,
		MaxOutputTokens: a.cfg.LLM.MaxOutputTokens,
	}
	transport, err := llm.NewTransport(llmCfg, a.log.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM transport: %w", err)
	}
	return assistant.New(source, transport, a.counter, assistant.OptionsFromConfig(a.cfg), a.log.Logger), nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "generate":
		err = runGenerate(ctx, os.Args[2:])
	case "chat":
		err = runChat(ctx, os.Args[2:])
	case "models":
		err = runModels(ctx, os.Args[2:])
	case "-h", "--help", "help":
		fmt.Println(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n%s\n", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		log.Printf("Error: %v", logger.SanitizeError(err))
		os.Exit(1)
	}
}

func runGenerate(ctx context.Context, args []string) error {
	generateCmd := flag.NewFlagSet("generate", flag.ExitOnError)
	configPath := generateCmd.String("config", config.DefaultPath, "Path to the configuration file")
	conn := generateCmd.String("conn", "", "Connection name")
	text := generateCmd.String("prompt", "", "What to generate")
	count := generateCmd.Int("count", 0, "Rows per table when the prompt names no count")
	hintsPath := generateCmd.String("hints", "", "Path to a YAML or JSON hints file")
	outDir := generateCmd.String("output", "", "Output directory, overrides the configuration")
	schemaFile := generateCmd.String("schema", "", "OpenAPI model file to read the schema from instead of a database")
	dialectName := generateCmd.String("dialect", "", "SQL dialect of exported inserts")
	counts := tableCounts{}
	generateCmd.Var(counts, "table", "Rows for one table as NAME=N, repeatable")
	if err := generateCmd.Parse(args); err != nil {
		return err
	}
	if *conn == "" && *schemaFile != "" {
		*conn = strings.TrimSuffix(filepath.Base(*schemaFile), filepath.Ext(*schemaFile))
	}
	if *conn == "" || *text == "" {
		generateCmd.Usage()
		return errors.New("-prompt and one of -conn or -schema are required")
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.close()
	if *count > 0 {
		a.cfg.Generation.DefaultCount = *count
	}
	if *outDir != "" {
		a.cfg.Output.Dir = *outDir
	}

	var opts []assistant.DataOption
	if *hintsPath != "" {
		f, err := hints.Load(*hintsPath)
		if err != nil {
			return err
		}
		opts = append(opts, assistant.WithHints(f))
	}

	source := a.source(*schemaFile)
	asst, err := a.assistant(source)
	if err != nil {
		return err
	}
	dialect, err := a.dialect(*conn, *schemaFile, *dialectName)
	if err != nil {
		return err
	}

	started := time.Now()
	res, genErr := asst.GenerateData(ctx, asst.NewSession(), *conn, *text, counts, opts...)
	if res == nil {
		return genErr
	}

	s, err := source.Load(ctx, *conn)
	if err != nil {
		return err
	}
	paths, err := a.reporter().Write(s, res, reporter.Run{
		Connection: *conn,
		Dialect:    dialect,
		Prompt:     *text,
		Started:    started,
		Finished:   time.Now(),
		Err:        genErr,
	})
	if err != nil {
		return err
	}

	for _, name := range res.Order {
		tr := res.Tables[name]
		fmt.Printf("%-30s %-9s %d/%d\n", name, tr.Status, len(tr.Records), tr.Requested)
	}
	for _, p := range paths {
		fmt.Printf("Wrote %s\n", p)
	}
	if genErr != nil {
		return genErr
	}
	if res.Incomplete {
		return fmt.Errorf("generation incomplete for: %s", strings.Join(res.Failed(), ", "))
	}
	return nil
}

func runChat(ctx context.Context, args []string) error {
	chatCmd := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath := chatCmd.String("config", config.DefaultPath, "Path to the configuration file")
	conn := chatCmd.String("conn", "", "Connection name")
	schemaFile := chatCmd.String("schema", "", "OpenAPI model file to read the schema from instead of a database")
	dialectName := chatCmd.String("dialect", "", "SQL dialect of exported inserts")
	hintsPath := chatCmd.String("hints", "", "Path to a YAML or JSON hints file")
	if err := chatCmd.Parse(args); err != nil {
		return err
	}
	if *conn == "" && *schemaFile != "" {
		*conn = strings.TrimSuffix(filepath.Base(*schemaFile), filepath.Ext(*schemaFile))
	}
	if *conn == "" {
		chatCmd.Usage()
		return errors.New("one of -conn or -schema is required")
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.close()

	source := a.source(*schemaFile)
	asst, err := a.assistant(source)
	if err != nil {
		return err
	}
	dialect, err := a.dialect(*conn, *schemaFile, *dialectName)
	if err != nil {
		return err
	}
	var gen console.DataGenerator = asst
	if *hintsPath != "" {
		f, err := hints.Load(*hintsPath)
		if err != nil {
			return err
		}
		gen = withHints{asst, f}
	}

	rep := a.reporter()
	keep := func(res *generator.Result, genErr error) error {
		s, err := source.Load(ctx, *conn)
		if err != nil {
			return err
		}
		now := time.Now()
		paths, err := rep.Write(s, res, reporter.Run{Connection: *conn, Dialect: dialect, Started: now, Finished: now, Err: genErr})
		for _, p := range paths {
			fmt.Printf("Wrote %s\n", p)
		}
		return err
	}
	return console.New(os.Stdin, os.Stdout).Chat(ctx, gen, asst.NewSession(), *conn, keep)
}

// withHints applies one hints file to every request of a chat.
type withHints struct {
	*assistant.Assistant
	file *hints.File
}

func (w withHints) GenerateData(ctx context.Context, sess *assistant.Session, conn, text string, counts map[string]int, opts ...assistant.DataOption) (*generator.Result, error) {
	return w.Assistant.GenerateData(ctx, sess, conn, text, counts, append(opts, assistant.WithHints(w.file))...)
}

func runModels(ctx context.Context, args []string) error {
	modelsCmd := flag.NewFlagSet("models", flag.ExitOnError)
	configPath := modelsCmd.String("config", config.DefaultPath, "Path to the configuration file")
	conn := modelsCmd.String("conn", "", "Connection name")
	format := modelsCmd.String("format", "", "Model format: gorm or openapi")
	save := modelsCmd.Bool("save", false, "Save the models under the models directory")
	schemaFile := modelsCmd.String("schema", "", "OpenAPI model file to read the schema from instead of a database")
	if err := modelsCmd.Parse(args); err != nil {
		return err
	}
	if *conn == "" && *schemaFile != "" {
		*conn = strings.TrimSuffix(filepath.Base(*schemaFile), filepath.Ext(*schemaFile))
	}
	if *conn == "" {
		modelsCmd.Usage()
		return errors.New("one of -conn or -schema is required")
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.close()
	if *format == "" {
		*format = a.cfg.Output.ModelsFormat
	}

	// Model generation makes no LLM calls.
	asst := assistant.New(a.source(*schemaFile), nil, a.counter, assistant.OptionsFromConfig(a.cfg), a.log.Logger)
	m, err := asst.GenerateModels(ctx, *conn, codegen.Format(*format), *save)
	if err != nil {
		return err
	}
	if m.Path != "" {
		fmt.Printf("Models saved to %s\n", m.Path)
		return nil
	}
	fmt.Print(m.Code)
	return nil
}
