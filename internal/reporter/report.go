// Package reporter writes generation results to disk: records as JSON or SQL
// inserts, a run report, and generated model files.
package reporter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sdsdg/internal/database"
	"sdsdg/internal/generator"
	"sdsdg/internal/schema"
	"sdsdg/internal/validator"
)

// Output formats.
const (
	FormatJSON   = "json"
	FormatSQL    = "sql"
	FormatReport = "report"
)

const timestampLayout = "20060102_150405"

// Report summarizes one generation run.
type Report struct {
	Timestamp  time.Time      `json:"timestamp"`
	Connection string         `json:"connection"`
	Prompt     string         `json:"prompt,omitempty"`
	Duration   time.Duration  `json:"duration"`
	Incomplete bool           `json:"incomplete"`
	Error      string         `json:"error,omitempty"`
	Tables     []TableSummary `json:"tables"`
}

// TableSummary is the per-table part of a Report.
type TableSummary struct {
	Table      string                `json:"table"`
	Status     generator.Status      `json:"status"`
	Requested  int                   `json:"requested"`
	Accepted   int                   `json:"accepted"`
	Calls      int                   `json:"calls"`
	Rejected   int                   `json:"rejected"`
	Repaired   int                   `json:"repaired"`
	Error      string                `json:"error,omitempty"`
	Violations []validator.Violation `json:"violations,omitempty"`
}

// Run describes what produced a Result.
type Run struct {
	Connection string
	Dialect    database.Dialect
	Prompt     string
	Started    time.Time
	Finished   time.Time
	Err        error
}

// ReportingConfig holds the configuration for reporting.
type ReportingConfig struct {
	Formats   []string
	OutputDir string
	// Detailed includes every violation in the run report.
	Detailed bool
}

// Reporter writes results in the configured formats.
type Reporter struct {
	config ReportingConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewReporter creates a new instance of Reporter.
func NewReporter(config ReportingConfig, logger *zap.Logger) *Reporter {
	if len(config.Formats) == 0 {
		config.Formats = []string{FormatJSON}
	}
	return &Reporter{config: config, logger: logger.Named("reporter"), now: time.Now}
}

// Write stores res in every configured format and returns the written paths.
func (r *Reporter) Write(s *schema.Schema, res *generator.Result, run Run) ([]string, error) {
	if err := os.MkdirAll(r.config.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	stamp := r.now().Format(timestampLayout)
	base := run.Connection
	if base == "" {
		base = "data"
	}

	var paths []string
	for _, format := range r.config.Formats {
		var (
			path string
			data []byte
			err  error
		)
		switch format {
		case FormatJSON:
			path = filepath.Join(r.config.OutputDir, fmt.Sprintf("%s_%s.json", base, stamp))
			data, err = MarshalRecords(s, res)
		case FormatSQL:
			path = filepath.Join(r.config.OutputDir, fmt.Sprintf("%s_%s.sql", base, stamp))
			var sql string
			sql, err = InsertStatements(s, res, run.Dialect)
			data = []byte(sql)
		case FormatReport:
			path = filepath.Join(r.config.OutputDir, fmt.Sprintf("report_%s.json", stamp))
			data, err = json.MarshalIndent(r.BuildReport(res, run), "", "  ")
		default:
			return paths, fmt.Errorf("unknown output format %q", format)
		}
		if err != nil {
			return paths, fmt.Errorf("failed to generate %s output: %w", format, err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return paths, fmt.Errorf("failed to write %s: %w", path, err)
		}
		r.logger.Info("Wrote output", zap.String("format", format), zap.String("path", path))
		paths = append(paths, path)
	}
	return paths, nil
}

// BuildReport summarizes res in generation order.
func (r *Reporter) BuildReport(res *generator.Result, run Run) Report {
	report := Report{
		Timestamp:  run.Finished,
		Connection: run.Connection,
		Prompt:     run.Prompt,
		Duration:   run.Finished.Sub(run.Started),
	}
	if report.Timestamp.IsZero() {
		report.Timestamp = r.now()
		report.Duration = 0
	}
	if run.Err != nil {
		report.Error = run.Err.Error()
	}
	if res == nil {
		report.Incomplete = true
		return report
	}
	report.Incomplete = res.Incomplete

	for _, name := range res.Order {
		tr := res.Tables[name]
		sum := TableSummary{
			Table:     tr.Table,
			Status:    tr.Status,
			Requested: tr.Requested,
			Accepted:  len(tr.Records),
			Calls:     tr.Calls,
			Error:     tr.Error,
		}
		for _, v := range tr.Violations {
			switch v.Action {
			case validator.ActionRejected, validator.ActionDropped:
				sum.Rejected++
			case validator.ActionRepaired, validator.ActionNulled:
				sum.Repaired++
			}
		}
		if r.config.Detailed {
			sum.Violations = tr.Violations
		}
		report.Tables = append(report.Tables, sum)
	}
	return report
}

// tableData is one table in the exported JSON document.
type tableData struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// MarshalRecords renders accepted records as {"table": {"columns": [...], "rows": [[...]]}}
// with columns in schema order. Decimals are written as JSON numbers.
func MarshalRecords(s *schema.Schema, res *generator.Result) ([]byte, error) {
	doc := make(map[string]tableData, len(res.Tables))
	for _, name := range res.Order {
		tr := res.Tables[name]
		t, ok := s.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("table %q not in schema", name)
		}
		cols := exportColumns(t)
		td := tableData{Columns: cols, Rows: make([][]any, 0, len(tr.Records))}
		for _, rec := range tr.Records {
			row := make([]any, len(cols))
			for i, c := range cols {
				row[i] = jsonValue(rec[c])
			}
			td.Rows = append(td.Rows, row)
		}
		doc[name] = td
	}
	return json.MarshalIndent(doc, "", "  ")
}

func jsonValue(v any) any {
	if d, ok := v.(decimal.Decimal); ok {
		return json.Number(d.String())
	}
	return v
}

func exportColumns(t *schema.Table) []string {
	cols := make([]string, len(t.Columns))
	for i := range t.Columns {
		cols[i] = t.Columns[i].Name
	}
	return cols
}

// SaveModels writes generated model source to <dir>/<name><ext>.
func SaveModels(dir, name, ext, content string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create models directory: %w", err)
	}
	path := filepath.Join(dir, name+ext)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write models: %w", err)
	}
	return path, nil
}
