package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ericfisherdev/datawipe/internal/catalog"
	"github.com/ericfisherdev/datawipe/internal/classify"
	"github.com/ericfisherdev/datawipe/internal/csvimport"
	"github.com/ericfisherdev/datawipe/internal/domain/model"
	"github.com/ericfisherdev/datawipe/internal/domain/port/driven"
)

// skipSampleSize caps how many skipped rows an import result lists.
const skipSampleSize = 10

// Analysis is a parsed and classified export that has not been stored.
type Analysis struct {
	Encoding  string
	Detection csvimport.Detection
	Accounts  []model.Account
	Skipped   []csvimport.SkipRecord
}

// Analyzer parses an export and classifies every extracted account. It has
// no side effects, so the CLI uses it directly for offline inspection.
type Analyzer struct {
	parser      *csvimport.Parser
	categorizer *classify.Categorizer
}

// NewAnalyzer returns an Analyzer backed by c.
func NewAnalyzer(c *catalog.Catalog) *Analyzer {
	return &Analyzer{
		parser:      csvimport.NewParser(c),
		categorizer: classify.NewCategorizer(c),
	}
}

// Analyze parses data. Any error is a *csvimport.FormatError.
func (a *Analyzer) Analyze(data []byte) (Analysis, error) {
	res, err := a.parser.Parse(data)
	if err != nil {
		return Analysis{}, err
	}

	accounts := make([]model.Account, 0, len(res.Accounts))
	for _, acct := range res.Accounts {
		enriched := a.categorizer.Enrich(acct, false)
		enriched.SourceFormat = res.Detection.FormatID
		accounts = append(accounts, enriched)
	}

	return Analysis{
		Encoding:  res.Encoding,
		Detection: res.Detection,
		Accounts:  accounts,
		Skipped:   res.Skipped,
	}, nil
}

// ImportResult reports a stored import.
type ImportResult struct {
	ImportID      string
	Filename      string
	Encoding      string
	Detection     csvimport.Detection
	Accounts      []model.Account
	SkippedCount  int
	SkippedSample []csvimport.SkipRecord
}

// ImportService stores the accounts of an uploaded export.
type ImportService struct {
	analyzer *Analyzer
	accounts driven.AccountStore
	audit    driven.AuditSink
	logger   *slog.Logger
}

// NewImportService creates an ImportService.
func NewImportService(analyzer *Analyzer, accounts driven.AccountStore, audit driven.AuditSink, logger *slog.Logger) *ImportService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportService{analyzer: analyzer, accounts: accounts, audit: audit, logger: logger}
}

// Import parses, classifies and upserts every account in data. A format
// error rejects the whole upload and stores nothing, and so does a store
// error: the accounts are written in one batch.
func (s *ImportService) Import(ctx context.Context, filename string, data []byte) (ImportResult, error) {
	analysis, err := s.analyzer.Analyze(data)
	if err != nil {
		s.logger.Warn("import rejected", "filename", filename, "error", err)
		return ImportResult{}, err
	}

	result := ImportResult{
		ImportID:     uuid.NewString(),
		Filename:     filename,
		Encoding:     analysis.Encoding,
		Detection:    analysis.Detection,
		Accounts:     make([]model.Account, 0, len(analysis.Accounts)),
		SkippedCount: len(analysis.Skipped),
	}
	result.SkippedSample = analysis.Skipped[:min(len(analysis.Skipped), skipSampleSize)]

	batch := make([]model.Account, 0, len(analysis.Accounts))
	for _, acct := range analysis.Accounts {
		acct.ImportID = result.ImportID
		batch = append(batch, acct)
	}
	stored, err := s.accounts.UpsertAll(ctx, batch)
	if err != nil {
		s.logger.Error("import not stored", "filename", filename, "accounts", len(batch), "error", err)
		return ImportResult{}, fmt.Errorf("import %s: %w", filename, err)
	}
	result.Accounts = stored

	recordAudit(ctx, s.audit, s.logger, model.AuditRecord{
		Action: model.AuditCSVUploaded,
		Details: map[string]any{
			"import_id":  result.ImportID,
			"filename":   filename,
			"format":     analysis.Detection.FormatID,
			"confidence": analysis.Detection.Confidence,
			"encoding":   analysis.Encoding,
			"imported":   len(result.Accounts),
			"skipped":    result.SkippedCount,
		},
	})
	s.logger.Info("import stored",
		"import_id", result.ImportID,
		"format", analysis.Detection.FormatID,
		"accounts", len(result.Accounts),
		"skipped", result.SkippedCount,
	)

	return result, nil
}
