package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/Aadvait-Hirde/LLMVulnBench/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store keeps study runs and analysis scores in PostgreSQL. It implements
// schemas.RunSource, schemas.RunSink and schemas.ScoreSink.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var (
	_ schemas.RunSource = (*Store)(nil)
	_ schemas.RunSink   = (*Store)(nil)
	_ schemas.ScoreSink = (*Store)(nil)
)

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// schemaStatements are applied in order by EnsureSchema.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS study_runs (
        task_id     TEXT NOT NULL,
        domain      TEXT NOT NULL,
        language    TEXT NOT NULL,
        prompt_type TEXT NOT NULL,
        model       TEXT NOT NULL DEFAULT '',
        run_number  INTEGER NOT NULL,
        status      TEXT NOT NULL,
        parse_error TEXT NOT NULL DEFAULT '',
        scanned_at  TIMESTAMPTZ,
        PRIMARY KEY (task_id, domain, language, prompt_type, model, run_number)
    );`,
	`CREATE TABLE IF NOT EXISTS study_findings (
        task_id     TEXT NOT NULL,
        domain      TEXT NOT NULL,
        language    TEXT NOT NULL,
        prompt_type TEXT NOT NULL,
        model       TEXT NOT NULL DEFAULT '',
        run_number  INTEGER NOT NULL,
        position    INTEGER NOT NULL,
        scanner     TEXT NOT NULL,
        rule_id     TEXT NOT NULL,
        severity    TEXT NOT NULL,
        message     TEXT NOT NULL,
        cwe         TEXT NOT NULL DEFAULT '',
        cvss_score  DOUBLE PRECISION,
        file_path   TEXT NOT NULL,
        line_number INTEGER NOT NULL,
        end_line    INTEGER NOT NULL,
        PRIMARY KEY (task_id, domain, language, prompt_type, model, run_number, position)
    );`,
	`CREATE TABLE IF NOT EXISTS security_scores (
        analysis_id           TEXT NOT NULL,
        task_id               TEXT NOT NULL,
        domain                TEXT NOT NULL,
        language              TEXT NOT NULL,
        prompt_type           TEXT NOT NULL,
        total_vulnerabilities INTEGER NOT NULL,
        error_count           INTEGER NOT NULL,
        warning_count         INTEGER NOT NULL,
        info_count            INTEGER NOT NULL,
        weighted_score        INTEGER NOT NULL,
        total_cvss_score      DOUBLE PRECISION NOT NULL,
        max_cvss_score        DOUBLE PRECISION NOT NULL,
        avg_cvss_score        DOUBLE PRECISION NOT NULL,
        unique_rules          INTEGER NOT NULL,
        cwe_count             INTEGER NOT NULL,
        runs_analyzed         INTEGER NOT NULL,
        runs_unparseable      INTEGER NOT NULL,
        security_score        DOUBLE PRECISION NOT NULL,
        normalization_factor  DOUBLE PRECISION NOT NULL,
        created_at            TIMESTAMPTZ NOT NULL,
        PRIMARY KEY (analysis_id, task_id, domain, language, prompt_type)
    );`,
}

// EnsureSchema creates the study tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

const (
	sqlUpsertRun = `
        INSERT INTO study_runs (task_id, domain, language, prompt_type, model, run_number, status, parse_error, scanned_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (task_id, domain, language, prompt_type, model, run_number) DO UPDATE SET
            status = EXCLUDED.status,
            parse_error = EXCLUDED.parse_error,
            scanned_at = EXCLUDED.scanned_at;
    `
	sqlDeleteRunFindings = `
        DELETE FROM study_findings
        WHERE task_id = $1 AND domain = $2 AND language = $3 AND prompt_type = $4 AND model = $5 AND run_number = $6;
    `
	sqlUpsertScore = `
        INSERT INTO security_scores (analysis_id, task_id, domain, language, prompt_type,
            total_vulnerabilities, error_count, warning_count, info_count, weighted_score,
            total_cvss_score, max_cvss_score, avg_cvss_score,
            unique_rules, cwe_count, runs_analyzed, runs_unparseable,
            security_score, normalization_factor, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
        ON CONFLICT (analysis_id, task_id, domain, language, prompt_type) DO UPDATE SET
            total_vulnerabilities = EXCLUDED.total_vulnerabilities,
            error_count = EXCLUDED.error_count,
            warning_count = EXCLUDED.warning_count,
            info_count = EXCLUDED.info_count,
            weighted_score = EXCLUDED.weighted_score,
            total_cvss_score = EXCLUDED.total_cvss_score,
            max_cvss_score = EXCLUDED.max_cvss_score,
            avg_cvss_score = EXCLUDED.avg_cvss_score,
            unique_rules = EXCLUDED.unique_rules,
            cwe_count = EXCLUDED.cwe_count,
            runs_analyzed = EXCLUDED.runs_analyzed,
            runs_unparseable = EXCLUDED.runs_unparseable,
            security_score = EXCLUDED.security_score,
            normalization_factor = EXCLUDED.normalization_factor,
            created_at = EXCLUDED.created_at;
    `
	sqlSelectRuns = `
        SELECT task_id, domain, language, prompt_type, model, run_number, status, parse_error, scanned_at
        FROM study_runs
        ORDER BY task_id, domain, language, prompt_type, model, run_number;
    `
	sqlSelectFindings = `
        SELECT task_id, domain, language, prompt_type, model, run_number,
            scanner, rule_id, severity, message, cwe, cvss_score, file_path, line_number, end_line
        FROM study_findings
        ORDER BY task_id, domain, language, prompt_type, model, run_number, position;
    `
)

var findingColumns = []string{
	"task_id", "domain", "language", "prompt_type", "model", "run_number", "position",
	"scanner", "rule_id", "severity", "message", "cwe", "cvss_score", "file_path", "line_number", "end_line",
}

// PersistRuns upserts runs and replaces their findings in one transaction.
// Re-ingesting a run therefore never duplicates its findings.
func (s *Store) PersistRuns(ctx context.Context, runs []schemas.Run) error {
	if len(runs) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if err := s.upsertRuns(ctx, tx, runs); err != nil {
		return err
	}
	if err := s.copyFindings(ctx, tx, runs); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Persisted runs", zap.Int("runs", len(runs)))
	return nil
}

func (s *Store) upsertRuns(ctx context.Context, tx pgx.Tx, runs []schemas.Run) error {
	batch := &pgx.Batch{}
	for _, r := range runs {
		var scannedAt *time.Time
		if !r.ScannedAt.IsZero() {
			t := r.ScannedAt.UTC()
			scannedAt = &t
		}
		k := r.Key
		batch.Queue(sqlUpsertRun, k.TaskID, k.Domain, k.Language, k.PromptType, r.Model, r.RunNumber,
			string(r.Status), r.ParseError, scannedAt)
		batch.Queue(sqlDeleteRunFindings, k.TaskID, k.Domain, k.Language, k.PromptType, r.Model, r.RunNumber)
	}

	// Each run queues an upsert and a delete.
	return execBatch(ctx, tx, batch, func(i int) string { return runs[i/2].ID() })
}

func (s *Store) copyFindings(ctx context.Context, tx pgx.Tx, runs []schemas.Run) error {
	var rows [][]interface{}
	for _, r := range runs {
		k := r.Key
		for i, f := range r.Findings {
			rows = append(rows, []interface{}{
				k.TaskID, k.Domain, k.Language, k.PromptType, r.Model, r.RunNumber, i,
				f.Scanner, f.RuleID, string(f.Severity), f.Message, f.CWE, f.CVSSScore,
				f.FilePath, f.LineNumber, f.EndLine,
			})
		}
	}
	if len(rows) == 0 {
		return nil
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"study_findings"}, findingColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy findings: %w", err)
	}
	if int(copyCount) != len(rows) {
		return fmt.Errorf("mismatch in copied findings count: expected %d, got %d", len(rows), copyCount)
	}
	return nil
}

// PersistScores stores the scored records of one analysis.
func (s *Store) PersistScores(ctx context.Context, analysisID string, normalizationFactor float64, records []schemas.ScoredRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(sqlUpsertScore, analysisID, r.TaskID, r.Domain, r.Language, r.PromptType,
			r.TotalVulnerabilities, r.ErrorCount, r.WarningCount, r.InfoCount, r.WeightedScore,
			r.TotalCVSSScore, r.MaxCVSSScore, r.AvgCVSSScore,
			r.UniqueRules, r.CWECount, r.RunsAnalyzed, r.RunsUnparseable,
			r.SecurityScore, normalizationFactor, now)
	}

	if err := execBatch(ctx, tx, batch, func(i int) string { return records[i].GroupKey.String() }); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Persisted security scores", zap.String("analysis_id", analysisID), zap.Int("records", len(records)))
	return nil
}

// execBatch sends batch and checks every queued statement. name describes
// the i-th statement for error messages.
func execBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch, name func(i int) string) error {
	br := tx.SendBatch(ctx, batch)
	if br == nil {
		return fmt.Errorf("failed to send batch: batch results is nil")
	}
	// Closed before the caller can run CopyFrom on the same connection.
	defer func() {
		_ = br.Close()
	}()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to execute batch statement for %s (index %d): %w", name(i), i, err)
		}
	}
	return nil
}

type runIdentity struct {
	key   schemas.GroupKey
	model string
	run   int
}

// LoadRuns returns every stored run with its findings in their original order.
func (s *Store) LoadRuns(ctx context.Context) ([]schemas.Run, error) {
	rows, err := s.pool.Query(ctx, sqlSelectRuns)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []schemas.Run
	index := make(map[runIdentity]int)
	for rows.Next() {
		var r schemas.Run
		var status string
		var scannedAt *time.Time
		if err := rows.Scan(&r.Key.TaskID, &r.Key.Domain, &r.Key.Language, &r.Key.PromptType,
			&r.Model, &r.RunNumber, &status, &r.ParseError, &scannedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		r.Status = schemas.RunStatus(status)
		if scannedAt != nil {
			r.ScannedAt = scannedAt.UTC()
		}
		index[runIdentity{r.Key, r.Model, r.RunNumber}] = len(runs)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	rows.Close()

	if err := s.loadFindings(ctx, runs, index); err != nil {
		return nil, err
	}
	s.log.Info("Loaded runs from database", zap.Int("runs", len(runs)))
	return runs, nil
}

func (s *Store) loadFindings(ctx context.Context, runs []schemas.Run, index map[runIdentity]int) error {
	rows, err := s.pool.Query(ctx, sqlSelectFindings)
	if err != nil {
		return fmt.Errorf("failed to query findings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id runIdentity
		var f schemas.Finding
		var severity string
		if err := rows.Scan(&id.key.TaskID, &id.key.Domain, &id.key.Language, &id.key.PromptType, &id.model, &id.run,
			&f.Scanner, &f.RuleID, &severity, &f.Message, &f.CWE, &f.CVSSScore,
			&f.FilePath, &f.LineNumber, &f.EndLine); err != nil {
			return fmt.Errorf("failed to scan finding row: %w", err)
		}
		f.Severity = schemas.Severity(severity)

		i, ok := index[id]
		if !ok {
			s.log.Warn("Skipping finding without a run", zap.String("task_id", id.key.TaskID), zap.Int("run_number", id.run))
			continue
		}
		runs[i].Findings = append(runs[i].Findings, f)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error during row iteration: %w", err)
	}
	return nil
}
