// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists registered papers, harvested bibliography text,
// structured reference records, and the per-paper extraction log in a
// SQLite database under the data directory.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/refextract/pkg/types"
)

const (
	indexDir = "index"
	dbFile   = "refextract.db"
)

// Store manages the extraction database.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the SQLite database at
// <data-dir>/index/refextract.db, creating the schema if needed.
func NewStore(cfg types.StoreConfig) (*Store, error) {
	dbDir := filepath.Join(cfg.DataDir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(dbDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS papers (
			id TEXT PRIMARY KEY,
			pdf_url TEXT NOT NULL,
			title TEXT,
			authors TEXT,
			published TEXT,
			abstract TEXT,
			added_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS section_texts (
			paper_id TEXT PRIMARY KEY REFERENCES papers(id),
			text TEXT NOT NULL,
			start_offset INTEGER NOT NULL,
			score INTEGER NOT NULL,
			truncated INTEGER NOT NULL,
			flagged INTEGER NOT NULL,
			harvested_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reference_records (
			paper_id TEXT NOT NULL REFERENCES papers(id),
			ordinal INTEGER NOT NULL,
			title TEXT,
			authors TEXT,
			year INTEGER,
			venue TEXT,
			venue_type TEXT,
			volume TEXT,
			issue TEXT,
			pages TEXT,
			doi TEXT,
			arxiv_id TEXT,
			url TEXT,
			raw_text TEXT,
			PRIMARY KEY (paper_id, ordinal)
		)`,
		`CREATE TABLE IF NOT EXISTS extract_log (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			paper_id TEXT NOT NULL REFERENCES papers(id),
			step TEXT NOT NULL,
			error_kind TEXT,
			error TEXT,
			at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_extract_log_paper ON extract_log(paper_id, rowid)`,
		`CREATE INDEX IF NOT EXISTS idx_references_paper ON reference_records(paper_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// UpsertPaper registers a paper, replacing metadata fields on re-add.
func (s *Store) UpsertPaper(ctx context.Context, paper types.Paper) error {
	authorsJSON, _ := json.Marshal(paper.Authors)
	published := ""
	if !paper.Published.IsZero() {
		published = paper.Published.Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO papers (id, pdf_url, title, authors, published, abstract, added_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			pdf_url=excluded.pdf_url, title=excluded.title, authors=excluded.authors,
			published=excluded.published, abstract=excluded.abstract`,
		paper.ID, paper.PDFURL, paper.Title, string(authorsJSON),
		published, paper.Abstract, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting paper %s: %w", paper.ID, err)
	}
	return nil
}

// GetPaper returns the paper with the given ID, or false if not registered.
func (s *Store) GetPaper(ctx context.Context, id string) (types.Paper, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, pdf_url, title, authors, published, abstract FROM papers WHERE id = ?`, id)
	paper, err := scanPaper(row)
	if err == sql.ErrNoRows {
		return types.Paper{}, false, nil
	}
	if err != nil {
		return types.Paper{}, false, fmt.Errorf("querying paper %s: %w", id, err)
	}
	return paper, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPaper(row rowScanner) (types.Paper, error) {
	var paper types.Paper
	var authorsJSON, published string
	if err := row.Scan(&paper.ID, &paper.PDFURL, &paper.Title, &authorsJSON, &published, &paper.Abstract); err != nil {
		return types.Paper{}, err
	}
	if authorsJSON != "" {
		json.Unmarshal([]byte(authorsJSON), &paper.Authors)
	}
	if published != "" {
		if t, err := time.Parse(time.RFC3339, published); err == nil {
			paper.Published = t
		}
	}
	return paper, nil
}

// ListPapers returns registered papers matching the batch filters, in
// registration order.
func (s *Store) ListPapers(ctx context.Context, cfg types.BatchConfig) ([]types.Paper, error) {
	query := `SELECT p.id, p.pdf_url, p.title, p.authors, p.published, p.abstract FROM papers p`
	var clauses []string
	var args []any

	if cfg.PaperID != "" {
		clauses = append(clauses, `p.id = ?`)
		args = append(args, cfg.PaperID)
	}
	if cfg.SkipProcessed {
		clauses = append(clauses, `NOT EXISTS (SELECT 1 FROM reference_records r WHERE r.paper_id = p.id)`)
	}
	if cfg.RetryFailed {
		clauses = append(clauses, `(SELECT l.step FROM extract_log l WHERE l.paper_id = p.id ORDER BY l.rowid DESC LIMIT 1) = 'failed'`)
	}

	for i, c := range clauses {
		if i == 0 {
			query += ` WHERE ` + c
		} else {
			query += ` AND ` + c
		}
	}
	query += ` ORDER BY p.rowid`
	if cfg.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, cfg.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying papers: %w", err)
	}
	defer rows.Close()

	var papers []types.Paper
	for rows.Next() {
		paper, err := scanPaper(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning paper: %w", err)
		}
		papers = append(papers, paper)
	}
	return papers, rows.Err()
}

// SaveSection stores the harvested bibliography span for a paper, replacing
// any prior harvest.
func (s *Store) SaveSection(ctx context.Context, paperID string, span types.SectionSpan) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO section_texts (paper_id, text, start_offset, score, truncated, flagged, harvested_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(paper_id) DO UPDATE SET
			text=excluded.text, start_offset=excluded.start_offset, score=excluded.score,
			truncated=excluded.truncated, flagged=excluded.flagged, harvested_at=excluded.harvested_at`,
		paperID, span.Text, span.Start, span.Score,
		boolToInt(span.Truncated), boolToInt(span.Flagged),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving section for %s: %w", paperID, err)
	}
	return nil
}

// GetSection returns the stored bibliography span for a paper.
func (s *Store) GetSection(ctx context.Context, paperID string) (types.SectionSpan, bool, error) {
	var span types.SectionSpan
	var truncated, flagged int
	err := s.db.QueryRowContext(ctx,
		`SELECT text, start_offset, score, truncated, flagged FROM section_texts WHERE paper_id = ?`,
		paperID,
	).Scan(&span.Text, &span.Start, &span.Score, &truncated, &flagged)
	if err == sql.ErrNoRows {
		return types.SectionSpan{}, false, nil
	}
	if err != nil {
		return types.SectionSpan{}, false, fmt.Errorf("querying section for %s: %w", paperID, err)
	}
	span.Truncated = truncated != 0
	span.Flagged = flagged != 0
	return span, true, nil
}

// HarvestedSection pairs a paper with its stored bibliography text.
type HarvestedSection struct {
	PaperID string
	Text    string
}

// ListSections returns stored sections matching the batch filters, for
// structure-only runs over previously harvested text.
func (s *Store) ListSections(ctx context.Context, cfg types.BatchConfig) ([]HarvestedSection, error) {
	query := `SELECT t.paper_id, t.text FROM section_texts t`
	var clauses []string
	var args []any

	if cfg.PaperID != "" {
		clauses = append(clauses, `t.paper_id = ?`)
		args = append(args, cfg.PaperID)
	}
	if cfg.SkipProcessed {
		clauses = append(clauses, `NOT EXISTS (SELECT 1 FROM reference_records r WHERE r.paper_id = t.paper_id)`)
	}

	for i, c := range clauses {
		if i == 0 {
			query += ` WHERE ` + c
		} else {
			query += ` AND ` + c
		}
	}
	query += ` ORDER BY t.rowid`
	if cfg.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, cfg.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sections: %w", err)
	}
	defer rows.Close()

	var sections []HarvestedSection
	for rows.Next() {
		var sec HarvestedSection
		if err := rows.Scan(&sec.PaperID, &sec.Text); err != nil {
			return nil, fmt.Errorf("scanning section: %w", err)
		}
		sections = append(sections, sec)
	}
	return sections, rows.Err()
}

// ReplaceReferences atomically replaces all reference records for a paper.
// A successful re-run never leaves records from two runs mixed.
func (s *Store) ReplaceReferences(ctx context.Context, paperID string, records []types.ReferenceRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reference_records WHERE paper_id = ?`, paperID); err != nil {
		return fmt.Errorf("deleting old records: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO reference_records
			(paper_id, ordinal, title, authors, year, venue, venue_type,
			 volume, issue, pages, doi, arxiv_id, url, raw_text)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		authorsJSON, _ := json.Marshal(rec.Authors)
		_, err := stmt.ExecContext(ctx,
			paperID, rec.Ordinal, rec.Title, string(authorsJSON), rec.Year,
			rec.Venue, string(rec.VenueType), rec.Volume, rec.Issue,
			rec.Pages, rec.DOI, rec.ArxivID, rec.URL, rec.RawText,
		)
		if err != nil {
			return fmt.Errorf("inserting record %d for %s: %w", rec.Ordinal, paperID, err)
		}
	}

	return tx.Commit()
}

// GetReferences returns a paper's reference records in ordinal order.
func (s *Store) GetReferences(ctx context.Context, paperID string) ([]types.ReferenceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ordinal, title, authors, year, venue, venue_type,
			volume, issue, pages, doi, arxiv_id, url, raw_text
		 FROM reference_records WHERE paper_id = ? ORDER BY ordinal`, paperID)
	if err != nil {
		return nil, fmt.Errorf("querying records for %s: %w", paperID, err)
	}
	defer rows.Close()

	var records []types.ReferenceRecord
	for rows.Next() {
		var rec types.ReferenceRecord
		var authorsJSON, venueType string
		err := rows.Scan(&rec.Ordinal, &rec.Title, &authorsJSON, &rec.Year,
			&rec.Venue, &venueType, &rec.Volume, &rec.Issue, &rec.Pages,
			&rec.DOI, &rec.ArxivID, &rec.URL, &rec.RawText)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		if authorsJSON != "" {
			json.Unmarshal([]byte(authorsJSON), &rec.Authors)
		}
		rec.VenueType = types.VenueType(venueType)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// LogStep appends a step transition to a paper's extraction log. kind and
// errMsg are empty for non-failure steps.
func (s *Store) LogStep(ctx context.Context, paperID, step, kind, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO extract_log (paper_id, step, error_kind, error, at) VALUES (?, ?, ?, ?, ?)`,
		paperID, step, kind, errMsg, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("logging step for %s: %w", paperID, err)
	}
	return nil
}

// LastStep returns the most recent logged step for a paper.
func (s *Store) LastStep(ctx context.Context, paperID string) (step, kind string, ok bool, err error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT step, COALESCE(error_kind, '') FROM extract_log
		 WHERE paper_id = ? ORDER BY rowid DESC LIMIT 1`, paperID)
	if err := row.Scan(&step, &kind); err != nil {
		if err == sql.ErrNoRows {
			return "", "", false, nil
		}
		return "", "", false, fmt.Errorf("querying last step for %s: %w", paperID, err)
	}
	return step, kind, true, nil
}

// Summary aggregates the database contents for the stats command.
type Summary struct {
	Papers          int
	WithSections    int
	WithReferences  int
	TotalReferences int
	FailuresByKind  map[string]int
}

// Stats computes aggregate counts over the stored data.
func (s *Store) Stats(ctx context.Context) (Summary, error) {
	sum := Summary{FailuresByKind: map[string]int{}}

	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT count(*) FROM papers`, &sum.Papers},
		{`SELECT count(*) FROM section_texts`, &sum.WithSections},
		{`SELECT count(DISTINCT paper_id) FROM reference_records`, &sum.WithReferences},
		{`SELECT count(*) FROM reference_records`, &sum.TotalReferences},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return Summary{}, fmt.Errorf("counting: %w", err)
		}
	}

	// Failure kinds for papers whose latest log entry is a failure.
	rows, err := s.db.QueryContext(ctx,
		`SELECT error_kind, count(*) FROM (
			SELECT paper_id, step,
				COALESCE(error_kind, '') AS error_kind,
				MAX(rowid)
			FROM extract_log GROUP BY paper_id
		) WHERE step = 'failed' GROUP BY error_kind`)
	if err != nil {
		return Summary{}, fmt.Errorf("querying failures: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return Summary{}, fmt.Errorf("scanning failure count: %w", err)
		}
		sum.FailuresByKind[kind] = count
	}
	return sum, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
