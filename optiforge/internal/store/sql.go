package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/optiforge/platform/optiforge/internal/models"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	problem_spec_json TEXT NOT NULL,
	ir_json TEXT,
	solution_json TEXT,
	audit_json TEXT NOT NULL,
	error TEXT,
	provider_name TEXT,
	provider_model TEXT
)`

const runColumns = `id, status, created_at, updated_at, problem_spec_json, ir_json, solution_json, audit_json, error, provider_name, provider_model`

// SQLStore keeps one row per run. JSON payloads are stored as text so the
// same table works on SQLite and PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sql.Open(string(DialectSQLite), path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps :memory: databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	s := NewSQLStore(db, DialectSQLite)
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open(string(DialectPostgres), dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	s := NewSQLStore(db, DialectPostgres)
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure runs table: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type runRow struct {
	status        string
	createdAt     string
	updatedAt     string
	problemSpec   string
	ir            sql.NullString
	solution      sql.NullString
	audit         string
	errMsg        sql.NullString
	providerName  sql.NullString
	providerModel sql.NullString
}

func encodeRow(rec models.RunRecord) (runRow, error) {
	row := runRow{
		status:        string(rec.Status),
		createdAt:     rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		updatedAt:     rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
		errMsg:        nullString(rec.Error),
		providerName:  nullString(rec.ProviderName),
		providerModel: nullString(rec.ProviderModel),
	}
	spec, err := json.Marshal(rec.ProblemSpec)
	if err != nil {
		return runRow{}, fmt.Errorf("encode problem spec: %w", err)
	}
	row.problemSpec = string(spec)
	audit, err := json.Marshal(rec.Audit)
	if err != nil {
		return runRow{}, fmt.Errorf("encode audit: %w", err)
	}
	row.audit = string(audit)
	if rec.IR != nil {
		b, err := json.Marshal(rec.IR)
		if err != nil {
			return runRow{}, fmt.Errorf("encode ir: %w", err)
		}
		row.ir = sql.NullString{String: string(b), Valid: true}
	}
	if rec.Solution != nil {
		b, err := json.Marshal(rec.Solution)
		if err != nil {
			return runRow{}, fmt.Errorf("encode solution: %w", err)
		}
		row.solution = sql.NullString{String: string(b), Valid: true}
	}
	return row, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (models.RunRecord, error) {
	var (
		rec models.RunRecord
		r   runRow
	)
	if err := row.Scan(
		&rec.ID,
		&r.status,
		&r.createdAt,
		&r.updatedAt,
		&r.problemSpec,
		&r.ir,
		&r.solution,
		&r.audit,
		&r.errMsg,
		&r.providerName,
		&r.providerModel,
	); err != nil {
		return models.RunRecord{}, err
	}
	rec.Status = models.RunStatus(r.status)
	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, r.createdAt); err != nil {
		return models.RunRecord{}, fmt.Errorf("parse created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, r.updatedAt); err != nil {
		return models.RunRecord{}, fmt.Errorf("parse updated_at: %w", err)
	}
	if err := json.Unmarshal([]byte(r.problemSpec), &rec.ProblemSpec); err != nil {
		return models.RunRecord{}, fmt.Errorf("decode problem spec: %w", err)
	}
	if err := json.Unmarshal([]byte(r.audit), &rec.Audit); err != nil {
		return models.RunRecord{}, fmt.Errorf("decode audit: %w", err)
	}
	if r.ir.Valid {
		rec.IR = &models.OptimizationModelIR{}
		if err := json.Unmarshal([]byte(r.ir.String), rec.IR); err != nil {
			return models.RunRecord{}, fmt.Errorf("decode ir: %w", err)
		}
	}
	if r.solution.Valid {
		rec.Solution = &models.SolveResult{}
		if err := json.Unmarshal([]byte(r.solution.String), rec.Solution); err != nil {
			return models.RunRecord{}, fmt.Errorf("decode solution: %w", err)
		}
	}
	rec.Error = r.errMsg.String
	rec.ProviderName = r.providerName.String
	rec.ProviderModel = r.providerModel.String
	return rec, nil
}

func (s *SQLStore) CreateRun(ctx context.Context, rec models.RunRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	row, err := encodeRow(rec)
	if err != nil {
		return "", err
	}
	query := s.rebind(`INSERT INTO runs (` + runColumns + `) VALUES (?,?,?,?,?,?,?,?,?,?,?)`)
	if _, err := s.db.ExecContext(ctx, query,
		rec.ID, row.status, row.createdAt, row.updatedAt, row.problemSpec,
		row.ir, row.solution, row.audit, row.errMsg, row.providerName, row.providerModel,
	); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return rec.ID, nil
}

func (s *SQLStore) GetRun(ctx context.Context, id string) (models.RunRecord, error) {
	query := s.rebind(`SELECT ` + runColumns + ` FROM runs WHERE id = ?`)
	rec, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.RunRecord{}, ErrNotFound
		}
		return models.RunRecord{}, fmt.Errorf("get run: %w", err)
	}
	return rec, nil
}

func (s *SQLStore) PutRun(ctx context.Context, rec models.RunRecord) error {
	row, err := encodeRow(rec)
	if err != nil {
		return err
	}
	query := s.rebind(`
		UPDATE runs SET status = ?, updated_at = ?, problem_spec_json = ?, ir_json = ?, solution_json = ?,
			audit_json = ?, error = ?, provider_name = ?, provider_model = ?
		WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query,
		row.status, row.updatedAt, row.problemSpec, row.ir, row.solution,
		row.audit, row.errMsg, row.providerName, row.providerModel, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
