package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/tubetree/internal/model"

	_ "modernc.org/sqlite"
)

const createNodesTable = `
CREATE TABLE IF NOT EXISTS nodes (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    tubes      BLOB NOT NULL,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
)`

const createRecordsTable = `
CREATE TABLE IF NOT EXISTS execution_records (
    id          TEXT PRIMARY KEY,
    module      TEXT NOT NULL,
    status      TEXT NOT NULL,
    params      TEXT NOT NULL,
    exit_code   INTEGER,
    output      BLOB,
    error       TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER,
    created_at  DATETIME NOT NULL,
    started_at  DATETIME,
    finished_at DATETIME
)`

const createLogLinesTable = `
CREATE TABLE IF NOT EXISTS record_log_lines (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    record_id  TEXT NOT NULL,
    seq        INTEGER NOT NULL,
    line       TEXT NOT NULL,
    created_at DATETIME NOT NULL
)`

const createLogLinesIndex = `
CREATE INDEX IF NOT EXISTS idx_record_log_lines_record ON record_log_lines (record_id, seq)`

const recordColumns = `id, module, status, params, exit_code, output, error,
	duration_ms, created_at, started_at, finished_at`

// ErrNotFound is returned when a node or record is not found.
var ErrNotFound = errors.New("not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createNodesTable, createRecordsTable, createLogLinesTable, createLogLinesIndex} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateNode inserts a new spatial object node.
func (s *SQLiteStore) CreateNode(ctx context.Context, n *model.SpatialObjectNode) error {
	tubes, err := marshalTubes(n.Tubes)
	if err != nil {
		return err
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = n.CreatedAt
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO nodes (id, name, tubes, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		n.ID, n.Name, tubes, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert node: %w", err)
	}
	return nil
}

// GetNode retrieves a node by ID.
func (s *SQLiteStore) GetNode(ctx context.Context, id string) (*model.SpatialObjectNode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, tubes, created_at, updated_at FROM nodes WHERE id = ?`, id)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get node: %w", err)
	}
	return n, nil
}

// ListNodes returns a page of nodes ordered by created_at DESC, along with the
// total node count.
func (s *SQLiteStore) ListNodes(ctx context.Context, limit, offset int) ([]*model.SpatialObjectNode, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM nodes").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count nodes: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, name, tubes, created_at, updated_at
		FROM nodes ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*model.SpatialObjectNode
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate nodes: %w", err)
	}
	return nodes, total, nil
}

// UpdateNode replaces the name and tubes of an existing node and bumps updated_at.
func (s *SQLiteStore) UpdateNode(ctx context.Context, n *model.SpatialObjectNode) error {
	tubes, err := marshalTubes(n.Tubes)
	if err != nil {
		return err
	}
	n.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE nodes SET name = ?, tubes = ?, updated_at = ? WHERE id = ?`,
		n.Name, tubes, n.UpdatedAt, n.ID,
	)
	if err != nil {
		return fmt.Errorf("update node: %w", err)
	}
	return checkAffected(result)
}

// DeleteNode removes a node.
func (s *SQLiteStore) DeleteNode(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete node: %w", err)
	}
	return checkAffected(result)
}

// CreateRecord inserts a new execution record.
func (s *SQLiteStore) CreateRecord(ctx context.Context, r *model.ExecutionRecord) error {
	params, err := marshalParams(r.Params)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO execution_records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Module, r.Status, params, r.ExitCode, r.Output, r.Error,
		r.DurationMS, r.CreatedAt, r.StartedAt, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// GetRecord retrieves an execution record by ID.
func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*model.ExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM execution_records WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return r, nil
}

// ListRecords returns a page of execution records ordered by created_at DESC,
// along with the total record count.
func (s *SQLiteStore) ListRecords(ctx context.Context, limit, offset int) ([]*model.ExecutionRecord, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM execution_records").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM execution_records
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []*model.ExecutionRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate records: %w", err)
	}
	return records, total, nil
}

// UpdateRecordParams replaces the parameter set of a record.
func (s *SQLiteStore) UpdateRecordParams(ctx context.Context, id string, params []model.Param) error {
	encoded, err := marshalParams(params)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE execution_records SET params = ? WHERE id = ?`, encoded, id)
	if err != nil {
		return fmt.Errorf("update record params: %w", err)
	}
	return checkAffected(result)
}

// UpdateRecordStatus moves a record to a new status. Moving to running sets
// started_at; terminal statuses set finished_at. Transitions not allowed by
// model.ValidTransition return ErrInvalidTransition.
func (s *SQLiteStore) UpdateRecordStatus(ctx context.Context, id, status string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := checkTransition(ctx, tx, id, status); err != nil {
		return err
	}

	now := time.Now().UTC()
	switch {
	case status == model.StatusRunning:
		_, err = tx.ExecContext(ctx,
			"UPDATE execution_records SET status = ?, started_at = ? WHERE id = ?", status, now, id)
	case model.IsTerminal(status):
		_, err = tx.ExecContext(ctx,
			"UPDATE execution_records SET status = ?, finished_at = ? WHERE id = ?", status, now, id)
	default:
		_, err = tx.ExecContext(ctx,
			"UPDATE execution_records SET status = ? WHERE id = ?", status, id)
	}
	if err != nil {
		return fmt.Errorf("update record status: %w", err)
	}
	return tx.Commit()
}

// UpdateRecord writes the result fields of a record. The status change is
// validated the same way as UpdateRecordStatus.
func (s *SQLiteStore) UpdateRecord(ctx context.Context, r *model.ExecutionRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := checkTransition(ctx, tx, r.ID, r.Status); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE execution_records SET status = ?, exit_code = ?, output = ?, error = ?,
			duration_ms = ?, started_at = COALESCE(?, started_at), finished_at = ?
		WHERE id = ?`,
		r.Status, r.ExitCode, r.Output, r.Error, r.DurationMS, r.StartedAt, r.FinishedAt, r.ID,
	)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	return tx.Commit()
}

// DeleteRecord removes an execution record together with its log lines.
func (s *SQLiteStore) DeleteRecord(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM execution_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if err := checkAffected(result); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM record_log_lines WHERE record_id = ?`, id); err != nil {
		return fmt.Errorf("delete log lines: %w", err)
	}
	return tx.Commit()
}

// InsertLogLine appends an output line for a record.
func (s *SQLiteStore) InsertLogLine(ctx context.Context, recordID string, seq int, line string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO record_log_lines (record_id, seq, line, created_at) VALUES (?, ?, ?, ?)`,
		recordID, seq, line, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert log line: %w", err)
	}
	return nil
}

// GetLogLines returns all log lines of a record ordered by sequence number.
func (s *SQLiteStore) GetLogLines(ctx context.Context, recordID string) ([]model.LogLine, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, record_id, seq, line, created_at FROM record_log_lines
		WHERE record_id = ? ORDER BY seq ASC`, recordID)
	if err != nil {
		return nil, fmt.Errorf("get log lines: %w", err)
	}
	defer rows.Close()

	var lines []model.LogLine
	for rows.Next() {
		var l model.LogLine
		if err := rows.Scan(&l.ID, &l.RecordID, &l.Seq, &l.Line, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log lines: %w", err)
	}
	return lines, nil
}

// GetSceneStats returns node and record counts.
func (s *SQLiteStore) GetSceneStats(ctx context.Context) (*SceneStats, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	stats := &SceneStats{CountByStatus: make(map[string]int)}

	rows, err := tx.QueryContext(ctx, `SELECT tubes FROM nodes`)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan node tubes: %w", err)
		}
		var tubes []model.Tube
		if err := json.Unmarshal(raw, &tubes); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode tubes: %w", err)
		}
		stats.Nodes++
		stats.Tubes += len(tubes)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}

	statusRows, err := tx.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM execution_records GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count records by status: %w", err)
	}
	defer statusRows.Close()
	for statusRows.Next() {
		var status string
		var count int
		if err := statusRows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.CountByStatus[status] = count
		stats.Records += count
	}
	if err := statusRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	return stats, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*model.SpatialObjectNode, error) {
	n := &model.SpatialObjectNode{}
	var tubes []byte
	if err := row.Scan(&n.ID, &n.Name, &tubes, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tubes, &n.Tubes); err != nil {
		return nil, fmt.Errorf("decode tubes: %w", err)
	}
	return n, nil
}

func scanRecord(row rowScanner) (*model.ExecutionRecord, error) {
	r := &model.ExecutionRecord{}
	var params string
	if err := row.Scan(
		&r.ID, &r.Module, &r.Status, &params, &r.ExitCode, &r.Output, &r.Error,
		&r.DurationMS, &r.CreatedAt, &r.StartedAt, &r.FinishedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	return r, nil
}

func checkTransition(ctx context.Context, tx *sql.Tx, id, to string) error {
	var from string
	err := tx.QueryRowContext(ctx, "SELECT status FROM execution_records WHERE id = ?", id).Scan(&from)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read record status: %w", err)
	}
	if !model.ValidTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

func checkAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalTubes(tubes []model.Tube) ([]byte, error) {
	if tubes == nil {
		tubes = []model.Tube{}
	}
	b, err := json.Marshal(tubes)
	if err != nil {
		return nil, fmt.Errorf("encode tubes: %w", err)
	}
	return b, nil
}

func marshalParams(params []model.Param) (string, error) {
	if params == nil {
		params = []model.Param{}
	}
	b, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encode params: %w", err)
	}
	return string(b), nil
}
