package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"goalforge/internal/logging"
	"goalforge/internal/plan"
)

// SQLiteStore is the durable Repository backend. A single connection with WAL
// journaling serializes writers; multi-row writes run inside transactions so
// a mid-write failure leaves no partial solution behind.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS goals (
	id        TEXT PRIMARY KEY,
	title     TEXT NOT NULL,
	compliant INTEGER NOT NULL,
	reason    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS ssol (
	id      TEXT PRIMARY KEY,
	goal_id TEXT NOT NULL REFERENCES goals(id)
);

CREATE TABLE IF NOT EXISTS cos (
	id                TEXT PRIMARY KEY,
	ssol_id           TEXT NOT NULL REFERENCES ssol(id),
	phase             TEXT NOT NULL,
	content           TEXT NOT NULL,
	status            TEXT NOT NULL,
	accountable_party TEXT NOT NULL DEFAULT '',
	completion_date   TEXT,
	position          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cos_ssol ON cos(ssol_id);

CREATE TABLE IF NOT EXISTS ces (
	id           TEXT PRIMARY KEY,
	content      TEXT NOT NULL,
	normalized   TEXT NOT NULL UNIQUE,
	ce_type      TEXT NOT NULL,
	is_satisfied INTEGER NOT NULL DEFAULT 0,
	cos_id       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ce_links (
	cos_id TEXT NOT NULL REFERENCES cos(id),
	ce_id  TEXT NOT NULL REFERENCES ces(id),
	PRIMARY KEY (cos_id, ce_id)
);
CREATE INDEX IF NOT EXISTS idx_ce_links_ce ON ce_links(ce_id);
`

// NewSQLiteStore opens (creating if needed) the database at path and applies
// the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "data/goalforge.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY churn under concurrent use.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logging.Store("sqlite store opened at %s", path)
	return &SQLiteStore{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateGoal inserts a goal row.
func (s *SQLiteStore) CreateGoal(g plan.Goal) error {
	_, err := s.db.Exec(
		`INSERT INTO goals (id, title, compliant, reason) VALUES (?, ?, ?, ?)`,
		g.ID, g.Title, boolToInt(g.Compliant), g.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to insert goal: %w", err)
	}
	return nil
}

// GetGoal fetches a goal by id.
func (s *SQLiteStore) GetGoal(id string) (plan.Goal, error) {
	var g plan.Goal
	var compliant int
	err := s.db.QueryRow(
		`SELECT id, title, compliant, reason FROM goals WHERE id = ?`, id,
	).Scan(&g.ID, &g.Title, &compliant, &g.Reason)
	if errors.Is(err, sql.ErrNoRows) {
		return plan.Goal{}, ErrNotFound
	}
	if err != nil {
		return plan.Goal{}, fmt.Errorf("failed to query goal: %w", err)
	}
	g.Compliant = compliant != 0
	return g, nil
}

// ListGoals returns all goals in insertion order.
func (s *SQLiteStore) ListGoals() ([]plan.Goal, error) {
	rows, err := s.db.Query(`SELECT id, title, compliant, reason FROM goals ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	defer rows.Close()

	var goals []plan.Goal
	for rows.Next() {
		var g plan.Goal
		var compliant int
		if err := rows.Scan(&g.ID, &g.Title, &compliant, &g.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		g.Compliant = compliant != 0
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

// CreateSolution writes the solution shell, its goal if absent, and every COS
// in a single transaction.
func (s *SQLiteStore) CreateSolution(sol *plan.StructuredSolution) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT OR IGNORE INTO goals (id, title, compliant, reason) VALUES (?, ?, ?, ?)`,
		sol.Goal.ID, sol.Goal.Title, boolToInt(sol.Goal.Compliant), sol.Goal.Reason,
	); err != nil {
		return fmt.Errorf("failed to insert goal: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO ssol (id, goal_id) VALUES (?, ?)`, sol.ID, sol.Goal.ID,
	); err != nil {
		return fmt.Errorf("failed to insert solution: %w", err)
	}

	for _, c := range sol.AllCOS() {
		if err := insertCOS(tx, c); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit solution: %w", err)
	}
	logging.StoreDebug("solution %s persisted with %d COS", sol.ID, len(sol.AllCOS()))
	return nil
}

// GetSolution reassembles a solution with all five phase keys present and COS
// in stored order.
func (s *SQLiteStore) GetSolution(id string) (*plan.StructuredSolution, error) {
	var goalID string
	err := s.db.QueryRow(`SELECT goal_id FROM ssol WHERE id = ?`, id).Scan(&goalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query solution: %w", err)
	}

	goal, err := s.GetGoal(goalID)
	if err != nil {
		return nil, err
	}

	sol := plan.NewStructuredSolution(goal)
	sol.ID = id

	rows, err := s.db.Query(
		`SELECT id, ssol_id, phase, content, status, accountable_party, completion_date
		 FROM cos WHERE ssol_id = ? ORDER BY position`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query COS: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCOS(rows)
		if err != nil {
			return nil, err
		}
		sol.AddCOS(c)
	}
	return sol, rows.Err()
}

// CreateCOS appends a COS to its solution's phase, after existing entries.
func (s *SQLiteStore) CreateCOS(c plan.COS) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertCOS(tx, c); err != nil {
		return err
	}
	return tx.Commit()
}

// GetCOS fetches a COS by id.
func (s *SQLiteStore) GetCOS(id string) (plan.COS, error) {
	row := s.db.QueryRow(
		`SELECT id, ssol_id, phase, content, status, accountable_party, completion_date
		 FROM cos WHERE id = ?`, id,
	)
	c, err := scanCOS(row)
	if errors.Is(err, sql.ErrNoRows) {
		return plan.COS{}, ErrNotFound
	}
	return c, err
}

// UpdateCOS rewrites a COS's mutable fields.
func (s *SQLiteStore) UpdateCOS(c plan.COS) error {
	res, err := s.db.Exec(
		`UPDATE cos SET content = ?, status = ?, accountable_party = ?, completion_date = ?
		 WHERE id = ?`,
		c.Content, string(c.Status), c.AccountableParty, timePtrToString(c.CompletionDate), c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update COS: %w", err)
	}
	return requireRow(res)
}

// DeleteCOS removes the COS, its CE links, and any CE that no other COS still
// references.
func (s *SQLiteStore) DeleteCOS(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM cos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete COS: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM ce_links WHERE cos_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete CE links: %w", err)
	}
	// Drop CEs left without any link
	if _, err := tx.Exec(
		`DELETE FROM ces WHERE id NOT IN (SELECT ce_id FROM ce_links)`,
	); err != nil {
		return fmt.Errorf("failed to delete orphaned CEs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit COS delete: %w", err)
	}
	logging.StoreDebug("COS %s deleted with cascade", id)
	return nil
}

// GetCE fetches a CE by id.
func (s *SQLiteStore) GetCE(id string) (plan.CE, error) {
	var c plan.CE
	var satisfied int
	err := s.db.QueryRow(
		`SELECT id, content, ce_type, is_satisfied, cos_id FROM ces WHERE id = ?`, id,
	).Scan(&c.ID, &c.Content, &c.CEType, &satisfied, &c.COSID)
	if errors.Is(err, sql.ErrNoRows) {
		return plan.CE{}, ErrNotFound
	}
	if err != nil {
		return plan.CE{}, fmt.Errorf("failed to query CE: %w", err)
	}
	c.IsSatisfied = satisfied != 0
	return c, nil
}

// UpdateCE rewrites a CE's mutable fields. Content changes re-key the dedup
// index.
func (s *SQLiteStore) UpdateCE(c plan.CE) error {
	res, err := s.db.Exec(
		`UPDATE ces SET content = ?, normalized = ?, ce_type = ?, is_satisfied = ? WHERE id = ?`,
		c.Content, plan.NormalizeCEContent(c.Content), c.CEType, boolToInt(c.IsSatisfied), c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update CE: %w", err)
	}
	return requireRow(res)
}

// DeleteCE removes a CE and all of its links.
func (s *SQLiteStore) DeleteCE(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM ces WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete CE: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM ce_links WHERE ce_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete CE links: %w", err)
	}
	return tx.Commit()
}

// dbtx is the slice of *sql.DB and *sql.Tx the CE write helpers need, so the
// same code serves both the single-statement and the transactional paths.
type dbtx interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

func findOrCreateCE(q dbtx, content, ceType string) (plan.CE, error) {
	normalized := plan.NormalizeCEContent(content)

	var c plan.CE
	var satisfied int
	err := q.QueryRow(
		`SELECT id, content, ce_type, is_satisfied, cos_id FROM ces WHERE normalized = ?`,
		normalized,
	).Scan(&c.ID, &c.Content, &c.CEType, &satisfied, &c.COSID)
	if err == nil {
		c.IsSatisfied = satisfied != 0
		logging.StoreDebug("CE dedup hit for %q -> %s", normalized, c.ID)
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return plan.CE{}, fmt.Errorf("failed to query CE by content: %w", err)
	}

	if ceType == "" {
		ceType = plan.CETypeUnknown
	}
	c = plan.CE{
		ID:      uuid.NewString(),
		Content: content,
		CEType:  ceType,
	}
	if _, err := q.Exec(
		`INSERT INTO ces (id, content, normalized, ce_type, is_satisfied, cos_id)
		 VALUES (?, ?, ?, ?, 0, '')`,
		c.ID, c.Content, normalized, c.CEType,
	); err != nil {
		return plan.CE{}, fmt.Errorf("failed to insert CE: %w", err)
	}
	return c, nil
}

func linkCE(q dbtx, cosID, ceID string) error {
	if _, err := q.Exec(
		`INSERT OR IGNORE INTO ce_links (cos_id, ce_id) VALUES (?, ?)`, cosID, ceID,
	); err != nil {
		return fmt.Errorf("failed to link CE: %w", err)
	}
	if _, err := q.Exec(
		`UPDATE ces SET cos_id = ? WHERE id = ? AND cos_id = ''`, cosID, ceID,
	); err != nil {
		return fmt.Errorf("failed to record owning COS: %w", err)
	}
	return nil
}

// FindOrCreateCE returns the existing CE whose normalized content matches, or
// inserts a new unclassified record.
func (s *SQLiteStore) FindOrCreateCE(content, ceType string) (plan.CE, error) {
	return findOrCreateCE(s.db, content, ceType)
}

// LinkCE attaches a CE to a COS. Re-linking is a no-op. The first link also
// records the owning COS on the CE itself.
func (s *SQLiteStore) LinkCE(cosID, ceID string) error {
	return linkCE(s.db, cosID, ceID)
}

// AttachCEs find-or-creates and links a batch of CEs to one COS in a single
// transaction, so a mid-batch failure leaves no partially attached state.
func (s *SQLiteStore) AttachCEs(cosID string, ces []plan.CE) ([]plan.CE, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	out := make([]plan.CE, 0, len(ces))
	for _, ce := range ces {
		stored, err := findOrCreateCE(tx, ce.Content, ce.CEType)
		if err != nil {
			return nil, err
		}
		if err := linkCE(tx, cosID, stored.ID); err != nil {
			return nil, err
		}
		if stored.COSID == "" {
			stored.COSID = cosID
		}
		out = append(out, stored)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit CE batch: %w", err)
	}
	return out, nil
}

// CEsForCOS lists the CEs linked to a COS in link order.
func (s *SQLiteStore) CEsForCOS(cosID string) ([]plan.CE, error) {
	rows, err := s.db.Query(
		`SELECT c.id, c.content, c.ce_type, c.is_satisfied, c.cos_id
		 FROM ces c JOIN ce_links l ON l.ce_id = c.id
		 WHERE l.cos_id = ? ORDER BY l.rowid`, cosID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query CEs: %w", err)
	}
	defer rows.Close()

	var ces []plan.CE
	for rows.Next() {
		var c plan.CE
		var satisfied int
		if err := rows.Scan(&c.ID, &c.Content, &c.CEType, &satisfied, &c.COSID); err != nil {
			return nil, fmt.Errorf("failed to scan CE: %w", err)
		}
		c.IsSatisfied = satisfied != 0
		ces = append(ces, c)
	}
	return ces, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCOS(row scanner) (plan.COS, error) {
	var c plan.COS
	var phase, status string
	var completion sql.NullString
	if err := row.Scan(&c.ID, &c.SSOLID, &phase, &c.Content, &status, &c.AccountableParty, &completion); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return plan.COS{}, err
		}
		return plan.COS{}, fmt.Errorf("failed to scan COS: %w", err)
	}
	c.Phase = plan.Phase(phase)
	c.Status = plan.COSStatus(status)
	if completion.Valid {
		if t, err := time.Parse(time.RFC3339, completion.String); err == nil {
			c.CompletionDate = &t
		}
	}
	return c, nil
}

func insertCOS(tx *sql.Tx, c plan.COS) error {
	var position int
	err := tx.QueryRow(
		`SELECT COALESCE(MAX(position), -1) + 1 FROM cos WHERE ssol_id = ? AND phase = ?`,
		c.SSOLID, string(c.Phase),
	).Scan(&position)
	if err != nil {
		return fmt.Errorf("failed to compute COS position: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO cos (id, ssol_id, phase, content, status, accountable_party, completion_date, position)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.SSOLID, string(c.Phase), c.Content, string(c.Status),
		c.AccountableParty, timePtrToString(c.CompletionDate), position,
	)
	if err != nil {
		return fmt.Errorf("failed to insert COS: %w", err)
	}
	return nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timePtrToString(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}
