package moderation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"incident-moderation/pkg/utils"
)

// Dialect selects the SQL flavour for DDL and row locking.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// SQLStore implements Store on database/sql.
//
// NOTE: This repository assumes the following tables exist (see Migrate):
// - incident_reports (never deleted)
// - appeals (id from a monotonically increasing sequence)
// - accounts
//
// Tags are stored as a JSON array in a TEXT column.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Migrate creates the moderation tables if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	appealID := "BIGSERIAL PRIMARY KEY"
	if s.dialect == DialectSQLite {
		appealID = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS incident_reports (
  id                BIGINT PRIMARY KEY,
  submitter_user_id BIGINT NOT NULL,
  status            TEXT NOT NULL,
  tags              TEXT NOT NULL DEFAULT '[]',
  rejection_reason  TEXT,
  created_at        TIMESTAMP NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS incident_reports_submitter_status ON incident_reports (submitter_user_id, status)`,
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS appeals (
  id              %s,
  subject_user_id BIGINT NOT NULL,
  incident_id     BIGINT,
  kind            TEXT NOT NULL,
  status          TEXT NOT NULL,
  message         TEXT NOT NULL,
  responded_by    BIGINT,
  response        TEXT,
  created_at      TIMESTAMP NOT NULL,
  updated_at      TIMESTAMP NOT NULL
)`, appealID),
		`CREATE INDEX IF NOT EXISTS appeals_incident ON appeals (incident_id)`,
		`CREATE INDEX IF NOT EXISTS appeals_subject ON appeals (subject_user_id)`,
		`
CREATE TABLE IF NOT EXISTS accounts (
  id         BIGINT PRIMARY KEY,
  status     TEXT NOT NULL,
  ban_reason TEXT
)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &sqlQueries{q: tx, dialect: s.dialect, inTx: true})
	})
}

func (s *SQLStore) queries() *sqlQueries { return &sqlQueries{q: s.db, dialect: s.dialect} }

func (s *SQLStore) GetIncident(ctx context.Context, id int64) (IncidentReport, error) {
	return s.queries().GetIncident(ctx, id)
}

func (s *SQLStore) GetAppeal(ctx context.Context, id int64) (Appeal, error) {
	return s.queries().GetAppeal(ctx, id)
}

func (s *SQLStore) GetAccount(ctx context.Context, id int64) (Account, error) {
	return s.queries().GetAccount(ctx, id)
}

func (s *SQLStore) ListIncidentsBySubmitter(ctx context.Context, userID int64, status IncidentStatus) ([]IncidentReport, error) {
	return s.queries().ListIncidentsBySubmitter(ctx, userID, status)
}

func (s *SQLStore) ListIncidentsByStatus(ctx context.Context, status IncidentStatus) ([]IncidentReport, error) {
	return s.queries().ListIncidentsByStatus(ctx, status)
}

func (s *SQLStore) ListAppealsByIncidentIDs(ctx context.Context, ids []int64) ([]Appeal, error) {
	return s.queries().ListAppealsByIncidentIDs(ctx, ids)
}

func (s *SQLStore) ListAppealsBySubject(ctx context.Context, userID int64) ([]Appeal, error) {
	return s.queries().ListAppealsBySubject(ctx, userID)
}

func (s *SQLStore) ListAppealsByStatus(ctx context.Context, status AppealStatus) ([]Appeal, error) {
	return s.queries().ListAppealsByStatus(ctx, status)
}

// InsertIncident stores a new report. Reports are created by the submission
// pipeline, not by the engine; this exists for seeding and ingestion.
func (s *SQLStore) InsertIncident(ctx context.Context, r IncidentReport) error {
	tags, err := encodeTags(r.Tags)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO incident_reports (id, submitter_user_id, status, tags, rejection_reason, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`
	_, err = s.db.ExecContext(ctx, q, r.ID, r.SubmitterUserID, r.Status, tags, nullString(r.RejectionReason), r.CreatedAt)
	return err
}

// UpsertAccount stores the moderation view of an account.
func (s *SQLStore) UpsertAccount(ctx context.Context, a Account) error {
	const q = `
INSERT INTO accounts (id, status, ban_reason)
VALUES ($1,$2,$3)
ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, ban_reason = EXCLUDED.ban_reason
`
	_, err := s.db.ExecContext(ctx, q, a.ID, a.Status, nullString(a.BanReason))
	return err
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqlQueries runs against either the pool or an open transaction.
type sqlQueries struct {
	q       querier
	dialect Dialect
	inTx    bool
}

// lockClause locks the selected row for the rest of the transaction where supported.
// SQLite serializes writers on its own.
func (s *sqlQueries) lockClause() string {
	if s.inTx && s.dialect == DialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}

const incidentColumns = `id, submitter_user_id, status, tags, rejection_reason, created_at`

func (s *sqlQueries) GetIncident(ctx context.Context, id int64) (IncidentReport, error) {
	q := `SELECT ` + incidentColumns + ` FROM incident_reports WHERE id = $1` + s.lockClause()
	r, err := scanIncident(s.q.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return IncidentReport{}, notFoundf("incident %d", id)
		}
		return IncidentReport{}, err
	}
	return r, nil
}

func (s *sqlQueries) ListIncidentsBySubmitter(ctx context.Context, userID int64, status IncidentStatus) ([]IncidentReport, error) {
	q := `SELECT ` + incidentColumns + ` FROM incident_reports WHERE submitter_user_id = $1 AND status = $2`
	return s.listIncidents(ctx, q, userID, status)
}

func (s *sqlQueries) ListIncidentsByStatus(ctx context.Context, status IncidentStatus) ([]IncidentReport, error) {
	q := `SELECT ` + incidentColumns + ` FROM incident_reports WHERE status = $1`
	return s.listIncidents(ctx, q, status)
}

func (s *sqlQueries) listIncidents(ctx context.Context, q string, args ...any) ([]IncidentReport, error) {
	rows, err := s.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]IncidentReport, 0)
	for rows.Next() {
		r, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqlQueries) UpdateIncident(ctx context.Context, id int64, status IncidentStatus, tags []string, reason *string) (IncidentReport, error) {
	enc, err := encodeTags(tags)
	if err != nil {
		return IncidentReport{}, err
	}
	const q = `
UPDATE incident_reports
SET status = $1, tags = $2, rejection_reason = $3
WHERE id = $4
`
	if err := s.execOne(ctx, q, status, enc, nullString(reason), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return IncidentReport{}, notFoundf("incident %d", id)
		}
		return IncidentReport{}, err
	}
	return s.GetIncident(ctx, id)
}

// execOne runs a single-row write and reports sql.ErrNoRows when nothing matched.
// Rows are read back with a plain SELECT so both drivers decode timestamps the same way.
func (s *sqlQueries) execOne(ctx context.Context, q string, args ...any) error {
	res, err := s.q.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const appealColumns = `id, subject_user_id, incident_id, kind, status, message, responded_by, response, created_at, updated_at`

func (s *sqlQueries) GetAppeal(ctx context.Context, id int64) (Appeal, error) {
	q := `SELECT ` + appealColumns + ` FROM appeals WHERE id = $1` + s.lockClause()
	a, err := scanAppeal(s.q.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Appeal{}, notFoundf("appeal %d", id)
		}
		return Appeal{}, err
	}
	return a, nil
}

func (s *sqlQueries) ListAppealsByIncidentIDs(ctx context.Context, ids []int64) ([]Appeal, error) {
	if len(ids) == 0 {
		return []Appeal{}, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	q := `SELECT ` + appealColumns + ` FROM appeals WHERE incident_id IN (` + strings.Join(placeholders, ",") + `)`
	return s.listAppeals(ctx, q, args...)
}

func (s *sqlQueries) ListAppealsBySubject(ctx context.Context, userID int64) ([]Appeal, error) {
	q := `SELECT ` + appealColumns + ` FROM appeals WHERE subject_user_id = $1`
	return s.listAppeals(ctx, q, userID)
}

func (s *sqlQueries) ListAppealsByStatus(ctx context.Context, status AppealStatus) ([]Appeal, error) {
	q := `SELECT ` + appealColumns + ` FROM appeals WHERE status = $1`
	return s.listAppeals(ctx, q, status)
}

func (s *sqlQueries) listAppeals(ctx context.Context, q string, args ...any) ([]Appeal, error) {
	rows, err := s.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Appeal, 0)
	for rows.Next() {
		a, err := scanAppeal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqlQueries) InsertAppeal(ctx context.Context, a Appeal) (Appeal, error) {
	const q = `
INSERT INTO appeals (
  subject_user_id, incident_id, kind, status, message, responded_by, response, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
)
RETURNING id`
	var id int64
	if err := s.q.QueryRowContext(ctx, q,
		a.SubjectUserID,
		nullInt(a.IncidentID),
		a.Kind,
		a.Status,
		a.Message,
		nullInt(a.RespondedBy),
		nullString(a.Response),
		a.CreatedAt,
		a.UpdatedAt,
	).Scan(&id); err != nil {
		return Appeal{}, err
	}
	return s.GetAppeal(ctx, id)
}

func (s *sqlQueries) UpdateAppeal(ctx context.Context, id int64, expect, status AppealStatus, respondedBy int64, response string, now time.Time) (Appeal, error) {
	// The status predicate re-checks the committed state; zero rows means someone else resolved it.
	const q = `
UPDATE appeals
SET status = $1, responded_by = $2, response = $3, updated_at = $4
WHERE id = $5 AND status = $6
`
	err := s.execOne(ctx, q, status, respondedBy, response, now, id, expect)
	if err == nil {
		return s.GetAppeal(ctx, id)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Appeal{}, err
	}
	if _, gerr := s.GetAppeal(ctx, id); gerr != nil {
		return Appeal{}, gerr
	}
	return Appeal{}, conflictf("appeal %d is no longer %s", id, expect)
}

func (s *sqlQueries) GetAccount(ctx context.Context, id int64) (Account, error) {
	q := `SELECT id, status, ban_reason FROM accounts WHERE id = $1` + s.lockClause()
	a, err := scanAccount(s.q.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, notFoundf("account %d", id)
		}
		return Account{}, err
	}
	return a, nil
}

func (s *sqlQueries) UpdateAccount(ctx context.Context, id int64, status AccountStatus, banReason *string) (Account, error) {
	const q = `UPDATE accounts SET status = $1, ban_reason = $2 WHERE id = $3`
	if err := s.execOne(ctx, q, status, nullString(banReason), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, notFoundf("account %d", id)
		}
		return Account{}, err
	}
	return s.GetAccount(ctx, id)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIncident(row scanner) (IncidentReport, error) {
	var (
		r      IncidentReport
		tags   string
		reason sql.NullString
	)
	if err := row.Scan(
		&r.ID,
		&r.SubmitterUserID,
		&r.Status,
		&tags,
		&reason,
		&r.CreatedAt,
	); err != nil {
		return IncidentReport{}, err
	}
	decoded, err := decodeTags(tags)
	if err != nil {
		return IncidentReport{}, fmt.Errorf("incident %d: %w", r.ID, err)
	}
	r.Tags = decoded
	r.RejectionReason = stringPtr(reason)
	return r, nil
}

func scanAppeal(row scanner) (Appeal, error) {
	var (
		a                       Appeal
		incidentID, respondedBy sql.NullInt64
		response                sql.NullString
	)
	if err := row.Scan(
		&a.ID,
		&a.SubjectUserID,
		&incidentID,
		&a.Kind,
		&a.Status,
		&a.Message,
		&respondedBy,
		&response,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return Appeal{}, err
	}
	a.IncidentID = intPtr(incidentID)
	a.RespondedBy = intPtr(respondedBy)
	a.Response = stringPtr(response)
	return a, nil
}

func scanAccount(row scanner) (Account, error) {
	var (
		a      Account
		reason sql.NullString
	)
	if err := row.Scan(&a.ID, &a.Status, &reason); err != nil {
		return Account{}, err
	}
	a.BanReason = stringPtr(reason)
	return a, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(b), nil
}

func decodeTags(s string) ([]string, error) {
	out := []string{}
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return out, nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
