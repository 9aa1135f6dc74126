package audit

import (
	"context"
	"database/sql"
)

// SQLRepo appends entries to the moderation_audit table.
//
// NOTE: the table is INSERT-only; no UPDATE/DELETE statements exist here.
type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo { return &SQLRepo{db: db} }

const createTableSQL = `
CREATE TABLE IF NOT EXISTS moderation_audit (
  id                 TEXT PRIMARY KEY,
  action_type        TEXT NOT NULL,
  description        TEXT NOT NULL,
  detail             TEXT NOT NULL DEFAULT '',
  target_user_id     BIGINT,
  target_incident_id BIGINT,
  target_appeal_id   BIGINT,
  actor_id           BIGINT NOT NULL,
  created_at         TIMESTAMP NOT NULL
)
`

// Migrate creates the audit table if it does not exist.
func (r *SQLRepo) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, createTableSQL)
	return err
}

func (r *SQLRepo) Append(ctx context.Context, e Entry) error {
	const q = `
INSERT INTO moderation_audit (
  id, action_type, description, detail, target_user_id, target_incident_id, target_appeal_id, actor_id, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.ActionType,
		e.Description,
		e.Detail,
		nullInt(e.TargetUserID),
		nullInt(e.TargetIncidentID),
		nullInt(e.TargetAppealID),
		e.ActorID,
		e.Timestamp,
	)
	return err
}

// ListByAppeal returns entries targeting an appeal, oldest first.
func (r *SQLRepo) ListByAppeal(ctx context.Context, appealID int64) ([]Entry, error) {
	const q = `
SELECT id, action_type, description, detail, target_user_id, target_incident_id, target_appeal_id, actor_id, created_at
FROM moderation_audit
WHERE target_appeal_id = $1
ORDER BY created_at, id
`
	rows, err := r.db.QueryContext(ctx, q, appealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                          Entry
			userID, incidentID, appeal sql.NullInt64
		)
		if err := rows.Scan(
			&e.ID,
			&e.ActionType,
			&e.Description,
			&e.Detail,
			&userID,
			&incidentID,
			&appeal,
			&e.ActorID,
			&e.Timestamp,
		); err != nil {
			return nil, err
		}
		e.TargetUserID = intPtr(userID)
		e.TargetIncidentID = intPtr(incidentID)
		e.TargetAppealID = intPtr(appeal)
		out = append(out, e)
	}
	return out, rows.Err()
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
