package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/fleetwatch/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
// operator_sessionテーブルのslot=1の1行をスロットとして使用する。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Get は永続化されたセッションを取得する。存在しない場合はnilを返す。
func (r *PostgresSessionRepo) Get(ctx context.Context) (*model.Session, error) {
	session := &model.Session{}
	var role string
	err := r.db.QueryRowContext(ctx,
		`SELECT token, role, subject_id, owned_vehicle_id
		 FROM operator_session
		 WHERE slot = 1`,
	).Scan(&session.Token, &role, &session.SubjectID, &session.OwnedVehicleID)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session slot: %w", err)
	}

	session.Role = model.Role(role)
	return session, nil
}

// Set はセッションをスロットに保存する。既存の値は上書きされる。
func (r *PostgresSessionRepo) Set(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO operator_session (slot, token, role, subject_id, owned_vehicle_id, updated_at)
		 VALUES (1, $1, $2, $3, $4, now())
		 ON CONFLICT (slot) DO UPDATE SET
		   token = EXCLUDED.token,
		   role = EXCLUDED.role,
		   subject_id = EXCLUDED.subject_id,
		   owned_vehicle_id = EXCLUDED.owned_vehicle_id,
		   updated_at = now()`,
		session.Token, string(session.Role), session.SubjectID, session.OwnedVehicleID,
	)
	if err != nil {
		return fmt.Errorf("failed to write session slot: %w", err)
	}
	return nil
}

// Clear はスロットを空にする。すでに空の場合も成功する（冪等）。
func (r *PostgresSessionRepo) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM operator_session WHERE slot = 1`,
	)
	if err != nil {
		return fmt.Errorf("failed to clear session slot: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
