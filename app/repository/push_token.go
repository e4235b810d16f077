package repository

import (
	"context"
	"strings"
	"time"
)

type PushTokenRepository struct {
	db DBTX
}

func NewPushTokenRepository(db DBTX) *PushTokenRepository {
	return &PushTokenRepository{db: db}
}

// Upsert registers the token for the user or refreshes its last access time.
func (r *PushTokenRepository) Upsert(ctx context.Context, userID, token string, now time.Time) error {
	query := `
		INSERT INTO push_tokens (token, user_id, last_accessed_at, created_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE last_accessed_at = VALUES(last_accessed_at)
	`
	_, err := r.db.ExecContext(ctx, query, strings.TrimSpace(token), userID, now, now)
	return err
}

func (r *PushTokenRepository) ListTokensByUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT token FROM push_tokens WHERE user_id = ? ORDER BY last_accessed_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tokens := make([]string, 0)
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tokens, nil
}

func (r *PushTokenRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM push_tokens WHERE user_id = ?`, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *PushTokenRepository) DeleteByToken(ctx context.Context, token string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM push_tokens WHERE token = ?`, strings.TrimSpace(token))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
