package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eocert/console/internal/web"
	"github.com/eocert/console/types"
	"golang.org/x/crypto/blake2b"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// SessionRepository persists web console sessions. Session ids are stored
// only as blake2b-256 digests.
type SessionRepository struct {
	db  *sql.DB
	ttl time.Duration
}

func NewSessionRepository(db *sql.DB, ttl time.Duration) *SessionRepository {
	return &SessionRepository{db: db, ttl: ttl}
}

func hashID(id string) string {
	sum := blake2b.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}

func (r *SessionRepository) Create(ctx context.Context, token string, user types.User, now time.Time) (web.Session, error) {
	sess, err := web.NewSession(token, user, now, r.ttl)
	if err != nil {
		return web.Session{}, err
	}

	const query = `
		INSERT INTO console_sessions (id_hash, token, user_id, username, email, role, status, csrf_token, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		hashID(sess.ID),
		sess.Token,
		user.ID.String(),
		user.Username,
		user.Email,
		user.Role,
		user.Status,
		sess.CSRFToken,
		sess.CreatedAt,
		sess.ExpiresAt,
	); err != nil {
		return web.Session{}, fmt.Errorf("insert console session: %w", err)
	}
	return sess, nil
}

func (r *SessionRepository) Get(ctx context.Context, id string, now time.Time) (web.Session, error) {
	if id == "" {
		return web.Session{}, web.ErrNoSession
	}

	const query = `
		SELECT token, user_id, username, email, role, status, csrf_token, created_at, expires_at
		FROM console_sessions
		WHERE id_hash = $1 AND expires_at > $2`
	sess := web.Session{ID: id}
	var userID string
	err := r.db.QueryRowContext(ctx, query, hashID(id), now).Scan(
		&sess.Token,
		&userID,
		&sess.User.Username,
		&sess.User.Email,
		&sess.User.Role,
		&sess.User.Status,
		&sess.CSRFToken,
		&sess.CreatedAt,
		&sess.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return web.Session{}, fmt.Errorf("%w: %w", web.ErrNoSession, ErrNotFound)
		}
		return web.Session{}, err
	}
	sess.User.ID = types.ID(userID)
	return sess, nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM console_sessions WHERE id_hash = $1`
	_, err := r.db.ExecContext(ctx, query, hashID(id))
	return err
}

// Prune removes expired sessions and returns how many went.
func (r *SessionRepository) Prune(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM console_sessions WHERE expires_at <= $1`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PruneEvery removes expired sessions every interval until ctx is done.
func (r *SessionRepository) PruneEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := r.Prune(ctx, now)
			if err != nil {
				if ctx.Err() == nil {
					slog.Error("session_prune_failed", "error", err)
				}
				continue
			}
			if n > 0 {
				slog.Info("sessions_pruned", "count", n)
			}
		}
	}
}
