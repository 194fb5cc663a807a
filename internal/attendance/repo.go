package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the Postgres SQLSTATE for unique index conflicts.
const uniqueViolation = "23505"

// PostgresStore persists attendance sessions in Postgres. The
// one-open-session rule is enforced by the attendance_sessions_one_open
// partial unique index.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const sessionColumns = `id, user_id, clock_in, clock_out, photo`

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var (
		s        Session
		clockOut sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.ClockIn, &clockOut, &s.Photo); err != nil {
		return Session{}, err
	}
	if clockOut.Valid {
		t := clockOut.Time
		s.ClockOut = &t
	}
	return s, nil
}

// listColumns replaces the photo with a presence flag.
const listColumns = `id, user_id, clock_in, clock_out, COALESCE(octet_length(photo), 0) > 0`

func scanListedSession(row interface{ Scan(...any) error }) (Session, error) {
	var (
		s        Session
		clockOut sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.ClockIn, &clockOut, &s.photoAttached); err != nil {
		return Session{}, err
	}
	if clockOut.Valid {
		t := clockOut.Time
		s.ClockOut = &t
	}
	return s, nil
}

// CreateOpen inserts a new open session.
func (r *PostgresStore) CreateOpen(ctx context.Context, s Session) (Session, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.ClockOut = nil
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_sessions (id, user_id, clock_in, photo)
		VALUES ($1, $2, $3, $4)
	`, s.ID, s.UserID, s.ClockIn, s.Photo)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Session{}, ErrAlreadyOpen
		}
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	return s, nil
}

// FindOpen returns the user's open session or nil.
func (r *PostgresStore) FindOpen(ctx context.Context, userID string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM attendance_sessions
		WHERE user_id = $1 AND clock_out IS NULL
		LIMIT 1
	`, userID)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find open session: %w", err)
	}
	return &s, nil
}

// Close sets clock_out on an open session.
func (r *PostgresStore) Close(ctx context.Context, sessionID string, at time.Time) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE attendance_sessions
		SET clock_out = $2
		WHERE id = $1 AND clock_out IS NULL
		RETURNING `+sessionColumns,
		sessionID, at)
	s, err := scanSession(row)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("close session: %w", err)
	}
	if _, err := r.Get(ctx, sessionID); err != nil {
		return Session{}, err
	}
	return Session{}, ErrSessionClosed
}

// Get returns a single session by id.
func (r *PostgresStore) Get(ctx context.Context, sessionID string) (Session, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return Session{}, ErrSessionNotFound
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM attendance_sessions WHERE id = $1`, sessionID)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// ListInWindow returns the user's sessions with clock_in in [start, end],
// without photo bytes.
func (r *PostgresStore) ListInWindow(ctx context.Context, userID string, start, end time.Time, closedOnly bool) ([]Session, error) {
	query := `SELECT ` + listColumns + ` FROM attendance_sessions
		WHERE user_id = $1 AND clock_in >= $2 AND clock_in <= $3`
	if closedOnly {
		query += ` AND clock_out IS NOT NULL`
	}
	query += ` ORDER BY clock_in`

	rows, err := r.db.QueryContext(ctx, query, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var res []Session
	for rows.Next() {
		s, err := scanListedSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// ActivePointer reads users.current_session_id.
func (r *PostgresStore) ActivePointer(ctx context.Context, userID string) (string, error) {
	var id sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT current_session_id FROM users WHERE id = $1`, userID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("read active pointer: %w", err)
	}
	return id.String, nil
}

// SetActivePointer writes users.current_session_id.
func (r *PostgresStore) SetActivePointer(ctx context.Context, userID, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET current_session_id = $2 WHERE id = $1`, userID, sessionID)
	if err != nil {
		return fmt.Errorf("set active pointer: %w", err)
	}
	return nil
}

// ClearActivePointer nulls users.current_session_id.
func (r *PostgresStore) ClearActivePointer(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET current_session_id = NULL WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("clear active pointer: %w", err)
	}
	return nil
}
