package study

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/coursebot/internal/db"
	"github.com/ziadkadry99/coursebot/internal/retrieval"
)

// Store persists sessions and their logs.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// execer is satisfied by both the database and a transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SaveSession inserts or updates a session.
func (s *Store) SaveSession(ctx context.Context, sess *Session) error {
	return saveSession(ctx, s.db, sess)
}

// AppendLog adds an entry to the end of a session's log. If entry.ID is
// empty a UUID is generated.
func (s *Store) AppendLog(ctx context.Context, entry LogEntry) error {
	return appendLog(ctx, s.db, entry)
}

// SaveWithLog appends entry and saves sess in one transaction. Either both
// are written or neither is.
func (s *Store) SaveWithLog(ctx context.Context, sess *Session, entry LogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := appendLog(ctx, tx, entry); err != nil {
		return err
	}
	if err := saveSession(ctx, tx, sess); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func saveSession(ctx context.Context, db execer, sess *Session) error {
	methods, err := json.Marshal(sess.Methods)
	if err != nil {
		return fmt.Errorf("marshalling methods: %w", err)
	}
	chat, err := json.Marshal(sess.Chat)
	if err != nil {
		return fmt.Errorf("marshalling chat history: %w", err)
	}

	var code sql.NullString
	if sess.ParticipationCode != "" {
		code = sql.NullString{String: sess.ParticipationCode, Valid: true}
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO study_sessions (id, phase, current_task, methods, chat, participation_code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			phase = excluded.phase,
			current_task = excluded.current_task,
			methods = excluded.methods,
			chat = excluded.chat,
			participation_code = excluded.participation_code,
			updated_at = excluded.updated_at`,
		sess.ID,
		string(sess.Phase),
		sess.CurrentTask,
		string(methods),
		string(chat),
		code,
		sess.CreatedAt.UTC().Format(time.RFC3339Nano),
		sess.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// GetSession loads a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	var (
		sess                 Session
		phase, methods, chat string
		code                 sql.NullString
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, phase, current_task, methods, chat, participation_code, created_at, updated_at
		FROM study_sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &phase, &sess.CurrentTask, &methods, &chat, &code, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	sess.Phase = Phase(phase)
	if err := json.Unmarshal([]byte(methods), &sess.Methods); err != nil {
		return nil, fmt.Errorf("decoding methods: %w", err)
	}
	if err := json.Unmarshal([]byte(chat), &sess.Chat); err != nil {
		return nil, fmt.Errorf("decoding chat history: %w", err)
	}
	if sess.Chat == nil {
		sess.Chat = make(map[string][]Exchange)
	}
	if code.Valid {
		sess.ParticipationCode = code.String
	}
	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)
	return &sess, nil
}

// logPayload is the part of a LogEntry without its own column.
type logPayload struct {
	Exchanges []Exchange     `json:"queries_and_responses,omitempty"`
	Responses map[string]any `json:"responses,omitempty"`
	Feedback  map[string]any `json:"feedback,omitempty"`
}

func appendLog(ctx context.Context, db execer, entry LogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	payload, err := json.Marshal(logPayload{
		Exchanges: entry.Exchanges,
		Responses: entry.Responses,
		Feedback:  entry.Feedback,
	})
	if err != nil {
		return fmt.Errorf("marshalling log payload: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO study_log (id, study_id, seq, type, task_id, method, payload, timestamp)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM study_log WHERE study_id = ?), ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.StudyID,
		entry.StudyID,
		string(entry.Type),
		entry.TaskID,
		string(entry.Method),
		string(payload),
		entry.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting log entry: %w", err)
	}
	return nil
}

// Logs returns a session's log in the order it was written.
func (s *Store) Logs(ctx context.Context, studyID string) ([]LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, study_id, type, task_id, method, payload, timestamp
		FROM study_log WHERE study_id = ? ORDER BY seq`, studyID)
	if err != nil {
		return nil, fmt.Errorf("querying log: %w", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var (
			e                        LogEntry
			typ, method, payload, ts string
			p                        logPayload
		)
		if err := rows.Scan(&e.ID, &e.StudyID, &typ, &e.TaskID, &method, &payload, &ts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("decoding log payload: %w", err)
		}
		e.Type = LogType(typ)
		e.Method = retrieval.Mode(method)
		e.Exchanges, e.Responses, e.Feedback = p.Exchanges, p.Responses, p.Feedback
		e.Timestamp = parseTime(ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ParticipationCodes lists every code issued so far, oldest first.
func (s *Store) ParticipationCodes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT participation_code FROM study_sessions
		WHERE participation_code IS NOT NULL ORDER BY updated_at`)
	if err != nil {
		return nil, fmt.Errorf("querying participation codes: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.DateTime} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
