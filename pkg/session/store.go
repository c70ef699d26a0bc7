package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store is the durable layer under the session service: four relations
// holding sessions, their event logs, and the app/user state partitions.
// Events cascade-delete with their session.
type Store struct {
	db *sql.DB

	// called between the session-state write and the event insert
	// inside AppendEvent's transaction; tests use it to prove the two
	// writes commit or roll back together.
	appendFault func() error
}

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// sqlite does not enforce referential integrity unless asked
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping() error {
	return s.db.Ping()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	// columns added after the initial schema shipped; additive only
	if err := s.ensureColumn("events", "grounding_metadata", "TEXT"); err != nil {
		return err
	}
	return s.ensureColumn("events", "interrupted", "INTEGER NOT NULL DEFAULT 0")
}

func (s *Store) ensureColumn(table, column, decl string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return err
		}
		if name == column {
			return rows.Err()
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl))
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    app_name    TEXT NOT NULL,
    user_id     TEXT NOT NULL,
    id          TEXT PRIMARY KEY,
    state       TEXT NOT NULL DEFAULT '{}',
    create_time REAL NOT NULL,
    update_time REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
    id                    TEXT PRIMARY KEY,
    app_name              TEXT NOT NULL,
    user_id               TEXT NOT NULL,
    session_id            TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    invocation_id         TEXT NOT NULL DEFAULT '',
    author                TEXT NOT NULL,
    branch                TEXT,
    timestamp             REAL NOT NULL,
    content               TEXT,
    actions               TEXT,
    long_running_tool_ids TEXT NOT NULL DEFAULT '[]',
    grounding_metadata    TEXT,
    partial               INTEGER NOT NULL DEFAULT 0,
    turn_complete         INTEGER NOT NULL DEFAULT 0,
    error_code            TEXT,
    error_message         TEXT,
    interrupted           INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, timestamp);

CREATE TABLE IF NOT EXISTS app_states (
    app_name    TEXT PRIMARY KEY,
    state       TEXT NOT NULL DEFAULT '{}',
    update_time REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS user_states (
    app_name    TEXT NOT NULL,
    user_id     TEXT NOT NULL,
    state       TEXT NOT NULL DEFAULT '{}',
    update_time REAL NOT NULL,
    PRIMARY KEY(app_name, user_id)
);
`

type sessionRow struct {
	AppName    string
	UserID     string
	ID         string
	State      map[string]any
	CreateTime float64
	UpdateTime float64
}

// createSession inserts the session row and lazily materializes the
// app/user state rows, applying the caller's partition deltas, all in
// one transaction. Fails with ErrSessionExists on id collision.
func (s *Store) createSession(ctx context.Context, row sessionRow, appDelta, userDelta map[string]any) (appState, userState map[string]any, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, row.ID).Scan(&exists)
	if err == nil {
		return nil, nil, ErrSessionExists
	}
	if err != sql.ErrNoRows {
		return nil, nil, err
	}

	appState, err = loadOrInitScopeState(ctx, tx,
		`SELECT state FROM app_states WHERE app_name = ?`,
		`INSERT INTO app_states(app_name, state, update_time) VALUES (?, ?, ?)`,
		[]any{row.AppName}, row.CreateTime)
	if err != nil {
		return nil, nil, err
	}
	userState, err = loadOrInitScopeState(ctx, tx,
		`SELECT state FROM user_states WHERE app_name = ? AND user_id = ?`,
		`INSERT INTO user_states(app_name, user_id, state, update_time) VALUES (?, ?, ?, ?)`,
		[]any{row.AppName, row.UserID}, row.CreateTime)
	if err != nil {
		return nil, nil, err
	}

	for k, v := range appDelta {
		appState[k] = v
	}
	for k, v := range userDelta {
		userState[k] = v
	}

	if len(appDelta) > 0 {
		if err := writeScopeState(ctx, tx, `UPDATE app_states SET state = ?, update_time = ? WHERE app_name = ?`,
			appState, row.CreateTime, row.AppName); err != nil {
			return nil, nil, err
		}
	}
	if len(userDelta) > 0 {
		if err := writeScopeState(ctx, tx, `UPDATE user_states SET state = ?, update_time = ? WHERE app_name = ? AND user_id = ?`,
			userState, row.CreateTime, row.AppName, row.UserID); err != nil {
			return nil, nil, err
		}
	}

	stateJSON, err := json.Marshal(row.State)
	if err != nil {
		return nil, nil, err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions(app_name, user_id, id, state, create_time, update_time)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		row.AppName, row.UserID, row.ID, string(stateJSON), row.CreateTime, row.UpdateTime)
	if err != nil {
		return nil, nil, err
	}

	return appState, userState, tx.Commit()
}

func loadOrInitScopeState(ctx context.Context, tx *sql.Tx, selectQ, insertQ string, keys []any, now float64) (map[string]any, error) {
	var raw string
	err := tx.QueryRowContext(ctx, selectQ, keys...).Scan(&raw)
	if err == sql.ErrNoRows {
		args := append(append([]any{}, keys...), "{}", now)
		if _, err := tx.ExecContext(ctx, insertQ, args...); err != nil {
			return nil, err
		}
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeStateJSON(raw)
}

func writeScopeState(ctx context.Context, tx *sql.Tx, query string, st map[string]any, now float64, keys ...any) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	args := append([]any{string(raw), now}, keys...)
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}

func (s *Store) getSessionRow(ctx context.Context, appName, userID, sessionID string) (*sessionRow, error) {
	row := &sessionRow{}
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT app_name, user_id, id, state, create_time, update_time
		 FROM sessions WHERE app_name = ? AND user_id = ? AND id = ?`,
		appName, userID, sessionID,
	).Scan(&row.AppName, &row.UserID, &row.ID, &raw, &row.CreateTime, &row.UpdateTime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	row.State, err = decodeStateJSON(raw)
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (s *Store) listSessionRows(ctx context.Context, appName, userID string) ([]sessionRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, create_time, update_time FROM sessions
		 WHERE app_name = ? AND user_id = ? ORDER BY update_time DESC`,
		appName, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sessionRow
	for rows.Next() {
		r := sessionRow{AppName: appName, UserID: userID}
		if err := rows.Scan(&r.ID, &r.CreateTime, &r.UpdateTime); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) deleteSession(ctx context.Context, appName, userID, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE app_name = ? AND user_id = ? AND id = ?`,
		appName, userID, sessionID)
	return err
}

func (s *Store) appState(ctx context.Context, appName string) (map[string]any, error) {
	return s.scopeState(ctx, `SELECT state FROM app_states WHERE app_name = ?`, appName)
}

func (s *Store) userState(ctx context.Context, appName, userID string) (map[string]any, error) {
	return s.scopeState(ctx, `SELECT state FROM user_states WHERE app_name = ? AND user_id = ?`, appName, userID)
}

func (s *Store) scopeState(ctx context.Context, query string, keys ...any) (map[string]any, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, query, keys...).Scan(&raw)
	if err == sql.ErrNoRows {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeStateJSON(raw)
}

// appendWrite is the unit of work appendEvent commits atomically: the
// updated state partitions and the new event row. Nil partition maps
// mean "unchanged, skip the write".
type appendWrite struct {
	AppName      string
	UserID       string
	SessionID    string
	SessionState map[string]any
	AppState     map[string]any
	UserState    map[string]any
	UpdateTime   float64
	Event        *Event
}

// appendEvent writes the session state row and the event row in one
// commit. A reader can never observe the state updated without the
// event, or the event without the state.
func (s *Store) appendEvent(ctx context.Context, w appendWrite) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stateJSON, err := json.Marshal(w.SessionState)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET state = ?, update_time = ? WHERE id = ?`,
		string(stateJSON), w.UpdateTime, w.SessionID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrSessionNotFound
	}

	if w.AppState != nil {
		if err := writeScopeState(ctx, tx, `UPDATE app_states SET state = ?, update_time = ? WHERE app_name = ?`,
			w.AppState, w.UpdateTime, w.AppName); err != nil {
			return err
		}
	}
	if w.UserState != nil {
		if err := writeScopeState(ctx, tx, `UPDATE user_states SET state = ?, update_time = ? WHERE app_name = ? AND user_id = ?`,
			w.UserState, w.UpdateTime, w.AppName, w.UserID); err != nil {
			return err
		}
	}

	if s.appendFault != nil {
		if err := s.appendFault(); err != nil {
			return err
		}
	}

	ev := w.Event
	contentJSON, err := marshalNullable(ev.Content)
	if err != nil {
		return err
	}
	actionsJSON, err := marshalNullable(ev.Actions)
	if err != nil {
		return err
	}
	groundingJSON, err := marshalNullable(ev.GroundingMetadata)
	if err != nil {
		return err
	}
	toolIDs := ev.LongRunningToolIDs
	if toolIDs == nil {
		toolIDs = []string{}
	}
	toolIDsJSON, err := json.Marshal(toolIDs)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO events(
		    id, app_name, user_id, session_id, invocation_id, author, branch,
		    timestamp, content, actions, long_running_tool_ids,
		    grounding_metadata, partial, turn_complete,
		    error_code, error_message, interrupted
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, w.AppName, w.UserID, w.SessionID, ev.InvocationID, ev.Author,
		nullString(ev.Branch), ev.Timestamp, contentJSON, actionsJSON,
		string(toolIDsJSON), groundingJSON, boolInt(ev.Partial),
		boolInt(ev.TurnComplete), nullString(ev.ErrorCode),
		nullString(ev.ErrorMessage), boolInt(ev.Interrupted))
	if err != nil {
		return err
	}

	return tx.Commit()
}

// listEvents returns a session's events ordered by timestamp ascending,
// rowid breaking ties (insertion order is stable under equal
// timestamps). afterTimestamp > 0 keeps only events strictly before the
// cutoff.
func (s *Store) listEvents(ctx context.Context, sessionID string, afterTimestamp float64) ([]*Event, error) {
	query := `SELECT id, invocation_id, author, branch, timestamp, content, actions,
	                 long_running_tool_ids, grounding_metadata, partial, turn_complete,
	                 error_code, error_message, interrupted
	          FROM events WHERE session_id = ?`
	args := []any{sessionID}
	if afterTimestamp > 0 {
		query += ` AND timestamp < ?`
		args = append(args, afterTimestamp)
	}
	query += ` ORDER BY timestamp ASC, rowid ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func scanEvent(rows *sql.Rows) (*Event, error) {
	var (
		ev                       Event
		branch, errCode, errMsg  sql.NullString
		content, actions         sql.NullString
		toolIDs, grounding       sql.NullString
		partial, turnC, interrup int
	)
	err := rows.Scan(&ev.ID, &ev.InvocationID, &ev.Author, &branch, &ev.Timestamp,
		&content, &actions, &toolIDs, &grounding, &partial, &turnC,
		&errCode, &errMsg, &interrup)
	if err != nil {
		return nil, err
	}

	ev.Branch = branch.String
	ev.ErrorCode = errCode.String
	ev.ErrorMessage = errMsg.String
	ev.Partial = partial != 0
	ev.TurnComplete = turnC != 0
	ev.Interrupted = interrup != 0

	if content.Valid {
		if err := json.Unmarshal([]byte(content.String), &ev.Content); err != nil {
			return nil, fmt.Errorf("decoding event content: %w", err)
		}
	}
	if actions.Valid {
		if err := json.Unmarshal([]byte(actions.String), &ev.Actions); err != nil {
			return nil, fmt.Errorf("decoding event actions: %w", err)
		}
	}
	if grounding.Valid {
		if err := json.Unmarshal([]byte(grounding.String), &ev.GroundingMetadata); err != nil {
			return nil, fmt.Errorf("decoding grounding metadata: %w", err)
		}
	}
	if toolIDs.Valid && toolIDs.String != "" {
		if err := json.Unmarshal([]byte(toolIDs.String), &ev.LongRunningToolIDs); err != nil {
			return nil, fmt.Errorf("decoding tool ids: %w", err)
		}
	}
	return &ev, nil
}

func decodeStateJSON(raw string) (map[string]any, error) {
	st := map[string]any{}
	if raw == "" {
		return st, nil
	}
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("decoding state: %w", err)
	}
	return st, nil
}

// marshalNullable serializes v, keeping NULL distinguishable from an
// empty object: a nil value stays a SQL NULL.
func marshalNullable(v any) (any, error) {
	switch val := v.(type) {
	case *Content:
		if val == nil {
			return nil, nil
		}
	case *Actions:
		if val == nil {
			return nil, nil
		}
	case map[string]any:
		if val == nil {
			return nil, nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
