package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"B24Relay/entity"
	"B24Relay/internal/lib/sl"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the relay state in one embedded database file.
// Timestamps are stored as unix milliseconds.
type SQLiteStore struct {
	db  *sql.DB
	log *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dir, err)
		}
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, log: logger.With(sl.Module("sqlite"))}
	if err = store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS b24_portals (
		portal_domain   TEXT PRIMARY KEY,
		client_endpoint TEXT,
		member_id       TEXT,
		access_token    TEXT,
		refresh_token   TEXT,
		expires_at      INTEGER,
		updated_at      INTEGER
	);

	CREATE TABLE IF NOT EXISTS chat_map (
		portal_domain    TEXT NOT NULL,
		external_chat_id TEXT NOT NULL,
		phone            TEXT,
		updated_at       INTEGER,
		PRIMARY KEY (portal_domain, external_chat_id)
	);

	CREATE TABLE IF NOT EXISTS settings (
		id              INTEGER PRIMARY KEY CHECK (id = 1),
		evolution_url   TEXT,
		evolution_token TEXT,
		webhook_url     TEXT,
		auto_reconnect  INTEGER,
		log_level       TEXT,
		max_retries     INTEGER
	);

	CREATE TABLE IF NOT EXISTS logs (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		id         TEXT,
		level      TEXT NOT NULL,
		source     TEXT NOT NULL,
		message    TEXT,
		details    TEXT,
		created_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_logs_time ON logs(created_at);

	CREATE TABLE IF NOT EXISTS relay_records (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		direction  TEXT,
		status     TEXT,
		message_id TEXT,
		user_id    TEXT,
		error      TEXT,
		created_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_records_time ON relay_records(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func (s *SQLiteStore) GetPortalAuth(ctx context.Context, domain string) (*entity.PortalAuth, error) {
	var auth entity.PortalAuth
	var expires, updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT portal_domain, client_endpoint, member_id, access_token, refresh_token, expires_at, updated_at
		 FROM b24_portals WHERE portal_domain = ?`, strings.ToLower(domain),
	).Scan(&auth.PortalDomain, &auth.ClientEndpoint, &auth.MemberID, &auth.AccessToken, &auth.RefreshToken, &expires, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select portal: %w", err)
	}
	auth.ExpiresAt = fromMillis(expires)
	auth.UpdatedAt = fromMillis(updated)
	return &auth, nil
}

func (s *SQLiteStore) SavePortalAuth(ctx context.Context, auth *entity.PortalAuth) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO b24_portals (portal_domain, client_endpoint, member_id, access_token, refresh_token, expires_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(portal_domain) DO UPDATE SET
			client_endpoint = excluded.client_endpoint,
			member_id       = excluded.member_id,
			access_token    = excluded.access_token,
			refresh_token   = excluded.refresh_token,
			expires_at      = excluded.expires_at,
			updated_at      = excluded.updated_at`,
		strings.ToLower(auth.PortalDomain), auth.ClientEndpoint, auth.MemberID, auth.AccessToken, auth.RefreshToken,
		millis(auth.ExpiresAt), millis(auth.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert portal: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeletePortalAuth(ctx context.Context, domain string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM b24_portals WHERE portal_domain = ?`, strings.ToLower(domain))
	if err != nil {
		return fmt.Errorf("delete portal: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveChatMap(ctx context.Context, m entity.ChatMap) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_map (portal_domain, external_chat_id, phone, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(portal_domain, external_chat_id) DO UPDATE SET phone = excluded.phone, updated_at = excluded.updated_at`,
		strings.ToLower(m.PortalDomain), m.ExternalChatID, m.Phone, millis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upsert chat map: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetChatMap(ctx context.Context, portal, chatID string) (*entity.ChatMap, error) {
	var m entity.ChatMap
	var updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT portal_domain, external_chat_id, phone, updated_at FROM chat_map
		 WHERE portal_domain = ? AND external_chat_id = ?`, strings.ToLower(portal), chatID,
	).Scan(&m.PortalDomain, &m.ExternalChatID, &m.Phone, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select chat map: %w", err)
	}
	m.UpdatedAt = fromMillis(updated)
	return &m, nil
}

func (s *SQLiteStore) GetSettings(ctx context.Context) (*entity.Settings, error) {
	var st entity.Settings
	err := s.db.QueryRowContext(ctx,
		`SELECT evolution_url, evolution_token, webhook_url, auto_reconnect, log_level, max_retries
		 FROM settings WHERE id = 1`,
	).Scan(&st.EvolutionURL, &st.EvolutionToken, &st.WebhookURL, &st.AutoReconnect, &st.LogLevel, &st.MaxRetries)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select settings: %w", err)
	}
	return &st, nil
}

func (s *SQLiteStore) SaveSettings(ctx context.Context, st entity.Settings) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO settings (id, evolution_url, evolution_token, webhook_url, auto_reconnect, log_level, max_retries)
		 VALUES (1, ?, ?, ?, ?, ?, ?)`,
		st.EvolutionURL, st.EvolutionToken, st.WebhookURL, st.AutoReconnect, st.LogLevel, st.MaxRetries,
	)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AddLog(ctx context.Context, e entity.LogEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO logs (id, level, source, message, details, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Level, e.Source, e.Message, e.Details, millis(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListLogs(ctx context.Context, f entity.LogFilter) ([]entity.LogEntry, error) {
	f = f.Normalize()
	query := `SELECT id, level, source, message, details, created_at FROM logs WHERE 1 = 1`
	var args []interface{}
	if f.Level != "" {
		query += ` AND level = ?`
		args = append(args, f.Level)
	}
	if f.Source != "" {
		query += ` AND source = ?`
		args = append(args, f.Source)
	}
	query += ` ORDER BY created_at DESC, seq DESC LIMIT ?`
	args = append(args, f.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select logs: %w", err)
	}
	defer rows.Close()

	entries := make([]entity.LogEntry, 0, f.Limit)
	for rows.Next() {
		var e entity.LogEntry
		var created int64
		if err = rows.Scan(&e.ID, &e.Level, &e.Source, &e.Message, &e.Details, &created); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		e.CreatedAt = fromMillis(created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) AddRelayRecord(ctx context.Context, r entity.RelayRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO relay_records (direction, status, message_id, user_id, error, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		string(r.Direction), r.Status, r.MessageID, r.UserID, r.Error, millis(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert relay record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Stats(ctx context.Context, now time.Time) (*entity.Stats, error) {
	stats := &entity.Stats{}
	var last sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status IN (?, ?) THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			MAX(CASE WHEN status IN (?, ?) THEN created_at END)
		 FROM relay_records`,
		millis(startOfDay(now)),
		entity.RelaySent, entity.RelayPartial,
		entity.RelayFailed,
		entity.RelaySkipped,
		entity.RelaySent, entity.RelayPartial,
	).Scan(&stats.Total, &stats.Today, &stats.Sent, &stats.Failed, &stats.Skipped, &last)
	if err != nil {
		return nil, fmt.Errorf("select stats: %w", err)
	}
	if last.Valid {
		t := fromMillis(last.Int64)
		stats.LastSync = &t
	}
	return stats, nil
}
