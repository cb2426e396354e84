package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	logx "matchbot/pkg/logx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// goose keeps its FS and dialect in package globals.
var gooseMu sync.Mutex

// SQLite implements Store on a single-connection SQLite database.
type SQLite struct {
	db  *sql.DB
	log logx.Logger
	now func() time.Time
}

var _ Store = (*SQLite)(nil)

func OpenSQLite(cfg Config, log logx.Logger) (*SQLite, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	pragmas := []struct {
		name  string
		value string
	}{
		{"journal_mode", "WAL"},
		{"synchronous", "NORMAL"},
		{"busy_timeout", fmt.Sprint(busy.Milliseconds())},
		{"foreign_keys", "ON"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("pragma %s: %w", p.name, err)
		}
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("storage opened", logx.String("path", path))
	return &SQLite{db: db, log: log, now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Upsert creates the subscription with all flags cleared. If it already
// exists the display names (home, away and league) are all refreshed
// together; the kickoff snapshot and flags are left alone.
func (s *SQLite) Upsert(ctx context.Context, sub Subscription) error {
	now := s.now().Unix()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO users(id, created_at) VALUES(?, ?)`, sub.UserID, now,
	); err != nil {
		return fmt.Errorf("upsert subscription user: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO subscriptions(user_id, fixture_id, kickoff, home, away, league, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, fixture_id) DO UPDATE SET home = excluded.home, away = excluded.away, league = excluded.league`,
		sub.UserID, sub.FixtureID, sub.Kickoff.UTC().Unix(), sub.Home, sub.Away, sub.League, now,
	); err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return tx.Commit()
}

func (s *SQLite) Remove(ctx context.Context, userID, fixtureID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE user_id = ? AND fixture_id = ?`, userID, fixtureID)
	if err != nil {
		return false, fmt.Errorf("remove subscription: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

const subColumns = `user_id, fixture_id, kickoff, home, away, league, sent_one_hour, sent_fifteen, sent_lineup, created_at`

func (s *SQLite) Get(ctx context.Context, userID, fixtureID int64) (Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+subColumns+` FROM subscriptions WHERE user_id = ? AND fixture_id = ?`, userID, fixtureID)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Subscription{}, ErrNotFound
	}
	if err != nil {
		return Subscription{}, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

func (s *SQLite) ListAll(ctx context.Context) ([]Subscription, error) {
	return s.list(ctx, `SELECT `+subColumns+` FROM subscriptions ORDER BY fixture_id, kickoff, user_id`)
}

func (s *SQLite) ListByUser(ctx context.Context, userID int64) ([]Subscription, error) {
	return s.list(ctx, `SELECT `+subColumns+` FROM subscriptions WHERE user_id = ? ORDER BY kickoff, fixture_id`, userID)
}

func (s *SQLite) list(ctx context.Context, q string, args ...any) ([]Subscription, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return out, nil
}

// MarkFlags sets the true fields of f. False fields are left as stored.
func (s *SQLite) MarkFlags(ctx context.Context, userID, fixtureID int64, f Flags) error {
	if !f.OneHour && !f.FifteenMin && !f.Lineup {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET
		   sent_one_hour = sent_one_hour | ?,
		   sent_fifteen  = sent_fifteen  | ?,
		   sent_lineup   = sent_lineup   | ?
		 WHERE user_id = ? AND fixture_id = ?`,
		boolInt(f.OneHour), boolInt(f.FifteenMin), boolInt(f.Lineup), userID, fixtureID,
	)
	if err != nil {
		return fmt.Errorf("mark flags: %w", err)
	}
	return nil
}

// EnsureUser registers u if unknown; known users get their names refreshed.
func (s *SQLite) EnsureUser(ctx context.Context, u User) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users(id, username, first_name, created_at) VALUES(?, ?, ?, ?)`,
		u.ID, u.Username, u.FirstName, s.now().Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("ensure user: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE users SET username = ?, first_name = ? WHERE id = ?`, u.Username, u.FirstName, u.ID,
	); err != nil {
		return false, fmt.Errorf("refresh user: %w", err)
	}
	return false, nil
}

func (s *SQLite) User(ctx context.Context, id int64) (User, error) {
	var (
		u       User
		granted int
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, first_name, balance, bonus_granted, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Username, &u.FirstName, &u.Balance, &granted, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	u.BonusGranted = granted != 0
	u.CreatedAt = time.Unix(created, 0).UTC()
	return u, nil
}

// GrantBonus credits amount once per user. It reports false if the bonus was
// already granted or the user is unknown.
func (s *SQLite) GrantBonus(ctx context.Context, userID, amount int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET balance = balance + ?, bonus_granted = 1 WHERE id = ? AND bonus_granted = 0`,
		amount, userID,
	)
	if err != nil {
		return false, fmt.Errorf("grant bonus: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLite) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubscription(r scanner) (Subscription, error) {
	var (
		sub              Subscription
		kickoff, created int64
		oneHour, fifteen int
		lineup           int
	)
	if err := r.Scan(&sub.UserID, &sub.FixtureID, &kickoff, &sub.Home, &sub.Away, &sub.League,
		&oneHour, &fifteen, &lineup, &created); err != nil {
		return Subscription{}, err
	}
	sub.Kickoff = time.Unix(kickoff, 0).UTC()
	sub.CreatedAt = time.Unix(created, 0).UTC()
	sub.Flags = Flags{OneHour: oneHour != 0, FifteenMin: fifteen != 0, Lineup: lineup != 0}
	return sub, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
