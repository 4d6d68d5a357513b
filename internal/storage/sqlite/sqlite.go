package sqlite

import (
    "context"
    "database/sql"
    "fmt"
    "os"
    "path/filepath"
    "time"

    _ "modernc.org/sqlite"
)

type DB struct {
    SQL *sql.DB
    now func() time.Time
}

func Open(path string) (*DB, error) {
    if dir := filepath.Dir(path); dir != "." {
        if err := os.MkdirAll(dir, 0o755); err != nil { return nil, fmt.Errorf("sqlite: mkdir %s: %w", dir, err) }
    }
    dsn := path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
    s, err := sql.Open("sqlite", dsn)
    if err != nil {
        return nil, fmt.Errorf("sqlite: open: %w", err)
    }
    s.SetMaxOpenConns(1)
    if err := migrate(context.Background(), s); err != nil {
        s.Close()
        return nil, fmt.Errorf("sqlite: migrate: %w", err)
    }
    return &DB{SQL: s, now: Now}, nil
}

func (d *DB) Close() error { return d.SQL.Close() }

func migrate(ctx context.Context, db *sql.DB) error {
    stmts := []string{
        `CREATE TABLE IF NOT EXISTS users (
            tag TEXT PRIMARY KEY,
            full_name TEXT NOT NULL DEFAULT '',
            role TEXT NOT NULL,
            bio TEXT NOT NULL DEFAULT '',
            birth_date DATETIME,
            chat_id INTEGER,
            created_at DATETIME NOT NULL
        );`,
        `CREATE INDEX IF NOT EXISTS idx_users_chat ON users(chat_id);`,
        `CREATE TABLE IF NOT EXISTS skills (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_tag TEXT NOT NULL REFERENCES users(tag) ON DELETE CASCADE,
            name TEXT NOT NULL,
            years INTEGER NOT NULL DEFAULT 0
        );`,
        `CREATE UNIQUE INDEX IF NOT EXISTS idx_skills_unique ON skills(user_tag, name);`,
        `CREATE TABLE IF NOT EXISTS tasks (
            id TEXT PRIMARY KEY,
            title TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            deadline DATETIME NOT NULL,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        );`,
        `CREATE TABLE IF NOT EXISTS task_assignees (
            task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
            user_tag TEXT NOT NULL REFERENCES users(tag) ON DELETE CASCADE,
            status TEXT NOT NULL DEFAULT 'waiting',
            updated_at DATETIME NOT NULL,
            PRIMARY KEY (task_id, user_tag)
        );`,
        `CREATE TABLE IF NOT EXISTS reminders (
            task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
            user_tag TEXT NOT NULL REFERENCES users(tag) ON DELETE CASCADE,
            kind TEXT NOT NULL,
            sent_at DATETIME NOT NULL,
            PRIMARY KEY (task_id, user_tag, kind)
        );`,
        `CREATE TABLE IF NOT EXISTS chat_sessions (
            chat_id INTEGER PRIMARY KEY,
            state TEXT NOT NULL,
            payload TEXT,
            updated_at DATETIME NOT NULL
        );`,
    }
    for _, s := range stmts {
        if _, err := db.ExecContext(ctx, s); err != nil { return err }
    }
    return nil
}

func Now() time.Time {
    return time.Now().In(time.Local)
}
