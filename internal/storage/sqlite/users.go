package sqlite

import (
    "context"
    "database/sql"
    "errors"
    "fmt"

    "github.com/hihikaAAa/task-assist-bot/internal/model"
)

const userColumns = `tag, full_name, role, bio, birth_date, chat_id`

type rowScanner interface {
    Scan(dest ...any) error
}

func scanUser(r rowScanner) (*model.User, error) {
    u := &model.User{}
    var role string
    var birth sql.NullTime
    var chat sql.NullInt64
    if err := r.Scan(&u.Tag, &u.FullName, &role, &u.Bio, &birth, &chat); err != nil {
        return nil, err
    }
    u.Role = model.Role(role)
    if birth.Valid { u.BirthDate = birth.Time }
    if chat.Valid { u.ChatID = chat.Int64 }
    return u, nil
}

// UpsertUser inserts or updates a user by normalized tag. An existing chat binding is kept.
func (d *DB) UpsertUser(ctx context.Context, u *model.User) error {
    tag := model.NormalizeTag(u.Tag)
    if tag == "" {
        return fmt.Errorf("upsert user: empty tag")
    }
    var birth any
    if !u.BirthDate.IsZero() { birth = u.BirthDate }
    _, err := d.SQL.ExecContext(ctx, `
        INSERT INTO users (tag, full_name, role, bio, birth_date, created_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(tag) DO UPDATE SET full_name=excluded.full_name, role=excluded.role,
            bio=excluded.bio, birth_date=excluded.birth_date
    `, tag, u.FullName, string(u.Role), u.Bio, birth, d.now())
    if err != nil {
        return fmt.Errorf("upsert user %s: %w", tag, err)
    }
    return nil
}

func (d *DB) GetUserByTag(ctx context.Context, tag string) (*model.User, error) {
    row := d.SQL.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE tag=?`, model.NormalizeTag(tag))
    u, err := scanUser(row)
    if errors.Is(err, sql.ErrNoRows) { return nil, model.ErrNotFound }
    if err != nil { return nil, fmt.Errorf("get user by tag: %w", err) }
    return u, nil
}

func (d *DB) GetUserByChat(ctx context.Context, chatID int64) (*model.User, error) {
    row := d.SQL.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE chat_id=? LIMIT 1`, chatID)
    u, err := scanUser(row)
    if errors.Is(err, sql.ErrNoRows) { return nil, model.ErrNotFound }
    if err != nil { return nil, fmt.Errorf("get user by chat: %w", err) }
    return u, nil
}

// BindChat remembers which chat a user logged in from. A chat belongs to one user at a time.
func (d *DB) BindChat(ctx context.Context, tag string, chatID int64) error {
    tx, err := d.SQL.BeginTx(ctx, nil)
    if err != nil { return fmt.Errorf("bind chat: %w", err) }
    defer tx.Rollback()
    if _, err := tx.ExecContext(ctx, `UPDATE users SET chat_id=NULL WHERE chat_id=? AND tag<>?`, chatID, model.NormalizeTag(tag)); err != nil {
        return fmt.Errorf("bind chat: %w", err)
    }
    res, err := tx.ExecContext(ctx, `UPDATE users SET chat_id=? WHERE tag=?`, chatID, model.NormalizeTag(tag))
    if err != nil { return fmt.Errorf("bind chat: %w", err) }
    if n, _ := res.RowsAffected(); n == 0 { return model.ErrNotFound }
    return tx.Commit()
}

func (d *DB) ListEmployees(ctx context.Context) ([]*model.User, error) {
    rows, err := d.SQL.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE role=? ORDER BY full_name, tag`, string(model.RoleEmployee))
    if err != nil { return nil, fmt.Errorf("list employees: %w", err) }
    defer rows.Close()
    var out []*model.User
    for rows.Next() {
        u, err := scanUser(rows)
        if err != nil { return nil, fmt.Errorf("list employees: %w", err) }
        out = append(out, u)
    }
    return out, rows.Err()
}

// EmployeeLoad counts open (waiting or in progress) assignments per employee tag.
func (d *DB) EmployeeLoad(ctx context.Context) (map[string]int, error) {
    rows, err := d.SQL.QueryContext(ctx, `
        SELECT u.tag, COUNT(ta.task_id)
        FROM users u
        LEFT JOIN task_assignees ta ON ta.user_tag = u.tag AND ta.status IN ('waiting', 'in_progress')
        WHERE u.role = ?
        GROUP BY u.tag
    `, string(model.RoleEmployee))
    if err != nil { return nil, fmt.Errorf("employee load: %w", err) }
    defer rows.Close()
    out := map[string]int{}
    for rows.Next() {
        var tag string
        var n int
        if err := rows.Scan(&tag, &n); err != nil { return nil, fmt.Errorf("employee load: %w", err) }
        out[tag] = n
    }
    return out, rows.Err()
}

func (d *DB) AddSkill(ctx context.Context, tag string, s model.Skill) error {
    _, err := d.SQL.ExecContext(ctx, `
        INSERT INTO skills (user_tag, name, years) VALUES (?, ?, ?)
        ON CONFLICT(user_tag, name) DO UPDATE SET years=excluded.years
    `, model.NormalizeTag(tag), s.Name, s.Years)
    if err != nil { return fmt.Errorf("add skill: %w", err) }
    return nil
}

// EmployeeSkills returns skills per tag, most experienced first.
func (d *DB) EmployeeSkills(ctx context.Context) (map[string][]model.Skill, error) {
    rows, err := d.SQL.QueryContext(ctx, `SELECT user_tag, name, years FROM skills ORDER BY user_tag, years DESC, name`)
    if err != nil { return nil, fmt.Errorf("employee skills: %w", err) }
    defer rows.Close()
    out := map[string][]model.Skill{}
    for rows.Next() {
        var tag string
        var s model.Skill
        if err := rows.Scan(&tag, &s.Name, &s.Years); err != nil { return nil, fmt.Errorf("employee skills: %w", err) }
        out[tag] = append(out[tag], s)
    }
    return out, rows.Err()
}
