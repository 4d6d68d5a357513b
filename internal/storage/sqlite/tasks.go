package sqlite

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "strings"

    "github.com/google/uuid"

    "github.com/hihikaAAa/task-assist-bot/internal/model"
)

// CreateTask stores the task with one assignment per tag and returns the new id.
// Tags that do not resolve to a user are skipped; at least one must resolve.
func (d *DB) CreateTask(ctx context.Context, t *model.Task) (string, error) {
    tx, err := d.SQL.BeginTx(ctx, nil)
    if err != nil { return "", fmt.Errorf("create task: %w", err) }
    defer tx.Rollback()

    now := d.now()
    id := uuid.NewString()
    if _, err := tx.ExecContext(ctx, `
        INSERT INTO tasks (id, title, description, deadline, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)
    `, id, t.Title, t.Description, t.Deadline, now, now); err != nil {
        return "", fmt.Errorf("create task: %w", err)
    }

    status := t.Status
    if status == "" { status = model.StatusWaiting }
    assigned := 0
    for _, tag := range t.AssignedTags {
        res, err := tx.ExecContext(ctx, `
            INSERT OR IGNORE INTO task_assignees (task_id, user_tag, status, updated_at)
            SELECT ?, tag, ?, ? FROM users WHERE tag=?
        `, id, string(status), now, model.NormalizeTag(tag))
        if err != nil { return "", fmt.Errorf("create task: assign %s: %w", tag, err) }
        n, _ := res.RowsAffected()
        assigned += int(n)
    }
    if assigned == 0 {
        return "", fmt.Errorf("create task: none of %v are known users", t.AssignedTags)
    }
    if err := tx.Commit(); err != nil { return "", fmt.Errorf("create task: %w", err) }
    return id, nil
}

// GetTask returns the task with its status aggregated over all assignees.
func (d *DB) GetTask(ctx context.Context, id string) (*model.Task, error) {
    row := d.SQL.QueryRowContext(ctx, `SELECT id, title, description, deadline FROM tasks WHERE id=?`, id)
    t := &model.Task{}
    if err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Deadline); err != nil {
        if errors.Is(err, sql.ErrNoRows) { return nil, model.ErrNotFound }
        return nil, fmt.Errorf("get task: %w", err)
    }
    if err := d.fillAssignees(ctx, []*model.Task{t}, ""); err != nil { return nil, err }
    return t, nil
}

// ListTasks returns every task with aggregated status, nearest deadline first.
func (d *DB) ListTasks(ctx context.Context) ([]*model.Task, error) {
    rows, err := d.SQL.QueryContext(ctx, `SELECT id, title, description, deadline FROM tasks ORDER BY deadline, created_at`)
    if err != nil { return nil, fmt.Errorf("list tasks: %w", err) }
    ts, err := scanTasks(rows)
    if err != nil { return nil, fmt.Errorf("list tasks: %w", err) }
    if err := d.fillAssignees(ctx, ts, ""); err != nil { return nil, err }
    return ts, nil
}

// ListTasksForTag returns the tasks assigned to tag. Status is that assignee's own status.
func (d *DB) ListTasksForTag(ctx context.Context, tag string) ([]*model.Task, error) {
    tag = model.NormalizeTag(tag)
    rows, err := d.SQL.QueryContext(ctx, `
        SELECT t.id, t.title, t.description, t.deadline
        FROM tasks t
        JOIN task_assignees ta ON ta.task_id = t.id
        WHERE ta.user_tag = ?
        ORDER BY t.deadline, t.created_at
    `, tag)
    if err != nil { return nil, fmt.Errorf("list tasks for %s: %w", tag, err) }
    ts, err := scanTasks(rows)
    if err != nil { return nil, fmt.Errorf("list tasks for %s: %w", tag, err) }
    if err := d.fillAssignees(ctx, ts, tag); err != nil { return nil, err }
    return ts, nil
}

func scanTasks(rows *sql.Rows) ([]*model.Task, error) {
    defer rows.Close()
    var out []*model.Task
    for rows.Next() {
        t := &model.Task{}
        if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.Deadline); err != nil { return nil, err }
        out = append(out, t)
    }
    return out, rows.Err()
}

// fillAssignees loads assignee tags and statuses. With ownTag set, the task
// status is that assignee's status; otherwise it is the aggregate.
func (d *DB) fillAssignees(ctx context.Context, ts []*model.Task, ownTag string) error {
    if len(ts) == 0 { return nil }
    byID := make(map[string]*model.Task, len(ts))
    ids := make([]any, 0, len(ts))
    for _, t := range ts {
        byID[t.ID] = t
        ids = append(ids, t.ID)
    }
    q := `SELECT task_id, user_tag, status FROM task_assignees WHERE task_id IN (?` +
        strings.Repeat(",?", len(ids)-1) + `) ORDER BY task_id, user_tag`
    rows, err := d.SQL.QueryContext(ctx, q, ids...)
    if err != nil { return fmt.Errorf("load assignees: %w", err) }
    defer rows.Close()

    statuses := map[string][]model.TaskStatus{}
    for rows.Next() {
        var taskID, tag, status string
        if err := rows.Scan(&taskID, &tag, &status); err != nil { return fmt.Errorf("load assignees: %w", err) }
        t := byID[taskID]
        t.AssignedTags = append(t.AssignedTags, tag)
        st := model.ParseTaskStatus(status)
        statuses[taskID] = append(statuses[taskID], st)
        if ownTag != "" && tag == ownTag { t.Status = st }
    }
    if err := rows.Err(); err != nil { return fmt.Errorf("load assignees: %w", err) }
    if ownTag == "" {
        for id, t := range byID { t.Status = model.AggregateStatus(statuses[id]) }
    }
    return nil
}

// UpdateAssigneeStatus sets one assignee's status. It reports false when the
// pair does not exist.
func (d *DB) UpdateAssigneeStatus(ctx context.Context, taskID, tag string, status model.TaskStatus) (bool, error) {
    now := d.now()
    res, err := d.SQL.ExecContext(ctx, `UPDATE task_assignees SET status=?, updated_at=? WHERE task_id=? AND user_tag=?`,
        string(status), now, taskID, model.NormalizeTag(tag))
    if err != nil { return false, fmt.Errorf("update assignee status: %w", err) }
    n, _ := res.RowsAffected()
    if n > 0 {
        _, _ = d.SQL.ExecContext(ctx, `UPDATE tasks SET updated_at=? WHERE id=?`, now, taskID)
    }
    return n > 0, nil
}
