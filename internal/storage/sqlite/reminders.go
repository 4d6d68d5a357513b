package sqlite

import (
    "context"
    "fmt"
    "time"

    "github.com/hihikaAAa/task-assist-bot/internal/model"
)

// DueReminders returns notices owed to bound assignees whose assignment is
// still open: overdue once the deadline passed, before when it is within the
// window. Each kind is owed once per task and assignee.
func (d *DB) DueReminders(ctx context.Context, now time.Time, before time.Duration) ([]model.Reminder, error) {
    sent := map[string]bool{}
    rows, err := d.SQL.QueryContext(ctx, `SELECT task_id, user_tag, kind FROM reminders`)
    if err != nil { return nil, fmt.Errorf("due reminders: %w", err) }
    for rows.Next() {
        var taskID, tag, kind string
        if err := rows.Scan(&taskID, &tag, &kind); err != nil {
            rows.Close()
            return nil, fmt.Errorf("due reminders: %w", err)
        }
        sent[taskID+"|"+tag+"|"+kind] = true
    }
    rows.Close()

    rows, err = d.SQL.QueryContext(ctx, `
        SELECT t.id, t.title, t.deadline, u.tag, u.chat_id
        FROM task_assignees ta
        JOIN tasks t ON t.id = ta.task_id
        JOIN users u ON u.tag = ta.user_tag
        WHERE ta.status IN ('waiting', 'in_progress') AND u.chat_id IS NOT NULL AND u.chat_id != 0
        ORDER BY t.deadline, u.tag`)
    if err != nil { return nil, fmt.Errorf("due reminders: %w", err) }
    defer rows.Close()

    var out []model.Reminder
    for rows.Next() {
        var r model.Reminder
        if err := rows.Scan(&r.TaskID, &r.Title, &r.Deadline, &r.Tag, &r.ChatID); err != nil {
            return nil, fmt.Errorf("due reminders: %w", err)
        }
        switch {
        case !r.Deadline.After(now):
            r.Kind = model.ReminderOverdue
        case r.Deadline.Sub(now) <= before:
            r.Kind = model.ReminderBefore
        default:
            continue
        }
        if sent[r.TaskID+"|"+r.Tag+"|"+string(r.Kind)] { continue }
        out = append(out, r)
    }
    return out, rows.Err()
}

func (d *DB) MarkReminderSent(ctx context.Context, r model.Reminder) error {
    _, err := d.SQL.ExecContext(ctx, `INSERT OR IGNORE INTO reminders (task_id, user_tag, kind, sent_at) VALUES (?, ?, ?, ?)`,
        r.TaskID, r.Tag, string(r.Kind), d.now())
    if err != nil { return fmt.Errorf("mark reminder sent: %w", err) }
    return nil
}
