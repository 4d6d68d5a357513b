package lib

import (
    "context"
    "fmt"
    "time"

    tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
    "github.com/sirupsen/logrus"

    "github.com/hihikaAAa/task-assist-bot/internal/model"
)

type ReminderStore interface {
    DueReminders(ctx context.Context, now time.Time, before time.Duration) ([]model.Reminder, error)
    MarkReminderSent(ctx context.Context, r model.Reminder) error
}

// ReminderWorker periodically tells assignees about close and missed deadlines.
type ReminderWorker struct {
    Store    ReminderStore
    Out      Messenger
    Log      logrus.FieldLogger
    TZ       *time.Location
    Interval time.Duration
    Before   time.Duration
    Now      func() time.Time
}

func (rw *ReminderWorker) Run(ctx context.Context) {
    ticker := time.NewTicker(rw.Interval)
    defer ticker.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            if n, err := rw.Tick(ctx); err != nil {
                rw.Log.WithError(err).Warn("reminder tick")
            } else if n > 0 {
                rw.Log.WithField("sent", n).Debug("reminders sent")
            }
        }
    }
}

// Tick sends every due reminder once and returns how many were delivered.
// A reminder that fails to send stays due for the next tick.
func (rw *ReminderWorker) Tick(ctx context.Context) (int, error) {
    now := time.Now
    if rw.Now != nil { now = rw.Now }
    due, err := rw.Store.DueReminders(ctx, now(), rw.Before)
    if err != nil { return 0, err }

    kb := tgbotapi.NewInlineKeyboardMarkup(
        tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📋 Задачи", "tasks")),
    )
    sent := 0
    for _, r := range due {
        log := rw.Log.WithFields(logrus.Fields{"chat_id": r.ChatID, "task_id": r.TaskID, "kind": r.Kind})
        if _, err := rw.Out.SendText(ctx, r.ChatID, formatReminder(r, rw.TZ), &kb, ""); err != nil {
            log.WithError(err).Warn("send reminder")
            continue
        }
        if err := rw.Store.MarkReminderSent(ctx, r); err != nil {
            log.WithError(err).Warn("mark reminder")
            continue
        }
        sent++
    }
    return sent, nil
}

func formatReminder(r model.Reminder, loc *time.Location) string {
    if loc == nil { loc = time.Local }
    at := r.Deadline.In(loc).Format("02.01.2006 15:04")
    if r.Kind == model.ReminderOverdue {
        return fmt.Sprintf("⛔ Просрочена задача «%s» (дедлайн %s). Обновите статус.", r.Title, at)
    }
    return fmt.Sprintf("⏰ Напоминание: скоро дедлайн по задаче «%s» — %s.", r.Title, at)
}
