package lib

import (
    "context"
    "errors"
    "strings"
    "testing"
    "time"

    "github.com/hihikaAAa/task-assist-bot/internal/model"
)

type fakeReminderStore struct {
    due    []model.Reminder
    marked []model.Reminder
    before time.Duration
}

func (s *fakeReminderStore) DueReminders(_ context.Context, _ time.Time, before time.Duration) ([]model.Reminder, error) {
    s.before = before
    var out []model.Reminder
    for _, r := range s.due {
        sent := false
        for _, m := range s.marked {
            if m == r { sent = true }
        }
        if !sent { out = append(out, r) }
    }
    return out, nil
}

func (s *fakeReminderStore) MarkReminderSent(_ context.Context, r model.Reminder) error {
    s.marked = append(s.marked, r)
    return nil
}

type flakyMessenger struct {
    *fakeMessenger
    failChat int64
}

func (f *flakyMessenger) SendText(ctx context.Context, chatID int64, text string, kb *keyboard, parseMode string) (int, error) {
    if chatID == f.failChat { return 0, errors.New("bot was blocked by the user") }
    return f.fakeMessenger.SendText(ctx, chatID, text, kb, parseMode)
}

func TestReminderTick(t *testing.T) {
    deadline := time.Date(2025, 5, 2, 9, 0, 0, 0, time.UTC)
    store := &fakeReminderStore{due: []model.Reminder{
        {TaskID: "t1", Title: "Отчёт", Deadline: deadline, Tag: "ivan", ChatID: 2, Kind: model.ReminderBefore},
        {TaskID: "t2", Title: "Релиз", Deadline: deadline.Add(-48 * time.Hour), Tag: "ivan", ChatID: 2, Kind: model.ReminderOverdue},
        {TaskID: "t1", Title: "Отчёт", Deadline: deadline, Tag: "petr", ChatID: 3, Kind: model.ReminderBefore},
    }}
    out := &flakyMessenger{fakeMessenger: newFakeMessenger(), failChat: 3}
    rw := &ReminderWorker{Store: store, Out: out, Log: quietLog(), TZ: time.UTC, Before: 6 * time.Hour, Now: func() time.Time { return testNow }}

    n, err := rw.Tick(context.Background())
    if err != nil || n != 2 {
        t.Fatalf("tick = %d, %v", n, err)
    }
    if store.before != 6*time.Hour {
        t.Errorf("window = %v", store.before)
    }
    msgs := out.to(2)
    if len(msgs) != 2 || !strings.Contains(msgs[0].text, "скоро дедлайн") || !strings.Contains(msgs[1].text, "Просрочена") {
        t.Fatalf("messages = %+v", msgs)
    }
    if !msgs[0].hasButton("tasks") || !strings.Contains(msgs[0].text, "02.05.2025 09:00") {
        t.Errorf("reminder = %+v", msgs[0])
    }

    // Delivered reminders are not repeated; the failed one is retried.
    out.failChat = 0
    n, err = rw.Tick(context.Background())
    if err != nil || n != 1 || len(out.to(3)) != 1 {
        t.Fatalf("second tick = %d, %v, petr got %d", n, err, len(out.to(3)))
    }
}
