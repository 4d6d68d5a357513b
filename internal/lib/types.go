package lib

import (
    "context"

    tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

    "github.com/hihikaAAa/task-assist-bot/internal/model"
)

// SessionStore holds one ChatSession per chat. Get never returns nil for a
// nil error: an unknown chat gets a fresh main-menu session.
type SessionStore interface {
    Get(ctx context.Context, chatID int64) (*model.ChatSession, error)
    Set(ctx context.Context, chatID int64, sess *model.ChatSession) error
    Clear(ctx context.Context, chatID int64) error
}

// DataStore is the persistent store of users, skills and tasks.
// Lookups of missing rows return model.ErrNotFound.
type DataStore interface {
    GetUserByTag(ctx context.Context, tag string) (*model.User, error)
    GetUserByChat(ctx context.Context, chatID int64) (*model.User, error)
    BindChat(ctx context.Context, tag string, chatID int64) error
    ListEmployees(ctx context.Context) ([]*model.User, error)
    EmployeeLoad(ctx context.Context) (map[string]int, error)
    EmployeeSkills(ctx context.Context) (map[string][]model.Skill, error)

    CreateTask(ctx context.Context, t *model.Task) (string, error)
    GetTask(ctx context.Context, id string) (*model.Task, error)
    ListTasks(ctx context.Context) ([]*model.Task, error)
    ListTasksForTag(ctx context.Context, tag string) ([]*model.Task, error)
    UpdateAssigneeStatus(ctx context.Context, taskID, tag string, status model.TaskStatus) (bool, error)
}

// Oracle is a single-shot text completion service.
type Oracle interface {
    Complete(ctx context.Context, prompt string) (string, error)
}

// Messenger is the outbound side of the chat transport.
type Messenger interface {
    SendText(ctx context.Context, chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup, parseMode string) (int, error)
    DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

type TextEvent struct {
    ChatID    int64
    MessageID int
    Text      string
}

type ButtonEvent struct {
    ChatID    int64
    MessageID int
    Data      string
}
