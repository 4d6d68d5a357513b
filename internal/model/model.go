package model

import (
    "errors"
    "strings"
    "time"
)

var ErrNotFound = errors.New("not found")

type Role string

const (
    RoleManager  Role = "manager"
    RoleEmployee Role = "employee"
)

type User struct {
    Tag       string // normalized, no leading @
    FullName  string
    Role      Role
    Bio       string
    BirthDate time.Time
    ChatID    int64
}

// Age in full years at now; zero when the birth date is unknown.
func (u *User) Age(now time.Time) int {
    if u.BirthDate.IsZero() {
        return 0
    }
    b := u.BirthDate
    age := now.Year() - b.Year()
    if now.Month() < b.Month() || (now.Month() == b.Month() && now.Day() < b.Day()) {
        age--
    }
    return age
}

func (u *User) DisplayTag() string { return DisplayTag(u.Tag) }

type Skill struct {
    Name  string
    Years int
}

type TaskStatus string

const (
    StatusWaiting    TaskStatus = "waiting"
    StatusInProgress TaskStatus = "in_progress"
    StatusCompleted  TaskStatus = "completed"
    StatusCancelled  TaskStatus = "cancelled"
)

func ParseTaskStatus(s string) TaskStatus {
    switch TaskStatus(strings.ToLower(strings.TrimSpace(s))) {
    case StatusInProgress:
        return StatusInProgress
    case StatusCompleted:
        return StatusCompleted
    case StatusCancelled:
        return StatusCancelled
    }
    return StatusWaiting
}

type Task struct {
    ID           string
    Title        string
    Description  string
    Deadline     time.Time
    Status       TaskStatus
    AssignedTags []string
}

// IsAssigned reports whether tag (in any spelling) is among the task's assignees.
func (t *Task) IsAssigned(tag string) bool {
    n := NormalizeTag(tag)
    if n == "" {
        return false
    }
    for _, a := range t.AssignedTags {
        if NormalizeTag(a) == n {
            return true
        }
    }
    return false
}

// AggregateStatus folds per-assignee statuses into one task status:
// in_progress if anyone is working, completed if everyone finished,
// cancelled if anyone cancelled, waiting otherwise.
func AggregateStatus(statuses []TaskStatus) TaskStatus {
    if len(statuses) == 0 {
        return StatusWaiting
    }
    allDone := true
    cancelled := false
    for _, s := range statuses {
        switch s {
        case StatusInProgress:
            return StatusInProgress
        case StatusCancelled:
            cancelled = true
        }
        if s != StatusCompleted {
            allDone = false
        }
    }
    if allDone {
        return StatusCompleted
    }
    if cancelled {
        return StatusCancelled
    }
    return StatusWaiting
}

// NormalizeTag lower-cases a tag and strips surrounding space and a leading @.
func NormalizeTag(tag string) string {
    s := strings.TrimSpace(tag)
    s = strings.TrimPrefix(s, "@")
    return strings.ToLower(strings.TrimSpace(s))
}

func DisplayTag(tag string) string {
    n := NormalizeTag(tag)
    if n == "" {
        return ""
    }
    return "@" + n
}

type ReminderKind string

const (
    ReminderBefore  ReminderKind = "before"
    ReminderOverdue ReminderKind = "overdue"
)

// Reminder is one pending deadline notice for one assignee.
type Reminder struct {
    TaskID   string
    Title    string
    Deadline time.Time
    Tag      string
    ChatID   int64
    Kind     ReminderKind
}
