package lib

import (
    "fmt"
    "strings"
    "time"

    "github.com/hihikaAAa/task-assist-bot/internal/model"
)

type ActionKind int

const (
    ActUnknown ActionKind = iota
    ActNoop
    ActMainMenu
    ActBack
    ActEmployees
    ActTasks
    ActMyProfile
    ActAddTask
    ActAIPick
    ActSkills
    ActTaskTake
    ActTaskDone
    ActCalMonth
    ActCalDate
    ActCalTime
    ActCalManual
    ActPickChooseAI
    ActPickChooseManual
    ActPickToggle
    ActPickManual
    ActPickRefresh
    ActPickDone
)

// Action is a decoded button payload.
type Action struct {
    Kind ActionKind
    // Arg carries a normalized employee tag (skills, pick_toggle) or a task id.
    Arg string
    // Year/Month for cal:, Year/Month/Day for cald:.
    Year  int
    Month time.Month
    Day   int
    // Hour/Minute for calt:.
    Hour   int
    Minute int
}

var fixedActions = map[string]ActionKind{
    "noop":                    ActNoop,
    "main_menu":               ActMainMenu,
    "back":                    ActBack,
    "employees":               ActEmployees,
    "tasks":                   ActTasks,
    "my_profile":              ActMyProfile,
    "add_task":                ActAddTask,
    "ai_pick":                 ActAIPick,
    "caltime_manual":          ActCalManual,
    "pick_choose_mode_ai":     ActPickChooseAI,
    "pick_choose_mode_manual": ActPickChooseManual,
    "pick_manual":             ActPickManual,
    "pick_ai_refresh":         ActPickRefresh,
    "pick_done":               ActPickDone,
}

// ParseAction decodes a raw callback payload. Unknown payloads decode to
// ActUnknown without error; known prefixes with a malformed argument fail.
func ParseAction(data string) (Action, error) {
    data = strings.TrimSpace(data)
    if k, ok := fixedActions[data]; ok {
        return Action{Kind: k}, nil
    }
    prefix, arg, ok := strings.Cut(data, ":")
    if !ok {
        return Action{Kind: ActUnknown}, nil
    }
    arg = strings.TrimSpace(arg)
    switch prefix {
    case "skills", "pick_toggle":
        tag := model.NormalizeTag(arg)
        if tag == "" {
            return Action{}, fmt.Errorf("%s: empty tag", prefix)
        }
        kind := ActSkills
        if prefix == "pick_toggle" {
            kind = ActPickToggle
        }
        return Action{Kind: kind, Arg: tag}, nil
    case "task_take", "task_done":
        if arg == "" {
            return Action{}, fmt.Errorf("%s: empty task id", prefix)
        }
        kind := ActTaskTake
        if prefix == "task_done" {
            kind = ActTaskDone
        }
        return Action{Kind: kind, Arg: arg}, nil
    case "cal":
        t, err := time.Parse("2006-01", arg)
        if err != nil {
            return Action{}, fmt.Errorf("cal: %w", err)
        }
        return Action{Kind: ActCalMonth, Year: t.Year(), Month: t.Month()}, nil
    case "cald":
        t, err := time.Parse("2006-01-02", arg)
        if err != nil {
            return Action{}, fmt.Errorf("cald: %w", err)
        }
        return Action{Kind: ActCalDate, Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
    case "calt":
        h, m, err := ParseClock(arg)
        if err != nil {
            return Action{}, fmt.Errorf("calt: %w", err)
        }
        return Action{Kind: ActCalTime, Hour: h, Minute: m}, nil
    }
    return Action{Kind: ActUnknown}, nil
}

func calMonthData(year int, month time.Month) string {
    return fmt.Sprintf("cal:%04d-%02d", year, int(month))
}

func calDateData(d time.Time) string { return "cald:" + d.Format("2006-01-02") }

func calTimeData(h, m int) string { return fmt.Sprintf("calt:%02d:%02d", h, m) }

func toggleData(tag string) string { return "pick_toggle:" + tag }

func skillsData(tag string) string { return "skills:" + tag }

func taskTakeData(id string) string { return "task_take:" + id }

func taskDoneData(id string) string { return "task_done:" + id }
