package lib

import (
    "context"
    "fmt"
    "html"
    "strings"
    "time"

    tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

    "github.com/hihikaAAa/task-assist-bot/internal/model"
)

type keyboard = tgbotapi.InlineKeyboardMarkup

func homeRow() []tgbotapi.InlineKeyboardButton {
    return tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🏠 Главное меню", "main_menu"))
}

func backRow() []tgbotapi.InlineKeyboardButton {
    return tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", "back"))
}

func homeKeyboard() *keyboard {
    kb := tgbotapi.NewInlineKeyboardMarkup(homeRow())
    return &kb
}

func homeBackKeyboard() *keyboard {
    kb := tgbotapi.NewInlineKeyboardMarkup(homeRow(), backRow())
    return &kb
}

func taskActionKeyboard(taskID string) keyboard {
    return tgbotapi.NewInlineKeyboardMarkup(
        tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("▶️ Взять в работу", taskTakeData(taskID))),
    )
}

func roleTitle(r model.Role) string {
    if r == model.RoleManager { return "Начальник" }
    return "Сотрудник"
}

func statusIcon(s model.TaskStatus) string {
    switch s {
    case model.StatusInProgress:
        return "🟡"
    case model.StatusCompleted:
        return "🟢"
    case model.StatusCancelled:
        return "🔴"
    }
    return "⚪"
}

func statusTitle(s model.TaskStatus) string {
    switch s {
    case model.StatusInProgress:
        return "🟡 В работе"
    case model.StatusCompleted:
        return "🟢 Завершена"
    case model.StatusCancelled:
        return "🔴 Отменена"
    }
    return "⚪ В ожидании"
}

func mainMenuKeyboard(role model.Role) keyboard {
    btn := func(text, data string) []tgbotapi.InlineKeyboardButton {
        return tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(text, data))
    }
    var rows [][]tgbotapi.InlineKeyboardButton
    if role == model.RoleManager {
        rows = append(rows,
            btn("👥 Работники", "employees"),
            btn("📋 Задачи", "tasks"),
            btn("👤 Мой профиль", "my_profile"),
            btn("➕ Добавить задачу", "add_task"),
            btn("🤖 Подобрать исполнителя", "ai_pick"),
        )
    } else {
        rows = append(rows, btn("📋 Задачи", "tasks"), btn("👤 Мой профиль", "my_profile"))
    }
    rows = append(rows, btn("🏠 На главную", "main_menu"))
    return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) showMainMenu(ctx context.Context, t *turn, notice string) {
    role := model.RoleEmployee
    if t.user != nil { role = t.user.Role }
    kb := mainMenuKeyboard(role)
    b.render(ctx, t, withNotice(notice, "Главное меню:"), &kb)
}

func (b *Bot) showEmployees(ctx context.Context, t *turn) {
    r := b.loadStaff(ctx, t, false)
    if len(r.users) == 0 {
        b.render(ctx, t, "Сотрудники не найдены.", homeKeyboard())
        return
    }
    var sb strings.Builder
    sb.WriteString("👥 Список сотрудников (нажмите «📌 Навыки»):\n\n")
    var rows [][]tgbotapi.InlineKeyboardButton
    for _, u := range r.users {
        fmt.Fprintf(&sb, "• %s — %d активн. задач(и) (%s)\n", u.FullName, r.load[u.Tag], u.DisplayTag())
        rows = append(rows, tgbotapi.NewInlineKeyboardRow(
            tgbotapi.NewInlineKeyboardButtonData("📌 Навыки: "+u.FullName, skillsData(u.Tag)),
        ))
    }
    rows = append(rows, homeRow(), backRow())
    kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
    b.render(ctx, t, sb.String(), &kb)
}

func (b *Bot) showSkills(ctx context.Context, t *turn, tag string) {
    skills, err := b.Store.EmployeeSkills(ctx)
    if err != nil {
        t.log.WithError(err).Warn("employee skills")
    }
    var sb strings.Builder
    fmt.Fprintf(&sb, "📌 Навыки сотрудника %s\n\n", model.DisplayTag(tag))
    list := skills[tag]
    if len(list) == 0 {
        sb.WriteString("Нет данных о навыках.\n")
    }
    for _, s := range list {
        fmt.Fprintf(&sb, "• %s — %d лет\n", s.Name, s.Years)
    }
    kb := tgbotapi.NewInlineKeyboardMarkup(
        homeRow(),
        tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("👥 К сотрудникам", "employees")),
        backRow(),
    )
    b.render(ctx, t, sb.String(), &kb)
}

// showTasks lists every task for a manager and the user's own assignments
// otherwise. Employees get take/done buttons matching their own status; take
// is offered only while the whole task is still waiting.
func (b *Bot) showTasks(ctx context.Context, t *turn, notice string) {
    manager := b.isManager(t)
    var (
        tasks []*model.Task
        err   error
    )
    if manager {
        tasks, err = b.Store.ListTasks(ctx)
    } else {
        tasks, err = b.Store.ListTasksForTag(ctx, t.user.Tag)
    }
    if err != nil {
        t.log.WithError(err).Error("list tasks")
        tasks = nil
    }

    var sb strings.Builder
    if notice != "" { sb.WriteString(html.EscapeString(notice) + "\n\n") }
    if len(tasks) == 0 {
        sb.WriteString("Задачи не найдены.")
        b.renderScreen(ctx, t, Screen{Text: sb.String(), Keyboard: homeBackKeyboard(), ParseMode: tgbotapi.ModeHTML})
        return
    }

    names := map[string]string{}
    if emps, err := b.Store.ListEmployees(ctx); err == nil {
        for _, u := range emps { names[u.Tag] = u.FullName }
    } else {
        t.log.WithError(err).Warn("list employees")
    }

    now := b.now()
    var rows [][]tgbotapi.InlineKeyboardButton
    sb.WriteString("<b>📋 Список задач</b>\n\n")
    for _, task := range tasks {
        sb.WriteString("<b>" + html.EscapeString(task.Title) + "</b>\n")
        if len(task.AssignedTags) > 0 {
            who := make([]string, 0, len(task.AssignedTags))
            for _, tag := range task.AssignedTags {
                if n, ok := names[tag]; ok {
                    who = append(who, n)
                    continue
                }
                who = append(who, model.DisplayTag(tag))
            }
            sb.WriteString("👥 " + html.EscapeString(strings.Join(who, ", ")) + "\n")
        }
        sb.WriteString(timeLeft(task, now, b.TZ) + "\n")
        sb.WriteString("📊 Статус: " + statusTitle(task.Status) + "\n")
        if task.Description != "" {
            sb.WriteString("📝 " + html.EscapeString(task.Description) + "\n")
        }
        sb.WriteString("────────────\n")

        if manager || !task.IsAssigned(t.user.Tag) { continue }
        switch task.Status {
        case model.StatusWaiting:
            if !b.takeable(ctx, t, task.ID) { continue }
            rows = append(rows, tgbotapi.NewInlineKeyboardRow(
                tgbotapi.NewInlineKeyboardButtonData("▶️ Взять в работу: "+task.Title, taskTakeData(task.ID))))
        case model.StatusInProgress:
            rows = append(rows, tgbotapi.NewInlineKeyboardRow(
                tgbotapi.NewInlineKeyboardButtonData("✅ Завершить: "+task.Title, taskDoneData(task.ID))))
        }
    }
    rows = append(rows, homeRow(), backRow())
    kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
    b.renderScreen(ctx, t, Screen{Text: sb.String(), Keyboard: &kb, ParseMode: tgbotapi.ModeHTML})
}

// takeable reports whether a take tap on the task would pass the status gate.
func (b *Bot) takeable(ctx context.Context, t *turn, taskID string) bool {
    full, err := b.Store.GetTask(ctx, taskID)
    if err != nil {
        t.log.WithError(err).Warn("get task")
        return false
    }
    return full.Status == model.StatusWaiting
}

func timeLeft(task *model.Task, now time.Time, loc *time.Location) string {
    switch task.Status {
    case model.StatusCompleted, model.StatusCancelled:
        return "⏳ Дедлайн был: " + task.Deadline.In(loc).Format("02.01.2006 15:04")
    }
    left := task.Deadline.Sub(now)
    if left <= 0 {
        return "🔴 <b>ПРОСРОЧЕНО!</b>"
    }
    return fmt.Sprintf("⏳ Осталось: %d дн. %d ч.", int(left.Hours())/24, int(left.Hours())%24)
}

func (b *Bot) showProfile(ctx context.Context, t *turn) {
    u := t.user
    var sb strings.Builder
    sb.WriteString("👤 Мой профиль\n\n")
    fmt.Fprintf(&sb, "📝 ФИО: %s\n", u.FullName)
    if age := u.Age(b.nowIn()); age > 0 {
        fmt.Fprintf(&sb, "🎂 Возраст: %d\n", age)
    }
    fmt.Fprintf(&sb, "📱 Telegram: %s\n", u.DisplayTag())
    fmt.Fprintf(&sb, "💼 Роль: %s\n", roleTitle(u.Role))
    if u.Bio != "" {
        fmt.Fprintf(&sb, "📋 Обо мне: %s\n", u.Bio)
    }
    sb.WriteString("\n")

    tasks, err := b.Store.ListTasksForTag(ctx, u.Tag)
    if err != nil {
        t.log.WithError(err).Warn("list tasks for tag")
    }
    if len(tasks) == 0 {
        sb.WriteString("📋 У вас пока нет задач.\n")
    } else {
        sb.WriteString("📋 Мои задачи:\n")
        for _, task := range tasks {
            fmt.Fprintf(&sb, "%s %s\n", statusIcon(task.Status), task.Title)
        }
    }
    b.render(ctx, t, sb.String(), homeBackKeyboard())
}
