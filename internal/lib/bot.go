package lib

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/sirupsen/logrus"

    "github.com/hihikaAAa/task-assist-bot/internal/model"
)

type Bot struct {
    Sessions  SessionStore
    Store     DataStore
    Oracle    Oracle
    View      *Presenter
    Log       logrus.FieldLogger
    TZ        *time.Location
    AITimeout time.Duration
    // TurnTimeout bounds one turn, which runs detached from the caller's cancellation.
    TurnTimeout time.Duration

    now   func() time.Time
    locks *chatLocks
}

type Deps struct {
    Sessions         SessionStore
    Store            DataStore
    Oracle           Oracle
    Out              Messenger
    Log              logrus.FieldLogger
    TZ               *time.Location
    AITimeout        time.Duration
    TurnTimeout      time.Duration
    KeepBotMessages  int
    KeepUserMessages int
    Now              func() time.Time
}

func NewBot(d Deps) *Bot {
    if d.Sessions == nil { d.Sessions = NewMemorySessions() }
    if d.Log == nil { d.Log = logrus.StandardLogger() }
    if d.TZ == nil { d.TZ = time.Local }
    if d.AITimeout <= 0 { d.AITimeout = 2 * time.Minute }
    if d.TurnTimeout <= 0 { d.TurnTimeout = d.AITimeout + time.Minute }
    if d.Now == nil { d.Now = time.Now }
    return &Bot{
        Sessions:    d.Sessions,
        Store:       d.Store,
        Oracle:      d.Oracle,
        View:        &Presenter{Out: d.Out, KeepBot: d.KeepBotMessages, KeepUser: d.KeepUserMessages, Log: d.Log},
        Log:         d.Log,
        TZ:          d.TZ,
        AITimeout:   d.AITimeout,
        TurnTimeout: d.TurnTimeout,
        now:         d.Now,
        locks:       newChatLocks(),
    }
}

// turn is one unit of work for one chat, executed under that chat's lock.
type turn struct {
    chatID int64
    sess   *model.ChatSession
    user   *model.User
    log    logrus.FieldLogger
}

func (b *Bot) isManager(t *turn) bool { return t.user != nil && t.user.Role == model.RoleManager }

func (b *Bot) nowIn() time.Time { return b.now().In(b.TZ) }

// withTurn serializes work per chat: load session, run fn, save session.
// A started turn is finished even if ctx is cancelled, so shutdown never
// drops a transition that was already shown to the user.
func (b *Bot) withTurn(ctx context.Context, chatID int64, log logrus.FieldLogger, fn func(t *turn)) error {
    ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.TurnTimeout)
    defer cancel()
    unlock := b.locks.lock(chatID)
    defer unlock()

    sess, err := b.Sessions.Get(ctx, chatID)
    if err != nil {
        return fmt.Errorf("load session %d: %w", chatID, err)
    }
    t := &turn{chatID: chatID, sess: sess, log: log}
    fn(t)
    if err := b.Sessions.Set(ctx, chatID, t.sess); err != nil {
        return fmt.Errorf("save session %d: %w", chatID, err)
    }
    return nil
}

// resolveUser finds the user behind the chat, from the session or from the chat binding.
func (b *Bot) resolveUser(ctx context.Context, t *turn) {
    if t.sess.UserTag != "" {
        u, err := b.Store.GetUserByTag(ctx, t.sess.UserTag)
        if err == nil {
            t.user = u
            return
        }
        if !errors.Is(err, model.ErrNotFound) {
            t.log.WithError(err).Warn("get user by tag")
            return
        }
        t.sess.UserTag = ""
    }
    u, err := b.Store.GetUserByChat(ctx, t.chatID)
    if err != nil {
        if !errors.Is(err, model.ErrNotFound) {
            t.log.WithError(err).Warn("get user by chat")
        }
        return
    }
    t.user = u
    t.sess.UserTag = u.Tag
}

func (b *Bot) HandleText(ctx context.Context, ev TextEvent) error {
    log := b.Log.WithFields(logrus.Fields{"chat_id": ev.ChatID, "kind": "text"})
    return b.withTurn(ctx, ev.ChatID, log, func(t *turn) {
        b.View.TrackInbound(t.sess, ev.MessageID)
        text := strings.TrimSpace(ev.Text)

        if isCommand(text, "start") {
            t.sess.Reset()
            t.sess.UserTag = ""
            t.sess.State = model.StateAwaitingTag
            b.render(ctx, t, "Добро пожаловать в Task Manager Bot!\n\nВведите ваш Telegram тег (например, @username):", nil)
            return
        }
        if t.sess.State == model.StateAwaitingTag && !isMenuCommand(text) {
            b.onTag(ctx, t, text)
            return
        }

        b.resolveUser(ctx, t)
        if t.user == nil {
            b.render(ctx, t, "Пользователь не найден. Нажмите /start.", nil)
            return
        }
        if isMenuCommand(text) {
            t.sess.Reset()
            b.showMainMenu(ctx, t, "")
            return
        }

        switch t.sess.State {
        case model.StateAiAwaitDescription:
            b.onAIStandalone(ctx, t, text)
        case model.StateAddTitle:
            b.onTitle(ctx, t, text)
        case model.StateAddDescription:
            b.onDescription(ctx, t, text)
        case model.StateDeadlineCalendar:
            b.onDeadlineText(ctx, t, text)
        case model.StateDeadlineTimePick, model.StateDeadlineManualText:
            b.onClockText(ctx, t, text)
        default:
            t.log.WithField("state", t.sess.State).Debug("text ignored")
        }
    })
}

func (b *Bot) HandleButton(ctx context.Context, ev ButtonEvent) error {
    log := b.Log.WithFields(logrus.Fields{"chat_id": ev.ChatID, "kind": "button", "data": ev.Data})
    return b.withTurn(ctx, ev.ChatID, log, func(t *turn) {
        b.View.TrackOutbound(t.sess, ev.MessageID)

        act, err := ParseAction(ev.Data)
        if err != nil {
            t.log.WithError(err).Warn("bad callback payload")
            return
        }
        if act.Kind == ActNoop || act.Kind == ActUnknown {
            return
        }

        b.resolveUser(ctx, t)
        if t.user == nil {
            b.render(ctx, t, "Пользователь не найден. Нажмите /start.", nil)
            return
        }
        b.dispatch(ctx, t, act)
    })
}

func (b *Bot) dispatch(ctx context.Context, t *turn, act Action) {
    switch act.Kind {
    case ActTaskTake, ActTaskDone:
        b.onTaskStatus(ctx, t, act)
    case ActSkills:
        t.sess.Reset()
        b.showSkills(ctx, t, act.Arg)

    case ActCalMonth:
        if b.wizardStep(ctx, t, model.StateDeadlineCalendar, model.StateDeadlineTimePick, model.StateDeadlineManualText) {
            t.sess.State = model.StateDeadlineCalendar
            b.showCalendar(ctx, t, act.Year, act.Month, "")
        }
    case ActCalDate:
        if b.wizardStep(ctx, t, model.StateDeadlineCalendar) {
            b.onCalendarDate(ctx, t, act)
        }
    case ActCalTime:
        if b.wizardStep(ctx, t, model.StateDeadlineTimePick, model.StateDeadlineCalendar) {
            b.onPresetTime(ctx, t, act.Hour, act.Minute)
        }
    case ActCalManual:
        if b.wizardStep(ctx, t, model.StateDeadlineTimePick) {
            t.sess.State = model.StateDeadlineManualText
            b.render(ctx, t, "Введите время в формате ЧЧ:ММ (например, 18:30):", homeKeyboard())
        }

    case ActPickChooseAI:
        if b.wizardStep(ctx, t, model.StateAddPickMode, model.StateAddPickEmployees) {
            b.showPicker(ctx, t, model.PickAI, false, "")
        }
    case ActPickChooseManual, ActPickManual:
        if b.wizardStep(ctx, t, model.StateAddPickMode, model.StateAddPickEmployees) {
            b.showPicker(ctx, t, model.PickManual, false, "")
        }
    case ActPickRefresh:
        if b.wizardStep(ctx, t, model.StateAddPickEmployees) {
            b.showPicker(ctx, t, model.PickAI, true, "")
        }
    case ActPickToggle:
        if b.wizardStep(ctx, t, model.StateAddPickEmployees) {
            t.sess.Draft.Toggle(act.Arg)
            b.showPicker(ctx, t, t.sess.PickMode, false, "")
        }
    case ActPickDone:
        if b.wizardStep(ctx, t, model.StateAddPickEmployees) {
            b.onPickDone(ctx, t)
        }

    case ActMainMenu, ActBack:
        t.sess.Reset()
        b.showMainMenu(ctx, t, "")
    case ActEmployees:
        t.sess.Reset()
        b.showEmployees(ctx, t)
    case ActTasks:
        t.sess.Reset()
        b.showTasks(ctx, t, "")
    case ActMyProfile:
        t.sess.Reset()
        b.showProfile(ctx, t)
    case ActAddTask:
        t.sess.Reset()
        if !b.isManager(t) {
            b.render(ctx, t, "Добавлять задачи может только руководитель.", homeKeyboard())
            return
        }
        t.sess.Draft = model.NewDraftTask()
        t.sess.State = model.StateAddTitle
        b.render(ctx, t, "Введите название задачи:", homeKeyboard())
    case ActAIPick:
        t.sess.Reset()
        if !b.isManager(t) {
            b.render(ctx, t, "Подбор исполнителей доступен только руководителю.", homeKeyboard())
            return
        }
        t.sess.State = model.StateAiAwaitDescription
        b.render(ctx, t, "📝 Опишите задачу (1–3 предложения). Я подберу топ-3 исполнителей.", homeKeyboard())
    }
}

// wizardStep reports whether a wizard button may act now. A tap without a
// live draft renders "draft not found"; a tap from an earlier step re-renders
// the current step.
func (b *Bot) wizardStep(ctx context.Context, t *turn, allowed ...model.State) bool {
    if t.sess.Draft == nil || !t.sess.State.IsWizard() {
        t.sess.Reset()
        b.render(ctx, t, "Черновик задачи не найден. Начните заново из главного меню.", homeKeyboard())
        return false
    }
    for _, s := range allowed {
        if t.sess.State == s {
            return true
        }
    }
    t.log.WithField("state", t.sess.State).Info("stale wizard button")
    b.showCurrentStep(ctx, t, "Эта кнопка уже неактуальна.")
    return false
}

func (b *Bot) showCurrentStep(ctx context.Context, t *turn, notice string) {
    switch t.sess.State {
    case model.StateAddTitle:
        b.render(ctx, t, withNotice(notice, "Введите название задачи:"), homeKeyboard())
    case model.StateAddDescription:
        b.render(ctx, t, withNotice(notice, "Введите описание задачи (что нужно сделать, результат, требования):"), homeKeyboard())
    case model.StateAddPickMode:
        b.showPickMode(ctx, t, notice)
    case model.StateAddPickEmployees:
        b.showPicker(ctx, t, t.sess.PickMode, false, notice)
    case model.StateDeadlineTimePick:
        if t.sess.DraftDeadlineDate != nil {
            b.showTimePicker(ctx, t, *t.sess.DraftDeadlineDate, notice)
            return
        }
        t.sess.State = model.StateDeadlineCalendar
        b.showCalendarNow(ctx, t, notice)
    case model.StateDeadlineManualText:
        b.render(ctx, t, withNotice(notice, "Введите время в формате ЧЧ:ММ (например, 18:30):"), homeKeyboard())
    default:
        b.showCalendarNow(ctx, t, notice)
    }
}

func (b *Bot) onTag(ctx context.Context, t *turn, text string) {
    tag := model.NormalizeTag(text)
    if tag == "" {
        b.render(ctx, t, "Введите ваш Telegram тег (например, @username):", nil)
        return
    }
    u, err := b.Store.GetUserByTag(ctx, tag)
    if err != nil {
        if !errors.Is(err, model.ErrNotFound) {
            t.log.WithError(err).Error("get user by tag")
        }
        b.render(ctx, t, "Пользователь не найден. Пожалуйста, проверьте правильность тега и попробуйте снова.", nil)
        return
    }
    if err := b.Store.BindChat(ctx, u.Tag, t.chatID); err != nil {
        t.log.WithError(err).Warn("bind chat")
    }
    t.user = u
    t.sess.Reset()
    t.sess.UserTag = u.Tag
    t.log.WithField("tag", u.Tag).Info("user logged in")
    b.showMainMenu(ctx, t, fmt.Sprintf("Добро пожаловать, %s!\nРоль: %s", u.FullName, roleTitle(u.Role)))
}

func (b *Bot) onTitle(ctx context.Context, t *turn, text string) {
    if t.sess.Draft == nil {
        b.draftNotFound(ctx, t)
        return
    }
    if text == "" {
        b.render(ctx, t, "Название не может быть пустым. Введите название задачи:", homeKeyboard())
        return
    }
    t.sess.Draft.Title = text
    t.sess.State = model.StateAddDescription
    b.render(ctx, t, "Введите описание задачи (что нужно сделать, результат, требования):", homeKeyboard())
}

func (b *Bot) onDescription(ctx context.Context, t *turn, text string) {
    if t.sess.Draft == nil {
        b.draftNotFound(ctx, t)
        return
    }
    if text == "" {
        b.render(ctx, t, "Описание не может быть пустым. Введите описание задачи:", homeKeyboard())
        return
    }
    t.sess.Draft.Description = text
    t.sess.Draft.AssignedTags = []string{}
    t.sess.AIShortlist = nil
    t.sess.AIFallback = false
    t.sess.State = model.StateAddPickMode
    b.showPickMode(ctx, t, "")
}

func (b *Bot) draftNotFound(ctx context.Context, t *turn) {
    t.sess.Reset()
    b.render(ctx, t, "Черновик задачи не найден. Начните заново из главного меню.", homeKeyboard())
}

// finalize validates the deadline and persists the draft. Only here does a
// draft reach the data store.
func (b *Bot) finalize(ctx context.Context, t *turn, deadline time.Time) {
    d := t.sess.Draft
    if d == nil {
        b.draftNotFound(ctx, t)
        return
    }
    if deadline.Before(b.now()) {
        t.sess.State = model.StateDeadlineCalendar
        t.sess.DraftDeadlineDate = nil
        b.showCalendarNow(ctx, t, "Дедлайн не может быть в прошлом. Выберите другую дату/время.")
        return
    }
    if len(d.AssignedTags) == 0 {
        t.sess.State = model.StateAddPickEmployees
        b.showPicker(ctx, t, t.sess.PickMode, false, "❗ Сначала выберите хотя бы одного исполнителя.")
        return
    }

    task := &model.Task{
        Title:        d.Title,
        Description:  d.Description,
        Deadline:     deadline,
        Status:       model.StatusWaiting,
        AssignedTags: append([]string(nil), d.AssignedTags...),
    }
    id, err := b.Store.CreateTask(ctx, task)
    if err != nil {
        t.log.WithError(err).Error("create task")
        t.sess.State = model.StateDeadlineCalendar
        t.sess.DraftDeadlineDate = nil
        b.showCalendarNow(ctx, t, "Не удалось сохранить задачу. Попробуйте выбрать дедлайн ещё раз.")
        return
    }
    task.ID = id
    t.log.WithFields(logrus.Fields{"task_id": id, "assignees": task.AssignedTags}).Info("task created")

    t.sess.Reset()
    b.notifyAssignees(ctx, t, task)
    b.showMainMenu(ctx, t, fmt.Sprintf("✅ Задача \"%s\" успешно добавлена!\n⏳ Дедлайн: %s",
        task.Title, deadline.In(b.TZ).Format("02.01.2006 15:04")))
}

func (b *Bot) notifyAssignees(ctx context.Context, t *turn, task *model.Task) {
    for _, tag := range task.AssignedTags {
        u, err := b.Store.GetUserByTag(ctx, tag)
        if err != nil || u.ChatID == 0 || u.ChatID == t.chatID {
            continue
        }
        var text strings.Builder
        fmt.Fprintf(&text, "📌 Новая задача «%s»\n", task.Title)
        if task.Description != "" {
            text.WriteString("\n" + task.Description + "\n")
        }
        text.WriteString("\n⏳ Дедлайн: " + task.Deadline.In(b.TZ).Format("02.01.2006 15:04"))
        kb := taskActionKeyboard(task.ID)
        if err := b.View.Notify(ctx, u.ChatID, Screen{Text: text.String(), Keyboard: &kb}); err != nil {
            t.log.WithError(err).WithField("tag", tag).Warn("notify assignee")
        }
    }
}

func (b *Bot) onTaskStatus(ctx context.Context, t *turn, act Action) {
    take := act.Kind == ActTaskTake
    notice := b.changeTaskStatus(ctx, t, act.Arg, take)
    t.sess.Reset()
    b.showTasks(ctx, t, notice)
}

// changeTaskStatus applies a take/done tap and returns the message to show.
func (b *Bot) changeTaskStatus(ctx context.Context, t *turn, taskID string, take bool) string {
    task, err := b.Store.GetTask(ctx, taskID)
    if errors.Is(err, model.ErrNotFound) {
        return "Задача не найдена."
    }
    if err != nil {
        t.log.WithError(err).Error("get task")
        return "Не удалось загрузить задачу. Попробуйте позже."
    }
    if !task.IsAssigned(t.user.Tag) {
        return "❗ Вы не назначены на эту задачу — действие запрещено."
    }

    from, to := model.StatusInProgress, model.StatusCompleted
    if take {
        from, to = model.StatusWaiting, model.StatusInProgress
    }
    if task.Status != from {
        if take {
            return "Эту задачу нельзя взять в работу (статус уже не «В ожидании»)."
        }
        return "Эту задачу нельзя завершить (она не в статусе «В работе»)."
    }
    ok, err := b.Store.UpdateAssigneeStatus(ctx, task.ID, t.user.Tag, to)
    if err != nil || !ok {
        if err != nil {
            t.log.WithError(err).Error("update assignee status")
        }
        return "Не удалось обновить статус задачи."
    }
    t.log.WithFields(logrus.Fields{"task_id": task.ID, "status": to}).Info("task status changed")
    if take {
        return fmt.Sprintf("✅ Вы взяли задачу «%s» в работу.", task.Title)
    }
    return fmt.Sprintf("🎉 Задача «%s» завершена.", task.Title)
}

func (b *Bot) render(ctx context.Context, t *turn, text string, kb *keyboard) {
    b.renderScreen(ctx, t, Screen{Text: text, Keyboard: kb})
}

func (b *Bot) renderScreen(ctx context.Context, t *turn, sc Screen) {
    if _, err := b.View.Render(ctx, t.chatID, t.sess, sc); err != nil {
        t.log.WithError(err).Error("render")
    }
}

func withNotice(notice, text string) string {
    if notice == "" {
        return text
    }
    return notice + "\n\n" + text
}

func isCommand(text, name string) bool {
    if !strings.HasPrefix(text, "/") {
        return false
    }
    cmd, _, _ := strings.Cut(strings.Fields(text + " ")[0][1:], "@")
    return strings.EqualFold(cmd, name)
}

func isMenuCommand(text string) bool {
    t := strings.ToLower(strings.TrimSpace(text))
    return t == "меню" || t == "menu" || isCommand(text, "menu")
}
