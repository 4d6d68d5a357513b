package lib

import (
    "context"
    "errors"
    "fmt"
    "io"
    "strings"
    "sync"
    "sync/atomic"
    "testing"
    "time"

    tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
    "github.com/sirupsen/logrus"

    "github.com/hihikaAAa/task-assist-bot/internal/model"
)

type sentMessage struct {
    chatID    int64
    id        int
    text      string
    kb        *tgbotapi.InlineKeyboardMarkup
    parseMode string
}

// buttons returns every callback payload on the message keyboard.
func (m sentMessage) buttons() []string {
    if m.kb == nil { return nil }
    var out []string
    for _, row := range m.kb.InlineKeyboard {
        for _, b := range row {
            if b.CallbackData != nil { out = append(out, *b.CallbackData) }
        }
    }
    return out
}

func (m sentMessage) hasButton(data string) bool {
    for _, b := range m.buttons() {
        if b == data { return true }
    }
    return false
}

type fakeMessenger struct {
    mu         sync.Mutex
    nextID     int
    sent       []sentMessage
    deleted    map[int64][]int
    failDelete bool
}

func newFakeMessenger() *fakeMessenger {
    return &fakeMessenger{deleted: map[int64][]int{}}
}

func (f *fakeMessenger) SendText(_ context.Context, chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup, parseMode string) (int, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.nextID++
    f.sent = append(f.sent, sentMessage{chatID: chatID, id: f.nextID, text: text, kb: kb, parseMode: parseMode})
    return f.nextID, nil
}

func (f *fakeMessenger) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.deleted[chatID] = append(f.deleted[chatID], messageID)
    if f.failDelete { return errors.New("message can't be deleted") }
    return nil
}

func (f *fakeMessenger) last(chatID int64) sentMessage {
    f.mu.Lock()
    defer f.mu.Unlock()
    for i := len(f.sent) - 1; i >= 0; i-- {
        if f.sent[i].chatID == chatID { return f.sent[i] }
    }
    return sentMessage{}
}

func (f *fakeMessenger) to(chatID int64) []sentMessage {
    f.mu.Lock()
    defer f.mu.Unlock()
    var out []sentMessage
    for _, m := range f.sent {
        if m.chatID == chatID { out = append(out, m) }
    }
    return out
}

type fakeOracle struct {
    mu          sync.Mutex
    answer      string
    err         error
    calls       int
    prompts     []string
    ctxErr      error
    hasDeadline bool
    onCall      func()
}

func (o *fakeOracle) Complete(ctx context.Context, prompt string) (string, error) {
    o.mu.Lock()
    defer o.mu.Unlock()
    o.calls++
    o.prompts = append(o.prompts, prompt)
    if o.onCall != nil { o.onCall() }
    o.ctxErr = ctx.Err()
    _, o.hasDeadline = ctx.Deadline()
    return o.answer, o.err
}

// ctxSessions fails like a networked store once the context is done.
type ctxSessions struct{ *MemorySessions }

func (s ctxSessions) Get(ctx context.Context, chatID int64) (*model.ChatSession, error) {
    if err := ctx.Err(); err != nil { return nil, err }
    return s.MemorySessions.Get(ctx, chatID)
}

func (s ctxSessions) Set(ctx context.Context, chatID int64, sess *model.ChatSession) error {
    if err := ctx.Err(); err != nil { return err }
    return s.MemorySessions.Set(ctx, chatID, sess)
}

func (o *fakeOracle) callCount() int {
    o.mu.Lock()
    defer o.mu.Unlock()
    return o.calls
}

type fakeTask struct {
    task     model.Task
    statuses map[string]model.TaskStatus
}

// fakeStore is an in-memory DataStore. Employees are listed in insertion order.
type fakeStore struct {
    mu          sync.Mutex
    users       map[string]*model.User
    order       []string
    skills      map[string][]model.Skill
    tasks       map[string]*fakeTask
    taskOrder   []string
    createCalls int
    failCreate  error
}

func newFakeStore() *fakeStore {
    return &fakeStore{users: map[string]*model.User{}, skills: map[string][]model.Skill{}, tasks: map[string]*fakeTask{}}
}

func (s *fakeStore) addUser(tag, name string, role model.Role, chatID int64) {
    s.mu.Lock()
    defer s.mu.Unlock()
    tag = model.NormalizeTag(tag)
    s.users[tag] = &model.User{Tag: tag, FullName: name, Role: role, ChatID: chatID}
    s.order = append(s.order, tag)
}

func (s *fakeStore) addTask(title string, deadline time.Time, statuses map[string]model.TaskStatus) string {
    s.mu.Lock()
    defer s.mu.Unlock()
    id := fmt.Sprintf("t%d", len(s.taskOrder)+1)
    ft := &fakeTask{task: model.Task{ID: id, Title: title, Deadline: deadline}, statuses: map[string]model.TaskStatus{}}
    for tag, st := range statuses {
        ft.statuses[tag] = st
        ft.task.AssignedTags = append(ft.task.AssignedTags, tag)
    }
    s.tasks[id] = ft
    s.taskOrder = append(s.taskOrder, id)
    return id
}

func (s *fakeStore) status(taskID, tag string) model.TaskStatus {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.tasks[taskID].statuses[tag]
}

func (s *fakeStore) created() []*model.Task {
    s.mu.Lock()
    defer s.mu.Unlock()
    var out []*model.Task
    for _, id := range s.taskOrder {
        out = append(out, s.view(s.tasks[id], ""))
    }
    return out
}

func (s *fakeStore) view(ft *fakeTask, own string) *model.Task {
    t := ft.task
    t.AssignedTags = append([]string(nil), ft.task.AssignedTags...)
    if own != "" {
        t.Status = ft.statuses[own]
        return &t
    }
    var sts []model.TaskStatus
    for _, tag := range t.AssignedTags { sts = append(sts, ft.statuses[tag]) }
    t.Status = model.AggregateStatus(sts)
    return &t
}

func (s *fakeStore) GetUserByTag(_ context.Context, tag string) (*model.User, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    u, ok := s.users[model.NormalizeTag(tag)]
    if !ok { return nil, model.ErrNotFound }
    c := *u
    return &c, nil
}

func (s *fakeStore) GetUserByChat(_ context.Context, chatID int64) (*model.User, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    for _, tag := range s.order {
        if u := s.users[tag]; u.ChatID == chatID {
            c := *u
            return &c, nil
        }
    }
    return nil, model.ErrNotFound
}

func (s *fakeStore) BindChat(_ context.Context, tag string, chatID int64) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    u, ok := s.users[model.NormalizeTag(tag)]
    if !ok { return model.ErrNotFound }
    for _, other := range s.users {
        if other.ChatID == chatID { other.ChatID = 0 }
    }
    u.ChatID = chatID
    return nil
}

func (s *fakeStore) ListEmployees(_ context.Context) ([]*model.User, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    var out []*model.User
    for _, tag := range s.order {
        if u := s.users[tag]; u.Role == model.RoleEmployee {
            c := *u
            out = append(out, &c)
        }
    }
    return out, nil
}

func (s *fakeStore) EmployeeLoad(_ context.Context) (map[string]int, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    load := map[string]int{}
    for _, ft := range s.tasks {
        for tag, st := range ft.statuses {
            if st == model.StatusWaiting || st == model.StatusInProgress { load[tag]++ }
        }
    }
    return load, nil
}

func (s *fakeStore) EmployeeSkills(_ context.Context) (map[string][]model.Skill, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    out := map[string][]model.Skill{}
    for k, v := range s.skills { out[k] = append([]model.Skill(nil), v...) }
    return out, nil
}

func (s *fakeStore) CreateTask(_ context.Context, t *model.Task) (string, error) {
    s.mu.Lock()
    s.createCalls++
    fail := s.failCreate
    s.mu.Unlock()
    if fail != nil { return "", fail }
    statuses := map[string]model.TaskStatus{}
    for _, tag := range t.AssignedTags { statuses[model.NormalizeTag(tag)] = t.Status }
    id := s.addTask(t.Title, t.Deadline, statuses)
    s.mu.Lock()
    s.tasks[id].task.Description = t.Description
    s.tasks[id].task.AssignedTags = append([]string(nil), t.AssignedTags...)
    s.mu.Unlock()
    return id, nil
}

func (s *fakeStore) GetTask(_ context.Context, id string) (*model.Task, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    ft, ok := s.tasks[id]
    if !ok { return nil, model.ErrNotFound }
    return s.view(ft, ""), nil
}

func (s *fakeStore) ListTasks(_ context.Context) ([]*model.Task, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    var out []*model.Task
    for _, id := range s.taskOrder { out = append(out, s.view(s.tasks[id], "")) }
    return out, nil
}

func (s *fakeStore) ListTasksForTag(_ context.Context, tag string) ([]*model.Task, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    tag = model.NormalizeTag(tag)
    var out []*model.Task
    for _, id := range s.taskOrder {
        if _, ok := s.tasks[id].statuses[tag]; ok { out = append(out, s.view(s.tasks[id], tag)) }
    }
    return out, nil
}

func (s *fakeStore) UpdateAssigneeStatus(_ context.Context, taskID, tag string, status model.TaskStatus) (bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    ft, ok := s.tasks[taskID]
    if !ok { return false, nil }
    tag = model.NormalizeTag(tag)
    if _, ok := ft.statuses[tag]; !ok { return false, nil }
    ft.statuses[tag] = status
    return true, nil
}

const (
    bossChat int64 = 1
    ivanChat int64 = 2
    petrChat int64 = 3
)

var testNow = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

type harness struct {
    t      *testing.T
    bot    *Bot
    out    *fakeMessenger
    store  *fakeStore
    oracle *fakeOracle
    msgID  atomic.Int64
}

func newHarness(t *testing.T) *harness {
    t.Helper()
    store := newFakeStore()
    store.addUser("boss", "Босс", model.RoleManager, 0)
    store.addUser("ivan", "Иван", model.RoleEmployee, 0)
    store.addUser("petr", "Пётр", model.RoleEmployee, 0)
    store.addUser("anna", "Анна", model.RoleEmployee, 0)
    store.addUser("olga", "Ольга", model.RoleEmployee, 0)
    store.addUser("max", "Максим", model.RoleEmployee, 0)
    store.addUser("dima", "Дмитрий", model.RoleEmployee, 0)
    store.skills["ivan"] = []model.Skill{{Name: "Go", Years: 5}}

    log := logrus.New()
    log.SetOutput(io.Discard)

    h := &harness{t: t, out: newFakeMessenger(), store: store, oracle: &fakeOracle{}}
    h.msgID.Store(10000)
    h.bot = NewBot(Deps{
        Store:     store,
        Oracle:    h.oracle,
        Out:       h.out,
        Log:       log,
        TZ:        time.UTC,
        AITimeout: time.Minute,
        Now:       func() time.Time { return testNow },
    })
    return h
}

func (h *harness) text(chatID int64, s string) {
    h.t.Helper()
    id := int(h.msgID.Add(1))
    if err := h.bot.HandleText(context.Background(), TextEvent{ChatID: chatID, MessageID: id, Text: s}); err != nil {
        h.t.Fatalf("text %q: %v", s, err)
    }
}

func (h *harness) tap(chatID int64, data string) {
    h.t.Helper()
    ev := ButtonEvent{ChatID: chatID, MessageID: h.out.last(chatID).id, Data: data}
    if err := h.bot.HandleButton(context.Background(), ev); err != nil {
        h.t.Fatalf("tap %q: %v", data, err)
    }
}

func (h *harness) session(chatID int64) *model.ChatSession {
    h.t.Helper()
    sess, err := h.bot.Sessions.Get(context.Background(), chatID)
    if err != nil {
        h.t.Fatalf("session: %v", err)
    }
    return sess
}

func (h *harness) state(chatID int64) model.State { return h.session(chatID).State }

func (h *harness) login(chatID int64, tag string) {
    h.t.Helper()
    h.text(chatID, "/start")
    h.text(chatID, tag)
    if st := h.state(chatID); st != model.StateMainMenu {
        h.t.Fatalf("login %s: state %s", tag, st)
    }
}

// draftUntilPicker walks the manager through title and description.
func (h *harness) draftUntilPicker(chatID int64) {
    h.t.Helper()
    h.tap(chatID, "add_task")
    h.text(chatID, "Fix login bug")
    h.text(chatID, "Investigate auth failure")
    if st := h.state(chatID); st != model.StateAddPickMode {
        h.t.Fatalf("state after description = %s", st)
    }
}

func (h *harness) lastText(chatID int64) string { return h.out.last(chatID).text }

func (h *harness) assertLastContains(chatID int64, sub string) {
    h.t.Helper()
    if got := h.lastText(chatID); !strings.Contains(got, sub) {
        h.t.Fatalf("last message %q does not contain %q", got, sub)
    }
}
