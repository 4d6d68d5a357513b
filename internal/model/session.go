package model

import (
    "strings"
    "time"
)

type State string

const (
    StateAwaitingTag        State = "awaiting_tag"
    StateMainMenu           State = "main_menu"
    StateAddTitle           State = "add_task.title"
    StateAddDescription     State = "add_task.description"
    StateAddPickMode        State = "add_task.pick_mode"
    StateAddPickEmployees   State = "add_task.pick_employees"
    StateDeadlineCalendar   State = "add_task.deadline.calendar"
    StateDeadlineTimePick   State = "add_task.deadline.time_pick"
    StateDeadlineManualText State = "add_task.deadline.manual_text"
    StateAiAwaitDescription State = "ai_standalone.awaiting_description"
)

// IsWizard reports whether the state belongs to the add-task wizard.
func (s State) IsWizard() bool { return strings.HasPrefix(string(s), "add_task.") }

type PickMode string

const (
    PickManual PickMode = "manual"
    PickAI     PickMode = "ai"
)

const MaxTrackedMessages = 50

type DraftTask struct {
    Title        string     `json:"title"`
    Description  string     `json:"description"`
    AssignedTags []string   `json:"assigned_tags"`
    Status       TaskStatus `json:"status"`
}

func NewDraftTask() *DraftTask {
    return &DraftTask{AssignedTags: []string{}, Status: StatusWaiting}
}

func (d *DraftTask) HasTag(tag string) bool {
    n := NormalizeTag(tag)
    for _, t := range d.AssignedTags {
        if t == n {
            return true
        }
    }
    return false
}

// Toggle adds tag when absent and removes it when present.
// It returns true when the tag ends up selected.
func (d *DraftTask) Toggle(tag string) bool {
    n := NormalizeTag(tag)
    if n == "" {
        return false
    }
    for i, t := range d.AssignedTags {
        if t == n {
            d.AssignedTags = append(d.AssignedTags[:i], d.AssignedTags[i+1:]...)
            return false
        }
    }
    d.AssignedTags = append(d.AssignedTags, n)
    return true
}

// ChatSession is the per-chat conversation state. Fields other than State,
// UserTag and the message id lists only mean something in the states that own them.
type ChatSession struct {
    State             State      `json:"state"`
    UserTag           string     `json:"user_tag,omitempty"`
    Draft             *DraftTask `json:"draft,omitempty"`
    DraftDeadlineDate *time.Time `json:"draft_deadline_date,omitempty"`
    PickMode          PickMode   `json:"pick_mode,omitempty"`
    AIShortlist       []string   `json:"ai_shortlist,omitempty"`
    // AIFallback marks AIShortlist as a load ranking made without the oracle.
    AIFallback        bool       `json:"ai_fallback,omitempty"`
    BotMessageIDs     []int      `json:"bot_message_ids,omitempty"`
    UserMessageIDs    []int      `json:"user_message_ids,omitempty"`
}

func NewChatSession() *ChatSession {
    return &ChatSession{State: StateMainMenu}
}

func (s *ChatSession) Clone() *ChatSession {
    c := *s
    if s.Draft != nil {
        d := *s.Draft
        d.AssignedTags = append([]string{}, s.Draft.AssignedTags...)
        c.Draft = &d
    }
    if s.DraftDeadlineDate != nil {
        t := *s.DraftDeadlineDate
        c.DraftDeadlineDate = &t
    }
    c.AIShortlist = append([]string(nil), s.AIShortlist...)
    c.BotMessageIDs = append([]int(nil), s.BotMessageIDs...)
    c.UserMessageIDs = append([]int(nil), s.UserMessageIDs...)
    return &c
}

// Reset drops every wizard-scoped field together and returns to the main menu.
func (s *ChatSession) Reset() {
    s.Draft = nil
    s.DraftDeadlineDate = nil
    s.PickMode = ""
    s.AIShortlist = nil
    s.AIFallback = false
    s.State = StateMainMenu
}

// TrackID appends id to list keeping at most MaxTrackedMessages newest entries.
func TrackID(list []int, id int) []int {
    if id == 0 {
        return list
    }
    for _, v := range list {
        if v == id {
            return list
        }
    }
    list = append(list, id)
    if len(list) > MaxTrackedMessages {
        list = append([]int(nil), list[len(list)-MaxTrackedMessages:]...)
    }
    return list
}
