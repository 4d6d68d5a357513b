package lib

import (
    "context"
    "fmt"
    "regexp"
    "sort"
    "strings"

    tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

    "github.com/hihikaAAa/task-assist-bot/internal/model"
)

const (
    aiErrorPrefix    = "[AI ERROR]"
    shortlistSize    = 5
    pickPromptSkills = 5
    adviceSkills     = 10
    adviceMaxRunes   = 3500
)

var mentionRx = regexp.MustCompile(`@([a-zA-Z0-9_]+)`)

// ExtractTags returns distinct normalized @mentions in order of appearance.
// limit <= 0 means no limit.
func ExtractTags(answer string, limit int) []string {
    var out []string
    seen := map[string]bool{}
    for _, m := range mentionRx.FindAllStringSubmatch(answer, -1) {
        tag := model.NormalizeTag(m[1])
        if seen[tag] { continue }
        seen[tag] = true
        out = append(out, tag)
        if limit > 0 && len(out) == limit { break }
    }
    return out
}

// FallbackShortlist picks the least loaded employees; ties keep roster order.
func FallbackShortlist(roster []*model.User, load map[string]int, limit int) []string {
    tags := make([]string, 0, len(roster))
    for _, u := range roster { tags = append(tags, u.Tag) }
    sort.SliceStable(tags, func(i, j int) bool { return load[tags[i]] < load[tags[j]] })
    if limit > 0 && len(tags) > limit { tags = tags[:limit] }
    return tags
}

// rosterShortlist keeps the oracle's picks that are real employees, up to limit.
func rosterShortlist(picked []string, roster []*model.User, limit int) []string {
    known := map[string]bool{}
    for _, u := range roster { known[u.Tag] = true }
    var out []string
    for _, tag := range picked {
        if !known[tag] { continue }
        out = append(out, tag)
        if len(out) == limit { break }
    }
    return out
}

func formatSkills(list []model.Skill, max int, format func(model.Skill) string) []string {
    if len(list) > max { list = list[:max] }
    out := make([]string, 0, len(list))
    for _, s := range list { out = append(out, format(s)) }
    return out
}

func buildPickPrompt(d *model.DraftTask, roster []*model.User, load map[string]int, skills map[string][]model.Skill) string {
    var sb strings.Builder
    sb.WriteString("Подбери 5 наиболее подходящих исполнителей задачи.\n")
    sb.WriteString("Учитывай навыки и меньшую загрузку (активных задач).\n")
    sb.WriteString("Ответ верни ТОЛЬКО списком тегов, например:\n@ivan\n@petr\n\n")
    sb.WriteString("Название: " + d.Title + "\n")
    sb.WriteString("Описание: " + d.Description + "\n\n")
    sb.WriteString("Сотрудники:\n")
    for _, u := range roster {
        fmt.Fprintf(&sb, "@%s load=%d skills=", u.Tag, load[u.Tag])
        sk := formatSkills(skills[u.Tag], pickPromptSkills, func(s model.Skill) string {
            return fmt.Sprintf("%s(%dy)", s.Name, s.Years)
        })
        if len(sk) == 0 {
            sb.WriteString("none\n")
            continue
        }
        sb.WriteString(strings.Join(sk, ", ") + "\n")
    }
    return sb.String()
}

func buildAdvicePrompt(desc string, roster []*model.User, load map[string]int, skills map[string][]model.Skill) string {
    var sb strings.Builder
    sb.WriteString("Ты — ассистент руководителя. Подбери исполнителей задачи.\n")
    sb.WriteString("Критерии: 1) навыки/опыт по задаче, 2) меньшая текущая загрузка лучше.\n")
    sb.WriteString("Верни ТОЛЬКО топ-3 кандидата строго в формате:\n")
    sb.WriteString("1) @tag — причина\n2) @tag — причина\n3) @tag — причина\n\n")
    sb.WriteString("Задача:\n" + desc + "\n\nСотрудники:\n")
    for _, u := range roster {
        fmt.Fprintf(&sb, "- %s (@%s)\n  Активных задач: %d\n", u.FullName, u.Tag, load[u.Tag])
        sk := formatSkills(skills[u.Tag], adviceSkills, func(s model.Skill) string {
            return fmt.Sprintf("   • %s (%d лет)", s.Name, s.Years)
        })
        if len(sk) == 0 {
            sb.WriteString("  Навыки: нет данных\n\n")
            continue
        }
        sb.WriteString("  Навыки:\n" + strings.Join(sk, "\n") + "\n\n")
    }
    return sb.String()
}

func truncateRunes(s string, max int) string {
    r := []rune(s)
    if len(r) <= max { return s }
    return string(r[:max])
}

// askOracle never fails: errors come back as aiErrorPrefix text.
// ctx is the turn context; the call is bounded by AITimeout.
func (b *Bot) askOracle(ctx context.Context, prompt string) string {
    if b.Oracle == nil { return aiErrorPrefix + " oracle is not configured" }
    actx, cancel := context.WithTimeout(ctx, b.AITimeout)
    defer cancel()
    answer, err := b.Oracle.Complete(actx, prompt)
    if err != nil { return aiErrorPrefix + " " + err.Error() }
    return answer
}

func isOracleError(s string) bool { return strings.HasPrefix(s, aiErrorPrefix) }

type staff struct {
    users  []*model.User
    load   map[string]int
    skills map[string][]model.Skill
}

func (r staff) name(tag string) string {
    for _, u := range r.users {
        if u.Tag == tag { return u.FullName }
    }
    return model.DisplayTag(tag)
}

// loadStaff reads employees with their load and, optionally, skills.
// Read failures are logged and replaced by empty data.
func (b *Bot) loadStaff(ctx context.Context, t *turn, withSkills bool) staff {
    r := staff{load: map[string]int{}, skills: map[string][]model.Skill{}}
    users, err := b.Store.ListEmployees(ctx)
    if err != nil {
        t.log.WithError(err).Error("list employees")
        return r
    }
    r.users = users
    if load, err := b.Store.EmployeeLoad(ctx); err != nil {
        t.log.WithError(err).Warn("employee load")
    } else if load != nil {
        r.load = load
    }
    if !withSkills { return r }
    if skills, err := b.Store.EmployeeSkills(ctx); err != nil {
        t.log.WithError(err).Warn("employee skills")
    } else if skills != nil {
        r.skills = skills
    }
    return r
}

func (b *Bot) showPickMode(ctx context.Context, t *turn, notice string) {
    kb := tgbotapi.NewInlineKeyboardMarkup(
        tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🤖 Помоги подобрать (AI)", "pick_choose_mode_ai")),
        tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("👤 Я сам выберу", "pick_choose_mode_manual")),
        homeRow(),
    )
    b.render(ctx, t, withNotice(notice, "Выберите способ назначения исполнителей:\n\n"+
        "🤖 AI предложит кандидатов (вы выбираете кнопками)\n"+
        "👤 Или выберите сами из полного списка."), &kb)
}

// aiShortlist returns the cached shortlist unless refresh is set or nothing
// is cached yet, in which case the oracle is asked once.
func (b *Bot) aiShortlist(ctx context.Context, t *turn, r staff, refresh bool) (list []string, fallback bool) {
    if !refresh && len(t.sess.AIShortlist) > 0 {
        return t.sess.AIShortlist, t.sess.AIFallback
    }
    b.render(ctx, t, "🤖 Подбираю исполнителей…", homeKeyboard())

    answer := b.askOracle(ctx, buildPickPrompt(t.sess.Draft, r.users, r.load, r.skills))
    var picked []string
    if isOracleError(answer) {
        t.log.WithField("answer", answer).Warn("oracle failed, using load ranking")
    } else {
        picked = rosterShortlist(ExtractTags(answer, 0), r.users, shortlistSize)
    }
    if len(picked) == 0 {
        picked = FallbackShortlist(r.users, r.load, shortlistSize)
        fallback = true
    }
    t.sess.AIShortlist = picked
    t.sess.AIFallback = fallback
    return picked, fallback
}

func (b *Bot) showPicker(ctx context.Context, t *turn, mode model.PickMode, refresh bool, notice string) {
    if mode == "" { mode = model.PickManual }
    t.sess.PickMode = mode
    t.sess.State = model.StateAddPickEmployees

    r := b.loadStaff(ctx, t, mode == model.PickAI)
    if len(r.users) == 0 {
        b.render(ctx, t, withNotice(notice, "Сотрудников нет в базе."), homeKeyboard())
        return
    }

    var list []string
    header := "✅ Выберите исполнителей (можно несколько). Список всех сотрудников:"
    if mode == model.PickAI {
        var fallback bool
        list, fallback = b.aiShortlist(ctx, t, r, refresh)
        header = "✅ Выберите исполнителей (можно несколько). Рекомендации AI:"
        if fallback { header = "✅ Выберите исполнителей (можно несколько). AI не дал рекомендаций, показаны наименее загруженные:" }
    } else {
        for _, u := range r.users { list = append(list, u.Tag) }
    }

    d := t.sess.Draft
    var sb strings.Builder
    sb.WriteString(withNotice(notice, header) + "\n\n")
    var rows [][]tgbotapi.InlineKeyboardButton
    for _, tag := range list {
        mark := "➕"
        if d.HasTag(tag) { mark = "✅" }
        name := r.name(tag)
        fmt.Fprintf(&sb, "%s %s (%s) — активных задач: %d\n", mark, name, model.DisplayTag(tag), r.load[tag])
        rows = append(rows, tgbotapi.NewInlineKeyboardRow(
            tgbotapi.NewInlineKeyboardButtonData(mark+" "+name, toggleData(tag)),
        ))
    }
    if len(d.AssignedTags) > 0 {
        shown := make([]string, 0, len(d.AssignedTags))
        for _, tag := range d.AssignedTags { shown = append(shown, model.DisplayTag(tag)) }
        sb.WriteString("\nВыбрано: " + strings.Join(shown, ", ") + "\n")
    }

    if mode == model.PickAI {
        rows = append(rows,
            tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("👤 Выбрать вручную", "pick_manual")),
            tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔄 Переподобрать", "pick_ai_refresh")),
        )
    } else {
        rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🤖 Рекомендации AI", "pick_choose_mode_ai")))
    }
    rows = append(rows,
        tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("➡️ Далее (дедлайн)", "pick_done")),
        homeRow(),
    )
    kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
    b.render(ctx, t, sb.String(), &kb)
}

func (b *Bot) onPickDone(ctx context.Context, t *turn) {
    if len(t.sess.Draft.AssignedTags) == 0 {
        b.showPicker(ctx, t, t.sess.PickMode, false, "❗ Сначала выберите хотя бы одного исполнителя (можно несколько).")
        return
    }
    t.sess.State = model.StateDeadlineCalendar
    t.sess.DraftDeadlineDate = nil
    b.showCalendarNow(ctx, t, "")
}

// onAIStandalone answers a free-form "who should do this" question. The chat
// returns to the main menu whatever the oracle says.
func (b *Bot) onAIStandalone(ctx context.Context, t *turn, text string) {
    if text == "" {
        b.render(ctx, t, "📝 Опишите задачу (1–3 предложения). Я подберу топ-3 исполнителей.", homeKeyboard())
        return
    }
    t.sess.Reset()

    r := b.loadStaff(ctx, t, true)
    if len(r.users) == 0 {
        b.render(ctx, t, "Сотрудников нет в базе.", homeBackKeyboard())
        return
    }
    b.render(ctx, t, "🤖 Подбираю исполнителей…", homeKeyboard())

    answer := b.askOracle(ctx, buildAdvicePrompt(text, r.users, r.load, r.skills))
    if isOracleError(answer) {
        t.log.WithField("answer", answer).Warn("oracle failed")
    }
    if strings.TrimSpace(answer) == "" {
        answer = "Пустой ответ от модели. Проверьте, что Ollama запущена и модель доступна."
    }
    b.render(ctx, t, "✅ Рекомендации:\n\n"+truncateRunes(answer, adviceMaxRunes), homeBackKeyboard())
}
