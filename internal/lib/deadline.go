package lib

import (
    "context"
    "errors"
    "fmt"
    "regexp"
    "strconv"
    "time"

    tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

    "github.com/hihikaAAa/task-assist-bot/internal/model"
)

var (
    clockRx    = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)
    deadlineRx = regexp.MustCompile(`^\s*(\d{2})\.(\d{2})\.(\d{4})\s+(\d{2}):(\d{2})\s*$`)

    errBadClock    = errors.New("time must be HH:MM")
    errBadDeadline = errors.New("deadline must be dd.mm.yyyy HH:MM")
)

var monthNames = [...]string{"", "Январь", "Февраль", "Март", "Апрель", "Май", "Июнь",
    "Июль", "Август", "Сентябрь", "Октябрь", "Ноябрь", "Декабрь"}

var weekdayNames = [...]string{"Пн", "Вт", "Ср", "Чт", "Пт", "Сб", "Вс"}

var presetTimes = [][2]int{{9, 0}, {12, 0}, {15, 0}, {18, 0}}

// ParseClock accepts strict 24-hour HH:MM.
func ParseClock(s string) (h, m int, err error) {
    sm := clockRx.FindStringSubmatch(s)
    if sm == nil { return 0, 0, errBadClock }
    h, _ = strconv.Atoi(sm[1])
    m, _ = strconv.Atoi(sm[2])
    return h, m, nil
}

func parseDeadlineText(s string, loc *time.Location) (time.Time, error) {
    if !deadlineRx.MatchString(s) { return time.Time{}, errBadDeadline }
    t, err := time.ParseInLocation("02.01.2006 15:04", deadlineRx.ReplaceAllString(s, "$1.$2.$3 $4:$5"), loc)
    if err != nil { return time.Time{}, errBadDeadline }
    return t, nil
}

func dayOf(t time.Time) time.Time {
    return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func atClock(day time.Time, h, m int) time.Time {
    return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
}

// calendarKeyboard lays out a Monday-first month grid. today is marked with brackets.
func calendarKeyboard(year int, month time.Month, today time.Time, loc *time.Location) tgbotapi.InlineKeyboardMarkup {
    first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
    prev, next := first.AddDate(0, -1, 0), first.AddDate(0, 1, 0)

    var rows [][]tgbotapi.InlineKeyboardButton
    rows = append(rows, tgbotapi.NewInlineKeyboardRow(
        tgbotapi.NewInlineKeyboardButtonData("⬅️", calMonthData(prev.Year(), prev.Month())),
        tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%s %d", monthNames[month], year), "noop"),
        tgbotapi.NewInlineKeyboardButtonData("➡️", calMonthData(next.Year(), next.Month())),
    ))

    var head []tgbotapi.InlineKeyboardButton
    for _, n := range weekdayNames { head = append(head, tgbotapi.NewInlineKeyboardButtonData(n, "noop")) }
    rows = append(rows, head)

    lead := (int(first.Weekday()) + 6) % 7
    var week []tgbotapi.InlineKeyboardButton
    for i := 0; i < lead; i++ { week = append(week, tgbotapi.NewInlineKeyboardButtonData(" ", "noop")) }

    for d := first; d.Month() == month; d = d.AddDate(0, 0, 1) {
        label := strconv.Itoa(d.Day())
        if d.Year() == today.Year() && d.YearDay() == today.YearDay() { label = "[" + label + "]" }
        week = append(week, tgbotapi.NewInlineKeyboardButtonData(label, calDateData(d)))
        if len(week) == 7 {
            rows = append(rows, week)
            week = nil
        }
    }
    if len(week) > 0 {
        for len(week) < 7 { week = append(week, tgbotapi.NewInlineKeyboardButtonData(" ", "noop")) }
        rows = append(rows, week)
    }
    rows = append(rows, homeRow())
    return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func timePickerKeyboard(day time.Time) tgbotapi.InlineKeyboardMarkup {
    btn := func(hm [2]int) tgbotapi.InlineKeyboardButton {
        return tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%02d:%02d", hm[0], hm[1]), calTimeData(hm[0], hm[1]))
    }
    return tgbotapi.NewInlineKeyboardMarkup(
        tgbotapi.NewInlineKeyboardRow(btn(presetTimes[0]), btn(presetTimes[1])),
        tgbotapi.NewInlineKeyboardRow(btn(presetTimes[2]), btn(presetTimes[3])),
        tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🕒 Ввести время вручную", "caltime_manual")),
        tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад к календарю", calMonthData(day.Year(), day.Month()))),
        homeRow(),
    )
}

func (b *Bot) showCalendar(ctx context.Context, t *turn, year int, month time.Month, notice string) {
    kb := calendarKeyboard(year, month, b.nowIn(), b.TZ)
    b.render(ctx, t, withNotice(notice, "📅 Выберите дату дедлайна:\nИли введите вручную: ДД.ММ.ГГГГ ЧЧ:ММ"), &kb)
}

func (b *Bot) showCalendarNow(ctx context.Context, t *turn, notice string) {
    now := b.nowIn()
    b.showCalendar(ctx, t, now.Year(), now.Month(), notice)
}

func (b *Bot) showTimePicker(ctx context.Context, t *turn, day time.Time, notice string) {
    kb := timePickerKeyboard(day)
    b.render(ctx, t, withNotice(notice, "🕒 Выберите время дедлайна\nДата: "+day.Format("02.01.2006")), &kb)
}

func (b *Bot) onCalendarDate(ctx context.Context, t *turn, act Action) {
    day := time.Date(act.Year, act.Month, act.Day, 0, 0, 0, 0, b.TZ)
    t.sess.DraftDeadlineDate = &day
    t.sess.State = model.StateDeadlineTimePick
    b.showTimePicker(ctx, t, day, "")
}

// onPresetTime combines a preset with the chosen date, or today when the
// preset was tapped straight from the calendar.
func (b *Bot) onPresetTime(ctx context.Context, t *turn, h, m int) {
    day := dayOf(b.nowIn())
    if t.sess.DraftDeadlineDate != nil { day = t.sess.DraftDeadlineDate.In(b.TZ) }
    b.finalize(ctx, t, atClock(day, h, m))
}

func (b *Bot) onDeadlineText(ctx context.Context, t *turn, text string) {
    if t.sess.Draft == nil {
        b.draftNotFound(ctx, t)
        return
    }
    deadline, err := parseDeadlineText(text, b.TZ)
    if err != nil {
        b.showCalendarNow(ctx, t, "Неверный формат. Используйте ДД.ММ.ГГГГ ЧЧ:ММ или выберите дату кнопками.")
        return
    }
    b.finalize(ctx, t, deadline)
}

func (b *Bot) onClockText(ctx context.Context, t *turn, text string) {
    if t.sess.Draft == nil {
        b.draftNotFound(ctx, t)
        return
    }
    if t.sess.DraftDeadlineDate == nil {
        t.sess.State = model.StateDeadlineCalendar
        b.showCalendarNow(ctx, t, "Сначала выберите дату.")
        return
    }
    h, m, err := ParseClock(text)
    if err != nil {
        t.sess.State = model.StateDeadlineManualText
        b.render(ctx, t, "Неверный формат времени. Введите ЧЧ:ММ (например, 18:30):", homeKeyboard())
        return
    }
    b.finalize(ctx, t, atClock(t.sess.DraftDeadlineDate.In(b.TZ), h, m))
}
