package lib

import (
    "context"
    "fmt"

    tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
    "github.com/sirupsen/logrus"
)

// Transport sends and deletes Telegram messages. It implements Messenger.
type Transport struct {
    API *tgbotapi.BotAPI
    Log logrus.FieldLogger
}

func (tr *Transport) SendText(_ context.Context, chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup, parseMode string) (int, error) {
    msg := tgbotapi.NewMessage(chatID, text)
    msg.ParseMode = parseMode
    if kb != nil { msg.ReplyMarkup = *kb }
    sent, err := tr.API.Send(msg)
    if err != nil { return 0, fmt.Errorf("send to %d: %w", chatID, err) }
    return sent.MessageID, nil
}

func (tr *Transport) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
    if _, err := tr.API.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
        return fmt.Errorf("delete %d/%d: %w", chatID, messageID, err)
    }
    return nil
}

func (tr *Transport) answerCallback(id string) {
    if _, err := tr.API.Request(tgbotapi.NewCallback(id, "")); err != nil {
        tr.Log.WithError(err).Debug("answer callback")
    }
}

// event holds either a text or a button event, plus the callback to acknowledge.
type event struct {
    text       *TextEvent
    button     *ButtonEvent
    callbackID string
}

func eventFromUpdate(u tgbotapi.Update) (event, bool) {
    switch {
    case u.CallbackQuery != nil:
        cq := u.CallbackQuery
        if cq.Message == nil || cq.Message.Chat == nil { return event{callbackID: cq.ID}, false }
        return event{
            button:     &ButtonEvent{ChatID: cq.Message.Chat.ID, MessageID: cq.Message.MessageID, Data: cq.Data},
            callbackID: cq.ID,
        }, true
    case u.Message != nil && u.Message.Chat != nil:
        m := u.Message
        return event{text: &TextEvent{ChatID: m.Chat.ID, MessageID: m.MessageID, Text: m.Text}}, true
    }
    return event{}, false
}

func (e event) chatID() int64 {
    if e.button != nil { return e.button.ChatID }
    return e.text.ChatID
}

// handle runs one decoded event through the bot.
func handle(ctx context.Context, b *Bot, ev event) {
    var err error
    if ev.button != nil {
        err = b.HandleButton(ctx, *ev.button)
    } else {
        err = b.HandleText(ctx, *ev.text)
    }
    if err != nil { b.Log.WithError(err).Error("handle update") }
}

// Run long-polls Telegram until ctx is done. Updates of one chat are handled
// one at a time in arrival order; different chats are handled concurrently.
func Run(ctx context.Context, tr *Transport, b *Bot) error {
    cfg := tgbotapi.NewUpdate(0)
    cfg.Timeout = 30
    updates := tr.API.GetUpdatesChan(cfg)

    q := newChatQueue()
    defer q.wait()

    for {
        select {
        case <-ctx.Done():
            tr.API.StopReceivingUpdates()
            return nil
        case u, ok := <-updates:
            if !ok { return nil }
            ev, ok := eventFromUpdate(u)
            if ev.callbackID != "" { tr.answerCallback(ev.callbackID) }
            if !ok { continue }
            q.submit(ev.chatID(), func() { handle(ctx, b, ev) })
        }
    }
}
