package lib

import (
    "context"
    "fmt"

    tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
    "github.com/sirupsen/logrus"

    "github.com/hihikaAAa/task-assist-bot/internal/model"
)

type Screen struct {
    Text      string
    Keyboard  *tgbotapi.InlineKeyboardMarkup
    ParseMode string
}

// Presenter keeps a chat "clean": before each new screen it deletes the
// previously tracked bot and user messages, keeping only the newest KeepBot /
// KeepUser of each.
type Presenter struct {
    Out      Messenger
    KeepBot  int
    KeepUser int
    Log      logrus.FieldLogger
}

// Render replaces the visible screen and returns the id of the sent message.
// The caller must hold the chat lock for sess.
func (p *Presenter) Render(ctx context.Context, chatID int64, sess *model.ChatSession, sc Screen) (int, error) {
    sess.BotMessageIDs = p.cleanup(ctx, chatID, sess.BotMessageIDs, p.KeepBot)
    sess.UserMessageIDs = p.cleanup(ctx, chatID, sess.UserMessageIDs, p.KeepUser)

    id, err := p.Out.SendText(ctx, chatID, sc.Text, sc.Keyboard, sc.ParseMode)
    if err != nil {
        return 0, fmt.Errorf("send screen: %w", err)
    }
    sess.BotMessageIDs = model.TrackID(sess.BotMessageIDs, id)
    return id, nil
}

// Notify sends a message that is not part of the chat's tracked screen.
func (p *Presenter) Notify(ctx context.Context, chatID int64, sc Screen) error {
    _, err := p.Out.SendText(ctx, chatID, sc.Text, sc.Keyboard, sc.ParseMode)
    return err
}

func (p *Presenter) TrackInbound(sess *model.ChatSession, messageID int) {
    sess.UserMessageIDs = model.TrackID(sess.UserMessageIDs, messageID)
}

// TrackOutbound records a bot message the chat is known to show, e.g. the
// message whose button was tapped.
func (p *Presenter) TrackOutbound(sess *model.ChatSession, messageID int) {
    sess.BotMessageIDs = model.TrackID(sess.BotMessageIDs, messageID)
}

// cleanup deletes all but the newest keep ids. Every attempted id leaves the
// list whether or not the delete succeeded.
func (p *Presenter) cleanup(ctx context.Context, chatID int64, ids []int, keep int) []int {
    if keep < 0 {
        keep = 0
    }
    if len(ids) <= keep {
        return ids
    }
    cut := len(ids) - keep
    for _, id := range ids[:cut] {
        if err := p.Out.DeleteMessage(ctx, chatID, id); err != nil && p.Log != nil {
            p.Log.WithFields(logrus.Fields{"chat_id": chatID, "message_id": id}).WithError(err).Debug("delete message")
        }
    }
    return append([]int(nil), ids[cut:]...)
}
