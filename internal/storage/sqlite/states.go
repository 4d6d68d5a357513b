package sqlite

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "fmt"

    "github.com/hihikaAAa/task-assist-bot/internal/model"
)

// Sessions keeps chat sessions in the chat_sessions table.
type Sessions struct {
    DB *DB
}

func (s *Sessions) Get(ctx context.Context, chatID int64) (*model.ChatSession, error) {
    row := s.DB.SQL.QueryRowContext(ctx, `SELECT payload FROM chat_sessions WHERE chat_id=?`, chatID)
    var payload sql.NullString
    if err := row.Scan(&payload); err != nil {
        if errors.Is(err, sql.ErrNoRows) { return model.NewChatSession(), nil }
        return nil, fmt.Errorf("load session %d: %w", chatID, err)
    }
    sess := model.NewChatSession()
    if payload.Valid && payload.String != "" {
        if err := json.Unmarshal([]byte(payload.String), sess); err != nil {
            return nil, fmt.Errorf("decode session %d: %w", chatID, err)
        }
    }
    return sess, nil
}

func (s *Sessions) Set(ctx context.Context, chatID int64, sess *model.ChatSession) error {
    b, err := json.Marshal(sess)
    if err != nil { return fmt.Errorf("encode session %d: %w", chatID, err) }
    _, err = s.DB.SQL.ExecContext(ctx, `
        INSERT INTO chat_sessions (chat_id, state, payload, updated_at) VALUES (?, ?, ?, ?)
        ON CONFLICT(chat_id) DO UPDATE SET state=excluded.state, payload=excluded.payload, updated_at=excluded.updated_at
    `, chatID, string(sess.State), string(b), s.DB.now())
    if err != nil { return fmt.Errorf("save session %d: %w", chatID, err) }
    return nil
}

// Clear resets the stored session to the main menu, keeping the user binding
// and tracked message ids.
func (s *Sessions) Clear(ctx context.Context, chatID int64) error {
    sess, err := s.Get(ctx, chatID)
    if err != nil { return err }
    sess.Reset()
    return s.Set(ctx, chatID, sess)
}
