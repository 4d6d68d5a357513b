package redis

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "strconv"
    "time"

    goredis "github.com/redis/go-redis/v9"

    "github.com/hihikaAAa/task-assist-bot/internal/model"
)

// Sessions stores chat sessions as JSON strings under prefix+chatID.
type Sessions struct {
    client *goredis.Client
    prefix string
    ttl    time.Duration
}

func New(addr, prefix string, ttl time.Duration) *Sessions {
    return &Sessions{
        client: goredis.NewClient(&goredis.Options{Addr: addr}),
        prefix: prefix,
        ttl:    ttl,
    }
}

func (s *Sessions) Ping(ctx context.Context) error {
    return s.client.Ping(ctx).Err()
}

func (s *Sessions) Close() error { return s.client.Close() }

func (s *Sessions) key(chatID int64) string {
    return s.prefix + strconv.FormatInt(chatID, 10)
}

func (s *Sessions) Get(ctx context.Context, chatID int64) (*model.ChatSession, error) {
    raw, err := s.client.Get(ctx, s.key(chatID)).Bytes()
    if errors.Is(err, goredis.Nil) {
        return model.NewChatSession(), nil
    }
    if err != nil {
        return nil, fmt.Errorf("redis: get session %d: %w", chatID, err)
    }
    return decode(raw)
}

func (s *Sessions) Set(ctx context.Context, chatID int64, sess *model.ChatSession) error {
    b, err := json.Marshal(sess)
    if err != nil {
        return fmt.Errorf("redis: encode session %d: %w", chatID, err)
    }
    if err := s.client.Set(ctx, s.key(chatID), b, s.ttl).Err(); err != nil {
        return fmt.Errorf("redis: set session %d: %w", chatID, err)
    }
    return nil
}

func (s *Sessions) Clear(ctx context.Context, chatID int64) error {
    sess, err := s.Get(ctx, chatID)
    if err != nil {
        return err
    }
    sess.Reset()
    return s.Set(ctx, chatID, sess)
}

func decode(raw []byte) (*model.ChatSession, error) {
    sess := model.NewChatSession()
    if len(raw) == 0 {
        return sess, nil
    }
    if err := json.Unmarshal(raw, sess); err != nil {
        return nil, fmt.Errorf("redis: decode session: %w", err)
    }
    if sess.State == "" {
        sess.State = model.StateMainMenu
    }
    return sess, nil
}
