package config

import (
    "fmt"
    "os"
    "time"

    goyaml "gopkg.in/yaml.v3"
)

type Config struct {
    BotToken  string    `yaml:"bot_token"`
    DBPath    string    `yaml:"db_path"`
    Timezone  string    `yaml:"timezone"`
    AI        AI        `yaml:"ai"`
    Chat      Chat      `yaml:"chat"`
    Session   Session   `yaml:"session"`
    Reminders Reminders `yaml:"reminders"`
    Log       Log       `yaml:"log"`
}

type AI struct {
    BaseURL string        `yaml:"base_url"`
    Model   string        `yaml:"model"`
    Timeout time.Duration `yaml:"timeout"`
}

type Chat struct {
    KeepBotMessages  int `yaml:"keep_bot_messages"`
    KeepUserMessages int `yaml:"keep_user_messages"`
}

type Session struct {
    Backend     string        `yaml:"backend"`
    RedisAddr   string        `yaml:"redis_addr"`
    RedisPrefix string        `yaml:"redis_prefix"`
    TTL         time.Duration `yaml:"ttl"`
}

type Reminders struct {
    Enabled  bool          `yaml:"enabled"`
    Interval time.Duration `yaml:"interval"`
    Before   time.Duration `yaml:"before"`
}

type Log struct {
    Level  string `yaml:"level"`
    Format string `yaml:"format"`
}

func defaults() *Config {
    return &Config{
        DBPath: "storage/bot.db",
        AI: AI{
            BaseURL: "http://localhost:11434",
            Model:   "phi3:mini",
            Timeout: 2 * time.Minute,
        },
        Session:   Session{Backend: "memory", RedisPrefix: "taskbot:session:"},
        Reminders: Reminders{Enabled: true, Interval: time.Minute, Before: 24 * time.Hour},
        Log:       Log{Level: "info", Format: "text"},
    }
}

func MustLoad(path string) (*Config, error) {
    cfg := defaults()
    b, err := os.ReadFile(path)
    if err != nil {
        return nil, err
    }
    if err := goyaml.Unmarshal(b, cfg); err != nil {
        return nil, err
    }
    applyEnv(cfg)
    if err := cfg.validate(); err != nil {
        return nil, err
    }
    return cfg, nil
}

func applyEnv(cfg *Config) {
    if v := os.Getenv("BOT_TOKEN"); v != "" { cfg.BotToken = v }
    if v := os.Getenv("DB_PATH"); v != "" { cfg.DBPath = v }
    if v := os.Getenv("TZ"); v != "" { cfg.Timezone = v }
    if v := os.Getenv("AI_BASE_URL"); v != "" { cfg.AI.BaseURL = v }
    if v := os.Getenv("AI_MODEL"); v != "" { cfg.AI.Model = v }
    if v := os.Getenv("REDIS_ADDR"); v != "" { cfg.Session.RedisAddr = v }
}

func (c *Config) validate() error {
    if c.AI.Timeout <= 0 {
        c.AI.Timeout = 2 * time.Minute
    }
    if c.Reminders.Interval <= 0 {
        c.Reminders.Interval = time.Minute
    }
    if c.Reminders.Before < 0 {
        return fmt.Errorf("reminders: before must be >= 0")
    }
    if c.Chat.KeepBotMessages < 0 || c.Chat.KeepUserMessages < 0 {
        return fmt.Errorf("chat: keep counts must be >= 0")
    }
    switch c.Session.Backend {
    case "", "memory":
        c.Session.Backend = "memory"
    case "sqlite":
    case "redis":
        if c.Session.RedisAddr == "" {
            return fmt.Errorf("session: redis backend needs redis_addr")
        }
    default:
        return fmt.Errorf("session: unknown backend %q", c.Session.Backend)
    }
    return nil
}

// Location resolves the configured timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
    if c.Timezone == "" {
        return time.Local
    }
    if loc, err := time.LoadLocation(c.Timezone); err == nil {
        return loc
    }
    return time.Local
}
