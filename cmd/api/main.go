package main

import (
    "context"
    "fmt"
    "os"
    "os/signal"
    "syscall"

    tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
    "github.com/sirupsen/logrus"
    "github.com/spf13/cobra"

    "github.com/hihikaAAa/task-assist-bot/internal/ai"
    "github.com/hihikaAAa/task-assist-bot/internal/config"
    "github.com/hihikaAAa/task-assist-bot/internal/lib"
    "github.com/hihikaAAa/task-assist-bot/internal/logger"
    redisstore "github.com/hihikaAAa/task-assist-bot/internal/storage/redis"
    "github.com/hihikaAAa/task-assist-bot/internal/storage/sqlite"
)

func main() {
    if err := newRootCmd().Execute(); err != nil {
        os.Exit(1)
    }
}

func newRootCmd() *cobra.Command {
    var cfgPath string
    root := &cobra.Command{
        Use:          "taskbot",
        Short:        "Telegram bot for assigning tasks to employees",
        SilenceUsage: true,
        RunE: func(cmd *cobra.Command, _ []string) error {
            return serve(cmd.Context(), cfgPath)
        },
    }
    root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (default $CONFIG_PATH or config/local.yaml)")

    root.AddCommand(
        &cobra.Command{
            Use:   "serve",
            Short: "Run the bot",
            RunE: func(cmd *cobra.Command, _ []string) error {
                return serve(cmd.Context(), cfgPath)
            },
        },
        newSeedCmd(&cfgPath),
    )
    return root
}

func newSeedCmd(cfgPath *string) *cobra.Command {
    var file string
    cmd := &cobra.Command{
        Use:   "seed",
        Short: "Load users and skills from a roster file",
        RunE: func(cmd *cobra.Command, _ []string) error {
            cfg, err := loadConfig(*cfgPath)
            if err != nil { return err }
            log := logger.New(cfg.Log)

            roster, err := sqlite.LoadRoster(file)
            if err != nil { return err }
            db, err := sqlite.Open(cfg.DBPath)
            if err != nil { return fmt.Errorf("open db: %w", err) }
            defer db.Close()

            n, err := db.Seed(cmd.Context(), roster)
            if err != nil { return err }
            log.WithFields(logrus.Fields{"file": file, "users": n}).Info("roster seeded")
            return nil
        },
    }
    cmd.Flags().StringVar(&file, "file", "roster.yaml", "roster yaml file")
    return cmd
}

func loadConfig(path string) (*config.Config, error) {
    if path == "" { path = os.Getenv("CONFIG_PATH") }
    if path == "" { path = "config/local.yaml" }
    cfg, err := config.MustLoad(path)
    if err != nil { return nil, fmt.Errorf("load config %s: %w", path, err) }
    return cfg, nil
}

func serve(parent context.Context, cfgPath string) error {
    cfg, err := loadConfig(cfgPath)
    if err != nil { return err }
    log := logger.New(cfg.Log)

    ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
    defer stop()

    db, err := sqlite.Open(cfg.DBPath)
    if err != nil { return fmt.Errorf("open db: %w", err) }
    defer db.Close()

    sessions, closeSessions, err := openSessions(ctx, cfg, db)
    if err != nil { return err }
    defer closeSessions()

    botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
    if err != nil { return fmt.Errorf("bot: %w", err) }
    botAPI.Debug = false

    tr := &lib.Transport{API: botAPI, Log: log}
    bot := lib.NewBot(lib.Deps{
        Sessions:         sessions,
        Store:            db,
        Oracle:           ai.New(cfg.AI.BaseURL, cfg.AI.Timeout, ai.WithModel(cfg.AI.Model)),
        Out:              tr,
        Log:              log,
        TZ:               cfg.Location(),
        AITimeout:        cfg.AI.Timeout,
        KeepBotMessages:  cfg.Chat.KeepBotMessages,
        KeepUserMessages: cfg.Chat.KeepUserMessages,
    })

    if cfg.Reminders.Enabled {
        rw := &lib.ReminderWorker{
            Store:    db,
            Out:      tr,
            Log:      log,
            TZ:       cfg.Location(),
            Interval: cfg.Reminders.Interval,
            Before:   cfg.Reminders.Before,
        }
        go rw.Run(ctx)
    }

    log.WithFields(logrus.Fields{
        "bot":      botAPI.Self.UserName,
        "sessions": cfg.Session.Backend,
        "model":    cfg.AI.Model,
    }).Info("bot started")
    err = lib.Run(ctx, tr, bot)
    log.Info("bot stopped")
    return err
}

func openSessions(ctx context.Context, cfg *config.Config, db *sqlite.DB) (lib.SessionStore, func(), error) {
    switch cfg.Session.Backend {
    case "sqlite":
        return &sqlite.Sessions{DB: db}, func() {}, nil
    case "redis":
        rs := redisstore.New(cfg.Session.RedisAddr, cfg.Session.RedisPrefix, cfg.Session.TTL)
        if err := rs.Ping(ctx); err != nil {
            _ = rs.Close()
            return nil, nil, fmt.Errorf("redis %s: %w", cfg.Session.RedisAddr, err)
        }
        return rs, func() { _ = rs.Close() }, nil
    }
    return lib.NewMemorySessions(), func() {}, nil
}
