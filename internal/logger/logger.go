package logger

import (
    "os"
    "strings"

    "github.com/sirupsen/logrus"

    "github.com/hihikaAAa/task-assist-bot/internal/config"
)

// New builds the process logger from the log section of the config.
func New(c config.Log) *logrus.Logger {
    l := logrus.New()
    l.SetOutput(os.Stdout)

    level, err := logrus.ParseLevel(strings.TrimSpace(c.Level))
    if err != nil {
        level = logrus.InfoLevel
    }
    l.SetLevel(level)

    switch c.Format {
    case "json":
        l.SetFormatter(&logrus.JSONFormatter{})
    default:
        l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
    }
    return l
}
