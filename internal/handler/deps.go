package handler

import (
	"time"

	"chatrelay/internal/app/chat"
	"chatrelay/internal/configs"
)

// AppDeps carries what the HTTP handlers need from the rest of the process.
type AppDeps struct {
	Hub       *chat.Hub
	Config    *configs.AppConfig
	StartedAt time.Time
}
