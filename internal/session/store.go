package session

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/lakechat/lakechat/internal/llm"
)

// Session is one persisted conversation.
type Session struct {
	ID        string
	Title     string
	Model     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store persists sessions and their message logs. Messages are append-only;
// the engine's turn callback writes each completed round as it happens.
type Store interface {
	CreateSession(ctx context.Context, title, model string) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, limit int) ([]*Session, error)
	DeleteSession(ctx context.Context, id string) error

	AppendMessages(ctx context.Context, sessionID string, messages []llm.Message) error
	Messages(ctx context.Context, sessionID string) ([]llm.Message, error)

	Close() error
}

// GetDBPath returns the path to the sessions database.
func GetDBPath() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "lakechat", "sessions.db"), nil
}
