// Package reload turns "shards published" notifications from the
// documentation build into engine reloads.
package reload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

// Notification is the optional body of a shards-published message.
type Notification struct {
	Generator string `json:"generator"`
	Reason    string `json:"reason"`
}

// Reloader is satisfied by *engine.Engine.
type Reloader interface {
	Reload(ctx context.Context) (*engine.Report, error)
}

// Listener reloads the index for every notification it handles. Whatever
// the body says, a message means the shards changed.
type Listener struct {
	reloader Reloader
	logger   *slog.Logger
}

func NewListener(reloader Reloader) *Listener {
	return &Listener{
		reloader: reloader,
		logger:   slog.Default().With("component", "reload-listener"),
	}
}

// Handle is a kafka.MessageHandler. A failed reload is returned so the
// message is not committed.
func (l *Listener) Handle(ctx context.Context, key []byte, value []byte) error {
	n, err := kafka.DecodeJSON[Notification](value)
	if err != nil {
		l.logger.Warn("undecodable shards notification, reloading anyway", "key", string(key), "error", err)
	} else {
		l.logger.Info("shards published", "generator", n.Generator, "reason", n.Reason)
	}
	report, err := l.reloader.Reload(ctx)
	if err != nil {
		return fmt.Errorf("reloading after notification: %w", err)
	}
	l.logger.Info("index reloaded from notification",
		"version", report.Version,
		"entries", report.Entries,
		"failed_shards", len(report.Failed),
	)
	return nil
}
