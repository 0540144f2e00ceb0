package queueaccess

import (
	"fmt"
	"strings"

	"loom/internal/ipc"
	"loom/internal/queue"
)

// Session pairs an Access with whatever must be closed when the caller is
// done with it (the socket client or the store handle).
type Session struct {
	Access Access
	close  func() error
}

func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenWithFallback prefers the daemon socket and opens the store directly
// only when no daemon answers, so CLI commands work with the daemon down.
func OpenWithFallback(
	dial func() (*ipc.Client, error),
	openStore func() (*queue.Store, error),
) (Session, error) {
	if dial != nil {
		if client, err := dial(); err == nil {
			return Session{
				Access: NewIPCAccess(client),
				close:  client.Close,
			}, nil
		}
	}

	if openStore == nil {
		return Session{}, fmt.Errorf("open queue store: no store opener configured")
	}
	store, err := openStore()
	if err != nil {
		return Session{}, fmt.Errorf("open queue store: %w", err)
	}
	return Session{
		Access: NewStoreAccess(store),
		close:  store.Close,
	}, nil
}

func normalizeToken(token string) string {
	return strings.ToLower(strings.TrimSpace(token))
}
