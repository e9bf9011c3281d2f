package credential

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"notifyd/internal/config"
)

// Session holds the token in use by the running agent.
type Session struct {
	mu    sync.RWMutex
	token string
	vault *Vault
	log   *zap.Logger
}

// NewSession resolves the token from the environment or the keyring. A missing
// token is not an error: the agent starts and waits for one.
func NewSession(cfg *config.Config, vault *Vault, logger *zap.Logger) *Session {
	s := &Session{vault: vault, log: logger}
	token, err := vault.Resolve(cfg.Token)
	switch {
	case errors.Is(err, ErrNoToken):
		logger.Warn("no api token configured; run `notifyd token set` or set NOTIFYD_TOKEN")
	case err != nil:
		logger.Warn("keyring unavailable", zap.Error(err))
	default:
		s.token = token
		s.check(token)
	}
	return s
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) HasToken() bool {
	return s.Token() != ""
}

// Set replaces the token for this process and stores it in the keyring when
// persist is true.
func (s *Session) Set(token string, persist bool) error {
	if persist {
		if err := s.vault.SetToken(token); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	s.check(token)
	return nil
}

func (s *Session) check(token string) {
	info, err := Inspect(token)
	if err != nil {
		s.log.Debug("api token is not a readable JWT", zap.Error(err))
		return
	}
	if info.Expired(time.Now()) {
		s.log.Warn("api token has expired", zap.String("subject", info.Subject), zap.Time("expires_at", info.ExpiresAt))
	}
}
