package config

import (
	"errors"
	"sync"
)

const dbPassPrompt = "Enter the database password: "

// PasswordPrompter asks the operator for a secret.
type PasswordPrompter interface {
	Password(message string) (string, error)
}

// secret is a single-assignment cell. Once set it never changes.
type secret struct {
	mu    sync.Mutex
	value string
	ok    bool
}

func (s *secret) get() (string, bool) {
	if s == nil {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.ok
}

func (s *secret) set(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ok {
		s.value, s.ok = value, true
	}
}

func (s *secret) resolve(fn func() (string, error)) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ok {
		return s.value, nil
	}
	value, err := fn()
	if err != nil {
		return "", err
	}
	s.value, s.ok = value, true
	return value, nil
}

// DBPass returns the database password, prompting for it the first time it is needed
// when the settings did not provide one. The answer is reused for the rest of the process.
func (c *Config) DBPass(p PasswordPrompter) (string, error) {
	if c.dbPass == nil {
		return "", errors.New("config was not resolved with Resolve")
	}
	return c.dbPass.resolve(func() (string, error) {
		if p == nil {
			return "", errors.New("database password is not set and no prompt is available")
		}
		pw, err := p.Password(dbPassPrompt)
		if err != nil {
			return "", err
		}
		if pw == "" {
			return "", errors.New("database password must not be empty")
		}
		return pw, nil
	})
}
