package handlers

import "sync"

// state is the process-wide mutable state living outside the task
// and session stores: the auto-delete toggle, whether /auth's
// chat-platform login step has completed, and the sender allow-list (which
// a config hot-reload may replace without a restart).
type state struct {
	mu          sync.Mutex
	autoDelete  bool
	tgLoggedIn  bool
	allowedUser func(username string) bool
}

// AllowedUser reports whether username may issue commands. A nil allow-list
// means every sender is allowed.
func (s *state) AllowedUser(username string) bool {
	s.mu.Lock()
	fn := s.allowedUser
	s.mu.Unlock()
	return fn == nil || fn(username)
}

// SetAllowedUser swaps the allow-list predicate, used when a config
// hot-reload picks up a changed allow-list.
func (s *state) SetAllowedUser(fn func(username string) bool) {
	s.mu.Lock()
	s.allowedUser = fn
	s.mu.Unlock()
}

func (s *state) AutoDelete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoDelete
}

// ToggleAutoDelete flips the auto-delete flag and returns its new value.
func (s *state) ToggleAutoDelete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoDelete = !s.autoDelete
	return s.autoDelete
}

func (s *state) TGLoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tgLoggedIn
}

func (s *state) SetTGLoggedIn(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tgLoggedIn = v
}
