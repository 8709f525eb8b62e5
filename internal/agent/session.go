package agent

import (
	"context"
	"strings"
	"sync"

	"github.com/hai-app/go-study-backend/internal/llm"
)

type userKey struct{}

// WithUser stamps the acting user onto the context so tool handlers can
// resolve credentials and scope queries without threading an extra argument
// through every handler signature.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFrom returns the acting user set by WithUser, or "".
func UserFrom(ctx context.Context) string {
	userID, _ := ctx.Value(userKey{}).(string)
	return userID
}

// Sessions caches assembled conversation state per (user, chatroom) so
// consecutive turns skip the history reload. Entries are advisory: losing one
// only costs a database read on the next turn, and a fatal turn error drops
// the user's entries so the next turn rebuilds from persisted truth.
type Sessions struct {
	mu    sync.Mutex
	byKey map[string][]llm.Message
}

// NewSessions returns an empty cache.
func NewSessions() *Sessions {
	return &Sessions{byKey: make(map[string][]llm.Message)}
}

func sessionKey(userID, chatroomID string) string {
	return userID + "\x00" + chatroomID
}

// Get returns the cached conversation for the pair, if any.
func (s *Sessions) Get(userID, chatroomID string) ([]llm.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs, ok := s.byKey[sessionKey(userID, chatroomID)]
	return msgs, ok
}

// Put stores the conversation for the pair.
func (s *Sessions) Put(userID, chatroomID string, msgs []llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[sessionKey(userID, chatroomID)] = msgs
}

// Invalidate drops every cached session belonging to the user.
func (s *Sessions) Invalidate(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := userID + "\x00"
	for key := range s.byKey {
		if strings.HasPrefix(key, prefix) {
			delete(s.byKey, key)
		}
	}
}
