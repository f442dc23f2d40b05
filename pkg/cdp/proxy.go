package cdp

import (
	"context"
	"encoding/json"
)

// Session narrows an API down to one attached target: calls are tagged with
// the session id, and only events carrying that id are delivered. The
// default browser session uses id "".
type Session struct {
	api API
	id  string
}

// NewSession wraps api so that every call and subscription is scoped to
// sessionID.
func NewSession(api API, sessionID string) *Session {
	return &Session{api: api, id: sessionID}
}

// ID the CDP session id this proxy is pinned to.
func (s *Session) ID() string {
	return s.id
}

// Call issues method on this session.
func (s *Session) Call(ctx context.Context, method string, params, result any) error {
	return s.api.Call(ctx, s.id, method, params, result)
}

// Subscribe delivers only this session's occurrences of the named events,
// in arrival order.
func (s *Session) Subscribe(h func(method string, params json.RawMessage), events ...string) (cancel func()) {
	return s.api.Subscribe(func(sessionID, method string, params json.RawMessage) {
		if sessionID != s.id {
			return
		}
		h(method, params)
	}, events...)
}
