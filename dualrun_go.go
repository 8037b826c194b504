package dualrun

import (
	"github.com/knights-analytics/dualrun/backends"
	"github.com/knights-analytics/dualrun/options"
)

// NewGoSession creates a session on the pure Go backend. It needs no native library.
func NewGoSession(opts ...options.WithOption) (*Session, error) {
	session, err := newSession([]string{options.BackendGo}, opts...)
	if err != nil {
		return nil, err
	}
	session.backends = []backends.Backend{backends.NewGoModel(session.options)}
	return session, nil
}
