// Package middleware provides composable HTTP middleware and an ordered stack to apply it.
package middleware

import "net/http"

// System manages an ordered stack of HTTP middleware.
type System interface {
	Use(mw func(http.Handler) http.Handler)
	Apply(handler http.Handler) http.Handler
}

type mw struct {
	stack []func(http.Handler) http.Handler
}

// New creates a middleware System seeded with the given middleware.
// The first middleware is outermost.
func New(initial ...func(http.Handler) http.Handler) System {
	return &mw{
		stack: append([]func(http.Handler) http.Handler{}, initial...),
	}
}

func (m *mw) Use(fn func(http.Handler) http.Handler) {
	m.stack = append(m.stack, fn)
}

func (m *mw) Apply(handler http.Handler) http.Handler {
	for i := len(m.stack) - 1; i >= 0; i-- {
		handler = m.stack[i](handler)
	}
	return handler
}
