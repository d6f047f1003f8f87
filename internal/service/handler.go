package service

import "github.com/hp77-creator/clipkeep/pkg/types"

// HistoryChangeHandler is implemented by components that need to be notified of history changes.
// Handlers run on the mutating goroutine and must return quickly.
type HistoryChangeHandler interface {
	HandleHistoryChange(entries []types.Entry)
}

// HandlerFunc adapts a function to HistoryChangeHandler
type HandlerFunc func(entries []types.Entry)

func (f HandlerFunc) HandleHistoryChange(entries []types.Entry) { f(entries) }
