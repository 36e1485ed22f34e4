// Package notify carries user-facing status notifications from the
// service layer to whatever front end is attached. Keys are
// translation identifiers; args are interpolation values.
package notify

import "log/slog"

type Sink interface {
	Notify(titleKey, descriptionKey string, args ...any)
}

// Func adapts a plain function to a Sink.
type Func func(titleKey, descriptionKey string, args ...any)

func (f Func) Notify(titleKey, descriptionKey string, args ...any) {
	f(titleKey, descriptionKey, args...)
}

// Log is the default sink used when no UI is attached.
func Log(log *slog.Logger) Sink {
	if log == nil {
		log = slog.Default()
	}
	return Func(func(titleKey, descriptionKey string, args ...any) {
		log.Info("notification", "title", titleKey, "description", descriptionKey, "args", args)
	})
}

// Discard drops every notification, for torn-down views.
var Discard Sink = Func(func(string, string, ...any) {})
