package loader

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Loader is the process-wide busy indicator. Independent consumers each hold
// named reasons; the indicator is visible while at least one reason is held.
// Reasons are not owned: a consumer must disable exactly the reasons it enabled.
type Loader struct {
	logger    *logrus.Logger
	mu        sync.Mutex
	reasons   []string
	listeners []func(active bool)
	notifyMu  sync.Mutex
}

func New(logger *logrus.Logger) *Loader {
	return &Loader{
		logger: logger,
	}
}

// OnChange registers fn to be called whenever the indicator is shown or hidden.
// Calls are serialized; fn must not enable or disable reasons itself.
func (l *Loader) OnChange(fn func(active bool)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

func (l *Loader) Enable(reason string) {
	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()

	l.mu.Lock()
	if l.indexOf(reason) >= 0 {
		l.mu.Unlock()
		return
	}
	l.reasons = append(l.reasons, reason)
	shown := len(l.reasons) == 1
	listeners := l.listeners
	l.mu.Unlock()

	l.logger.WithField("reason", reason).Debug("Loader reason enabled")

	if shown {
		l.notify(listeners, true)
	}
}

func (l *Loader) Disable(reason string) {
	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()

	l.mu.Lock()
	i := l.indexOf(reason)
	if i < 0 {
		l.mu.Unlock()
		return
	}
	l.reasons = append(l.reasons[:i:i], l.reasons[i+1:]...)
	hidden := len(l.reasons) == 0
	listeners := l.listeners
	l.mu.Unlock()

	l.logger.WithField("reason", reason).Debug("Loader reason disabled")

	if hidden {
		l.notify(listeners, false)
	}
}

func (l *Loader) IsActive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.reasons) > 0
}

func (l *Loader) Has(reason string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.indexOf(reason) >= 0
}

// Reasons returns the held reasons in the order they were enabled.
func (l *Loader) Reasons() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.reasons))
	copy(out, l.reasons)
	return out
}

func (l *Loader) indexOf(reason string) int {
	for i, r := range l.reasons {
		if r == reason {
			return i
		}
	}
	return -1
}

func (l *Loader) notify(listeners []func(bool), active bool) {
	l.logger.WithField("active", active).Debug("Loader indicator changed")
	for _, fn := range listeners {
		fn(active)
	}
}
