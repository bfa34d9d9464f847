package update

import (
	"context"
	"fmt"
	"sync"
	"time"

	"hockeysdk-go/internal/logging"
)

// Settings are the update behaviour switches taken from configuration.
type Settings struct {
	DialogRequired bool
	PreferEmbedded bool
	// ExpiryDate disables update checks and shows the expiry screen once passed. Zero means never.
	ExpiryDate              time.Time
	CheckInstalledFromStore bool
	InstalledFromStore      bool
}

// Manager starts update tasks for registered UIs. Only the most recently
// registered UI receives update prompts.
type Manager struct {
	checker    *Checker
	settings   Settings
	dispatcher Dispatcher
	now        func() time.Time

	mu   sync.Mutex
	task *Task
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDispatcher routes UI work through d.
func WithDispatcher(d Dispatcher) ManagerOption {
	return func(m *Manager) {
		m.dispatcher = d
	}
}

// WithClock overrides the time source used for the expiry check.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

func NewManager(checker *Checker, settings Settings, opts ...ManagerOption) *Manager {
	m := &Manager{
		checker:    checker,
		settings:   settings,
		dispatcher: InlineDispatcher{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// BuildExpired reports whether the configured expiry date has passed.
func (m *Manager) BuildExpired() bool {
	return !m.settings.ExpiryDate.IsZero() && m.now().After(m.settings.ExpiryDate)
}

// Register checks for updates on behalf of ui. It returns the started task,
// or nil when no check was started because the build expired or was
// installed from a store.
func (m *Manager) Register(ctx context.Context, ui UI, listener Listener) *Task {
	if listener == nil {
		listener = NopListener{}
	}
	log := logging.Logger()

	// The previous UI is replaced even when no new check starts.
	m.Unregister()

	if m.BuildExpired() {
		log.Info("Build expired, skipping update check")
		if listener.OnBuildExpired() && ui != nil {
			m.dispatcher.Post(func() {
				ui.ShowExpiryScreen(fmt.Sprintf(ExpiryMessage, ui.AppName()))
			})
		}
		return nil
	}

	if m.settings.CheckInstalledFromStore && m.settings.InstalledFromStore {
		log.Debug("Installed from store, skipping update check")
		return nil
	}

	task := NewTask(m.checker, ui, TaskOptions{
		DialogRequired: m.settings.DialogRequired,
		PreferEmbedded: m.settings.PreferEmbedded,
		Listener:       listener,
		Dispatcher:     m.dispatcher,
	})

	m.mu.Lock()
	previous := m.task
	m.task = task
	m.mu.Unlock()
	if previous != nil {
		previous.Detach()
	}

	task.Start(ctx)
	return task
}

// Unregister detaches the current task, if any.
func (m *Manager) Unregister() {
	m.mu.Lock()
	task := m.task
	m.task = nil
	m.mu.Unlock()
	if task != nil {
		task.Detach()
	}
}
