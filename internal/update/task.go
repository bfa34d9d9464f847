package update

import (
	"context"
	"fmt"
	"sync"

	"hockeysdk-go/internal/cstmerr"
	"hockeysdk-go/internal/logging"
)

// TaskOptions tune how a Task presents a found update.
type TaskOptions struct {
	DialogRequired bool
	PreferEmbedded bool
	Listener       Listener
	Dispatcher     Dispatcher
}

// Task is one fire-and-forget update check bound to a UI. Detach releases
// the UI; nothing is shown through it afterwards.
type Task struct {
	checker    *Checker
	listener   Listener
	dispatcher Dispatcher
	opts       TaskOptions

	mu       sync.Mutex
	ui       UI
	dialog   Dialog
	detached bool
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewTask(checker *Checker, ui UI, opts TaskOptions) *Task {
	if opts.Listener == nil {
		opts.Listener = NopListener{}
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = InlineDispatcher{}
	}
	return &Task{
		checker:    checker,
		listener:   opts.Listener,
		dispatcher: opts.Dispatcher,
		opts:       opts,
		ui:         ui,
		done:       make(chan struct{}),
	}
}

// Start runs the check on a new goroutine and returns immediately.
// A Task can be started once.
func (t *Task) Start(ctx context.Context) {
	t.mu.Lock()
	if t.cancel != nil || t.detached {
		t.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.mu.Unlock()

	go func() {
		defer close(t.done)
		result := t.checker.Check(ctx)
		if t.isDetached() {
			return
		}
		t.dispatcher.Post(func() { t.deliver(ctx, result) })
	}()
}

// Done is closed once the check finished and its result was handed to the dispatcher.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Detach cancels a running check, dismisses a visible dialog and drops the UI.
func (t *Task) Detach() {
	t.mu.Lock()
	if t.detached {
		t.mu.Unlock()
		return
	}
	t.detached = true
	cancel, dialog := t.cancel, t.dialog
	t.ui, t.dialog = nil, nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if dialog != nil {
		dialog.Dismiss()
	}
}

func (t *Task) isDetached() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.detached
}

// activeUI returns the UI unless the task was detached or cleaned up.
func (t *Task) activeUI() UI {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.detached {
		return nil
	}
	return t.ui
}

func (t *Task) cleanUp() {
	t.mu.Lock()
	t.ui, t.dialog = nil, nil
	t.mu.Unlock()
}

func (t *Task) deliver(ctx context.Context, result Result) {
	if t.isDetached() {
		return
	}
	if !result.Available {
		t.listener.OnNoUpdateAvailable()
		return
	}
	t.listener.OnUpdateAvailable(result, t.checker.DownloadURL(ctx))
	if t.opts.DialogRequired {
		t.showDialog(ctx, result)
	}
}

func (t *Task) showDialog(ctx context.Context, result Result) {
	if t.checker.CachingEnabled() {
		if err := t.checker.Cache().Set(ctx, result.Payload); err != nil {
			logging.Logger().Warnf("failed to write version cache: %v", err)
		}
	}

	ui := t.activeUI()
	if ui == nil || ui.IsFinishing() {
		return
	}

	if result.Mandatory {
		ui.Toast(fmt.Sprintf(MandatoryToast, ui.AppName()))
		t.openUpdateScreen(ctx, result, true)
		return
	}

	t.mu.Lock()
	previous := t.dialog
	t.dialog = nil
	t.mu.Unlock()
	if previous != nil {
		previous.Dismiss()
	}

	var once sync.Once
	prompt := Prompt{
		Tag:          DialogTag,
		Title:        DialogTitle,
		Message:      DialogMessage,
		AcceptLabel:  AcceptLabel,
		DeclineLabel: DeclineLabel,
		Releases:     result.Releases,
		Accept:       func() { once.Do(func() { t.accept(ctx, result) }) },
		Decline:      func() { once.Do(t.decline) },
	}
	dialog := ui.ShowUpdateDialog(prompt)
	if dialog == nil {
		return
	}

	t.mu.Lock()
	// The host may have answered or detached while the dialog was being shown.
	keep := !t.detached && t.ui != nil
	if keep {
		t.dialog = dialog
	}
	t.mu.Unlock()
	if !keep && t.isDetached() {
		dialog.Dismiss()
	}
}

func (t *Task) decline() {
	if t.isDetached() {
		return
	}
	t.cleanUp()
	t.listener.OnCancel()
}

func (t *Task) accept(ctx context.Context, result Result) {
	if t.isDetached() {
		return
	}
	if t.checker.CachingEnabled() {
		if err := t.checker.Cache().Clear(ctx); err != nil {
			logging.Logger().Warnf("failed to clear version cache: %v", err)
		}
	}

	ui := t.activeUI()
	if presenter, ok := ui.(EmbeddedPresenter); ok && t.opts.PreferEmbedded {
		t.showEmbedded(ctx, presenter, result)
		return
	}
	t.openUpdateScreen(ctx, result, false)
}

func (t *Task) showEmbedded(ctx context.Context, presenter EmbeddedPresenter, result Result) {
	err := presenter.ShowEmbeddedUpdate(DialogTag, t.screen(ctx, result))
	if err == nil {
		t.cleanUp()
		return
	}
	log := logging.Logger()
	log.Debugf("An error happened while showing the embedded update: %v", cstmerr.NewPresenterError("embedded update failed", err))
	log.Debug("Showing update screen instead.")
	t.openUpdateScreen(ctx, result, false)
}

func (t *Task) openUpdateScreen(ctx context.Context, result Result, finish bool) {
	if ui := t.activeUI(); ui != nil {
		ui.OpenUpdateScreen(t.screen(ctx, result))
		if finish {
			ui.Finish()
		}
	}
	t.cleanUp()
}

func (t *Task) screen(ctx context.Context, result Result) UpdateScreen {
	return UpdateScreen{
		Releases:    result.Releases,
		Payload:     result.Payload,
		DownloadURL: t.checker.DownloadURL(ctx),
		Mandatory:   result.Mandatory,
	}
}
