package update

import (
	"context"
	"errors"
	"sync"

	"hockeysdk-go/internal/shared"
	"hockeysdk-go/internal/store"
)

type fakeSource struct {
	mu      sync.Mutex
	payload string
	err     error
	calls   int
	queries []shared.VersionQuery
	// block, when set, holds FetchVersions until it is closed or ctx ends.
	block chan struct{}
}

func (f *fakeSource) FetchVersions(ctx context.Context, q shared.VersionQuery) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.queries = append(f.queries, q)
	block, payload, err := f.block, f.payload, f.err
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return []byte(payload), nil
}

func (f *fakeSource) VersionsURL(format string, q shared.VersionQuery) string {
	return "https://sdk.example.net/api/2/apps/app?format=" + format
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var errOffline = errors.New("offline")

type fakeDialog struct {
	mu        sync.Mutex
	dismissed bool
}

func (d *fakeDialog) Dismiss() {
	d.mu.Lock()
	d.dismissed = true
	d.mu.Unlock()
}

func (d *fakeDialog) isDismissed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dismissed
}

// fakeUI records every call the SDK makes.
type fakeUI struct {
	mu        sync.Mutex
	finishing bool
	events    []string
	toasts    []string
	prompts   []Prompt
	dialogs   []*fakeDialog
	screens   []UpdateScreen
	expiry    []string
}

func (u *fakeUI) record(event string) {
	u.events = append(u.events, event)
}

func (u *fakeUI) AppName() string { return "Demo" }

func (u *fakeUI) IsFinishing() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.finishing
}

func (u *fakeUI) Toast(message string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.record("toast")
	u.toasts = append(u.toasts, message)
}

func (u *fakeUI) ShowUpdateDialog(p Prompt) Dialog {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.record("dialog")
	d := &fakeDialog{}
	u.prompts = append(u.prompts, p)
	u.dialogs = append(u.dialogs, d)
	return d
}

func (u *fakeUI) OpenUpdateScreen(s UpdateScreen) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.record("screen")
	u.screens = append(u.screens, s)
}

func (u *fakeUI) ShowExpiryScreen(message string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.record("expiry")
	u.expiry = append(u.expiry, message)
}

func (u *fakeUI) Finish() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.record("finish")
}

func (u *fakeUI) Events() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.events...)
}

func (u *fakeUI) lastPrompt() Prompt {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.prompts[len(u.prompts)-1]
}

// embeddedUI adds the EmbeddedPresenter capability.
type embeddedUI struct {
	fakeUI
	err      error
	embedded []string
}

func (u *embeddedUI) ShowEmbeddedUpdate(tag string, s UpdateScreen) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.record("embedded")
	u.embedded = append(u.embedded, tag)
	return u.err
}

type recordingListener struct {
	NopListener
	mu        sync.Mutex
	available []Result
	none      int
	cancelled int
	expired   int
	handle    bool
}

func (l *recordingListener) OnUpdateAvailable(r Result, _ string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.available = append(l.available, r)
}

func (l *recordingListener) OnNoUpdateAvailable() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.none++
}

func (l *recordingListener) OnCancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cancelled++
}

func (l *recordingListener) OnBuildExpired() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expired++
	return l.handle
}

func newMemoryStore() store.Store {
	s, err := store.NewMemoryStore(64)
	if err != nil {
		panic(err)
	}
	return s
}
