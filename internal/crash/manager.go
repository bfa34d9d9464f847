// Package crash stores unhandled panics and handled errors as stacktrace
// files and uploads them on a later start.
package crash

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"hockeysdk-go/internal/cstmerr"
	"hockeysdk-go/internal/logging"
	"hockeysdk-go/internal/shared"
	"hockeysdk-go/internal/store"

	"github.com/google/uuid"
)

// Decision is the user's answer to the "send crash reports?" prompt.
type Decision int

const (
	DontSend Decision = iota
	Send
	AlwaysSend
)

func (d Decision) String() string {
	switch d {
	case Send:
		return "send"
	case AlwaysSend:
		return "always_send"
	default:
		return "dont_send"
	}
}

// Prompt asks the user whether pending crash reports may be sent.
type Prompt interface {
	AskSendCrashes(count int) Decision
}

// PromptFunc adapts a function to Prompt.
type PromptFunc func(count int) Decision

func (f PromptFunc) AskSendCrashes(count int) Decision { return f(count) }

// Uploader sends one report. *apiclient.APIClient implements it.
type Uploader interface {
	UploadCrash(ctx context.Context, upload shared.CrashUpload) error
}

// Manager owns the crash report directory.
type Manager struct {
	dir      string
	app      shared.AppInfo
	device   shared.DeviceInfo
	uploader Uploader
	store    store.Store
	autoSend bool
	userID   string
	contact  string
	maxRetry int
	describe func() string
	now      func() time.Time

	mu sync.Mutex // serialises Check
}

// Option configures a Manager.
type Option func(*Manager)

// WithAutoSend uploads pending reports without asking.
func WithAutoSend(autoSend bool) Option {
	return func(m *Manager) { m.autoSend = autoSend }
}

// WithUser attaches a user id and contact to uploaded reports.
func WithUser(userID, contact string) Option {
	return func(m *Manager) {
		m.userID = userID
		m.contact = contact
	}
}

// WithMaxRetryAttempts drops a report after n failed uploads. Zero keeps it forever.
func WithMaxRetryAttempts(n int) Option {
	return func(m *Manager) { m.maxRetry = n }
}

// WithDescription attaches the text returned by fn to every uploaded report,
// e.g. recent log lines.
func WithDescription(fn func() string) Option {
	return func(m *Manager) { m.describe = fn }
}

func NewManager(dir string, app shared.AppInfo, device shared.DeviceInfo, uploader Uploader, s store.Store, opts ...Option) *Manager {
	m := &Manager{
		dir:      dir,
		app:      app,
		device:   device,
		uploader: uploader,
		store:    s,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) keyAlwaysSend() string { return store.Key("crash", m.app.Identifier, "always_send") }
func (m *Manager) keyReporter() string   { return store.Key("crash", m.app.Identifier, "reporter_key") }
func (m *Manager) keyRetry(id string) string {
	return store.Key("crash", m.app.Identifier, "retry", id)
}

// ReporterKey returns the stable anonymous id written into every report.
func (m *Manager) ReporterKey(ctx context.Context) string {
	if key, err := m.store.Get(ctx, m.keyReporter()); err == nil && key != "" {
		return key
	}
	key := uuid.New().String()
	if err := m.store.Put(ctx, m.keyReporter(), key); err != nil {
		logging.Logger().Warnf("failed to persist crash reporter key: %v", err)
	}
	return key
}

// SaveException writes a report for err. stack may be nil, in which case
// the calling goroutine's stack is used. A nil err is rejected.
func (m *Manager) SaveException(err error, stack []byte) (string, error) {
	if err == nil {
		return "", cstmerr.NewCrashReportError("no error to report", nil)
	}
	if stack == nil {
		stack = debug.Stack()
	}
	return m.save(goroutineName(stack), describe(err, stack))
}

func (m *Manager) save(thread, stack string) (string, error) {
	if err := shared.CheckAndCreateDir(m.dir); err != nil {
		return "", cstmerr.NewCrashReportError(fmt.Sprintf(cstmerr.CRASH_WRITE_ERROR, m.dir), err)
	}
	id := uuid.New().String()
	report := newReport(m.app, m.device, thread, m.ReporterKey(context.Background()), m.now(), stack)
	path := filepath.Join(m.dir, id+FileExtension)
	if err := os.WriteFile(path, []byte(Format(report)), 0644); err != nil {
		return "", cstmerr.NewCrashReportError(fmt.Sprintf(cstmerr.CRASH_WRITE_ERROR, path), err)
	}
	logging.Logger().WithField("report", id).Info("Crash report saved")
	return path, nil
}

// Recover stores a panicking goroutine's state and re-panics. Use it as
//
//	defer manager.Recover()
func (m *Manager) Recover() {
	r := recover()
	if r == nil {
		return
	}
	stack := debug.Stack()
	if _, err := m.save(goroutineName(stack), fmt.Sprintf("panic: %v\n\n%s", r, stack)); err != nil {
		logging.Logger().Errorf("failed to save crash report: %v", err)
	}
	panic(r)
}

// Pending returns stored reports, oldest first.
func (m *Manager) Pending() ([]shared.CrashReport, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, cstmerr.NewCrashReportError(fmt.Sprintf(cstmerr.CRASH_READ_ERROR, m.dir), err)
	}

	reports := make([]shared.CrashReport, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), FileExtension) {
			continue
		}
		path := filepath.Join(m.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			logging.Logger().Warnf(cstmerr.CRASH_READ_ERROR+": %v", path, err)
			continue
		}
		report := Parse(strings.TrimSuffix(entry.Name(), FileExtension), string(data))
		report.Path = path
		reports = append(reports, report)
	}
	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].Date.Before(reports[j].Date)
	})
	return reports, nil
}

// AlwaysSend reports whether the user chose to always send crash reports.
func (m *Manager) AlwaysSend(ctx context.Context) bool {
	v, err := m.store.Get(ctx, m.keyAlwaysSend())
	return err == nil && v == "true"
}

func (m *Manager) setAlwaysSend(ctx context.Context) {
	if err := m.store.Put(ctx, m.keyAlwaysSend(), "true"); err != nil {
		logging.Logger().Warnf("failed to persist always-send preference: %v", err)
	}
}

// Check handles pending reports: they are uploaded when auto-send or the
// always-send preference is on, otherwise prompt decides. With a nil prompt
// the reports stay pending. Check returns the number of uploaded reports.
func (m *Manager) Check(ctx context.Context, prompt Prompt) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reports, err := m.Pending()
	if err != nil || len(reports) == 0 {
		return 0, err
	}
	log := logging.Logger().WithField("pending", len(reports))

	if !m.autoSend && !m.AlwaysSend(ctx) {
		if prompt == nil {
			log.Debug("Crash reports found, waiting for user decision")
			return 0, nil
		}
		decision := prompt.AskSendCrashes(len(reports))
		log.Debugf("Crash prompt answered: %s", decision)
		switch decision {
		case DontSend:
			m.deleteAll(ctx, reports)
			return 0, nil
		case AlwaysSend:
			m.setAlwaysSend(ctx)
		}
	}
	return m.upload(ctx, reports)
}

// SendPending uploads every pending report regardless of preferences.
func (m *Manager) SendPending(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reports, err := m.Pending()
	if err != nil {
		return 0, err
	}
	return m.upload(ctx, reports)
}

// DeletePending removes all stored reports without sending them.
func (m *Manager) DeletePending(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	reports, err := m.Pending()
	if err != nil {
		return err
	}
	m.deleteAll(ctx, reports)
	return nil
}

func (m *Manager) upload(ctx context.Context, reports []shared.CrashReport) (int, error) {
	log := logging.Logger()
	sent := 0
	var lastErr error
	description := ""
	if m.describe != nil {
		description = m.describe()
	}
	for _, report := range reports {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		err := m.uploader.UploadCrash(ctx, shared.CrashUpload{
			Raw:         report.Raw,
			UserID:      m.userID,
			Contact:     m.contact,
			Description: description,
		})
		if err != nil {
			lastErr = cstmerr.NewCrashReportError(fmt.Sprintf(cstmerr.CRASH_UPLOAD_ERROR, report.ID), err)
			log.Warn(lastErr)
			m.recordFailure(ctx, report)
			continue
		}
		sent++
		m.delete(ctx, report)
	}
	if sent > 0 {
		log.Infof("Uploaded %d crash report(s)", sent)
	}
	return sent, lastErr
}

func (m *Manager) recordFailure(ctx context.Context, report shared.CrashReport) {
	if m.maxRetry <= 0 {
		return
	}
	attempts := 0
	if v, err := m.store.Get(ctx, m.keyRetry(report.ID)); err == nil {
		attempts, _ = strconv.Atoi(v)
	}
	attempts++
	if attempts >= m.maxRetry {
		logging.Logger().Warnf("Dropping crash report %s after %d failed uploads", report.ID, attempts)
		m.delete(ctx, report)
		return
	}
	if err := m.store.Put(ctx, m.keyRetry(report.ID), strconv.Itoa(attempts)); err != nil {
		logging.Logger().Warnf("failed to persist crash retry counter: %v", err)
	}
}

func (m *Manager) deleteAll(ctx context.Context, reports []shared.CrashReport) {
	for _, report := range reports {
		m.delete(ctx, report)
	}
}

func (m *Manager) delete(ctx context.Context, report shared.CrashReport) {
	if err := os.Remove(report.Path); err != nil && !os.IsNotExist(err) {
		logging.Logger().Warnf(cstmerr.CRASH_DELETE_ERROR+": %v", report.Path, err)
	}
	if err := m.store.Delete(ctx, m.keyRetry(report.ID)); err != nil {
		logging.Logger().Debugf("failed to clear crash retry counter: %v", err)
	}
}

// goroutineName returns "goroutine N" from the first line of a stack dump.
func goroutineName(stack []byte) string {
	line, _, _ := strings.Cut(string(stack), "\n")
	if name, _, ok := strings.Cut(line, " ["); ok && strings.HasPrefix(name, "goroutine ") {
		return name
	}
	return "main"
}
