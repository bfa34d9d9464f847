package crash

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"hockeysdk-go/internal/cstmerr"
	"hockeysdk-go/internal/shared"
	"hockeysdk-go/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	mu      sync.Mutex
	err     error
	uploads []shared.CrashUpload
}

func (f *fakeUploader) UploadCrash(ctx context.Context, upload shared.CrashUpload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.uploads = append(f.uploads, upload)
	return nil
}

var (
	testApp    = shared.AppInfo{Identifier: "app", PackageName: "net.example.demo", VersionCode: 12, VersionName: "1.2"}
	testDevice = shared.DeviceInfo{OSVersion: "14", Model: "Pixel 8", Manufacturer: "Google"}
)

func newTestManager(t *testing.T, uploader Uploader, opts ...Option) (*Manager, store.Store) {
	t.Helper()
	s, err := store.NewMemoryStore(32)
	require.NoError(t, err)
	m := NewManager(filepath.Join(t.TempDir(), "crashes"), testApp, testDevice, uploader, s, opts...)
	m.now = func() time.Time { return time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC) }
	return m, s
}

func TestFormatAndParse(t *testing.T) {
	report := shared.CrashReport{
		PackageName:  "net.example.demo",
		VersionCode:  "12",
		VersionName:  "1.2",
		OSVersion:    "14",
		Manufacturer: "Google",
		Model:        "Pixel 8",
		Thread:       "goroutine 1",
		ReporterKey:  "key",
		Date:         time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC),
		StackTrace:   "panic: boom\n\ngoroutine 1 [running]:\nmain.main()\n",
	}
	formatted := Format(report)
	assert.Equal(t, "Package: net.example.demo\n"+
		"Version Code: 12\n"+
		"Version Name: 1.2\n"+
		"OS: 14\n"+
		"Manufacturer: Google\n"+
		"Model: Pixel 8\n"+
		"Thread: goroutine 1\n"+
		"CrashReporter Key: key\n"+
		"Date: Mon Mar 04 05:06:07 UTC 2024\n"+
		"\n"+
		"panic: boom\n\ngoroutine 1 [running]:\nmain.main()\n", formatted)

	parsed := Parse("id", formatted)
	assert.Equal(t, "id", parsed.ID)
	assert.Equal(t, formatted, parsed.Raw)
	assert.Equal(t, report.StackTrace, parsed.StackTrace)
	assert.Equal(t, report.Model, parsed.Model)
	assert.Equal(t, report.ReporterKey, parsed.ReporterKey)
	assert.True(t, report.Date.Equal(parsed.Date))

	headless := Parse("x", "just a stack")
	assert.Equal(t, "just a stack", headless.StackTrace)
}

func TestSaveExceptionAndPending(t *testing.T) {
	m, _ := newTestManager(t, &fakeUploader{})

	path, err := m.SaveException(errors.New("boom"), []byte("goroutine 7 [running]:\nmain.work()\n"))
	require.NoError(t, err)
	assert.FileExists(t, path)

	reports, err := m.Pending()
	require.NoError(t, err)
	require.Len(t, reports, 1)
	r := reports[0]
	assert.Equal(t, "net.example.demo", r.PackageName)
	assert.Equal(t, "12", r.VersionCode)
	assert.Equal(t, "goroutine 7", r.Thread)
	assert.Equal(t, m.ReporterKey(context.Background()), r.ReporterKey)
	assert.Contains(t, r.StackTrace, "boom\ngoroutine 7 [running]:")
	assert.Equal(t, path, r.Path)
}

func TestPendingWithoutDirectory(t *testing.T) {
	m, _ := newTestManager(t, &fakeUploader{})
	reports, err := m.Pending()
	assert.NoError(t, err)
	assert.Empty(t, reports)
}

func TestRecoverSavesAndRepanics(t *testing.T) {
	m, _ := newTestManager(t, &fakeUploader{})

	assert.PanicsWithValue(t, "kaboom", func() {
		defer m.Recover()
		panic("kaboom")
	})

	reports, err := m.Pending()
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Contains(t, reports[0].StackTrace, "panic: kaboom")
}

func TestCheckWithoutPromptKeepsReports(t *testing.T) {
	uploader := &fakeUploader{}
	m, _ := newTestManager(t, uploader)
	_, err := m.SaveException(errors.New("boom"), []byte("stack"))
	require.NoError(t, err)

	sent, err := m.Check(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, sent)
	reports, _ := m.Pending()
	assert.Len(t, reports, 1)
}

func TestCheckDecisions(t *testing.T) {
	ctx := context.Background()

	t.Run("dont send deletes", func(t *testing.T) {
		uploader := &fakeUploader{}
		m, _ := newTestManager(t, uploader)
		_, _ = m.SaveException(errors.New("boom"), []byte("stack"))

		sent, err := m.Check(ctx, PromptFunc(func(int) Decision { return DontSend }))
		require.NoError(t, err)
		assert.Zero(t, sent)
		reports, _ := m.Pending()
		assert.Empty(t, reports)
		assert.Empty(t, uploader.uploads)
	})

	t.Run("send uploads once", func(t *testing.T) {
		uploader := &fakeUploader{}
		m, _ := newTestManager(t, uploader, WithUser("user-1", "dev@example.net"),
			WithDescription(func() string { return "last log lines" }))
		_, _ = m.SaveException(errors.New("boom"), []byte("stack"))
		_, _ = m.SaveException(errors.New("again"), []byte("stack"))

		var asked int
		sent, err := m.Check(ctx, PromptFunc(func(n int) Decision { asked = n; return Send }))
		require.NoError(t, err)
		assert.Equal(t, 2, asked)
		assert.Equal(t, 2, sent)
		require.Len(t, uploader.uploads, 2)
		assert.Equal(t, "user-1", uploader.uploads[0].UserID)
		assert.Equal(t, "dev@example.net", uploader.uploads[0].Contact)
		assert.Equal(t, "last log lines", uploader.uploads[0].Description)
		assert.Contains(t, uploader.uploads[0].Raw, "Package: net.example.demo")
		assert.False(t, m.AlwaysSend(ctx))
	})

	t.Run("always send is remembered", func(t *testing.T) {
		uploader := &fakeUploader{}
		m, _ := newTestManager(t, uploader)
		_, _ = m.SaveException(errors.New("boom"), []byte("stack"))

		_, err := m.Check(ctx, PromptFunc(func(int) Decision { return AlwaysSend }))
		require.NoError(t, err)
		assert.True(t, m.AlwaysSend(ctx))

		_, _ = m.SaveException(errors.New("later"), []byte("stack"))
		sent, err := m.Check(ctx, PromptFunc(func(int) Decision {
			t.Fatal("prompt must not be shown once always-send is set")
			return DontSend
		}))
		require.NoError(t, err)
		assert.Equal(t, 1, sent)
		assert.Len(t, uploader.uploads, 2)
	})
}

func TestAutoSendSkipsPrompt(t *testing.T) {
	uploader := &fakeUploader{}
	m, _ := newTestManager(t, uploader, WithAutoSend(true))
	_, _ = m.SaveException(errors.New("boom"), []byte("stack"))

	sent, err := m.Check(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestFailedUploadKeepsReport(t *testing.T) {
	uploader := &fakeUploader{err: errors.New("offline")}
	m, _ := newTestManager(t, uploader, WithAutoSend(true))
	_, _ = m.SaveException(errors.New("boom"), []byte("stack"))

	sent, err := m.Check(context.Background(), nil)
	assert.Error(t, err)
	assert.Zero(t, sent)
	reports, _ := m.Pending()
	assert.Len(t, reports, 1)

	uploader.err = nil
	sent, err = m.SendPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	reports, _ = m.Pending()
	assert.Empty(t, reports)
}

func TestMaxRetryAttemptsDropsReport(t *testing.T) {
	uploader := &fakeUploader{err: errors.New("offline")}
	m, _ := newTestManager(t, uploader, WithAutoSend(true), WithMaxRetryAttempts(2))
	_, _ = m.SaveException(errors.New("boom"), []byte("stack"))

	_, _ = m.Check(context.Background(), nil)
	reports, _ := m.Pending()
	assert.Len(t, reports, 1)

	_, _ = m.Check(context.Background(), nil)
	reports, _ = m.Pending()
	assert.Empty(t, reports)
}

func TestPendingIgnoresOtherFiles(t *testing.T) {
	m, _ := newTestManager(t, &fakeUploader{})
	require.NoError(t, os.MkdirAll(m.dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(m.dir, "notes.txt"), []byte("x"), 0644))

	reports, err := m.Pending()
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestDeletePending(t *testing.T) {
	m, _ := newTestManager(t, &fakeUploader{})
	_, _ = m.SaveException(errors.New("boom"), []byte("stack"))
	require.NoError(t, m.DeletePending(context.Background()))
	reports, _ := m.Pending()
	assert.Empty(t, reports)
}

func TestSaveExceptionRejectsNilError(t *testing.T) {
	m, _ := newTestManager(t, &fakeUploader{})
	path, err := m.SaveException(nil, []byte("stack"))

	var reportErr *cstmerr.CrashReportError
	assert.ErrorAs(t, err, &reportErr)
	assert.Empty(t, path)
	reports, err := m.Pending()
	require.NoError(t, err)
	assert.Empty(t, reports)
}
