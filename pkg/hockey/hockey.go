// Package hockey is the entry point host applications embed. A Client ties
// update checks, crash reporting, feedback and telemetry to the host's
// lifecycle: Register once, Resume when the app comes to the foreground,
// Pause when it leaves, Shutdown on exit.
package hockey

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	"hockeysdk-go/configs/config"
	"hockeysdk-go/internal/apiclient"
	"hockeysdk-go/internal/crash"
	"hockeysdk-go/internal/cstmerr"
	"hockeysdk-go/internal/feedback"
	"hockeysdk-go/internal/logging"
	"hockeysdk-go/internal/shared"
	"hockeysdk-go/internal/store"
	"hockeysdk-go/internal/telemetry"
	"hockeysdk-go/internal/update"
)

// Host-facing types.
type (
	UI                = update.UI
	Dialog            = update.Dialog
	Prompt            = update.Prompt
	UpdateScreen      = update.UpdateScreen
	EmbeddedPresenter = update.EmbeddedPresenter
	Listener          = update.Listener
	NopListener       = update.NopListener
	Dispatcher        = update.Dispatcher
	DispatcherFunc    = update.DispatcherFunc
	Result            = update.Result
	Task              = update.Task
	CrashPrompt       = crash.Prompt
	CrashPromptFunc   = crash.PromptFunc
	CrashDecision     = crash.Decision
	FeedbackMessage   = feedback.Message
)

const (
	DontSend   = crash.DontSend
	Send       = crash.Send
	AlwaysSend = crash.AlwaysSend
)

type options struct {
	dispatcher  update.Dispatcher
	crashPrompt crash.Prompt
	listener    update.Listener
	httpClient  apiclient.HTTPClient
	store       store.Store
	now         func() time.Time
	lastInstall time.Time
}

// Option configures a Client.
type Option func(*options)

// WithDispatcher runs every UI call through d, e.g. to hop onto the host's UI goroutine.
func WithDispatcher(d Dispatcher) Option {
	return func(o *options) { o.dispatcher = d }
}

// WithCrashPrompt asks p before uploading crash reports found on Resume.
func WithCrashPrompt(p CrashPrompt) Option {
	return func(o *options) { o.crashPrompt = p }
}

// WithListener receives update check outcomes.
func WithListener(l Listener) Option {
	return func(o *options) { o.listener = l }
}

// WithHTTPClient replaces the resty transport.
func WithHTTPClient(c apiclient.HTTPClient) Option {
	return func(o *options) { o.httpClient = c }
}

// WithStore uses s instead of the backend named in the configuration.
// The caller keeps ownership of s.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithClock overrides the time source for the build expiry check.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLastInstall sets when the running build was installed. Without it the
// modification time of the version file or the executable is used.
func WithLastInstall(t time.Time) Option {
	return func(o *options) { o.lastInstall = t }
}

// Client is one registered application.
type Client struct {
	cfg    *config.Config
	app    shared.AppInfo
	device shared.DeviceInfo

	store     store.Store
	ownsStore bool
	api       *apiclient.APIClient
	checker   *update.Checker
	updates   *update.Manager
	tracker   *update.Tracker
	crashes   *crash.Manager
	feedback  *feedback.Manager
	telemetry *telemetry.Client

	crashPrompt crash.Prompt
	listener    update.Listener

	mu      sync.Mutex
	ui      update.UI
	started bool
}

// New builds a Client from cfg. The app identifier must be 32 hex characters.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, cstmerr.NewConfigError("configuration is nil", nil)
	}
	appID, ok := shared.SanitizeAppIdentifier(cfg.AppIdentifier)
	if !ok {
		return nil, cstmerr.NewConfigError("app_identifier must be 32 hexadecimal characters", nil)
	}

	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	log := logging.Logger().WithField("app", appID)

	versionCode, err := config.GetCurrentVersion(cfg)
	if err != nil {
		log.Warnf("Failed to get current version (assuming 0 and continuing): %v", err)
		versionCode = 0
	}
	expiry, err := cfg.ExpiryDate()
	if err != nil {
		return nil, cstmerr.NewConfigError("invalid update.expiry_date", err)
	}

	c := &Client{
		cfg: cfg,
		app: shared.AppInfo{
			Identifier:  appID,
			PackageName: cfg.PackageName,
			VersionCode: versionCode,
			VersionName: cfg.VersionName,
		},
		device: shared.DeviceInfo{
			DeviceID:     cfg.DeviceID,
			OSVersion:    cfg.OSVersion,
			Model:        cfg.DeviceModel,
			Manufacturer: cfg.DeviceOEM,
			Language:     cfg.Language,
		},
		crashPrompt: o.crashPrompt,
		listener:    o.listener,
	}

	c.store = o.store
	if c.store == nil {
		if c.store, err = store.Open(ctx, cfg.Store); err != nil {
			return nil, err
		}
		c.ownsStore = true
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = apiclient.NewRestyAdapter()
	}
	c.api = apiclient.NewWithHTTPClient(httpClient, cfg.ServerURL, appID)

	c.tracker = update.NewTracker(c.store, appID, versionCode)
	checkerOpts := []update.CheckerOption{
		update.WithTracker(c.tracker),
		update.WithQuery(shared.VersionQuery{
			DeviceID:    cfg.DeviceID,
			OSVersion:   cfg.OSVersion,
			Device:      cfg.DeviceModel,
			OEM:         cfg.DeviceOEM,
			AppVersion:  strconv.Itoa(versionCode),
			Language:    cfg.Language,
			PackageName: cfg.PackageName,
		}),
	}
	if cfg.Update.CachingEnabled {
		checkerOpts = append(checkerOpts, update.WithCache(update.NewVersionCache(c.store, appID)))
	}
	lastInstall := o.lastInstall
	if lastInstall.IsZero() {
		lastInstall = installTime(cfg)
	}
	c.checker = update.NewChecker(c.api, update.Current{
		VersionCode: versionCode,
		LastInstall: lastInstall,
		OSVersion:   cfg.OSVersion,
	}, checkerOpts...)

	managerOpts := []update.ManagerOption{update.WithClock(o.now)}
	if o.dispatcher != nil {
		managerOpts = append(managerOpts, update.WithDispatcher(o.dispatcher))
	}
	c.updates = update.NewManager(c.checker, update.Settings{
		DialogRequired:          cfg.Update.DialogRequired,
		PreferEmbedded:          cfg.Update.PreferEmbedded,
		ExpiryDate:              expiry,
		CheckInstalledFromStore: cfg.Update.CheckInstalledFromStore,
		InstalledFromStore:      cfg.Update.InstalledFromStore,
	}, managerOpts...)

	c.crashes = crash.NewManager(cfg.Crash.Dir, c.app, c.device, c.api, c.store,
		crash.WithAutoSend(cfg.Crash.AutoSend),
		crash.WithUser(cfg.Crash.UserID, cfg.Crash.Contact),
	)
	c.feedback = feedback.NewManager(c.api, c.store, appID)
	c.telemetry = telemetry.NewClient(c.api, c.store, telemetry.NewConfig(appID, cfg.Telemetry), c.app, c.device)

	log.Infof("HockeySDK client created for %s version %d", cfg.PackageName, versionCode)
	return c, nil
}

// installTime approximates when the running build was installed.
func installTime(cfg *config.Config) time.Time {
	if cfg.VersionFile != "" {
		if info, err := os.Stat(cfg.VersionFile); err == nil {
			return info.ModTime()
		}
	}
	if exe, err := os.Executable(); err == nil {
		if info, err := os.Stat(exe); err == nil {
			return info.ModTime()
		}
	}
	return time.Time{}
}

// Register binds ui to the client, starts telemetry and runs the first
// Resume. ui may be nil for headless hosts.
func (c *Client) Register(ctx context.Context, ui UI) *Task {
	c.mu.Lock()
	c.ui = ui
	first := !c.started
	c.started = true
	c.mu.Unlock()

	if first {
		c.telemetry.Start()
	}
	return c.Resume(ctx)
}

// Resume is called whenever the host comes to the foreground: it resumes
// usage tracking, handles pending crash reports and starts an update check.
// The returned task is nil when no check was started.
func (c *Client) Resume(ctx context.Context) *Task {
	log := logging.Logger()
	c.tracker.StartUsage()
	c.telemetry.Foreground()

	if sent, err := c.crashes.Check(ctx, c.crashPrompt); err != nil {
		log.Warnf("Crash report check failed: %v", err)
	} else if sent > 0 {
		log.Infof("Uploaded %d crash reports", sent)
	}

	c.mu.Lock()
	ui := c.ui
	c.mu.Unlock()
	return c.updates.Register(ctx, ui, c.listener)
}

// Pause detaches the running update task and stops usage tracking.
// No UI callbacks arrive after Pause returns.
func (c *Client) Pause(ctx context.Context) {
	c.updates.Unregister()
	c.tracker.StopUsage(ctx)
	c.telemetry.Background()
}

// Destroy is Pause plus forgetting the registered UI.
func (c *Client) Destroy(ctx context.Context) {
	c.Pause(ctx)
	c.mu.Lock()
	c.ui = nil
	c.mu.Unlock()
}

// CheckForUpdate runs one check without any UI.
func (c *Client) CheckForUpdate(ctx context.Context) Result {
	return c.checker.Check(ctx)
}

// DownloadURL returns the package URL of the newest build.
func (c *Client) DownloadURL(ctx context.Context) string {
	return c.checker.DownloadURL(ctx)
}

// DownloadUpdate downloads the newest package to dest, resuming a partial file.
func (c *Client) DownloadUpdate(ctx context.Context, dest string) error {
	return c.api.DownloadFile(ctx, c.checker.DownloadURL(ctx), dest)
}

// Shutdown detaches UI, flushes telemetry and closes the store when the
// client opened it.
func (c *Client) Shutdown(ctx context.Context) error {
	c.Destroy(ctx)
	err := c.telemetry.Shutdown(ctx)
	if err != nil {
		logging.Logger().Warnf("Telemetry flush on shutdown failed: %v", err)
	}
	if c.ownsStore {
		if closeErr := c.store.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

// Crashes returns the crash manager. Hosts guard goroutines with
//
//	defer client.Crashes().Recover()
func (c *Client) Crashes() *crash.Manager { return c.crashes }

func (c *Client) App() shared.AppInfo          { return c.app }
func (c *Client) Config() *config.Config       { return c.cfg }
func (c *Client) Updates() *update.Manager     { return c.updates }
func (c *Client) Feedback() *feedback.Manager  { return c.feedback }
func (c *Client) Telemetry() *telemetry.Client { return c.telemetry }
