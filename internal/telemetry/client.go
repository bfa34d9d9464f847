// Package telemetry collects sessions, page views, events, metrics, traces
// and handled errors and forwards them in batches to the ingestion endpoint.
package telemetry

import (
	"context"
	"fmt"
	"maps"
	"strconv"
	"sync"
	"time"

	"hockeysdk-go/internal/logging"
	"hockeysdk-go/internal/shared"
	"hockeysdk-go/internal/store"

	"github.com/google/uuid"
)

// Client is the telemetry entry point. Track calls are cheap and never
// block on the network.
type Client struct {
	channel *Channel
	now     func() time.Time

	mu           sync.Mutex
	cfg          Config
	baseTags     map[string]string
	sessionID    string
	sessionIsNew bool
	backgrounded time.Time
	started      bool
}

func NewClient(poster Poster, s store.Store, cfg Config, app shared.AppInfo, device shared.DeviceInfo) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		channel:  NewChannel(poster, s, cfg),
		now:      time.Now,
		cfg:      cfg,
		baseTags: baseTags(app, device),
	}
}

func baseTags(app shared.AppInfo, device shared.DeviceInfo) map[string]string {
	tags := map[string]string{
		TagDeviceOS:   shared.OSName,
		TagSDKVersion: "go:" + shared.SDKVersion,
		TagAppVersion: app.VersionName + " (" + strconv.Itoa(app.VersionCode) + ")",
	}
	set := func(key, value string) {
		if value != "" {
			tags[key] = value
		}
	}
	if device.DeviceID != "" {
		set(TagDeviceID, shared.CalculateStringMD5(device.DeviceID))
	}
	set(TagDeviceModel, device.Model)
	set(TagDeviceOEM, device.Manufacturer)
	set(TagDeviceOSVer, device.OSVersion)
	set(TagDeviceLocale, device.Language)
	return tags
}

// Configure replaces the configuration. All later sends, including retries
// of persisted batches, use the new endpoint.
func (c *Client) Configure(cfg Config) {
	cfg = cfg.withDefaults()
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
	c.channel.Configure(cfg)
	logging.Logger().WithField("endpoint", cfg.EndpointURL).Debug("Telemetry configured")
}

// Config returns the active configuration.
func (c *Client) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Start begins periodic sending and, with AutoSessions, opens a session.
func (c *Client) Start() {
	c.mu.Lock()
	if c.started || c.cfg.Disabled {
		c.mu.Unlock()
		return
	}
	c.started = true
	autoSessions := c.cfg.AutoModes.Has(AutoSessions)
	c.mu.Unlock()

	c.channel.Start()
	if autoSessions {
		c.TrackNewSession()
	}
}

// SetUserID sets the user id attached to later items.
func (c *Client) SetUserID(userID string) {
	c.mu.Lock()
	c.cfg.UserID = userID
	c.mu.Unlock()
}

// SetAutoModes enables or disables automatic session and page view collection.
func (c *Client) SetAutoModes(modes AutoMode) {
	c.mu.Lock()
	c.cfg.AutoModes = modes
	c.mu.Unlock()
}

// SessionID returns the current session id, or "" before the first session.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) TrackEvent(name string, properties map[string]string, measurements map[string]float64) {
	c.track(TypeEvent, EventData{Ver: 2, Name: name, Properties: properties, Measurements: measurements})
}

func (c *Client) TrackTrace(message string, properties map[string]string) {
	c.track(TypeMessage, MessageData{Ver: 2, Message: message, SeverityLevel: Information, Properties: properties})
}

func (c *Client) TrackMetric(name string, value float64) {
	c.track(TypeMetric, MetricData{Ver: 2, Metrics: []DataPoint{{Name: name, Value: value, Count: 1}}})
}

func (c *Client) TrackPageView(name string, properties map[string]string, measurements map[string]float64) {
	c.track(TypePageView, PageViewData{Ver: 2, Name: name, Properties: properties, Measurements: measurements})
}

// TrackHandledException records an error the application recovered from.
func (c *Client) TrackHandledException(err error, properties map[string]string) {
	if err == nil {
		return
	}
	c.track(TypeException, ExceptionData{
		Ver:       2,
		HandledAt: "Handled",
		Exceptions: []ExceptionDetails{{
			TypeName: fmt.Sprintf("%T", err),
			Message:  err.Error(),
		}},
		Properties: properties,
	})
}

// TrackNewSession starts a new session with a random id.
func (c *Client) TrackNewSession() {
	c.RenewSession(uuid.NewString())
}

// RenewSession starts a session with the given id.
func (c *Client) RenewSession(sessionID string) {
	c.mu.Lock()
	c.sessionID = sessionID
	c.sessionIsNew = true
	c.mu.Unlock()
	c.track(TypeSessionState, SessionStateData{Ver: 2, State: SessionStart})
}

// Background records that the application left the foreground.
func (c *Client) Background() {
	c.mu.Lock()
	c.backgrounded = c.now()
	c.mu.Unlock()
}

// Foreground starts a new session when AutoSessions is on and the app was
// in the background longer than the session interval.
func (c *Client) Foreground() {
	c.mu.Lock()
	auto := c.cfg.AutoModes.Has(AutoSessions) && !c.cfg.Disabled
	expired := c.sessionID == "" ||
		(!c.backgrounded.IsZero() && c.now().Sub(c.backgrounded) > c.cfg.SessionInterval)
	c.backgrounded = time.Time{}
	c.mu.Unlock()

	if auto && expired {
		c.TrackNewSession()
	}
}

// ScreenShown records a page view when AutoPageViews is on.
func (c *Client) ScreenShown(name string) {
	c.mu.Lock()
	auto := c.cfg.AutoModes.Has(AutoPageViews)
	c.mu.Unlock()
	if auto {
		c.TrackPageView(name, nil, nil)
	}
}

// SendPendingData sends everything queued or persisted now.
func (c *Client) SendPendingData(ctx context.Context) error {
	return c.channel.Flush(ctx)
}

// Shutdown stops periodic sending and flushes what is left.
func (c *Client) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.started = false
	c.mu.Unlock()
	return c.channel.Close(ctx)
}

func (c *Client) track(itemType string, data any) {
	c.mu.Lock()
	if c.cfg.Disabled {
		c.mu.Unlock()
		return
	}
	tags := maps.Clone(c.baseTags)
	if c.cfg.UserID != "" {
		tags[TagUserID] = c.cfg.UserID
	}
	if c.sessionID != "" {
		tags[TagSessionID] = c.sessionID
		tags[TagSessionIsNew] = strconv.FormatBool(c.sessionIsNew)
		c.sessionIsNew = false
	}
	env := newEnvelope(c.cfg.InstrumentationKey, itemType, c.now(), tags, data)
	c.mu.Unlock()

	if err := c.channel.Enqueue(env); err != nil {
		logging.Logger().Warnf("dropping telemetry item: %v", err)
	}
}
