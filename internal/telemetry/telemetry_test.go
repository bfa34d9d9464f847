package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"hockeysdk-go/configs/config"
	"hockeysdk-go/internal/apiclient"
	"hockeysdk-go/internal/shared"
	"hockeysdk-go/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAppID = "14b3e7126cb873e4df58ebf8a81ec903"

type post struct {
	endpoint string
	lines    []string
}

type fakePoster struct {
	mu    sync.Mutex
	err   error
	posts []post
}

func (f *fakePoster) PostTelemetry(ctx context.Context, endpoint string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.posts = append(f.posts, post{endpoint: endpoint, lines: strings.Split(string(payload), "\n")})
	return nil
}

func (f *fakePoster) snapshot() []post {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]post(nil), f.posts...)
}

func newTestClient(t *testing.T, poster Poster, cfg Config) *Client {
	t.Helper()
	s, err := store.NewMemoryStore(128)
	require.NoError(t, err)
	app := shared.AppInfo{Identifier: testAppID, VersionCode: 12, VersionName: "1.2"}
	device := shared.DeviceInfo{DeviceID: "device-1", Model: "Pixel 8", Manufacturer: "Google", OSVersion: "14", Language: "en"}
	c := NewClient(poster, s, cfg, app, device)
	c.now = func() time.Time { return time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC) }
	return c
}

func decode(t *testing.T, line string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &m))
	return m
}

func TestNewConfigDefaultsAndIkey(t *testing.T) {
	cfg := NewConfig(testAppID, config.TelemetryConfig{AutoSessions: true})
	assert.Equal(t, "14b3e712-6cb8-73e4-df58-ebf8a81ec903", cfg.InstrumentationKey)
	assert.Equal(t, DefaultEndpointURL, cfg.EndpointURL)
	assert.Equal(t, DefaultMaxBatchCount, cfg.MaxBatchCount)
	assert.Equal(t, DefaultMaxBatchInterval, cfg.MaxBatchInterval)
	assert.Equal(t, DefaultSessionInterval, cfg.SessionInterval)
	assert.True(t, cfg.AutoModes.Has(AutoSessions))
	assert.False(t, cfg.AutoModes.Has(AutoPageViews))
}

func TestEnvelopeShape(t *testing.T) {
	poster := &fakePoster{}
	c := newTestClient(t, poster, NewConfig(testAppID, config.TelemetryConfig{UserID: "user-7"}))

	c.TrackEvent("purchase", map[string]string{"sku": "A1"}, map[string]float64{"price": 9.5})
	require.NoError(t, c.SendPendingData(context.Background()))

	posts := poster.snapshot()
	require.Len(t, posts, 1)
	require.Len(t, posts[0].lines, 1)
	env := decode(t, posts[0].lines[0])

	assert.Equal(t, "Microsoft.ApplicationInsights.14b3e7126cb873e4df58ebf8a81ec903.Event", env["name"])
	assert.Equal(t, "14b3e712-6cb8-73e4-df58-ebf8a81ec903", env["iKey"])
	assert.Equal(t, "2024-03-04T05:06:07.000Z", env["time"])

	tags := env["tags"].(map[string]any)
	assert.Equal(t, "user-7", tags[TagUserID])
	assert.Equal(t, "Pixel 8", tags[TagDeviceModel])
	assert.Equal(t, "1.2 (12)", tags[TagAppVersion])
	assert.Equal(t, shared.CalculateStringMD5("device-1"), tags[TagDeviceID])

	data := env["data"].(map[string]any)
	assert.Equal(t, "EventData", data["baseType"])
	base := data["baseData"].(map[string]any)
	assert.Equal(t, "purchase", base["name"])
	assert.Equal(t, 9.5, base["measurements"].(map[string]any)["price"])
}

func TestAllItemTypes(t *testing.T) {
	poster := &fakePoster{}
	c := newTestClient(t, poster, NewConfig(testAppID, config.TelemetryConfig{}))

	c.TrackNewSession()
	c.TrackTrace("hello", nil)
	c.TrackMetric("latency", 12.5)
	c.TrackPageView("Settings", nil, nil)
	c.TrackHandledException(errors.New("disk full"), map[string]string{"op": "save"})
	c.TrackHandledException(nil, nil)
	require.NoError(t, c.SendPendingData(context.Background()))

	posts := poster.snapshot()
	require.Len(t, posts, 1)
	var types []string
	for _, line := range posts[0].lines {
		types = append(types, decode(t, line)["data"].(map[string]any)["baseType"].(string))
	}
	assert.Equal(t, []string{"SessionStateData", "MessageData", "MetricData", "PageViewData", "ExceptionData"}, types)

	first := decode(t, posts[0].lines[0])["tags"].(map[string]any)
	second := decode(t, posts[0].lines[1])["tags"].(map[string]any)
	assert.Equal(t, "true", first[TagSessionIsNew])
	assert.Equal(t, "false", second[TagSessionIsNew])
	assert.Equal(t, first[TagSessionID], second[TagSessionID])
}

func TestSecondConfigurationWins(t *testing.T) {
	var mu sync.Mutex
	hits := map[string]int{}
	handler := func(name string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "application/x-json-stream", r.Header.Get("Content-Type"))
			_, _ = io.Copy(io.Discard, r.Body)
			mu.Lock()
			hits[name]++
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
		}
	}
	first := httptest.NewServer(handler("first"))
	defer first.Close()
	second := httptest.NewServer(handler("second"))
	defer second.Close()

	api := apiclient.New("https://sdk.example.net/", testAppID)
	c := newTestClient(t, api, Config{InstrumentationKey: "ikey", EndpointURL: first.URL})
	c.Configure(Config{InstrumentationKey: "ikey", EndpointURL: second.URL})

	c.TrackEvent("a", nil, nil)
	require.NoError(t, c.SendPendingData(context.Background()))
	c.TrackEvent("b", nil, nil)
	require.NoError(t, c.SendPendingData(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, hits["first"])
	assert.Equal(t, 2, hits["second"])
	assert.Equal(t, second.URL, c.channel.Endpoint())
}

func TestFailedBatchIsPersistedAndResentToCurrentEndpoint(t *testing.T) {
	ctx := context.Background()
	poster := &fakePoster{err: errors.New("offline")}
	c := newTestClient(t, poster, Config{InstrumentationKey: "ikey", EndpointURL: "https://old.example.net/track"})

	c.TrackEvent("lost?", nil, nil)
	assert.Error(t, c.SendPendingData(ctx))
	assert.Equal(t, 1, c.channel.Pending(ctx))

	poster.mu.Lock()
	poster.err = nil
	poster.mu.Unlock()
	c.Configure(Config{InstrumentationKey: "ikey", EndpointURL: "https://new.example.net/track"})

	require.NoError(t, c.SendPendingData(ctx))
	assert.Zero(t, c.channel.Pending(ctx))
	posts := poster.snapshot()
	require.Len(t, posts, 1)
	assert.Equal(t, "https://new.example.net/track", posts[0].endpoint)
	assert.Contains(t, posts[0].lines[0], `"lost?"`)
}

func TestBatchesAreSplitByMaxCount(t *testing.T) {
	poster := &fakePoster{}
	c := newTestClient(t, poster, Config{InstrumentationKey: "ikey", MaxBatchCount: 2})

	for i := 0; i < 5; i++ {
		c.TrackMetric("m", float64(i))
	}
	require.NoError(t, c.SendPendingData(context.Background()))

	posts := poster.snapshot()
	require.Len(t, posts, 3)
	assert.Len(t, posts[0].lines, 2)
	assert.Len(t, posts[2].lines, 1)
}

func TestFullBatchTriggersSendWhenStarted(t *testing.T) {
	poster := &fakePoster{}
	c := newTestClient(t, poster, Config{InstrumentationKey: "ikey", MaxBatchCount: 2, MaxBatchInterval: time.Hour})
	c.Start()
	defer c.Shutdown(context.Background())

	c.TrackEvent("a", nil, nil)
	c.TrackEvent("b", nil, nil)

	assert.Eventually(t, func() bool { return len(poster.snapshot()) == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestShutdownFlushes(t *testing.T) {
	poster := &fakePoster{}
	c := newTestClient(t, poster, Config{InstrumentationKey: "ikey", MaxBatchInterval: time.Hour})
	c.Start()
	c.TrackTrace("bye", nil)

	require.NoError(t, c.Shutdown(context.Background()))
	assert.Len(t, poster.snapshot(), 1)
	assert.Zero(t, c.channel.Len())
}

func TestDisabledClientDropsItems(t *testing.T) {
	poster := &fakePoster{}
	c := newTestClient(t, poster, Config{InstrumentationKey: "ikey", Disabled: true})
	c.Start()
	c.TrackEvent("a", nil, nil)
	require.NoError(t, c.SendPendingData(context.Background()))
	assert.Empty(t, poster.snapshot())
}

func TestAutoSessionsAndPageViews(t *testing.T) {
	poster := &fakePoster{}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTestClient(t, poster, Config{InstrumentationKey: "ikey", AutoModes: AutoSessions | AutoPageViews, SessionInterval: 20 * time.Second, MaxBatchInterval: time.Hour})
	c.now = func() time.Time { return now }

	c.Start()
	defer c.Shutdown(context.Background())
	firstSession := c.SessionID()
	require.NotEmpty(t, firstSession)

	// A short trip to the background keeps the session.
	c.Background()
	now = now.Add(5 * time.Second)
	c.Foreground()
	assert.Equal(t, firstSession, c.SessionID())

	// A long one starts a new session.
	c.Background()
	now = now.Add(time.Minute)
	c.Foreground()
	assert.NotEqual(t, firstSession, c.SessionID())

	c.ScreenShown("Home")
	c.SetAutoModes(AutoNone)
	c.ScreenShown("Ignored")
	assert.Equal(t, 3, c.channel.Len(), "two session starts and one page view")

	c.RenewSession("custom-id")
	assert.Equal(t, "custom-id", c.SessionID())
}

func TestPersistedBatchesAreResentOldestFirst(t *testing.T) {
	ctx := context.Background()
	poster := &fakePoster{err: errors.New("offline")}
	c := newTestClient(t, poster, Config{InstrumentationKey: "ikey", MaxBatchCount: 1})

	for _, name := range []string{"first", "second", "third", "fourth"} {
		c.TrackEvent(name, nil, nil)
		assert.Error(t, c.SendPendingData(ctx))
	}
	require.Equal(t, 4, c.channel.Pending(ctx))

	poster.mu.Lock()
	poster.err = nil
	poster.mu.Unlock()
	require.NoError(t, c.SendPendingData(ctx))

	var names []string
	for _, p := range poster.snapshot() {
		env := decode(t, p.lines[0])
		names = append(names, env["data"].(map[string]any)["baseData"].(map[string]any)["name"].(string))
	}
	assert.Equal(t, []string{"first", "second", "third", "fourth"}, names)
}

func TestPersistedBatchesAreCapped(t *testing.T) {
	ctx := context.Background()
	poster := &fakePoster{err: errors.New("offline")}
	c := newTestClient(t, poster, Config{InstrumentationKey: "ikey", MaxBatchCount: 1})

	for i := 0; i < MaxPendingBatches+5; i++ {
		c.TrackMetric("m", float64(i))
	}
	assert.Error(t, c.SendPendingData(ctx))
	assert.Equal(t, MaxPendingBatches, c.channel.Pending(ctx))
}
