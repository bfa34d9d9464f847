package update

import (
	"context"
	"strconv"
	"time"

	"hockeysdk-go/internal/logging"
	"hockeysdk-go/internal/shared"
)

// VersionSource fetches version payloads. *apiclient.APIClient implements it.
type VersionSource interface {
	FetchVersions(ctx context.Context, q shared.VersionQuery) ([]byte, error)
	VersionsURL(format string, q shared.VersionQuery) string
}

// Result is the outcome of one update check. A failed check is a Result
// with Available set to false.
type Result struct {
	Releases  shared.Releases
	Payload   string // JSON written to the version cache
	Available bool
	Mandatory bool
	FromCache bool
	CheckedAt time.Time
}

// Checker decides whether a newer build is available.
type Checker struct {
	source         VersionSource
	current        Current
	query          shared.VersionQuery
	cache          *VersionCache
	tracker        *Tracker
	cachingEnabled bool
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithCache enables the version cache short-circuit.
func WithCache(cache *VersionCache) CheckerOption {
	return func(c *Checker) {
		c.cache = cache
		c.cachingEnabled = cache != nil
	}
}

// WithTracker reports the tracked usage time with each check.
func WithTracker(tracker *Tracker) CheckerOption {
	return func(c *Checker) {
		c.tracker = tracker
	}
}

// WithQuery sets the device description sent with each check.
func WithQuery(q shared.VersionQuery) CheckerOption {
	return func(c *Checker) {
		c.query = q
	}
}

func NewChecker(source VersionSource, current Current, opts ...CheckerOption) *Checker {
	c := &Checker{
		source:  source,
		current: current,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.query.AppVersion == "" {
		c.query.AppVersion = strconv.Itoa(current.VersionCode)
	}
	if c.query.OSVersion == "" {
		c.query.OSVersion = current.OSVersion
	}
	return c
}

// CachingEnabled reports whether a version cache is attached.
func (c *Checker) CachingEnabled() bool {
	return c.cachingEnabled
}

// Cache returns the attached version cache, or nil.
func (c *Checker) Cache() *VersionCache {
	return c.cache
}

// DownloadURL returns the URL of the newest installable package.
func (c *Checker) DownloadURL(ctx context.Context) string {
	return c.source.VersionsURL("apk", c.queryFor(ctx))
}

func (c *Checker) queryFor(ctx context.Context) shared.VersionQuery {
	q := c.query
	if c.tracker != nil {
		q.UsageTime = int64(c.tracker.UsageTime(ctx) / time.Second)
	}
	return q
}

// Check runs one update check. Network and parse failures are logged and
// reported as "no update"; Check never returns an error.
func (c *Checker) Check(ctx context.Context) Result {
	log := logging.Logger().WithField("app_version", c.current.VersionCode)
	now := time.Now()

	if c.cachingEnabled {
		if cached, ok := c.fromCache(ctx); ok {
			log.Debug("Newer version found in version cache")
			cached.CheckedAt = now
			return cached
		}
	}

	if err := ctx.Err(); err != nil {
		return Result{CheckedAt: now}
	}

	raw, err := c.source.FetchVersions(ctx, c.queryFor(ctx))
	if err != nil {
		log.Warnf("Update check failed: %v", err)
		return Result{CheckedAt: now}
	}

	releases, err := ParseReleases(raw)
	if err != nil {
		log.Warnf("Update check returned an unusable payload: %v", err)
		return Result{CheckedAt: now}
	}

	found, mandatory := FindNewVersion(releases, c.current)
	if !found {
		log.Debug("No newer version available")
		return Result{Releases: releases, CheckedAt: now}
	}

	payload, err := LimitPayload(raw)
	if err != nil {
		log.Warnf("Update check returned an unusable payload: %v", err)
		return Result{CheckedAt: now}
	}
	releases = LimitResponseSize(releases)
	log.Infof("Update available (mandatory: %t)", mandatory)
	return Result{
		Releases:  releases,
		Payload:   payload,
		Available: true,
		Mandatory: mandatory,
		CheckedAt: now,
	}
}

func (c *Checker) fromCache(ctx context.Context) (Result, bool) {
	payload, err := c.cache.Get(ctx)
	if err != nil {
		logging.Logger().Debugf("Version cache unavailable: %v", err)
		return Result{}, false
	}
	releases, err := ParseReleases([]byte(payload))
	if err != nil {
		return Result{}, false
	}
	found, mandatory := FindNewVersion(releases, c.current)
	if !found {
		return Result{}, false
	}
	return Result{
		Releases:  releases,
		Payload:   payload,
		Available: true,
		Mandatory: mandatory,
		FromCache: true,
	}, true
}
