// Package controller runs the headless update loop used by the CLI host:
// check, download the newest package, upload pending crashes, sleep.
package controller

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"hockeysdk-go/configs/config"
	"hockeysdk-go/internal/cstmerr"
	"hockeysdk-go/internal/logging"
	"hockeysdk-go/internal/shared"
	"hockeysdk-go/internal/update"
)

const (
	DefaultPollInterval = 300 * time.Second
	// RetryInterval is used after a download timed out.
	RetryInterval = 1 * time.Second
)

// Updater checks for and downloads new builds. *hockey.Client implements it.
type Updater interface {
	CheckForUpdate(ctx context.Context) update.Result
	DownloadUpdate(ctx context.Context, dest string) error
}

// CrashSender uploads stored crash reports. *crash.Manager implements it.
type CrashSender interface {
	SendPending(ctx context.Context) (int, error)
}

// StatusReporter records progress messages. *telemetry.Client implements it.
type StatusReporter interface {
	TrackTrace(message string, properties map[string]string)
}

type Controller struct {
	updater     Updater
	crashes     CrashSender
	status      StatusReporter
	packageName string
	downloadDir string
	interval    time.Duration
}

func New(updater Updater, crashes CrashSender, status StatusReporter, cfg *config.Config) *Controller {
	interval := time.Duration(cfg.Update.PollIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Controller{
		updater:     updater,
		crashes:     crashes,
		status:      status,
		packageName: cfg.PackageName,
		downloadDir: cfg.Update.DownloadDir,
		interval:    interval,
	}
}

// Outcome describes one finished cycle.
type Outcome struct {
	Result       update.Result
	PackagePath  string
	CrashesSent  int
	NextInterval time.Duration
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// PackagePath returns where the package of release is stored.
func (c *Controller) PackagePath(release shared.ReleaseDescriptor) string {
	version := release.ShortVersion
	if version == "" {
		version = fmt.Sprint(int(release.Version))
	}
	name := unsafeFileChars.ReplaceAllString(fmt.Sprintf("%s-%s-%d.apk", c.packageName, version, int(release.Version)), "_")
	return filepath.Join(c.downloadDir, name)
}

// RunCycle performs one cycle of uploading crashes, checking for and
// downloading an update.
func (c *Controller) RunCycle(ctx context.Context) (Outcome, error) {
	log := logging.Logger()
	log.Info("Starting update check cycle...")
	outcome := Outcome{NextInterval: c.interval}

	if c.crashes != nil {
		sent, err := c.crashes.SendPending(ctx)
		outcome.CrashesSent = sent
		if err != nil {
			log.Warnf("Failed to upload pending crash reports: %v", err)
		}
	}

	outcome.Result = c.updater.CheckForUpdate(ctx)
	if !outcome.Result.Available {
		log.Info("No new update available or application is up-to-date.")
		return outcome, nil
	}

	latest, ok := outcome.Result.Releases.Latest()
	if !ok {
		return outcome, nil
	}
	log.Infof("New version available: %d (%s), mandatory: %t", latest.Version, latest.ShortVersion, outcome.Result.Mandatory)

	dest := c.PackagePath(latest)
	if err := c.updater.DownloadUpdate(ctx, dest); err != nil {
		log.Errorf("Error downloading update: %v", err)
		var timeoutErr *cstmerr.TimeoutError
		if errors.As(err, &timeoutErr) {
			log.Info("Download timed out, will try again sooner.")
			outcome.NextInterval = RetryInterval
		}
		c.report(fmt.Sprintf("version %d download failed: %v", latest.Version, err))
		return outcome, fmt.Errorf("download failed: %w", err)
	}

	outcome.PackagePath = dest
	log.Infof("Update %d downloaded to %s", latest.Version, dest)
	c.report(fmt.Sprintf("version %d downloaded successfully", latest.Version))
	return outcome, nil
}

func (c *Controller) report(message string) {
	if c.status != nil {
		c.status.TrackTrace(message, map[string]string{"source": "update"})
	}
}

// Run repeats RunCycle until ctx is cancelled. onCycle, when set, sees
// every outcome.
func (c *Controller) Run(ctx context.Context, onCycle func(Outcome, error)) error {
	log := logging.Logger()
	for {
		outcome, err := c.RunCycle(ctx)
		if err != nil {
			log.Warnf("Update cycle ended with error: %v", err)
		}
		if onCycle != nil {
			onCycle(outcome, err)
		}

		log.Infof("Update check cycle finished. Sleeping for %s.", outcome.NextInterval)
		timer := time.NewTimer(outcome.NextInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
