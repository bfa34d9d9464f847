package shared

import (
	"strconv"
	"strings"
	"time"
)

// VersionCode is a release version code. The backend sends it either as a
// JSON number or as a numeric string, so both are accepted.
type VersionCode int

func (v *VersionCode) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*v = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*v = VersionCode(n)
	return nil
}

// ReleaseDescriptor is one element of the version metadata array returned by
// the update endpoint. It is immutable once parsed and lives for a single check.
type ReleaseDescriptor struct {
	ID               int64       `json:"id"`
	Version          VersionCode `json:"version"`
	ShortVersion     string      `json:"shortversion"`
	Title            string      `json:"title"`
	Timestamp        int64       `json:"timestamp"` // seconds since epoch
	AppSize          int64       `json:"appsize"`
	Notes            string      `json:"notes"`
	Mandatory        bool        `json:"mandatory"`
	MinimumOSVersion string      `json:"minimum_os_version"`
	External         bool        `json:"external"`
	DeviceFamily     string      `json:"device_family,omitempty"`
}

// UploadedAt returns the release timestamp as a time.Time.
func (r ReleaseDescriptor) UploadedAt() time.Time {
	return time.Unix(r.Timestamp, 0)
}

// Releases is the parsed version metadata payload, newest first as sent by the server.
type Releases []ReleaseDescriptor

// Latest returns the release with the highest version code.
func (rs Releases) Latest() (ReleaseDescriptor, bool) {
	if len(rs) == 0 {
		return ReleaseDescriptor{}, false
	}
	latest := rs[0]
	for _, r := range rs[1:] {
		if r.Version > latest.Version {
			latest = r
		}
	}
	return latest, true
}

// StoreEntry is the row persisted by the relational store backend.
type StoreEntry struct {
	Key       string    `gorm:"primaryKey;type:varchar;column:key"`
	Value     string    `gorm:"not null;type:text;column:value"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime;column:updatedAt"`
}

// CrashReport is a stacktrace file loaded from disk.
type CrashReport struct {
	ID           string
	Path         string
	PackageName  string
	VersionCode  string
	VersionName  string
	OSVersion    string
	Manufacturer string
	Model        string
	Thread       string
	ReporterKey  string
	Date         time.Time
	StackTrace   string
	Raw          string
	Description  string
	UserID       string
	Contact      string
}

// DeviceInfo describes the device the SDK runs on. It is sent with update
// checks and written into crash reports and telemetry tags.
type DeviceInfo struct {
	DeviceID     string
	OSVersion    string
	Model        string
	Manufacturer string
	Language     string
}

// AppInfo describes the running application build.
type AppInfo struct {
	Identifier  string
	PackageName string
	VersionCode int
	VersionName string
}
