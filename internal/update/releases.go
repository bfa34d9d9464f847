package update

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"hockeysdk-go/internal/cstmerr"
	"hockeysdk-go/internal/shared"

	"golang.org/x/mod/semver"
)

// MaxReleases is the number of releases kept from a version payload.
const MaxReleases = 25

// installGracePeriod is added to the install time before a re-upload of the
// same version code counts as newer.
const installGracePeriod = 30 * time.Minute

// Current describes the running build.
type Current struct {
	VersionCode int
	// LastInstall is when this build was installed or last updated. Zero if unknown.
	LastInstall time.Time
	OSVersion   string
}

// ParseReleases decodes a version payload. Anything that is not a JSON array
// of release objects is a *cstmerr.ReleaseParseError.
func ParseReleases(raw []byte) (shared.Releases, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, cstmerr.NewReleaseParseError("empty version payload", nil)
	}
	if trimmed[0] != '[' {
		return nil, cstmerr.NewReleaseParseError("version payload is not a JSON array", nil)
	}
	var releases shared.Releases
	if err := json.Unmarshal(trimmed, &releases); err != nil {
		return nil, cstmerr.NewReleaseParseError("malformed version payload", err)
	}
	return releases, nil
}

// FindNewVersion reports whether releases contain a build newer than current
// that can run on current.OSVersion, and whether any such build is mandatory.
func FindNewVersion(releases shared.Releases, current Current) (found, mandatory bool) {
	for _, r := range releases {
		largerVersionCode := int(r.Version) > current.VersionCode
		newerUpload := int(r.Version) == current.VersionCode && isNewerThanInstall(r.Timestamp, current.LastInstall)
		if !largerVersionCode && !newerUpload {
			continue
		}
		if !MinimumOSMet(r.MinimumOSVersion, current.OSVersion) {
			continue
		}
		found = true
		mandatory = mandatory || r.Mandatory
	}
	return found, mandatory
}

func isNewerThanInstall(timestamp int64, lastInstall time.Time) bool {
	if lastInstall.IsZero() || timestamp <= 0 {
		return false
	}
	return time.Unix(timestamp, 0).After(lastInstall.Add(installGracePeriod))
}

// LimitResponseSize keeps the first MaxReleases entries.
func LimitResponseSize(releases shared.Releases) shared.Releases {
	if len(releases) <= MaxReleases {
		return releases
	}
	return releases[:MaxReleases]
}

// LimitPayload keeps the first MaxReleases elements of a version payload.
// Elements are kept byte for byte as the server sent them.
func LimitPayload(raw []byte) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	var elements []json.RawMessage
	if err := json.Unmarshal(trimmed, &elements); err != nil {
		return "", cstmerr.NewReleaseParseError("malformed version payload", err)
	}
	if len(elements) <= MaxReleases {
		return string(trimmed), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, element := range elements[:MaxReleases] {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(element)
	}
	buf.WriteByte(']')
	return buf.String(), nil
}

var letterVersions = map[string]string{
	"L": "5.0",
	"M": "6.0",
	"N": "7.0",
	"O": "8.0",
}

// MinimumOSMet reports whether osVersion satisfies minimum. Versions that
// cannot be compared count as satisfied.
func MinimumOSMet(minimum, osVersion string) bool {
	want, ok := canonicalVersion(minimum)
	if !ok {
		return true
	}
	have, ok := canonicalVersion(osVersion)
	if !ok {
		return true
	}
	return semver.Compare(want, have) <= 0
}

func canonicalVersion(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if mapped, ok := letterVersions[strings.ToUpper(v)]; ok {
		v = mapped
	}
	if v == "" {
		return "", false
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return "", false
	}
	return semver.Canonical(v), true
}
