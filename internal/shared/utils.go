package shared

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"regexp"
	"strings"

	"hockeysdk-go/internal/logging"
)

const (
	SDKName    = "HockeySDK-Go"
	SDKVersion = "1.0.0"
	OSName     = "Go"
)

var appIdentifierRegex = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)

func CheckAndCreateDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.Logger().Errorf("failed to create directory %s: %v", dir, err)
			return err
		}
	} else if err != nil {
		logging.Logger().Errorf("failed to check directory %s: %v", dir, err)
		return err
	}
	return nil
}

// CalculateStringMD5 is used to anonymise the device identifier before it leaves the device.
func CalculateStringMD5(data string) string {
	hash := md5.Sum([]byte(data))
	return hex.EncodeToString(hash[:])
}

// SanitizeAppIdentifier trims the identifier and validates it as 32 hex characters.
func SanitizeAppIdentifier(appIdentifier string) (string, bool) {
	id := strings.TrimSpace(appIdentifier)
	return id, appIdentifierRegex.MatchString(id)
}

// ConvertAppIdentifierToIkey turns a 32 character app identifier into the
// dashed 8-4-4-4-12 instrumentation key used by the telemetry backend.
// Identifiers of another shape are returned unchanged.
func ConvertAppIdentifierToIkey(appIdentifier string) string {
	id, ok := SanitizeAppIdentifier(appIdentifier)
	if !ok {
		return id
	}
	return strings.Join([]string{id[0:8], id[8:12], id[12:16], id[16:20], id[20:32]}, "-")
}
