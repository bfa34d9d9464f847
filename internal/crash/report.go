package crash

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"

	"hockeysdk-go/internal/shared"
)

// FileExtension is the suffix of stored crash reports.
const FileExtension = ".stacktrace"

// DateLayout formats the Date header of a crash report.
const DateLayout = "Mon Jan 02 15:04:05 MST 2006"

const (
	headerPackage      = "Package"
	headerVersionCode  = "Version Code"
	headerVersionName  = "Version Name"
	headerOS           = "OS"
	headerManufacturer = "Manufacturer"
	headerModel        = "Model"
	headerThread       = "Thread"
	headerReporterKey  = "CrashReporter Key"
	headerDate         = "Date"
)

// Format renders a report the way it is stored and uploaded: header lines,
// a blank line, then the stack trace.
func Format(r shared.CrashReport) string {
	var b strings.Builder
	writeHeader := func(name, value string) {
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteByte('\n')
	}
	writeHeader(headerPackage, r.PackageName)
	writeHeader(headerVersionCode, r.VersionCode)
	writeHeader(headerVersionName, r.VersionName)
	writeHeader(headerOS, r.OSVersion)
	writeHeader(headerManufacturer, r.Manufacturer)
	writeHeader(headerModel, r.Model)
	if r.Thread != "" {
		writeHeader(headerThread, r.Thread)
	}
	writeHeader(headerReporterKey, r.ReporterKey)
	writeHeader(headerDate, r.Date.Format(DateLayout))
	b.WriteByte('\n')
	b.WriteString(r.StackTrace)
	return b.String()
}

// Parse reads a stored report. Unknown headers are ignored; a missing
// blank line means the whole input is the stack trace.
func Parse(id, raw string) shared.CrashReport {
	report := shared.CrashReport{ID: id, Raw: raw}

	headerEnd := strings.Index(raw, "\n\n")
	if headerEnd < 0 {
		report.StackTrace = raw
		return report
	}
	report.StackTrace = raw[headerEnd+2:]

	scanner := bufio.NewScanner(strings.NewReader(raw[:headerEnd]))
	for scanner.Scan() {
		name, value, ok := strings.Cut(scanner.Text(), ": ")
		if !ok {
			continue
		}
		switch name {
		case headerPackage:
			report.PackageName = value
		case headerVersionCode:
			report.VersionCode = value
		case headerVersionName:
			report.VersionName = value
		case headerOS:
			report.OSVersion = value
		case headerManufacturer:
			report.Manufacturer = value
		case headerModel:
			report.Model = value
		case headerThread:
			report.Thread = value
		case headerReporterKey:
			report.ReporterKey = value
		case headerDate:
			if t, err := time.Parse(DateLayout, value); err == nil {
				report.Date = t
			}
		}
	}
	return report
}

// newReport fills the headers of a report from the app and device description.
func newReport(app shared.AppInfo, device shared.DeviceInfo, thread, reporterKey string, at time.Time, stack string) shared.CrashReport {
	return shared.CrashReport{
		PackageName:  app.PackageName,
		VersionCode:  strconv.Itoa(app.VersionCode),
		VersionName:  app.VersionName,
		OSVersion:    device.OSVersion,
		Manufacturer: device.Manufacturer,
		Model:        device.Model,
		Thread:       thread,
		ReporterKey:  reporterKey,
		Date:         at,
		StackTrace:   stack,
	}
}

func describe(err error, stack []byte) string {
	if len(stack) == 0 {
		return fmt.Sprintf("%v\n", err)
	}
	return fmt.Sprintf("%v\n%s", err, stack)
}
