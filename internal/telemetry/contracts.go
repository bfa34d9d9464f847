package telemetry

import (
	"strings"
	"time"
)

const envelopeTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Context tag keys.
const (
	TagSessionID     = "ai.session.id"
	TagSessionIsNew  = "ai.session.isNew"
	TagUserID        = "ai.user.id"
	TagDeviceID      = "ai.device.id"
	TagDeviceModel   = "ai.device.model"
	TagDeviceOEM     = "ai.device.oemName"
	TagDeviceOS      = "ai.device.os"
	TagDeviceOSVer   = "ai.device.osVersion"
	TagDeviceLocale  = "ai.device.locale"
	TagAppVersion    = "ai.application.ver"
	TagSDKVersion    = "ai.internal.sdkVersion"
	TagOperationName = "ai.operation.name"
)

// Telemetry item types, used as the last segment of the envelope name.
const (
	TypeEvent        = "Event"
	TypeMessage      = "Message"
	TypeMetric       = "Metric"
	TypePageView     = "PageView"
	TypeSessionState = "SessionState"
	TypeException    = "Exception"
)

type SeverityLevel int

const (
	Verbose SeverityLevel = iota
	Information
	Warning
	Error
	Critical
)

type SessionState int

const (
	SessionStart SessionState = iota
	SessionEnd
)

// Envelope wraps one telemetry item for transport.
type Envelope struct {
	Ver  int               `json:"ver"`
	Name string            `json:"name"`
	Time string            `json:"time"`
	IKey string            `json:"iKey"`
	Tags map[string]string `json:"tags,omitempty"`
	Data Data              `json:"data"`
}

type Data struct {
	BaseType string `json:"baseType"`
	BaseData any    `json:"baseData"`
}

type EventData struct {
	Ver          int                `json:"ver"`
	Name         string             `json:"name"`
	Properties   map[string]string  `json:"properties,omitempty"`
	Measurements map[string]float64 `json:"measurements,omitempty"`
}

type MessageData struct {
	Ver           int               `json:"ver"`
	Message       string            `json:"message"`
	SeverityLevel SeverityLevel     `json:"severityLevel"`
	Properties    map[string]string `json:"properties,omitempty"`
}

type DataPoint struct {
	Name  string  `json:"name"`
	Kind  int     `json:"kind"`
	Value float64 `json:"value"`
	Count int     `json:"count,omitempty"`
}

type MetricData struct {
	Ver        int               `json:"ver"`
	Metrics    []DataPoint       `json:"metrics"`
	Properties map[string]string `json:"properties,omitempty"`
}

type PageViewData struct {
	Ver          int                `json:"ver"`
	Name         string             `json:"name"`
	URL          string             `json:"url,omitempty"`
	Duration     string             `json:"duration,omitempty"`
	Properties   map[string]string  `json:"properties,omitempty"`
	Measurements map[string]float64 `json:"measurements,omitempty"`
}

type SessionStateData struct {
	Ver   int          `json:"ver"`
	State SessionState `json:"state"`
}

type ExceptionDetails struct {
	TypeName     string `json:"typeName"`
	Message      string `json:"message"`
	HasFullStack bool   `json:"hasFullStack"`
	Stack        string `json:"stack,omitempty"`
}

type ExceptionData struct {
	Ver        int                `json:"ver"`
	HandledAt  string             `json:"handledAt"`
	Exceptions []ExceptionDetails `json:"exceptions"`
	Properties map[string]string  `json:"properties,omitempty"`
}

// EnvelopeName returns "Microsoft.ApplicationInsights.<ikey without dashes>.<itemType>".
func EnvelopeName(ikey, itemType string) string {
	return "Microsoft.ApplicationInsights." + strings.ReplaceAll(ikey, "-", "") + "." + itemType
}

func newEnvelope(ikey, itemType string, at time.Time, tags map[string]string, baseData any) Envelope {
	return Envelope{
		Ver:  1,
		Name: EnvelopeName(ikey, itemType),
		Time: at.UTC().Format(envelopeTimeLayout),
		IKey: ikey,
		Tags: tags,
		Data: Data{BaseType: itemType + "Data", BaseData: baseData},
	}
}
