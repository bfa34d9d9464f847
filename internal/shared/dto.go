package shared

// UpdateErr matches the JSON structure for API error messages.
type UpdateErr struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// VersionQuery carries the query parameters sent with update checks and package downloads.
type VersionQuery struct {
	DeviceID    string
	OSVersion   string
	Device      string
	OEM         string
	AppVersion  string
	Language    string
	UsageTime   int64 // seconds
	SDKName     string
	SDKVersion  string
	PackageName string
}

// CrashUpload is the form payload of a crash report upload.
type CrashUpload struct {
	Raw         string
	UserID      string
	Contact     string
	Description string
	SDKName     string
	SDKVersion  string
}

// FeedbackMessage is a feedback submission. Token is set when replying to an
// existing feedback thread.
type FeedbackMessage struct {
	Name    string
	Email   string
	Subject string
	Text    string
	Token   string
}

// FeedbackResponse matches the JSON answer of the feedback endpoint.
type FeedbackResponse struct {
	Status   string          `json:"status"`
	Token    string          `json:"token"`
	Feedback FeedbackDetails `json:"feedback"`
}

// FeedbackDetails is the thread echoed back by the feedback endpoint.
type FeedbackDetails struct {
	Name      string            `json:"name"`
	Email     string            `json:"email"`
	ID        int64             `json:"id"`
	CreatedAt string            `json:"created_at"`
	Messages  []FeedbackEntries `json:"messages"`
}

// FeedbackEntries is a single message of a feedback thread.
type FeedbackEntries struct {
	ID        int64  `json:"id"`
	Subject   string `json:"subject"`
	Text      string `json:"text"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}
