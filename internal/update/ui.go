package update

import "hockeysdk-go/internal/shared"

// DialogTag identifies the update dialog. At most one dialog with this tag
// is visible per UI.
const DialogTag = "hockey_update_dialog"

const (
	DialogTitle   = "Update Available"
	DialogMessage = "Show information about the new update?"
	AcceptLabel   = "Show"
	DeclineLabel  = "Ignore"

	MandatoryToast = "An update for %s is available. You must update to continue."
	ExpiryMessage  = "This build of %s has expired."
)

// Prompt describes the optional-update dialog. The host calls exactly one of
// Accept or Decline when the user answers.
type Prompt struct {
	Tag          string
	Title        string
	Message      string
	AcceptLabel  string
	DeclineLabel string
	Releases     shared.Releases
	Accept       func()
	Decline      func()
}

// UpdateScreen carries what the dedicated update screen needs to render.
type UpdateScreen struct {
	Releases    shared.Releases
	Payload     string
	DownloadURL string
	Mandatory   bool
}

// Dialog is a visible update dialog.
type Dialog interface {
	Dismiss()
}

// UI is implemented by the host application. All methods are called through
// the configured Dispatcher.
type UI interface {
	// AppName is used in user-facing messages.
	AppName() string
	IsFinishing() bool
	Toast(message string)
	ShowUpdateDialog(p Prompt) Dialog
	OpenUpdateScreen(s UpdateScreen)
	ShowExpiryScreen(message string)
	// Finish closes the calling screen. Used after a mandatory update.
	Finish()
}

// EmbeddedPresenter is an optional UI capability: show the update inside
// the current screen instead of opening the dedicated one. An error falls
// back to OpenUpdateScreen.
type EmbeddedPresenter interface {
	ShowEmbeddedUpdate(tag string, s UpdateScreen) error
}

// Listener receives update events. Embed NopListener to implement a subset.
type Listener interface {
	OnUpdateAvailable(r Result, downloadURL string)
	OnNoUpdateAvailable()
	OnCancel()
	// OnBuildExpired returns true to let the SDK show the expiry screen.
	OnBuildExpired() bool
}

type NopListener struct{}

func (NopListener) OnUpdateAvailable(Result, string) {}
func (NopListener) OnNoUpdateAvailable()             {}
func (NopListener) OnCancel()                        {}
func (NopListener) OnBuildExpired() bool             { return true }

// Dispatcher runs UI work on the host's UI thread.
type Dispatcher interface {
	Post(fn func())
}

// InlineDispatcher runs the work on the calling goroutine.
type InlineDispatcher struct{}

func (InlineDispatcher) Post(fn func()) { fn() }

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(fn func())

func (f DispatcherFunc) Post(fn func()) { f(fn) }
