// Package update checks the distribution backend for newer builds and drives
// the host UI through the update prompt.
//
// The check itself runs on a background goroutine. Everything after it
// (listener callbacks, dialogs, screens) is handed to a Dispatcher so hosts
// with a UI thread can marshal it there. The SDK never renders anything: the
// host implements UI and, optionally, EmbeddedPresenter.
package update
