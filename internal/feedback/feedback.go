// Package feedback sends user feedback messages and keeps the thread token
// so follow-up messages land in the same thread.
package feedback

import (
	"context"
	"net/mail"
	"strings"

	"hockeysdk-go/internal/cstmerr"
	"hockeysdk-go/internal/logging"
	"hockeysdk-go/internal/shared"
	"hockeysdk-go/internal/store"
)

// Sender posts feedback. *apiclient.APIClient implements it.
type Sender interface {
	SendFeedback(ctx context.Context, msg shared.FeedbackMessage) (*shared.FeedbackResponse, error)
}

type Message struct {
	Name    string
	Email   string
	Subject string
	Text    string
}

type Manager struct {
	sender Sender
	store  store.Store
	key    string
}

func NewManager(sender Sender, s store.Store, appIdentifier string) *Manager {
	return &Manager{sender: sender, store: s, key: store.Key("feedback", appIdentifier, "token")}
}

// Token returns the stored thread token, or "" when no thread exists yet.
func (m *Manager) Token(ctx context.Context) string {
	token, err := m.store.Get(ctx, m.key)
	if err != nil {
		return ""
	}
	return token
}

// Send validates msg and posts it, replying to the stored thread when there is one.
func (m *Manager) Send(ctx context.Context, msg Message) (*shared.FeedbackResponse, error) {
	if strings.TrimSpace(msg.Text) == "" {
		return nil, cstmerr.NewFeedbackError("feedback text is required", nil)
	}
	if msg.Email != "" {
		if _, err := mail.ParseAddress(msg.Email); err != nil {
			return nil, cstmerr.NewFeedbackError("invalid email address", err)
		}
	}

	resp, err := m.sender.SendFeedback(ctx, shared.FeedbackMessage{
		Name:    msg.Name,
		Email:   msg.Email,
		Subject: msg.Subject,
		Text:    msg.Text,
		Token:   m.Token(ctx),
	})
	if err != nil {
		return nil, cstmerr.NewFeedbackError("failed to send feedback", err)
	}

	if resp.Token != "" {
		if err := m.store.Put(ctx, m.key, resp.Token); err != nil {
			logging.Logger().Warnf("failed to persist feedback token: %v", err)
		}
	}
	return resp, nil
}

// Reset forgets the thread; the next Send starts a new one.
func (m *Manager) Reset(ctx context.Context) error {
	return m.store.Delete(ctx, m.key)
}
