package notification

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingNotifier struct{}

func (failingNotifier) Send(NoticeType, NotificationData, NoticeTemplate) error {
	return errors.New("smtp down")
}

func TestNotificationManager(t *testing.T) {
	mock := &MockNotifier{}
	nm, err := NewNotificationManager(WithNotifier(EmailSystem, mock), WithDefaultTemplates())
	require.NoError(t, err)

	data := NotificationData{To: "user@example.com", Data: map[string]string{"ResetLink": "https://example.com/reset?t=abc"}}
	require.NoError(t, nm.Send(PasswordResetNotice, data))

	sent := mock.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, PasswordResetNotice, sent[0].Type)
	assert.Equal(t, "user@example.com", sent[0].Data.To)
	assert.Contains(t, sent[0].Template.Text, "{{.ResetLink}}")
	assert.NotEmpty(t, sent[0].Template.Subject)

	t.Run("UnknownNotice", func(t *testing.T) {
		assert.Error(t, nm.Send(NoticeType("welcome"), data))
	})

	t.Run("NoNotifier", func(t *testing.T) {
		empty, err := NewNotificationManager(WithDefaultTemplates())
		require.NoError(t, err)
		assert.Error(t, empty.Send(PasswordChangedNotice, data))
	})

	t.Run("NotifierError", func(t *testing.T) {
		failing, err := NewNotificationManager(WithNotifier(EmailSystem, failingNotifier{}), WithDefaultTemplates())
		require.NoError(t, err)
		assert.ErrorContains(t, failing.Send(PasswordChangedNotice, data), "smtp down")
	})

	t.Run("EmptyTemplateRejected", func(t *testing.T) {
		assert.Error(t, nm.RegisterNotification(PasswordResetNotice, EmailSystem, NoticeTemplate{Subject: "x"}))
	})
}

func TestEmailNotifierBuildMessage(t *testing.T) {
	notifier, err := NewEmailNotifier(SMTPConfig{Host: "localhost", Port: 1025, From: "noreply@example.com"})
	require.NoError(t, err)

	tmpl := NoticeTemplate{
		Subject: "Reset",
		Text:    "Go to {{.ResetLink}}",
		Html:    `<a href="{{.ResetLink}}">reset</a>`,
	}
	msg, err := notifier.BuildMessage(NotificationData{
		To:   "user@example.com",
		Data: map[string]string{"ResetLink": "https://example.com/reset"},
	}, tmpl)
	require.NoError(t, err)
	assert.NotNil(t, msg)

	_, err = notifier.BuildMessage(NotificationData{}, tmpl)
	assert.Error(t, err)

	_, err = notifier.BuildMessage(NotificationData{To: "user@example.com"}, NoticeTemplate{Text: "{{.Broken"})
	assert.Error(t, err)
}
