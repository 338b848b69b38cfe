package email

import (
	"context"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPSendTemplateRendersInvite(t *testing.T) {
	p := NewSMTP(Config{Host: "mail.local", Port: 2525, From: "noreply@taskhub.dev"})

	var gotAddr string
	var gotMsg []byte
	p.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotMsg = msg
		assert.Nil(t, a)
		assert.Equal(t, []string{"bee@example.com"}, to)
		return nil
	}

	err := p.SendTemplate(context.Background(), []string{"bee@example.com"}, "invite_member", map[string]interface{}{
		"org_name":        "Acme",
		"inviter_name":    "Ann",
		"role":            "member",
		"invitation_link": "https://app.example.com/accept-invitation/42",
		"expires_at":      "2025-03-08",
	})
	require.NoError(t, err)
	assert.Equal(t, "mail.local:2525", gotAddr)

	msg := string(gotMsg)
	assert.True(t, strings.Contains(msg, "Subject: You're invited to join Acme"))
	assert.Contains(t, msg, "https://app.example.com/accept-invitation/42")
	assert.Contains(t, msg, "<strong>Ann</strong>")
}

func TestSMTPSendRequiresRecipient(t *testing.T) {
	p := NewSMTP(Config{Host: "mail.local", Port: 25})
	assert.ErrorIs(t, p.Send(context.Background(), nil, "s", "b"), ErrNoRecipients)
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := Render("missing", nil)
	assert.Error(t, err)
}
