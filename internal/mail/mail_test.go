package mail

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPMailer_BuildsMessage(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "relay.test", Port: 2525, Username: "u", Password: "p", From: "noreply@clinic.test"})

	var gotAddr string
	var gotTo []string
	var gotMsg string
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		assert.NotNil(t, a)
		assert.Equal(t, "noreply@clinic.test", from)
		return nil
	}

	require.NoError(t, m.Notify(context.Background(), "pat@mail.test", "Appointment approved", "See you Monday."))
	assert.Equal(t, "relay.test:2525", gotAddr)
	assert.Equal(t, []string{"pat@mail.test"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Appointment approved\r\n")
	assert.Contains(t, gotMsg, "\r\n\r\nSee you Monday.")
}

func TestSMTPMailer_RequiresRecipient(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "relay.test", Port: 25})
	assert.ErrorIs(t, m.Notify(context.Background(), " ", "s", "b"), ErrNoRecipient)
}

type failingMailer struct{ calls int }

func (f *failingMailer) Notify(context.Context, string, string, string) error {
	f.calls++
	return errors.New("relay down")
}

func TestBreakerMailer_OpensAfterConsecutiveFailures(t *testing.T) {
	next := &failingMailer{}
	m := NewBreakerMailer(next, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.Error(t, m.Notify(ctx, "a@b.test", "s", "b"))
	}
	err := m.Notify(ctx, "a@b.test", "s", "b")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 5, next.calls)
}
