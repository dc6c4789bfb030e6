package email

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTemplates_SignInLink(t *testing.T) {
	tpl, err := LoadTemplates()
	require.NoError(t, err)

	html, text, err := tpl.Render(TemplateSignInLink, SignInLinkVars{
		Email: "julie@example.com",
		Link:  "http://localhost:8085/__/auth/links?mode=signIn&oobCode=abc&x=<y>",
		TTL:   "15m0s",
	})
	require.NoError(t, err)
	require.Contains(t, text, "oobCode=abc&x=<y>")
	require.Contains(t, text, "15m0s")
	require.Contains(t, html, "julie@example.com")
	require.NotContains(t, html, "<y>")
}

func TestTemplates_Farewell(t *testing.T) {
	tpl, err := LoadTemplates()
	require.NoError(t, err)

	_, text, err := tpl.Render(TemplateFarewell, FarewellVars{Name: "Julie", Message: "Sorry to see you go. You'll be missed."})
	require.NoError(t, err)
	require.Contains(t, text, "Julie, your account has been deleted.")

	_, text, err = tpl.Render(TemplateFarewell, FarewellVars{Message: "bye"})
	require.NoError(t, err)
	require.Contains(t, text, "Your account has been deleted.")

	_, _, err = tpl.Render("nope", nil)
	require.Error(t, err)
}

func TestNew(t *testing.T) {
	s, err := New(Config{})
	require.NoError(t, err)
	require.IsType(t, &LogSender{}, s)

	s, err = New(Config{Kind: "smtp", Host: "localhost", From: "no-reply@example.com"})
	require.NoError(t, err)
	smtp := s.(*SMTPSender)
	require.Equal(t, 587, smtp.Port)
	require.Equal(t, "auto", smtp.TLSMode)

	_, err = New(Config{Kind: "smtp"})
	require.Error(t, err)
	_, err = New(Config{Kind: "sendgrid"})
	require.Error(t, err)
}

func TestLogSender_RecordsMessages(t *testing.T) {
	s := &LogSender{}
	require.NoError(t, s.Send(context.Background(), "a@example.com", "hi", "<p>x</p>", "x"))
	sent := s.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "a@example.com", sent[0].To)
	require.Equal(t, "x", sent[0].Text)
}

func TestSMTPSender_MessageHeaders(t *testing.T) {
	s := FromConfig(Config{Host: "smtp.example.com", From: "no-reply@example.com"})
	m := s.message("julie@example.com", "Sign in", "<p>hi</p>", "hi")
	require.Equal(t, []string{"julie@example.com"}, m.GetHeader("To"))
	require.Equal(t, []string{"no-reply@example.com"}, m.GetHeader("From"))
	require.Equal(t, []string{"Sign in"}, m.GetHeader("Subject"))
}

func TestSMTPSender_DialFailure(t *testing.T) {
	s := FromConfig(Config{Host: "127.0.0.1", Port: 1, From: "no-reply@example.com", TLSMode: "none"})
	err := s.Send(context.Background(), "julie@example.com", "x", "", "x")
	require.Error(t, err)
}

func TestDiagnoseSMTP(t *testing.T) {
	cases := map[string]string{
		"dial tcp 127.0.0.1:1: connect: connection refused": "dial",
		"535 5.7.8 authentication failed":                   "auth",
		"421 try again later":                               "rate_limited",
		"550 5.1.1 user unknown":                            "invalid_recipient",
		"550 5.7.1 message rejected":                        "rejected",
		"something odd":                                     "unknown",
	}
	for msg, want := range cases {
		require.Equal(t, want, DiagnoseSMTP(errors.New(msg)).Code, msg)
	}
	require.True(t, DiagnoseSMTP(errors.New("dial tcp: no such host")).Temporary)
}
