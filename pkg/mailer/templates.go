package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// Purpose selects the wording of an OTP email
type Purpose string

const (
	PurposeVerifyEmail   Purpose = "verify_email"
	PurposeResetPassword Purpose = "reset_password"
	PurposeCompletion    Purpose = "booking_completion"
)

var purposeText = map[Purpose]struct{ subject, intro string }{
	PurposeVerifyEmail:   {"Verify your email", "Use this code to verify your email address."},
	PurposeResetPassword: {"Reset your password", "Use this code to reset your password."},
	PurposeCompletion:    {"Confirm your service is complete", "Share this code with your technician once the job is done."},
}

var otpTemplate = template.Must(template.New("otp").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <p>Hi {{.Name}},</p>
  <p>{{.Intro}}</p>
  <p style="font-size: 28px; letter-spacing: 6px; font-weight: bold;">{{.Code}}</p>
  <p>The code expires in {{.Minutes}} minutes. If you did not request it, you can ignore this email.</p>
</body>
</html>`))

// OTPMessage renders a one-time code email
func OTPMessage(to, name, code string, purpose Purpose, validFor time.Duration) (Message, error) {
	text, ok := purposeText[purpose]
	if !ok {
		return Message{}, fmt.Errorf("unknown otp purpose %q", purpose)
	}
	if name == "" {
		name = "there"
	}
	minutes := int(validFor.Minutes())

	var html bytes.Buffer
	err := otpTemplate.Execute(&html, struct {
		Name, Intro, Code string
		Minutes           int
	}{name, text.intro, code, minutes})
	if err != nil {
		return Message{}, fmt.Errorf("failed to render otp email: %w", err)
	}

	return Message{
		To:      to,
		Subject: text.subject,
		HTML:    html.String(),
		Text: fmt.Sprintf("Hi %s,\n\n%s\n\nCode: %s\n\nThe code expires in %d minutes.\n",
			name, text.intro, code, minutes),
	}, nil
}
