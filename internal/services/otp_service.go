package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/servicehub/marketplace-backend/pkg/mailer"
	"github.com/servicehub/marketplace-backend/pkg/otp"
	"github.com/sirupsen/logrus"
)

// OTPStore persists the OTP state of one subject (a user or a booking)
type OTPStore interface {
	SetOTP(ctx context.Context, id uuid.UUID, hash string, expiry time.Time) error
	ClearOTP(ctx context.Context, id uuid.UUID) error
}

// OTPRecipient is who a code is mailed to
type OTPRecipient struct {
	Email string
	Name  string
}

// OTPService issues codes onto a store and mails them out
type OTPService struct {
	engine *otp.Engine
	mail   mailer.Sender
	logger *logrus.Logger
	now    func() time.Time
}

// NewOTPService creates a new OTP service
func NewOTPService(engine *otp.Engine, mail mailer.Sender, logger *logrus.Logger) *OTPService {
	return &OTPService{engine: engine, mail: mail, logger: logger, now: time.Now}
}

// Send issues a fresh code for subject, replacing any outstanding one, and
// emails it. The code is stored before it is sent.
func (s *OTPService) Send(ctx context.Context, store OTPStore, subject uuid.UUID, to OTPRecipient, purpose mailer.Purpose) error {
	code, state, err := s.engine.Issue(s.now())
	if err != nil {
		return Internal("failed to generate code", err)
	}

	msg, err := mailer.OTPMessage(to.Email, to.Name, code, purpose, s.engine.Expiry())
	if err != nil {
		return Internal("failed to render code email", err)
	}

	if err := store.SetOTP(ctx, subject, state.Hash, state.Expiry); err != nil {
		return storeError(err, "code owner")
	}

	if err := s.mail.Send(ctx, msg); err != nil {
		s.logger.WithFields(logrus.Fields{
			"subject": subject,
			"purpose": purpose,
		}).WithError(err).Error("Failed to send OTP email")
		return Upstream(CodeMailError, "failed to send verification email", err)
	}
	return nil
}

// Check verifies code against the stored hash and expiry. An expired code is
// cleared here; on success the caller consumes the state.
func (s *OTPService) Check(ctx context.Context, store OTPStore, subject uuid.UUID, hash string, expiry time.Time, code string) error {
	err := s.engine.Verify(otp.State{Hash: hash, Expiry: expiry}, code, s.now())
	if err == nil {
		return nil
	}

	if otp.MustClear(err) {
		if clearErr := store.ClearOTP(ctx, subject); clearErr != nil {
			s.logger.WithError(clearErr).WithField("subject", subject).Warn("Failed to clear expired OTP")
		}
	}
	return otpError(err)
}
