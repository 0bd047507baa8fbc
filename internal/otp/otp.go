// Package otp drives phone-based one-time-password challenges. Two delivery
// strategies exist: the managed path delegates challenge state to the Twilio
// Verify service, the self-managed path generates codes locally and sends
// them through the plain Messaging API. The strategy is selected once at
// startup from configuration.
package otp

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"support-api/pkg/config"
	"support-api/pkg/twilio"
)

var (
	// ErrNotConfigured is returned when no delivery provider is usable
	ErrNotConfigured = errors.New("otp service not configured")
	// ErrRateLimited is returned when the provider throttles challenge creation
	ErrRateLimited = errors.New("too many otp requests")
	// ErrInvalidCode is returned for any failed check: wrong code, expired
	// challenge, or no challenge at all. Callers cannot tell these apart.
	ErrInvalidCode = errors.New("invalid or expired otp")
)

var allowedChannels = map[string]bool{
	"sms":      true,
	"whatsapp": true,
	"call":     true,
	"email":    true,
}

// Provider creates and checks managed verification challenges
type Provider interface {
	VerifyConfigured() bool
	CreateVerification(phone, channel string) (string, error)
	CheckVerification(phone, code string) (string, error)
}

// Sender dispatches a plain message for the self-managed path
type Sender interface {
	Enabled() bool
	SendMessage(to, body string) error
}

type strategy interface {
	Start(phone, channel string) error
	Check(phone, code string) error
}

// Service is the OTP verifier. Build it once in main with NewService.
type Service struct {
	strategy       strategy
	defaultChannel string
}

// NewService selects the delivery strategy: managed verification when the
// provider has a Verify service configured, otherwise self-managed codes
// through the sender backed by the given challenge store.
func NewService(cfg *config.OTPConfig, provider Provider, sender Sender, store ChallengeStore) *Service {
	defaultChannel := cfg.DefaultChannel
	if !allowedChannels[defaultChannel] {
		defaultChannel = "sms"
	}

	var s strategy
	if provider != nil && provider.VerifyConfigured() {
		s = &verifyStrategy{provider: provider}
	} else {
		s = &messagingStrategy{
			sender: sender,
			store:  store,
			expiry: cfg.Expiry,
		}
	}

	return &Service{strategy: s, defaultChannel: defaultChannel}
}

// Start begins a challenge for the phone on the given channel. An unknown
// channel falls back to sms rather than failing.
func (s *Service) Start(phone, channel string) error {
	return s.strategy.Start(phone, s.ResolveChannel(channel))
}

// Check submits a code for the phone's pending challenge. Anything short of
// explicit approval is ErrInvalidCode.
func (s *Service) Check(phone, code string) error {
	return s.strategy.Check(phone, code)
}

// ResolveChannel reports the delivery channel a request will actually use:
// the requested channel when it is known, the default otherwise.
func (s *Service) ResolveChannel(channel string) string {
	if allowedChannels[channel] {
		return channel
	}
	return s.defaultChannel
}

// verifyStrategy delegates challenge state entirely to the provider
type verifyStrategy struct {
	provider Provider
}

func (v *verifyStrategy) Start(phone, channel string) error {
	_, err := v.provider.CreateVerification(phone, channel)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, twilio.ErrNotConfigured):
		return ErrNotConfigured
	case errors.Is(err, twilio.ErrTooManyRequests):
		return ErrRateLimited
	default:
		return err
	}
}

func (v *verifyStrategy) Check(phone, code string) error {
	status, err := v.provider.CheckVerification(phone, code)
	if err != nil {
		if errors.Is(err, twilio.ErrNotConfigured) {
			return ErrNotConfigured
		}
		// Provider errors on check collapse to a failed verification so the
		// caller learns nothing about the challenge state
		return ErrInvalidCode
	}
	if status != twilio.StatusApproved {
		return ErrInvalidCode
	}
	return nil
}

// messagingStrategy generates codes locally and keeps them in the challenge
// store. A new Start replaces any pending challenge for the phone.
type messagingStrategy struct {
	sender Sender
	store  ChallengeStore
	expiry time.Duration
}

func (m *messagingStrategy) Start(phone, channel string) error {
	if m.sender == nil || !m.sender.Enabled() {
		return ErrNotConfigured
	}

	code, err := generateCode()
	if err != nil {
		return err
	}

	m.store.Put(phone, code, time.Now().Add(m.expiry))

	body := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(m.expiry.Minutes()))
	if err := m.sender.SendMessage(phone, body); err != nil {
		m.store.Delete(phone)
		if errors.Is(err, twilio.ErrTooManyRequests) {
			return ErrRateLimited
		}
		return err
	}

	return nil
}

func (m *messagingStrategy) Check(phone, code string) error {
	return m.store.Consume(phone, code)
}

// generateCode returns a 6-digit numeric code
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
