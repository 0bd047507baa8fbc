package twilio

import (
	"errors"

	"support-api/pkg/config"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"
	verify "github.com/twilio/twilio-go/rest/verify/v2"
)

// Verification statuses reported by the Verify API
const (
	StatusApproved = "approved"
	StatusPending  = "pending"
)

var (
	// ErrNotConfigured is returned when Twilio credentials are missing
	ErrNotConfigured = errors.New("twilio is not configured")
	// ErrTooManyRequests is returned when Twilio throttles a request
	ErrTooManyRequests = errors.New("too many requests")
)

// Client wraps the Twilio REST client for OTP delivery. Missing credentials
// disable the client instead of failing startup, matching how the service is
// run in environments without SMS.
type Client struct {
	rest             *twilio.RestClient
	verifyServiceSID string
	fromNumber       string
}

// NewClient creates a Twilio client from configuration. Returns a disabled
// client when the account credentials are absent.
func NewClient(cfg *config.TwilioConfig) *Client {
	c := &Client{
		verifyServiceSID: cfg.VerifyServiceSID,
		fromNumber:       cfg.FromNumber,
	}
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return c
	}
	c.rest = twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return c
}

// Enabled reports whether credentials were configured
func (c *Client) Enabled() bool {
	return c.rest != nil
}

// VerifyConfigured reports whether the managed Verify service is usable
func (c *Client) VerifyConfigured() bool {
	return c.rest != nil && c.verifyServiceSID != ""
}

// CreateVerification starts a Verify challenge for the phone on the given channel
func (c *Client) CreateVerification(phone, channel string) (string, error) {
	if !c.VerifyConfigured() {
		return "", ErrNotConfigured
	}

	params := &verify.CreateVerificationParams{}
	params.SetTo(phone)
	params.SetChannel(channel)

	v, err := c.rest.VerifyV2.CreateVerification(c.verifyServiceSID, params)
	if err != nil {
		return "", translateError(err)
	}
	if v.Status == nil {
		return "", nil
	}
	return *v.Status, nil
}

// CheckVerification submits a code for a pending Verify challenge and returns
// the resulting status.
func (c *Client) CheckVerification(phone, code string) (string, error) {
	if !c.VerifyConfigured() {
		return "", ErrNotConfigured
	}

	params := &verify.CreateVerificationCheckParams{}
	params.SetTo(phone)
	params.SetCode(code)

	check, err := c.rest.VerifyV2.CreateVerificationCheck(c.verifyServiceSID, params)
	if err != nil {
		return "", translateError(err)
	}
	if check.Status == nil {
		return "", nil
	}
	return *check.Status, nil
}

// SendMessage sends a plain message through the Messaging API. Used by the
// self-managed OTP path.
func (c *Client) SendMessage(to, body string) error {
	if !c.Enabled() || c.fromNumber == "" {
		return ErrNotConfigured
	}

	params := &api.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(c.fromNumber)
	params.SetBody(body)

	_, err := c.rest.Api.CreateMessage(params)
	if err != nil {
		return translateError(err)
	}
	return nil
}

func translateError(err error) error {
	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) && restErr.Status == 429 {
		return ErrTooManyRequests
	}
	return err
}
