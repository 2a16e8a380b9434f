package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gearrental/internal/config"

	"github.com/rs/zerolog"
)

const (
	MockOTP         = "123456"
	mockDocumentURL = "https://example.com/mock_kyc_document.pdf"
)

// ErrVerificationFailed is returned when the provider refuses an OTP request or submission.
var ErrVerificationFailed = errors.New("identity verification failed")

// Verification is a completed identity check.
type Verification struct {
	DocumentURL string
}

// Client talks to the OTP identity verification provider. Without an API key it runs
// in mock mode: any id number gets an OTP and MockOTP is the only accepted code.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zerolog.Logger
	now        func() time.Time
}

type providerResponse struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Data       struct {
		ClientID     string `json:"client_id"`
		ProfileImage string `json:"profile_image"`
	} `json:"data"`
}

func NewClient(cfg config.IdentityConfig, logger *zerolog.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		now:        time.Now,
	}
}

// Mock reports whether the client is running without a provider.
func (c *Client) Mock() bool {
	return c.apiKey == ""
}

// GenerateOTP asks the provider to send an OTP for idNumber and returns the client id
// that must accompany the submission.
func (c *Client) GenerateOTP(ctx context.Context, idNumber string) (string, error) {
	if c.Mock() {
		c.logger.Info().Msg("Identity provider in mock mode, generating mock OTP")
		return "mock_client_" + strconv.FormatInt(c.now().UnixMilli(), 10), nil
	}

	var resp providerResponse
	if err := c.doPost(ctx, c.baseURL+"/generate-otp", map[string]string{"id_number": idNumber}, &resp); err != nil {
		return "", err
	}
	if resp.Data.ClientID == "" {
		return "", fmt.Errorf("%w: provider returned no client id", ErrVerificationFailed)
	}
	return resp.Data.ClientID, nil
}

// SubmitOTP verifies the code received by the user.
func (c *Client) SubmitOTP(ctx context.Context, clientID, otp string) (*Verification, error) {
	if c.Mock() {
		if otp != MockOTP {
			return nil, fmt.Errorf("%w: invalid mock OTP, use %s", ErrVerificationFailed, MockOTP)
		}
		return &Verification{DocumentURL: mockDocumentURL}, nil
	}

	var resp providerResponse
	body := map[string]string{"client_id": clientID, "otp": otp}
	if err := c.doPost(ctx, c.baseURL+"/submit-otp", body, &resp); err != nil {
		return nil, err
	}
	url := resp.Data.ProfileImage
	if url == "" {
		url = "verified_via_api"
	}
	return &Verification{DocumentURL: url}, nil
}

func (c *Client) doPost(ctx context.Context, endpoint string, body any, out *providerResponse) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(data)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity provider: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: http %d", ErrVerificationFailed, resp.StatusCode)
	}
	if resp.StatusCode >= 300 || out.StatusCode != http.StatusOK {
		msg := out.Message
		if msg == "" {
			msg = fmt.Sprintf("http %d", resp.StatusCode)
		}
		c.logger.Warn().Int("status", resp.StatusCode).Str("message", msg).Msg("Identity provider refused request")
		return fmt.Errorf("%w: %s", ErrVerificationFailed, msg)
	}
	return nil
}
