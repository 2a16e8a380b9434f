package identity

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gearrental/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(baseURL, apiKey string) *Client {
	logger := zerolog.New(io.Discard)
	return NewClient(config.IdentityConfig{BaseURL: baseURL, APIKey: apiKey, TimeoutSeconds: 2}, &logger)
}

func TestClient_MockMode(t *testing.T) {
	c := newClient("http://unused", "")
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }
	ctx := context.Background()

	require.True(t, c.Mock())
	id, err := c.GenerateOTP(ctx, "123412341234")
	require.NoError(t, err)
	assert.Equal(t, "mock_client_1700000000000", id)

	v, err := c.SubmitOTP(ctx, id, MockOTP)
	require.NoError(t, err)
	assert.Equal(t, mockDocumentURL, v.DocumentURL)

	_, err = c.SubmitOTP(ctx, id, "000000")
	assert.ErrorIs(t, err, ErrVerificationFailed)
}

func TestClient_Provider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		switch r.URL.Path {
		case "/generate-otp":
			assert.Equal(t, "123412341234", body["id_number"])
			_, _ = w.Write([]byte(`{"status_code":200,"data":{"client_id":"c-1"}}`))
		case "/submit-otp":
			if body["otp"] != "4321" {
				w.WriteHeader(http.StatusUnprocessableEntity)
				_, _ = w.Write([]byte(`{"status_code":422,"message":"Invalid OTP"}`))
				return
			}
			_, _ = w.Write([]byte(`{"status_code":200,"data":{"profile_image":"https://kyc/1.jpg"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newClient(srv.URL+"/", "key")
	ctx := context.Background()

	id, err := c.GenerateOTP(ctx, "123412341234")
	require.NoError(t, err)
	assert.Equal(t, "c-1", id)

	v, err := c.SubmitOTP(ctx, id, "4321")
	require.NoError(t, err)
	assert.Equal(t, "https://kyc/1.jpg", v.DocumentURL)

	_, err = c.SubmitOTP(ctx, id, "0000")
	require.ErrorIs(t, err, ErrVerificationFailed)
	assert.Contains(t, err.Error(), "Invalid OTP")
}

func TestClient_ProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/generate-otp" {
			_, _ = w.Write([]byte(`{"status_code":200,"data":{}}`))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	}))
	defer srv.Close()

	c := newClient(srv.URL, "key")
	_, err := c.GenerateOTP(context.Background(), "123412341234")
	assert.ErrorIs(t, err, ErrVerificationFailed)

	_, err = c.SubmitOTP(context.Background(), "c-1", "1")
	assert.ErrorIs(t, err, ErrVerificationFailed)
}
