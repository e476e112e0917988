package providers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"net/http"
	"time"

	domainErrors "github.com/cassiomorais/awards/internal/domain/errors"
	"github.com/shopspring/decimal"
)

const (
	defaultHTTPTimeout = 15 * time.Second
	maxResponseBody    = 1 << 20
)

// NewHTTPClient returns the client shared by provider adapters.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &http.Client{Timeout: timeout}
}

// apiCall is one outbound provider request
type apiCall struct {
	method  string
	url     string
	body    any
	headers map[string]string
	user    string
	pass    string
}

// do sends the call and decodes a JSON response into out. Transport failures,
// 5xx and 429 map to ErrProviderUnavailable; other 4xx map to ErrProviderRejected.
func do(ctx context.Context, client *http.Client, call apiCall, out any) (int, error) {
	var body io.Reader
	if call.body != nil {
		raw, err := json.Marshal(call.body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, call.method, call.url, body)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if call.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range call.headers {
		req.Header.Set(k, v)
	}
	if call.user != "" {
		req.SetBasicAuth(call.user, call.pass)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("%w: %v", domainErrors.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: read response: %v", domainErrors.ErrProviderUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return resp.StatusCode, fmt.Errorf("%w: status %d", domainErrors.ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return resp.StatusCode, fmt.Errorf("%w: status %d: %s", domainErrors.ErrProviderRejected, resp.StatusCode, truncate(raw, 256))
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: decode response: %v", domainErrors.ErrProviderUnavailable, err)
		}
	}
	return resp.StatusCode, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}

// majorUnits renders minor units as a two-decimal major-unit string.
func majorUnits(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

// checkHMAC compares a hex-encoded HMAC of payload against signature in constant time.
func checkHMAC(newHash func() hash.Hash, secret string, payload []byte, signature string) error {
	if secret == "" || signature == "" {
		return domainErrors.ErrInvalidSignature
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return domainErrors.ErrInvalidSignature
	}
	mac := hmac.New(newHash, []byte(secret))
	mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), got) {
		return domainErrors.ErrInvalidSignature
	}
	return nil
}

// Sign returns the hex HMAC of payload, as providers compute it.
func Sign(newHash func() hash.Hash, secret string, payload []byte) string {
	mac := hmac.New(newHash, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
