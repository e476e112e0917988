package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/awards/internal/domain/errors"
	"github.com/cassiomorais/awards/internal/domain/payment"
	"golang.org/x/sync/singleflight"
)

const (
	MoMoSandboxURL    = "https://sandbox.momodeveloper.mtn.com"
	MoMoProductionURL = "https://proxy.momoapi.mtn.com"

	tokenExpirySkew = 60 * time.Second
)

type MoMoConfig struct {
	BaseURL           string
	SubscriptionKey   string
	APIUser           string
	APIKey            string
	TargetEnvironment string
	// Currency overrides the payment currency; the sandbox only accepts EUR.
	Currency string
}

// MoMo is the MTN Mobile Money push-to-phone provider. It has no redirect and
// no webhook; confirmation is polled.
type MoMo struct {
	cfg    MoMoConfig
	client *http.Client
	now    func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
	tokenFlight singleflight.Group
}

func NewMoMo(cfg MoMoConfig, client *http.Client) *MoMo {
	if cfg.TargetEnvironment == "" {
		cfg.TargetEnvironment = "sandbox"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = MoMoSandboxURL
		if cfg.TargetEnvironment != "sandbox" {
			cfg.BaseURL = MoMoProductionURL
		}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &MoMo{cfg: cfg, client: client, now: time.Now}
}

func (m *MoMo) Method() payment.Method { return payment.MethodMoMo }

type momoToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// accessToken returns a cached bearer token, fetching a new one near expiry.
// Concurrent callers share one fetch; each stops waiting when its ctx ends.
func (m *MoMo) accessToken(ctx context.Context) (string, error) {
	if tok, ok := m.cachedToken(); ok {
		return tok, nil
	}

	ch := m.tokenFlight.DoChan("token", func() (any, error) {
		if tok, ok := m.cachedToken(); ok {
			return tok, nil
		}
		return m.fetchToken(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *MoMo) cachedToken() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token != "" && m.now().Before(m.tokenExpiry) {
		return m.token, true
	}
	return "", false
}

func (m *MoMo) fetchToken(ctx context.Context) (string, error) {
	var tok momoToken
	_, err := do(ctx, m.client, apiCall{
		method:  http.MethodPost,
		url:     m.cfg.BaseURL + "/collection/token/",
		headers: map[string]string{"Ocp-Apim-Subscription-Key": m.cfg.SubscriptionKey},
		user:    m.cfg.APIUser,
		pass:    m.cfg.APIKey,
	}, &tok)
	if err != nil {
		return "", fmt.Errorf("momo token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("momo token: %w: empty access token", domainErrors.ErrProviderUnavailable)
	}

	ttl := time.Duration(tok.ExpiresIn)*time.Second - tokenExpirySkew
	if ttl < 0 {
		ttl = 0
	}
	m.mu.Lock()
	m.token = tok.AccessToken
	m.tokenExpiry = m.now().Add(ttl)
	m.mu.Unlock()
	return tok.AccessToken, nil
}

func (m *MoMo) invalidateToken() {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
}

func (m *MoMo) headers(token, reference string) map[string]string {
	h := map[string]string{
		"Authorization":             "Bearer " + token,
		"X-Target-Environment":      m.cfg.TargetEnvironment,
		"Ocp-Apim-Subscription-Key": m.cfg.SubscriptionKey,
	}
	if reference != "" {
		h["X-Reference-Id"] = reference
	}
	return h
}

func (m *MoMo) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	token, err := m.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	currency := req.Amount.Currency
	if m.cfg.Currency != "" {
		currency = m.cfg.Currency
	}
	note := req.Description
	if note == "" {
		note = "Vote payment"
	}

	body := map[string]any{
		"amount":     majorUnits(req.Amount.ValueMinor),
		"currency":   currency,
		"externalId": req.Reference,
		"payer": map[string]string{
			"partyIdType": "MSISDN",
			"partyId":     req.Payer.Phone,
		},
		"payerMessage": note,
		"payeeNote":    note,
	}

	status, err := do(ctx, m.client, apiCall{
		method:  http.MethodPost,
		url:     m.cfg.BaseURL + "/collection/v1_0/requesttopay",
		body:    body,
		headers: m.headers(token, req.Reference),
	}, nil)
	if status == http.StatusUnauthorized {
		m.invalidateToken()
		return nil, fmt.Errorf("momo requesttopay: %w: token rejected", domainErrors.ErrProviderUnavailable)
	}
	// 409 means a request under this X-Reference-Id already reached MTN, e.g.
	// a retry after a lost response. The prompt is live and gets polled.
	if status == http.StatusConflict {
		return &InitiateResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("momo requesttopay: %w", err)
	}
	return &InitiateResult{}, nil
}

type momoStatus struct {
	Status                 string `json:"status"`
	Reason                 any    `json:"reason"`
	FinancialTransactionID string `json:"financialTransactionId"`
}

func (m *MoMo) Verify(ctx context.Context, reference string) (bool, error) {
	token, err := m.accessToken(ctx)
	if err != nil {
		return false, err
	}

	var resp momoStatus
	status, err := do(ctx, m.client, apiCall{
		method:  http.MethodGet,
		url:     m.cfg.BaseURL + "/collection/v1_0/requesttopay/" + url.PathEscape(reference),
		headers: m.headers(token, ""),
	}, &resp)
	if status == http.StatusUnauthorized {
		m.invalidateToken()
		return false, fmt.Errorf("momo status: %w: token rejected", domainErrors.ErrProviderUnavailable)
	}
	if status == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("momo status: %w", err)
	}

	switch strings.ToUpper(resp.Status) {
	case "SUCCESSFUL":
		return true, nil
	case "FAILED", "REJECTED", "TIMEOUT":
		return false, fmt.Errorf("momo status: %w: %s %v", domainErrors.ErrProviderRejected, resp.Status, resp.Reason)
	default:
		return false, nil
	}
}
