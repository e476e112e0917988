package providers

import (
	"context"
	"crypto/sha512"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	domainErrors "github.com/cassiomorais/awards/internal/domain/errors"
	"github.com/cassiomorais/awards/internal/domain/payment"
)

const DefaultPaystackBaseURL = "https://api.paystack.co"

type PaystackConfig struct {
	SecretKey   string
	BaseURL     string
	CallbackURL string
}

// Paystack is the redirect checkout provider.
type Paystack struct {
	cfg    PaystackConfig
	client *http.Client
}

func NewPaystack(cfg PaystackConfig, client *http.Client) *Paystack {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultPaystackBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Paystack{cfg: cfg, client: client}
}

func (p *Paystack) Method() payment.Method { return payment.MethodPaystack }

type paystackEnvelope[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type paystackInitData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type paystackVerifyData struct {
	Status          string `json:"status"`
	Reference       string `json:"reference"`
	GatewayResponse string `json:"gateway_response"`
}

func (p *Paystack) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	body := map[string]any{
		"email":        req.Payer.Email,
		"amount":       req.Amount.ValueMinor,
		"currency":     req.Amount.Currency,
		"reference":    req.Reference,
		"callback_url": p.cfg.CallbackURL,
		"metadata": map[string]string{
			"nominee_id":  req.Metadata.NomineeID.String(),
			"event_id":    req.Metadata.EventID.String(),
			"position_id": req.Metadata.PositionID.String(),
		},
	}

	var resp paystackEnvelope[paystackInitData]
	_, err := do(ctx, p.client, apiCall{
		method:  http.MethodPost,
		url:     p.cfg.BaseURL + "/transaction/initialize",
		body:    body,
		headers: p.auth(),
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("paystack initialize: %w", err)
	}
	if !resp.Status || resp.Data.AuthorizationURL == "" {
		return nil, fmt.Errorf("paystack initialize: %w: %s", domainErrors.ErrProviderRejected, resp.Message)
	}

	redirect := resp.Data.AuthorizationURL
	return &InitiateResult{RedirectURL: &redirect}, nil
}

func (p *Paystack) Verify(ctx context.Context, reference string) (bool, error) {
	var resp paystackEnvelope[paystackVerifyData]
	_, err := do(ctx, p.client, apiCall{
		method:  http.MethodGet,
		url:     p.cfg.BaseURL + "/transaction/verify/" + url.PathEscape(reference),
		headers: p.auth(),
	}, &resp)
	if err != nil {
		return false, fmt.Errorf("paystack verify: %w", err)
	}

	switch resp.Data.Status {
	case "success":
		return true, nil
	case "failed", "reversed":
		return false, fmt.Errorf("paystack verify: %w: %s", domainErrors.ErrProviderRejected, resp.Data.GatewayResponse)
	default:
		return false, nil
	}
}

func (p *Paystack) SignatureHeader() string { return "x-paystack-signature" }

func (p *Paystack) ValidateSignature(payload []byte, signature string) error {
	return checkHMAC(sha512.New, p.cfg.SecretKey, payload, strings.ToLower(signature))
}

type paystackWebhook struct {
	Event string `json:"event"`
	Data  struct {
		Reference       string `json:"reference"`
		Status          string `json:"status"`
		GatewayResponse string `json:"gateway_response"`
	} `json:"data"`
}

func (p *Paystack) ParseWebhook(payload []byte) (*WebhookEvent, error) {
	var hook paystackWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, domainErrors.NewValidationError("payload", "malformed paystack webhook")
	}

	ev := &WebhookEvent{
		Type:      hook.Event,
		Reference: hook.Data.Reference,
		Kind:      WebhookIgnored,
	}
	switch hook.Event {
	case "charge.success":
		ev.Kind = WebhookSuccess
	case "charge.failed":
		ev.Kind = WebhookFailure
		ev.Reason = hook.Data.GatewayResponse
	}
	return ev, nil
}

func (p *Paystack) auth() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.cfg.SecretKey}
}
