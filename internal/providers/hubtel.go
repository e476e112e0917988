package providers

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	domainErrors "github.com/cassiomorais/awards/internal/domain/errors"
	"github.com/cassiomorais/awards/internal/domain/payment"
)

const DefaultHubtelBaseURL = "https://api.hubtel.com"

type HubtelConfig struct {
	BaseURL               string
	ClientID              string
	ClientSecret          string
	MerchantAccountNumber string
	CallbackSecret        string
	CallbackURL           string
	ReturnURL             string
	CancellationURL       string
}

// Hubtel is the hybrid checkout provider: a redirect page that may complete
// through mobile money, confirmed by callback.
type Hubtel struct {
	cfg    HubtelConfig
	client *http.Client
}

func NewHubtel(cfg HubtelConfig, client *http.Client) *Hubtel {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultHubtelBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Hubtel{cfg: cfg, client: client}
}

func (h *Hubtel) Method() payment.Method { return payment.MethodHubtel }

type hubtelCheckout struct {
	ResponseCode string `json:"responseCode"`
	Status       string `json:"status"`
	Data         struct {
		CheckoutURL     string `json:"checkoutUrl"`
		CheckoutID      string `json:"checkoutId"`
		ClientReference string `json:"clientReference"`
		Status          string `json:"status"`
	} `json:"data"`
}

func (h *Hubtel) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	description := req.Description
	if description == "" {
		description = "Vote payment"
	}
	body := map[string]any{
		"totalAmount":           json.Number(majorUnits(req.Amount.ValueMinor)),
		"description":           description,
		"callbackUrl":           h.cfg.CallbackURL,
		"returnUrl":             h.cfg.ReturnURL,
		"cancellationUrl":       h.cfg.CancellationURL,
		"merchantAccountNumber": h.cfg.MerchantAccountNumber,
		"clientReference":       req.Reference,
	}

	var resp hubtelCheckout
	_, err := do(ctx, h.client, apiCall{
		method: http.MethodPost,
		url:    h.cfg.BaseURL + "/v2/checkout/create",
		body:   body,
		user:   h.cfg.ClientID,
		pass:   h.cfg.ClientSecret,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("hubtel checkout: %w", err)
	}
	if resp.ResponseCode != "0000" || resp.Data.CheckoutID == "" {
		return nil, fmt.Errorf("hubtel checkout: %w: response code %q", domainErrors.ErrProviderRejected, resp.ResponseCode)
	}

	checkoutID := resp.Data.CheckoutID
	checkoutURL := resp.Data.CheckoutURL
	return &InitiateResult{ProviderReference: &checkoutID, RedirectURL: &checkoutURL}, nil
}

// Verify takes the Hubtel checkout id.
func (h *Hubtel) Verify(ctx context.Context, checkoutID string) (bool, error) {
	var resp hubtelCheckout
	_, err := do(ctx, h.client, apiCall{
		method: http.MethodGet,
		url:    h.cfg.BaseURL + "/v2/checkout/" + url.PathEscape(checkoutID),
		user:   h.cfg.ClientID,
		pass:   h.cfg.ClientSecret,
	}, &resp)
	if err != nil {
		return false, fmt.Errorf("hubtel status: %w", err)
	}
	return strings.EqualFold(resp.Data.Status, "PAID"), nil
}

func (h *Hubtel) SignatureHeader() string { return "x-hubtel-signature" }

func (h *Hubtel) ValidateSignature(payload []byte, signature string) error {
	return checkHMAC(sha256.New, h.cfg.CallbackSecret, payload, strings.ToLower(signature))
}

type hubtelCallback struct {
	ResponseCode string `json:"ResponseCode"`
	Status       string `json:"Status"`
	Data         struct {
		CheckoutID      string `json:"CheckoutId"`
		ClientReference string `json:"ClientReference"`
		Status          string `json:"Status"`
		Description     string `json:"Description"`
	} `json:"Data"`
}

func (h *Hubtel) ParseWebhook(payload []byte) (*WebhookEvent, error) {
	var cb hubtelCallback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, domainErrors.NewValidationError("payload", "malformed hubtel callback")
	}

	ev := &WebhookEvent{
		Type:              "checkout." + strings.ToLower(cb.Data.Status),
		Reference:         cb.Data.ClientReference,
		ProviderReference: cb.Data.CheckoutID,
		Kind:              WebhookIgnored,
	}
	switch strings.ToLower(cb.Data.Status) {
	case "paid", "success":
		ev.Kind = WebhookSuccess
	case "failed", "cancelled", "expired":
		ev.Kind = WebhookFailure
		ev.Reason = cb.Data.Description
	}
	return ev, nil
}
