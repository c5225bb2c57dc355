/**
 * @description
 * This package provides a client for the Stripe payments API. It encapsulates
 * authenticated HTTP requests for the marketplace money flow: manual-capture
 * payment intents (authorization holds), captures, cancellations, one-shot
 * charges for diagnostic fees, and transfers to provider connected accounts.
 *
 * @dependencies
 * - context, net/http, net/url, strconv, time: Standard Go libraries.
 */
package stripeclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.stripe.com"

// Client is a client for the Stripe API.
type Client struct {
	BaseURL    string
	SecretKey  string
	HTTPClient *http.Client
}

// NewClient creates a new Stripe API client. An empty baseURL uses the live
// API host; tests point it at a local fake.
func NewClient(baseURL, secretKey string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		BaseURL:   strings.TrimSuffix(baseURL, "/"),
		SecretKey: secretKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// PaymentIntent is the subset of Stripe's payment intent object the service
// reads.
type PaymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	LatestCharge string `json:"latest_charge"`
}

// Transfer is the subset of Stripe's transfer object the service reads.
type Transfer struct {
	ID          string `json:"id"`
	Amount      int64  `json:"amount"`
	Destination string `json:"destination"`
}

// APIError represents an error response from the Stripe API.
type APIError struct {
	StatusCode int
	Payload    struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *APIError) Error() string {
	if e.Payload.Message != "" {
		return fmt.Sprintf("stripe api error (%d): %s - %s", e.StatusCode, e.Payload.Code, e.Payload.Message)
	}
	return fmt.Sprintf("stripe api error (%d)", e.StatusCode)
}

// AuthorizePaymentIntent creates a manual-capture payment intent, placing a
// hold on the customer's payment method without capturing it.
func (c *Client) AuthorizePaymentIntent(ctx context.Context, customerID string, amountCents int64, metadata map[string]string) (*PaymentIntent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountCents, 10))
	form.Set("currency", "usd")
	form.Set("customer", customerID)
	form.Set("capture_method", "manual")
	form.Set("confirm", "true")
	form.Set("off_session", "true")
	for k, v := range metadata {
		form.Set("metadata["+k+"]", v)
	}

	var intent PaymentIntent
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents", form, &intent); err != nil {
		return nil, fmt.Errorf("failed to authorize payment intent: %w", err)
	}
	return &intent, nil
}

// ChargeImmediate creates and confirms an automatic-capture payment intent for
// a one-shot charge such as the diagnostic fee.
func (c *Client) ChargeImmediate(ctx context.Context, customerID string, amountCents int64, description string) (*PaymentIntent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountCents, 10))
	form.Set("currency", "usd")
	form.Set("customer", customerID)
	form.Set("confirm", "true")
	form.Set("off_session", "true")
	form.Set("description", description)

	var intent PaymentIntent
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents", form, &intent); err != nil {
		return nil, fmt.Errorf("failed to charge payment intent: %w", err)
	}
	return &intent, nil
}

// CapturePaymentIntent captures a previously authorized hold for the given
// amount, which must not exceed the authorized amount.
func (c *Client) CapturePaymentIntent(ctx context.Context, paymentIntentID string, amountToCapture int64) (*PaymentIntent, error) {
	form := url.Values{}
	form.Set("amount_to_capture", strconv.FormatInt(amountToCapture, 10))

	var intent PaymentIntent
	path := "/v1/payment_intents/" + paymentIntentID + "/capture"
	if err := c.do(ctx, http.MethodPost, path, form, &intent); err != nil {
		return nil, fmt.Errorf("failed to capture payment intent %s: %w", paymentIntentID, err)
	}
	return &intent, nil
}

// CancelPaymentIntent releases an authorization hold. Used when a change order
// replaces the original hold with a larger one.
func (c *Client) CancelPaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error) {
	var intent PaymentIntent
	path := "/v1/payment_intents/" + paymentIntentID + "/cancel"
	if err := c.do(ctx, http.MethodPost, path, url.Values{}, &intent); err != nil {
		return nil, fmt.Errorf("failed to cancel payment intent %s: %w", paymentIntentID, err)
	}
	return &intent, nil
}

// CreateTransfer moves the provider payout to their connected account.
func (c *Client) CreateTransfer(ctx context.Context, destinationAccountID string, amountCents int64, transferGroup string) (*Transfer, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountCents, 10))
	form.Set("currency", "usd")
	form.Set("destination", destinationAccountID)
	if transferGroup != "" {
		form.Set("transfer_group", transferGroup)
	}

	var transfer Transfer
	if err := c.do(ctx, http.MethodPost, "/v1/transfers", form, &transfer); err != nil {
		return nil, fmt.Errorf("failed to create transfer to %s: %w", destinationAccountID, err)
	}
	return &transfer, nil
}

// do executes a form-encoded request against the Stripe API and decodes the
// JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, apiErr); err != nil {
			log.Printf("level=warn component=stripe_client path=%s status=%d msg=\"non-2xx response (unparsable error body)\"", path, resp.StatusCode)
			return fmt.Errorf("stripe request failed with status %d", resp.StatusCode)
		}
		log.Printf("level=warn component=stripe_client path=%s status=%d code=%q msg=%q", path, resp.StatusCode, apiErr.Payload.Code, apiErr.Payload.Message)
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
