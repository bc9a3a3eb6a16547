// Package posclient is the HTTP mutation client for the POS backend. Every
// basket mutation goes through here; resulting state changes come back
// either in the response or as events on the realtime channels.
package posclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tillworks/basketd/internal/basket"
	"github.com/tillworks/basketd/internal/orchestrator"
)

// DefaultTimeout bounds each one-shot mutation request.
const DefaultTimeout = 10 * time.Second

// Client talks to the POS backend. All methods return an
// orchestrator.OrchestrationError with code TRANSPORT_FAILED on wire or
// status failures.
type Client struct {
	baseURL    string
	terminalID string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a backend client. baseURL has no trailing slash.
func New(baseURL, terminalID string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:    baseURL,
		terminalID: terminalID,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// itemResponse is the backend's shape for item-returning mutations. A null
// item with verification_required set means the mutation is held pending age
// verification.
type itemResponse struct {
	Item                 *basket.Item `json:"item"`
	VerificationRequired bool         `json:"verification_required"`
}

// CreateBasket opens a basket for the operator's session.
func (c *Client) CreateBasket(ctx context.Context, employeeID string) (*basket.Basket, error) {
	var resp struct {
		Basket *basket.Basket `json:"basket"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/baskets", map[string]any{
		"terminal_id": c.terminalID,
		"employee_id": employeeID,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Basket == nil {
		return nil, orchestrator.NewTransportError("create basket", fmt.Errorf("empty response"))
	}
	return resp.Basket, nil
}

// GetBasket refreshes the basket from the backend.
func (c *Client) GetBasket(ctx context.Context, basketID string) (*basket.Basket, error) {
	var resp struct {
		Basket *basket.Basket `json:"basket"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/baskets/"+basketID, nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Basket, nil
}

// AddItem submits an item addition. A (nil, nil) return means the backend
// held the item pending age verification rather than adding it.
func (c *Client) AddItem(ctx context.Context, basketID, productID, productName string, quantity int, price basket.Money) (*basket.Item, error) {
	var resp itemResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/baskets/"+basketID+"/items", map[string]any{
		"product_id":   productID,
		"product_name": productName,
		"quantity":     quantity,
		"price":        price,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Item, nil
}

// RemoveItem deletes a line from the basket. The returned bool mirrors the
// backend's acknowledgment that the item existed.
func (c *Client) RemoveItem(ctx context.Context, basketID, itemID string) (bool, error) {
	var resp struct {
		Removed bool `json:"removed"`
	}
	err := c.do(ctx, http.MethodDelete, "/api/v1/baskets/"+basketID+"/items/"+itemID, nil, &resp)
	if err != nil {
		return false, err
	}
	return resp.Removed, nil
}

// UpdateQuantity sets a line's quantity and returns the updated item.
func (c *Client) UpdateQuantity(ctx context.Context, basketID, itemID string, quantity int) (*basket.Item, error) {
	var resp itemResponse
	err := c.do(ctx, http.MethodPatch, "/api/v1/baskets/"+basketID+"/items/"+itemID, map[string]any{
		"quantity": quantity,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Item, nil
}

// VerifyAge submits the operator's age check. The outcome arrives on the
// age-verification channel.
func (c *Client) VerifyAge(ctx context.Context, basketID, verifierID string, customerAge int, method basket.VerificationMethod) error {
	return c.do(ctx, http.MethodPost, "/api/v1/baskets/"+basketID+"/age-verification", map[string]any{
		"verifier_id":         verifierID,
		"customer_age":        customerAge,
		"verification_method": method,
	}, nil)
}

// CancelAgeVerification abandons the pending verification flow.
func (c *Client) CancelAgeVerification(ctx context.Context, basketID, employeeID string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/baskets/"+basketID+"/age-verification/cancel", map[string]any{
		"employee_id": employeeID,
	}, nil)
}

// ProcessPayment submits the basket for payment and blocks on the backend's
// acknowledgment.
func (c *Client) ProcessPayment(ctx context.Context, basketID, employeeID string, amount basket.Money, method string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/baskets/"+basketID+"/payments", map[string]any{
		"terminal_id": c.terminalID,
		"employee_id": employeeID,
		"amount":      amount,
		"method":      method,
	}, nil)
}

// IdentifyCustomer submits an operator-entered customer identifier (loyalty
// card, phone number) for backend lookup and attaches the match to the
// basket. A nil customer means the identifier matched nothing.
func (c *Client) IdentifyCustomer(ctx context.Context, basketID, identifier string) (*basket.Customer, error) {
	var resp struct {
		Customer *basket.Customer `json:"customer"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/baskets/"+basketID+"/customer", map[string]any{
		"customer_identifier": identifier,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Customer, nil
}

// AcceptRecommendation accepts a recommendation; the backend adds the
// product to the basket and returns the created item.
func (c *Client) AcceptRecommendation(ctx context.Context, recommendationID string) (*basket.Item, error) {
	var resp itemResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/recommendations/"+recommendationID+"/accept", nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Item, nil
}

// RejectRecommendation dismisses a recommendation.
func (c *Client) RejectRecommendation(ctx context.Context, recommendationID string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/recommendations/"+recommendationID+"/reject", nil, nil)
}

// do runs one JSON round trip. A nil body sends no payload; a nil out
// discards the response body.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return orchestrator.NewTransportError(method+" "+path, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return orchestrator.NewTransportError(method+" "+path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Terminal-ID", c.terminalID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return orchestrator.NewTransportError(method+" "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warn("backend rejected request",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
		)
		return orchestrator.NewTransportError(
			method+" "+path,
			fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(payload)),
		)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return orchestrator.NewTransportError(method+" "+path, err)
	}
	return nil
}
