package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// =============================================================================
// HTTP CLIENT
// =============================================================================

// ClientConfig holds settings for the SpaceTraders HTTP client.
type ClientConfig struct {
	Token     string        // Agent bearer token
	BaseURL   string        // API root, no trailing slash
	Timeout   time.Duration // Per-request timeout
	PageLimit int           // Page size for list endpoints
}

// DefaultClientConfig returns the public API defaults for a token.
func DefaultClientConfig(token string) ClientConfig {
	return ClientConfig{
		Token:     token,
		BaseURL:   "https://api.spacetraders.io/v2",
		Timeout:   30 * time.Second,
		PageLimit: 20,
	}
}

// Client talks to the SpaceTraders API. It performs no rate limiting or
// retrying itself; wrap it in a GatedCaller so traffic flows through the
// shared gate.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
}

// Compile-time assertion that Client implements Caller
var _ Caller = (*Client)(nil)

// NewClient creates a client with default configuration.
func NewClient(token string) *Client {
	return NewClientWithConfig(DefaultClientConfig(token))
}

// NewClientWithConfig creates a client with custom configuration.
func NewClientWithConfig(config ClientConfig) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultClientConfig("").BaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.PageLimit <= 0 {
		config.PageLimit = 20
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// envelope is the API's standard response wrapper.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.classify(resp, raw)
	}
	if out == nil {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

// classify builds the typed error for a non-2xx response, pulling the
// server's retryAfter hint from the error payload or the Retry-After
// header when present.
func (c *Client) classify(resp *http.Response, raw []byte) error {
	apiErr := &Error{Status: resp.StatusCode}

	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Error != nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		if len(env.Error.Data) > 0 {
			var hint struct {
				RetryAfter float64 `json:"retryAfter"`
			}
			if err := json.Unmarshal(env.Error.Data, &hint); err == nil && hint.RetryAfter > 0 {
				apiErr.RetryAfter = time.Duration(hint.RetryAfter * float64(time.Second))
			}
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = string(raw)
	}
	if apiErr.RetryAfter == 0 {
		if after := resp.Header.Get("Retry-After"); after != "" {
			if secs, err := strconv.ParseFloat(after, 64); err == nil && secs > 0 {
				apiErr.RetryAfter = time.Duration(secs * float64(time.Second))
			}
		}
	}
	return apiErr
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// getPaged walks a list endpoint page by page until a short page signals
// the end. query must not already contain page or limit.
func getPaged[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	var all []T
	for page := 1; ; page++ {
		q := url.Values{}
		for k, vs := range query {
			q[k] = vs
		}
		q.Set("page", strconv.Itoa(page))
		q.Set("limit", strconv.Itoa(c.config.PageLimit))

		var batch []T
		if err := c.get(ctx, path+"?"+q.Encode(), &batch); err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < c.config.PageLimit {
			return all, nil
		}
	}
}

// -----------------------------------------------------------------------------
// Agent and fleet
// -----------------------------------------------------------------------------

// Agent fetches the player account.
func (c *Client) Agent(ctx context.Context) (*Agent, error) {
	var agent Agent
	if err := c.get(ctx, "/my/agent", &agent); err != nil {
		return nil, fmt.Errorf("failed to fetch agent: %w", err)
	}
	return &agent, nil
}

// Ships lists every ship in the fleet.
func (c *Client) Ships(ctx context.Context) ([]Ship, error) {
	ships, err := getPaged[Ship](ctx, c, "/my/ships", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list ships: %w", err)
	}
	return ships, nil
}

// Ship fetches one ship by symbol.
func (c *Client) Ship(ctx context.Context, symbol string) (*Ship, error) {
	var ship Ship
	if err := c.get(ctx, "/my/ships/"+symbol, &ship); err != nil {
		return nil, fmt.Errorf("failed to fetch ship %s: %w", symbol, err)
	}
	return &ship, nil
}

// -----------------------------------------------------------------------------
// Charts and markets
// -----------------------------------------------------------------------------

// SystemWaypoints lists a system's waypoints, optionally filtered to one
// trait symbol.
func (c *Client) SystemWaypoints(ctx context.Context, systemSymbol, trait string) ([]Waypoint, error) {
	query := url.Values{}
	if trait != "" {
		query.Set("traits", trait)
	}
	waypoints, err := getPaged[Waypoint](ctx, c, "/systems/"+systemSymbol+"/waypoints", query)
	if err != nil {
		return nil, fmt.Errorf("failed to list waypoints in %s: %w", systemSymbol, err)
	}
	return waypoints, nil
}

// Market fetches the trade listing at a waypoint. Live prices are only
// present when one of the agent's ships is at the waypoint.
func (c *Client) Market(ctx context.Context, systemSymbol, waypointSymbol string) (*Market, error) {
	var market Market
	path := "/systems/" + systemSymbol + "/waypoints/" + waypointSymbol + "/market"
	if err := c.get(ctx, path, &market); err != nil {
		return nil, fmt.Errorf("failed to fetch market %s: %w", waypointSymbol, err)
	}
	return &market, nil
}

// -----------------------------------------------------------------------------
// Trading
// -----------------------------------------------------------------------------

// PurchaseCargo buys units of a good at the ship's current waypoint. The
// ship must be docked and units must not exceed the listing's trade
// volume.
func (c *Client) PurchaseCargo(ctx context.Context, shipSymbol, tradeSymbol string, units int) (*PurchaseResult, error) {
	body := map[string]any{"symbol": tradeSymbol, "units": units}
	var result PurchaseResult
	if err := c.post(ctx, "/my/ships/"+shipSymbol+"/purchase", body, &result); err != nil {
		return nil, fmt.Errorf("failed to purchase %dx %s with %s: %w", units, tradeSymbol, shipSymbol, err)
	}
	return &result, nil
}

// SellCargo sells units of a good at the ship's current waypoint.
func (c *Client) SellCargo(ctx context.Context, shipSymbol, tradeSymbol string, units int) (*SellResult, error) {
	body := map[string]any{"symbol": tradeSymbol, "units": units}
	var result SellResult
	if err := c.post(ctx, "/my/ships/"+shipSymbol+"/sell", body, &result); err != nil {
		return nil, fmt.Errorf("failed to sell %dx %s with %s: %w", units, tradeSymbol, shipSymbol, err)
	}
	return &result, nil
}

// JettisonCargo dumps units of a good into space.
func (c *Client) JettisonCargo(ctx context.Context, shipSymbol, tradeSymbol string, units int) (*JettisonResult, error) {
	body := map[string]any{"symbol": tradeSymbol, "units": units}
	var result JettisonResult
	if err := c.post(ctx, "/my/ships/"+shipSymbol+"/jettison", body, &result); err != nil {
		return nil, fmt.Errorf("failed to jettison %dx %s from %s: %w", units, tradeSymbol, shipSymbol, err)
	}
	return &result, nil
}

// -----------------------------------------------------------------------------
// Navigation
// -----------------------------------------------------------------------------

// Orbit moves a docked ship into orbit.
func (c *Client) Orbit(ctx context.Context, shipSymbol string) (*ShipNav, error) {
	var result struct {
		Nav ShipNav `json:"nav"`
	}
	if err := c.post(ctx, "/my/ships/"+shipSymbol+"/orbit", nil, &result); err != nil {
		return nil, fmt.Errorf("failed to orbit %s: %w", shipSymbol, err)
	}
	return &result.Nav, nil
}

// Dock docks an orbiting ship at its current waypoint.
func (c *Client) Dock(ctx context.Context, shipSymbol string) (*ShipNav, error) {
	var result struct {
		Nav ShipNav `json:"nav"`
	}
	if err := c.post(ctx, "/my/ships/"+shipSymbol+"/dock", nil, &result); err != nil {
		return nil, fmt.Errorf("failed to dock %s: %w", shipSymbol, err)
	}
	return &result.Nav, nil
}

// Navigate sends an orbiting ship to a waypoint in its system. The
// returned nav carries the arrival time.
func (c *Client) Navigate(ctx context.Context, shipSymbol, waypointSymbol string) (*NavigateResult, error) {
	body := map[string]any{"waypointSymbol": waypointSymbol}
	var result NavigateResult
	if err := c.post(ctx, "/my/ships/"+shipSymbol+"/navigate", body, &result); err != nil {
		return nil, fmt.Errorf("failed to navigate %s to %s: %w", shipSymbol, waypointSymbol, err)
	}
	return &result, nil
}

// -----------------------------------------------------------------------------
// Contracts
// -----------------------------------------------------------------------------

// Contracts lists the agent's contracts.
func (c *Client) Contracts(ctx context.Context) ([]Contract, error) {
	contracts, err := getPaged[Contract](ctx, c, "/my/contracts", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	return contracts, nil
}

// AcceptContract accepts a contract, collecting the acceptance payment.
func (c *Client) AcceptContract(ctx context.Context, contractID string) (*Contract, error) {
	var result struct {
		Agent    Agent    `json:"agent"`
		Contract Contract `json:"contract"`
	}
	if err := c.post(ctx, "/my/contracts/"+contractID+"/accept", nil, &result); err != nil {
		return nil, fmt.Errorf("failed to accept contract %s: %w", contractID, err)
	}
	return &result.Contract, nil
}

// NegotiateContract asks a faction for a new contract. The ship must be
// docked at one of the faction's waypoints.
func (c *Client) NegotiateContract(ctx context.Context, shipSymbol string) (*Contract, error) {
	var result struct {
		Contract Contract `json:"contract"`
	}
	if err := c.post(ctx, "/my/ships/"+shipSymbol+"/negotiate/contract", nil, &result); err != nil {
		return nil, fmt.Errorf("failed to negotiate contract with %s: %w", shipSymbol, err)
	}
	return &result.Contract, nil
}

// DeliverContract hands over cargo toward a contract's delivery line.
// The ship must be docked at the destination.
func (c *Client) DeliverContract(ctx context.Context, contractID, shipSymbol, tradeSymbol string, units int) (*DeliverResult, error) {
	body := map[string]any{
		"shipSymbol":  shipSymbol,
		"tradeSymbol": tradeSymbol,
		"units":       units,
	}
	var result DeliverResult
	if err := c.post(ctx, "/my/contracts/"+contractID+"/deliver", body, &result); err != nil {
		return nil, fmt.Errorf("failed to deliver %dx %s for %s: %w", units, tradeSymbol, contractID, err)
	}
	return &result, nil
}

// FulfillContract closes out a contract whose deliveries are complete,
// collecting the fulfillment payment.
func (c *Client) FulfillContract(ctx context.Context, contractID string) (*FulfillResult, error) {
	var result FulfillResult
	if err := c.post(ctx, "/my/contracts/"+contractID+"/fulfill", nil, &result); err != nil {
		return nil, fmt.Errorf("failed to fulfill contract %s: %w", contractID, err)
	}
	return &result, nil
}
