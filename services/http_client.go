package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/parley-net/parley/crypto"
	"github.com/parley-net/parley/protocol"
)

// RelayClient talks to a relay server over HTTP. One client represents one
// identity: it signs every state-changing request with the identity's
// long-term key so the relay can verify the envelope against the directory.
type RelayClient struct {
	baseURL    string
	httpClient *http.Client
	privateKey crypto.PrivateKey
}

// NewRelayClient creates a client for the relay at baseURL, signing requests
// with the given identity key.
func NewRelayClient(baseURL string, privateKey crypto.PrivateKey) *RelayClient {
	return &RelayClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		privateKey: privateKey,
	}
}

// RegisterIdentity registers this client's identity in the relay directory.
func (c *RelayClient) RegisterIdentity(ctx context.Context, ident *protocol.Identity) error {
	var resp RegisterIdentityResponse
	return postSigned(ctx, c, "/api/directory/register", ident, &resp)
}

// LookupIdentity fetches a directory entry by id.
func (c *RelayClient) LookupIdentity(ctx context.Context, id string) (*protocol.Identity, error) {
	var ident protocol.Identity
	if err := c.get(ctx, "/api/directory/identity/"+url.PathEscape(id), &ident); err != nil {
		return nil, err
	}
	return &ident, nil
}

// SearchIdentities lists directory entries whose id starts with prefix.
func (c *RelayClient) SearchIdentities(ctx context.Context, prefix string) ([]*protocol.Identity, error) {
	var resp SearchResponse
	if err := c.get(ctx, "/api/directory/search?prefix="+url.QueryEscape(prefix), &resp); err != nil {
		return nil, err
	}
	return resp.Identities, nil
}

// Initiate starts a new key exchange.
func (c *RelayClient) Initiate(ctx context.Context, req *InitiateRequest) (*protocol.ExchangeRecord, error) {
	var resp ExchangeResponse
	if err := postSigned(ctx, c, "/api/exchanges", req, &resp); err != nil {
		return nil, err
	}
	return resp.Exchange, nil
}

// Respond completes a pending exchange.
func (c *RelayClient) Respond(ctx context.Context, exchangeID string, req *RespondRequest) (*protocol.ExchangeRecord, error) {
	var resp ExchangeResponse
	if err := postSigned(ctx, c, "/api/exchanges/"+url.PathEscape(exchangeID)+"/respond", req, &resp); err != nil {
		return nil, err
	}
	return resp.Exchange, nil
}

// Confirm attaches a key-confirmation tag to a completed exchange.
func (c *RelayClient) Confirm(ctx context.Context, exchangeID string, req *ConfirmRequest) error {
	var resp map[string]bool
	return postSigned(ctx, c, "/api/exchanges/"+url.PathEscape(exchangeID)+"/confirm", req, &resp)
}

// GetExchange fetches an exchange record by id.
func (c *RelayClient) GetExchange(ctx context.Context, exchangeID string) (*protocol.ExchangeRecord, error) {
	var resp ExchangeResponse
	if err := c.get(ctx, "/api/exchanges/"+url.PathEscape(exchangeID), &resp); err != nil {
		return nil, err
	}
	return resp.Exchange, nil
}

// Pending lists exchanges awaiting this user's action.
func (c *RelayClient) Pending(ctx context.Context, userID string) ([]*protocol.ExchangeRecord, error) {
	var resp PendingResponse
	if err := c.get(ctx, "/api/exchanges/pending/"+url.PathEscape(userID), &resp); err != nil {
		return nil, err
	}
	return resp.Exchanges, nil
}

// SubmitMessage submits a sealed message for relay.
func (c *RelayClient) SubmitMessage(ctx context.Context, msg *protocol.SecureMessage) error {
	var resp SubmitMessageResponse
	return postSigned(ctx, c, "/api/messages", msg, &resp)
}

// FetchMessages fetches accepted messages for the receiver since the given
// time. A zero since fetches everything.
func (c *RelayClient) FetchMessages(ctx context.Context, receiverID string, since time.Time) ([]*protocol.SecureMessage, error) {
	path := "/api/messages/" + url.PathEscape(receiverID)
	if !since.IsZero() {
		path += "?since=" + url.QueryEscape(since.Format(time.RFC3339))
	}

	var resp MessagesResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func postSigned[T any](ctx context.Context, c *RelayClient, path string, obj *T, out any) error {
	signed, err := protocol.NewSigned(c.privateKey, obj)
	if err != nil {
		return fmt.Errorf("signing request: %w", err)
	}

	body, err := protocol.SerializeMessage(signed)
	if err != nil {
		return fmt.Errorf("serializing request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return c.statusError(resp)
	}
	return decodeInto(resp, out)
}

func (c *RelayClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return c.statusError(resp)
	}
	return decodeInto(resp, out)
}

func (c *RelayClient) statusError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := decodeInto(resp, &body); err == nil && body.Error != "" {
		return fmt.Errorf("relay returned %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("relay returned %d", resp.StatusCode)
}

func decodeInto(resp *http.Response, out any) error {
	return json.NewDecoder(resp.Body).Decode(out)
}
