package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/hellocards/internal/card"
	"github.com/dropDatabas3/hellocards/internal/domain"
	"github.com/dropDatabas3/hellocards/internal/jwt"
)

// Client habla con el API /card/v5. Implementa card.Directory y lookup.Directory.
// Todos los errores vuelven mapeados a la taxonomía de domain.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

var _ card.Directory = (*Client)(nil)

func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: hc}
}

// RegisterCard publica la card firmada con el token de su identity.
func (c *Client) RegisterCard(ctx context.Context, raw card.RawCard, token jwt.AccessToken) (card.RawCard, error) {
	var out CardResponse
	if err := c.do(ctx, http.MethodPost, "/card/v5", token.Raw, raw, &out); err != nil {
		return card.RawCard{}, err
	}
	return out.RawCard, nil
}

// GetCard devuelve la card y si está outdated.
func (c *Client) GetCard(ctx context.Context, id string) (card.RawCard, bool, error) {
	var out CardResponse
	if err := c.do(ctx, http.MethodGet, "/card/v5/"+url.PathEscape(id), "", nil, &out); err != nil {
		return card.RawCard{}, false, err
	}
	return out.RawCard, out.IsOutdated, nil
}

func (c *Client) SearchCards(ctx context.Context, identities []string) ([]card.RawCard, error) {
	var out []card.RawCard
	if err := c.do(ctx, http.MethodPost, "/card/v5/actions/search", "", SearchRequest{Identities: identities}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) OutdatedCards(ctx context.Context, ids []string) ([]string, error) {
	var out OutdatedResponse
	if err := c.do(ctx, http.MethodPost, "/card/v5/actions/outdated", "", OutdatedRequest{CardIDs: ids}, &out); err != nil {
		return nil, err
	}
	return out.CardIDs, nil
}

func (c *Client) RevokeCard(ctx context.Context, id string, token jwt.AccessToken) error {
	return c.do(ctx, http.MethodDelete, "/card/v5/"+url.PathEscape(id), token.Raw, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: encode request: %v", domain.ErrInvalidArgument, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %w", domain.ErrNetwork, err)
	}

	if resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrNetwork, err)
	}
	return nil
}

// statusError traduce status + cuerpo de error a la taxonomía de domain.
func statusError(status int, data []byte) error {
	var eb ErrorBody
	_ = json.Unmarshal(data, &eb)
	msg := eb.Message
	if eb.Detail != "" {
		msg += ": " + eb.Detail
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	var kind error
	switch {
	case status == http.StatusBadRequest:
		kind = domain.ErrInvalidArgument
	case status == http.StatusUnauthorized:
		kind = domain.ErrUnauthorized
	case status == http.StatusForbidden:
		kind = domain.ErrForbidden
	case status == http.StatusNotFound:
		kind = domain.ErrNotFound
	case status == http.StatusConflict:
		kind = domain.ErrDuplicateIdentity
	case status == http.StatusUnprocessableEntity && eb.Code == CodeSignatureInvalid:
		kind = domain.ErrSignature
	case status == http.StatusUnprocessableEntity:
		kind = domain.ErrInvalidArgument
	case status == http.StatusTooManyRequests:
		kind = domain.ErrRateLimited
	default:
		kind = domain.ErrNetwork
	}
	return fmt.Errorf("%w: directory status %d: %s", kind, status, msg)
}
