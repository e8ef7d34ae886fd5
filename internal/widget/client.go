package widget

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

var (
	errMissingBaseURL       = errors.New("widget: base url is required")
	errMissingTokenProvider = errors.New("widget: token provider is required")
)

// TokenProvider supplies the caller's current identity token. The identity
// provider owns issuance and refresh; the widget only attaches the result.
type TokenProvider interface {
	IdentityToken(ctx context.Context) (string, error)
}

// APIError carries the status and proxied message of a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("api request failed with status %d: %s", e.StatusCode, e.Message)
}

// ClientConfig configures the REST client for the likes API.
type ClientConfig struct {
	BaseURL    string
	Tokens     TokenProvider
	HTTPClient *http.Client
}

// Client is a small JSON client for the likes endpoints. Timeout policy
// belongs to the injected *http.Client.
type Client struct {
	baseURL    string
	tokens     TokenProvider
	httpClient *http.Client
}

// NewClient constructs a Client with validated configuration.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errMissingBaseURL
	}
	if cfg.Tokens == nil {
		return nil, errMissingTokenProvider
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    baseURL,
		tokens:     cfg.Tokens,
		httpClient: httpClient,
	}, nil
}

type likedSetPayload struct {
	LikedArticleIDs []string `json:"likedArticleIds"`
}

type likesCountPayload struct {
	LikesCount int64 `json:"likesCount"`
}

// LikedArticleIDs fetches the caller's full liked-article set.
func (c *Client) LikedArticleIDs(ctx context.Context) ([]string, error) {
	var payload likedSetPayload
	if err := c.do(ctx, http.MethodGet, "/api/likes", nil, &payload); err != nil {
		return nil, err
	}
	if payload.LikedArticleIDs == nil {
		return []string{}, nil
	}
	return payload.LikedArticleIDs, nil
}

// Like records a like and returns the server's authoritative counter.
func (c *Client) Like(ctx context.Context, articleID string) (int64, error) {
	body := map[string]string{"articleId": articleID}
	var payload likesCountPayload
	if err := c.do(ctx, http.MethodPost, "/api/likes", body, &payload); err != nil {
		return 0, err
	}
	return payload.LikesCount, nil
}

// Unlike removes a like and returns the server's authoritative counter.
func (c *Client) Unlike(ctx context.Context, articleID string) (int64, error) {
	var payload likesCountPayload
	path := "/api/likes/" + url.PathEscape(articleID)
	if err := c.do(ctx, http.MethodDelete, path, nil, &payload); err != nil {
		return 0, err
	}
	return payload.LikesCount, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	token, err := c.tokens.IdentityToken(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	request.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{StatusCode: response.StatusCode}
		var failure struct {
			Message string `json:"message"`
		}
		if decodeErr := json.NewDecoder(response.Body).Decode(&failure); decodeErr == nil {
			apiErr.Message = failure.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(response.Body).Decode(out)
}
