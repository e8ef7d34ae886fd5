package widget

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) IdentityToken(context.Context) (string, error) {
	return s.token, s.err
}

func TestClientSendsBearerToken(t *testing.T) {
	var seenAuthorization string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAuthorization = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{"likedArticleIds": []string{"art1"}})
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{
		BaseURL:    server.URL,
		Tokens:     staticTokens{token: "identity-token"},
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}

	ids, err := client.LikedArticleIDs(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 1 || ids[0] != "art1" {
		t.Fatalf("unexpected liked set %v", ids)
	}
	if seenAuthorization != "Bearer identity-token" {
		t.Fatalf("unexpected authorization header %q", seenAuthorization)
	}
}

func TestClientDecodesLikesCount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/likes" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"likesCount": 6})
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{
		BaseURL:    server.URL,
		Tokens:     staticTokens{token: "identity-token"},
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}

	count, err := client.Like(context.Background(), "art1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 6 {
		t.Fatalf("expected count 6, got %d", count)
	}
}

func TestClientSurfacesServerMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "article not found"})
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{
		BaseURL:    server.URL,
		Tokens:     staticTokens{token: "identity-token"},
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}

	_, err = client.Like(context.Background(), "ghost")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected api error, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Message != "article not found" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestClientPropagatesTokenProviderFailure(t *testing.T) {
	client, err := NewClient(ClientConfig{
		BaseURL: "http://localhost:0",
		Tokens:  staticTokens{err: errors.New("not signed in")},
	})
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}

	if _, err := client.LikedArticleIDs(context.Background()); err == nil {
		t.Fatalf("expected token provider error")
	}
}
