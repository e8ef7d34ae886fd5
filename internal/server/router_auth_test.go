package server

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestProtectedRouteRejectsMissingAuthorizationHeader(t *testing.T) {
	fixture := newHandlerFixture(t, zap.NewNop())

	recorder := performRequest(t, fixture.handler, http.MethodGet, "/api/likes", "", nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
	if message := decodeMessage(t, recorder); message != errInvalidAuthorization.Error() {
		t.Fatalf("unexpected message %q", message)
	}
}

func TestProtectedRouteRejectsMalformedAuthorizationHeader(t *testing.T) {
	fixture := newHandlerFixture(t, zap.NewNop())

	for _, header := range []string{"Basic dXNlcjpwYXNz", "Bearer", "Bearer   ", "token-without-scheme"} {
		recorder := performRequest(t, fixture.handler, http.MethodGet, "/api/likes", header, nil)
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, recorder.Code)
		}
	}
}

func TestProtectedRouteRejectsInvalidToken(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	fixture := newHandlerFixture(t, zap.New(core))
	fixture.verifier.err = fmt.Errorf("verify token: %w", jwt.ErrTokenSignatureInvalid)

	recorder := performRequest(t, fixture.handler, http.MethodGet, "/api/likes", "Bearer bad-token", nil)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", recorder.Code)
	}
	if message := decodeMessage(t, recorder); message != errTokenRejected.Error() {
		t.Fatalf("unexpected message %q", message)
	}

	entries := logs.FilterMessage("token verification failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one verification log entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level for signature failure, got %s", entries[0].Level)
	}
}

func TestProtectedRouteLogsExpiredTokenAtInfoLevel(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	fixture := newHandlerFixture(t, zap.New(core))
	fixture.verifier.err = fmt.Errorf("verify token: %w", jwt.ErrTokenExpired)

	recorder := performRequest(t, fixture.handler, http.MethodGet, "/api/likes", "Bearer expired-token", nil)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", recorder.Code)
	}

	entries := logs.FilterMessage("token verification failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one verification log entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel {
		t.Fatalf("expected info level for expired token, got %s", entries[0].Level)
	}
}

func TestProtectedRoutePropagatesVerifiedIdentity(t *testing.T) {
	fixture := newHandlerFixture(t, zap.NewNop())
	fixture.comments.addComment = testComment("comment-1", "art1", time.Unix(1700000000, 0).Unix())

	recorder := performRequest(t, fixture.handler, http.MethodPost, "/api/comments/art1", "Bearer good-token",
		map[string]string{"text": "hello"})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if fixture.comments.lastRequest.UserID.String() != "user-1" {
		t.Fatalf("unexpected user id %q", fixture.comments.lastRequest.UserID.String())
	}
	if fixture.comments.lastRequest.UserEmail != "traveler@example.com" {
		t.Fatalf("unexpected user email %q", fixture.comments.lastRequest.UserEmail)
	}
}
