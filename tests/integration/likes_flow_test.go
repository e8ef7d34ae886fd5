package integration

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mandrivka/travelblog/internal/auth"
	"github.com/mandrivka/travelblog/internal/blog"
	"github.com/mandrivka/travelblog/internal/database"
	"github.com/mandrivka/travelblog/internal/server"
	"go.uber.org/zap"
)

const (
	testAudience = "travelblog-web"
	testIssuer   = "https://idp.example.com"
	testKeyID    = "integration-key"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type environment struct {
	handler http.Handler
	token   string
}

// newEnvironment stands up the full stack: a JWKS endpoint for offline token
// verification, a file-backed store, and the assembled HTTP handler.
func newEnvironment(t *testing.T) *environment {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	jwk := map[string]string{
		"kty": "RSA",
		"alg": "RS256",
		"kid": testKeyID,
		"use": "sig",
		"n":   base64.RawURLEncoding.EncodeToString(privateKey.PublicKey.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(privateKey.PublicKey.E)).Bytes()),
	}
	jwksServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []any{jwk}})
	}))
	t.Cleanup(jwksServer.Close)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "travelblog.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Create(&blog.Article{
		ArticleID:          "art1",
		Title:              "Carpathian Trails",
		Slug:               "carpathian-trails",
		PublishedAtSeconds: 1700000000,
		LikesCount:         5,
	}).Error; err != nil {
		t.Fatalf("failed to seed article: %v", err)
	}

	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		Audience:       testAudience,
		JWKSURL:        jwksServer.URL,
		AllowedIssuers: []string{testIssuer},
		HTTPClient:     jwksServer.Client(),
	})
	if err != nil {
		t.Fatalf("failed to build verifier: %v", err)
	}

	ledger, err := blog.NewLedgerService(blog.LedgerConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build ledger: %v", err)
	}
	comments, err := blog.NewCommentService(blog.CommentConfig{Database: db, IDProvider: blog.NewUUIDProvider()})
	if err != nil {
		t.Fatalf("failed to build comment service: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Verifier: verifier,
		Ledger:   ledger,
		Comments: comments,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}

	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"aud":   testAudience,
		"iss":   testIssuer,
		"sub":   "user-1",
		"email": "traveler@example.com",
		"exp":   now.Add(5 * time.Minute).Unix(),
		"iat":   now.Unix(),
	})
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(privateKey)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	return &environment{handler: handler, token: "Bearer " + signed}
}

func (e *environment) do(t *testing.T, method, target string, body any, authorized bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	request := httptest.NewRequest(method, target, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if authorized {
		request.Header.Set("Authorization", e.token)
	}

	recorder := httptest.NewRecorder()
	e.handler.ServeHTTP(recorder, request)
	return recorder
}

func TestLikeUnlikeFlowAgainstRealStore(t *testing.T) {
	env := newEnvironment(t)

	// Like the seeded article; the counter moves 5 -> 6.
	recorder := env.do(t, http.MethodPost, "/api/likes", map[string]string{"articleId": "art1"}, true)
	if recorder.Code != http.StatusOK {
		t.Fatalf("like: expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var countBody struct {
		LikesCount int64 `json:"likesCount"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &countBody); err != nil {
		t.Fatalf("like: failed to decode body: %v", err)
	}
	if countBody.LikesCount != 6 {
		t.Fatalf("like: expected count 6, got %d", countBody.LikesCount)
	}

	// A repeated like is idempotent.
	recorder = env.do(t, http.MethodPost, "/api/likes", map[string]string{"articleId": "art1"}, true)
	if err := json.Unmarshal(recorder.Body.Bytes(), &countBody); err != nil {
		t.Fatalf("repeat like: failed to decode body: %v", err)
	}
	if countBody.LikesCount != 6 {
		t.Fatalf("repeat like: expected count 6, got %d", countBody.LikesCount)
	}

	// The liked set now contains the article.
	recorder = env.do(t, http.MethodGet, "/api/likes", nil, true)
	if recorder.Code != http.StatusOK {
		t.Fatalf("liked set: expected 200, got %d", recorder.Code)
	}
	var likedBody struct {
		LikedArticleIDs []string `json:"likedArticleIds"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &likedBody); err != nil {
		t.Fatalf("liked set: failed to decode body: %v", err)
	}
	if len(likedBody.LikedArticleIDs) != 1 || likedBody.LikedArticleIDs[0] != "art1" {
		t.Fatalf("liked set: unexpected set %v", likedBody.LikedArticleIDs)
	}

	// Unlike restores the pre-like counter.
	recorder = env.do(t, http.MethodDelete, "/api/likes/art1", nil, true)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unlike: expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &countBody); err != nil {
		t.Fatalf("unlike: failed to decode body: %v", err)
	}
	if countBody.LikesCount != 5 {
		t.Fatalf("unlike: expected count 5, got %d", countBody.LikesCount)
	}

	// The catalog reflects the final counter.
	recorder = env.do(t, http.MethodGet, "/api/articles", nil, false)
	if recorder.Code != http.StatusOK {
		t.Fatalf("articles: expected 200, got %d", recorder.Code)
	}
	var articlesBody struct {
		Articles []struct {
			ID         string `json:"id"`
			LikesCount int64  `json:"likesCount"`
		} `json:"articles"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &articlesBody); err != nil {
		t.Fatalf("articles: failed to decode body: %v", err)
	}
	if len(articlesBody.Articles) != 1 || articlesBody.Articles[0].LikesCount != 5 {
		t.Fatalf("articles: unexpected catalog %+v", articlesBody.Articles)
	}
}

func TestCommentFlowAgainstRealStore(t *testing.T) {
	env := newEnvironment(t)

	recorder := env.do(t, http.MethodPost, "/api/comments/art1",
		map[string]string{"name": "Olena", "text": "Lovely write-up!"}, true)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("add comment: expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = env.do(t, http.MethodPost, "/api/comments/art1",
		map[string]string{"text": "anonymous reply"}, true)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("add second comment: expected 201, got %d", recorder.Code)
	}

	recorder = env.do(t, http.MethodGet, "/api/comments/art1", nil, false)
	if recorder.Code != http.StatusOK {
		t.Fatalf("list comments: expected 200, got %d", recorder.Code)
	}
	var listBody struct {
		Comments []struct {
			Name string `json:"name"`
			Text string `json:"text"`
		} `json:"comments"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &listBody); err != nil {
		t.Fatalf("list comments: failed to decode body: %v", err)
	}
	if len(listBody.Comments) != 2 {
		t.Fatalf("list comments: expected 2, got %d", len(listBody.Comments))
	}
	if listBody.Comments[0].Text != "Lovely write-up!" || listBody.Comments[1].Name != "Anonymous" {
		t.Fatalf("list comments: unexpected order or names %+v", listBody.Comments)
	}
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	env := newEnvironment(t)

	recorder := env.do(t, http.MethodPost, "/api/likes", map[string]string{"articleId": "art1"}, false)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}

	request := httptest.NewRequest(http.MethodGet, "/api/likes", nil)
	request.Header.Set("Authorization", "Bearer not-a-real-token")
	recorder = httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a rejected token, got %d", recorder.Code)
	}
}
