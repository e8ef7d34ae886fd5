package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mandrivka/travelblog/internal/auth"
	"github.com/mandrivka/travelblog/internal/blog"
	"github.com/mandrivka/travelblog/internal/ranking"
	"go.uber.org/zap"
)

const (
	userIDContextKey    = "travelblog_user_id"
	userEmailContextKey = "travelblog_user_email"

	defaultTopLimit = 10
)

var (
	errMissingVerifier       = errors.New("identity verifier dependency required")
	errMissingLedger         = errors.New("like ledger dependency required")
	errMissingComments       = errors.New("comment service dependency required")
	errInvalidAuthorization  = errors.New("authorization header missing or malformed")
	errTokenRejected         = errors.New("invalid or expired identity token")
	messageInternalError     = "internal server error"
	messageArticleIDRequired = "articleId is required"
	messageEmptyCommentText  = "comment text must not be empty"
	messageArticleNotFound   = "article not found"
)

// IdentityVerifier verifies identity-provider bearer tokens.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (auth.Claims, error)
}

// LikeLedger exposes the per-user liked-article set and counter operations.
type LikeLedger interface {
	LikedArticleIDs(ctx context.Context, userID blog.UserID) ([]string, error)
	Like(ctx context.Context, userID blog.UserID, articleID blog.ArticleID) (int64, error)
	Unlike(ctx context.Context, userID blog.UserID, articleID blog.ArticleID) (int64, error)
	ListArticles(ctx context.Context) ([]blog.Article, error)
	TopLiked(ctx context.Context, limit int) ([]blog.Article, error)
}

// CommentStore appends and lists article comments.
type CommentStore interface {
	AddComment(ctx context.Context, request blog.AddCommentRequest) (blog.Comment, error)
	ListComments(ctx context.Context, articleID blog.ArticleID) ([]blog.Comment, error)
}

// TopRanker serves the redis-backed most-liked ranking.
type TopRanker interface {
	Top(n int) ([]ranking.RankedArticle, error)
}

// Dependencies wires the handler's collaborators; there are no ambient globals.
type Dependencies struct {
	Verifier  IdentityVerifier
	Ledger    LikeLedger
	Comments  CommentStore
	Ranker    TopRanker
	StaticDir string
	Logger    *zap.Logger
}

// NewHTTPHandler assembles the gin router for the travel blog API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Verifier == nil {
		return nil, errMissingVerifier
	}
	if deps.Ledger == nil {
		return nil, errMissingLedger
	}
	if deps.Comments == nil {
		return nil, errMissingComments
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		verifier: deps.Verifier,
		ledger:   deps.Ledger,
		comments: deps.Comments,
		ranker:   deps.Ranker,
		logger:   logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/api/articles", handler.handleListArticles)
	router.GET("/api/articles/top", handler.handleTopArticles)
	router.GET("/api/comments/:articleId", handler.handleListComments)

	protected := router.Group("/api")
	protected.Use(handler.authorizeRequest)
	protected.GET("/likes", handler.handleGetLikes)
	protected.POST("/likes", handler.handleLike)
	protected.DELETE("/likes/:articleId", handler.handleUnlike)
	protected.POST("/comments/:articleId", handler.handleAddComment)

	if deps.StaticDir != "" {
		registerStaticRoutes(router, deps.StaticDir)
	}

	return router, nil
}

type httpHandler struct {
	verifier IdentityVerifier
	ledger   LikeLedger
	comments CommentStore
	ranker   TopRanker
	logger   *zap.Logger
}

// authorizeRequest distinguishes a missing or malformed header (401) from a
// token the identity provider rejects (403).
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": errInvalidAuthorization.Error()})
		return
	}

	claims, err := h.verifier.Verify(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token verification failed", zap.Error(err))
		} else {
			h.logger.Warn("token verification failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": errTokenRejected.Error()})
		return
	}

	c.Set(userIDContextKey, claims.Subject)
	c.Set(userEmailContextKey, claims.Email)
	c.Next()
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type likedSetResponse struct {
	LikedArticleIDs []string `json:"likedArticleIds"`
}

func (h *httpHandler) handleGetLikes(c *gin.Context) {
	userID, ok := h.requestUserID(c)
	if !ok {
		return
	}

	ids, err := h.ledger.LikedArticleIDs(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, likedSetResponse{LikedArticleIDs: ids})
}

type likeRequestPayload struct {
	ArticleID string `json:"articleId"`
}

type likesCountResponse struct {
	LikesCount int64 `json:"likesCount"`
}

func (h *httpHandler) handleLike(c *gin.Context) {
	userID, ok := h.requestUserID(c)
	if !ok {
		return
	}

	var request likeRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.ArticleID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": messageArticleIDRequired})
		return
	}
	articleID, err := blog.NewArticleID(request.ArticleID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": messageArticleIDRequired})
		return
	}

	count, err := h.ledger.Like(c.Request.Context(), userID, articleID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, likesCountResponse{LikesCount: count})
}

func (h *httpHandler) handleUnlike(c *gin.Context) {
	userID, ok := h.requestUserID(c)
	if !ok {
		return
	}

	articleID, err := blog.NewArticleID(c.Param("articleId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": messageArticleIDRequired})
		return
	}

	count, err := h.ledger.Unlike(c.Request.Context(), userID, articleID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, likesCountResponse{LikesCount: count})
}

type commentRequestPayload struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

type commentPayload struct {
	CommentID        string `json:"commentId"`
	ArticleID        string `json:"articleId"`
	UserID           string `json:"userId"`
	UserEmail        string `json:"userEmail"`
	Name             string `json:"name"`
	Text             string `json:"text"`
	CreatedAtSeconds int64  `json:"createdAt"`
}

func commentToPayload(comment blog.Comment) commentPayload {
	return commentPayload{
		CommentID:        comment.CommentID,
		ArticleID:        comment.ArticleID,
		UserID:           comment.UserID,
		UserEmail:        comment.UserEmail,
		Name:             comment.DisplayName,
		Text:             comment.Text,
		CreatedAtSeconds: comment.CreatedAtSeconds,
	}
}

func (h *httpHandler) handleAddComment(c *gin.Context) {
	userID, ok := h.requestUserID(c)
	if !ok {
		return
	}

	articleID, err := blog.NewArticleID(c.Param("articleId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": messageArticleIDRequired})
		return
	}

	var request commentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": messageEmptyCommentText})
		return
	}

	comment, err := h.comments.AddComment(c.Request.Context(), blog.AddCommentRequest{
		ArticleID:   articleID,
		UserID:      userID,
		UserEmail:   c.GetString(userEmailContextKey),
		DisplayName: request.Name,
		Text:        request.Text,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"comment": commentToPayload(comment)})
}

func (h *httpHandler) handleListComments(c *gin.Context) {
	articleID, err := blog.NewArticleID(c.Param("articleId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": messageArticleIDRequired})
		return
	}

	comments, err := h.comments.ListComments(c.Request.Context(), articleID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	payloads := make([]commentPayload, 0, len(comments))
	for _, comment := range comments {
		payloads = append(payloads, commentToPayload(comment))
	}
	c.JSON(http.StatusOK, gin.H{"comments": payloads})
}

type articlePayload struct {
	ID                 string `json:"id"`
	Title              string `json:"title"`
	Slug               string `json:"slug"`
	ImageURL           string `json:"imageUrl"`
	PublishedAtSeconds int64  `json:"publishedAt"`
	LikesCount         int64  `json:"likesCount"`
}

func (h *httpHandler) handleListArticles(c *gin.Context) {
	articles, err := h.ledger.ListArticles(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	payloads := make([]articlePayload, 0, len(articles))
	for _, article := range articles {
		payloads = append(payloads, articlePayload{
			ID:                 article.ArticleID,
			Title:              article.Title,
			Slug:               article.Slug,
			ImageURL:           article.ImageURL,
			PublishedAtSeconds: article.PublishedAtSeconds,
			LikesCount:         article.LikesCount,
		})
	}
	c.JSON(http.StatusOK, gin.H{"articles": payloads})
}

type rankedArticlePayload struct {
	ID         string `json:"id"`
	LikesCount int64  `json:"likesCount"`
	Rank       int    `json:"rank"`
}

// handleTopArticles prefers the redis ranking mirror and falls back to the
// store when no mirror is configured.
func (h *httpHandler) handleTopArticles(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultTopLimit)))
	if err != nil || limit <= 0 {
		limit = defaultTopLimit
	}

	if h.ranker != nil {
		ranked, err := h.ranker.Top(limit)
		if err == nil {
			payloads := make([]rankedArticlePayload, 0, len(ranked))
			for _, entry := range ranked {
				payloads = append(payloads, rankedArticlePayload{
					ID:         entry.ArticleID,
					LikesCount: entry.LikesCount,
					Rank:       entry.Rank,
				})
			}
			c.JSON(http.StatusOK, gin.H{"articles": payloads})
			return
		}
		h.logger.Warn("ranking mirror unavailable, falling back to store", zap.Error(err))
	}

	articles, err := h.ledger.TopLiked(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	payloads := make([]rankedArticlePayload, 0, len(articles))
	for index, article := range articles {
		payloads = append(payloads, rankedArticlePayload{
			ID:         article.ArticleID,
			LikesCount: article.LikesCount,
			Rank:       index + 1,
		})
	}
	c.JSON(http.StatusOK, gin.H{"articles": payloads})
}

func (h *httpHandler) requestUserID(c *gin.Context) (blog.UserID, bool) {
	userID, err := blog.NewUserID(c.GetString(userIDContextKey))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": errInvalidAuthorization.Error()})
		return "", false
	}
	return userID, true
}

// respondError maps domain errors to the HTTP taxonomy. Domain messages pass
// through verbatim; store internals never leak past a generic message.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, blog.ErrArticleNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": messageArticleNotFound})
	case errors.Is(err, blog.ErrEmptyCommentText):
		c.JSON(http.StatusBadRequest, gin.H{"message": messageEmptyCommentText})
	case errors.Is(err, blog.ErrInvalidArticleID):
		c.JSON(http.StatusBadRequest, gin.H{"message": messageArticleIDRequired})
	default:
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": messageInternalError})
	}
}

// registerStaticRoutes serves the single-page front end build: real files are
// served as-is, everything else falls back to index.html so client-side
// routing can take over.
func registerStaticRoutes(router *gin.Engine, staticDir string) {
	router.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet || strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
			return
		}
		requested := filepath.Join(staticDir, filepath.Clean("/"+c.Request.URL.Path))
		if info, err := os.Stat(requested); err == nil && !info.IsDir() {
			c.File(requested)
			return
		}
		c.File(filepath.Join(staticDir, "index.html"))
	})
}
