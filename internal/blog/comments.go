package blog

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errMissingIDProvider = errors.New("id provider is required")

const (
	opCommentsNew  = "comments.service.new"
	opAddComment   = "comments.add"
	opListComments = "comments.list"
)

// CommentConfig describes the dependencies of the comment service.
type CommentConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// CommentService appends immutable comments to articles. Each comment is a
// single-row insert, so concurrent commenters never overwrite one another;
// relative order across users is whatever sequence the store assigns.
type CommentService struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewCommentService constructs the comment service with validated dependencies.
func NewCommentService(cfg CommentConfig) (*CommentService, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opCommentsNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opCommentsNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &CommentService{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// AddCommentRequest carries the validated caller identity and the submitted
// form fields.
type AddCommentRequest struct {
	ArticleID   ArticleID
	UserID      UserID
	UserEmail   string
	DisplayName string
	Text        string
}

// AddComment validates the request and appends a comment to the article.
func (s *CommentService) AddComment(ctx context.Context, request AddCommentRequest) (Comment, error) {
	text := strings.TrimSpace(request.Text)
	if text == "" {
		return Comment{}, newServiceError(opAddComment, "empty_text", ErrEmptyCommentText)
	}

	displayName := strings.TrimSpace(request.DisplayName)
	if displayName == "" {
		displayName = anonymousDisplayName
	}

	var exists int64
	if err := s.db.WithContext(ctx).Model(&Article{}).
		Where("article_id = ?", request.ArticleID.String()).
		Count(&exists).Error; err != nil {
		s.logError(opAddComment, "article_lookup_failed", err,
			zap.String("article_id", request.ArticleID.String()))
		return Comment{}, newServiceError(opAddComment, "article_lookup_failed", err)
	}
	if exists == 0 {
		return Comment{}, newServiceError(opAddComment, "article_not_found", ErrArticleNotFound)
	}

	commentID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opAddComment, "id_generation_failed", err)
		return Comment{}, newServiceError(opAddComment, "id_generation_failed", err)
	}

	comment := Comment{
		CommentID:        commentID,
		ArticleID:        request.ArticleID.String(),
		UserID:           request.UserID.String(),
		UserEmail:        strings.TrimSpace(request.UserEmail),
		DisplayName:      displayName,
		Text:             text,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&comment).Error; err != nil {
		s.logError(opAddComment, "insert_failed", err,
			zap.String("article_id", request.ArticleID.String()))
		return Comment{}, newServiceError(opAddComment, "insert_failed", err)
	}

	return comment, nil
}

// ListComments returns an article's comments in append order.
func (s *CommentService) ListComments(ctx context.Context, articleID ArticleID) ([]Comment, error) {
	var exists int64
	if err := s.db.WithContext(ctx).Model(&Article{}).
		Where("article_id = ?", articleID.String()).
		Count(&exists).Error; err != nil {
		s.logError(opListComments, "article_lookup_failed", err,
			zap.String("article_id", articleID.String()))
		return nil, newServiceError(opListComments, "article_lookup_failed", err)
	}
	if exists == 0 {
		return nil, newServiceError(opListComments, "article_not_found", ErrArticleNotFound)
	}

	var comments []Comment
	if err := s.db.WithContext(ctx).
		Where("article_id = ?", articleID.String()).
		Order("seq ASC").
		Find(&comments).Error; err != nil {
		s.logError(opListComments, "query_failed", err,
			zap.String("article_id", articleID.String()))
		return nil, newServiceError(opListComments, "query_failed", err)
	}
	return comments, nil
}

func (s *CommentService) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("comment service error", attrs...)
}
