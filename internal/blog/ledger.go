package blog

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

const (
	opLedgerNew    = "likes.ledger.new"
	opLikedSet     = "likes.liked_set"
	opLike         = "likes.like"
	opUnlike       = "likes.unlike"
	opListArticles = "likes.list_articles"

	defaultMaxTransactionAttempts = 3
	retryBackoff                  = 25 * time.Millisecond
)

// Ranker receives committed counter values for best-effort mirroring. A nil
// Ranker disables mirroring entirely.
type Ranker interface {
	Record(articleID string, likesCount int64) error
}

// LedgerConfig describes the dependencies of the like ledger.
type LedgerConfig struct {
	Database    *gorm.DB
	Clock       func() time.Time
	Logger      *zap.Logger
	Ranker      Ranker
	MaxAttempts int
}

// LedgerService maintains each user's liked-article set and the denormalized
// per-article like counter. The two are only ever mutated together inside a
// single store transaction.
type LedgerService struct {
	db          *gorm.DB
	clock       func() time.Time
	logger      *zap.Logger
	ranker      Ranker
	maxAttempts int
}

// NewLedgerService constructs the ledger with validated dependencies.
func NewLedgerService(cfg LedgerConfig) (*LedgerService, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opLedgerNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxTransactionAttempts
	}

	return &LedgerService{
		db:          cfg.Database,
		clock:       clock,
		logger:      logger,
		ranker:      cfg.Ranker,
		maxAttempts: maxAttempts,
	}, nil
}

// LikedArticleIDs returns the caller's liked-article set. A user without a
// ledger record yields an empty set, not an error.
func (s *LedgerService) LikedArticleIDs(ctx context.Context, userID UserID) ([]string, error) {
	var entries []LikeEntry
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("created_at_s ASC").
		Find(&entries).Error; err != nil {
		s.logError(opLikedSet, "query_failed", err, zap.String("user_id", userID.String()))
		return nil, newServiceError(opLikedSet, "query_failed", err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.ArticleID)
	}
	return ids, nil
}

// Like adds the article to the user's liked set and increments the article
// counter by exactly one, atomically. Liking an already-liked article is a
// no-op that returns the current counter unchanged.
func (s *LedgerService) Like(ctx context.Context, userID UserID, articleID ArticleID) (int64, error) {
	var newCount int64
	var mirrored bool
	run := func(tx *gorm.DB) error {
		mirrored = false
		article, err := s.lockArticle(tx, articleID)
		if err != nil {
			return err
		}
		if article == nil {
			return ErrArticleNotFound
		}

		member, err := s.isMember(tx, userID, articleID)
		if err != nil {
			return err
		}
		if member {
			newCount = article.LikesCount
			return nil
		}

		entry := LikeEntry{
			UserID:           userID.String(),
			ArticleID:        articleID.String(),
			CreatedAtSeconds: s.clock().UTC().Unix(),
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		if err := tx.Model(&Article{}).
			Where("article_id = ?", articleID.String()).
			UpdateColumn("likes_count", gorm.Expr("likes_count + 1")).Error; err != nil {
			return err
		}

		// Return the value the transaction computed rather than re-reading
		// after commit; an interleaving writer must not skew the response.
		newCount = article.LikesCount + 1
		mirrored = true
		return nil
	}

	if err := s.runTransaction(ctx, opLike, userID, articleID, run); err != nil {
		return 0, err
	}

	if mirrored {
		s.mirrorCount(articleID, newCount)
	}
	return newCount, nil
}

// Unlike removes the article from the user's liked set and decrements the
// article counter, atomically. Unliking something never liked is a no-op
// returning the unchanged counter; the counter never goes below zero.
func (s *LedgerService) Unlike(ctx context.Context, userID UserID, articleID ArticleID) (int64, error) {
	var newCount int64
	var mirrored bool
	run := func(tx *gorm.DB) error {
		mirrored = false
		article, err := s.lockArticle(tx, articleID)
		if err != nil {
			return err
		}

		member, err := s.isMember(tx, userID, articleID)
		if err != nil {
			return err
		}
		if !member {
			if article == nil {
				newCount = 0
				return nil
			}
			newCount = article.LikesCount
			return nil
		}

		if err := tx.
			Where("user_id = ? AND article_id = ?", userID.String(), articleID.String()).
			Delete(&LikeEntry{}).Error; err != nil {
			return err
		}

		if article == nil || article.LikesCount <= 0 {
			newCount = 0
			return nil
		}

		if err := tx.Model(&Article{}).
			Where("article_id = ? AND likes_count > 0", articleID.String()).
			UpdateColumn("likes_count", gorm.Expr("likes_count - 1")).Error; err != nil {
			return err
		}
		newCount = article.LikesCount - 1
		mirrored = true
		return nil
	}

	if err := s.runTransaction(ctx, opUnlike, userID, articleID, run); err != nil {
		return 0, err
	}

	if mirrored {
		s.mirrorCount(articleID, newCount)
	}
	return newCount, nil
}

// ListArticles returns the published catalog, newest first.
func (s *LedgerService) ListArticles(ctx context.Context) ([]Article, error) {
	var articles []Article
	if err := s.db.WithContext(ctx).
		Order("published_at_s DESC").
		Find(&articles).Error; err != nil {
		s.logError(opListArticles, "query_failed", err)
		return nil, newServiceError(opListArticles, "query_failed", err)
	}
	return articles, nil
}

// TopLiked returns the limit most-liked articles, highest counter first.
func (s *LedgerService) TopLiked(ctx context.Context, limit int) ([]Article, error) {
	if limit <= 0 {
		limit = 10
	}
	var articles []Article
	if err := s.db.WithContext(ctx).
		Order("likes_count DESC").
		Limit(limit).
		Find(&articles).Error; err != nil {
		s.logError(opListArticles, "top_query_failed", err)
		return nil, newServiceError(opListArticles, "top_query_failed", err)
	}
	return articles, nil
}

// lockArticle loads the article row under an update lock, returning nil when
// it does not exist.
func (s *LedgerService) lockArticle(tx *gorm.DB, articleID ArticleID) (*Article, error) {
	var article Article
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("article_id = ?", articleID.String()).
		Take(&article).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &article, nil
}

func (s *LedgerService) isMember(tx *gorm.DB, userID UserID, articleID ArticleID) (bool, error) {
	var entry LikeEntry
	err := tx.
		Where("user_id = ? AND article_id = ?", userID.String(), articleID.String()).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// runTransaction executes fn as a store transaction, retrying the whole
// read-modify-write on contention. Domain errors abort immediately with no
// partial effect; exhausted retries surface as a transient store failure.
func (s *LedgerService) runTransaction(ctx context.Context, operation string, userID UserID, articleID ArticleID, fn func(*gorm.DB) error) error {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := s.db.WithContext(ctx).Transaction(fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrArticleNotFound) {
			return newServiceError(operation, "article_not_found", err)
		}
		if !isRetryableStoreError(err) {
			s.logError(operation, "transaction_failed", err,
				zap.String("user_id", userID.String()),
				zap.String("article_id", articleID.String()))
			return newServiceError(operation, "transaction_failed", err)
		}
		lastErr = err
		s.logger.Warn("store transaction conflict, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.String("article_id", articleID.String()),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return newServiceError(operation, "context_cancelled", ctx.Err())
		case <-time.After(retryBackoff * time.Duration(attempt)):
		}
	}

	s.logError(operation, "retries_exhausted", lastErr,
		zap.String("user_id", userID.String()),
		zap.String("article_id", articleID.String()))
	return newServiceError(operation, "retries_exhausted", errors.Join(ErrStoreContention, lastErr))
}

// mirrorCount pushes the committed counter to the ranker. Mirroring is best
// effort: the transaction already committed, so failures are only logged.
func (s *LedgerService) mirrorCount(articleID ArticleID, count int64) {
	if s.ranker == nil {
		return
	}
	if err := s.ranker.Record(articleID.String(), count); err != nil {
		s.logger.Warn("like counter mirror failed",
			zap.String("article_id", articleID.String()),
			zap.Int64("likes_count", count),
			zap.Error(err))
	}
}

func isRetryableStoreError(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "database is locked") ||
		strings.Contains(message, "database table is locked") ||
		strings.Contains(message, "busy")
}

func (s *LedgerService) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("like ledger error", attrs...)
}
