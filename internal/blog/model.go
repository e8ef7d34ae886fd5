package blog

import (
	"errors"
	"fmt"
	"strings"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidArticleID indicates that an article identifier is empty or exceeds storage bounds.
	ErrInvalidArticleID = errors.New("blog: invalid article id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("blog: invalid user id")
	// ErrArticleNotFound indicates that the target article does not exist.
	ErrArticleNotFound = errors.New("article not found")
	// ErrEmptyCommentText indicates that the comment text was empty after trimming.
	ErrEmptyCommentText = errors.New("comment text must not be empty")
	// ErrStoreContention indicates that the store transaction retries were exhausted.
	ErrStoreContention = errors.New("blog: store transaction retries exhausted")
)

// anonymousDisplayName is recorded when a commenter supplies no name.
const anonymousDisplayName = "Anonymous"

// ArticleID represents a validated article identifier.
type ArticleID string

// NewArticleID validates raw input and returns an ArticleID.
func NewArticleID(rawInput string) (ArticleID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidArticleID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidArticleID, maxIdentifierLength)
	}
	return ArticleID(trimmed), nil
}

// String returns the underlying string identifier.
func (id ArticleID) String() string {
	return string(id)
}

// UserID represents a validated user identifier (the identity provider subject).
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// Article models a published blog article. Articles are seeded by the content
// catalog; this service only reads them and maintains the likes counter.
type Article struct {
	ArticleID          string `gorm:"column:article_id;primaryKey;size:190;not null"`
	Title              string `gorm:"column:title;size:320;not null"`
	Slug               string `gorm:"column:slug;size:190;not null;default:''"`
	Body               string `gorm:"column:body;type:text;not null;default:''"`
	ImageURL           string `gorm:"column:image_url;size:512;not null;default:''"`
	PublishedAtSeconds int64  `gorm:"column:published_at_s;not null;default:0;index:idx_articles_published"`
	LikesCount         int64  `gorm:"column:likes_count;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (Article) TableName() string {
	return "articles"
}

// LikeEntry is one element of a user's liked-article set. The composite
// primary key enforces the at-most-once membership invariant; the article
// side never stores who liked it, only this forward index exists.
type LikeEntry struct {
	UserID           string `gorm:"column:user_id;primaryKey;size:190;not null"`
	ArticleID        string `gorm:"column:article_id;primaryKey;size:190;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (LikeEntry) TableName() string {
	return "user_likes"
}

// Comment is an immutable record appended to an article's comment list.
// There is no edit or delete path.
type Comment struct {
	// Seq is assigned by the store on insert and fixes the append order.
	Seq              int64  `gorm:"column:seq;primaryKey;autoIncrement"`
	CommentID        string `gorm:"column:comment_id;size:190;not null;uniqueIndex:idx_comments_comment_id"`
	ArticleID        string `gorm:"column:article_id;size:190;not null;index:idx_comments_article"`
	UserID           string `gorm:"column:user_id;size:190;not null"`
	UserEmail        string `gorm:"column:user_email;size:320;not null;default:''"`
	DisplayName      string `gorm:"column:display_name;size:320;not null"`
	Text             string `gorm:"column:text;type:text;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Comment) TableName() string {
	return "comments"
}
