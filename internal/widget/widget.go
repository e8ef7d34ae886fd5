package widget

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrToggleInFlight reports a toggle request made while another is outstanding.
	ErrToggleInFlight = errors.New("widget: toggle already in flight")
	// ErrStatusUnknown reports a toggle request before the first status refresh.
	ErrStatusUnknown = errors.New("widget: like status not yet known")
	// ErrClosed reports use of a widget after teardown.
	ErrClosed = errors.New("widget: closed")

	errMissingAPI       = errors.New("widget: likes api is required")
	errMissingArticleID = errors.New("widget: article id is required")
)

// LikesAPI is the slice of the REST surface the widget drives.
type LikesAPI interface {
	LikedArticleIDs(ctx context.Context) ([]string, error)
	Like(ctx context.Context, articleID string) (int64, error)
	Unlike(ctx context.Context, articleID string) (int64, error)
}

// WidgetConfig configures a like widget bound to a single article.
type WidgetConfig struct {
	ArticleID string
	API       LikesAPI
	Logger    *zap.Logger
}

// Widget mirrors the server-side like state for one article, applying
// optimistic updates and reconciling them against server responses.
type Widget struct {
	articleID string
	api       LikesAPI
	logger    *zap.Logger

	mu      sync.Mutex
	state   State
	capture toggleCapture
	closed  bool
}

// NewWidget constructs a widget in the Unknown state.
func NewWidget(cfg WidgetConfig) (*Widget, error) {
	if cfg.ArticleID == "" {
		return nil, errMissingArticleID
	}
	if cfg.API == nil {
		return nil, errMissingAPI
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Widget{
		articleID: cfg.ArticleID,
		api:       cfg.API,
		logger:    logger,
	}, nil
}

// State returns a snapshot of the current widget state.
func (w *Widget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Refresh fetches the caller's liked set and derives the liked flag, taking
// the article's externally supplied counter as the displayed count. A failed
// fetch settles liked=false: the widget fails safe, never open.
func (w *Widget) Refresh(ctx context.Context, articleCount int64) State {
	liked := false
	ids, err := w.api.LikedArticleIDs(ctx)
	if err != nil {
		w.logger.Warn("liked set fetch failed",
			zap.String("article_id", w.articleID),
			zap.Error(err))
	} else {
		for _, id := range ids {
			if id == w.articleID {
				liked = true
				break
			}
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return w.state
	}
	w.state = applyStatus(w.state, liked, articleCount)
	return w.state
}

// Toggle optimistically flips the like state, issues the matching server
// call, and reconciles: the server count wins on success, the pre-toggle
// values are restored on failure. A toggle while one is outstanding is
// rejected without queueing.
func (w *Widget) Toggle(ctx context.Context) (State, error) {
	w.mu.Lock()
	if w.closed {
		state := w.state
		w.mu.Unlock()
		return state, ErrClosed
	}
	next, capture, ok := beginToggle(w.state)
	if !ok {
		state := w.state
		w.mu.Unlock()
		if !state.Known {
			return state, ErrStatusUnknown
		}
		return state, ErrToggleInFlight
	}
	w.state = next
	w.capture = capture
	w.mu.Unlock()

	var serverCount int64
	var err error
	if capture.liked {
		serverCount, err = w.api.Unlike(ctx, w.articleID)
	} else {
		serverCount, err = w.api.Like(ctx, w.articleID)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		// The widget is gone; a late response is discarded.
		return w.state, ErrClosed
	}
	w.state = completeToggle(w.state, w.capture, serverCount, err)
	if err != nil {
		w.logger.Warn("like toggle failed, rolled back",
			zap.String("article_id", w.articleID),
			zap.Bool("was_liked", capture.liked),
			zap.Error(err))
		return w.state, err
	}
	return w.state, nil
}

// Close marks the widget as torn down; any in-flight completion becomes a
// no-op.
func (w *Widget) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}
