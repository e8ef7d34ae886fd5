package ranking

import (
	"errors"

	"github.com/go-redis/redis"
)

const likesRankKey = "rank:articles:likes"

var errMissingRedisClient = errors.New("ranking: redis client is required")

// RankedArticle is one entry of the most-liked ranking.
type RankedArticle struct {
	ArticleID  string
	LikesCount int64
	Rank       int
}

// RedisRanker mirrors committed like counters into a redis sorted set. The
// sqlite transaction is the source of truth; the mirror only serves the
// most-liked read path and may lag behind it.
type RedisRanker struct {
	client *redis.Client
}

// NewRedisRanker wraps an already-connected redis client.
func NewRedisRanker(client *redis.Client) (*RedisRanker, error) {
	if client == nil {
		return nil, errMissingRedisClient
	}
	return &RedisRanker{client: client}, nil
}

// Connect dials redis and verifies the connection with a ping.
func Connect(address string) (*RedisRanker, error) {
	client := redis.NewClient(&redis.Options{Addr: address})
	if err := client.Ping().Err(); err != nil {
		return nil, err
	}
	return &RedisRanker{client: client}, nil
}

// Record stores the committed counter as the article's absolute score.
func (r *RedisRanker) Record(articleID string, likesCount int64) error {
	return r.client.ZAdd(likesRankKey, redis.Z{
		Score:  float64(likesCount),
		Member: articleID,
	}).Err()
}

// Top returns the n most-liked articles, highest counter first. A missing
// ranking key yields an empty list.
func (r *RedisRanker) Top(n int) ([]RankedArticle, error) {
	if n <= 0 {
		n = 10
	}
	entries, err := r.client.ZRevRangeWithScores(likesRankKey, 0, int64(n-1)).Result()
	if err == redis.Nil {
		return []RankedArticle{}, nil
	}
	if err != nil {
		return nil, err
	}

	ranked := make([]RankedArticle, 0, len(entries))
	for index, entry := range entries {
		member, _ := entry.Member.(string)
		ranked = append(ranked, RankedArticle{
			ArticleID:  member,
			LikesCount: int64(entry.Score),
			Rank:       index + 1,
		})
	}
	return ranked, nil
}
