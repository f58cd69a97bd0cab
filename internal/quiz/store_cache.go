package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mind-engage/mindengage-quiz/internal/logging"
)

// CachedStore serves GetQuiz from Redis and falls through to the wrapped
// store on a miss. Attempt state is never cached.
type CachedStore struct {
	Store
	rdb *redis.Client
	ttl time.Duration
}

func NewCachedStore(inner Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedStore{Store: inner, rdb: rdb, ttl: ttl}
}

func quizCacheKey(id string) string { return "quiz:def:" + id }

func (c *CachedStore) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	log := logging.FromContext(ctx).WithField("quiz_id", id)

	raw, err := c.rdb.Get(ctx, quizCacheKey(id)).Bytes()
	switch {
	case err == nil:
		var q Quiz
		if jerr := json.Unmarshal(raw, &q); jerr == nil {
			return q, nil
		}
		log.Warn("quiz cache: undecodable entry, refetching")
	case errors.Is(err, redis.Nil):
	default:
		log.WithError(err).Warn("quiz cache: get failed")
	}

	q, err := c.Store.GetQuiz(ctx, id)
	if err != nil {
		return Quiz{}, err
	}
	if b, jerr := json.Marshal(q); jerr == nil {
		if serr := c.rdb.Set(ctx, quizCacheKey(id), b, c.ttl).Err(); serr != nil {
			log.WithError(serr).Warn("quiz cache: set failed")
		}
	}
	return q, nil
}

func (c *CachedStore) PutQuiz(ctx context.Context, q Quiz) error {
	if err := c.Store.PutQuiz(ctx, q); err != nil {
		return err
	}
	if err := c.rdb.Del(ctx, quizCacheKey(q.ID)).Err(); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("quiz_id", q.ID).Warn("quiz cache: invalidate failed")
	}
	return nil
}
