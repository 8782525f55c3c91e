package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"mln131-quiz/internal/app"
	"mln131-quiz/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionCache keeps the question bank in Redis so every instance serves joins from one copy.
// The bank is stored as a JSON array under a single key; writes go to the backing store and
// delete the key.
type QuestionCache struct {
	app.QuestionStore
	client *redis.Client
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex
}

const bankKey = "questions:bank"

func NewQuestionCache(client *redis.Client, store app.QuestionStore, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		QuestionStore: store,
		client:        client,
		ttl:           ttl,
		rnd:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) ListQuestions(ctx context.Context) ([]domain.Question, error) {
	if bank, ok := c.cached(ctx); ok {
		return bank, nil
	}

	result, err, _ := c.sf.Do(bankKey, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if bank, ok := c.cached(ctx); ok {
			return bank, nil
		}

		bank, err := c.QuestionStore.ListQuestions(ctx)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(bank); err == nil {
			// Cache fill is best effort; the store already answered.
			_ = c.client.Set(ctx, bankKey, data, c.ttlWithJitter()).Err()
		}
		return bank, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *QuestionCache) CreateQuestion(ctx context.Context, content domain.QuestionContent) (domain.Question, error) {
	q, err := c.QuestionStore.CreateQuestion(ctx, content)
	if err != nil {
		return q, err
	}
	return q, c.Invalidate(ctx)
}

func (c *QuestionCache) UpdateQuestion(ctx context.Context, questionID string, content domain.QuestionContent) error {
	if err := c.QuestionStore.UpdateQuestion(ctx, questionID, content); err != nil {
		return err
	}
	return c.Invalidate(ctx)
}

func (c *QuestionCache) DeleteQuestion(ctx context.Context, questionID string) error {
	if err := c.QuestionStore.DeleteQuestion(ctx, questionID); err != nil {
		return err
	}
	return c.Invalidate(ctx)
}

// Invalidate drops the cached bank for every instance.
func (c *QuestionCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, bankKey).Err()
}

func (c *QuestionCache) cached(ctx context.Context) ([]domain.Question, bool) {
	data, err := c.client.Get(ctx, bankKey).Bytes()
	if err != nil {
		return nil, false
	}
	var bank []domain.Question
	if err := json.Unmarshal(data, &bank); err != nil {
		return nil, false
	}
	return bank, true
}

// ttlWithJitter returns 0 (no expiry) for a non-positive ttl.
func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
