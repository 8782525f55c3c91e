package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"mln131-quiz/internal/app"
	"mln131-quiz/internal/domain"
	"golang.org/x/sync/singleflight"
)

const bankKey = "bank"

// QuestionCache caches the question bank with TTL so every joining client does not hit the store.
// Writes go straight through and drop the cached bank.
type QuestionCache struct {
	app.QuestionStore
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rnd   *rand.Rand
	rndMu sync.Mutex

	mu        sync.RWMutex
	bank      []domain.Question
	expiresAt time.Time
	cached    bool
}

// NewQuestionCache wraps store. A non-positive ttl caches until the next write.
func NewQuestionCache(store app.QuestionStore, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		QuestionStore: store,
		ttl:           ttl,
		clock:         time.Now,
		rnd:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) ListQuestions(ctx context.Context) ([]domain.Question, error) {
	if bank, ok := c.lookup(c.clock()); ok {
		return bank, nil
	}

	result, err, _ := c.sf.Do(bankKey, func() (interface{}, error) {
		// Re-check in case another goroutine filled the cache.
		now := c.clock()
		if bank, ok := c.lookup(now); ok {
			return bank, nil
		}

		bank, err := c.QuestionStore.ListQuestions(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.bank = bank
		c.expiresAt = now.Add(c.ttlWithJitter())
		c.cached = true
		c.mu.Unlock()
		return bank, nil
	})
	if err != nil {
		return nil, err
	}
	return copyBank(result.([]domain.Question)), nil
}

func (c *QuestionCache) CreateQuestion(ctx context.Context, content domain.QuestionContent) (domain.Question, error) {
	defer c.Invalidate()
	return c.QuestionStore.CreateQuestion(ctx, content)
}

func (c *QuestionCache) UpdateQuestion(ctx context.Context, questionID string, content domain.QuestionContent) error {
	defer c.Invalidate()
	return c.QuestionStore.UpdateQuestion(ctx, questionID, content)
}

func (c *QuestionCache) DeleteQuestion(ctx context.Context, questionID string) error {
	defer c.Invalidate()
	return c.QuestionStore.DeleteQuestion(ctx, questionID)
}

// Invalidate drops the cached bank.
func (c *QuestionCache) Invalidate() {
	c.mu.Lock()
	c.bank = nil
	c.cached = false
	c.mu.Unlock()
}

func (c *QuestionCache) lookup(now time.Time) ([]domain.Question, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.cached || (c.ttl > 0 && !c.expiresAt.After(now)) {
		return nil, false
	}
	return copyBank(c.bank), true
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func copyBank(bank []domain.Question) []domain.Question {
	out := make([]domain.Question, len(bank))
	for i, q := range bank {
		q.Content.Options = append([]string(nil), q.Content.Options...)
		out[i] = q
	}
	return out
}
