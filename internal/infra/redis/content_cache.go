package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"partyquiz-service/internal/app"
	"partyquiz-service/internal/domain"
)

// ContentCache keeps full quiz content in Redis so game serving does not hit
// the store on every read. Entries live at quizset:{id}:content with a
// jittered TTL; concurrent misses for the same set collapse into one loader
// call.
type ContentCache struct {
	client *redis.Client
	loader app.ContentLoader
	ttl    time.Duration
	sf     singleflight.Group

	// rndMu guards rnd: singleflight only serializes misses per key, so
	// loads of different sets jitter concurrently.
	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewContentCache(client *redis.Client, loader app.ContentLoader, ttl time.Duration) *ContentCache {
	return &ContentCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *ContentCache) LoadContent(ctx context.Context, quizSetID string) (domain.QuizContent, error) {
	key := c.key(quizSetID)

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var content domain.QuizContent
		if err := json.Unmarshal(raw, &content); err == nil {
			return content, nil
		}
		// corrupt entry, fall through to reload
	}

	result, err, _ := c.sf.Do(quizSetID, func() (interface{}, error) {
		if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
			var content domain.QuizContent
			if err := json.Unmarshal(raw, &content); err == nil {
				return content, nil
			}
		}

		content, err := c.loader.LoadContent(ctx, quizSetID)
		if err != nil {
			return domain.QuizContent{}, err
		}
		raw, err := json.Marshal(content)
		if err != nil {
			return domain.QuizContent{}, fmt.Errorf("marshal quiz content: %w", err)
		}
		_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
		return content, nil
	})
	if err != nil {
		return domain.QuizContent{}, err
	}
	return result.(domain.QuizContent), nil
}

// Invalidate drops the cached entry, used after a quiz set is deleted.
func (c *ContentCache) Invalidate(ctx context.Context, quizSetID string) {
	_ = c.client.Del(ctx, c.key(quizSetID)).Err()
}

func (c *ContentCache) key(quizSetID string) string {
	return "quizset:" + quizSetID + ":content"
}

func (c *ContentCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
