package historical

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisClient is the slice of *redis.Client the cache uses.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Cached is a read-through cache in front of another source. Redis failures are
// logged and fall through to the wrapped source; they never fail a lookup.
type Cached struct {
	next   Source
	client RedisClient
	ttl    time.Duration
	prefix string
}

var _ Source = (*Cached)(nil)

func NewCached(next Source, client RedisClient, ttl time.Duration) *Cached {
	return &Cached{next: next, client: client, ttl: ttl, prefix: "hist:"}
}

func (c *Cached) PlayerSeasons(ctx context.Context, playerID uuid.UUID, before int) ([]models.SeasonLine, error) {
	key := fmt.Sprintf("%splayer:%s:%d", c.prefix, playerID, before)
	return readThrough(ctx, c, key, func() ([]models.SeasonLine, error) {
		return c.next.PlayerSeasons(ctx, playerID, before)
	})
}

func (c *Cached) PositionSeasons(ctx context.Context, pos models.Position, before int) ([]models.SeasonLine, error) {
	key := fmt.Sprintf("%sposition:%s:%d", c.prefix, pos, before)
	return readThrough(ctx, c, key, func() ([]models.SeasonLine, error) {
		return c.next.PositionSeasons(ctx, pos, before)
	})
}

// TeamSeason caches hits only, so a season loaded later is picked up immediately.
func (c *Cached) TeamSeason(ctx context.Context, teamID uuid.UUID, season int) (*models.TeamSeason, error) {
	key := fmt.Sprintf("%steam:%s:%d", c.prefix, teamID, season)
	return readThrough(ctx, c, key, func() (*models.TeamSeason, error) {
		return c.next.TeamSeason(ctx, teamID, season)
	})
}

func readThrough[T any](ctx context.Context, c *Cached, key string, load func() (T, error)) (T, error) {
	var zero T

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var v T
		if jerr := json.Unmarshal(data, &v); jerr == nil {
			return v, nil
		}
		log.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	case !errors.Is(err, redis.Nil):
		log.Warn().Err(err).Str("key", key).Msg("historical cache read failed")
	}

	v, err := load()
	if err != nil {
		return zero, err
	}

	encoded, err := json.Marshal(v)
	if err != nil {
		return v, nil
	}
	if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("historical cache write failed")
	}
	return v, nil
}
