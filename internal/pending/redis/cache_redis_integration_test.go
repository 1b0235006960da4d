//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"chronicle/internal/audit"
	"chronicle/internal/pending"
	pendingredis "chronicle/internal/pending/redis"
	"chronicle/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *pendingredis.Cache
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.cache = pendingredis.NewCache(s.redis.Client)
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisCacheSuite) TestStageAndConsume() {
	ctx := context.Background()
	key := pending.Key{EntityType: "core.Candidate", EntityID: "c-1", UnitID: "u-1"}

	s.Require().NoError(s.cache.Stage(ctx, key, audit.Snapshot{"status": "Draft", "score": float64(80)}))

	snap, staged, err := s.cache.Consume(ctx, key)
	s.Require().NoError(err)
	s.Require().True(staged)
	s.Equal("Draft", snap["status"])
	s.Equal(float64(80), snap["score"], "numbers round-trip as JSON floats")

	_, staged, err = s.cache.Consume(ctx, key)
	s.Require().NoError(err)
	s.False(staged, "consume is atomic read-and-remove")
}

func (s *RedisCacheSuite) TestNoPriorStateMarker() {
	ctx := context.Background()
	key := pending.Key{EntityType: "core.Candidate", UnitID: "u-1"}

	s.Require().NoError(s.cache.Stage(ctx, key, nil))

	snap, staged, err := s.cache.Consume(ctx, key)
	s.Require().NoError(err)
	s.True(staged, "explicit marker is distinct from nothing staged")
	s.Nil(snap)
}

func (s *RedisCacheSuite) TestReleaseUnitDropsOnlyThatUnit() {
	ctx := context.Background()
	mine := pending.Key{EntityType: "core.Candidate", EntityID: "c-1", UnitID: "u-1"}
	other := pending.Key{EntityType: "core.Candidate", EntityID: "c-1", UnitID: "u-2"}

	s.Require().NoError(s.cache.Stage(ctx, mine, audit.Snapshot{"status": "A"}))
	s.Require().NoError(s.cache.Stage(ctx, other, audit.Snapshot{"status": "B"}))

	s.Require().NoError(s.cache.ReleaseUnit(ctx, "u-1"))

	_, staged, err := s.cache.Consume(ctx, mine)
	s.Require().NoError(err)
	s.False(staged)

	snap, staged, err := s.cache.Consume(ctx, other)
	s.Require().NoError(err)
	s.Require().True(staged)
	s.Equal("B", snap["status"])
}

func (s *RedisCacheSuite) TestEntriesExpire() {
	ctx := context.Background()
	cache := pendingredis.NewCache(s.redis.Client, pendingredis.WithTTL(time.Second))
	key := pending.Key{EntityType: "core.Candidate", EntityID: "c-1", UnitID: "u-1"}

	s.Require().NoError(cache.Stage(ctx, key, audit.Snapshot{"status": "Draft"}))

	s.Require().Eventually(func() bool {
		_, staged, err := cache.Consume(ctx, key)
		return err == nil && !staged
	}, 5*time.Second, 200*time.Millisecond, "orphaned entry evicted by server-side TTL")
}
