// Package redisstore keeps tab session records in Redis hashes that expire on their own.
package redisstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/lms-portal/core"
	"github.com/trezcool/lms-portal/core/session"
)

type SessionRepository struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ session.Persistence = (*SessionRepository)(nil)

// NewClient returns a client for the configured Redis server.
func NewClient(conf *core.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
}

func NewSessionRepository(rdb redis.UniversalClient, prefix string, ttl time.Duration) *SessionRepository {
	return &SessionRepository{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (repo *SessionRepository) key(sid string) string {
	return repo.prefix + ":" + sid
}

func (repo *SessionRepository) Save(ctx context.Context, sid string, rec session.Record) error {
	key := repo.key(sid)
	_, err := repo.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, session.EntryToken, rec.Token, session.EntryUser, rec.User)
		pipe.Expire(ctx, key, repo.ttl)
		return nil
	})
	return errors.Wrap(err, "saving session")
}

func (repo *SessionRepository) Load(ctx context.Context, sid string) (session.Record, error) {
	fields, err := repo.rdb.HGetAll(ctx, repo.key(sid)).Result()
	if err != nil {
		return session.Record{}, errors.Wrap(err, "loading session")
	}
	rec := session.Record{Token: fields[session.EntryToken], User: fields[session.EntryUser]}
	if rec.IsEmpty() {
		return session.Record{}, session.ErrRecordNotFound
	}
	return rec, nil
}

func (repo *SessionRepository) Remove(ctx context.Context, sid string) error {
	return errors.Wrap(repo.rdb.Del(ctx, repo.key(sid)).Err(), "removing session")
}

// Ping checks that Redis is reachable.
func (repo *SessionRepository) Ping(ctx context.Context) error {
	return errors.Wrap(repo.rdb.Ping(ctx).Err(), "pinging redis")
}
