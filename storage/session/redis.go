package sessionstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	pkgerrors "github.com/pkg/errors"

	"github.com/academiahub/backend/core"
	"github.com/academiahub/backend/core/registration"
)

const sessionKeyPrefix = "regsess:"

// releaseScript deletes a claim key only if the session still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisStore struct {
	c *redis.Client
}

var _ registration.Store = (*redisStore)(nil)

func NewRedisStore(conf *core.Config) *redisStore {
	return &redisStore{
		c: redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Address,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		}),
	}
}

func (st *redisStore) Ping(ctx context.Context) error {
	return st.c.Ping(ctx).Err()
}

func sessionKey(id string) string { return sessionKeyPrefix + id }

func sessionTTL(s registration.Session) time.Duration {
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second // lazily-expired sessions vanish almost immediately
	}
	return ttl
}

func (st *redisStore) SaveSession(ctx context.Context, s registration.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return pkgerrors.Wrap(err, "encoding session")
	}
	return st.c.Set(ctx, sessionKey(s.ID), data, sessionTTL(s)).Err()
}

func (st *redisStore) GetSession(ctx context.Context, id string) (registration.Session, error) {
	data, err := st.c.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return registration.Session{}, registration.ErrSessionNotFound
		}
		return registration.Session{}, pkgerrors.Wrap(err, "fetching session")
	}
	var s registration.Session
	if err = json.Unmarshal(data, &s); err != nil {
		return registration.Session{}, pkgerrors.Wrap(err, "decoding session")
	}
	return s, nil
}

// CompareAndSwapStatus transitions the session status atomically using an
// optimistic WATCH transaction; a concurrent writer aborts the swap.
func (st *redisStore) CompareAndSwapStatus(ctx context.Context, id string, from, to registration.SessionStatus) (registration.Session, error) {
	var out registration.Session
	key := sessionKey(id)

	err := st.c.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				return registration.ErrSessionNotFound
			}
			return err
		}
		var s registration.Session
		if err = json.Unmarshal(data, &s); err != nil {
			return pkgerrors.Wrap(err, "decoding session")
		}
		if s.Status != from {
			return registration.ErrStatusChanged
		}

		s.Status = to
		newData, err := json.Marshal(s)
		if err != nil {
			return pkgerrors.Wrap(err, "encoding session")
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newData, sessionTTL(s))
			return nil
		})
		if err == nil {
			out = s
		}
		return err
	}, key)

	if err == redis.TxFailedErr {
		return registration.Session{}, registration.ErrStatusChanged
	}
	if err != nil {
		return registration.Session{}, err
	}
	return out, nil
}

func (st *redisStore) ReserveClaim(ctx context.Context, key, sessionID string, ttl time.Duration) (bool, error) {
	ok, err := st.c.SetNX(ctx, key, sessionID, ttl).Result()
	if err != nil {
		return false, pkgerrors.Wrap(err, "reserving claim")
	}
	if ok {
		return true, nil
	}
	// the holder re-reserving its own claim is fine; refresh the TTL
	holder, err := st.c.Get(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return false, pkgerrors.Wrap(err, "checking claim holder")
	}
	if holder == sessionID {
		_ = st.c.Expire(ctx, key, ttl).Err()
		return true, nil
	}
	return false, nil
}

func (st *redisStore) ReleaseClaim(ctx context.Context, key, sessionID string) error {
	return releaseScript.Run(ctx, st.c, []string{key}, sessionID).Err()
}
