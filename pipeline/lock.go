package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
)

var ErrOutputCollision = errors.New("output name already claimed")

// Locker guards an output name while it is rendered and written.
type Locker interface {
	Lock(ctx context.Context, name string) (func(context.Context) error, error)
}

// RedisLocker shares output names between runners writing into the same
// namespace.
type RedisLocker struct {
	client *redislock.Client
	prefix string
	ttl    time.Duration
}

func NewRedisLocker(client *redislock.Client, prefix string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (locker *RedisLocker) Lock(ctx context.Context, name string) (func(context.Context) error, error) {
	lock, err := locker.client.Obtain(ctx, locker.prefix+name, locker.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s held by another runner", ErrOutputCollision, name)
	}
	if err != nil {
		return nil, err
	}
	return lock.Release, nil
}

// claims records which unit owns each output name within one run. Claims
// are made in plan order.
type claims struct {
	owners map[string]string
}

func newClaims() *claims {
	return &claims{owners: make(map[string]string)}
}

// claim returns the previous owner when name is already taken.
func (c *claims) claim(name, owner string) (string, bool) {
	if previous, taken := c.owners[name]; taken {
		return previous, false
	}
	c.owners[name] = owner
	return "", true
}
