package trust

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisAPI defines the Redis operations used by RedisRevoker, following
// the pattern of a narrow client interface per external dependency
// (cloudtrailAPI, ssmWriterAPI, KMSAPI) so tests can supply a fake
// without a live server.
type redisAPI interface {
	SIsMember(ctx context.Context, key, member string) *redis.BoolCmd
	SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...any) *redis.IntCmd
}

// RedisRevoker implements Revoker against a shared Redis set, so multiple
// overlay-node processes can consult one distributed revocation list
// instead of each keeping its own in-memory predicate. Admission code
// only ever calls Revoker.Revoked and never knows which backend it talks
// to.
type RedisRevoker struct {
	client redisAPI
	key    string
	ctxTO  time.Duration
}

// NewRedisRevoker builds a RedisRevoker backed by the given client. The
// revocation set is stored at setKey; per-call operations are bounded by
// timeout.
func NewRedisRevoker(client *redis.Client, setKey string, timeout time.Duration) *RedisRevoker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RedisRevoker{client: client, key: setKey, ctxTO: timeout}
}

// Revoked consults the distributed set. On a Redis error it fails open:
// the user-id is reported as not revoked. The score argument is ignored,
// so no trust-threshold check is applied by this revoker.
func (r *RedisRevoker) Revoked(userID string, _ int) bool {
	ctx, cancel := context.WithTimeout(context.Background(), r.ctxTO)
	defer cancel()

	ok, err := r.client.SIsMember(ctx, r.key, userID).Result()
	if err != nil {
		return false
	}
	return ok
}

// Revoke adds userID to the distributed revocation set.
func (r *RedisRevoker) Revoke(ctx context.Context, userID string) error {
	return r.client.SAdd(ctx, r.key, userID).Err()
}

// Unrevoke removes userID from the distributed revocation set.
func (r *RedisRevoker) Unrevoke(ctx context.Context, userID string) error {
	return r.client.SRem(ctx, r.key, userID).Err()
}
