package stores

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisRoleMembershipStore stores user->roles in Redis sets (key: rolemem:{userID}).
type RedisRoleMembershipStore struct {
	client *redis.Client
	keyFmt string
}

func NewRedisRoleMembershipStore(client *redis.Client) *RedisRoleMembershipStore {
	return &RedisRoleMembershipStore{client: client, keyFmt: "rolemem:%s"}
}

func (r *RedisRoleMembershipStore) key(userID string) string {
	return fmt.Sprintf(r.keyFmt, userID)
}

func (r *RedisRoleMembershipStore) AssignRole(ctx context.Context, userID, roleID string) error {
	return r.client.SAdd(ctx, r.key(userID), roleID).Err()
}

func (r *RedisRoleMembershipStore) RevokeRole(ctx context.Context, userID, roleID string) error {
	return r.client.SRem(ctx, r.key(userID), roleID).Err()
}

func (r *RedisRoleMembershipStore) ListRoles(ctx context.Context, userID string) ([]string, error) {
	return r.client.SMembers(ctx, r.key(userID)).Result()
}
