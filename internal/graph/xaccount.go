package graph

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/moltgraph/moltgraph/internal/extract"
)

// OwnerAccount carries whatever is known about the X account owning an
// agent. Empty strings and nil counts mean unknown and leave stored values
// untouched.
type OwnerAccount struct {
	Handle         string
	URL            string
	Name           string
	AvatarURL      string
	Bio            string
	FollowerCount  any
	FollowingCount any
	Verified       any
}

// The agent is matched, not merged: ownership only attaches to agents the
// crawl has already seen. The handle backstamp keeps any existing value.
const ownerAccountUpsert = `
MATCH (a:Agent {name:$agent})
MERGE (x:XAccount {handle:$handle})
ON CREATE SET x.first_seen_at = datetime($obs)
SET x.last_seen_at = datetime($obs),
    x.url = coalesce($url, x.url),
    x.name = coalesce($x_name, x.name),
    x.avatar_url = coalesce($x_avatar, x.avatar_url),
    x.bio = coalesce($x_bio, x.bio),
    x.follower_count = coalesce($x_follower_count, x.follower_count),
    x.following_count = coalesce($x_following_count, x.following_count),
    x.is_verified = coalesce($x_verified, x.is_verified)

MERGE (a)-[r:HAS_OWNER_X]->(x)
ON CREATE SET r.first_seen_at = datetime($obs)
SET r.last_seen_at = datetime($obs),
    a.owner_twitter_handle = coalesce(a.owner_twitter_handle, $handle)
`

// UpsertOwnerAccount links an agent to the X account that owns it. A blank
// handle is a no-op, as is an agent the graph has never seen.
func (s *Store) UpsertOwnerAccount(ctx context.Context, agentName string, acct OwnerAccount, observedAt time.Time) error {
	handle := extract.CleanHandle(acct.Handle)
	if handle == "" {
		return nil
	}
	err := s.write(ctx, statement{ownerAccountUpsert, map[string]any{
		"agent":             agentName,
		"handle":            handle,
		"url":               strOrNil(acct.URL),
		"x_name":            strOrNil(acct.Name),
		"x_avatar":          strOrNil(acct.AvatarURL),
		"x_bio":             strOrNil(acct.Bio),
		"x_follower_count":  acct.FollowerCount,
		"x_following_count": acct.FollowingCount,
		"x_verified":        acct.Verified,
		"obs":               isoTime(observedAt),
	}})
	if err != nil {
		return fmt.Errorf("upserting owner account of %s: %w", agentName, err)
	}
	s.log.Debug("linked owner account", zap.String("agent", agentName), zap.String("handle", handle))
	return nil
}
