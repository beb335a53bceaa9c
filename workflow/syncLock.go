package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/channels_backend/config"
	"bitbucket.org/mmdatafocus/channels_backend/models"
	"github.com/bsm/redislock"
)

var ErrSyncInProgress = errors.New("sync already in progress for this connection")

const syncLockTTL = 10 * time.Minute

// AcquireChannelSyncLock serializes sync runs per (company, channel) across
// instances. Allocation itself is snapshot math and needs no lock; this only
// stops two workers from pulling the same connection's order pages
// concurrently and burning the marketplace rate limit.
//
// Returns a nil lock when Redis is not connected (single-instance dev); the
// DB unique indexes still guarantee correctness without it.
func AcquireChannelSyncLock(ctx context.Context, companyId string, channel models.ChannelType) (*redislock.Lock, error) {
	locker := config.GetRedisLock()
	if locker == nil {
		return nil, nil
	}

	key := fmt.Sprintf("synclock:%s:%s", companyId, channel)
	lock, err := locker.Obtain(ctx, key, syncLockTTL, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrSyncInProgress
	}
	if err != nil {
		return nil, err
	}
	return lock, nil
}

func ReleaseChannelSyncLock(ctx context.Context, lock *redislock.Lock) {
	if lock == nil {
		return
	}
	_ = lock.Release(ctx)
}
