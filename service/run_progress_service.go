package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/modestprophet/gonzo-pit-strategy/config"

	"github.com/redis/go-redis/v9"
)

const (
	runProgressKeyPrefix = "gonzo:run:"
	runProgressTTL       = 24 * time.Hour
)

// RunProgressService 把训练进度写进 redis，给外部看板轮询。
// 纯旁路：redis 不可用时所有写入都静默降级，绝不影响训练。
type RunProgressService struct {
	Client *redis.Client
}

func NewRunProgressService() *RunProgressService {
	return &RunProgressService{
		Client: config.RedisClient,
	}
}

func runProgressKey(runID uint) string {
	return fmt.Sprintf("%s%d:progress", runProgressKeyPrefix, runID)
}

// PublishEpoch 写入一个 epoch 的指标快照。
func (s *RunProgressService) PublishEpoch(ctx context.Context, runID uint, epoch int, logs map[string]float64) {
	if s == nil || s.Client == nil || runID == 0 {
		return
	}
	logger := serviceLogger().With("service", "RunProgressService", "method", "PublishEpoch")

	fields := map[string]interface{}{
		"epoch":      epoch,
		"updated_at": time.Now().Format(time.RFC3339),
	}
	for name, value := range logs {
		fields[name] = strconv.FormatFloat(value, 'g', -1, 64)
	}

	key := runProgressKey(runID)
	pipe := s.Client.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, runProgressTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn("publish epoch progress failed", "run_id", runID, "epoch", epoch, "error", err)
	}
}

// PublishStatus 写入运行状态变化。
func (s *RunProgressService) PublishStatus(ctx context.Context, runID uint, status string) {
	if s == nil || s.Client == nil || runID == 0 {
		return
	}
	logger := serviceLogger().With("service", "RunProgressService", "method", "PublishStatus")

	key := runProgressKey(runID)
	pipe := s.Client.Pipeline()
	pipe.HSet(ctx, key, "status", status, "updated_at", time.Now().Format(time.RFC3339))
	pipe.Expire(ctx, key, runProgressTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn("publish run status failed", "run_id", runID, "status", status, "error", err)
	}
}

// Snapshot 读取某次运行的进度快照。
func (s *RunProgressService) Snapshot(ctx context.Context, runID uint) (map[string]string, error) {
	if s == nil || s.Client == nil {
		return nil, nil
	}
	snapshot, err := s.Client.HGetAll(ctx, runProgressKey(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read run progress failed: %w", err)
	}
	return snapshot, nil
}
