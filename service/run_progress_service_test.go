package service_test

import (
	"context"
	"testing"

	"github.com/modestprophet/gonzo-pit-strategy/service"

	"github.com/stretchr/testify/assert"
)

func TestRunProgressServiceDegradesWithoutRedis(t *testing.T) {
	// redis 未配置时所有写入静默降级，读取返回空快照
	s := &service.RunProgressService{}

	assert.NotPanics(t, func() {
		s.PublishEpoch(context.Background(), 1, 0, map[string]float64{"loss": 1.0})
		s.PublishStatus(context.Background(), 1, "RUNNING")
	})

	snapshot, err := s.Snapshot(context.Background(), 1)
	assert.NoError(t, err)
	assert.Nil(t, snapshot, "no cache means no snapshot")
}

func TestRunProgressServiceNilReceiver(t *testing.T) {
	var s *service.RunProgressService

	assert.NotPanics(t, func() {
		s.PublishEpoch(context.Background(), 1, 0, nil)
		s.PublishStatus(context.Background(), 1, "RUNNING")
	})
}
