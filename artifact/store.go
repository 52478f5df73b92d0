package artifact

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/modestprophet/gonzo-pit-strategy/config"
	"github.com/modestprophet/gonzo-pit-strategy/neural"
)

const (
	weightsFileName  = "weights.gob"
	metadataFileName = "model_metadata.json"
)

// Metadata 产出物目录里的元数据文件内容。
type Metadata struct {
	ModelName    string             `json:"model_name"`
	ModelVersion string             `json:"model_version"`
	Description  string             `json:"description"`
	Architecture string             `json:"architecture"`
	Tags         []string           `json:"tags,omitempty"`
	Config       json.RawMessage    `json:"config"`
	FinalMetrics map[string]float64 `json:"final_metrics,omitempty"`
	SavedAt      time.Time          `json:"saved_at"`
}

// Store 本地文件系统的模型产出物仓库：每个 model_version 一个目录，
// 权重 gob + 元数据 json。可选 SFTP 镜像到存储服务器。
type Store struct {
	Root   string
	Mirror *Mirror
}

func NewStore(root string) *Store {
	return &Store{Root: root}
}

func storeLogger() *slog.Logger {
	logger := config.EnsureLoggerInitialized()
	if logger == nil {
		return slog.Default().With("layer", "artifact")
	}
	return logger.With("layer", "artifact")
}

// Dir 某个版本的产出物目录。
func (s *Store) Dir(version string) string {
	return filepath.Join(s.Root, version)
}

// Save 落盘权重与元数据，返回权重文件路径。镜像失败只告警：
// 本地产出物已经完整，远端同步是锦上添花。
func (s *Store) Save(version string, states []neural.ParamState, meta Metadata) (string, error) {
	logger := storeLogger().With("func", "Save", "version", version)

	dir := s.Dir(version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir failed: %w", err)
	}

	weightsPath := filepath.Join(dir, weightsFileName)
	f, err := os.Create(weightsPath)
	if err != nil {
		return "", fmt.Errorf("create weights file failed: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(states); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("encode weights failed: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close weights file failed: %w", err)
	}

	meta.SavedAt = time.Now()
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal metadata failed: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metadataFileName), metaBytes, 0o644); err != nil {
		return "", fmt.Errorf("write metadata failed: %w", err)
	}

	logger.Info("artifact saved", "path", weightsPath)

	if s.Mirror != nil {
		if err := s.Mirror.Upload(dir, version); err != nil {
			logger.Warn("artifact mirror upload failed", "error", err)
		}
	}

	return weightsPath, nil
}

// Load 按版本读回权重与元数据。
func (s *Store) Load(version string) ([]neural.ParamState, *Metadata, error) {
	dir := s.Dir(version)

	f, err := os.Open(filepath.Join(dir, weightsFileName))
	if err != nil {
		return nil, nil, fmt.Errorf("open weights file failed: %w", err)
	}
	defer f.Close()

	var states []neural.ParamState
	if err := gob.NewDecoder(f).Decode(&states); err != nil {
		return nil, nil, fmt.Errorf("decode weights failed: %w", err)
	}

	metaBytes, err := os.ReadFile(filepath.Join(dir, metadataFileName))
	if err != nil {
		return nil, nil, fmt.Errorf("read metadata failed: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, nil, fmt.Errorf("unmarshal metadata failed: %w", err)
	}

	return states, &meta, nil
}
