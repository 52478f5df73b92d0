package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	DB        DBConfig        `yaml:"db"`
	Redis     RedisConfig     `yaml:"redis"`
	Log       LogConfig       `yaml:"log"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Training  TrainingConfig  `yaml:"training"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DBConfig struct {
	Driver   string `yaml:"driver"` // mysql | sqlite
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	// sqlite 专用：数据库文件路径（mysql 下忽略）
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LogConfig struct {
	Path string `yaml:"path"`
}

type ArtifactsConfig struct {
	// 模型产出物根目录，每个 model_version 一个子目录
	Root string `yaml:"root"`
	// 可选：SFTP 镜像，把产出物同步到存储服务器
	Mirror MirrorConfig `yaml:"mirror"`
}

type MirrorConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	RemoteRoot string `yaml:"remote_root"`
}

type TrainingConfig struct {
	// 训练数据来源表（dbt 管道产出的扁平特征表）
	SourceTable string `yaml:"source_table"`
}

var AppConfig *Config

const defaultConfigPath = "config/config.yaml"

func InitConfig() error {
	return InitConfigFrom(defaultConfigPath)
}

// InitConfigFrom 从指定路径加载应用配置。
func InitConfigFrom(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %v", err)
	}

	AppConfig = &Config{}
	err = yaml.Unmarshal(data, AppConfig)
	if err != nil {
		return fmt.Errorf("unmarshal config failed: %v", err)
	}

	if AppConfig.Training.SourceTable == "" {
		AppConfig.Training.SourceTable = "prep_training_dataset"
	}
	if AppConfig.Artifacts.Root == "" {
		AppConfig.Artifacts.Root = "models/artifacts"
	}

	return nil
}
