// Package config 包含go-essence操作配置文件的相关函数
package config

import (
	_ "embed" // embed the default config file
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// defaultConfig 默认配置文件
//
//go:embed default_config.yml
var defaultConfig string

// Config 总配置文件
type Config struct {
	Servers  Servers              `yaml:"servers"`
	Essence  Essence              `yaml:"essence"`
	Database map[string]yaml.Node `yaml:"database"`
	Storage  Storage              `yaml:"storage"`
	Schedule Schedule             `yaml:"schedule"`
	Metrics  Metrics              `yaml:"metrics"`
	Output   Output               `yaml:"output"`
}

// Servers 连接配置
type Servers struct {
	WS WS `yaml:"ws"`
}

// WS 正向 WebSocket 配置
type WS struct {
	Address     string        `yaml:"address"`
	AccessToken string        `yaml:"access-token"`
	APITimeout  time.Duration `yaml:"api-timeout"`
	RateLimit   struct {
		Enabled   bool    `yaml:"enabled"`
		Frequency float64 `yaml:"frequency"`
		Bucket    int     `yaml:"bucket"`
	} `yaml:"rate-limit"`
	Reconnect struct {
		Delay    time.Duration `yaml:"delay"`
		MaxTimes uint          `yaml:"max-times"`
	} `yaml:"reconnect"`
}

// Essence 精华消息功能配置
type Essence struct {
	EnableGroups    []string      `yaml:"enable-groups"`
	RandomLimit     int           `yaml:"random-limit"`
	RandomWindow    time.Duration `yaml:"random-window"`
	SearchMaxLength int           `yaml:"search-max-length"`
	GoodThreshold   int           `yaml:"good-threshold"`
	NicknameTTL     time.Duration `yaml:"nickname-ttl"`
	ConvertWebp     bool          `yaml:"convert-webp"`
	ImageMaxSize    string        `yaml:"image-max-size"`
}

// Storage 其他持久化文件位置
type Storage struct {
	Images string `yaml:"images"`
	Votes  string `yaml:"votes"`
}

// Schedule 定时任务
type Schedule struct {
	SyncCron  string `yaml:"sync-cron"`
	SweepCron string `yaml:"sweep-cron"`
}

// Metrics prometheus 指标
type Metrics struct {
	Address string `yaml:"address"`
}

// Output 日志相关
type Output struct {
	LogLevel    string `yaml:"log-level"`
	LogAging    int    `yaml:"log-aging"`
	LogForceNew bool   `yaml:"log-force-new"`
	LogColorful *bool  `yaml:"log-colorful"`
	Debug       bool   `yaml:"debug"`
}

// Parse 从默认配置文件路径中获取
//
// 同目录下的 .env 会先被载入环境变量, 配置中的 ${VAR} 将被展开
func Parse(path string) (*Config, error) {
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config error")
	}
	return parse(os.ExpandEnv(string(file)))
}

// Default 默认配置
func Default() *Config {
	c, err := parse(defaultConfig)
	if err != nil {
		panic(err)
	}
	return c
}

func parse(content string) (*Config, error) {
	c := &Config{}
	if err := yaml.Unmarshal([]byte(content), c); err != nil {
		return nil, errors.Wrap(err, "parse config error")
	}
	return c, nil
}

// Generate 在 path 写入默认配置文件
func Generate(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, []byte(defaultConfig), 0o644); err != nil {
		return errors.Wrap(err, "write default config error")
	}
	log.Infof("默认配置文件已生成至 %v, 请修改后重新启动.", path)
	return nil
}
