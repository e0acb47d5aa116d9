// Package base provides base config for go-essence
package base

import (
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ycvk/go-essence/db/leveldb"
	"github.com/ycvk/go-essence/modules/config"
)

const defaultImageMaxSize = 32 << 20

// command flags
var (
	LittleC  = "config.yml" // config file
	LittleWD string         // working directory
	Debug    bool           // 是否开启 debug 模式
)

// config file flags
var (
	LogLevel    string        // 日志等级
	LogAging    time.Duration // 日志时效
	LogForceNew bool          // 是否在每次启动时强制创建全新的文件储存日志
	LogColorful bool          // 是否启用日志颜色

	WSAddress         string        // OneBot 正向 WebSocket 地址
	AccessToken       string        // OneBot access token
	APITimeout        time.Duration // API 调用超时
	RateLimitEnabled  bool          // 是否启用 API 调用限速
	RateLimitFreq     float64       // 令牌回复频率
	RateLimitBucket   int           // 令牌桶大小
	ReconnectDelay    time.Duration // 重连间隔
	ReconnectMaxTimes uint          // 最大重连次数

	AllGroups       bool               // 是否对全部群启用
	EnableGroups    map[int64]struct{} // 启用的群
	RandomLimit     int                // random 在窗口内的次数上限
	RandomWindow    time.Duration      // random 计数窗口
	SearchMaxLength int                // search 结果最大长度
	GoodThreshold   int                // 好精阈值
	NicknameTTL     time.Duration      // 昵称缓存有效期
	ConvertWebp     bool               // 是否将 webp 转为 png
	ImageMaxSize    int64              // 图片下载大小上限

	Database  map[string]yaml.Node // 数据库后端配置
	ImagePath string               // 图片归档
	VotesPath string               // 投票计数文件

	SyncCron       string // 定时 fetchall
	SweepCron      string // 定时清理抽取计数
	MetricsAddress string // prometheus 监听地址
)

// Init read config from yml
func Init() {
	conf, err := config.Parse(LittleC)
	if err != nil {
		log.Fatalf("读取配置文件 %v 失败: %v", LittleC, err)
	}
	Apply(conf)
}

// Apply 将配置写入全局变量并补齐默认值
func Apply(conf *config.Config) {
	Debug = Debug || conf.Output.Debug
	LogLevel = conf.Output.LogLevel
	LogAging = time.Hour * 24 * time.Duration(conf.Output.LogAging)
	LogForceNew = conf.Output.LogForceNew
	LogColorful = conf.Output.LogColorful == nil || *conf.Output.LogColorful

	ws := conf.Servers.WS
	WSAddress = ws.Address
	AccessToken = ws.AccessToken
	APITimeout = orDefault(ws.APITimeout, 3*time.Second)
	RateLimitEnabled = ws.RateLimit.Enabled
	RateLimitFreq = ws.RateLimit.Frequency
	RateLimitBucket = ws.RateLimit.Bucket
	if RateLimitBucket <= 0 {
		RateLimitBucket = 1
	}
	ReconnectDelay = orDefault(ws.Reconnect.Delay, 3*time.Second)
	ReconnectMaxTimes = ws.Reconnect.MaxTimes

	ess := conf.Essence
	AllGroups = false
	EnableGroups = make(map[int64]struct{}, len(ess.EnableGroups))
	for _, g := range ess.EnableGroups {
		g = strings.TrimSpace(g)
		if strings.EqualFold(g, "all") {
			AllGroups = true
			continue
		}
		id, err := strconv.ParseInt(g, 10, 64)
		if err != nil {
			log.Warnf("无法解析启用的群号 %q, 已忽略", g)
			continue
		}
		EnableGroups[id] = struct{}{}
	}
	RandomLimit = ess.RandomLimit
	if RandomLimit <= 0 {
		RandomLimit = 5
	}
	RandomWindow = orDefault(ess.RandomWindow, 12*time.Hour)
	SearchMaxLength = ess.SearchMaxLength
	if SearchMaxLength <= 0 {
		SearchMaxLength = 100
	}
	GoodThreshold = ess.GoodThreshold
	if GoodThreshold <= 0 {
		GoodThreshold = 3
	}
	NicknameTTL = orDefault(ess.NicknameTTL, 24*time.Hour)
	ConvertWebp = ess.ConvertWebp
	ImageMaxSize = defaultImageMaxSize
	if ess.ImageMaxSize != "" {
		size, err := humanize.ParseBytes(ess.ImageMaxSize)
		if err != nil || size == 0 {
			log.Warnf("无法解析图片大小上限 %q, 使用默认值 %v", ess.ImageMaxSize, humanize.IBytes(defaultImageMaxSize))
		} else {
			ImageMaxSize = int64(size)
		}
	}

	Database = conf.Database
	ImagePath = conf.Storage.Images
	if ImagePath == "" {
		ImagePath = leveldb.DefaultPath
	}
	VotesPath = conf.Storage.Votes
	if VotesPath == "" {
		VotesPath = "data/essence_message/votes.json"
	}

	SyncCron = conf.Schedule.SyncCron
	SweepCron = conf.Schedule.SweepCron
	MetricsAddress = conf.Metrics.Address
}

// GroupEnabled 群是否启用了精华消息功能
func GroupEnabled(groupID int64) bool {
	if AllGroups {
		return true
	}
	_, ok := EnableGroups[groupID]
	return ok
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
