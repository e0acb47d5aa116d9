// Package gocq 程序的主体部分
package gocq

import (
	"context"
	"os"
	"path"
	"sync"
	"sync/atomic"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"gopkg.ilharper.com/x/isatty"

	"github.com/ycvk/go-essence/coolq"
	"github.com/ycvk/go-essence/db"
	"github.com/ycvk/go-essence/db/leveldb"
	_ "github.com/ycvk/go-essence/db/sqlite3" // sqlite3 存储后端
	"github.com/ycvk/go-essence/global"
	"github.com/ycvk/go-essence/internal/base"
	"github.com/ycvk/go-essence/internal/metrics"
	"github.com/ycvk/go-essence/internal/scheduler"
	"github.com/ycvk/go-essence/internal/vote"
	"github.com/ycvk/go-essence/modules/config"
	"github.com/ycvk/go-essence/server"
)

var (
	store  db.Database
	images *leveldb.Archive
	votes  *vote.Counter

	ctx   context.Context
	stop  context.CancelFunc
	wg    sync.WaitGroup
	sched *scheduler.Scheduler

	gaveUp atomic.Bool
)

// InitBase 切换工作目录并读取配置
//
//	如果配置文件不存在, 程序将生成默认配置后终止
func InitBase() {
	if base.LittleWD != "" {
		err := os.Chdir(base.LittleWD)
		if err != nil {
			log.Fatalf("重置工作目录时出现错误: %v", err)
		}
	}
	if !global.PathExists(base.LittleC) {
		log.Warnf("未找到配置文件 %v", base.LittleC)
		global.Check(config.Generate(base.LittleC), "生成默认配置文件失败")
		os.Exit(0)
	}
	base.Init()
	if base.Debug {
		log.SetLevel(log.DebugLevel)
		log.Warnf("已开启Debug模式.")
	}
}

// PrepareData 准备 log 与数据库, 必须在 InitBase 之后执行
func PrepareData() {
	rotateOptions := []rotatelogs.Option{
		rotatelogs.WithRotationTime(time.Hour * 24),
	}
	rotateOptions = append(rotateOptions, rotatelogs.WithMaxAge(base.LogAging))
	if base.LogForceNew {
		rotateOptions = append(rotateOptions, rotatelogs.ForceNewFile())
	}
	w, err := rotatelogs.New(path.Join("logs", "%Y-%m-%d.log"), rotateOptions...)
	if err != nil {
		log.Errorf("rotatelogs init err: %v", err)
		panic(err)
	}

	colorful := base.LogColorful && isatty.Isatty(os.Stdout.Fd())
	consoleFormatter := global.LogFormat{EnableColor: colorful}
	fileFormatter := global.LogFormat{EnableColor: false}
	log.AddHook(global.NewLocalHook(w, consoleFormatter, fileFormatter, global.GetLogLevel(base.LogLevel)...))

	global.Check(db.Init(base.Database), "初始化数据库失败")
	store, err = db.Open()
	global.Check(err, "打开数据库失败")
}

// OpenArchives 打开图片归档与投票计数, 必须在 PrepareData 之后执行
func OpenArchives() {
	var err error
	images, err = leveldb.Open(base.ImagePath)
	global.Check(err, "打开图片归档失败")
	votes, err = vote.Open(base.VotesPath)
	global.Check(err, "读取投票计数失败")
}

// Connect 连接 OneBot 实现并启动定时任务, 必须在 OpenArchives 之后执行
func Connect() {
	if base.WSAddress == "" {
		log.Fatalf("未配置 OneBot 地址, 请检查配置文件 servers.ws.address")
	}
	ctx, stop = context.WithCancel(context.Background())

	var bot *coolq.CQBot
	client := server.NewClient(server.Options{
		Address:           base.WSAddress,
		AccessToken:       base.AccessToken,
		APITimeout:        base.APITimeout,
		RateLimitEnabled:  base.RateLimitEnabled,
		RateLimitFreq:     base.RateLimitFreq,
		RateLimitBucket:   base.RateLimitBucket,
		ReconnectDelay:    base.ReconnectDelay,
		ReconnectMaxTimes: base.ReconnectMaxTimes,
	}, func(ev gjson.Result) {
		bot.HandleEvent(ctx, ev)
	})
	bot = coolq.NewQQBot(client, store, votes, images)

	sched = scheduler.New()
	global.Check(sched.Add("fetchall", base.SyncCron, func(ctx context.Context) {
		bot.FetchEnabled(ctx)
	}), "注册定时任务失败")
	global.Check(sched.Add("sweep", base.SweepCron, func(context.Context) {
		if n := bot.Limiter.Sweep(time.Now()); n > 0 {
			log.Debugf("已清理 %v 个过期的抽取计数", n)
		}
	}), "注册定时任务失败")
	sched.Start(ctx)

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := watch(ctx, stop, client.Run); err != nil {
			log.Errorf("Bot重连次数超过限制, 停止: %v", err)
			gaveUp.Store(true)
		}
	}()
	go func() {
		defer wg.Done()
		if err := metrics.ListenAndServe(ctx, base.MetricsAddress); err != nil {
			log.Errorf("prometheus 指标服务启动失败: %v", err)
		}
	}()
	log.Info("资源初始化完成, 开始处理信息.")
}

// WaitSignal 等待退出信号并释放资源, 必须在 Connect 之后执行
//
//   - 直接返回: os.Interrupt, syscall.SIGTERM
//   - 放弃重连后同样关闭数据库与归档, 并以状态码 1 退出
func WaitSignal() {
	select {
	case <-global.SetupMainSignalHandler():
	case <-ctx.Done():
	}
	log.Info("正在退出...")
	stop()
	wg.Wait()
	sched.Wait()
	Close()
	if gaveUp.Load() {
		os.Exit(1)
	}
}

// watch 运行 run, 返回错误时调用 stop 使其余组件一同退出
func watch(ctx context.Context, stop context.CancelFunc, run func(context.Context) error) error {
	err := run(ctx)
	if err != nil {
		stop()
	}
	return err
}

// Close 关闭数据库与归档
func Close() {
	if images != nil {
		_ = images.Close()
	}
	if store != nil {
		if err := store.Close(); err != nil {
			log.Warnf("关闭数据库失败: %v", err)
		}
	}
}
