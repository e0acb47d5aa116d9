// Package scheduler 按 cron 表达式执行定时任务
package scheduler

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrInvalidCron cron 表达式无效
var ErrInvalidCron = errors.New("invalid cron expression")

const retryDelay = 30 * time.Second

type job struct {
	name string
	expr string
	fn   func(ctx context.Context)
}

// Scheduler 定时任务集合, 同一任务不会并发执行
type Scheduler struct {
	jobs []job
	wg   sync.WaitGroup
	next func(expr string, now time.Time) (time.Time, error)
}

// New 创建 Scheduler
func New() *Scheduler {
	return &Scheduler{
		next: func(expr string, now time.Time) (time.Time, error) {
			return gronx.NextTickAfter(expr, now, false)
		},
	}
}

// Add 注册任务, expr 为空时忽略
func (s *Scheduler) Add(name, expr string, fn func(ctx context.Context)) error {
	if expr == "" {
		log.Debugf("定时任务 %v 未启用", name)
		return nil
	}
	if !gronx.IsValid(expr) {
		return errors.Wrapf(ErrInvalidCron, "%v: %q", name, expr)
	}
	s.jobs = append(s.jobs, job{name: name, expr: expr, fn: fn})
	return nil
}

// Len 已注册的任务数
func (s *Scheduler) Len() int {
	return len(s.jobs)
}

// Start 为每个任务启动一个循环, ctx 取消后停止
func (s *Scheduler) Start(ctx context.Context) {
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
		log.Infof("定时任务 %v 已启动: %v", j.name, j.expr)
	}
}

// Wait 等待全部任务循环退出
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, j job) {
	defer s.wg.Done()
	for {
		wait := retryDelay
		next, err := s.next(j.expr, time.Now())
		if err != nil {
			log.Warnf("计算定时任务 %v 的下次执行时间失败: %v", j.name, err)
		} else {
			wait = time.Until(next)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if err == nil {
			s.run(ctx, j)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, j job) {
	defer func() {
		if pan := recover(); pan != nil {
			log.Warnf("执行定时任务 %v 时出现错误: %v \n%s", j.name, pan, debug.Stack())
		}
	}()
	start := time.Now()
	j.fn(ctx)
	log.Debugf("定时任务 %v 执行完成, 耗时 %v", j.name, time.Since(start))
}
