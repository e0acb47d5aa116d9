// Package ratelimit 按会话计数的固定窗口限流, 用于限制 random 抽取频率
package ratelimit

import (
	"sync"
	"time"
)

// DefaultWindow 默认计数窗口
const DefaultWindow = 12 * time.Hour

type window struct {
	count int
	start int64
}

// Limiter 固定窗口计数器
//
// 窗口边界前后的突发请求最多可通过 2*limit 次
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  int64
	windows map[string]*window
}

// New 创建限流器, 窗口 d 小于一秒时使用 DefaultWindow
func New(limit int, d time.Duration) *Limiter {
	if d < time.Second {
		d = DefaultWindow
	}
	return &Limiter{
		limit:   limit,
		window:  int64(d / time.Second),
		windows: make(map[string]*window),
	}
}

// Reached 记录一次调用, 返回 true 表示已超出限制应当拒绝
func (l *Limiter) Reached(session string, now time.Time) bool {
	ts := now.Unix()
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[session]
	if !ok {
		w = &window{}
		l.windows[session] = w
	}
	w.count++
	if ts-w.start > l.window {
		w.count = 1
		w.start = ts
	}
	if w.count > l.limit {
		return true
	}
	if w.count == 1 {
		w.start = ts
	}
	return false
}

// Sweep 移除窗口已过期的会话, 返回移除数量
func (l *Limiter) Sweep(now time.Time) int {
	ts := now.Unix()
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, w := range l.windows {
		if ts-w.start > l.window {
			delete(l.windows, k)
			n++
		}
	}
	return n
}

// Len 当前记录的会话数
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
