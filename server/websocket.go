// Package server 连接 OneBot 实现的正向 WebSocket 客户端
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RomiChan/syncx"
	"github.com/RomiChan/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/ycvk/go-essence/global"
	"github.com/ycvk/go-essence/utils"
)

// API 调用相关错误
var (
	ErrAPITimeout   = errors.New("api call timeout")
	ErrAPIFailed    = errors.New("api call failed")
	ErrNotConnected = errors.New("websocket not connected")
	ErrGiveUp       = errors.New("reconnect attempts exhausted")
)

// Options 连接配置
type Options struct {
	Address           string
	AccessToken       string
	APITimeout        time.Duration
	RateLimitEnabled  bool
	RateLimitFreq     float64
	RateLimitBucket   int
	ReconnectDelay    time.Duration
	ReconnectMaxTimes uint // 0 为无限重连
}

// Client OneBot 正向 WebSocket 客户端
type Client struct {
	opt     Options
	handler func(gjson.Result)
	limiter *rate.Limiter

	mu   sync.Mutex // 保护 conn 及写入
	conn *websocket.Conn

	seq     atomic.Uint64
	pending syncx.Map[string, chan gjson.Result]
}

// NewClient 创建客户端, handler 在独立的 goroutine 中处理每个事件
func NewClient(opt Options, handler func(gjson.Result)) *Client {
	if opt.APITimeout <= 0 {
		opt.APITimeout = 3 * time.Second
	}
	if opt.ReconnectDelay <= 0 {
		opt.ReconnectDelay = 3 * time.Second
	}
	c := &Client{opt: opt, handler: handler}
	if opt.RateLimitEnabled {
		bucket := opt.RateLimitBucket
		if bucket <= 0 {
			bucket = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opt.RateLimitFreq), bucket)
	}
	return c
}

// Run 连接并处理事件, 断开后按配置重连, ctx 取消时返回 nil
func (c *Client) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	var failures uint
	for {
		conn, err := c.dial(ctx)
		if err == nil {
			failures = 0
			log.Infof("已连接到 OneBot 实现: %v", c.opt.Address)
			c.serve(ctx, conn, &wg)
		} else if ctx.Err() == nil {
			log.Warnf("连接到 %v 失败: %v", c.opt.Address, err)
		}
		if ctx.Err() != nil {
			return nil
		}
		failures++
		if c.opt.ReconnectMaxTimes > 0 && failures > c.opt.ReconnectMaxTimes {
			return errors.Wrapf(ErrGiveUp, "%v after %d attempts", c.opt.Address, failures)
		}
		log.Warnf("将在 %v 后尝试重连 (%d)", c.opt.ReconnectDelay, failures)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.opt.ReconnectDelay):
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.opt.AccessToken != "" {
		header.Set("Authorization", "Bearer "+c.opt.AccessToken)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.opt.Address, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "handshake status %d", resp.StatusCode)
		}
		return nil, errors.Wrap(err, "dial error")
	}
	return conn, nil
}

func (c *Client) serve(ctx context.Context, conn *websocket.Conn, wg *sync.WaitGroup) {
	c.setConn(conn)
	stop := make(chan struct{})
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = conn.Close()
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Warnf("WebSocket 连接断开: %v", err)
			}
			break
		}
		c.handleFrame(data, wg)
	}
	c.setConn(nil)
	close(stop)
	<-closed
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) handleFrame(data []byte, wg *sync.WaitGroup) {
	frame := gjson.ParseBytes(data)
	if echo := frame.Get("echo"); echo.Exists() {
		if ch, ok := c.pending.LoadAndDelete(echo.String()); ok {
			ch <- frame
		} else {
			log.Debugf("收到未知的 API 响应: %v", echo.String())
		}
		return
	}
	if !frame.Get("post_type").Exists() {
		log.Debugf("忽略无法识别的数据: %v", utils.B2S(data))
		return
	}
	if c.handler == nil {
		return
	}
	wg.Add(1)
	go func() {
		defer func() {
			if pan := recover(); pan != nil {
				log.Warnf("处理事件 %v 时出现错误: %v \n%s", frame.Raw, pan, debug.Stack())
			}
			wg.Done()
		}()
		start := time.Now()
		c.handler(frame)
		if cost := time.Since(start); cost > time.Second*5 {
			log.Debugf("警告: 事件处理耗时超过 5 秒 (%v), 请检查应用是否有堵塞.", cost)
		}
	}()
}

// CallAPI 调用 OneBot API 并等待响应, 返回响应中的 data
func (c *Client) CallAPI(ctx context.Context, action string, params global.MSG) (gjson.Result, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return gjson.Result{}, errors.Wrap(err, "rate limit wait error")
		}
	}
	echo := strconv.FormatUint(c.seq.Add(1), 10)
	ch := make(chan gjson.Result, 1)
	c.pending.Store(echo, ch)
	defer c.pending.Delete(echo)

	buf := global.NewBuffer()
	defer global.PutBuffer(buf)
	if params == nil {
		params = global.MSG{}
	}
	err := json.NewEncoder(buf).Encode(global.MSG{"action": action, "params": params, "echo": echo})
	if err != nil {
		return gjson.Result{}, errors.Wrap(err, "marshal api request error")
	}

	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return gjson.Result{}, ErrNotConnected
	}
	err = c.conn.WriteMessage(websocket.TextMessage, buf.Bytes())
	c.mu.Unlock()
	if err != nil {
		return gjson.Result{}, errors.Wrap(err, "write api request error")
	}

	ctx, cancel := context.WithTimeout(ctx, c.opt.APITimeout)
	defer cancel()
	select {
	case resp := <-ch:
		if status := resp.Get("status").String(); status != "ok" && status != "async" {
			wording := resp.Get("wording").String()
			if wording == "" {
				wording = resp.Get("message").String()
			}
			return resp, errors.Wrapf(ErrAPIFailed, "%v: retcode=%d %v", action, resp.Get("retcode").Int(), wording)
		}
		return resp.Get("data"), nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return gjson.Result{}, errors.Wrap(ErrAPITimeout, action)
		}
		return gjson.Result{}, ctx.Err()
	}
}
