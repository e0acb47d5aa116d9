// Package metrics 精华消息相关的 prometheus 指标
package metrics

import (
	"context"
	"net"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// Archived 写入存储的记录数, kind 为 essence 或 deletion
	Archived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "essence",
		Name:      "archived_total",
		Help:      "Records written to the essence store.",
	}, []string{"kind"})

	// Commands 处理的指令数
	Commands = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "essence",
		Name:      "commands_total",
		Help:      "Essence commands handled.",
	}, []string{"command"})

	// Reconciled 撤销结果, result 为 hit, miss 或 error
	Reconciled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "essence",
		Name:      "reconciled_total",
		Help:      "Cancel-last-deletion attempts by result.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(Archived, Commands, Reconciled)
}

// Handler /metrics 的 fasthttp 处理函数
func Handler() fasthttp.RequestHandler {
	metrics := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/metrics":
			metrics(ctx)
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		}
	}
}

// Serve 在 ln 上提供指标, ctx 取消后关闭
func Serve(ctx context.Context, ln net.Listener) error {
	srv := &fasthttp.Server{
		Handler:               Handler(),
		Name:                  "go-essence",
		NoDefaultServerHeader: true,
	}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown()
	}()
	log.Infof("prometheus 指标已在 http://%v/metrics 提供", ln.Addr())
	if err := srv.Serve(ln); err != nil {
		return errors.Wrap(err, "serve metrics error")
	}
	return nil
}

// ListenAndServe 监听 addr 并提供指标, addr 为空时不启动
func ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "listen metrics error")
	}
	return Serve(ctx, ln)
}
