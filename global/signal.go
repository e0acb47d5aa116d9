package global

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var (
	mainStopCh chan struct{}
	mainOnce   sync.Once
)

// SetupMainSignalHandler 监听退出信号, 收到 os.Interrupt 或 SIGTERM 时关闭返回的 chan
func SetupMainSignalHandler() <-chan struct{} {
	mainOnce.Do(func() {
		mc := make(chan os.Signal, 2)
		mainStopCh = make(chan struct{})
		signal.Notify(mc, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-mc
			close(mainStopCh)
		}()
	})
	return mainStopCh
}
