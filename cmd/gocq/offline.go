package gocq

import (
	"bufio"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"gopkg.ilharper.com/x/isatty"

	"github.com/ycvk/go-essence/global"
)

var console = bufio.NewReader(os.Stdin)

func readLine() (str string) {
	str, _ = console.ReadString('\n')
	str = strings.TrimSpace(str)
	return
}

func readIfTTY(de string) (str string) {
	if isatty.Isatty(os.Stdin.Fd()) {
		return readLine()
	}
	log.Warnf("未检测到输入终端，自动选择%s.", de)
	return de
}

// Export 离线导出群精华消息快照, 必须在 PrepareData 之后执行
func Export(groupID int64) {
	defer Close()
	p, err := store.Export(groupID)
	global.Check(err, "导出精华消息失败")
	size := "未知大小"
	if fi, err := os.Stat(p); err == nil {
		size = humanize.Bytes(uint64(fi.Size()))
	}
	log.Infof("已导出群 %v 的精华消息至 %v (%v)", groupID, p, size)
}

// Purge 删除群的全部精华消息存档, yes 为 false 时需要在终端确认
func Purge(groupID int64, yes bool) {
	defer Close()
	if !yes {
		log.Warnf("将删除群 %v 的全部精华消息存档, 该操作无法撤销. 输入 y 确认:", groupID)
		if ans := readIfTTY("n"); !strings.EqualFold(ans, "y") {
			log.Info("已取消.")
			return
		}
	}
	n, err := store.DeleteGroup(groupID)
	global.Check(err, "删除精华消息失败")
	log.Infof("已删除群 %v 的 %v 条精华消息存档.", groupID, humanize.Comma(n))
}
