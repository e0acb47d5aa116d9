package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ycvk/go-essence/cmd/gocq"
	"github.com/ycvk/go-essence/internal/base"
)

var rootCmd = &cobra.Command{
	Use:   "go-essence",
	Short: "群精华消息存档机器人",
	Long: `go-essence 通过正向 WebSocket 连接 OneBot v11 实现,
自动存档群精华消息并提供 random / search / rank 等查询指令.`,
	Run: func(*cobra.Command, []string) {
		gocq.InitBase()
		gocq.PrepareData()
		gocq.OpenArchives()
		gocq.Connect()
		gocq.WaitSignal()
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <group>",
	Short: "导出群精华消息快照",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		gid, err := parseGroup(args[0])
		if err != nil {
			return err
		}
		gocq.InitBase()
		gocq.PrepareData()
		gocq.Export(gid)
		return nil
	},
}

var purgeYes bool

var purgeCmd = &cobra.Command{
	Use:   "purge <group>",
	Short: "删除群的全部精华消息存档",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		gid, err := parseGroup(args[0])
		if err != nil {
			return err
		}
		gocq.InitBase()
		gocq.PrepareData()
		gocq.Purge(gid, purgeYes)
		return nil
	},
}

func parseGroup(s string) (int64, error) {
	gid, err := strconv.ParseInt(s, 10, 64)
	if err != nil || gid <= 0 {
		return 0, fmt.Errorf("invalid group id: %q", s)
	}
	return gid, nil
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&base.LittleC, "config", "c", base.LittleC, "配置文件路径")
	rootCmd.PersistentFlags().StringVarP(&base.LittleWD, "workdir", "w", "", "启动前切换的工作目录")
	rootCmd.PersistentFlags().BoolVarP(&base.Debug, "debug", "D", false, "开启 debug 模式")
	purgeCmd.Flags().BoolVarP(&purgeYes, "yes", "y", false, "跳过确认")
	rootCmd.AddCommand(exportCmd, purgeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
