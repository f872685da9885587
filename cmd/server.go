package cmd

import (
	"AriaFM/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动AriaFM服务器",
	Long:  `启动AriaFM的HTTP服务器：扫描本地曲库，提供登录、队列管理和自适应转码音频流`,
	Run: func(cmd *cobra.Command, args []string) {
		initLogging()
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
