package cmd

import (
	"fmt"
	"os"

	"AriaFM/config"
	"AriaFM/logger"
	"AriaFM/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ariafm",
	Short: "AriaFM is a personal music-library streaming service.",
	Run: func(cmd *cobra.Command, args []string) {
		initLogging()
		server.Start()
	},
}

// initLogging 按配置初始化全局日志
func initLogging() {
	cfg := config.Load()
	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogOutputPath,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
