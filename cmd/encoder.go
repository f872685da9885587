package cmd

import (
	"fmt"
	"log"
	"os/exec"

	"AriaFM/config"

	"github.com/spf13/cobra"
)

var encoderCmd = &cobra.Command{
	Use:   "encoder",
	Short: "检查编码器环境",
	Long:  `检查配置的 ffmpeg / ffprobe 二进制是否可用，部署前先跑一次。`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		for _, binary := range []string{cfg.FFmpegPath, cfg.FFprobePath} {
			path, err := exec.LookPath(binary)
			if err != nil {
				log.Fatalf("找不到 %s: %v", binary, err)
			}

			out, err := exec.Command(path, "-version").Output()
			if err != nil {
				log.Fatalf("%s 无法执行: %v", path, err)
			}
			fmt.Printf("%s 可用:\n%s\n", path, firstLine(out))
		}
		fmt.Println("编码器环境检查通过。")
	},
}

func firstLine(out []byte) string {
	for i, b := range out {
		if b == '\n' {
			return string(out[:i])
		}
	}
	return string(out)
}

func init() {
	rootCmd.AddCommand(encoderCmd)
}
