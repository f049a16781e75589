package cmd

import (
	"karaoke/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动卡拉OK服务器",
	Long:  `启动HTTP服务器，提供曲库、歌单、支付回调和播放器 WebSocket 接口`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.Start(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
