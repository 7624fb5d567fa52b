package main

import (
	"os"

	_ "tunnel-keeper/cmd"
	"tunnel-keeper/cmd/root"
	"tunnel-keeper/internal/config"
	"tunnel-keeper/internal/logger"
)

func main() {
	// 检查是否是服务器模式
	isServerMode := len(os.Args) > 1 && os.Args[1] == "serve"

	// 根据运行模式初始化日志系统
	logger.InitLogger(&config.Config.Log, isServerMode)
	defer logger.Close()

	if err := root.RootCmd.Execute(); err != nil {
		logger.Close()
		os.Exit(1)
	}
}
