// Command kbctl 是知识库的命令行管理工具：导入文档、提问、查询事件以及签发访问令牌。
package main

import (
	"context"
	"errors"
	"os"

	"campus-rag-go/internal/app"
	"campus-rag-go/internal/config"
	"campus-rag-go/pkg/log"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "kbctl",
	Short: "Manage the campus knowledge base",
	Long: `kbctl ingests academic documents, asks questions against the indexed
content, queries extracted calendar events and issues API tokens.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loadConfig()
		log.Init(logLevel, "console", "")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs/config.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output results as JSON")
}

// loadConfig 读取配置文件；文件不存在时只使用默认值与环境变量。
func loadConfig() {
	if _, err := os.Stat(configPath); err == nil {
		config.Init(configPath)
		return
	}
	config.Conf = config.Defaults()
}

// openApp 按当前配置装配应用。
func openApp(ctx context.Context) (*app.App, error) {
	a, err := app.New(ctx, config.Conf)
	if err != nil {
		return nil, errors.New("failed to initialize: " + err.Error())
	}
	return a, nil
}

func main() {
	defer log.Sync()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
