package main

import (
	"fmt"
	"log"

	"github.com/dushixiang/copyrank/internal"
	"github.com/dushixiang/copyrank/internal/config"
	"github.com/dushixiang/copyrank/pkg/nostd"
	"github.com/spf13/cobra"
)

var (
	configFile string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "copyrank",
	Short: "Copyrank - 跟单交易员评分与资金分配引擎",
	Long:  ``,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(envFile); err != nil {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
		return internal.Run(configFile)
	},
}

var hashTokenCmd = &cobra.Command{
	Use:   "hash-token <token>",
	Short: "生成运维令牌的 bcrypt 哈希（operator.token_hash）",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := nostd.BcryptEncode([]byte(args[0]))
		if err != nil {
			return err
		}
		fmt.Println(string(hash))
		return nil
	},
}

func init() {
	// 全局配置文件标志
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml", "配置文件路径")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "环境变量文件路径")
	rootCmd.AddCommand(hashTokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
