package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "RENEWGUARD_ADMIN"

// rootCmd represents the base command when the `renewguard-admin` binary is called without any subcommands.
// It provides the entry point for the entire CLI application.
// rootCmd 代表在没有任何子命令的情况下调用 `renewguard-admin` 二进制文件时的基本命令。
// 它为整个 CLI 应用程序提供入口点。
var rootCmd = newRootCmd()

// newRootCmd builds the command tree. Flag values fall back to
// RENEWGUARD_ADMIN_* environment variables.
// newRootCmd 构建命令树，未指定的参数从 RENEWGUARD_ADMIN_* 环境变量读取。
func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "renewguard-admin",
		Short: "A CLI tool for administering the renewguard rate limiter.",
		Long: `renewguard-admin is a command-line interface for operating a renewguard
gateway: inspecting limits, clearing blocks and running maintenance.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().String("server", "http://localhost:8080", "base URL of the renewguard server")
	cmd.PersistentFlags().String("token", "", "admin bearer token")
	cmd.PersistentFlags().Duration("timeout", defaultTimeout, "request timeout")
	_ = v.BindPFlags(cmd.PersistentFlags())

	cmd.AddCommand(newAdminCmd(v))
	return cmd
}

// Execute is the main entry point for the CLI application.
// It parses the command-line arguments and executes the appropriate command.
// If an error occurs, it prints the error and exits.
// Execute 是 CLI 应用程序的主入口点。
// 它解析命令行参数并执行相应的命令。如果发生错误，它会打印错误并退出。
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

//Personal.AI order the ending
