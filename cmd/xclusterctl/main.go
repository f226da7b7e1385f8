// xclusterctl 是 xcluster 各组件的命令行工具，用于运维排查与联调。
//
// 用法:
//
//	xclusterctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-c, --config     配置文件路径（yaml/json），缺省使用内置默认值
//	-l, --log-level  覆盖配置文件中的日志级别
//
// 命令:
//
//	serve          分配节点 ID 并常驻，输出状态变化，配置文件修改后热加载日志级别
//	nodes          列出 etcd 中登记的节点
//	lock           加锁、持有一段时间后释放
//	tick           从号段计数器取号
//	id             生成以节点 ID 为机器号的 sonyflake ID
//	decode         拆解 sonyflake ID
//
// 退出码:
//
//	0: 命令执行成功
//	1: 命令执行失败（连接失败、加锁超时等）
//	2: 参数错误（缺少必需参数、配置非法、未知命令等）
//
// 示例:
//
//	xclusterctl -c cluster.yaml serve
//	xclusterctl -c cluster.yaml nodes
//	xclusterctl lock --key order:1 --key order:2 --timeout 3s -- 10s
//	xclusterctl tick --name order --count 10
//	xclusterctl decode 3ieqbj9c4ws
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
)

// 版本信息，通过 -ldflags "-X main.Version=..." 注入。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(os.Args))
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:    "xclusterctl",
		Usage:   "xcluster 节点 ID、分布式锁与号段工具",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径（yaml/json）",
				Sources: cli.EnvVars("XCLUSTER_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "日志级别 (debug/info/warn/error)",
			},
		},
		Commands:       createCommands(),
		DefaultCommand: "help",
		// 禁止 urfave/cli 直接调用 os.Exit，退出码统一由 run() 映射
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run(args []string) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandler(cancel)

	return exitCode(createApp().Run(ctx, args))
}

// exitCode 错误到退出码的映射。
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		fmt.Fprintf(os.Stderr, "参数错误: %v\n", usageErr)
		return 2
	}
	if isCLIUsageError(err) {
		// flag 解析器已输出详情
		return 2
	}
	fmt.Fprintf(os.Stderr, "错误: %v\n", err)
	return 1
}

// isCLIUsageError 识别 urfave/cli 的参数解析错误，它们没有导出的错误类型。
func isCLIUsageError(err error) bool {
	msg := err.Error()
	for _, prefix := range []string{
		"flag provided but not defined",
		"flag needs an argument",
		"invalid value",
		"No help topic for",
		"Required flag",
		"Required flags",
	} {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}
