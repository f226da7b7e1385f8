package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"

	"github.com/omeyang/xcluster/pkg/config/xconf"
	"github.com/omeyang/xcluster/pkg/distributed/xclusterid"
	"github.com/omeyang/xcluster/pkg/distributed/xdlock"
	"github.com/omeyang/xcluster/pkg/distributed/xtickid"
	"github.com/omeyang/xcluster/pkg/lifecycle/xrun"
	"github.com/omeyang/xcluster/pkg/observability/xlog"
	"github.com/omeyang/xcluster/pkg/storage/xetcd"
	"github.com/omeyang/xcluster/pkg/util/xid"
)

// exitError 命令已完成输出，只需设置退出码。
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// usageError 参数错误，退出码 2。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

// shutdownTimeout 退出时释放锁与租约的等待上限。
const shutdownTimeout = 5 * time.Second

func createCommands() []*cli.Command {
	return []*cli.Command{
		createServeCommand(),
		createNodesCommand(),
		createLockCommand(),
		createTickCommand(),
		createIDCommand(),
		createDecodeCommand(),
	}
}

// =============================================================================
// 运行环境
// =============================================================================

// env 一次命令执行所需的配置与日志，连接按需创建。
type env struct {
	cfg     *appConfig
	src     xconf.Config
	logger  xlog.LoggerWithLevel
	out     io.Writer
	cleanup []func() error
}

func newEnv(cmd *cli.Command) (*env, error) {
	cfg, src, err := loadConfig(cmd.String("config"))
	if err != nil {
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			return nil, err
		}
		return nil, &usageError{msg: err.Error()}
	}
	logger, closeLog, err := buildLogger(cfg.Log, cmd.String("log-level"))
	if err != nil {
		return nil, &usageError{msg: err.Error()}
	}
	xlog.SetDefault(logger)
	return &env{cfg: cfg, src: src, logger: logger, out: cmd.Root().Writer, cleanup: []func() error{closeLog}}, nil
}

// close 逆序执行清理。
func (e *env) close() {
	for i := len(e.cleanup) - 1; i >= 0; i-- {
		_ = e.cleanup[i]()
	}
}

func (e *env) onClose(fn func() error) { e.cleanup = append(e.cleanup, fn) }

func (e *env) etcd() (*xetcd.Client, error) {
	client, err := xetcd.NewClient(e.cfg.Etcd)
	if err != nil {
		return nil, fmt.Errorf("connect etcd: %w", err)
	}
	e.onClose(client.Close)
	return client, nil
}

func (e *env) redis() redis.UniversalClient {
	client := newRedisClient(e.cfg.Redis)
	e.onClose(client.Close)
	return client
}

func (e *env) allocator(etcd *xetcd.Client, opts ...xclusterid.Option) (*xclusterid.Allocator, error) {
	opts = append([]xclusterid.Option{xclusterid.WithLogger(e.logger)}, opts...)
	alloc, err := xclusterid.NewEtcdAllocator(etcd, e.cfg.ClusterID, opts...)
	if err != nil {
		return nil, err
	}
	e.onClose(alloc.Close)
	return alloc, nil
}

func (e *env) mutex(rdb redis.UniversalClient, ids xdlock.IDSource) (*xdlock.Mutex, error) {
	mu, err := xdlock.NewMutex(rdb, ids, e.cfg.DLock, xdlock.WithLogger(e.logger))
	if err != nil {
		return nil, err
	}
	e.onClose(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return mu.Close(ctx)
	})
	return mu, nil
}

// ticks etcd 后端才建立 etcd 连接。
func (e *env) ticks(rdb redis.UniversalClient) (*xtickid.Template, error) {
	var counter xtickid.Counter
	if e.cfg.Tick != nil && e.cfg.Tick.Backend == xtickid.BackendEtcd {
		etcd, err := e.etcd()
		if err != nil {
			return nil, err
		}
		counter = etcd
	}
	return xtickid.NewTemplateFromConfig(e.cfg.Tick, rdb, counter,
		xtickid.WithAllocatorOptions(xtickid.WithLogger(e.logger)))
}

// withEnv 包装 Action：建立 env，结束时释放。
func withEnv(fn func(ctx context.Context, cmd *cli.Command, e *env) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		e, err := newEnv(cmd)
		if err != nil {
			return err
		}
		defer e.close()
		return fn(ctx, cmd, e)
	}
}

// =============================================================================
// serve
// =============================================================================

func createServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "分配节点 ID 并常驻，定期输出状态",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "status-interval",
				Usage: "状态输出间隔",
				Value: 10 * time.Second,
			},
			&cli.StringSliceFlag{
				Name:  "tick",
				Usage: "预热的计数器名称，可重复",
			},
		},
		Action: withEnv(func(ctx context.Context, cmd *cli.Command, e *env) error {
			return cmdServe(ctx, e, cmd.Duration("status-interval"), cmd.StringSlice("tick"))
		}),
	}
}

func cmdServe(ctx context.Context, e *env, interval time.Duration, tickNames []string) error {
	if interval <= 0 {
		return &usageError{msg: "status-interval must be positive"}
	}
	etcd, err := e.etcd()
	if err != nil {
		return err
	}
	alloc, err := e.allocator(etcd, xclusterid.WithOnChange(func(s xclusterid.State, id int) {
		e.logger.Info(ctx, "cluster id changed", slog.String(xlog.KeyState, s.String()), xlog.NodeID(id))
	}))
	if err != nil {
		return err
	}
	rdb := e.redis()
	mu, err := e.mutex(rdb, alloc)
	if err != nil {
		return err
	}
	tmpl, err := e.ticks(rdb)
	if err != nil {
		return err
	}
	for _, name := range tickNames {
		a, err := tmpl.Create(name)
		if err != nil {
			return &usageError{msg: fmt.Sprintf("tick %q: %v", name, err)}
		}
		e.onClose(a.Close)
	}

	services := []func(context.Context) error{
		xrun.Ticker(nil, interval, true, func(ctx context.Context) error {
			e.logger.Info(ctx, "status",
				slog.String(xlog.KeyState, alloc.Status().String()),
				xlog.NodeID(alloc.ID()),
				xlog.Keys(mu.Held()))
			return nil
		}),
	}
	if e.src != nil {
		w, err := xconf.Watch(e.src, func(cfg xconf.Config, err error) {
			reloadLogLevel(ctx, e.logger, cfg, err)
		})
		if err != nil {
			return err
		}
		services = append(services, w.Run)
	}

	e.logger.Info(ctx, "serving", slog.Int("bitNum", alloc.BitNum()))
	// 信号由 setupSignalHandler 转成 ctx 取消
	err = xrun.RunWithOptions(ctx, []xrun.Option{
		xrun.WithLogger(e.logger),
		xrun.WithName("xclusterctl"),
		xrun.WithoutSignalHandler(),
	}, services...)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// reloadLogLevel 配置文件变化时只热加载日志级别，其余配置需要重启。
func reloadLogLevel(ctx context.Context, logger xlog.LoggerWithLevel, cfg xconf.Config, err error) {
	if err != nil {
		logger.Warn(ctx, "config reload failed", xlog.Err(err))
		return
	}
	if !cfg.Exists("log.level") {
		return
	}
	level, err := xlog.ParseLevel(cfg.Client().String("log.level"))
	if err != nil {
		logger.Warn(ctx, "invalid log level in config", xlog.Err(err))
		return
	}
	if level != logger.GetLevel() {
		logger.SetLevel(level)
		logger.Info(ctx, "log level changed", slog.String("level", level.String()))
	}
}

// =============================================================================
// nodes
// =============================================================================

func createNodesCommand() *cli.Command {
	return &cli.Command{
		Name:  "nodes",
		Usage: "列出 etcd 中登记的节点",
		Action: withEnv(func(ctx context.Context, _ *cli.Command, e *env) error {
			etcd, err := e.etcd()
			if err != nil {
				return err
			}
			store, err := xclusterid.NewEtcdStore(etcd, e.cfg.ClusterID.Path, xclusterid.WithStoreLogger(e.logger))
			if err != nil {
				return err
			}
			return cmdNodes(ctx, e.out, store)
		}),
	}
}

// nodeLister 便于测试替换存储。
type nodeLister interface {
	List(ctx context.Context) ([]xclusterid.Node, error)
}

func cmdNodes(ctx context.Context, out io.Writer, store nodeLister) error {
	nodes, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("list nodes: %w", err)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLOCKED\tHEARTBEAT")
	for _, n := range nodes {
		hb := "-"
		if n.Timestamp > 0 {
			hb = time.UnixMilli(n.Timestamp).UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%d\t%t\t%s\n", n.ID, n.Locked, hb)
	}
	return tw.Flush()
}

// =============================================================================
// lock
// =============================================================================

func createLockCommand() *cli.Command {
	return &cli.Command{
		Name:      "lock",
		Usage:     "同时锁定多个 key，持有指定时长后释放",
		ArgsUsage: "[hold]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "key",
				Aliases: []string{"k"},
				Usage:   "锁 key，可重复",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "加锁等待时间",
				Value:   xdlock.DefaultRunTimeout,
			},
			&cli.IntFlag{
				Name:  "node-id",
				Usage: "锁持有者 ID，小于 0 时通过 etcd 分配",
				Value: -1,
			},
		},
		Action: withEnv(func(ctx context.Context, cmd *cli.Command, e *env) error {
			keys := cmd.StringSlice("key")
			if len(keys) == 0 {
				return &usageError{msg: "at least one --key is required"}
			}
			hold, err := parseHold(cmd.Args().First())
			if err != nil {
				return err
			}
			ids, err := e.idSource(cmd.Int("node-id"))
			if err != nil {
				return err
			}
			mu, err := e.mutex(e.redis(), ids)
			if err != nil {
				return err
			}
			return cmdLock(ctx, e.out, mu, keys, cmd.Duration("timeout"), hold)
		}),
	}
}

func parseHold(arg string) (time.Duration, error) {
	if arg == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(arg)
	if err != nil || d < 0 {
		return 0, &usageError{msg: fmt.Sprintf("invalid hold duration %q", arg)}
	}
	return d, nil
}

// idSource id 小于 0 时从 etcd 分配节点 ID。
func (e *env) idSource(id int) (xdlock.IDSource, error) {
	if id >= 0 {
		return xdlock.StaticID(id), nil
	}
	etcd, err := e.etcd()
	if err != nil {
		return nil, err
	}
	return e.allocator(etcd)
}

func cmdLock(ctx context.Context, out io.Writer, mu *xdlock.Mutex, keys []string, timeout, hold time.Duration) error {
	start := time.Now()
	err := mu.RunInLock(ctx, keys, func(ctx context.Context) error {
		fmt.Fprintf(out, "locked %s after %s\n", strings.Join(keys, ","), time.Since(start).Round(time.Millisecond))
		if hold <= 0 {
			return nil
		}
		t := time.NewTimer(hold)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
		}
		return nil
	}, xdlock.WithRunTimeout(timeout))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "released %s\n", strings.Join(keys, ","))
	return nil
}

// =============================================================================
// tick
// =============================================================================

func createTickCommand() *cli.Command {
	return &cli.Command{
		Name:  "tick",
		Usage: "从号段计数器取号",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "name",
				Aliases: []string{"n"},
				Usage:   "计数器名称",
			},
			&cli.IntFlag{
				Name:  "count",
				Usage: "取号数量",
				Value: 1,
			},
			&cli.IntFlag{
				Name:  "batch",
				Usage: "号段大小，0 表示使用配置",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "单次取号等待时间",
				Value: 5 * time.Second,
			},
		},
		Action: withEnv(func(ctx context.Context, cmd *cli.Command, e *env) error {
			name := cmd.String("name")
			if name == "" {
				return &usageError{msg: "--name is required"}
			}
			count := cmd.Int("count")
			if count <= 0 {
				return &usageError{msg: "--count must be positive"}
			}
			tmpl, err := e.ticks(e.redis())
			if err != nil {
				return err
			}
			var alloc *xtickid.Allocator
			if batch := cmd.Int("batch"); batch > 0 {
				alloc, err = tmpl.CreateWithBatch(name, int64(batch))
			} else {
				alloc, err = tmpl.Create(name)
			}
			if err != nil {
				return err
			}
			defer func() { _ = alloc.Close() }()
			return cmdTick(ctx, e.out, alloc, count, cmd.Duration("timeout"))
		}),
	}
}

// ticker 便于测试替换分配器。
type ticker interface {
	GenerateTimeout(ctx context.Context, timeout time.Duration) (int64, error)
}

func cmdTick(ctx context.Context, out io.Writer, alloc ticker, count int, timeout time.Duration) error {
	for range count {
		v, err := alloc.GenerateTimeout(ctx, timeout)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, v)
	}
	return nil
}

// =============================================================================
// id / decode
// =============================================================================

func createIDCommand() *cli.Command {
	return &cli.Command{
		Name:  "id",
		Usage: "生成 sonyflake ID，机器号取节点 ID",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "count",
				Usage: "生成数量",
				Value: 1,
			},
			&cli.IntFlag{
				Name:  "node-id",
				Usage: "机器号，小于 0 时通过 etcd 分配",
				Value: -1,
			},
			&cli.BoolFlag{
				Name:  "base36",
				Usage: "以 base36 输出",
			},
		},
		Action: withEnv(func(ctx context.Context, cmd *cli.Command, e *env) error {
			count := cmd.Int("count")
			if count <= 0 {
				return &usageError{msg: "--count must be positive"}
			}
			var opts []xid.Option
			if id := cmd.Int("node-id"); id >= 0 {
				if id > 0xFFFF {
					return &usageError{msg: fmt.Sprintf("node-id %d out of range", id)}
				}
				opts = append(opts, xid.WithMachineID(func() (uint16, error) { return uint16(id), nil }))
			} else {
				etcd, err := e.etcd()
				if err != nil {
					return err
				}
				alloc, err := e.allocator(etcd)
				if err != nil {
					return err
				}
				opts = append(opts, xid.WithClusterID(alloc))
			}
			gen, err := xid.NewGenerator(opts...)
			if err != nil {
				return err
			}
			return cmdID(ctx, e.out, gen, count, cmd.Bool("base36"))
		}),
	}
}

func cmdID(ctx context.Context, out io.Writer, gen *xid.Generator, count int, base36 bool) error {
	for range count {
		id, err := gen.NewWithRetry(ctx)
		if err != nil {
			return err
		}
		if base36 {
			fmt.Fprintln(out, xid.Format(id))
		} else {
			fmt.Fprintln(out, id)
		}
	}
	return nil
}

func createDecodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "拆解 sonyflake ID（十进制或 base36）",
		ArgsUsage: "<id>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			return cmdDecode(cmd.Root().Writer, cmd.Args().First())
		},
	}
}

func cmdDecode(out io.Writer, arg string) error {
	if arg == "" {
		return &usageError{msg: "id is required"}
	}
	id, err := parseID(arg)
	if err != nil {
		return &usageError{msg: err.Error()}
	}
	c, err := xid.Decompose(id)
	if err != nil {
		return &usageError{msg: err.Error()}
	}
	fmt.Fprintf(out, "id=%d time=%d sequence=%d machine=%d\n", c.ID, c.Time, c.Sequence, c.Machine)
	return nil
}

// parseID 全数字按十进制解析，否则按 base36。
func parseID(s string) (int64, error) {
	if id, err := strconv.ParseInt(s, 10, 64); err == nil && id > 0 {
		return id, nil
	}
	return xid.Parse(s)
}

// =============================================================================
// 信号
// =============================================================================

// setupSignalHandler 第一次信号取消 ctx，第二次强制退出（130 = 128 + SIGINT）。
func setupSignalHandler(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()

		<-sigCh
		signal.Stop(sigCh)
		os.Exit(130)
	}()
}
