package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ZacharyZcR/findetw/internal/cli"
	"github.com/ZacharyZcR/findetw/internal/guid"
	"github.com/ZacharyZcR/findetw/internal/scan"
	"github.com/ZacharyZcR/findetw/internal/search"
)

// rootFlags holds the command line flags.
type rootFlags struct {
	workers       int
	timeout       time.Duration
	extensions    []string
	exclude       []string
	importSymbols []string
	mapped        bool
	json          bool
	verbose       bool
	noColor       bool
}

func (f *rootFlags) register(fs *pflag.FlagSet) {
	defaults := scan.DefaultOptions()
	fs.IntVarP(&f.workers, "workers", "w", defaults.Workers, "并发扫描的文件数")
	fs.DurationVar(&f.timeout, "timeout", 0, "扫描超时时间（例如: 5m），0表示不限制")
	fs.StringSliceVar(&f.extensions, "ext", defaults.Enumerate.Extensions, "目录扫描时匹配的扩展名（不区分大小写）")
	fs.StringSliceVar(&f.exclude, "exclude", nil, "排除的路径模式（doublestar语法，相对于搜索根目录，例如: **/WinSxS/**）")
	fs.StringSliceVar(&f.importSymbols, "import-symbol", defaults.ImportSymbols, "判定为注册提供程序的导入函数名")
	fs.BoolVar(&f.mapped, "mmap", false, "使用内存映射读取文件")
	fs.BoolVar(&f.json, "json", false, "以JSON格式输出结果")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "详细模式：输出调试日志和导入表错误")
	fs.BoolVar(&f.noColor, "no-color", false, "禁用彩色输出")
}

func (f *rootFlags) options(log logrus.FieldLogger) scan.Options {
	opts := scan.DefaultOptions()
	opts.Workers = f.workers
	opts.Timeout = f.timeout
	opts.ImportSymbols = f.importSymbols
	opts.Mapped = f.mapped
	opts.Enumerate = scan.EnumerateOptions{
		Extensions: f.extensions,
		Exclude:    f.exclude,
	}
	opts.Log = log
	return opts
}

// newRootCmd returns the findetw command.
func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "findetw <provider-guid> <search-path>",
		Short: "在PE文件中查找ETW提供程序GUID的引用",
		Long: `在单个PE文件或目录树（.dll/.exe/.sys）中搜索ETW提供程序GUID，
报告每处引用的文件偏移、RVA及所在节区。`,
		Example:       `  findetw "{f4e1897c-bb5d-5668-f1d8-040f4d8dd344}" C:\Windows\System32`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runFind(ctx, cmd, flags, args[0], args[1])
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

func newLogger(cmd *cobra.Command, verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(cmd.ErrOrStderr())
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	log.SetLevel(logrus.InfoLevel)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

func runFind(ctx context.Context, cmd *cobra.Command, flags *rootFlags, guidText, root string) error {
	log := newLogger(cmd, flags.verbose)

	raw, err := guid.Parse(guidText)
	if err != nil {
		return err
	}
	pattern, err := search.New(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", guid.ErrInvalidPattern, err)
	}
	if flags.workers < 1 {
		return fmt.Errorf("并发数必须大于0: %d", flags.workers)
	}

	display := guid.String(raw)
	reporter := cli.NewReporter(cmd.OutOrStdout(), display)
	reporter.SetVerbose(flags.verbose)
	reporter.SetNoColor(flags.noColor || color.NoColor)

	opts := flags.options(log)
	if !flags.json {
		opts.OnStart = reporter.PrintStart
		opts.OnResult = reporter.PrintResult
	}

	summary, err := scan.Run(ctx, root, pattern, opts)
	if err != nil {
		if errors.Is(err, scan.ErrPathNotFound) {
			log.WithField("path", root).Debug("搜索路径不存在")
		}
		return err
	}

	if flags.json {
		return cli.WriteJSON(cmd.OutOrStdout(), display, summary)
	}
	reporter.PrintSummary(summary)
	return nil
}
