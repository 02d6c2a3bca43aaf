package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"risubot/config"
	"risubot/framework"
	"risubot/resolver"
)

// Build flags
var version = ""
var commit = ""
var date = ""

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cmd := newCommand(cfg)
	if err := cmd.ParseAndRun(ctx, os.Args[1:]); err != nil && !errors.Is(err, flag.ErrHelp) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand(cfg *config.Config) *ffcli.Command {
	fs := flag.NewFlagSet("risubot", flag.ExitOnError)

	return &ffcli.Command{
		ShortUsage: "risubot [flags] <subcommand>",
		FlagSet:    fs,
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
		Subcommands: []*ffcli.Command{
			newVersionCommand(),
			newRunCommand(cfg),
			newResolveCommand(cfg),
		},
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}

func newVersionCommand() *ffcli.Command {
	return &ffcli.Command{
		Name:       "version",
		ShortUsage: "risubot version",
		ShortHelp:  "print version",
		Exec: func(ctx context.Context, args []string) error {
			v := version
			if v == "" {
				if buildInfo, ok := debug.ReadBuildInfo(); ok {
					v = buildInfo.Main.Version
				}
			}
			if v == "" {
				v = "dev"
			}
			versionFields := []string{v}
			if commit != "" {
				versionFields = append(versionFields, commit)
			}
			if date != "" {
				versionFields = append(versionFields, date)
			}
			fmt.Println(strings.Join(versionFields, " "))
			return nil
		},
	}
}

func newRunCommand(cfg *config.Config) *ffcli.Command {
	cmd := "run"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	// Flags start from the environment so they only override what is set.
	fs.StringVar(&cfg.Prefix, "prefix", cfg.Prefix, "command prefix")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.YTDLPPath, "ytdlp", cfg.YTDLPPath, "yt-dlp binary")
	fs.StringVar(&cfg.FFmpegPath, "ffmpeg", cfg.FFmpegPath, "ffmpeg binary")
	fs.DurationVar(&cfg.DispatchTimeout, "dispatch-timeout", cfg.DispatchTimeout, "max wait to hand a completion to the player")
	fs.IntVar(&cfg.MaxStartFailures, "max-start-failures", cfg.MaxStartFailures, "consecutive tracks that may fail to start")
	fs.DurationVar(&cfg.ResolveTimeout, "resolve-timeout", cfg.ResolveTimeout, "timeout for a single lookup")
	fs.Float64Var(&cfg.ResolveRate, "resolve-rate", cfg.ResolveRate, "lookups per second")
	fs.Float64Var(&cfg.NoticeRate, "notice-rate", cfg.NoticeRate, "messages per second")
	fs.IntVar(&cfg.NoticeBuffer, "notice-buffer", cfg.NoticeBuffer, "pending messages before dropping")
	fs.IntVar(&cfg.QueueDisplay, "queue-display", cfg.QueueDisplay, "queue entries shown by the queue command")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("risubot %s [flags]", cmd),
		Options: []ff.Option{
			ff.WithConfigFileFlag("config"),
			ff.WithConfigFileParser(ff.PlainParser),
		},
		ShortHelp: "connect to Discord and play music",
		FlagSet:   fs,
		Exec: func(ctx context.Context, args []string) error {
			logger := newLogger(cfg.LogLevel)
			bot, err := framework.New(cfg, logger)
			if err != nil {
				return err
			}
			return bot.Run(ctx)
		},
	}
}

func newResolveCommand(cfg *config.Config) *ffcli.Command {
	cmd := "resolve"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.StringVar(&cfg.YTDLPPath, "ytdlp", cfg.YTDLPPath, "yt-dlp binary")
	fs.DurationVar(&cfg.ResolveTimeout, "timeout", cfg.ResolveTimeout, "lookup timeout")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("risubot %s [flags] <URL or search query>", cmd),
		ShortHelp:  "print the stream a query resolves to",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			query := strings.Join(args, " ")
			if query == "" {
				return flag.ErrHelp
			}
			ctx, cancel := context.WithTimeout(ctx, cfg.ResolveTimeout)
			defer cancel()

			chain := resolver.Default(cfg.YTDLPPath, rate.Inf, newLogger(cfg.LogLevel))
			res, err := chain.Resolve(ctx, query)
			if err != nil {
				return err
			}
			fmt.Printf("title:    %s\n", res.Title)
			if res.Uploader != "" {
				fmt.Printf("uploader: %s\n", res.Uploader)
			}
			if res.Duration > 0 {
				fmt.Printf("duration: %s\n", res.Duration)
			}
			if res.Page != "" {
				fmt.Printf("page:     %s\n", res.Page)
			}
			fmt.Printf("stream:   %s\n", res.URL)
			return nil
		},
	}
}
