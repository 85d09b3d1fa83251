// Command fakevm serves a scripted VM over JDWP for trying out debuggers.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mini-jdi/config"
	"mini-jdi/middleware"
	"mini-jdi/registry"
	"mini-jdi/server"
)

type options struct {
	configPath string
	listen     string
	advertise  string
	register   bool
	app        string
	jdwp       string
	hitEvery   time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:   "fakevm",
		Short: "Serve a scripted VM over JDWP",
		Long: "Serve a scripted VM over JDWP.\n" +
			"\n" +
			"The VM has a few sample classes loaded, one of them with a JSP source map.\n" +
			"With --register it advertises itself in the etcd registry under --app.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd.Context())
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&o.configPath, "config", "fakevm.toml", "configuration file")
	flags.StringVar(&o.listen, "listen", "127.0.0.1:5005", "address to accept debuggers on")
	flags.StringVar(&o.advertise, "advertise", "", "address debuggers should dial (default: the listen address)")
	flags.BoolVar(&o.register, "register", false, "register in the etcd registry")
	flags.StringVar(&o.app, "app", "", "application name to register under (default: target.app)")
	flags.StringVar(&o.jdwp, "jdwp", "1.8", "JDWP version to report")
	flags.DurationVar(&o.hitEvery, "hit-every", 0, "report a hit of every breakpoint at this interval")
	return cmd
}

func (o *options) run(ctx context.Context) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	logger, err := cfg.Log.Logger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	v, err := semver.NewVersion(o.jdwp)
	if err != nil {
		return fmt.Errorf("--jdwp: %w", err)
	}
	version := server.DefaultVersion
	version.JDWPMajor, version.JDWPMinor = int32(v.Major()), int32(v.Minor())

	app := o.app
	if app == "" {
		app = cfg.Target.App
	}
	svr := server.NewServer(
		server.WithLogger(logger),
		server.WithApp(app),
		server.WithVersion(version))
	svr.Use(middleware.LoggingMiddleware(logger))
	for _, c := range server.SampleClasses() {
		svr.AddClass(c)
	}

	var reg registry.Registry
	if o.register {
		etcd, err := cfg.Registry.Open(logger)
		if err != nil {
			return err
		}
		defer etcd.Close()
		reg = etcd
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- svr.ListenAndServe("tcp", o.listen, o.advertise, reg)
	}()
	if o.hitEvery > 0 {
		go hitBreakpoints(ctx, svr, o.hitEvery, logger)
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	err = svr.Shutdown(5 * time.Second)
	if serveErr := <-errCh; !errors.Is(serveErr, server.ErrServerClosed) {
		logger.Warn("serve ended", zap.Error(serveErr))
	}
	return err
}

// hitBreakpoints pretends thread 1 runs through every breakpoint location.
func hitBreakpoints(ctx context.Context, svr *server.Server, every time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		seen := make(map[server.Location]bool)
		for _, bp := range svr.Breakpoints() {
			if seen[bp.Location] {
				continue
			}
			seen[bp.Location] = true
			if err := svr.HitBreakpoint(1, bp.Location); err != nil {
				logger.Warn("reporting breakpoint hit", zap.Error(err))
			}
		}
	}
}
