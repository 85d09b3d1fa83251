package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mini-jdi/client"
	"mini-jdi/config"
	"mini-jdi/jdi"
	"mini-jdi/loadbalance"
)

type rootOptions struct {
	configPath string
	addr       string
	app        string
	balancer   string
	stickyKey  string
	stratum    string
	json       bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "jdictl",
		Short: "Inspect a running VM over JDWP",
		Long: "Inspect a running VM over JDWP.\n" +
			"\n" +
			"jdictl attaches to --addr, or picks an instance of --app from the etcd registry\n" +
			"when no address is given. Flags override the configuration file.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.load(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if o.logger != nil {
				_ = o.logger.Sync()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&o.configPath, "config", "jdictl.toml", "configuration file")
	flags.StringVar(&o.addr, "addr", "", "JDWP address of the VM (host:port)")
	flags.StringVar(&o.app, "app", "", "application name to discover in the registry")
	flags.StringVar(&o.balancer, "balancer", "", "instance selection: roundrobin, weighted or sticky")
	flags.StringVar(&o.stickyKey, "sticky-key", "", "key that pins the sticky balancer to one instance")
	flags.StringVar(&o.stratum, "stratum", "", "stratum for line and source queries (default: the VM's)")
	flags.BoolVar(&o.json, "json", false, "print JSON instead of text")

	cmd.AddCommand(
		newVersionCmd(o),
		newClassesCmd(o),
		newLinesCmd(o),
		newLinkCmd(o),
		newEventsCmd(o),
		newDiscoverCmd(o),
	)
	return cmd
}

// load reads the configuration file and applies the flags the user set.
func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Target.Addr = o.addr
	}
	if flags.Changed("app") {
		cfg.Target.App = o.app
	}
	if flags.Changed("balancer") {
		cfg.Target.Balancer = o.balancer
	}
	if flags.Changed("sticky-key") {
		cfg.Target.StickyKey = o.stickyKey
	}
	if flags.Changed("stratum") {
		cfg.Session.DefaultStratum = o.stratum
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := cfg.Log.Logger()
	if err != nil {
		return err
	}
	o.cfg, o.logger = cfg, logger
	return nil
}

func (o *rootOptions) timeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := time.Duration(o.cfg.Session.Timeout); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// attach opens a session to the configured target. Close the session when done.
func (o *rootOptions) attach(ctx context.Context) (*jdi.Session, error) {
	opts := o.cfg.Session.Options(o.logger)
	if o.cfg.Target.Addr != "" {
		return jdi.Attach(ctx, o.cfg.Target.Addr, opts...)
	}

	reg, err := o.cfg.Registry.Open(o.logger)
	if err != nil {
		return nil, err
	}
	defer reg.Close()
	bal, err := loadbalance.New(o.cfg.Target.Balancer, o.cfg.Target.StickyKey)
	if err != nil {
		return nil, err
	}
	constraint, err := o.cfg.Target.VersionConstraint()
	if err != nil {
		return nil, err
	}
	c := client.NewClient(reg, bal,
		client.WithLogger(o.logger),
		client.WithVersionConstraint(constraint),
		client.WithSessionOptions(opts...))
	defer c.Close()
	return c.Attach(ctx, o.cfg.Target.App)
}

// print writes v as JSON with --json, otherwise calls text.
func (o *rootOptions) print(w io.Writer, v any, text func(io.Writer)) error {
	if !o.json {
		text(w)
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// location is the printable form of a jdi.Location.
type location struct {
	Type   string `json:"type"`
	Method string `json:"method"`
	Index  uint64 `json:"index"`
	Line   int    `json:"line"`
	Source string `json:"source,omitempty"`
	Path   string `json:"path,omitempty"`
}

func describe(loc *jdi.Location, stratum string) location {
	out := location{Index: loc.CodeIndex(), Line: loc.LineNumberStratum(stratum)}
	if name, err := loc.DeclaringType().Name(); err == nil {
		out.Type = name
	}
	if name, err := loc.Method().Name(); err == nil {
		out.Method = name
	}
	if src, err := loc.SourceNameStratum(stratum); err == nil {
		out.Source = src
	}
	if path, err := loc.SourcePathStratum(stratum); err == nil {
		out.Path = path
	}
	return out
}

func (l location) String() string {
	src := l.Source
	if src == "" {
		src = "<unknown>"
	}
	return fmt.Sprintf("%s.%s %s:%d (index %d)", l.Type, l.Method, src, l.Line, l.Index)
}
