package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/getbunnyd/bunnyd/pkg/broker"
	"github.com/getbunnyd/bunnyd/pkg/config"
	"github.com/getbunnyd/bunnyd/pkg/consume"
	"github.com/getbunnyd/bunnyd/pkg/identity"
	"github.com/getbunnyd/bunnyd/pkg/lifecycle"
	"github.com/getbunnyd/bunnyd/pkg/logging"
	"github.com/getbunnyd/bunnyd/pkg/metrics"
	"github.com/getbunnyd/bunnyd/pkg/parser"
	"github.com/getbunnyd/bunnyd/pkg/publish"
	"github.com/getbunnyd/bunnyd/pkg/server"
	"github.com/getbunnyd/bunnyd/pkg/subscribe"
)

// errBrokerLost signals the non-zero exit path after an unexpected broker close.
var errBrokerLost = errors.New("broker connection lost")

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the proxy (default command)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config (overrides BUNNYD_CONFIG_FILE)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}
	log := logging.FromSettings(settings.LogLevel, settings.LogPretty)

	if configPath == "" {
		configPath = settings.ConfigFile
	}
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return err
	}

	pane, err := broker.Dial(settings.ConnectionString, log.With("component", "broker"))
	if err != nil {
		return err
	}

	if err := assertQueues(pane, cfg); err != nil {
		_ = pane.Close()
		return err
	}

	store := identity.NewStore(cfg.Identities)
	registry := metrics.NewRegistry()
	set := metrics.NewSet(registry)

	publishers := make([]*publish.Publisher, 0, len(cfg.Publishers))
	for _, pubCfg := range cfg.Publishers {
		p, err := parser.New(pubCfg.ContentType, pubCfg.Schema)
		if err != nil {
			_ = pane.Close()
			return fmt.Errorf("publisher %q: %w", pubCfg.Queue, err)
		}
		guard := identity.NewGuard(store, pubCfg.Identities)
		publishers = append(publishers, publish.New(pubCfg, p, guard, pane, log.With("component", "publisher"), set))
	}

	consumers := make([]*consume.Consumer, 0, len(cfg.Consumers))
	for _, conCfg := range cfg.Consumers {
		guard := identity.NewGuard(store, conCfg.Identities)
		consumers = append(consumers, consume.New(conCfg, guard, pane, log.With("component", "consumer"), set))
	}

	subscribers := make([]*subscribe.Subscriber, 0, len(cfg.Subscribers))
	for _, subCfg := range cfg.Subscribers {
		p, err := parser.New(subCfg.ContentType, nil)
		if err != nil {
			_ = pane.Close()
			return fmt.Errorf("subscriber %q: %w", subCfg.Queue, err)
		}
		subscribers = append(subscribers, subscribe.New(subCfg, p, pane, log.With("component", "subscriber"), set))
	}

	var coord *lifecycle.Coordinator
	srv := server.New(server.Options{
		Port:       settings.Port,
		Publishers: publishers,
		Consumers:  consumers,
		Registry:   registry,
		ShuttingDown: func() bool {
			return coord != nil && coord.ShuttingDown()
		},
		Log: log.With("component", "http"),
	})

	subViews := make([]lifecycle.Subscription, len(subscribers))
	for i, sub := range subscribers {
		subViews[i] = sub
	}
	pubViews := make([]lifecycle.InFlightView, len(publishers))
	for i, pub := range publishers {
		pubViews[i] = pub
	}
	coord = lifecycle.New(subViews, pubViews, pane, srv.Shutdown, log.With("component", "lifecycle"))

	for _, sub := range subscribers {
		if err := sub.Start(); err != nil {
			_ = pane.Close()
			return err
		}
	}

	if err := srv.Start(); err != nil {
		_ = pane.Close()
		return err
	}

	log.Info("bunnyd started",
		"port", settings.Port,
		"publishers", len(publishers),
		"consumers", len(consumers),
		"subscribers", len(subscribers),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if code := coord.Run(ctx); code != 0 {
		return errBrokerLost
	}
	return nil
}

// assertQueues passively asserts every queue referenced by any section.
func assertQueues(pane *broker.Pane, cfg *config.Config) error {
	seen := make(map[string]struct{})
	for _, p := range cfg.Publishers {
		seen[p.Queue] = struct{}{}
	}
	for _, c := range cfg.Consumers {
		seen[c.Queue] = struct{}{}
	}
	for _, s := range cfg.Subscribers {
		seen[s.Queue] = struct{}{}
	}

	queues := make([]string, 0, len(seen))
	for q := range seen {
		queues = append(queues, q)
	}
	sort.Strings(queues)

	for _, q := range queues {
		if err := pane.AssertQueue(q); err != nil {
			return err
		}
	}
	return nil
}
