package main

import (
	"log"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dig-network/digproxy/internal/config"
	applog "github.com/dig-network/digproxy/internal/log"
	"github.com/dig-network/digproxy/internal/oracle"
	"github.com/dig-network/digproxy/internal/promserver"
	"github.com/dig-network/digproxy/internal/proxy"
	"github.com/dig-network/digproxy/internal/registry"
	"github.com/dig-network/digproxy/internal/resolver"
	"github.com/dig-network/digproxy/internal/selector"
	"github.com/dig-network/digproxy/internal/server"
	"github.com/dig-network/digproxy/internal/stop"
)

func main() {
	var configFilePath string
	var cpuProfilePath string

	rootCmd := &cobra.Command{
		Use:   "digproxy",
		Short: "DIG Network content-routing reverse proxy",
		Long:  "Resolves Universal Data Identifiers and proxies requests to a validated DIG Network peer",
		Run: func(cmd *cobra.Command, args []string) {
			if err := run(configFilePath, cpuProfilePath); err != nil {
				log.Fatal(err)
			}
		},
	}

	rootCmd.Flags().StringVar(&configFilePath, "config", "", "location of configuration file")
	rootCmd.Flags().StringVar(&cpuProfilePath, "cpuprofile", "", "location to save a CPU profile")

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run(configFilePath, cpuProfilePath string) error {
	if cpuProfilePath != "" {
		log.Println("enabled CPU profiling to " + cpuProfilePath)
		f, err := os.Create(cpuProfilePath)
		if err != nil {
			return err
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	cfg, err := config.OpenFile(configFilePath)
	if err != nil {
		log.Fatal("failed to load config: " + err.Error())
	}
	config.ApplyEnv(cfg, os.Getenv)

	chain := oracle.NewHTTPChainClient(cfg.ChainBaseURL, nil)
	probe := oracle.NewHTTPHeadProbe(nil)

	reg := registry.New(cfg.Registry, chain, chain)
	defer reg.Close()

	res := resolver.New(cfg.Resolver, chain)
	sel := selector.New(cfg.Selector, reg, probe, 1)
	px := proxy.New(reg, nil)

	srv := server.New(server.Config{
		Addr:         cfg.Addr,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}, reg, res, sel, px)

	promSrv := promserver.New(cfg.PrometheusAddr)

	stopGroup := stop.NewGroup()
	stopGroup.AddFunc(srv.Stop)
	stopGroup.AddFunc(promSrv.Stop)

	srv.Start()
	promSrv.Start()
	applog.Info("digproxy: started", applog.Fields{"addr": cfg.Addr, "prometheus_addr": cfg.PrometheusAddr})

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	applog.Info("digproxy: shutting down", applog.Fields{})
	if errs := stopGroup.Stop(); len(errs) > 0 {
		for _, e := range errs {
			applog.Error("digproxy: shutdown error", applog.Fields{"error": e.Error()})
		}
	}

	return nil
}
