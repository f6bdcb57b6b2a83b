package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harvestnet/reharvest/internal/api"
	"github.com/harvestnet/reharvest/internal/daemon"
	"github.com/harvestnet/reharvest/internal/harvester"
)

func init() {
	rootCmd.AddCommand(harvestCmd)
	rootCmd.AddCommand(validateCmd)

	harvestCmd.Flags().StringP("urls", "u", "", "override the configured URL list path")
}

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Start a re-harvest run",
	Long:  `Load the configured URL list and run the scheduler until interrupted.`,
	RunE:  runHarvest,
}

func runHarvest(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.Load(configPath)
	if err != nil {
		return err
	}

	if override, _ := cmd.Flags().GetString("urls"); override != "" {
		cfg.General.URLListPath = override
	}

	urls, err := harvester.LoadURLs(cfg.General.URLListPath)
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return fmt.Errorf("no URLs found in %s", cfg.General.URLListPath)
	}

	h, err := harvester.New(cfg)
	if err != nil {
		return err
	}
	defer h.Close()

	h.Start(urls)
	slog.Info("harvest starting", "urls", len(urls), "strategy", cfg.Strategy.Selector)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.API.Port > 0 {
		srv := api.NewServer(h, h.History())
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		go func() {
			slog.Info("admin API listening", "addr", addr)
			if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
				slog.Error("admin API stopped", "error", err)
			}
		}()
	}

	h.Run(ctx)
	slog.Info("harvest stopped")
	return nil
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and URL list without starting a harvest",
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.Load(configPath)
	if err != nil {
		return err
	}
	urls, err := harvester.LoadURLs(cfg.General.URLListPath)
	if err != nil {
		return err
	}
	fmt.Printf("config OK: strategy=%s target=%.2f default_delay=%s\n",
		cfg.Strategy.Selector, cfg.General.Target, cfg.General.DefaultDelay)
	fmt.Printf("url list OK: %d URLs\n", len(urls))
	return nil
}
