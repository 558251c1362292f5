// Package cli wires configuration, the graph store, and a dispatcher into
// the hulld command tree.
package cli

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"hulld/config"
	"hulld/graph"
	"hulld/out"
	"hulld/server"
)

// Execute runs the hulld command tree.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "hulld",
		Short:        "shared convex hull graph service",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newLocalCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "listen for TCP clients on the configured address",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			logger := newLogger()
			srv := server.New(cfg, newStore(cfg, logger), logger)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sig
				logger.Debugf("shutting down")
				srv.Close()
			}()

			logger.Debugf("listening on %s (%s dispatcher, %s policy)", cfg.Addr, cfg.Mode, cfg.Policy)
			return srv.ListenAndServe()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to a YAML config file")
	return cmd
}

func newLocalCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "local",
		Short: "run the command grammar against stdin and stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			return RunLocal(cmd.InOrStdin(), cmd.OutOrStdout(), cfg, newLogger())
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to a YAML config file")
	return cmd
}

func newLogger() *out.Logger {
	return out.NewLogger(log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile))
}

// newStore builds the shared store with the optional area watch attached.
func newStore(cfg config.Config, logger *out.Logger) *graph.Store {
	store := graph.NewStore()
	if cfg.AreaThreshold > 0 {
		watch := graph.NewAreaWatch(cfg.AreaThreshold, logger.Debugf)
		store.OnHullArea(watch.Observe)
	}
	return store
}
