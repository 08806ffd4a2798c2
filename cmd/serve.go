package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/efl/internal/api"
	"github.com/sells-group/efl/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve optimizations and run history over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		opt, err := newOptimizer("")
		if err != nil {
			return err
		}

		var st store.Store
		if noStore, _ := cmd.Flags().GetBool("no-store"); !noStore {
			if st, err = store.Open(ctx, cfg.Store); err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
		} else {
			zap.L().Info("serve: run history disabled")
		}

		return api.NewServer(cfg.Server, cfg.Model, opt, st).ListenAndServe(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().Bool("no-store", false, "serve without run history")
	rootCmd.AddCommand(serveCmd)
}
