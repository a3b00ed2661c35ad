package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	apiconfig "creditiq/pkg/api/config"
	"creditiq/pkg/api/runs"
	"creditiq/pkg/core/logging"

	"github.com/spf13/cobra"
)

func newServeCmd(c *cli) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the runs API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.app(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			mux := http.NewServeMux()
			runs.NewHandler(a.orch, a.files, a.edgar, logging.New("api")).Routes(mux)
			apiconfig.NewHandler(a.agents).Routes(mux)
			mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
			errc := make(chan error, 1)
			go func() { errc <- srv.ListenAndServe() }()
			a.log.WithField("addr", addr).Info("server listening")

			select {
			case err := <-errc:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
				shutdown, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				a.log.Info("shutting down")
				return srv.Shutdown(shutdown)
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}
