package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var serveShutdownTimeout time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Listen for Todoist webhooks and rescore tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := newContainer(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		errCh := make(chan error, 1)
		go func() {
			errCh <- c.Server.Start()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serveShutdownTimeout)
		defer cancel()

		if err := c.Server.Shutdown(shutdownCtx); err != nil {
			getLogger().Error("server shutdown failed", "error", err)
		}
		// Admitted runs are never cancelled; wait for them.
		if err := c.Debouncer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		getLogger().Info("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().DurationVar(&serveShutdownTimeout, "shutdown-timeout", 30*time.Second, "how long to wait for pending runs on shutdown")
	rootCmd.AddCommand(serveCmd)
}
