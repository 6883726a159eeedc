package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/localrivet/dialoguesum"
)

// shutdownTimeout bounds how long in-flight requests may run after a signal.
const shutdownTimeout = 30 * time.Second

// httpFrontEnd is implemented by the API and UI servers.
type httpFrontEnd interface {
	Start() error
	Stop(ctx context.Context) error
}

type frontEndFactory func(*dialoguesum.Server) (httpFrontEnd, error)

func apiFrontEnd(s *dialoguesum.Server) (httpFrontEnd, error) { return s.APIServer() }
func uiFrontEnd(s *dialoguesum.Server) (httpFrontEnd, error) { return s.UIServer() }

// NewAPICommand creates the api command.
func NewAPICommand(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "api",
		Short: "Serve the JSON summarization API",
		Long: `Serve the JSON API. POST /summarize/ with {"dialogue": "..."} returns
{"summary": "..."}. The listen address is server.api_addr (default :8000).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFrontEnds(cmd.Context(), opts, apiFrontEnd)
		},
	}
}

// NewUICommand creates the ui command.
func NewUICommand(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "Serve the interactive summarization page",
		Long:  `Serve the web form. The listen address is server.ui_addr (default :8501).`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFrontEnds(cmd.Context(), opts, uiFrontEnd)
		},
	}
}

// NewServeCommand creates the serve command, which runs both HTTP front ends
// over one loaded model.
func NewServeCommand(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API and the interactive page together",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFrontEnds(cmd.Context(), opts, apiFrontEnd, uiFrontEnd)
		},
	}
}

// runFrontEnds loads the model, starts every front end and shuts them down
// gracefully on SIGINT or SIGTERM.
func runFrontEnds(parent context.Context, opts *GlobalOptions, factories ...frontEndFactory) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer env.close()

	if err := env.server.Initialize(ctx); err != nil {
		return err
	}

	frontEnds := make([]httpFrontEnd, 0, len(factories))
	for _, factory := range factories {
		fe, err := factory(env.server)
		if err != nil {
			return err
		}
		frontEnds = append(frontEnds, fe)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, fe := range frontEnds {
		g.Go(func() error {
			if err := fe.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		env.log.Info("Shutting down, waiting for in-flight requests", "timeout", shutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		for _, fe := range frontEnds {
			errs = append(errs, fe.Stop(shutdownCtx))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
