package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

type app struct {
	di   *dependencyInjector
	root *cobra.Command
	errw io.Writer
}

func New() *app {
	return newApp(os.Stdout, os.Stderr)
}

func newApp(out, errw io.Writer) *app {
	a := &app{di: newDI(out), errw: errw}
	a.root = a.rootCmd(out)
	return a
}

func (a *app) Run(ctx context.Context) error {
	if err := a.root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(a.errw, "Error: %s\n", err)
		return err
	}
	return nil
}

func (a *app) rootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "pdftrack",
		Short: "Upload PDFs to a conversion server and follow the job",
		Long: `pdftrack submits a PDF to the conversion server, polls the job every
few seconds and shows its progress until the artifact is ready.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.di.Logger()
		},
	}
	root.SetOut(out)
	root.SetErr(a.errw)

	root.PersistentFlags().StringVarP(&a.di.cfgPath, "config", "c", os.Getenv("PDFTRACK_CONFIG"), "path to a YAML config file")
	root.PersistentFlags().StringVar(&a.di.serverURL, "server", "", "conversion server base URL")

	root.AddCommand(
		a.uploadCmd(),
		a.watchCmd(),
		a.statusCmd(),
		a.healthCmd(),
		a.screenCmd(),
		a.artifactsCmd(),
		versionCmd(),
	)

	return root
}

type runFunc func(ctx context.Context, cmd *cobra.Command, args []string) error

// withRuntime serves metrics while fn runs and releases every connection
// afterwards.
func (a *app) withRuntime(fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		stopMetrics := a.serveMetrics()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(
				context.Background(),
				a.di.Config().ShutdownTimeout,
			)
			defer cancel()

			stopMetrics(shutdownCtx)
			if err := a.di.Close(shutdownCtx); err != nil {
				slog.Error("release resources", slog.String("error", err.Error()))
			}
		}()

		return fn(ctx, cmd, args)
	}
}

func (a *app) serveMetrics() func(context.Context) {
	addr := a.di.Config().MetricsAddr
	if addr == "" {
		return func(context.Context) {}
	}

	reg := a.di.Registry()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("serving metrics", slog.String("addr", addr))
		if e := srv.ListenAndServe(); e != nil && !errors.Is(e, http.ErrServerClosed) {
			slog.Error("metrics server error", slog.String("error", e.Error()))
		}
	}()

	return func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("metrics server shutdown error", slog.String("error", err.Error()))
			return
		}
		slog.Debug("metrics server stopped")
	}
}
