// File: cmd/record.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/darkfathom/scribe-cli/internal/dom"
	"github.com/darkfathom/scribe-cli/internal/driver"
	"github.com/darkfathom/scribe-cli/internal/locator"
	"github.com/darkfathom/scribe-cli/internal/observability"
	"github.com/darkfathom/scribe-cli/internal/recorder"
	"github.com/darkfathom/scribe-cli/internal/sink"
)

// newRecordCmd creates the `record` command: load a page, arm the recorder,
// pump interaction commands, stream actions out.
func newRecordCmd() *cobra.Command {
	recordCmd := &cobra.Command{
		Use:   "record <page.html>",
		Short: "Record interactions against a page as replayable actions",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Flags override file and environment values.
			if err := viper.BindPFlag("mirror.websocket_url", cmd.Flags().Lookup("mirror")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			logger := observability.GetLogger()

			output := viper.GetString("output")
			script := viper.GetString("script")
			if url, _ := cmd.Flags().GetString("mirror"); url != "" {
				cfg.Mirror.Enabled = true
				cfg.Mirror.WebSocketURL = url
			}

			page, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open page: %w", err)
			}
			viewport := dom.Rect{
				Width:  cfg.Document.ViewportWidth,
				Height: cfg.Document.ViewportHeight,
			}
			doc, err := dom.Parse(page, viewport, logger)
			page.Close()
			if err != nil {
				return err
			}

			out, closeOut, err := openOutput(output)
			if err != nil {
				return err
			}
			defer closeOut()

			res := locator.NewResolver(doc, logger)
			sinks := []sink.Sink{
				sink.NewStream(out, logger),
				sink.NewLoopback(doc, res, logger),
			}
			if cfg.Mirror.Enabled {
				m, err := sink.NewMirror(ctx, cfg.Mirror.WebSocketURL, cfg.Mirror.ActionTimeout, logger)
				if err != nil {
					return err
				}
				defer m.Close()
				sinks = append(sinks, m)
			}

			rec := recorder.New(doc, res, sink.NewChain(sinks...), recorder.Options{
				ThrottleWindow:        cfg.Recorder.ThrottleWindow,
				RearmInterval:         cfg.Recorder.RearmInterval,
				ScrollRedrawPerSecond: cfg.Recorder.ScrollRedrawPerSecond,
			}, logger)

			in, closeIn, err := openScript(script)
			if err != nil {
				return err
			}
			defer closeIn()

			logger.Info("Recording session started",
				zap.String("session", rec.SessionID()), zap.String("page", args[0]))

			runCtx, cancel := context.WithCancel(ctx)
			g, gctx := errgroup.WithContext(runCtx)
			g.Go(func() error {
				return rec.Run(gctx)
			})
			g.Go(func() error {
				defer cancel() // end of script ends the session
				return driver.New(doc, logger).Pump(in)
			})
			err = g.Wait()
			logger.Info("Recording session finished", zap.String("session", rec.SessionID()))
			return err
		},
	}

	recordCmd.Flags().String("output", "-", "action stream destination, '-' for stdout")
	recordCmd.Flags().String("script", "-", "interaction command source, '-' for stdin")
	recordCmd.Flags().String("mirror", "", "DevTools websocket URL of a browser tab to mirror actions into")
	return recordCmd
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open output: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func openScript(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open script: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func init() {
	rootCmd.AddCommand(newRecordCmd())
}
