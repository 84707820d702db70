package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/thrive-launcher/launcher/internal/catalog"
	"github.com/thrive-launcher/launcher/internal/launch"
	"github.com/thrive-launcher/launcher/internal/pipeline"
	"github.com/thrive-launcher/launcher/internal/release"
)

func newPlayCmd(a *app) *cobra.Command {
	var versionID string

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Install (if needed) and start a release",
		Long: "Play resolves the recommended stable version, or the one given with\n" +
			"--version, downloads and verifies it when it is not installed yet, and\n" +
			"starts the game. Ctrl-C cancels a running download.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd, a, pipeline.Request{VersionID: versionID})
		},
	}

	cmd.Flags().StringVar(&versionID, "version", "", "version id to play (default: recommended stable)")
	return cmd
}

func newOrchestrator(a *app) *pipeline.Orchestrator {
	s := a.settings
	return pipeline.New(pipeline.Options{
		Catalog:  pipeline.LoaderCatalog{Loader: a.loader(), Source: s.Manifest},
		Platform: catalog.PlatformOf(a.platform),
		Layout:   a.layout(),
		Downloader: release.NewDownloader(release.DownloaderOptions{
			Timeout:   s.Download.Timeout,
			Retries:   s.Download.Retries,
			UserAgent: s.Download.UserAgent,
			Logger:    a.logger,
		}),
		Verifier:     release.NewVerifier(),
		Cache:        a.cache(),
		Locator:      release.NewLocator(s.Executable, s.BinDir, a.platform.OS),
		ContentTypes: s.Download.ContentTypes,
		Launch:       launch.Start,
		LogLines:     s.LogLines,
		Logger:       a.logger,
	})
}

func runPlay(cmd *cobra.Command, a *app, req pipeline.Request) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	sigCtx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	o := newOrchestrator(a)
	attempt, err := o.Start(context.Background(), req)
	if err != nil {
		return err
	}

	go func() {
		select {
		case <-sigCtx.Done():
			if o.Cancel() {
				a.logger.Info("download canceled by user")
			}
		case <-attempt.Done():
		}
	}()

	r := newRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr())
loop:
	for {
		select {
		case ev := <-o.Events():
			r.render(ev)
		case <-attempt.Done():
			break loop
		}
	}
	// Events sent before Done may still be buffered.
	for drained := false; !drained; {
		select {
		case ev := <-o.Events():
			r.render(ev)
		default:
			drained = true
		}
	}
	r.finishProgress()

	state, failure := attempt.Wait()
	switch {
	case failure != nil && failure.Canceled():
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), color.YellowString(failure.Message()))
		return &exitCodeError{Code: 130}
	case failure != nil:
		return fmt.Errorf("%s (%w)", failure.Message(), failure.Err)
	case state == pipeline.StateFinished:
		if code, ok := o.Session().ExitCode(); ok && code != 0 {
			return &exitCodeError{Code: code}
		}
	}
	return nil
}

// renderer prints pipeline events for a terminal.
type renderer struct {
	out, errOut io.Writer
	tty         bool
	inProgress  bool
}

func newRenderer(out, errOut io.Writer) *renderer {
	return &renderer{out: out, errOut: errOut, tty: isTerminalOutput(out)}
}

func (r *renderer) render(ev pipeline.Event) {
	switch e := ev.(type) {
	case pipeline.StateChanged:
		r.finishProgress()
		if label := stateLabel(e.To); label != "" {
			_, _ = fmt.Fprintln(r.out, color.CyanString(label))
		}
	case pipeline.DownloadProgress:
		if !r.tty {
			return
		}
		r.inProgress = true
		if e.Total < 0 {
			_, _ = fmt.Fprintf(r.out, "\r  %s received", humanBytes(e.Received))
		} else {
			_, _ = fmt.Fprintf(r.out, "\r  %5.1f%% of %s", e.Fraction()*100, humanBytes(e.Total))
		}
	case pipeline.VerifyProgress:
		if !r.tty {
			return
		}
		r.inProgress = true
		_, _ = fmt.Fprintf(r.out, "\r  %5.1f%%", e.Percent)
	case pipeline.OutputLine:
		r.finishProgress()
		if e.Line.Stream == launch.StreamStderr {
			_, _ = fmt.Fprintln(r.errOut, color.RedString(e.Line.Text))
			return
		}
		_, _ = fmt.Fprintln(r.out, e.Line.Text)
	case pipeline.Exited:
		r.finishProgress()
	}
}

func (r *renderer) finishProgress() {
	if r.inProgress {
		_, _ = fmt.Fprintln(r.out)
		r.inProgress = false
	}
}

func stateLabel(s pipeline.State) string {
	switch s {
	case pipeline.StateResolving:
		return "Resolving version..."
	case pipeline.StateDownloading:
		return "Downloading..."
	case pipeline.StateVerifying:
		return "Verifying download..."
	case pipeline.StateInstalling:
		return "Extracting..."
	case pipeline.StateLocating:
		return "Locating executable..."
	case pipeline.StateLaunching:
		return "Starting game..."
	default:
		return ""
	}
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
