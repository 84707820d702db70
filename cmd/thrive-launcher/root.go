package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thrive-launcher/launcher/internal/catalog"
	"github.com/thrive-launcher/launcher/internal/config"
	"github.com/thrive-launcher/launcher/internal/logging"
	"github.com/thrive-launcher/launcher/internal/platform"
	"github.com/thrive-launcher/launcher/internal/release"
)

// app holds what every subcommand needs, built once per invocation.
type app struct {
	paths    config.Paths
	settings *config.Settings
	logger   logging.Logger
	platform *platform.Info
	closers  []io.Closer
}

func (a *app) Close() {
	for _, c := range a.closers {
		_ = c.Close()
	}
}

func (a *app) layout() release.Layout {
	return release.Layout{DataDir: a.settings.DataDir}
}

func (a *app) cache() *release.Cache {
	return release.NewCache(a.layout().InstallDir(), release.CacheOptions{
		Strict: a.settings.StrictCache,
		Logger: a.logger,
	})
}

func (a *app) loader() *catalog.Loader {
	return catalog.NewLoader(catalog.LoaderOptions{
		KeyringPath: a.settings.Keyring,
		UserAgent:   a.settings.Download.UserAgent,
		Logger:      a.logger,
	})
}

func (a *app) loadCatalog(ctx context.Context) (*catalog.Catalog, error) {
	return a.loader().Load(ctx, a.settings.Manifest)
}

type rootFlags struct {
	configPath string
	platform   string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	a := &app{}

	cmd := &cobra.Command{
		Use:           "thrive-launcher",
		Short:         "Download, verify and play Thrive releases",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupApp(cmd.Context(), a, flags, cmd.ErrOrStderr())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.Close()
		},
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "settings file (default $"+config.EnvConfigPath+" or the user config dir)")
	cmd.PersistentFlags().StringVar(&flags.platform, "platform", "", "override the detected platform, as os/arch")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log debug output to stderr")

	cmd.AddCommand(
		newVersionsCmd(a),
		newPlayCmd(a),
		newInstalledCmd(a),
		newRemoveCmd(a),
		newConfigCmd(a),
	)
	return cmd
}

func setupApp(ctx context.Context, a *app, flags *rootFlags, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	paths, err := config.ResolvePaths(flags.configPath)
	if err != nil {
		return err
	}
	a.paths = paths

	detector, err := detectorFor(flags.platform)
	if err != nil {
		return err
	}
	info, err := detector.Detect(ctx)
	if err != nil {
		return fmt.Errorf("detect platform: %w", err)
	}
	a.platform = info

	settings, err := config.NewParser(detector).Load(ctx, paths)
	if err != nil {
		return fmt.Errorf("%s", config.FormatError(err, flags.verbose))
	}
	a.settings = settings

	var out io.Writer = stderr
	level := "warn"
	switch {
	case settings.LogFile != "":
		f, err := logging.OpenFile(settings.LogFile)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, f)
		out = f
		level = settings.LogLevel
	case flags.verbose:
		level = "debug"
	}
	logger, err := logging.NewLogrus(out, level)
	if err != nil {
		return err
	}
	a.logger = logger.With("platform", info.Tag())
	return nil
}

// detectorFor returns the real detector, or a fixed one for "os/arch".
func detectorFor(override string) (platform.Detector, error) {
	if override == "" {
		return platform.NewDetector(), nil
	}

	osTag, archTag, ok := strings.Cut(override, "/")
	goos := platform.NormalizeOS(osTag)
	arch := platform.NormalizeArch(archTag)
	if !ok || goos == "" || arch == "" {
		return nil, fmt.Errorf("invalid --platform %q (want os/arch, e.g. linux/amd64)", override)
	}
	return platform.StaticDetector{Info: platform.Info{OS: goos, Arch: arch, ArchRaw: archTag}}, nil
}

func stdoutf(cmd *cobra.Command, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}

func isTerminalOutput(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
