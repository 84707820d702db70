package main

import (
	"github.com/spf13/cobra"
)

func newInstalledCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "installed",
		Short: "List installed releases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			releases, err := a.cache().Installed()
			if err != nil {
				return err
			}
			if len(releases) == 0 {
				stdoutf(cmd, "No releases installed in %s\n", a.layout().InstallDir())
				return nil
			}
			for _, r := range releases {
				stdoutf(cmd, "%s\t%s\n", r.FolderName, r.Path)
			}
			return nil
		},
	}
}
