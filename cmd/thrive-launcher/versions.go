package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/thrive-launcher/launcher/internal/catalog"
)

func newVersionsCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "versions",
		Short: "List the versions available for this platform",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.loadCatalog(cmd.Context())
			if err != nil {
				return err
			}

			p := catalog.PlatformOf(a.platform)
			versions := cat.ValidVersions(p)
			if all {
				versions = cat.Versions()
			}
			if len(versions) == 0 {
				stdoutf(cmd, "No versions available for %s\n", p)
				return nil
			}

			recommendedID := ""
			if rec, err := cat.Recommended(); err == nil {
				recommendedID = rec.ID
			}
			cache := a.cache()

			for _, v := range versions {
				marker := "  "
				if v.ID == recommendedID {
					marker = color.GreenString("* ")
				}

				status := ""
				if d, err := cat.DownloadFor(v, p); err != nil {
					status = color.YellowString(" (not available for %s)", p)
				} else if cache.Has(d) {
					status = color.CyanString(" [installed]")
				}

				stdoutf(cmd, "%s%-6s %s%s\n", marker, v.ID, v.Label(), status)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include versions without a download for this platform")
	return cmd
}
