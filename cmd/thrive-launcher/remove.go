package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove FOLDER...",
		Short: "Delete installed releases",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache := a.cache()
			for _, folder := range args {
				if err := cache.Remove(folder); err != nil {
					return err
				}
				stdoutf(cmd, "%s %s\n", color.GreenString("removed"), folder)
			}
			return nil
		},
	}
}
