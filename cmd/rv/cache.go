package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the download cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "dir",
		Short: "Print the tarball cache directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.openCache()
			if err != nil {
				return err
			}
			defer c.Close()
			if c.Ephemeral() {
				fmt.Fprintln(a.stderr, "Cache is disabled, downloads use a temporary directory removed on exit.")
			}
			fmt.Fprintln(a.stdout, c.Dir())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clean",
		Short: "Remove leftovers of interrupted downloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.openCache()
			if err != nil {
				return err
			}
			defer c.Close()
			n, err := c.Clean()
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Removed %d stale files from %s\n", n, c.Dir())
			return nil
		},
	})

	return cmd
}
