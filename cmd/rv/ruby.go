package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/savechina/rv/internal/install"
	"github.com/savechina/rv/internal/service"
)

// execRuby replaces the process in `rv ruby run`. Nil means the real exec.
var execRuby service.ExecFunc

func newRubyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ruby",
		Short: "Manage Ruby versions",
	}
	cmd.AddCommand(
		newRubyListCmd(a),
		newRubyPinCmd(a),
		newRubyFindCmd(a),
		newRubyInstallCmd(a),
		newRubyRunCmd(a),
		newRubyUninstallCmd(a),
	)
	return cmd
}

type listOptions struct {
	format        string
	installedOnly bool
}

func newRubyListCmd(a *app) *cobra.Command {
	opts := &listOptions{}
	cmd := &cobra.Command{
		Use:   "list [filter]",
		Short: "List the available Ruby installations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.format != "text" && opts.format != "json" {
				return fmt.Errorf("unknown format %q (want text or json)", opts.format)
			}
			req := service.ListRequest{InstalledOnly: opts.installedOnly}
			if len(args) == 1 {
				req.Filter = args[0]
			}
			if wd, err := getwd(); err == nil {
				req.Dir = wd
			}

			svc := service.NewRubyListService(a.cfg.SearchDirs(), a.info.Tag, a.resolver(), a.logger)
			result, err := svc.List(cmd.Context(), req)
			if err != nil {
				return err
			}

			if opts.format == "json" {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result.Rubies)
			}
			return printRubyList(a, result)
		},
	}
	cmd.Flags().StringVar(&opts.format, "format", "text", "output format: text or json")
	cmd.Flags().BoolVar(&opts.installedOnly, "installed-only", false, "show only installed Ruby versions")
	return cmd
}

func printRubyList(a *app, result *service.ListResult) error {
	if len(result.Rubies) == 0 {
		fmt.Fprintln(a.stdout, "No Ruby installations found.")
		return nil
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	for _, r := range result.Rubies {
		marker := " "
		if r.Pinned {
			marker = "*"
		}
		location := color.CyanString(r.Path)
		if !r.Installed {
			location = "[available]"
		}
		fmt.Fprintf(tw, "%s ruby-%s\t%s\n", marker, r.Version, location)
	}
	return tw.Flush()
}

func newRubyPinCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pin [version]",
		Short: "Show or set the Ruby version for the current project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wd, err := getwd()
			if err != nil {
				return err
			}
			req := service.PinRequest{Dir: wd}
			if len(args) == 1 {
				req.Version = args[0]
			}

			result, err := service.NewRubyPinService().Pin(cmd.Context(), req)
			if err != nil {
				return err
			}
			if result.Written {
				fmt.Fprintf(a.stdout, "Pinned Ruby %s in %s\n", result.Request, color.CyanString(result.Path))
				return nil
			}
			fmt.Fprintln(a.stdout, result.Request)
			return nil
		},
	}
}

func newRubyFindCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "find [request]",
		Short: "Search for a Ruby installation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := service.FindRequest{}
			if len(args) == 1 {
				req.Request = args[0]
			}
			if wd, err := getwd(); err == nil {
				req.Dir = wd
			}

			result, err := service.NewRubyFindService(a.cfg.SearchDirs(), a.info.Tag).Find(cmd.Context(), req)
			if err != nil {
				return err
			}
			a.logger.Debug("found ruby", "version", result.Ruby.Version.String(), "source", string(result.Source))
			fmt.Fprintln(a.stdout, result.Ruby.Executable())
			return nil
		},
	}
}

type installOptions struct {
	installDir  string
	tarballPath string
}

func newRubyInstallCmd(a *app) *cobra.Command {
	opts := &installOptions{}
	cmd := &cobra.Command{
		Use:   "install <version>",
		Short: "Install a Ruby version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.openCache()
			if err != nil {
				return err
			}
			defer c.Close()

			client := a.client()
			installer, err := install.NewInstaller(install.Config{
				InstallDir: a.cfg.InstallDir,
				Tag:        a.info.Tag,
				Resolver:   a.resolver(),
				Cache:      c,
				Downloader: client,
				Out:        a.stdout,
				Logger:     a.logger,
			})
			if err != nil {
				return err
			}

			_, err = service.NewRubyInstallService(installer).Install(cmd.Context(), service.InstallRequest{
				Version:     args[0],
				InstallDir:  opts.installDir,
				TarballPath: opts.tarballPath,
			})
			return err
		},
	}
	cmd.Flags().StringVarP(&opts.installDir, "install-dir", "i", "", "directory to install into")
	cmd.Flags().StringVar(&opts.tarballPath, "tarball-path", "", "path to a local ruby tarball")
	return cmd
}

func newRubyRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <version> [-- args...]",
		Short: "Run a specific Ruby",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rubyArgs := args[1:]
			if len(rubyArgs) > 0 && rubyArgs[0] == "--" {
				rubyArgs = rubyArgs[1:]
			}
			req := service.RunRequest{Version: args[0], Args: rubyArgs}
			if wd, err := getwd(); err == nil {
				req.Dir = wd
			}

			finder := service.NewRubyFindService(a.cfg.SearchDirs(), a.info.Tag)
			return service.NewRubyRunService(finder, execRuby).Run(cmd.Context(), req)
		},
	}
	// Everything after the version belongs to ruby
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func newRubyUninstallCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <version>",
		Short: "Uninstall a Ruby version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u := install.NewUninstaller(a.cfg.SearchDirs(), a.info.Tag, a.stdout, a.logger)
			_, err := service.NewRubyUninstallService(u).Uninstall(cmd.Context(), args[0])
			return err
		},
	}
}
