package main

import (
	"context"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/data-douser/swamp-go/api"
	"github.com/data-douser/swamp-go/internal/assess"
	"github.com/data-douser/swamp-go/internal/errdefs"
	"github.com/data-douser/swamp-go/internal/handler"
)

func (a *app) toolsCmd() *cobra.Command {
	var project string
	cmd := &cobra.Command{Use: "tools", Short: "Work with assessment tools"}
	cmd.PersistentFlags().StringVar(&project, "project", "", "Include tools protected to this project UUID")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := a.handlers(cmd.Context())
			if err != nil {
				return err
			}
			tools, err := f.Tools().Available(cmd.Context(), project)
			if err != nil {
				return err
			}
			slices.SortFunc(tools, func(x, y *api.Tool) int { return strings.Compare(x.Name(), y.Name()) })
			t := newTable(a.stdout, "TOOL UUID", "NAME", "RESTRICTED", "PACKAGE TYPES")
			for _, tool := range tools {
				t.row(tool.ID(), tool.Name(), yesNo(tool.Restricted()), strings.Join(tool.SupportedPackageTypes(), ", "))
			}
			return t.flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "versions TOOL-ID",
		Short: "List the versions of a tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, err := a.handlers(ctx)
			if err != nil {
				return err
			}
			tool, err := findTool(ctx, f, project, args[0])
			if err != nil {
				return err
			}
			versions, err := f.ToolVersions().ForTool(ctx, tool)
			if err != nil {
				return err
			}
			slices.SortFunc(versions, func(x, y *api.ToolVersion) int {
				return handler.CompareVersions(x.VersionString(), y.VersionString())
			})
			t := newTable(a.stdout, "TOOL VERSION UUID", "TOOL", "VERSION", "NOTES")
			for _, v := range versions {
				t.row(v.ID(), tool.Name(), v.VersionString(), v.Notes())
			}
			return t.flush()
		},
	})
	return cmd
}

// findTool returns the tool with id among those available to project.
func findTool(ctx context.Context, f *handler.Factory, project, id string) (*api.Tool, error) {
	tools, err := f.Tools().Available(ctx, project)
	if err != nil {
		return nil, err
	}
	for _, t := range tools {
		if t.ID() == id {
			return t, nil
		}
	}
	return nil, &errdefs.InvalidIdentifierError{Kind: "Tool", ID: id}
}

func (a *app) platformsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "platforms", Short: "Work with assessment platforms"}

	var tool, project string
	list := &cobra.Command{
		Use:   "list",
		Short: "List platform versions, optionally only those a tool supports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			f, err := a.handlers(ctx)
			if err != nil {
				return err
			}
			var versions []*api.PlatformVersion
			if tool != "" {
				versions, err = assess.New(f, a.cfg.DefaultPlatforms, a.logger).SupportedPlatforms(ctx, tool, project)
			} else {
				versions, err = f.PlatformVersions().All(ctx)
			}
			if err != nil {
				return err
			}
			slices.SortFunc(versions, func(x, y *api.PlatformVersion) int { return strings.Compare(x.Name(), y.Name()) })
			t := newTable(a.stdout, "PLATFORM VERSION UUID", "FULL NAME", "PLATFORM")
			for _, v := range versions {
				t.row(v.ID(), v.Name(), v.PlatformName())
			}
			return t.flush()
		},
	}
	list.Flags().StringVar(&tool, "tool", "", "Only platforms this tool UUID supports")
	list.Flags().StringVar(&project, "project", "", "Project UUID used to resolve protected tools")

	def := &cobra.Command{
		Use:   "default PACKAGE-TYPE",
		Short: "Show the default platform version for a package type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.handlers(cmd.Context())
			if err != nil {
				return err
			}
			pv, err := assess.New(f, a.cfg.DefaultPlatforms, a.logger).DefaultPlatform(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			t := newTable(a.stdout, "PLATFORM VERSION UUID", "FULL NAME", "PLATFORM")
			t.row(pv.ID(), pv.Name(), pv.PlatformName())
			return t.flush()
		},
	}

	cmd.AddCommand(list, def)
	return cmd
}
