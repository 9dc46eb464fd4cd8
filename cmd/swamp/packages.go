package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/data-douser/swamp-go/api"
	"github.com/data-douser/swamp-go/internal/errdefs"
	"github.com/data-douser/swamp-go/internal/handler"
	"github.com/data-douser/swamp-go/internal/pkgconf"
)

func (a *app) projectsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "projects", Short: "Work with projects"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the projects the user belongs to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := a.handlers(cmd.Context())
			if err != nil {
				return err
			}
			projects, err := f.Projects().All(cmd.Context())
			if err != nil {
				return err
			}
			slices.SortFunc(projects, func(x, y *api.Project) int {
				return strings.Compare(y.FullName(), x.FullName())
			})
			t := newTable(a.stdout, "PROJECT UUID", "FULL NAME", "SHORT NAME", "DESCRIPTION")
			for _, p := range projects {
				t.row(p.ID(), p.FullName(), p.ShortName(), p.Description())
			}
			return t.flush()
		},
	})
	return cmd
}

func (a *app) packagesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "packages", Short: "Work with packages and package versions"}
	cmd.AddCommand(
		a.packagesListCmd(),
		a.packagesTypesCmd(),
		a.packagesUploadCmd(),
		a.packagesDeleteCmd(),
		a.packagesDownloadCmd(),
	)
	return cmd
}

func (a *app) packagesListCmd() *cobra.Command {
	var (
		project  string
		versions bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the user's packages, or those shared with a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			f, err := a.handlers(ctx)
			if err != nil {
				return err
			}
			pkgs, err := f.Packages().List(ctx, project)
			if err != nil {
				return err
			}
			slices.SortFunc(pkgs, func(x, y *api.Package) int {
				return strings.Compare(y.Name(), x.Name())
			})

			if !versions {
				t := newTable(a.stdout, "PACKAGE UUID", "NAME", "TYPE", "SHARING", "DESCRIPTION")
				for _, p := range pkgs {
					t.row(p.ID(), p.Name(), p.Type(), p.SharingStatus(), p.Description())
				}
				return t.flush()
			}

			t := newTable(a.stdout, "PACKAGE VERSION UUID", "PACKAGE", "VERSION", "FILENAME")
			for _, p := range pkgs {
				vs, err := f.PackageVersions().ForPackage(ctx, p)
				if err != nil {
					return err
				}
				slices.SortFunc(vs, func(x, y *api.PackageVersion) int {
					return handler.CompareVersions(x.VersionString(), y.VersionString())
				})
				for _, v := range vs {
					t.row(v.ID(), p.Name(), v.VersionString(), v.Filename())
				}
			}
			return t.flush()
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "List packages shared with this project UUID")
	cmd.Flags().BoolVar(&versions, "versions", false, "List package versions instead of packages")
	return cmd
}

func (a *app) packagesTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the package types the service accepts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := a.handlers(cmd.Context())
			if err != nil {
				return err
			}
			types, err := f.Packages().Types(cmd.Context())
			if err != nil {
				return err
			}
			t := newTable(a.stdout, "TYPE ID", "NAME", "DEFAULT PLATFORM")
			for _, pt := range types {
				t.row(pt.TypeID, pt.Name, pt.DefaultPlatformID)
			}
			return t.flush()
		},
	}
}

func (a *app) packagesUploadCmd() *cobra.Command {
	var (
		confPath   string
		archive    string
		project    string
		osDeps     string
		newPackage bool
	)
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload a package archive as a new package version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			conf, err := pkgconf.Load(confPath)
			if err != nil {
				return err
			}
			var deps map[string]string
			if osDeps != "" {
				deps, err = loadDependencies(osDeps)
				if err != nil {
					return err
				}
			}
			file, err := os.Open(archive)
			if err != nil {
				return &errdefs.ClientOptionError{Msg: fmt.Sprintf("open archive: %v", err)}
			}
			defer func() {
				_ = file.Close() //nolint:errcheck // Best effort close in defer
			}()

			f, err := a.handlers(ctx)
			if err != nil {
				return err
			}
			v, err := pkgconf.NewUploader(f, a.logger).Upload(ctx, pkgconf.Upload{
				Conf:         conf,
				Archive:      file,
				Filename:     filepath.Base(archive),
				ProjectID:    project,
				Dependencies: deps,
				NewPackage:   newPackage,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, v.ID())
			return nil
		},
	}
	cmd.Flags().StringVar(&confPath, "pkg-conf", "package.conf", "Path to the package.conf file")
	cmd.Flags().StringVar(&archive, "archive", "", "Path to the package archive")
	cmd.Flags().StringVar(&project, "project", "", "Project UUID to share the version with")
	cmd.Flags().StringVar(&osDeps, "os-deps", "", "Path to a platform=dependencies file")
	cmd.Flags().BoolVar(&newPackage, "new", false, "Always create a new package")
	_ = cmd.MarkFlagRequired("archive")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func loadDependencies(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &errdefs.ClientOptionError{Msg: fmt.Sprintf("open dependencies file: %v", err)}
	}
	defer func() {
		_ = f.Close() //nolint:errcheck // Best effort close in defer
	}()
	return pkgconf.ParseDependencies(f)
}

func (a *app) packagesDeleteCmd() *cobra.Command {
	var versions bool
	cmd := &cobra.Command{
		Use:   "delete ID...",
		Short: "Delete packages, or package versions with --versions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.handlers(cmd.Context())
			if err != nil {
				return err
			}
			del := f.Packages().Delete
			if versions {
				del = f.PackageVersions().Delete
			}
			return a.deleteAll(cmd.Context(), del, args)
		},
	}
	cmd.Flags().BoolVar(&versions, "versions", false, "Arguments are package version UUIDs")
	return cmd
}

// deleteAll deletes every id and reports each outcome. The first failure
// is returned after all ids were tried.
func (a *app) deleteAll(ctx context.Context, del func(context.Context, string) (handler.DeleteResult, error), ids []string) error {
	var first error
	for _, id := range ids {
		res, err := del(ctx, id)
		fmt.Fprintf(a.stdout, "%s\t%s\n", id, res)
		if err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (a *app) packagesDownloadCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "download VERSION-ID",
		Short: "Download a package version archive to the export storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, err := a.handlers(ctx)
			if err != nil {
				return err
			}
			v, err := f.PackageVersions().Get(ctx, args[0])
			if err != nil {
				return err
			}
			if name == "" {
				name = v.Filename()
			}
			if name == "" {
				name = v.ID() + ".archive"
			}
			n, err := a.export(ctx, name, "application/octet-stream", func(w io.Writer) (int64, error) {
				return f.PackageVersions().Download(ctx, v, w)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s\t%d bytes\n", name, n)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Object name in the export storage (default: the archive's file name)")
	return cmd
}

// export streams the output of write into the export storage under name.
func (a *app) export(ctx context.Context, name, contentType string, write func(io.Writer) (int64, error)) (int64, error) {
	backend, err := a.exportStorage(ctx)
	if err != nil {
		return 0, err
	}
	pr, pw := io.Pipe()
	var n int64
	done := make(chan error, 1)
	go func() {
		var werr error
		n, werr = write(pw)
		pw.CloseWithError(werr)
		done <- werr
	}()
	putErr := backend.Put(ctx, name, pr, contentType)
	pr.CloseWithError(putErr)
	writeErr := <-done
	if writeErr != nil {
		// Drop the partial object.
		_ = backend.Delete(ctx, name)
		return 0, writeErr
	}
	if putErr != nil {
		return 0, fmt.Errorf("store %s: %w", name, putErr)
	}
	a.logger.Debug("exported", "name", name, "storage_type", backend.Type(), "bytes", n)
	return n, nil
}
