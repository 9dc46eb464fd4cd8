package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/data-douser/swamp-go/api"
	"github.com/data-douser/swamp-go/internal/codec"
	"github.com/data-douser/swamp-go/internal/errdefs"
	"github.com/data-douser/swamp-go/internal/transport"
)

// PackageType is one entry of the service's package type table.
type PackageType struct {
	Name              string
	TypeID            string
	DefaultPlatformID string
}

// Packages manages the user's packages. Scope "" lists the user's own
// packages; a project identifier lists the packages shared with it.
type Packages struct {
	*Handler[*api.Package]
	userID string
}

func newPackages(client *transport.Client, userID string, opts Options) *Packages {
	return &Packages{
		Handler: New(client, Config[*api.Package]{
			Kind: "Package",
			Base: "packages",
			ListURL: func(scope string) string {
				if scope == "" {
					return "packages/users/" + userID
				}
				return "packages/protected/" + scope
			},
			Schema:    api.PackageSchema,
			Wrap:      api.NewPackage,
			MaxScopes: opts.MaxScopes,
			Logger:    opts.Logger,
		}),
		userID: userID,
	}
}

// NewPackage describes a package to create.
type NewPackage struct {
	Name        string
	Description string
	ExternalURI string
	TypeID      string
	Language    string
}

// Create creates a private package owned by the user.
func (p *Packages) Create(ctx context.Context, np NewPackage) (*api.Package, error) {
	if np.Name == "" {
		return nil, &errdefs.ClientOptionError{Msg: "package name is required"}
	}
	pkg, err := p.Handler.Create(ctx, api.Fields{
		"package_owner_uuid":     api.Identifier(p.userID),
		"package_sharing_status": api.String("private"),
		"name":                   api.String(np.Name),
		"external_uri":           api.String(np.ExternalURI),
		"description":            api.String(np.Description),
		"package_type_id":        api.String(np.TypeID),
		"package_language":       api.String(strings.ToLower(np.Language)),
	})
	if err != nil {
		return nil, fmt.Errorf("create package %q: %w", np.Name, err)
	}
	return pkg, nil
}

// ByName returns the package called name within scope, or an
// InvalidNameError.
func (p *Packages) ByName(ctx context.Context, scope, name string) (*api.Package, error) {
	all, err := p.List(ctx, scope)
	if err != nil {
		return nil, err
	}
	for _, pkg := range all {
		if pkg.Name() == name {
			return pkg, nil
		}
	}
	return nil, &errdefs.InvalidNameError{Kind: "Package", Name: name}
}

// Types returns the package type table.
func (p *Packages) Types(ctx context.Context) ([]PackageType, error) {
	resp, err := p.client.Get(ctx, "packages/types", nil)
	if err != nil {
		return nil, fmt.Errorf("package types: %w", err)
	}
	if resp.Array == nil {
		return nil, &errdefs.NoJSONError{URL: p.client.URL("packages/types"), Body: string(resp.Body)}
	}
	var types []PackageType
	for _, item := range resp.Array {
		raw, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := codec.DecodeValue(raw["name"], api.KindString)
		id, _ := codec.DecodeValue(raw["package_type_id"], api.KindString)
		platform, _ := codec.DecodeValue(raw["default_platform_uuid"], api.KindIdentifier)
		types = append(types, PackageType{
			Name:              name.Text(),
			TypeID:            id.Text(),
			DefaultPlatformID: platform.Text(),
		})
	}
	return types, nil
}

// PackageVersions manages package versions. The scope is a package
// identifier.
type PackageVersions struct {
	*Handler[*api.PackageVersion]
	userID string
}

func newPackageVersions(client *transport.Client, userID string, opts Options) *PackageVersions {
	return &PackageVersions{
		Handler: New(client, Config[*api.PackageVersion]{
			Kind:      "Package Version",
			Base:      "packages/versions",
			CreateURL: "packages/versions/store",
			ListURL:   func(pkg string) string { return "packages/" + pkg + "/versions" },
			Schema:    api.PackageVersionSchema,
			Wrap:      api.NewPackageVersion,
			MaxScopes: opts.MaxScopes,
			Logger:    opts.Logger,
		}),
		userID: userID,
	}
}

// ForPackage lists the versions of pkg with the package reference attached.
func (pv *PackageVersions) ForPackage(ctx context.Context, pkg *api.Package) ([]*api.PackageVersion, error) {
	versions, err := pv.List(ctx, pkg.ID())
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		v.Package = pkg
	}
	return versions, nil
}

// Upload stages an archive for pkg and returns the server's file handle.
func (pv *PackageVersions) Upload(ctx context.Context, pkg *api.Package, filename string, r io.Reader) (*api.FileHandle, error) {
	resp, err := pv.client.Upload(ctx, "packages/versions/upload", map[string]string{
		api.UserIDKey:    pv.userID,
		api.PackageIDKey: pkg.ID(),
		"external_url":   "",
	}, "file", filename, r)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", filename, err)
	}
	if resp.Object == nil {
		return nil, &errdefs.NoJSONError{URL: pv.client.URL("packages/versions/upload"), Body: string(resp.Body)}
	}
	return api.NewFileHandle(codec.Decode(resp.Object, api.FileHandleSchema)), nil
}

// CreateFromUpload commits an uploaded archive as a new version of pkg.
// fields carries the version attributes, e.g. the build settings.
func (pv *PackageVersions) CreateFromUpload(ctx context.Context, pkg *api.Package, handle *api.FileHandle, fields api.Fields) (*api.PackageVersion, error) {
	f := fields.Clone()
	if f == nil {
		f = api.Fields{}
	}
	f["version_sharing_status"] = api.String("protected")
	f[api.PackageIDKey] = api.Identifier(pkg.ID())
	f["package_path"] = api.String(handle.DestinationPath() + "/" + handle.Filename())
	f["uploaded_file"] = api.String(handle.Filename())

	v, err := pv.CreateJSON(ctx, f)
	if err != nil {
		return nil, err
	}
	v.Package = pkg
	return v, nil
}

// Share shares version with the given projects.
func (pv *PackageVersions) Share(ctx context.Context, version *api.PackageVersion, projectIDs []string) error {
	ids := append([]string{}, projectIDs...)
	_, err := pv.client.PutJSON(ctx, "packages/versions/"+version.ID()+"/sharing", map[string]any{
		"project_uuids": ids,
	})
	var noJSON *errdefs.NoJSONError
	if err != nil && !errors.As(err, &noJSON) {
		return fmt.Errorf("share %s: %w", version.ID(), err)
	}
	pv.InvalidateAll()
	return nil
}

// AddDependencies records OS package dependencies for version, keyed by
// platform version identifier.
func (pv *PackageVersions) AddDependencies(ctx context.Context, version *api.PackageVersion, deps map[string]string) error {
	ids := make([]string, 0, len(deps))
	for id := range deps {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		_, err := pv.client.PostJSON(ctx, "packages/versions/dependencies", map[string]any{
			api.PackageVersionIDKey:  version.ID(),
			"dependency_list":        deps[id],
			api.PlatformVersionIDKey: id,
		})
		if err != nil {
			return fmt.Errorf("add dependencies for %s: %w", id, err)
		}
	}
	return nil
}

// Download streams the archive of version to w.
func (pv *PackageVersions) Download(ctx context.Context, version *api.PackageVersion, w io.Writer) (int64, error) {
	n, err := pv.client.Stream(ctx, "packages/versions/"+version.ID()+"/download", w)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", version.ID(), err)
	}
	return n, nil
}
