package handler

import (
	"context"
	"strings"

	"github.com/data-douser/swamp-go/api"
	"github.com/data-douser/swamp-go/internal/errdefs"
	"github.com/data-douser/swamp-go/internal/transport"
)

// Platforms lists the public platform families.
type Platforms struct {
	*Handler[*api.Platform]
}

func newPlatforms(client *transport.Client, opts Options) *Platforms {
	return &Platforms{Handler: New(client, Config[*api.Platform]{
		Kind:      "Platform",
		Base:      "platforms",
		ListURL:   func(string) string { return "platforms/public" },
		Schema:    api.PlatformSchema,
		Wrap:      api.NewPlatform,
		MaxScopes: opts.MaxScopes,
		Logger:    opts.Logger,
	})}
}

// All returns every public platform.
func (p *Platforms) All(ctx context.Context) ([]*api.Platform, error) {
	return p.List(ctx, "")
}

// PlatformVersions lists platform images. The scope is a platform
// identifier.
type PlatformVersions struct {
	*Handler[*api.PlatformVersion]
	platforms *Platforms
}

func newPlatformVersions(client *transport.Client, platforms *Platforms, opts Options) *PlatformVersions {
	return &PlatformVersions{
		Handler: New(client, Config[*api.PlatformVersion]{
			Kind:      "Platform Version",
			Base:      "platforms/versions",
			ListURL:   func(platform string) string { return "platforms/" + platform + "/versions" },
			Schema:    api.PlatformVersionSchema,
			Wrap:      api.NewPlatformVersion,
			MaxScopes: opts.MaxScopes,
			Logger:    opts.Logger,
		}),
		platforms: platforms,
	}
}

// ForPlatform lists the versions of platform with the parent reference
// attached.
func (pv *PlatformVersions) ForPlatform(ctx context.Context, platform *api.Platform) ([]*api.PlatformVersion, error) {
	versions, err := pv.List(ctx, platform.ID())
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		v.Platform = platform
	}
	return versions, nil
}

// All returns the versions of every public platform.
func (pv *PlatformVersions) All(ctx context.Context) ([]*api.PlatformVersion, error) {
	platforms, err := pv.platforms.All(ctx)
	if err != nil {
		return nil, err
	}
	var out []*api.PlatformVersion
	for _, p := range platforms {
		versions, err := pv.ForPlatform(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, versions...)
	}
	return out, nil
}

// Lookup resolves a platform version by identifier across all platforms.
func (pv *PlatformVersions) Lookup(ctx context.Context, id string) (*api.PlatformVersion, error) {
	all, err := pv.All(ctx)
	if err != nil {
		return nil, err
	}
	for _, v := range all {
		if v.ID() == id {
			return v, nil
		}
	}
	return nil, &errdefs.InvalidIdentifierError{Kind: "Platform", ID: id}
}

// ByName resolves a platform version by full name, ignoring case.
func (pv *PlatformVersions) ByName(ctx context.Context, name string) (*api.PlatformVersion, error) {
	all, err := pv.All(ctx)
	if err != nil {
		return nil, err
	}
	for _, v := range all {
		if strings.EqualFold(v.Name(), name) {
			return v, nil
		}
	}
	return nil, &errdefs.InvalidNameError{Kind: "Platform", Name: name}
}
