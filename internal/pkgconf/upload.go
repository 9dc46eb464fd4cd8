package pkgconf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/data-douser/swamp-go/api"
	"github.com/data-douser/swamp-go/internal/errdefs"
	"github.com/data-douser/swamp-go/internal/handler"
)

// Upload is one package archive to publish.
type Upload struct {
	Conf      *Conf
	Archive   io.Reader
	Filename  string
	ProjectID string
	// Dependencies maps platform version names to OS package lists.
	Dependencies map[string]string
	// NewPackage forces a new package even if one with the same short
	// name exists.
	NewPackage bool
}

// Uploader publishes package archives as new package versions.
type Uploader struct {
	handlers *handler.Factory
	logger   *slog.Logger
}

func NewUploader(handlers *handler.Factory, log *slog.Logger) *Uploader {
	if log == nil {
		log = slog.Default()
	}
	return &Uploader{handlers: handlers, logger: log}
}

// Upload finds or creates the package described by up.Conf, stores the
// archive as a new version, shares it with the project and records its
// OS dependencies.
func (u *Uploader) Upload(ctx context.Context, up Upload) (*api.PackageVersion, error) {
	if up.Conf == nil || up.Archive == nil || up.Filename == "" {
		return nil, &errdefs.ClientOptionError{Msg: "package.conf and archive are required"}
	}
	if err := up.Conf.Validate(); err != nil {
		return nil, err
	}
	project, err := u.handlers.Projects().Lookup(ctx, up.ProjectID)
	if err != nil {
		return nil, err
	}

	pkg, err := u.packageFor(ctx, up, project)
	if err != nil {
		return nil, err
	}

	versions := u.handlers.PackageVersions()
	handle, err := versions.Upload(ctx, pkg, up.Filename, up.Archive)
	if err != nil {
		return nil, err
	}
	version, err := versions.CreateFromUpload(ctx, pkg, handle, up.Conf.VersionFields())
	if err != nil {
		return nil, err
	}
	if err := versions.Share(ctx, version, []string{project.ID()}); err != nil {
		return nil, err
	}

	if len(up.Dependencies) > 0 {
		deps, err := u.resolveDependencies(ctx, up.Dependencies)
		if err != nil {
			return nil, err
		}
		if err := versions.AddDependencies(ctx, version, deps); err != nil {
			return nil, err
		}
	}

	u.logger.Info("package version uploaded",
		"package", pkg.Name(), "version", version.VersionString(), "id", version.ID())
	return version, nil
}

func (u *Uploader) packageFor(ctx context.Context, up Upload, project *api.Project) (*api.Package, error) {
	name := up.Conf.ShortName()
	if !up.NewPackage {
		for _, scope := range []string{"", project.ID()} {
			pkg, err := u.handlers.Packages().ByName(ctx, scope, name)
			if err == nil {
				return pkg, nil
			}
			var nameErr *errdefs.InvalidNameError
			if !errors.As(err, &nameErr) {
				return nil, err
			}
		}
	}

	typeID, err := u.typeID(ctx, up.Conf.TypeName())
	if err != nil {
		return nil, err
	}
	return u.handlers.Packages().Create(ctx, handler.NewPackage{
		Name:        name,
		Description: up.Conf.Description(),
		ExternalURI: up.Conf.ExternalURL(),
		TypeID:      typeID,
		Language:    up.Conf.Language(),
	})
}

func (u *Uploader) typeID(ctx context.Context, typeName string) (string, error) {
	types, err := u.handlers.Packages().Types(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		u.logger.Warn("package types unavailable, using built-in identifiers", "error", err)
	}
	for _, t := range types {
		if t.Name == typeName {
			return t.TypeID, nil
		}
	}
	if id, ok := FallbackTypeIDs[typeName]; ok {
		return id, nil
	}
	return "", &errdefs.ClientOptionError{Msg: fmt.Sprintf("unknown package type %q", typeName)}
}

// resolveDependencies keys deps by platform version identifier. Names
// match platform version full names without regard to case.
func (u *Uploader) resolveDependencies(ctx context.Context, deps map[string]string) (map[string]string, error) {
	all, err := u.handlers.PlatformVersions().All(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]string, len(all))
	for _, pv := range all {
		byName[strings.ToLower(pv.Name())] = pv.ID()
	}

	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]string, len(deps))
	for _, name := range names {
		id, ok := byName[strings.ToLower(name)]
		if !ok {
			u.logger.Warn("skipping dependencies for unknown platform", "platform", name)
			continue
		}
		out[id] = deps[name]
	}
	return out, nil
}
