// Package assess turns a package version, a set of tools and a set of
// platforms into scheduled assessment runs.
package assess

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/data-douser/swamp-go/api"
	"github.com/data-douser/swamp-go/internal/errdefs"
	"github.com/data-douser/swamp-go/internal/handler"
)

// Request names what to assess. Without PlatformVersionIDs the default
// platform of the package type is used.
type Request struct {
	PackageVersionID   string
	ToolIDs            []string
	ProjectID          string
	PlatformVersionIDs []string
}

// Result is the outcome of Run. When the service rejects the batch,
// Accepted is false and Runs is empty.
type Result struct {
	Runs     []*api.AssessmentRun
	Accepted bool
}

// Orchestrator validates and schedules assessments.
type Orchestrator struct {
	handlers *handler.Factory
	defaults map[string]string
	logger   *slog.Logger
}

// New creates an Orchestrator. defaults maps a package type name to the
// platform identifier used when the service does not name one.
func New(handlers *handler.Factory, defaults map[string]string, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{handlers: handlers, defaults: defaults, logger: log}
}

// Run resolves every identifier of req, checks each (tool, platform) pair
// against the package and then creates one run per pair and submits them
// as a single one-time run request. Nothing is created unless every pair
// is valid.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if len(req.ToolIDs) == 0 {
		return nil, &errdefs.ClientOptionError{Msg: "at least one tool is required"}
	}

	project, err := o.handlers.Projects().Lookup(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}

	version, err := o.handlers.PackageVersions().Get(ctx, req.PackageVersionID)
	if err != nil {
		return nil, err
	}
	pkg, err := o.handlers.Packages().Get(ctx, version.PackageID())
	if err != nil {
		return nil, fmt.Errorf("package of version %s: %w", version.ID(), err)
	}
	version.Package = pkg

	tools, err := o.resolveTools(ctx, project.ID(), req.ToolIDs)
	if err != nil {
		return nil, err
	}

	var platforms []*api.PlatformVersion
	if len(req.PlatformVersionIDs) == 0 {
		pv, err := o.DefaultPlatform(ctx, pkg.Type())
		if err != nil {
			return nil, err
		}
		platforms = append(platforms, pv)
	} else {
		for _, id := range req.PlatformVersionIDs {
			pv, err := o.handlers.PlatformVersions().Lookup(ctx, id)
			if err != nil {
				return nil, err
			}
			platforms = append(platforms, pv)
		}
	}

	for _, pv := range platforms {
		for _, tool := range tools {
			if err := compatible(tool, pkg.Type(), pv); err != nil {
				return nil, err
			}
		}
	}
	for _, tool := range tools {
		if !tool.Restricted() {
			continue
		}
		ok, err := o.handlers.Tools().HasPermission(ctx, tool, project, pkg)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &errdefs.IncompatibleTupleError{
				Msg: fmt.Sprintf("%s requires a permission that project %q does not hold", tool.Name(), project.FullName()),
			}
		}
	}

	runs := make([]*api.AssessmentRun, 0, len(platforms)*len(tools))
	for _, pv := range platforms {
		for _, tool := range tools {
			run, err := o.handlers.AssessmentRuns().Create(ctx, handler.RunSpec{
				Project:         project,
				PackageVersion:  version,
				Tool:            tool,
				PlatformVersion: pv,
			})
			if err != nil {
				return nil, err
			}
			runs = append(runs, run)
		}
	}

	accepted, err := o.handlers.RunRequests().SubmitOneTime(ctx, runs, true)
	if err != nil {
		return nil, err
	}
	if !accepted {
		o.logger.Warn("assessment batch not accepted", "count", len(runs))
		return &Result{}, nil
	}
	o.logger.Info("assessments scheduled", "count", len(runs), "package", pkg.Name())
	return &Result{Runs: runs, Accepted: true}, nil
}

func (o *Orchestrator) resolveTools(ctx context.Context, projectID string, ids []string) ([]*api.Tool, error) {
	available, err := o.handlers.Tools().Available(ctx, projectID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*api.Tool, len(available))
	for _, t := range available {
		byID[t.ID()] = t
	}
	tools := make([]*api.Tool, 0, len(ids))
	for _, id := range ids {
		t, ok := byID[id]
		if !ok {
			return nil, &errdefs.InvalidIdentifierError{Kind: "Tool", ID: id}
		}
		tools = append(tools, t)
	}
	return tools, nil
}

func compatible(tool *api.Tool, pkgType string, pv *api.PlatformVersion) error {
	if !tool.SupportsPackageType(pkgType) {
		return &errdefs.IncompatibleTupleError{Msg: fmt.Sprintf("%s (%s) does not support this package type \"%s\"",
			tool.Name(), listing(tool.SupportedPackageTypes()), pkgType)}
	}
	if !tool.SupportsPlatform(pv.PlatformName()) {
		return &errdefs.IncompatibleTupleError{Msg: fmt.Sprintf("%s (%s) is not supported on this platform \"%s\"",
			tool.Name(), listing(tool.SupportedPlatforms()), pv.PlatformName())}
	}
	return nil
}

func listing(items []string) string {
	return "[" + strings.Join(items, ", ") + "]"
}

// DefaultPlatform returns the platform version assessments of pkgType run
// on when none is requested: the version with the greatest full name of
// the type's default platform. The service's package type table is asked
// first; the configured table is the fallback.
func (o *Orchestrator) DefaultPlatform(ctx context.Context, pkgType string) (*api.PlatformVersion, error) {
	var platformID string
	types, err := o.handlers.Packages().Types(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		o.logger.Warn("package types unavailable, using configured defaults", "error", err)
	}
	for _, t := range types {
		if t.Name == pkgType {
			platformID = t.DefaultPlatformID
			break
		}
	}
	if platformID == "" {
		platformID = o.defaults[pkgType]
	}
	if platformID == "" {
		return nil, &errdefs.NoDefaultPlatformError{PackageType: pkgType}
	}

	platform, err := o.handlers.Platforms().Find(ctx, "", platformID)
	if err != nil {
		return nil, err
	}
	versions, err := o.handlers.PlatformVersions().ForPlatform(ctx, platform)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, &errdefs.NoDefaultPlatformError{PackageType: pkgType}
	}
	slices.SortStableFunc(versions, func(a, b *api.PlatformVersion) int {
		return strings.Compare(b.Name(), a.Name())
	})
	return versions[0], nil
}

// SupportedPlatforms returns every platform version whose platform the
// tool declares support for.
func (o *Orchestrator) SupportedPlatforms(ctx context.Context, toolID, projectID string) ([]*api.PlatformVersion, error) {
	tools, err := o.resolveTools(ctx, projectID, []string{toolID})
	if err != nil {
		return nil, err
	}
	all, err := o.handlers.PlatformVersions().All(ctx)
	if err != nil {
		return nil, err
	}
	var out []*api.PlatformVersion
	for _, pv := range all {
		if tools[0].SupportsPlatform(pv.PlatformName()) {
			out = append(out, pv)
		}
	}
	return out, nil
}
