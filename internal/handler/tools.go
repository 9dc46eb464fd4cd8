package handler

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/data-douser/swamp-go/api"
	"github.com/data-douser/swamp-go/internal/errdefs"
	"github.com/data-douser/swamp-go/internal/transport"
)

// Tools lists analysis tools. Scope "" is the public catalogue; a project
// identifier lists the tools protected to that project.
type Tools struct {
	*Handler[*api.Tool]
}

func newTools(client *transport.Client, opts Options) *Tools {
	return &Tools{Handler: New(client, Config[*api.Tool]{
		Kind: "Tool",
		Base: "tools",
		ListURL: func(scope string) string {
			if scope == "" {
				return "tools/public"
			}
			return "tools/protected/" + scope
		},
		Schema:    api.ToolSchema,
		Wrap:      api.NewTool,
		MaxScopes: opts.MaxScopes,
		Logger:    opts.Logger,
	})}
}

// Available returns the public tools followed by the tools protected to
// project that are not already public. Duplicates are merged by identifier.
func (t *Tools) Available(ctx context.Context, project string) ([]*api.Tool, error) {
	public, err := t.List(ctx, "")
	if err != nil {
		return nil, err
	}
	if project == "" {
		return public, nil
	}
	protected, err := t.List(ctx, project)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(public))
	out := make([]*api.Tool, 0, len(public)+len(protected))
	for _, tool := range append(public, protected...) {
		if seen[tool.ID()] {
			continue
		}
		seen[tool.ID()] = true
		out = append(out, tool)
	}
	return out, nil
}

// ByName returns the available tool called name.
func (t *Tools) ByName(ctx context.Context, project, name string) (*api.Tool, error) {
	all, err := t.Available(ctx, project)
	if err != nil {
		return nil, err
	}
	for _, tool := range all {
		if strings.EqualFold(tool.Name(), name) {
			return tool, nil
		}
	}
	return nil, &errdefs.InvalidNameError{Kind: "Tool", Name: name}
}

// HasPermission asks whether the user may run a restricted tool on pkg
// within project.
func (t *Tools) HasPermission(ctx context.Context, tool *api.Tool, project *api.Project, pkg *api.Package) (bool, error) {
	resp, err := t.client.PostForm(ctx, "tools/"+tool.ID()+"/permission", url.Values{
		api.PackageIDKey: {pkg.ID()},
		api.ProjectIDKey: {project.ID()},
	})
	if err != nil {
		return false, fmt.Errorf("tool permission %s: %w", tool.Name(), err)
	}
	if len(resp.Array) == 0 {
		return false, nil
	}
	answer, _ := resp.Array[0].(string)
	return answer == "granted", nil
}

// ToolVersions lists tool releases. The scope is a tool identifier.
type ToolVersions struct {
	*Handler[*api.ToolVersion]
}

func newToolVersions(client *transport.Client, opts Options) *ToolVersions {
	return &ToolVersions{Handler: New(client, Config[*api.ToolVersion]{
		Kind:      "Tool Version",
		Base:      "tools/versions",
		ListURL:   func(tool string) string { return "tools/" + tool + "/versions" },
		Schema:    api.ToolVersionSchema,
		Wrap:      api.NewToolVersion,
		MaxScopes: opts.MaxScopes,
		Logger:    opts.Logger,
	})}
}

// ForTool lists the versions of tool with the tool reference attached.
func (tv *ToolVersions) ForTool(ctx context.Context, tool *api.Tool) ([]*api.ToolVersion, error) {
	versions, err := tv.List(ctx, tool.ID())
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		v.Tool = tool
	}
	return versions, nil
}

// CompareVersions orders dotted version strings numerically per component,
// falling back to a string comparison for non-numeric components. It
// returns -1, 0 or +1.
func CompareVersions(a, b string) int {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var x, y string
		if i < len(as) {
			x = as[i]
		}
		if i < len(bs) {
			y = bs[i]
		}
		if c := compareComponent(x, y); c != 0 {
			return c
		}
	}
	return 0
}

func compareComponent(x, y string) int {
	xi, xerr := strconv.Atoi(x)
	yi, yerr := strconv.Atoi(y)
	switch {
	case x == "" && y == "":
		return 0
	case x == "":
		return -1
	case y == "":
		return 1
	case xerr == nil && yerr == nil:
		switch {
		case xi < yi:
			return -1
		case xi > yi:
			return 1
		}
		return 0
	default:
		return strings.Compare(x, y)
	}
}
