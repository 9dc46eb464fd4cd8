package handler

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/data-douser/swamp-go/api"
	"github.com/data-douser/swamp-go/internal/errdefs"
	"github.com/data-douser/swamp-go/internal/transport"
)

// finishedStatus is the only status whose weakness count is meaningful.
const finishedStatus = "Finished"

// AssessmentRuns manages assessment runs. The scope is a project
// identifier.
type AssessmentRuns struct {
	*Handler[*api.AssessmentRun]
}

func newAssessmentRuns(client *transport.Client, opts Options) *AssessmentRuns {
	return &AssessmentRuns{Handler: New(client, Config[*api.AssessmentRun]{
		Kind:      "Assessment Run",
		Base:      "assessment_runs",
		ListURL:   func(project string) string { return "projects/" + project + "/assessment_runs" },
		Schema:    api.AssessmentRunSchema,
		Wrap:      api.NewAssessmentRun,
		MaxScopes: opts.MaxScopes,
		Logger:    opts.Logger,
	})}
}

// RunSpec names the tuple an assessment run is created for. ToolVersion is
// optional; the service picks the latest when it is nil.
type RunSpec struct {
	Project         *api.Project
	PackageVersion  *api.PackageVersion
	Tool            *api.Tool
	ToolVersion     *api.ToolVersion
	PlatformVersion *api.PlatformVersion
}

// Create creates one assessment run and attaches the tuple references.
func (ar *AssessmentRuns) Create(ctx context.Context, spec RunSpec) (*api.AssessmentRun, error) {
	if spec.Project == nil || spec.PackageVersion == nil || spec.Tool == nil || spec.PlatformVersion == nil {
		return nil, &errdefs.ClientOptionError{Msg: "assessment run needs a project, package version, tool and platform version"}
	}
	fields := api.Fields{
		"project_uuid":           api.Identifier(spec.Project.ID()),
		api.PackageIDKey:         api.Identifier(spec.PackageVersion.PackageID()),
		api.PackageVersionIDKey:  api.Identifier(spec.PackageVersion.ID()),
		api.PlatformIDKey:        api.Identifier(spec.PlatformVersion.PlatformID()),
		api.PlatformVersionIDKey: api.Identifier(spec.PlatformVersion.ID()),
		api.ToolIDKey:            api.Identifier(spec.Tool.ID()),
	}
	if spec.ToolVersion != nil {
		fields[api.ToolVersionIDKey] = api.Identifier(spec.ToolVersion.ID())
	}
	run, err := ar.Handler.Create(ctx, fields)
	if err != nil {
		return nil, err
	}
	run.Project = spec.Project
	run.PackageVersion = spec.PackageVersion
	run.Tool = spec.Tool
	run.PlatformVersion = spec.PlatformVersion
	return run, nil
}

// AssessmentRecords lists execution records. The scope is a project
// identifier.
type AssessmentRecords struct {
	*Handler[*api.AssessmentRecord]
}

func newAssessmentRecords(client *transport.Client, opts Options) *AssessmentRecords {
	return &AssessmentRecords{Handler: New(client, Config[*api.AssessmentRecord]{
		Kind:      "Assessment Record",
		Base:      "execution_records",
		ListURL:   func(project string) string { return "projects/" + project + "/execution_records" },
		Schema:    api.AssessmentRecordSchema,
		Wrap:      api.NewAssessmentRecord,
		Prepare:   flattenRecord,
		MaxScopes: opts.MaxScopes,
		Logger:    opts.Logger,
	})}
}

// flattenRecord lifts the nested package, tool and platform objects of an
// execution record into top-level fields.
func flattenRecord(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw)+12)
	for _, k := range []string{api.AssessmentRecordIDKey, api.AssessmentRunIDKey,
		api.AssessmentResultIDKey, "project_uuid", "status", "create_date"} {
		if v, ok := raw[k]; ok {
			out[k] = v
		}
	}
	nested := []struct {
		key, prefix string
		ids         []string
	}{
		{"package", "package", []string{api.PackageIDKey, api.PackageVersionIDKey}},
		{"tool", "tool", []string{api.ToolIDKey, api.ToolVersionIDKey}},
		{"platform", "platform", []string{api.PlatformIDKey, api.PlatformVersionIDKey}},
	}
	for _, n := range nested {
		obj, ok := raw[n.key].(map[string]any)
		if !ok {
			continue
		}
		out[n.prefix+"_name"] = obj["name"]
		out[n.prefix+"_version"] = obj["version_string"]
		for _, id := range n.ids {
			if v, ok := obj[id]; ok {
				out[id] = v
			}
		}
	}

	out["weakness_cnt"] = "0"
	if s, _ := raw["status"].(string); s == finishedStatus && raw["weakness_cnt"] != nil {
		out["weakness_cnt"] = raw["weakness_cnt"]
	}
	return out
}

// AssessmentResults lists finished result sets. The scope is a project
// identifier.
type AssessmentResults struct {
	*Handler[*api.AssessmentResults]
}

func newAssessmentResults(client *transport.Client, opts Options) *AssessmentResults {
	return &AssessmentResults{Handler: New(client, Config[*api.AssessmentResults]{
		Kind:      "Assessment Result",
		Base:      "v1/assessment_results",
		ListURL:   func(project string) string { return "projects/" + project + "/assessment_results" },
		Schema:    api.AssessmentResultsSchema,
		Wrap:      api.NewAssessmentResults,
		MaxScopes: opts.MaxScopes,
		Logger:    opts.Logger,
	})}
}

// ForProject lists the results of project with the project reference
// attached.
func (ar *AssessmentResults) ForProject(ctx context.Context, project *api.Project) ([]*api.AssessmentResults, error) {
	results, err := ar.List(ctx, project.ID())
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		r.Project = project
	}
	return results, nil
}

// Scarf streams the SCARF XML report of result to w.
func (ar *AssessmentResults) Scarf(ctx context.Context, result *api.AssessmentResults, w io.Writer) (int64, error) {
	id := result.ID()
	n, err := ar.client.Stream(ctx, "v1/assessment_results/"+id+"/scarf", w)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return n, &errdefs.InvalidIdentifierError{Kind: "Assessment Result", ID: id}
		}
		return n, fmt.Errorf("scarf %s: %w", id, err)
	}
	return n, nil
}

// RunRequests schedules assessment runs.
type RunRequests struct {
	*Handler[*api.RunRequest]
}

func newRunRequests(client *transport.Client, opts Options) *RunRequests {
	return &RunRequests{Handler: New(client, Config[*api.RunRequest]{
		Kind:      "Run Request",
		Base:      "run_requests",
		Schema:    api.RunRequestSchema,
		Wrap:      api.NewRunRequest,
		MaxScopes: opts.MaxScopes,
		Logger:    opts.Logger,
	})}
}

// Create creates a named run request in project.
func (rr *RunRequests) Create(ctx context.Context, project *api.Project, name, description string) (*api.RunRequest, error) {
	return rr.Handler.Create(ctx, api.Fields{
		"project_uuid": api.Identifier(project.ID()),
		"name":         api.String(name),
		"description":  api.String(description),
	})
}

// SubmitOneTime schedules runs for immediate one-time execution. It
// reports false with a nil error when the service rejects the batch; only
// transport failures are returned as errors.
func (rr *RunRequests) SubmitOneTime(ctx context.Context, runs []*api.AssessmentRun, notify bool) (bool, error) {
	ids := make([]string, 0, len(runs))
	for _, r := range runs {
		ids = append(ids, r.ID())
	}
	body := map[string]any{"assessment-run-uuids": ids}
	if notify {
		body["notify-when-done"] = "true"
	}

	resp, err := rr.client.PostJSON(ctx, "run_requests/one-time", body)
	if err != nil {
		var (
			httpErr *errdefs.HTTPError
			noJSON  *errdefs.NoJSONError
		)
		if errors.As(err, &httpErr) || errors.As(err, &noJSON) {
			rr.logger.Warn("run request rejected", "count", len(ids), "error", err)
			return false, nil
		}
		return false, fmt.Errorf("submit run request: %w", err)
	}
	if resp.Array == nil {
		rr.logger.Warn("run request rejected", "count", len(ids), "body", string(resp.Body))
		return false, nil
	}
	rr.InvalidateAll()
	return true, nil
}
