package api

import (
	"slices"
	"strings"
	"time"
)

// Identity keys of the concrete entity kinds.
const (
	ProjectIDKey          = "project_uid"
	PackageIDKey          = "package_uuid"
	PackageVersionIDKey   = "package_version_uuid"
	ToolIDKey             = "tool_uuid"
	ToolVersionIDKey      = "tool_version_uuid"
	PlatformIDKey         = "platform_uuid"
	PlatformVersionIDKey  = "platform_version_uuid"
	AssessmentRunIDKey    = "assessment_run_uuid"
	AssessmentRecordIDKey = "execution_record_uuid"
	AssessmentResultIDKey = "assessment_result_uuid"
	RunRequestIDKey       = "run_request_uuid"
	UserIDKey             = "user_uid"
	FileHandleIDKey       = "destination_path"
)

// Project is a SWAMP project, the unit that owns assessment runs.
type Project struct {
	Record
}

var ProjectSchema = Schema{
	IDKey:       ProjectIDKey,
	Identifiers: []string{ProjectIDKey, "project_owner_uid"},
	Strings:     []string{"full_name", "short_name", "description", "affiliation"},
	Booleans:    []string{"trial_project_flag"},
	Dates:       []string{"create_date", "denial_date", "deactivation_date"},
}

func NewProject(f Fields) *Project { return &Project{Record: NewRecord(ProjectIDKey, f)} }

func (p *Project) FullName() string    { return p.text("full_name") }
func (p *Project) ShortName() string   { return p.text("short_name") }
func (p *Project) Description() string { return p.text("description") }
func (p *Project) OwnerID() string     { return p.text("project_owner_uid") }
func (p *Project) Trial() bool         { return p.flag("trial_project_flag") }

// CreateDate returns the creation date, or the zero time when unknown.
func (p *Project) CreateDate() time.Time {
	t, _ := p.fields.Date("create_date")
	return t
}

// Package is an uploaded software package. Its revisions are PackageVersions.
type Package struct {
	Record
}

var PackageSchema = Schema{
	IDKey:       PackageIDKey,
	Identifiers: []string{PackageIDKey},
	Strings: []string{"name", "description", "package_type", "package_type_id",
		"package_sharing_status", "external_uri"},
	Booleans: []string{"is_owned"},
	Dates:    []string{"create_date", "update_date"},
	Arrays:   []string{"version_strings"},
}

func NewPackage(f Fields) *Package { return &Package{Record: NewRecord(PackageIDKey, f)} }

func (p *Package) Name() string             { return p.text("name") }
func (p *Package) Description() string      { return p.text("description") }
func (p *Package) Type() string             { return p.text("package_type") }
func (p *Package) TypeID() string           { return p.text("package_type_id") }
func (p *Package) SharingStatus() string    { return p.text("package_sharing_status") }
func (p *Package) ExternalURI() string      { return p.text("external_uri") }
func (p *Package) Owned() bool              { return p.flag("is_owned") }
func (p *Package) VersionStrings() []string { return p.items("version_strings") }

// PackageVersion is one buildable revision of a Package.
type PackageVersion struct {
	Record

	// Package is a convenience reference and may be nil.
	Package *Package
}

var PackageVersionSchema = Schema{
	IDKey:       PackageVersionIDKey,
	Identifiers: []string{PackageIDKey, PackageVersionIDKey, PlatformIDKey},
	Strings: []string{"filename", "uploaded_file", "path", "extension", "mime",
		"destination_path", "build_cmd", "build_dir", "build_opt", "build_file",
		"build_system", "build_target", "config_cmd", "config_dir", "config_opt",
		"package_path", "source_path", "notes", "version_sharing_status",
		"version_string", "bytecode_aux_class_path", "bytecode_class_path",
		"bytecode_source_path", "language_version"},
	Dates: []string{"release_date", "retire_date", "create_date", "update_date"},
}

func NewPackageVersion(f Fields) *PackageVersion {
	return &PackageVersion{Record: NewRecord(PackageVersionIDKey, f)}
}

func (v *PackageVersion) PackageID() string     { return v.text(PackageIDKey) }
func (v *PackageVersion) VersionString() string { return v.text("version_string") }
func (v *PackageVersion) Filename() string      { return v.text("filename") }
func (v *PackageVersion) Notes() string         { return v.text("notes") }
func (v *PackageVersion) SharingStatus() string { return v.text("version_sharing_status") }

// Tool is a static analysis engine registered with the service.
type Tool struct {
	Record
}

var ToolSchema = Schema{
	IDKey:       ToolIDKey,
	Identifiers: []string{ToolIDKey},
	Strings: []string{"name", "tool_sharing_status", "policy_code", "policy",
		"description", "create_user"},
	Dates:    []string{"create_date", "update_date"},
	Booleans: []string{"is_build_needed", "is_owned", "is_restricted"},
	Arrays:   []string{"package_type_names", "platform_names", "version_strings", "viewer_names"},
}

func NewTool(f Fields) *Tool { return &Tool{Record: NewRecord(ToolIDKey, f)} }

func (t *Tool) Name() string                    { return t.text("name") }
func (t *Tool) Description() string             { return t.text("description") }
func (t *Tool) PolicyCode() string              { return t.text("policy_code") }
func (t *Tool) Restricted() bool                { return t.flag("is_restricted") }
func (t *Tool) SupportedPackageTypes() []string { return t.items("package_type_names") }
func (t *Tool) SupportedPlatforms() []string    { return t.items("platform_names") }
func (t *Tool) VersionStrings() []string        { return t.items("version_strings") }

// SupportsPackageType reports whether the tool declares support for the
// package type name.
func (t *Tool) SupportsPackageType(typeName string) bool {
	return slices.Contains(t.SupportedPackageTypes(), typeName)
}

// SupportsPlatform reports whether the tool declares support for the
// platform name.
func (t *Tool) SupportsPlatform(platformName string) bool {
	return slices.Contains(t.SupportedPlatforms(), platformName)
}

// ToolVersion is one release of a Tool.
type ToolVersion struct {
	Record

	Tool *Tool
}

var ToolVersionSchema = Schema{
	IDKey:       ToolVersionIDKey,
	Identifiers: []string{ToolIDKey, ToolVersionIDKey},
	Strings: []string{"notes", "version_string", "tool_path", "tool_executable",
		"tool_arguments", "tool_directory"},
	Dates: []string{"release_date", "retire_date"},
}

func NewToolVersion(f Fields) *ToolVersion {
	return &ToolVersion{Record: NewRecord(ToolVersionIDKey, f)}
}

func (v *ToolVersion) ToolID() string        { return v.text(ToolIDKey) }
func (v *ToolVersion) VersionString() string { return v.text("version_string") }
func (v *ToolVersion) Notes() string         { return v.text("notes") }

// Platform is an execution image family, e.g. "CentOS Linux 6 64-bit".
type Platform struct {
	Record
}

var PlatformSchema = Schema{
	IDKey:       PlatformIDKey,
	Identifiers: []string{PlatformIDKey},
	Strings:     []string{"name", "platform_sharing_status", "description"},
	Dates:       []string{"create_date", "update_date"},
	Arrays:      []string{"version_strings"},
}

func NewPlatform(f Fields) *Platform { return &Platform{Record: NewRecord(PlatformIDKey, f)} }

func (p *Platform) Name() string             { return p.text("name") }
func (p *Platform) Description() string      { return p.text("description") }
func (p *Platform) SharingStatus() string    { return p.text("platform_sharing_status") }
func (p *Platform) VersionStrings() []string { return p.items("version_strings") }

// PlatformVersion is a concrete platform image. Assessment runs are placed
// on platform versions; compatibility is judged on the parent Platform name.
type PlatformVersion struct {
	Record

	Platform *Platform
}

var PlatformVersionSchema = Schema{
	IDKey:       PlatformVersionIDKey,
	Identifiers: []string{PlatformVersionIDKey, PlatformIDKey},
	Strings:     []string{"full_name", "version_string"},
}

func NewPlatformVersion(f Fields) *PlatformVersion {
	return &PlatformVersion{Record: NewRecord(PlatformVersionIDKey, f)}
}

func (v *PlatformVersion) Name() string          { return v.text("full_name") }
func (v *PlatformVersion) VersionString() string { return v.text("version_string") }
func (v *PlatformVersion) PlatformID() string    { return v.text(PlatformIDKey) }

// PlatformName returns the parent platform's name when the reference is
// attached, and the version's own full name otherwise.
func (v *PlatformVersion) PlatformName() string {
	if v.Platform != nil && v.Platform.Name() != "" {
		return v.Platform.Name()
	}
	return v.Name()
}

// AssessmentRun is a requested execution of a package version by a tool on
// a platform version, inside a project.
type AssessmentRun struct {
	Record

	Project         *Project
	PackageVersion  *PackageVersion
	Tool            *Tool
	PlatformVersion *PlatformVersion
}

var AssessmentRunSchema = Schema{
	IDKey: AssessmentRunIDKey,
	Identifiers: []string{AssessmentRunIDKey, "project_uuid", PackageIDKey,
		PackageVersionIDKey, ToolIDKey, ToolVersionIDKey, PlatformVersionIDKey, PlatformIDKey},
	Strings: []string{"package_name", "package_version_string", "tool_name",
		"tool_version_string", "platform_name", "platform_version_string"},
}

func NewAssessmentRun(f Fields) *AssessmentRun {
	return &AssessmentRun{Record: NewRecord(AssessmentRunIDKey, f)}
}

func (r *AssessmentRun) ProjectID() string         { return r.text("project_uuid") }
func (r *AssessmentRun) PackageVersionID() string  { return r.text(PackageVersionIDKey) }
func (r *AssessmentRun) ToolID() string            { return r.text(ToolIDKey) }
func (r *AssessmentRun) PlatformVersionID() string { return r.text(PlatformVersionIDKey) }
func (r *AssessmentRun) PackageName() string       { return r.text("package_name") }
func (r *AssessmentRun) ToolName() string          { return r.text("tool_name") }
func (r *AssessmentRun) PlatformName() string      { return r.text("platform_name") }

// AssessmentRecord is the server-tracked execution state of a run.
type AssessmentRecord struct {
	Record
}

var AssessmentRecordSchema = Schema{
	IDKey: AssessmentRecordIDKey,
	Identifiers: []string{AssessmentRecordIDKey, AssessmentRunIDKey,
		AssessmentResultIDKey, "project_uuid", PackageIDKey, PackageVersionIDKey,
		ToolIDKey, ToolVersionIDKey, PlatformIDKey, PlatformVersionIDKey},
	Strings: []string{"status", "weakness_cnt", "package_name", "package_version",
		"tool_name", "tool_version", "platform_name", "platform_version"},
	Dates: []string{"create_date"},
}

func NewAssessmentRecord(f Fields) *AssessmentRecord {
	return &AssessmentRecord{Record: NewRecord(AssessmentRecordIDKey, f)}
}

func (r *AssessmentRecord) Status() string          { return r.text("status") }
func (r *AssessmentRecord) RunID() string           { return r.text(AssessmentRunIDKey) }
func (r *AssessmentRecord) ResultID() string        { return r.text(AssessmentResultIDKey) }
func (r *AssessmentRecord) ProjectID() string       { return r.text("project_uuid") }
func (r *AssessmentRecord) PackageName() string     { return r.text("package_name") }
func (r *AssessmentRecord) PackageVersion() string  { return r.text("package_version") }
func (r *AssessmentRecord) ToolName() string        { return r.text("tool_name") }
func (r *AssessmentRecord) ToolVersion() string     { return r.text("tool_version") }
func (r *AssessmentRecord) PlatformName() string    { return r.text("platform_name") }
func (r *AssessmentRecord) PlatformVersion() string { return r.text("platform_version") }

// WeaknessCount returns the reported weakness count, "0" for runs that have
// not finished.
func (r *AssessmentRecord) WeaknessCount() string {
	if n := r.text("weakness_cnt"); n != "" {
		return n
	}
	return "0"
}

// AssessmentResults is the result set of a finished assessment.
type AssessmentResults struct {
	Record

	Project *Project
}

var AssessmentResultsSchema = Schema{
	IDKey:       AssessmentResultIDKey,
	Identifiers: []string{AssessmentResultIDKey, "project_uuid"},
	Strings: []string{"create_user", "update_user", "package_name", "package_version",
		"platform_name", "platform_version", "tool_name", "tool_version", "weakness_cnt"},
	Dates: []string{"create_date", "update_date"},
}

func NewAssessmentResults(f Fields) *AssessmentResults {
	return &AssessmentResults{Record: NewRecord(AssessmentResultIDKey, f)}
}

func (r *AssessmentResults) ProjectID() string     { return r.text("project_uuid") }
func (r *AssessmentResults) PackageName() string   { return r.text("package_name") }
func (r *AssessmentResults) ToolName() string      { return r.text("tool_name") }
func (r *AssessmentResults) PlatformName() string  { return r.text("platform_name") }
func (r *AssessmentResults) WeaknessCount() string { return r.text("weakness_cnt") }

// RunRequest groups assessment runs for scheduling.
type RunRequest struct {
	Record
}

var RunRequestSchema = Schema{
	IDKey:       RunRequestIDKey,
	Identifiers: []string{RunRequestIDKey, "project_uuid"},
	Strings:     []string{"name", "description"},
}

func NewRunRequest(f Fields) *RunRequest { return &RunRequest{Record: NewRecord(RunRequestIDKey, f)} }

func (r *RunRequest) Name() string        { return r.text("name") }
func (r *RunRequest) Description() string { return r.text("description") }

// User is a SWAMP account.
type User struct {
	Record
}

var UserSchema = Schema{
	IDKey:       UserIDKey,
	Identifiers: []string{UserIDKey},
	Strings: []string{"first_name", "last_name", "preferred_name", "username",
		"email", "address", "phone", "affiliation", "last_url"},
	Booleans: []string{"email_verified_flag", "enabled_flag", "owner_flag",
		"ssh_access_flag", "admin_flag"},
	Dates: []string{"create_date", "update_date"},
}

func NewUser(f Fields) *User { return &User{Record: NewRecord(UserIDKey, f)} }

func (u *User) Username() string { return u.text("username") }
func (u *User) Email() string    { return u.text("email") }
func (u *User) Admin() bool      { return u.flag("admin_flag") }
func (u *User) Enabled() bool    { return u.flag("enabled_flag") }

// DisplayName returns "first last", falling back to the username.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.text("first_name") + " " + u.text("last_name"))
	if name == "" {
		return u.Username()
	}
	return name
}

// FileHandle describes an archive staged on the server by an upload, before
// it is committed as a PackageVersion.
type FileHandle struct {
	Record
}

var FileHandleSchema = Schema{
	IDKey:       FileHandleIDKey,
	Identifiers: []string{FileHandleIDKey},
	Strings:     []string{"filename", "path", "extension", "mime", "size"},
}

func NewFileHandle(f Fields) *FileHandle { return &FileHandle{Record: NewRecord(FileHandleIDKey, f)} }

func (h *FileHandle) DestinationPath() string { return h.ID() }
func (h *FileHandle) Filename() string        { return h.text("filename") }
func (h *FileHandle) Path() string            { return h.text("path") }
