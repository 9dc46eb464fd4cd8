package handler

import (
	"log/slog"
	"sync"

	"github.com/data-douser/swamp-go/internal/session"
)

// Options configures the handlers a Factory builds.
type Options struct {
	// MaxScopes bounds each handler's scope cache (default: DefaultMaxScopes).
	MaxScopes int

	Logger *slog.Logger
}

// Factory builds the handlers of one session on first use and hands out
// the same instance afterwards. Projects and Users talk to the RWS
// sub-session; everything else goes through CSA.
type Factory struct {
	session *session.Session
	opts    Options

	mu                sync.Mutex
	projects          *Projects
	users             *Users
	packages          *Packages
	packageVersions   *PackageVersions
	tools             *Tools
	toolVersions      *ToolVersions
	platforms         *Platforms
	platformVersions  *PlatformVersions
	assessmentRuns    *AssessmentRuns
	assessmentRecords *AssessmentRecords
	assessmentResults *AssessmentResults
	runRequests       *RunRequests
}

// NewFactory creates a Factory over an authenticated session.
func NewFactory(s *session.Session, opts Options) *Factory {
	opts.Logger = logger(opts.Logger)
	return &Factory{session: s, opts: opts}
}

// Session returns the session the handlers are bound to.
func (f *Factory) Session() *session.Session { return f.session }

func (f *Factory) Projects() *Projects {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.projects == nil {
		f.projects = newProjects(f.session.RWS().Client(), f.session.UserID(), f.opts)
	}
	return f.projects
}

func (f *Factory) Users() *Users {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.users == nil {
		f.users = newUsers(f.session.RWS().Client(), f.opts)
	}
	return f.users
}

func (f *Factory) Packages() *Packages {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.packages == nil {
		f.packages = newPackages(f.session.CSA().Client(), f.session.UserID(), f.opts)
	}
	return f.packages
}

func (f *Factory) PackageVersions() *PackageVersions {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.packageVersions == nil {
		f.packageVersions = newPackageVersions(f.session.CSA().Client(), f.session.UserID(), f.opts)
	}
	return f.packageVersions
}

func (f *Factory) Tools() *Tools {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tools == nil {
		f.tools = newTools(f.session.CSA().Client(), f.opts)
	}
	return f.tools
}

func (f *Factory) ToolVersions() *ToolVersions {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.toolVersions == nil {
		f.toolVersions = newToolVersions(f.session.CSA().Client(), f.opts)
	}
	return f.toolVersions
}

func (f *Factory) Platforms() *Platforms {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.platformsLocked()
}

func (f *Factory) platformsLocked() *Platforms {
	if f.platforms == nil {
		f.platforms = newPlatforms(f.session.CSA().Client(), f.opts)
	}
	return f.platforms
}

// PlatformVersions shares the Factory's Platforms handler for parent
// lookups.
func (f *Factory) PlatformVersions() *PlatformVersions {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.platformVersions == nil {
		f.platformVersions = newPlatformVersions(f.session.CSA().Client(), f.platformsLocked(), f.opts)
	}
	return f.platformVersions
}

func (f *Factory) AssessmentRuns() *AssessmentRuns {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.assessmentRuns == nil {
		f.assessmentRuns = newAssessmentRuns(f.session.CSA().Client(), f.opts)
	}
	return f.assessmentRuns
}

func (f *Factory) AssessmentRecords() *AssessmentRecords {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.assessmentRecords == nil {
		f.assessmentRecords = newAssessmentRecords(f.session.CSA().Client(), f.opts)
	}
	return f.assessmentRecords
}

func (f *Factory) AssessmentResults() *AssessmentResults {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.assessmentResults == nil {
		f.assessmentResults = newAssessmentResults(f.session.CSA().Client(), f.opts)
	}
	return f.assessmentResults
}

func (f *Factory) RunRequests() *RunRequests {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.runRequests == nil {
		f.runRequests = newRunRequests(f.session.CSA().Client(), f.opts)
	}
	return f.runRequests
}
