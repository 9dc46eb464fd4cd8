package handler

import (
	"context"
	"fmt"

	"github.com/data-douser/swamp-go/api"
	"github.com/data-douser/swamp-go/internal/errdefs"
	"github.com/data-douser/swamp-go/internal/transport"
)

// Projects lists the projects of the logged in user.
type Projects struct {
	*Handler[*api.Project]
	userID string
}

func newProjects(client *transport.Client, userID string, opts Options) *Projects {
	return &Projects{
		Handler: New(client, Config[*api.Project]{
			Kind:      "Project",
			Base:      "projects",
			ListURL:   func(string) string { return "users/" + userID + "/projects" },
			Schema:    api.ProjectSchema,
			Wrap:      api.NewProject,
			MaxScopes: opts.MaxScopes,
			Logger:    opts.Logger,
		}),
		userID: userID,
	}
}

// All returns every project of the user.
func (p *Projects) All(ctx context.Context) ([]*api.Project, error) {
	return p.List(ctx, "")
}

// Lookup resolves a project by identifier from the user's project list.
func (p *Projects) Lookup(ctx context.Context, id string) (*api.Project, error) {
	return p.Find(ctx, "", id)
}

// ByName resolves a project by full or short name.
func (p *Projects) ByName(ctx context.Context, name string) (*api.Project, error) {
	all, err := p.All(ctx)
	if err != nil {
		return nil, err
	}
	for _, proj := range all {
		if proj.FullName() == name || proj.ShortName() == name {
			return proj, nil
		}
	}
	return nil, &errdefs.InvalidNameError{Kind: "Project", Name: name}
}

// Create creates a software development project owned by the user.
func (p *Projects) Create(ctx context.Context, fullName, shortName, description string) (*api.Project, error) {
	if fullName == "" {
		return nil, &errdefs.ClientOptionError{Msg: "project name is required"}
	}
	if shortName == "" {
		shortName = fullName
	}
	proj, err := p.Handler.Create(ctx, api.Fields{
		"full_name":         api.String(fullName),
		"short_name":        api.String(shortName),
		"description":       api.String(description),
		"project_owner_uid": api.Identifier(p.userID),
		"project_type_code": api.String("SW_DEV"),
		"status":            api.String("pending"),
	})
	if err != nil {
		return nil, fmt.Errorf("create project %q: %w", fullName, err)
	}
	return proj, nil
}

// Users reads account information. It talks to the RWS sub-session.
type Users struct {
	*Handler[*api.User]
}

func newUsers(client *transport.Client, opts Options) *Users {
	return &Users{Handler: New(client, Config[*api.User]{
		Kind:      "User",
		Base:      "users",
		Schema:    api.UserSchema,
		Wrap:      api.NewUser,
		MaxScopes: opts.MaxScopes,
		Logger:    opts.Logger,
	})}
}

// Current returns the logged in user.
func (u *Users) Current(ctx context.Context) (*api.User, error) {
	return u.Get(ctx, "current")
}
