package foreground

import (
	"context"

	"github.com/progrium/darwinkit/macos/appkit"

	"github.com/hp77-creator/clipkeep/pkg/types"
)

// WorkspaceResolver asks NSWorkspace for the frontmost application. Window
// titles need accessibility permission, so the app name doubles as the title.
type WorkspaceResolver struct{}

// NewResolver returns the platform resolver
func NewResolver() Resolver {
	return WorkspaceResolver{}
}

func (WorkspaceResolver) Foreground(ctx context.Context) (*types.Source, error) {
	app := appkit.Workspace_SharedWorkspace().FrontmostApplication()
	name := app.LocalizedName()
	if name == "" {
		return nil, nil
	}
	return &types.Source{App: name, Title: name}, nil
}
