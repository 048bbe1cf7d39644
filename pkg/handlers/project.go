package handlers

import (
	"context"

	"github.com/nodebridge/nodebridge/pkg/dispatch"
	"github.com/nodebridge/nodebridge/pkg/protocol"
	"github.com/nodebridge/nodebridge/pkg/risk"
)

// ProjectHost is the host collaborator for project-level operations: status
// reporting and persisting the open project. Saving overwrites on-disk
// state, so it sits behind the confirmation gate.
type ProjectHost interface {
	ProjectStatus(ctx context.Context) (map[string]any, error)
	SaveProject(ctx context.Context) error
}

// ProjectHandlers exposes the project category.
type ProjectHandlers struct {
	project ProjectHost
}

// NewProjectHandlers creates the project category handler set.
func NewProjectHandlers(project ProjectHost) *ProjectHandlers {
	return &ProjectHandlers{project: project}
}

// Register adds the project commands to the dispatcher.
func (h *ProjectHandlers) Register(d *dispatch.Dispatcher) error {
	regs := []dispatch.Registration{
		{
			Type: "project_status", Category: "project", Tier: risk.TierNone,
			Handler: dispatch.HandlerFunc(h.status),
		},
		{
			Type: "project_save", Category: "project", Tier: risk.TierMedium,
			Preview: func(map[string]any) string {
				return "save the open project, overwriting its on-disk state"
			},
			Handler: dispatch.HandlerFunc(h.save),
		},
	}
	for _, reg := range regs {
		if err := d.Register(reg); err != nil {
			return err
		}
	}
	return nil
}

func (h *ProjectHandlers) status(ctx context.Context, params map[string]any) *protocol.Result {
	status, err := h.project.ProjectStatus(ctx)
	if err != nil {
		return resultFromError(err)
	}
	return protocol.OK(status)
}

func (h *ProjectHandlers) save(ctx context.Context, params map[string]any) *protocol.Result {
	if err := h.project.SaveProject(ctx); err != nil {
		return resultFromError(err)
	}
	return protocol.OK(map[string]any{"saved": true})
}
