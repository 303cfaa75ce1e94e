package mcp

import (
	"github.com/nexuscore/agentcore/pkg/models"
)

// ToolSummaries flattens the registry's current catalog into the shared
// ToolSummary shape used by status and CLI listings.
func ToolSummaries(r *Registry) []models.ToolSummary {
	if r == nil {
		return nil
	}

	descriptors := r.ListTools()
	summaries := make([]models.ToolSummary, 0, len(descriptors))
	for _, d := range descriptors {
		summaries = append(summaries, models.ToolSummary{
			Name:        d.ExposedName,
			Description: d.Description,
			Schema:      d.InputSchema,
			Source:      "mcp",
			Namespace:   d.ServerID,
			Canonical:   d.QualifiedName,
		})
	}
	return summaries
}
