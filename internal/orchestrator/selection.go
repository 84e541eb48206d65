package orchestrator

import (
	"strings"

	"github.com/ShayCichocki/squadron/internal/specialist"
	"github.com/ShayCichocki/squadron/pkg/models"
)

// DefaultMaxSpecialists caps selection when no limit is configured.
const DefaultMaxSpecialists = 4

// SelectSpecialists filters the recommended specialists to the selectable
// set, de-duplicates them and caps the list at limit. An empty selection
// falls back to bugfix. A limit of zero or less disables team mode and
// selects nobody.
func SelectSpecialists(analysis *models.TaskAnalysis, limit int) []models.SpecialistType {
	if limit <= 0 {
		return nil
	}

	seen := make(map[models.SpecialistType]bool)
	var selected []models.SpecialistType
	if analysis != nil {
		for _, name := range analysis.RecommendedSpecialists {
			t := models.SpecialistType(strings.ToLower(strings.TrimSpace(name)))
			if !t.Selectable() || seen[t] {
				continue
			}
			seen[t] = true
			selected = append(selected, t)
			if len(selected) == limit {
				break
			}
		}
	}
	if len(selected) == 0 {
		selected = []models.SpecialistType{models.SpecialistBugfix}
	}
	return selected
}

// BuildSubTasks creates one subtask per selected specialist. Each carries the
// full task text as context, and the specialist's title and focus from the
// catalog.
func BuildSubTasks(taskID, project, description string, types []models.SpecialistType, catalog *specialist.Catalog) []models.SubTask {
	if catalog == nil {
		catalog = specialist.Builtin()
	}
	subtasks := make([]models.SubTask, 0, len(types))
	for i, t := range types {
		def, _ := catalog.Get(t)
		subtasks = append(subtasks, models.SubTask{
			ID:             models.SubTaskID(taskID, t),
			TaskID:         taskID,
			Project:        project,
			SpecialistType: t,
			Title:          def.Title,
			Description:    subtaskDescription(def, description),
			Context:        description,
			Priority:       i,
		})
	}
	return subtasks
}

func subtaskDescription(def specialist.Definition, description string) string {
	if def.Focus == "" {
		return description
	}
	return def.Focus
}
