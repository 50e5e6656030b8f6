package scheduler

import (
	"sort"

	"github.com/aristath/taskdriver/internal/task"
)

// Resolve validates a task set and returns a total execution order:
// topological levels concatenated, each level internally sorted by the
// tie-break comparator. The order is deterministic for identical input.
//
// Errors: *UnknownDependencyError, *CircularDependencyError (with the
// full cycle path), *UnresolvableGraphError (defensive).
func Resolve(tasks []*task.Task) ([]*task.Task, error) {
	g, err := NewGraph(tasks)
	if err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}

	levels, err := g.Levels()
	if err != nil {
		return nil, err
	}

	ordered := make([]*task.Task, 0, g.Len())
	for _, level := range levels {
		ordered = append(ordered, level...)
	}
	return ordered, nil
}

// Levels partitions the graph into execution levels: each level is the
// maximal set of tasks whose dependencies are all in strictly earlier
// levels. Call Validate first; on a cyclic graph this returns the
// defensive UnresolvableGraphError instead of looping forever.
func (g *Graph) Levels() ([][]*task.Task, error) {
	placed := make(map[string]bool, len(g.tasks))
	var levels [][]*task.Task

	for len(placed) < len(g.tasks) {
		var level []*task.Task
		for _, id := range g.ids {
			if placed[id] {
				continue
			}
			t := g.tasks[id]
			ready := true
			for _, depID := range t.Dependencies {
				if !placed[depID] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, t.Clone())
			}
		}

		if len(level) == 0 {
			var remaining []string
			for _, id := range g.ids {
				if !placed[id] {
					remaining = append(remaining, id)
				}
			}
			sort.Strings(remaining)
			return nil, &UnresolvableGraphError{Remaining: remaining}
		}

		sortLevel(level)
		for _, t := range level {
			placed[t.ID] = true
		}
		levels = append(levels, level)
	}

	return levels, nil
}

// sortLevel orders tasks within a level: priority descending, then the
// fixed type table (bugfix > feature > refactor > test > docs > chore),
// then estimated duration ascending, then id for totality. The type
// table only ever breaks priority ties.
func sortLevel(level []*task.Task) {
	sort.SliceStable(level, func(i, j int) bool {
		a, b := level[i], level[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if aw, bw := a.Type.Weight(), b.Type.Weight(); aw != bw {
			return aw > bw
		}
		if a.EstimatedMinutes != b.EstimatedMinutes {
			return a.EstimatedMinutes < b.EstimatedMinutes
		}
		return a.ID < b.ID
	})
}
