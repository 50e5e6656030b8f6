package scheduler

import (
	"sort"

	"github.com/gammazero/toposort"

	"github.com/aristath/taskdriver/internal/task"
)

// Graph is a read-only dependency view over a validated task set.
// Disabled tasks are excluded at construction; a dependency on a
// disabled or absent task is an UnknownDependencyError.
type Graph struct {
	tasks map[string]*task.Task
	ids   []string // insertion order, for deterministic traversal
}

// NewGraph builds the adjacency index and verifies every dependency id
// resolves to an enabled task in the set.
func NewGraph(tasks []*task.Task) (*Graph, error) {
	g := &Graph{tasks: make(map[string]*task.Task, len(tasks))}

	for _, t := range tasks {
		if !t.IsEnabled() {
			continue
		}
		g.tasks[t.ID] = t
		g.ids = append(g.ids, t.ID)
	}

	for _, id := range g.ids {
		for _, depID := range g.tasks[id].Dependencies {
			if _, ok := g.tasks[depID]; !ok {
				return nil, &UnknownDependencyError{TaskID: id, DependencyID: depID}
			}
		}
	}

	return g, nil
}

// Validate checks acyclicity. The toposort pass over the edge set is
// the detector; when it reports a cycle, an explicit-stack DFS recovers
// the exact cycle path for the error.
func (g *Graph) Validate() error {
	var edges []toposort.Edge
	for _, id := range g.ids {
		t := g.tasks[id]
		if len(t.Dependencies) == 0 {
			// Edge from nil keeps dependency-free tasks in the sort.
			edges = append(edges, toposort.Edge{nil, id})
			continue
		}
		for _, depID := range t.Dependencies {
			edges = append(edges, toposort.Edge{depID, id})
		}
	}

	if _, err := toposort.Toposort(edges); err != nil {
		cycle := g.findCycle()
		if cycle == nil {
			// Toposort disagreed but the DFS found nothing; should not
			// happen, surface the remaining set rather than guessing.
			return &UnresolvableGraphError{Remaining: g.sortedIDs()}
		}
		return &CircularDependencyError{Cycle: cycle}
	}
	return nil
}

// findCycle runs an iterative depth-first search over dependency edges
// using an explicit frame stack, so pathological inputs with thousands
// of tasks cannot exhaust the goroutine stack. Returns the first cycle
// found as [a b c a], or nil.
func (g *Graph) findCycle() []string {
	const (
		unvisited = iota
		inProgress
		done
	)

	type frame struct {
		id   string
		next int // index of the next dependency to visit
	}

	state := make(map[string]int, len(g.tasks))

	for _, root := range g.sortedIDs() {
		if state[root] != unvisited {
			continue
		}

		stack := []frame{{id: root}}
		path := []string{root}
		state[root] = inProgress

		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			deps := g.tasks[f.id].Dependencies

			advanced := false
			for f.next < len(deps) {
				depID := deps[f.next]
				f.next++

				switch state[depID] {
				case unvisited:
					state[depID] = inProgress
					stack = append(stack, frame{id: depID})
					path = append(path, depID)
					advanced = true
				case inProgress:
					// depID is on the active stack: the cycle is the
					// path slice from its first occurrence, closed.
					for i, id := range path {
						if id == depID {
							cycle := append([]string{}, path[i:]...)
							return append(cycle, depID)
						}
					}
				}
				if advanced {
					break
				}
			}

			if !advanced {
				state[f.id] = done
				stack = stack[:len(stack)-1]
				path = path[:len(path)-1]
			}
		}
	}

	return nil
}

// Get returns the task for an id.
func (g *Graph) Get(id string) (*task.Task, bool) {
	t, ok := g.tasks[id]
	return t, ok
}

// Len returns the number of enabled tasks in the graph.
func (g *Graph) Len() int {
	return len(g.tasks)
}

func (g *Graph) sortedIDs() []string {
	ids := append([]string(nil), g.ids...)
	sort.Strings(ids)
	return ids
}
