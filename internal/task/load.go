package task

import (
	"encoding/json"
	"fmt"
	"os"
)

// File is the on-disk shape of a task file.
type File struct {
	Tasks []*Task `json:"tasks"`
}

// Load reads a JSON task file, applies defaults, and validates every
// task. Duplicate ids are rejected here; dangling dependency ids are
// left for the resolver, which reports them as unknown dependencies.
func Load(path string) ([]*Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading task file %s: %w", path, err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing task file %s: %w", path, err)
	}

	return Prepare(f.Tasks)
}

// Prepare applies defaults and validates an already-decoded task set.
func Prepare(tasks []*Task) ([]*Task, error) {
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if t.Priority == 0 {
			t.Priority = 5
		}
		if t.Type == "" {
			t.Type = TypeFeature
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("duplicate task id %q", t.ID)
		}
		seen[t.ID] = true
	}
	return tasks, nil
}
