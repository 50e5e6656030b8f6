package task

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		task    Task
		wantErr string
	}{
		{
			name: "valid task",
			task: Task{ID: "t1", Type: TypeFeature, Priority: 5, Title: "T"},
		},
		{
			name:    "missing id",
			task:    Task{Type: TypeFeature, Priority: 5, Title: "T"},
			wantErr: "id",
		},
		{
			name:    "bad id characters",
			task:    Task{ID: "has spaces", Type: TypeFeature, Priority: 5, Title: "T"},
			wantErr: "id",
		},
		{
			name:    "id starting with hyphen",
			task:    Task{ID: "-t1", Type: TypeFeature, Priority: 5, Title: "T"},
			wantErr: "id",
		},
		{
			name:    "unknown type",
			task:    Task{ID: "t1", Type: "epic", Priority: 5, Title: "T"},
			wantErr: "type",
		},
		{
			name:    "priority too low",
			task:    Task{ID: "t1", Type: TypeFeature, Priority: 0, Title: "T"},
			wantErr: "priority",
		},
		{
			name:    "priority too high",
			task:    Task{ID: "t1", Type: TypeFeature, Priority: 11, Title: "T"},
			wantErr: "priority",
		},
		{
			name:    "missing title",
			task:    Task{ID: "t1", Type: TypeFeature, Priority: 5},
			wantErr: "title",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestTypeWeightOrdering(t *testing.T) {
	order := []Type{TypeBugfix, TypeFeature, TypeRefactor, TypeTest, TypeDocs, TypeChore}
	for i := 1; i < len(order); i++ {
		if order[i-1].Weight() <= order[i].Weight() {
			t.Errorf("%s weight %d not greater than %s weight %d",
				order[i-1], order[i-1].Weight(), order[i], order[i].Weight())
		}
	}
	if Type("epic").Weight() != 0 {
		t.Error("unknown type should weigh 0")
	}
}

func TestIsEnabledDefaultsTrue(t *testing.T) {
	if !(&Task{ID: "t"}).IsEnabled() {
		t.Error("nil Enabled should mean enabled")
	}
	f := false
	if (&Task{ID: "t", Enabled: &f}).IsEnabled() {
		t.Error("Enabled=false should mean disabled")
	}
}

func TestClone(t *testing.T) {
	orig := &Task{
		ID:           "t1",
		Type:         TypeFeature,
		Priority:     5,
		Title:        "T",
		Dependencies: []string{"a", "b"},
		Tags:         []string{"x"},
	}

	clone := orig.Clone()
	clone.Dependencies[0] = "mutated"
	clone.Tags[0] = "mutated"

	if orig.Dependencies[0] != "a" || orig.Tags[0] != "x" {
		t.Error("Clone() shares slices with the original")
	}
}

func TestPrepareDefaults(t *testing.T) {
	tasks := []*Task{{ID: "t1", Title: "T"}}

	got, err := Prepare(tasks)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if got[0].Priority != 5 {
		t.Errorf("default priority = %d, want 5", got[0].Priority)
	}
	if got[0].Type != TypeFeature {
		t.Errorf("default type = %q, want feature", got[0].Type)
	}
}

func TestPrepareRejectsDuplicateIDs(t *testing.T) {
	tasks := []*Task{
		{ID: "t1", Title: "A"},
		{ID: "t1", Title: "B"},
	}

	if _, err := Prepare(tasks); err == nil {
		t.Error("Prepare() should reject duplicate ids")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.json")
	content := `{
		"tasks": [
			{"id": "t1", "title": "First", "type": "bugfix", "priority": 8},
			{"id": "t2", "title": "Second", "dependencies": ["t1"]}
		]
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	tasks, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("Load() returned %d tasks, want 2", len(tasks))
	}
	if tasks[0].Type != TypeBugfix || tasks[0].Priority != 8 {
		t.Errorf("t1 = %+v, want bugfix priority 8", tasks[0])
	}
	if tasks[1].Priority != 5 || tasks[1].Type != TypeFeature {
		t.Errorf("t2 defaults not applied: %+v", tasks[1])
	}
	if len(tasks[1].Dependencies) != 1 || tasks[1].Dependencies[0] != "t1" {
		t.Errorf("t2 dependencies = %v, want [t1]", tasks[1].Dependencies)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/tasks.json"); err == nil {
		t.Error("Load() should fail for a missing file")
	}
}
