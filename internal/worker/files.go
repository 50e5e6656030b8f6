package worker

import (
	"bufio"
	"context"
	"strings"
)

// detectChangedFiles lists paths reported dirty by git in the worker's
// working directory. The CLIs do not report which files they touched,
// so the working tree is the source of truth. Errors are swallowed: a
// non-repository workdir just yields no changed files, and the branch
// layer falls back to staging everything.
func detectChangedFiles(ctx context.Context, workDir string) []string {
	cmd := newCommand(ctx, "git", "status", "--porcelain")
	cmd.Dir = workDir

	stdout, _, err := executeCommand(ctx, cmd, nil)
	if err != nil {
		return nil
	}

	return parsePorcelainStatus(string(stdout))
}

// parsePorcelainStatus extracts file paths from `git status --porcelain`
// output. Rename entries ("R  old -> new") yield the new path.
func parsePorcelainStatus(out string) []string {
	var files []string
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 4 {
			continue
		}
		path := strings.TrimSpace(line[3:])
		if i := strings.Index(path, " -> "); i != -1 {
			path = path[i+4:]
		}
		if path != "" {
			files = append(files, path)
		}
	}
	return files
}
