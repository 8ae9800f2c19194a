package utils

import (
	"fmt"
	"path"
	"strings"

	"github.com/maxkimambo/taskgraph/task"
)

// SelectModules resolves task selectors against the known module paths.
//   - "reports/daily" or "reports/daily.go" selects that module, known or not
//   - "reports/*" selects every known module matching the glob
//
// The result keeps the order of first selection and holds no duplicates.
// A glob that matches nothing is an error.
func SelectModules(known []string, selectors []string) ([]string, error) {
	var selected []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			selected = append(selected, p)
		}
	}

	for _, sel := range selectors {
		sel = strings.TrimSpace(sel)
		if sel == "" {
			continue
		}
		if !strings.ContainsAny(sel, "*?[") {
			add(task.ModulePath(sel))
			continue
		}

		pattern := strings.TrimPrefix(strings.ReplaceAll(sel, "\\", "/"), "./")
		if _, err := path.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("invalid task pattern %q: %w", sel, err)
		}

		matched := false
		for _, p := range known {
			if globMatch(pattern, p) {
				add(p)
				matched = true
			}
		}
		if !matched {
			return nil, fmt.Errorf("task pattern %q matches no module", sel)
		}
	}
	return selected, nil
}

// globMatch also tries the pattern with the .go suffix added, so
// "reports/*" and "reports/*.go" select the same modules.
func globMatch(pattern, p string) bool {
	if ok, _ := path.Match(pattern, p); ok {
		return true
	}
	if !strings.HasSuffix(pattern, ".go") {
		ok, _ := path.Match(pattern+".go", p)
		return ok
	}
	return false
}
