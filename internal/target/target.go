// Package target writes task outputs to the artifacts declared in their modules.
package target

import (
	"fmt"
	"strings"

	tgerrors "github.com/maxkimambo/taskgraph/internal/errors"
	"github.com/maxkimambo/taskgraph/internal/project"
)

// Type is an artifact encoding.
type Type string

const (
	Text Type = "Text"
	JSON Type = "JSON"
	CSV  Type = "CSV"
	YAML Type = "YAML"
	TOML Type = "TOML"
)

var extensions = map[Type]string{
	Text: ".txt",
	JSON: ".json",
	CSV:  ".csv",
	YAML: ".yaml",
	TOML: ".toml",
}

// ParseType reads the type argument of a target directive. Qualified names
// such as task.CSV and any letter case are accepted.
func ParseType(tag string) (Type, error) {
	name := strings.TrimSpace(tag)
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	name = strings.Trim(name, "\"`")

	for t := range extensions {
		if strings.EqualFold(string(t), name) {
			return t, nil
		}
	}
	return "", tgerrors.NewPipelineError(tgerrors.ErrorCategorySyntax, tgerrors.CodeTargetType,
		fmt.Sprintf("unknown target type %q", tag), "Target materialization").
		WithTroubleshooting("Use one of Text, JSON, CSV, YAML, TOML")
}

// Extension returns the file extension used for iterator members.
func (t Type) Extension() string {
	return extensions[t]
}

// Policy decides what happens to targets around a run.
type Policy string

const (
	// PolicyAlways runs every task and overwrites its targets.
	PolicyAlways Policy = project.PolicyAlways
	// PolicySkipExisting loads the output from existing targets instead of running the task.
	PolicySkipExisting Policy = project.PolicySkipExisting
	// PolicyVerify runs every task and fails it when a target is missing afterwards.
	PolicyVerify Policy = project.PolicyVerify
)

// ParsePolicy validates a target_policy value. The empty string means PolicyAlways.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyAlways:
		return PolicyAlways, nil
	case PolicySkipExisting, PolicyVerify:
		return Policy(s), nil
	}
	return "", tgerrors.NewConfigurationError(tgerrors.CodeConfigInvalid,
		fmt.Sprintf("unknown target policy %q", s), "Target policy")
}
