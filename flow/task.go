package flow

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/llmflow/core"
)

// Task is a single generation step declared in a YAML file:
//
//	model: fast
//	system: You are a poet.
//	prompt: Write a haiku about {{.topic}}.
//	format: string
//	output: haiku.txt
//	overwrite: exact
//	variables:
//	  topic: autumn
type Task struct {
	Model     string         `yaml:"model"`
	Prompt    string         `yaml:"prompt"`
	System    string         `yaml:"system"`
	Format    string         `yaml:"format"`
	Output    string         `yaml:"output"`
	Overwrite string         `yaml:"overwrite"`
	Variables map[string]any `yaml:"variables"`
}

// LoadTask reads a task file.
func LoadTask(path string) (*Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task %s: %w", path, err)
	}
	return ParseTask(data)
}

// ParseTask decodes a task from YAML and validates format and policy.
func ParseTask(data []byte) (*Task, error) {
	var t Task
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse task: %w", err)
	}
	if t.Prompt == "" && t.System == "" {
		return nil, fmt.Errorf("task has neither prompt nor system")
	}
	if _, err := core.ParseOutputFormat(t.Format); err != nil {
		return nil, err
	}
	if _, err := core.ParseOverwritePolicy(t.Overwrite); err != nil {
		return nil, err
	}
	return &t, nil
}

// Builder applies the task to b. vars override the task variables.
func (t *Task) Builder(b Builder, vars map[string]any) Builder {
	format, _ := core.ParseOutputFormat(t.Format)
	policy, _ := core.ParseOverwritePolicy(t.Overwrite)

	b = b.Variables(t.Variables).Variables(vars)
	if t.Model != "" {
		b = b.Model(t.Model)
	}
	if t.System != "" {
		b = b.System(t.System)
	}
	b = b.Format(format).Overwrite(policy)
	if t.Output != "" {
		b = b.Output(t.Output)
	}
	return b.Prompt(t.Prompt)
}

// Run executes the task on top of b.
func (t *Task) Run(ctx context.Context, b Builder, vars map[string]any) (*Result, error) {
	return t.Builder(b, vars).Run(ctx)
}
