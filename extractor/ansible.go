package extractor

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/radon-h2020/radon-defect-predictor/core"
)

// Task keywords that are never module names.
var ansibleDirectives = map[string]struct{}{
	"any_errors_fatal": {}, "args": {}, "async": {}, "become": {},
	"become_method": {}, "become_user": {}, "block": {}, "changed_when": {},
	"check_mode": {}, "collections": {}, "connection": {}, "delay": {},
	"delegate_facts": {}, "delegate_to": {}, "diff": {}, "environment": {},
	"failed_when": {}, "gather_facts": {}, "handlers": {}, "hosts": {},
	"ignore_errors": {}, "listen": {}, "loop": {}, "loop_control": {},
	"max_fail_percentage": {}, "module_defaults": {}, "name": {},
	"no_log": {}, "notify": {}, "poll": {}, "port": {}, "post_tasks": {},
	"pre_tasks": {}, "register": {}, "remote_user": {}, "rescue": {},
	"retries": {}, "roles": {}, "run_once": {}, "serial": {},
	"strategy": {}, "tags": {}, "tasks": {}, "throttle": {}, "until": {},
	"vars": {}, "vars_files": {}, "vars_prompt": {}, "when": {},
	"always": {},
}

// Ansible extracts structural metrics from playbooks, task files and
// variable files. A file that does not parse as YAML is an error; the
// metric keys are fixed regardless of which shapes the file contains.
type Ansible struct{}

// NewAnsible builds the Ansible metric extractor.
func NewAnsible() *Ansible { return &Ansible{} }

// Language implements core.MetricExtractor.
func (a *Ansible) Language() string { return "ansible" }

// Extract implements core.MetricExtractor.
func (a *Ansible) Extract(src []byte) (core.FeatureRow, error) {
	if len(bytes.TrimSpace(src)) == 0 {
		return nil, fmt.Errorf("empty source")
	}

	var t ansibleTally
	t.modules = make(map[string]struct{})

	dec := yaml.NewDecoder(bytes.NewReader(src))
	for {
		var doc any
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		t.document(doc)
	}

	code, comment, blank := countLines(src)
	units := t.tasks + t.handlers
	avgTaskSize := 0.0
	if units > 0 {
		avgTaskSize = float64(code) / float64(units)
	}
	return core.FeatureRow{
		"lines_code":           float64(code),
		"lines_comment":        float64(comment),
		"lines_blank":          float64(blank),
		"num_plays":            float64(t.plays),
		"num_tasks":            float64(t.tasks),
		"num_handlers":         float64(t.handlers),
		"num_blocks":           float64(t.blocks),
		"num_conditions":       float64(t.conditions),
		"num_loops":            float64(t.loops),
		"num_vars":             float64(t.vars),
		"num_roles":            float64(t.roles),
		"num_distinct_modules": float64(len(t.modules)),
		"avg_task_size":        avgTaskSize,
	}, nil
}

type ansibleTally struct {
	plays, tasks, handlers, blocks int
	conditions, loops, vars, roles int
	modules                        map[string]struct{}
}

// document dispatches on the three root shapes: a playbook (list of
// plays), a task file (list of tasks) and a variable file (mapping).
func (t *ansibleTally) document(doc any) {
	switch root := doc.(type) {
	case []any:
		for _, item := range root {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if _, isPlay := m["hosts"]; isPlay {
				t.plays++
				t.play(m)
			} else {
				t.taskEntry(m, &t.tasks)
			}
		}
	case map[string]any:
		t.vars += len(root)
	}
}

func (t *ansibleTally) play(play map[string]any) {
	t.common(play)
	for _, key := range []string{"pre_tasks", "tasks", "post_tasks"} {
		t.taskList(play[key], &t.tasks)
	}
	t.taskList(play["handlers"], &t.handlers)
	if roles, ok := play["roles"].([]any); ok {
		t.roles += len(roles)
	}
}

func (t *ansibleTally) taskList(v any, counter *int) {
	list, ok := v.([]any)
	if !ok {
		return
	}
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			t.taskEntry(m, counter)
		}
	}
}

// taskEntry counts one entry of a task list. Blocks count as blocks,
// not tasks, and their nested lists are walked with the same counter.
func (t *ansibleTally) taskEntry(task map[string]any, counter *int) {
	t.common(task)
	if _, isBlock := task["block"]; isBlock {
		t.blocks++
		for _, key := range []string{"block", "rescue", "always"} {
			t.taskList(task[key], counter)
		}
		return
	}
	*counter++
	for key := range task {
		if _, directive := ansibleDirectives[key]; directive {
			continue
		}
		if strings.HasPrefix(key, "with_") {
			continue
		}
		t.modules[key] = struct{}{}
	}
}

// common counts the directives that may appear on plays, blocks and
// tasks alike.
func (t *ansibleTally) common(entry map[string]any) {
	if when, ok := entry["when"]; ok {
		if clauses, isList := when.([]any); isList {
			t.conditions += len(clauses)
		} else {
			t.conditions++
		}
	}
	if _, ok := entry["loop"]; ok {
		t.loops++
	}
	for key := range entry {
		if strings.HasPrefix(key, "with_") {
			t.loops++
		}
	}
	if vars, ok := entry["vars"].(map[string]any); ok {
		t.vars += len(vars)
	}
}

func countLines(src []byte) (code, comment, blank int) {
	scanner := bufio.NewScanner(bytes.NewReader(src))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			blank++
		case strings.HasPrefix(line, "#"):
			comment++
		default:
			code++
		}
	}
	return code, comment, blank
}
