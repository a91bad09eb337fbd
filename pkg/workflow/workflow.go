// Package workflow executes the declarative pipeline definition: a trigger,
// a concurrency group and an ordered set of jobs handing artifacts to each
// other.
package workflow

import (
	"os"
	"path"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the workflow definition lives relative to the
// project root.
const DefaultPath = ".hatch/workflows/build.yml"

// Definition is a parsed workflow file.
type Definition struct {
	Name        string         `yaml:"name"`
	On          Trigger        `yaml:"on"`
	Concurrency Concurrency    `yaml:"concurrency"`
	Jobs        map[string]Job `yaml:"jobs"`
}

// Trigger declares when the workflow runs.
type Trigger struct {
	Push struct {
		Tags []string `yaml:"tags"`
	} `yaml:"push"`
}

// Concurrency limits parallel runs of the same group.
type Concurrency struct {
	Group            string `yaml:"group"`
	CancelInProgress bool   `yaml:"cancel-in-progress"`
}

// Job is one unit of execution.
type Job struct {
	Needs []string          `yaml:"needs"`
	Env   map[string]string `yaml:"env"`
	Steps []Step            `yaml:"steps"`
}

// Step is either a shell command (run) or a builtin action (uses).
type Step struct {
	Name string            `yaml:"name"`
	Run  string            `yaml:"run"`
	Uses string            `yaml:"uses"`
	With map[string]string `yaml:"with"`
}

// Load parses and validates a workflow file.
func Load(file string) (*Definition, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		return nil, eris.Wrapf(err, "could not open file %s", file)
	}

	return Parse(content, file)
}

// Parse parses and validates a workflow document.
func Parse(content []byte, file string) (*Definition, error) {
	var def Definition
	err := yaml.Unmarshal(content, &def)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse %s", file)
	}

	if len(def.Jobs) == 0 {
		return nil, eris.Errorf("%s does not declare any jobs", file)
	}

	for id, job := range def.Jobs {
		if len(job.Steps) == 0 {
			return nil, eris.Errorf("job %s does not declare any steps", id)
		}

		for idx, step := range job.Steps {
			if step.Run == "" && step.Uses == "" {
				return nil, eris.Errorf("step #%d of job %s needs either run or uses", idx+1, id)
			}
			if step.Run != "" && step.Uses != "" {
				return nil, eris.Errorf("step #%d of job %s cannot combine run and uses", idx+1, id)
			}
		}
	}

	// surface ordering problems at load time
	_, err = def.Order()
	if err != nil {
		return nil, err
	}

	return &def, nil
}

// Triggered reports whether the given ref matches one of the trigger
// patterns. Refs may be passed fully qualified (refs/tags/...) or as the
// plain tag name.
func (d *Definition) Triggered(ref string) bool {
	tag := strings.TrimPrefix(ref, "refs/tags/")

	for _, pattern := range d.On.Push.Tags {
		matched, err := path.Match(pattern, tag)
		if err == nil && matched {
			return true
		}
	}

	return false
}

// Group renders the concurrency group for a ref. An empty result means no
// concurrency limit was declared.
func (d *Definition) Group(ref string) string {
	group := d.Concurrency.Group
	if group == "" {
		return ""
	}

	return strings.ReplaceAll(group, "${{ ref }}", ref)
}

// Order returns the job IDs in execution order: topological over needs with
// lexicographic tie-breaking so runs are deterministic.
func (d *Definition) Order() ([]string, error) {
	remaining := map[string]int{}
	dependents := map[string][]string{}

	for id, job := range d.Jobs {
		remaining[id] = len(job.Needs)

		for _, need := range job.Needs {
			if _, ok := d.Jobs[need]; !ok {
				return nil, eris.Errorf("job %s needs unknown job %s", id, need)
			}

			dependents[need] = append(dependents[need], id)
		}
	}

	ready := []string{}
	for id, count := range remaining {
		if count == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(d.Jobs))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		released := []string{}
		for _, dependent := range dependents[id] {
			remaining[dependent]--
			if remaining[dependent] == 0 {
				released = append(released, dependent)
			}
		}

		sort.Strings(released)
		ready = mergeSorted(ready, released)
	}

	if len(order) != len(d.Jobs) {
		stuck := []string{}
		for id, count := range remaining {
			if count > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)

		return nil, eris.Errorf("jobs have circular needs: %s", strings.Join(stuck, ", "))
	}

	return order, nil
}

func mergeSorted(a, b []string) []string {
	result := make([]string, 0, len(a)+len(b))
	for len(a) > 0 && len(b) > 0 {
		if a[0] <= b[0] {
			result = append(result, a[0])
			a = a[1:]
		} else {
			result = append(result, b[0])
			b = b[1:]
		}
	}

	result = append(result, a...)
	return append(result, b...)
}
