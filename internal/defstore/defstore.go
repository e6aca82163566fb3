// Package defstore implements the Metadata API's backing store (spec
// §6): workflow and task definition registration, lookup, and removal,
// loaded from YAML files and optionally hot-reloaded. It is adapted
// from the teacher's internal/workflow/parser.Parser — same
// afero.Fs + gopkg.in/yaml.v3 read path — generalized from the old
// product's single ad-hoc Workflow shape to the engine's versioned
// WorkflowDefinition/TaskDefinition pair, and extended with
// github.com/fsnotify/fsnotify for hot-reload and dario.cat/mergo for
// ad-hoc StartRequest.WorkflowDef overrides.
package defstore

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"dario.cat/mergo"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/sarlalian/conductorial/internal/apierr"
	"github.com/sarlalian/conductorial/pkg/model"
)

// Store holds registered workflow and task definitions in memory,
// indexed the way the StateStore indexes instances.
type Store struct {
	mu sync.RWMutex

	workflows map[string]map[int]*model.WorkflowDefinition // name -> version -> def
	tasks     map[string]*model.TaskDefinition
}

func New() *Store {
	return &Store{
		workflows: make(map[string]map[int]*model.WorkflowDefinition),
		tasks:     make(map[string]*model.TaskDefinition),
	}
}

// RegisterWorkflowDef registers def under (name, version), replacing
// any existing definition at that exact version.
func (s *Store) RegisterWorkflowDef(def *model.WorkflowDefinition) error {
	if def.Name == "" {
		return apierr.NewIllegalArgument("workflow definition name is required", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	versions := s.workflows[def.Name]
	if versions == nil {
		versions = map[int]*model.WorkflowDefinition{}
		s.workflows[def.Name] = versions
	}
	versions[def.Version] = def
	return nil
}

// UpdateWorkflowDef is RegisterWorkflowDef's alias: registration is
// already idempotent per (name, version), matching the teacher's
// treatment of re-applying a parsed definition.
func (s *Store) UpdateWorkflowDef(def *model.WorkflowDefinition) error {
	return s.RegisterWorkflowDef(def)
}

// RemoveWorkflowDef removes one version of a workflow definition.
func (s *Store) RemoveWorkflowDef(name string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions := s.workflows[name]
	if versions == nil {
		return apierr.NewNotFound("workflow definition", name)
	}
	if _, ok := versions[version]; !ok {
		return apierr.NewNotFound("workflow definition", name+"/"+strconv.Itoa(version))
	}
	delete(versions, version)
	if len(versions) == 0 {
		delete(s.workflows, name)
	}
	return nil
}

// GetWorkflowDef returns one version of a workflow definition.
func (s *Store) GetWorkflowDef(name string, version int) (*model.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions := s.workflows[name]
	if versions == nil {
		return nil, apierr.NewNotFound("workflow definition", name)
	}
	def, ok := versions[version]
	if !ok {
		return nil, apierr.NewNotFound("workflow definition", name+"/"+strconv.Itoa(version))
	}
	return def, nil
}

// GetLatestWorkflowDef returns the highest registered version of name.
func (s *Store) GetLatestWorkflowDef(name string) (*model.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions := s.workflows[name]
	if len(versions) == 0 {
		return nil, apierr.NewNotFound("workflow definition", name)
	}
	var nums []int
	for v := range versions {
		nums = append(nums, v)
	}
	sort.Ints(nums)
	return versions[nums[len(nums)-1]], nil
}

// RegisterTaskDef registers or replaces a task definition.
func (s *Store) RegisterTaskDef(def *model.TaskDefinition) error {
	if def.Name == "" {
		return apierr.NewIllegalArgument("task definition name is required", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[def.Name] = def
	return nil
}

func (s *Store) UpdateTaskDef(def *model.TaskDefinition) error { return s.RegisterTaskDef(def) }

// GetTaskDef returns the registered definition for name, or nil if
// unregistered — matching decider.LookupTaskDef's "nil is legal"
// contract.
func (s *Store) GetTaskDef(name string) *model.TaskDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tasks[name]
}

// RemoveTaskDef removes a registered task definition.
func (s *Store) RemoveTaskDef(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[name]; !ok {
		return apierr.NewNotFound("task definition", name)
	}
	delete(s.tasks, name)
	return nil
}

// ResolveWorkflowDef builds the definition a StartRequest should run
// against: the registered (name, version) definition — or its latest
// version when version is 0 — deep-merged with an ad-hoc override
// supplied on the request, per spec §6's `workflowDef?` field. Mirrors
// the teacher's setDefaults-then-validate two-step, with dario.cat/mergo
// performing the merge instead of a hand-rolled field walk.
func (s *Store) ResolveWorkflowDef(name string, version int, override *model.WorkflowDefinition) (*model.WorkflowDefinition, error) {
	var base *model.WorkflowDefinition
	var err error
	if name != "" {
		if version > 0 {
			base, err = s.GetWorkflowDef(name, version)
		} else {
			base, err = s.GetLatestWorkflowDef(name)
		}
		if err != nil && override == nil {
			return nil, err
		}
	}
	if override == nil {
		return base, nil
	}
	if base == nil {
		return override, nil
	}

	merged := *base
	if err := mergo.Merge(&merged, override, mergo.WithOverride()); err != nil {
		return nil, apierr.NewIllegalArgument("failed to merge ad-hoc workflow definition", err)
	}
	return &merged, nil
}

// LoadDir walks root on fs for *.yaml/*.yml files under a "workflows"
// and a "tasks" subdirectory and registers each, the same afero-backed
// read path as the teacher's Parser.ParseFile.
func (s *Store) LoadDir(fs afero.Fs, root string) error {
	if err := s.loadWorkflowDir(fs, filepath.Join(root, "workflows")); err != nil {
		return err
	}
	return s.loadTaskDir(fs, filepath.Join(root, "tasks"))
}

func (s *Store) loadWorkflowDir(fs afero.Fs, dir string) error {
	return walkYAML(fs, dir, func(data []byte) error {
		def := &model.WorkflowDefinition{}
		if err := decodeYAML(data, def); err != nil {
			return err
		}
		return s.RegisterWorkflowDef(def)
	})
}

func (s *Store) loadTaskDir(fs afero.Fs, dir string) error {
	return walkYAML(fs, dir, func(data []byte) error {
		def := &model.TaskDefinition{}
		if err := decodeYAML(data, def); err != nil {
			return err
		}
		return s.RegisterTaskDef(def)
	})
}

func walkYAML(fs afero.Fs, dir string, register func([]byte) error) error {
	exists, err := afero.DirExists(fs, dir)
	if err != nil || !exists {
		return nil
	}
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return apierr.NewIllegalArgument("failed to read definitions directory "+dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		data, err := afero.ReadFile(fs, filepath.Join(dir, entry.Name()))
		if err != nil {
			return apierr.NewIllegalArgument("failed to read "+entry.Name(), err)
		}
		if err := register(data); err != nil {
			return err
		}
	}
	return nil
}

// decodeYAML decodes raw YAML into a generic tree, then re-encodes as
// JSON and decodes into out. value.Value only implements
// json.Unmarshaler, not yaml.Unmarshaler, so this round-trip reuses
// that existing codec rather than duplicating it for YAML.
func decodeYAML(data []byte, out interface{}) error {
	var generic interface{}
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return apierr.NewIllegalArgument("failed to parse YAML", err)
	}
	jsonBytes, err := json.Marshal(stringifyKeys(generic))
	if err != nil {
		return apierr.NewIllegalArgument("failed to normalize YAML for decoding", err)
	}
	if err := json.Unmarshal(jsonBytes, out); err != nil {
		return apierr.NewIllegalArgument("failed to decode definition", err)
	}
	return nil
}

// stringifyKeys converts the map[interface{}]interface{} nodes yaml.v3
// can still produce for untyped targets into map[string]interface{},
// which encoding/json requires.
func stringifyKeys(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(vv))
		for k, val := range vv {
			out[k] = stringifyKeys(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(vv))
		for k, val := range vv {
			out[toString(k)] = stringifyKeys(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, val := range vv {
			out[i] = stringifyKeys(val)
		}
		return out
	default:
		return v
	}
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// Watcher hot-reloads a definitions directory on write/create/rename
// events, grounded on github.com/fsnotify/fsnotify. It only works
// against a real OS path: fsnotify needs inotify/kqueue, so an
// afero.Fs backed by S3 (the DOMAIN STACK's afero-s3) is loaded once
// via LoadDir and never watched.
type Watcher struct {
	watcher *fsnotify.Watcher
	store   *Store
	fs      afero.Fs
	root    string
	done    chan struct{}
}

// NewWatcher starts watching root's "workflows" and "tasks"
// subdirectories for changes, reloading into store on every write,
// create or rename event.
func NewWatcher(store *Store, fs afero.Fs, root string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, apierr.NewTransient("failed to start definition watcher", err)
	}
	for _, sub := range []string{"workflows", "tasks"} {
		dir := filepath.Join(root, sub)
		if err := w.Add(dir); err != nil {
			continue // subdirectory may not exist yet; reload will pick it up once LoadDir is re-run
		}
	}

	watcher := &Watcher{watcher: w, store: store, fs: fs, root: root, done: make(chan struct{})}
	go watcher.run()
	return watcher, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				_ = w.store.LoadDir(w.fs, w.root)
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
