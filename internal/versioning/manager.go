// Package versioning keeps named snapshots of a canvas graph on branches.
//
// State is held in memory for the lifetime of the owning workspace.
package versioning

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrVersionNotFound = errors.New("version not found")
	ErrBranchNotFound  = errors.New("branch not found")
	ErrBranchExists    = errors.New("branch already exists")
	ErrProtectedBranch = errors.New("branch cannot be deleted")
	ErrInvalidName     = errors.New("name is required")
)

// Manager owns the versions and branches of one canvas. It is safe for
// concurrent use.
type Manager struct {
	mu               sync.RWMutex
	versions         map[string]*Version
	branches         map[string]*Branch
	currentBranch    string
	currentVersionID string
	author           string

	now   func() time.Time
	newID func() string
}

// Option configures a Manager.
type Option func(*Manager)

// WithAuthor stamps created versions with the given user id.
func WithAuthor(userID string) Option {
	return func(m *Manager) { m.author = userID }
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) { m.now = fn }
}

// WithIDFunc overrides version id generation.
func WithIDFunc(fn func() string) Option {
	return func(m *Manager) { m.newID = fn }
}

// NewManager creates a manager with an empty main branch checked out.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		versions:      make(map[string]*Version),
		branches:      make(map[string]*Branch),
		currentBranch: MainBranch,
		now:           time.Now,
		newID:         func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	for _, opt := range opts {
		opt(m)
	}
	m.branches[MainBranch] = &Branch{
		Name:        MainBranch,
		Description: "Main branch",
		CreatedAt:   m.now(),
		VersionIDs:  []string{},
	}
	return m
}

// CreateVersion snapshots nodes and edges onto the current branch. The
// inputs are deep-copied, so later changes by the caller do not leak into the
// snapshot.
func (m *Manager) CreateVersion(name, description string, nodes []Node, edges []Edge, isAutoSave bool) (*Version, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrInvalidName
	}

	nodesCopy, err := clone(nodes)
	if err != nil {
		return nil, fmt.Errorf("failed to copy nodes: %w", err)
	}
	edgesCopy, err := clone(edges)
	if err != nil {
		return nil, fmt.Errorf("failed to copy edges: %w", err)
	}
	if nodesCopy == nil {
		nodesCopy = []Node{}
	}
	if edgesCopy == nil {
		edgesCopy = []Edge{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.appendLocked(&Version{
		Name:        name,
		Description: description,
		Nodes:       nodesCopy,
		Edges:       edgesCopy,
		Metadata: Metadata{
			IsAutoSave: isAutoSave,
		},
	})
}

func (m *Manager) appendLocked(v *Version) (*Version, error) {
	branch := m.branches[m.currentBranch]

	v.ID = m.newID()
	v.BranchName = branch.Name
	v.ParentVersionID = branch.HeadVersionID
	v.Metadata.CreatedAt = m.now()
	v.Metadata.CreatedBy = m.author
	v.Metadata.NodeCount = len(v.Nodes)
	v.Metadata.EdgeCount = len(v.Edges)

	m.versions[v.ID] = v
	branch.VersionIDs = append(branch.VersionIDs, v.ID)
	branch.HeadVersionID = v.ID
	m.currentVersionID = v.ID

	return clone(v)
}

// CreateBranch forks a branch from fromVersionID, or from the current version
// when fromVersionID is empty. It does not switch to the new branch.
func (m *Manager) CreateBranch(name, description, fromVersionID string) (*Branch, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrInvalidName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.branches[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrBranchExists, name)
	}

	base := fromVersionID
	if base == "" {
		base = m.currentVersionID
	} else if _, ok := m.versions[base]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, base)
	}

	b := &Branch{
		Name:          name,
		Description:   description,
		CreatedAt:     m.now(),
		BaseVersionID: base,
		HeadVersionID: base,
		VersionIDs:    []string{},
	}
	m.branches[name] = b
	return cloneBranch(b), nil
}

// SwitchBranch checks out a branch and moves the current version to its
// head. Unsaved graph state is not captured; callers that care must create a
// version first.
func (m *Manager) SwitchBranch(name string) (*Branch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.branches[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBranchNotFound, name)
	}
	m.currentBranch = name
	m.currentVersionID = b.HeadVersionID
	return cloneBranch(b), nil
}

// DeleteBranch removes a branch. Versions it created stay addressable by id.
func (m *Manager) DeleteBranch(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.branches[name]; !ok {
		return fmt.Errorf("%w: %s", ErrBranchNotFound, name)
	}
	if name == MainBranch || name == m.currentBranch {
		return fmt.Errorf("%w: %s", ErrProtectedBranch, name)
	}
	delete(m.branches, name)
	return nil
}

// RevertToVersion appends a copy of the target version to the current
// branch. History is never rewritten.
func (m *Manager) RevertToVersion(versionID string) (*Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.versions[versionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, versionID)
	}

	nodes, err := clone(target.Nodes)
	if err != nil {
		return nil, fmt.Errorf("failed to copy nodes: %w", err)
	}
	edges, err := clone(target.Edges)
	if err != nil {
		return nil, fmt.Errorf("failed to copy edges: %w", err)
	}

	return m.appendLocked(&Version{
		Name:        "Revert to " + target.Name,
		Description: fmt.Sprintf("Reverted to version %s", target.ID),
		Nodes:       nodes,
		Edges:       edges,
	})
}

// Version returns a copy of a version.
func (m *Manager) Version(id string) (*Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.versions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, id)
	}
	return clone(v)
}

// Versions lists a branch's versions, oldest first. Snapshot contents are
// omitted; use Version to fetch them.
func (m *Manager) Versions(branchName string) ([]Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if branchName == "" {
		branchName = m.currentBranch
	}
	b, ok := m.branches[branchName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBranchNotFound, branchName)
	}

	out := make([]Version, 0, len(b.VersionIDs))
	for _, id := range b.VersionIDs {
		v := *m.versions[id]
		v.Nodes = nil
		v.Edges = nil
		out = append(out, v)
	}
	return out, nil
}

// Branches lists branches sorted by name.
func (m *Manager) Branches() []Branch {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Branch, 0, len(m.branches))
	for _, b := range m.branches {
		out = append(out, *cloneBranch(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CurrentBranch returns the checked out branch name.
func (m *Manager) CurrentBranch() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentBranch
}

// CurrentVersionID returns the current version id, empty before the first
// version.
func (m *Manager) CurrentVersionID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentVersionID
}

// CompareVersions diffs two versions by element id ("_id", else "id").
// Elements present in both are reported as modified when their JSON encodings
// differ, so any field change counts. Elements without an id are matched by
// their position among the id-less elements.
func (m *Manager) CompareVersions(fromID, toID string) (*Diff, error) {
	m.mu.RLock()
	from, ok := m.versions[fromID]
	to, ok2 := m.versions[toID]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, fromID)
	}
	if !ok2 {
		return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, toID)
	}

	nodes, err := diffElements(from.Nodes, to.Nodes, Node.ID)
	if err != nil {
		return nil, err
	}
	edges, err := diffElements(from.Edges, to.Edges, Edge.ID)
	if err != nil {
		return nil, err
	}

	return &Diff{
		FromVersionID: fromID,
		ToVersionID:   toID,
		Nodes:         nodes,
		Edges:         edges,
		Summary: DiffSummary{
			NodesAdded:    len(nodes.Added),
			NodesRemoved:  len(nodes.Removed),
			NodesModified: len(nodes.Modified),
			EdgesAdded:    len(edges.Added),
			EdgesRemoved:  len(edges.Removed),
			EdgesModified: len(edges.Modified),
		},
	}, nil
}

func diffElements[T any](from, to []T, id func(T) string) (ElementDiff[T], error) {
	diff := ElementDiff[T]{
		Added:    []T{},
		Removed:  []T{},
		Modified: []Change[T]{},
	}

	before := make(map[string]T, len(from))
	for _, k := range elementKeys(from, id) {
		before[k.key] = k.el
	}
	after := make(map[string]bool, len(to))

	for _, k := range elementKeys(to, id) {
		after[k.key] = true

		prev, existed := before[k.key]
		if !existed {
			diff.Added = append(diff.Added, k.el)
			continue
		}
		same, err := jsonEqual(prev, k.el)
		if err != nil {
			return diff, err
		}
		if !same {
			diff.Modified = append(diff.Modified, Change[T]{Before: prev, After: k.el})
		}
	}

	for _, k := range elementKeys(from, id) {
		if !after[k.key] {
			diff.Removed = append(diff.Removed, k.el)
		}
	}
	return diff, nil
}

type keyedElement[T any] struct {
	key string
	el  T
}

// elementKeys pairs each element with its diff key. The NUL prefix keeps
// positional keys apart from real ids.
func elementKeys[T any](els []T, id func(T) string) []keyedElement[T] {
	out := make([]keyedElement[T], 0, len(els))
	anon := 0
	for _, el := range els {
		key := id(el)
		if key == "" {
			key = "\x00" + strconv.Itoa(anon)
			anon++
		}
		out = append(out, keyedElement[T]{key: key, el: el})
	}
	return out
}

func jsonEqual(a, b any) (bool, error) {
	ja, err := json.Marshal(a)
	if err != nil {
		return false, err
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ja, jb), nil
}

// clone deep-copies through JSON. Numbers inside free-form elements stay
// json.Number so large integers survive the copy.
func clone[T any](v T) (T, error) {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	err = dec.Decode(&out)
	return out, err
}

func cloneBranch(b *Branch) *Branch {
	c := *b
	c.VersionIDs = append([]string{}, b.VersionIDs...)
	return &c
}
