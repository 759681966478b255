package versioning

import (
	"encoding/json"
	"strconv"
	"time"
)

// MainBranch always exists and cannot be deleted.
const MainBranch = "main"

// Node is a canvas node exactly as the editor serialises it. Every field is
// kept, known or not.
type Node map[string]any

// ID returns the node's identity.
func (n Node) ID() string { return elementID(n) }

// Edge is a canvas edge exactly as the editor serialises it.
type Edge map[string]any

// ID returns the edge's identity.
func (e Edge) ID() string { return elementID(e) }

// elementID reads "_id", the persisted identity, falling back to the
// editor's "id".
func elementID(el map[string]any) string {
	for _, key := range []string{"_id", "id"} {
		switch v := el[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// Metadata describes a version.
type Metadata struct {
	CreatedAt  time.Time `json:"createdAt"`
	CreatedBy  string    `json:"createdBy,omitempty"`
	NodeCount  int       `json:"nodeCount"`
	EdgeCount  int       `json:"edgeCount"`
	IsAutoSave bool      `json:"isAutoSave"`
}

// Version is an immutable snapshot of a canvas graph.
type Version struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	BranchName      string   `json:"branchName"`
	ParentVersionID string   `json:"parentVersionId,omitempty"`
	Nodes           []Node   `json:"nodes"`
	Edges           []Edge   `json:"edges"`
	Metadata        Metadata `json:"metadata"`
}

// Branch is a named line of versions.
type Branch struct {
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	BaseVersionID string    `json:"baseVersionId,omitempty"`
	HeadVersionID string    `json:"headVersionId,omitempty"`
	VersionIDs    []string  `json:"versionIds"`
}

// Change pairs the two sides of a modified element.
type Change[T any] struct {
	Before T `json:"before"`
	After  T `json:"after"`
}

// ElementDiff lists what changed for one element kind.
type ElementDiff[T any] struct {
	Added    []T         `json:"added"`
	Removed  []T         `json:"removed"`
	Modified []Change[T] `json:"modified"`
}

// DiffSummary counts the entries of a Diff.
type DiffSummary struct {
	NodesAdded    int `json:"nodesAdded"`
	NodesRemoved  int `json:"nodesRemoved"`
	NodesModified int `json:"nodesModified"`
	EdgesAdded    int `json:"edgesAdded"`
	EdgesRemoved  int `json:"edgesRemoved"`
	EdgesModified int `json:"edgesModified"`
}

// Diff compares two versions.
type Diff struct {
	FromVersionID string            `json:"fromVersionId"`
	ToVersionID   string            `json:"toVersionId"`
	Nodes         ElementDiff[Node] `json:"nodes"`
	Edges         ElementDiff[Edge] `json:"edges"`
	Summary       DiffSummary       `json:"summary"`
}
