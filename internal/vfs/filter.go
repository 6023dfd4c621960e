package vfs

import "time"

// TreeFilter selects resources for ReadResourceTree. Every set condition is
// ANDed; the Exclude flags negate their single condition. Zero values are
// ignored.
type TreeFilter struct {
	// ParentPath restricts results to the subtree below this folder.
	ParentPath string
	// ParentID restricts results to direct children of this structure id.
	// It takes precedence over ParentPath.
	ParentID string

	OnlyFolders bool
	OnlyFiles   bool

	Type        *ResourceType
	ExcludeType bool

	State        *State
	ExcludeState bool

	// ProjectID keeps resources last modified in this project.
	ProjectID int

	ModifiedAfter  time.Time
	ModifiedBefore time.Time
	ReleasedAfter  time.Time
	ReleasedBefore time.Time
	ExpiredAfter   time.Time
	ExpiredBefore  time.Time
}

// ChangedFolders selects every folder whose structure or resource state is
// not UNCHANGED.
func ChangedFolders() TreeFilter {
	s := StateUnchanged
	return TreeFilter{OnlyFolders: true, State: &s, ExcludeState: true}
}

// ChangedFiles selects every file whose structure or resource state is not
// UNCHANGED.
func ChangedFiles() TreeFilter {
	s := StateUnchanged
	return TreeFilter{OnlyFiles: true, State: &s, ExcludeState: true}
}

// ChangeMode selects which columns WriteResource and WriteResourceState touch.
type ChangeMode int

const (
	// ChangeNothing writes the record without altering states or the project marker.
	ChangeNothing ChangeMode = iota
	// ChangeResourceProject updates resource flags and project marker only.
	ChangeResourceProject
	// ChangeResource updates resource state and last-modified info.
	ChangeResource
	// ChangeResourceState updates the resource state.
	ChangeResourceState
	// ChangeStructure updates structure state and release/expiry window.
	ChangeStructure
	// ChangeStructureState updates the structure state.
	ChangeStructureState
	// ChangeAll updates resource and structure state and the release/expiry window.
	ChangeAll
)
