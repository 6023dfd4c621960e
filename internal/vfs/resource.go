package vfs

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// State is the lifecycle state of a structure or resource record.
type State int

const (
	StateUnchanged State = 0
	StateChanged   State = 1
	StateNew       State = 2
	StateDeleted   State = 3
)

func (s State) String() string {
	switch s {
	case StateUnchanged:
		return "unchanged"
	case StateChanged:
		return "changed"
	case StateNew:
		return "new"
	case StateDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Flags is a bit set stored on the shared resource record.
type Flags int

const (
	FlagInternal Flags = 1
	// FlagLabeled marks a resource whose siblings live in different folders.
	FlagLabeled Flags = 2
)

// ResourceType identifies the kind of content a resource holds.
type ResourceType int

const (
	TypeFolder ResourceType = 0
	TypePlain  ResourceType = 1
	TypeBinary ResourceType = 2
	TypeImage  ResourceType = 3
	TypeXML    ResourceType = 4
)

const (
	// MaxPathLength is the longest root path a store accepts, without trailing separator.
	MaxPathLength = 512

	// FolderLength is the length every folder must carry.
	FolderLength int64 = -1

	// TempFilePrefix marks editor scratch files that are never published.
	TempFilePrefix = "~"

	// PropertyContentEncoding names the property holding a file's charset.
	PropertyContentEncoding = "content-encoding"
)

// Resource is one path entry (structure record) joined with the shared
// resource record it points to. Values are immutable: use the With* methods
// to derive a modified copy.
type Resource struct {
	StructureID         string       `json:"structure_id"`
	ResourceID          string       `json:"resource_id"`
	ParentID            string       `json:"parent_id,omitempty"`
	ContentID           string       `json:"content_id,omitempty"`
	RootPath            string       `json:"root_path"`
	Type                ResourceType `json:"type"`
	Flags               Flags        `json:"flags"`
	ProjectLastModified int          `json:"project_last_modified"`
	StructureState      State        `json:"structure_state"`
	ResourceState       State        `json:"resource_state"`
	DateCreated         time.Time    `json:"date_created"`
	UserCreated         string       `json:"user_created"`
	DateLastModified    time.Time    `json:"date_last_modified"`
	UserLastModified    string       `json:"user_last_modified"`
	DateReleased        time.Time    `json:"date_released,omitempty"`
	DateExpired         time.Time    `json:"date_expired,omitempty"`
	SiblingCount        int          `json:"sibling_count"`
	Length              int64        `json:"length"`

	// Content is only populated by ReadFile.
	Content []byte `json:"-"`
}

// State returns the effective state: the greater of structure and resource state.
func (r Resource) State() State {
	if r.StructureState > r.ResourceState {
		return r.StructureState
	}
	return r.ResourceState
}

func (r Resource) IsFolder() bool  { return r.Type == TypeFolder }
func (r Resource) IsFile() bool    { return r.Type != TypeFolder }
func (r Resource) IsLabeled() bool { return r.Flags&FlagLabeled != 0 }

// Name returns the last path segment, with a trailing separator for folders.
func (r Resource) Name() string {
	return ResourceName(r.RootPath)
}

// IsTemporary reports whether this is an editor scratch file.
func (r Resource) IsTemporary() bool {
	return r.IsFile() && strings.HasPrefix(r.Name(), TempFilePrefix)
}

// WithState returns a copy with both structure and resource state set to s.
func (r Resource) WithState(s State) Resource {
	r.StructureState = s
	r.ResourceState = s
	return r
}

// WithPath returns a copy at a different root path.
func (r Resource) WithPath(path string) Resource {
	r.RootPath = path
	return r
}

func (r Resource) WithFlags(f Flags) Resource {
	r.Flags = f
	return r
}

func (r Resource) WithProjectLastModified(projectID int) Resource {
	r.ProjectLastModified = projectID
	return r
}

// WithContent returns a copy holding content, with Length updated to match.
func (r Resource) WithContent(content []byte) Resource {
	r.Content = content
	r.Length = int64(len(content))
	return r
}

// Published returns the value a resource takes once it is live: both
// states UNCHANGED.
func (r Resource) Published() Resource {
	return r.WithState(StateUnchanged)
}

// Validate checks the path length and the folder/file length invariant.
func (r Resource) Validate() error {
	path := RemoveTrailingSeparator(r.RootPath)
	if len(path) > MaxPathLength {
		return &InvalidResourceError{Path: r.RootPath, Reason: fmt.Sprintf("path exceeds %d characters", MaxPathLength)}
	}
	if !strings.HasPrefix(r.RootPath, "/") {
		return &InvalidResourceError{Path: r.RootPath, Reason: "path is not absolute"}
	}
	if r.IsFolder() && r.Length != FolderLength {
		return &InvalidResourceError{Path: r.RootPath, Reason: fmt.Sprintf("folder length must be %d, got %d", FolderLength, r.Length)}
	}
	if r.IsFile() && r.Length < 0 {
		return &InvalidResourceError{Path: r.RootPath, Reason: fmt.Sprintf("file length must not be negative, got %d", r.Length)}
	}
	return nil
}

func (r Resource) String() string {
	return fmt.Sprintf("%s [%s %s]", r.RootPath, r.StructureID, r.State())
}

// RemoveTrailingSeparator strips one trailing "/" unless path is the root.
func RemoveTrailingSeparator(path string) string {
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		return path[:len(path)-1]
	}
	return path
}

// AddTrailingSeparator appends "/" if missing.
func AddTrailingSeparator(path string) string {
	if strings.HasSuffix(path, "/") {
		return path
	}
	return path + "/"
}

// ParentFolder returns the folder path containing path, with trailing
// separator. The root has no parent and yields "".
func ParentFolder(path string) string {
	p := RemoveTrailingSeparator(path)
	if p == "/" || p == "" {
		return ""
	}
	idx := strings.LastIndex(p, "/")
	return p[:idx+1]
}

// ResourceName returns the last segment of path, keeping a trailing separator.
func ResourceName(path string) string {
	if path == "/" {
		return "/"
	}
	trimmed := RemoveTrailingSeparator(path)
	name := trimmed[strings.LastIndex(trimmed, "/")+1:]
	if strings.HasSuffix(path, "/") {
		return name + "/"
	}
	return name
}

// IsDescendant reports whether path lies at or below folder.
func IsDescendant(path, folder string) bool {
	return strings.HasPrefix(path, AddTrailingSeparator(folder)) || path == folder
}

// SortFoldersFirst orders resources folders before files, then by path
// ignoring case. The order does not depend on the storage collation.
func SortFoldersFirst(resources []Resource) {
	sort.SliceStable(resources, func(i, j int) bool {
		a, b := resources[i], resources[j]
		if a.IsFolder() != b.IsFolder() {
			return a.IsFolder()
		}
		la, lb := strings.ToLower(a.RootPath), strings.ToLower(b.RootPath)
		if la != lb {
			return la < lb
		}
		return a.RootPath < b.RootPath
	})
}
