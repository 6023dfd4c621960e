package vfs

import (
	"context"
	"time"
)

// AccessControlEntry grants and denies permission bits to one principal on
// a resource record.
type AccessControlEntry struct {
	ResourceID  string
	PrincipalID string
	Allowed     int
	Denied      int
	Flags       int
}

// AccessControl copies access-control entries between the offline and
// online tree.
type AccessControl interface {
	// PublishAccessControlEntries replaces the entries of onlineResourceID in
	// the online project with those of offlineResourceID in the offline project.
	PublishAccessControlEntries(ctx context.Context, offline, online *Project, offlineResourceID, onlineResourceID string) error

	// RemoveAllAccessControlEntries drops every entry of resourceID in project.
	RemoveAllAccessControlEntries(ctx context.Context, project *Project, resourceID string) error

	WriteAccessControlEntry(ctx context.Context, project *Project, ace AccessControlEntry) error
	ReadAccessControlEntries(ctx context.Context, project *Project, resourceID string) ([]AccessControlEntry, error)
}

// Lock describes the advisory lock held on a path. The zero value is the
// null lock.
type Lock struct {
	Path      string
	Owner     string
	ProjectID int
}

// IsNull reports whether nobody holds the lock.
func (l Lock) IsNull() bool { return l.Owner == "" }

// LockOracle answers whether a resource is locked. Locked resources are
// never published.
type LockOracle interface {
	IsLocked(ctx context.Context, path string) (Lock, error)
}

// UnlockedOracle reports every resource as unlocked.
type UnlockedOracle struct{}

func (UnlockedOracle) IsLocked(context.Context, string) (Lock, error) { return Lock{}, nil }

// EventType names a cache invalidation notification.
type EventType string

const (
	EventResourcesModified             EventType = "RESOURCES_MODIFIED"
	EventResourceAndPropertiesModified EventType = "RESOURCE_AND_PROPERTIES_MODIFIED"
	EventPropertiesModified            EventType = "PROPERTIES_MODIFIED"
	EventClearCaches                   EventType = "CLEAR_CACHES"
)

// Event is a fire-and-forget notification about changed resources.
type Event struct {
	Type      EventType  `json:"type"`
	Resources []Resource `json:"resources,omitempty"`
	Time      time.Time  `json:"time"`
}

// Paths returns the root paths of the affected resources.
func (e Event) Paths() []string {
	paths := make([]string, len(e.Resources))
	for i, r := range e.Resources {
		paths[i] = r.RootPath
	}
	return paths
}

// EventBus delivers events to cache listeners. Delivery failures are the
// bus's concern and never reach the publisher.
type EventBus interface {
	Fire(ctx context.Context, event Event)
}

// NopEventBus drops every event.
type NopEventBus struct{}

func (NopEventBus) Fire(context.Context, Event) {}

// ExportMirror is a flat-file projection of the online tree. Each call
// receives the VFS path and the export point that matched it.
type ExportMirror interface {
	CreateFolder(ctx context.Context, path string, point ExportPoint) error
	WriteFile(ctx context.Context, path string, point ExportPoint, content []byte) error
	RemoveResource(ctx context.Context, path string, point ExportPoint) error
}

// NopMirror accepts and discards every export.
type NopMirror struct{}

func (NopMirror) CreateFolder(context.Context, string, ExportPoint) error      { return nil }
func (NopMirror) WriteFile(context.Context, string, ExportPoint, []byte) error { return nil }
func (NopMirror) RemoveResource(context.Context, string, ExportPoint) error    { return nil }

// PublishObserver receives publish outcomes for monitoring.
type PublishObserver interface {
	ObservePublish(project string, changed int, elapsed time.Duration, err error)
	ResourcePublished(kind string, state State)
}

// NopObserver ignores all observations.
type NopObserver struct{}

func (NopObserver) ObservePublish(string, int, time.Duration, error) {}
func (NopObserver) ResourcePublished(string, State)                  {}
