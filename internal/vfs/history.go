package vfs

import "time"

// PublishHistoryEntry is one append-only audit row per published resource.
type PublishHistoryEntry struct {
	PublishID   int
	TagID       int
	StructureID string
	ResourceID  string
	ContentID   string
	RootPath    string
	State       State
	Type        ResourceType
	PublishedAt time.Time
}

// BackupResource is a frozen version of a resource kept after publish.
type BackupResource struct {
	BackupID  string
	TagID     int
	VersionID int
	Resource  Resource

	UserCreatedName      string
	UserLastModifiedName string
	PublishDate          time.Time
}

// BackupProject is the log entry written for a publish with backups enabled.
type BackupProject struct {
	TagID         int
	ProjectID     int
	Name          string
	Description   string
	Type          ProjectType
	ResourcePaths []string
	PublishedBy   string
	PublisherName string
	PublishDate   time.Time
}
