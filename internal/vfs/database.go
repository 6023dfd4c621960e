package vfs

import "context"

// ResourceStore maps structure, resource and content rows to Resource values.
// Every method takes the project whose table group it operates on: the
// online project addresses the live tree, any other project the offline tree.
type ResourceStore interface {
	// CreateResource writes a new structure row, and a resource row if the
	// resource id is not yet present. A soft-deleted resource at the same path
	// is purged first and its structure id reused.
	CreateResource(ctx context.Context, project *Project, res Resource, content []byte) (Resource, error)

	// CreateSibling adds a structure row pointing to an existing resource id.
	CreateSibling(ctx context.Context, project *Project, res Resource) (Resource, error)

	// ReadResource finds a resource by root path. Folders may be addressed
	// with or without trailing separator.
	ReadResource(ctx context.Context, project *Project, path string, includeDeleted bool) (Resource, error)

	// ReadResourceByID finds a resource by structure id.
	ReadResourceByID(ctx context.Context, project *Project, structureID string, includeDeleted bool) (Resource, error)

	// ReadFile finds a file by structure id and loads its content.
	ReadFile(ctx context.Context, project *Project, structureID string, includeDeleted bool) (Resource, error)

	// ReadSiblings returns every structure row sharing the resource id of res.
	ReadSiblings(ctx context.Context, project *Project, res Resource, includeDeleted bool) ([]Resource, error)

	// ReadChildResources lists direct children of parent, folders first.
	ReadChildResources(ctx context.Context, project *Project, parent Resource, folders, files bool) ([]Resource, error)

	// ReadResourceTree runs a filtered scan ordered by path.
	ReadResourceTree(ctx context.Context, project *Project, filter TreeFilter) ([]Resource, error)

	// ReadContent returns the content blob of a resource id.
	ReadContent(ctx context.Context, project *Project, resourceID string) ([]byte, error)

	// WriteContent replaces the content blob of a resource id.
	WriteContent(ctx context.Context, project *Project, resourceID string, content []byte) error

	// MoveResource changes the path of source. Offline, a different online
	// resource at destination fails with MoveConflictError.
	MoveResource(ctx context.Context, project *Project, source Resource, destination string) error

	// RemoveFile deletes the structure row of res and, once no sibling
	// references remain, its resource and content rows.
	RemoveFile(ctx context.Context, project *Project, res Resource) error

	// RemoveFolder deletes an empty folder.
	RemoveFolder(ctx context.Context, project *Project, folder Resource) error

	// WriteResource updates resource and structure rows of res.
	WriteResource(ctx context.Context, project *Project, res Resource, mode ChangeMode) error

	// WriteResourceState updates only the columns mode selects. It does
	// nothing for the online project.
	WriteResourceState(ctx context.Context, project *Project, res Resource, mode ChangeMode) error

	// WriteLastModifiedProjectID sets the project marker of res.
	WriteLastModifiedProjectID(ctx context.Context, project *Project, projectID int, res Resource) error

	// PublishResource materializes offline as an online resource: the online
	// rows are updated in place if the resource id exists, inserted otherwise.
	// The parent is the online folder at the parent path. A different online
	// resource at the path fails with ErrAlreadyExists.
	PublishResource(ctx context.Context, online *Project, offline Resource, writeContent bool) error

	// CountSiblings counts structure rows referencing resourceID.
	CountSiblings(ctx context.Context, project *Project, resourceID string) (int, error)
}

// PropertyStore reads and writes properties mapped to structure or resource records.
type PropertyStore interface {
	// ReadPropertyDefinition finds a definition by name.
	ReadPropertyDefinition(ctx context.Context, project *Project, name string) (PropertyDefinition, error)

	// ReadPropertyDefinitions lists all definitions in the project's namespace.
	ReadPropertyDefinitions(ctx context.Context, project *Project) ([]PropertyDefinition, error)

	// CreatePropertyDefinition creates a definition in the offline, online and
	// backup namespaces, skipping those where it already exists.
	CreatePropertyDefinition(ctx context.Context, name string) (PropertyDefinition, error)

	// ReadPropertyObject returns the property named name, or an empty
	// property if nothing is stored.
	ReadPropertyObject(ctx context.Context, project *Project, res Resource, name string) (Property, error)

	// ReadPropertyObjects returns every property of res ordered by name.
	ReadPropertyObjects(ctx context.Context, project *Project, res Resource) ([]Property, error)

	// WritePropertyObject inserts, updates or deletes each value slot of prop.
	WritePropertyObject(ctx context.Context, project *Project, res Resource, prop Property) error

	// WritePropertyObjects writes each property in turn.
	WritePropertyObjects(ctx context.Context, project *Project, res Resource, props []Property) error

	// DeletePropertyObjects removes the values selected by option.
	DeletePropertyObjects(ctx context.Context, project *Project, res Resource, option DeleteOption) error
}

// RelationStore persists directed links between resources.
type RelationStore interface {
	CreateRelation(ctx context.Context, project *Project, rel Relation) error

	// CreateRelations writes rels one row at a time and reports each outcome.
	CreateRelations(ctx context.Context, project *Project, rels []Relation) BatchResult

	DeleteRelations(ctx context.Context, project *Project, filter RelationFilter) error
	ReadRelations(ctx context.Context, project *Project, filter RelationFilter) ([]Relation, error)

	// ReadBrokenRelations returns relations whose target has no live structure row.
	ReadBrokenRelations(ctx context.Context, project *Project) ([]Relation, error)

	// PublishRelations replaces the online relations sourced at res with the
	// offline ones. For a deleted resource it drops them in both projects.
	PublishRelations(ctx context.Context, offline, online *Project, res Resource) BatchResult
}

// BackupStore keeps the publish history and versioned backups.
type BackupStore interface {
	// NextPublishID reserves a publish id greater than any recorded so far.
	NextPublishID(ctx context.Context) (int, error)

	// NextBackupTagID returns the tag id the next backup project will use.
	NextBackupTagID(ctx context.Context) (int, error)

	WriteBackupProject(ctx context.Context, bp BackupProject) error
	ReadBackupProject(ctx context.Context, tagID int) (BackupProject, error)
	ReadBackupProjects(ctx context.Context) ([]BackupProject, error)

	// WriteBackupResource appends a version of the resource and prunes its
	// versions beyond maxVersions, oldest first.
	WriteBackupResource(ctx context.Context, backup BackupResource, props []Property, maxVersions int) error

	// ReadBackupVersions lists the versions of the resource at path, newest first.
	ReadBackupVersions(ctx context.Context, path string) ([]BackupResource, error)

	// ReadBackupFile returns the version of path written under tagID, with content.
	ReadBackupFile(ctx context.Context, tagID int, path string) (BackupResource, error)

	ReadBackupProperties(ctx context.Context, backupID string) ([]Property, error)

	WritePublishHistory(ctx context.Context, entry PublishHistoryEntry) error
	ReadPublishHistory(ctx context.Context, publishID int) ([]PublishHistoryEntry, error)
}

// ProjectStore keeps offline projects and their resource scopes.
type ProjectStore interface {
	CreateProject(ctx context.Context, p Project) (*Project, error)
	ReadProject(ctx context.Context, id int) (*Project, error)
	ReadProjectByName(ctx context.Context, name string) (*Project, error)
	ReadProjects(ctx context.Context) ([]*Project, error)
}

// Database bundles every store the publish pipeline needs.
type Database interface {
	ResourceStore
	PropertyStore
	RelationStore
	BackupStore
	ProjectStore

	// CheckMigrations returns an error if the schema is not at the latest version.
	CheckMigrations() error

	Close() error
}
