package vfs

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Service is the offline editing layer used by the CLI. It stamps every
// change with the editing project so the publisher picks it up.
type Service struct {
	db     Database
	logger Logger
	clock  Clock
}

func NewService(db Database, logger Logger, clock Clock) *Service {
	return &Service{db: db, logger: logger, clock: clock}
}

// CreateFolder creates an offline folder in state NEW.
func (s *Service) CreateFolder(ctx context.Context, project *Project, path string, user User) (Resource, error) {
	now := s.clock.Now()
	res := Resource{
		RootPath:            AddTrailingSeparator(path),
		Type:                TypeFolder,
		ProjectLastModified: project.ID,
		StructureState:      StateNew,
		ResourceState:       StateNew,
		DateCreated:         now,
		UserCreated:         user.ID,
		DateLastModified:    now,
		UserLastModified:    user.ID,
		Length:              FolderLength,
	}
	created, err := s.db.CreateResource(ctx, project, res, nil)
	if err != nil {
		return Resource{}, fmt.Errorf("creating folder %s: %w", path, err)
	}
	s.logger.Info("folder created", "path", created.RootPath, "project", project.Name)
	return created, nil
}

// CreateFile creates an offline file in state NEW.
func (s *Service) CreateFile(ctx context.Context, project *Project, path string, typ ResourceType, content []byte, user User) (Resource, error) {
	if typ == TypeFolder {
		return Resource{}, &InvalidResourceError{Path: path, Reason: "file cannot have folder type"}
	}
	now := s.clock.Now()
	res := Resource{
		RootPath:            RemoveTrailingSeparator(path),
		Type:                typ,
		ProjectLastModified: project.ID,
		StructureState:      StateNew,
		ResourceState:       StateNew,
		DateCreated:         now,
		UserCreated:         user.ID,
		DateLastModified:    now,
		UserLastModified:    user.ID,
	}.WithContent(content)
	created, err := s.db.CreateResource(ctx, project, res, content)
	if err != nil {
		return Resource{}, fmt.Errorf("creating file %s: %w", path, err)
	}
	s.logger.Info("file created", "path", created.RootPath, "project", project.Name, "size", len(content))
	return created, nil
}

// WriteFile replaces the content of an offline file and marks it CHANGED.
func (s *Service) WriteFile(ctx context.Context, project *Project, path string, content []byte, user User) (Resource, error) {
	res, err := s.db.ReadResource(ctx, project, path, false)
	if err != nil {
		return Resource{}, fmt.Errorf("reading %s: %w", path, err)
	}
	if res.IsFolder() {
		return Resource{}, fmt.Errorf("cannot write content to folder %s", res.RootPath)
	}

	res = res.WithContent(content)
	res.DateLastModified = s.clock.Now()
	res.UserLastModified = user.ID
	if err := s.db.WriteContent(ctx, project, res.ResourceID, content); err != nil {
		return Resource{}, fmt.Errorf("writing content of %s: %w", path, err)
	}
	if err := s.db.WriteResource(ctx, project, res, ChangeResourceState); err != nil {
		return Resource{}, fmt.Errorf("updating %s: %w", path, err)
	}
	s.logger.Info("file written", "path", res.RootPath, "size", len(content))
	return s.db.ReadResource(ctx, project, res.RootPath, false)
}

// CreateSibling adds path as another entry for the file at source. The
// shared resource is labeled when the siblings live in different folders.
func (s *Service) CreateSibling(ctx context.Context, project *Project, source, path string, user User) (Resource, error) {
	src, err := s.db.ReadResource(ctx, project, source, false)
	if err != nil {
		return Resource{}, fmt.Errorf("reading %s: %w", source, err)
	}
	if src.IsFolder() {
		return Resource{}, fmt.Errorf("cannot create a sibling of folder %s", src.RootPath)
	}

	sibling := src.WithPath(RemoveTrailingSeparator(path)).WithProjectLastModified(project.ID)
	sibling.StructureID = ""
	sibling.ParentID = ""
	sibling.StructureState = StateNew
	sibling.DateLastModified = s.clock.Now()
	sibling.UserLastModified = user.ID
	if ParentFolder(sibling.RootPath) != ParentFolder(src.RootPath) {
		sibling = sibling.WithFlags(sibling.Flags | FlagLabeled)
	}

	created, err := s.db.CreateSibling(ctx, project, sibling)
	if err != nil {
		return Resource{}, fmt.Errorf("creating sibling %s: %w", path, err)
	}
	s.logger.Info("sibling created", "source", src.RootPath, "path", created.RootPath)
	return created, nil
}

// MoveResource moves source, and every descendant of a folder, to
// destination.
func (s *Service) MoveResource(ctx context.Context, project *Project, source, destination string, user User) error {
	res, err := s.db.ReadResource(ctx, project, source, false)
	if err != nil {
		return fmt.Errorf("reading %s: %w", source, err)
	}
	if res.IsFolder() {
		destination = AddTrailingSeparator(destination)
	} else {
		destination = RemoveTrailingSeparator(destination)
	}

	existing, err := s.db.ReadResource(ctx, project, destination, true)
	if err == nil {
		return &AlreadyExistsError{Path: existing.RootPath}
	}
	if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("checking destination %s: %w", destination, err)
	}

	moves := []Resource{res}
	if res.IsFolder() {
		descendants, err := s.db.ReadResourceTree(ctx, project, TreeFilter{ParentPath: res.RootPath})
		if err != nil {
			return fmt.Errorf("reading subtree of %s: %w", res.RootPath, err)
		}
		moves = append(moves, descendants...)
	}

	for _, m := range moves {
		target := destination + strings.TrimPrefix(m.RootPath, res.RootPath)
		m.DateLastModified = s.clock.Now()
		m.UserLastModified = user.ID
		if err := s.db.MoveResource(ctx, project, m, target); err != nil {
			return fmt.Errorf("moving %s: %w", m.RootPath, err)
		}
	}
	s.logger.Info("resource moved", "source", res.RootPath, "destination", destination, "count", len(moves))
	return nil
}

// DeleteResource marks a resource DELETED, folders recursively. Resources
// that were never published are purged outright.
func (s *Service) DeleteResource(ctx context.Context, project *Project, path string, user User) error {
	res, err := s.db.ReadResource(ctx, project, path, false)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if res.RootPath == "/" {
		return fmt.Errorf("cannot delete the root folder")
	}

	targets := []Resource{res}
	if res.IsFolder() {
		descendants, err := s.db.ReadResourceTree(ctx, project, TreeFilter{ParentPath: res.RootPath})
		if err != nil {
			return fmt.Errorf("reading subtree of %s: %w", res.RootPath, err)
		}
		targets = append(targets, descendants...)
	}
	// Deepest first, so purged folders are empty.
	slices.SortFunc(targets, func(a, b Resource) int { return strings.Compare(b.RootPath, a.RootPath) })

	for _, t := range targets {
		if err := s.deleteOne(ctx, project, t, user); err != nil {
			return fmt.Errorf("deleting %s: %w", t.RootPath, err)
		}
	}
	s.logger.Info("resource deleted", "path", res.RootPath, "count", len(targets))
	return nil
}

func (s *Service) deleteOne(ctx context.Context, project *Project, res Resource, user User) error {
	if res.State() == StateDeleted {
		return nil
	}
	if res.StructureState == StateNew {
		if err := s.db.DeletePropertyObjects(ctx, project, res, siblingDeleteOption(res)); err != nil {
			return err
		}
		if res.IsFolder() {
			return s.db.RemoveFolder(ctx, project, res)
		}
		return s.db.RemoveFile(ctx, project, res)
	}

	deleted := res.WithProjectLastModified(project.ID)
	deleted.StructureState = StateDeleted
	if res.SiblingCount <= 1 {
		deleted.ResourceState = StateDeleted
	}
	deleted.DateLastModified = s.clock.Now()
	deleted.UserLastModified = user.ID
	return s.db.WriteResource(ctx, project, deleted, ChangeNothing)
}

// SetProperty writes prop on the resource at path and marks the record it
// is mapped to as changed.
func (s *Service) SetProperty(ctx context.Context, project *Project, path string, prop Property) error {
	res, err := s.db.ReadResource(ctx, project, path, false)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := s.db.WritePropertyObject(ctx, project, res, prop); err != nil {
		return fmt.Errorf("writing property %s of %s: %w", prop.Name, path, err)
	}

	structure := prop.StructureValue != "" || prop.DeleteStructureValue
	shared := prop.ResourceValue != "" || prop.DeleteResourceValue
	mode := ChangeNothing
	switch {
	case structure && shared:
		mode = ChangeAll
	case structure:
		mode = ChangeStructureState
	case shared:
		mode = ChangeResourceState
	}
	if mode == ChangeNothing {
		return nil
	}
	res.DateLastModified = s.clock.Now()
	if err := s.db.WriteResource(ctx, project, res, mode); err != nil {
		return fmt.Errorf("updating %s: %w", path, err)
	}
	return nil
}

// ReadResource returns the live resource at path, with content for files.
func (s *Service) ReadResource(ctx context.Context, project *Project, path string) (Resource, error) {
	res, err := s.db.ReadResource(ctx, project, path, false)
	if err != nil {
		return Resource{}, err
	}
	if res.IsFolder() {
		return res, nil
	}
	return s.db.ReadFile(ctx, project, res.StructureID, false)
}

// ListChildren lists the direct children of the folder at path, folders first.
func (s *Service) ListChildren(ctx context.Context, project *Project, path string) ([]Resource, error) {
	folder, err := s.db.ReadResource(ctx, project, AddTrailingSeparator(path), false)
	if err != nil {
		return nil, err
	}
	if !folder.IsFolder() {
		return nil, fmt.Errorf("%s is not a folder", folder.RootPath)
	}
	return s.db.ReadChildResources(ctx, project, folder, true, true)
}

// ReadProperties returns every property of the resource at path.
func (s *Service) ReadProperties(ctx context.Context, project *Project, path string) ([]Property, error) {
	res, err := s.db.ReadResource(ctx, project, path, false)
	if err != nil {
		return nil, err
	}
	return s.db.ReadPropertyObjects(ctx, project, res)
}

// AddRelation records a link from source to target.
func (s *Service) AddRelation(ctx context.Context, project *Project, source, target string, typ RelationType) error {
	src, err := s.db.ReadResource(ctx, project, source, false)
	if err != nil {
		return fmt.Errorf("reading %s: %w", source, err)
	}
	rel := Relation{SourceID: src.StructureID, SourcePath: src.RootPath, TargetPath: target, Type: typ}
	if dst, err := s.db.ReadResource(ctx, project, target, false); err == nil {
		rel.TargetID = dst.StructureID
		rel.TargetPath = dst.RootPath
	} else if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("reading %s: %w", target, err)
	}
	return s.db.CreateRelation(ctx, project, rel)
}

// History returns the resources published under publishID.
func (s *Service) History(ctx context.Context, publishID int) ([]PublishHistoryEntry, error) {
	return s.db.ReadPublishHistory(ctx, publishID)
}

// Versions returns the backed up versions of path, newest first.
func (s *Service) Versions(ctx context.Context, path string) ([]BackupResource, error) {
	return s.db.ReadBackupVersions(ctx, path)
}

// BrokenLinks returns the relations in project whose target is missing.
func (s *Service) BrokenLinks(ctx context.Context, project *Project) ([]Relation, error) {
	return s.db.ReadBrokenRelations(ctx, project)
}
