package vfs

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
)

// PublishRequest describes one publish of an offline project.
type PublishRequest struct {
	Project *Project
	// Online defaults to OnlineProject().
	Online *Project
	User   User

	BackupEnabled bool
	// BackupTagID defaults to the next free backup tag.
	BackupTagID int
	MaxVersions int

	Report       Report
	ExportPoints ExportPoints

	// DirectPublishResource restricts the publish to this resource and its
	// descendants. It requires a project of type ProjectDirectPublish.
	DirectPublishResource *Resource
}

// PublishRun carries the state shared by every resource of one publish.
type PublishRun struct {
	PublishRequest
	PublishID   int
	PublishDate time.Time
	UserName    string
}

func (r *PublishRun) direct() bool {
	return r.DirectPublishResource != nil && r.Project.Type == ProjectDirectPublish
}

// Publisher moves the changed resources of an offline project into the
// online tree. Only one publish runs at a time per Publisher.
type Publisher struct {
	db       Database
	acl      AccessControl
	locks    LockOracle
	bus      EventBus
	mirror   ExportMirror
	users    UserDirectory
	observer PublishObserver
	logger   Logger
	clock    Clock
	guard    *semaphore.Weighted
}

func NewPublisher(db Database, acl AccessControl, locks LockOracle, bus EventBus, mirror ExportMirror, users UserDirectory, observer PublishObserver, logger Logger, clock Clock) *Publisher {
	return &Publisher{
		db:       db,
		acl:      acl,
		locks:    locks,
		bus:      bus,
		mirror:   mirror,
		users:    users,
		observer: observer,
		logger:   logger,
		clock:    clock,
		guard:    semaphore.NewWeighted(1),
	}
}

// PublishProject publishes every eligible folder and file of req.Project and
// returns the changed paths in batch order. Waiting for a running publish
// honours ctx; once started, the publish runs to completion.
func (p *Publisher) PublishProject(ctx context.Context, req PublishRequest) ([]string, error) {
	if err := p.guard.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for running publish: %w", err)
	}
	defer p.guard.Release(1)
	ctx = context.WithoutCancel(ctx)

	start := p.clock.Now()
	projectName := ""
	if req.Project != nil {
		projectName = req.Project.Name
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("publish aborted by panic", "project", projectName, "panic", r)
			p.bus.Fire(ctx, Event{Type: EventClearCaches, Time: p.clock.Now()})
			runtime.GC()
			debug.FreeOSMemory()
			panic(r)
		}
	}()

	changed, err := p.publishProject(ctx, req)
	p.observer.ObservePublish(projectName, len(changed), p.clock.Now().Sub(start), err)
	if err != nil {
		return nil, err
	}
	return changed, nil
}

// NewRun allocates the publish id and date for a publish.
func (p *Publisher) NewRun(ctx context.Context, req PublishRequest) (*PublishRun, error) {
	if req.Project == nil {
		return nil, errors.New("publish request has no project")
	}
	if req.Project.IsOnline() {
		return nil, errors.New("cannot publish the online project")
	}
	if req.DirectPublishResource != nil && req.Project.Type != ProjectDirectPublish {
		return nil, fmt.Errorf("direct publish of %s needs a direct publish project, %s is %s",
			req.DirectPublishResource.RootPath, req.Project.Name, req.Project.Type)
	}
	if req.Online == nil {
		req.Online = OnlineProject()
	}
	if req.Report == nil {
		req.Report = NopReport{}
	}
	if req.BackupTagID == 0 {
		tag, err := p.db.NextBackupTagID(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading next backup tag: %w", err)
		}
		req.BackupTagID = tag
	}

	publishID, err := p.db.NextPublishID(ctx)
	if err != nil {
		return nil, fmt.Errorf("reserving publish id: %w", err)
	}

	name := req.User.Name
	if name == "" && req.User.ID != "" {
		name, err = p.users.UserName(ctx, req.User.ID)
		if err != nil {
			return nil, fmt.Errorf("resolving publisher name: %w", err)
		}
	}

	return &PublishRun{
		PublishRequest: req,
		PublishID:      publishID,
		PublishDate:    p.clock.Now(),
		UserName:       name,
	}, nil
}

func (p *Publisher) publishProject(ctx context.Context, req PublishRequest) ([]string, error) {
	run, err := p.NewRun(ctx, req)
	if err != nil {
		return nil, err
	}
	report := run.Report
	report.Println(fmt.Sprintf("Publishing project %s (publish id %d)", run.Project.Name, run.PublishID), FormatHeadline)
	p.logger.Info("publish started", "project", run.Project.Name, "publish_id", run.PublishID, "tag_id", run.BackupTagID)

	if run.BackupEnabled {
		if err := p.backupProject(ctx, run); err != nil {
			p.logger.Error("writing backup project failed", "project", run.Project.Name, "error", err)
			return nil, err
		}
	}

	var changed []string

	folders, deleted, err := p.collectFolders(ctx, run)
	if err != nil {
		return nil, err
	}

	// Deleted folders are listed in scan order, interleaved with the others.
	for _, f := range folders {
		changed = append(changed, f.RootPath)
	}
	publishable := slices.DeleteFunc(slices.Clone(folders), func(r Resource) bool { return r.State() == StateDeleted })

	if len(publishable) > 0 {
		report.Println("Publishing folders", FormatHeadline)
	}
	for i, folder := range publishable {
		if point, ok := run.ExportPoints.Match(folder.RootPath); ok {
			if err := p.mirror.CreateFolder(ctx, folder.RootPath, point); err != nil {
				p.logger.Error("exporting folder failed", "path", folder.RootPath, "error", err)
				return nil, err
			}
		}
		if err := p.PublishFolder(ctx, run, i+1, len(publishable), folder); err != nil {
			return nil, err
		}
	}

	files, err := p.collectFiles(ctx, run)
	if err != nil {
		return nil, err
	}
	if len(files) > 0 {
		report.Println("Publishing files", FormatHeadline)
	}
	for i, file := range files {
		changed = append(changed, file.RootPath)
		if err := p.publishFileWithExport(ctx, run, i+1, len(files), file); err != nil {
			return nil, err
		}
	}

	// Children sort after their parents, so the reversed order deletes
	// bottom-up.
	slices.SortFunc(deleted, func(a, b Resource) int { return strings.Compare(a.RootPath, b.RootPath) })
	slices.Reverse(deleted)
	if len(deleted) > 0 {
		report.Println("Deleting folders", FormatHeadline)
	}
	for i, folder := range deleted {
		if point, ok := run.ExportPoints.Match(folder.RootPath); ok {
			if err := p.mirror.RemoveResource(ctx, folder.RootPath, point); err != nil {
				p.logger.Warn("removing exported folder failed", "path", folder.RootPath, "error", err)
			}
		}
		if err := p.PublishDeletedFolder(ctx, run, i+1, len(deleted), folder); err != nil {
			return nil, err
		}
	}

	report.Println(fmt.Sprintf("Published %d resources", len(changed)), FormatOK)
	p.logger.Info("publish finished", "project", run.Project.Name, "publish_id", run.PublishID, "changed", len(changed))
	return changed, nil
}

// collectFolders returns the eligible folders sorted by path, and the
// subset of them that is DELETED.
func (p *Publisher) collectFolders(ctx context.Context, run *PublishRun) ([]Resource, []Resource, error) {
	candidates, err := p.db.ReadResourceTree(ctx, run.Project, ChangedFolders())
	if err != nil {
		p.logger.Error("reading changed folders failed", "project", run.Project.Name, "error", err)
		return nil, nil, err
	}
	slices.SortFunc(candidates, func(a, b Resource) int { return strings.Compare(a.RootPath, b.RootPath) })

	var eligible, deleted []Resource
	for _, folder := range candidates {
		if folder.State() <= StateUnchanged {
			continue
		}
		if run.direct() {
			if !inDirectScope(folder.RootPath, *run.DirectPublishResource) {
				continue
			}
		} else if folder.ProjectLastModified != run.Project.ID || !run.Project.Contains(folder.RootPath) {
			continue
		}
		unlocked, err := p.unlocked(ctx, folder)
		if err != nil {
			return nil, nil, err
		}
		if !unlocked {
			continue
		}
		eligible = append(eligible, folder)
		if folder.State() == StateDeleted {
			deleted = append(deleted, folder)
		}
	}
	return eligible, deleted, nil
}

// collectFiles returns the eligible files sorted by path. Unlocked
// temporary files are purged offline wherever they are.
func (p *Publisher) collectFiles(ctx context.Context, run *PublishRun) ([]Resource, error) {
	candidates, err := p.db.ReadResourceTree(ctx, run.Project, ChangedFiles())
	if err != nil {
		p.logger.Error("reading changed files failed", "project", run.Project.Name, "error", err)
		return nil, err
	}
	slices.SortFunc(candidates, func(a, b Resource) int { return strings.Compare(a.RootPath, b.RootPath) })

	var eligible []Resource
	for _, file := range candidates {
		unlocked, err := p.unlocked(ctx, file)
		if err != nil {
			return nil, err
		}
		if !unlocked {
			continue
		}
		if file.IsTemporary() {
			if err := p.purgeTemporary(ctx, run, file); err != nil {
				return nil, err
			}
			continue
		}
		if !fileMarkerMatches(file, run.Project.ID) {
			continue
		}
		if run.direct() {
			if !inDirectScope(file.RootPath, *run.DirectPublishResource) {
				continue
			}
		} else if !run.Project.Contains(file.RootPath) {
			continue
		}
		eligible = append(eligible, file)
	}
	return eligible, nil
}

// inDirectScope reports whether path is the directly published file, or
// lies inside the directly published folder.
func inDirectScope(path string, direct Resource) bool {
	if direct.IsFolder() {
		return IsDescendant(path, direct.RootPath)
	}
	return path == direct.RootPath
}

// fileMarkerMatches applies the project-last-modified rule: NEW files may
// carry no marker, everything else must have been changed in this project.
func fileMarkerMatches(file Resource, projectID int) bool {
	switch file.State() {
	case StateNew:
		return file.ProjectLastModified == projectID || file.ProjectLastModified == 0
	case StateChanged, StateDeleted:
		return file.ProjectLastModified == projectID
	default:
		return false
	}
}

func (p *Publisher) unlocked(ctx context.Context, res Resource) (bool, error) {
	lock, err := p.locks.IsLocked(ctx, res.RootPath)
	if err != nil {
		p.logger.Error("reading lock failed", "path", res.RootPath, "error", err)
		return false, err
	}
	return lock.IsNull(), nil
}

func (p *Publisher) purgeTemporary(ctx context.Context, run *PublishRun, file Resource) error {
	p.logger.Debug("purging temporary file", "path", file.RootPath)
	if err := p.db.DeletePropertyObjects(ctx, run.Project, file, DeleteStructureAndResourceValues); err != nil {
		p.logger.Error("deleting temporary file properties failed", "path", file.RootPath, "error", err)
		return err
	}
	if err := p.db.RemoveFile(ctx, run.Project, file); err != nil {
		p.logger.Error("removing temporary file failed", "path", file.RootPath, "error", err)
		return err
	}
	return nil
}

func (p *Publisher) backupProject(ctx context.Context, run *PublishRun) error {
	return p.db.WriteBackupProject(ctx, BackupProject{
		TagID:         run.BackupTagID,
		ProjectID:     run.Project.ID,
		Name:          run.Project.Name,
		Description:   run.Project.Description,
		Type:          run.Project.Type,
		ResourcePaths: run.Project.ResourcePaths,
		PublishedBy:   run.User.ID,
		PublisherName: run.UserName,
		PublishDate:   run.PublishDate,
	})
}

// publishFileWithExport publishes header and mirrors the result to the
// matching export point. Export failures of NEW files abort the publish;
// those of CHANGED and DELETED files are only logged.
func (p *Publisher) publishFileWithExport(ctx context.Context, run *PublishRun, m, n int, header Resource) error {
	point, exported := run.ExportPoints.Match(header.RootPath)
	state := header.State()

	if exported && state == StateDeleted {
		if err := p.mirror.RemoveResource(ctx, header.RootPath, point); err != nil {
			p.logger.Warn("removing exported file failed", "path", header.RootPath, "error", err)
		}
	}

	file, err := p.publishFile(ctx, run, m, n, header)
	if err != nil {
		return err
	}
	if !exported || state == StateDeleted {
		return nil
	}

	content := file.Content
	encoding, err := p.db.ReadPropertyObject(ctx, run.Project, file, PropertyContentEncoding)
	if err != nil {
		p.logger.Error("reading content encoding failed", "path", file.RootPath, "error", err)
		return err
	}
	if enc := encoding.Value(); enc != "" {
		content = TranscodeContent(content, enc)
	}

	if err := p.mirror.WriteFile(ctx, file.RootPath, point, content); err != nil {
		if state == StateNew {
			p.logger.Error("exporting file failed", "path", file.RootPath, "error", err)
			return err
		}
		p.logger.Warn("exporting changed file failed", "path", file.RootPath, "error", err)
	}
	return nil
}

// PublishFolder publishes one NEW or CHANGED folder.
func (p *Publisher) PublishFolder(ctx context.Context, run *PublishRun, m, n int, offline Resource) (err error) {
	defer p.bus.Fire(ctx, Event{Type: EventPropertiesModified, Resources: []Resource{offline}, Time: p.clock.Now()})
	defer func() {
		if err != nil {
			p.logger.Error("publishing folder failed", "path", offline.RootPath, "error", err)
		}
	}()

	run.Report.Print(progress(m, n), FormatNote)
	run.Report.Print("publishing folder "+offline.RootPath+" ...", FormatDefault)

	state := offline.State()
	if state != StateNew && state != StateChanged {
		return fmt.Errorf("folder %s has state %s and cannot be published as new or changed", offline.RootPath, state)
	}
	online, err := p.publishOnlineFolder(ctx, run, offline)
	if err != nil {
		return err
	}
	if err = p.acl.PublishAccessControlEntries(ctx, run.Project, run.Online, offline.ResourceID, online.ResourceID); err != nil {
		return fmt.Errorf("publishing access control of %s: %w", offline.RootPath, err)
	}
	if state == StateChanged {
		if err = p.db.DeletePropertyObjects(ctx, run.Online, online, DeleteStructureAndResourceValues); err != nil {
			return err
		}
	}
	if err = p.copyProperties(ctx, run, offline, online); err != nil {
		return err
	}

	if err = p.finishResource(ctx, run, offline, state); err != nil {
		return err
	}
	p.observer.ResourcePublished("folder", state)
	run.Report.Println("ok", FormatOK)
	return nil
}

// publishOnlineFolder writes offline into the online tree. An online folder
// already holding the path under another identity keeps that identity and
// takes the offline values.
func (p *Publisher) publishOnlineFolder(ctx context.Context, run *PublishRun, offline Resource) (Resource, error) {
	target := offline.Published()
	err := p.db.PublishResource(ctx, run.Online, target, false)
	if errors.Is(err, ErrAlreadyExists) {
		existing, rerr := p.db.ReadResource(ctx, run.Online, offline.RootPath, true)
		if rerr != nil {
			return Resource{}, rerr
		}
		if !existing.IsFolder() {
			return Resource{}, err
		}
		p.logger.Warn("adopting online folder", "path", offline.RootPath, "structure_id", existing.StructureID)
		target.StructureID = existing.StructureID
		target.ResourceID = existing.ResourceID
		err = p.db.PublishResource(ctx, run.Online, target, false)
	}
	if err != nil {
		return Resource{}, err
	}
	return p.db.ReadResourceByID(ctx, run.Online, target.StructureID, true)
}

// PublishDeletedFolder removes one DELETED folder online and offline. Its
// children must already be gone.
func (p *Publisher) PublishDeletedFolder(ctx context.Context, run *PublishRun, m, n int, offline Resource) (err error) {
	defer p.bus.Fire(ctx, Event{Type: EventPropertiesModified, Resources: []Resource{offline}, Time: p.clock.Now()})
	defer func() {
		if err != nil {
			p.logger.Error("publishing deleted folder failed", "path", offline.RootPath, "error", err)
		}
	}()

	run.Report.Print(progress(m, n), FormatNote)
	run.Report.Print("deleting folder "+offline.RootPath+" ...", FormatDefault)

	if err = p.writeBackup(ctx, run, offline); err != nil {
		return err
	}

	online, err := p.db.ReadResourceByID(ctx, run.Online, offline.StructureID, true)
	onlineExists := err == nil
	if errors.Is(err, ErrNotFound) {
		p.logger.Warn("online folder already removed", "path", offline.RootPath)
	} else if err != nil {
		return err
	}

	if onlineExists {
		if err = p.db.DeletePropertyObjects(ctx, run.Online, online, DeleteStructureAndResourceValues); err != nil {
			return err
		}
	}
	if err = p.db.DeletePropertyObjects(ctx, run.Project, offline, DeleteStructureAndResourceValues); err != nil {
		return err
	}
	if onlineExists {
		if err = p.db.RemoveFolder(ctx, run.Online, online); err != nil {
			return err
		}
	}
	if err = p.db.RemoveFolder(ctx, run.Project, offline); err != nil {
		return err
	}
	if onlineExists {
		if err = p.acl.RemoveAllAccessControlEntries(ctx, run.Online, online.ResourceID); err != nil {
			return err
		}
	}
	if err = p.acl.RemoveAllAccessControlEntries(ctx, run.Project, offline.ResourceID); err != nil {
		return err
	}
	if err = p.db.PublishRelations(ctx, run.Project, run.Online, offline).Err(); err != nil {
		return err
	}
	if err = p.writeHistoryEntry(ctx, run, offline, StateDeleted); err != nil {
		return err
	}

	p.observer.ResourcePublished("folder", StateDeleted)
	run.Report.Println("ok", FormatOK)
	return nil
}

// PublishFile publishes one file. The state is taken from header, not from
// the stored record: publishing a sibling resets the shared resource state.
func (p *Publisher) PublishFile(ctx context.Context, run *PublishRun, m, n int, header Resource) error {
	_, err := p.publishFile(ctx, run, m, n, header)
	return err
}

func (p *Publisher) publishFile(ctx context.Context, run *PublishRun, m, n int, header Resource) (file Resource, err error) {
	defer p.bus.Fire(ctx, Event{Type: EventResourceAndPropertiesModified, Resources: []Resource{header}, Time: p.clock.Now()})
	defer func() {
		if err != nil {
			p.logger.Error("publishing file failed", "path", header.RootPath, "state", header.State(), "error", err)
		}
	}()

	state := header.State()
	run.Report.Print(progress(m, n), FormatNote)
	switch state {
	case StateDeleted:
		run.Report.Print("deleting file "+header.RootPath+" ...", FormatDefault)
	default:
		run.Report.Print("publishing file "+header.RootPath+" ...", FormatDefault)
	}

	file, err = p.db.ReadFile(ctx, run.Project, header.StructureID, true)
	if err != nil {
		return Resource{}, err
	}
	file.StructureState = header.StructureState
	file.ResourceState = header.ResourceState

	switch state {
	case StateDeleted:
		err = p.publishDeletedFile(ctx, run, file)
	case StateChanged:
		err = p.publishChangedFile(ctx, run, file)
	case StateNew:
		err = p.publishNewFile(ctx, run, file)
	default:
		err = fmt.Errorf("file %s is unchanged", header.RootPath)
	}
	if err != nil {
		return Resource{}, err
	}

	p.observer.ResourcePublished("file", state)
	run.Report.Println("ok", FormatOK)
	return file, nil
}

func (p *Publisher) publishDeletedFile(ctx context.Context, run *PublishRun, file Resource) error {
	if err := p.writeBackup(ctx, run, file); err != nil {
		return err
	}

	online, err := p.db.ReadResourceByID(ctx, run.Online, file.StructureID, true)
	onlineExists := err == nil
	if errors.Is(err, ErrNotFound) {
		p.logger.Warn("online file already removed", "path", file.RootPath)
	} else if err != nil {
		return err
	}

	offline := unlabelIfLast(file)

	if onlineExists {
		online = unlabelIfLast(online)
		if err := p.db.DeletePropertyObjects(ctx, run.Online, online, siblingDeleteOption(online)); err != nil {
			return err
		}
		if online.ResourceID != offline.ResourceID {
			if err := p.db.DeletePropertyObjects(ctx, run.Project, online, siblingDeleteOption(online)); err != nil {
				return err
			}
		}
	}
	if err := p.db.DeletePropertyObjects(ctx, run.Project, offline, siblingDeleteOption(offline)); err != nil {
		return err
	}

	if onlineExists {
		if err := p.db.RemoveFile(ctx, run.Online, online); err != nil {
			return err
		}
	}
	if err := p.db.RemoveFile(ctx, run.Project, offline); err != nil {
		return err
	}

	if onlineExists && online.SiblingCount <= 1 {
		if err := p.acl.RemoveAllAccessControlEntries(ctx, run.Online, online.ResourceID); err != nil {
			return err
		}
	}
	if offline.SiblingCount <= 1 {
		if err := p.acl.RemoveAllAccessControlEntries(ctx, run.Project, offline.ResourceID); err != nil {
			return err
		}
	}
	if err := p.db.PublishRelations(ctx, run.Project, run.Online, file).Err(); err != nil {
		return err
	}
	return p.writeHistoryEntry(ctx, run, file, StateDeleted)
}

func (p *Publisher) publishChangedFile(ctx context.Context, run *PublishRun, file Resource) error {
	online, err := p.db.ReadResourceByID(ctx, run.Online, file.StructureID, true)
	switch {
	case errors.Is(err, ErrNotFound):
		p.logger.Debug("changed file has no online counterpart", "path", file.RootPath)
	case err != nil:
		return err
	default:
		if err := p.db.DeletePropertyObjects(ctx, run.Online, online, siblingDeleteOption(online)); err != nil {
			return err
		}
		if online.ResourceID != file.ResourceID {
			// Relinked offline: the online structure row points at the old
			// resource and goes away with it.
			if err := p.db.DeletePropertyObjects(ctx, run.Project, online, siblingDeleteOption(online)); err != nil {
				return err
			}
			if err := p.db.RemoveFile(ctx, run.Online, online); err != nil {
				return err
			}
		}
	}

	published, err := p.publishOnlineFile(ctx, run, file)
	if err != nil {
		return err
	}
	return p.completeFile(ctx, run, file, published, StateChanged)
}

func (p *Publisher) publishNewFile(ctx context.Context, run *PublishRun, file Resource) error {
	published, err := p.publishOnlineFile(ctx, run, file)
	if err != nil {
		return err
	}
	return p.completeFile(ctx, run, file, published, StateNew)
}

// publishOnlineFile writes file and its content into the online tree. A
// stale online file occupying the path is purged and the write retried once.
func (p *Publisher) publishOnlineFile(ctx context.Context, run *PublishRun, file Resource) (Resource, error) {
	err := p.db.PublishResource(ctx, run.Online, file, true)
	if errors.Is(err, ErrAlreadyExists) {
		stale, rerr := p.db.ReadResource(ctx, run.Online, file.RootPath, true)
		if rerr != nil {
			return Resource{}, rerr
		}
		if !stale.IsFile() {
			return Resource{}, err
		}
		p.logger.Warn("replacing stale online file", "path", file.RootPath, "structure_id", stale.StructureID)
		if err := p.db.DeletePropertyObjects(ctx, run.Online, stale, siblingDeleteOption(stale)); err != nil {
			return Resource{}, err
		}
		if err := p.db.RemoveFile(ctx, run.Online, stale); err != nil {
			return Resource{}, err
		}
		err = p.db.PublishResource(ctx, run.Online, file, true)
	}
	if err != nil {
		return Resource{}, err
	}
	return p.db.ReadResourceByID(ctx, run.Online, file.StructureID, true)
}

func (p *Publisher) completeFile(ctx context.Context, run *PublishRun, offline, online Resource, state State) error {
	if err := p.copyProperties(ctx, run, offline, online); err != nil {
		return err
	}
	if err := p.acl.PublishAccessControlEntries(ctx, run.Project, run.Online, offline.ResourceID, online.ResourceID); err != nil {
		return fmt.Errorf("publishing access control of %s: %w", offline.RootPath, err)
	}
	return p.finishResource(ctx, run, offline, state)
}

// finishResource publishes relations, writes backup and history, and resets
// the offline record to UNCHANGED without project marker.
func (p *Publisher) finishResource(ctx context.Context, run *PublishRun, offline Resource, state State) error {
	if err := p.db.PublishRelations(ctx, run.Project, run.Online, offline).Err(); err != nil {
		return err
	}
	if err := p.recordHistory(ctx, run, offline, state); err != nil {
		return err
	}
	if err := p.db.WriteResourceState(ctx, run.Project, offline.Published(), ChangeAll); err != nil {
		return err
	}
	return p.db.WriteLastModifiedProjectID(ctx, run.Project, 0, offline)
}

// recordHistory writes the backup version, when enabled, and always the
// publish history row.
func (p *Publisher) recordHistory(ctx context.Context, run *PublishRun, res Resource, state State) error {
	if err := p.writeBackup(ctx, run, res); err != nil {
		return err
	}
	return p.writeHistoryEntry(ctx, run, res, state)
}

// writeBackup stores the backup version of res with its offline
// properties. It does nothing when backups are disabled.
func (p *Publisher) writeBackup(ctx context.Context, run *PublishRun, res Resource) error {
	if run.BackupEnabled {
		props, err := p.db.ReadPropertyObjects(ctx, run.Project, res)
		if err != nil {
			return err
		}
		created, err := p.users.UserName(ctx, res.UserCreated)
		if err != nil {
			return fmt.Errorf("resolving creator of %s: %w", res.RootPath, err)
		}
		modified, err := p.users.UserName(ctx, res.UserLastModified)
		if err != nil {
			return fmt.Errorf("resolving modifier of %s: %w", res.RootPath, err)
		}
		backup := BackupResource{
			TagID:                run.BackupTagID,
			Resource:             res,
			UserCreatedName:      created,
			UserLastModifiedName: modified,
			PublishDate:          run.PublishDate,
		}
		if err := p.db.WriteBackupResource(ctx, backup, props, run.MaxVersions); err != nil {
			return fmt.Errorf("writing backup of %s: %w", res.RootPath, err)
		}
	}
	return nil
}

func (p *Publisher) writeHistoryEntry(ctx context.Context, run *PublishRun, res Resource, state State) error {
	entry := PublishHistoryEntry{
		PublishID:   run.PublishID,
		TagID:       run.BackupTagID,
		StructureID: res.StructureID,
		ResourceID:  res.ResourceID,
		ContentID:   res.ContentID,
		RootPath:    res.RootPath,
		State:       state,
		Type:        res.Type,
		PublishedAt: run.PublishDate,
	}
	if err := p.db.WritePublishHistory(ctx, entry); err != nil {
		return fmt.Errorf("writing publish history of %s: %w", res.RootPath, err)
	}
	return nil
}

func (p *Publisher) copyProperties(ctx context.Context, run *PublishRun, offline, online Resource) error {
	props, err := p.db.ReadPropertyObjects(ctx, run.Project, offline)
	if err != nil {
		return err
	}
	for i := range props {
		props[i].AutoCreateDefinition = true
	}
	return p.db.WritePropertyObjects(ctx, run.Online, online, props)
}

// unlabelIfLast clears the label once at most one other sibling will remain.
func unlabelIfLast(res Resource) Resource {
	if res.IsLabeled() && res.SiblingCount-1 <= 1 {
		return res.WithFlags(res.Flags &^ FlagLabeled)
	}
	return res
}

// siblingDeleteOption keeps shared resource values while other siblings
// still reference them.
func siblingDeleteOption(res Resource) DeleteOption {
	if res.SiblingCount > 1 {
		return DeleteStructureValues
	}
	return DeleteStructureAndResourceValues
}

func progress(m, n int) string {
	return fmt.Sprintf("( %d / %d ) ", m, n)
}
