package database

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"vfs-go/internal/vfs"
)

const publishSequence = "publish_id"

const backupColumns = `backup_id, publish_tag, version_id, structure_id, resource_id, content_id, parent_id,
	resource_path, resource_type, resource_flags, project_lastmodified, structure_state, resource_state,
	resource_size, sibling_count, date_created, user_created, user_created_name, date_lastmodified,
	user_lastmodified, user_lastmodified_name, date_released, date_expired, publish_date`

type backupRow struct {
	BackupID             string `db:"backup_id"`
	TagID                int    `db:"publish_tag"`
	VersionID            int    `db:"version_id"`
	StructureID          string `db:"structure_id"`
	ResourceID           string `db:"resource_id"`
	ContentID            string `db:"content_id"`
	ParentID             string `db:"parent_id"`
	ResourcePath         string `db:"resource_path"`
	ResourceType         int    `db:"resource_type"`
	ResourceFlags        int    `db:"resource_flags"`
	ProjectLastModified  int    `db:"project_lastmodified"`
	StructureState       int    `db:"structure_state"`
	ResourceState        int    `db:"resource_state"`
	ResourceSize         int64  `db:"resource_size"`
	SiblingCount         int    `db:"sibling_count"`
	DateCreated          int64  `db:"date_created"`
	UserCreated          string `db:"user_created"`
	UserCreatedName      string `db:"user_created_name"`
	DateLastModified     int64  `db:"date_lastmodified"`
	UserLastModified     string `db:"user_lastmodified"`
	UserLastModifiedName string `db:"user_lastmodified_name"`
	DateReleased         int64  `db:"date_released"`
	DateExpired          int64  `db:"date_expired"`
	PublishDate          int64  `db:"publish_date"`
}

func (row backupRow) toBackup() vfs.BackupResource {
	res := resourceRow{
		StructureID:         row.StructureID,
		ResourceID:          row.ResourceID,
		ParentID:            row.ParentID,
		ResourcePath:        row.ResourcePath,
		StructureState:      row.StructureState,
		DateReleased:        row.DateReleased,
		DateExpired:         row.DateExpired,
		ResourceType:        row.ResourceType,
		ResourceFlags:       row.ResourceFlags,
		ContentID:           row.ContentID,
		ProjectLastModified: row.ProjectLastModified,
		ResourceState:       row.ResourceState,
		ResourceSize:        row.ResourceSize,
		SiblingCount:        row.SiblingCount,
		DateCreated:         row.DateCreated,
		UserCreated:         row.UserCreated,
		DateLastModified:    row.DateLastModified,
		UserLastModified:    row.UserLastModified,
	}.toResource()
	return vfs.BackupResource{
		BackupID:             row.BackupID,
		TagID:                row.TagID,
		VersionID:            row.VersionID,
		Resource:             res,
		UserCreatedName:      row.UserCreatedName,
		UserLastModifiedName: row.UserLastModifiedName,
		PublishDate:          fromMillis(row.PublishDate),
	}
}

// NextPublishID advances the publish sequence. The result is always greater
// than every publish id already in the history.
func (s *SQLDatabase) NextPublishID(ctx context.Context) (int, error) {
	var next int
	err := s.withTx(ctx, "reserving publish id", func(tx *sqlx.Tx) error {
		// The update takes the row lock before anything is read.
		n, err := exec(ctx, tx, "advancing publish sequence",
			"UPDATE publish_sequence SET sequence_value = sequence_value + 1 WHERE sequence_name = ?", publishSequence)
		if err != nil {
			return err
		}
		if n == 0 {
			return &vfs.ConsistencyError{Msg: "publish sequence row is missing"}
		}
		if err := sqlx.GetContext(ctx, tx, &next, tx.Rebind("SELECT sequence_value FROM publish_sequence WHERE sequence_name = ?"), publishSequence); err != nil {
			return storeErr("reading publish sequence", err)
		}

		var maxID int
		if err := sqlx.GetContext(ctx, tx, &maxID, "SELECT COALESCE(MAX(publish_id), 0) FROM publish_history"); err != nil {
			return storeErr("reading publish history", err)
		}
		if next <= maxID {
			next = maxID + 1
			_, err := exec(ctx, tx, "advancing publish sequence",
				"UPDATE publish_sequence SET sequence_value = ? WHERE sequence_name = ?", next, publishSequence)
			return err
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (s *SQLDatabase) NextBackupTagID(ctx context.Context) (int, error) {
	var next int
	err := s.withTx(ctx, "reading next backup tag", func(tx *sqlx.Tx) error {
		var maxTag int
		for _, table := range []string{"backup_projects", "backup_resources", "publish_history"} {
			var n int
			if err := sqlx.GetContext(ctx, tx, &n, "SELECT COALESCE(MAX(publish_tag), 0) FROM "+table); err != nil {
				return storeErr("reading max tag of "+table, err)
			}
			maxTag = max(maxTag, n)
		}
		next = maxTag + 1
		return nil
	})
	return next, err
}

func (s *SQLDatabase) WriteBackupProject(ctx context.Context, bp vfs.BackupProject) error {
	return s.withTx(ctx, "writing backup project", func(tx *sqlx.Tx) error {
		if _, err := exec(ctx, tx, "writing backup project",
			`INSERT INTO backup_projects (publish_tag, project_id, project_name, project_description, project_type,
			published_by, publisher_name, publish_date) VALUES (`+placeholders(8)+")",
			bp.TagID, bp.ProjectID, bp.Name, bp.Description, int(bp.Type), bp.PublishedBy, bp.PublisherName, millis(bp.PublishDate)); err != nil {
			return err
		}
		for _, path := range bp.ResourcePaths {
			if _, err := exec(ctx, tx, "writing backup project resources",
				"INSERT INTO backup_project_resources (publish_tag, resource_path) VALUES (?, ?)", bp.TagID, path); err != nil {
				return err
			}
		}
		return nil
	})
}

type backupProjectRow struct {
	TagID         int    `db:"publish_tag"`
	ProjectID     int    `db:"project_id"`
	Name          string `db:"project_name"`
	Description   string `db:"project_description"`
	Type          int    `db:"project_type"`
	PublishedBy   string `db:"published_by"`
	PublisherName string `db:"publisher_name"`
	PublishDate   int64  `db:"publish_date"`
}

func (s *SQLDatabase) readBackupProjects(ctx context.Context, where string, args ...any) ([]vfs.BackupProject, error) {
	var rows []backupProjectRow
	query := "SELECT publish_tag, project_id, project_name, project_description, project_type, published_by, publisher_name, publish_date FROM backup_projects" +
		where + " ORDER BY publish_tag DESC"
	if err := sqlx.SelectContext(ctx, s.db, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, storeErr("reading backup projects", err)
	}

	out := make([]vfs.BackupProject, len(rows))
	for i, row := range rows {
		var paths []string
		if err := sqlx.SelectContext(ctx, s.db, &paths, s.db.Rebind("SELECT resource_path FROM backup_project_resources WHERE publish_tag = ? ORDER BY resource_path"), row.TagID); err != nil {
			return nil, storeErr("reading backup project resources", err)
		}
		out[i] = vfs.BackupProject{
			TagID:         row.TagID,
			ProjectID:     row.ProjectID,
			Name:          row.Name,
			Description:   row.Description,
			Type:          vfs.ProjectType(row.Type),
			ResourcePaths: paths,
			PublishedBy:   row.PublishedBy,
			PublisherName: row.PublisherName,
			PublishDate:   fromMillis(row.PublishDate),
		}
	}
	return out, nil
}

func (s *SQLDatabase) ReadBackupProject(ctx context.Context, tagID int) (vfs.BackupProject, error) {
	projects, err := s.readBackupProjects(ctx, " WHERE publish_tag = ?", tagID)
	if err != nil {
		return vfs.BackupProject{}, err
	}
	if len(projects) == 0 {
		return vfs.BackupProject{}, &vfs.NotFoundError{Kind: "backup project", Key: fmt.Sprint(tagID)}
	}
	return projects[0], nil
}

func (s *SQLDatabase) ReadBackupProjects(ctx context.Context) ([]vfs.BackupProject, error) {
	return s.readBackupProjects(ctx, "")
}

// WriteBackupResource appends the next version of the resource, with its
// content and properties, then prunes versions beyond maxVersions.
func (s *SQLDatabase) WriteBackupResource(ctx context.Context, backup vfs.BackupResource, props []vfs.Property, maxVersions int) error {
	res := backup.Resource
	return s.withTx(ctx, "writing backup of "+res.RootPath, func(tx *sqlx.Tx) error {
		var version int
		if err := sqlx.GetContext(ctx, tx, &version, tx.Rebind("SELECT COALESCE(MAX(version_id), 0) FROM backup_resources WHERE structure_id = ?"), res.StructureID); err != nil {
			return storeErr("reading backup version", err)
		}
		version++
		if backup.BackupID == "" {
			backup.BackupID = s.ids.New()
		}

		if _, err := exec(ctx, tx, "writing backup resource",
			"INSERT INTO backup_resources ("+backupColumns+") VALUES ("+placeholders(24)+")",
			backup.BackupID, backup.TagID, version, res.StructureID, res.ResourceID, res.ContentID, res.ParentID,
			vfs.RemoveTrailingSeparator(res.RootPath), int(res.Type), int(res.Flags), res.ProjectLastModified,
			int(res.StructureState), int(res.ResourceState), res.Length, res.SiblingCount,
			millis(res.DateCreated), res.UserCreated, backup.UserCreatedName, millis(res.DateLastModified),
			res.UserLastModified, backup.UserLastModifiedName, millis(res.DateReleased), millis(res.DateExpired),
			millis(backup.PublishDate)); err != nil {
			return err
		}

		if res.IsFile() {
			content := res.Content
			if content == nil {
				content = []byte{}
			}
			if _, err := exec(ctx, tx, "writing backup content",
				"INSERT INTO backup_contents (backup_id, file_content) VALUES (?, ?)", backup.BackupID, content); err != nil {
				return err
			}
		}

		for _, prop := range props {
			if err := s.writeBackupProperty(ctx, tx, backup.BackupID, prop); err != nil {
				return err
			}
		}

		if maxVersions > 0 {
			return pruneBackups(ctx, tx, res.StructureID, maxVersions)
		}
		return nil
	})
}

func (s *SQLDatabase) writeBackupProperty(ctx context.Context, q sqlx.ExtContext, backupID string, prop vfs.Property) error {
	def, err := readDefinition(ctx, q, backupPropertyDefTable, prop.Name)
	if errors.Is(err, vfs.ErrNotFound) {
		if err := s.createDefinitions(ctx, q, prop.Name); err != nil {
			return err
		}
		def, err = readDefinition(ctx, q, backupPropertyDefTable, prop.Name)
	}
	if err != nil {
		return err
	}

	values := []struct {
		mapping vfs.MappingType
		value   string
	}{
		{vfs.MappingStructure, prop.StructureValue},
		{vfs.MappingResource, prop.ResourceValue},
	}
	for _, v := range values {
		if v.value == "" {
			continue
		}
		if _, err := exec(ctx, q, "writing backup property "+prop.Name,
			"INSERT INTO backup_properties (property_id, backup_id, propertydef_id, property_mapping_type, property_value) VALUES (?, ?, ?, ?, ?)",
			s.ids.New(), backupID, def.ID, int(v.mapping), v.value); err != nil {
			return err
		}
	}
	return nil
}

// pruneBackups deletes the oldest versions of structureID beyond keep.
func pruneBackups(ctx context.Context, q sqlx.ExtContext, structureID string, keep int) error {
	var ids []string
	if err := sqlx.SelectContext(ctx, q, &ids, q.Rebind("SELECT backup_id FROM backup_resources WHERE structure_id = ? ORDER BY version_id DESC"), structureID); err != nil {
		return storeErr("reading backup versions", err)
	}
	if len(ids) <= keep {
		return nil
	}
	for _, id := range ids[keep:] {
		for _, table := range []string{"backup_properties", "backup_contents", "backup_resources"} {
			if _, err := exec(ctx, q, "pruning backup "+id, "DELETE FROM "+table+" WHERE backup_id = ?", id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *SQLDatabase) ReadBackupVersions(ctx context.Context, path string) ([]vfs.BackupResource, error) {
	var rows []backupRow
	query := "SELECT " + backupColumns + " FROM backup_resources WHERE resource_path = ? ORDER BY publish_tag DESC, version_id DESC"
	if err := sqlx.SelectContext(ctx, s.db, &rows, s.db.Rebind(query), vfs.RemoveTrailingSeparator(path)); err != nil {
		return nil, storeErr("reading backup versions of "+path, err)
	}
	out := make([]vfs.BackupResource, len(rows))
	for i, row := range rows {
		out[i] = row.toBackup()
	}
	return out, nil
}

func (s *SQLDatabase) ReadBackupFile(ctx context.Context, tagID int, path string) (vfs.BackupResource, error) {
	var row backupRow
	query := "SELECT " + backupColumns + " FROM backup_resources WHERE publish_tag = ? AND resource_path = ? ORDER BY version_id DESC LIMIT 1"
	err := sqlx.GetContext(ctx, s.db, &row, s.db.Rebind(query), tagID, vfs.RemoveTrailingSeparator(path))
	if isNoRows(err) {
		return vfs.BackupResource{}, &vfs.NotFoundError{Kind: "backup", Key: fmt.Sprintf("%s@%d", path, tagID)}
	}
	if err != nil {
		return vfs.BackupResource{}, storeErr("reading backup of "+path, err)
	}
	backup := row.toBackup()
	if backup.Resource.IsFolder() {
		return backup, nil
	}

	var content []byte
	err = sqlx.GetContext(ctx, s.db, &content, s.db.Rebind("SELECT file_content FROM backup_contents WHERE backup_id = ?"), backup.BackupID)
	if err != nil && !isNoRows(err) {
		return vfs.BackupResource{}, storeErr("reading backup content of "+path, err)
	}
	backup.Resource = backup.Resource.WithContent(content)
	return backup, nil
}

func (s *SQLDatabase) ReadBackupProperties(ctx context.Context, backupID string) ([]vfs.Property, error) {
	var rows []propertyRow
	query := "SELECT d.propertydef_name, p.property_mapping_type, p.backup_id AS property_mapping_id, p.property_value FROM backup_properties p " +
		"JOIN " + backupPropertyDefTable + " d ON d.propertydef_id = p.propertydef_id WHERE p.backup_id = ?"
	if err := sqlx.SelectContext(ctx, s.db, &rows, s.db.Rebind(query), backupID); err != nil {
		return nil, storeErr("reading backup properties", err)
	}

	byName := make(map[string]vfs.Property)
	for _, row := range rows {
		p := byName[row.Name]
		p.Name = row.Name
		switch vfs.MappingType(row.MappingType) {
		case vfs.MappingStructure:
			p.StructureValue = row.Value
		case vfs.MappingResource:
			p.ResourceValue = row.Value
		default:
			return nil, &vfs.ConsistencyError{Msg: fmt.Sprintf("backup property %s has unknown mapping type %d", row.Name, row.MappingType)}
		}
		byName[row.Name] = p
	}
	props := make([]vfs.Property, 0, len(byName))
	for _, p := range byName {
		props = append(props, p)
	}
	sort.Slice(props, func(i, j int) bool { return props[i].Name < props[j].Name })
	return props, nil
}

func (s *SQLDatabase) WritePublishHistory(ctx context.Context, entry vfs.PublishHistoryEntry) error {
	_, err := exec(ctx, s.db, "writing publish history of "+entry.RootPath,
		`INSERT INTO publish_history (publish_id, publish_tag, structure_id, resource_id, content_id,
		resource_path, resource_state, resource_type, publish_date) VALUES (`+placeholders(9)+")",
		entry.PublishID, entry.TagID, entry.StructureID, entry.ResourceID, entry.ContentID,
		entry.RootPath, int(entry.State), int(entry.Type), millis(entry.PublishedAt))
	return err
}

type historyRow struct {
	PublishID   int    `db:"publish_id"`
	TagID       int    `db:"publish_tag"`
	StructureID string `db:"structure_id"`
	ResourceID  string `db:"resource_id"`
	ContentID   string `db:"content_id"`
	Path        string `db:"resource_path"`
	State       int    `db:"resource_state"`
	Type        int    `db:"resource_type"`
	PublishDate int64  `db:"publish_date"`
}

func (s *SQLDatabase) ReadPublishHistory(ctx context.Context, publishID int) ([]vfs.PublishHistoryEntry, error) {
	var rows []historyRow
	query := `SELECT publish_id, publish_tag, structure_id, resource_id, content_id, resource_path, resource_state,
		resource_type, publish_date FROM publish_history WHERE publish_id = ? ORDER BY history_id`
	if err := sqlx.SelectContext(ctx, s.db, &rows, s.db.Rebind(query), publishID); err != nil {
		return nil, storeErr("reading publish history", err)
	}
	out := make([]vfs.PublishHistoryEntry, len(rows))
	for i, row := range rows {
		out[i] = vfs.PublishHistoryEntry{
			PublishID:   row.PublishID,
			TagID:       row.TagID,
			StructureID: row.StructureID,
			ResourceID:  row.ResourceID,
			ContentID:   row.ContentID,
			RootPath:    row.Path,
			State:       vfs.State(row.State),
			Type:        vfs.ResourceType(row.Type),
			PublishedAt: fromMillis(row.PublishDate),
		}
	}
	return out, nil
}
