package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"vfs-go/internal/vfs"
)

const resourceColumns = `s.structure_id, s.resource_id, s.parent_id, s.resource_path, s.structure_state,
	s.date_released, s.date_expired, r.resource_type, r.resource_flags, r.content_id,
	r.project_lastmodified, r.resource_state, r.resource_size, r.sibling_count,
	r.date_created, r.user_created, r.date_lastmodified, r.user_lastmodified`

// effectiveState is the SQL form of vfs.Resource.State.
const effectiveState = `CASE WHEN s.structure_state > r.resource_state THEN s.structure_state ELSE r.resource_state END`

// resourceRow is the join of one structure row and its resource row.
type resourceRow struct {
	StructureID         string `db:"structure_id"`
	ResourceID          string `db:"resource_id"`
	ParentID            string `db:"parent_id"`
	ResourcePath        string `db:"resource_path"`
	StructureState      int    `db:"structure_state"`
	DateReleased        int64  `db:"date_released"`
	DateExpired         int64  `db:"date_expired"`
	ResourceType        int    `db:"resource_type"`
	ResourceFlags       int    `db:"resource_flags"`
	ContentID           string `db:"content_id"`
	ProjectLastModified int    `db:"project_lastmodified"`
	ResourceState       int    `db:"resource_state"`
	ResourceSize        int64  `db:"resource_size"`
	SiblingCount        int    `db:"sibling_count"`
	DateCreated         int64  `db:"date_created"`
	UserCreated         string `db:"user_created"`
	DateLastModified    int64  `db:"date_lastmodified"`
	UserLastModified    string `db:"user_lastmodified"`
}

func (row resourceRow) toResource() vfs.Resource {
	res := vfs.Resource{
		StructureID:         row.StructureID,
		ResourceID:          row.ResourceID,
		ParentID:            row.ParentID,
		ContentID:           row.ContentID,
		RootPath:            row.ResourcePath,
		Type:                vfs.ResourceType(row.ResourceType),
		Flags:               vfs.Flags(row.ResourceFlags),
		ProjectLastModified: row.ProjectLastModified,
		StructureState:      vfs.State(row.StructureState),
		ResourceState:       vfs.State(row.ResourceState),
		DateCreated:         fromMillis(row.DateCreated),
		UserCreated:         row.UserCreated,
		DateLastModified:    fromMillis(row.DateLastModified),
		UserLastModified:    row.UserLastModified,
		DateReleased:        fromMillis(row.DateReleased),
		DateExpired:         fromMillis(row.DateExpired),
		SiblingCount:        row.SiblingCount,
		Length:              row.ResourceSize,
	}
	if res.IsFolder() {
		res.RootPath = vfs.AddTrailingSeparator(res.RootPath)
	}
	return res
}

func selectResources(t tables) string {
	return "SELECT " + resourceColumns + " FROM " + t.structure + " s JOIN " + t.resources + " r ON r.resource_id = s.resource_id"
}

func readOne(ctx context.Context, q sqlx.ExtContext, t tables, key, where string, includeDeleted bool, args ...any) (vfs.Resource, error) {
	var row resourceRow
	err := sqlx.GetContext(ctx, q, &row, q.Rebind(selectResources(t)+" WHERE "+where), args...)
	if isNoRows(err) {
		return vfs.Resource{}, &vfs.NotFoundError{Kind: "resource", Key: key}
	}
	if err != nil {
		return vfs.Resource{}, storeErr("reading resource "+key, err)
	}
	res := row.toResource()
	if !includeDeleted && res.State() == vfs.StateDeleted {
		return vfs.Resource{}, &vfs.DeletedResourceError{Path: res.RootPath}
	}
	return res, nil
}

func readByPath(ctx context.Context, q sqlx.ExtContext, t tables, path string, includeDeleted bool) (vfs.Resource, error) {
	return readOne(ctx, q, t, path, "s.resource_path = ?", includeDeleted, vfs.RemoveTrailingSeparator(path))
}

func readByID(ctx context.Context, q sqlx.ExtContext, t tables, structureID string, includeDeleted bool) (vfs.Resource, error) {
	return readOne(ctx, q, t, structureID, "s.structure_id = ?", includeDeleted, structureID)
}

func readMany(ctx context.Context, q sqlx.ExtContext, t tables, op, where string, args ...any) ([]vfs.Resource, error) {
	var rows []resourceRow
	query := selectResources(t)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY s.resource_path"
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(query), args...); err != nil {
		return nil, storeErr(op, err)
	}
	out := make([]vfs.Resource, len(rows))
	for i, row := range rows {
		out[i] = row.toResource()
	}
	return out, nil
}

func resourceExists(ctx context.Context, q sqlx.ExtContext, t tables, resourceID string) (bool, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n, q.Rebind("SELECT COUNT(*) FROM "+t.resources+" WHERE resource_id = ?"), resourceID)
	if err != nil {
		return false, storeErr("checking resource "+resourceID, err)
	}
	return n > 0, nil
}

func countSiblings(ctx context.Context, q sqlx.ExtContext, t tables, resourceID string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n, q.Rebind("SELECT COUNT(*) FROM "+t.structure+" WHERE resource_id = ?"), resourceID)
	if err != nil {
		return 0, storeErr("counting siblings of "+resourceID, err)
	}
	return n, nil
}

// recountSiblings stores the number of structure rows referencing resourceID.
func recountSiblings(ctx context.Context, q sqlx.ExtContext, t tables, resourceID string) (int, error) {
	n, err := countSiblings(ctx, q, t, resourceID)
	if err != nil {
		return 0, err
	}
	_, err = exec(ctx, q, "updating sibling count", "UPDATE "+t.resources+" SET sibling_count = ? WHERE resource_id = ?", n, resourceID)
	return n, err
}

func insertStructure(ctx context.Context, q sqlx.ExtContext, t tables, res vfs.Resource) error {
	_, err := exec(ctx, q, "inserting structure "+res.RootPath,
		"INSERT INTO "+t.structure+` (structure_id, resource_id, parent_id, resource_path, structure_state, date_released, date_expired)
		VALUES (`+placeholders(7)+")",
		res.StructureID, res.ResourceID, res.ParentID, vfs.RemoveTrailingSeparator(res.RootPath),
		int(res.StructureState), millis(res.DateReleased), millis(res.DateExpired))
	return err
}

func insertResource(ctx context.Context, q sqlx.ExtContext, t tables, res vfs.Resource) error {
	_, err := exec(ctx, q, "inserting resource "+res.RootPath,
		"INSERT INTO "+t.resources+` (resource_id, resource_type, resource_flags, content_id, project_lastmodified,
		resource_state, resource_size, sibling_count, date_created, user_created, date_lastmodified, user_lastmodified)
		VALUES (`+placeholders(12)+")",
		res.ResourceID, int(res.Type), int(res.Flags), res.ContentID, res.ProjectLastModified,
		int(res.ResourceState), res.Length, 1, millis(res.DateCreated), res.UserCreated,
		millis(res.DateLastModified), res.UserLastModified)
	return err
}

func updateResourceRow(ctx context.Context, q sqlx.ExtContext, t tables, res vfs.Resource) error {
	_, err := exec(ctx, q, "updating resource "+res.RootPath,
		"UPDATE "+t.resources+` SET resource_type = ?, resource_flags = ?, project_lastmodified = ?,
		resource_state = ?, resource_size = ?, date_lastmodified = ?, user_lastmodified = ?
		WHERE resource_id = ?`,
		int(res.Type), int(res.Flags), res.ProjectLastModified, int(res.ResourceState), res.Length,
		millis(res.DateLastModified), res.UserLastModified, res.ResourceID)
	return err
}

// updateStructureRow rewrites the structure row of res and reports whether
// one existed.
func updateStructureRow(ctx context.Context, q sqlx.ExtContext, t tables, res vfs.Resource) (bool, error) {
	n, err := exec(ctx, q, "updating structure "+res.RootPath,
		"UPDATE "+t.structure+` SET resource_id = ?, parent_id = ?, resource_path = ?, structure_state = ?,
		date_released = ?, date_expired = ? WHERE structure_id = ?`,
		res.ResourceID, res.ParentID, vfs.RemoveTrailingSeparator(res.RootPath), int(res.StructureState),
		millis(res.DateReleased), millis(res.DateExpired), res.StructureID)
	return n > 0, err
}

// writeContent stores content under the content row of resourceID,
// inserting it with contentID when missing.
func writeContent(ctx context.Context, q sqlx.ExtContext, t tables, resourceID, contentID string, content []byte) error {
	if content == nil {
		content = []byte{}
	}
	n, err := exec(ctx, q, "writing content", "UPDATE "+t.contents+" SET file_content = ? WHERE resource_id = ?", content, resourceID)
	if err != nil || n > 0 {
		return err
	}
	_, err = exec(ctx, q, "inserting content",
		"INSERT INTO "+t.contents+" (content_id, resource_id, file_content) VALUES (?, ?, ?)", contentID, resourceID, content)
	return err
}

// removeFile deletes the structure row of res. The resource and content
// rows go once no sibling references them.
func removeFile(ctx context.Context, q sqlx.ExtContext, t tables, res vfs.Resource) error {
	if _, err := exec(ctx, q, "removing structure "+res.RootPath, "DELETE FROM "+t.structure+" WHERE structure_id = ?", res.StructureID); err != nil {
		return err
	}
	n, err := countSiblings(ctx, q, t, res.ResourceID)
	if err != nil {
		return err
	}
	if n > 0 {
		_, err := exec(ctx, q, "updating siblings of "+res.RootPath,
			"UPDATE "+t.resources+" SET sibling_count = ?, resource_flags = ? WHERE resource_id = ?", n, int(res.Flags), res.ResourceID)
		return err
	}
	if _, err := exec(ctx, q, "removing resource "+res.RootPath, "DELETE FROM "+t.resources+" WHERE resource_id = ?", res.ResourceID); err != nil {
		return err
	}
	_, err = exec(ctx, q, "removing content "+res.RootPath, "DELETE FROM "+t.contents+" WHERE resource_id = ?", res.ResourceID)
	return err
}

// resolveParent checks that the parent folder of path exists and is not
// deleted, and returns its structure id. The root has no parent.
func resolveParent(ctx context.Context, q sqlx.ExtContext, t tables, path string) (string, error) {
	parentPath := vfs.ParentFolder(path)
	if parentPath == "" {
		return "", nil
	}
	parent, err := readByPath(ctx, q, t, parentPath, true)
	if errors.Is(err, vfs.ErrNotFound) {
		return "", &vfs.NotFoundError{Kind: "parent folder", Key: parentPath}
	}
	if err != nil {
		return "", err
	}
	if !parent.IsFolder() {
		return "", &vfs.InvalidResourceError{Path: path, Reason: "parent is not a folder"}
	}
	if parent.State() == vfs.StateDeleted {
		return "", &vfs.ParentDeletedError{Path: path}
	}
	return parent.StructureID, nil
}

// purgeCollision physically removes a deleted resource occupying the path
// of a resource about to be created.
func (s *SQLDatabase) purgeCollision(ctx context.Context, q sqlx.ExtContext, project *vfs.Project, existing vfs.Resource) error {
	t := tablesFor(project)
	option := vfs.DeleteStructureAndResourceValues
	if existing.SiblingCount > 1 {
		option = vfs.DeleteStructureValues
	}
	if err := deleteProperties(ctx, q, t, existing, option); err != nil {
		return err
	}
	if err := removeFile(ctx, q, t, existing); err != nil {
		return err
	}
	s.logger.Debug("purged deleted resource", "path", existing.RootPath, "project", describe(project))
	return nil
}

// claimPath validates res against its path: the parent must be live and a
// live resource must not occupy the path. A deleted occupant is purged and
// its structure id returned for reuse.
func (s *SQLDatabase) claimPath(ctx context.Context, q sqlx.ExtContext, project *vfs.Project, res vfs.Resource) (parentID string, purged *vfs.Resource, err error) {
	t := tablesFor(project)
	parentID, err = resolveParent(ctx, q, t, res.RootPath)
	if err != nil {
		return "", nil, err
	}

	existing, err := readByPath(ctx, q, t, res.RootPath, true)
	switch {
	case errors.Is(err, vfs.ErrNotFound):
		return parentID, nil, nil
	case err != nil:
		return "", nil, err
	case existing.State() != vfs.StateDeleted:
		return "", nil, &vfs.AlreadyExistsError{Path: existing.RootPath}
	}
	if err := s.purgeCollision(ctx, q, project, existing); err != nil {
		return "", nil, err
	}
	return parentID, &existing, nil
}

func (s *SQLDatabase) firePurged(ctx context.Context, purged *vfs.Resource) {
	if purged == nil {
		return
	}
	now := purged.DateLastModified
	s.bus.Fire(ctx, vfs.Event{Type: vfs.EventResourcesModified, Resources: []vfs.Resource{*purged}, Time: now})
	s.bus.Fire(ctx, vfs.Event{Type: vfs.EventResourceAndPropertiesModified, Resources: []vfs.Resource{*purged}, Time: now})
}

func (s *SQLDatabase) CreateResource(ctx context.Context, project *vfs.Project, res vfs.Resource, content []byte) (vfs.Resource, error) {
	if err := res.Validate(); err != nil {
		return vfs.Resource{}, err
	}
	t := tablesFor(project)

	var created vfs.Resource
	var purged *vfs.Resource
	err := s.withTx(ctx, "creating resource "+res.RootPath, func(tx *sqlx.Tx) error {
		parentID, p, err := s.claimPath(ctx, tx, project, res)
		if err != nil {
			return err
		}
		purged = p
		res.ParentID = parentID

		state := vfs.StateNew
		if project.IsOnline() {
			state = vfs.StateUnchanged
		}
		if purged != nil {
			res.StructureID = purged.StructureID
			if !project.IsOnline() {
				state = vfs.StateChanged
			}
		}
		if res.StructureID == "" {
			res.StructureID = s.ids.New()
		}
		if res.ResourceID == "" {
			res.ResourceID = s.ids.New()
		}
		if res.IsFile() && res.ContentID == "" {
			res.ContentID = s.ids.New()
		}
		res = res.WithState(state)

		if err := insertStructure(ctx, tx, t, res); err != nil {
			return err
		}

		exists, err := resourceExists(ctx, tx, t, res.ResourceID)
		if err != nil {
			return err
		}
		if !exists {
			if err := insertResource(ctx, tx, t, res); err != nil {
				return err
			}
			if res.IsFile() {
				if err := writeContent(ctx, tx, t, res.ResourceID, res.ContentID, content); err != nil {
					return err
				}
			}
		} else {
			if !project.IsOnline() {
				res.ResourceState = vfs.StateChanged
			}
			if err := updateResourceRow(ctx, tx, t, res); err != nil {
				return err
			}
			if _, err := recountSiblings(ctx, tx, t, res.ResourceID); err != nil {
				return err
			}
			if res.IsFile() && content != nil {
				if err := writeContent(ctx, tx, t, res.ResourceID, res.ContentID, content); err != nil {
					return err
				}
			}
		}

		created, err = readByID(ctx, tx, t, res.StructureID, true)
		return err
	})
	if err != nil {
		return vfs.Resource{}, err
	}
	s.firePurged(ctx, purged)
	return created, nil
}

func (s *SQLDatabase) CreateSibling(ctx context.Context, project *vfs.Project, res vfs.Resource) (vfs.Resource, error) {
	if err := res.Validate(); err != nil {
		return vfs.Resource{}, err
	}
	t := tablesFor(project)

	var created vfs.Resource
	var purged *vfs.Resource
	err := s.withTx(ctx, "creating sibling "+res.RootPath, func(tx *sqlx.Tx) error {
		exists, err := resourceExists(ctx, tx, t, res.ResourceID)
		if err != nil {
			return err
		}
		if !exists {
			return &vfs.NotFoundError{Kind: "resource", Key: res.ResourceID}
		}

		parentID, p, err := s.claimPath(ctx, tx, project, res)
		if err != nil {
			return err
		}
		purged = p
		res.ParentID = parentID
		if purged != nil {
			res.StructureID = purged.StructureID
		}
		if res.StructureID == "" {
			res.StructureID = s.ids.New()
		}
		if project.IsOnline() {
			res.StructureState = vfs.StateUnchanged
		}

		if err := insertStructure(ctx, tx, t, res); err != nil {
			return err
		}
		n, err := countSiblings(ctx, tx, t, res.ResourceID)
		if err != nil {
			return err
		}
		if _, err := exec(ctx, tx, "updating siblings of "+res.RootPath,
			"UPDATE "+t.resources+" SET sibling_count = ?, resource_flags = ? WHERE resource_id = ?",
			n, int(res.Flags), res.ResourceID); err != nil {
			return err
		}

		created, err = readByID(ctx, tx, t, res.StructureID, true)
		return err
	})
	if err != nil {
		return vfs.Resource{}, err
	}
	s.firePurged(ctx, purged)
	return created, nil
}

func (s *SQLDatabase) ReadResource(ctx context.Context, project *vfs.Project, path string, includeDeleted bool) (vfs.Resource, error) {
	return readByPath(ctx, s.db, tablesFor(project), path, includeDeleted)
}

func (s *SQLDatabase) ReadResourceByID(ctx context.Context, project *vfs.Project, structureID string, includeDeleted bool) (vfs.Resource, error) {
	return readByID(ctx, s.db, tablesFor(project), structureID, includeDeleted)
}

func (s *SQLDatabase) ReadFile(ctx context.Context, project *vfs.Project, structureID string, includeDeleted bool) (vfs.Resource, error) {
	res, err := s.ReadResourceByID(ctx, project, structureID, includeDeleted)
	if err != nil {
		return vfs.Resource{}, err
	}
	if res.IsFolder() {
		return vfs.Resource{}, &vfs.InvalidResourceError{Path: res.RootPath, Reason: "not a file"}
	}
	content, err := s.ReadContent(ctx, project, res.ResourceID)
	if err != nil {
		return vfs.Resource{}, err
	}
	res.Content = content
	return res, nil
}

func (s *SQLDatabase) ReadSiblings(ctx context.Context, project *vfs.Project, res vfs.Resource, includeDeleted bool) ([]vfs.Resource, error) {
	siblings, err := readMany(ctx, s.db, tablesFor(project), "reading siblings of "+res.RootPath, "s.resource_id = ?", res.ResourceID)
	if err != nil {
		return nil, err
	}
	if includeDeleted {
		return siblings, nil
	}
	live := siblings[:0]
	for _, sib := range siblings {
		if sib.State() != vfs.StateDeleted {
			live = append(live, sib)
		}
	}
	return live, nil
}

func (s *SQLDatabase) ReadChildResources(ctx context.Context, project *vfs.Project, parent vfs.Resource, folders, files bool) ([]vfs.Resource, error) {
	where := "s.parent_id = ?"
	switch {
	case folders && !files:
		where += " AND r.resource_type = 0"
	case files && !folders:
		where += " AND r.resource_type <> 0"
	case !folders && !files:
		return nil, nil
	}
	children, err := readMany(ctx, s.db, tablesFor(project), "reading children of "+parent.RootPath, where, parent.StructureID)
	if err != nil {
		return nil, err
	}
	vfs.SortFoldersFirst(children)
	return children, nil
}

func (s *SQLDatabase) ReadResourceTree(ctx context.Context, project *vfs.Project, filter vfs.TreeFilter) ([]vfs.Resource, error) {
	var conds []string
	var args []any
	add := func(cond string, a ...any) {
		conds = append(conds, cond)
		args = append(args, a...)
	}

	switch {
	case filter.ParentID != "":
		add("s.parent_id = ?", filter.ParentID)
	case filter.ParentPath != "":
		parent := vfs.RemoveTrailingSeparator(filter.ParentPath)
		add(`s.resource_path LIKE ? ESCAPE '\'`, likePrefix(parent))
		add("s.resource_path <> ?", parent)
	}
	if filter.OnlyFolders {
		add("r.resource_type = 0")
	}
	if filter.OnlyFiles {
		add("r.resource_type <> 0")
	}
	if filter.Type != nil {
		op := "="
		if filter.ExcludeType {
			op = "<>"
		}
		add("r.resource_type "+op+" ?", int(*filter.Type))
	}
	if filter.State != nil {
		op := "="
		if filter.ExcludeState {
			op = "<>"
		}
		add(effectiveState+" "+op+" ?", int(*filter.State))
	}
	if filter.ProjectID != 0 {
		add("r.project_lastmodified = ?", filter.ProjectID)
	}
	ranges := []struct {
		column string
		after  int64
		before int64
	}{
		{"r.date_lastmodified", millis(filter.ModifiedAfter), millis(filter.ModifiedBefore)},
		{"s.date_released", millis(filter.ReleasedAfter), millis(filter.ReleasedBefore)},
		{"s.date_expired", millis(filter.ExpiredAfter), millis(filter.ExpiredBefore)},
	}
	for _, r := range ranges {
		if r.after != 0 {
			add(r.column+" >= ?", r.after)
		}
		if r.before != 0 {
			add(r.column+" <= ?", r.before)
		}
	}

	return readMany(ctx, s.db, tablesFor(project), "reading resource tree", strings.Join(conds, " AND "), args...)
}

func (s *SQLDatabase) ReadContent(ctx context.Context, project *vfs.Project, resourceID string) ([]byte, error) {
	t := tablesFor(project)
	var content []byte
	err := sqlx.GetContext(ctx, s.db, &content, s.db.Rebind("SELECT file_content FROM "+t.contents+" WHERE resource_id = ?"), resourceID)
	if isNoRows(err) {
		return nil, &vfs.NotFoundError{Kind: "content", Key: resourceID}
	}
	if err != nil {
		return nil, storeErr("reading content of "+resourceID, err)
	}
	if content == nil {
		content = []byte{}
	}
	return content, nil
}

func (s *SQLDatabase) WriteContent(ctx context.Context, project *vfs.Project, resourceID string, content []byte) error {
	t := tablesFor(project)
	return s.withTx(ctx, "writing content of "+resourceID, func(tx *sqlx.Tx) error {
		var contentID string
		err := sqlx.GetContext(ctx, tx, &contentID, tx.Rebind("SELECT content_id FROM "+t.resources+" WHERE resource_id = ?"), resourceID)
		if isNoRows(err) {
			return &vfs.NotFoundError{Kind: "resource", Key: resourceID}
		}
		if err != nil {
			return storeErr("reading content id of "+resourceID, err)
		}
		if contentID == "" {
			contentID = s.ids.New()
			if _, err := exec(ctx, tx, "assigning content id", "UPDATE "+t.resources+" SET content_id = ? WHERE resource_id = ?", contentID, resourceID); err != nil {
				return err
			}
		}
		if err := writeContent(ctx, tx, t, resourceID, contentID, content); err != nil {
			return err
		}
		_, err = exec(ctx, tx, "updating size", "UPDATE "+t.resources+" SET resource_size = ? WHERE resource_id = ?", len(content), resourceID)
		return err
	})
}

func (s *SQLDatabase) MoveResource(ctx context.Context, project *vfs.Project, source vfs.Resource, destination string) error {
	if source.IsFolder() {
		destination = vfs.AddTrailingSeparator(destination)
	} else {
		destination = vfs.RemoveTrailingSeparator(destination)
	}
	if err := source.WithPath(destination).Validate(); err != nil {
		return err
	}
	t := tablesFor(project)

	return s.withTx(ctx, "moving "+source.RootPath, func(tx *sqlx.Tx) error {
		if !project.IsOnline() {
			online, err := readByPath(ctx, tx, onlineTables(), destination, true)
			switch {
			case err == nil && online.StructureID != source.StructureID:
				conflict := &vfs.MoveConflictError{Source: source.RootPath, Destination: destination}
				if moved, err := readByID(ctx, tx, t, online.StructureID, true); err == nil {
					conflict.MovedTo = moved.RootPath
				}
				return conflict
			case err != nil && !errors.Is(err, vfs.ErrNotFound):
				return err
			}
		}

		parentID, err := resolveParent(ctx, tx, t, destination)
		if err != nil {
			return err
		}

		structureState := source.StructureState
		if !project.IsOnline() && structureState != vfs.StateNew {
			structureState = vfs.StateChanged
		}
		n, err := exec(ctx, tx, "moving "+source.RootPath,
			"UPDATE "+t.structure+" SET resource_path = ?, parent_id = ?, structure_state = ? WHERE structure_id = ?",
			vfs.RemoveTrailingSeparator(destination), parentID, int(structureState), source.StructureID)
		if err != nil {
			return err
		}
		if n == 0 {
			return &vfs.NotFoundError{Kind: "resource", Key: source.RootPath}
		}
		if project.IsOnline() {
			return nil
		}
		_, err = exec(ctx, tx, "stamping "+source.RootPath,
			"UPDATE "+t.resources+" SET project_lastmodified = ?, date_lastmodified = ?, user_lastmodified = ? WHERE resource_id = ?",
			project.ID, millis(source.DateLastModified), source.UserLastModified, source.ResourceID)
		return err
	})
}

func (s *SQLDatabase) RemoveFile(ctx context.Context, project *vfs.Project, res vfs.Resource) error {
	return s.withTx(ctx, "removing "+res.RootPath, func(tx *sqlx.Tx) error {
		return removeFile(ctx, tx, tablesFor(project), res)
	})
}

// RemoveFolder deletes an empty folder. Online, children that were moved
// out of the folder offline do not count: they are about to be published
// at their new location.
func (s *SQLDatabase) RemoveFolder(ctx context.Context, project *vfs.Project, folder vfs.Resource) error {
	t := tablesFor(project)
	return s.withTx(ctx, "removing folder "+folder.RootPath, func(tx *sqlx.Tx) error {
		children, err := readMany(ctx, tx, t, "reading children of "+folder.RootPath, "s.parent_id = ?", folder.StructureID)
		if err != nil {
			return err
		}

		var blocking []string
		for _, child := range children {
			if !project.IsOnline() {
				blocking = append(blocking, child.RootPath)
				continue
			}
			offline, err := readByID(ctx, tx, offlineTables(), child.StructureID, true)
			if errors.Is(err, vfs.ErrNotFound) {
				blocking = append(blocking, child.RootPath)
				continue
			}
			if err != nil {
				return err
			}
			if offline.RootPath == child.RootPath || strings.HasPrefix(offline.RootPath, folder.RootPath) {
				blocking = append(blocking, child.RootPath)
			}
		}
		if len(blocking) > 0 {
			return &vfs.NonEmptyFolderError{Path: folder.RootPath, Children: blocking}
		}
		return removeFile(ctx, tx, t, folder)
	})
}

// WriteResource updates both rows of res. Offline, any mode other than
// ChangeNothing marks the selected state CHANGED (NEW stays NEW) and stamps
// the project.
func (s *SQLDatabase) WriteResource(ctx context.Context, project *vfs.Project, res vfs.Resource, mode vfs.ChangeMode) error {
	if err := res.Validate(); err != nil {
		return err
	}
	t := tablesFor(project)

	if !project.IsOnline() && mode != vfs.ChangeNothing {
		switch mode {
		case vfs.ChangeResourceState:
			res.ResourceState = markChanged(res.ResourceState)
		case vfs.ChangeStructureState:
			res.StructureState = markChanged(res.StructureState)
		default:
			res.ResourceState = markChanged(res.ResourceState)
			res.StructureState = markChanged(res.StructureState)
		}
		res.ProjectLastModified = project.ID
	}

	return s.withTx(ctx, "writing "+res.RootPath, func(tx *sqlx.Tx) error {
		if res.ParentID == "" && res.RootPath != "/" {
			parentID, err := resolveParent(ctx, tx, t, res.RootPath)
			if err != nil {
				return err
			}
			res.ParentID = parentID
		}
		if err := updateResourceRow(ctx, tx, t, res); err != nil {
			return err
		}
		found, err := updateStructureRow(ctx, tx, t, res)
		if err != nil {
			return err
		}
		if !found {
			return &vfs.NotFoundError{Kind: "resource", Key: res.RootPath}
		}
		_, err = recountSiblings(ctx, tx, t, res.ResourceID)
		return err
	})
}

func markChanged(s vfs.State) vfs.State {
	if s == vfs.StateNew || s == vfs.StateDeleted {
		return s
	}
	return vfs.StateChanged
}

func (s *SQLDatabase) WriteResourceState(ctx context.Context, project *vfs.Project, res vfs.Resource, mode vfs.ChangeMode) error {
	if project.IsOnline() {
		return nil
	}
	t := tablesFor(project)

	return s.withTx(ctx, "writing state of "+res.RootPath, func(tx *sqlx.Tx) error {
		var err error
		switch mode {
		case vfs.ChangeResourceProject:
			_, err = exec(ctx, tx, "writing resource project",
				"UPDATE "+t.resources+" SET resource_flags = ?, project_lastmodified = ? WHERE resource_id = ?",
				int(res.Flags), res.ProjectLastModified, res.ResourceID)
		case vfs.ChangeResource:
			_, err = exec(ctx, tx, "writing resource",
				"UPDATE "+t.resources+` SET resource_state = ?, date_lastmodified = ?, user_lastmodified = ?,
				project_lastmodified = ? WHERE resource_id = ?`,
				int(res.ResourceState), millis(res.DateLastModified), res.UserLastModified, project.ID, res.ResourceID)
		case vfs.ChangeResourceState, vfs.ChangeAll:
			_, err = exec(ctx, tx, "writing resource state",
				"UPDATE "+t.resources+" SET resource_state = ?, project_lastmodified = ? WHERE resource_id = ?",
				int(res.ResourceState), project.ID, res.ResourceID)
		}
		if err != nil {
			return err
		}

		switch mode {
		case vfs.ChangeStructure, vfs.ChangeAll, vfs.ChangeStructureState:
			if _, err := exec(ctx, tx, "writing structure state",
				"UPDATE "+t.structure+" SET structure_state = ? WHERE structure_id = ?",
				int(res.StructureState), res.StructureID); err != nil {
				return err
			}
		}
		switch mode {
		case vfs.ChangeStructure, vfs.ChangeAll:
			if _, err := exec(ctx, tx, "writing release window",
				"UPDATE "+t.structure+" SET date_released = ?, date_expired = ? WHERE structure_id = ?",
				millis(res.DateReleased), millis(res.DateExpired), res.StructureID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLDatabase) WriteLastModifiedProjectID(ctx context.Context, project *vfs.Project, projectID int, res vfs.Resource) error {
	t := tablesFor(project)
	_, err := exec(ctx, s.db, "writing project of "+res.RootPath,
		"UPDATE "+t.resources+" SET project_lastmodified = ? WHERE resource_id = ?", projectID, res.ResourceID)
	return err
}

// PublishResource writes offline into the online tables with both states
// UNCHANGED.
func (s *SQLDatabase) PublishResource(ctx context.Context, online *vfs.Project, offline vfs.Resource, writeContent bool) error {
	if !online.IsOnline() {
		return fmt.Errorf("publishing %s: target project %d is not online", offline.RootPath, online.ID)
	}
	if err := offline.Validate(); err != nil {
		return err
	}
	t := tablesFor(online)
	res := offline.Published()

	return s.withTx(ctx, "publishing "+res.RootPath, func(tx *sqlx.Tx) error {
		occupant, err := readByPath(ctx, tx, t, res.RootPath, true)
		if err == nil && occupant.StructureID != res.StructureID {
			return &vfs.AlreadyExistsError{Path: res.RootPath}
		}
		if err != nil && !errors.Is(err, vfs.ErrNotFound) {
			return err
		}
		parentID, err := resolveParent(ctx, tx, t, res.RootPath)
		if err != nil {
			return err
		}
		res.ParentID = parentID

		exists, err := resourceExists(ctx, tx, t, res.ResourceID)
		if err != nil {
			return err
		}
		if exists {
			if writeContent && res.IsFile() {
				if err := writeContentRow(ctx, tx, t, res); err != nil {
					return err
				}
			}
			if err := updateResourceRow(ctx, tx, t, res); err != nil {
				return err
			}
		} else {
			if res.IsFile() {
				if err := writeContentRow(ctx, tx, t, res); err != nil {
					return err
				}
			}
			if err := insertResource(ctx, tx, t, res); err != nil {
				return err
			}
		}

		found, err := updateStructureRow(ctx, tx, t, res)
		if err != nil {
			return err
		}
		if !found {
			if err := insertStructure(ctx, tx, t, res); err != nil {
				return err
			}
		}
		_, err = recountSiblings(ctx, tx, t, res.ResourceID)
		return err
	})
}

func writeContentRow(ctx context.Context, q sqlx.ExtContext, t tables, res vfs.Resource) error {
	return writeContent(ctx, q, t, res.ResourceID, res.ContentID, res.Content)
}

func (s *SQLDatabase) CountSiblings(ctx context.Context, project *vfs.Project, resourceID string) (int, error) {
	return countSiblings(ctx, s.db, tablesFor(project), resourceID)
}
