package database

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"vfs-go/internal/vfs"
)

const relationColumns = `relation_source_id, relation_source_path, relation_target_id, relation_target_path,
	relation_type, date_begin, date_end`

type relationRow struct {
	SourceID   string `db:"relation_source_id"`
	SourcePath string `db:"relation_source_path"`
	TargetID   string `db:"relation_target_id"`
	TargetPath string `db:"relation_target_path"`
	Type       int    `db:"relation_type"`
	DateBegin  int64  `db:"date_begin"`
	DateEnd    int64  `db:"date_end"`
}

func (row relationRow) toRelation() vfs.Relation {
	return vfs.Relation{
		SourceID:   row.SourceID,
		SourcePath: row.SourcePath,
		TargetID:   row.TargetID,
		TargetPath: row.TargetPath,
		Type:       vfs.RelationType(row.Type),
		DateBegin:  fromMillis(row.DateBegin),
		DateEnd:    fromMillis(row.DateEnd),
	}
}

func insertRelation(ctx context.Context, q sqlx.ExtContext, t tables, rel vfs.Relation) error {
	_, err := exec(ctx, q, "creating relation "+rel.String(),
		"INSERT INTO "+t.relations+" ("+relationColumns+") VALUES ("+placeholders(7)+")",
		rel.SourceID, vfs.RemoveTrailingSeparator(rel.SourcePath), rel.TargetID,
		vfs.RemoveTrailingSeparator(rel.TargetPath), int(rel.Type), millis(rel.DateBegin), millis(rel.DateEnd))
	return err
}

// relationWhere ORs the source and target predicates and ANDs type and
// date onto them.
func relationWhere(f vfs.RelationFilter) (string, []any) {
	var ors, ands []string
	var orArgs, andArgs []any

	pathPredicate := func(column, path string) {
		path = vfs.RemoveTrailingSeparator(path)
		if f.IncludeSubtree {
			ors = append(ors, "("+column+" = ? OR "+column+` LIKE ? ESCAPE '\')`)
			orArgs = append(orArgs, path, likePrefix(path))
			return
		}
		ors = append(ors, column+" = ?")
		orArgs = append(orArgs, path)
	}
	if f.SourceID != "" {
		ors = append(ors, "relation_source_id = ?")
		orArgs = append(orArgs, f.SourceID)
	}
	if f.SourcePath != "" {
		pathPredicate("relation_source_path", f.SourcePath)
	}
	if f.TargetID != "" {
		ors = append(ors, "relation_target_id = ?")
		orArgs = append(orArgs, f.TargetID)
	}
	if f.TargetPath != "" {
		pathPredicate("relation_target_path", f.TargetPath)
	}

	if len(f.Types) > 0 {
		ands = append(ands, "relation_type IN ("+placeholders(len(f.Types))+")")
		for _, typ := range f.Types {
			andArgs = append(andArgs, int(typ))
		}
	}
	if !f.Date.IsZero() {
		ands = append(ands, "(date_begin = 0 OR date_begin <= ?) AND (date_end = 0 OR date_end >= ?)")
		andArgs = append(andArgs, millis(f.Date), millis(f.Date))
	}

	var conds []string
	var args []any
	if len(ors) > 0 {
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
		args = append(args, orArgs...)
	}
	conds = append(conds, ands...)
	args = append(args, andArgs...)
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func readRelations(ctx context.Context, q sqlx.ExtContext, t tables, where string, args ...any) ([]vfs.Relation, error) {
	var rows []relationRow
	query := "SELECT " + relationColumns + " FROM " + t.relations + where + " ORDER BY relation_source_path, relation_target_path, relation_type"
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(query), args...); err != nil {
		return nil, storeErr("reading relations", err)
	}
	out := make([]vfs.Relation, len(rows))
	for i, row := range rows {
		out[i] = row.toRelation()
	}
	return out, nil
}

func (s *SQLDatabase) CreateRelation(ctx context.Context, project *vfs.Project, rel vfs.Relation) error {
	return insertRelation(ctx, s.db, tablesFor(project), rel)
}

func (s *SQLDatabase) CreateRelations(ctx context.Context, project *vfs.Project, rels []vfs.Relation) vfs.BatchResult {
	var batch vfs.BatchResult
	t := tablesFor(project)
	for _, rel := range rels {
		batch.Add(rel, insertRelation(ctx, s.db, t, rel))
	}
	return batch
}

func (s *SQLDatabase) DeleteRelations(ctx context.Context, project *vfs.Project, filter vfs.RelationFilter) error {
	where, args := relationWhere(filter)
	_, err := exec(ctx, s.db, "deleting relations", "DELETE FROM "+tablesFor(project).relations+where, args...)
	return err
}

func (s *SQLDatabase) ReadRelations(ctx context.Context, project *vfs.Project, filter vfs.RelationFilter) ([]vfs.Relation, error) {
	where, args := relationWhere(filter)
	return readRelations(ctx, s.db, tablesFor(project), where, args...)
}

func (s *SQLDatabase) ReadBrokenRelations(ctx context.Context, project *vfs.Project) ([]vfs.Relation, error) {
	t := tablesFor(project)
	where := " WHERE NOT EXISTS (SELECT 1 FROM " + t.structure + " s JOIN " + t.resources + " r ON r.resource_id = s.resource_id" +
		" WHERE s.resource_path = " + t.relations + ".relation_target_path AND " + effectiveState + " <> ?)"
	return readRelations(ctx, s.db, t, where, int(vfs.StateDeleted))
}

// PublishRelations copies the offline relations sourced at res to the
// online tree, replacing what was there. Relations of a deleted resource
// are dropped in both trees.
func (s *SQLDatabase) PublishRelations(ctx context.Context, offline, online *vfs.Project, res vfs.Resource) vfs.BatchResult {
	var batch vfs.BatchResult
	source := vfs.RelationFilter{SourceID: res.StructureID}
	marker := vfs.Relation{SourceID: res.StructureID, SourcePath: res.RootPath}

	if err := s.DeleteRelations(ctx, online, source); err != nil {
		batch.Add(marker, err)
		return batch
	}
	if res.State() == vfs.StateDeleted {
		if err := s.DeleteRelations(ctx, offline, source); err != nil {
			batch.Add(marker, err)
		}
		return batch
	}

	rels, err := s.ReadRelations(ctx, offline, source)
	if err != nil {
		batch.Add(marker, err)
		return batch
	}
	t := tablesFor(online)
	for _, rel := range rels {
		rel.SourcePath = res.RootPath
		batch.Add(rel, insertRelation(ctx, s.db, t, rel))
	}
	return batch
}
