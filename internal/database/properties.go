package database

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"vfs-go/internal/vfs"
)

const backupPropertyDefTable = "backup_propertydef"

type propertyRow struct {
	Name        string `db:"propertydef_name"`
	MappingType int    `db:"property_mapping_type"`
	MappingID   string `db:"property_mapping_id"`
	Value       string `db:"property_value"`
}

func readDefinition(ctx context.Context, q sqlx.ExtContext, table, name string) (vfs.PropertyDefinition, error) {
	var def vfs.PropertyDefinition
	err := q.QueryRowxContext(ctx, q.Rebind("SELECT propertydef_id, propertydef_name FROM "+table+" WHERE propertydef_name = ?"), name).
		Scan(&def.ID, &def.Name)
	if isNoRows(err) {
		return vfs.PropertyDefinition{}, &vfs.NotFoundError{Kind: "property definition", Key: name}
	}
	if err != nil {
		return vfs.PropertyDefinition{}, storeErr("reading property definition "+name, err)
	}
	return def, nil
}

// createDefinitions adds name to the offline, online and backup
// namespaces wherever it is missing.
func (s *SQLDatabase) createDefinitions(ctx context.Context, q sqlx.ExtContext, name string) error {
	for _, table := range []string{offlineTables().propertydef, onlineTables().propertydef, backupPropertyDefTable} {
		_, err := readDefinition(ctx, q, table, name)
		if err == nil {
			continue
		}
		if !errors.Is(err, vfs.ErrNotFound) {
			return err
		}
		if _, err := exec(ctx, q, "creating property definition "+name,
			"INSERT INTO "+table+" (propertydef_id, propertydef_name) VALUES (?, ?)", s.ids.New(), name); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLDatabase) ReadPropertyDefinition(ctx context.Context, project *vfs.Project, name string) (vfs.PropertyDefinition, error) {
	return readDefinition(ctx, s.db, tablesFor(project).propertydef, name)
}

func (s *SQLDatabase) ReadPropertyDefinitions(ctx context.Context, project *vfs.Project) ([]vfs.PropertyDefinition, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT propertydef_id, propertydef_name FROM "+tablesFor(project).propertydef+" ORDER BY propertydef_name")
	if err != nil {
		return nil, storeErr("reading property definitions", err)
	}
	defer rows.Close()

	var defs []vfs.PropertyDefinition
	for rows.Next() {
		var def vfs.PropertyDefinition
		if err := rows.Scan(&def.ID, &def.Name); err != nil {
			return nil, storeErr("scanning property definition", err)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("reading property definitions", err)
	}
	return defs, nil
}

func (s *SQLDatabase) CreatePropertyDefinition(ctx context.Context, name string) (vfs.PropertyDefinition, error) {
	var def vfs.PropertyDefinition
	err := s.withTx(ctx, "creating property definition "+name, func(tx *sqlx.Tx) error {
		if err := s.createDefinitions(ctx, tx, name); err != nil {
			return err
		}
		var err error
		def, err = readDefinition(ctx, tx, offlineTables().propertydef, name)
		return err
	})
	return def, err
}

// readProperties loads the structure and resource mapped values of res,
// optionally restricted to one name, grouped by name.
func readProperties(ctx context.Context, q sqlx.ExtContext, t tables, res vfs.Resource, name string) (map[string]vfs.Property, error) {
	query := "SELECT d.propertydef_name, p.property_mapping_type, p.property_mapping_id, p.property_value FROM " +
		t.properties + " p JOIN " + t.propertydef + " d ON d.propertydef_id = p.propertydef_id " +
		"WHERE p.property_mapping_id IN (?, ?)"
	args := []any{res.StructureID, res.ResourceID}
	if name != "" {
		query += " AND d.propertydef_name = ?"
		args = append(args, name)
	}

	var rows []propertyRow
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(query), args...); err != nil {
		return nil, storeErr("reading properties of "+res.RootPath, err)
	}

	props := make(map[string]vfs.Property)
	seen := make(map[string]int)
	for _, row := range rows {
		seen[row.Name]++
		if seen[row.Name] > 2 {
			return nil, &vfs.ConsistencyError{Msg: fmt.Sprintf("property %s of %s has more than two values", row.Name, res.RootPath)}
		}
		p := props[row.Name]
		p.Name = row.Name
		switch {
		case vfs.MappingType(row.MappingType) == vfs.MappingStructure && row.MappingID == res.StructureID:
			if p.StructureValue != "" {
				return nil, &vfs.ConsistencyError{Msg: fmt.Sprintf("property %s of %s has two structure values", row.Name, res.RootPath)}
			}
			p.StructureValue = row.Value
		case vfs.MappingType(row.MappingType) == vfs.MappingResource && row.MappingID == res.ResourceID:
			if p.ResourceValue != "" {
				return nil, &vfs.ConsistencyError{Msg: fmt.Sprintf("property %s of %s has two resource values", row.Name, res.RootPath)}
			}
			p.ResourceValue = row.Value
		default:
			return nil, &vfs.ConsistencyError{Msg: fmt.Sprintf("property %s of %s has unknown mapping type %d", row.Name, res.RootPath, row.MappingType)}
		}
		props[row.Name] = p
	}
	return props, nil
}

func (s *SQLDatabase) ReadPropertyObject(ctx context.Context, project *vfs.Project, res vfs.Resource, name string) (vfs.Property, error) {
	props, err := readProperties(ctx, s.db, tablesFor(project), res, name)
	if err != nil {
		return vfs.Property{}, err
	}
	if p, ok := props[name]; ok {
		return p, nil
	}
	return vfs.Property{Name: name}, nil
}

func (s *SQLDatabase) ReadPropertyObjects(ctx context.Context, project *vfs.Project, res vfs.Resource) ([]vfs.Property, error) {
	props, err := readProperties(ctx, s.db, tablesFor(project), res, "")
	if err != nil {
		return nil, err
	}
	out := make([]vfs.Property, 0, len(props))
	for _, p := range props {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *SQLDatabase) WritePropertyObject(ctx context.Context, project *vfs.Project, res vfs.Resource, prop vfs.Property) error {
	return s.withTx(ctx, "writing property "+prop.Name, func(tx *sqlx.Tx) error {
		return s.writeProperty(ctx, tx, tablesFor(project), res, prop)
	})
}

func (s *SQLDatabase) WritePropertyObjects(ctx context.Context, project *vfs.Project, res vfs.Resource, props []vfs.Property) error {
	return s.withTx(ctx, "writing properties of "+res.RootPath, func(tx *sqlx.Tx) error {
		for _, prop := range props {
			if err := s.writeProperty(ctx, tx, tablesFor(project), res, prop); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLDatabase) writeProperty(ctx context.Context, q sqlx.ExtContext, t tables, res vfs.Resource, prop vfs.Property) error {
	def, err := readDefinition(ctx, q, t.propertydef, prop.Name)
	if errors.Is(err, vfs.ErrNotFound) && prop.AutoCreateDefinition {
		if err := s.createDefinitions(ctx, q, prop.Name); err != nil {
			return err
		}
		def, err = readDefinition(ctx, q, t.propertydef, prop.Name)
	}
	if err != nil {
		return err
	}

	stored, err := readProperties(ctx, q, t, res, prop.Name)
	if err != nil {
		return err
	}
	existing := stored[prop.Name]
	existing.Name = prop.Name
	if prop.Identical(existing) {
		return nil
	}

	slots := []struct {
		mapping   vfs.MappingType
		mappingID string
		value     string
		remove    bool
		current   string
	}{
		{vfs.MappingStructure, res.StructureID, prop.StructureValue, prop.DeleteStructureValue, existing.StructureValue},
		{vfs.MappingResource, res.ResourceID, prop.ResourceValue, prop.DeleteResourceValue, existing.ResourceValue},
	}
	for _, slot := range slots {
		where := " WHERE propertydef_id = ? AND property_mapping_id = ? AND property_mapping_type = ?"
		if slot.current != "" && slot.remove {
			if _, err := exec(ctx, q, "deleting property "+prop.Name, "DELETE FROM "+t.properties+where,
				def.ID, slot.mappingID, int(slot.mapping)); err != nil {
				return err
			}
			continue
		}
		if slot.value == "" {
			continue
		}
		if slot.current != "" {
			if _, err := exec(ctx, q, "updating property "+prop.Name, "UPDATE "+t.properties+" SET property_value = ?"+where,
				slot.value, def.ID, slot.mappingID, int(slot.mapping)); err != nil {
				return err
			}
			continue
		}
		if _, err := exec(ctx, q, "inserting property "+prop.Name,
			"INSERT INTO "+t.properties+" (property_id, propertydef_id, property_mapping_id, property_mapping_type, property_value) VALUES (?, ?, ?, ?, ?)",
			s.ids.New(), def.ID, slot.mappingID, int(slot.mapping), slot.value); err != nil {
			return err
		}
	}
	return nil
}

func deleteProperties(ctx context.Context, q sqlx.ExtContext, t tables, res vfs.Resource, option vfs.DeleteOption) error {
	del := func(mappingID string, mapping vfs.MappingType) error {
		_, err := exec(ctx, q, "deleting properties of "+res.RootPath,
			"DELETE FROM "+t.properties+" WHERE property_mapping_id = ? AND property_mapping_type = ?", mappingID, int(mapping))
		return err
	}
	switch option {
	case vfs.DeleteStructureValues:
		return del(res.StructureID, vfs.MappingStructure)
	case vfs.DeleteResourceValues:
		return del(res.ResourceID, vfs.MappingResource)
	case vfs.DeleteStructureAndResourceValues:
		if err := del(res.StructureID, vfs.MappingStructure); err != nil {
			return err
		}
		return del(res.ResourceID, vfs.MappingResource)
	default:
		return fmt.Errorf("unknown property delete option %d", option)
	}
}

func (s *SQLDatabase) DeletePropertyObjects(ctx context.Context, project *vfs.Project, res vfs.Resource, option vfs.DeleteOption) error {
	return deleteProperties(ctx, s.db, tablesFor(project), res, option)
}
