package vfs

// MappingType says which record a property value is attached to.
type MappingType int

const (
	// MappingStructure attaches the value to one sibling.
	MappingStructure MappingType = 1
	// MappingResource attaches the value to the resource shared by all siblings.
	MappingResource MappingType = 2
)

// DeleteOption selects which property values DeletePropertyObjects removes.
type DeleteOption int

const (
	DeleteStructureValues DeleteOption = iota + 1
	DeleteResourceValues
	DeleteStructureAndResourceValues
)

// PropertyDefinition is the named slot a property value belongs to.
type PropertyDefinition struct {
	ID   string
	Name string
}

// Property is a named pair of values, one per mapping. An empty value is
// unset. The Delete flags request removal of a stored value on write.
type Property struct {
	Name           string
	StructureValue string
	ResourceValue  string

	DeleteStructureValue bool
	DeleteResourceValue  bool

	// AutoCreateDefinition creates a missing definition on write instead of
	// failing with NotFoundError.
	AutoCreateDefinition bool
}

// NewProperty builds a property that creates its definition on demand.
func NewProperty(name, structureValue, resourceValue string) Property {
	return Property{
		Name:                 name,
		StructureValue:       structureValue,
		ResourceValue:        resourceValue,
		AutoCreateDefinition: true,
	}
}

// DeleteProperty builds a property that removes both stored values.
func DeleteProperty(name string) Property {
	return Property{Name: name, DeleteStructureValue: true, DeleteResourceValue: true}
}

// Value returns the compound value: structure first, then resource.
func (p Property) Value() string {
	if p.StructureValue != "" {
		return p.StructureValue
	}
	return p.ResourceValue
}

// IsNull reports whether the property carries no values and no deletes.
func (p Property) IsNull() bool {
	return p.StructureValue == "" && p.ResourceValue == "" && !p.DeleteStructureValue && !p.DeleteResourceValue
}

// Identical reports whether writing p over other would change nothing.
func (p Property) Identical(other Property) bool {
	return p.Name == other.Name &&
		p.StructureValue == other.StructureValue &&
		p.ResourceValue == other.ResourceValue &&
		p.DeleteStructureValue == other.DeleteStructureValue &&
		p.DeleteResourceValue == other.DeleteResourceValue
}

// Mapped returns the property stripped of flags, as a store returns it.
func (p Property) Mapped() Property {
	return Property{Name: p.Name, StructureValue: p.StructureValue, ResourceValue: p.ResourceValue}
}

// PropertyMap indexes properties by name.
func PropertyMap(props []Property) map[string]Property {
	m := make(map[string]Property, len(props))
	for _, p := range props {
		m[p.Name] = p
	}
	return m
}
