package schema

import (
	"fmt"
	"sort"
)

// Reserved column names present on every stage table.
const (
	ColID    = "id"
	ColClass = "class_name"
)

// Reserved column names present on every _versions table.
const (
	ColRecordID  = "record_id"
	ColVersion   = "version"
	ColWrittenAt = "written_at"
	ColAuthor    = "author"
	ColDigest    = "digest"
)

// versionsSuffix is fixed by the persisted layout and therefore not a
// legal stage name.
const versionsSuffix = "versions"

// Descriptor resolves everything the engine needs to know about one
// versioned base type: hierarchy tables, stages, and physical table names.
// Descriptors are immutable after Build and safe for concurrent use.
type Descriptor struct {
	spec     TypeSpec
	byClass  map[string]TableSpec // concrete class -> its own table
	byTable  map[string]TableSpec
	colHome  map[string]string // column name -> logical table name
	stageSet map[string]bool
}

// Registry holds the descriptors for every configured base type.
type Registry struct {
	byType  map[string]*Descriptor
	byClass map[string]*Descriptor
	byTable map[string]*Descriptor
}

// NewRegistry validates the given type specs and builds their descriptors.
// Returns a ConfigurationError describing the first problem found.
func NewRegistry(specs ...TypeSpec) (*Registry, error) {
	r := &Registry{
		byType:  make(map[string]*Descriptor),
		byClass: make(map[string]*Descriptor),
		byTable: make(map[string]*Descriptor),
	}

	for _, spec := range specs {
		d, err := buildDescriptor(spec)
		if err != nil {
			return nil, err
		}
		if _, dup := r.byType[spec.Name]; dup {
			return nil, configErr(spec.Name, "type registered twice")
		}
		r.byType[spec.Name] = d

		for class := range d.byClass {
			if prev, dup := r.byClass[class]; dup {
				return nil, configErr(spec.Name,
					"class %s already belongs to type %s; versioning must be applied once, at the hierarchy base",
					class, prev.spec.Name)
			}
			r.byClass[class] = d
		}
		for table := range d.byTable {
			if prev, dup := r.byTable[table]; dup {
				return nil, configErr(spec.Name,
					"table %s already belongs to type %s", table, prev.spec.Name)
			}
			r.byTable[table] = d
		}
	}

	return r, nil
}

// Descriptor returns the descriptor for a base type.
func (r *Registry) Descriptor(baseType string) (*Descriptor, error) {
	d, ok := r.byType[baseType]
	if !ok {
		return nil, configErr(baseType, "type not registered")
	}
	return d, nil
}

// DescriptorForClass resolves the descriptor owning a concrete class.
// A subclass name resolves to its base type's descriptor.
func (r *Registry) DescriptorForClass(class string) (*Descriptor, error) {
	d, ok := r.byClass[class]
	if !ok {
		return nil, configErr(class, "class not registered with any versioned type")
	}
	return d, nil
}

// DescriptorForTable resolves the descriptor owning a logical table.
func (r *Registry) DescriptorForTable(table string) (*Descriptor, error) {
	d, ok := r.byTable[table]
	if !ok {
		return nil, configErr(table, "table not registered with any versioned type")
	}
	return d, nil
}

// Types returns the registered base type names, sorted.
func (r *Registry) Types() []string {
	names := make([]string, 0, len(r.byType))
	for name := range r.byType {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func buildDescriptor(spec TypeSpec) (*Descriptor, error) {
	if spec.Name == "" {
		return nil, configErr("", "type name is empty")
	}
	if !ValidIdent(spec.Name) {
		return nil, configErr(spec.Name, "type name is not a valid identifier")
	}
	if len(spec.Stages) < 2 {
		return nil, configErr(spec.Name, "at least 2 stages required, got %d", len(spec.Stages))
	}

	d := &Descriptor{
		spec:     spec,
		byClass:  make(map[string]TableSpec),
		byTable:  make(map[string]TableSpec),
		colHome:  make(map[string]string),
		stageSet: make(map[string]bool, len(spec.Stages)),
	}

	for _, stage := range spec.Stages {
		if !ValidIdent(stage) {
			return nil, configErr(spec.Name, "stage %q is not a valid identifier", stage)
		}
		if stage == versionsSuffix {
			return nil, configErr(spec.Name, "stage name %q is reserved for the history tables", stage)
		}
		if d.stageSet[stage] {
			return nil, configErr(spec.Name, "stage %q configured twice", stage)
		}
		d.stageSet[stage] = true
	}

	base := spec.Base
	if base.Class == "" {
		base.Class = spec.Name
	}
	if base.Class != spec.Name {
		return nil, configErr(spec.Name, "base table class %q must equal the type name", base.Class)
	}
	if err := d.addTable(base); err != nil {
		return nil, err
	}

	for _, sub := range spec.Subclasses {
		if sub.Class == "" {
			return nil, configErr(spec.Name, "subclass table %s has no class name", sub.Name)
		}
		if sub.Class == spec.Name {
			return nil, configErr(spec.Name, "subclass table %s reuses the base class name", sub.Name)
		}
		if err := d.addTable(sub); err != nil {
			return nil, err
		}
	}

	return d, nil
}

func (d *Descriptor) addTable(t TableSpec) error {
	typeName := d.spec.Name
	if !ValidIdent(t.Name) {
		return configErr(typeName, "table name %q is not a valid identifier", t.Name)
	}
	if !ValidIdent(t.Class) {
		return configErr(typeName, "class name %q is not a valid identifier", t.Class)
	}
	if _, dup := d.byTable[t.Name]; dup {
		return configErr(typeName, "table %s declared twice", t.Name)
	}
	if _, dup := d.byClass[t.Class]; dup {
		return configErr(typeName, "class %s declared twice", t.Class)
	}

	for _, f := range t.Fields {
		if !ValidIdent(f.Name) {
			return configErr(typeName, "table %s: column %q is not a valid identifier", t.Name, f.Name)
		}
		if !ValidFieldType(f.Type) {
			return configErr(typeName, "table %s: column %s has unknown type %q", t.Name, f.Name, f.Type)
		}
		if reservedColumn(f.Name) {
			return configErr(typeName, "table %s: column %s is reserved", t.Name, f.Name)
		}
		if home, dup := d.colHome[f.Name]; dup {
			return configErr(typeName,
				"column %s declared in both %s and %s; column names must be unique across the hierarchy",
				f.Name, home, t.Name)
		}
		d.colHome[f.Name] = t.Name
	}

	d.byTable[t.Name] = t
	d.byClass[t.Class] = t
	return nil
}

func reservedColumn(name string) bool {
	switch name {
	case ColID, ColClass, ColRecordID, ColVersion, ColWrittenAt, ColAuthor, ColDigest:
		return true
	default:
		return false
	}
}

// Name returns the base type name.
func (d *Descriptor) Name() string { return d.spec.Name }

// BaseTable returns the hierarchy's base table.
func (d *Descriptor) BaseTable() TableSpec { return d.spec.Base }

// Stages returns the configured stage names in order. The first entry is
// the primal stage.
func (d *Descriptor) Stages() []string {
	out := make([]string, len(d.spec.Stages))
	copy(out, d.spec.Stages)
	return out
}

// PrimalStage returns the first configured stage, the one stored in the
// unsuffixed tables.
func (d *Descriptor) PrimalStage() string { return d.spec.Stages[0] }

// HasStage reports whether stage is configured for this type.
func (d *Descriptor) HasStage(stage string) bool { return d.stageSet[stage] }

// NonLivePermission returns the permission set guarding non-primal stages,
// or empty when unrestricted.
func (d *Descriptor) NonLivePermission() string { return d.spec.NonLivePermission }

// KnownClasses returns the concrete class names of the hierarchy (base
// class first, then subclasses in declaration order).
func (d *Descriptor) KnownClasses() []string {
	out := []string{d.spec.Name}
	for _, sub := range d.spec.Subclasses {
		out = append(out, sub.Class)
	}
	return out
}

// HierarchyTables returns the ordered tables (base first) that jointly
// store a record of the given concrete class.
func (d *Descriptor) HierarchyTables(class string) ([]TableSpec, error) {
	if class == d.spec.Name {
		return []TableSpec{d.spec.Base}, nil
	}
	t, ok := d.byClass[class]
	if !ok {
		return nil, configErr(d.spec.Name, "unknown class %s", class)
	}
	return []TableSpec{d.spec.Base, t}, nil
}

// AllTables returns every table of the hierarchy, base first.
func (d *Descriptor) AllTables() []TableSpec {
	out := []TableSpec{d.spec.Base}
	out = append(out, d.spec.Subclasses...)
	return out
}

// Table looks up a hierarchy table by logical name.
func (d *Descriptor) Table(name string) (TableSpec, error) {
	t, ok := d.byTable[name]
	if !ok {
		return TableSpec{}, configErr(d.spec.Name, "unknown table %s", name)
	}
	return t, nil
}

// TableForColumn returns the logical table a user column lives in.
func (d *Descriptor) TableForColumn(column string) (string, bool) {
	t, ok := d.colHome[column]
	return t, ok
}

// StageTable maps a logical table name onto the physical table storing the
// given stage: identity for the primal stage, name_<stage> otherwise.
func (d *Descriptor) StageTable(table, stage string) (string, error) {
	if _, ok := d.byTable[table]; !ok {
		return "", configErr(d.spec.Name, "unknown table %s", table)
	}
	if !d.stageSet[stage] {
		return "", configErr(d.spec.Name, "unknown stage %q", stage)
	}
	if stage == d.PrimalStage() {
		return table, nil
	}
	return fmt.Sprintf("%s_%s", table, stage), nil
}

// VersionsTable maps a logical table name onto its version-history table.
func (d *Descriptor) VersionsTable(table string) string {
	return fmt.Sprintf("%s_%s", table, versionsSuffix)
}
