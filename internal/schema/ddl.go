package schema

import (
	"fmt"
	"strings"
)

// sqlType maps a field type onto its SQLite column type.
func sqlType(t FieldType) string {
	switch t {
	case FieldInt, FieldBool:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

// CreateSQL returns the DDL provisioning every physical table of the
// hierarchy: one table per (hierarchy table, stage) plus one _versions
// table per hierarchy table. All statements use IF NOT EXISTS so applying
// the DDL is idempotent.
//
// The UNIQUE(record_id, version) guarantee of the _versions tables comes
// from their composite primary key; concurrent writers racing on version
// allocation are caught by it.
func (d *Descriptor) CreateSQL() string {
	var b strings.Builder

	for _, t := range d.AllTables() {
		isBase := t.Name == d.spec.Base.Name

		for _, stage := range d.spec.Stages {
			physical, _ := d.StageTable(t.Name, stage)
			writeStageTable(&b, physical, t, isBase)
		}
		writeVersionsTable(&b, d.VersionsTable(t.Name), t, isBase)
	}

	return b.String()
}

func writeStageTable(b *strings.Builder, physical string, t TableSpec, isBase bool) {
	fmt.Fprintf(b, "CREATE TABLE IF NOT EXISTS %s (\n", physical)
	fmt.Fprintf(b, "\t%s INTEGER PRIMARY KEY,\n", ColID)
	if isBase {
		fmt.Fprintf(b, "\t%s TEXT NOT NULL,\n", ColClass)
	}
	writeFieldColumns(b, t.Fields, "")
	trimTrailingComma(b)
	b.WriteString(");\n\n")
}

func writeVersionsTable(b *strings.Builder, physical string, t TableSpec, isBase bool) {
	fmt.Fprintf(b, "CREATE TABLE IF NOT EXISTS %s (\n", physical)
	fmt.Fprintf(b, "\t%s INTEGER NOT NULL,\n", ColRecordID)
	fmt.Fprintf(b, "\t%s INTEGER NOT NULL,\n", ColVersion)
	if isBase {
		fmt.Fprintf(b, "\t%s TEXT NOT NULL,\n", ColClass)
	}
	fmt.Fprintf(b, "\t%s DATETIME NOT NULL,\n", ColWrittenAt)
	fmt.Fprintf(b, "\t%s TEXT,\n", ColAuthor)
	fmt.Fprintf(b, "\t%s TEXT NOT NULL,\n", ColDigest)
	writeFieldColumns(b, t.Fields, "")
	fmt.Fprintf(b, "\tPRIMARY KEY (%s, %s)\n", ColRecordID, ColVersion)
	b.WriteString(");\n\n")
}

func writeFieldColumns(b *strings.Builder, fields []FieldSpec, indent string) {
	for _, f := range fields {
		fmt.Fprintf(b, "\t%s%s %s,\n", indent, f.Name, sqlType(f.Type))
	}
}

// trimTrailingComma removes the ",\n" left by the last column line so the
// closing paren is valid SQL.
func trimTrailingComma(b *strings.Builder) {
	s := b.String()
	if strings.HasSuffix(s, ",\n") {
		b.Reset()
		b.WriteString(s[:len(s)-2])
		b.WriteString("\n")
	}
}
