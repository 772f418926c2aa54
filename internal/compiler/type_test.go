package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagehand-dev/stagehand/internal/schema"
)

func compileFixture(t *testing.T, src, path string) (*schema.TypeSpec, error) {
	t.Helper()
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	require.NoError(t, v.Err())
	return CompileType(v.LookupPath(cue.ParsePath(path)))
}

const pageCUE = `
type: Page: {
	stages: ["draft", "live"]
	non_live_permission: "CMS_VIEW_DRAFT"
	table: "pages"
	fields: {
		title:   string
		content: string
	}
	subclass: NewsPage: {
		table: "news_pages"
		fields: {
			summary: string
			urgent:  bool
		}
	}
}
`

func TestCompileType(t *testing.T) {
	spec, err := compileFixture(t, pageCUE, "type.Page")
	require.NoError(t, err)

	assert.Equal(t, "Page", spec.Name)
	assert.Equal(t, []string{"draft", "live"}, spec.Stages)
	assert.Equal(t, "CMS_VIEW_DRAFT", spec.NonLivePermission)

	assert.Equal(t, "pages", spec.Base.Name)
	assert.Equal(t, "Page", spec.Base.Class)
	require.Len(t, spec.Base.Fields, 2)
	assert.ElementsMatch(t, []schema.FieldSpec{
		{Name: "title", Type: schema.FieldText},
		{Name: "content", Type: schema.FieldText},
	}, spec.Base.Fields)

	require.Len(t, spec.Subclasses, 1)
	sub := spec.Subclasses[0]
	assert.Equal(t, "news_pages", sub.Name)
	assert.Equal(t, "NewsPage", sub.Class)
	assert.ElementsMatch(t, []schema.FieldSpec{
		{Name: "summary", Type: schema.FieldText},
		{Name: "urgent", Type: schema.FieldBool},
	}, sub.Fields)
}

func TestCompileTypes_AllDeclarations(t *testing.T) {
	src := pageCUE + `
type: Event: {
	stages: ["draft", "live"]
	table: "events"
	fields: { venue: string }
}
`
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	require.NoError(t, v.Err())

	specs, err := CompileTypes(v)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.ElementsMatch(t, []string{"Page", "Event"}, []string{specs[0].Name, specs[1].Name})
}

func TestCompileTypes_NoDeclarations(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`other: 1`)
	require.NoError(t, v.Err())

	_, err := CompileTypes(v)
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "type", ce.Field)
}

func TestCompileType_FeedsRegistry(t *testing.T) {
	spec, err := compileFixture(t, pageCUE, "type.Page")
	require.NoError(t, err)

	reg, err := schema.NewRegistry(*spec)
	require.NoError(t, err)

	d, err := reg.Descriptor("Page")
	require.NoError(t, err)
	assert.Equal(t, "draft", d.PrimalStage())
}

func TestCompileType_StagesRequired(t *testing.T) {
	src := `
type: Page: {
	table: "pages"
	fields: { title: string }
}
`
	_, err := compileFixture(t, src, "type.Page")
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "stages", ce.Field)
}

func TestCompileType_TooFewStages(t *testing.T) {
	src := `
type: Page: {
	stages: ["live"]
	table: "pages"
}
`
	_, err := compileFixture(t, src, "type.Page")
	require.Error(t, err)
}

func TestCompileType_TableRequired(t *testing.T) {
	src := `
type: Page: {
	stages: ["draft", "live"]
	fields: { title: string }
}
`
	_, err := compileFixture(t, src, "type.Page")
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "table", ce.Field)
}

func TestCompileType_FloatFieldsForbidden(t *testing.T) {
	src := `
type: Page: {
	stages: ["draft", "live"]
	table: "pages"
	fields: { price: float }
}
`
	_, err := compileFixture(t, src, "type.Page")
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "fields", ce.Field)
}

func TestCompileType_IntField(t *testing.T) {
	src := `
type: Counter: {
	stages: ["draft", "live"]
	table: "counters"
	fields: { count: int }
}
`
	spec, err := compileFixture(t, src, "type.Counter")
	require.NoError(t, err)
	require.Len(t, spec.Base.Fields, 1)
	assert.Equal(t, schema.FieldInt, spec.Base.Fields[0].Type)
}
