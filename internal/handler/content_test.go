package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vdb/internal/catalog"
	"vdb/internal/domain"
	"vdb/internal/proxy"
	"vdb/internal/registry"
	"vdb/internal/repository"
	"vdb/internal/repository/sqlite"
	"vdb/internal/schema"
)

const notesSchema = `{"type":"record","name":"note","namespace":"notes",
  "fields":[{"name":"title","type":"string"},{"name":"body","type":["null","string"]}]}`

type fixture struct {
	registry *registry.Registry
	catalog  *catalog.Catalog
	proxies  *proxy.Set
	mux      *http.ServeMux
}

// AddSchema serves def through a new proxy, as the application does
func (f *fixture) AddSchema(ctx context.Context, def *schema.Definition) error {
	p := proxy.New(def, f.registry)
	if err := p.Attach(ctx, f.catalog); err != nil {
		return err
	}
	f.proxies.Add(p)
	return nil
}

func newFixture(t *testing.T, opts ...ContentOption) *fixture {
	t.Helper()
	ctx := context.Background()

	binding, err := sqlite.New(sqlite.Memory)
	require.NoError(t, err)
	t.Cleanup(func() { binding.Close() })

	factories := repository.NewFactories()
	require.NoError(t, sqlite.RegisterFactories(factories))
	reg := registry.New(binding,
		registry.WithFactories(factories),
		registry.WithSchemaConstructor(sqlite.Constructor))
	require.NoError(t, reg.Register(domain.RepositoryConfig{Name: "settings", HandlerType: sqlite.HandlerTypeKeyValue}))

	cat := catalog.New(reg, reg)
	require.NoError(t, cat.Bootstrap(ctx, reg, func(def *schema.Definition) (repository.Handler, error) {
		return sqlite.NewSchemaHandler(def, sqlite.WithUniqueIndex(catalog.KeyName))
	}))

	f := &fixture{registry: reg, catalog: cat, proxies: proxy.NewSet(), mux: http.NewServeMux()}
	require.NoError(t, f.AddSchema(ctx, schema.MustParse(notesSchema)))

	NewContentHandler(f.proxies, reg, opts...).Register(f.mux)
	NewAPIHandler(cat, f, reg, nil).Register(f.mux)
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) insertNotes(t *testing.T, titles ...string) {
	t.Helper()
	for _, title := range titles {
		rec := f.do(t, http.MethodPost, "/content/notes/master/note", `{"title":"`+title+`"}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestContentInsertAndQuery(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/content/notes/master/note", `{"title":"hello","body":"world"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[map[string]string](t, rec)
	assert.Equal(t, "vdb://vdb/notes/master/note/1", created["uri"])
	assert.Equal(t, created["uri"], rec.Header().Get("Location"))

	rec = f.do(t, http.MethodGet, "/content/notes/master/note?fields=title,body", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decode[Page](t, rec)
	assert.Equal(t, []string{"title", "body"}, page.Columns)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "hello", *page.Rows[0][0])
	assert.Equal(t, "world", *page.Rows[0][1])
	assert.Empty(t, page.NextPageToken)
}

func TestContentQueryNullsAndFilter(t *testing.T) {
	f := newFixture(t)
	f.insertNotes(t, "a", "b")

	rec := f.do(t, http.MethodGet, "/content/notes/master/note?fields=title,body&where.title=b", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decode[Page](t, rec)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "b", *page.Rows[0][0])
	assert.Nil(t, page.Rows[0][1])
}

func TestContentPaging(t *testing.T) {
	f := newFixture(t)
	f.insertNotes(t, "a", "b", "c", "d", "e")

	base := "/content/notes/master/note?fields=title&sort=title&page_size=2"
	var titles []string
	target := base
	for pages := 0; ; pages++ {
		require.Less(t, pages, 5, "paging did not terminate")
		rec := f.do(t, http.MethodGet, target, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		page := decode[Page](t, rec)
		assert.Equal(t, 5, page.Total)
		for _, row := range page.Rows {
			titles = append(titles, *row[0])
		}
		if page.NextPageToken == "" {
			break
		}
		target = base + "&page_token=" + url.QueryEscape(page.NextPageToken)
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, titles)
}

func TestContentPageTokenBoundToFilter(t *testing.T) {
	f := newFixture(t)
	f.insertNotes(t, "a", "b", "c")

	rec := f.do(t, http.MethodGet, "/content/notes/master/note?fields=title&page_size=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	token := decode[Page](t, rec).NextPageToken
	require.NotEmpty(t, token)

	rec = f.do(t, http.MethodGet, "/content/notes/master/note?fields=body&page_size=1&page_token="+url.QueryEscape(token), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/content/notes/master/note?page_token=garbage", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContentWindowCapsPage(t *testing.T) {
	f := newFixture(t, WithWindow(2, 0))
	f.insertNotes(t, "a", "b", "c")

	rec := f.do(t, http.MethodGet, "/content/notes/master/note?fields=title&page_size=50", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[Page](t, rec)
	assert.Len(t, page.Rows, 2)
	assert.NotEmpty(t, page.NextPageToken)
}

func TestContentOversizedRow(t *testing.T) {
	f := newFixture(t, WithWindow(10, 4))
	f.insertNotes(t, "far too long for the window")

	rec := f.do(t, http.MethodGet, "/content/notes/master/note?fields=title", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestContentUpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	f.insertNotes(t, "a", "b")

	rec := f.do(t, http.MethodPut, "/content/notes/master/note?where.title=a", `{"body":"edited"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(1), decode[map[string]int64](t, rec)["affected"])

	rec = f.do(t, http.MethodDelete, "/content/notes/master/note/2", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(1), decode[map[string]int64](t, rec)["affected"])

	rec = f.do(t, http.MethodGet, "/content/notes/master/note?fields=title,body", "")
	page := decode[Page](t, rec)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "edited", *page.Rows[0][1])
}

func TestContentType(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/type/notes/master/note", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "vnd.vdb.cursor.dir/notes.note", decode[map[string]string](t, rec)["type"])

	rec = f.do(t, http.MethodGet, "/type/notes/master/note/7", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "vnd.vdb.cursor.item/notes.note", decode[map[string]string](t, rec)["type"])
}

func TestContentInternalAuthority(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/content/vdb/settings/master/entry", `{"key":"theme","value":"dark"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/content/vdb/settings/master/entry", `{"key":"theme","value":"light"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/content/vdb/settings/master/entry?fields=value&where.key=theme", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decode[Page](t, rec)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "dark", *page.Rows[0][0])
}

func TestContentErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
		code   string
	}{
		{"unknown authority", http.MethodGet, "/content/ghosts/master/ghost", "", http.StatusNotFound, "UNREGISTERED_REPOSITORY"},
		{"unknown entity", http.MethodGet, "/content/notes/master/page", "", http.StatusNotFound, "NOT_FOUND"},
		{"bad body", http.MethodPost, "/content/notes/master/note", "[1,2]", http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"missing field", http.MethodPost, "/content/notes/master/note", `{"body":"x"}`, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"bad filter column", http.MethodGet, "/content/notes/master/note?where.ti-tle=a", "", http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"bad page size", http.MethodGet, "/content/notes/master/note?page_size=lots", "", http.StatusBadRequest, "INVALID_ARGUMENT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestContentDetachedProxy(t *testing.T) {
	f := newFixture(t)
	f.proxies.Add(proxy.New(schema.MustParse(`{"type":"record","name":"draft","namespace":"drafts",
  "fields":[{"name":"title","type":"string"}]}`), f.registry))

	rec := f.do(t, http.MethodGet, "/content/drafts/master/draft", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
