package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	vdberrors "vdb/internal/errors"
	"vdb/internal/identifier"
	"vdb/internal/proxy"
	"vdb/internal/repository"
)

// WherePrefix marks query parameters that select rows
const WherePrefix = "where."

var columnPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// target is what a content request is forwarded to
type target interface {
	Query(ctx context.Context, u *url.URL, q repository.Query) (*proxy.Pager, error)
	Insert(ctx context.Context, u *url.URL, values repository.Values) (*url.URL, error)
	Update(ctx context.Context, u *url.URL, values repository.Values, selection string, args []string) (int64, error)
	Delete(ctx context.Context, u *url.URL, selection string, args []string) (int64, error)
	TypeOf(ctx context.Context, u *url.URL) (string, error)
}

// direct serves the internal authority straight from the registry
type direct struct {
	repository.Surface
	logger *slog.Logger
}

func (d direct) Query(ctx context.Context, u *url.URL, q repository.Query) (*proxy.Pager, error) {
	rs, err := d.Surface.Query(ctx, u, q)
	if err != nil {
		return nil, err
	}
	return proxy.NewPager(rs, d.logger), nil
}

func (d direct) TypeOf(ctx context.Context, u *url.URL) (string, error) {
	return d.Surface.Type(ctx, u)
}

// Page is one window of query results
type Page struct {
	Columns       []string    `json:"columns"`
	Rows          [][]*string `json:"rows"`
	Start         int         `json:"start"`
	Total         int         `json:"total"`
	NextPageToken string      `json:"next_page_token,omitempty"`
}

// ContentHandler serves repository content over HTTP
type ContentHandler struct {
	proxies     *proxy.Set
	internal    direct
	paging      PageSizeConfig
	windowRows  int
	windowBytes int
	logger      *slog.Logger
}

// ContentOption configures a ContentHandler
type ContentOption func(*ContentHandler)

// WithPaging sets the default and maximum page size
func WithPaging(defaultSize, maxSize int) ContentOption {
	return func(h *ContentHandler) {
		h.paging = PageSizeConfig{Default: defaultSize, Max: maxSize}
	}
}

// WithWindow caps the rows and bytes copied per page
func WithWindow(rows, bytes int) ContentOption {
	return func(h *ContentHandler) {
		h.windowRows = rows
		h.windowBytes = bytes
	}
}

// WithContentLogger sets the handler's logger
func WithContentLogger(logger *slog.Logger) ContentOption {
	return func(h *ContentHandler) {
		h.logger = logger
	}
}

// NewContentHandler creates a content handler. Requests for the internal
// authority go to internal; every other authority needs a proxy in proxies
func NewContentHandler(proxies *proxy.Set, internal repository.Surface, opts ...ContentOption) *ContentHandler {
	h := &ContentHandler{
		proxies:     proxies,
		paging:      PageSizeConfig{Default: 50, Max: 500},
		windowRows:  proxy.DefaultWindowRows,
		windowBytes: proxy.DefaultWindowBytes,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.internal = direct{Surface: internal, logger: h.logger}
	return h
}

// Register installs the content routes on mux
func (h *ContentHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /content/{authority}/{path...}", h.Query)
	mux.HandleFunc("POST /content/{authority}/{path...}", h.Insert)
	mux.HandleFunc("PUT /content/{authority}/{path...}", h.Update)
	mux.HandleFunc("DELETE /content/{authority}/{path...}", h.Delete)
	mux.HandleFunc("GET /type/{authority}/{path...}", h.Type)
}

// Query returns one page of rows
func (h *ContentHandler) Query(w http.ResponseWriter, r *http.Request) {
	t, u, err := h.resolve(r)
	if err != nil {
		writeFailure(w, h.logger, "Invalid identifier", err)
		return
	}

	params := r.URL.Query()
	selection, args, err := whereClause(params)
	if err != nil {
		writeFailure(w, h.logger, "Invalid filter", err)
		return
	}
	q := repository.Query{
		Projection: splitList(params.Get("fields")),
		Selection:  selection,
		Args:       args,
		SortOrder:  params.Get("sort"),
	}
	filter := filterKey(q)

	pageSize := 0
	if raw := params.Get("page_size"); raw != "" {
		if pageSize, err = strconv.Atoi(raw); err != nil {
			writeFailure(w, h.logger, "Invalid page size", invalid("page_size %q is not a number", raw))
			return
		}
	}
	pageSize = ClampPageSize(pageSize, h.paging)

	pos := 0
	if token := params.Get("page_token"); token != "" {
		c, err := DecodeCursor(token)
		if err == nil {
			err = ValidateFilterHash(c, filter)
		}
		if err != nil {
			writeFailure(w, h.logger, "Invalid page token", invalid("%v", err))
			return
		}
		pos = c.Pos
	}

	pager, err := t.Query(r.Context(), u, q)
	if err != nil {
		writeFailure(w, h.logger, "Failed to query content", err)
		return
	}
	defer pager.Close()

	page, err := h.fill(pager, pos, pageSize, filter)
	if err != nil {
		writeFailure(w, h.logger, "Failed to read page", err)
		return
	}
	writeJSON(w, h.logger, page, http.StatusOK)
}

func (h *ContentHandler) fill(pager *proxy.Pager, pos, pageSize int, filter string) (*Page, error) {
	total := pager.Count()
	if pos > total {
		return nil, invalid("page token position %d is past the end (%d rows)", pos, total)
	}

	rows := pageSize
	if h.windowRows > 0 && h.windowRows < rows {
		rows = h.windowRows
	}
	window := proxy.NewWindow(rows, h.windowBytes)
	n := pager.FillWindow(pos, window)
	if n == 0 && pos < total {
		return nil, fmt.Errorf("row %d could not be copied into a %d byte window", pos, h.windowBytes)
	}

	page := &Page{
		Columns: pager.Columns(),
		Rows:    make([][]*string, 0, n),
		Start:   pos,
		Total:   total,
	}
	for _, row := range window.Rows() {
		out := make([]*string, len(row))
		for i, f := range row {
			if !f.Null {
				v := f.Value
				out[i] = &v
			}
		}
		page.Rows = append(page.Rows, out)
	}

	if next := pos + n; next < total {
		token, err := EncodeCursor(Cursor{Pos: next, FilterHash: HashFilter(filter)})
		if err != nil {
			return nil, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

// Insert creates a row from a JSON object
func (h *ContentHandler) Insert(w http.ResponseWriter, r *http.Request) {
	t, u, err := h.resolve(r)
	if err != nil {
		writeFailure(w, h.logger, "Invalid identifier", err)
		return
	}

	values, err := decodeValues(r)
	if err != nil {
		writeFailure(w, h.logger, "Invalid request body", err)
		return
	}

	created, err := t.Insert(r.Context(), u, values)
	if err != nil {
		writeFailure(w, h.logger, "Failed to insert content", err)
		return
	}

	w.Header().Set("Location", created.String())
	writeJSON(w, h.logger, map[string]string{"uri": created.String()}, http.StatusCreated)
}

// Update changes the selected rows
func (h *ContentHandler) Update(w http.ResponseWriter, r *http.Request) {
	t, u, err := h.resolve(r)
	if err != nil {
		writeFailure(w, h.logger, "Invalid identifier", err)
		return
	}

	selection, args, err := whereClause(r.URL.Query())
	if err != nil {
		writeFailure(w, h.logger, "Invalid filter", err)
		return
	}
	values, err := decodeValues(r)
	if err != nil {
		writeFailure(w, h.logger, "Invalid request body", err)
		return
	}

	n, err := t.Update(r.Context(), u, values, selection, args)
	if err != nil {
		writeFailure(w, h.logger, "Failed to update content", err)
		return
	}
	writeJSON(w, h.logger, map[string]int64{"affected": n}, http.StatusOK)
}

// Delete removes the selected rows
func (h *ContentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	t, u, err := h.resolve(r)
	if err != nil {
		writeFailure(w, h.logger, "Invalid identifier", err)
		return
	}

	selection, args, err := whereClause(r.URL.Query())
	if err != nil {
		writeFailure(w, h.logger, "Invalid filter", err)
		return
	}

	n, err := t.Delete(r.Context(), u, selection, args)
	if err != nil {
		writeFailure(w, h.logger, "Failed to delete content", err)
		return
	}
	writeJSON(w, h.logger, map[string]int64{"affected": n}, http.StatusOK)
}

// Type returns the type descriptor of an identifier
func (h *ContentHandler) Type(w http.ResponseWriter, r *http.Request) {
	t, u, err := h.resolve(r)
	if err != nil {
		writeFailure(w, h.logger, "Invalid identifier", err)
		return
	}

	typ, err := t.TypeOf(r.Context(), u)
	if err != nil {
		writeFailure(w, h.logger, "Failed to resolve type", err)
		return
	}
	writeJSON(w, h.logger, map[string]string{"type": typ}, http.StatusOK)
}

// resolve builds the identifier named by the request path and picks the
// component that serves its authority
func (h *ContentHandler) resolve(r *http.Request) (target, *url.URL, error) {
	authority := r.PathValue("authority")
	u := &url.URL{
		Scheme: identifier.Scheme,
		Host:   authority,
		Path:   "/" + strings.TrimSuffix(r.PathValue("path"), "/"),
	}
	if _, err := identifier.Parse(u); err != nil {
		return nil, nil, err
	}

	if authority == identifier.Authority {
		return h.internal, u, nil
	}
	p, ok := h.proxies.Lookup(authority)
	if !ok {
		return nil, nil, vdberrors.WithMetadata(vdberrors.CodeUnregisteredRepository,
			fmt.Sprintf("no proxy serves authority %q", authority),
			map[string]string{"authority": authority})
	}
	return p, u, nil
}

// whereClause turns where.<column>=<value> parameters into an equality
// selection, columns in lexical order
func whereClause(params url.Values) (string, []string, error) {
	var columns []string
	for key := range params {
		if strings.HasPrefix(key, WherePrefix) {
			columns = append(columns, strings.TrimPrefix(key, WherePrefix))
		}
	}
	sort.Strings(columns)

	var clauses []string
	var args []string
	for _, col := range columns {
		if !columnPattern.MatchString(col) {
			return "", nil, invalid("invalid filter column %q", col)
		}
		for _, v := range params[WherePrefix+col] {
			clauses = append(clauses, col+" = ?")
			args = append(args, v)
		}
	}
	return strings.Join(clauses, " AND "), args, nil
}

func filterKey(q repository.Query) string {
	if q.Selection == "" && len(q.Projection) == 0 && q.SortOrder == "" {
		return ""
	}
	return strings.Join([]string{
		q.Selection,
		strings.Join(q.Args, "\x00"),
		strings.Join(q.Projection, ","),
		q.SortOrder,
	}, "\x1f")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func decodeValues(r *http.Request) (repository.Values, error) {
	var values repository.Values
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		return nil, invalid("request body must be a JSON object: %v", err)
	}
	if values == nil {
		return nil, invalid("request body must be a JSON object")
	}
	return values, nil
}
