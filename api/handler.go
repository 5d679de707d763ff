package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sensorhub-io/hub/bus"
	"github.com/sensorhub-io/hub/core"
	"github.com/sensorhub-io/hub/filter"
)

// listResponse is the body of a GET /coll list request.
type listResponse[T any] struct {
	Items    []T    `json:"items"`
	NextLink string `json:"nextLink,omitempty"`
}

type countResponse struct {
	Count int `json:"count"`
}

type createdResponse struct {
	IDs []string `json:"ids"`
}

// Handler is the generic REST CRUD/list/count/stream core from spec §4.8,
// parameterized by entity type T and its resolved filter type F. One
// Handler value replaces what the original source modeled as a class
// hierarchy parameterized by (K, V, F, S, B) — spec §9's redesign note.
type Handler[T any, F EntityFilter[T]] struct {
	store   FeatureResourceStore[T]
	adapter ResourceAdapter[T, F]
	ids     *core.IDScrambler
	clock   core.Clock
	logger  *slog.Logger
	bus     *bus.Bus
	topic   func(T) string // nil: this resource has no live stream surface
}

// NewHandler builds a Handler. topic may be nil for resource kinds with no
// associated bus topic (spec §6 names topics only for systems and their
// streams; features of interest have none).
func NewHandler[T any, F EntityFilter[T]](store FeatureResourceStore[T], adapter ResourceAdapter[T, F], ids *core.IDScrambler, clock core.Clock, logger *slog.Logger, b *bus.Bus, topic func(T) string) *Handler[T, F] {
	if clock == nil {
		clock = core.SystemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler[T, F]{
		store:   store,
		adapter: adapter,
		ids:     ids,
		clock:   clock,
		logger:  logger.With("resource", adapter.Name),
		bus:     b,
		topic:   topic,
	}
}

// decodeExternalID parses a path segment as a scrambled external ID,
// reporting ok=false on a malformed or tampered value (spec §4.8: "404 on
// decode-to-nonpositive or miss").
func decodeExternalID(ids *core.IDScrambler, idParam string) (int64, bool) {
	n, err := strconv.ParseInt(idParam, 10, 64)
	if err != nil {
		return 0, false
	}
	internal := ids.Decode(n)
	if internal <= 0 {
		return 0, false
	}
	return internal, true
}

// List implements "GET /coll" (spec §4.8): paged by offset+limit, with a
// next-page link emitted iff a surplus entry exists beyond the page.
func (h *Handler[T, F]) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, limit, err := parsePaging(q)
	if err != nil {
		writeError(w, err)
		return
	}
	f, err := h.adapter.ParseQuery(q)
	if err != nil {
		writeError(w, err)
		return
	}
	ids, err := resolveUIDIDSet(r.Context(), h.store.ResolveUID, q["uid"])
	if err != nil {
		writeError(w, err)
		return
	}

	cur, err := h.store.SelectEntries(r.Context(), ids, func(e T, isLatest bool, now core.Instant) bool {
		return f.Test(e, isLatest, now)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	defer cur.Close()

	items := make([]T, 0, limit)
	skipped := 0
	hasMore := false
	for cur.Next() {
		if skipped < offset {
			skipped++
			continue
		}
		if len(items) >= limit {
			hasMore = true
			break
		}
		_, v := cur.At()
		items = append(items, v)
	}
	if err := cur.Err(); err != nil {
		writeError(w, err)
		return
	}

	resp := listResponse[T]{Items: items}
	if hasMore {
		next := cloneQuery(q)
		next.Set("offset", strconv.Itoa(offset+limit))
		next.Set("limit", strconv.Itoa(limit))
		resp.NextLink = "?" + next.Encode()
	}
	writeJSONStatus(w, http.StatusOK, resp)
}

// Count implements "GET /coll/count": countMatchingEntries(filter).
func (h *Handler[T, F]) Count(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := h.adapter.ParseQuery(q)
	if err != nil {
		writeError(w, err)
		return
	}
	ids, err := resolveUIDIDSet(r.Context(), h.store.ResolveUID, q["uid"])
	if err != nil {
		writeError(w, err)
		return
	}
	cur, err := h.store.SelectEntries(r.Context(), ids, func(e T, isLatest bool, now core.Instant) bool {
		return f.Test(e, isLatest, now)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	defer cur.Close()
	n := 0
	for cur.Next() {
		n++
	}
	if err := cur.Err(); err != nil {
		writeError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, countResponse{Count: n})
}

// Get implements "GET /coll/{id}" and, with ?stream=true, the live-push
// surface from spec §4.8/§6.
func (h *Handler[T, F]) Get(w http.ResponseWriter, r *http.Request, idParam string) {
	internalID, ok := decodeExternalID(h.ids, idParam)
	if !ok {
		http.NotFound(w, r)
		return
	}
	e, _, err := h.store.GetCurrentVersion(r.Context(), internalID)
	if err != nil {
		if core.IsNotFound(err) {
			http.NotFound(w, r)
			return
		}
		writeError(w, err)
		return
	}

	if r.URL.Query().Get("stream") == "true" {
		if h.bus == nil || h.topic == nil {
			writeError(w, core.NewError(core.ErrKindInvalidRequest, "this resource has no live stream"))
			return
		}
		pumpTopic(w, r, h.bus, h.topic(e), h.logger)
		return
	}
	writeJSONStatus(w, http.StatusOK, e)
}

// Create implements "POST /coll": parse 1..N records from the body by
// content type, validate each, add each, return created external IDs.
func (h *Handler[T, F]) Create(w http.ResponseWriter, r *http.Request) {
	if !contentTypeOK(r) {
		writeJSONStatus(w, http.StatusUnsupportedMediaType, errorBody{Error: "missing or unknown content type"})
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, core.WrapError(core.ErrKindParse, "read body failed", err))
		return
	}
	records, err := parseJSONRecords[T](body)
	if err != nil {
		writeError(w, core.WrapError(core.ErrKindParse, "invalid JSON body", err))
		return
	}
	if len(records) == 0 {
		writeError(w, core.NewError(core.ErrKindInvalidRequest, "no records in body"))
		return
	}

	created := make([]string, 0, len(records))
	for _, rec := range records {
		if err := h.adapter.Validate(rec); err != nil {
			writeError(w, err)
			return
		}
		key, err := h.store.Add(r.Context(), rec)
		if err != nil {
			writeError(w, err)
			return
		}
		ext, err := h.ids.Encode(key.InternalID)
		if err != nil {
			writeError(w, err)
			return
		}
		created = append(created, strconv.FormatInt(ext, 10))
	}
	writeJSONStatus(w, http.StatusCreated, createdResponse{IDs: created})
}

// Update implements "PUT /coll/{id}": parse one, validate, put.
func (h *Handler[T, F]) Update(w http.ResponseWriter, r *http.Request, idParam string) {
	internalID, ok := decodeExternalID(h.ids, idParam)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if !contentTypeOK(r) {
		writeJSONStatus(w, http.StatusUnsupportedMediaType, errorBody{Error: "missing or unknown content type"})
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, core.WrapError(core.ErrKindParse, "read body failed", err))
		return
	}
	var rec T
	if err := json.Unmarshal(body, &rec); err != nil {
		writeError(w, core.WrapError(core.ErrKindParse, "invalid JSON body", err))
		return
	}
	if err := h.adapter.Validate(rec); err != nil {
		writeError(w, err)
		return
	}

	_, key, err := h.store.GetCurrentVersion(r.Context(), internalID)
	if err != nil {
		if core.IsNotFound(err) {
			http.NotFound(w, r)
			return
		}
		writeError(w, err)
		return
	}
	if _, err := h.store.Put(r.Context(), key, rec); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete implements "DELETE /coll/{id}": remove every version of the
// entity at the decoded internal ID.
func (h *Handler[T, F]) Delete(w http.ResponseWriter, r *http.Request, idParam string) {
	internalID, ok := decodeExternalID(h.ids, idParam)
	if !ok {
		http.NotFound(w, r)
		return
	}
	n, err := h.store.RemoveEntries(r.Context(), filter.IDIn(internalID), func(T, bool, core.Instant) bool { return true })
	if err != nil {
		writeError(w, err)
		return
	}
	if n == 0 {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseJSONRecords accepts either a single JSON object or a JSON array of
// objects, spec §4.8's "parse 1..N records from the body by content-type".
func parseJSONRecords[T any](body []byte) ([]T, error) {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var out []T
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	var one T
	if err := json.Unmarshal(body, &one); err != nil {
		return nil, err
	}
	return []T{one}, nil
}
