package api

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sensorhub-io/hub/bus"
	"github.com/sensorhub-io/hub/core"
	"github.com/sensorhub-io/hub/db"
	"github.com/sensorhub-io/hub/filter"
)

// ObservationHandler serves the nested
// /systems/{id}/datastreams/{id}/observations collection. Observations are
// addressed by a compound (seriesID, phenomenonTime) key, which falls
// outside the single-int64 domain the shared IDScrambler was built for
// (spec §3); per-observation GET/PUT/DELETE are therefore out of scope for
// this REST surface — list, count, create and the live stream are spec
// §4.8's guaranteed verbs for every resource kind, and that's what
// observations get.
type ObservationHandler struct {
	facade *db.Facade
	ids    *core.IDScrambler
	bus    *bus.Bus
	logger *slog.Logger
}

func NewObservationHandler(facade *db.Facade, ids *core.IDScrambler, b *bus.Bus, logger *slog.Logger) *ObservationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ObservationHandler{facade: facade, ids: ids, bus: b, logger: logger.With("resource", "observations")}
}

// List implements "GET /coll" for observations scoped to one data stream:
// phenomenonTime/resultTime range filters and a foi:id(multi) restriction,
// spec §6.
func (h *ObservationHandler) List(w http.ResponseWriter, r *http.Request, dataStreamID int64) {
	q := r.URL.Query()
	offset, limit, err := parsePaging(q)
	if err != nil {
		writeError(w, err)
		return
	}
	phenomenonTime, err := parseInstantRange(q, "phenomenonTime")
	if err != nil {
		writeError(w, err)
		return
	}
	resultTime, err := parseInstantRange(q, "resultTime")
	if err != nil {
		writeError(w, err)
		return
	}
	foiIDs := h.parseFOIIDs(q)

	cur, err := h.facade.Observations.Select(r.Context(), []int64{dataStreamID}, foiIDs, resultTime, phenomenonTime, nil, true)
	if err != nil {
		writeError(w, err)
		return
	}
	defer cur.Close()

	items := make([]core.ObsData, 0, limit)
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
		items = append(items, cur.At())
	}
	if err := cur.Err(); err != nil {
		writeError(w, err)
		return
	}

	resp := listResponse[core.ObsData]{Items: items}
	if hasMore {
		next := cloneQuery(q)
		next.Set("offset", strconv.Itoa(offset+limit))
		next.Set("limit", strconv.Itoa(limit))
		resp.NextLink = "?" + next.Encode()
	}
	writeJSONStatus(w, http.StatusOK, resp)
}

// Count implements "GET /coll/count" for observations.
func (h *ObservationHandler) Count(w http.ResponseWriter, r *http.Request, dataStreamID int64) {
	q := r.URL.Query()
	phenomenonTime, err := parseInstantRange(q, "phenomenonTime")
	if err != nil {
		writeError(w, err)
		return
	}
	resultTime, err := parseInstantRange(q, "resultTime")
	if err != nil {
		writeError(w, err)
		return
	}
	foiIDs := h.parseFOIIDs(q)

	n, err := h.facade.Observations.CountMatching(r.Context(), []int64{dataStreamID}, foiIDs, resultTime, phenomenonTime, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, countResponse{Count: n})
}

func (h *ObservationHandler) parseFOIIDs(q map[string][]string) filter.IDSet {
	vals := q["foi"]
	if len(vals) == 0 {
		return filter.AnyID()
	}
	resolved := make([]int64, 0, len(vals))
	for _, v := range vals {
		if id, ok := decodeExternalID(h.ids, v); ok {
			resolved = append(resolved, id)
		}
	}
	return filter.IDIn(resolved...)
}

// observationCreateRequest is one record of a POST
// .../observations request body.
type observationCreateRequest struct {
	FOIUID         string           `json:"foiUid,omitempty"`
	ResultTime     int64            `json:"resultTime"`
	PhenomenonTime int64            `json:"phenomenonTime"`
	Fields         core.FieldValues `json:"fields"`
}

// Create implements "POST /coll" for observations: resolve the optional
// FOI uid (rejecting the request for an unknown one, spec §4.7 step 3,
// applied here at the REST boundary rather than the bridge's event path),
// add each record, and republish it on the stream's bus topic for any live
// subscriber (spec §4.8, §6).
func (h *ObservationHandler) Create(w http.ResponseWriter, r *http.Request, dataStreamID int64) {
	if !contentTypeOK(r) {
		writeJSONStatus(w, http.StatusUnsupportedMediaType, errorBody{Error: "missing or unknown content type"})
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, core.WrapError(core.ErrKindParse, "read body failed", err))
		return
	}
	records, err := parseJSONRecords[observationCreateRequest](body)
	if err != nil {
		writeError(w, core.WrapError(core.ErrKindParse, "invalid JSON body", err))
		return
	}
	if len(records) == 0 {
		writeError(w, core.NewError(core.ErrKindInvalidRequest, "no records in body"))
		return
	}

	ds, err := h.facade.DataStreams.Get(r.Context(), dataStreamID)
	if err != nil {
		if core.IsNotFound(err) {
			http.NotFound(w, r)
			return
		}
		writeError(w, err)
		return
	}
	sys, _, err := h.facade.Systems.GetCurrentVersion(r.Context(), ds.SystemID)
	if err != nil {
		writeError(w, err)
		return
	}

	created := make([]string, 0, len(records))
	for _, rec := range records {
		foiID := core.NoFOI
		if rec.FOIUID != "" {
			_, key, err := h.facade.FOIs.GetCurrentVersionByUID(r.Context(), rec.FOIUID)
			if err != nil {
				if core.IsNotFound(err) {
					writeError(w, core.NewError(core.ErrKindInvalidRequest, "unknown FOI uid "+rec.FOIUID))
					return
				}
				writeError(w, err)
				return
			}
			foiID = key.InternalID
		}
		seriesID, err := h.facade.Observations.Add(r.Context(), dataStreamID, foiID, core.Instant(rec.ResultTime), core.Instant(rec.PhenomenonTime), nil, rec.Fields)
		if err != nil {
			writeError(w, err)
			return
		}
		if h.bus != nil {
			h.bus.Publish(bus.StreamTopic(sys.UID, ds.OutputName), rec)
		}
		created = append(created, strconv.FormatInt(seriesID, 10))
	}
	writeJSONStatus(w, http.StatusCreated, createdResponse{IDs: created})
}

// Stream implements "GET /coll/{id}?stream=true" for an entire data
// stream's observations: there is no single-resource id to decode here
// (see the handler's own doc comment), so this is reached directly rather
// than through Handler.Get's stream=true branch.
func (h *ObservationHandler) Stream(w http.ResponseWriter, r *http.Request, dataStreamID int64) {
	ds, err := h.facade.DataStreams.Get(r.Context(), dataStreamID)
	if err != nil {
		if core.IsNotFound(err) {
			http.NotFound(w, r)
			return
		}
		writeError(w, err)
		return
	}
	sys, _, err := h.facade.Systems.GetCurrentVersion(r.Context(), ds.SystemID)
	if err != nil {
		writeError(w, err)
		return
	}
	pumpTopic(w, r, h.bus, bus.StreamTopic(sys.UID, ds.OutputName), h.logger)
}
