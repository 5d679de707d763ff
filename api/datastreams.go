package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sensorhub-io/hub/core"
	"github.com/sensorhub-io/hub/db"
)

// DataStreamHandler serves the nested /systems/{id}/datastreams collection
// (spec §4.8's "nested paths ... delegate to a sub-handler after decoding
// and validating the parent ID"). DataStreamStore's identity and
// versioning shape — a compatible update mutates the existing row in
// place, an incompatible one forks a brand-new dataStreamID (spec §4.3) —
// doesn't fit the FeatureResourceStore contract the generic Handler relies
// on, so this is a small dedicated handler in the same style rather than
// forced into the generic core.
type DataStreamHandler struct {
	facade *db.Facade
	ids    *core.IDScrambler
	logger *slog.Logger
}

func NewDataStreamHandler(facade *db.Facade, ids *core.IDScrambler, logger *slog.Logger) *DataStreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DataStreamHandler{facade: facade, ids: ids, logger: logger.With("resource", "datastreams")}
}

// List returns the current data stream for every output registered under
// systemID.
func (h *DataStreamHandler) List(w http.ResponseWriter, r *http.Request, systemID int64) {
	streams, err := h.facade.DataStreams.ForSystem(r.Context(), systemID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, listResponse[core.DataStream]{Items: streams})
}

// Count returns the number of outputs registered under systemID.
func (h *DataStreamHandler) Count(w http.ResponseWriter, r *http.Request, systemID int64) {
	streams, err := h.facade.DataStreams.ForSystem(r.Context(), systemID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, countResponse{Count: len(streams)})
}

// Get fetches one data stream by its scrambled external ID, scoped to the
// already-validated parent systemID.
func (h *DataStreamHandler) Get(w http.ResponseWriter, r *http.Request, systemID, dataStreamID int64) {
	ds, err := h.facade.DataStreams.Get(r.Context(), dataStreamID)
	if err != nil {
		if core.IsNotFound(err) {
			http.NotFound(w, r)
			return
		}
		writeError(w, err)
		return
	}
	if ds.SystemID != systemID {
		http.NotFound(w, r)
		return
	}
	writeJSONStatus(w, http.StatusOK, ds)
}

// dataStreamCreateRequest is the body of a POST /systems/{id}/datastreams
// request: a producer registering an output channel over REST rather than
// through the MQTT ingress (spec §4.3's registration algorithm, exercised
// here as a direct API call instead of via the persistence bridge).
type dataStreamCreateRequest struct {
	OutputName      string               `json:"outputName"`
	RecordStructure core.RecordStructure `json:"recordStructure"`
	Encoding        string               `json:"encoding"`
}

func parseEncoding(name string) (core.CompressionType, error) {
	switch name {
	case "", "none":
		return core.CompressionNone, nil
	case "snappy":
		return core.CompressionSnappy, nil
	case "lz4":
		return core.CompressionLZ4, nil
	case "zstd":
		return core.CompressionZSTD, nil
	default:
		return 0, core.NewError(core.ErrKindInvalidRequest, "unknown encoding "+name)
	}
}

// Create registers a data stream under systemID, spec §4.3's five-step
// algorithm delegated to DataStreamStore.Register.
func (h *DataStreamHandler) Create(w http.ResponseWriter, r *http.Request, systemID int64) {
	if !contentTypeOK(r) {
		writeJSONStatus(w, http.StatusUnsupportedMediaType, errorBody{Error: "missing or unknown content type"})
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, core.WrapError(core.ErrKindParse, "read body failed", err))
		return
	}
	var req dataStreamCreateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, core.WrapError(core.ErrKindParse, "invalid JSON body", err))
		return
	}
	if req.OutputName == "" {
		writeError(w, core.NewError(core.ErrKindInvalidRequest, "outputName must not be empty"))
		return
	}
	encoding, err := parseEncoding(req.Encoding)
	if err != nil {
		writeError(w, err)
		return
	}

	ds, _, err := h.facade.DataStreams.Register(r.Context(), systemID, req.OutputName, req.RecordStructure, encoding)
	if err != nil {
		writeError(w, err)
		return
	}
	ext, err := h.ids.Encode(ds.DataStreamID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, createdResponse{IDs: []string{strconv.FormatInt(ext, 10)}})
}
