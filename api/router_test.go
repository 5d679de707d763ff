package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorhub-io/hub/core"
	"github.com/sensorhub-io/hub/db"
)

func newTestRouter(t *testing.T) (http.Handler, *db.Facade) {
	t.Helper()
	facade, err := db.Open(db.Options{InMemory: true, AutoCommitInterval: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { _ = facade.Close() })

	ids, err := core.NewIDScrambler()
	require.NoError(t, err)

	return NewRouter(facade, nil, ids, nil, nil), facade
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSystemCreateAndGetRoundTrip(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := doJSON(t, h, http.MethodPost, "/systems", core.System{UID: "urn:sys:000000000001", Name: "weather-1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created createdResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Len(t, created.IDs, 1)

	rec = doJSON(t, h, http.MethodGet, "/systems/"+created.IDs[0], nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got core.System
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "weather-1", got.Name)
}

func TestSystemCreateRejectsShortUID(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := doJSON(t, h, http.MethodPost, "/systems", core.System{UID: "short", Name: "weather-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSystemGetUnknownIDIs404(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := doJSON(t, h, http.MethodGet, "/systems/999999999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSystemListHonorsUIDUnion(t *testing.T) {
	h, _ := newTestRouter(t)

	doJSON(t, h, http.MethodPost, "/systems", core.System{UID: "urn:sys:000000000001", Name: "one"})
	doJSON(t, h, http.MethodPost, "/systems", core.System{UID: "urn:sys:000000000002", Name: "two"})
	doJSON(t, h, http.MethodPost, "/systems", core.System{UID: "urn:sys:000000000003", Name: "three"})

	rec := doJSON(t, h, http.MethodGet, "/systems?uid=urn:sys:000000000001&uid=urn:sys:000000000003", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp listResponse[core.System]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 2)
	names := map[string]bool{}
	for _, s := range resp.Items {
		names[s.Name] = true
	}
	assert.True(t, names["one"])
	assert.True(t, names["three"])
	assert.False(t, names["two"])
}

func TestSystemListPagingEmitsNextLink(t *testing.T) {
	h, _ := newTestRouter(t)
	for i := 0; i < 3; i++ {
		doJSON(t, h, http.MethodPost, "/systems", core.System{
			UID:  "urn:sys:00000000000" + string(rune('1'+i)),
			Name: "sys",
		})
	}

	rec := doJSON(t, h, http.MethodGet, "/systems?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp listResponse[core.System]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Items, 2)
	assert.NotEmpty(t, resp.NextLink)
}

func TestDataStreamAndObservationEndToEnd(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := doJSON(t, h, http.MethodPost, "/systems", core.System{UID: "urn:sys:000000000001", Name: "weather-1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var sysCreated createdResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sysCreated))
	sysID := sysCreated.IDs[0]

	rec = doJSON(t, h, http.MethodPost, "/systems/"+sysID+"/datastreams", dataStreamCreateRequest{
		OutputName: "temperature",
		RecordStructure: core.RecordStructure{
			Name:   "temperature",
			Fields: []core.RecordField{{Name: "value", DataType: "double"}},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var dsCreated createdResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dsCreated))
	dsID := dsCreated.IDs[0]

	rec = doJSON(t, h, http.MethodGet, "/systems/"+sysID+"/datastreams", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var dsList listResponse[core.DataStream]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dsList))
	require.Len(t, dsList.Items, 1)
	assert.Equal(t, "temperature", dsList.Items[0].OutputName)

	rec = doJSON(t, h, http.MethodPost, "/systems/"+sysID+"/datastreams/"+dsID+"/observations", observationCreateRequest{
		ResultTime:     100,
		PhenomenonTime: 100,
		Fields:         core.FieldValues{"value": 21.5},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/systems/"+sysID+"/datastreams/"+dsID+"/observations?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var obsList listResponse[core.ObsData]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &obsList))
	require.Len(t, obsList.Items, 1)
	assert.Equal(t, core.Instant(100), obsList.Items[0].PhenomenonTime)
}

func TestObservationCreateRejectsUnknownFOIUID(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := doJSON(t, h, http.MethodPost, "/systems", core.System{UID: "urn:sys:000000000001", Name: "weather-1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var sysCreated createdResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sysCreated))
	sysID := sysCreated.IDs[0]

	rec = doJSON(t, h, http.MethodPost, "/systems/"+sysID+"/datastreams", dataStreamCreateRequest{
		OutputName:      "temperature",
		RecordStructure: core.RecordStructure{Name: "temperature"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var dsCreated createdResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dsCreated))
	dsID := dsCreated.IDs[0]

	rec = doJSON(t, h, http.MethodPost, "/systems/"+sysID+"/datastreams/"+dsID+"/observations", observationCreateRequest{
		FOIUID:         "urn:foi:does-not-exist",
		ResultTime:     100,
		PhenomenonTime: 100,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDataStreamUnknownParentSystemIs404(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := doJSON(t, h, http.MethodGet, "/systems/999999999/datastreams", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFOICreateAndListRoundTrip(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := doJSON(t, h, http.MethodPost, "/featuresOfInterest", core.FOI{UID: "urn:foi:000000000001", Name: "field-a"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/featuresOfInterest/count", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var count countResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &count))
	assert.Equal(t, 1, count.Count)
}

func TestCreateRejectsMissingContentType(t *testing.T) {
	h, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/systems", bytes.NewReader([]byte(`{"uid":"urn:sys:000000000001","name":"x"}`)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}
