package api

import (
	"context"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sensorhub-io/hub/core"
	"github.com/sensorhub-io/hub/filter"
)

const (
	defaultLimit = 100
	maxLimit     = 10000
)

// parsePaging implements spec §4.8's offset/limit paging: limit is clamped
// to [0, 10000], default 100; a non-numeric limit or a non-numeric or
// negative offset is rejected.
func parsePaging(q url.Values) (offset, limit int, err error) {
	offset, limit = 0, defaultLimit
	if v := q.Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, core.NewError(core.ErrKindInvalidRequest, "invalid offset")
		}
	}
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil {
			return 0, 0, core.NewError(core.ErrKindInvalidRequest, "invalid limit")
		}
	}
	if limit < 0 {
		limit = 0
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return offset, limit, nil
}

// parseValidTime parses spec §6's validTime:<instant|instant/instant|now>.
// An absent param means AllTimes — per spec §9's Open Question resolution,
// callers wanting "current version only" must say validTime=now explicitly.
func parseValidTime(q url.Values) (filter.Temporal, error) {
	v := q.Get("validTime")
	if v == "" {
		return filter.AllTimes(), nil
	}
	if v == "now" {
		return filter.CurrentTime(0), nil
	}
	return parseInstantOrRange(v, "validTime")
}

// parseInstantRange parses a "<instant>" or "<instant>/<instant>" query
// param into a Temporal filter, spec §6's phenomenonTime/resultTime shape.
func parseInstantRange(q url.Values, param string) (filter.Temporal, error) {
	v := q.Get(param)
	if v == "" {
		return filter.AllTimes(), nil
	}
	return parseInstantOrRange(v, param)
}

func parseInstantOrRange(v, param string) (filter.Temporal, error) {
	if idx := strings.IndexByte(v, '/'); idx >= 0 {
		begin, err1 := strconv.ParseInt(v[:idx], 10, 64)
		end, err2 := strconv.ParseInt(v[idx+1:], 10, 64)
		if err1 != nil || err2 != nil {
			return filter.Temporal{}, core.NewError(core.ErrKindInvalidRequest, "invalid "+param+" range")
		}
		return filter.TimeRange(core.Instant(begin), core.Instant(end)), nil
	}
	at, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return filter.Temporal{}, core.NewError(core.ErrKindInvalidRequest, "invalid "+param+" instant")
	}
	return filter.SingleTime(core.Instant(at)), nil
}

// parseProperties implements spec §6's repeated p:<name>:pattern query
// params: a pattern that parses as a float is a numeric-equality clause
// (spec §4.1: "exact match against numeric properties"), anything else is
// a glob string match.
func parseProperties(q url.Values) filter.Properties {
	out := filter.AnyProperties()
	for _, raw := range q["p"] {
		idx := strings.IndexByte(raw, ':')
		if idx < 0 {
			continue
		}
		name, pattern := raw[:idx], raw[idx+1:]
		if num, err := strconv.ParseFloat(pattern, 64); err == nil {
			out = out.WithNumericEquals(name, num)
			continue
		}
		out = out.WithStringMatch(name, pattern)
	}
	return out
}

// parseBBox implements spec §6's bbox:minLon,minLat,maxLon,maxLat as an
// INTERSECTS spatial filter. Full WKT geometry parsing (the geom: param) is
// not implemented: spec §1 already delegates true geometry predicates to an
// external collaborator (core.Geometry.Disjoint's doc comment), and the
// bounding-box fast path is the only spatial math this system performs
// itself.
func parseBBox(q url.Values) (filter.Spatial, error) {
	v := q.Get("bbox")
	if v == "" {
		return filter.AnywhereFilter(), nil
	}
	parts := strings.Split(v, ",")
	if len(parts) != 4 {
		return filter.Spatial{}, core.NewError(core.ErrKindInvalidRequest, "bbox requires 4 comma-separated values")
	}
	var nums [4]float64
	for i, p := range parts {
		n, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return filter.Spatial{}, core.NewError(core.ErrKindInvalidRequest, "bbox value is not a number")
		}
		nums[i] = n
	}
	return filter.Intersects(core.Geometry{MinX: nums[0], MinY: nums[1], MaxX: nums[2], MaxY: nums[3]}), nil
}

// contentTypeOK reports whether the request declares a JSON body, the only
// format this REST surface accepts (spec §6: "415 on missing/unknown
// content type").
func contentTypeOK(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(ct)
	return err == nil && mt == "application/json"
}

func cloneQuery(q url.Values) url.Values {
	out := make(url.Values, len(q))
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// resolveUIDIDSet implements spec §6's uid:string(multi): the ids named by
// the repeated uid= param are unioned (not intersected — any one of them
// matching is sufficient), resolved against the resource's own store.
// Unknown uids are silently dropped from the union rather than erroring, so
// a list request mixing known and unknown uids still returns the known
// ones.
func resolveUIDIDSet(ctx context.Context, resolve func(context.Context, string) (int64, error), uids []string) (filter.IDSet, error) {
	if len(uids) == 0 {
		return filter.AnyID(), nil
	}
	resolved := make([]int64, 0, len(uids))
	for _, uid := range uids {
		id, err := resolve(ctx, uid)
		if err != nil {
			if core.IsNotFound(err) {
				continue
			}
			return filter.IDSet{}, err
		}
		resolved = append(resolved, id)
	}
	return filter.IDIn(resolved...), nil
}
