package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/jonwraymond/scenariocache/cache"
	"github.com/jonwraymond/scenariocache/docstore"
)

// sectorIDWidth is the zero-padded width of sector ids.
const sectorIDWidth = 2

var errBadBody = errors.New("server: request body is not a JSON object")

// body is a decoded JSON object whose fields are converted lazily so that
// presence and type can be reported per field.
type body map[string]json.RawMessage

func decodeBody(r *http.Request) (body, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errBadBody
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return body{}, nil
	}
	var b body
	if err := json.Unmarshal(raw, &b); err != nil || b == nil {
		return nil, errBadBody
	}
	return b, nil
}

// missing returns the names absent from b, in the order given.
func (b body) missing(names ...string) []string {
	var out []string
	for _, n := range names {
		if _, ok := b[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}

func (b body) present(name string) (json.RawMessage, bool) {
	raw, ok := b[name]
	if !ok || string(raw) == "null" {
		return nil, false
	}
	return raw, true
}

func (b body) text(name string) (string, error) {
	raw, ok := b.present(name)
	if !ok {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &cache.InputError{Field: name, Reason: "must be a string"}
	}
	return s, nil
}

func (b body) list(name string) ([]string, error) {
	raw, ok := b.present(name)
	if !ok {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &cache.InputError{Field: name, Reason: "must be a list of strings"}
	}
	return out, nil
}

// value decodes an arbitrary JSON value keeping numbers as json.Number.
func (b body) value(name string) (any, error) {
	raw, ok := b.present(name)
	if !ok {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &cache.InputError{Field: name, Reason: "is not valid JSON"}
	}
	return v, nil
}

func (b body) object(name string) (map[string]any, error) {
	v, err := b.value(name)
	if err != nil || v == nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &cache.InputError{Field: name, Reason: "must be an object"}
	}
	return m, nil
}

// sectorID accepts a string or a number and zero-pads it.
func (b body) sectorID(name string) (string, error) {
	v, err := b.value(name)
	if err != nil || v == nil {
		return "", err
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	default:
		return "", &cache.InputError{Field: name, Reason: "must be a string or number"}
	}
	return PadSectorID(s), nil
}

// PadSectorID left-pads id with zeros to two characters.
func PadSectorID(id string) string {
	if len(id) >= sectorIDWidth {
		return id
	}
	return strings.Repeat("0", sectorIDWidth-len(id)) + id
}

// firstErr returns the first non-nil error.
func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) chatContext(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	b, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if missing := b.missing("tariff_percent", "target_partners", "sector_id"); len(missing) > 0 {
		s.fail(w, r, &cache.InputError{Missing: missing}, "")
		return
	}

	tariff, err1 := b.value("tariff_percent")
	partners, err2 := b.list("target_partners")
	sectorID, err3 := b.sectorID("sector_id")
	mode, err4 := b.text("model_mode")
	explanationType, err5 := b.text("explanation_type")
	filter, err6 := b.list("sector_filter")
	if err := firstErr(err1, err2, err3, err4, err5, err6); err != nil {
		s.fail(w, r, err, "")
		return
	}

	out, err := s.chat.GetOrComputeChatContext(r.Context(), cache.ContextRequest{
		TariffPercent:   tariff,
		TargetPartners:  partners,
		SectorID:        sectorID,
		ModelMode:       mode,
		ExplanationType: explanationType,
		SectorFilter:    filter,
	})
	if err != nil {
		s.fail(w, r, err, "Failed to compute context")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) storeExplanation(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	b, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	missing := b.missing("scenario_id", "sector_id", "type", "content", "grounded_metrics", "model", "safety")
	if len(missing) > 0 {
		s.fail(w, r, &cache.InputError{Missing: missing}, "")
		return
	}

	scenarioID, err1 := b.text("scenario_id")
	sectorID, err2 := b.sectorID("sector_id")
	explanationType, err3 := b.text("type")
	content, err4 := b.text("content")
	metrics, err5 := b.object("grounded_metrics")
	model, err6 := b.text("model")
	safety, err7 := b.value("safety")
	if err := firstErr(err1, err2, err3, err4, err5, err6, err7); err != nil {
		s.fail(w, r, err, "")
		return
	}

	doc, err := s.chat.UpsertExplanation(r.Context(), cache.ExplanationRequest{
		ScenarioID:      scenarioID,
		SectorID:        sectorID,
		ExplanationType: explanationType,
		Content:         content,
		GroundedMetrics: metrics,
		Model:           model,
		Safety:          safety,
	})
	if err != nil {
		s.fail(w, r, err, "Failed to store explanation")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// fail maps err to a status and writes the error body. fallback is the
// message for unexpected failures.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	log := s.logger.With(
		zap.String("request_id", RequestIDFromContext(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)

	var inputErr *cache.InputError
	var storeErr *docstore.Error
	switch {
	case errors.As(err, &inputErr):
		log.Debug("rejected request")
		writeError(w, http.StatusBadRequest, inputMessage(inputErr))
	case errors.As(err, &storeErr):
		log.Error("document store unavailable", zap.Stringer("kind", storeErr.Kind))
		writeError(w, http.StatusServiceUnavailable, "Document store unavailable")
	default:
		log.Error("request failed")
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func inputMessage(e *cache.InputError) string {
	if len(e.Missing) > 0 {
		return "Missing fields: " + strings.Join(e.Missing, ", ")
	}
	return "Invalid " + e.Field + ": " + e.Reason
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
