package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrConnectionDropped is returned by MemoryTransport for injected
// connection failures.
var ErrConnectionDropped = errors.New("docstore: connection dropped")

// MemoryTransport is an in-memory document store answering the same HTTP
// surface as the remote store. It backs tests and local runs.
//
// Documents must be JSON objects. POST without an "id" field assigns a
// random one. Queries match top-level fields by equality; the filter is
// either the request body itself or its "filters" object.
type MemoryTransport struct {
	mu       sync.Mutex
	docs     map[string]map[string]map[string]any
	token    string
	faults   []fault
	requests []Request
}

type fault struct {
	status int
	drop   bool
}

// NewMemoryTransport creates an empty store.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		docs: make(map[string]map[string]map[string]any),
	}
}

// RequireToken makes every request without "Bearer <token>" fail with 401.
func (m *MemoryTransport) RequireToken(token string) {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
}

// FailNext answers the next n requests with status, without touching the
// stored documents.
func (m *MemoryTransport) FailNext(status, n int) {
	m.mu.Lock()
	for i := 0; i < n; i++ {
		m.faults = append(m.faults, fault{status: status})
	}
	m.mu.Unlock()
}

// DropNext fails the next n requests with ErrConnectionDropped.
func (m *MemoryTransport) DropNext(n int) {
	m.mu.Lock()
	for i := 0; i < n; i++ {
		m.faults = append(m.faults, fault{drop: true})
	}
	m.mu.Unlock()
}

// Requests returns every request received so far, faulted ones included.
func (m *MemoryTransport) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Put stores doc under id without going through Send.
func (m *MemoryTransport) Put(collection, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return err
	}

	m.mu.Lock()
	m.collection(collection)[id] = obj
	m.mu.Unlock()
	return nil
}

// Document returns a copy of the stored document.
func (m *MemoryTransport) Document(collection, id string) (map[string]any, bool) {
	m.mu.Lock()
	doc, ok := m.docs[collection][id]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	return cloneDoc(doc), true
}

// Len returns the number of documents in collection.
func (m *MemoryTransport) Len(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs[collection])
}

// Send implements Transporter.
func (m *MemoryTransport) Send(ctx context.Context, req *Request, _ time.Duration) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	logged := *req
	logged.Header = req.Header.Clone()
	logged.Body = append([]byte(nil), req.Body...)
	m.requests = append(m.requests, logged)

	if len(m.faults) > 0 {
		f := m.faults[0]
		m.faults = m.faults[1:]
		if f.drop {
			return nil, ErrConnectionDropped
		}
		return errorResponse(f.status), nil
	}

	if m.token != "" && req.Header.Get("Authorization") != "Bearer "+m.token {
		return errorResponse(http.StatusUnauthorized), nil
	}

	collection, resource, id, ok := route(req.URL)
	if !ok {
		return errorResponse(http.StatusNotFound), nil
	}

	switch {
	case resource == "documents" && id == "" && req.Method == http.MethodPost:
		return m.create(collection, req.Body), nil
	case resource == "documents" && id != "" && req.Method == http.MethodGet:
		doc, found := m.docs[collection][id]
		if !found {
			return errorResponse(http.StatusNotFound), nil
		}
		return jsonResponse(http.StatusOK, doc), nil
	case resource == "documents" && id != "" && req.Method == http.MethodPatch:
		return m.update(collection, id, req.Body), nil
	case resource == "documents" && id != "" && req.Method == http.MethodPut:
		return m.upsert(collection, id, req.Body), nil
	case resource == "query" && id == "" && req.Method == http.MethodPost:
		return m.query(collection, req.Body), nil
	case resource == "documents" || resource == "query":
		return errorResponse(http.StatusMethodNotAllowed), nil
	default:
		return errorResponse(http.StatusNotFound), nil
	}
}

func (m *MemoryTransport) create(collection string, body []byte) *Response {
	doc, ok := decodeObject(body)
	if !ok {
		return errorResponse(http.StatusBadRequest)
	}
	id, _ := doc["id"].(string)
	if id == "" {
		id = uuid.NewString()
		doc["id"] = id
	}
	docs := m.collection(collection)
	if _, exists := docs[id]; exists {
		return errorResponse(http.StatusConflict)
	}
	docs[id] = doc
	return jsonResponse(http.StatusCreated, doc)
}

func (m *MemoryTransport) update(collection, id string, body []byte) *Response {
	patch, ok := decodeObject(body)
	if !ok {
		return errorResponse(http.StatusBadRequest)
	}
	doc, found := m.docs[collection][id]
	if !found {
		return errorResponse(http.StatusNotFound)
	}
	for k, v := range patch {
		doc[k] = v
	}
	return jsonResponse(http.StatusOK, doc)
}

func (m *MemoryTransport) upsert(collection, id string, body []byte) *Response {
	doc, ok := decodeObject(body)
	if !ok {
		return errorResponse(http.StatusBadRequest)
	}
	docs := m.collection(collection)
	status := http.StatusOK
	if _, exists := docs[id]; !exists {
		status = http.StatusCreated
	}
	docs[id] = doc
	return jsonResponse(status, doc)
}

func (m *MemoryTransport) query(collection string, body []byte) *Response {
	filters := map[string]any{}
	if len(body) > 0 {
		obj, ok := decodeObject(body)
		if !ok {
			return errorResponse(http.StatusBadRequest)
		}
		filters = obj
		if nested, ok := obj["filters"].(map[string]any); ok {
			filters = nested
		}
	}

	ids := make([]string, 0, len(m.docs[collection]))
	for id, doc := range m.docs[collection] {
		if matches(doc, filters) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	documents := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		documents = append(documents, m.docs[collection][id])
	}
	return jsonResponse(http.StatusOK, map[string]any{
		"documents": documents,
		"total":     len(documents),
	})
}

// collection returns the named collection, creating it. Callers hold mu.
func (m *MemoryTransport) collection(name string) map[string]map[string]any {
	docs, ok := m.docs[name]
	if !ok {
		docs = make(map[string]map[string]any)
		m.docs[name] = docs
	}
	return docs
}

// route extracts collection, resource and id from a store URL. The base
// URL may carry any path prefix before "collections".
func route(raw string) (collection, resource, id string, ok bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", "", false
	}
	segs := strings.Split(strings.Trim(u.EscapedPath(), "/"), "/")
	for i := len(segs) - 1; i >= 0; i-- {
		if segs[i] != "collections" {
			continue
		}
		rest := segs[i+1:]
		if len(rest) != 2 && len(rest) != 3 {
			continue
		}
		parts := make([]string, 3)
		for j, s := range rest {
			if parts[j], err = url.PathUnescape(s); err != nil {
				return "", "", "", false
			}
		}
		return parts[0], parts[1], parts[2], parts[0] != ""
	}
	return "", "", "", false
}

func matches(doc, filters map[string]any) bool {
	for k, want := range filters {
		if !reflect.DeepEqual(doc[k], want) {
			return false
		}
	}
	return true
}

func decodeObject(body []byte) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

func cloneDoc(doc map[string]any) map[string]any {
	raw, _ := json.Marshal(doc)
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return out
}

func jsonResponse(status int, v any) *Response {
	raw, err := json.Marshal(v)
	if err != nil {
		return errorResponse(http.StatusInternalServerError)
	}
	return &Response{StatusCode: status, Body: raw}
}

func errorResponse(status int) *Response {
	raw, _ := json.Marshal(map[string]string{"error": http.StatusText(status)})
	return &Response{StatusCode: status, Body: raw}
}

var _ Transporter = (*MemoryTransport)(nil)
