// Package soctest provides an in-process fake of the SOC web application.
package soctest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/said46/autoSOC/internal/overrides/infrastructure/soc"
)

// Item is one catalog entry.
type Item struct {
	ID    int64  `yaml:"id"`
	Title string `yaml:"title"`
}

// Method is a catalog method with its states.
type Method struct {
	ID      int64  `yaml:"id"`
	Title   string `yaml:"title"`
	Applied []Item `yaml:"applied"`
	Removed []Item `yaml:"removed"`
}

// Type is a catalog type with its methods.
type Type struct {
	ID      int64    `yaml:"id"`
	Title   string   `yaml:"title"`
	Methods []Method `yaml:"methods"`
}

// Fixture is the catalog served by the fake.
type Fixture struct {
	Types []Type `yaml:"types"`
}

// ParseFixture decodes a yaml fixture.
func ParseFixture(data []byte) (Fixture, error) {
	var f Fixture
	err := yaml.Unmarshal(data, &f)
	return f, err
}

// DefaultFixture is a small catalog: type 1 owns method 1 with applied
// state 1 and removed state 2; type 2 owns method 5.
func DefaultFixture() Fixture {
	return Fixture{Types: []Type{
		{ID: 1, Title: "Bypass", Methods: []Method{
			{ID: 1, Title: "Software", Applied: []Item{{1, "Bypassed"}}, Removed: []Item{{2, "Normal"}}},
			{ID: 2, Title: "Hardware jumper", Applied: []Item{{3, "Jumpered"}}, Removed: []Item{{4, "Removed"}}},
		}},
		{ID: 2, Title: "Blocking", Methods: []Method{
			{ID: 5, Title: "Key switch", Applied: []Item{{6, "Blocked"}}, Removed: []Item{{7, "Unblocked"}}},
		}},
		{ID: 3, Title: "Forcing", Methods: []Method{
			{ID: 8, Title: "Forced", Applied: []Item{{9, "Forced"}}, Removed: []Item{{10, "Unforced"}}},
		}},
	}}
}

// Submission is a request accepted or refused by the fake.
type Submission struct {
	Body    []byte
	Payload soc.Payload
	Cookie  string
	Status  int
}

type stored struct {
	id     int64
	record soc.WireRecord
}

// Server is an http.Handler faking the SOC endpoints.
type Server struct {
	fixture Fixture
	paths   soc.Paths

	mu           sync.Mutex
	latency      time.Duration
	submitStatus int
	submitBody   string
	requireToken string
	catalogFail  bool
	calls        map[string]int
	submissions  []Submission
	persisted    map[int64][]stored
	nextID       int64
}

// NewServer constructs a fake serving fixture.
func NewServer(fixture Fixture) *Server {
	return &Server{
		fixture:      fixture,
		paths:        soc.DefaultPaths(),
		submitStatus: http.StatusOK,
		calls:        make(map[string]int),
		persisted:    make(map[int64][]stored),
		nextID:       1000,
	}
}

// Start serves s on a test listener.
func (s *Server) Start() *httptest.Server {
	return httptest.NewServer(s)
}

// SetLatency delays every response.
func (s *Server) SetLatency(d time.Duration) {
	s.mu.Lock()
	s.latency = d
	s.mu.Unlock()
}

// SetSubmitResponse makes the submit endpoint answer status and body.
func (s *Server) SetSubmitResponse(status int, body string) {
	s.mu.Lock()
	s.submitStatus = status
	s.submitBody = body
	s.mu.Unlock()
}

// RequireToken makes submissions without token fail with 400.
func (s *Server) RequireToken(token string) {
	s.mu.Lock()
	s.requireToken = token
	s.mu.Unlock()
}

// FailCatalog makes catalog endpoints answer 503.
func (s *Server) FailCatalog(fail bool) {
	s.mu.Lock()
	s.catalogFail = fail
	s.mu.Unlock()
}

// Calls returns how often path was hit.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// Submissions returns every submit request received.
func (s *Server) Submissions() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Submission(nil), s.submissions...)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.calls[r.URL.Path]++
	latency := s.latency
	s.mu.Unlock()
	if latency > 0 {
		time.Sleep(latency)
	}

	switch r.URL.Path {
	case s.paths.Methods:
		s.handleMethods(w, r)
	case s.paths.States:
		s.handleStates(w, r)
	case s.paths.Submit:
		s.handleSubmit(w, r)
	case s.paths.Overrides:
		s.handleOverrides(w, r)
	case "/healthz":
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	default:
		http.NotFound(w, r)
	}
}

type listItem struct {
	Value string `json:"Value"`
	Text  string `json:"Text"`
}

func toList(items []Item) []listItem {
	out := make([]listItem, 0, len(items))
	for _, item := range items {
		out = append(out, listItem{Value: strconv.FormatInt(item.ID, 10), Text: item.Title})
	}
	return out
}

func (s *Server) catalogDown(w http.ResponseWriter) bool {
	s.mu.Lock()
	down := s.catalogFail
	s.mu.Unlock()
	if down {
		http.Error(w, "catalog unavailable", http.StatusServiceUnavailable)
	}
	return down
}

func (s *Server) handleMethods(w http.ResponseWriter, r *http.Request) {
	if s.catalogDown(w) {
		return
	}
	typeID, err := strconv.ParseInt(r.URL.Query().Get("overrideTypeId"), 10, 64)
	if err != nil {
		http.Error(w, "bad overrideTypeId", http.StatusBadRequest)
		return
	}
	methods := []listItem{}
	for _, t := range s.fixture.Types {
		if t.ID != typeID {
			continue
		}
		for _, m := range t.Methods {
			methods = append(methods, listItem{Value: strconv.FormatInt(m.ID, 10), Text: m.Title})
		}
	}
	writeJSON(w, http.StatusOK, methods)
}

func (s *Server) handleStates(w http.ResponseWriter, r *http.Request) {
	if s.catalogDown(w) {
		return
	}
	methodID, err := strconv.ParseInt(r.URL.Query().Get("overrideMethodId"), 10, 64)
	if err != nil {
		http.Error(w, "bad overrideMethodId", http.StatusBadRequest)
		return
	}
	resp := map[string][]listItem{"Applied": {}, "Removed": {}}
	if m, ok := s.method(methodID); ok {
		resp["Applied"] = toList(m.Applied)
		resp["Removed"] = toList(m.Removed)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	payload, decodeErr := soc.DecodePayload(body)

	s.mu.Lock()
	defer s.mu.Unlock()
	status, respBody := s.submitStatus, s.submitBody
	if decodeErr != nil {
		status, respBody = http.StatusBadRequest, decodeErr.Error()
	} else if s.requireToken != "" && payload.RequestToken != s.requireToken {
		status, respBody = http.StatusBadRequest, "invalid request verification token"
	}
	s.submissions = append(s.submissions, Submission{Body: body, Payload: payload, Cookie: r.Header.Get("Cookie"), Status: status})
	if status >= 200 && status < 300 {
		for _, rec := range payload.Records {
			id := s.nextID
			if rec.ID != nil {
				id = *rec.ID
			} else {
				s.nextID++
			}
			s.persisted[payload.CertificateID] = append(s.persisted[payload.CertificateID], stored{id: id, record: rec})
		}
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, respBody)
}

type gridRef struct {
	ShortForm string `json:"ShortForm,omitempty"`
	Title     string `json:"Title"`
}

func (s *Server) handleOverrides(w http.ResponseWriter, r *http.Request) {
	certID, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	rows := append([]stored(nil), s.persisted[certID]...)
	s.mu.Unlock()

	data := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		rec := row.record
		item := map[string]any{
			"Id":                          row.id,
			"TagNumber":                   rec.TagNumber,
			"Description":                 rec.Description,
			"Comment":                     rec.Comment,
			"AdditionalValueAppliedState": rec.AdditionalValueAppliedState,
			"AdditionalValueRemovedState": rec.AdditionalValueRemovedState,
			"OverrideType":                gridRef{Title: s.typeTitle(rec.OverrideTypeID)},
			"OverrideMethod":              gridRef{Title: s.methodTitle(rec.OverrideMethodID)},
			"OverrideAppliedState":        gridRef{Title: s.stateTitle(rec.OverrideAppliedStateID)},
			"OverrideRemovedState":        gridRef{Title: s.stateTitle(rec.OverrideRemovedStateID)},
			"CurrentState":                gridRef{Title: "Not Applied"},
		}
		data = append(data, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"Data": data, "Total": len(data)})
}

func (s *Server) method(id int64) (Method, bool) {
	for _, t := range s.fixture.Types {
		for _, m := range t.Methods {
			if m.ID == id {
				return m, true
			}
		}
	}
	return Method{}, false
}

func parse(raw string) int64 {
	n, _ := strconv.ParseInt(raw, 10, 64)
	return n
}

func (s *Server) typeTitle(raw string) string {
	id := parse(raw)
	for _, t := range s.fixture.Types {
		if t.ID == id {
			return t.Title
		}
	}
	return ""
}

func (s *Server) methodTitle(raw string) string {
	if m, ok := s.method(parse(raw)); ok {
		return m.Title
	}
	return ""
}

func (s *Server) stateTitle(raw string) string {
	id := parse(raw)
	for _, t := range s.fixture.Types {
		for _, m := range t.Methods {
			for _, st := range append(append([]Item(nil), m.Applied...), m.Removed...) {
				if st.ID == id {
					return st.Title
				}
			}
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
