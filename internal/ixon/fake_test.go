package ixon

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// fakeAPI serves the IXON root, the LSI root and every endpoint the
// pipelines call, and records what it received.
type fakeAPI struct {
	t      *testing.T
	server *httptest.Server

	mu            sync.Mutex
	hits          map[string]int
	lastExport    exportCall
	exportCSV     string
	failAccess    bool
	omitExportRel bool
}

type exportCall struct {
	From     string
	Timezone string
	Accept   string
	Auth     string
	Body     map[string]map[string]map[string][]map[string]string
}

func newFakeAPI(t *testing.T) *fakeAPI {
	f := &fakeAPI{t: t, hits: map[string]int{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/", f.handleRoot)
	mux.HandleFunc("/lsi/", f.handleLSIRoot)
	mux.HandleFunc("/access-tokens", f.handleAccessToken)
	mux.HandleFunc("/authorization-tokens", f.handleAuthorizationToken)
	mux.HandleFunc("/agents/agent-1/devices/device-1/data-tags", f.handleTags)
	mux.HandleFunc("/lsi/export", f.handleExport)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAPI) config() Config {
	return Config{
		APIURL:    f.server.URL + "/",
		LSIURL:    f.server.URL + "/lsi/",
		APIKey:    "app-key",
		CompanyID: "company-1",
		AgentID:   "agent-1",
		DeviceID:  "device-1",
		BasicAuth: "dXNlcjo6cGFzcw==",
		Timezone:  "Europe/London",
	}
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[name]
}

func (f *fakeAPI) hit(name string) {
	f.mu.Lock()
	f.hits[name]++
	f.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeAPI) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	f.hit("discovery")
	if r.Header.Get("IXapi-Version") != "1" || r.Header.Get("IXapi-Application") != "app-key" {
		http.Error(w, "missing api headers", http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{"links": []map[string]string{
		{"rel": RelAccessTokenList, "href": f.server.URL + "/access-tokens"},
		{"rel": RelAuthorizationTokenList, "href": f.server.URL + "/authorization-tokens"},
		{"rel": RelAgentDeviceDataTagList, "href": f.server.URL + "/agents/{agentId}/devices/{deviceId}/data-tags"},
	}})
}

func (f *fakeAPI) handleLSIRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/lsi/" {
		http.NotFound(w, r)
		return
	}
	f.hit("lsi-discovery")
	if r.Header.Get("Authorization") != "Bearer general-token" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	links := []map[string]string{}
	if !f.omitExportRel {
		links = append(links, map[string]string{"rel": RelDataExportMultiple, "href": f.server.URL + "/lsi/export"})
	}
	writeJSON(w, map[string]any{"links": links})
}

func (f *fakeAPI) handleAccessToken(w http.ResponseWriter, r *http.Request) {
	f.hit("access-token")
	if f.failAccess {
		http.Error(w, `{"status":"error"}`, http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost || r.Header.Get("Authorization") != "Basic dXNlcjo6cGFzcw==" {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
		return
	}
	if r.URL.Query().Get("fields") != "expiresIn,secretId" {
		http.Error(w, "missing fields", http.StatusBadRequest)
		return
	}
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body["expiresIn"] != float64(3600) {
		http.Error(w, "bad expiresIn", http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{"data": map[string]any{"secretId": "general-token", "expiresIn": 3600}})
}

func (f *fakeAPI) handleAuthorizationToken(w http.ResponseWriter, r *http.Request) {
	f.hit("authorization-token")
	if r.Header.Get("Authorization") != "Bearer general-token" || r.Header.Get("IXapi-Company") != "company-1" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body["agents"] != "agent-1" || body["expiresIn"] != float64(3600) {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{"data": map[string]any{"token": "scoped-token"}})
}

func (f *fakeAPI) handleTags(w http.ResponseWriter, r *http.Request) {
	f.hit("tags")
	if r.Header.Get("Authorization") != "Bearer general-token" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, map[string]any{"data": []map[string]any{
		{"tagId": 1, "name": "Temperature"},
		{"tagId": 2, "name": "Pressure"},
	}})
}

func (f *fakeAPI) handleExport(w http.ResponseWriter, r *http.Request) {
	f.hit("export")
	raw, _ := io.ReadAll(r.Body)
	call := exportCall{
		From:     r.URL.Query().Get("from"),
		Timezone: r.URL.Query().Get("timezone"),
		Accept:   r.Header.Get("Accept"),
		Auth:     r.Header.Get("Authorization"),
	}
	_ = json.Unmarshal(raw, &call.Body)
	f.mu.Lock()
	f.lastExport = call
	f.mu.Unlock()
	w.Header().Set("Content-Type", "text/csv")
	_, _ = io.WriteString(w, f.exportCSV)
}
