package config

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/gorilla/mux"
)

const redacted = "***"

// ConfigAPI provides HTTP endpoints to view, validate and reload configuration
type ConfigAPI struct {
	shared *Shared
	mu     sync.Mutex
	router *mux.Router
	load   func() (*Config, error)
}

func NewConfigAPI(shared *Shared) *ConfigAPI {
	api := &ConfigAPI{
		shared: shared,
		router: mux.NewRouter(),
		load:   Load,
	}
	api.routes()
	return api
}

func (api *ConfigAPI) Router() *mux.Router {
	return api.router
}

func (api *ConfigAPI) routes() {
	api.router.HandleFunc("/configure", api.getConfig).Methods("GET")
	api.router.HandleFunc("/configure/", api.getConfig).Methods("GET")
	api.router.HandleFunc("/configure/reload", api.reloadConfig).Methods("POST")
	api.router.HandleFunc("/configure/validate", api.validateConfig).Methods("POST")
	api.router.HandleFunc("/configure/sections", api.listSections).Methods("GET")
	api.router.HandleFunc("/configure/sections/{section}", api.getSection).Methods("GET")
}

func (api *ConfigAPI) getConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.shared.Load().Redacted())
}

// reloadConfig re-reads config.yaml and the environment and swaps the result
// in once it validates.
func (api *ConfigAPI) reloadConfig(w http.ResponseWriter, r *http.Request) {
	api.mu.Lock()
	defer api.mu.Unlock()
	reloaded, err := api.load()
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to reload config: %v", err), http.StatusInternalServerError)
		return
	}
	if err := reloaded.Validate(); err != nil {
		http.Error(w, fmt.Sprintf("invalid configuration: %v", err), http.StatusBadRequest)
		return
	}
	if changed := restartRequired(api.shared.Load(), reloaded); len(changed) > 0 {
		log.Printf("Warning: config reload changed %s, restart to apply", strings.Join(changed, ", "))
	}
	api.shared.Store(reloaded)
	writeJSON(w, http.StatusOK, reloaded.Redacted())
}

func (api *ConfigAPI) validateConfig(w http.ResponseWriter, r *http.Request) {
	cfg := Default()
	if err := json.NewDecoder(r.Body).Decode(cfg); err != nil {
		http.Error(w, fmt.Sprintf("invalid config payload: %v", err), http.StatusBadRequest)
		return
	}
	if err := cfg.Validate(); err != nil {
		http.Error(w, fmt.Sprintf("invalid configuration: %v", err), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"valid": true, "message": "configuration is valid"})
}

func (api *ConfigAPI) listSections(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(sectionsOf(&Config{})))
	for name := range sectionsOf(&Config{}) {
		names = append(names, name)
	}
	sort.Strings(names)
	writeJSON(w, http.StatusOK, names)
}

func (api *ConfigAPI) getSection(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["section"]
	section, ok := sectionsOf(api.shared.Load().Redacted())[name]
	if !ok {
		http.Error(w, fmt.Sprintf("unknown section: %s", name), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, section)
}

func sectionsOf(c *Config) map[string]interface{} {
	return map[string]interface{}{
		"server":   c.Server,
		"auth":     c.Auth,
		"database": c.Database,
		"storage":  c.Storage,
		"upload":   c.Upload,
		"audit":    c.Audit,
		"mcp":      c.MCP,
		"metrics":  c.Metrics,
	}
}

// restartRequired names the settings that differ between old and next but
// are only read at startup.
func restartRequired(old, next *Config) []string {
	var changed []string
	if old.Server.Addr != next.Server.Addr {
		changed = append(changed, "server.addr")
	}
	if old.Server.ReadTimeout != next.Server.ReadTimeout || old.Server.WriteTimeout != next.Server.WriteTimeout {
		changed = append(changed, "server timeouts")
	}
	for _, name := range []string{"database", "storage", "mcp", "metrics"} {
		if !reflect.DeepEqual(sectionsOf(old)[name], sectionsOf(next)[name]) {
			changed = append(changed, name)
		}
	}
	return changed
}

// Redacted returns a deep copy with credentials masked.
func (c *Config) Redacted() *Config {
	raw, _ := json.Marshal(c)
	var out Config
	_ = json.Unmarshal(raw, &out)
	if out.Storage.MinIO.AccessKey != "" {
		out.Storage.MinIO.AccessKey = redacted
	}
	if out.Storage.MinIO.SecretKey != "" {
		out.Storage.MinIO.SecretKey = redacted
	}
	if out.Auth.Token != "" {
		out.Auth.Token = redacted
	}
	if out.Database.Driver == "postgres" && out.Database.DSN != "" {
		out.Database.DSN = redacted
	}
	return &out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
