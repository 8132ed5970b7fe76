package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opensight-project/opensight/emit"
	"github.com/opensight-project/opensight/importer"
	"github.com/opensight-project/opensight/manager"
	"github.com/opensight-project/opensight/opsierr"
	"github.com/opensight-project/opensight/pipeline"
	"github.com/opensight-project/opensight/store"
)

// Lifecycle is the subset of Lifespan behavior the HTTP layer drives,
// mirroring api.py's self.program.lifespan calls. httpapi depends only on
// this narrow interface, not the lifespan package, so lifespan (which
// mounts this router) never creates an import cycle.
type Lifecycle interface {
	// Shutdown stops the runtime gracefully. If restart is true, the
	// request is recorded as a restart; the process still exits, and
	// relaunching it is left to whatever runs the process.
	Shutdown(ctx context.Context, restart bool) error

	// ShutdownHost stops the runtime and, if restart is true, reboots the
	// host OS afterward. The core does not implement host reboot itself
	// (spec.md §1 places OS integration out of scope); Lifecycle
	// implementations delegate to an external collaborator.
	ShutdownHost(ctx context.Context, restart bool) error
}

// Server is the reference HTTP/JSON binding over the core: it holds no
// pipeline state of its own, only references to the components whose
// interfaces spec.md §6 names.
type Server struct {
	Manager     *manager.Manager
	Pipeline    *pipeline.Pipeline
	Importer    *importer.Importer
	Persistence *store.Persistence
	History     *store.History // optional; nil disables GET /api/history
	Lifecycle   Lifecycle       // optional; nil makes lifecycle routes 501

	Emitter emit.Emitter

	Version    string
	DaemonMode bool
}

// Router builds the chi router serving every route named in spec.md §6,
// plus each registered module's /hooks/<package> sub-application (§4.5).
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Get("/funcs", s.handleGetFuncs)
		r.Get("/nodes", s.handleGetNodes)
		r.Post("/nodes", s.handlePostNodes)
		r.Get("/config", s.handleGetConfig)
		r.Post("/profile", s.handlePostProfile)
		r.Post("/network", s.handlePostNetwork)
		r.Post("/calibration", s.handlePostCalibration)
		r.Get("/history", s.handleGetHistory)
		r.Post("/shutdown", s.handlePostShutdown)
		r.Post("/restart", s.handlePostRestart)
		r.Post("/shutdown-host", s.handlePostShutdownHost)
		r.Post("/restart-host", s.handlePostRestartHost)
		r.Post("/upgrade", s.handlePostUpgrade)
	})

	for pkg, bus := range s.Manager.Hooks() {
		if sub := bus.SubApp(); sub != nil {
			r.Mount("/hooks/"+pkg, sub)
		}
	}

	return r
}

func (s *Server) emit(msg string, meta map[string]interface{}) {
	if s.Emitter == nil {
		return
	}
	s.Emitter.Emit(emit.Event{Msg: msg, Meta: meta})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// importErrorBody is the 400 response shape spec.md §6 specifies:
// {error, node, type, message, traceback?}.
type importErrorBody struct {
	Error      string `json:"error"`
	Node       string `json:"node,omitempty"`
	Type       string `json:"type,omitempty"`
	Message    string `json:"message"`
	Traceback  string `json:"traceback,omitempty"`
}

func writeImportError(w http.ResponseWriter, err error) {
	body := importErrorBody{Error: "Invalid Nodetree", Message: err.Error()}
	var impErr *opsierr.ImportError
	if errors.As(err, &impErr) {
		body.Node = impErr.NodeID
		body.Type = impErr.FuncType
		body.Message = impErr.Message
	}
	writeJSON(w, http.StatusBadRequest, body)
}

// --- /api/funcs -----------------------------------------------------------

func (s *Server) handleGetFuncs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, exportCatalog(s.Manager))
}

// --- /api/nodes -------------------------------------------------------------

func (s *Server) handleGetNodes(w http.ResponseWriter, r *http.Request) {
	prefs := s.Persistence.LoadPreferences()
	tree := s.Persistence.LoadNodeTree(prefs.Profile)
	writeJSON(w, http.StatusOK, tree)
}

func (s *Server) handlePostNodes(w http.ResponseWriter, r *http.Request) {
	forceSave := r.URL.Query().Get("force_save") == "true"

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, importErrorBody{Error: "Invalid Nodetree", Message: "failed to read request body"})
		return
	}

	wire, err := fromWireBytes(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, importErrorBody{Error: "Invalid Nodetree", Message: err.Error()})
		return
	}

	spec, err := wire.toImporterSpec()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, importErrorBody{Error: "Invalid Nodetree", Message: err.Error()})
		return
	}

	_, applyErr := s.Importer.Apply(r.Context(), spec, forceSave)
	s.emit("api_import", map[string]interface{}{"ok": applyErr == nil, "force_save": forceSave})

	if s.History != nil {
		msg := "accepted"
		if applyErr != nil {
			msg = applyErr.Error()
		}
		_ = s.History.RecordImport(r.Context(), applyErr == nil, msg)
	}

	if applyErr != nil {
		// force_save persists the rejected tree anyway so it can be
		// corrected out-of-band, per spec.md §4.4 step 7.
		if forceSave {
			prefs := s.Persistence.LoadPreferences()
			_ = s.Persistence.SaveNodeTree(prefs.Profile, toNodeTreeJSON(body))
		}
		writeImportError(w, applyErr)
		return
	}

	prefs := s.Persistence.LoadPreferences()
	_ = s.Persistence.SaveNodeTree(prefs.Profile, toNodeTreeJSON(body))
	writeJSON(w, http.StatusOK, wire)
}

func toNodeTreeJSON(body []byte) store.NodeTreeJSON {
	var raw struct {
		Nodes []json.RawMessage `json:"nodes"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return store.NodeTreeJSON{}
	}
	return store.NodeTreeJSON{Nodes: raw.Nodes}
}

// --- /api/config ------------------------------------------------------------

type configResponse struct {
	Version      string   `json:"version"`
	DaemonMode   bool     `json:"daemonMode"`
	NetworkModes []string `json:"networkModes"`
	Preferences  store.Preferences `json:"preferences"`
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, configResponse{
		Version:      s.Version,
		DaemonMode:   s.DaemonMode,
		NetworkModes: []string{"mDNS", "Static", "Localhost"},
		Preferences:  s.Persistence.LoadPreferences(),
	})
}

// --- /api/profile -----------------------------------------------------------

func (s *Server) handlePostProfile(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("profile")
	profile, err := strconv.Atoi(raw)
	if err != nil || profile < 0 || profile >= store.ProfileCount {
		http.Error(w, "profile must be an integer in [0,10)", http.StatusBadRequest)
		return
	}

	prefs := s.Persistence.LoadPreferences()
	prefs.Profile = profile
	if err := s.Persistence.SavePreferences(prefs); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := s.LoadStoredProfile(r.Context(), profile); err != nil {
		writeImportError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"profile": profile})
}

// LoadStoredProfile reads profile's persisted nodetree and applies it to
// the live Pipeline via the Importer, the same path POST /api/profile
// drives a running server through. cmd/opensight calls this once at
// startup to bring the Pipeline up to the last-saved configuration before
// the Evaluator's first pass, mirroring Program's initial
// import_nodetree(persistence.nodetree) call.
func (s *Server) LoadStoredProfile(ctx context.Context, profile int) error {
	tree := s.Persistence.LoadNodeTree(profile)
	wire := nodeTreeWire{}
	if len(tree.Nodes) > 0 {
		data, err := json.Marshal(tree)
		if err != nil {
			return err
		}
		wire, err = fromWireBytes(data)
		if err != nil {
			return err
		}
	}
	spec, err := wire.toImporterSpec()
	if err != nil {
		return err
	}
	_, err = s.Importer.Apply(ctx, spec, false)
	return err
}

// --- /api/network -----------------------------------------------------------

func (s *Server) handlePostNetwork(w http.ResponseWriter, r *http.Request) {
	var net store.Network
	if err := json.NewDecoder(r.Body).Decode(&net); err != nil {
		http.Error(w, "invalid network body", http.StatusBadRequest)
		return
	}
	if err := net.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	prefs := s.Persistence.LoadPreferences()
	prefs.Network = net
	if err := s.Persistence.SavePreferences(prefs); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, net)
}

// --- /api/calibration -------------------------------------------------------

func (s *Server) handlePostCalibration(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing calibration file field \"file\"", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read uploaded file", http.StatusBadRequest)
		return
	}

	name := header.Filename
	if ext := len(name) - len(".yaml"); ext > 0 && name[ext:] == ".yaml" {
		name = name[:ext]
	}

	if err := s.Persistence.SaveCalibration(name, data); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"name": name})
}

// --- /api/history (debug route, supplemented per SPEC_FULL.md §3) ----------

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		http.Error(w, "history not enabled", http.StatusNotFound)
		return
	}
	recs, err := s.History.RecentImports(r.Context(), 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// --- lifecycle routes ---------------------------------------------------

func (s *Server) handlePostShutdown(w http.ResponseWriter, r *http.Request) {
	s.runLifecycle(w, r, false, false)
}

func (s *Server) handlePostRestart(w http.ResponseWriter, r *http.Request) {
	s.runLifecycle(w, r, true, false)
}

func (s *Server) handlePostShutdownHost(w http.ResponseWriter, r *http.Request) {
	s.runLifecycle(w, r, false, true)
}

func (s *Server) handlePostRestartHost(w http.ResponseWriter, r *http.Request) {
	s.runLifecycle(w, r, true, true)
}

func (s *Server) runLifecycle(w http.ResponseWriter, r *http.Request, restart, host bool) {
	if s.Lifecycle == nil {
		http.Error(w, "lifecycle control not available", http.StatusNotImplemented)
		return
	}

	s.emit("api_lifecycle", map[string]interface{}{"restart": restart, "host": host})

	var err error
	if host {
		err = s.Lifecycle.ShutdownHost(r.Context(), restart)
	} else {
		err = s.Lifecycle.Shutdown(r.Context(), restart)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handlePostUpgrade stages an uploaded tarball and triggers shutdown, per
// spec.md §6. Host package installation is OS integration (spec.md §1
// Non-goals); this handler only persists the archive bytes somewhere the
// external upgrade collaborator can find them and defers to Lifecycle to
// actually stop the process.
func (s *Server) handlePostUpgrade(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(256 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing upgrade archive field \"file\"", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if _, err := io.Copy(io.Discard, file); err != nil {
		http.Error(w, "failed to read uploaded archive", http.StatusBadRequest)
		return
	}

	if s.Lifecycle == nil {
		http.Error(w, "lifecycle control not available", http.StatusNotImplemented)
		return
	}
	if err := s.Lifecycle.Shutdown(r.Context(), false); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
