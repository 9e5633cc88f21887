package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/icetech/icetray/internal/catalogue"
	"github.com/icetech/icetray/internal/document"
	"github.com/icetech/icetray/internal/icecube"
)

// defaultBuildHistoryLimit applies when /builds has no limit parameter.
const defaultBuildHistoryLimit = 50

// SignalView describes one signal of a built cube.
type SignalView struct {
	Name         string `json:"name"`
	Direction    string `json:"direction"`
	RecordType   string `json:"record_type"`
	ControlPoint string `json:"control_point"`
	ScanRate     string `json:"scan_rate,omitempty"`
	Tag          string `json:"tag"`
}

// IceCubeView is the detailed representation of a stored cube.
type IceCubeView struct {
	catalogue.Summary
	Signals  []SignalView     `json:"signals"`
	Document icecube.Document `json:"document"`
}

// ValidationResponse is returned by POST /icecubes/validate.
type ValidationResponse struct {
	Valid      bool   `json:"valid"`
	Name       string `json:"name"`
	ReadCount  int    `json:"read_count,omitempty"`
	WriteCount int    `json:"write_count,omitempty"`
	DB         string `json:"db,omitempty"`
	Proto      string `json:"proto,omitempty"`
	Error      string `json:"error,omitempty"`
}

func newIceCubeView(e *catalogue.Entry) IceCubeView {
	sigs := e.Device.Signals()
	views := make([]SignalView, 0, len(sigs))
	for i, sig := range sigs {
		tag, _ := icecube.TagFor(i) // built devices never exceed the alphabet
		views = append(views, SignalView{
			Name:         sig.Name(),
			Direction:    string(sig.Direction()),
			RecordType:   sig.RecordType(),
			ControlPoint: sig.ControlPointName(),
			ScanRate:     sig.ScanRate(),
			Tag:          string(tag),
		})
	}
	return IceCubeView{
		Summary:  e.Summary(),
		Signals:  views,
		Document: e.Device.Document(),
	}
}

// requestFormat picks the document codec from Content-Type; JSON unless
// the client sends YAML.
func requestFormat(r *http.Request) document.Format {
	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		return document.FormatYAML
	}
	return document.FormatJSON
}

// handleListIceCubes returns a summary of every stored cube.
func (s *Server) handleListIceCubes(w http.ResponseWriter, r *http.Request) {
	entries, err := s.registry.List(r.Context())
	if err != nil {
		s.writeDomainError(w, err, "failed to list icecubes")
		return
	}

	summaries := make([]catalogue.Summary, 0, len(entries))
	for i := range entries {
		summaries = append(summaries, entries[i].Summary())
	}
	writeJSON(w, http.StatusOK, map[string]any{"icecubes": summaries, "count": len(summaries)})
}

// handleBuildIceCube builds and stores the cube described by the request
// body (JSON, or YAML with a yaml Content-Type). An existing cube with the
// same name is replaced.
func (s *Server) handleBuildIceCube(w http.ResponseWriter, r *http.Request) {
	doc, err := document.Decode(r.Body, requestFormat(r))
	if err != nil {
		s.writeDomainError(w, err, "failed to read document")
		return
	}

	entry, err := s.registry.Build(r.Context(), doc, catalogue.SourceAPI)
	if err != nil {
		s.writeDomainError(w, err, "failed to build icecube")
		return
	}

	s.distribute(entry)
	writeJSON(w, http.StatusCreated, newIceCubeView(entry))
}

// distribute writes and publishes a freshly built cube. Failures are logged;
// the cube is already stored.
func (s *Server) distribute(entry *catalogue.Entry) {
	if s.writer != nil {
		if _, err := s.writer.Write(entry.Device); err != nil {
			s.logger.Error("writing artifacts", "name", entry.Name(), "error", err)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(entry.Device); err != nil {
			s.logger.Warn("publishing artifacts", "name", entry.Name(), "error", err)
		}
	}
}

// handleValidateIceCube test-builds the request document without storing
// it. An invalid document is a successful check: 200 with valid=false.
func (s *Server) handleValidateIceCube(w http.ResponseWriter, r *http.Request) {
	doc, err := document.Decode(r.Body, requestFormat(r))
	if err != nil {
		s.writeDomainError(w, err, "failed to read document")
		return
	}

	dev, err := s.registry.Check(doc)
	if err != nil {
		if !icecube.IsValidationError(err) {
			s.writeDomainError(w, err, "failed to check icecube")
			return
		}
		writeJSON(w, http.StatusOK, ValidationResponse{Name: doc.Name, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, ValidationResponse{
		Valid:      true,
		Name:       dev.Name(),
		ReadCount:  dev.CountRead(),
		WriteCount: dev.CountWrite(),
		DB:         dev.DBText(),
		Proto:      dev.ProtoText(),
	})
}

// handleGetIceCube returns a stored cube with its signals and document.
func (s *Server) handleGetIceCube(w http.ResponseWriter, r *http.Request) {
	entry, err := s.registry.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeDomainError(w, err, "failed to get icecube")
		return
	}
	writeJSON(w, http.StatusOK, newIceCubeView(entry))
}

// handleDeleteIceCube removes a cube, its artifact files and its retained
// MQTT artifacts. Build history is kept.
func (s *Server) handleDeleteIceCube(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := s.registry.Delete(r.Context(), name); err != nil {
		s.writeDomainError(w, err, "failed to delete icecube")
		return
	}

	if s.writer != nil {
		if err := s.writer.Remove(name); err != nil {
			s.logger.Error("removing artifacts", "name", name, "error", err)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Retract(name); err != nil {
			s.logger.Warn("retracting artifacts", "name", name, "error", err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleGetDB returns the generated record database as text.
func (s *Server) handleGetDB(w http.ResponseWriter, r *http.Request) {
	entry, err := s.registry.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeDomainError(w, err, "failed to get icecube")
		return
	}
	writeText(w, entry.Device.DBText())
}

// handleGetProto returns the generated protocol file as text.
func (s *Server) handleGetProto(w http.ResponseWriter, r *http.Request) {
	entry, err := s.registry.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeDomainError(w, err, "failed to get icecube")
		return
	}
	writeText(w, entry.Device.ProtoText())
}

// handleGetDocument returns the canonical document; ?format=yaml for YAML.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	format := document.FormatJSON
	if v := r.URL.Query().Get("format"); v != "" {
		f, err := document.ParseFormat(v)
		if err != nil {
			s.writeDomainError(w, err, "failed to encode document")
			return
		}
		format = f
	}

	entry, err := s.registry.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeDomainError(w, err, "failed to get icecube")
		return
	}

	data, err := document.Marshal(entry.Device.Document(), format)
	if err != nil {
		s.writeDomainError(w, err, "failed to encode document")
		return
	}

	contentType := "application/json"
	if format == document.FormatYAML {
		contentType = "application/yaml"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(data)
}

// handleListBuilds returns recent builds of a cube, newest first.
// Query parameters:
//   - limit: maximum number of records (default 50, 0 for all)
func (s *Server) handleListBuilds(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	limit := defaultBuildHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	builds, err := s.registry.History(r.Context(), name, limit)
	if err != nil {
		s.writeDomainError(w, err, "failed to list builds")
		return
	}
	if builds == nil {
		builds = []catalogue.BuildRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "builds": builds, "count": len(builds)})
}
