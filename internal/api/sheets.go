package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/icetech/icetray/internal/catalogue"
	"github.com/icetech/icetray/internal/commissioning/sheetimport"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// SheetImportResponse is returned by POST /icecubes/import.
type SheetImportResponse struct {
	*sheetimport.Result

	// IceCube is set when the request asked for a build and it succeeded.
	IceCube *IceCubeView `json:"icecube,omitempty"`
}

// handleImportSheet parses an uploaded signal sheet (.xlsx or .csv).
//
// Form fields:
//   - file: the sheet (required)
//   - name: overrides the cube name
//   - build: "true" to build and store the parsed cube
func (s *Server) handleImportSheet(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(sheetimport.MaxFileSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge,
				fmt.Sprintf("file exceeds maximum size of %dMB", sheetimport.MaxFileSize>>20))
			return
		}
		writeBadRequest(w, "failed to parse multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeBadRequest(w, "missing required 'file' field in form data")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.logger.Error("sheet import: reading upload", "error", err)
		writeBadRequest(w, "failed to read uploaded file")
		return
	}

	build := false
	if v := r.FormValue("build"); v != "" {
		build, err = strconv.ParseBool(v)
		if err != nil {
			writeBadRequest(w, "build must be true or false")
			return
		}
	}

	parser := sheetimport.NewParser()
	if name := r.FormValue("name"); name != "" {
		parser = parser.WithName(name)
	}

	result, err := parser.ParseBytes(data, header.Filename)
	if err != nil {
		switch {
		case errors.Is(err, sheetimport.ErrFileTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, err.Error())
		case errors.Is(err, sheetimport.ErrUnsupportedFormat):
			writeError(w, http.StatusUnsupportedMediaType, ErrCodeUnsupportedType,
				"unsupported file type: expected .xlsx or .csv")
		case errors.Is(err, sheetimport.ErrInvalidFile), errors.Is(err, sheetimport.ErrMissingColumn):
			writeBadRequest(w, err.Error())
		default:
			s.logger.Error("sheet import failed", "error", err, "filename", header.Filename)
			writeInternalError(w, "failed to parse sheet")
		}
		return
	}

	s.logger.Info("sheet parsed",
		"filename", header.Filename,
		"format", result.Format,
		"name", result.Document.Name,
		"signals", len(result.Document.Signals),
		"warnings", len(result.Warnings),
	)

	resp := SheetImportResponse{Result: result}
	if !build {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	entry, err := s.registry.Build(r.Context(), result.Document, catalogue.SourceAPI)
	if err != nil {
		s.writeDomainError(w, err, "failed to build icecube")
		return
	}
	s.distribute(entry)

	view := newIceCubeView(entry)
	resp.IceCube = &view
	writeJSON(w, http.StatusCreated, resp)
}

// handleExportSheet returns a stored cube as an .xlsx workbook that
// handleImportSheet reads back unchanged.
func (s *Server) handleExportSheet(w http.ResponseWriter, r *http.Request) {
	entry, err := s.registry.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeDomainError(w, err, "failed to get icecube")
		return
	}

	data, err := sheetimport.ExportXLSX(entry.Device.Document())
	if err != nil {
		s.writeDomainError(w, err, "failed to export sheet")
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", entry.Name()+".xlsx"))
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(data)
}
