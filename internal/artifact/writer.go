// Package artifact writes a built IceCube's files to disk.
//
// Each cube gets its own directory under the output root:
//
//	build/
//	  RPi1/
//	    icecube.db      EPICS database definition
//	    arduino.proto   StreamDevice protocol
//	    icecube.json    canonical document
//
// Files are written to a temporary name and renamed into place, so an IOC
// reading the directory never sees a half-written file.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/icetech/icetray/internal/document"
	"github.com/icetech/icetray/internal/icecube"
	"github.com/icetech/icetray/internal/infrastructure/config"
)

const (
	dirPermissions  = 0o755
	filePermissions = 0o644
)

// Artifact kinds, one file each.
const (
	KindDB       = "db"
	KindProto    = "proto"
	KindDocument = "document"
)

// ErrUnknownKind is returned by Store and Discard for an unrecognised kind.
var ErrUnknownKind = errors.New("artifact: unknown kind")

// Paths lists the files produced by one Write.
type Paths struct {
	Dir      string `json:"dir"`
	DB       string `json:"db"`
	Proto    string `json:"proto"`
	Document string `json:"document"`
}

// For returns the file holding the given artifact kind.
func (p Paths) For(kind string) (string, error) {
	switch kind {
	case KindDB:
		return p.DB, nil
	case KindProto:
		return p.Proto, nil
	case KindDocument:
		return p.Document, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Writer writes artifacts beneath a root directory.
type Writer struct {
	root      string
	dbFile    string
	protoFile string
	docFile   string
}

// NewWriter creates a Writer from the build section of the configuration.
func NewWriter(cfg config.BuildConfig) *Writer {
	return &Writer{
		root:      cfg.OutputDir,
		dbFile:    cfg.DBFile,
		protoFile: cfg.ProtoFile,
		docFile:   cfg.DocumentFile,
	}
}

// Root returns the output root directory.
func (w *Writer) Root() string { return w.root }

// PathsFor returns where Write would place dev's files.
func (w *Writer) PathsFor(name string) Paths {
	dir := filepath.Join(w.root, name)
	return Paths{
		Dir:      dir,
		DB:       filepath.Join(dir, w.dbFile),
		Proto:    filepath.Join(dir, w.protoFile),
		Document: filepath.Join(dir, w.docFile),
	}
}

// Write stores the DB text, protocol text and canonical JSON document of dev.
func (w *Writer) Write(dev *icecube.Device) (Paths, error) {
	paths := w.PathsFor(dev.Name())

	if err := os.MkdirAll(paths.Dir, dirPermissions); err != nil {
		return Paths{}, fmt.Errorf("creating artifact directory: %w", err)
	}

	docJSON, err := document.Marshal(dev.Document(), document.FormatJSON)
	if err != nil {
		return Paths{}, err
	}

	files := []struct {
		path string
		data []byte
	}{
		{paths.DB, []byte(dev.DBText())},
		{paths.Proto, []byte(dev.ProtoText())},
		{paths.Document, docJSON},
	}
	for _, f := range files {
		if err := WriteFileAtomic(f.path, f.data, filePermissions); err != nil {
			return Paths{}, err
		}
	}
	return paths, nil
}

// Remove deletes the artifact directory for name. A missing directory is
// not an error.
func (w *Writer) Remove(name string) error {
	if err := os.RemoveAll(w.PathsFor(name).Dir); err != nil {
		return fmt.Errorf("removing artifacts for %s: %w", name, err)
	}
	return nil
}

// Store writes a single artifact received from elsewhere (an MQTT
// publish) and returns its path. name must be a valid cube name.
func (w *Writer) Store(name, kind string, data []byte) (string, error) {
	if err := icecube.ValidateName(name); err != nil {
		return "", err
	}
	path, err := w.PathsFor(name).For(kind)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return "", fmt.Errorf("creating artifact directory: %w", err)
	}
	if err := WriteFileAtomic(path, data, filePermissions); err != nil {
		return "", err
	}
	return path, nil
}

// Discard removes a single artifact. A missing file is not an error.
func (w *Writer) Discard(name, kind string) error {
	if err := icecube.ValidateName(name); err != nil {
		return err
	}
	path, err := w.PathsFor(name).For(kind)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}

// WriteFileAtomic writes data to a temporary file in path's directory,
// syncs it, then renames it over path.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // No-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck // Already failing
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck // Already failing
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming into %s: %w", path, err)
	}
	return nil
}
