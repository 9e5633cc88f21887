package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/icetech/icetray/internal/document"
	"github.com/icetech/icetray/internal/icecube"
	"github.com/icetech/icetray/internal/infrastructure/config"
)

func testWriter(t *testing.T) *Writer {
	t.Helper()
	cfg := config.Default().Build
	cfg.OutputDir = filepath.Join(t.TempDir(), "out")
	return NewWriter(cfg)
}

func rpi1(t *testing.T) *icecube.Device {
	t.Helper()
	dev, err := icecube.FromDocument(icecube.Document{
		Name: "RPi1",
		Signals: []icecube.SignalDescriptor{
			{Name: "photoresistor1", RW: "R", ScanRate: "1 second"},
			{Name: "led1", RW: "W"},
		},
	})
	if err != nil {
		t.Fatalf("FromDocument() error = %v", err)
	}
	return dev
}

func TestWriter_Write(t *testing.T) {
	w := testWriter(t)
	dev := rpi1(t)

	paths, err := w.Write(dev)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if filepath.Base(paths.DB) != "icecube.db" || filepath.Base(paths.Proto) != "arduino.proto" {
		t.Errorf("paths = %+v", paths)
	}
	if paths.Dir != filepath.Join(w.Root(), "RPi1") {
		t.Errorf("Dir = %q", paths.Dir)
	}

	db, err := os.ReadFile(paths.DB)
	if err != nil {
		t.Fatalf("reading db: %v", err)
	}
	if string(db) != dev.DBText() {
		t.Errorf("db file content differs from DBText()")
	}

	proto, err := os.ReadFile(paths.Proto)
	if err != nil {
		t.Fatalf("reading proto: %v", err)
	}
	if string(proto) != dev.ProtoText() {
		t.Errorf("proto file content differs from ProtoText()")
	}

	doc, err := document.LoadFile(paths.Document)
	if err != nil {
		t.Fatalf("LoadFile(document) error = %v", err)
	}
	if !doc.Equivalent(dev.Document()) {
		t.Errorf("document = %+v", doc)
	}
}

func TestWriter_WriteOverwritesAndLeavesNoTempFiles(t *testing.T) {
	w := testWriter(t)
	dev := rpi1(t)

	if _, err := w.Write(dev); err != nil {
		t.Fatalf("first Write() error = %v", err)
	}
	paths, err := w.Write(dev)
	if err != nil {
		t.Fatalf("second Write() error = %v", err)
	}

	entries, err := os.ReadDir(paths.Dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory holds %v, want exactly 3 artifacts", names)
	}
}

func TestWriter_Remove(t *testing.T) {
	w := testWriter(t)
	paths, err := w.Write(rpi1(t))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Remove("RPi1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(paths.Dir); !os.IsNotExist(err) {
		t.Errorf("artifact directory still present: %v", err)
	}
	if err := w.Remove("RPi1"); err != nil {
		t.Errorf("Remove() of missing directory error = %v", err)
	}
}

func TestWriter_StoreAndDiscard(t *testing.T) {
	w := testWriter(t)

	path, err := w.Store("RPi2", KindProto, []byte("Terminator = LF;\n"))
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if path != w.PathsFor("RPi2").Proto {
		t.Errorf("Store() path = %q, want %q", path, w.PathsFor("RPi2").Proto)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "Terminator = LF;\n" {
		t.Errorf("stored content = %q", got)
	}

	if err := w.Discard("RPi2", KindProto); err != nil {
		t.Fatalf("Discard() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("artifact still present: %v", err)
	}
	if err := w.Discard("RPi2", KindProto); err != nil {
		t.Errorf("Discard() of missing file error = %v", err)
	}
}

func TestWriter_StoreRejects(t *testing.T) {
	w := testWriter(t)

	tests := []struct {
		name    string
		cube    string
		kind    string
		wantErr error
	}{
		{"unknown kind", "RPi1", "firmware", ErrUnknownKind},
		{"parent directory", "..", KindDB, icecube.ErrInvalidName},
		{"empty name", "", KindDB, icecube.ErrInvalidName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := w.Store(tt.cube, tt.kind, []byte("x")); !errors.Is(err, tt.wantErr) {
				t.Errorf("Store() error = %v, want %v", err, tt.wantErr)
			}
			if err := w.Discard(tt.cube, tt.kind); !errors.Is(err, tt.wantErr) {
				t.Errorf("Discard() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.txt")
	if err := WriteFileAtomic(path, []byte("one"), 0o600); err != nil {
		t.Fatalf("WriteFileAtomic() error = %v", err)
	}
	if err := WriteFileAtomic(path, []byte("two"), 0o600); err != nil {
		t.Fatalf("WriteFileAtomic() overwrite error = %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "two" {
		t.Errorf("content = %q, want two", got)
	}

	if err := WriteFileAtomic(filepath.Join(t.TempDir(), "missing", "x.txt"), nil, 0o600); err == nil {
		t.Error("WriteFileAtomic() into a missing directory should fail")
	}
}

var linkRe = regexp.MustCompile(`@(\S+) (\w+)\(\) \$\(PORT\)`)

func TestWriter_RecordsLinkWrittenProtocol(t *testing.T) {
	cfg := config.Default().Build
	cfg.OutputDir = filepath.Join(t.TempDir(), "out")
	w := NewWriter(cfg)

	dev, err := icecube.FromDocument(rpi1(t).Document(), icecube.WithTargetFile(cfg.TargetFile))
	if err != nil {
		t.Fatalf("FromDocument() error = %v", err)
	}
	paths, err := w.Write(dev)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	proto, err := os.ReadFile(paths.Proto)
	if err != nil {
		t.Fatalf("reading proto: %v", err)
	}

	links := linkRe.FindAllStringSubmatch(dev.DBText(), -1)
	if len(links) != dev.CountAll() {
		t.Fatalf("found %d links in %q, want %d", len(links), dev.DBText(), dev.CountAll())
	}
	for _, l := range links {
		if l[1] != filepath.Base(paths.Proto) {
			t.Errorf("record links %q, protocol written to %q", l[1], filepath.Base(paths.Proto))
		}
		if !regexp.MustCompile(`(?m)^` + l[2] + ` \{`).Match(proto) {
			t.Errorf("protocol file has no function %s", l[2])
		}
	}
}
