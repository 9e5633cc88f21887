package main

import (
	"context"
	"fmt"
	"os"

	"github.com/icetech/icetray/internal/artifact"
	"github.com/icetech/icetray/internal/catalogue"
	"github.com/icetech/icetray/internal/commissioning/sheetimport"
	"github.com/icetech/icetray/internal/document"
	"github.com/icetech/icetray/internal/icecube"
	"github.com/icetech/icetray/internal/infrastructure/config"
	"github.com/icetech/icetray/internal/infrastructure/database"
	"github.com/icetech/icetray/internal/infrastructure/logging"
	"github.com/icetech/icetray/internal/metrics"
)

// runBuild builds a document, stores it in the catalogue and writes its
// artifacts. A rejected document is recorded in the build history and
// reported as an error.
func runBuild(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("build", "<doc.json|doc.yaml>")
	outDir := fs.String("o", "", "output directory (overrides build.output_dir)")
	pos, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if *outDir != "" {
		cfg.Build.OutputDir = *outDir
	}
	log := logging.New(cfg.Logging, version)

	doc, err := document.LoadFile(pos[0])
	if err != nil {
		return err
	}

	db, registry, err := openCatalogue(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	collector := metrics.New()
	registry.AddObserver(collector)

	entry, buildErr := registry.Build(ctx, doc, catalogue.SourceCLI)

	if cfg.Metrics.Textfile != "" {
		if err := collector.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			log.Warn("writing metrics textfile", "path", cfg.Metrics.Textfile, "error", err)
		}
	}
	if buildErr != nil {
		return fmt.Errorf("%s: %w", pos[0], buildErr)
	}

	paths, err := artifact.NewWriter(cfg.Build).Write(entry.Device)
	if err != nil {
		return err
	}

	dev := entry.Device
	fmt.Fprintf(a.stdout, "built %s: %d read, %d write signals\n", dev.Name(), dev.CountRead(), dev.CountWrite())
	fmt.Fprintf(a.stdout, "  %s\n  %s\n  %s\n", paths.DB, paths.Proto, paths.Document)
	return nil
}

// runCheck test-builds a document. Nothing is stored or written.
func runCheck(_ context.Context, a *app, args []string) error {
	fs := a.newFlagSet("check", "<doc.json|doc.yaml>")
	printText := fs.Bool("print", false, "print the generated database and protocol text")
	pos, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	doc, err := document.LoadFile(pos[0])
	if err != nil {
		return err
	}

	dev, err := icecube.FromDocument(doc, icecube.WithTargetFile(cfg.Build.TargetFile))
	if err != nil {
		return fmt.Errorf("%s: %w", pos[0], err)
	}

	fmt.Fprintf(a.stdout, "ok %s: %d read, %d write signals\n", dev.Name(), dev.CountRead(), dev.CountWrite())
	if *printText {
		fmt.Fprintf(a.stdout, "\n# %s\n%s\n# %s\n%s", cfg.Build.DBFile, dev.DBText(), cfg.Build.ProtoFile, dev.ProtoText())
	}
	return nil
}

// runImport converts a signal sheet to a document on stdout or in a file.
// Parse warnings go to stderr.
func runImport(_ context.Context, a *app, args []string) error {
	fs := a.newFlagSet("import", "<sheet.xlsx|sheet.csv>")
	name := fs.String("name", "", "cube name (default: from the sheet or file name)")
	out := fs.String("o", "", "output document; format from extension (default: JSON on stdout)")
	pos, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(pos[0])
	if err != nil {
		return fmt.Errorf("reading sheet: %w", err)
	}

	parser := sheetimport.NewParser()
	if *name != "" {
		parser = parser.WithName(*name)
	}
	result, err := parser.ParseBytes(data, pos[0])
	if err != nil {
		return fmt.Errorf("%s: %w", pos[0], err)
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(a.stderr, "warning: row %d: %s\n", w.Row, w.Message)
	}

	if *out == "" {
		return document.Encode(a.stdout, result.Document, document.FormatJSON)
	}

	format, err := document.FormatForPath(*out)
	if err != nil {
		return err
	}
	encoded, err := document.Marshal(result.Document, format)
	if err != nil {
		return err
	}
	if err := artifact.WriteFileAtomic(*out, encoded, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "imported %s: %d signals -> %s\n", result.Document.Name, len(result.Document.Signals), *out)
	return nil
}

// runExport writes a document out as an .xlsx signal sheet.
func runExport(_ context.Context, a *app, args []string) error {
	fs := a.newFlagSet("export", "<doc.json|doc.yaml> <sheet.xlsx>")
	pos, err := parseArgs(fs, args, 2)
	if err != nil {
		return err
	}

	doc, err := document.LoadFile(pos[0])
	if err != nil {
		return err
	}

	data, err := sheetimport.ExportXLSX(doc)
	if err != nil {
		return err
	}
	if err := artifact.WriteFileAtomic(pos[1], data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "exported %s: %d signals -> %s\n", doc.Name, len(doc.Signals), pos[1])
	return nil
}

// openCatalogue opens and migrates the database and loads the registry.
func openCatalogue(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, *catalogue.Registry, error) {
	db, err := database.Open(database.ConfigFrom(cfg.Database))
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // Already returning the migration error
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	registry := catalogue.NewRegistry(catalogue.NewSQLiteRepository(db.DB), cfg.Build.TargetFile)
	registry.SetLogger(log)
	if err := registry.RefreshCache(ctx); err != nil {
		db.Close() //nolint:errcheck // Already returning the refresh error
		return nil, nil, fmt.Errorf("loading icecube registry: %w", err)
	}
	return db, registry, nil
}
