// Package catalogue stores built IceCubes and their build history.
//
// The Registry is the entry point for every surface that builds cubes (CLI,
// HTTP API, MQTT deploy). It validates a Document through the icecube
// package, persists the resulting Device through a Repository and tells
// registered BuildObservers (metrics, telemetry) about each outcome.
//
//	repo := catalogue.NewSQLiteRepository(db.DB)
//	reg := catalogue.NewRegistry(repo, cfg.Build.TargetFile)
//	reg.SetLogger(logger)
//	if err := reg.RefreshCache(ctx); err != nil {
//	    return err
//	}
//	entry, err := reg.Build(ctx, doc, catalogue.SourceAPI)
//
// A cube is keyed by name: building a document whose name already exists
// replaces the stored cube and keeps its ID.
package catalogue
