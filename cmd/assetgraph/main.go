// Package main provides the assetgraph CLI.
package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"assetgraph/asset"
	"assetgraph/internal/cfg"
	"assetgraph/internal/store"
	"assetgraph/value"
)

// Version is the current assetgraph CLI version
var Version = "0.1.0"

var (
	config          = cfg.FromEnv()
	dbPath          string
	definitionsPath string
	propagate       bool
	debug           bool
)

var rootCmd = &cobra.Command{
	Use:     "assetgraph",
	Short:   "assetgraph - derived assets with overrides",
	Long:    `assetgraph stores assets that derive from other assets, propagates base changes to them and keeps track of their local overrides.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debug {
			log.SetFlags(log.Ltime | log.Lmicroseconds)
		} else {
			log.SetOutput(io.Discard)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", config.DB, "Path to the asset database")
	rootCmd.PersistentFlags().StringVar(&definitionsPath, "definitions", "", "YAML file with asset kinds and object reference rules")
	rootCmd.PersistentFlags().BoolVar(&propagate, "propagate", config.Propagate, "Propagate base changes to derived assets")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", config.Debug, "Log diagnostics to stderr")

	reconcileCmd.Flags().BoolVar(&reconcileDerived, "derived", false, "Also reconcile the assets deriving from this one")

	rootCmd.AddCommand(importCmd, listCmd, showCmd, reconcileCmd, overridesCmd, resetCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openDB() (*store.DB, error) {
	return store.Open(dbPath, store.Options{
		BusyTimeout:      config.BusyTimeout,
		CompressionLevel: config.CompressionLevel,
	})
}

// workspace loads stored assets into a container, together with the assets
// they depend on.
type workspace struct {
	db      *store.DB
	c       *asset.Container
	loading map[uuid.UUID]bool
}

func newWorkspace(db *store.DB) (*workspace, error) {
	var reg *asset.Registry
	if definitionsPath != "" {
		var err error
		if reg, err = asset.LoadDefinitions(definitionsPath); err != nil {
			return nil, err
		}
	}
	c := asset.NewContainer(reg, log.Default())
	c.PropagateChangesFromBase = propagate
	return &workspace{db: db, c: c, loading: make(map[uuid.UUID]bool)}, nil
}

// loadLocation initializes the asset stored at location.
func (w *workspace) loadLocation(location string) (*asset.PropertyGraph, error) {
	a, err := w.db.GetByLocation(location)
	if err != nil {
		return nil, err
	}
	return w.init(a)
}

func (w *workspace) load(id uuid.UUID) (*asset.PropertyGraph, error) {
	if g := w.c.TryGetGraph(id); g != nil {
		return g, nil
	}
	a, err := w.db.Get(id)
	if err != nil {
		return nil, err
	}
	return w.init(a)
}

func (w *workspace) init(a *asset.Asset) (*asset.PropertyGraph, error) {
	if g := w.c.TryGetGraph(a.ID); g != nil {
		return g, nil
	}
	if w.loading[a.ID] {
		return nil, fmt.Errorf("asset %s depends on itself", a.Location)
	}
	w.loading[a.ID] = true
	defer delete(w.loading, a.ID)

	for _, dep := range dependencies(a) {
		if _, err := w.load(dep); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				log.Printf("asset %s: dependency %s not stored", a.Location, dep)
				continue
			}
			return nil, err
		}
	}
	g, err := w.c.InitializeAsset(a)
	if err != nil {
		return nil, fmt.Errorf("initializing %s: %w", a.Location, err)
	}
	return g, nil
}

// save stores the asset of g with its current override information.
func (w *workspace) save(g *asset.PropertyGraph) (bool, error) {
	a := g.Asset()
	if err := g.PrepareForSave(a); err != nil {
		return false, err
	}
	return w.db.Put(a)
}

// dependencies returns the archetype of a and every other asset its content
// refers to.
func dependencies(a *asset.Asset) []uuid.UUID {
	seen := map[uuid.UUID]bool{a.ID: true}
	var out []uuid.UUID
	add := func(id uuid.UUID) {
		if id != uuid.Nil && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	if a.Archetype != nil {
		add(a.Archetype.ID)
	}
	value.Walk(a.Root, func(v any) {
		if ref, ok := v.(value.ContentRef); ok {
			add(ref.ID)
		}
	})
	return out
}

// shortID safely truncates an ID string to 12 characters.
func shortID(s string) string {
	if len(s) >= 12 {
		return s[:12]
	}
	return s
}
