package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"assetgraph/asset"
	"assetgraph/graph"
	"assetgraph/yamlasset"
)

var reconcileDerived bool

var importCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Store asset documents",
	Long: `Store asset documents read from YAML files.

An asset that is already stored with the same id is replaced. Documents
are only rewritten when their content changed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

var listCmd = &cobra.Command{
	Use:   "list [pattern]",
	Short: "List stored assets",
	Long: `List stored assets, optionally filtered by a location pattern.

Examples:
  assetgraph list                 # Every asset
  assetgraph list 'props/*'       # Assets directly under props/
  assetgraph list '**/chair'      # Every asset named chair`,
	Args: cobra.MaximumNArgs(1),
	RunE: runList,
}

var showCmd = &cobra.Command{
	Use:   "show <location>",
	Short: "Print a stored asset",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <location>",
	Short: "Bring an asset up to date with its base",
	Long: `Load an asset with its archetype and reconcile it, so that every value
it does not override matches the base again. The result is stored.`,
	Args: cobra.ExactArgs(1),
	RunE: runReconcile,
}

var overridesCmd = &cobra.Command{
	Use:   "overrides <location>",
	Short: "List the overrides of an asset",
	Args:  cobra.ExactArgs(1),
	RunE:  runOverrides,
}

var resetCmd = &cobra.Command{
	Use:   "reset <location> [path]",
	Short: "Reset overrides to the base values",
	Long: `Drop the overrides of the node at path and everything below it, and take
the values of the base again. Without a path the whole asset is reset.

Examples:
  assetgraph reset levels/one/chair Name
  assetgraph reset levels/one/chair 'Strings{0a1b...}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runReset,
}

func runImport(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		a, err := yamlasset.Decode(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if a.Location == "" {
			a.Location = path
		}
		changed, err := db.Put(a)
		if err != nil {
			return err
		}
		status := "unchanged"
		if changed {
			status = "stored"
		}
		fmt.Printf("%-9s %s  %s\n", status, shortID(a.ID.String()), a.Location)
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	pattern := ""
	if len(args) == 1 {
		pattern = args[0]
	}
	entries, err := db.List(pattern)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No assets.")
		return nil
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-16s %s", shortID(e.ID.String()), e.Type, e.Location)
		if e.Archetype != uuid.Nil {
			line += "  <- " + shortID(e.Archetype.String())
		}
		fmt.Println(line)
	}
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	a, err := db.GetByLocation(args[0])
	if err != nil {
		return err
	}
	data, err := yamlasset.Encode(a)
	if err != nil {
		return err
	}
	fingerprint, err := yamlasset.Fingerprint(a)
	if err != nil {
		return err
	}
	fmt.Printf("# %s\n", fingerprint)
	os.Stdout.Write(data)
	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	w, err := newWorkspace(db)
	if err != nil {
		return err
	}

	g, err := w.loadLocation(args[0])
	if err != nil {
		return err
	}
	graphs := []*asset.PropertyGraph{g}
	if reconcileDerived {
		ids, err := db.Derived(g.Asset().ID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			dg, err := w.load(id)
			if err != nil {
				return err
			}
			graphs = append(graphs, dg)
		}
	}

	for _, g := range graphs {
		if err := g.ReconcileWithBase(); err != nil {
			return fmt.Errorf("reconciling %s: %w", g.Asset().Location, err)
		}
		changed, err := w.save(g)
		if err != nil {
			return err
		}
		status := "up to date"
		if changed {
			status = "updated"
		}
		fmt.Printf("%-10s %s\n", status, g.Asset().Location)
	}
	return nil
}

func runOverrides(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	w, err := newWorkspace(db)
	if err != nil {
		return err
	}

	g, err := w.loadLocation(args[0])
	if err != nil {
		return err
	}
	overrides := asset.GenerateOverridesForSerialization(g.RootNode())
	if overrides.Len() == 0 {
		fmt.Println("No overrides.")
		return nil
	}
	overrides.Each(func(p asset.Path, ov asset.OverrideType) {
		fmt.Printf("%-12s %s\n", ov, p)
	})
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	w, err := newWorkspace(db)
	if err != nil {
		return err
	}

	g, err := w.loadLocation(args[0])
	if err != nil {
		return err
	}
	var node asset.Node = g.RootNode()
	index := graph.EmptyIndex
	if len(args) == 2 {
		p, err := asset.ParsePath(args[1])
		if err != nil {
			return err
		}
		node, index, _, err = asset.ResolveObjectPath(g.RootNode(), p)
		if err != nil {
			return err
		}
		if node == nil {
			return fmt.Errorf("path %s does not exist in %s", p, g.Asset().Location)
		}
	}
	if err := g.ResetAllOverridesRecursively(node, index); err != nil {
		return err
	}
	changed, err := w.save(g)
	if err != nil {
		return err
	}
	if changed {
		fmt.Printf("reset %s\n", g.Asset().Location)
	} else {
		fmt.Printf("nothing to reset in %s\n", g.Asset().Location)
	}
	return nil
}
