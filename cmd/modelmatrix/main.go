// Command modelmatrix prints how the model catalog classifies into
// generation types, and the recommendation order for each type.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"genstudio/internal/catalog"
	"genstudio/internal/domain"
	"genstudio/internal/resolver"
)

type typeRow struct {
	Type        domain.GenerationType `json:"generation_type" yaml:"generation_type"`
	Models      []string              `json:"models" yaml:"models"`
	Recommended []string              `json:"recommended" yaml:"recommended"`
}

func main() {
	var (
		pathFlag   string
		formatFlag string
		limitFlag  int
	)
	flag.StringVar(&pathFlag, "catalog", os.Getenv("MODEL_CATALOG_PATH"), "catalog file (default: built-in catalog)")
	flag.StringVar(&formatFlag, "format", "table", "output format: table, json or yaml")
	flag.IntVar(&limitFlag, "limit", 3, "recommendations per type (0 for all)")
	flag.Parse()

	cat, err := load(pathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load catalog: %v\n", err)
		os.Exit(1)
	}
	rows := matrix(resolver.New(cat), limitFlag)

	switch strings.ToLower(formatFlag) {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(rows)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		err = enc.Encode(rows)
	case "table":
		err = writeTable(os.Stdout, rows)
	default:
		err = fmt.Errorf("unknown format %q", formatFlag)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func load(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

func matrix(r *resolver.Resolver, limit int) []typeRow {
	rows := make([]typeRow, 0, len(domain.GenerationTypes))
	for _, t := range domain.GenerationTypes {
		rows = append(rows, typeRow{
			Type:        t,
			Models:      ids(r.ModelsFor(t)),
			Recommended: ids(r.Recommend(t, limit)),
		})
	}
	return rows
}

func ids(models []domain.ModelDescriptor) []string {
	out := make([]string, 0, len(models))
	for _, m := range models {
		out = append(out, m.ID)
	}
	return out
}

func writeTable(w io.Writer, rows []typeRow) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tMODELS\tRECOMMENDED")
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", row.Type, joinOrDash(row.Models), joinOrDash(row.Recommended))
	}
	return tw.Flush()
}

func joinOrDash(ids []string) string {
	if len(ids) == 0 {
		return "-"
	}
	return strings.Join(ids, ", ")
}
