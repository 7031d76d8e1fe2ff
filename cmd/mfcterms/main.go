// Command mfcterms prints the search terms of one MFC catalog page and,
// optionally, the segmentation of a query against the page dictionary.
//
// Usage:
//
//	go run ./cmd/mfcterms -file item.html [-q "初音ミク フィギュア"] [-json]
//	go run ./cmd/mfcterms -url https://myfigurecollection.net/item/1 [-config configs/development.yaml]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mfc-shop/mfc-shop/internal/fetch"
	"github.com/mfc-shop/mfc-shop/internal/merchant"
	"github.com/mfc-shop/mfc-shop/internal/page"
	"github.com/mfc-shop/mfc-shop/internal/query"
	"github.com/mfc-shop/mfc-shop/internal/shop"
	"github.com/mfc-shop/mfc-shop/internal/terms"
	"github.com/mfc-shop/mfc-shop/pkg/config"
	"github.com/mfc-shop/mfc-shop/pkg/logger"
)

func main() {
	file := flag.String("file", "", "saved catalog page; - reads stdin")
	pageURL := flag.String("url", "", "catalog page to download instead of -file")
	configPath := flag.String("config", "", "path to config file")
	q := flag.String("q", "", "query to segment against the page dictionary")
	asJSON := flag.Bool("json", false, "print JSON instead of text")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.SetupWriter(os.Stderr, cfg.Logging.Level, "text")

	doc, err := load(cfg, *file, *pageURL)
	if err != nil {
		slog.Error("page not loaded", "error", err)
		os.Exit(1)
	}

	section, err := shop.Augment(doc, merchant.Default(cfg.Merchants))
	if err != nil {
		slog.Error("terms not extracted", "error", err)
		os.Exit(1)
	}

	var segments []query.Segment
	if *q != "" {
		segments = query.NewTokenizer(terms.BuildDictionary(section.Terms)).Tokenize(*q)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		out := map[string]any{"section": section}
		if segments != nil {
			out["segments"] = segments
		}
		if err := enc.Encode(out); err != nil {
			slog.Error("output failed", "error", err)
			os.Exit(1)
		}
		return
	}
	printText(os.Stdout, section, segments)
}

func load(cfg *config.Config, file, pageURL string) (*page.Document, error) {
	switch {
	case pageURL != "":
		return fetch.New(cfg.Fetch, nil).Fetch(context.Background(), pageURL)
	case file == "-":
		return page.Parse(os.Stdin)
	case file != "":
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return page.Parse(f)
	default:
		return nil, fmt.Errorf("one of -file or -url is required")
	}
}

func printText(w io.Writer, section *shop.Section, segments []query.Segment) {
	for _, g := range section.Groups {
		labels := make([]string, 0, len(g.Chips))
		for _, c := range g.Chips {
			if c.Translated {
				labels = append(labels, c.Label+" ("+c.Value+")")
			} else {
				labels = append(labels, c.Label)
			}
		}
		fmt.Fprintf(w, "%-26s %s\n", g.Category+":", strings.Join(labels, ", "))
	}
	fmt.Fprintf(w, "\ndictionary: %d entries\n", section.DictionarySize)

	if segments == nil {
		return
	}
	fmt.Fprintln(w)
	for i, s := range segments {
		fmt.Fprintf(w, "%2d %-7s %q → %q\n", i, s.Kind, s.Text, s.Translation)
	}
}
