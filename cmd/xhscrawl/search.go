package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/hejianfang/xhs-crawl/internal/config"
	"github.com/hejianfang/xhs-crawl/pkg/credential"
	"github.com/hejianfang/xhs-crawl/pkg/inputlist"
	"github.com/hejianfang/xhs-crawl/pkg/signer"
	"github.com/hejianfang/xhs-crawl/pkg/transport"
	"github.com/hejianfang/xhs-crawl/pkg/xhsapi"
)

// runSearch is the search_to_json.py-derived supplemented feature: turn a
// keyword search into an input list file, so a crawl can be seeded without
// a hand-authored note list.
func runSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	query := fs.String("query", "", "search keyword (required)")
	output := fs.String("output", "search_input.json", "path to write the resulting input list")
	maxPages := fs.Int("max-pages", 1, "number of result pages to fetch")
	_ = fs.Parse(args)

	if *query == "" {
		fmt.Fprintln(os.Stderr, "error: --query is required")
		os.Exit(exitFatal)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(exitFatal)
	}

	ctx := context.Background()
	thresholds := credential.Thresholds{
		SoftCooldownThreshold: cfg.SoftCooldownThreshold,
		HardDisableThreshold:  cfg.HardDisableThreshold,
		DailyCap:              cfg.DailyCap,
	}
	persister := credential.NewFilePersister(cfg.CredentialPath)
	snap, err := credential.Load(cfg.CredentialPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading credential file: %v\n", err)
		os.Exit(exitFatal)
	}
	pool := credential.New(snap.Strategy, thresholds, persister)
	pool.LoadSnapshot(snap, thresholds)

	cred, err := pool.Acquire(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: acquiring credential: %v\n", err)
		os.Exit(exitFatal)
	}

	t := transport.New(cfg.BaseURL, signer.Passthrough{}, cfg.RequestTimeout)
	client := xhsapi.New(t)

	var items []xhsapi.SearchNoteItem
	for page := 1; page <= *maxPages; page++ {
		resp, res := client.SearchNotes(ctx, *query, page, cred.Token)
		if res.Outcome != transport.OK {
			fmt.Fprintf(os.Stderr, "error: searching page %d: %s: %v\n", page, res.Outcome, res.Err)
			os.Exit(exitFatal)
		}
		items = append(items, resp.Items...)
		if !resp.HasMore {
			break
		}
	}

	list := inputlist.FromSearchResults(*query, items)
	data, err := inputlist.EncodeList(list)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: encoding input list: %v\n", err)
		os.Exit(exitFatal)
	}
	if err := os.WriteFile(*output, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error: writing %s: %v\n", *output, err)
		os.Exit(exitFatal)
	}

	fmt.Printf("wrote %d notes to %s\n", len(list.Notes), *output)
}
