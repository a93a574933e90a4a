package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/hejianfang/xhs-crawl/internal/config"
	"github.com/hejianfang/xhs-crawl/pkg/credential"
)

// runCredential is the manage_cookie_pool.py-derived credential management
// subcommand: add/list/remove/reset/set-strategy against the same
// credential file the crawl reads.
func runCredential(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: xhscrawl credential <add|list|remove|reset|reset-all|set-strategy> [flags]")
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

	sub, rest := args[0], args[1:]
	switch sub {
	case "add":
		cmdCredentialAdd(ctx, pool, rest)
	case "list":
		cmdCredentialList(pool, snap)
	case "remove":
		cmdCredentialRemove(ctx, pool, rest)
	case "reset":
		cmdCredentialReset(ctx, pool, rest)
	case "reset-all":
		cmdCredentialResetAll(ctx, pool, snap)
	case "set-strategy":
		cmdCredentialSetStrategy(ctx, pool, rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown credential subcommand %q\n", sub)
		os.Exit(exitFatal)
	}
}

func cmdCredentialAdd(ctx context.Context, pool *credential.Pool, args []string) {
	fs := flag.NewFlagSet("credential add", flag.ExitOnError)
	token := fs.String("token", "", "raw cookie/credential token (required)")
	name := fs.String("name", "", "display name")
	_ = fs.Parse(args)

	if *token == "" {
		fmt.Fprintln(os.Stderr, "error: --token is required")
		os.Exit(exitFatal)
	}
	cred, err := pool.Add(ctx, *token, *name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: adding credential: %v\n", err)
		os.Exit(exitFatal)
	}
	fmt.Printf("added credential %s (%s)\n", cred.DisplayPrefix(), cred.Name)
}

func cmdCredentialList(pool *credential.Pool, snap credential.Snapshot) {
	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintf(w, "strategy: %s\tpool size: %d\n\n", snap.Strategy, pool.Size())
	fmt.Fprintln(w, "NAME\tACTIVE\tUSED\tSUCCESS\tFAIL\tERRORS\tNOTES")
	for _, a := range snap.Accounts {
		fmt.Fprintf(w, "%s\t%v\t%d\t%d\t%d\t%d\t%d\n",
			a.Name, a.IsActive, a.UseCount, a.SuccessCount, a.FailCount, a.ErrorCount, a.TotalNotes)
	}
	w.Flush()
}

func cmdCredentialRemove(ctx context.Context, pool *credential.Pool, args []string) {
	fs := flag.NewFlagSet("credential remove", flag.ExitOnError)
	fingerprint := fs.String("fingerprint", "", "credential fingerprint (required)")
	_ = fs.Parse(args)

	if *fingerprint == "" {
		fmt.Fprintln(os.Stderr, "error: --fingerprint is required")
		os.Exit(exitFatal)
	}
	if err := pool.Remove(ctx, *fingerprint); err != nil {
		fmt.Fprintf(os.Stderr, "error: removing credential: %v\n", err)
		os.Exit(exitFatal)
	}
	fmt.Println("removed")
}

func cmdCredentialReset(ctx context.Context, pool *credential.Pool, args []string) {
	fs := flag.NewFlagSet("credential reset", flag.ExitOnError)
	fingerprint := fs.String("fingerprint", "", "credential fingerprint (required)")
	_ = fs.Parse(args)

	if *fingerprint == "" {
		fmt.Fprintln(os.Stderr, "error: --fingerprint is required")
		os.Exit(exitFatal)
	}
	if err := pool.Reset(ctx, *fingerprint); err != nil {
		fmt.Fprintf(os.Stderr, "error: resetting credential: %v\n", err)
		os.Exit(exitFatal)
	}
	fmt.Println("reset")
}

func cmdCredentialResetAll(ctx context.Context, pool *credential.Pool, snap credential.Snapshot) {
	for _, a := range snap.Accounts {
		fp := credential.Fingerprint(a.CookieStr)
		if err := pool.Reset(ctx, fp); err != nil {
			fmt.Fprintf(os.Stderr, "error: resetting %s: %v\n", a.Name, err)
			os.Exit(exitFatal)
		}
	}
	fmt.Printf("reset %d credentials\n", len(snap.Accounts))
}

func cmdCredentialSetStrategy(ctx context.Context, pool *credential.Pool, args []string) {
	fs := flag.NewFlagSet("credential set-strategy", flag.ExitOnError)
	strategy := fs.String("strategy", "", "round_robin | random | least_used (required)")
	_ = fs.Parse(args)

	switch credential.Strategy(*strategy) {
	case credential.StrategyRoundRobin, credential.StrategyRandom, credential.StrategyLeastUsed:
	default:
		fmt.Fprintf(os.Stderr, "error: unknown strategy %q\n", *strategy)
		os.Exit(exitFatal)
	}
	if err := pool.SetStrategy(ctx, credential.Strategy(*strategy)); err != nil {
		fmt.Fprintf(os.Stderr, "error: setting strategy: %v\n", err)
		os.Exit(exitFatal)
	}
	fmt.Printf("strategy set to %s\n", *strategy)
}
