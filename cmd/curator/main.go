// Package main is the entry point for the curator CLI.
//
// curator maintains the imaging metadata registry backing the upload
// workflow: controlled vocabularies (sites, groups, surgeons, users),
// subjects, and the image fingerprints used to skip duplicate uploads. The
// authoritative document lives in the remote repository; every invocation
// opens a session, applies its command and pushes when it mutated anything.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"
	"github.com/surgtrack/curator/internal/config"
	"github.com/surgtrack/curator/internal/dedup"
	"github.com/surgtrack/curator/internal/remote"
	"github.com/surgtrack/curator/internal/session"
	"github.com/surgtrack/curator/internal/tablestore"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "curator: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	fs := pflag.NewFlagSet("curator", pflag.ContinueOnError)
	configPath := fs.String("config", "curator.yaml", "Path to the configuration file")
	logLevel := fs.String("log-level", "", "Override log level (debug, info, warn, error)")
	baseURL := fs.String("remote", "", "Override remote base URL")
	token := fs.String("token", "", "Override remote token")
	document := fs.String("document", "", "Override remote document path")
	extras := fs.StringArray("extra", nil, "Extra column value as NAME=VALUE (repeatable)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: curator [flags] <command> [args]

Commands:
  tables                          List tables
  items <table>                   List items of a table
  get-uid <table> <item>          Print the uid of an item
  add-table <name> [columns...]   Create a table (admin only)
  add-item <table> <name>         Add an item, with --extra NAME=VALUE per column
  check-hash <fingerprint>        Report whether a frame fingerprint is known
  register-hash <fp> <subject>    Record a fingerprint against a subject
  pull                            Refresh the local copy from the repository
  push                            Push the current document to the repository

Flags:
%s`, fs.FlagUsages())
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	args := fs.Args()
	if len(args) == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	cfg := config.Default()
	if _, err := os.Stat(*configPath); err == nil || fs.Changed("config") {
		cfg, err = config.Load(*configPath)
		if err != nil {
			return err
		}
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *baseURL != "" {
		cfg.Remote.BaseURL = *baseURL
	}
	if *token != "" {
		cfg.Remote.Token = *token
	}
	if *document != "" {
		cfg.DocumentPath = *document
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Remote.BaseURL == "" {
		return errors.New("remote base URL is required (remote.base_url or --remote)")
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var provider remote.TokenProvider
	if t := cfg.Remote.Token; t != "" {
		provider = func(context.Context) (string, error) { return t, nil }
	}
	client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Timeout.Std(), provider, logger)
	s, err := session.NewManager(logger).Open(ctx, cfg, client)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	return runCommand(ctx, s, args[0], args[1:], *extras)
}

func runCommand(ctx context.Context, s *session.Session, cmd string, args, extras []string) error {
	switch cmd {
	case "tables":
		tables, err := s.ListTables()
		if err != nil {
			return err
		}
		for _, name := range tables {
			fmt.Println(name)
		}
		return nil

	case "items":
		if len(args) != 1 {
			return errors.New("usage: items <table>")
		}
		items, err := s.ListItems(args[0])
		if err != nil {
			return err
		}
		for _, name := range items {
			fmt.Println(name)
		}
		return nil

	case "get-uid":
		if len(args) != 2 {
			return errors.New("usage: get-uid <table> <item>")
		}
		id, err := s.GetUID(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil

	case "add-table":
		if len(args) < 1 {
			return errors.New("usage: add-table <name> [columns...]")
		}
		if err := s.AddTable(args[0], args[1:]); err != nil {
			return err
		}
		return s.Push(ctx)

	case "add-item":
		if len(args) != 2 {
			return errors.New("usage: add-item <table> <name> [--extra NAME=VALUE]")
		}
		extra, err := parseExtras(extras)
		if err != nil {
			return err
		}
		res, err := s.AddItem(args[0], args[1], extra)
		if err != nil {
			return err
		}
		fmt.Println(res.UID)
		if !res.Inserted() {
			slog.Info("Item already exists", "table", tablestore.Fold(args[0]), "uid", res.UID)
			return nil
		}
		return s.Push(ctx)

	case "check-hash":
		if len(args) != 1 {
			return errors.New("usage: check-hash <fingerprint>")
		}
		known, err := dedup.New(s).IsKnown(args[0])
		if err != nil {
			return err
		}
		if known {
			fmt.Println("known")
		} else {
			fmt.Println("unknown")
		}
		return nil

	case "register-hash":
		if len(args) != 2 {
			return errors.New("usage: register-hash <fingerprint> <subject>")
		}
		subjectUID, err := s.GetUID(tablestore.TableSubjects, args[1])
		if err != nil {
			return err
		}
		res, err := dedup.New(s).Register(args[0], subjectUID)
		if err != nil {
			return err
		}
		fmt.Println(res.UID)
		if !res.Inserted() {
			slog.Info("Fingerprint already recorded", "uid", res.UID)
			return nil
		}
		return s.Push(ctx)

	case "pull":
		return s.Pull(ctx)

	case "push":
		return s.Push(ctx)

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func parseExtras(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	extra := make(map[string]any, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --extra %q, want NAME=VALUE", p)
		}
		extra[name] = value
	}
	return extra, nil
}

func newLogger(level string) *slog.Logger {
	ll := &slog.LevelVar{}
	switch level {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		ll.Set(slog.LevelInfo)
	}
	return slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
}
