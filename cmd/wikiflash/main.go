package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/conorfennell/wikiflash/internal/config"
	"github.com/conorfennell/wikiflash/internal/content"
	"github.com/conorfennell/wikiflash/internal/domain"
	"github.com/conorfennell/wikiflash/internal/generator"
	"github.com/conorfennell/wikiflash/internal/importer"
	"github.com/conorfennell/wikiflash/internal/storage"
	"github.com/conorfennell/wikiflash/internal/web"
)

const usage = `Usage: wikiflash [command] [flags]

Commands:
  serve                     Run the HTTP API (default)
  import [flags] <source>   Create a deck from markdown notes in a directory or git repository
  refresh --deck <id>       Re-import every source of a deck

Run "wikiflash <command> --help" for the flags of a command.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		slog.Error("wikiflash failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cmd := "serve"
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	fs := pflag.NewFlagSet("wikiflash "+cmd, pflag.ContinueOnError)
	config.RegisterFlags(fs)

	switch cmd {
	case "serve":
		return withApp(ctx, fs, args, serve)
	case "import":
		sessionID := fs.String("session", "", "Anonymous session that owns the deck (created when empty)")
		name := fs.String("name", "", "Deck name (defaults to the source's base name)")
		return withApp(ctx, fs, args, func(ctx context.Context, a *app) error {
			if fs.NArg() != 1 {
				return fmt.Errorf("import needs exactly one source, got %d", fs.NArg())
			}
			return importDeck(ctx, a, *sessionID, *name, fs.Arg(0))
		})
	case "refresh":
		deckID := fs.String("deck", "", "Deck to refresh")
		return withApp(ctx, fs, args, func(ctx context.Context, a *app) error {
			if *deckID == "" {
				return errors.New("refresh needs --deck")
			}
			res, err := a.importer.Refresh(ctx, *deckID, domain.Today())
			if err != nil {
				return err
			}
			fmt.Printf("Refreshed deck %s: %d files, %d cards added, %d duplicates, %d failed files.\n",
				*deckID, res.Files, res.Added, res.Duplicates, res.Failed)
			return nil
		})
	case "help":
		fmt.Print(usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

type app struct {
	cfg      *config.Config
	db       *storage.DB
	importer *importer.Importer
}

// withApp parses flags, loads config, opens the database and runs fn.
func withApp(ctx context.Context, fs *pflag.FlagSet, args []string, fn func(context.Context, *app) error) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(fs)
	if err != nil {
		return err
	}
	slog.SetDefault(cfg.Log.Logger(os.Stderr))

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.Storage.Path)

	return fn(ctx, &app{
		cfg:      cfg,
		db:       db,
		importer: importer.New(db, cfg.Storage.ReposDir),
	})
}

func serve(ctx context.Context, a *app) error {
	if a.cfg.Generator.APIKey == "" {
		slog.Warn("no LLM API key configured, deck generation will be unavailable")
	}

	handler := web.NewServer(web.Deps{
		DB:           a.db,
		Content:      content.NewClient(a.cfg.Content),
		Generator:    generator.New(a.cfg.Generator),
		Importer:     a.importer,
		NewCardLimit: a.cfg.Study.NewCardLimit,
	})
	srv := &http.Server{Addr: a.cfg.Server.Addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", a.cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down", "timeout", a.cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

func importDeck(ctx context.Context, a *app, sessionID, name, source string) error {
	if sessionID == "" {
		id, err := a.db.CreateSession(ctx)
		if err != nil {
			return err
		}
		sessionID = id
		fmt.Printf("Created session %s\n", sessionID)
	}

	deck, res, err := a.importer.CreateDeck(ctx, sessionID, name, source, domain.Today())
	if err != nil {
		return err
	}
	fmt.Printf("Created deck %q (%s): %d files, %d cards, %d duplicates, %d failed files.\n",
		deck.Name, deck.ID, res.Files, res.Added, res.Duplicates, res.Failed)
	return nil
}
