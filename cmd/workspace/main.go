package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"mocksync/config"
	"mocksync/config/database"
	"mocksync/internal/auth"
	"mocksync/internal/backend"
	"mocksync/internal/channel"
	"mocksync/internal/document/repository"
	"mocksync/internal/editor"
	"mocksync/internal/session"
	"mocksync/pkg/logger"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()

	backendURL := flag.String("backend-url", cfg.BackendURL, "project backend base URL")
	relayURL := flag.String("relay-url", cfg.RelayURL, "relay websocket URL")
	projectID := flag.String("project", strings.TrimSpace(os.Getenv("MOCKSYNC_PROJECT")), "project ID")
	localDir := flag.String("dir", strings.TrimSpace(os.Getenv("MOCKSYNC_DIR")), "directory holding index.html and style.css")
	tokenFile := flag.String("token-file", cfg.TokenFile, "file holding the bearer token")
	name := flag.String("name", cfg.DisplayName, "name shown next to your cursor")
	autosave := flag.Duration("autosave", cfg.AutosaveInterval, "autosave interval")
	databaseURL := flag.String("database-url", cfg.DatabaseURL, "save straight to Postgres instead of the backend")
	exportPath := flag.String("export", "", "download the project archive to this path and exit")
	logLevel := flag.String("log-level", cfg.LogLevel, "log level")
	flag.Parse()

	logger.Init(*logLevel)
	defer logger.Sync()
	cfg.Report()

	if *projectID == "" {
		logger.Sugar.Fatal("project is required (--project or MOCKSYNC_PROJECT)")
	}
	token, err := auth.ReadToken(*tokenFile)
	if err != nil {
		logger.Sugar.Fatalf("Sign in first: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := backend.NewClient(*backendURL, token, &http.Client{Timeout: 15 * time.Second})
	if *exportPath != "" {
		if err := export(ctx, client, *projectID, *exportPath); err != nil {
			logger.Sugar.Fatalf("Export failed: %v", err)
		}
		return
	}
	if *localDir == "" {
		logger.Sugar.Fatal("dir is required (--dir or MOCKSYNC_DIR)")
	}

	var store session.Store = client
	if *databaseURL != "" {
		db, err := database.Connect(*databaseURL)
		if err != nil {
			logger.Sugar.Fatalf("Database: %v", err)
		}
		defer db.Close()
		store = repository.NewProjectRepository(db)
	}

	if *name == "" {
		*name = auth.DisplayName(token)
	}

	files, err := editor.NewFiles(*localDir)
	if err != nil {
		logger.Sugar.Fatalf("Editor directory: %v", err)
	}
	defer files.Close()

	dialCtx, cancelDial := context.WithTimeout(ctx, 15*time.Second)
	ch, err := channel.Dial(dialCtx, *relayURL, channel.Options{Token: token})
	cancelDial()
	if err != nil {
		logger.Sugar.Fatalf("Relay: %v", err)
	}

	s := session.New(*projectID, ch, files, store, session.Options{
		AutosaveInterval: *autosave,
		ContentThrottle:  cfg.ContentThrottle,
		CursorThrottle:   cfg.CursorThrottle,
		DisplayName:      *name,
	})
	if err := s.Open(ctx); err != nil {
		ch.Close()
		logger.Sugar.Fatalf("Open: %v", err)
	}
	fmt.Fprintf(os.Stderr, "Editing %s in %s. Type \"help\" for commands.\n", *projectID, *localDir)

	runCtx, cancelRun := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return s.Run(gctx) })
	g.Go(func() error {
		files.Watch(gctx)
		return nil
	})
	go func() {
		if commands(ctx, s, os.Stdin, os.Stdout) {
			stop()
		}
	}()

	<-ctx.Done()
	saveCtx, cancelSave := context.WithTimeout(context.Background(), 30*time.Second)
	if err := s.SaveNow(saveCtx); err != nil {
		logger.Sugar.Errorf("Save on exit failed: %v", err)
	}
	cancelSave()
	cancelRun()
	if err := g.Wait(); err != nil {
		logger.Sugar.Errorf("Session ended: %v", err)
	}
	s.Wait()
}

func export(ctx context.Context, client *backend.Client, projectID, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	n, err := client.ExportArchive(ctx, projectID, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return err
	}
	logger.Sugar.Infof("Exported project %s to %s (%d bytes)", projectID, path, n)
	return nil
}
