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

	"github.com/spf13/pflag"

	"github.com/basalt-app/basalt/internal/capture"
	"github.com/basalt-app/basalt/internal/config"
	"github.com/basalt-app/basalt/internal/daemon"
	"github.com/basalt-app/basalt/internal/deck"
	"github.com/basalt-app/basalt/internal/domain"
	"github.com/basalt-app/basalt/internal/ipc"
	"github.com/basalt-app/basalt/internal/llm"
	"github.com/basalt-app/basalt/internal/review"
	"github.com/basalt-app/basalt/internal/storage"
)

const usage = `Usage: basalt <command> [flags]

Commands:
  daemon                        run the capture daemon
  capture [flags] [content]     send a capture job to the daemon
  inbox                         review due flashcards
  list [folder]                 show the folder tree
  import <dir|git-url>          import Q:/A: markdown decks
  folder add|rm <name>          manage folders
`

func main() {
	defaults := config.Default()
	flags := pflag.NewFlagSet("basalt", pflag.ExitOnError)
	flags.SetInterspersed(false)
	configPath := flags.String("config", config.DefaultPath(), "Path to the config file")
	flags.String("data-dir", defaults.DataDir, "Data directory override")
	flags.String("socket-path", defaults.SocketPath, "Daemon socket path override")
	flags.String("provider", defaults.Provider, "Generation provider override")
	flags.String("model", defaults.Model, "Generation model override")
	flags.String("api-key", defaults.APIKey, "Generation API key override")
	flags.Int("workers", defaults.Workers, "Daemon worker count override")
	flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath, flags)
	if err != nil {
		fatal(err)
	}

	args := flags.Args()
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	switch args[0] {
	case "daemon":
		err = runDaemon(cfg)
	case "capture":
		err = runCapture(cfg, args[1:])
	case "inbox":
		err = runInbox(cfg)
	case "list":
		err = runList(cfg, args[1:])
	case "import":
		err = runImport(cfg, args[1:])
	case "folder":
		err = runFolder(cfg, args[1:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runDaemon(cfg config.Config) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline := &capture.Pipeline{
		Gen:     llm.NewClient(cfg.RequestTimeout),
		Timeout: cfg.RequestTimeout,
	}
	return daemon.New(cfg, pipeline, logger).Run(ctx)
}

func runCapture(cfg config.Config, args []string) error {
	flags := pflag.NewFlagSet("capture", pflag.ExitOnError)
	kind := flags.String("kind", "clip", "Content source: raw, clip, file, or url")
	withFlags := flags.StringArray("with", nil, "Custom command flag, as name or name=value (repeatable)")
	flags.Parse(args)

	content := strings.Join(flags.Args(), " ")
	if *kind == "raw" && content == "" {
		return errors.New("raw capture needs content text")
	}

	jobFlags := make(map[string]string, len(*withFlags))
	for _, item := range *withFlags {
		name, value, _ := strings.Cut(item, "=")
		jobFlags[name] = value
	}

	job := capture.Job{
		Kind:    capture.SourceKind(*kind),
		Content: content,
		Flags:   jobFlags,
		Config:  cfg.Snapshot(),
	}
	if err := ipc.Submit(cfg.SocketPath, cfg.AuthKey, job); err != nil {
		return err
	}
	fmt.Println("capture job enqueued.")
	return nil
}

func runInbox(cfg config.Config) error {
	db, err := storage.Open(cfg.DBPath())
	if err != nil {
		return err
	}
	defer db.Close()

	session := &review.Session{DB: db, In: os.Stdin, Out: os.Stdout}
	return session.Run()
}

func runList(cfg config.Config, args []string) error {
	db, err := storage.Open(cfg.DBPath())
	if err != nil {
		return err
	}
	defer db.Close()

	rootID := domain.RootFolderID
	if len(args) > 0 {
		rootID, err = db.GetFolderIDFromName(args[0])
		if err != nil {
			return err
		}
	}

	tree, err := db.GetFolderTree(rootID)
	if err != nil {
		return err
	}
	printTree(tree, 0)
	return nil
}

func printTree(tree *domain.FolderTree, depth int) {
	indent := strings.Repeat("    ", depth)
	prefix := ""
	if depth > 0 {
		prefix = "├── "
	}
	fmt.Printf("%s%s%s (id: %d)\n", indent, prefix, tree.Name, tree.ID)
	for _, cardID := range tree.CardIDs {
		fmt.Printf("%s    - card %d\n", indent, cardID)
	}
	for _, child := range tree.Children {
		printTree(child, depth+1)
	}
}

func runImport(cfg config.Config, args []string) error {
	flags := pflag.NewFlagSet("import", pflag.ExitOnError)
	folder := flags.String("folder", "", "Target folder name (default root)")
	flags.Parse(args)
	if flags.NArg() == 0 {
		return errors.New("import needs a directory or git url")
	}

	db, err := storage.Open(cfg.DBPath())
	if err != nil {
		return err
	}
	defer db.Close()

	result, err := deck.Import(db, flags.Arg(0), *folder, cfg.DataDir)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d cards (%d duplicates skipped, %d parse errors)\n",
		result.Imported, result.Duplicates, len(result.ParseErrs))
	for _, parseErr := range result.ParseErrs {
		fmt.Printf("- %v\n", parseErr)
	}
	return nil
}

func runFolder(cfg config.Config, args []string) error {
	flags := pflag.NewFlagSet("folder", pflag.ExitOnError)
	recursive := flags.Bool("recursive", false, "Delete sub-folders and cards too")
	flags.Parse(args)
	if flags.NArg() < 2 {
		return errors.New("usage: folder add|rm <name>")
	}

	db, err := storage.Open(cfg.DBPath())
	if err != nil {
		return err
	}
	defer db.Close()

	name := flags.Arg(1)
	switch flags.Arg(0) {
	case "add":
		id, err := db.CreateFolder(name)
		if err != nil {
			return err
		}
		fmt.Printf("created folder %s (id: %d)\n", name, id)
		return nil
	case "rm":
		id, err := db.GetFolderIDFromName(name)
		if err != nil {
			return err
		}
		if err := db.DeleteFolder(id, *recursive); err != nil {
			return err
		}
		fmt.Printf("deleted folder %s\n", name)
		return nil
	default:
		return fmt.Errorf("unknown folder action %q", flags.Arg(0))
	}
}
