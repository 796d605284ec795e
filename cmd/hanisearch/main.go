package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
	"golang.org/x/time/rate"

	"github.com/choislab/hanisearch/internal/chat"
	"github.com/choislab/hanisearch/internal/config"
	"github.com/choislab/hanisearch/internal/docs"
	"github.com/choislab/hanisearch/internal/export"
	"github.com/choislab/hanisearch/internal/extract"
	"github.com/choislab/hanisearch/internal/highlight"
	"github.com/choislab/hanisearch/internal/inbox"
	"github.com/choislab/hanisearch/internal/index"
	"github.com/choislab/hanisearch/internal/logging"
	"github.com/choislab/hanisearch/internal/query"
	"github.com/choislab/hanisearch/internal/store"
	"github.com/choislab/hanisearch/internal/token"
	"github.com/choislab/hanisearch/internal/tui"
	"github.com/choislab/hanisearch/internal/web"
)

const Version = "0.3.0"

// Table column widths for list command output
const (
	tableColName = 32
	tableColID   = 16
)

func main() {
	args := os.Args[1:]

	if len(args) > 0 {
		switch args[0] {
		case "version", "--version", "-v":
			fmt.Printf("hanisearch v%s\n", Version)
			return
		case "help", "--help", "-h":
			printHelp()
			return
		case "serve":
			handleServe(args[1:])
			return
		case "search":
			handleSearch(args[1:])
			return
		case "index":
			handleIndex(args[1:])
			return
		case "import":
			handleImport(args[1:])
			return
		case "list", "ls":
			handleList(args[1:])
			return
		case "tui":
		}
	}

	runTUI()
}

func printHelp() {
	fmt.Printf(`hanisearch v%s - document research service

Usage:
  hanisearch                     Launch the terminal client
  hanisearch serve [flags]       Run the HTTP and chat server
  hanisearch search <query>      One-shot search over selected documents
  hanisearch index <id|all>      Build the n-gram index for documents
  hanisearch import <path>...    Import documents into the store
  hanisearch list                List stored documents
  hanisearch version             Print version

Flags for serve:
  -addr string    Listen address (overrides config)
  -token string   Require this bearer token on API calls

Flags for search:
  -docs string    Comma-separated document IDs (default: selected set)
  -json           Emit results as JSON
  -copy           Copy results to the clipboard (rich + plain)

Config file: %s (override with HANISEARCH_CONFIG)
`, Version, configPathForHelp())
}

func configPathForHelp() string {
	p, err := config.Path()
	if err != nil {
		return "~/.hanisearch/config.toml"
	}
	return p
}

// services bundles everything a subcommand needs.
type services struct {
	cfg     *config.Config
	store   *store.Store
	docs    *docs.Adapter
	engine  *query.Engine
	chat    *chat.Service
	limiter *rate.Limiter
}

func (s *services) close() {
	if err := s.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: store close: %v\n", err)
	}
	logging.Shutdown()
}

// openServices loads config, starts logging, and wires the service
// layers. Exits the process on unrecoverable setup errors.
func openServices() *services {
	cfg, err := config.Load()
	if err != nil {
		// Malformed config still yields defaults. Run with those but
		// tell the user.
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
	}

	logging.Init(logging.Config{
		LogDir:     cfg.DataDir,
		Level:      cfg.Logs.Level,
		Format:     cfg.Logs.Format,
		MaxSizeMB:  cfg.Logs.MaxSizeMB,
		MaxBackups: cfg.Logs.MaxBackups,
		MaxAgeDays: cfg.Logs.MaxAgeDays,
	})

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: open store at %s: %v\n", cfg.DataDir, err)
		os.Exit(1)
	}

	registry := extract.NewRegistry()
	builder := index.NewBuilder(token.New(cfg.Search.MaxTokenLen))
	adapter := docs.NewAdapter(st, registry, builder)
	if cfg.Search.MaxIndexMB > 0 {
		adapter.SetMaxIndexBytes(int64(cfg.Search.MaxIndexMB) << 20)
	}
	if err := adapter.Refresh(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: load documents: %v\n", err)
		st.Close()
		os.Exit(1)
	}

	indexes := index.NewStore(adapter)
	adapter.SetIndexCache(indexes)

	var limiter *rate.Limiter
	if cfg.Search.BuildRatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Search.BuildRatePerSec), cfg.Search.BuildRatePerSec)
	}

	return &services{
		cfg:     cfg,
		store:   st,
		docs:    adapter,
		engine:  query.NewEngine(indexes),
		chat:    chat.NewService(st),
		limiter: limiter,
	}
}

// preloadIndexed warms lines and index blobs for the indexed working
// set in the background so first searches skip the cold load.
func (s *services) preloadIndexed() {
	var ids []string
	for _, d := range s.docs.List() {
		if d.Indexed {
			ids = append(ids, d.ID)
		}
	}
	if len(ids) == 0 {
		return
	}
	go s.docs.Preload(context.Background(), ids)
}

// watchCrashSignal dumps the in-memory log buffer on SIGUSR1 for
// post-mortem debugging.
func watchCrashSignal(dataDir string) {
	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	go func() {
		for range usr1 {
			path := filepath.Join(dataDir, fmt.Sprintf("crash-dump-%d.jsonl", time.Now().Unix()))
			if err := logging.DumpCrashBuffer(path); err != nil {
				logging.ForComponent(logging.CompWeb).Error("crash_dump_failed",
					slog.String("error", err.Error()))
			}
		}
	}()
}

func handleServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", "", "Listen address")
	tok := fs.String("token", "", "Bearer token required on API calls")
	fs.Parse(args)

	svc := openServices()
	defer svc.close()
	watchCrashSignal(svc.cfg.DataDir)
	svc.preloadIndexed()

	listenAddr := svc.cfg.Server.Addr
	if *addr != "" {
		listenAddr = *addr
	}
	authToken := svc.cfg.Server.AuthToken
	if *tok != "" {
		authToken = *tok
	}

	server := web.NewServer(web.Config{
		ListenAddr: listenAddr,
		Token:      authToken,
		DataDir:    svc.cfg.DataDir,
	}, web.Deps{
		Store:  svc.store,
		Docs:   svc.docs,
		Engine: svc.engine,
		Chat:   svc.chat,
	})

	var watcher *inbox.Watcher
	if svc.cfg.Inbox.Dir != "" {
		debounce := time.Duration(svc.cfg.Inbox.DebounceMS) * time.Millisecond
		w, err := inbox.New(svc.cfg.Inbox.Dir, debounce, svc.docs, extract.NewRegistry())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: inbox watcher disabled: %v\n", err)
		} else {
			watcher = w
			watcher.Start()
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		if watcher != nil {
			watcher.Stop()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: shutdown: %v\n", err)
		}
	}()

	fmt.Printf("hanisearch v%s listening on %s\n", Version, listenAddr)
	if err := server.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func handleSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	docsFlag := fs.String("docs", "", "Comma-separated document IDs")
	jsonFlag := fs.Bool("json", false, "Emit results as JSON")
	copyFlag := fs.Bool("copy", false, "Copy results to the clipboard (rich + plain)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: hanisearch search [flags] <query>")
		os.Exit(1)
	}
	raw := strings.Join(fs.Args(), " ")

	svc := openServices()
	defer svc.close()

	terms := query.Parse(raw)
	if len(terms) == 0 {
		fmt.Fprintln(os.Stderr, "Error: empty query")
		os.Exit(1)
	}

	refs := resolveRefs(svc, *docsFlag)
	if len(refs) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no documents selected (use 'hanisearch list' and -docs, or select in the TUI)")
		os.Exit(1)
	}

	results, err := svc.engine.SearchAll(context.Background(), svc.docs, refs, terms)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(results) > 0 {
		names := make([]string, len(refs))
		for i, ref := range refs {
			names[i] = ref.Name
		}
		if err := svc.store.AppendSearchLog(raw, names, len(results)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: search log: %v\n", err)
		}
	}

	if *jsonFlag {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	for _, res := range results {
		marker := " "
		if res.IsAndMatch {
			marker = "*"
		}
		fmt.Printf("%s %s:%d  %s\n", marker, res.DocumentName, res.LineNo+1, res.Text)
	}
	fmt.Printf("\n%d results (* = all terms on one line)\n", len(results))

	if *copyFlag {
		sections := export.SectionsByDocument(results)
		scheme := highlight.Assign(terms)
		copied, err := export.CopyRich(
			export.RenderHTML(sections, scheme),
			export.RenderPlain(sections),
			true)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: clipboard: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Copied %d lines via %s (%s)\n", copied.LineCount, copied.Method, copied.Flavor)
	}
}

// resolveRefs turns the -docs flag into search references, falling back
// to the selected set.
func resolveRefs(svc *services, docsFlag string) []query.DocRef {
	var refs []query.DocRef
	if docsFlag != "" {
		for _, id := range strings.Split(docsFlag, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			d, ok := svc.docs.Get(id)
			if !ok {
				fmt.Fprintf(os.Stderr, "Warning: unknown document %s\n", id)
				continue
			}
			refs = append(refs, query.DocRef{ID: d.ID, Name: d.Name})
		}
		return refs
	}
	for _, d := range svc.docs.Selected() {
		refs = append(refs, query.DocRef{ID: d.ID, Name: d.Name})
	}
	return refs
}

func handleIndex(args []string) {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: hanisearch index <document-id|all>")
		os.Exit(1)
	}

	svc := openServices()
	defer svc.close()

	var targets []*docs.Document
	if fs.Arg(0) == "all" {
		for _, d := range svc.docs.List() {
			if !d.Indexed {
				targets = append(targets, d)
			}
		}
		if len(targets) == 0 {
			fmt.Println("All documents already indexed.")
			return
		}
	} else {
		for _, id := range fs.Args() {
			d, ok := svc.docs.Get(id)
			if !ok {
				fmt.Fprintf(os.Stderr, "Error: unknown document %s\n", id)
				os.Exit(1)
			}
			targets = append(targets, d)
		}
	}

	failed := 0
	for _, d := range targets {
		fmt.Printf("Indexing %s…", d.Name)
		err := svc.docs.BuildIndex(context.Background(), d.ID, index.BuildOptions{
			Limiter: svc.limiter,
		})
		if err != nil {
			failed++
			var berr *index.BuildError
			switch {
			case errors.As(err, &berr) && berr.Reason == index.ReasonCapacity:
				fmt.Printf(" skipped (index too large, raw scan will be used)\n")
			case errors.As(err, &berr) && berr.Reason == index.ReasonExtraction:
				fmt.Printf(" failed (cannot read document: %v)\n", berr.Unwrap())
			default:
				fmt.Printf(" failed: %v\n", err)
			}
			continue
		}
		fmt.Println(" done")
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func handleImport(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	link := fs.Bool("link", false, "Reference files in place instead of copying into the store")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: hanisearch import [flags] <path>...")
		os.Exit(1)
	}

	svc := openServices()
	defer svc.close()

	failed := 0
	for _, path := range fs.Args() {
		var (
			d   *docs.Document
			err error
		)
		if *link {
			d, err = svc.docs.AddLocal(path)
		} else {
			var f *os.File
			f, err = os.Open(path)
			if err == nil {
				d, err = svc.docs.Import(filepath.Base(path), f)
				f.Close()
			}
		}
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", path, err)
			continue
		}
		fmt.Printf("Imported %s (%s)\n", d.Name, d.ID)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func handleList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	jsonFlag := fs.Bool("json", false, "Emit documents as JSON")
	fs.Parse(args)

	svc := openServices()
	defer svc.close()

	all := svc.docs.List()
	if *jsonFlag {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(all); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if len(all) == 0 {
		fmt.Println("No documents. Import with: hanisearch import <path>")
		return
	}

	fmt.Printf("%-*s %-*s %-8s %-8s %s\n", tableColName, "NAME", tableColID, "ID", "INDEXED", "SELECTED", "ORIGIN")
	for _, d := range all {
		fmt.Printf("%-*s %-*s %-8s %-8s %s\n",
			tableColName, runewidth.Truncate(d.Name, tableColName, "…"),
			tableColID, d.ID,
			yesNo(d.Indexed), yesNo(d.Selected), d.Origin)
	}
}

func runTUI() {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "Error: the terminal client needs a TTY. Use 'hanisearch search' for scripted queries.")
		os.Exit(1)
	}

	svc := openServices()
	defer svc.close()
	watchCrashSignal(svc.cfg.DataDir)
	svc.preloadIndexed()

	debounce := time.Duration(svc.cfg.Search.DebounceMS) * time.Millisecond
	model := tui.New(tui.Deps{
		Docs:     svc.docs,
		Engine:   svc.engine,
		Store:    svc.store,
		Debounce: debounce,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
