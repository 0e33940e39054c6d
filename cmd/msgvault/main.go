// ABOUTME: Operator CLI for the msgvault bounded message store
// ABOUTME: Saves, lists and inspects messages in a local SQLite backing file

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/2389/msgvault/internal/config"
	"github.com/2389/msgvault/internal/store"
)

const banner = `
                                        _ _
 _ __ ___  ___  __ ___   ____ _ _   _| | |_
| '_ ' _ \/ __|/ _' \ \ / / _' | | | | | __|
| | | | | \__ \ (_| |\ V / (_| | |_| | | |_
|_| |_| |_|___/\__, | \_/ \__,_|\__,_|_|\__|
               |___/
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage()
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(setupLogger(cfg.Logging))

	ctx := context.Background()

	switch cmd {
	case "save":
		err = cmdSave(ctx, cfg, args)
	case "recent":
		err = cmdRecent(ctx, cfg, args)
	case "page":
		err = cmdPage(ctx, cfg, args)
	case "before":
		err = cmdBefore(ctx, cfg, args)
	case "show":
		err = cmdShow(ctx, cfg, args)
	case "stats":
		err = cmdStats(ctx, cfg)
	case "compact":
		err = cmdCompact(ctx, cfg)
	case "clear":
		err = cmdClear(ctx, cfg)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: msgvault <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  save --user U --body B        Save a message (--kind, --sent-at, --reply-to optional)")
	fmt.Println("  recent [-n N]                 Show the N most recent messages, oldest first")
	fmt.Println("  page --limit N --offset M     Page through messages (offset over newest-first order)")
	fmt.Println("  before --ts TS [-n N]         Messages strictly older than the unix timestamp TS")
	fmt.Println("  show <id>                     Show one message, with reply context if present")
	fmt.Println("  stats                         Show row count, footprint and configured ceiling")
	fmt.Println("  compact                       Run an eviction/compaction cycle now")
	fmt.Println("  clear                         Delete every message (asks for confirmation)")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  MSGVAULT_CONFIG    Config file path (default: ~/.config/msgvault/config.yaml)")
	fmt.Println()
}

// getConfigPath returns the path to the config file.
// Priority: MSGVAULT_CONFIG env var > XDG_CONFIG_HOME/msgvault/config.yaml > ~/.config/msgvault/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("MSGVAULT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "msgvault", "config.yaml")
}

// loadConfig loads the config file, falling back to defaults when none
// exists so the CLI works against a local messages.db out of the box.
func loadConfig() (*config.Config, error) {
	path := getConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config.Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

// openStore opens the message store configured in cfg.
func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	return store.New(cfg.Database.Path, store.Options{
		MaxBytes:  cfg.Storage.MaxSizeMB * 1024 * 1024,
		LowWater:  cfg.Storage.LowWaterFraction,
		BatchSize: cfg.Storage.EvictBatch,
		PageSize:  cfg.Storage.PageSize,
	})
}

func cmdSave(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("save", flag.ExitOnError)
	user := fs.String("user", "", "author identifier (required)")
	body := fs.String("body", "", "message content (required)")
	kind := fs.String("kind", "", "content-type tag (default: text)")
	sentAt := fs.Float64("sent-at", 0, "seconds since epoch (default: now)")
	replyTo := fs.Int64("reply-to", 0, "id of the message being replied to")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	msg := &store.Message{
		User:   *user,
		Body:   *body,
		Kind:   *kind,
		SentAt: *sentAt,
	}
	if *replyTo != 0 {
		msg.ReplyTo = replyTo
	}

	id, err := s.Save(ctx, msg)
	if err != nil {
		return err
	}

	color.Green("Saved message %d\n", id)
	return nil
}

func cmdRecent(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("recent", flag.ExitOnError)
	n := fs.Int("n", 0, "number of messages (default: configured page size)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	messages, err := s.Recent(ctx, *n)
	if err != nil {
		return err
	}
	printMessages(messages)
	return nil
}

func cmdPage(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("page", flag.ExitOnError)
	limit := fs.Int("limit", 0, "page size (default: configured page size)")
	offset := fs.Int("offset", 0, "rows to skip, counted newest first")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	messages, err := s.Paginated(ctx, *limit, *offset)
	if err != nil {
		return err
	}
	printMessages(messages)
	return nil
}

func cmdBefore(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("before", flag.ExitOnError)
	ts := fs.Float64("ts", 0, "cutoff unix timestamp (required)")
	n := fs.Int("n", 0, "number of messages (default: configured page size)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ts == 0 {
		return fmt.Errorf("--ts is required")
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	messages, err := s.Before(ctx, *ts, *n)
	if err != nil {
		return err
	}
	printMessages(messages)
	return nil
}

func cmdShow(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: msgvault show <id>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", args[0])
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	msg, err := s.ByID(ctx, id)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Printf("  Message %d\n", msg.ID)
	cyan.Println("  ----------")
	fmt.Printf("  User:      %s\n", msg.User)
	fmt.Printf("  Kind:      %s\n", msg.Kind)
	fmt.Printf("  Sent:      %s\n", formatSentAt(msg.SentAt))
	fmt.Printf("  Recorded:  %s\n", msg.RecordedAt)
	fmt.Printf("  Body:      %s\n", msg.Body)

	if msg.ReplyTo != nil {
		parent, err := s.ByID(ctx, *msg.ReplyTo)
		switch {
		case err == store.ErrNotFound:
			// Target was evicted; the reference is best-effort only.
			fmt.Printf("  Reply to:  %d (no longer stored)\n", *msg.ReplyTo)
		case err != nil:
			return err
		default:
			fmt.Printf("  Reply to:  %d (%s: %s)\n", parent.ID, parent.User, parent.Body)
		}
	}
	fmt.Println()

	return nil
}

func cmdStats(ctx context.Context, cfg *config.Config) error {
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	stats, err := s.GetStats(ctx)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Store")
	cyan.Println("  -----")
	fmt.Printf("  Messages:  %d\n", stats.Count)
	fmt.Printf("  Size:      %s (%d bytes)\n", humanize.IBytes(uint64(stats.SizeBytes)), stats.SizeBytes)
	fmt.Printf("  Ceiling:   %s\n", humanize.IBytes(uint64(stats.MaxSizeBytes)))
	if stats.OldestSentAt != nil {
		fmt.Printf("  Oldest:    %s\n", formatSentAt(*stats.OldestSentAt))
	}
	if stats.NewestSentAt != nil {
		fmt.Printf("  Newest:    %s\n", formatSentAt(*stats.NewestSentAt))
	}
	fmt.Println()

	return nil
}

func cmdCompact(ctx context.Context, cfg *config.Config) error {
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	before := s.Footprint()
	s.Evict(ctx)
	after := s.Footprint()

	color.Green("Compacted: %s -> %s\n", humanize.IBytes(uint64(before)), humanize.IBytes(uint64(after)))
	return nil
}

func cmdClear(ctx context.Context, cfg *config.Config) error {
	yellow := color.New(color.FgYellow)
	yellow.Printf("This deletes every message in %s. Type 'yes' to continue: ", cfg.Database.Path)

	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	if strings.TrimSpace(answer) != "yes" {
		fmt.Println("Aborted.")
		return nil
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.ClearAll(ctx); err != nil {
		return err
	}

	color.Green("All messages cleared\n")
	return nil
}

func printMessages(messages []*store.Message) {
	if len(messages) == 0 {
		fmt.Println("No messages.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSENT\tUSER\tBODY\tREPLY TO")
	for _, m := range messages {
		replyTo := ""
		if m.ReplyTo != nil {
			replyTo = strconv.FormatInt(*m.ReplyTo, 10)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", m.ID, formatSentAt(m.SentAt), m.User, m.Body, replyTo)
	}
	w.Flush()
}

func formatSentAt(ts float64) string {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC().Format(time.RFC3339)
}
