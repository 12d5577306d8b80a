// Command graphview browses a memchat workspace from the terminal: chats,
// their documents page by page, members, and chat visibility.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"memchat/api/internal/cache"
	"memchat/api/internal/client"
	"memchat/api/internal/logging"
	"memchat/api/internal/prefs"
)

var version = "dev"

func main() {
	// A missing .env is normal; real environment variables still apply.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	server    string
	workspace string
	prefsPath string
	redisURL  string
	logLevel  string
}

// deps is built once per invocation, after flags are parsed.
type deps struct {
	opts   *options
	logger *zap.Logger
	prefs  *prefs.File
	client *client.Client
	cache  cache.Store
	close  func()
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	d := &deps{opts: opts, close: func() {}}

	root := &cobra.Command{
		Use:     "graphview",
		Short:   "Browse memchat chats and documents",
		Version: version,
		Long: `graphview talks to a memchat API server.

Examples:
  # Sign in and remember the session
  graphview login --email avery@example.com

  # List chats of the last used workspace, newest first
  graphview chats

  # Load the first three pages of a chat's documents
  graphview documents chat_123 --pages 3

  # Make a chat public
  graphview visibility set chat_123 public`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return d.init(cmd.Context())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			d.close()
		},
	}

	root.PersistentFlags().StringVar(&opts.server, "server", envOr("MEMCHAT_SERVER", "http://localhost:8787"), "memchat API base URL")
	root.PersistentFlags().StringVar(&opts.workspace, "workspace", os.Getenv("MEMCHAT_WORKSPACE"), "workspace id (defaults to the last used workspace)")
	root.PersistentFlags().StringVar(&opts.prefsPath, "prefs", os.Getenv("MEMCHAT_PREFS"), "preferences file (defaults to the user config dir)")
	root.PersistentFlags().StringVar(&opts.redisURL, "redis", os.Getenv("MEMCHAT_CACHE_REDIS_URL"), "share the chat history cache through Redis")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", envOr("LOG_LEVEL", "warn"), "log level")

	root.AddCommand(
		newLoginCmd(d),
		newLogoutCmd(d),
		newWorkspacesCmd(d),
		newMembersCmd(d),
		newChatsCmd(d),
		newDocumentsCmd(d),
		newVisibilityCmd(d),
	)
	return root
}

func (d *deps) init(ctx context.Context) error {
	logger, err := logging.New(d.opts.logLevel, "console")
	if err != nil {
		return err
	}
	d.logger = logger

	path := d.opts.prefsPath
	if path == "" {
		if path, err = prefs.DefaultPath(); err != nil {
			return err
		}
	}
	if d.prefs, err = prefs.Open(path); err != nil {
		return err
	}

	d.client = client.New(d.opts.server,
		client.WithTokenStore(d.prefs),
		client.WithLogger(logger.Named("client")),
	)

	if strings.TrimSpace(d.opts.redisURL) != "" {
		redisOpts, err := redis.ParseURL(d.opts.redisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(redisOpts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return fmt.Errorf("connect cache: %w", err)
		}
		d.cache = cache.NewRedisStore(rdb)
		d.close = func() { _ = rdb.Close() }
	} else {
		memory, err := cache.NewMemoryStore(0)
		if err != nil {
			return err
		}
		d.cache = memory
	}
	return nil
}

// workspaceID resolves the --workspace flag, then the remembered workspace.
func (d *deps) workspaceID() (string, error) {
	if ws := strings.TrimSpace(d.opts.workspace); ws != "" {
		return ws, nil
	}
	if ws := d.prefs.LastWorkspace(); ws != "" {
		return ws, nil
	}
	return "", errors.New("no workspace selected: pass --workspace or run `graphview workspaces use <id>`")
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
