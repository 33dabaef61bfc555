// Package cli implements the compute command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jacentio/compute/adapter"
)

const (
	Version = "0.3.0"

	// Wrap is the number of characters to wrap the help text at
	Wrap int = 50
)

// app carries the state shared by the commands of one command tree.
type app struct {
	v       *viper.Viper
	factory adapter.ClientFactory
}

// Option configures the command tree.
type Option func(*app)

// WithClientFactory overrides how DynamoDB clients are opened.
func WithClientFactory(f adapter.ClientFactory) Option {
	return func(a *app) {
		a.factory = f
	}
}

// NewRootCmd builds the compute command tree.
func NewRootCmd(opts ...Option) *cobra.Command {
	a := &app{v: viper.New()}
	for _, opt := range opts {
		opt(a)
	}

	root := &cobra.Command{
		Use:   "compute",
		Short: "DynamoDB adapter for collection-oriented ORMs",
		Long: fmt.Sprintf(`compute (v%s)

Translates collection CRUD into DynamoDB requests. Where clauses holding
lists are expanded into one exact-match lookup per combination.

Every flag can also be set as COMPUTE_<FLAG> (e.g. COMPUTE_TABLE_PREFIX=dev-)
or in a config file passed with --config.`, Version),
		SilenceUsage:      true,
		PersistentPreRunE: a.initConfig,
	}

	key := "config"
	root.PersistentFlags().String(key, "", WrapString("Config file holding the connection and collection definitions (yaml, json or toml)"))

	key = "identity"
	root.PersistentFlags().String(key, "default", WrapString("Identity of the connection"))

	key = "region"
	root.PersistentFlags().String(key, "", WrapString("AWS region. Empty uses the default credential chain's region"))

	key = "endpoint"
	root.PersistentFlags().String(key, "", WrapString("DynamoDB endpoint override (e.g. http://localhost:8000 for DynamoDB Local)"))

	key = "profile"
	root.PersistentFlags().String(key, "", WrapString("Shared config profile to load credentials from"))

	key = "table-prefix"
	root.PersistentFlags().String(key, "", WrapString("Prefix prepended to collection names to form table names"))

	key = "migrate"
	root.PersistentFlags().String(key, string(adapter.MigrateSafe), WrapString("Migration strategy applied to defined collections (safe, alter, drop)"))

	key = "soft-delete"
	root.PersistentFlags().Bool(key, false, WrapString("Destroy sets a ttl instead of deleting items"))

	key = "max-combinations"
	root.PersistentFlags().Int(key, 100, WrapString("Maximum number of lookups a where clause may expand to"))

	key = "concurrency"
	root.PersistentFlags().Int(key, 4, WrapString("Number of lookups run in parallel"))

	key = "log-level"
	root.PersistentFlags().String(key, "info", WrapString("Level at which logs will be output (debug, info, warn, error)"))

	root.AddCommand(
		a.newExpandCmd(),
		a.newFindCmd(),
		a.newCascadeCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command tree. This is called by main.main().
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// initConfig loads env files, binds the flags and reads the config file if one is set.
func (a *app) initConfig(cmd *cobra.Command, _ []string) error {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	a.v.SetEnvPrefix("compute")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if file := a.v.GetString("config"); file != "" {
		a.v.SetConfigFile(file)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", file, err)
		}
	}
	return nil
}

// connection returns the configured connection and its collections.
func (a *app) connection() (adapter.Connection, []adapter.Collection, error) {
	conn := adapter.Connection{
		Identity:    a.v.GetString("identity"),
		Region:      a.v.GetString("region"),
		Endpoint:    a.v.GetString("endpoint"),
		Profile:     a.v.GetString("profile"),
		TablePrefix: a.v.GetString("table-prefix"),
	}

	var collections []adapter.Collection
	if err := a.v.UnmarshalKey("collections", &collections); err != nil {
		return conn, nil, fmt.Errorf("parse collections: %w", err)
	}
	return conn, collections, nil
}

// adapterConfig returns the adapter configuration.
func (a *app) adapterConfig() (adapter.Config, error) {
	migrate, err := adapter.ParseMigrate(a.v.GetString("migrate"))
	if err != nil {
		return adapter.Config{}, err
	}
	return adapter.Config{
		Migrate:         migrate,
		SoftDelete:      a.v.GetBool("soft-delete"),
		MaxCombinations: a.v.GetInt("max-combinations"),
		Concurrency:     a.v.GetInt("concurrency"),
	}, nil
}

// open creates an adapter and registers the configured connection.
func (a *app) open(ctx context.Context, logger *slog.Logger) (*adapter.Adapter, string, error) {
	cfg, err := a.adapterConfig()
	if err != nil {
		return nil, "", err
	}
	conn, collections, err := a.connection()
	if err != nil {
		return nil, "", err
	}

	ad := adapter.New(nil, cfg,
		adapter.WithLogger(logger),
		adapter.WithClientFactory(a.factory),
	)
	if err := ad.RegisterConnection(ctx, conn, collections); err != nil {
		return nil, "", err
	}
	return ad, conn.Identity, nil
}

// newLogger builds a text logger at the configured level.
func (a *app) newLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(a.v.GetString("log-level"))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", a.v.GetString("log-level"))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}
