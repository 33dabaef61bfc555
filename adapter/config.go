package adapter

import "fmt"

// Migrate selects how Define and Drop touch the underlying tables.
type Migrate string

const (
	// MigrateSafe never creates or deletes tables. Use this in production.
	MigrateSafe Migrate = "safe"

	// MigrateAlter creates missing tables and deletes dropped ones.
	MigrateAlter Migrate = "alter"

	// MigrateDrop recreates every defined table, discarding its data.
	MigrateDrop Migrate = "drop"
)

// ParseMigrate converts a strategy name to a Migrate value.
func ParseMigrate(s string) (Migrate, error) {
	switch m := Migrate(s); m {
	case MigrateSafe, MigrateAlter, MigrateDrop:
		return m, nil
	case "":
		return MigrateSafe, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMigrate, s)
	}
}

// Config holds configuration for the Adapter.
type Config struct {
	// Migrate is the schema migration strategy applied by Define and Drop.
	// Default: MigrateSafe
	Migrate Migrate

	// SoftDelete makes Destroy set the ttl attribute instead of deleting the item.
	// Soft-deleted records are hidden from Find and feed the cascade stream handler.
	// Default: false
	SoftDelete bool

	// MaxCombinations caps how many exact-match lookups one where clause may expand to.
	// Default: 100
	// Max: 10000
	MaxCombinations int

	// Concurrency is the number of lookups Find runs in parallel.
	// Default: 4
	// Max: 64
	Concurrency int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Migrate:         MigrateSafe,
		SoftDelete:      false,
		MaxCombinations: 100,
		Concurrency:     4,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if _, err := ParseMigrate(string(c.Migrate)); err != nil || c.Migrate == "" {
		c.Migrate = MigrateSafe
	}
	if c.MaxCombinations < 1 {
		c.MaxCombinations = 100
	}
	if c.MaxCombinations > 10000 {
		c.MaxCombinations = 10000
	}
	if c.Concurrency < 1 {
		c.Concurrency = 4
	}
	if c.Concurrency > 64 {
		c.Concurrency = 64
	}
}
