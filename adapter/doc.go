// Package adapter provides a DynamoDB backend for an ORM's collection operations.
//
// An ORM runtime registers each configured connection with the adapter, defines
// the collections that live on it, and then issues CRUD calls addressed by
// connection identity and collection name.
//
// # Connections
//
// The [Registry] is the in-process source of truth for live connections and
// the collection definitions each one knows. It does no I/O:
//
//	reg := adapter.NewRegistry()
//	err := reg.RegisterConnection(adapter.Connection{Identity: "main"}, nil)
//	err = reg.Define("main", "users", adapter.Definition{
//	    "id":    {Type: "string", PrimaryKey: true},
//	    "email": {Type: "string", Required: true},
//	})
//
// The [Adapter] wraps a registry and opens one DynamoDB client per connection.
//
// # Queries
//
// Where clauses may hold a slice of candidate values for an attribute. The
// adapter expands such clauses with [criteria.ObjectProduct] and issues one
// exact-match lookup per combination: a Query when the combination fixes the
// primary key, a Scan with an equality filter otherwise.
//
//	users, err := a.Find(ctx, "main", "users", adapter.Criteria{
//	    Where: map[string]any{"role": []string{"admin", "owner"}},
//	    Limit: 10,
//	})
//
// # Migrations
//
// [Config.Migrate] controls whether Define and Drop create and delete tables:
//
//   - [MigrateSafe] - never touch tables (use in production)
//   - [MigrateAlter] - create missing tables, delete dropped ones
//   - [MigrateDrop] - recreate tables on every Define
//
// # Errors
//
//   - [ErrMissingIdentity] - connection registered without identity
//   - [ErrAlreadyRegistered] - identity already registered
//   - [ErrUnknownConnection] - identity not registered
//   - [ErrAlreadyExists] - record with the primary key already exists
//   - [ErrMissingAttribute] - required attribute absent on create
//   - [ErrTooManyCombinations] - where clause expands past Config.MaxCombinations
package adapter
