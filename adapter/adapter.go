package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/puzpuzpuz/xsync/v3"
)

// tableWaitTimeout bounds how long Define waits for a table to become active.
const tableWaitTimeout = 2 * time.Minute

// Adapter translates ORM collection operations into DynamoDB operations.
type Adapter struct {
	registry *Registry
	config   Config
	factory  ClientFactory
	logger   *slog.Logger
	clients  *xsync.MapOf[string, Client]
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithClientFactory sets how clients are opened for new connections.
func WithClientFactory(f ClientFactory) Option {
	return func(a *Adapter) {
		if f != nil {
			a.factory = f
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates a new Adapter. A nil registry gets a fresh one.
func New(registry *Registry, config Config, opts ...Option) *Adapter {
	config.validate()
	if registry == nil {
		registry = NewRegistry()
	}
	a := &Adapter{
		registry: registry,
		config:   config,
		factory:  DynamoDBClientFactory,
		logger:   slog.Default(),
		clients:  xsync.NewMapOf[string, Client](),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Registry returns the connection registry.
func (a *Adapter) Registry() *Registry {
	return a.registry
}

// Config returns the validated configuration.
func (a *Adapter) Config() Config {
	return a.config
}

// RegisterConnection registers a connection, opens its client and defines
// every collection that carries a definition.
func (a *Adapter) RegisterConnection(ctx context.Context, conn Connection, collections []Collection) error {
	if err := a.registry.RegisterConnection(conn, collections); err != nil {
		return err
	}

	client, err := a.factory(ctx, conn)
	if err != nil {
		a.registry.Teardown(conn.Identity)
		return fmt.Errorf("open connection %q: %w", conn.Identity, err)
	}
	a.clients.Store(conn.Identity, client)

	a.logger.Info("connection registered",
		"identity", conn.Identity,
		"collections", len(collections),
	)

	for _, c := range collections {
		if c.Definition == nil {
			continue
		}
		if err := a.Define(ctx, conn.Identity, c.Name, c.Definition); err != nil {
			_ = a.Teardown(ctx, conn.Identity)
			return fmt.Errorf("define %q: %w", c.Name, err)
		}
	}
	return nil
}

// Teardown closes a connection. An empty identity closes every connection.
func (a *Adapter) Teardown(ctx context.Context, identity string) error {
	if identity == "" {
		a.clients.Clear()
	} else {
		a.clients.Delete(identity)
	}
	a.registry.Teardown(identity)

	a.logger.Info("connection torn down", "identity", identity)
	return nil
}

// Describe returns the definition of a collection, or nil if it was never defined.
func (a *Adapter) Describe(ctx context.Context, identity, collection string) (Definition, error) {
	return a.registry.Describe(identity, collection)
}

// Define stores a collection definition and migrates its table per Config.Migrate.
func (a *Adapter) Define(ctx context.Context, identity, collection string, def Definition) error {
	if err := a.registry.Define(identity, collection, def); err != nil {
		return err
	}
	if a.config.Migrate == MigrateSafe {
		return nil
	}

	client, table, err := a.resolve(identity, collection)
	if err != nil {
		return err
	}

	exists, err := tableExists(ctx, client, table)
	if err != nil {
		return fmt.Errorf("describe table %s: %w", table, err)
	}

	if exists && a.config.Migrate == MigrateDrop {
		if err := deleteTable(ctx, client, table); err != nil {
			return err
		}
		exists = false
	}
	if exists {
		return nil
	}

	if err := createTable(ctx, client, table, def); err != nil {
		return err
	}

	a.logger.Info("table created",
		"identity", identity,
		"collection", collection,
		"table", table,
	)
	return nil
}

// Drop forgets a collection definition and, unless Migrate is safe, deletes its table.
func (a *Adapter) Drop(ctx context.Context, identity, collection string, relations []string) error {
	if err := a.registry.Drop(identity, collection, relations); err != nil {
		return err
	}
	if a.config.Migrate == MigrateSafe {
		return nil
	}

	client, table, err := a.resolve(identity, collection)
	if err != nil {
		return err
	}
	if err := deleteTable(ctx, client, table); err != nil {
		return err
	}

	a.logger.Info("table dropped",
		"identity", identity,
		"collection", collection,
		"table", table,
		"relations", relations,
	)
	return nil
}

// resolve returns the client and table name for a collection.
func (a *Adapter) resolve(identity, collection string) (Client, string, error) {
	client, ok := a.clients.Load(identity)
	if !ok {
		return nil, "", ErrUnknownConnection
	}
	table, err := a.registry.TableName(identity, collection)
	if err != nil {
		return nil, "", err
	}
	return client, table, nil
}

// tableExists reports whether a table exists.
func tableExists(ctx context.Context, client Client, table string) (bool, error) {
	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(table),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// createTable creates a pay-per-request table keyed on the definition's primary key
// and waits until it is active.
func createTable(ctx context.Context, client Client, table string, def Definition) error {
	pk := def.PrimaryKey()
	_, err := client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(table),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(pk), KeyType: types.KeyTypeHash},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(pk), AttributeType: def.KeyType()},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if !errors.As(err, &inUse) {
			return fmt.Errorf("create table %s: %w", table, err)
		}
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(table),
	}, tableWaitTimeout); err != nil {
		return fmt.Errorf("wait for table %s: %w", table, err)
	}
	return nil
}

// deleteTable deletes a table and waits until it is gone. A missing table is not an error.
func deleteTable(ctx context.Context, client Client, table string) error {
	_, err := client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(table),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("delete table %s: %w", table, err)
	}

	waiter := dynamodb.NewTableNotExistsWaiter(client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(table),
	}, tableWaitTimeout); err != nil {
		return fmt.Errorf("wait for table %s deletion: %w", table, err)
	}
	return nil
}
