package adapter

import (
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// connectionEntry is the registry state of one live connection.
type connectionEntry struct {
	conn Connection

	mu          sync.RWMutex
	tables      map[string]string
	definitions map[string]Definition
}

// Registry tracks live connections and the collection definitions each one knows.
// It performs no I/O and is safe for concurrent use.
type Registry struct {
	connections *xsync.MapOf[string, *connectionEntry]
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		connections: xsync.NewMapOf[string, *connectionEntry](),
	}
}

// RegisterConnection adds a connection with an empty set of definitions.
// Collections only contribute table name overrides.
func (r *Registry) RegisterConnection(conn Connection, collections []Collection) error {
	if conn.Identity == "" {
		return ErrMissingIdentity
	}

	entry := &connectionEntry{
		conn:        conn,
		tables:      make(map[string]string, len(collections)),
		definitions: make(map[string]Definition),
	}
	for _, c := range collections {
		if c.Name != "" && c.TableName != "" {
			entry.tables[c.Name] = c.TableName
		}
	}

	if _, loaded := r.connections.LoadOrStore(conn.Identity, entry); loaded {
		return ErrAlreadyRegistered
	}
	return nil
}

// Teardown removes the connection with the given identity.
// An empty identity removes every connection. Unknown identities are ignored.
func (r *Registry) Teardown(identity string) {
	if identity == "" {
		r.connections.Clear()
		return
	}
	r.connections.Delete(identity)
}

// Define stores the definition of a collection, replacing any previous one.
func (r *Registry) Define(identity, collection string, def Definition) error {
	entry, ok := r.connections.Load(identity)
	if !ok {
		return ErrUnknownConnection
	}

	entry.mu.Lock()
	entry.definitions[collection] = def.clone()
	entry.mu.Unlock()
	return nil
}

// Describe returns the stored definition of a collection.
// It returns (nil, nil) if the collection was never defined.
func (r *Registry) Describe(identity, collection string) (Definition, error) {
	entry, ok := r.connections.Load(identity)
	if !ok {
		return nil, ErrUnknownConnection
	}

	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return entry.definitions[collection].clone(), nil
}

// Drop forgets the definition of a collection.
// Relations are the collections referencing it; cascading is left to the store.
func (r *Registry) Drop(identity, collection string, relations []string) error {
	entry, ok := r.connections.Load(identity)
	if !ok {
		return ErrUnknownConnection
	}

	entry.mu.Lock()
	delete(entry.definitions, collection)
	entry.mu.Unlock()
	return nil
}

// Connection returns the descriptor a connection was registered with.
func (r *Registry) Connection(identity string) (Connection, bool) {
	entry, ok := r.connections.Load(identity)
	if !ok {
		return Connection{}, false
	}
	return entry.conn, true
}

// TableName returns the table backing a collection.
func (r *Registry) TableName(identity, collection string) (string, error) {
	entry, ok := r.connections.Load(identity)
	if !ok {
		return "", ErrUnknownConnection
	}

	entry.mu.RLock()
	defer entry.mu.RUnlock()
	if table, ok := entry.tables[collection]; ok {
		return table, nil
	}
	return entry.conn.TablePrefix + collection, nil
}

// Collections returns the defined collection names of a connection, sorted.
func (r *Registry) Collections(identity string) ([]string, error) {
	entry, ok := r.connections.Load(identity)
	if !ok {
		return nil, ErrUnknownConnection
	}

	entry.mu.RLock()
	names := make([]string, 0, len(entry.definitions))
	for name := range entry.definitions {
		names = append(names, name)
	}
	entry.mu.RUnlock()

	sort.Strings(names)
	return names, nil
}

// Identities returns every registered identity, sorted.
func (r *Registry) Identities() []string {
	var ids []string
	r.connections.Range(func(id string, _ *connectionEntry) bool {
		ids = append(ids, id)
		return true
	})
	sort.Strings(ids)
	return ids
}

// Relations returns every defined attribute referencing collection via Model,
// ordered by collection then attribute name.
func (r *Registry) Relations(identity, collection string) ([]Relation, error) {
	entry, ok := r.connections.Load(identity)
	if !ok {
		return nil, ErrUnknownConnection
	}

	var rels []Relation
	entry.mu.RLock()
	for name, def := range entry.definitions {
		for attr, a := range def {
			if a.Model == collection {
				rels = append(rels, Relation{Collection: name, Attribute: attr})
			}
		}
	}
	entry.mu.RUnlock()

	sort.Slice(rels, func(i, j int) bool {
		if rels[i].Collection != rels[j].Collection {
			return rels[i].Collection < rels[j].Collection
		}
		return rels[i].Attribute < rels[j].Attribute
	})
	return rels, nil
}

// HasRelations returns true if any defined collection references collection.
func (r *Registry) HasRelations(identity, collection string) bool {
	rels, err := r.Relations(identity, collection)
	return err == nil && len(rels) > 0
}
