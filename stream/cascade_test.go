package stream_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/compute/adapter"
	"github.com/jacentio/compute/internal/dynamotest"
	"github.com/jacentio/compute/stream"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newCascadeAdapter registers connection "main" with users, posts and comments,
// where posts and comments reference users and comments reference posts.
func newCascadeAdapter(t *testing.T) (*adapter.Adapter, *dynamotest.Fake) {
	t.Helper()

	fake := dynamotest.New()
	for _, name := range []string{"users", "posts", "comments"} {
		fake.AddTable(name, "id")
	}

	cfg := adapter.DefaultConfig()
	cfg.SoftDelete = true
	a := adapter.New(nil, cfg,
		adapter.WithLogger(discardLogger()),
		adapter.WithClientFactory(func(ctx context.Context, conn adapter.Connection) (adapter.Client, error) {
			return fake, nil
		}),
	)

	err := a.RegisterConnection(context.Background(), adapter.Connection{Identity: "main"}, []adapter.Collection{
		{Name: "users", Definition: adapter.Definition{"id": {Type: "string", PrimaryKey: true}}},
		{Name: "posts", Definition: adapter.Definition{
			"id":     {Type: "string", PrimaryKey: true},
			"author": {Type: "string", Model: "users"},
		}},
		{Name: "comments", Definition: adapter.Definition{
			"id":     {Type: "string", PrimaryKey: true},
			"author": {Type: "string", Model: "users"},
			"post":   {Type: "string", Model: "posts"},
		}},
	})
	if err != nil {
		t.Fatalf("RegisterConnection failed: %v", err)
	}

	ctx := context.Background()
	seed := []struct {
		collection string
		values     map[string]any
	}{
		{"users", map[string]any{"id": "u1"}},
		{"users", map[string]any{"id": "u2"}},
		{"posts", map[string]any{"id": "p1", "author": "u1"}},
		{"posts", map[string]any{"id": "p2", "author": "u2"}},
		{"comments", map[string]any{"id": "c1", "author": "u2", "post": "p1"}},
		{"comments", map[string]any{"id": "c2", "author": "u1", "post": "p2"}},
		{"comments", map[string]any{"id": "c3", "author": "u2", "post": "p2"}},
	}
	for _, s := range seed {
		if _, err := a.Create(ctx, "main", s.collection, s.values); err != nil {
			t.Fatalf("Create %s failed: %v", s.collection, err)
		}
	}
	return a, fake
}

// softDeleteEvent builds the stream event emitted when a record gets a ttl.
func softDeleteEvent(collection, id string) events.DynamoDBEvent {
	return events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{
			{
				EventID:   "evt-" + id,
				EventName: "MODIFY",
				Change: events.DynamoDBStreamRecord{
					OldImage: map[string]events.DynamoDBAttributeValue{
						"id":          events.NewStringAttribute(id),
						"_collection": events.NewStringAttribute(collection),
					},
					NewImage: map[string]events.DynamoDBAttributeValue{
						"id":          events.NewStringAttribute(id),
						"_collection": events.NewStringAttribute(collection),
						"ttl":         events.NewNumberAttribute("1704067200"),
					},
				},
			},
		},
	}
}

func liveIDs(t *testing.T, a *adapter.Adapter, collection string) []string {
	t.Helper()
	records, err := a.Find(context.Background(), "main", collection, adapter.Criteria{})
	if err != nil {
		t.Fatalf("Find %s failed: %v", collection, err)
	}
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i], _ = r["id"].(string)
	}
	return ids
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// --- NewHandler Tests ---

func TestNewHandler(t *testing.T) {
	// Nil adapter and logger should not panic
	h := stream.NewHandler(nil, "", nil)
	if h == nil {
		t.Fatal("expected non-nil Handler")
	}
}

// --- HandleCascadeDelete Tests ---

func TestHandler_HandleCascadeDelete_EmptyEvent(t *testing.T) {
	h := stream.NewHandler(nil, "main", nil)

	err := h.HandleCascadeDelete(context.Background(), events.DynamoDBEvent{})
	if err != nil {
		t.Errorf("expected no error for empty event, got %v", err)
	}
}

func TestHandler_HandleCascadeDelete_SkipsOtherEvents(t *testing.T) {
	a, fake := newCascadeAdapter(t)
	h := stream.NewHandler(a, "main", discardLogger())

	event := softDeleteEvent("users", "u1")
	event.Records[0].EventName = "INSERT"
	event.Records = append(event.Records, events.DynamoDBEventRecord{
		EventName: "REMOVE",
		Change: events.DynamoDBStreamRecord{
			OldImage: map[string]events.DynamoDBAttributeValue{
				"id": events.NewStringAttribute("u2"),
			},
		},
	})

	if err := h.HandleCascadeDelete(context.Background(), event); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if fake.Calls("UpdateItem") != 0 {
		t.Errorf("expected no writes, got %d UpdateItem calls", fake.Calls("UpdateItem"))
	}
}

func TestHandler_HandleCascadeDelete_DestroysReferencingRecords(t *testing.T) {
	a, _ := newCascadeAdapter(t)
	h := stream.NewHandler(a, "main", discardLogger())

	if err := h.HandleCascadeDelete(context.Background(), softDeleteEvent("users", "u1")); err != nil {
		t.Fatalf("HandleCascadeDelete failed: %v", err)
	}

	if got := liveIDs(t, a, "posts"); !equalStrings(got, []string{"p2"}) {
		t.Errorf("expected posts [p2], got %v", got)
	}
	if got := liveIDs(t, a, "comments"); !equalStrings(got, []string{"c1", "c3"}) {
		t.Errorf("expected comments [c1 c3], got %v", got)
	}
	// The handler never touches the deleted record's own collection
	if got := liveIDs(t, a, "users"); !equalStrings(got, []string{"u1", "u2"}) {
		t.Errorf("expected users untouched, got %v", got)
	}
}

func TestHandler_HandleCascadeDelete_Propagates(t *testing.T) {
	a, fake := newCascadeAdapter(t)
	h := stream.NewHandler(a, "main", discardLogger())
	ctx := context.Background()

	if err := h.HandleCascadeDelete(ctx, softDeleteEvent("users", "u2")); err != nil {
		t.Fatalf("HandleCascadeDelete failed: %v", err)
	}
	if got := liveIDs(t, a, "posts"); !equalStrings(got, []string{"p1"}) {
		t.Errorf("expected posts [p1], got %v", got)
	}

	// The soft delete of p2 emits its own event, which reaches c2
	if err := h.HandleCascadeDelete(ctx, softDeleteEvent("posts", "p2")); err != nil {
		t.Fatalf("HandleCascadeDelete failed: %v", err)
	}
	if got := liveIDs(t, a, "comments"); len(got) != 0 {
		t.Errorf("expected no comments left, got %v", got)
	}

	for _, item := range fake.Items("comments") {
		if !adapter.IsDeleted(item) {
			t.Errorf("expected comment %v to be soft-deleted", item["id"])
		}
	}
}

func TestHandler_HandleCascadeDelete_NumericKey(t *testing.T) {
	a, fake := newCascadeAdapter(t)
	ctx := context.Background()

	fake.AddTable("teams", "n")
	fake.AddTable("members", "id")
	if err := a.Define(ctx, "main", "teams", adapter.Definition{"n": {Type: "integer", PrimaryKey: true}}); err != nil {
		t.Fatalf("Define failed: %v", err)
	}
	if err := a.Define(ctx, "main", "members", adapter.Definition{"team": {Type: "integer", Model: "teams"}}); err != nil {
		t.Fatalf("Define failed: %v", err)
	}
	if _, err := a.Create(ctx, "main", "members", map[string]any{"id": "m1", "team": 7}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	event := events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{
			{
				EventName: "MODIFY",
				Change: events.DynamoDBStreamRecord{
					NewImage: map[string]events.DynamoDBAttributeValue{
						"n":           events.NewNumberAttribute("7"),
						"_collection": events.NewStringAttribute("teams"),
						"ttl":         events.NewNumberAttribute("1704067200"),
					},
				},
			},
		},
	}

	h := stream.NewHandler(a, "main", discardLogger())
	if err := h.HandleCascadeDelete(ctx, event); err != nil {
		t.Fatalf("HandleCascadeDelete failed: %v", err)
	}
	if got := liveIDs(t, a, "members"); len(got) != 0 {
		t.Errorf("expected member to be destroyed, got %v", got)
	}
}

func TestHandler_HandleCascadeDelete_ContinuesAfterFailure(t *testing.T) {
	a, _ := newCascadeAdapter(t)
	ctx := context.Background()

	// "likes" references users but has no table
	if err := a.Define(ctx, "main", "likes", adapter.Definition{"user": {Type: "string", Model: "users"}}); err != nil {
		t.Fatalf("Define failed: %v", err)
	}

	h := stream.NewHandler(a, "main", discardLogger())
	err := h.HandleCascadeDelete(ctx, softDeleteEvent("users", "u1"))

	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ResourceNotFoundException, got %v", err)
	}

	// posts sorts after likes and is still processed
	if got := liveIDs(t, a, "posts"); !equalStrings(got, []string{"p2"}) {
		t.Errorf("expected posts [p2], got %v", got)
	}
}

func TestHandler_HandleCascadeDelete_UnknownConnection(t *testing.T) {
	a, _ := newCascadeAdapter(t)
	h := stream.NewHandler(a, "other", discardLogger())

	err := h.HandleCascadeDelete(context.Background(), softDeleteEvent("users", "u1"))
	if !errors.Is(err, adapter.ErrUnknownConnection) {
		t.Errorf("expected ErrUnknownConnection, got %v", err)
	}
}

func TestHandler_HandleCascadeDelete_MissingPrimaryKey(t *testing.T) {
	a, _ := newCascadeAdapter(t)
	h := stream.NewHandler(a, "main", discardLogger())

	event := softDeleteEvent("users", "u1")
	delete(event.Records[0].Change.NewImage, "id")

	if err := h.HandleCascadeDelete(context.Background(), event); err == nil {
		t.Error("expected error for record without primary key")
	}
}
