package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-faker/faker/v4"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"dossiersync/pkg/config"
	"dossiersync/pkg/logger"
	"dossiersync/pkg/provider"
	"dossiersync/pkg/store"
)

// dossierPayload is the shape of a fake provider record
type dossierPayload struct {
	FirstName string `faker:"first_name"`
	LastName  string `faker:"last_name"`
	City      string `faker:"word"`
	Email     string `faker:"email"`
}

// setupMongo creates a MongoDB container for integration testing.
// ensureIndexes is skipped by the duplicates test so it can inject
// documents past the unique ID index.
func setupMongo(t *testing.T, ensureIndexes bool) (*store.Mongo, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForLog("Waiting for connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start MongoDB container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "27017")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.MongoConfig{
		URI:          fmt.Sprintf("mongodb://%s:%s/", host, port.Port()),
		Database:     "dossier_data_test",
		Collection:   "dossiers",
		OpTimeout:    30 * time.Second,
		WriteRetries: 2,
	}

	docs, err := store.Connect(ctx, cfg, logger.NewNopLogger())
	if err != nil {
		t.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	if ensureIndexes {
		if err := docs.EnsureIndexes(ctx); err != nil {
			t.Fatalf("Failed to ensure indexes: %v", err)
		}
	}

	cleanup := func() {
		docs.Close(ctx)
		container.Terminate(ctx)
	}

	return docs, cleanup
}

// fakeRecords generates provider records with sequential IDs and faked payloads
func fakeRecords(t *testing.T, startID, n int) []provider.Record {
	t.Helper()

	records := make([]provider.Record, 0, n)
	for i := 0; i < n; i++ {
		var payload dossierPayload
		if err := faker.FakeData(&payload); err != nil {
			t.Fatalf("Failed to generate fake data: %v", err)
		}
		records = append(records, provider.Record{
			"ID":         startID + i,
			"first_name": payload.FirstName,
			"last_name":  payload.LastName,
			"city":       payload.City,
			"email":      payload.Email,
		})
	}
	return records
}

func TestBulkUpsertInsertsAndCounts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	docs, cleanup := setupMongo(t, true)
	defer cleanup()

	ctx := context.Background()
	records := fakeRecords(t, 1, 50)

	result, err := docs.BulkUpsert(ctx, records)
	if err != nil {
		t.Fatalf("BulkUpsert failed: %v", err)
	}
	if result.Inserted != 50 {
		t.Errorf("expected 50 inserts, got %d", result.Inserted)
	}
	if result.Errors != 0 || result.Skipped != 0 {
		t.Errorf("unexpected errors=%d skipped=%d", result.Errors, result.Skipped)
	}

	count, err := docs.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 50 {
		t.Errorf("expected 50 documents, got %d", count)
	}
}

func TestBulkUpsertIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	docs, cleanup := setupMongo(t, true)
	defer cleanup()

	ctx := context.Background()
	records := fakeRecords(t, 1, 10)

	if _, err := docs.BulkUpsert(ctx, records); err != nil {
		t.Fatalf("first BulkUpsert failed: %v", err)
	}

	first := loadByID(t, docs, 1)
	firstCreated, ok := first["created_at"].(primitive.DateTime)
	if !ok {
		t.Fatalf("created_at missing or wrong type: %T", first["created_at"])
	}
	firstUpdated := first["updated_at"].(primitive.DateTime)

	time.Sleep(10 * time.Millisecond)

	// Replay the same page with changed payloads
	records[0]["city"] = "changed-city"
	result, err := docs.BulkUpsert(ctx, records)
	if err != nil {
		t.Fatalf("second BulkUpsert failed: %v", err)
	}
	if result.Inserted != 0 {
		t.Errorf("replay must not insert, got %d inserts", result.Inserted)
	}
	if result.Updated != 10 {
		t.Errorf("expected 10 updates, got %d", result.Updated)
	}

	count, _ := docs.Count(ctx)
	if count != 10 {
		t.Errorf("replay must not duplicate, got %d documents", count)
	}

	second := loadByID(t, docs, 1)
	if second["city"] != "changed-city" {
		t.Errorf("payload not refreshed: %v", second["city"])
	}
	if second["created_at"].(primitive.DateTime) != firstCreated {
		t.Error("created_at must survive a replay")
	}
	if !second["updated_at"].(primitive.DateTime).Time().After(firstUpdated.Time()) {
		t.Error("updated_at must move forward on a replay")
	}
}

func TestBulkUpsertSkipsRecordsWithoutID(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	docs, cleanup := setupMongo(t, true)
	defer cleanup()

	ctx := context.Background()
	records := fakeRecords(t, 1, 3)
	records = append(records, provider.Record{"first_name": "no-id"})

	result, err := docs.BulkUpsert(ctx, records)
	if err != nil {
		t.Fatalf("BulkUpsert failed: %v", err)
	}
	if result.Inserted != 3 {
		t.Errorf("expected 3 inserts, got %d", result.Inserted)
	}
	if result.Skipped != 1 {
		t.Errorf("expected 1 skipped record, got %d", result.Skipped)
	}

	count, _ := docs.Count(ctx)
	if count != 3 {
		t.Errorf("expected 3 documents, got %d", count)
	}
}

func TestCleanupDuplicates(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	docs, cleanup := setupMongo(t, false)
	defer cleanup()

	ctx := context.Background()

	if _, err := docs.BulkUpsert(ctx, fakeRecords(t, 1, 5)); err != nil {
		t.Fatalf("BulkUpsert failed: %v", err)
	}

	// Inject duplicates behind the upsert path's back
	injectDuplicate(t, docs, 2)
	injectDuplicate(t, docs, 4)

	count, _ := docs.Count(ctx)
	if count != 7 {
		t.Fatalf("expected 7 documents before cleanup, got %d", count)
	}

	removed, err := docs.CleanupDuplicates(ctx)
	if err != nil {
		t.Fatalf("CleanupDuplicates failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removals, got %d", removed)
	}

	count, _ = docs.Count(ctx)
	if count != 5 {
		t.Errorf("expected 5 documents after cleanup, got %d", count)
	}
}

func loadByID(t *testing.T, docs *store.Mongo, id int) bson.M {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var doc bson.M
	if err := docs.Collection().FindOne(ctx, bson.M{"ID": id}).Decode(&doc); err != nil {
		t.Fatalf("FindOne(ID=%d) failed: %v", id, err)
	}
	return doc
}

func injectDuplicate(t *testing.T, docs *store.Mongo, id int) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := docs.Collection().InsertOne(ctx, bson.M{"ID": id, "injected": true}); err != nil {
		t.Fatalf("InsertOne failed: %v", err)
	}
}
