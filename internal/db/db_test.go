//go:build integration

// Package db provides integration tests for SurrealDB operations.
package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testDB *Client
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := testDB.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

func sampleRecord(packetID, title string) AnalyticalRecord {
	return AnalyticalRecord{
		PacketID: packetID,
		Title:    title,
		Tags:     []string{"sales", "report"},
		Fields: map[string]any{
			"quarter": "Q3",
			"region":  "EMEA",
		},
		Tables: []map[string]any{
			{
				"name":    "revenue",
				"columns": []string{"month", "amount"},
				"rows":    [][]any{{"July", 120}, {"August", 95}},
			},
		},
		SearchText: title + " quarterly revenue sales EMEA",
	}
}

// =============================================================================
// ANALYTICAL RECORD TESTS
// =============================================================================

func TestUpsertAnalyticalRecord(t *testing.T) {
	ctx := context.Background()
	t.Cleanup(func() { _ = testDB.WipeData(ctx) })

	if err := testDB.UpsertAnalyticalRecord(ctx, sampleRecord("pkt-an-1", "Q3 Sales Report")); err != nil {
		t.Fatalf("UpsertAnalyticalRecord failed: %v", err)
	}

	// Rewriting the same packet must not create a second record.
	rec := sampleRecord("pkt-an-1", "Q3 Sales Report (revised)")
	if err := testDB.UpsertAnalyticalRecord(ctx, rec); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	got, err := testDB.QueryAnalytical(ctx, "sales", nil, 10)
	if err != nil {
		t.Fatalf("QueryAnalytical failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record after rewrite, got %d", len(got))
	}
	if got[0].Title != "Q3 Sales Report (revised)" {
		t.Errorf("expected revised title, got %q", got[0].Title)
	}
	if got[0].Fields["region"] != "EMEA" {
		t.Errorf("expected region EMEA, got %v", got[0].Fields["region"])
	}
}

func TestQueryAnalyticalByFilters(t *testing.T) {
	ctx := context.Background()
	t.Cleanup(func() { _ = testDB.WipeData(ctx) })

	emea := sampleRecord("pkt-an-2", "EMEA Numbers")
	apac := sampleRecord("pkt-an-3", "APAC Numbers")
	apac.Fields["region"] = "APAC"
	for _, rec := range []AnalyticalRecord{emea, apac} {
		if err := testDB.UpsertAnalyticalRecord(ctx, rec); err != nil {
			t.Fatalf("upsert %s failed: %v", rec.PacketID, err)
		}
	}

	got, err := testDB.QueryAnalytical(ctx, "", map[string]string{"region": "APAC"}, 10)
	if err != nil {
		t.Fatalf("QueryAnalytical failed: %v", err)
	}
	if len(got) != 1 || got[0].PacketID != "pkt-an-3" {
		t.Fatalf("expected only pkt-an-3, got %+v", got)
	}

	// Unsafe filter keys are rejected before reaching the database.
	if _, err := testDB.QueryAnalytical(ctx, "", map[string]string{"region; DELETE": "x"}, 10); err == nil {
		t.Error("expected error for invalid filter key")
	}
}

func TestDeleteAnalyticalByPacket(t *testing.T) {
	ctx := context.Background()
	t.Cleanup(func() { _ = testDB.WipeData(ctx) })

	if err := testDB.UpsertAnalyticalRecord(ctx, sampleRecord("pkt-an-4", "To Be Retired")); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := testDB.DeleteAnalyticalByPacket(ctx, "pkt-an-4"); err != nil {
		t.Fatalf("DeleteAnalyticalByPacket failed: %v", err)
	}

	got, err := testDB.QueryAnalytical(ctx, "retired", nil, 10)
	if err != nil {
		t.Fatalf("QueryAnalytical failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no records after retirement, got %d", len(got))
	}
}

// =============================================================================
// GRAPH TESTS
// =============================================================================

func seedGraph(t *testing.T, ctx context.Context, packetID string) {
	t.Helper()
	if err := testDB.UpsertGraphEntity(ctx, packetID, "person", "Sarah Chen", map[string]any{"role": "director"}); err != nil {
		t.Fatalf("upsert entity failed: %v", err)
	}
	if err := testDB.UpsertGraphEntity(ctx, packetID, "project", "Apollo", nil); err != nil {
		t.Fatalf("upsert entity failed: %v", err)
	}
	err := testDB.RelateEntities(ctx, packetID,
		Slugify("person", "Sarah Chen"), Slugify("project", "Apollo"),
		"leads", nil)
	if err != nil && !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("relate failed: %v", err)
	}
}

func TestQueryGraphByName(t *testing.T) {
	ctx := context.Background()
	t.Cleanup(func() { _ = testDB.WipeData(ctx) })
	seedGraph(t, ctx, "pkt-gr-1")

	got, err := testDB.QueryGraph(ctx, []string{"sarah chen"}, "", 10)
	if err != nil {
		t.Fatalf("QueryGraph failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(got))
	}
	ent := got[0]
	if ent.Name != "Sarah Chen" || ent.EntityType != "person" {
		t.Errorf("unexpected entity %q (%s)", ent.Name, ent.EntityType)
	}
	if len(ent.PacketIDs) != 1 || ent.PacketIDs[0] != "pkt-gr-1" {
		t.Errorf("expected packet_ids [pkt-gr-1], got %v", ent.PacketIDs)
	}
	if len(ent.Outgoing) != 1 || ent.Outgoing[0].Target != "Apollo" || ent.Outgoing[0].RelType != "leads" {
		t.Errorf("expected outgoing leads->Apollo, got %+v", ent.Outgoing)
	}
}

func TestQueryGraphByText(t *testing.T) {
	ctx := context.Background()
	t.Cleanup(func() { _ = testDB.WipeData(ctx) })
	seedGraph(t, ctx, "pkt-gr-2")

	got, err := testDB.QueryGraph(ctx, nil, "apollo", 10)
	if err != nil {
		t.Fatalf("QueryGraph failed: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Apollo" {
		t.Fatalf("expected Apollo via full-text, got %+v", got)
	}
	if len(got[0].Incoming) != 1 || got[0].Incoming[0].Source != "Sarah Chen" {
		t.Errorf("expected incoming edge from Sarah Chen, got %+v", got[0].Incoming)
	}
}

func TestRelateEntitiesDuplicate(t *testing.T) {
	ctx := context.Background()
	t.Cleanup(func() { _ = testDB.WipeData(ctx) })
	seedGraph(t, ctx, "pkt-gr-3")

	err := testDB.RelateEntities(ctx, "pkt-gr-3",
		Slugify("person", "Sarah Chen"), Slugify("project", "Apollo"),
		"leads", nil)
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists for duplicate edge, got %v", err)
	}
}

func TestDeleteGraphByPacket(t *testing.T) {
	ctx := context.Background()
	t.Cleanup(func() { _ = testDB.WipeData(ctx) })

	// Two packets mention Sarah Chen; only one mentions Apollo.
	seedGraph(t, ctx, "pkt-gr-4")
	if err := testDB.UpsertGraphEntity(ctx, "pkt-gr-5", "person", "Sarah Chen", nil); err != nil {
		t.Fatalf("upsert entity failed: %v", err)
	}

	if err := testDB.DeleteGraphByPacket(ctx, "pkt-gr-4"); err != nil {
		t.Fatalf("DeleteGraphByPacket failed: %v", err)
	}

	// Shared entity survives, detached from the retired packet.
	got, err := testDB.QueryGraph(ctx, []string{"sarah chen"}, "", 10)
	if err != nil {
		t.Fatalf("QueryGraph failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected Sarah Chen to survive, got %d entities", len(got))
	}
	if len(got[0].PacketIDs) != 1 || got[0].PacketIDs[0] != "pkt-gr-5" {
		t.Errorf("expected packet_ids [pkt-gr-5], got %v", got[0].PacketIDs)
	}
	if len(got[0].Outgoing) != 0 {
		t.Errorf("expected retired packet's edges gone, got %+v", got[0].Outgoing)
	}

	// Apollo had no other mentions and should be dropped entirely.
	got, err = testDB.QueryGraph(ctx, []string{"apollo"}, "", 10)
	if err != nil {
		t.Fatalf("QueryGraph failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected Apollo removed with its last packet, got %+v", got)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		entityType, name, want string
	}{
		{"person", "Sarah Chen", "person-sarah-chen"},
		{"project", "Apollo 11!", "project-apollo-11"},
		{"Team", "  Platform / Infra  ", "team-platform-infra"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.entityType, tt.name); got != tt.want {
			t.Errorf("Slugify(%q, %q) = %q, want %q", tt.entityType, tt.name, got, tt.want)
		}
	}
}

func TestPing(t *testing.T) {
	if err := testDB.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
