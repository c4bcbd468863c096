//go:build integration
// +build integration

package rules_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/liamcoop/pricerules/rules"

	_ "github.com/lib/pq"
)

// setupTestDB creates a PostgreSQL container and returns a connection
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "rules_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgresContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	host, err := postgresContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgresContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("host=%s port=%s user=test password=test dbname=rules_test sslmode=disable", host, port.Port())

	var db *sql.DB
	for i := 0; i < 30; i++ {
		db, err = sql.Open("postgres", connStr)
		if err == nil {
			err = db.Ping()
			if err == nil {
				break
			}
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	migrationSQL, err := os.ReadFile(filepath.Join("..", "migrations", "000001_initial_schema.up.sql"))
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}
	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		postgresContainer.Terminate(ctx)
	}

	return db, cleanup
}

func createStore(t *testing.T, db *sql.DB, id string) string {
	_, err := db.Exec(`INSERT INTO stores (id, name) VALUES ($1, $1)`, id)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return id
}

func TestPostgresDefinitionStore_BasicCRUD(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	storeID := createStore(t, db, "main")
	store := rules.NewPostgresDefinitionStore(db, storeID)

	def := &rules.Definition{
		ID:         uuid.NewString(),
		Label:      "Weekend",
		Kind:       rules.KindCEL,
		Mode:       rules.KindPercentage,
		Expression: "item.quantity > 1 ? 5.0 : 0.0",
	}
	if err := store.Add(ctx, def); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if err := store.Add(ctx, def); !errors.Is(err, rules.ErrDuplicateRule) {
		t.Errorf("Add() duplicate error = %v, want ErrDuplicateRule", err)
	}

	got, err := store.Get(ctx, def.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Kind != rules.KindCEL || got.Mode != rules.KindPercentage || got.Expression != def.Expression {
		t.Errorf("Get() = %+v", got)
	}

	got.Label = "Weekend v2"
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(list) != 1 || list[0].Label != "Weekend v2" {
		t.Errorf("List() = %v", list)
	}

	if err := store.Delete(ctx, def.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := store.Get(ctx, def.ID); !errors.Is(err, rules.ErrDefinitionNotFound) {
		t.Errorf("Get() after Delete error = %v, want ErrDefinitionNotFound", err)
	}
	if err := store.Update(ctx, def); !errors.Is(err, rules.ErrDefinitionNotFound) {
		t.Errorf("Update() missing error = %v, want ErrDefinitionNotFound", err)
	}
}

func TestPostgresSettingsStore_SaveLoad(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	storeID := createStore(t, db, "main")
	defs := rules.NewPostgresDefinitionStore(db, storeID)
	settings := rules.NewPostgresSettingsStore(db, storeID)

	if err := defs.Add(ctx, &rules.Definition{ID: "bulk", Kind: rules.KindRange}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	st := rules.Setting{
		RuleID:  "bulk",
		Enabled: true,
		Weight:  5,
		Parameters: rules.Parameters{
			"ranges": []any{map[string]any{"min": 10, "percent": 5}},
		},
	}
	if err := settings.Save(ctx, st); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	st.Weight = 7
	if err := settings.Save(ctx, st); err != nil {
		t.Fatalf("Save() upsert failed: %v", err)
	}

	loaded, err := settings.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	got := loaded["bulk"]
	if !got.Enabled || got.Weight != 7 {
		t.Errorf("Load()[bulk] = %+v", got)
	}
	if len(got.Parameters.List("ranges")) != 1 {
		t.Errorf("parameters did not round-trip: %v", got.Parameters)
	}

	// Deleting the definition cascades to its setting
	if err := defs.Delete(ctx, "bulk"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if err := settings.Delete(ctx, "bulk"); !errors.Is(err, rules.ErrSettingNotFound) {
		t.Errorf("Delete() after cascade error = %v, want ErrSettingNotFound", err)
	}
}

func TestPostgresStores_StoreIsolation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	a := rules.NewPostgresDefinitionStore(db, createStore(t, db, "store-a"))
	b := rules.NewPostgresDefinitionStore(db, createStore(t, db, "store-b"))

	if err := a.Add(ctx, &rules.Definition{ID: "shared", Kind: rules.KindFixed}); err != nil {
		t.Fatalf("Add() to store a failed: %v", err)
	}
	if err := b.Add(ctx, &rules.Definition{ID: "shared", Kind: rules.KindRange}); err != nil {
		t.Fatalf("the same rule id should be usable in another store: %v", err)
	}

	gotA, _ := a.Get(ctx, "shared")
	gotB, _ := b.Get(ctx, "shared")
	if gotA.Kind != rules.KindFixed || gotB.Kind != rules.KindRange {
		t.Errorf("stores leaked definitions: a=%s b=%s", gotA.Kind, gotB.Kind)
	}
}

func TestRegistry_WithDatabase(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	storeID := createStore(t, db, "main")
	defs := rules.NewPostgresDefinitionStore(db, storeID)
	settings := rules.NewPostgresSettingsStore(db, storeID)

	for _, def := range []*rules.Definition{
		{ID: "coupon", Kind: rules.KindFixed},
		{ID: "member", Kind: rules.KindUserPercent},
	} {
		if err := defs.Add(ctx, def); err != nil {
			t.Fatalf("Add(%s) failed: %v", def.ID, err)
		}
	}
	settings.Save(ctx, rules.Setting{RuleID: "coupon", Enabled: true, Weight: 2,
		Parameters: rules.Parameters{"amounts": map[string]any{"USD": 5}}})
	settings.Save(ctx, rules.Setting{RuleID: "member", Enabled: true, Weight: 1,
		Parameters: rules.Parameters{"roles": map[string]any{"vip": 10}}})

	list, err := defs.List(ctx)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	registry := rules.NewRegistry(settings)
	if err := rules.RegisterDefinitions(registry, list); err != nil {
		t.Fatalf("RegisterDefinitions() failed: %v", err)
	}

	item := rules.LineItem{SKU: "A", Quantity: 1, UnitPrice: rules.MustMoney("100", "USD")}
	ev, err := rules.NewEvaluator(registry).Evaluate(ctx, item, rules.RequestContext{Currency: "USD", Roles: []string{"vip"}})
	if err != nil {
		t.Fatalf("Evaluate() failed: %v", err)
	}

	if len(ev.Order) != 2 || ev.Order[0] != "member" || ev.Order[1] != "coupon" {
		t.Errorf("Order = %v, want [member coupon]", ev.Order)
	}
	if adj := ev.Results["coupon"]; adj == nil || !adj.Amount.Amount.Equal(decimal.NewFromInt(5)) {
		t.Errorf("coupon = %v, want 5 USD", adj)
	}
	if adj := ev.Results["member"]; adj == nil || !adj.Percent.Equal(decimal.NewFromInt(10)) {
		t.Errorf("member = %v, want 10%%", adj)
	}
}
