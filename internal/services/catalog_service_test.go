package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pricewatch/internal/config"
	"pricewatch/internal/models"
	"pricewatch/internal/pagination"
	"pricewatch/internal/testutil"
)

func countRows(t *testing.T, svc CatalogServicer, table string) int64 {
	t.Helper()
	var n int64
	if err := svc.(*catalogService).db.Table(table).Count(&n).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestUpsertProduct(t *testing.T) {
	ctx := context.Background()

	t.Run("idempotent", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCatalogService(db)

		id1, err := svc.UpsertProduct(ctx, "Diapers", "diapers")
		testutil.AssertNoError(t, err)
		id2, err := svc.UpsertProduct(ctx, "Diapers", "diapers")
		testutil.AssertNoError(t, err)

		if id1 == "" || id1 != id2 {
			t.Errorf("expected the same id twice, got %q and %q", id1, id2)
		}
		if n := countRows(t, svc, "products"); n != 1 {
			t.Errorf("expected 1 product, got %d", n)
		}
	})

	t.Run("updates_display_name", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCatalogService(db)

		id1, err := svc.UpsertProduct(ctx, "Diapers", "diapers")
		testutil.AssertNoError(t, err)
		id2, err := svc.UpsertProduct(ctx, "Diapers Stage 5", "diapers")
		testutil.AssertNoError(t, err)
		if id1 != id2 {
			t.Fatalf("expected alias to keep its id")
		}

		var p models.Product
		if err := db.First(&p, "id = ?", id1).Error; err != nil {
			t.Fatal(err)
		}
		if p.Name != "Diapers Stage 5" || p.Alias != "diapers" {
			t.Errorf("unexpected product %+v", p)
		}
	})

	t.Run("missing_alias", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCatalogService(db)

		_, err := svc.UpsertProduct(ctx, "Diapers", "  ")
		testutil.AssertAppError(t, err, "INVALID_CONFIG")
	})
}

func TestUpsertPresentation(t *testing.T) {
	ctx := context.Background()

	t.Run("idempotent", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCatalogService(db)
		product := testutil.CreateTestProduct(t, db)

		id1, err := svc.UpsertPresentation(ctx, product.ID, "Size 5", 56)
		testutil.AssertNoError(t, err)
		id2, err := svc.UpsertPresentation(ctx, product.ID, "Size 5", 56)
		testutil.AssertNoError(t, err)

		if id1 != id2 {
			t.Errorf("expected the same id twice, got %q and %q", id1, id2)
		}
		if n := countRows(t, svc, "presentations"); n != 1 {
			t.Errorf("expected 1 presentation, got %d", n)
		}
	})

	t.Run("non_positive_unit_count", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCatalogService(db)
		product := testutil.CreateTestProduct(t, db)

		for _, n := range []int{0, -1} {
			_, err := svc.UpsertPresentation(ctx, product.ID, "Size 5", n)
			testutil.AssertAppError(t, err, "INVALID_CONFIG")
		}
		if n := countRows(t, svc, "presentations"); n != 0 {
			t.Errorf("expected no presentations, got %d", n)
		}
	})

	t.Run("unknown_product", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCatalogService(db)

		_, err := svc.UpsertPresentation(ctx, "0190c4b6-0000-7000-8000-000000000000", "Size 5", 56)
		testutil.AssertAppError(t, err, "PRODUCT_NOT_FOUND")
	})

	t.Run("updates_unit_count", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCatalogService(db)
		product := testutil.CreateTestProduct(t, db)

		id1, err := svc.UpsertPresentation(ctx, product.ID, "Size 5", 56)
		testutil.AssertNoError(t, err)
		id2, err := svc.UpsertPresentation(ctx, product.ID, "Size 5", 60)
		testutil.AssertNoError(t, err)
		if id1 != id2 {
			t.Fatal("expected the same presentation")
		}

		var p models.Presentation
		if err := db.First(&p, "id = ?", id1).Error; err != nil {
			t.Fatal(err)
		}
		if p.UnitCount != 60 {
			t.Errorf("expected unit count 60, got %d", p.UnitCount)
		}
	})
}

func TestUpsertStore(t *testing.T) {
	ctx := context.Background()

	t.Run("idempotent", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCatalogService(db)
		product := testutil.CreateTestProduct(t, db)
		presentation := testutil.CreateTestPresentation(t, db, product.ID, 56)

		id1, err := svc.UpsertStore(ctx, presentation.ID, "RetailerA", "https://a.example/p/1")
		testutil.AssertNoError(t, err)
		id2, err := svc.UpsertStore(ctx, presentation.ID, "RetailerA", "https://a.example/p/1")
		testutil.AssertNoError(t, err)

		if id1 != id2 {
			t.Errorf("expected the same id twice, got %q and %q", id1, id2)
		}
		if n := countRows(t, svc, "stores"); n != 1 {
			t.Errorf("expected 1 store, got %d", n)
		}
	})

	t.Run("conflicting_mapping", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCatalogService(db)
		product := testutil.CreateTestProduct(t, db)
		first := testutil.CreateTestPresentation(t, db, product.ID, 56)
		second := testutil.CreateTestPresentation(t, db, product.ID, 100)

		_, err := svc.UpsertStore(ctx, first.ID, "RetailerA", "https://a.example/p/1")
		testutil.AssertNoError(t, err)

		_, err = svc.UpsertStore(ctx, second.ID, "RetailerA", "https://a.example/p/1")
		testutil.AssertAppError(t, err, "CONFLICTING_STORE_MAPPING")
	})

	t.Run("unknown_presentation", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCatalogService(db)

		_, err := svc.UpsertStore(ctx, "0190c4b6-0000-7000-8000-000000000000", "RetailerA", "https://a.example/p/1")
		testutil.AssertAppError(t, err, "NOT_FOUND")
	})
}

func TestRecordObservation(t *testing.T) {
	ctx := context.Background()

	t.Run("price_per_unit", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCatalogService(db)

		cases := []struct {
			unitCount  int
			official   float64
			discounted *float64
		}{
			{56, 45000, nil},
			{56, 45000, testutil.Float(39990)},
			{1, 12.5, nil},
			{3, 100, testutil.Float(99.99)},
			{240, 38900, testutil.Float(0.5)},
		}

		for i, tc := range cases {
			product := testutil.CreateTestProduct(t, db)
			presentation := testutil.CreateTestPresentation(t, db, product.ID, tc.unitCount)
			store := testutil.CreateTestStore(t, db, presentation.ID)

			_, err := svc.RecordObservation(ctx, store.URL, fmt.Sprintf("Item %d", i), tc.official, tc.discounted)
			testutil.AssertNoError(t, err)

			last, err := svc.LastObservation(ctx, store.URL)
			testutil.AssertNoError(t, err)
			if last == nil {
				t.Fatalf("case %d: expected an observation", i)
			}

			effective := tc.official
			if tc.discounted != nil {
				effective = *tc.discounted
			}
			testutil.AssertFloat(t, "price per unit", effective/float64(tc.unitCount), last.PricePerUnit.InexactFloat64())
			testutil.AssertFloat(t, "official price", tc.official, last.Official())
			if (tc.discounted == nil) != (last.Discounted() == nil) {
				t.Errorf("case %d: discounted presence mismatch", i)
			}
		}
	})

	t.Run("uses_clock", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		svc := NewCatalogService(db, WithClock(func() time.Time { return fixed }))
		_, _, store := testutil.CreateTestHierarchy(t, db, 1)

		obs, err := svc.RecordObservation(ctx, store.URL, "Item", 10, nil)
		testutil.AssertNoError(t, err)
		if !obs.ObservedAt.Equal(fixed) {
			t.Errorf("expected %v, got %v", fixed, obs.ObservedAt)
		}
	})

	t.Run("invalid_prices", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCatalogService(db)
		_, _, store := testutil.CreateTestHierarchy(t, db, 1)

		bad := []struct {
			name       string
			official   float64
			discounted *float64
		}{
			{"zero_official", 0, nil},
			{"negative_official", -5, nil},
			{"discount_equal", 100, testutil.Float(100)},
			{"discount_above", 100, testutil.Float(120)},
			{"discount_zero", 100, testutil.Float(0)},
		}
		for _, tc := range bad {
			t.Run(tc.name, func(t *testing.T) {
				_, err := svc.RecordObservation(ctx, store.URL, "Item", tc.official, tc.discounted)
				testutil.AssertAppError(t, err, "INVALID_PRICE")
			})
		}
		if n := countRows(t, svc, "prices"); n != 0 {
			t.Errorf("expected no observations, got %d", n)
		}
	})

	t.Run("rounds_to_cents", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCatalogService(db)
		_, _, store := testutil.CreateTestHierarchy(t, db, 50)

		obs, err := svc.RecordObservation(ctx, store.URL, "Item", 45000.004, testutil.Float(40000.006))
		testutil.AssertNoError(t, err)

		last, err := svc.LastObservation(ctx, store.URL)
		testutil.AssertNoError(t, err)
		for _, o := range []*models.PriceObservation{obs, last} {
			if !o.OfficialPrice.Equal(decimal.RequireFromString("45000")) {
				t.Errorf("expected official 45000, got %s", o.OfficialPrice)
			}
			if !o.DiscountedPrice.Valid || !o.DiscountedPrice.Decimal.Equal(decimal.RequireFromString("40000.01")) {
				t.Errorf("expected discounted 40000.01, got %v", o.DiscountedPrice)
			}
			if !o.PricePerUnit.Equal(decimal.RequireFromString("800.0002")) {
				t.Errorf("expected price per unit 800.0002, got %s", o.PricePerUnit)
			}
		}
	})

	t.Run("discount_equal_after_rounding", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCatalogService(db)
		_, _, store := testutil.CreateTestHierarchy(t, db, 1)

		_, err := svc.RecordObservation(ctx, store.URL, "Item", 10.004, testutil.Float(10.001))
		testutil.AssertAppError(t, err, "INVALID_PRICE")
		if n := countRows(t, svc, "prices"); n != 0 {
			t.Errorf("expected no observations, got %d", n)
		}
	})

	t.Run("store_lookup_failure", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCatalogService(db)
		_, _, store := testutil.CreateTestHierarchy(t, db, 1)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := svc.RecordObservation(cancelled, store.URL, "Item", 10, nil)
		testutil.AssertAppError(t, err, "PERSISTENCE_FAILED")
	})

	t.Run("unknown_store", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCatalogService(db)
		_, _, store := testutil.CreateTestHierarchy(t, db, 1)
		_, err := svc.RecordObservation(ctx, store.URL, "Item", 10, nil)
		testutil.AssertNoError(t, err)

		_, err = svc.RecordObservation(ctx, "https://unknown.example/p/1", "Item", 10, nil)
		testutil.AssertAppError(t, err, "UNKNOWN_STORE")

		history, err := svc.History(ctx, store.URL, 0)
		testutil.AssertNoError(t, err)
		if len(history) != 1 {
			t.Errorf("expected existing history untouched, got %d rows", len(history))
		}
		if n := countRows(t, svc, "prices"); n != 1 {
			t.Errorf("expected 1 observation overall, got %d", n)
		}
	})

	t.Run("concurrent_writes", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCatalogService(db)
		_, presentation, storeA := testutil.CreateTestHierarchy(t, db, 2)
		storeB := testutil.CreateTestStore(t, db, presentation.ID)

		var wg sync.WaitGroup
		errs := make(chan error, 40)
		for i := 0; i < 20; i++ {
			for _, url := range []string{storeA.URL, storeB.URL} {
				wg.Add(1)
				go func(url string, price float64) {
					defer wg.Done()
					if _, err := svc.RecordObservation(ctx, url, "Item", price, nil); err != nil {
						errs <- err
					}
				}(url, float64(100+i))
			}
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Errorf("unexpected error: %v", err)
		}

		for _, url := range []string{storeA.URL, storeB.URL} {
			history, err := svc.History(ctx, url, 100)
			testutil.AssertNoError(t, err)
			if len(history) != 20 {
				t.Errorf("expected 20 observations for %s, got %d", url, len(history))
			}
		}
	})
}

func TestLastObservation(t *testing.T) {
	ctx := context.Background()

	t.Run("no_history", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCatalogService(db)
		_, _, store := testutil.CreateTestHierarchy(t, db, 1)

		last, err := svc.LastObservation(ctx, store.URL)
		testutil.AssertNoError(t, err)
		if last != nil {
			t.Errorf("expected no observation, got %+v", last)
		}
	})

	t.Run("max_timestamp_not_insert_order", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCatalogService(db)
		_, _, store := testutil.CreateTestHierarchy(t, db, 1)

		base := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
		_, err := svc.RecordObservationAt(ctx, store.URL, "Item", 300, nil, base.Add(2*time.Hour))
		testutil.AssertNoError(t, err)
		// Backfilled older rows inserted afterwards must not win.
		_, err = svc.RecordObservationAt(ctx, store.URL, "Item", 100, nil, base)
		testutil.AssertNoError(t, err)
		_, err = svc.RecordObservationAt(ctx, store.URL, "Item", 200, nil, base.Add(time.Hour))
		testutil.AssertNoError(t, err)

		last, err := svc.LastObservation(ctx, store.URL)
		testutil.AssertNoError(t, err)
		if last == nil || last.Official() != 300 {
			t.Errorf("expected the latest observation (300), got %+v", last)
		}
	})

	t.Run("unknown_store", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCatalogService(db)

		_, err := svc.LastObservation(ctx, "https://unknown.example")
		testutil.AssertAppError(t, err, "UNKNOWN_STORE")
	})
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := NewCatalogService(db)
	_, _, store := testutil.CreateTestHierarchy(t, db, 1)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 15; i++ {
		_, err := svc.RecordObservationAt(ctx, store.URL, "Item", float64(1000+i), nil, base.Add(time.Duration(i)*time.Hour))
		testutil.AssertNoError(t, err)
	}

	t.Run("default_limit", func(t *testing.T) {
		history, err := svc.History(ctx, store.URL, 0)
		testutil.AssertNoError(t, err)
		if len(history) != DefaultHistoryLimit {
			t.Fatalf("expected %d rows, got %d", DefaultHistoryLimit, len(history))
		}
		if history[0].Official() != 1014 {
			t.Errorf("expected most recent first, got %v", history[0].Official())
		}
		for i := 1; i < len(history); i++ {
			if history[i].ObservedAt.After(history[i-1].ObservedAt) {
				t.Fatalf("history not ordered most recent first at %d", i)
			}
		}
	})

	t.Run("restartable", func(t *testing.T) {
		first, err := svc.History(ctx, store.URL, 3)
		testutil.AssertNoError(t, err)
		second, err := svc.History(ctx, store.URL, 3)
		testutil.AssertNoError(t, err)
		for i := range first {
			if first[i].ID != second[i].ID {
				t.Errorf("expected identical sequences, differ at %d", i)
			}
		}
	})
}

func TestSeedHierarchy(t *testing.T) {
	ctx := context.Background()
	products := []config.ProductConfig{
		{
			Name:  "Diapers",
			Alias: "diapers",
			Presentations: []config.PresentationConfig{
				{Size: "Size 5", UnitCount: 56, Stores: []config.StoreConfig{
					{Name: "RetailerA", URL: "https://a.example/diapers"},
					{Name: "RetailerB", URL: "https://b.example/diapers"},
				}},
			},
		},
		{
			Name:  "Wipes",
			Alias: "wipes",
			Presentations: []config.PresentationConfig{
				{Size: "3 x 80", UnitCount: 240, Stores: []config.StoreConfig{
					{Name: "RetailerA", URL: "https://a.example/wipes"},
				}},
			},
		},
	}

	t.Run("idempotent", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCatalogService(db)

		res, err := svc.SeedHierarchy(ctx, products)
		testutil.AssertNoError(t, err)
		if res.Products != 2 || res.Presentations != 2 || res.Stores != 3 {
			t.Errorf("unexpected seed result %+v", res)
		}

		_, err = svc.SeedHierarchy(ctx, products)
		testutil.AssertNoError(t, err)

		for table, want := range map[string]int64{"products": 2, "presentations": 2, "stores": 3} {
			if n := countRows(t, svc, table); n != want {
				t.Errorf("expected %d %s, got %d", want, table, n)
			}
		}
	})

	t.Run("rolls_back_on_conflict", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCatalogService(db)

		_, err := svc.SeedHierarchy(ctx, products)
		testutil.AssertNoError(t, err)

		conflicting := []config.ProductConfig{
			{Name: "Cream", Alias: "cream", Presentations: []config.PresentationConfig{
				{Size: "200ml", UnitCount: 1, Stores: []config.StoreConfig{
					{Name: "RetailerC", URL: "https://c.example/cream"},
				}},
			}},
			{Name: "Diapers", Alias: "diapers", Presentations: []config.PresentationConfig{
				{Size: "Size 6", UnitCount: 50, Stores: []config.StoreConfig{
					{Name: "RetailerA", URL: "https://a.example/diapers"},
				}},
			}},
		}
		_, err = svc.SeedHierarchy(ctx, conflicting)
		testutil.AssertAppError(t, err, "CONFLICTING_STORE_MAPPING")

		if n := countRows(t, svc, "products"); n != 2 {
			t.Errorf("expected rollback to keep 2 products, got %d", n)
		}
		if n := countRows(t, svc, "presentations"); n != 2 {
			t.Errorf("expected rollback to keep 2 presentations, got %d", n)
		}
	})
}

func TestListTargets(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := NewCatalogService(db)

	_, err := svc.SeedHierarchy(ctx, []config.ProductConfig{
		{Name: "Wipes", Alias: "wipes", Presentations: []config.PresentationConfig{
			{Size: "3 x 80", UnitCount: 240, Stores: []config.StoreConfig{{Name: "RetailerA", URL: "https://a.example/wipes"}}},
		}},
		{Name: "Diapers", Alias: "diapers", Presentations: []config.PresentationConfig{
			{Size: "Size 5", UnitCount: 56, Stores: []config.StoreConfig{
				{Name: "RetailerB", URL: "https://b.example/diapers"},
				{Name: "RetailerA", URL: "https://a.example/diapers"},
			}},
		}},
	})
	testutil.AssertNoError(t, err)

	t.Run("all", func(t *testing.T) {
		targets, err := svc.ListTargets(ctx)
		testutil.AssertNoError(t, err)
		if len(targets) != 3 {
			t.Fatalf("expected 3 targets, got %d", len(targets))
		}
		first := targets[0]
		if first.Alias != "diapers" || first.StoreName != "RetailerA" || first.UnitCount != 56 || first.URL != "https://a.example/diapers" {
			t.Errorf("unexpected first target %+v", first)
		}
		if first.Label() != "Diapers (RetailerA)" {
			t.Errorf("unexpected label %q", first.Label())
		}
		if targets[2].Alias != "wipes" {
			t.Errorf("expected wipes last, got %s", targets[2].Alias)
		}
	})

	t.Run("by_alias", func(t *testing.T) {
		targets, err := svc.ListTargets(ctx, "wipes")
		testutil.AssertNoError(t, err)
		if len(targets) != 1 || targets[0].Alias != "wipes" {
			t.Errorf("expected only wipes, got %+v", targets)
		}
	})
}

func TestHistoryByAlias(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := NewCatalogService(db)

	product := testutil.CreateTestProductWithAlias(t, db, "Diapers", "diapers")
	presentation := testutil.CreateTestPresentation(t, db, product.ID, 56)
	storeA := testutil.CreateTestStore(t, db, presentation.ID)
	storeB := testutil.CreateTestStore(t, db, presentation.ID)
	other := testutil.CreateTestProduct(t, db)
	otherStore := testutil.CreateTestStore(t, db, testutil.CreateTestPresentation(t, db, other.ID, 1).ID)

	base := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		testutil.CreateTestObservation(t, db, storeA.ID, float64(45000-i*100), nil, 56, base.Add(time.Duration(2*i)*time.Hour))
		testutil.CreateTestObservation(t, db, storeB.ID, float64(46000-i*100), nil, 56, base.Add(time.Duration(2*i+1)*time.Hour))
	}
	testutil.CreateTestObservation(t, db, otherStore.ID, 10, nil, 1, base)

	t.Run("paginated", func(t *testing.T) {
		page, err := svc.HistoryByAlias(ctx, "diapers", pagination.PageRequest{Page: 1, PageSize: 4})
		testutil.AssertNoError(t, err)
		if page.TotalItems != 10 || page.TotalPages != 3 || len(page.Data) != 4 {
			t.Fatalf("unexpected page %d items / %d pages / %d rows", page.TotalItems, page.TotalPages, len(page.Data))
		}
		if page.Data[0].StoreID != storeB.ID || page.Data[0].URL != storeB.URL {
			t.Errorf("expected newest row from store B, got %+v", page.Data[0])
		}
		if page.Data[0].UnitCount != 56 || page.Data[0].StoreName == "" {
			t.Errorf("expected joined presentation and store columns, got %+v", page.Data[0])
		}
	})

	t.Run("unknown_alias", func(t *testing.T) {
		_, err := svc.HistoryByAlias(ctx, "nope", pagination.PageRequest{})
		testutil.AssertAppError(t, err, "PRODUCT_NOT_FOUND")
	})

	t.Run("best_prices_per_unit", func(t *testing.T) {
		best, err := svc.BestPricesPerUnit(ctx, "diapers", 0)
		testutil.AssertNoError(t, err)
		if len(best) != 2 {
			t.Fatalf("expected one row per store, got %d", len(best))
		}
		if best[0].StoreID != storeA.ID {
			t.Errorf("expected store A cheapest, got %s", best[0].StoreName)
		}
		testutil.AssertFloat(t, "best price per unit", 44600.0/56, best[0].PricePerUnit.InexactFloat64())
		testutil.AssertFloat(t, "second price per unit", 45600.0/56, best[1].PricePerUnit.InexactFloat64())
	})
}

func TestProductAdmin(t *testing.T) {
	ctx := context.Background()

	t.Run("rename_keeps_alias", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCatalogService(db)
		testutil.CreateTestProductWithAlias(t, db, "Diapers", "diapers")

		p, err := svc.RenameProduct(ctx, "diapers", "Diapers XL")
		testutil.AssertNoError(t, err)
		if p.Name != "Diapers XL" || p.Alias != "diapers" {
			t.Errorf("unexpected product %+v", p)
		}

		_, err = svc.RenameProduct(ctx, "missing", "X")
		testutil.AssertAppError(t, err, "PRODUCT_NOT_FOUND")
	})

	t.Run("delete_refuses_with_history", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCatalogService(db)
		product, _, store := testutil.CreateTestHierarchy(t, db, 1)
		testutil.CreateTestObservation(t, db, store.ID, 10, nil, 1, time.Now())

		_, err := svc.DeleteProduct(ctx, product.Alias, false)
		testutil.AssertAppError(t, err, "PRODUCT_HAS_HISTORY")
		if n := countRows(t, svc, "products"); n != 1 {
			t.Errorf("expected product kept, got %d", n)
		}
	})

	t.Run("delete_cascade", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCatalogService(db)
		product, _, store := testutil.CreateTestHierarchy(t, db, 1)
		testutil.CreateTestObservation(t, db, store.ID, 10, nil, 1, time.Now())
		testutil.CreateTestObservation(t, db, store.ID, 9, nil, 1, time.Now())
		keep, _, keepStore := testutil.CreateTestHierarchy(t, db, 1)
		testutil.CreateTestObservation(t, db, keepStore.ID, 5, nil, 1, time.Now())

		res, err := svc.DeleteProduct(ctx, product.Alias, true)
		testutil.AssertNoError(t, err)
		if res.Observations != 2 || res.Stores != 1 || res.Presentations != 1 {
			t.Errorf("unexpected delete result %+v", res)
		}

		_, err = svc.GetProduct(ctx, product.Alias)
		testutil.AssertAppError(t, err, "PRODUCT_NOT_FOUND")
		if _, err := svc.GetProduct(ctx, keep.Alias); err != nil {
			t.Errorf("expected other product kept: %v", err)
		}
		if n := countRows(t, svc, "prices"); n != 1 {
			t.Errorf("expected 1 remaining observation, got %d", n)
		}
	})

	t.Run("delete_without_history", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCatalogService(db)
		product, _, _ := testutil.CreateTestHierarchy(t, db, 1)

		_, err := svc.DeleteProduct(ctx, product.Alias, false)
		testutil.AssertNoError(t, err)
		if n := countRows(t, svc, "stores"); n != 0 {
			t.Errorf("expected stores removed, got %d", n)
		}
	})

	t.Run("list_products_with_details", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCatalogService(db)
		testutil.CreateTestHierarchy(t, db, 12)

		products, err := svc.ListProducts(ctx)
		testutil.AssertNoError(t, err)
		if len(products) != 1 || len(products[0].Presentations) != 1 || len(products[0].Presentations[0].Stores) != 1 {
			t.Fatalf("expected preloaded hierarchy, got %+v", products)
		}
		if products[0].Presentations[0].UnitCount != 12 {
			t.Errorf("expected unit count 12, got %d", products[0].Presentations[0].UnitCount)
		}
	})
}
