package core

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/tablelift/printd/internal/db"
)

type testEnv struct {
	database *sql.DB
	printers *db.PrinterStore
	jobs     *db.JobStore
	orders   *db.OrderStore
	settings *db.SettingStore
	registry *Registry
	queue    *Queue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	env := &testEnv{
		database: database,
		printers: db.NewPrinterStore(database),
		jobs:     db.NewJobStore(database),
		orders:   db.NewOrderStore(database),
		settings: db.NewSettingStore(database),
	}
	env.registry = NewRegistry(env.printers)

	renderer, err := NewRenderer(384, 96, "tall")
	if err != nil {
		t.Fatalf("failed to build renderer: %v", err)
	}
	env.queue = NewQueue(env.jobs, env.orders, env.printers, env.settings, env.registry, renderer,
		"image/png", BuildOptions{RestaurantName: "Test Kitchen", KitchenScale: "tall"})

	return env
}

func (env *testEnv) seedPrinter(t *testing.T, mac string) *db.Printer {
	t.Helper()
	p, err := env.registry.Upsert(context.Background(), mac, "", "Counter", "")
	if err != nil {
		t.Fatalf("failed to seed printer: %v", err)
	}
	return p
}

func (env *testEnv) seedOrder(t *testing.T, number string) *db.Order {
	t.Helper()
	pickup := time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)
	order := &db.Order{
		Number:        number,
		CustomerName:  "Dana",
		CustomerPhone: "555-0101",
		PickupAt:      &pickup,
		Notes:         "no onions",
		SubtotalText:  "$18.00",
		TaxText:       "$1.58",
		TotalText:     "$19.58",
		Lines: []db.OrderLine{
			{
				Qty:         2,
				Name:        "Pad Thai",
				KitchenName: "PAD THAI",
				Selections: []db.LineSelection{
					{Text: "Extra spicy", KitchenText: "SPICY+", IndentLevel: 0},
					{Text: "No peanuts", IndentLevel: 1},
				},
			},
			{Qty: 1, Name: "Thai Iced Tea"},
		},
	}
	if err := env.orders.Create(context.Background(), order); err != nil {
		t.Fatalf("failed to seed order: %v", err)
	}
	loaded, err := env.orders.GetByID(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("failed to reload order: %v", err)
	}
	return loaded
}

func TestEnqueueAutoDedup(t *testing.T) {
	env := newTestEnv(t)
	printer := env.seedPrinter(t, "001122334455")
	order := env.seedOrder(t, "1042")
	ctx := context.Background()

	first, err := env.queue.Enqueue(ctx, EnqueueInput{
		PrinterID: printer.ID,
		OrderID:   order.ID,
		CopyType:  CopyTypeKitchen,
		Source:    SourceAuto,
	})
	if err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if first.Deduped {
		t.Fatal("first enqueue reported deduped")
	}

	second, err := env.queue.Enqueue(ctx, EnqueueInput{
		PrinterID: printer.ID,
		OrderID:   order.ID,
		CopyType:  CopyTypeKitchen,
		Source:    SourceAuto,
	})
	if err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if !second.Deduped {
		t.Fatal("duplicate auto enqueue not deduped")
	}
	if second.Job.ID != first.Job.ID {
		t.Fatalf("dedup returned job %d, want %d", second.Job.ID, first.Job.ID)
	}

	// A different copy type is a different print.
	front, err := env.queue.Enqueue(ctx, EnqueueInput{
		PrinterID: printer.ID,
		OrderID:   order.ID,
		CopyType:  CopyTypeFront,
		Source:    SourceAuto,
	})
	if err != nil {
		t.Fatalf("front enqueue: %v", err)
	}
	if front.Deduped || front.Job.ID == first.Job.ID {
		t.Fatal("front copy should be a new job")
	}
}

func TestEnqueueManualAlwaysDuplicates(t *testing.T) {
	env := newTestEnv(t)
	printer := env.seedPrinter(t, "001122334455")
	order := env.seedOrder(t, "1042")
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 2; i++ {
		result, err := env.queue.Enqueue(ctx, EnqueueInput{
			PrinterID: printer.ID,
			OrderID:   order.ID,
			CopyType:  CopyTypeFront,
			Source:    SourceManual,
		})
		if err != nil {
			t.Fatalf("manual enqueue %d: %v", i, err)
		}
		if result.Deduped {
			t.Fatal("manual enqueue reported deduped")
		}
		ids = append(ids, result.Job.ID)
	}
	if ids[0] == ids[1] {
		t.Fatal("manual enqueues shared a job")
	}
}

func TestEnqueueManualAfterAutoDedupsAuto(t *testing.T) {
	env := newTestEnv(t)
	printer := env.seedPrinter(t, "001122334455")
	order := env.seedOrder(t, "1042")
	ctx := context.Background()

	manual, err := env.queue.Enqueue(ctx, EnqueueInput{
		PrinterID: printer.ID,
		OrderID:   order.ID,
		CopyType:  CopyTypeKitchen,
		Source:    SourceManual,
	})
	if err != nil {
		t.Fatalf("manual enqueue: %v", err)
	}

	// An in-flight manual job satisfies the automatic print for the same
	// order and copy type.
	auto, err := env.queue.Enqueue(ctx, EnqueueInput{
		PrinterID: printer.ID,
		OrderID:   order.ID,
		CopyType:  CopyTypeKitchen,
		Source:    SourceAuto,
	})
	if err != nil {
		t.Fatalf("auto enqueue: %v", err)
	}
	if !auto.Deduped || auto.Job.ID != manual.Job.ID {
		t.Fatalf("auto enqueue got job %d deduped=%v, want dedup against manual job %d",
			auto.Job.ID, auto.Deduped, manual.Job.ID)
	}
}

func TestEnqueueDedupIgnoresFailedJobs(t *testing.T) {
	env := newTestEnv(t)
	printer := env.seedPrinter(t, "001122334455")
	order := env.seedOrder(t, "1042")
	ctx := context.Background()

	first, err := env.queue.Enqueue(ctx, EnqueueInput{
		PrinterID: printer.ID,
		OrderID:   order.ID,
		CopyType:  CopyTypeKitchen,
		Source:    SourceAuto,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := env.jobs.MarkFailed(ctx, first.Job.ID, "JAM", "paper jam", time.Now().UTC()); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	retry, err := env.queue.Enqueue(ctx, EnqueueInput{
		PrinterID: printer.ID,
		OrderID:   order.ID,
		CopyType:  CopyTypeKitchen,
		Source:    SourceAuto,
	})
	if err != nil {
		t.Fatalf("retry enqueue: %v", err)
	}
	if retry.Deduped || retry.Job.ID == first.Job.ID {
		t.Fatal("failed job suppressed a fresh automatic print")
	}
}

func TestEnqueueResolutionErrors(t *testing.T) {
	env := newTestEnv(t)
	order := env.seedOrder(t, "1042")
	ctx := context.Background()

	cases := []struct {
		name  string
		input EnqueueInput
		want  error
	}{
		{
			name:  "unknown order",
			input: EnqueueInput{PrinterID: 1, OrderID: 9999, CopyType: CopyTypeFront, Source: SourceManual},
			want:  ErrOrderNotFound,
		},
		{
			name:  "unknown printer",
			input: EnqueueInput{PrinterID: 9999, OrderID: order.ID, CopyType: CopyTypeFront, Source: SourceManual},
			want:  ErrPrinterNotFound,
		},
		{
			name:  "manual without printer",
			input: EnqueueInput{OrderID: order.ID, CopyType: CopyTypeFront, Source: SourceManual},
			want:  ErrPrinterRequired,
		},
		{
			name:  "auto with auto-print disabled",
			input: EnqueueInput{OrderID: order.ID, CopyType: CopyTypeFront, Source: SourceAuto},
			want:  ErrAutoPrintDisabled,
		},
	}
	for _, tc := range cases {
		_, err := env.queue.Enqueue(ctx, tc.input)
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestEnqueueAutoNoActivePrinter(t *testing.T) {
	env := newTestEnv(t)
	order := env.seedOrder(t, "1042")
	ctx := context.Background()

	if err := env.settings.Set(ctx, SettingAutoPrintEnabled, "true"); err != nil {
		t.Fatalf("set setting: %v", err)
	}

	_, err := env.queue.Enqueue(ctx, EnqueueInput{
		OrderID:  order.ID,
		CopyType: CopyTypeFront,
		Source:   SourceAuto,
	})
	if !errors.Is(err, ErrNoActivePrinter) {
		t.Fatalf("got %v, want ErrNoActivePrinter", err)
	}
}

func TestEnqueueAutoUsesDefaultPrinter(t *testing.T) {
	env := newTestEnv(t)
	env.seedPrinter(t, "001122334455")
	chosen := env.seedPrinter(t, "66778899AABB")
	order := env.seedOrder(t, "1042")
	ctx := context.Background()

	if err := env.settings.Set(ctx, SettingAutoPrintEnabled, "true"); err != nil {
		t.Fatalf("set setting: %v", err)
	}
	if err := env.settings.Set(ctx, SettingAutoPrintPrinterID, strconv.FormatInt(chosen.ID, 10)); err != nil {
		t.Fatalf("set setting: %v", err)
	}

	result, err := env.queue.Enqueue(ctx, EnqueueInput{
		OrderID:  order.ID,
		CopyType: CopyTypeFront,
		Source:   SourceAuto,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if result.Job.PrinterID != chosen.ID {
		t.Fatalf("job went to printer %d, want configured default %d", result.Job.PrinterID, chosen.ID)
	}
}

func TestEnqueueAutoFallsBackToMostRecentlySeen(t *testing.T) {
	env := newTestEnv(t)
	stale := env.seedPrinter(t, "001122334455")
	order := env.seedOrder(t, "1042")
	ctx := context.Background()

	// A later contact from a second printer makes it the fallback target.
	time.Sleep(10 * time.Millisecond)
	fresh := env.seedPrinter(t, "66778899AABB")

	if err := env.settings.Set(ctx, SettingAutoPrintEnabled, "true"); err != nil {
		t.Fatalf("set setting: %v", err)
	}

	result, err := env.queue.Enqueue(ctx, EnqueueInput{
		OrderID:  order.ID,
		CopyType: CopyTypeFront,
		Source:   SourceAuto,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if result.Job.PrinterID != fresh.ID {
		t.Fatalf("job went to printer %d, want most recently seen %d (not %d)",
			result.Job.PrinterID, fresh.ID, stale.ID)
	}
}

func TestEnqueueByMACRegistersPrinter(t *testing.T) {
	env := newTestEnv(t)
	order := env.seedOrder(t, "1042")
	ctx := context.Background()

	result, err := env.queue.Enqueue(ctx, EnqueueInput{
		PrinterMAC:  "94b86daabbcc",
		PrinterName: "Kitchen Pass",
		OrderID:     order.ID,
		CopyType:    CopyTypeKitchen,
		Source:      SourceManual,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	printer, err := env.registry.FindByMAC(ctx, "94:B8:6D:AA:BB:CC")
	if err != nil {
		t.Fatalf("printer not registered: %v", err)
	}
	if result.Job.PrinterID != printer.ID {
		t.Fatalf("job printer %d, want %d", result.Job.PrinterID, printer.ID)
	}
}

func TestEnqueuePreRenderPopulatesCache(t *testing.T) {
	env := newTestEnv(t)
	printer := env.seedPrinter(t, "001122334455")
	order := env.seedOrder(t, "1042")
	ctx := context.Background()

	result, err := env.queue.Enqueue(ctx, EnqueueInput{
		PrinterID: printer.ID,
		OrderID:   order.ID,
		CopyType:  CopyTypeFront,
		Source:    SourceManual,
		PreRender: true,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if len(result.Job.PayloadCache) == 0 {
		t.Fatal("pre-render left payload cache empty")
	}

	stored, err := env.jobs.GetByID(ctx, result.Job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if len(stored.PayloadCache) == 0 {
		t.Fatal("payload cache not persisted")
	}
	if stored.RequestedMime != "image/png" {
		t.Fatalf("requested mime = %q", stored.RequestedMime)
	}
}

func TestEnqueueRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.queue.Enqueue(ctx, EnqueueInput{CopyType: "BACK", Source: SourceManual}); err == nil {
		t.Fatal("invalid copy type accepted")
	}
	if _, err := env.queue.Enqueue(ctx, EnqueueInput{CopyType: CopyTypeFront, Source: "ROBOT"}); err == nil {
		t.Fatal("invalid source accepted")
	}
}

func TestRenderJobForOrder(t *testing.T) {
	env := newTestEnv(t)
	printer := env.seedPrinter(t, "001122334455")
	order := env.seedOrder(t, "1042")
	ctx := context.Background()

	result, err := env.queue.Enqueue(ctx, EnqueueInput{
		PrinterID: printer.ID,
		OrderID:   order.ID,
		CopyType:  CopyTypeKitchen,
		Source:    SourceManual,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	rendered, err := env.queue.RenderJob(ctx, result.Job)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(rendered) == 0 {
		t.Fatal("render returned no bytes")
	}

	again, err := env.queue.RenderJob(ctx, result.Job)
	if err != nil {
		t.Fatalf("render again: %v", err)
	}
	if string(rendered) != string(again) {
		t.Fatal("two renders of the same job differ")
	}
}
