package remote

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/gyeh/pricepanel/internal/model"
	"github.com/gyeh/pricepanel/internal/output"
	"github.com/gyeh/pricepanel/internal/registry"
)

func strPtr(s string) *string { return &s }

func f64Ptr(f float64) *float64 { return &f }

// fakeSource serves rows from memory with the same keyset semantics as the
// real sources and counts every query.
type fakeSource struct {
	mu        sync.Mutex
	hospitals []model.Hospital
	rows      map[string][]model.RawChargeRow
	fail      map[string]error
	stuck     map[string]bool // always returns the first page
	fetches   map[string]int
	lists     int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		rows:    make(map[string][]model.RawChargeRow),
		fail:    make(map[string]error),
		stuck:   make(map[string]bool),
		fetches: make(map[string]int),
	}
}

func (f *fakeSource) add(id string, rows ...model.RawChargeRow) {
	f.hospitals = append(f.hospitals, model.Hospital{EntityID: id, Name: "Hospital " + id})
	for i := range rows {
		rows[i].EntityID = id
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].RowKey < rows[j].RowKey })
	f.rows[id] = rows
}

func (f *fakeSource) totalFetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.fetches {
		n += c
	}
	return n
}

func (f *fakeSource) ListHospitals(ctx context.Context) ([]model.Hospital, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	return append([]model.Hospital(nil), f.hospitals...), nil
}

func (f *fakeSource) FetchPage(ctx context.Context, req PageRequest) ([]model.RawChargeRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches[req.EntityID]++
	if err := f.fail[req.EntityID]; err != nil {
		return nil, err
	}
	in := func(v *string, set []string) bool {
		if v == nil {
			return false
		}
		for _, s := range set {
			if *v == s {
				return true
			}
		}
		return false
	}
	var out []model.RawChargeRow
	for _, r := range f.rows[req.EntityID] {
		if !f.stuck[req.EntityID] && r.RowKey <= req.AfterKey {
			continue
		}
		if !in(r.MSDRGCode, req.DRGCodes) && !in(r.CPTCode, req.ProcedureCodes) && !in(r.HCPCSCode, req.ProcedureCodes) {
			continue
		}
		out = append(out, r)
		if len(out) == req.Limit {
			break
		}
	}
	return out, nil
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
	return ctx.Err()
}

func testFilter(t *testing.T) *registry.CodeFilter {
	t.Helper()
	r, err := registry.New([]model.TargetCode{
		{Code: "470", CodeType: model.CodeTypeDRG},
		{Code: "99213", CodeType: model.CodeTypeProcedure},
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return r.Filter()
}

func drgRow(key int64, amount float64) model.RawChargeRow {
	return model.RawChargeRow{RowKey: key, Description: "joint", MSDRGCode: strPtr("470"), GrossCharge: f64Ptr(amount)}
}

func procRow(key int64, amount float64) model.RawChargeRow {
	return model.RawChargeRow{RowKey: key, Description: "visit", CPTCode: strPtr("99213"), NegotiatedDollar: f64Ptr(amount), PayerName: strPtr("Aetna")}
}

func newExtractor(t *testing.T, src Source, stateDir string, rec *sleepRecorder) (*Extractor, *ProgressStore) {
	t.Helper()
	store, err := OpenStore(stateDir)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return &Extractor{
		Source:           src,
		Store:            store,
		Filter:           testFilter(t),
		PageSize:         2,
		EntityDelay:      time.Second,
		EmptyEntityDelay: 250 * time.Millisecond,
		ErrorCooldown:    30 * time.Second,
		Log:              zerolog.Nop(),
		Sleep:            rec.sleep,
	}, store
}

func TestRun_Pagination(t *testing.T) {
	src := newFakeSource()
	src.add("H1", drgRow(1, 10), drgRow(2, 20), procRow(3, 30), drgRow(4, 40), procRow(5, 50))
	src.add("H2", drgRow(1, 10), drgRow(7, 20), drgRow(9, 30), drgRow(12, 40))
	src.add("H3", model.RawChargeRow{RowKey: 1, MSDRGCode: strPtr("001")})

	e, _ := newExtractor(t, src, t.TempDir(), &sleepRecorder{})
	report, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// 5 rows / page 2 → 2,2,1. 4 rows → 2,2,0. No matches → one empty page.
	wantPages := map[string]int{"H1": 3, "H2": 3, "H3": 1}
	for _, res := range report.Entities {
		if res.Pages != wantPages[res.EntityID] {
			t.Errorf("%s: pages got %d, want %d", res.EntityID, res.Pages, wantPages[res.EntityID])
		}
		if src.fetches[res.EntityID] != wantPages[res.EntityID] {
			t.Errorf("%s: fetches got %d", res.EntityID, src.fetches[res.EntityID])
		}
	}
	if report.Entities[0].RowsDRG != 3 || report.Entities[0].RowsProcedure != 2 {
		t.Errorf("H1 split: %+v", report.Entities[0])
	}
	if report.Entities[2].Status != model.StatusEmpty {
		t.Errorf("H3 status: got %s, want empty", report.Entities[2].Status)
	}
}

func TestRun_ResumeIssuesNoQueries(t *testing.T) {
	src := newFakeSource()
	src.add("H1", drgRow(1, 10), procRow(2, 20))
	src.add("H2")
	src.add("H3", procRow(5, 99))
	state := t.TempDir()

	e, store := newExtractor(t, src, state, &sleepRecorder{})
	if _, err := e.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	first, err := Reassemble(store, zerolog.Nop())
	if err != nil {
		t.Fatalf("Reassemble: %v", err)
	}
	store.Close()
	fetches, lists := src.totalFetches(), src.lists

	e2, store2 := newExtractor(t, src, state, &sleepRecorder{})
	report, err := e2.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if src.totalFetches() != fetches || src.lists != lists {
		t.Errorf("second run issued queries: fetches %d→%d lists %d→%d", fetches, src.totalFetches(), lists, src.lists)
	}
	if report.Count(model.StatusSkipped) != 3 {
		t.Errorf("expected 3 skipped, got %d", report.Count(model.StatusSkipped))
	}

	second, err := Reassemble(store2, zerolog.Nop())
	if err != nil {
		t.Fatalf("Reassemble: %v", err)
	}
	if len(first.DRG) != 1 || len(first.Procedure) != 2 {
		t.Fatalf("first output: drg=%d proc=%d", len(first.DRG), len(first.Procedure))
	}
	if len(second.DRG) != len(first.DRG) || len(second.Procedure) != len(first.Procedure) {
		t.Errorf("outputs differ between runs")
	}
	for i := range first.Procedure {
		if first.Procedure[i].EntityID != second.Procedure[i].EntityID ||
			*first.Procedure[i].NegotiatedDollar != *second.Procedure[i].NegotiatedDollar {
			t.Errorf("procedure row %d differs", i)
		}
	}
}

func TestRun_FailedEntityRetriedNextRun(t *testing.T) {
	src := newFakeSource()
	src.add("H1", drgRow(1, 10))
	src.add("H2", drgRow(1, 20))
	src.add("H3", procRow(1, 30))
	src.fail["H2"] = &StatusError{StatusCode: 503}
	state := t.TempDir()

	rec := &sleepRecorder{}
	e, store := newExtractor(t, src, state, rec)
	report, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Count(model.StatusFailed) != 1 || report.Failed()[0].EntityID != "H2" {
		t.Fatalf("expected H2 to fail: %+v", report.Entities)
	}
	if store.IsDone("H2") {
		t.Fatal("failed entity must not be marked done")
	}
	if !store.IsDone("H1") || !store.IsDone("H3") {
		t.Fatal("entities after the failure must still be processed")
	}
	want := []time.Duration{time.Second, 30 * time.Second}
	if len(rec.sleeps) != 2 || rec.sleeps[0] != want[0] || rec.sleeps[1] != want[1] {
		t.Errorf("sleeps: got %v, want %v", rec.sleeps, want)
	}
	store.Close()

	delete(src.fail, "H2")
	before := src.fetches["H1"] + src.fetches["H3"]
	e2, store2 := newExtractor(t, src, state, &sleepRecorder{})
	report, err = e2.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if report.Count(model.StatusOK) != 1 || report.Count(model.StatusSkipped) != 2 {
		t.Errorf("second run: %+v", report.Entities)
	}
	if src.fetches["H1"]+src.fetches["H3"] != before {
		t.Error("completed entities were queried again")
	}
	if got := store2.Done(); len(got) != 3 || got[2] != "H2" {
		t.Errorf("done order: %v", got)
	}
}

func TestRun_KeysetMustAdvance(t *testing.T) {
	src := newFakeSource()
	src.add("H1", drgRow(1, 10), drgRow(2, 20), drgRow(3, 30))
	src.stuck["H1"] = true

	e, store := newExtractor(t, src, t.TempDir(), &sleepRecorder{})
	report, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Entities[0].Status != model.StatusFailed || store.IsDone("H1") {
		t.Fatalf("expected keyset failure, got %+v", report.Entities[0])
	}
	if src.fetches["H1"] != 2 {
		t.Errorf("expected the loop to stop at the second page, got %d fetches", src.fetches["H1"])
	}
}

func TestRun_CancelKeepsCompletedWork(t *testing.T) {
	src := newFakeSource()
	src.add("H1", drgRow(1, 10))
	src.add("H2", drgRow(1, 20))

	ctx, cancel := context.WithCancel(context.Background())
	e, store := newExtractor(t, src, t.TempDir(), &sleepRecorder{})
	e.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	report, err := e.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Interrupted {
		t.Error("expected Interrupted")
	}
	if !store.IsDone("H1") || store.IsDone("H2") {
		t.Errorf("done: %v", store.Done())
	}
	if _, err := os.Stat(store.PartialPath("H1")); err != nil {
		t.Errorf("H1 partial missing: %v", err)
	}
}

// A partial written just before a crash, with no done record, is ignored by
// reassembly and replaced by the next run.
func TestCrashBetweenWriteAndMark(t *testing.T) {
	state := t.TempDir()
	store, err := OpenStore(state)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	stale := []model.RawChargeRow{{EntityID: "H1", RowKey: 1, MSDRGCode: strPtr("470"), GrossCharge: f64Ptr(1)}}
	if err := store.WritePartial("H1", stale); err != nil {
		t.Fatalf("WritePartial: %v", err)
	}
	res, err := Reassemble(store, zerolog.Nop())
	if err != nil {
		t.Fatalf("Reassemble: %v", err)
	}
	if len(res.DRG) != 0 || res.Entities != 0 {
		t.Fatalf("unmarked partial must be ignored: %+v", res)
	}
	store.Close()

	src := newFakeSource()
	src.add("H1", drgRow(1, 10), drgRow(2, 20))
	e, store2 := newExtractor(t, src, state, &sleepRecorder{})
	if _, err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	res, err = Reassemble(store2, zerolog.Nop())
	if err != nil {
		t.Fatalf("Reassemble: %v", err)
	}
	if len(res.DRG) != 2 {
		t.Errorf("expected the rerun to replace the stale partial, got %d rows", len(res.DRG))
	}
}

func TestCrashThenZeroRows_DropsStalePartial(t *testing.T) {
	state := t.TempDir()
	store, err := OpenStore(state)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	stale := []model.RawChargeRow{{EntityID: "H1", RowKey: 1, MSDRGCode: strPtr("470"), GrossCharge: f64Ptr(1)}}
	if err := store.WritePartial("H1", stale); err != nil {
		t.Fatalf("WritePartial: %v", err)
	}
	store.Close()

	src := newFakeSource()
	src.add("H1")
	e, store2 := newExtractor(t, src, state, &sleepRecorder{})
	report, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Count(model.StatusEmpty) != 1 || !store2.IsDone("H1") {
		t.Fatalf("expected H1 done with no rows: %+v", report.Entities)
	}
	if _, err := os.Stat(store2.PartialPath("H1")); !os.IsNotExist(err) {
		t.Errorf("stale partial still on disk: %v", err)
	}
	res, err := Reassemble(store2, zerolog.Nop())
	if err != nil {
		t.Fatalf("Reassemble: %v", err)
	}
	if len(res.DRG)+len(res.Procedure) != 0 {
		t.Errorf("reassembled %d rows from a zero-row entity", len(res.DRG)+len(res.Procedure))
	}
}

func TestReassemble_RejectsMixedRows(t *testing.T) {
	store, err := OpenStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()
	rows := []model.RawChargeRow{
		{EntityID: "H1", MSDRGCode: strPtr("470")},
		{EntityID: "H1", CPTCode: strPtr("99213")},
		{EntityID: "H1", MSDRGCode: strPtr("470"), HCPCSCode: strPtr("99213")},
		{EntityID: "H1"},
	}
	if err := output.WriteParquet(store.PartialPath("H1"), rows); err != nil {
		t.Fatalf("write partial: %v", err)
	}
	store.MarkDone("H1")
	store.MarkDone("H2") // zero-row entity, no file

	res, err := Reassemble(store, zerolog.Nop())
	if err != nil {
		t.Fatalf("Reassemble: %v", err)
	}
	if len(res.DRG) != 1 || len(res.Procedure) != 1 || res.Invalid != 2 || res.Entities != 2 {
		t.Errorf("got drg=%d proc=%d invalid=%d entities=%d", len(res.DRG), len(res.Procedure), res.Invalid, res.Entities)
	}
}

func TestStore_TornLine(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, doneLogFile), []byte("H1\nH1\nH2"), 0o644)

	store, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	if !store.IsDone("H1") || store.IsDone("H2") {
		t.Fatalf("done: %v", store.Done())
	}
	if err := store.MarkDone("H3"); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	if err := store.MarkDone("bad\nid"); err == nil {
		t.Error("expected an error for an id containing a newline")
	}
	store.Close()

	data, _ := os.ReadFile(filepath.Join(dir, doneLogFile))
	if string(data) != "H1\nH1\nH3\n" {
		t.Errorf("done.log: %q", data)
	}
}

func TestRun_ListHospitalsError(t *testing.T) {
	e, _ := newExtractor(t, errSource{}, t.TempDir(), &sleepRecorder{})
	if _, err := e.Run(context.Background()); err == nil {
		t.Fatal("expected error when the hospital list is unavailable")
	}
}

type errSource struct{}

func (errSource) ListHospitals(context.Context) ([]model.Hospital, error) {
	return nil, errors.New("connection refused")
}

func (errSource) FetchPage(context.Context, PageRequest) ([]model.RawChargeRow, error) {
	return nil, errors.New("connection refused")
}
