package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/harvestnet/reharvest/internal/domain"
	"github.com/harvestnet/reharvest/internal/infra/observability"
	"github.com/harvestnet/reharvest/internal/infra/store"
)

type fakeSink struct {
	writes int
	fail   bool
}

func (f *fakeSink) WriteResponse(url string, statusLine string, header http.Header, body []byte) error {
	if f.fail {
		return domain.ErrWriteFailed
	}
	f.writes++
	return nil
}

type fakeStrategy struct {
	cases []domain.Fingerprint
	delay float64
}

func (s *fakeStrategy) AddCase(_ time.Time, fp domain.Fingerprint) { s.cases = append(s.cases, fp) }
func (s *fakeStrategy) GetDelay() float64                          { return s.delay }

func TestTask_Run_SuccessReturnsClampedDelay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>hello world</p></body></html>"))
	}))
	defer srv.Close()

	sink := &fakeSink{}
	strat := &fakeStrategy{delay: 30} // below the default 60s clamp minimum
	task := New(srv.URL, sink, strat)

	next, ok := task.Run(context.Background(), srv.URL)
	if !ok {
		t.Fatal("Run() ok = false, want true")
	}
	if next != task.Clamp.Min {
		t.Errorf("next = %v, want clamp min %v", next, task.Clamp.Min)
	}
	if sink.writes != 1 {
		t.Errorf("sink.writes = %d, want 1", sink.writes)
	}
	if len(strat.cases) != 1 {
		t.Errorf("len(strat.cases) = %d, want 1", len(strat.cases))
	}
}

func TestTask_Run_SendsDesktopUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	task := New(srv.URL, &fakeSink{}, &fakeStrategy{delay: 100})
	if _, ok := task.Run(context.Background(), srv.URL); !ok {
		t.Fatal("Run() ok = false, want true")
	}
	if gotUA != DefaultUserAgent {
		t.Errorf("User-Agent = %q, want %q", gotUA, DefaultUserAgent)
	}
}

func TestTask_Run_RecordsDelaySinceLastCapture(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>hello</p></body></html>"))
	}))
	defer srv.Close()

	db, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	task := New(srv.URL, &fakeSink{}, &fakeStrategy{delay: 100})
	task.History = db

	if _, ok := task.Run(context.Background(), srv.URL); !ok {
		t.Fatal("first Run() ok = false, want true")
	}
	time.Sleep(10 * time.Millisecond)
	if _, ok := task.Run(context.Background(), srv.URL); !ok {
		t.Fatal("second Run() ok = false, want true")
	}

	records, err := db.RecentForURL(srv.URL, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	// records are newest-first: records[0] is the second capture.
	if records[0].DelaySec <= 0 {
		t.Errorf("DelaySec on second capture = %v, want > 0", records[0].DelaySec)
	}
	if records[1].DelaySec != 0 {
		t.Errorf("DelaySec on first capture = %v, want 0 (no prior capture)", records[1].DelaySec)
	}
}

func TestTask_Run_RecordsTraceSpan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	before := observability.DefaultTracer.SpanCount()
	task := New(srv.URL, &fakeSink{}, &fakeStrategy{delay: 100})
	if _, ok := task.Run(context.Background(), srv.URL); !ok {
		t.Fatal("Run() ok = false, want true")
	}
	if got := observability.DefaultTracer.SpanCount(); got != before+1 {
		t.Errorf("SpanCount() = %d, want %d", got, before+1)
	}
}

func TestTask_Run_NonOKStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	task := New(srv.URL, &fakeSink{}, &fakeStrategy{delay: 100})
	_, ok := task.Run(context.Background(), srv.URL)
	if ok {
		t.Fatal("Run() ok = true for a 500 response, want false")
	}
}

func TestTask_Run_SinkFailureQuarantines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	task := New(srv.URL, &fakeSink{fail: true}, &fakeStrategy{delay: 100})
	_, ok := task.Run(context.Background(), srv.URL)
	if ok {
		t.Fatal("Run() ok = true despite sink write failure, want false")
	}
}

func TestTask_Run_UnreachableHostFails(t *testing.T) {
	task := New("http://127.0.0.1:1/", &fakeSink{}, &fakeStrategy{delay: 100})
	_, ok := task.Run(context.Background(), task.URL)
	if ok {
		t.Fatal("Run() ok = true for an unreachable host, want false")
	}
}

func TestClamp_AppliesMinAndMax(t *testing.T) {
	c := Clamp{Min: 10 * time.Second, Max: 100 * time.Second}
	if got := c.apply(5 * time.Second); got != 10*time.Second {
		t.Errorf("apply(5s) = %v, want 10s", got)
	}
	if got := c.apply(200 * time.Second); got != 100*time.Second {
		t.Errorf("apply(200s) = %v, want 100s", got)
	}
	if got := c.apply(50 * time.Second); got != 50*time.Second {
		t.Errorf("apply(50s) = %v, want unchanged 50s", got)
	}
}
