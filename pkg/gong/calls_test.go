package gong_test

import (
	"context"
	"errors"
	"testing"

	"github.com/salesops/gongsync/internal/testutil"
	"github.com/salesops/gongsync/pkg/gong"
)

func TestListCalls_PaginationCompleteness(t *testing.T) {
	mock := testutil.NewMockGong()
	defer mock.Close()
	mock.Calls = testutil.MakeCalls(250)
	mock.PageSize = 100

	client := newTestClient(t, mock.URL())
	calls, err := client.ListCalls(context.Background(), mustDateRange(t, "2024-01-01", "2024-03-31"), nil)
	if err != nil {
		t.Fatalf("ListCalls() error = %v", err)
	}

	if len(calls) != 250 {
		t.Errorf("ListCalls() returned %d calls, want 250", len(calls))
	}
	if mock.ListRequests != 3 {
		t.Errorf("server saw %d list requests, want 3", mock.ListRequests)
	}
	// Pages concatenated in order
	for i, c := range calls {
		if c.ID != mock.Calls[i].ID {
			t.Fatalf("calls[%d].ID = %s, want %s (out of order)", i, c.ID, mock.Calls[i].ID)
		}
	}
}

func TestListCalls_SinglePage(t *testing.T) {
	mock := testutil.NewMockGong()
	defer mock.Close()
	mock.Calls = testutil.MakeCalls(7)

	client := newTestClient(t, mock.URL())
	calls, err := client.ListCalls(context.Background(), mustDateRange(t, "2024-01-01", "2024-01-31"), nil)
	if err != nil {
		t.Fatalf("ListCalls() error = %v", err)
	}

	if len(calls) != 7 {
		t.Errorf("ListCalls() returned %d calls, want 7", len(calls))
	}
	if mock.ListRequests != 1 {
		t.Errorf("server saw %d list requests, want 1", mock.ListRequests)
	}
}

func TestListCalls_Empty(t *testing.T) {
	mock := testutil.NewMockGong()
	defer mock.Close()

	client := newTestClient(t, mock.URL())
	calls, err := client.ListCalls(context.Background(), mustDateRange(t, "2024-01-01", "2024-01-31"), nil)
	if err != nil {
		t.Fatalf("ListCalls() error = %v", err)
	}
	if len(calls) != 0 {
		t.Errorf("ListCalls() returned %d calls, want 0", len(calls))
	}
}

func TestListCalls_HalfOpenQueryBounds(t *testing.T) {
	mock := testutil.NewMockGong()
	defer mock.Close()

	client := newTestClient(t, mock.URL())
	if _, err := client.ListCalls(context.Background(), mustDateRange(t, "2024-01-01", "2024-01-01"), nil); err != nil {
		t.Fatalf("ListCalls() error = %v", err)
	}

	if got := mock.LastListQuery.Get("fromDateTime"); got != "2024-01-01T00:00:00Z" {
		t.Errorf("fromDateTime = %q, want 2024-01-01T00:00:00Z", got)
	}
	if got := mock.LastListQuery.Get("toDateTime"); got != "2024-01-02T00:00:00Z" {
		t.Errorf("toDateTime = %q, want 2024-01-02T00:00:00Z (exclusive upper bound)", got)
	}
}

func TestListCalls_PageCeiling(t *testing.T) {
	mock := testutil.NewMockGong()
	defer mock.Close()
	mock.Calls = testutil.MakeCalls(250)
	mock.PageSize = 100

	cfg := gong.DefaultConfig(mock.URL(), "key", "secret")
	cfg.RateLimit = 1000
	cfg.MaxPages = 2
	client, err := gong.New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = client.ListCalls(context.Background(), mustDateRange(t, "2024-01-01", "2024-03-31"), nil)
	if !errors.Is(err, gong.ErrTooManyPages) {
		t.Errorf("ListCalls() error = %v, want ErrTooManyPages", err)
	}
}

func TestListCalls_ProgressObservable(t *testing.T) {
	mock := testutil.NewMockGong()
	defer mock.Close()
	mock.Calls = testutil.MakeCalls(250)
	mock.PageSize = 100

	var fetched, totals []int
	client := newTestClient(t, mock.URL())
	_, err := client.ListCalls(context.Background(), mustDateRange(t, "2024-01-01", "2024-03-31"),
		func(f, total int) {
			fetched = append(fetched, f)
			totals = append(totals, total)
		})
	if err != nil {
		t.Fatalf("ListCalls() error = %v", err)
	}

	wantFetched := []int{100, 200, 250}
	if len(fetched) != len(wantFetched) {
		t.Fatalf("progress called %d times, want %d", len(fetched), len(wantFetched))
	}
	for i := range wantFetched {
		if fetched[i] != wantFetched[i] {
			t.Errorf("progress fetched[%d] = %d, want %d", i, fetched[i], wantFetched[i])
		}
		if totals[i] != 250 {
			t.Errorf("progress total[%d] = %d, want 250", i, totals[i])
		}
	}
}

func TestListCallsExtensive_FlattensParties(t *testing.T) {
	mock := testutil.NewMockGong()
	defer mock.Close()
	mock.Calls = testutil.MakeCalls(150)
	mock.PageSize = 100

	client := newTestClient(t, mock.URL())
	calls, err := client.ListCallsExtensive(context.Background(), mustDateRange(t, "2024-01-01", "2024-03-31"), nil)
	if err != nil {
		t.Fatalf("ListCallsExtensive() error = %v", err)
	}

	if len(calls) != 150 {
		t.Errorf("ListCallsExtensive() returned %d calls, want 150", len(calls))
	}
	if mock.ExtensiveRequests != 2 {
		t.Errorf("server saw %d extensive requests, want 2", mock.ExtensiveRequests)
	}
	for i, c := range calls {
		if len(c.Parties) != 2 {
			t.Fatalf("calls[%d] has %d parties, want 2 (metaData/parties not flattened)", i, len(c.Parties))
		}
		if c.ID == "" {
			t.Fatalf("calls[%d] has empty ID after flattening", i)
		}
	}
}

func TestListCalls_InvalidRange(t *testing.T) {
	mock := testutil.NewMockGong()
	defer mock.Close()

	client := newTestClient(t, mock.URL())
	_, err := client.ListCalls(context.Background(), gong.DateRange{
		Start: mustDateRange(t, "2024-02-01", "2024-02-01").Start,
		End:   mustDateRange(t, "2024-01-01", "2024-01-01").End,
	}, nil)

	if err == nil {
		t.Error("ListCalls() with start after end returned nil error")
	}
	if mock.ListRequests != 0 {
		t.Errorf("server saw %d requests, want 0 for invalid range", mock.ListRequests)
	}
}
