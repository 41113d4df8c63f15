package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestExplorerPages(t *testing.T) {
	d := mustCreateTestDaemon(t)
	tx := mustAddTx(t, d.Session(), "Alice", "Bob", 4)
	b := mustMineBlock(t, d.Session())
	e := NewExplorer(d, nil)

	get := func(path string) *httptest.ResponseRecorder {
		t.Helper()
		rr := httptest.NewRecorder()
		e.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		return rr
	}

	rr := get("/")
	if rr.Code != http.StatusOK {
		t.Fatalf("index: expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), shortID(b.ID)) {
		t.Fatalf("index does not list the mined block")
	}

	rr = get("/block/" + b.ID)
	if rr.Code != http.StatusOK {
		t.Fatalf("block page: expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), b.Hash) {
		t.Fatalf("block page does not show the hash")
	}

	if rr := get("/block/nope"); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown block: expected 404, got %d", rr.Code)
	}

	for _, q := range []string{b.ID, b.Hash, tx.ID} {
		rr := get("/search?q=" + q)
		if rr.Code != http.StatusFound || rr.Header().Get("Location") != "/block/"+b.ID {
			t.Fatalf("search %q: got %d -> %q", q, rr.Code, rr.Header().Get("Location"))
		}
	}
	if rr := get("/search?q=zzzz-missing"); rr.Code != http.StatusNotFound {
		t.Fatalf("search miss: expected 404, got %d", rr.Code)
	}
}

func TestExplorerShowsBrokenChain(t *testing.T) {
	d := mustCreateTestDaemon(t)
	mustAddTx(t, d.Session(), "Alice", "Bob", 4)
	b := mustMineBlock(t, d.Session())
	mustTamperInvalid(t, d.Session(), b.ID)
	e := NewExplorer(d, nil)

	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/block/"+b.ID, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "InsufficientDifficulty") {
		t.Fatalf("block page should name the validation error:\n%s", rr.Body.String())
	}
}

func TestTimeAgo(t *testing.T) {
	now := time.Now().UnixMilli()
	cases := map[int64]string{
		now - 5_000:        "5s ago",
		now - 5*60_000:     "5m ago",
		now - 5*3_600_000:  "5h ago",
		now - 3*86_400_000: "3d ago",
	}
	for ts, want := range cases {
		if got := timeAgo(ts); got != want {
			t.Fatalf("timeAgo(%d) = %q, want %q", ts, got, want)
		}
	}
}
