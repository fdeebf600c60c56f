package server

import (
	"path/filepath"
	"testing"
	"time"

	ariesk "github.com/dcdanko/AriesK"
	"github.com/dcdanko/AriesK/store"
)

func testRamifier(t *testing.T, k, d int) *ariesk.Ramifier {
	t.Helper()
	n := 4 * k
	rot := make([][]float64, d)
	for i := range rot {
		rot[i] = make([]float64, n)
		if i < n {
			rot[i][i] = 1
		}
	}
	center := make([]float64, n)
	scale := make([]float64, n)
	for i := range scale {
		scale[i] = 1
	}
	art := &ariesk.RotationArtifact{K: k, Center: center, Scale: scale, Rotation: rot}
	r, err := ariesk.NewRamifier(k, d, art)
	if err != nil {
		t.Fatalf("NewRamifier: %v", err)
	}
	return r
}

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	k, d := 4, 2
	s, err := store.Create(filepath.Join(t.TempDir(), "test.db"), store.Meta{K: k, D: d, BoxSide: 1.0})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ram := testRamifier(t, k, d)
	km, err := ariesk.EncodeKmer("ACGT")
	if err != nil {
		t.Fatalf("EncodeKmer: %v", err)
	}
	canon := ariesk.Canonical(km)
	vec, err := ram.Ramify(canon)
	if err != nil {
		t.Fatalf("Ramify: %v", err)
	}
	if _, err := s.AddPoint(vec, canon, store.Provenance{ContigID: 0, ContigOffset: 0}); err != nil {
		t.Fatalf("AddPoint: %v", err)
	}

	srv := New(s, ram, nil)
	addr := filepath.Join(t.TempDir(), "ariesk.sock")
	go func() {
		_ = srv.ListenAndServe(addr)
	}()
	// Give the listener a moment to bind before the test dials it.
	for i := 0; i < 50; i++ {
		if c, err := Dial(addr); err == nil {
			c.Close()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	return srv, addr
}

func TestHandshake(t *testing.T) {
	_, addr := newTestServer(t)
	c, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()
	if err := c.Handshake(); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
}

func TestSearchCoarseAndFull(t *testing.T) {
	_, addr := newTestServer(t)
	c, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	outer, inner := 0.0, 0.0
	reply, err := c.Search(Request{
		QueryType:   "sequence",
		Query:       "ACGT",
		OuterRadius: &outer,
		InnerRadius: &inner,
		InnerMetric: "needle",
		SearchMode:  "coarse",
	})
	if err != nil {
		t.Fatalf("Search(coarse): %v", err)
	}
	if reply.Type != "search" || reply.Results == "" {
		t.Fatalf("coarse search reply = %+v, want at least one centroid id", reply)
	}

	reply, err = c.Search(Request{
		QueryType:   "sequence",
		Query:       "ACGT",
		OuterRadius: &outer,
		InnerRadius: &inner,
		InnerMetric: "needle",
		SearchMode:  "full",
	})
	if err != nil {
		t.Fatalf("Search(full): %v", err)
	}
	if reply.Results != "ACGT" {
		t.Fatalf("full search reply = %+v, want results %q", reply, "ACGT")
	}
}

func TestSequentialRequestsOrdered(t *testing.T) {
	_, addr := newTestServer(t)
	c, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	outer, inner := 0.0, 0.0
	for i := 0; i < 3; i++ {
		reply, err := c.Search(Request{
			QueryType:   "sequence",
			Query:       "ACGT",
			OuterRadius: &outer,
			InnerRadius: &inner,
			InnerMetric: "needle",
			SearchMode:  "full",
		})
		if err != nil {
			t.Fatalf("Search %d: %v", i, err)
		}
		if reply.Results != "ACGT" {
			t.Fatalf("Search %d reply = %+v", i, reply)
		}
	}
}

func TestUnknownRequestTypeIsProtocolError(t *testing.T) {
	_, addr := newTestServer(t)
	c, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if err := c.enc.Encode(Request{Type: "bogus"}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var reply Reply
	if err := c.dec.Decode(&reply); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if reply.Type != "error" {
		t.Fatalf("reply = %+v, want type error", reply)
	}
}

func TestShutdownEndsLoop(t *testing.T) {
	srv, addr := newTestServer(t)
	_ = srv
	c, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := c.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	c.Close()

	// Give the accept loop time to exit, then confirm no new connection is
	// accepted: the listener should no longer be serving.
	time.Sleep(50 * time.Millisecond)
	if _, err := Dial(addr); err == nil {
		t.Fatalf("expected Dial to fail after shutdown")
	}
}
