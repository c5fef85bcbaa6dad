package geocode

import (
	"context"
	"testing"
	"time"

	"github.com/example/van-notify/internal/models"
)

type countingClient struct {
	calls int
	miss  bool
}

func (c *countingClient) Geocode(ctx context.Context, address string) (models.Coord, bool) {
	c.calls++
	if c.miss {
		return models.Coord{}, false
	}
	return models.Coord{Lat: 10, Lon: 20}, true
}

func TestCacheHitSkipsInnerClient(t *testing.T) {
	inner := &countingClient{}
	c := NewCached(inner, time.Minute)

	if _, ok := c.Geocode(context.Background(), "1 Oak St"); !ok {
		t.Fatal("expected hit")
	}
	// normalization: same address, different spacing and case
	if _, ok := c.Geocode(context.Background(), "  1  OAK st "); !ok {
		t.Fatal("expected cached hit")
	}
	if inner.calls != 1 {
		t.Fatalf("expected 1 inner call, got %d", inner.calls)
	}
}

func TestCacheExpiry(t *testing.T) {
	inner := &countingClient{}
	c := NewCached(inner, 10*time.Millisecond)
	c.Geocode(context.Background(), "1 Oak St")
	time.Sleep(20 * time.Millisecond)
	c.Geocode(context.Background(), "1 Oak St")
	if inner.calls != 2 {
		t.Fatalf("expected expired entry to refetch, got %d calls", inner.calls)
	}
}

func TestMissNotCached(t *testing.T) {
	inner := &countingClient{miss: true}
	c := NewCached(inner, time.Minute)
	if _, ok := c.Geocode(context.Background(), "nowhere"); ok {
		t.Fatal("expected miss")
	}
	c.Geocode(context.Background(), "nowhere")
	if inner.calls != 2 {
		t.Fatalf("misses must fall through, got %d calls", inner.calls)
	}
}
