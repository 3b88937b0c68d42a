package pipeline

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/customer-map/internal/normalize"
	"github.com/sells-group/customer-map/pkg/geocode"
	"github.com/sells-group/customer-map/pkg/hubspot"
)

// fakeResolver resolves every address containing "Reno" and records call order.
type fakeResolver struct {
	mu       sync.Mutex
	calls    []string
	inflight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (f *fakeResolver) Resolve(_ context.Context, address string) *geocode.Result {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.calls = append(f.calls, address)
	f.mu.Unlock()

	if strings.Contains(address, "Reno") {
		return &geocode.Result{Latitude: 39.5, Longitude: -119.8, DisplayName: "Reno, NV"}
	}
	return nil
}

func (f *fakeResolver) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func companies(n int, city string) []hubspot.Company {
	out := make([]hubspot.Company, n)
	for i := range out {
		out[i] = hubspot.Company{
			ID: fmt.Sprint(i),
			Properties: hubspot.Properties{
				Name:    fmt.Sprintf("School %d", i),
				Address: fmt.Sprintf("%d Main St", i),
				City:    city,
				State:   "NV",
			},
		}
	}
	return out
}

func newTestPipeline(r geocode.Resolver, opts ...Option) *Pipeline {
	base := []Option{WithGeocoder(r)}
	return New(normalize.New(), append(base, opts...)...)
}

func TestGeocodeAll_ProgressPerBatch(t *testing.T) {
	p := newTestPipeline(&fakeResolver{}, WithBatchSize(10))

	var got []Progress
	out := p.GeocodeAll(context.Background(), companies(25, "Reno"), func(pr Progress) {
		got = append(got, pr)
	})

	require.Len(t, out, 25)
	assert.Equal(t, []Progress{
		{Processed: 10, Total: 25, Geocoded: 10, Percent: 40},
		{Processed: 20, Total: 25, Geocoded: 20, Percent: 80},
		{Processed: 25, Total: 25, Geocoded: 25, Percent: 100},
	}, got)
}

func TestGeocodeAll_PreservesOrderAndFields(t *testing.T) {
	p := newTestPipeline(&fakeResolver{delay: time.Millisecond}, WithBatchSize(4))
	out := p.GeocodeAll(context.Background(), companies(9, "Reno"), nil)

	require.Len(t, out, 9)
	for i, c := range out {
		assert.Equal(t, fmt.Sprintf("hs_%d", i), c.ID)
		require.NotNil(t, c.Coordinates)
		assert.InDelta(t, 39.5, c.Coordinates.Latitude, 1e-9)
		assert.Equal(t, "Reno, NV", c.GeocodeLabel)
	}
}

func TestGeocodeAll_FailuresLeaveCoordinatesNil(t *testing.T) {
	p := newTestPipeline(&fakeResolver{})
	in := append(companies(3, "Reno"), companies(2, "Elko")...)

	var last Progress
	out := p.GeocodeAll(context.Background(), in, func(pr Progress) { last = pr })

	require.Len(t, out, 5)
	assert.Nil(t, out[3].Coordinates)
	assert.Nil(t, out[4].Coordinates)
	assert.Equal(t, 3, last.Geocoded)
	assert.Equal(t, 100, last.Percent)
}

func TestGeocodeAll_ShortAddressSkipped(t *testing.T) {
	r := &fakeResolver{}
	p := newTestPipeline(r)

	in := []hubspot.Company{
		{ID: "1", Properties: hubspot.Properties{State: "NV"}},
		{ID: "2", Properties: hubspot.Properties{}},
		{ID: "3", Properties: hubspot.Properties{City: "Reno", State: "NV"}},
	}
	out := p.GeocodeAll(context.Background(), in, nil)

	require.Len(t, out, 3)
	assert.Nil(t, out[0].Coordinates)
	assert.Nil(t, out[1].Coordinates)
	assert.NotNil(t, out[2].Coordinates)
	assert.Equal(t, []string{"Reno, NV"}, r.recorded())
}

func TestBatches_SequentialAcrossBatches(t *testing.T) {
	r := &fakeResolver{delay: 2 * time.Millisecond}
	p := newTestPipeline(r, WithBatchSize(3))

	in := companies(9, "Reno")
	var batches []Batch
	for b := range p.Batches(context.Background(), in) {
		batches = append(batches, b)
	}
	require.Len(t, batches, 3)
	assert.LessOrEqual(t, r.peak.Load(), int32(3))

	calls := r.recorded()
	require.Len(t, calls, 9)
	for i, b := range batches {
		assert.Equal(t, i, b.Index)
		var want []string
		for _, c := range b.Customers {
			want = append(want, c.Address)
		}
		assert.ElementsMatch(t, want, calls[i*3:i*3+3], "batch %d", i)
	}
}

func TestBatches_Restartable(t *testing.T) {
	r := &fakeResolver{}
	p := newTestPipeline(r, WithBatchSize(2))
	seq := p.Batches(context.Background(), companies(3, "Reno"))

	count := func() int {
		n := 0
		for range seq {
			n++
		}
		return n
	}
	assert.Equal(t, 2, count())
	assert.Equal(t, 2, count())
	assert.Len(t, r.recorded(), 6)
}

func TestBatches_EarlyBreak(t *testing.T) {
	r := &fakeResolver{}
	p := newTestPipeline(r, WithBatchSize(2))
	for b := range p.Batches(context.Background(), companies(10, "Reno")) {
		assert.Equal(t, 0, b.Index)
		break
	}
	assert.Len(t, r.recorded(), 2)
}

func TestBatches_Empty(t *testing.T) {
	p := newTestPipeline(&fakeResolver{})
	n := 0
	for range p.Batches(context.Background(), nil) {
		n++
	}
	assert.Zero(t, n)
}

func TestBatches_ContextCancelled(t *testing.T) {
	r := &fakeResolver{}
	p := newTestPipeline(r)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := p.GeocodeAll(ctx, companies(5, "Reno"), nil)
	assert.Empty(t, out)
	assert.Empty(t, r.recorded())
}

func TestGeocodeAll_NoGeocoder(t *testing.T) {
	p := New(normalize.New())
	out := p.GeocodeAll(context.Background(), companies(2, "Reno"), nil)
	require.Len(t, out, 2)
	assert.Nil(t, out[0].Coordinates)
}

func TestPercent(t *testing.T) {
	tests := []struct {
		processed, total, want int
	}{
		{0, 10, 0},
		{1, 3, 33},
		{2, 3, 67},
		{1, 8, 13},
		{10, 10, 100},
		{12, 10, 100},
		{-1, 10, 0},
		{0, 0, 100},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_of_%d", tt.processed, tt.total), func(t *testing.T) {
			assert.Equal(t, tt.want, Percent(tt.processed, tt.total))
		})
	}
}
