package features

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/pdm-core/internal/domain"
)

func TestWindow_EvictsOldestPerMachine(t *testing.T) {
	w := NewWindow(3)
	for i := 0; i < 5; i++ {
		w.Update("m1", domain.SensorReading{Temperature: float64(i)})
	}
	w.Update("m2", domain.SensorReading{Temperature: 100})

	hist := w.History("m1")
	require.Len(t, hist, 3)
	assert.Equal(t, 2.0, hist[0].Temperature)
	assert.Equal(t, 4.0, hist[2].Temperature)
	assert.Equal(t, "m1", hist[0].MachineID)
	assert.Equal(t, 1, w.Len("m2"))
	assert.Equal(t, []string{"m1", "m2"}, w.Machines())
}

func TestWindow_FeaturesUnknownMachine(t *testing.T) {
	w := NewWindow(DefaultCapacity)
	assert.Equal(t, domain.FeatureVector{0, 0, 0, 0, 0, 0, 0, 0}, w.Features("ghost", 10))
	assert.Zero(t, w.Len("ghost"))
	assert.Empty(t, w.History("ghost"))
}

func TestWindow_FeaturesUsesWindowSize(t *testing.T) {
	w := NewWindow(DefaultCapacity)
	w.Update("m1", domain.SensorReading{Temperature: 500, Vibration: 5})
	for i := 0; i < 10; i++ {
		w.Update("m1", domain.SensorReading{Temperature: 85, Vibration: 0.75})
	}

	got := w.Features("m1", 10)
	assert.Equal(t, domain.FeatureVector{85, 0, 85, 0.75, 0, 0.75, 10, 10}, got)
}

func TestWindow_HistoryIsACopy(t *testing.T) {
	w := NewWindow(10)
	w.Update("m1", domain.SensorReading{Temperature: 1})
	hist := w.History("m1")
	hist[0].Temperature = 99

	assert.Equal(t, 1.0, w.History("m1")[0].Temperature)
}

func TestWindow_RecentReadings(t *testing.T) {
	w := NewWindow(0)
	for i := 0; i < 20; i++ {
		w.Update("m1", domain.SensorReading{Timestamp: time.Unix(int64(i), 0)})
	}
	got, err := w.RecentReadings(context.Background(), "m1", 5)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, int64(15), got[0].Timestamp.Unix())
}

func TestWindow_ConcurrentUpdates(t *testing.T) {
	w := NewWindow(1000)
	var wg sync.WaitGroup
	for m := 0; m < 8; m++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				w.Update(id, domain.SensorReading{Temperature: float64(i)})
				_ = w.Features(id, 10)
			}
		}(fmt.Sprintf("m%d", m))
	}
	wg.Wait()

	for m := 0; m < 8; m++ {
		assert.Equal(t, 200, w.Len(fmt.Sprintf("m%d", m)))
	}
}
