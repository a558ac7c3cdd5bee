package features

import (
	"context"
	"sort"
	"sync"

	"github.com/xela07ax/pdm-core/internal/domain"
	"github.com/xela07ax/pdm-core/internal/ring"
)

// DefaultCapacity — сколько замеров хранится на станок по умолчанию.
const DefaultCapacity = 500

// Window хранит скользящую историю замеров по каждому станку.
// Глобальная блокировка берется только для поиска буфера станка,
// сам буфер защищен собственным мьютексом.
type Window struct {
	mu       sync.RWMutex
	machines map[string]*machineBuffer
	capacity int
}

type machineBuffer struct {
	mu  sync.Mutex
	buf *ring.Buffer[domain.SensorReading]
}

// NewWindow создает окно. capacity == 0 отключает вытеснение.
func NewWindow(capacity int) *Window {
	if capacity < 0 {
		capacity = DefaultCapacity
	}
	return &Window{
		machines: make(map[string]*machineBuffer),
		capacity: capacity,
	}
}

// Update добавляет замер в историю станка, вытесняя самый старый при переполнении.
func (w *Window) Update(machineID string, reading domain.SensorReading) {
	if reading.MachineID == "" {
		reading.MachineID = machineID
	}
	b := w.buffer(machineID, true)
	b.mu.Lock()
	b.buf.Push(reading)
	b.mu.Unlock()
}

// Features возвращает трендовый вектор по последним windowSize замерам.
// Для неизвестного станка — нулевой вектор.
func (w *Window) Features(machineID string, windowSize int) domain.FeatureVector {
	return Summarize(w.last(machineID, windowSize), 0).Vector()
}

// History — копия истории станка от старых к новым.
func (w *Window) History(machineID string) []domain.SensorReading {
	return w.last(machineID, 0)
}

func (w *Window) Len(machineID string) int {
	b := w.buffer(machineID, false)
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

// Machines — отсортированный список известных станков.
func (w *Window) Machines() []string {
	w.mu.RLock()
	ids := make([]string, 0, len(w.machines))
	for id := range w.machines {
		ids = append(ids, id)
	}
	w.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// RecentReadings позволяет использовать окно как источник истории для прогноза отказов.
func (w *Window) RecentReadings(_ context.Context, machineID string, limit int) ([]domain.SensorReading, error) {
	return w.last(machineID, limit), nil
}

func (w *Window) last(machineID string, n int) []domain.SensorReading {
	b := w.buffer(machineID, false)
	if b == nil {
		return []domain.SensorReading{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 {
		return b.buf.Snapshot()
	}
	return b.buf.Last(n)
}

func (w *Window) buffer(machineID string, create bool) *machineBuffer {
	w.mu.RLock()
	b, ok := w.machines[machineID]
	w.mu.RUnlock()
	if ok || !create {
		return b
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	// Двойная проверка: буфер мог создать соседний поток
	if b, ok = w.machines[machineID]; ok {
		return b
	}
	b = &machineBuffer{buf: ring.New[domain.SensorReading](w.capacity)}
	w.machines[machineID] = b
	return b
}
