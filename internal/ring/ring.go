// Package ring — кольцевой буфер с вытеснением самых старых элементов.
// Синхронизацию обеспечивает владелец буфера.
package ring

type Buffer[T any] struct {
	items    []T
	head     int // индекс самого старого элемента после заполнения
	capacity int // 0 — без ограничения
	evicted  uint64
}

func New[T any](capacity int) *Buffer[T] {
	if capacity < 0 {
		capacity = 0
	}
	initial := capacity
	if initial == 0 || initial > 64 {
		initial = 64
	}
	return &Buffer[T]{items: make([]T, 0, initial), capacity: capacity}
}

// Push добавляет элемент и возвращает true, если самый старый был вытеснен.
func (b *Buffer[T]) Push(v T) bool {
	if b.capacity == 0 || len(b.items) < b.capacity {
		b.items = append(b.items, v)
		return false
	}
	b.items[b.head] = v
	b.head = (b.head + 1) % b.capacity
	b.evicted++
	return true
}

func (b *Buffer[T]) Len() int { return len(b.items) }

func (b *Buffer[T]) Cap() int { return b.capacity }

// Evicted — сколько элементов вытеснено за все время.
func (b *Buffer[T]) Evicted() uint64 { return b.evicted }

// Snapshot возвращает копию от старых к новым.
func (b *Buffer[T]) Snapshot() []T {
	return b.Last(len(b.items))
}

// Last возвращает копию последних n элементов (от старых к новым).
func (b *Buffer[T]) Last(n int) []T {
	size := len(b.items)
	if n <= 0 || size == 0 {
		return []T{}
	}
	if n > size {
		n = size
	}
	out := make([]T, 0, n)
	skip := size - n
	for i := skip; i < size; i++ {
		out = append(out, b.items[(b.head+i)%size])
	}
	return out
}

// Each обходит элементы от новых к старым, пока fn возвращает true.
func (b *Buffer[T]) Each(fn func(T) bool) {
	size := len(b.items)
	for i := size - 1; i >= 0; i-- {
		if !fn(b.items[(b.head+i)%size]) {
			return
		}
	}
}
