package inference

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Логические имена моделей конвейера.
const (
	ModelAnomaly   = "anomaly_detection"
	ModelFailure   = "failure_prediction"
	ModelVibration = "vibration_analysis"
	ModelControl   = "control_loop"
)

// ModelSpec описывает, как вызывать модель.
type ModelSpec struct {
	Name        string        // логическое имя внутри конвейера
	RemoteID    string        // идентификатор модели у бэкенда
	ScoreField  string        // поле ответа с основной оценкой; пусто — predictions[0]
	LatencyHint time.Duration // подсказка бэкенду, на таймаут не влияет
	Local       LocalModel    // если задана, модель считается в процессе
}

// Registry — явный реестр моделей, передается в шлюз при сборке.
type Registry struct {
	mu     sync.RWMutex
	models map[string]ModelSpec
}

func NewRegistry() *Registry {
	return &Registry{models: make(map[string]ModelSpec)}
}

// DefaultRegistry регистрирует модели конвейера с удаленными идентификаторами.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, spec := range []ModelSpec{
		{Name: ModelAnomaly, RemoteID: "anomaly_detector_v1", ScoreField: "anomaly_score", LatencyHint: 50 * time.Millisecond},
		{Name: ModelFailure, RemoteID: "failure_predictor_v1", ScoreField: "failure_probability"},
		{Name: ModelVibration, RemoteID: "vibration_analyzer_v1", ScoreField: "anomaly_score", LatencyHint: 50 * time.Millisecond},
		{Name: ModelControl, RemoteID: "control_optimizer_v1", ScoreField: "adjustment", LatencyHint: 10 * time.Millisecond},
	} {
		_ = r.Register(spec)
	}
	return r
}

func (r *Registry) Register(spec ModelSpec) error {
	if spec.Name == "" {
		return errors.New("inference: model name is required")
	}
	if spec.RemoteID == "" {
		spec.RemoteID = spec.Name
	}
	r.mu.Lock()
	r.models[spec.Name] = spec
	r.mu.Unlock()
	return nil
}

func (r *Registry) Lookup(name string) (ModelSpec, error) {
	r.mu.RLock()
	spec, ok := r.models[name]
	r.mu.RUnlock()
	if !ok {
		return ModelSpec{}, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	return spec, nil
}

// Names — отсортированный список зарегистрированных моделей.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadDir подключает локальные модели из *.json в каталоге.
// Любой битый файл — ошибка: наполовину загруженный реестр хуже пустого.
func (r *Registry) LoadDir(dir string) error {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return fmt.Errorf("inference: scan model dir: %w", err)
	}
	if len(paths) == 0 {
		return fmt.Errorf("inference: no models in %s", dir)
	}

	loaded := make([]*LinearModel, 0, len(paths))
	for _, path := range paths {
		m, err := LoadLinearModel(path)
		if err != nil {
			return err
		}
		loaded = append(loaded, m)
	}

	for _, m := range loaded {
		spec, err := r.Lookup(m.Name)
		if err != nil {
			spec = ModelSpec{Name: m.Name}
		}
		spec.Local = m
		if err := r.Register(spec); err != nil {
			return err
		}
	}
	return nil
}

// LoadLinearModel читает модель из JSON и проверяет размерности.
func LoadLinearModel(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("inference: read model %s: %w", path, err)
	}
	var m LinearModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("inference: decode model %s: %w", path, err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("inference: model %s: %w", path, err)
	}
	return &m, nil
}
