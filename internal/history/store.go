// Package history — журнал результатов конвейера в памяти процесса.
package history

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xela07ax/pdm-core/internal/domain"
	"github.com/xela07ax/pdm-core/internal/ring"
	"github.com/xela07ax/pdm-core/internal/telemetry"
)

// DefaultCapacity — сколько записей держим в памяти.
const DefaultCapacity = 10000

type Kind string

const (
	KindAnomaly Kind = "anomaly"
	KindFailure Kind = "failure"
	KindAction  Kind = "action"
	KindAlert   Kind = "alert"
)

// Entry — одна запись журнала. Заполнено ровно одно из полей-значений.
type Entry struct {
	Seq       uint64                    `json:"seq"`
	Kind      Kind                      `json:"kind"`
	MachineID string                    `json:"machine_id"`
	Timestamp time.Time                 `json:"timestamp"`
	Anomaly   *domain.AnomalyResult     `json:"anomaly,omitempty"`
	Failure   *domain.FailurePrediction `json:"failure,omitempty"`
	Action    *domain.MitigationAction  `json:"action,omitempty"`
	Alert     *domain.AlertRecord       `json:"alert,omitempty"`
}

// Filter сужает выборку; нулевые поля не фильтруют.
type Filter struct {
	Kind      Kind
	MachineID string
	Since     time.Time
}

func (f Filter) match(e Entry) bool {
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.MachineID != "" && e.MachineID != f.MachineID {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// Counts — накопленные итоги с момента старта (вытеснение их не уменьшает).
type Counts struct {
	Anomalies       int64            `json:"anomalies"`
	Failures        int64            `json:"failures"`
	Actions         int64            `json:"actions"`
	Alerts          int64            `json:"alerts"`
	AnomaliesByType map[string]int64 `json:"anomalies_by_type"`
}

// Store — append-only журнал с ограничением по числу записей.
// Порядок записей совпадает с порядком вызовов Record*.
type Store struct {
	mu      sync.RWMutex
	entries *ring.Buffer[Entry]
	seq     uint64
	counts  Counts
	savings float64
	metrics *telemetry.Metrics
	now     func() time.Time
}

func NewStore(capacity int, metrics *telemetry.Metrics) *Store {
	if capacity < 0 {
		capacity = DefaultCapacity
	}
	if metrics == nil {
		metrics = telemetry.NewMetrics(nil)
	}
	return &Store{
		entries: ring.New[Entry](capacity),
		counts:  Counts{AnomaliesByType: make(map[string]int64)},
		metrics: metrics,
		now:     time.Now,
	}
}

func (s *Store) RecordAnomaly(res domain.AnomalyResult) {
	s.append(Entry{Kind: KindAnomaly, MachineID: res.MachineID, Timestamp: res.Timestamp, Anomaly: &res}, func() {
		s.counts.Anomalies++
		if res.AnomalyType != domain.AnomalyNone {
			s.counts.AnomaliesByType[string(res.AnomalyType)]++
		}
	})
}

func (s *Store) RecordFailure(pred domain.FailurePrediction) {
	s.append(Entry{Kind: KindFailure, MachineID: pred.MachineID, Timestamp: pred.Timestamp, Failure: &pred}, func() {
		s.counts.Failures++
	})
}

func (s *Store) RecordAction(action domain.MitigationAction) {
	s.append(Entry{Kind: KindAction, MachineID: action.MachineID, Timestamp: action.AppliedAt, Action: &action}, func() {
		s.counts.Actions++
		s.savings += action.ExpectedSavingsKW
	})
}

func (s *Store) RecordAlert(alert domain.AlertRecord) {
	s.append(Entry{Kind: KindAlert, MachineID: alert.MachineID, Timestamp: alert.Timestamp, Alert: &alert}, func() {
		s.counts.Alerts++
	})
}

func (s *Store) append(e Entry, count func()) {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now().UTC()
	}
	s.mu.Lock()
	s.seq++
	e.Seq = s.seq
	s.entries.Push(e)
	count()
	size := s.entries.Len()
	s.mu.Unlock()
	s.metrics.HistoryEntries.Set(float64(size))
}

// Recent — до n последних записей под фильтр, от новых к старым. n <= 0 — все.
func (s *Store) Recent(n int, f Filter) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Entry{}
	s.entries.Each(func(e Entry) bool {
		if f.match(e) {
			out = append(out, e)
		}
		return n <= 0 || len(out) < n
	})
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries.Len()
}

func (s *Store) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.counts
	c.AnomaliesByType = make(map[string]int64, len(s.counts.AnomaliesByType))
	for k, v := range s.counts.AnomaliesByType {
		c.AnomaliesByType[k] = v
	}
	return c
}

// Anomalies — последние аномалии станка (пустой machineID — всех), от новых к старым.
func (s *Store) Anomalies(machineID string, n int) []domain.AnomalyResult {
	out := []domain.AnomalyResult{}
	for _, e := range s.Recent(n, Filter{Kind: KindAnomaly, MachineID: machineID}) {
		out = append(out, *e.Anomaly)
	}
	return out
}

func (s *Store) Failures(machineID string, n int) []domain.FailurePrediction {
	out := []domain.FailurePrediction{}
	for _, e := range s.Recent(n, Filter{Kind: KindFailure, MachineID: machineID}) {
		out = append(out, *e.Failure)
	}
	return out
}

func (s *Store) Actions(n int) []domain.MitigationAction {
	out := []domain.MitigationAction{}
	for _, e := range s.Recent(n, Filter{Kind: KindAction}) {
		out = append(out, *e.Action)
	}
	return out
}

// TotalSavingsKW — суммарная ожидаемая экономия всех мер с момента старта.
func (s *Store) TotalSavingsKW() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.savings
}

func (s *Store) TotalCO2ReductionKg() float64 {
	return s.TotalSavingsKW() * domain.CO2PerKW
}

// AlertStats агрегирует алерты в памяти начиная с since.
func (s *Store) AlertStats(since time.Time) domain.AlertStats {
	stats := domain.AlertStats{
		Since:       since,
		BySeverity:  make(map[string]int64),
		ByType:      make(map[string]int64),
		TopMachines: []domain.MachineCount{},
	}
	perMachine := make(map[string]int64)
	for _, e := range s.Recent(0, Filter{Kind: KindAlert, Since: since}) {
		stats.Total++
		stats.BySeverity[string(e.Alert.Severity)]++
		stats.ByType[string(e.Alert.Type)]++
		perMachine[e.MachineID]++
	}
	for id, c := range perMachine {
		stats.TopMachines = append(stats.TopMachines, domain.MachineCount{MachineID: id, Count: c})
	}
	sort.Slice(stats.TopMachines, func(i, j int) bool {
		a, b := stats.TopMachines[i], stats.TopMachines[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.MachineID < b.MachineID
	})
	if len(stats.TopMachines) > 5 {
		stats.TopMachines = stats.TopMachines[:5]
	}
	return stats
}

// Report — KPI по журналу и рекомендации.
func (s *Store) Report() domain.KPIReport {
	counts := s.Counts()
	entries := s.Recent(0, Filter{})

	machines := make(map[string]struct{})
	latestRisk := make(map[string]float64)
	// machine -> type -> count по аномалиям в памяти
	recurring := make(map[string]map[domain.AnomalyType]int)
	for _, e := range entries {
		if e.MachineID != "" {
			machines[e.MachineID] = struct{}{}
		}
		switch e.Kind {
		case KindFailure:
			// Записи идут от новых к старым: первая и есть последняя
			if _, seen := latestRisk[e.MachineID]; !seen {
				latestRisk[e.MachineID] = e.Failure.FailureProbability
			}
		case KindAnomaly:
			if recurring[e.MachineID] == nil {
				recurring[e.MachineID] = make(map[domain.AnomalyType]int)
			}
			recurring[e.MachineID][e.Anomaly.AnomalyType]++
		}
	}

	report := domain.KPIReport{
		Monitoring: domain.MonitoringStats{
			MachinesMonitored: len(machines),
			AnomaliesTotal:    counts.Anomalies,
			FailuresTotal:     counts.Failures,
			AnomaliesByType:   make(map[string]int, len(counts.AnomaliesByType)),
		},
		Risks: domain.RiskStats{HighRiskMachines: []string{}},
		Energy: domain.EnergyStats{
			ActionsTotal:        counts.Actions,
			TotalSavingsKW:      s.TotalSavingsKW(),
			TotalCO2ReductionKg: s.TotalCO2ReductionKg(),
		},
	}
	for k, v := range counts.AnomaliesByType {
		report.Monitoring.AnomaliesByType[k] = int(v)
	}

	var riskSum float64
	for id, p := range latestRisk {
		riskSum += p
		if p > 0.7 {
			report.Risks.HighRiskMachines = append(report.Risks.HighRiskMachines, id)
		}
	}
	sort.Strings(report.Risks.HighRiskMachines)
	if len(latestRisk) > 0 {
		report.Risks.AverageFailureRisk = riskSum / float64(len(latestRisk))
	}

	report.Recommendations = recommendations(report.Risks.AverageFailureRisk, counts.Actions, recurring)
	return report
}

// OptimizationSummary — последние n мер и суммарный эффект.
func (s *Store) OptimizationSummary(n int) domain.OptimizationSummary {
	counts := s.Counts()
	return domain.OptimizationSummary{
		Actions:             s.Actions(n),
		TotalSavingsKW:      s.TotalSavingsKW(),
		TotalCO2ReductionKg: s.TotalCO2ReductionKg(),
		Recommendations:     recommendations(0, counts.Actions, nil),
	}
}

func recommendations(avgRisk float64, actions int64, recurring map[string]map[domain.AnomalyType]int) []string {
	out := []string{}
	if avgRisk > 0.5 {
		out = append(out, "Schedule preventive maintenance for high-risk machines")
	}

	ids := make([]string, 0, len(recurring))
	for id := range recurring {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		types := make([]string, 0, len(recurring[id]))
		for t, c := range recurring[id] {
			if c > 5 && t != domain.AnomalyNone {
				types = append(types, string(t))
			}
		}
		sort.Strings(types)
		for _, t := range types {
			out = append(out, fmt.Sprintf("Inspect %s for recurring %s", id, t))
		}
	}

	if actions < 5 {
		out = append(out, "Enable continuous energy monitoring for better optimization")
	}
	return out
}
