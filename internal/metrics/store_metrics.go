package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Результаты операций хранилища для label "result".
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// StoreMetrics содержит метрики ProductManager/CartManager.
// Все методы безопасны для nil-получателя: хранилище может работать без метрик.
type StoreMetrics struct {
	operations      *prometheus.CounterVec
	persistDuration *prometheus.HistogramVec
	entities        *prometheus.GaugeVec
	lastAssignedID  *prometheus.GaugeVec
	eventsPublished *prometheus.CounterVec
}

// NewStoreMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewStoreMetrics() *StoreMetrics {
	return NewStoreMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewStoreMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewStoreMetricsWithRegisterer(registerer prometheus.Registerer) *StoreMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &StoreMetrics{
		operations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_store_operations_total",
			Help: "Total number of store operations grouped by store, operation and result",
		}, []string{"store", "op", "result"}),
		persistDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_store_persist_duration_seconds",
			Help:    "Duration of full-document persist operations in seconds",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"store"}),
		entities: registerGaugeVec(registerer, prometheus.GaugeOpts{
			Name: "storefront_store_entities",
			Help: "Current number of entities held by a store",
		}, []string{"store"}),
		lastAssignedID: registerGaugeVec(registerer, prometheus.GaugeOpts{
			Name: "storefront_store_last_assigned_id",
			Help: "High-water mark of identifiers assigned by a store",
		}, []string{"store"}),
		eventsPublished: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_events_published_total",
			Help: "Total number of domain events handed to publishers grouped by sink and result",
		}, []string{"sink", "result"}),
	}
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		var alreadyRegistered prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegistered) {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGaugeVec(registerer prometheus.Registerer, opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	collector := prometheus.NewGaugeVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		var alreadyRegistered prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegistered) {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.GaugeVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		var alreadyRegistered prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegistered) {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// ResultOf классифицирует ошибку операции: ошибки вызывающего дают rejected, ошибки хранилища дают error.
func ResultOf(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case domain.IsStorage(err):
		return ResultError
	case domain.IsValidation(err), domain.IsNotFound(err), domain.IsDuplicateKey(err), errors.Is(err, domain.ErrCartNotEmpty):
		return ResultRejected
	default:
		return ResultError
	}
}

// RecordOperation учитывает завершённую операцию хранилища.
func (m *StoreMetrics) RecordOperation(store, op string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(store, op, ResultOf(err)).Inc()
}

// ObservePersist записывает длительность сохранения документа.
func (m *StoreMetrics) ObservePersist(store string, duration time.Duration) {
	if m == nil {
		return
	}
	m.persistDuration.WithLabelValues(store).Observe(duration.Seconds())
}

// SetState обновляет размер коллекции и high-water mark хранилища.
func (m *StoreMetrics) SetState(store string, entities int, lastID int64) {
	if m == nil {
		return
	}
	m.entities.WithLabelValues(store).Set(float64(entities))
	m.lastAssignedID.WithLabelValues(store).Set(float64(lastID))
}

// RecordEventPublished учитывает попытку доставки события в sink.
func (m *StoreMetrics) RecordEventPublished(sink string, err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.eventsPublished.WithLabelValues(sink, result).Inc()
}
