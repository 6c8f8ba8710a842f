package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики движка.
var (
	// RunsStarted — количество запущенных run по имени flow.
	RunsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_runs_started_total",
		Help: "Number of flow runs started",
	}, []string{"flow"})

	// RunsCompleted — количество завершённых run по имени flow
	// и терминальному статусу.
	RunsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_runs_completed_total",
		Help: "Number of flow runs reaching a terminal status",
	}, []string{"flow", "status"})

	// StepsExecuted — количество завершённых шагов по типу и статусу.
	StepsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_steps_executed_total",
		Help: "Number of steps reaching a terminal status",
	}, []string{"type", "status"})

	// StepDuration — длительность исполнения шага по типу.
	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relay_step_duration_seconds",
		Help:    "Step execution duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	// SuspendedSteps — текущее число приостановленных шагов.
	// Уменьшается при возобновлении и при финализации run
	// с неразрешёнными ожиданиями (отмена, каскадный провал).
	SuspendedSteps = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_suspended_steps",
		Help: "Number of steps currently suspended",
	})

	// SignalsDelivered — количество доставленных сигналов по имени.
	SignalsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_signals_delivered_total",
		Help: "Number of signal deliveries accepted",
	}, []string{"signal"})

	// TimersFired — количество сработавших таймеров.
	TimersFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_timers_fired_total",
		Help: "Number of timer firings accepted",
	})
)
