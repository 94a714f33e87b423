package hook

import "log/slog"

// EffectType discriminates side-effect destinations.
type EffectType string

const (
	EffectMemory       EffectType = "memory"
	EffectNeural       EffectType = "neural"
	EffectMetric       EffectType = "metric"
	EffectNotification EffectType = "notification"
	EffectLog          EffectType = "log"
)

// SideEffect is a declarative instruction emitted by a hook. The engine
// dispatches effects after the handler returns; delivery is best-effort
// and at-most-once, so consumers should be idempotent.
//
// Data carries a closed set of shapes keyed by (Type, Action):
//
//	memory   store   MemoryData
//	memory   delete  MemoryData (Value ignored)
//	neural   train   NeuralData
//	neural   record  NeuralData
//	metric   update  MetricData (sets the value)
//	metric   increment MetricData (Value ignored, adds 1)
//	notification emit NotificationData
//	log      write   LogData
//
// Anything else is rejected at dispatch time.
type SideEffect struct {
	Type   EffectType
	Action string
	Data   any
}

// MemoryData is the payload for memory effects.
type MemoryData struct {
	Namespace string
	Key       string
	Value     any
}

// NeuralData is the payload for neural effects.
type NeuralData struct {
	ModelID string
	Pattern string
	Data    map[string]any
}

// MetricData is the payload for metric effects.
type MetricData struct {
	Name  string
	Value float64
}

// NotificationData is the payload for notification effects.
type NotificationData struct {
	Event   string
	Message string
	Data    map[string]any
}

// LogData is the payload for log effects.
type LogData struct {
	Level   slog.Level
	Message string
	Fields  map[string]any
}
