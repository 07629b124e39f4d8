package logging

import (
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StartupLogger collects worker identity, configuration, resources, and
// feature flags, then emits a single structured zerolog event summarising
// the cold-start state. This makes it easy to reconstruct exactly how a
// worker was configured when troubleshooting a failed job from logs.
type StartupLogger struct {
	name         string
	initDuration time.Duration

	buckets  map[string]string
	tables   map[string]string
	params   map[string]string
	busses   map[string]string
	features map[string]bool
	config   map[string]string
}

// NewStartupLogger creates a StartupLogger for the given worker name
// (e.g. "pipeline-lambda", "export-lambda").
func NewStartupLogger(name string) *StartupLogger {
	return &StartupLogger{
		name:     name,
		buckets:  make(map[string]string),
		tables:   make(map[string]string),
		params:   make(map[string]string),
		busses:   make(map[string]string),
		features: make(map[string]bool),
		config:   make(map[string]string),
	}
}

// InitDuration records how long cold-start initialization took.
func (s *StartupLogger) InitDuration(d time.Duration) *StartupLogger {
	s.initDuration = d
	return s
}

// Bucket registers an S3 bucket used by this worker.
func (s *StartupLogger) Bucket(label, name string) *StartupLogger {
	s.buckets[label] = name
	return s
}

// Table registers a DynamoDB table used by this worker.
func (s *StartupLogger) Table(label, name string) *StartupLogger {
	s.tables[label] = name
	return s
}

// SSMParam registers an SSM parameter path loaded by this worker.
// Only the path is logged, never the value.
func (s *StartupLogger) SSMParam(label, path string) *StartupLogger {
	s.params[label] = path
	return s
}

// EventBus registers an EventBridge bus this worker publishes to.
func (s *StartupLogger) EventBus(label, name string) *StartupLogger {
	s.busses[label] = name
	return s
}

// Feature registers a boolean feature flag (e.g. "dropboxExport", "overlay").
func (s *StartupLogger) Feature(name string, enabled bool) *StartupLogger {
	s.features[name] = enabled
	return s
}

// Config registers a miscellaneous configuration value.
func (s *StartupLogger) Config(key, value string) *StartupLogger {
	s.config[key] = value
	return s
}

// Emit writes the collected startup state as a single Info event.
func (s *StartupLogger) Emit() {
	ev := log.Info().
		Str("worker", s.name).
		Str("goVersion", runtime.Version()).
		Str("region", os.Getenv("AWS_REGION")).
		Dur("initDuration", s.initDuration)

	ev = dictOf(ev, "buckets", s.buckets)
	ev = dictOf(ev, "tables", s.tables)
	ev = dictOf(ev, "ssmParams", s.params)
	ev = dictOf(ev, "eventBusses", s.busses)
	ev = dictOf(ev, "config", s.config)

	if len(s.features) > 0 {
		d := zerolog.Dict()
		for k, v := range s.features {
			d = d.Bool(k, v)
		}
		ev = ev.Dict("features", d)
	}

	ev.Msg("Worker initialized")
}

func dictOf(ev *zerolog.Event, key string, m map[string]string) *zerolog.Event {
	if len(m) == 0 {
		return ev
	}
	d := zerolog.Dict()
	for k, v := range m {
		d = d.Str(k, v)
	}
	return ev.Dict(key, d)
}
