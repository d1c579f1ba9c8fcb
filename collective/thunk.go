package collective

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
)

// Logger provides printf-style debug logging hooks for the thunk.
type Logger interface {
	Debugf(format string, args ...any)
}

// StructuredLogger emits key/value pairs for structured logging backends.
type StructuredLogger interface {
	Debugw(msg string, keyvals ...any)
}

// TraceAttribute represents a tracing attribute attached to exchange spans or events.
type TraceAttribute struct {
	Key   string
	Value any
}

// Tracer starts spans that wrap one ragged exchange.
type Tracer interface {
	StartSpan(name string, attrs ...TraceAttribute) Span
}

// Span records exchange lifecycle, events, and errors for tracing systems.
type Span interface {
	End(err error)
	AddEvent(name string, attrs ...TraceAttribute)
	RecordError(err error)
}

// MetricHook captures exchange telemetry events.
type MetricHook interface {
	ExchangeStarted(attrs map[string]string)
	ExchangeCompleted(attrs map[string]string)
	ExchangeFailed(stage string, err error, attrs map[string]string)
	StagingCompleted(attrs map[string]string)
	SendPosted(attrs map[string]string)
	ReceivePosted(attrs map[string]string)
}

const (
	labelDevice    = "device"
	labelGroupMode = "group_mode"
	labelPeer      = "peer"
	labelStage     = "stage"
)

type logField struct {
	key   string
	value any
}

func logKV(key string, value any) logField {
	return logField{key: key, value: value}
}

// ThunkConfig carries the optional observability hooks for a thunk. The zero
// value disables all of them.
type ThunkConfig struct {
	Logger           Logger
	StructuredLogger StructuredLogger
	Tracer           Tracer
	Metrics          MetricHook
}

// RaggedAllToAllThunk executes one compiled ragged all-to-all operation. It
// is constructed once per compiled program and shared, read-mostly, across
// the per-device execution threads.
type RaggedAllToAllThunk struct {
	config  raggedAllToAllConfig
	buffers []Buffer
	staging stagingCache

	logger           Logger
	structuredLogger StructuredLogger
	tracer           Tracer
	metrics          MetricHook
}

// NewRaggedAllToAllThunk derives the immutable descriptor from op and binds
// the operand buffers. Bindings are borrowed, never allocated or freed here.
func NewRaggedAllToAllThunk(op *RaggedAllToAllOp, buffers []Buffer, cfg ThunkConfig) (*RaggedAllToAllThunk, error) {
	config, err := getRaggedAllToAllConfig(op)
	if err != nil {
		return nil, err
	}
	if len(buffers) != len(config.operandElements) {
		return nil, fmt.Errorf("%w: got %d buffer bindings for %d operands", ErrBufferMismatch, len(buffers), len(config.operandElements))
	}
	structured := cfg.StructuredLogger
	if structured == nil {
		if logger, ok := cfg.Logger.(StructuredLogger); ok {
			structured = logger
		}
	}
	return &RaggedAllToAllThunk{
		config:           config,
		buffers:          buffers,
		logger:           cfg.Logger,
		structuredLogger: structured,
		tracer:           cfg.Tracer,
		metrics:          cfg.Metrics,
	}, nil
}

// RowElementCount returns the number of scalar elements in one logical row.
func (t *RaggedAllToAllThunk) RowElementCount() int64 {
	return t.config.rowElementCount
}

// RaggedRowCount returns the length of each dynamic index array.
func (t *RaggedAllToAllThunk) RaggedRowCount() int64 {
	return t.config.raggedRowCount
}

// GroupMode returns the participant-grouping mode derived at construction.
func (t *RaggedAllToAllThunk) GroupMode() GroupMode {
	return t.config.groupMode
}

// Initialize allocates the host staging region for device on first call.
// Repeat calls for the same device are no-ops; concurrent calls for distinct
// devices are safe. A failed allocation blocks that device's executions until
// a later Initialize succeeds.
func (t *RaggedAllToAllThunk) Initialize(device Device) error {
	if t == nil {
		return fmt.Errorf("collective: nil thunk")
	}
	// One region holds all four index arrays; sizes and offsets can be 32- or
	// 64-bit, so every value gets 8 bytes.
	return t.staging.initialize(device, 4*t.config.raggedRowCount*stagingWordSize)
}

// Run executes the exchange once on the stream's device. The device must have
// been initialized; failing that is a caller ordering bug reported as
// ErrDeviceNotInitialized.
func (t *RaggedAllToAllThunk) Run(stream Stream, comm Communicator) error {
	if t == nil {
		return fmt.Errorf("collective: nil thunk")
	}
	if stream == nil {
		return fmt.Errorf("collective: run requires a stream")
	}
	device := stream.Device()

	deviceBuffers, err := convertToDeviceBuffers(t.buffers, t.config.operandElements)
	if err != nil {
		return err
	}
	hostBuffer, err := t.staging.region(device)
	if err != nil {
		return err
	}

	span := t.startExchangeSpan(device)
	hooks := &runHooks{thunk: t, span: span, device: device}
	t.logExchangeEvent("exchange_started", logKV(labelDevice, device.Ordinal()))
	t.metricExchangeStarted(device)

	err = runRaggedAllToAll(comm, t.config.rowElementCount, deviceBuffers, stream, hostBuffer, hooks)
	if err != nil {
		stage := hooks.currentStage()
		t.logExchangeEvent("exchange_failed",
			logKV(labelDevice, device.Ordinal()),
			logKV(labelStage, stage),
			logKV("error", err),
		)
		t.metricExchangeFailed(device, stage, err)
		spanRecordError(span, err)
		spanEnd(span, err)
		return err
	}

	t.logExchangeEvent("exchange_completed", logKV(labelDevice, device.Ordinal()))
	t.metricExchangeCompleted(device)
	spanEnd(span, nil)
	return nil
}

// runHooks forwards orchestrator progress to the thunk's observability hooks.
// All methods are nil-safe so the hooks-free entry point can pass nil.
type runHooks struct {
	thunk  *RaggedAllToAllThunk
	span   Span
	device Device
	stage  atomic.Pointer[string]
}

func (h *runHooks) setStage(stage string) {
	if h == nil {
		return
	}
	h.stage.Store(&stage)
}

func (h *runHooks) currentStage() string {
	if h == nil {
		return ""
	}
	if stage := h.stage.Load(); stage != nil {
		return *stage
	}
	return ""
}

func (h *runHooks) stagingCompleted() {
	if h == nil || h.thunk == nil {
		return
	}
	spanAddEvent(h.span, "staging_completed", TraceAttribute{Key: labelDevice, Value: h.device.Ordinal()})
	if h.thunk.metrics != nil {
		h.thunk.metrics.StagingCompleted(h.thunk.metricAttrs(h.device))
	}
}

func (h *runHooks) sendPosted(peer int) {
	if h == nil || h.thunk == nil || h.thunk.metrics == nil {
		return
	}
	h.thunk.metrics.SendPosted(h.thunk.metricAttrs(h.device, logKV(labelPeer, peer)))
}

func (h *runHooks) receivePosted(peer int) {
	if h == nil || h.thunk == nil || h.thunk.metrics == nil {
		return
	}
	h.thunk.metrics.ReceivePosted(h.thunk.metricAttrs(h.device, logKV(labelPeer, peer)))
}

func (t *RaggedAllToAllThunk) metricAttrs(device Device, fields ...logField) map[string]string {
	attrs := make(map[string]string, len(fields)+2)
	if device != nil {
		attrs[labelDevice] = strconv.Itoa(device.Ordinal())
	}
	attrs[labelGroupMode] = t.config.groupMode.String()
	for _, field := range fields {
		if field.key == "" {
			continue
		}
		attrs[field.key] = fmt.Sprint(field.value)
	}
	return attrs
}

func (t *RaggedAllToAllThunk) metricExchangeStarted(device Device) {
	if t == nil || t.metrics == nil {
		return
	}
	t.metrics.ExchangeStarted(t.metricAttrs(device))
}

func (t *RaggedAllToAllThunk) metricExchangeCompleted(device Device) {
	if t == nil || t.metrics == nil {
		return
	}
	t.metrics.ExchangeCompleted(t.metricAttrs(device))
}

func (t *RaggedAllToAllThunk) metricExchangeFailed(device Device, stage string, err error) {
	if t == nil || t.metrics == nil {
		return
	}
	t.metrics.ExchangeFailed(stage, err, t.metricAttrs(device, logKV(labelStage, stage)))
}

func (t *RaggedAllToAllThunk) logExchangeEvent(event string, fields ...logField) {
	if t == nil {
		return
	}
	if t.structuredLogger != nil {
		kv := make([]any, 0, len(fields)*2+2)
		kv = append(kv, "event", event)
		for _, field := range fields {
			if field.key == "" {
				continue
			}
			kv = append(kv, field.key, field.value)
		}
		t.structuredLogger.Debugw("ragged all-to-all", kv...)
		return
	}
	if t.logger == nil {
		return
	}
	var b strings.Builder
	b.WriteString(event)
	for _, field := range fields {
		if field.key == "" {
			continue
		}
		b.WriteString(" ")
		b.WriteString(field.key)
		b.WriteString("=")
		b.WriteString(fmt.Sprint(field.value))
	}
	t.logger.Debugf("ragged all-to-all %s", b.String())
}

func (t *RaggedAllToAllThunk) startExchangeSpan(device Device) Span {
	if t == nil || t.tracer == nil {
		return nil
	}
	attrs := []TraceAttribute{
		{Key: "component", Value: "ragged-all-to-all"},
		{Key: labelGroupMode, Value: t.config.groupMode.String()},
	}
	if device != nil {
		attrs = append(attrs, TraceAttribute{Key: labelDevice, Value: device.Ordinal()})
	}
	return t.tracer.StartSpan("collectives-ragged-all-to-all", attrs...)
}

func spanAddEvent(span Span, name string, attrs ...TraceAttribute) {
	if span == nil {
		return
	}
	span.AddEvent(name, attrs...)
}

func spanRecordError(span Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
}

func spanEnd(span Span, err error) {
	if span == nil {
		return
	}
	span.End(err)
}
