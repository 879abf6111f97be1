// Package collab declares the boundary the blame-shift core calls across
// but does not implement: CPU call-path unwinding, CCT storage, metric
// aggregation tables, trace emission, and the GPU driver/runtime itself
// (spec.md §1, "Out of scope"; §6, "Consumed from collaborators"). Every
// core package depends only on these interfaces, never on a concrete
// unwinder or driver, so the core can be linked against HIP, CUDA-alike,
// or a test fake without change.
package collab

// CCTNode is an opaque reference into the collaborator's calling-context
// tree: one (caller, callee, ..., site) chain. The core never inspects it,
// only threads it through event records and metric increments.
type CCTNode uintptr

// NoCCT is the zero value, used where no call path was sampled (e.g. a
// masked-out sync window, spec.md §8 "zero streams selected").
const NoCCT CCTNode = 0

// ChannelHandle identifies a stream's private side-channel CCT/trace
// channel (spec.md §4.5 step 3, "stream_launcher_cct").
type ChannelHandle uintptr

// RegisterContext is the opaque CPU register snapshot the async-signal
// sampler and any blocking-call prologue hands to the unwinder; the core
// never reads its fields.
type RegisterContext struct {
	// PC, SP, FP etc. live entirely on the collaborator's side; this type
	// exists only so call sites have something concrete to pass through.
	Opaque any
}

// MetricID names one registered metric (spec.md §6, "Metrics registered").
type MetricID int

const (
	CPUIdle MetricID = iota
	GPUIdleCause
	CPUIdleCause
	OverlappedCPU
	OverlappedGPU
	GPUActivityTime
	HToDBytes
	DToHBytes
)

func (m MetricID) String() string {
	switch m {
	case CPUIdle:
		return "CPU_IDLE"
	case GPUIdleCause:
		return "GPU_IDLE_CAUSE"
	case CPUIdleCause:
		return "CPU_IDLE_CAUSE"
	case OverlappedCPU:
		return "OVERLAPPED_CPU"
	case OverlappedGPU:
		return "OVERLAPPED_GPU"
	case GPUActivityTime:
		return "GPU_ACTIVITY_TIME"
	case HToDBytes:
		return "H_TO_D_BYTES"
	case DToHBytes:
		return "D_TO_H_BYTES"
	default:
		return "UNKNOWN_METRIC"
	}
}

// MetricValue is the tagged integer-or-real union spec.md's Design Notes
// insist stay distinct: CPU_IDLE/GPU_IDLE_CAUSE are integer microseconds,
// CPU_IDLE_CAUSE/overlap metrics are real (fractional) microseconds.
type MetricValue struct {
	Real    bool
	Int     int64
	Float64 float64
}

func IntValue(v int64) MetricValue    { return MetricValue{Int: v} }
func RealValue(v float64) MetricValue { return MetricValue{Real: true, Float64: v} }

// MetricSink is cct_metric_data_increment(metric_id, node, value) from
// spec.md §6.
type MetricSink interface {
	Increment(id MetricID, node CCTNode, value MetricValue)
}

// CallPathSampler is sample_callpath(context, metric_id, initial_increment,
// skip_inner, is_sync) from spec.md §6.
type CallPathSampler interface {
	SampleCallPath(ctx *RegisterContext, metricID MetricID, initialIncrement MetricValue, skipInner int, isSync bool) CCTNode
}

// StreamDuplicator is stream_duplicate_cpu_node(stream_channel, context,
// node) from spec.md §6: copies a call path into a stream's side-channel
// CCT so kernel attribution survives after the launching CPU frame is gone.
type StreamDuplicator interface {
	DuplicateToStream(ch ChannelHandle, ctx *RegisterContext, node CCTNode) CCTNode
}

// Tracer is trace_append_with_time(channel, device_id, stream_id, node_id,
// time_us) from spec.md §6.
type Tracer interface {
	AppendWithTime(ch ChannelHandle, deviceID int, streamID int, node CCTNode, timeUS int64)
	OpenChannel(deviceID int, streamID int) ChannelHandle
	CloseChannel(ch ChannelHandle)
}

// TraceMarker enumerates the four trace records that describe one
// completed kernel (spec.md §4.3 step 3). equeue's reap writes only the
// kernel start and kernel end records; the two idle markers are not
// emitted.
type TraceMarker int

const (
	MarkIdleBefore TraceMarker = iota
	MarkKernelStart
	MarkKernelEnd
	MarkIdleAfter
)
