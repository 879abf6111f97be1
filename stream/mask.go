package stream

// Mask identifies which streams a blocking call waited on (spec.md §4.6,
// "parameterized by a bitmask of streams the call waited on (ALL_STREAMS
// or a specific stream's id)"). Real driver sync APIs only ever wait on
// either everything or exactly one stream, so this is a closed two-case
// union rather than an arbitrary bitset.
type Mask struct {
	All      bool
	StreamID int // meaningful only when All is false
}

// AllStreams is the mask a device-wide synchronize (e.g.
// cudaDeviceSynchronize) uses.
var AllStreams = Mask{All: true}

// OnStream builds the mask a single-stream synchronize (e.g.
// cudaStreamSynchronize, cudaEventSynchronize) uses.
func OnStream(id int) Mask { return Mask{StreamID: id} }

// Matches reports whether an event retired on streamID falls within this
// wait (spec.md §4.7 step 1, "the event's stream bit is not in M").
func (m Mask) Matches(streamID int) bool { return m.All || m.StreamID == streamID }
