package stream

import (
	"github.com/hpcgpu/blameshift/collab"
	"github.com/hpcgpu/blameshift/evpool"
)

// StreamNode is allocated once per live stream and never freed (spec.md
// §3, "Stream node"). InFlightHead/Tail and NextUnfinished are exported
// because the per-stream event queue (equeue package, C3/C4) is the
// component that walks and mutates them; StreamNode itself only owns the
// identity (Handle, ID, Channel).
type StreamNode struct {
	Handle  collab.StreamHandle
	ID      int
	Channel collab.ChannelHandle

	// In-flight queue: ordered list of (start,end) event pairs not yet
	// retired (spec.md §3 invariant: appears on the unfinished list iff
	// InFlightHead != nil).
	InFlightHead, InFlightTail *evpool.EventRecord

	// NextUnfinished is the intrusive link into the registry's global
	// list of streams with at least one in-flight event.
	NextUnfinished *StreamNode
	onUnfinished   bool
}

// Empty reports whether the stream currently has no in-flight events.
func (s *StreamNode) Empty() bool { return s.InFlightHead == nil }
