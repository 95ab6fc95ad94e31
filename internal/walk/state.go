package walk

import (
	"fmt"

	"folio/internal/bundle"
)

// State is a walk controller state.
type State int

const (
	NotStarted State = iota
	ForwardWalk
	ResumeWalk
	ReverseWalk
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case ForwardWalk:
		return "forward"
	case ResumeWalk:
		return "resume"
	case ReverseWalk:
		return "reverse"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions can occur.
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}

// Transition names why the controller changed state.
type Transition string

const (
	TransitionNoBundle      Transition = "no_bundle"
	TransitionResumeAnchor  Transition = "resume_anchor"
	TransitionLegacyBundle  Transition = "legacy_bundle"
	TransitionGapDetected   Transition = "gap_detected"
	TransitionAnchorFound   Transition = "anchor_found"
	TransitionAnchorMissing Transition = "anchor_missing"
	TransitionLatestMissing Transition = "latest_missing"
	TransitionEndOfList     Transition = "end_of_list"
	TransitionReachedLocal  Transition = "reached_local"
	TransitionFailure       Transition = "failure"
)

// Step records one state change.
type Step struct {
	From       State
	To         State
	Transition Transition
}

func (s Step) String() string {
	return fmt.Sprintf("%s -> %s (%s)", s.From, s.To, s.Transition)
}

// Remote is the remote side of the walk inputs.
type Remote struct {
	BookID          uint32
	FirstChapterID  uint32
	LatestChapterID uint32
	ChapterCount    uint32
}

// Plan is the strategy chosen by Select.
type Plan struct {
	Strategy   State
	Transition Transition
}

// Select chooses the initial strategy from the local bundle state.
func Select(local bundle.Info, remote Remote) Plan {
	if !local.Usable() || len(local.Indices) == 0 {
		return Plan{Strategy: ForwardWalk, Transition: TransitionNoBundle}
	}
	if local.Version == bundle.Version2 && local.AnchorRemoteID != 0 {
		if contiguousPrefix(local.Indices) < local.AnchorIndex {
			return Plan{Strategy: ReverseWalk, Transition: TransitionGapDetected}
		}
		return Plan{Strategy: ResumeWalk, Transition: TransitionResumeAnchor}
	}
	return Plan{Strategy: ReverseWalk, Transition: TransitionLegacyBundle}
}

// contiguousPrefix returns the largest k such that 1..k are all present in
// the sorted indices.
func contiguousPrefix(indices []uint32) uint32 {
	var k uint32
	for _, idx := range indices {
		if idx != k+1 {
			break
		}
		k = idx
	}
	return k
}
