package pipeline

import "github.com/skyrookie/opentrack/internal/pose"

// Event identifies a point in the per-cycle sequence where external
// observers may inspect or mutate the working pose.
type Event int

const (
	// EventRaw fires on the sample as delivered by the tracker.
	EventRaw Event = iota
	// EventBeforeFilter fires on the centered pose.
	EventBeforeFilter
	// EventBeforeMapping fires before the rotational mapping curves.
	EventBeforeMapping
	// EventFinished fires on the final pose, just before delivery.
	EventFinished
)

// Tracker is the sensing source. Data returns one fresh sample per
// cycle and may block briefly; backends typically run their own receive
// goroutine and hand out the latest sample. Center reports whether the
// tracker implements its own centering, which suppresses the pipeline's
// reference capture.
type Tracker interface {
	Data() pose.Pose
	Center() bool
}

// Filter smooths the centered pose. Center notifies the filter of a
// centering event so it can reset internal state.
type Filter interface {
	Filter(in pose.Pose) pose.Pose
	Center()
}

// Protocol is the sink for the final mapped pose. It is called at least
// once per cycle and once more at shutdown with a neutral pose. Sinks
// report delivery problems through their own logging; a slow or broken
// sink must not stall the cycle.
type Protocol interface {
	Pose(p pose.Pose)
}

// EventHandler dispatches event hooks. The pose is passed by pointer
// and may be mutated by the handler.
type EventHandler interface {
	RunEvents(ev Event, p *pose.Pose)
}

// CycleLogger receives one header registration at startup and one row
// of numeric fields per cycle. Implementations append only; the
// pipeline never reads back.
type CycleLogger interface {
	WriteHeader(cols []string) error
	WriteRow(fields []float64) error
}
