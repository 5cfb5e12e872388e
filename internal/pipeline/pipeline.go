// Package pipeline composes the per-cycle pose transform sequence and
// the self-paced driver loop around it. One worker goroutine runs the
// loop; control threads interact only through the lock-free flag
// register and the mutex-guarded output snapshot.
package pipeline

import (
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/skyrookie/opentrack/internal/geom"
	"github.com/skyrookie/opentrack/internal/mapping"
	"github.com/skyrookie/opentrack/internal/pose"
	"github.com/skyrookie/opentrack/internal/reltrans"
)

// FaultKind names the checkpoint where a non-finite value was caught.
type FaultKind int

const (
	FaultNone FaultKind = iota
	// FaultRawNonFinite: the raw sample or the selected axis values.
	FaultRawNonFinite
	// FaultFilterNonFinite: the filter output.
	FaultFilterNonFinite
	// FaultMappedNonFinite: the fully mapped pose.
	FaultMappedNonFinite
)

func (k FaultKind) String() string {
	switch k {
	case FaultNone:
		return "none"
	case FaultRawNonFinite:
		return "raw"
	case FaultFilterNonFinite:
		return "filter"
	case FaultMappedNonFinite:
		return "mapped"
	default:
		return fmt.Sprintf("FaultKind(%d)", int(k))
	}
}

// Settings is the pipeline configuration surface, read-only per cycle.
type Settings struct {
	CenterAtStartup bool

	RelMode reltrans.Mode
	// RelDisabled excludes axes from the relative-translation stage:
	// TX..TZ suppress compensated output axes, Yaw..Roll exclude
	// rotation sources from the compensation rotation. This mask is
	// independent of the per-axis source selection.
	RelDisabled pose.DisabledMask

	NeckEnabled bool
	// NeckLength is the head pivot distance in centimetres.
	NeckLength float64
}

// Config carries the collaborators for New. Tracker and Protocol are
// required; Filter, Events and Logger may be nil. Mappings defaults to
// identity curves.
type Config struct {
	Settings Settings
	Mappings *mapping.Mappings
	Tracker  Tracker
	Filter   Filter
	Protocol Protocol
	Events   EventHandler
	Logger   CycleLogger

	// Clock and Sleep override time sources for tests.
	Clock func() time.Time
	Sleep func(time.Duration)
}

// Pipeline owns all per-cycle state. Apart from Flags accessors and
// RawAndMappedPose, its methods must only be called from the goroutine
// running Run.
type Pipeline struct {
	settings Settings
	maps     *mapping.Mappings
	tracker  Tracker
	filter   Filter
	protocol Protocol
	events   EventHandler
	logger   CycleLogger

	rel    *reltrans.Compensator
	flags  *Flags
	stages []stage

	trackingStarted bool
	canonicalRot    *mat.Dense
	invRotCenter    *mat.Dense
	tCenter         geom.Euler3

	mu      sync.Mutex
	rawPose pose.Pose
	outPose pose.Pose

	backlog time.Duration
	warned  map[FaultKind]bool
	now     func() time.Time
	sleep   func(time.Duration)
}

// stage is one named step of the per-cycle transform sequence. The
// order of the stages slice is a behavioural contract: in particular
// rotation inverts run during centering, before the
// relative-translation stage, while translation inverts run after it.
type stage struct {
	name string
	fn   func(*cycleState)
}

// cycleState is the working set of one cycle.
type cycleState struct {
	sample    pose.Pose // tracker output after the raw event hook
	raw       pose.Pose
	value     pose.Pose
	corrected pose.Pose
	filtered  pose.Pose
	disabled  pose.DisabledMask

	centerOrdered  bool
	ownCenterLogic bool
	fault          FaultKind
}

// New builds a Pipeline. The compensator starts not interpolating and
// the centering reference at identity.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("pipeline: tracker is required")
	}
	if cfg.Protocol == nil {
		return nil, fmt.Errorf("pipeline: protocol is required")
	}

	maps := cfg.Mappings
	if maps == nil {
		maps = mapping.NewIdentityMappings()
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	p := &Pipeline{
		settings:     cfg.Settings,
		maps:         maps,
		tracker:      cfg.Tracker,
		filter:       cfg.Filter,
		protocol:     cfg.Protocol,
		events:       cfg.Events,
		logger:       cfg.Logger,
		rel:          reltrans.NewWithClock(now),
		flags:        NewFlags(),
		canonicalRot: geom.Identity(),
		invRotCenter: geom.Identity(),
		warned:       make(map[FaultKind]bool),
		now:          now,
		sleep:        sleep,
	}

	p.stages = []stage{
		{"select-axes", p.stageSelectAxes},
		{"clamp", p.stageClamp},
		{"center", p.stageCenter},
		{"filter", p.stageFilter},
		{"map-rotation", p.stageMapRotation},
		{"reltrans", p.stageReltrans},
		{"invert-translation", p.stageInvertTranslation},
		{"map-translation", p.stageMapTranslation},
	}
	return p, nil
}

// StageNames returns the per-cycle transform sequence in execution
// order. Tests pin this list: reordering stages silently changes
// behaviour.
func (p *Pipeline) StageNames() []string {
	names := make([]string, len(p.stages))
	for i, st := range p.stages {
		names[i] = st.name
	}
	return names
}

// Flag accessors for control threads.

// SetCenter requests a one-shot center on the next cycle.
func (p *Pipeline) SetCenter() { p.flags.Set(FlagCenter, true) }

// SetHeldCenter enables or disables continuous re-centering.
func (p *Pipeline) SetHeldCenter(v bool) { p.flags.Set(FlagHeldCenter, v) }

// SetEnabled sets the hard enable flag.
func (p *Pipeline) SetEnabled(v bool) { p.flags.Set(FlagEnabledHard, v) }

// ToggleEnabled toggles the soft enable flag.
func (p *Pipeline) ToggleEnabled() { p.flags.Negate(FlagEnabledSoft) }

// SetZero forces the output pose to zero while set.
func (p *Pipeline) SetZero(v bool) { p.flags.Set(FlagZero, v) }

// ToggleZero toggles the zero-output flag.
func (p *Pipeline) ToggleZero() { p.flags.Negate(FlagZero) }

// RawAndMappedPose copies out the last published (raw, mapped) pair as
// an atomic unit. Safe from any goroutine.
func (p *Pipeline) RawAndMappedPose() (raw, mapped pose.Pose) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rawPose, p.outPose
}

// runCycle executes one full cycle: the stage sequence, fault/hold
// recovery, zeroing, delivery, snapshot publication and the log record.
func (p *Pipeline) runCycle(dt time.Duration) {
	// Centering gates are sampled before the tracker is read. A
	// synthetic startup center raised mid-cycle still takes effect in
	// the reference capture below, but the filter-suppression and
	// compensator-reset paths see it on the next cycle only.
	centerOrdered := p.flags.Get(FlagCenter|FlagHeldCenter) && p.trackingStarted
	ownCenterLogic := centerOrdered && p.tracker.Center()
	holdOrdered := p.flags.Get(FlagEnabledSoft) != p.flags.Get(FlagEnabledHard)

	sample := p.tracker.Data()
	p.runEvents(EventRaw, &sample)

	cs := &cycleState{
		sample:         sample,
		centerOrdered:  centerOrdered,
		ownCenterLogic: ownCenterLogic,
	}

	for _, st := range p.stages {
		st.fn(cs)
		if cs.fault != FaultNone {
			break
		}
	}

	value, raw := cs.value, cs.raw
	if cs.fault != FaultNone || holdOrdered {
		// Recovery: republish the previous cycle's last-known-good
		// pair so consumers never observe a bad value. Disabled output
		// takes the same path as a synthetic fault.
		p.mu.Lock()
		value = p.outPose
		raw = p.rawPose
		p.mu.Unlock()

		// Refresh the display-only curve values from the frozen raw
		// pose so UI widgets stay coherent with what is delivered.
		for i := range p.maps {
			p.maps[i].Value(raw[i])
		}
	}

	p.flags.Set(FlagCenter, false)

	if p.flags.Get(FlagZero) {
		value = pose.Pose{}
	}
	for i := range value {
		sign := 1.0
		if p.maps[i].Opts.Invert {
			sign = -1
		}
		value[i] += p.maps[i].Opts.ZeroOffset * sign
	}

	p.runEvents(EventFinished, &value)
	p.protocol.Pose(value)

	p.mu.Lock()
	p.outPose = value
	p.rawPose = raw
	p.mu.Unlock()

	p.logCycle(dt, cs, value)
}

func (p *Pipeline) stageSelectAxes(cs *cycleState) {
	cs.raw = cs.sample
	for i := 0; i < pose.NumAxes; i++ {
		k := p.maps[i].Opts.Source
		cs.disabled[i] = k == pose.SourceDisabled
		if k < 0 || k >= pose.NumAxes {
			cs.value[i] = 0
		} else {
			cs.value[i] = cs.sample[k]
		}
	}
	if !cs.raw.IsFinite() || !cs.value.IsFinite() {
		cs.fault = FaultRawNonFinite
		p.reportFault(cs.fault)
	}
}

func (p *Pipeline) stageClamp(cs *cycleState) {
	cs.value = pose.ClampRotations(cs.value)
}

func (p *Pipeline) stageCenter(cs *cycleState) {
	p.maybeEnableCenterOnStart(cs)
	p.storeTrackerPose(cs.value)
	p.maybeSetCenterPose(cs)
	cs.value = p.applyCenter(cs.value)
	cs.corrected = cs.value
}

func (p *Pipeline) stageFilter(cs *cycleState) {
	p.runEvents(EventBeforeFilter, &cs.value)

	// The filter always receives fresh input, even on centering
	// cycles, so its internal state cannot drift from the signal.
	tmp := cs.value
	if p.filter != nil {
		tmp = p.filter.Filter(cs.value)
	}
	if !tmp.IsFinite() {
		cs.fault = FaultFilterNonFinite
		p.reportFault(cs.fault)
		return
	}
	if !cs.centerOrdered {
		cs.value = tmp
	}
	cs.filtered = cs.value
}

func (p *Pipeline) stageMapRotation(cs *cycleState) {
	p.runEvents(EventBeforeMapping, &cs.value)
	// Rotation axes only; translations map after the
	// relative-translation stage.
	for i := pose.Yaw; i <= pose.Roll; i++ {
		cs.value[i] = p.maps[i].Value(cs.value[i])
	}
}

func (p *Pipeline) stageReltrans(cs *cycleState) {
	if cs.centerOrdered {
		p.rel.OnCenter()
	}
	cs.value = p.rel.Apply(p.settings.RelMode, cs.value, p.settings.RelDisabled,
		p.settings.NeckEnabled, p.settings.NeckLength)

	// Compensation can move axes the source selection disabled; force
	// them back to zero.
	for i := range cs.value {
		if cs.disabled[i] {
			cs.value[i] = 0
		}
	}
}

func (p *Pipeline) stageInvertTranslation(cs *cycleState) {
	for i := pose.TX; i <= pose.TZ; i++ {
		if p.maps[i].Opts.Invert {
			cs.value[i] = -cs.value[i]
		}
	}
}

func (p *Pipeline) stageMapTranslation(cs *cycleState) {
	for i := pose.TX; i <= pose.TZ; i++ {
		cs.value[i] = p.maps[i].Value(cs.value[i])
	}
	if !cs.value.IsFinite() {
		cs.fault = FaultMappedNonFinite
		p.reportFault(cs.fault)
	}
}

// maybeEnableCenterOnStart raises a synthetic center request on the
// first cycle carrying nonzero motion, if configured.
func (p *Pipeline) maybeEnableCenterOnStart(cs *cycleState) {
	if p.trackingStarted {
		return
	}
	for i := 0; i < pose.NumAxes; i++ {
		if cs.sample[i] != 0 {
			p.trackingStarted = true
			break
		}
	}
	if p.trackingStarted && p.settings.CenterAtStartup {
		p.flags.Set(FlagCenter, true)
	}
}

// storeTrackerPose records the canonical rotation for centering-delta
// computation.
func (p *Pipeline) storeTrackerPose(v pose.Pose) {
	p.canonicalRot = geom.EulerToRotation(geom.Euler3{
		v[pose.Yaw] * geom.Deg2Rad,
		v[pose.Pitch] * geom.Deg2Rad,
		v[pose.Roll] * geom.Deg2Rad,
	})
}

// maybeSetCenterPose overwrites the centering reference when a center
// is requested. The flag register is consulted directly so a synthetic
// startup request raised earlier this cycle is honoured immediately.
func (p *Pipeline) maybeSetCenterPose(cs *cycleState) {
	if !p.flags.Get(FlagCenter | FlagHeldCenter) {
		return
	}
	if p.filter != nil {
		p.filter.Center()
	}
	if cs.ownCenterLogic {
		p.invRotCenter = geom.Identity()
		p.tCenter = geom.Euler3{}
	} else {
		p.invRotCenter = geom.Transpose(p.canonicalRot)
		p.tCenter = geom.Euler3{cs.value[pose.TX], cs.value[pose.TY], cs.value[pose.TZ]}
	}
}

// applyCenter subtracts the centering reference: translation offset,
// then the rotation delta against the inverse captured at center time.
// The translation is carried through the delta rotation so moving while
// turned stays consistent with the centered frame.
func (p *Pipeline) applyCenter(v pose.Pose) pose.Pose {
	t := geom.Sub(geom.Euler3{v[pose.TX], v[pose.TY], v[pose.TZ]}, p.tCenter)
	r := geom.RotationToEuler(geom.Multiply(p.canonicalRot, p.invRotCenter))

	t = p.rel.Rotate(geom.EulerToRotation(r), t, [3]bool{})

	// Rotation inverts happen here, before the relative-translation
	// stage; its zone test needs the inverted angles. Translation
	// inverts wait until after that stage.
	for i := 0; i < 3; i++ {
		if p.maps[i+pose.Yaw].Opts.Invert {
			r[i] = -r[i]
		}
	}

	for i := 0; i < 3; i++ {
		v[i] = t[i]
		v[i+pose.Yaw] = r[i] * geom.Rad2Deg
	}
	return v
}

// reportFault logs one diagnostic per checkpoint for the lifetime of
// the pipeline, so a persistently broken source cannot flood the log.
func (p *Pipeline) reportFault(kind FaultKind) {
	if p.warned[kind] {
		return
	}
	p.warned[kind] = true
	Diagf("non-finite value at checkpoint %q; republishing last good pose", kind)
}

func (p *Pipeline) runEvents(ev Event, v *pose.Pose) {
	if p.events != nil {
		p.events.RunEvents(ev, v)
	}
}

// headerColumns lists the cycle log schema: dt plus the four pose
// snapshots taken through the cycle.
func headerColumns() []string {
	cols := make([]string, 0, 1+4*pose.NumAxes)
	cols = append(cols, "dt")
	for _, group := range []string{"raw", "corrected", "filtered", "mapped"} {
		for _, axis := range pose.AxisNames {
			cols = append(cols, group+axis)
		}
	}
	return cols
}

func (p *Pipeline) logCycle(dt time.Duration, cs *cycleState, mapped pose.Pose) {
	if p.logger == nil {
		return
	}
	fields := make([]float64, 0, 1+4*pose.NumAxes)
	fields = append(fields, dt.Seconds())
	for _, snap := range []pose.Pose{cs.raw, cs.corrected, cs.filtered, mapped} {
		fields = append(fields, snap[:]...)
	}
	if err := p.logger.WriteRow(fields); err != nil {
		Diagf("cycle log write failed: %v", err)
	}
}
