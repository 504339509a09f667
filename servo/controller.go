package servo

// PersistentConfig is the collaborator Controller asks to load and
// save Motor/ServoConfig/PositionConfig across power cycles. The
// reference implementation (internal/persist) frames the blob with
// the same VLQ+CRC16 primitives the protocol package already
// provides for the bench link.
type PersistentConfig interface {
	Load() (Motor, ServoConfig, PositionConfig, error)
	Save(Motor, ServoConfig, PositionConfig) error
}

// TelemetryManager is the collaborator Controller hands each
// millisecond's Status snapshot and drained diagnostics to. The
// reference implementation (internal/telemetry) logs through zerolog
// and optionally serializes snapshots as JSON for a bench tool.
type TelemetryManager interface {
	PublishStatus(Status)
	PublishDiag([]DiagEvent)
}

// MillisecondTimer is the collaborator that calls PollMillisecond on a
// steady cadence. The reference implementation (internal/fgtimer) is
// a plain time.Ticker wrapper; it has no TinyGo hardware-timer
// variant.
type MillisecondTimer interface {
	Start(tick func())
	Stop()
}

// Controller is the top-level object a target or simulator binary
// constructs: one per motor. It owns the ISR-rate pipeline (tick),
// the millisecond-rate foreground bookkeeping (Supervisor), and the
// public surface a host process drives (Command, UpdateConfig,
// PollMillisecond).
type Controller struct {
	motor  *Motor
	cfg    *ServoConfig
	posCfg PositionConfig

	regs   ClockedRegisters
	sensor PositionSensor

	persist   PersistentConfig
	telemetry TelemetryManager

	status   Status
	mode     Mode
	encoder  *EncoderUnwrapper
	velocity VelocityEstimator
	frontend *SensorFrontEnd
	laws     *ControlLaws
	safety   *SafetyGate
	cmdCh    *CommandChannel

	offsetA, offsetB, offsetC             uint16
	offsetSumA, offsetSumB, offsetSumC     uint32
	currentDerate                         float32
	lastControl                           Control

	sup *supervisor
}

// NewController wires a Controller from its hardware and motor
// collaborators. cfg and motor are retained by pointer: UpdateConfig
// mutates *cfg in place so every dependent (ControlLaws, SafetyGate)
// observes the change on its next read without re-wiring.
func NewController(motor *Motor, cfg *ServoConfig, posCfg PositionConfig, regs ClockedRegisters, sensor PositionSensor, currentScale, voltageScale float32) *Controller {
	c := &Controller{
		motor:         motor,
		cfg:           cfg,
		posCfg:        posCfg,
		regs:          regs,
		sensor:        sensor,
		mode:          Stopped,
		encoder:       NewEncoderUnwrapper(motor),
		frontend:      NewSensorFrontEnd(motor, currentScale, voltageScale),
		safety:        NewSafetyGate(cfg),
		cmdCh:         NewCommandChannel(),
		currentDerate: 1,
	}
	c.status.Mode = Stopped
	c.status.ControlPosition = float32NaN()
	c.laws = NewControlLaws(motor, cfg, &c.posCfg, &c.status)
	c.velocity.SetLength(cfg.VelocityFilterLength)
	c.sup = newSupervisor(c)
	return c
}

// SetCollaborators attaches the optional persistence/telemetry
// collaborators; both are nil-safe if never set.
func (c *Controller) SetCollaborators(persist PersistentConfig, telemetry TelemetryManager) {
	c.persist = persist
	c.telemetry = telemetry
}

// Start loads any persisted configuration and resets to Stopped. It
// is the one-time setup call a target's main performs before handing
// the ISR tick to a timer.
func (c *Controller) Start() error {
	if c.persist != nil {
		motor, cfg, posCfg, err := c.persist.Load()
		if err == nil {
			*c.motor = motor
			*c.cfg = cfg
			c.posCfg = posCfg
			c.laws.RefreshOptions()
			c.velocity.SetLength(cfg.VelocityFilterLength)
		}
	}
	c.mode = Stopped
	c.status = Status{Mode: Stopped, ControlPosition: float32NaN()}
	return nil
}

// Command publishes a new CommandData to the ISR's command channel.
// Safe to call from any foreground goroutine; never blocks on the
// ISR. Two foreground-only adjustments happen before the publish
// (spec §4.6): a velocity-only move (position NaN) toward a finite
// stop_position has its velocity's sign flipped to point at the stop
// if the caller got it backwards, and an explicit timeout_s==0 (the
// channel's "nothing new" sentinel for this field, meaning "leave the
// running countdown alone") is expanded to cfg.DefaultTimeoutS so a
// caller can't accidentally suppress the timeout by omission.
func (c *Controller) Command(cmd CommandData) {
	if isNaN32(cmd.Position) && !isNaN32(cmd.StopPosition) && !isNaN32(cmd.Velocity) && cmd.Velocity != 0 {
		toward := cmd.StopPosition - c.status.UnwrappedPosition
		if (toward < 0 && cmd.Velocity > 0) || (toward > 0 && cmd.Velocity < 0) {
			cmd.Velocity = -cmd.Velocity
		}
	}
	if !isNaN32(cmd.TimeoutS) && cmd.TimeoutS == 0 {
		cmd.TimeoutS = c.cfg.DefaultTimeoutS
	}
	c.cmdCh.Publish(cmd)
}

// Tick runs one ISR-rate pass. dt is the elapsed time since the
// previous Tick in seconds; production callers pass TickPeriod, tests
// and the simulator may pass something else to exercise timeout math
// quickly.
func (c *Controller) Tick(dt float32) {
	SetTicks(Ticks() + 1)
	c.tick(dt)
}

// Status returns a copy of the ISR's current observable state.
func (c *Controller) Status() Status {
	return c.status
}

// Mode returns the controller's current mode.
func (c *Controller) Mode() Mode {
	return c.mode
}

// LastControl returns the most recent tick's committed Control, for
// tests and the bench tool's trace view.
func (c *Controller) LastControl() Control {
	return c.lastControl
}

// UpdateConfig replaces the live ServoConfig/PositionConfig and
// refreshes every dependent (PID options, velocity filter length,
// safety limits) to match, then persists if a PersistentConfig is
// attached.
func (c *Controller) UpdateConfig(cfg ServoConfig, posCfg PositionConfig) error {
	*c.cfg = cfg
	c.posCfg = posCfg
	c.laws.RefreshOptions()
	c.velocity.SetLength(cfg.VelocityFilterLength)
	if c.persist != nil {
		return c.persist.Save(*c.motor, *c.cfg, c.posCfg)
	}
	return nil
}

// PollMillisecond runs the foreground Supervisor pass: draining
// diagnostics to telemetry, publishing a Status snapshot, and
// re-checking anything that only needs millisecond resolution. A
// MillisecondTimer collaborator calls this on a steady cadence.
func (c *Controller) PollMillisecond() {
	c.sup.poll()
}
