// Package telemetry implements servo.TelemetryManager: it logs
// Status snapshots and drained diagnostics through zerolog, and
// optionally mirrors each Status as JSON for the bench tool's trace
// view.
package telemetry

import (
	"encoding/json"
	"io"

	"github.com/rs/zerolog"

	"bldcservo/servo"
)

// Logger is the servo.TelemetryManager implementation. StatusEvery
// throttles PublishStatus logging to once every N calls so a 1kHz
// foreground poll doesn't flood stderr; 0 logs every call.
type Logger struct {
	log         zerolog.Logger
	jsonOut     io.Writer
	statusEvery int
	statusCalls int
}

// New returns a Logger writing structured log lines to w.
func New(w io.Writer, statusEvery int) *Logger {
	return &Logger{
		log:         zerolog.New(w).With().Timestamp().Logger(),
		statusEvery: statusEvery,
	}
}

// WithJSON attaches a writer that receives one JSON-encoded Status
// per PublishStatus call, independent of the throttled log line.
func (l *Logger) WithJSON(w io.Writer) *Logger {
	l.jsonOut = w
	return l
}

func (l *Logger) PublishStatus(st servo.Status) {
	if l.jsonOut != nil {
		_ = json.NewEncoder(l.jsonOut).Encode(newStatusView(st))
	}

	l.statusCalls++
	if l.statusEvery > 0 && l.statusCalls%l.statusEvery != 0 {
		return
	}
	l.log.Debug().
		Str("mode", st.Mode.String()).
		Str("fault", st.Fault.String()).
		Float32("position", st.UnwrappedPosition).
		Float32("velocity", st.Velocity).
		Float32("bus_voltage", st.BusVoltage).
		Float32("fet_temp_c", st.FetTempC).
		Msg("status")
}

func (l *Logger) PublishDiag(events []servo.DiagEvent) {
	for _, ev := range events {
		l.log.Info().
			Str("kind", ev.Kind.String()).
			Uint32("tick", ev.Tick).
			Str("mode", ev.Mode.String()).
			Str("fault", ev.Fault.String()).
			Int32("value", ev.Value).
			Msg("diag")
	}
}

// statusView is the JSON-friendly projection of servo.Status used by
// WithJSON; servo.Status itself carries no json tags since it is an
// ISR-context struct, not a wire type.
type statusView struct {
	Mode       string  `json:"mode"`
	Fault      string  `json:"fault"`
	Position   float32 `json:"position"`
	Velocity   float32 `json:"velocity"`
	BusVoltage float32 `json:"bus_voltage"`
	FetTempC   float32 `json:"fet_temp_c"`
	MotorTempC float32 `json:"motor_temp_c"`
	TorqueNm   float32 `json:"torque_nm"`
	TimeoutS   float32 `json:"timeout_s"`
}

func newStatusView(st servo.Status) statusView {
	return statusView{
		Mode:       st.Mode.String(),
		Fault:      st.Fault.String(),
		Position:   st.UnwrappedPosition,
		Velocity:   st.Velocity,
		BusVoltage: st.BusVoltage,
		FetTempC:   st.FetTempC,
		MotorTempC: st.MotorTempC,
		TorqueNm:   st.TorqueNm,
		TimeoutS:   st.TimeoutS,
	}
}
