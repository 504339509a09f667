// simrun drives a servo.Controller against servo/simhw fakes on a
// physical-enough loop to watch closed-loop position control settle
// without any real hardware: a plant model feeds the encoder back
// from the commanded PWM so a position command actually converges.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"bldcservo/internal/persist"
	"bldcservo/internal/telemetry"
	"bldcservo/servo"
	"bldcservo/servo/simhw"
)

var (
	target   = flag.Float64("target", 0.25, "target position to command")
	ticks    = flag.Int("ticks", 200000, "number of ISR ticks to run")
	statFile = flag.String("config", "", "path to a persisted config file (optional)")
)

func main() {
	flag.Parse()

	motor := &servo.Motor{
		Poles:                  14,
		UnwrappedPositionScale: 1.0 / 65536,
		RotationCurrentCutoffA: 5,
		RotationCurrentScale:   0.5,
		RotationTorqueScale:    0.1,
		HwRevision:             5,
	}
	cfg := &servo.ServoConfig{
		MaxVoltage:           48,
		FaultTemperatureC:     100,
		DerateTemperatureC:    85,
		MaxCurrentA:           20,
		VelocityThreshold:     0.001,
		VelocityFilterLength:  32,
		DefaultTimeoutS:       5,
		TimeoutMaxTorqueNm:    0.2,
		PwmMin:                0.01,
		PwmMinBlend:           0.02,
		FeedforwardScale:      1,
		PidDq:                 servo.PidOptions{Kp: 2, Ki: 50, Kd: 0, KpScale: 1, KdScale: 1, IntegralMax: 10},
		PidPosition:           servo.PidOptions{Kp: 20, Ki: 0, Kd: 1, KpScale: 1, KdScale: 1},
		CalibrateCount:        256,
	}
	posCfg := servo.PositionConfig{Min: float32(math.NaN()), Max: float32(math.NaN())}

	pwm := &simhw.FakePWM{}
	gpio := &simhw.FakeGPIO{}
	pl := newPlant()

	regs := servo.ClockedRegisters{PWM: pwm, ADC: plantADC{pl}, GPIO: gpio}
	ctrl := servo.NewController(motor, cfg, posCfg, regs, plantEncoder{pl}, 0.01, 0.02)

	if *statFile != "" {
		store := persist.New(&persist.FileStore{Path: *statFile})
		ctrl.SetCollaborators(store, telemetry.New(os.Stdout, 1000))
	} else {
		ctrl.SetCollaborators(nil, telemetry.New(os.Stdout, 1000))
	}
	if err := ctrl.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "start: %v\n", err)
		os.Exit(1)
	}

	nan := float32(math.NaN())
	ctrl.Command(servo.CommandData{
		Mode: servo.Position, Position: float32(*target), Velocity: nan,
		StopPosition: nan, BoundsMin: nan, BoundsMax: nan, TimeoutS: nan,
		SetPosition: nan, RezeroPosition: nan, MaxTorqueNm: nan,
		KpScale: 1, KdScale: 1,
	})

	dt := float32(servo.TickPeriod)
	msAccum := float32(0)
	for i := 0; i < *ticks; i++ {
		ctrl.Tick(dt)
		pl.advance(ctrl.LastControl(), dt)

		msAccum += dt
		if msAccum >= 0.001 {
			msAccum -= 0.001
			ctrl.PollMillisecond()
		}
	}

	st := ctrl.Status()
	fmt.Printf("final: mode=%s fault=%s position=%.5f velocity=%.5f\n",
		st.Mode, st.Fault, st.UnwrappedPosition, st.Velocity)
}
