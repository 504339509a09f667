// Package persist implements servo.PersistentConfig: it serializes a
// Motor/ServoConfig/PositionConfig triple into the protocol package's
// length-prefixed, CRC16-checked framing and writes it through a
// pluggable Backend, so the same encoding works for an in-memory test
// double and a real file on disk.
package persist

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"bldcservo/protocol"
	"bldcservo/servo"
)

// growableOutput is a protocol.OutputBuffer backed by a growable
// slice. protocol.ScratchOutput's array is fixed at MessageMax
// bytes; a motor's offset table alone can exceed that, so persist
// writes through this instead.
type growableOutput struct {
	buf []byte
}

func (g *growableOutput) Output(data []byte) {
	g.buf = append(g.buf, data...)
}

func (g *growableOutput) CurPosition() int {
	return len(g.buf)
}

func (g *growableOutput) Update(pos int, val byte) {
	if pos < len(g.buf) {
		g.buf[pos] = val
	}
}

func (g *growableOutput) DataSince(pos int) []byte {
	if pos > len(g.buf) {
		return nil
	}
	return g.buf[pos:]
}

// Backend is where the encoded config blob lives. MemoryStore backs
// tests; FileStore backs the simulator binary.
type Backend interface {
	Read() ([]byte, error)
	Write([]byte) error
}

// Store is the servo.PersistentConfig implementation built on a
// Backend.
type Store struct {
	backend Backend
}

// New returns a Store writing through backend.
func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// ErrNoData is returned by Load when the backend has never been
// written to; callers should fall back to compiled-in defaults.
var ErrNoData = errors.New("persist: no configuration stored")

// Load decodes the most recently Saved configuration.
func (s *Store) Load() (servo.Motor, servo.ServoConfig, servo.PositionConfig, error) {
	var motor servo.Motor
	var cfg servo.ServoConfig
	var posCfg servo.PositionConfig

	raw, err := s.backend.Read()
	if err != nil {
		return motor, cfg, posCfg, errors.Wrap(err, "persist: read backend")
	}
	if len(raw) == 0 {
		return motor, cfg, posCfg, ErrNoData
	}

	block, err := decodeBlock(raw)
	if err != nil {
		return motor, cfg, posCfg, errors.Wrap(err, "persist: decode block")
	}

	data := block.Data
	if err := decodeMotor(&data, &motor); err != nil {
		return motor, cfg, posCfg, errors.Wrap(err, "persist: decode motor")
	}
	if err := decodeServoConfig(&data, &cfg); err != nil {
		return motor, cfg, posCfg, errors.Wrap(err, "persist: decode servo config")
	}
	if err := decodePositionConfig(&data, &posCfg); err != nil {
		return motor, cfg, posCfg, errors.Wrap(err, "persist: decode position config")
	}
	return motor, cfg, posCfg, nil
}

// Save encodes and writes a configuration triple.
func (s *Store) Save(motor servo.Motor, cfg servo.ServoConfig, posCfg servo.PositionConfig) error {
	out := &growableOutput{}
	encodeMotor(out, &motor)
	encodeServoConfig(out, &cfg)
	encodePositionConfig(out, &posCfg)

	block := encodeBlock(blockKindConfig, out.buf)
	if err := s.backend.Write(block); err != nil {
		return errors.Wrap(err, "persist: write backend")
	}
	return nil
}

const blockKindConfig = 1

// encodeBlock wraps payload in a VLQ-length-prefixed, CRC16-checked
// frame: [kind][vlq payload length][payload...][crc16 LE]. The
// config blob (a motor's offset table alone can run to several
// kilobytes) is larger than protocol.Block's single-byte Length
// field can address, so persist frames its own header with
// protocol's VLQ+CRC16 primitives rather than reusing Block/MessageMax.
func encodeBlock(kind uint8, payload []byte) []byte {
	out := &growableOutput{}
	out.Output([]byte{kind})
	protocol.EncodeVLQBytes(out, payload)
	crc := protocol.CRC16(out.buf)
	return append(out.buf, byte(crc), byte(crc>>8))
}

func decodeBlock(raw []byte) (protocol.Block, error) {
	if len(raw) < 3 {
		return protocol.Block{}, errors.New("persist: frame too short")
	}
	body := raw[:len(raw)-2]
	want := binary.LittleEndian.Uint16(raw[len(raw)-2:])
	if protocol.CRC16(body) != want {
		return protocol.Block{}, errors.New("persist: CRC16 mismatch")
	}

	kind := body[0]
	rest := body[1:]
	payload, err := protocol.DecodeVLQBytes(&rest)
	if err != nil {
		return protocol.Block{}, errors.Wrap(err, "persist: decode payload length")
	}
	return protocol.Block{Kind: kind, Data: payload}, nil
}

func putFloat32(out protocol.OutputBuffer, f float32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], math.Float32bits(f))
	out.Output(buf[:])
}

func getFloat32(data *[]byte) (float32, error) {
	if len(*data) < 4 {
		return 0, protocol.ErrBufferTooSmall
	}
	bits := binary.BigEndian.Uint32((*data)[:4])
	*data = (*data)[4:]
	return math.Float32frombits(bits), nil
}

func encodeMotor(out protocol.OutputBuffer, m *servo.Motor) {
	protocol.EncodeVLQString(out, m.Name)
	protocol.EncodeVLQUint(out, uint32(m.Poles))
	boolByte := byte(0)
	if m.Invert {
		boolByte = 1
	}
	out.Output([]byte{boolByte})
	protocol.EncodeVLQUint(out, uint32(m.OffsetLen))
	for i := 0; i < int(m.OffsetLen); i++ {
		putFloat32(out, m.OffsetTable[i])
	}
	putFloat32(out, m.ResistanceOhm)
	putFloat32(out, m.VPerHz)
	putFloat32(out, m.UnwrappedPositionScale)
	putFloat32(out, m.RotationCurrentCutoffA)
	putFloat32(out, m.RotationCurrentScale)
	putFloat32(out, m.RotationTorqueScale)
	out.Output([]byte{m.HwRevision})
}

func decodeMotor(data *[]byte, m *servo.Motor) error {
	name, err := protocol.DecodeVLQString(data)
	if err != nil {
		return err
	}
	m.Name = name

	poles, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	m.Poles = uint16(poles)

	if len(*data) < 1 {
		return protocol.ErrBufferTooSmall
	}
	m.Invert = (*data)[0] != 0
	*data = (*data)[1:]

	offsetLen, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	m.OffsetLen = uint16(offsetLen)
	for i := 0; i < int(m.OffsetLen); i++ {
		v, err := getFloat32(data)
		if err != nil {
			return err
		}
		m.OffsetTable[i] = v
	}

	fields := []*float32{
		&m.ResistanceOhm, &m.VPerHz, &m.UnwrappedPositionScale,
		&m.RotationCurrentCutoffA, &m.RotationCurrentScale, &m.RotationTorqueScale,
	}
	for _, f := range fields {
		v, err := getFloat32(data)
		if err != nil {
			return err
		}
		*f = v
	}

	if len(*data) < 1 {
		return protocol.ErrBufferTooSmall
	}
	m.HwRevision = (*data)[0]
	*data = (*data)[1:]
	return nil
}

func encodeServoConfig(out protocol.OutputBuffer, c *servo.ServoConfig) {
	floats := []float32{
		c.IGain, c.VScaleV, c.MaxVoltage, c.FaultTemperatureC, c.DerateTemperatureC,
		c.DerateCurrentA, c.MaxCurrentA, c.VelocityThreshold, c.DefaultTimeoutS,
		c.TimeoutMaxTorqueNm, c.PwmMin, c.PwmMinBlend, c.FeedforwardScale,
		c.PositionDerate, c.FluxBrakeMinVoltage, c.FluxBrakeResistanceOhm,
		c.PidDq.Kp, c.PidDq.Ki, c.PidDq.Kd, c.PidDq.KpScale, c.PidDq.KdScale, c.PidDq.IntegralMax,
		c.PidPosition.Kp, c.PidPosition.Ki, c.PidPosition.Kd, c.PidPosition.KpScale,
		c.PidPosition.KdScale, c.PidPosition.IntegralMax,
	}
	for _, f := range floats {
		putFloat32(out, f)
	}
	protocol.EncodeVLQInt(out, int32(c.VelocityFilterLength))
	protocol.EncodeVLQUint(out, c.AdcCurCycles)
	protocol.EncodeVLQUint(out, c.AdcAuxCycles)
	protocol.EncodeVLQInt(out, int32(c.CalibrateCount))
	dom := byte(0)
	if c.PidDq.DerivativeOnMeasurement {
		dom |= 1
	}
	if c.PidPosition.DerivativeOnMeasurement {
		dom |= 2
	}
	out.Output([]byte{dom})
}

func decodeServoConfig(data *[]byte, c *servo.ServoConfig) error {
	fields := []*float32{
		&c.IGain, &c.VScaleV, &c.MaxVoltage, &c.FaultTemperatureC, &c.DerateTemperatureC,
		&c.DerateCurrentA, &c.MaxCurrentA, &c.VelocityThreshold, &c.DefaultTimeoutS,
		&c.TimeoutMaxTorqueNm, &c.PwmMin, &c.PwmMinBlend, &c.FeedforwardScale,
		&c.PositionDerate, &c.FluxBrakeMinVoltage, &c.FluxBrakeResistanceOhm,
		&c.PidDq.Kp, &c.PidDq.Ki, &c.PidDq.Kd, &c.PidDq.KpScale, &c.PidDq.KdScale, &c.PidDq.IntegralMax,
		&c.PidPosition.Kp, &c.PidPosition.Ki, &c.PidPosition.Kd, &c.PidPosition.KpScale,
		&c.PidPosition.KdScale, &c.PidPosition.IntegralMax,
	}
	for _, f := range fields {
		v, err := getFloat32(data)
		if err != nil {
			return err
		}
		*f = v
	}

	velLen, err := protocol.DecodeVLQInt(data)
	if err != nil {
		return err
	}
	c.VelocityFilterLength = int(velLen)

	c.AdcCurCycles, err = protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	c.AdcAuxCycles, err = protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	calCount, err := protocol.DecodeVLQInt(data)
	if err != nil {
		return err
	}
	c.CalibrateCount = int(calCount)

	if len(*data) < 1 {
		return protocol.ErrBufferTooSmall
	}
	dom := (*data)[0]
	*data = (*data)[1:]
	c.PidDq.DerivativeOnMeasurement = dom&1 != 0
	c.PidPosition.DerivativeOnMeasurement = dom&2 != 0
	return nil
}

func encodePositionConfig(out protocol.OutputBuffer, p *servo.PositionConfig) {
	putFloat32(out, p.Min)
	putFloat32(out, p.Max)
}

func decodePositionConfig(data *[]byte, p *servo.PositionConfig) error {
	v, err := getFloat32(data)
	if err != nil {
		return err
	}
	p.Min = v
	v, err = getFloat32(data)
	if err != nil {
		return err
	}
	p.Max = v
	return nil
}
