// Package link is the bench tool's wire transport: a serial port
// carrying CommandData-in/Status-out frames built on the protocol
// package's VLQ+CRC16 framing primitives.
package link

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/tarm/serial"

	"bldcservo/protocol"
	"bldcservo/servo"
)

// Port is the transport a Link runs over; Open returns one backed by a
// real serial device, and tests can substitute any io.ReadWriteCloser.
type Port interface {
	io.ReadWriteCloser
}

// Config configures the serial device the bench tool talks to.
type Config struct {
	Device      string
	Baud        int
	ReadTimeout int // milliseconds, 0 = blocking
}

// DefaultConfig returns a sensible default for a USB-CDC bench link.
func DefaultConfig(device string) *Config {
	return &Config{Device: device, Baud: 115200, ReadTimeout: 100}
}

// Open opens a native serial port with the given configuration.
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, fmt.Errorf("link: config cannot be nil")
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: time.Duration(cfg.ReadTimeout) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("link: open %s: %w", cfg.Device, err)
	}
	return port, nil
}

const (
	frameKindCommand = 1
	frameKindStatus  = 2
)

// Link frames CommandData/Status values over a Port using the same
// VLQ+CRC16 primitives the protocol package already provides.
type Link struct {
	port Port
}

// New wraps an open Port.
func New(port Port) *Link {
	return &Link{port: port}
}

// Close closes the underlying port.
func (l *Link) Close() error {
	return l.port.Close()
}

// SendCommand frames and writes one CommandData.
func (l *Link) SendCommand(cmd servo.CommandData) error {
	out := &growableOutput{}
	out.Output([]byte{byte(cmd.Mode)})
	for _, f := range []float32{
		cmd.Position, cmd.Velocity, cmd.FeedforwardNm, cmd.KpScale, cmd.KdScale,
		cmd.MaxTorqueNm, cmd.StopPosition, cmd.BoundsMin, cmd.BoundsMax, cmd.TimeoutS,
		cmd.SetPosition, cmd.RezeroPosition,
	} {
		putFloat32(out, f)
	}
	rezero := byte(0)
	if cmd.Rezero {
		rezero = 1
	}
	out.Output([]byte{rezero})
	return l.writeFrame(frameKindCommand, out.buf)
}

// ReadStatus blocks for and decodes the next Status frame.
func (l *Link) ReadStatus() (servo.Status, error) {
	var st servo.Status
	kind, payload, err := l.readFrame()
	if err != nil {
		return st, err
	}
	if kind != frameKindStatus {
		return st, fmt.Errorf("link: expected status frame, got kind %d", kind)
	}

	if len(payload) < 2 {
		return st, fmt.Errorf("link: status frame too short")
	}
	st.Mode = servo.Mode(payload[0])
	st.Fault = servo.FaultCode(payload[1])
	data := payload[2:]

	floats := []*float32{
		&st.UnwrappedPosition, &st.Velocity, &st.BusVoltage, &st.ElectricalTheta,
		&st.FetTempC, &st.MotorTempC, &st.TorqueNm, &st.TimeoutS,
	}
	for _, f := range floats {
		v, err := getFloat32(&data)
		if err != nil {
			return st, fmt.Errorf("link: decode status field: %w", err)
		}
		*f = v
	}
	return st, nil
}

// WriteStatus frames and writes one Status, the counterpart of
// ReadStatus for whichever end of the link reports status.
func (l *Link) WriteStatus(st servo.Status) error {
	out := &growableOutput{}
	out.Output([]byte{byte(st.Mode), byte(st.Fault)})
	for _, f := range []float32{
		st.UnwrappedPosition, st.Velocity, st.BusVoltage, st.ElectricalTheta,
		st.FetTempC, st.MotorTempC, st.TorqueNm, st.TimeoutS,
	} {
		putFloat32(out, f)
	}
	return l.writeFrame(frameKindStatus, out.buf)
}

// ReadCommand blocks for and decodes the next Command frame, mirror
// of SendCommand for the target-side (or simulator-side) receiver.
func (l *Link) ReadCommand() (servo.CommandData, error) {
	cmd := servo.CommandData{}
	kind, payload, err := l.readFrame()
	if err != nil {
		return cmd, err
	}
	if kind != frameKindCommand {
		return cmd, fmt.Errorf("link: expected command frame, got kind %d", kind)
	}
	if len(payload) < 1 {
		return cmd, fmt.Errorf("link: command frame too short")
	}
	cmd.Mode = servo.Mode(payload[0])
	data := payload[1:]

	floats := []*float32{
		&cmd.Position, &cmd.Velocity, &cmd.FeedforwardNm, &cmd.KpScale, &cmd.KdScale,
		&cmd.MaxTorqueNm, &cmd.StopPosition, &cmd.BoundsMin, &cmd.BoundsMax, &cmd.TimeoutS,
		&cmd.SetPosition, &cmd.RezeroPosition,
	}
	for _, f := range floats {
		v, err := getFloat32(&data)
		if err != nil {
			return cmd, fmt.Errorf("link: decode command field: %w", err)
		}
		*f = v
	}
	if len(data) < 1 {
		return cmd, fmt.Errorf("link: command frame missing rezero byte")
	}
	cmd.Rezero = data[0] != 0
	return cmd, nil
}

func (l *Link) writeFrame(kind uint8, payload []byte) error {
	out := &growableOutput{}
	out.Output([]byte{kind})
	protocol.EncodeVLQBytes(out, payload)
	crc := protocol.CRC16(out.buf)
	frame := append(out.buf, byte(crc), byte(crc>>8))
	_, err := l.port.Write(frame)
	return err
}

func (l *Link) readFrame() (uint8, []byte, error) {
	header := make([]byte, 1)
	if _, err := io.ReadFull(l.port, header); err != nil {
		return 0, nil, err
	}
	kind := header[0]

	lengthByte := make([]byte, 1)
	if _, err := io.ReadFull(l.port, lengthByte); err != nil {
		return 0, nil, err
	}
	var length uint32
	buf := lengthByte
	for {
		v := buf[len(buf)-1]
		length = (length << 7) | uint32(v&0x7F)
		if v&0x80 == 0 {
			break
		}
		next := make([]byte, 1)
		if _, err := io.ReadFull(l.port, next); err != nil {
			return 0, nil, err
		}
		buf = append(buf, next[0])
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(l.port, payload); err != nil {
			return 0, nil, err
		}
	}
	crcBytes := make([]byte, 2)
	if _, err := io.ReadFull(l.port, crcBytes); err != nil {
		return 0, nil, err
	}

	body := append(append([]byte{kind}, buf...), payload...)
	want := binary.LittleEndian.Uint16(crcBytes)
	if protocol.CRC16(body) != want {
		return 0, nil, fmt.Errorf("link: CRC16 mismatch")
	}
	return kind, payload, nil
}

type growableOutput struct {
	buf []byte
}

func (g *growableOutput) Output(data []byte)        { g.buf = append(g.buf, data...) }
func (g *growableOutput) CurPosition() int          { return len(g.buf) }
func (g *growableOutput) Update(pos int, val byte)   { g.buf[pos] = val }
func (g *growableOutput) DataSince(pos int) []byte   { return g.buf[pos:] }

func putFloat32(out protocol.OutputBuffer, f float32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], math.Float32bits(f))
	out.Output(b[:])
}

func getFloat32(data *[]byte) (float32, error) {
	if len(*data) < 4 {
		return 0, protocol.ErrBufferTooSmall
	}
	bits := binary.BigEndian.Uint32((*data)[:4])
	*data = (*data)[4:]
	return math.Float32frombits(bits), nil
}
