package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
	"unicode/utf8"

	"github.com/san-kum/regime/internal/eos"
	"github.com/san-kum/regime/internal/grid"
	"github.com/san-kum/regime/internal/offload"
)

type Kind byte

const (
	KindRequest  Kind = 1
	KindResponse Kind = 2
	KindFailure  Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindFailure:
		return "failure"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

const (
	RequestSize        = 80
	responseHeaderSize = 24
	maxMessage         = math.MaxUint16
)

var (
	ErrShortFrame   = errors.New("wire: short frame")
	ErrBadKind      = errors.New("wire: unexpected frame kind")
	ErrSizeMismatch = errors.New("wire: size mismatch")
)

var order = binary.LittleEndian

type requestWire struct {
	LogTMin, LogTMax     float64
	LogRhoMin, LogRhoMax float64
	Columns, Rows        uint32
	X, Y, Z              float64
	Eta                  float64
	Seq                  uint64
}

type responseWire struct {
	Columns, Rows uint32
	ElapsedMs     float64
	Seq           uint64
}

// Frame is one decoded message. Exactly one payload field is set.
type Frame struct {
	Kind     Kind
	Request  *grid.Spec
	Response *offload.Response
	Failure  *offload.Failure
}

// EncodeRequest returns the kind byte followed by the request payload.
func EncodeRequest(spec grid.Spec) []byte {
	var buf bytes.Buffer
	buf.Grow(1 + RequestSize)
	_ = WriteRequest(&buf, spec)
	return buf.Bytes()
}

// DecodeRequest parses a complete request frame.
func DecodeRequest(b []byte) (grid.Spec, error) {
	if len(b) < 1+RequestSize {
		return grid.Spec{}, fmt.Errorf("%w: request has %d bytes, want %d", ErrShortFrame, len(b), 1+RequestSize)
	}
	if len(b) > 1+RequestSize {
		return grid.Spec{}, fmt.Errorf("%w: request has %d bytes, want %d", ErrSizeMismatch, len(b), 1+RequestSize)
	}
	// nothing but a request payload is parsed out of a request-sized body
	if Kind(b[0]) != KindRequest {
		return grid.Spec{}, fmt.Errorf("%w: %s", ErrBadKind, Kind(b[0]))
	}
	spec, err := readRequest(bytes.NewReader(b[1:]))
	if err != nil {
		return grid.Spec{}, err
	}
	return *spec, nil
}

func WriteRequest(w io.Writer, spec grid.Spec) error {
	msg := requestWire{
		LogTMin:   spec.LogTMin,
		LogTMax:   spec.LogTMax,
		LogRhoMin: spec.LogRhoMin,
		LogRhoMax: spec.LogRhoMax,
		Columns:   spec.Columns,
		Rows:      spec.Rows,
		X:         spec.Composition.X,
		Y:         spec.Composition.Y,
		Z:         spec.Composition.Z,
		Eta:       spec.Eta,
		Seq:       spec.Seq,
	}
	if _, err := w.Write([]byte{byte(KindRequest)}); err != nil {
		return err
	}
	return binary.Write(w, order, &msg)
}

// WriteResponse writes resp without copying or releasing its raster.
func WriteResponse(w io.Writer, resp *offload.Response) error {
	want := uint64(resp.Columns) * uint64(resp.Rows)
	if uint64(len(resp.Raster)) != want {
		return fmt.Errorf("%w: raster has %d bytes, header says %d", ErrSizeMismatch, len(resp.Raster), want)
	}

	hdr := responseWire{
		Columns:   resp.Columns,
		Rows:      resp.Rows,
		ElapsedMs: resp.ElapsedMillis(),
		Seq:       resp.Seq,
	}
	if _, err := w.Write([]byte{byte(KindResponse)}); err != nil {
		return err
	}
	if err := binary.Write(w, order, &hdr); err != nil {
		return err
	}
	_, err := w.Write(resp.Raster)
	return err
}

// WriteFailure truncates messages longer than 65535 bytes at a rune
// boundary.
func WriteFailure(w io.Writer, f *offload.Failure) error {
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	if len(msg) > maxMessage {
		n := maxMessage
		for n > 0 && !utf8.RuneStart(msg[n]) {
			n--
		}
		msg = msg[:n]
	}

	buf := make([]byte, 1+8+2+len(msg))
	buf[0] = byte(KindFailure)
	order.PutUint64(buf[1:], f.Seq)
	order.PutUint16(buf[9:], uint16(len(msg)))
	copy(buf[11:], msg)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one frame. It returns io.EOF only when r is exhausted
// before the kind byte; a frame cut short anywhere else is ErrShortFrame.
func ReadFrame(r io.Reader) (Frame, error) {
	return ReadFrameLimit(r, grid.DefaultMaxCells)
}

// ReadFrameLimit refuses response rasters above maxCells before allocating
// them. Zero selects grid.DefaultMaxCells.
func ReadFrameLimit(r io.Reader, maxCells uint64) (Frame, error) {
	var kind [1]byte
	if _, err := io.ReadFull(r, kind[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		return Frame{}, err
	}

	f := Frame{Kind: Kind(kind[0])}
	var err error
	switch f.Kind {
	case KindRequest:
		f.Request, err = readRequest(r)
	case KindResponse:
		f.Response, err = readResponse(r, maxCells)
	case KindFailure:
		f.Failure, err = readFailure(r)
	default:
		return Frame{}, fmt.Errorf("%w: %s", ErrBadKind, f.Kind)
	}
	if err != nil {
		return Frame{}, err
	}
	return f, nil
}

// ReadResponse reads a frame that must be a response or a failure. A
// failure frame is returned as the error.
func ReadResponse(r io.Reader) (*offload.Response, error) {
	f, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	switch f.Kind {
	case KindResponse:
		return f.Response, nil
	case KindFailure:
		return nil, f.Failure
	default:
		return nil, fmt.Errorf("%w: %s", ErrBadKind, f.Kind)
	}
}

func ReadFailure(r io.Reader) (*offload.Failure, error) {
	f, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	if f.Kind != KindFailure {
		return nil, fmt.Errorf("%w: %s", ErrBadKind, f.Kind)
	}
	return f.Failure, nil
}

func readRequest(r io.Reader) (*grid.Spec, error) {
	var msg requestWire
	if err := binary.Read(r, order, &msg); err != nil {
		return nil, short(err)
	}
	return &grid.Spec{
		Params: grid.Params{
			LogTMin:     msg.LogTMin,
			LogTMax:     msg.LogTMax,
			LogRhoMin:   msg.LogRhoMin,
			LogRhoMax:   msg.LogRhoMax,
			Columns:     msg.Columns,
			Rows:        msg.Rows,
			Composition: eos.Composition{X: msg.X, Y: msg.Y, Z: msg.Z},
			Eta:         msg.Eta,
		},
		Seq: msg.Seq,
	}, nil
}

func readResponse(r io.Reader, maxCells uint64) (*offload.Response, error) {
	var hdr responseWire
	if err := binary.Read(r, order, &hdr); err != nil {
		return nil, short(err)
	}
	if maxCells == 0 {
		maxCells = grid.DefaultMaxCells
	}
	n := uint64(hdr.Columns) * uint64(hdr.Rows)
	if n > maxCells {
		return nil, fmt.Errorf("%w: %dx%d raster exceeds %d cells", ErrSizeMismatch, hdr.Columns, hdr.Rows, maxCells)
	}

	raster := make([]byte, n)
	if _, err := io.ReadFull(r, raster); err != nil {
		return nil, short(err)
	}
	elapsed := time.Duration(hdr.ElapsedMs * float64(time.Millisecond))
	return offload.NewResponse(raster, hdr.Columns, hdr.Rows, elapsed, hdr.Seq, nil), nil
}

func readFailure(r io.Reader) (*offload.Failure, error) {
	var hdr [10]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, short(err)
	}
	msg := make([]byte, order.Uint16(hdr[8:]))
	if _, err := io.ReadFull(r, msg); err != nil {
		return nil, short(err)
	}
	return &offload.Failure{Seq: order.Uint64(hdr[:8]), Err: errors.New(string(msg))}, nil
}

func short(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrShortFrame, err)
	}
	return err
}
