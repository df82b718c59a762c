package wire

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/san-kum/regime/internal/eos"
	"github.com/san-kum/regime/internal/grid"
	"github.com/san-kum/regime/internal/offload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioSpec() grid.Spec {
	return grid.Spec{
		Params: grid.Params{
			LogTMin: 3, LogTMax: 7, LogRhoMin: -6, LogRhoMax: 4,
			Columns: 5, Rows: 5,
			Composition: eos.Composition{X: 0.7, Y: 0.28, Z: 0.02},
		},
		Seq: 1,
	}
}

func TestRequestLayout(t *testing.T) {
	b := EncodeRequest(scenarioSpec())
	require.Len(t, b, 1+RequestSize)
	assert.Equal(t, byte(KindRequest), b[0])

	// cols and rows sit right after the four f64 bounds
	assert.Equal(t, uint32(5), order.Uint32(b[1+32:]))
	assert.Equal(t, uint32(5), order.Uint32(b[1+36:]))
	assert.Equal(t, uint64(1), order.Uint64(b[1+72:]))

	got, err := DecodeRequest(b)
	require.NoError(t, err)
	assert.Equal(t, scenarioSpec(), got)
}

func TestDecodeRequestErrors(t *testing.T) {
	b := EncodeRequest(scenarioSpec())

	_, err := DecodeRequest(b[:40])
	assert.ErrorIs(t, err, ErrShortFrame)

	_, err = DecodeRequest(append(b, 0))
	assert.ErrorIs(t, err, ErrSizeMismatch)

	// a response header claiming a huge raster inside a request-sized body
	huge := make([]byte, 1+RequestSize)
	huge[0] = byte(KindResponse)
	order.PutUint32(huge[1:], 4096)
	order.PutUint32(huge[5:], 4096)

	tests := []struct {
		name string
		body []byte
	}{
		{"failure kind", append([]byte{byte(KindFailure)}, b[1:]...)},
		{"response kind", huge},
		{"unknown kind", append([]byte{9}, b[1:]...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRequest(tt.body)
			assert.ErrorIs(t, err, ErrBadKind)
			assert.NotErrorIs(t, err, ErrShortFrame)
		})
	}
}

func TestResponseFrame(t *testing.T) {
	raster := []byte{0, 1, 2, 3, 0, 1}
	resp := offload.NewResponse(raster, 3, 2, 1500*time.Microsecond, 42, nil)

	var buf bytes.Buffer
	require.NoError(t, WriteResponse(&buf, resp))
	assert.Equal(t, 1+responseHeaderSize+len(raster), buf.Len())
	assert.Equal(t, raster, resp.Raster, "writing must not release the raster")

	got, err := ReadResponse(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), got.Columns)
	assert.Equal(t, uint32(2), got.Rows)
	assert.Equal(t, uint64(42), got.Seq)
	assert.Equal(t, raster, got.Raster)
	assert.InDelta(t, 1.5, got.ElapsedMillis(), 1e-9)
}

func TestWriteResponseMismatch(t *testing.T) {
	resp := offload.NewResponse([]byte{0, 1}, 3, 3, 0, 1, nil)
	err := WriteResponse(io.Discard, resp)
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestReadResponseTruncated(t *testing.T) {
	resp := offload.NewResponse(make([]byte, 25), 5, 5, time.Millisecond, 1, nil)
	var buf bytes.Buffer
	require.NoError(t, WriteResponse(&buf, resp))

	full := buf.Bytes()
	for _, n := range []int{2, 1 + responseHeaderSize, len(full) - 1} {
		_, err := ReadResponse(bytes.NewReader(full[:n]))
		assert.ErrorIs(t, err, ErrShortFrame, "cut at %d", n)
	}
}

func TestReadFrameLimit(t *testing.T) {
	resp := offload.NewResponse(make([]byte, 25), 5, 5, 0, 1, nil)
	var buf bytes.Buffer
	require.NoError(t, WriteResponse(&buf, resp))

	_, err := ReadFrameLimit(&buf, 10)
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestFailureFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFailure(&buf, &offload.Failure{Seq: 7, Err: grid.ErrAllocation}))

	f, err := ReadFailure(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), f.Seq)
	assert.Equal(t, grid.ErrAllocation.Error(), f.Err.Error())

	_, err = ReadResponse(bytes.NewReader(buf.Bytes()))
	var failure *offload.Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, uint64(7), failure.Seq)
}

func TestFailureTruncatesLongMessages(t *testing.T) {
	long := errors.New(strings.Repeat("x", maxMessage+10))
	var buf bytes.Buffer
	require.NoError(t, WriteFailure(&buf, &offload.Failure{Seq: 1, Err: long}))

	f, err := ReadFailure(&buf)
	require.NoError(t, err)
	assert.Len(t, f.Err.Error(), maxMessage)
}

func TestFailureTruncatesAtRuneBoundary(t *testing.T) {
	// the two-byte ρ straddles the limit
	long := errors.New(strings.Repeat("a", maxMessage-1) + "ρ")
	var buf bytes.Buffer
	require.NoError(t, WriteFailure(&buf, &offload.Failure{Seq: 2, Err: long}))

	f, err := ReadFailure(&buf)
	require.NoError(t, err)
	msg := f.Err.Error()
	assert.True(t, utf8.ValidString(msg))
	assert.Equal(t, strings.Repeat("a", maxMessage-1), msg)
}

func TestReadFrameStream(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRequest(&buf, scenarioSpec()))
	require.NoError(t, WriteResponse(&buf, offload.NewResponse([]byte{3}, 1, 1, 0, 1, nil)))
	require.NoError(t, WriteFailure(&buf, &offload.Failure{Seq: 2, Err: errors.New("boom")}))

	var kinds []Kind
	for {
		f, err := ReadFrame(&buf)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		kinds = append(kinds, f.Kind)
	}
	assert.Equal(t, []Kind{KindRequest, KindResponse, KindFailure}, kinds)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "request", KindRequest.String())
	assert.Equal(t, "response", KindResponse.String())
	assert.Equal(t, "failure", KindFailure.String())
	assert.Equal(t, "kind(9)", Kind(9).String())
}
