package landmarks

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/okian/posture/internal/domain/model"
	"github.com/vmihailenco/msgpack/v5"
)

// maxMessageSize caps a single framed message; a 1080p RGBA frame is ~8MB.
const maxMessageSize = 64 << 20

// Request is sent to the oracle process for every frame.
type Request struct {
	Seq      uint64 `msgpack:"seq"`
	Width    int    `msgpack:"width"`
	Height   int    `msgpack:"height"`
	Encoding string `msgpack:"encoding"`
	Pixels   []byte `msgpack:"pixels"`
}

// WireLandmark is one keypoint in an oracle response.
type WireLandmark struct {
	X          float64 `msgpack:"x"`
	Y          float64 `msgpack:"y"`
	Z          float64 `msgpack:"z"`
	Visibility float64 `msgpack:"visibility"`
}

// Response carries the landmarks in pose index order. An empty Landmarks
// slice means no person was detected.
type Response struct {
	Seq       uint64         `msgpack:"seq"`
	Landmarks []WireLandmark `msgpack:"landmarks"`
	Error     string         `msgpack:"error,omitempty"`
}

// LandmarkSet converts the response, or returns nil when nobody was found.
func (r Response) LandmarkSet() (*model.LandmarkSet, error) {
	if len(r.Landmarks) == 0 {
		return nil, nil
	}
	if len(r.Landmarks) > model.PoseLandmarkCount {
		return nil, fmt.Errorf("%w: %d landmarks", ErrBadResponse, len(r.Landmarks))
	}
	set := &model.LandmarkSet{}
	for i, l := range r.Landmarks {
		set.Set(model.LandmarkName(i), model.Landmark{X: l.X, Y: l.Y, Z: l.Z, Visibility: l.Visibility})
	}
	return set, nil
}

// WriteMessage writes v as msgpack with a 4-byte big-endian length prefix.
func WriteMessage(w io.Writer, v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if len(payload) > maxMessageSize {
		return ErrMessageTooLarge
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

// ReadMessage reads one length-prefixed msgpack message into v.
func ReadMessage(r io.Reader, v any) error {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > maxMessageSize {
		return ErrMessageTooLarge
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("read payload: %w", err)
	}
	if err := msgpack.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	return nil
}
