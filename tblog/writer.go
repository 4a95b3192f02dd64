// Package tblog writes TensorBoard event files: scalar, histogram, image
// and text summaries in the TFRecord framing TensorBoard consumes. Records
// are encoded directly with protobuf wire primitives, so no generated
// TensorFlow code is required.
package tblog

import (
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Writer appends event records to a single tfevents file.
type Writer struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// NewWriter creates the log directory if needed and opens a new event file
// named the way TensorBoard expects: events.out.tfevents.<time>.<host>.
// The mandatory file-version event is written immediately.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	name := fmt.Sprintf("events.out.tfevents.%d.%s", time.Now().Unix(), host)
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create event file: %w", err)
	}

	w := &Writer{f: f, path: path}
	if err := w.writeRecord(encodeFileVersion(wallTime())); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// Path returns the event file path.
func (w *Writer) Path() string {
	return w.path
}

// WriteScalar records one scalar value under tag at step.
func (w *Writer) WriteScalar(tag string, step int64, value float32) error {
	return w.writeRecord(encodeScalarEvent(wallTime(), step, tag, value))
}

// WriteHistogram records the distribution of values under tag at step.
func (w *Writer) WriteHistogram(tag string, step int64, values []float32) error {
	if len(values) == 0 {
		return fmt.Errorf("histogram %s: no values", tag)
	}
	return w.writeRecord(encodeHistogramEvent(wallTime(), step, tag, values))
}

// WriteImage records a grayscale image given as height*width intensities
// in [0, 1].
func (w *Writer) WriteImage(tag string, step int64, pixels []float32, height, width int) error {
	if len(pixels) != height*width {
		return fmt.Errorf("image %s: got %d pixels for %dx%d", tag, len(pixels), height, width)
	}
	rec, err := encodeImageEvent(wallTime(), step, tag, pixels, height, width)
	if err != nil {
		return err
	}
	return w.writeRecord(rec)
}

// WriteText records a markdown text summary under tag at step.
func (w *Writer) WriteText(tag string, step int64, text string) error {
	return w.writeRecord(encodeTextEvent(wallTime(), step, tag, text))
}

// Close flushes and closes the event file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

// writeRecord frames one serialized event the TFRecord way:
// length (8 bytes LE), masked crc of length (4), payload, masked crc of
// payload (4).
func (w *Writer) writeRecord(event []byte) error {
	var lenBuf [8]byte
	n := uint64(len(event))
	for i := 0; i < 8; i++ {
		lenBuf[i] = byte(n >> (8 * i))
	}

	buf := make([]byte, 0, len(event)+16)
	buf = append(buf, lenBuf[:]...)
	buf = appendUint32LE(buf, maskedCRC(lenBuf[:]))
	buf = append(buf, event...)
	buf = appendUint32LE(buf, maskedCRC(event))

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.f.Write(buf); err != nil {
		return fmt.Errorf("write event record: %w", err)
	}
	return nil
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// maskedCRC computes the masked crc32c checksum TFRecord framing uses.
func maskedCRC(data []byte) uint32 {
	crc := crc32.Checksum(data, castagnoli)
	return ((crc >> 15) | (crc << 17)) + 0xa282ead8
}

func appendUint32LE(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func wallTime() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
