// Copyright 2026 The Insight Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"bytes"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/insight-health/insight/lib/clock"
	"github.com/insight-health/insight/lib/stream"
)

// magic identifies a capture file: "INSCAP" plus a two-digit format
// version. Protocol constant; bumping it invalidates old captures.
const magic = "INSCAP01"

// checksumSize is the length of the BLAKE3 trailer.
const checksumSize = 32

// Record is one captured event with its offset from session start.
type Record struct {
	// OffsetMS is milliseconds elapsed since the first record.
	OffsetMS int64 `json:"offset_ms"`

	Event stream.Event `json:"event"`
}

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2): the same
// logical record always produces identical bytes, so captures of the
// same session diff cleanly.
var encMode cbor.EncMode

// decMode accepts standard CBOR and ignores unknown fields, so newer
// captures stay readable by older readers.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("capture: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		// Event payloads are opaque JSON objects; when one is decoded
		// into an any-typed target it must come out json-compatible.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("capture: CBOR decoder initialization failed: " + err.Error())
	}
}

// Writer appends decoded events to a capture file. It implements
// stream.Recorder, so passing one as Options.Recorder tees a live
// session to disk. Safe for concurrent use; errors are sticky and
// resurface from Close.
type Writer struct {
	mu      sync.Mutex
	file    *os.File
	hasher  *blake3.Hasher
	zstd    *zstd.Encoder
	encoder *cbor.Encoder
	clock   clock.Clock
	start   time.Time
	err     error
}

// NewWriter creates path (truncating any existing file) and writes the
// format header. If clk is nil, clock.Real() is used.
func NewWriter(path string, clk clock.Clock) (*Writer, error) {
	if clk == nil {
		clk = clock.Real()
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating capture file: %w", err)
	}

	// The checksum covers everything before the trailer, magic
	// included.
	hasher := blake3.New()
	hashed := io.MultiWriter(file, hasher)
	if _, err := io.WriteString(hashed, magic); err != nil {
		file.Close()
		return nil, fmt.Errorf("writing capture header: %w", err)
	}

	compressor, err := zstd.NewWriter(hashed, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("initializing zstd: %w", err)
	}

	return &Writer{
		file:    file,
		hasher:  hasher,
		zstd:    compressor,
		encoder: encMode.NewEncoder(compressor),
		clock:   clk,
	}, nil
}

// Record appends one event. The first call anchors the timeline; every
// record's offset is measured from it.
func (w *Writer) Record(event stream.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}

	now := w.clock.Now()
	if w.start.IsZero() {
		w.start = now
	}
	record := Record{
		OffsetMS: now.Sub(w.start).Milliseconds(),
		Event:    event,
	}
	if err := w.encoder.Encode(record); err != nil {
		w.err = fmt.Errorf("encoding capture record: %w", err)
		return w.err
	}
	return nil
}

// Close flushes the compressed stream, appends the BLAKE3 trailer, and
// closes the file. The capture is unreadable until Close succeeds.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		w.file.Close()
		return w.err
	}

	if err := w.zstd.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("flushing zstd: %w", err)
	}
	var checksum [checksumSize]byte
	w.hasher.Sum(checksum[:0])
	if _, err := w.file.Write(checksum[:]); err != nil {
		w.file.Close()
		return fmt.Errorf("writing capture trailer: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing capture file: %w", err)
	}
	w.err = errors.New("capture: writer closed")
	return nil
}

// ErrCorrupt reports a capture whose trailer does not match its
// contents.
var ErrCorrupt = errors.New("capture: checksum mismatch")

// Reader iterates the records of a capture file. Open verifies the
// whole file against its trailer before returning, so Next never
// yields records from a corrupted capture.
type Reader struct {
	decoder *cbor.Decoder
	closer  io.Closer
}

// Open reads and verifies path.
func Open(path string) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading capture file: %w", err)
	}
	if len(data) < len(magic)+checksumSize {
		return nil, fmt.Errorf("capture: %s truncated (%d bytes)", path, len(data))
	}
	if string(data[:len(magic)]) != magic {
		return nil, fmt.Errorf("capture: %s is not a capture file", path)
	}

	body := data[:len(data)-checksumSize]
	trailer := data[len(data)-checksumSize:]
	computed := blake3.Sum256(body)
	if subtle.ConstantTimeCompare(computed[:], trailer) != 1 {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, path)
	}

	decompressor, err := zstd.NewReader(bytes.NewReader(body[len(magic):]))
	if err != nil {
		return nil, fmt.Errorf("initializing zstd: %w", err)
	}
	return &Reader{
		decoder: decMode.NewDecoder(decompressor),
		closer:  decompressorCloser{decompressor},
	}, nil
}

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (Record, error) {
	var record Record
	err := r.decoder.Decode(&record)
	if err != nil && !errors.Is(err, io.EOF) {
		return Record{}, fmt.Errorf("decoding capture record: %w", err)
	}
	return record, err
}

// ReadAll drains the remaining records.
func (r *Reader) ReadAll() ([]Record, error) {
	var records []Record
	for {
		record, err := r.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
}

func (r *Reader) Close() error { return r.closer.Close() }

// decompressorCloser adapts zstd.Decoder's bare Close to io.Closer.
type decompressorCloser struct {
	decoder *zstd.Decoder
}

func (c decompressorCloser) Close() error {
	c.decoder.Close()
	return nil
}
