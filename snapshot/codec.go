package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	gojson "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Blob layout:
//
//	magic    [4]byte "EMSS"
//	version  uint8
//	codec    uint8 (compression)
//	length   uint32 LE, compressed payload size
//	payload  []byte
//	checksum uint32 LE, CRC32 (IEEE) over everything before it
//
// CRC32 detects accidental corruption only; it is not tamper-proof.
var magic = [4]byte{'E', 'M', 'S', 'S'}

const version = 1

// ErrCorrupt is returned when a blob fails structural or checksum
// verification. It is non-retryable: the blob will not get better.
var ErrCorrupt = errors.New("snapshot corrupt")

// Compression selects the payload compression codec.
type Compression uint8

const (
	// CompressionNone stores the payload verbatim.
	CompressionNone Compression = iota
	// CompressionZstd favors ratio, the default for cold snapshots.
	CompressionZstd
	// CompressionLZ4 favors speed, suited to warm snapshots on fast disks.
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(c))
	}
}

// Valid returns true for a known compression codec.
func (c Compression) Valid() bool {
	return c <= CompressionLZ4
}

// Encode serializes a snapshot into a self-describing blob.
func Encode(snap *Snapshot, compression Compression) ([]byte, error) {
	if !compression.Valid() {
		return nil, fmt.Errorf("unsupported compression: %v", compression)
	}

	payload, err := gojson.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	payload, err = compress(payload, compression)
	if err != nil {
		return nil, err
	}

	buf := bytes.NewBuffer(make([]byte, 0, len(payload)+14))
	buf.Write(magic[:])
	buf.WriteByte(version)
	buf.WriteByte(byte(compression))

	var length [4]byte
	binary.LittleEndian.PutUint32(length[:], uint32(len(payload)))
	buf.Write(length[:])
	buf.Write(payload)

	var sum [4]byte
	binary.LittleEndian.PutUint32(sum[:], crc32.ChecksumIEEE(buf.Bytes()))
	buf.Write(sum[:])

	return buf.Bytes(), nil
}

// Decode verifies and deserializes a blob produced by Encode. Any
// structural or checksum failure returns an error wrapping ErrCorrupt.
func Decode(data []byte) (*Snapshot, error) {
	const headerSize = 10 // magic + version + codec + length
	if len(data) < headerSize+4 {
		return nil, fmt.Errorf("%w: truncated blob (%d bytes)", ErrCorrupt, len(data))
	}
	if !bytes.Equal(data[:4], magic[:]) {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if data[4] != version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, data[4])
	}

	compression := Compression(data[5])
	if !compression.Valid() {
		return nil, fmt.Errorf("%w: unknown compression %d", ErrCorrupt, data[5])
	}

	body := data[:len(data)-4]
	want := binary.LittleEndian.Uint32(data[len(data)-4:])
	if got := crc32.ChecksumIEEE(body); got != want {
		return nil, fmt.Errorf("%w: checksum mismatch: expected 0x%08x, got 0x%08x", ErrCorrupt, want, got)
	}

	length := binary.LittleEndian.Uint32(data[6:10])
	payload := body[headerSize:]
	if uint32(len(payload)) != length {
		return nil, fmt.Errorf("%w: payload length mismatch: header %d, got %d", ErrCorrupt, length, len(payload))
	}

	payload, err := decompress(payload, compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var snap Snapshot
	if err := gojson.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &snap, nil
}

func compress(payload []byte, compression Compression) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return payload, nil

	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(payload, make([]byte, 0, len(payload)/2)), nil

	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(payload); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil

	default:
		return nil, fmt.Errorf("unsupported compression: %v", compression)
	}
}

func decompress(payload []byte, compression Compression) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return payload, nil

	case CompressionZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(payload, nil)

	case CompressionLZ4:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(payload)))

	default:
		return nil, fmt.Errorf("unsupported compression: %v", compression)
	}
}
