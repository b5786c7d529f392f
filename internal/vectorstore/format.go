package vectorstore

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/hyperjump/kagami/internal/models"
)

const (
	matrixMagic   = 0x564D474B // "KGMV"
	matrixVersion = 1

	manifestFormat  = "kagami.manifest"
	manifestVersion = 1
)

// Matrix file layout, little endian:
//
//	Magic       (4 bytes)
//	Version     (4 bytes)
//	Codec       (1 byte) + reserved (3 bytes)
//	Rows        (8 bytes)
//	Dim         (4 bytes)
//	RawLength   (8 bytes) - rows*dim*4
//	PayloadLen  (8 bytes)
//	Checksum    (4 bytes) - CRC32 of the raw (decoded) matrix bytes
//	Payload     (PayloadLen bytes)
const matrixHeaderSize = 44

type matrixHeader struct {
	codec      Codec
	rows       uint64
	dim        uint32
	rawLen     uint64
	payloadLen uint64
	checksum   uint32
}

func (h matrixHeader) encode() []byte {
	b := make([]byte, matrixHeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], matrixMagic)
	binary.LittleEndian.PutUint32(b[4:8], matrixVersion)
	b[8] = byte(h.codec)
	binary.LittleEndian.PutUint64(b[12:20], h.rows)
	binary.LittleEndian.PutUint32(b[20:24], h.dim)
	binary.LittleEndian.PutUint64(b[24:32], h.rawLen)
	binary.LittleEndian.PutUint64(b[32:40], h.payloadLen)
	binary.LittleEndian.PutUint32(b[40:44], h.checksum)
	return b
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", models.ErrCorruptFormat, fmt.Sprintf(format, args...))
}

func decodeMatrixHeader(b []byte) (matrixHeader, error) {
	var h matrixHeader
	if len(b) < matrixHeaderSize {
		return h, corrupt("matrix header truncated (%d bytes)", len(b))
	}
	if magic := binary.LittleEndian.Uint32(b[0:4]); magic != matrixMagic {
		return h, corrupt("invalid magic: %x", magic)
	}
	if version := binary.LittleEndian.Uint32(b[4:8]); version != matrixVersion {
		return h, corrupt("unsupported matrix version: %d", version)
	}
	h.codec = Codec(b[8])
	if h.codec > CodecZSTD {
		return h, corrupt("unknown codec: %d", b[8])
	}
	h.rows = binary.LittleEndian.Uint64(b[12:20])
	h.dim = binary.LittleEndian.Uint32(b[20:24])
	h.rawLen = binary.LittleEndian.Uint64(b[24:32])
	h.payloadLen = binary.LittleEndian.Uint64(b[32:40])
	h.checksum = binary.LittleEndian.Uint32(b[40:44])
	if h.rows > 0 && h.dim == 0 {
		return h, corrupt("%d rows with zero dimension", h.rows)
	}
	if h.rawLen != h.rows*uint64(h.dim)*4 {
		return h, corrupt("raw length %d does not match %d rows x %d dims", h.rawLen, h.rows, h.dim)
	}
	return h, nil
}

// encodeMatrix renders the full matrix file for data.
func encodeMatrix(data []float32, rows, dim int, codec Codec) ([]byte, uint32, error) {
	raw := float32SliceToBytes(data)
	checksum := crc32.ChecksumIEEE(raw)
	payload, used, err := encodePayload(raw, codec)
	if err != nil {
		return nil, 0, fmt.Errorf("encode matrix (%s): %w", codec, err)
	}
	h := matrixHeader{
		codec:      used,
		rows:       uint64(rows),
		dim:        uint32(dim),
		rawLen:     uint64(len(raw)),
		payloadLen: uint64(len(payload)),
		checksum:   checksum,
	}
	out := make([]byte, 0, matrixHeaderSize+len(payload))
	out = append(out, h.encode()...)
	out = append(out, payload...)
	return out, checksum, nil
}

// decodeMatrix validates a matrix file eagerly and returns its rows.
func decodeMatrix(b []byte) (matrixHeader, []float32, error) {
	h, err := decodeMatrixHeader(b)
	if err != nil {
		return h, nil, err
	}
	payload := b[matrixHeaderSize:]
	if uint64(len(payload)) != h.payloadLen {
		return h, nil, corrupt("payload length %d, header says %d", len(payload), h.payloadLen)
	}
	raw, err := decodePayload(payload, h.codec, int(h.rawLen))
	if err != nil {
		return h, nil, corrupt("decode %s payload: %v", h.codec, err)
	}
	if uint64(len(raw)) != h.rawLen {
		return h, nil, corrupt("decoded length %d, expected %d", len(raw), h.rawLen)
	}
	if sum := crc32.ChecksumIEEE(raw); sum != h.checksum {
		return h, nil, corrupt("matrix checksum mismatch: %08x != %08x", sum, h.checksum)
	}
	return h, bytesToFloat32Slice(raw), nil
}

func float32SliceToBytes(f []float32) []byte {
	b := make([]byte, len(f)*4)
	for i, v := range f {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func bytesToFloat32Slice(b []byte) []float32 {
	f := make([]float32, len(b)/4)
	for i := range f {
		f[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return f
}
