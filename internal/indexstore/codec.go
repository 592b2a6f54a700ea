package indexstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"
)

// Index blob layout, little endian:
//
//	magic   [4]byte "MRPX"
//	version uint16
//	flags   uint16  bit 0: payload is zstd-compressed
//	dim     uint32
//	count   uint64
//	plen    uint64  payload length in bytes as stored
//	idsum   uint32  CRC32 (IEEE) of the mapping ids, int64 little endian
//	payload [plen]byte  count*dim float32 values
//	crc     uint32  CRC32 (IEEE) of the uncompressed payload
const (
	blobMagic      = "MRPX"
	blobVersion    = 2
	flagZstd       = 1 << 0
	blobHeaderSize = 4 + 2 + 2 + 4 + 8 + 8 + 4

	// Upper bound on a single decoded payload, guards against corrupt headers.
	maxPayloadBytes = 8 << 30
)

var (
	errBadMagic    = errors.New("not an index blob")
	errBadVersion  = errors.New("unsupported index blob version")
	errBadChecksum = errors.New("index blob checksum mismatch")
	errBadLength   = errors.New("index blob payload length mismatch")
)

type blobHeader struct {
	dim   uint32
	count uint64
	idSum uint32
}

// idsChecksum ties a blob to the mapping written with it.
func idsChecksum(ids []int64) uint32 {
	buf := make([]byte, 0, 8*len(ids))
	for _, id := range ids {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(id))
	}
	return crc32.ChecksumIEEE(buf)
}

func encodeBlob(w io.Writer, dim int, flat []float32, ids []int64, compress bool) error {
	raw := make([]byte, 4*len(flat))
	for i, v := range flat {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}
	sum := crc32.ChecksumIEEE(raw)

	payload := raw
	var flags uint16
	if compress {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		payload = enc.EncodeAll(raw, nil)
		_ = enc.Close()
		flags |= flagZstd
	}

	var hdr [blobHeaderSize]byte
	copy(hdr[0:4], blobMagic)
	binary.LittleEndian.PutUint16(hdr[4:6], blobVersion)
	binary.LittleEndian.PutUint16(hdr[6:8], flags)
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(dim))
	var count uint64
	if dim > 0 {
		count = uint64(len(flat) / dim)
	}
	binary.LittleEndian.PutUint64(hdr[12:20], count)
	binary.LittleEndian.PutUint64(hdr[20:28], uint64(len(payload)))
	binary.LittleEndian.PutUint32(hdr[28:32], idsChecksum(ids))

	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	var tail [4]byte
	binary.LittleEndian.PutUint32(tail[:], sum)
	_, err := w.Write(tail[:])
	return err
}

// decodeBlob reads a complete blob. Any truncation, checksum or length error
// is returned before a single vector is handed out.
func decodeBlob(r io.Reader) (blobHeader, []float32, error) {
	var hdr [blobHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return blobHeader{}, nil, fmt.Errorf("read header: %w", err)
	}
	if string(hdr[0:4]) != blobMagic {
		return blobHeader{}, nil, errBadMagic
	}
	if v := binary.LittleEndian.Uint16(hdr[4:6]); v != blobVersion {
		return blobHeader{}, nil, fmt.Errorf("%w: %d", errBadVersion, v)
	}
	flags := binary.LittleEndian.Uint16(hdr[6:8])
	h := blobHeader{
		dim:   binary.LittleEndian.Uint32(hdr[8:12]),
		count: binary.LittleEndian.Uint64(hdr[12:20]),
		idSum: binary.LittleEndian.Uint32(hdr[28:32]),
	}
	plen := binary.LittleEndian.Uint64(hdr[20:28])
	if plen > maxPayloadBytes {
		return blobHeader{}, nil, fmt.Errorf("%w: payload of %d bytes", errBadLength, plen)
	}
	want := h.count * uint64(h.dim) * 4
	if want > maxPayloadBytes {
		return blobHeader{}, nil, fmt.Errorf("%w: %d vectors of dim %d", errBadLength, h.count, h.dim)
	}

	payload := make([]byte, plen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return blobHeader{}, nil, fmt.Errorf("read payload: %w", err)
	}
	var tail [4]byte
	if _, err := io.ReadFull(r, tail[:]); err != nil {
		return blobHeader{}, nil, fmt.Errorf("read checksum: %w", err)
	}

	raw := payload
	if flags&flagZstd != 0 {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return blobHeader{}, nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		raw, err = dec.DecodeAll(payload, make([]byte, 0, want))
		dec.Close()
		if err != nil {
			return blobHeader{}, nil, fmt.Errorf("decompress payload: %w", err)
		}
	}
	if uint64(len(raw)) != want {
		return blobHeader{}, nil, fmt.Errorf("%w: have %d bytes, want %d", errBadLength, len(raw), want)
	}
	if crc32.ChecksumIEEE(raw) != binary.LittleEndian.Uint32(tail[:]) {
		return blobHeader{}, nil, errBadChecksum
	}

	flat := make([]float32, len(raw)/4)
	for i := range flat {
		flat[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return h, flat, nil
}
