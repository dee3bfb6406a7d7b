package blobstore

import (
	"encoding/binary"
	"math"
)

// EncodeVectorsRaw serialises unit-norm row-major float32 vectors with no
// compression (Metadata.Compression nil / Kind "raw").
func EncodeVectorsRaw(vectors [][]float32) []byte {
	if len(vectors) == 0 {
		return nil
	}
	d := len(vectors[0])
	buf := make([]byte, len(vectors)*d*4)
	for i, v := range vectors {
		for j, f := range v {
			off := (i*d + j) * 4
			binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(f))
		}
	}
	return buf
}

// DecodeVectorsRaw reverses EncodeVectorsRaw given N and D.
func DecodeVectorsRaw(blob []byte, n, d int) [][]float32 {
	out := make([][]float32, n)
	for i := 0; i < n; i++ {
		row := make([]float32, d)
		for j := 0; j < d; j++ {
			off := (i*d + j) * 4
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(blob[off : off+4]))
		}
		out[i] = row
	}
	return out
}
