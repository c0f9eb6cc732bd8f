package tilecodec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// EncodeRaw serializes a Raster for the transfer wire protocol's
// raster_payload field (spec §6.3): this is the decoded pixel grid, not
// yet the canonical on-disk TIFF — the receiving album store calls Encode
// to produce the stored file, embedding metadata that only it knows are
// final (spec §4.3 step 3-4).
func EncodeRaw(r Raster) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(r.Width))
	binary.Write(&buf, binary.BigEndian, uint32(r.Height))
	binary.Write(&buf, binary.BigEndian, r.NoData)
	for _, v := range r.Pixels {
		binary.Write(&buf, binary.BigEndian, v)
	}
	return buf.Bytes()
}

// DecodeRaw is the inverse of EncodeRaw.
func DecodeRaw(payload []byte) (Raster, error) {
	r := bytes.NewReader(payload)
	var width, height uint32
	var nodata float64
	if err := binary.Read(r, binary.BigEndian, &width); err != nil {
		return Raster{}, fmt.Errorf("tilecodec: decode raw width: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &height); err != nil {
		return Raster{}, fmt.Errorf("tilecodec: decode raw height: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &nodata); err != nil {
		return Raster{}, fmt.Errorf("tilecodec: decode raw nodata: %w", err)
	}
	pixels := make([]float32, width*height)
	for i := range pixels {
		if err := binary.Read(r, binary.BigEndian, &pixels[i]); err != nil {
			if err == io.ErrUnexpectedEOF || err == io.EOF {
				return Raster{}, fmt.Errorf("tilecodec: raw payload truncated at pixel %d", i)
			}
			return Raster{}, fmt.Errorf("tilecodec: decode raw pixel %d: %w", i, err)
		}
	}
	return Raster{Width: int(width), Height: int(height), NoData: nodata, Pixels: pixels}, nil
}

// PixelCoverage computes the fraction of non-nodata pixels in r (spec §4.5).
func PixelCoverage(r Raster) float64 {
	if len(r.Pixels) == 0 {
		return 0
	}
	valid := 0
	for _, v := range r.Pixels {
		if float64(v) != r.NoData {
			valid++
		}
	}
	return float64(valid) / float64(len(r.Pixels))
}
