package tilecodec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/hamersaw/stip-sub000/internal/model"
	"github.com/hhrutter/lzw"
)

// stipTag is a private TIFF tag id holding the STIP metadata domain as a
// "key=value\n"-delimited ASCII blob. Standard tags cover width/height/
// compression/strip layout; this one carries everything spec §6.2 requires
// for rebuild-from-disk.
const stipTag = 65000

const (
	tagImageWidth      = 256
	tagImageHeight     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
)

const (
	typeShort = 3
	typeLong  = 4
	typeASCII = 2
)

// Encode writes r as a single-strip, LZW-compressed, single-band TIFF with
// the STIP metadata domain embedded as a private ASCII tag.
func Encode(w io.Writer, r Raster, meta Metadata) error {
	if len(r.Pixels) != r.Width*r.Height {
		return fmt.Errorf("tilecodec: raster pixel count %d does not match %dx%d", len(r.Pixels), r.Width, r.Height)
	}

	var pixelBuf bytes.Buffer
	for _, v := range r.Pixels {
		var bits [4]byte
		binary.BigEndian.PutUint32(bits[:], math.Float32bits(v))
		pixelBuf.Write(bits[:])
	}

	var strip bytes.Buffer
	lw := lzw.NewWriter(&strip, lzw.MSB, 8)
	if _, err := lw.Write(pixelBuf.Bytes()); err != nil {
		return fmt.Errorf("tilecodec: lzw compress: %w", err)
	}
	if err := lw.Close(); err != nil {
		return fmt.Errorf("tilecodec: lzw close: %w", err)
	}

	stipBlob := encodeMetadata(meta)

	const headerLen = 8
	entries := []ifdEntry{
		{tagImageWidth, typeLong, 1, uint32(r.Width)},
		{tagImageHeight, typeLong, 1, uint32(r.Height)},
		{tagBitsPerSample, typeShort, 1, 32},
		{tagCompression, typeShort, 1, 5}, // LZW
		{tagPhotometric, typeShort, 1, 1}, // BlackIsZero
		{tagSamplesPerPixel, typeShort, 1, 1},
		{tagRowsPerStrip, typeLong, 1, uint32(r.Height)},
		{tagStripByteCounts, typeLong, 1, uint32(strip.Len())},
	}

	numEntries := len(entries) + 2 // + stripOffsets + stipTag (variable-length, offset-stored)
	ifdLen := 2 + numEntries*12 + 4
	stripOffset := uint32(headerLen + ifdLen)
	stipOffset := stripOffset + uint32(strip.Len())

	entries = append(entries,
		ifdEntry{tagStripOffsets, typeLong, 1, stripOffset},
		ifdEntry{stipTag, typeASCII, uint32(len(stipBlob) + 1), stipOffset},
	)

	var buf bytes.Buffer
	buf.WriteString("II")
	binary.Write(&buf, binary.LittleEndian, uint16(42))
	binary.Write(&buf, binary.LittleEndian, uint32(headerLen))

	writeIFD(&buf, entries, 0)
	buf.Write(strip.Bytes())
	buf.WriteString(stipBlob)
	buf.WriteByte(0)

	_, err := w.Write(buf.Bytes())
	return err
}

type ifdEntry struct {
	tag      uint16
	typ      uint16
	count    uint32
	valOrOff uint32
}

func writeIFD(buf *bytes.Buffer, entries []ifdEntry, nextIFD uint32) {
	binary.Write(buf, binary.LittleEndian, uint16(len(entries)))
	for _, e := range entries {
		binary.Write(buf, binary.LittleEndian, e.tag)
		binary.Write(buf, binary.LittleEndian, e.typ)
		binary.Write(buf, binary.LittleEndian, e.count)
		binary.Write(buf, binary.LittleEndian, e.valOrOff)
	}
	binary.Write(buf, binary.LittleEndian, nextIFD)
}

func encodeMetadata(m Metadata) string {
	cc := strconv.FormatFloat(m.CloudCoverage, 'g', -1, 64)
	fields := []string{
		"PLATFORM=" + m.Platform,
		"GEOCODE=" + m.Geocode,
		"SOURCE=" + string(m.Source),
		"SUBDATASET=" + strconv.Itoa(int(m.Subdataset)),
		"TILE=" + m.TileID,
		"TIMESTAMP=" + strconv.FormatInt(m.Timestamp, 10),
		"PIXEL_COVERAGE=" + strconv.FormatFloat(m.PixelCoverage, 'g', -1, 64),
		"CLOUD_COVERAGE=" + cc,
	}
	return strings.Join(fields, "\n")
}

func decodeMetadata(blob string) (Metadata, error) {
	var m Metadata
	for _, line := range strings.Split(blob, "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return m, fmt.Errorf("tilecodec: malformed metadata line %q", line)
		}
		key, val := parts[0], parts[1]
		var err error
		switch key {
		case "PLATFORM":
			m.Platform = val
		case "GEOCODE":
			m.Geocode = val
		case "SOURCE":
			m.Source = model.TileSource(val)
		case "SUBDATASET":
			var n int
			n, err = strconv.Atoi(val)
			m.Subdataset = uint8(n)
		case "TILE":
			m.TileID = val
		case "TIMESTAMP":
			m.Timestamp, err = strconv.ParseInt(val, 10, 64)
		case "PIXEL_COVERAGE":
			m.PixelCoverage, err = strconv.ParseFloat(val, 64)
		case "CLOUD_COVERAGE":
			m.CloudCoverage, err = strconv.ParseFloat(val, 64)
		}
		if err != nil {
			return m, fmt.Errorf("tilecodec: parse metadata field %q: %w", key, err)
		}
	}
	return m, nil
}

// Decode reads back a tile written by Encode, returning its raster pixels
// and embedded STIP metadata.
func Decode(r io.Reader) (Raster, Metadata, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Raster{}, Metadata{}, fmt.Errorf("tilecodec: read: %w", err)
	}
	if len(data) < 8 || string(data[:2]) != "II" {
		return Raster{}, Metadata{}, fmt.Errorf("tilecodec: not a recognized little-endian TIFF")
	}

	ifdOffset := binary.LittleEndian.Uint32(data[4:8])
	numEntries := binary.LittleEndian.Uint16(data[ifdOffset : ifdOffset+2])

	var width, height, bitsPerSample, rowsPerStrip, stripOffset, stripByteCount uint32
	var stipOffset, stipCount uint32

	for i := uint16(0); i < numEntries; i++ {
		entryOff := ifdOffset + 2 + uint32(i)*12
		tag := binary.LittleEndian.Uint16(data[entryOff : entryOff+2])
		val := binary.LittleEndian.Uint32(data[entryOff+8 : entryOff+12])
		switch tag {
		case tagImageWidth:
			width = val
		case tagImageHeight:
			height = val
		case tagBitsPerSample:
			bitsPerSample = val
		case tagRowsPerStrip:
			rowsPerStrip = val
		case tagStripOffsets:
			stripOffset = val
		case tagStripByteCounts:
			stripByteCount = val
		case stipTag:
			stipOffset = val
			count := binary.LittleEndian.Uint32(data[entryOff+4 : entryOff+8])
			stipCount = count
		}
	}
	_ = bitsPerSample
	_ = rowsPerStrip

	if stripOffset == 0 || stripByteCount == 0 {
		return Raster{}, Metadata{}, fmt.Errorf("tilecodec: missing strip data")
	}
	strip := data[stripOffset : stripOffset+stripByteCount]

	lr := lzw.NewReader(bytes.NewReader(strip), lzw.MSB, 8)
	defer lr.Close()
	raw, err := io.ReadAll(lr)
	if err != nil {
		return Raster{}, Metadata{}, fmt.Errorf("tilecodec: lzw decompress: %w", err)
	}

	pixels := make([]float32, width*height)
	for i := range pixels {
		pixels[i] = math.Float32frombits(binary.BigEndian.Uint32(raw[i*4 : i*4+4]))
	}

	var meta Metadata
	if stipOffset != 0 {
		blob := string(data[stipOffset : stipOffset+stipCount-1]) // drop trailing NUL
		meta, err = decodeMetadata(blob)
		if err != nil {
			return Raster{}, Metadata{}, err
		}
	}

	return Raster{Width: int(width), Height: int(height), Pixels: pixels}, meta, nil
}
