// Package cartridge implements the TI-99/4A cartridge container: versioned
// on-disk formats (v0 tag-oriented/RLE, v1 index-oriented/RLE, v2
// index-oriented/LZW), 16 CPU 4KiB ROM/RAM regions, 8 GROM 8KiB regions, and
// a battery-backed-RAM sidecar (.ram) persisted with the rle package.
package cartridge

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ti99sim/ti99sim-go/internal/lzw"
	"github.com/ti99sim/ti99sim-go/internal/rle"
)

const (
	banner      = "TI-99/4A Module - "
	fileVersion = 0x20

	romBankSize  = 4096
	gromBankSize = 8192

	numCPURegions  = 16
	numGROMRegions = 8
	gromZero       = numCPURegions // region index >= gromZero addresses GROM

	maxBanksPerRegion = 4
)

// BankType identifies what backs a single bank's storage.
//
// Values are 1-indexed so that the legacy v0 format's `stored_byte + 1`
// read produces the same constants the v1/v2 formats store directly.
type BankType uint8

const (
	BankROM BankType = iota + 1
	BankRAM
	BankBatteryBacked
)

func (t BankType) String() string {
	switch t {
	case BankROM:
		return "ROM"
	case BankRAM:
		return "RAM"
	case BankBatteryBacked:
		return "Battery-backed RAM"
	default:
		return "Unknown"
	}
}

// Sentinel errors per spec.md §7.
var (
	ErrFileNotFound     = errors.New("cartridge: file not found")
	ErrFileFormatInvalid = errors.New("cartridge: invalid file format")
	ErrDecode           = errors.New("cartridge: decode error")
)

// Bank is one switchable unit of storage within a Region.
type Bank struct {
	Type BankType
	Data []byte
}

// Region is one of the fixed 4KiB (CPU) or 8KiB (GROM) address windows,
// holding up to 4 switchable banks.
type Region struct {
	NumBanks int
	Banks    [maxBanksPerRegion]Bank
	CurBank  int
}

// Container holds a fully loaded cartridge image.
type Container struct {
	CPU  [numCPURegions]Region
	GROM [numGROMRegions]Region

	BaseCRU  uint16
	Title    string
	FileName string
	RamFileName string
}

// New returns an empty container, ready for Load.
func New() *Container {
	return &Container{}
}

// IsValid reports whether any region has at least one bank loaded.
func (c *Container) IsValid() bool {
	for _, r := range c.CPU {
		if r.NumBanks != 0 {
			return true
		}
	}
	for _, r := range c.GROM {
		if r.NumBanks != 0 {
			return true
		}
	}
	return false
}

func regionFor(c *Container, index int) (*Region, int) {
	if index < gromZero {
		return &c.CPU[index], romBankSize
	}
	return &c.GROM[index-gromZero], gromBankSize
}

// Load reads a .ctg cartridge file (any of v0/v1/v2), deriving the
// battery-backed-RAM sidecar path from filename and loading it if present.
func Load(filename string) (*Container, error) {
	f, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, filename)
		}
		return nil, fmt.Errorf("cartridge: opening %s: %w", filename, err)
	}
	defer f.Close()

	c, err := LoadReader(f)
	if err != nil {
		return nil, err
	}
	c.FileName = filename
	c.RamFileName = ramSidecarPath(filename)

	if err := c.LoadRAM(); err != nil {
		return nil, err
	}
	return c, nil
}

func ramSidecarPath(filename string) string {
	base := filename
	if idx := strings.LastIndexAny(base, `/\`); idx >= 0 {
		base = base[idx+1:]
	}
	if idx := strings.LastIndex(base, "."); idx >= 0 {
		base = base[:idx]
	}
	dir := "."
	if idx := strings.LastIndexAny(filename, `/\`); idx >= 0 {
		dir = filename[:idx]
	}
	return dir + "/" + base + ".ram"
}

// LoadReader parses a cartridge image from r, banner through final region.
func LoadReader(r io.Reader) (*Container, error) {
	br := bufio.NewReader(r)

	header := make([]byte, 80)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, fmt.Errorf("%w: short header", ErrFileFormatInvalid)
	}
	if !bytes.HasPrefix(header, []byte(banner)) {
		return nil, fmt.Errorf("%w: missing banner", ErrFileFormatInvalid)
	}

	title := string(header[len(banner):])
	if idx := strings.IndexByte(title, '\n'); idx >= 0 {
		title = title[:idx]
	}
	title = strings.TrimRight(title, "\x00")

	c := New()
	c.Title = title

	versionByte, err := br.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: missing version byte", ErrFileFormatInvalid)
	}

	switch {
	case versionByte&0x80 != 0:
		if err := c.loadV0(br, versionByte); err != nil {
			return nil, err
		}
	case versionByte&0xF0 == 0x10:
		if err := c.loadV1(br); err != nil {
			return nil, err
		}
	case versionByte&0xF0 == 0x20:
		if err := c.loadV2(br); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unrecognized version byte 0x%02X", ErrFileFormatInvalid, versionByte)
	}

	if !c.IsValid() {
		return nil, fmt.Errorf("%w: no regions loaded", ErrFileFormatInvalid)
	}

	return c, nil
}

// loadV0 parses the legacy tag-oriented, RLE-framed format. tag is the
// already-consumed first tag byte (the original ungets it and re-reads;
// Go just keeps it in hand instead).
func (c *Container) loadV0(br *bufio.Reader, tag byte) error {
	for {
		dsr := tag&0x40 != 0
		index := int(tag & 0x3F)

		if index >= gromZero+numGROMRegions {
			return fmt.Errorf("%w: v0 region index %d out of range", ErrFileFormatInvalid, index)
		}
		region, size := regionFor(c, index)

		if dsr {
			lo, err := br.ReadByte()
			if err != nil {
				return fmt.Errorf("%w: truncated CRU base", ErrFileFormatInvalid)
			}
			hi, err := br.ReadByte()
			if err != nil {
				return fmt.Errorf("%w: truncated CRU base", ErrFileFormatInvalid)
			}
			c.BaseCRU = uint16(lo) | uint16(hi)<<8
		}

		rawType, err := br.ReadByte()
		if err != nil {
			return fmt.Errorf("%w: truncated bank type", ErrFileFormatInvalid)
		}
		bankType := BankType(rawType + 1)

		numBanks, err := br.ReadByte()
		if err != nil {
			return fmt.Errorf("%w: truncated bank count", ErrFileFormatInvalid)
		}
		region.NumBanks = int(numBanks)
		if region.NumBanks > maxBanksPerRegion {
			return fmt.Errorf("%w: region %d has %d banks (max %d)", ErrFileFormatInvalid, index, region.NumBanks, maxBanksPerRegion)
		}

		var numBytes [4]uint16
		rawSizes := make([]byte, 8)
		if _, err := io.ReadFull(br, rawSizes); err != nil {
			return fmt.Errorf("%w: truncated bank sizes", ErrFileFormatInvalid)
		}
		for i := 0; i < 4; i++ {
			numBytes[i] = uint16(rawSizes[2*i]) | uint16(rawSizes[2*i+1])<<8
		}

		for i := 0; i < region.NumBanks; i++ {
			region.Banks[i].Type = bankType
			data := make([]byte, size)
			if bankType == BankROM {
				decoded, err := rle.Decode(readExact(br, int(numBytes[i])), size)
				if err != nil {
					return fmt.Errorf("%w: region %d bank %d: %v", ErrDecode, index, i, err)
				}
				copy(data, decoded)
			}
			region.Banks[i].Data = data
		}

		next, err := br.ReadByte()
		if err != nil {
			return nil // EOF terminates the region list
		}
		tag = next
	}
}

// loadV1 parses the index-oriented, RLE-framed format.
func (c *Container) loadV1(br *bufio.Reader) error {
	hi, err := br.ReadByte()
	if err != nil {
		return fmt.Errorf("%w: truncated CRU base", ErrFileFormatInvalid)
	}
	lo, err := br.ReadByte()
	if err != nil {
		return fmt.Errorf("%w: truncated CRU base", ErrFileFormatInvalid)
	}
	c.BaseCRU = uint16(hi)<<8 | uint16(lo)

	index, err := br.ReadByte()
	if err != nil {
		return nil
	}

	for {
		if int(index) >= gromZero+numGROMRegions {
			return fmt.Errorf("%w: v1 region index %d out of range", ErrFileFormatInvalid, index)
		}
		region, size := regionFor(c, int(index))

		numBanks, err := br.ReadByte()
		if err != nil {
			return fmt.Errorf("%w: truncated bank count", ErrFileFormatInvalid)
		}
		region.NumBanks = int(numBanks)
		if region.NumBanks > maxBanksPerRegion {
			return fmt.Errorf("%w: region %d has %d banks (max %d)", ErrFileFormatInvalid, index, region.NumBanks, maxBanksPerRegion)
		}

		for i := 0; i < region.NumBanks; i++ {
			rawType, err := br.ReadByte()
			if err != nil {
				return fmt.Errorf("%w: truncated bank type", ErrFileFormatInvalid)
			}
			region.Banks[i].Type = BankType(rawType)
			data := make([]byte, size)
			if region.Banks[i].Type == BankROM {
				decoded, err := rle.Decode(readFullRLE(br, size), size)
				if err != nil {
					return fmt.Errorf("%w: region %d bank %d: %v", ErrDecode, index, i, err)
				}
				copy(data, decoded)
			}
			region.Banks[i].Data = data
		}

		next, err := br.ReadByte()
		if err != nil {
			return nil
		}
		index = next
	}
}

// loadV2 parses the current index-oriented, LZW-framed format.
func (c *Container) loadV2(br *bufio.Reader) error {
	hi, err := br.ReadByte()
	if err != nil {
		return fmt.Errorf("%w: truncated CRU base", ErrFileFormatInvalid)
	}
	lo, err := br.ReadByte()
	if err != nil {
		return fmt.Errorf("%w: truncated CRU base", ErrFileFormatInvalid)
	}
	c.BaseCRU = uint16(hi)<<8 | uint16(lo)

	index, err := br.ReadByte()
	if err != nil {
		return nil
	}

	for {
		if int(index) >= gromZero+numGROMRegions {
			return fmt.Errorf("%w: v2 region index %d out of range", ErrFileFormatInvalid, index)
		}
		region, size := regionFor(c, int(index))

		numBanks, err := br.ReadByte()
		if err != nil {
			return fmt.Errorf("%w: truncated bank count", ErrFileFormatInvalid)
		}
		region.NumBanks = int(numBanks)
		if region.NumBanks > maxBanksPerRegion {
			return fmt.Errorf("%w: region %d has %d banks (max %d)", ErrFileFormatInvalid, index, region.NumBanks, maxBanksPerRegion)
		}

		for i := 0; i < region.NumBanks; i++ {
			rawType, err := br.ReadByte()
			if err != nil {
				return fmt.Errorf("%w: truncated bank type", ErrFileFormatInvalid)
			}
			region.Banks[i].Type = BankType(rawType)
			data := make([]byte, size)
			if region.Banks[i].Type == BankROM {
				decoded, err := loadBufferLZW(br, size)
				if err != nil {
					return fmt.Errorf("%w: region %d bank %d: %v", ErrDecode, index, i, err)
				}
				copy(data, decoded)
			}
			region.Banks[i].Data = data
		}

		next, err := br.ReadByte()
		if err != nil {
			return nil
		}
		index = next
	}
}

// loadBufferLZW mirrors cCartridge::LoadBufferLZW: a big-endian u16 size
// prefix whose high bit means "stored uncompressed" (the compressor gave up
// because LZW made the bank bigger, not smaller).
func loadBufferLZW(br *bufio.Reader, size int) ([]byte, error) {
	hi, err := br.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("truncated LZW size prefix")
	}
	lo, err := br.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("truncated LZW size prefix")
	}
	inSize := int(hi)<<8 | int(lo)

	if inSize&0x8000 != 0 {
		raw := readExact(br, inSize&0x7FFF)
		out := make([]byte, size)
		copy(out, raw)
		return out, nil
	}

	raw := readExact(br, inSize)
	var out []byte
	err = lzw.DecodeMaxBits(raw, lzw.CartridgeMaxBits, func(chunk []byte) bool {
		out = append(out, chunk...)
		return true
	})
	if err != nil {
		return nil, err
	}
	result := make([]byte, size)
	copy(result, out)
	return result, nil
}

// readExact reads n bytes and always returns an n-byte buffer; if the stream
// ends early the missing tail is left zero, matching the caller's "best
// effort" framing contract.
func readExact(br *bufio.Reader, n int) []byte {
	buf := make([]byte, n)
	io.ReadFull(br, buf)
	return buf
}

// readFullRLE reads the RLE-encoded representation of a size-byte buffer;
// the v1 format frames RLE bank data inline (no length prefix), so we have
// to read tag-by-tag until size decoded bytes have been produced.
func readFullRLE(br *bufio.Reader, size int) []byte {
	var encoded []byte
	decodedLen := 0
	for decodedLen < size {
		tagBytes := make([]byte, 2)
		if _, err := io.ReadFull(br, tagBytes); err != nil {
			break
		}
		tag := int(tagBytes[0])<<8 | int(tagBytes[1])
		encoded = append(encoded, tagBytes...)
		if tag&0x8000 != 0 {
			count := tag &^ 0x8000
			b, err := br.ReadByte()
			if err != nil {
				break
			}
			encoded = append(encoded, b)
			decodedLen += count
		} else {
			payload := make([]byte, tag)
			if _, err := io.ReadFull(br, payload); err != nil {
				break
			}
			encoded = append(encoded, payload...)
			decodedLen += tag
		}
	}
	return encoded
}

// Save writes the container back out in the current (v2) format, and
// persists any battery-backed RAM to the .ram sidecar.
func (c *Container) Save(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("cartridge: creating %s: %w", filename, err)
	}
	defer f.Close()

	if err := c.SaveWriter(f); err != nil {
		return err
	}
	c.FileName = filename
	c.RamFileName = ramSidecarPath(filename)
	return c.SaveRAM()
}

// SaveWriter writes the v2 container format to w.
func (c *Container) SaveWriter(w io.Writer) error {
	header := make([]byte, 80)
	copy(header, []byte(fmt.Sprintf("%s%s\n\x1A", banner, c.Title)))
	if _, err := w.Write(header); err != nil {
		return err
	}

	buf := []byte{fileVersion, byte(c.BaseCRU >> 8), byte(c.BaseCRU & 0xFF)}
	if _, err := w.Write(buf); err != nil {
		return err
	}

	writeRegion := func(index int, region *Region, size int) error {
		if region.NumBanks == 0 {
			return nil
		}
		if _, err := w.Write([]byte{byte(index), byte(region.NumBanks)}); err != nil {
			return err
		}
		for i := 0; i < region.NumBanks; i++ {
			bank := region.Banks[i]
			if _, err := w.Write([]byte{byte(bank.Type)}); err != nil {
				return err
			}
			if bank.Type == BankROM {
				if err := saveBufferLZW(w, bank.Data, size); err != nil {
					return err
				}
			}
		}
		return nil
	}

	for i := range c.CPU {
		if err := writeRegion(i, &c.CPU[i], romBankSize); err != nil {
			return err
		}
	}
	for i := range c.GROM {
		if err := writeRegion(gromZero+i, &c.GROM[i], gromBankSize); err != nil {
			return err
		}
	}

	return nil
}

// saveBufferLZW mirrors cCartridge::SaveBufferLZW: compress with LZW, but
// fall back to storing the bank uncompressed (size prefix high bit set) if
// compression made it larger.
func saveBufferLZW(w io.Writer, data []byte, size int) error {
	var compressed []byte
	err := lzw.EncodeMaxBits(data, lzw.CartridgeMaxBits, func(chunk []byte) bool {
		compressed = append(compressed, chunk...)
		return true
	})

	outSize := len(compressed)
	payload := compressed
	if err != nil || outSize > size {
		outSize = 0x8000 | size
		payload = data
	}

	if _, werr := w.Write([]byte{byte(outSize >> 8), byte(outSize & 0xFF)}); werr != nil {
		return werr
	}
	_, werr := w.Write(payload[:outSize&0x7FFF])
	return werr
}

// LoadRAM restores battery-backed banks from the .ram sidecar, if present.
func (c *Container) LoadRAM() error {
	if c.RamFileName == "" {
		return nil
	}
	data, err := os.ReadFile(c.RamFileName)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("cartridge: reading %s: %w", c.RamFileName, err)
	}

	pos := 0
	loadInto := func(region *Region, size int) error {
		for i := 0; i < region.NumBanks; i++ {
			if region.Banks[i].Type != BankBatteryBacked {
				continue
			}
			decoded, n, err := rle.DecodeAt(data[pos:], size)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrDecode, err)
			}
			copy(region.Banks[i].Data, decoded)
			pos += n
		}
		return nil
	}

	for i := range c.CPU {
		if err := loadInto(&c.CPU[i], romBankSize); err != nil {
			return err
		}
	}
	for i := range c.GROM {
		if err := loadInto(&c.GROM[i], gromBankSize); err != nil {
			return err
		}
	}
	return nil
}

// SaveRAM persists battery-backed banks to the .ram sidecar, deleting it if
// every battery-backed bank is all zero (nothing worth keeping).
func (c *Container) SaveRAM() error {
	if c.RamFileName == "" {
		return nil
	}

	var buf bytes.Buffer
	anyNonZero := false

	save := func(region *Region) {
		for i := 0; i < region.NumBanks; i++ {
			if region.Banks[i].Type != BankBatteryBacked {
				continue
			}
			for _, b := range region.Banks[i].Data {
				if b != 0 {
					anyNonZero = true
					break
				}
			}
			buf.Write(rle.Encode(region.Banks[i].Data))
		}
	}

	for i := range c.CPU {
		save(&c.CPU[i])
	}
	for i := range c.GROM {
		save(&c.GROM[i])
	}

	if !anyNonZero {
		os.Remove(c.RamFileName)
		return nil
	}

	return os.WriteFile(c.RamFileName, buf.Bytes(), 0o644)
}

// Summary returns a human-readable region inventory, the Go analog of
// cCartridge::PrintInfo/DumpRegion.
func (c *Container) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s\n", banner, c.Title)
	for i, r := range c.CPU {
		if r.NumBanks == 0 {
			continue
		}
		fmt.Fprintf(&b, "  CPU  @ 0x%04X: %d bank(s), type %s\n", i*romBankSize, r.NumBanks, r.Banks[0].Type)
	}
	for i, r := range c.GROM {
		if r.NumBanks == 0 {
			continue
		}
		fmt.Fprintf(&b, "  GROM @ 0x%04X: %d bank(s), type %s\n", i*gromBankSize, r.NumBanks, r.Banks[0].Type)
	}
	return b.String()
}
