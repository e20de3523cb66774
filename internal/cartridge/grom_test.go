package cartridge

import "testing"

func newTestGROMContainer() *Container {
	c := New()
	data := make([]byte, gromBankSize)
	for i := range data {
		data[i] = byte(i)
	}
	c.GROM[0] = Region{NumBanks: 1, Banks: [maxBanksPerRegion]Bank{{Type: BankROM, Data: data}}}
	return c
}

func TestGROMReadAdvancesAddress(t *testing.T) {
	g := NewGROM(newTestGROMContainer())
	g.WritePort(0x00) // high byte
	g.WritePort(0x00) // low byte -> address 0x0000, region 0

	if v := g.ReadPort(); v != 0 {
		t.Fatalf("ReadPort() = %#02x, want 0x00", v)
	}
	if v := g.ReadPort(); v != 1 {
		t.Fatalf("ReadPort() = %#02x, want 0x01 (address should have advanced)", v)
	}
	if g.Address() != 2 {
		t.Fatalf("Address() = %#04x, want 0x0002", g.Address())
	}
}

func TestGROMReadFromUnmappedRegionReturnsZero(t *testing.T) {
	g := NewGROM(New())
	g.WritePort(0x00)
	g.WritePort(0x00)
	if v := g.ReadPort(); v != 0 {
		t.Fatalf("ReadPort() = %#02x, want 0 for an unmapped region", v)
	}
}

func TestGROMAddressSelectsRegionFromTopBits(t *testing.T) {
	c := New()
	data := make([]byte, gromBankSize)
	data[5] = 0xAB
	c.GROM[1] = Region{NumBanks: 1, Banks: [maxBanksPerRegion]Bank{{Type: BankROM, Data: data}}}

	g := NewGROM(c)
	addr := uint16(1)<<13 | 5
	g.WritePort(uint8(addr >> 8))
	g.WritePort(uint8(addr))

	if v := g.ReadPort(); v != 0xAB {
		t.Fatalf("ReadPort() = %#02x, want 0xAB from GROM region 1", v)
	}
}
