package cartridge

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func romBank(fill byte) []byte {
	data := make([]byte, romBankSize)
	for i := range data {
		data[i] = fill
	}
	return data
}

func TestSaveLoadRoundTrip(t *testing.T) {
	c := New()
	c.Title = "TEST CARTRIDGE"
	c.BaseCRU = 0x1000
	c.CPU[3].NumBanks = 1
	c.CPU[3].Banks[0] = Bank{Type: BankROM, Data: romBank(0xAB)}
	c.GROM[2].NumBanks = 1
	c.GROM[2].Banks[0] = Bank{Type: BankROM, Data: make([]byte, gromBankSize)}
	copy(c.GROM[2].Banks[0].Data, []byte("GPL PROGRAM DATA"))

	var buf bytes.Buffer
	require.NoError(t, c.SaveWriter(&buf))

	loaded, err := LoadReader(&buf)
	require.NoError(t, err)

	require.Equal(t, "TEST CARTRIDGE", loaded.Title)
	require.Equal(t, uint16(0x1000), loaded.BaseCRU)
	require.Equal(t, 1, loaded.CPU[3].NumBanks)
	require.Equal(t, romBank(0xAB), loaded.CPU[3].Banks[0].Data)
	require.Equal(t, 1, loaded.GROM[2].NumBanks)
	require.True(t, bytes.HasPrefix(loaded.GROM[2].Banks[0].Data, []byte("GPL PROGRAM DATA")))
}

func TestLoadRejectsMissingBanner(t *testing.T) {
	_, err := LoadReader(bytes.NewReader(make([]byte, 80)))
	require.ErrorIs(t, err, ErrFileFormatInvalid)
}

func TestSaveFileRoundTripWithBatteryRAM(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "game.ctg")

	c := New()
	c.Title = "BATTERY GAME"
	c.CPU[5].NumBanks = 1
	c.CPU[5].Banks[0] = Bank{Type: BankBatteryBacked, Data: make([]byte, romBankSize)}
	c.CPU[5].Banks[0].Data[10] = 0x42

	require.NoError(t, c.Save(path))
	require.FileExists(t, path)
	require.FileExists(t, c.RamFileName)

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, byte(0x42), loaded.CPU[5].Banks[0].Data[10])

	os.Remove(path)
	os.Remove(loaded.RamFileName)
}

func TestSummaryListsLoadedRegions(t *testing.T) {
	c := New()
	c.Title = "DEMO"
	c.CPU[0].NumBanks = 1
	c.CPU[0].Banks[0] = Bank{Type: BankROM, Data: romBank(0)}

	s := c.Summary()
	require.Contains(t, s, "DEMO")
	require.Contains(t, s, "CPU")
}
