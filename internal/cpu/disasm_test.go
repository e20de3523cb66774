package cpu

import "testing"

func disasm(t *testing.T, mem []byte) (string, int) {
	t.Helper()
	text, n := Disassemble(0, mem)
	return text, n
}

func TestDisassembleRegisterToRegister(t *testing.T) {
	// MOV R1,R2: Td=0,D=2,Ts=0,S=1 -> 0xC081
	text, n := disasm(t, []byte{0xC0, 0x81})
	if text != "MOV R1,R2" || n != 2 {
		t.Errorf("got %q/%d, want \"MOV R1,R2\"/2", text, n)
	}
}

func TestDisassembleImmediateConsumesExtraWord(t *testing.T) {
	// LI R0,>1234
	text, n := disasm(t, []byte{0x02, 0x00, 0x12, 0x34})
	if text != "LI R0,>1234" || n != 4 {
		t.Errorf("got %q/%d, want \"LI R0,>1234\"/4", text, n)
	}
}

func TestDisassembleJumpComputesTargetAddress(t *testing.T) {
	// JMP +4 bytes from PC=0: displacement 2 -> target = 2 + 2*2 = 6
	text, n := disasm(t, []byte{0x10, 0x02})
	if text != "JMP >0006" || n != 2 {
		t.Errorf("got %q/%d, want \"JMP >0006\"/2", text, n)
	}
}

func TestDisassembleNoOperandInstruction(t *testing.T) {
	text, n := disasm(t, []byte{0x03, 0x80})
	if text != "RTWP" || n != 2 {
		t.Errorf("got %q/%d, want \"RTWP\"/2", text, n)
	}
}

func TestDisassembleNOPAlias(t *testing.T) {
	text, n := disasm(t, []byte{0x10, 0x00})
	if text != "NOP" || n != 2 {
		t.Errorf("got %q/%d, want \"NOP\"/2", text, n)
	}
}

func TestDisassembleUnknownOpcodeFallsBackToWord(t *testing.T) {
	text, n := disasm(t, []byte{0x00, 0x00})
	if text != ".WORD >0000" || n != 2 {
		t.Errorf("got %q/%d, want \".WORD >0000\"/2", text, n)
	}
}

func TestDisassembleIndexedAddressingConsumesAddressWord(t *testing.T) {
	// B @>8000(R1): 0000 0100 0110 0001 (format 6), followed by the address word.
	text, n := disasm(t, []byte{0x04, 0x61, 0x80, 0x00})
	if text != "B @>8000(R1)" || n != 4 {
		t.Errorf("got %q/%d, want \"B @>8000(R1)\"/4", text, n)
	}
}
