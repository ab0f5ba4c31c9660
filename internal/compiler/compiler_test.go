package compiler

import (
	"os"
	"testing"

	"github.com/spaghettifunk/vkrunner-go/internal/requirements"
)

func TestVersionString(t *testing.T) {
	v := requirements.MakeVersion(1, 2, 3)
	if got := versionString(v); got != "vulkan1.2" {
		t.Errorf("versionString = %q, want vulkan1.2", got)
	}
}

func TestDecodeShaderBinaryFileLittleEndian(t *testing.T) {
	f, err := os.CreateTemp("", "compiler-test-*.spv")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer os.Remove(f.Name())
	f.Write([]byte{0x03, 0x02, 0x23, 0x07, 0xef, 0xbe, 0xad, 0xde})
	f.Close()

	words, err := decodeShaderBinaryFile(f.Name())
	if err != nil {
		t.Fatalf("decodeShaderBinaryFile: %v", err)
	}
	if len(words) != 2 || words[0] != 0x07230203 || words[1] != 0xdeadbeef {
		t.Fatalf("words = %#x, want [0x07230203 0xdeadbeef]", words)
	}
}

func TestDecodeShaderBinaryFileBigEndian(t *testing.T) {
	f, err := os.CreateTemp("", "compiler-test-*.spv")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer os.Remove(f.Name())
	f.Write([]byte{0x07, 0x23, 0x02, 0x03, 0xde, 0xad, 0xbe, 0xef})
	f.Close()

	words, err := decodeShaderBinaryFile(f.Name())
	if err != nil {
		t.Fatalf("decodeShaderBinaryFile: %v", err)
	}
	if len(words) != 2 || words[0] != 0x07230203 || words[1] != 0xdeadbeef {
		t.Fatalf("words = %#x, want [0x07230203 0xdeadbeef]", words)
	}
}

func TestDecodeShaderBinaryFileInvalidMagic(t *testing.T) {
	f, err := os.CreateTemp("", "compiler-test-*.spv")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer os.Remove(f.Name())
	f.Write([]byte{0x12, 0x34, 0x56, 0x78})
	f.Close()

	if _, err := decodeShaderBinaryFile(f.Name()); err != ErrInvalidShaderBinary {
		t.Fatalf("err = %v, want ErrInvalidShaderBinary", err)
	}
}

func TestDecodeShaderBinaryFileNotMultipleOfFour(t *testing.T) {
	f, err := os.CreateTemp("", "compiler-test-*.spv")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer os.Remove(f.Name())
	f.Write([]byte{0x03, 0x02, 0x23, 0x07, 0x9a})
	f.Close()

	if _, err := decodeShaderBinaryFile(f.Name()); err != ErrInvalidShaderBinary {
		t.Fatalf("err = %v, want ErrInvalidShaderBinary", err)
	}
}
