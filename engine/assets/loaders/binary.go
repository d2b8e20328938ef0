package loaders

import (
	"encoding/binary"
	"fmt"
	"os"
)

const spirvMagic = 0x07230203

// BinaryLoader reads precompiled SPIR-V modules.
type BinaryLoader struct{}

func (bl *BinaryLoader) Load(path string) (any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(b) < 4 || len(b)%4 != 0 {
		return nil, fmt.Errorf("%s is not a SPIR-V module: size %d", path, len(b))
	}
	if binary.LittleEndian.Uint32(b) != spirvMagic {
		return nil, fmt.Errorf("%s is not a SPIR-V module: bad magic number", path)
	}
	return b, nil
}
