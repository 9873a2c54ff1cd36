package registry

import "encoding/hex"

// decodeHexInto decodes src into dst, returning the number of bytes
// written. Registry-supplied pubkeys/hashes arrive as hex strings.
func decodeHexInto(dst []byte, src string) (int, error) {
	decoded, err := hex.DecodeString(src)
	if err != nil {
		return 0, err
	}
	n := copy(dst, decoded)
	return n, nil
}
