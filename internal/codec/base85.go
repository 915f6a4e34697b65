package codec

import "fmt"

// pythonB85Alphabet is the alphabet Python's base64.b85encode/b85decode
// use. It is unrelated to Go's standard library encoding/ascii85 (the
// Adobe/btoa alphabet, in a different character order), so the wire
// encoding the service emits — produced by the original Python client's
// base64.b85encode — cannot be read by encoding/ascii85. No example repo
// or ecosystem library in the retrieved pack implements this alphabet, so
// it is reproduced here directly from Python's base64 module source.
const pythonB85Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
	"abcdefghijklmnopqrstuvwxyz!#$%&()*+-;<=>?@^_`{|}~"

var b85Decode [256]int8

func init() {
	for i := range b85Decode {
		b85Decode[i] = -1
	}
	for i, c := range []byte(pythonB85Alphabet) {
		b85Decode[c] = int8(i)
	}
}

// decodeBase85 decodes s per Python's base64.b85decode: groups of 5
// characters become 4 bytes each (big-endian base-85), with the final
// partial group padded on the right with the alphabet's last character
// before decoding and the corresponding bytes trimmed off the result.
func decodeBase85(s string) ([]byte, error) {
	padding := (5 - len(s)%5) % 5
	padded := s
	if padding > 0 {
		for i := 0; i < padding; i++ {
			padded += "~"
		}
	}

	out := make([]byte, 0, len(padded)/5*4)
	for i := 0; i < len(padded); i += 5 {
		var acc uint64
		for j := 0; j < 5; j++ {
			c := padded[i+j]
			v := b85Decode[c]
			if v < 0 {
				return nil, fmt.Errorf("invalid base85 byte %q at offset %d", c, i+j)
			}
			acc = acc*85 + uint64(v)
		}
		out = append(out, byte(acc>>24), byte(acc>>16), byte(acc>>8), byte(acc))
	}

	if padding > 0 {
		out = out[:len(out)-padding]
	}
	return out, nil
}
