package infra

import (
	"encoding/base64"
	"encoding/hex"
	"strings"

	textenc "golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"access-gateway/middleware/access/domain"
)

// codec converte entre string e os bytes guardados no cache.
type codec struct {
	encode func(string) ([]byte, error)
	decode func([]byte) (string, error)
}

var (
	utf8Codec = codec{
		encode: func(s string) ([]byte, error) { return []byte(s), nil },
		decode: func(b []byte) (string, error) { return string(b), nil },
	}
	latin1Codec = codec{
		encode: func(s string) ([]byte, error) {
			return textenc.ReplaceUnsupported(charmap.ISO8859_1.NewEncoder()).Bytes([]byte(s))
		},
		decode: func(b []byte) (string, error) {
			out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
			return string(out), err
		},
	}
	asciiCodec = codec{
		encode: latin1Codec.encode,
		decode: func(b []byte) (string, error) {
			out := make([]byte, len(b))
			for i, c := range b {
				out[i] = c & 0x7f
			}
			return string(out), nil
		},
	}
	utf16Codec = codec{
		encode: func(s string) ([]byte, error) {
			return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(s))
		},
		decode: func(b []byte) (string, error) {
			out, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(b)
			return string(out), err
		},
	}
	base64Codec = codec{
		encode: func(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) },
		decode: func(b []byte) (string, error) { return base64.StdEncoding.EncodeToString(b), nil },
	}
	hexCodec = codec{
		encode: func(s string) ([]byte, error) { return hex.DecodeString(s) },
		decode: func(b []byte) (string, error) { return hex.EncodeToString(b), nil },
	}
)

var codecs = map[string]codec{
	"utf8":     utf8Codec,
	"utf-8":    utf8Codec,
	"ascii":    asciiCodec,
	"latin1":   latin1Codec,
	"binary":   latin1Codec,
	"utf16le":  utf16Codec,
	"utf-16le": utf16Codec,
	"ucs2":     utf16Codec,
	"ucs-2":    utf16Codec,
	"base64":   base64Codec,
	"hex":      hexCodec,
}

func lookupCodec(name string) (codec, error) {
	if name == "" {
		return utf8Codec, nil
	}
	c, ok := codecs[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return codec{}, domain.InvalidArgument("unknown encoding %q", name)
	}
	return c, nil
}
