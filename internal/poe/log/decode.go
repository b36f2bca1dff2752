package poe_log

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
)

type namedEncoding struct {
	name string
	enc  encoding.Encoding
}

// Candidate encodings tried, in order, for lines that are not valid UTF-8.
// Chinese clients write GBK, older Windows installs write cp1252.
var fallbackEncodings = []namedEncoding{
	{"gbk", simplifiedchinese.GBK},
	{"gb18030", simplifiedchinese.GB18030},
	{"windows-1252", charmap.Windows1252},
}

// Decoder turns raw log lines into UTF-8. It remembers the last encoding that
// worked and tries it first, since a log file rarely mixes encodings.
type Decoder struct {
	preferred int // index into fallbackEncodings, -1 for none
}

func NewDecoder() *Decoder {
	return &Decoder{preferred: -1}
}

// Decode returns the line as UTF-8 and the name of the encoding used.
// When no candidate decodes cleanly, invalid bytes become U+FFFD.
func (d *Decoder) Decode(raw []byte) (string, string) {
	if utf8.Valid(raw) {
		return string(raw), "utf-8"
	}

	if d.preferred >= 0 {
		if s, ok := tryDecode(fallbackEncodings[d.preferred].enc, raw); ok {
			return s, fallbackEncodings[d.preferred].name
		}
	}

	for i, candidate := range fallbackEncodings {
		if i == d.preferred {
			continue
		}
		if s, ok := tryDecode(candidate.enc, raw); ok {
			d.preferred = i
			return s, candidate.name
		}
	}

	return strings.ToValidUTF8(string(raw), string(utf8.RuneError)), "utf-8-lossy"
}

func tryDecode(enc encoding.Encoding, raw []byte) (string, bool) {
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", false
	}
	s := string(out)
	if strings.ContainsRune(s, utf8.RuneError) {
		return "", false
	}
	return s, true
}
