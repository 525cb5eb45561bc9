package csvimport

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

const utf8BOM = "\ufeff"

type textDecoder struct {
	name   string
	decode func([]byte) ([]byte, error)
}

// decoders are tried in order until one produces parseable CSV. Input with
// bytes in 0x80-0x9F falls through Latin-1 to Windows-1252.
var decoders = []textDecoder{
	{name: "utf-8", decode: decodeUTF8},
	{name: "utf-8-bom", decode: decodeUTF8BOM},
	{name: "latin-1", decode: decodeLatin1},
	{name: "cp1252", decode: charmapDecoder(charmap.Windows1252)},
}

// charmapDecoder builds a fresh decoder per call; x/text decoders carry state.
func charmapDecoder(cm *charmap.Charmap) func([]byte) ([]byte, error) {
	return func(data []byte) ([]byte, error) {
		return cm.NewDecoder().Bytes(data)
	}
}

var (
	errInvalidUTF8 = errors.New("invalid utf-8")
	errC1Control   = errors.New("c1 control byte")
)

func decodeUTF8(data []byte) ([]byte, error) {
	if bytes.HasPrefix(data, []byte(utf8BOM)) || !utf8.Valid(data) {
		return nil, errInvalidUTF8
	}
	return data, nil
}

func decodeUTF8BOM(data []byte) ([]byte, error) {
	rest, ok := bytes.CutPrefix(data, []byte(utf8BOM))
	if !ok || !utf8.Valid(rest) {
		return nil, errInvalidUTF8
	}
	return rest, nil
}

// decodeLatin1 rejects C1 control bytes. Exports never contain them as
// Latin-1, but Windows-1252 uses that range for quotes, dashes and the euro.
func decodeLatin1(data []byte) ([]byte, error) {
	for i, b := range data {
		if b >= 0x80 && b <= 0x9f {
			return nil, fmt.Errorf("%w 0x%02x at offset %d", errC1Control, b, i)
		}
	}
	return charmapDecoder(charmap.ISO8859_1)(data)
}

// Decode reads a CSV export, detecting its text encoding. It returns the
// parsed table and the name of the encoding that worked.
func Decode(data []byte) (*Table, string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, "", &FormatError{Err: ErrEmptyInput}
	}

	var lastErr error
	for _, d := range decoders {
		text, err := d.decode(data)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", d.name, err)
			continue
		}

		records, err := readRecords(text)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", d.name, err)
			continue
		}
		if len(records) == 0 {
			return nil, "", &FormatError{Err: ErrEmptyInput}
		}
		return NewTable(records[0], records[1:]), d.name, nil
	}

	return nil, "", &FormatError{Err: fmt.Errorf("%w: %w", ErrUndecodable, lastErr)}
}

func readRecords(text []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(text))
	r.FieldsPerRecord = -1
	return r.ReadAll()
}
