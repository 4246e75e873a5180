package format

import (
	"os"
	"path/filepath"
	"strings"

	"t81vm/internal/tisc"
)

// LoadFile dispatches on the file extension: ".json" parses the JSON v1
// object form, anything else (".t81", ".t81vm", or no extension) parses the
// line-oriented text form.
func LoadFile(path string) (tisc.Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return tisc.Program{}, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ParseJSON(f)
	}
	return ParseText(f)
}
