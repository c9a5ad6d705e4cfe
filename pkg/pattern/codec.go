package pattern

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/james-see/polydrum/pkg/errkind"
)

// Decode reads generator JSON and returns the built, sanitized pattern.
func Decode(r io.Reader) (*Pattern, error) {
	var raw RawPattern
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errkind.GenerationData(
			fmt.Sprintf("failed to decode pattern: %v", err),
			"The pattern is not valid JSON.",
		)
	}
	return Build(raw)
}

// DecodeFile reads a pattern JSON file.
func DecodeFile(path string) (*Pattern, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pattern: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Encode writes p as indented JSON.
func Encode(w io.Writer, p *Pattern) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}
