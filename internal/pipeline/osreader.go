package pipeline

import "os"

// OSReader is bundler.FileReader backed by the real filesystem, the
// reader a `wasmsvc build` invocation supplies (tests and single-file
// builds use bundler.MapReader instead).
type OSReader struct{}

func (OSReader) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
