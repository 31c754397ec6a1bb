package emitter

// Validate shares Emit's AST walker but only reports: it returns Emit's
// diagnostics and discards the manifest, and it never persists an ABI
// JSON sidecar or C header, so it's safe to run on every save in an
// editor integration, not just at build time (internal/pipeline's ABI
// stage uses Emit directly so it doesn't walk the source twice).
func Validate(filename string, src []byte) ([]Diagnostic, error) {
	result, err := Emit(filename, src)
	if err != nil {
		return nil, err
	}
	return result.Diagnostics, nil
}
