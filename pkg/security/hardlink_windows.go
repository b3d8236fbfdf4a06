//go:build windows

package security

// CheckHardLinks is a no-op on Windows, where link counts are not exposed
// through os.FileInfo.Sys in a portable way.
func CheckHardLinks(dir string) ([]string, error) {
	return nil, nil
}
