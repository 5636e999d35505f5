//go:build !linux && !darwin

package warm

// DetectMemory is not implemented on this platform.
func DetectMemory() (*SystemMemory, error) {
	return nil, ErrMemoryUnsupported
}
