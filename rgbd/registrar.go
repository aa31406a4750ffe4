package rgbd

// Registrar reprojects one modality onto the other modality's pixel grid.
// Implementations must be safe for concurrent use, the session calls them
// from every reader goroutine.
type Registrar interface {
	Direction() Direction
	// Geometry returns the effective depth and color geometry given the native ones.
	Geometry(depth, color Geometry) (Geometry, Geometry)
	// AlignColor writes color samples resampled on the depth grid into dst.
	AlignColor(depth []uint16, color []byte, dst []byte) error
	// AlignDepth writes depth samples resampled on the color grid into dst.
	AlignDepth(depth []uint16, dst []uint16) error
}
