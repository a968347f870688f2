package core

// Position is a grid point on the island. Coordinates are integral and
// zero-based.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// ChebyshevDistance returns max(|dx|, |dy|) between two grid points. A
// diagonal step costs the same as an axis-aligned one, so a transmitter of
// power p reaches every point in the (2p+1)x(2p+1) square centred on it.
func ChebyshevDistance(a, b Position) int {
	dx := abs(a.X - b.X)
	dy := abs(a.Y - b.Y)
	if dx > dy {
		return dx
	}
	return dy
}

// Island is the bounding box all towers must sit inside.
type Island struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Contains reports whether p lies within the island (0 <= x < W, 0 <= y < H).
func (i Island) Contains(p Position) bool {
	return p.X >= 0 && p.X < i.Width && p.Y >= 0 && p.Y < i.Height
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
