package model

import "time"

// TubePoint is a single centerline sample of a tube.
type TubePoint struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
	Radius float64 `json:"r"`
}

// Tube is one segment of a vessel graph. ParentID is -1 for tubes that are not
// attached to a parent.
type Tube struct {
	ID       int         `json:"id"`
	ParentID int         `json:"parent_id"`
	Root     bool        `json:"root"`
	Color    [4]float64  `json:"color"`
	Points   []TubePoint `json:"points"`
}

// SpatialObjectNode is a named tube graph held in the scene.
type SpatialObjectNode struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Tubes     []Tube    `json:"tubes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NumPoints returns the total number of points over all tubes.
func (n *SpatialObjectNode) NumPoints() int {
	total := 0
	for _, t := range n.Tubes {
		total += len(t.Points)
	}
	return total
}
