package scene

// LightKind is the closed set of light types. The per-kind counts feed
// the shader-variant key.
type LightKind uint8

const (
	LightDirectional LightKind = iota
	LightPoint
	LightSpot
)

// Light is attached to a node and inherits its world transform:
// directional lights shine along the node's -Z axis, point and spot
// lights sit at the node's world position.
type Light struct {
	Kind      LightKind
	Color     [3]float32
	Intensity float32

	// Range limits point/spot falloff; zero means unbounded.
	Range float32
	// Angle is the spot cone half-angle in radians.
	Angle float32

	// CastShadow requests a shadow map for this light.
	CastShadow bool
}

// NewLight creates a white light of the given kind with intensity 1.
func NewLight(kind LightKind) *Light {
	return &Light{Kind: kind, Color: [3]float32{1, 1, 1}, Intensity: 1}
}
