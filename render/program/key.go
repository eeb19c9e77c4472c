// Package program compiles and caches shader programs by variant.
//
// A variant is fully described by a Key: the material features plus
// the lighting topology and output encoding. Two materials with equal
// keys share one compiled program no matter how their colors or
// scalars differ, because those only feed uniforms.
package program

import (
	"fmt"
	"hash/fnv"

	"github.com/gogpu/orbit/scene"
)

// ToneMapping selects the output tone mapping curve.
type ToneMapping uint8

const (
	ToneMapNone ToneMapping = iota
	ToneMapReinhard
	ToneMapACES
)

// ColorSpace selects the output encoding.
type ColorSpace uint8

const (
	ColorSpaceLinear ColorSpace = iota
	ColorSpaceSRGB
)

// Key identifies one shader variant. It is comparable and used
// directly as the cache map key.
type Key struct {
	Features scene.Features

	DirLights   int
	PointLights int
	SpotLights  int
	ShadowCount int

	ToneMapping ToneMapping
	ColorSpace  ColorSpace
}

// KeyFor builds the variant key for a material under the given
// lighting topology and output settings.
func KeyFor(m *scene.Material, dir, point, spot, shadows int, tm ToneMapping, cs ColorSpace) Key {
	return Key{
		Features:    m.Features(),
		DirLights:   dir,
		PointLights: point,
		SpotLights:  spot,
		ShadowCount: shadows,
		ToneMapping: tm,
		ColorSpace:  cs,
	}
}

// Fingerprint returns a stable hash of the key for logging.
func (k Key) Fingerprint() uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%v|%d|%d|%d|%d|%d|%d",
		k.Features, k.DirLights, k.PointLights, k.SpotLights,
		k.ShadowCount, k.ToneMapping, k.ColorSpace)
	return h.Sum64()
}
