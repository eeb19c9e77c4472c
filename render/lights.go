package render

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/orbit/scene"
)

// packLights serializes the frame's lights into the layout the
// fragment shaders index: directional lights as two vec4s (direction,
// color+intensity), point lights as two (position, color+intensity),
// spot lights as three (position, direction+cosAngle,
// color+intensity). Order matches the light list, which is traversal
// order, so the packing is stable across identical frames.
func packLights(l *Lists) []byte {
	var w byteWriter
	for _, li := range l.Lights {
		if li.Light.Kind != scene.LightDirectional {
			continue
		}
		w.vec4(li.Direction.X(), li.Direction.Y(), li.Direction.Z(), 0)
		w.vec4(li.Light.Color[0], li.Light.Color[1], li.Light.Color[2], li.Light.Intensity)
	}
	for _, li := range l.Lights {
		if li.Light.Kind != scene.LightPoint {
			continue
		}
		w.vec4(li.Position.X(), li.Position.Y(), li.Position.Z(), li.Light.Range)
		w.vec4(li.Light.Color[0], li.Light.Color[1], li.Light.Color[2], li.Light.Intensity)
	}
	for _, li := range l.Lights {
		if li.Light.Kind != scene.LightSpot {
			continue
		}
		cos := float32(math.Cos(float64(li.Light.Angle)))
		w.vec4(li.Position.X(), li.Position.Y(), li.Position.Z(), li.Light.Range)
		w.vec4(li.Direction.X(), li.Direction.Y(), li.Direction.Z(), cos)
		w.vec4(li.Light.Color[0], li.Light.Color[1], li.Light.Color[2], li.Light.Intensity)
	}
	return w.buf
}

type byteWriter struct {
	buf []byte
}

func (w *byteWriter) f32(f float32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(f))
	w.buf = append(w.buf, b[:]...)
}

func (w *byteWriter) vec4(x, y, z, a float32) {
	w.f32(x)
	w.f32(y)
	w.f32(z)
	w.f32(a)
}

func (w *byteWriter) mat4(m [16]float32) {
	for _, f := range m {
		w.f32(f)
	}
}
