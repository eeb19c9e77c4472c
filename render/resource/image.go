package resource

import (
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/orbit/scene"
)

// TexturePixels converts any image into the tightly packed RGBA8
// layout textures upload, scaling with a bilinear filter when the
// image size differs from the requested size.
func TexturePixels(img image.Image, width, height int) []byte {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if b := img.Bounds(); b.Dx() == width && b.Dy() == height {
		xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
	} else {
		xdraw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	}
	return dst.Pix
}

// TextureFromImage builds a scene texture from an image at its native
// size.
func TextureFromImage(img image.Image) *scene.Texture {
	b := img.Bounds()
	return scene.NewTexture(b.Dx(), b.Dy(), TexturePixels(img, b.Dx(), b.Dy()))
}
