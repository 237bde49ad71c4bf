package captcha

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultThreshold é o corte de luminância usado pelo portal: abaixo vira preto.
// Valores diferentes aumentam bastante a taxa de erro do OCR.
const DefaultThreshold uint8 = 140

// Binarize converte para tons de cinza (luma ITU-R 601) e aplica o corte fixo.
func Binarize(img image.Image, threshold uint8) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			if g.Y < threshold {
				out.SetGray(x, y, color.Gray{Y: 0})
			} else {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

// Preprocess decodifica a imagem crua do captcha e devolve um PNG binarizado,
// pronto para o OCR.
func Preprocess(raw []byte, threshold uint8) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("erro decodificando imagem do captcha: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, Binarize(img, threshold)); err != nil {
		return nil, fmt.Errorf("erro codificando %s binarizado: %w", format, err)
	}
	return buf.Bytes(), nil
}
