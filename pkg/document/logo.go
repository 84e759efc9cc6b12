package document

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// MaxLogoWidth はロゴ画像の最大幅（ピクセル）。これを超える画像は縮小する。
const MaxLogoWidth = 400

// LoadLogo はロゴ画像ファイルを読み込み、PNGに正規化して返す。
func LoadLogo(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ロゴ画像の読み込みに失敗 (%s): %w", path, err)
	}
	return NormalizeLogo(data)
}

// NormalizeLogo はPNG・JPEG・WebPの画像をPNGに変換する。
// 幅がMaxLogoWidthを超える場合は縦横比を保って縮小する。
func NormalizeLogo(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("ロゴ画像のデコードに失敗: %w", err)
	}

	bounds := src.Bounds()
	dst := src
	if bounds.Dx() > MaxLogoWidth {
		h := bounds.Dy() * MaxLogoWidth / bounds.Dx()
		if h < 1 {
			h = 1
		}
		scaled := image.NewRGBA(image.Rect(0, 0, MaxLogoWidth, h))
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), src, bounds, draw.Over, nil)
		dst = scaled
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("ロゴ画像のエンコードに失敗: %w", err)
	}
	return buf.Bytes(), nil
}
