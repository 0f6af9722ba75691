// Package imgx 提供卡图的出血裁切与代理响应体解码。
package imgx

import (
	"bytes"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math"

	_ "image/gif" // 注册 GIF 解码器

	_ "golang.org/x/image/bmp"  // 注册 BMP 解码器（少数上游图床会给 BMP）
	_ "golang.org/x/image/webp" // 注册 WebP 解码器

	"cardpress/internal/domain"
)

// Cropped 是裁切产物：字节 + 真实物理尺寸（mm）。
//
// WidthMM/HeightMM 由裁切后的像素数反推得出。像素取整会让真实 mm 尺寸
// 产生亚像素级偏移，渲染方必须使用这里返回的尺寸而不是自行重算，
// 否则多页累计后会漂移。
type Cropped struct {
	Data     []byte
	WidthMM  float64
	HeightMM float64
}

// CropBleed 把自带 bleedMM 出血的源图裁（或留）到 outputBleedMM 出血。
//
// 约定：源图像素代表 (cardW + 2*bleed) × (cardH + 2*bleed) mm 的物理面积。
// effectiveCrop = bleed − outputBleed：
//   - ≥ 0：按比例换算成像素后从四边各裁掉该值
//   - < 0：不补画布。返回的 mm 尺寸小于目标单元格，由渲染方居中摆放，
//     缺口由页面背景自然填充
//
// mirror 表示水平翻转（裁切之后执行）。是否翻转由调用方决定：
// 背面页只镜像"位置"时不翻转；需要镜像像素内容的工作流才传 true。
//
// 当既不需要动像素也不需要翻转时，源字节原样透传（避免二次有损编码）。
func CropBleed(src []byte, bleedMM, cardW, cardH, outputBleedMM float64, mirror bool) (Cropped, error) {
	physW := cardW + 2*bleedMM
	physH := cardH + 2*bleedMM
	if physW <= 0 || physH <= 0 {
		return Cropped{}, domain.Errorf(domain.ErrCodeInvalidGeometry,
			"源图物理尺寸非法：%.2f×%.2f mm", physW, physH)
	}

	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return Cropped{}, domain.E(domain.ErrCodeImageDecode, err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return Cropped{}, domain.Errorf(domain.ErrCodeImageDecode, "图片像素尺寸无效")
	}

	pxPerMMX := float64(b.Dx()) / physW
	pxPerMMY := float64(b.Dy()) / physH

	eff := bleedMM - outputBleedMM
	if eff <= 0 {
		// 出血不足：不裁、不补。真实尺寸就是源图物理尺寸。
		out := Cropped{Data: src, WidthMM: physW, HeightMM: physH}
		if !mirror && embeddable(src) {
			return out, nil
		}
		final := img
		if mirror {
			final = flipHorizontal(img)
		}
		data, err := encodeLike(src, final)
		if err != nil {
			return Cropped{}, err
		}
		out.Data = data
		return out, nil
	}

	cropX := int(math.Round(eff * pxPerMMX))
	cropY := int(math.Round(eff * pxPerMMY))
	newW := b.Dx() - 2*cropX
	newH := b.Dy() - 2*cropY
	if newW <= 0 || newH <= 0 {
		return Cropped{}, domain.Errorf(domain.ErrCodeInvalidGeometry,
			"裁切后尺寸退化：%d×%d px（裁 %d/%d px）", newW, newH, cropX, cropY)
	}

	srcRect := image.Rect(b.Min.X+cropX, b.Min.Y+cropY, b.Max.X-cropX, b.Max.Y-cropY)
	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.Draw(dst, dst.Bounds(), img, srcRect.Min, draw.Src)

	var final image.Image = dst
	if mirror {
		final = flipHorizontal(dst)
	}

	data, err := encodeLike(src, final)
	if err != nil {
		return Cropped{}, err
	}
	return Cropped{
		Data:     data,
		WidthMM:  float64(newW) / pxPerMMX,
		HeightMM: float64(newH) / pxPerMMY,
	}, nil
}

// embeddable 判断字节是否已是文档编码器可直接嵌入的格式（JPEG/PNG/GIF）。
// WebP/BMP 等解码器认得但嵌不进去的格式必须转码。
func embeddable(src []byte) bool {
	switch SniffMIME(src) {
	case MIMEJPEG, MIMEPNG, MIMEGIF:
		return true
	}
	return false
}

// flipHorizontal 返回水平镜像后的副本。
func flipHorizontal(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			dst.Set(b.Dx()-1-x, y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

// encodeLike 依据源字节的格式选择输出编码：
// JPEG 源继续用 JPEG（质量 95，体积与质量均衡），其余（PNG/WebP/GIF/BMP）
// 统一落成 PNG，保住可能存在的透明通道。
func encodeLike(src []byte, img image.Image) ([]byte, error) {
	var out bytes.Buffer
	if SniffMIME(src) == MIMEJPEG {
		if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: 95}); err != nil {
			return nil, domain.E(domain.ErrCodeImageDecode, err)
		}
		return out.Bytes(), nil
	}
	if err := png.Encode(&out, img); err != nil {
		return nil, domain.E(domain.ErrCodeImageDecode, err)
	}
	return out.Bytes(), nil
}
