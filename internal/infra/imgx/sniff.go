package imgx

import (
	"bytes"
	"encoding/base64"
	"strings"

	"cardpress/internal/domain"
)

const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
	MIMEWebP = "image/webp"
	MIMEGIF  = "image/gif"
)

// SniffMIME 通过前导魔数识别图片类型；识别不出时按历史约定回退为 JPEG。
func SniffMIME(b []byte) string {
	switch {
	case len(b) >= 8 && bytes.Equal(b[:8], []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}):
		return MIMEPNG
	case len(b) >= 12 && bytes.Equal(b[:4], []byte("RIFF")) && bytes.Equal(b[8:12], []byte("WEBP")):
		return MIMEWebP
	case len(b) >= 6 && (bytes.Equal(b[:6], []byte("GIF87a")) || bytes.Equal(b[:6], []byte("GIF89a"))):
		return MIMEGIF
	default:
		return MIMEJPEG
	}
}

// Ext 返回 MIME 对应的文件扩展名（带点）。
func Ext(mime string) string {
	switch mime {
	case MIMEPNG:
		return ".png"
	case MIMEWebP:
		return ".webp"
	case MIMEGIF:
		return ".gif"
	default:
		return ".jpg"
	}
}

// DecodeProxyBody 把代理端点的响应体还原成原始图片字节。
//
// 响应体是 base64 文本，可能带 data-URI 前缀（data:image/...;base64,）
// 和/或换行等空白，解码前全部剥掉。
func DecodeProxyBody(body []byte) ([]byte, error) {
	s := string(body)
	if strings.HasPrefix(s, "data:") {
		if i := strings.IndexByte(s, ','); i >= 0 {
			s = s[i+1:]
		}
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)

	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// 个别上游不带 padding；再按无 padding 尝试一次。
		raw, err = base64.RawStdEncoding.DecodeString(s)
		if err != nil {
			return nil, domain.E(domain.ErrCodeImageDecode, err)
		}
	}
	return raw, nil
}
