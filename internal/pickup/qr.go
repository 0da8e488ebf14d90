package pickup

import (
	"github.com/cockroachdb/errors"
	qrcode "github.com/skip2/go-qrcode"
)

const DefaultQRSize = 256

// EncodeQR renders code as a PNG QR symbol of size x size pixels.
func EncodeQR(code string, size int) ([]byte, error) {
	if code == "" {
		return nil, ErrInvalidCode
	}
	if size <= 0 {
		size = DefaultQRSize
	}
	png, err := qrcode.Encode(code, qrcode.Medium, size)
	if err != nil {
		return nil, errors.Wrap(err, "encode qr")
	}
	return png, nil
}
