package page

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"math"

	"github.com/kailas-cloud/catalogq/internal/domain"
)

const checksumLen = 4

// Codec encodes offsets into opaque, tamper-evident cursor tokens.
type Codec struct {
	secret []byte
}

// NewCodec creates a Codec keyed with secret. An empty secret still yields
// stable tokens but offers no protection against forged cursors.
func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// Encode returns the cursor for offset. Negative offsets encode as zero.
func (c *Codec) Encode(offset int) string {
	if offset < 0 {
		offset = 0
	}
	buf := binary.AppendUvarint(make([]byte, 0, binary.MaxVarintLen64+checksumLen), uint64(offset))
	buf = append(buf, c.sum(buf)...)
	return base64.RawURLEncoding.EncodeToString(buf)
}

// Decode returns the offset a cursor was built from.
// Malformed or tampered cursors yield a *domain.SpecificationError.
func (c *Codec) Decode(token string) (int, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) <= checksumLen {
		return 0, invalidCursor()
	}
	body, sum := raw[:len(raw)-checksumLen], raw[len(raw)-checksumLen:]
	if !hmac.Equal(sum, c.sum(body)) {
		return 0, invalidCursor()
	}
	offset, n := binary.Uvarint(body)
	if n != len(body) || offset > math.MaxInt {
		return 0, invalidCursor()
	}
	return int(offset), nil
}

func (c *Codec) sum(body []byte) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(body)
	return mac.Sum(nil)[:checksumLen]
}

func invalidCursor() error {
	return &domain.SpecificationError{Field: "cursor", Reason: "malformed or tampered cursor"}
}
