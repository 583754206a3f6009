package crypto

import (
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
)

// Errors for elliptic curve operations.
var (
	ErrInvalidPointSize    = errors.New("ec: invalid encoded point size")
	ErrInvalidPointFormat  = errors.New("ec: point must be in uncompressed format (0x04 prefix)")
	ErrPointNotOnCurve     = errors.New("ec: point is not on the curve")
	ErrInvalidScalar       = errors.New("ec: invalid scalar")
	ErrSharedSecretAtInfty = errors.New("ec: shared secret is the point at infinity")
)

// Curve describes one of the named curves used by the Weave engines.
//
// secp160r1 and prime192v1 are not provided by the standard library; they are
// defined here through elliptic.CurveParams, whose generic arithmetic assumes
// a = -3 (true for both curves).
type Curve struct {
	// Name is the SEC/X9.62 curve name.
	Name string

	// FieldSize is the size of one coordinate in bytes.
	FieldSize int

	// OrderSize is the size of the group order in bytes.
	OrderSize int

	curve elliptic.Curve
}

// Named curves.
var (
	SECP160R1  = newCurveParams("secp160r1", 160, secp160r1Params)
	Prime192V1 = newCurveParams("prime192v1", 192, prime192v1Params)
	SECP224R1  = newCurve("secp224r1", elliptic.P224())
	Prime256V1 = newCurve("prime256v1", elliptic.P256())
)

var (
	secp160r1Params = [5]string{
		"ffffffffffffffffffffffffffffffff7fffffff",   // p
		"0100000000000000000001f4c8f927aed3ca752257", // n
		"1c97befc54bd7a8b65acf89f81d4d4adc565fa45",   // b
		"4a96b5688ef573284664698968c38bb913cbfc82",   // Gx
		"23a628553168947d59dcc912042351377ac5fb32",   // Gy
	}
	prime192v1Params = [5]string{
		"fffffffffffffffffffffffffffffffeffffffffffffffff",
		"ffffffffffffffffffffffff99def836146bc9b1b4d22831",
		"64210519e59c80e70fa7e9ab72243049feb8deecc146b9b1",
		"188da80eb03090f67cbf20eb43a18800f4ff0afd82ff1012",
		"07192b95ffc8da78631011ed6b24cdd573f977a11e794811",
	}
)

func newCurveParams(name string, bits int, hexParams [5]string) *Curve {
	params := &elliptic.CurveParams{
		P:       mustHexInt(hexParams[0]),
		N:       mustHexInt(hexParams[1]),
		B:       mustHexInt(hexParams[2]),
		Gx:      mustHexInt(hexParams[3]),
		Gy:      mustHexInt(hexParams[4]),
		BitSize: bits,
		Name:    name,
	}
	return newCurve(name, params)
}

func newCurve(name string, c elliptic.Curve) *Curve {
	params := c.Params()
	return &Curve{
		Name:      name,
		FieldSize: (params.P.BitLen() + 7) / 8,
		OrderSize: (params.N.BitLen() + 7) / 8,
		curve:     c,
	}
}

func mustHexInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("crypto: bad curve constant " + s)
	}
	return v
}

// Elliptic returns the underlying elliptic.Curve.
func (c *Curve) Elliptic() elliptic.Curve {
	return c.curve
}

// Params returns the curve domain parameters.
func (c *Curve) Params() *elliptic.CurveParams {
	return c.curve.Params()
}

// PointSize returns the size of an uncompressed X9.62 point (0x04 || X || Y).
func (c *Curve) PointSize() int {
	return 1 + 2*c.FieldSize
}

// String returns the curve name.
func (c *Curve) String() string {
	return c.Name
}

// EncodePoint returns the uncompressed X9.62 encoding of (x, y).
func (c *Curve) EncodePoint(x, y *big.Int) []byte {
	out := make([]byte, c.PointSize())
	out[0] = 0x04
	x.FillBytes(out[1 : 1+c.FieldSize])
	y.FillBytes(out[1+c.FieldSize:])
	return out
}

// DecodePoint parses an uncompressed X9.62 point and checks it is on the curve.
// The point at infinity is rejected.
func (c *Curve) DecodePoint(data []byte) (x, y *big.Int, err error) {
	if len(data) != c.PointSize() {
		return nil, nil, ErrInvalidPointSize
	}
	if data[0] != 0x04 {
		return nil, nil, ErrInvalidPointFormat
	}
	x = new(big.Int).SetBytes(data[1 : 1+c.FieldSize])
	y = new(big.Int).SetBytes(data[1+c.FieldSize:])
	if x.Sign() == 0 && y.Sign() == 0 {
		return nil, nil, ErrPointNotOnCurve
	}
	if !c.curve.IsOnCurve(x, y) {
		return nil, nil, ErrPointNotOnCurve
	}
	return x, y, nil
}

// GenerateScalar returns a uniformly random scalar in [1, n-1].
func (c *Curve) GenerateScalar(r io.Reader) (*big.Int, error) {
	if r == nil {
		r = rand.Reader
	}
	nMinusOne := new(big.Int).Sub(c.Params().N, big.NewInt(1))
	k, err := rand.Int(r, nMinusOne)
	if err != nil {
		return nil, err
	}
	return k.Add(k, big.NewInt(1)), nil
}

// ECDHKeyPair is an ephemeral key pair used for ECDH key agreement.
type ECDHKeyPair struct {
	curve   *Curve
	private *big.Int
	public  []byte
}

// GenerateECDHKeyPair generates an ephemeral ECDH key pair on the given curve.
func GenerateECDHKeyPair(c *Curve, r io.Reader) (*ECDHKeyPair, error) {
	d, err := c.GenerateScalar(r)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ECDH key: %w", err)
	}
	x, y := c.curve.ScalarBaseMult(d.Bytes())
	return &ECDHKeyPair{
		curve:   c,
		private: d,
		public:  c.EncodePoint(x, y),
	}, nil
}

// Curve returns the key pair's curve.
func (kp *ECDHKeyPair) Curve() *Curve {
	return kp.curve
}

// PublicKey returns the uncompressed public key.
func (kp *ECDHKeyPair) PublicKey() []byte {
	return kp.public
}

// SharedSecret computes the ECDH shared secret with a peer's public key.
// The secret is the x-coordinate of the shared point, FieldSize bytes long.
func (kp *ECDHKeyPair) SharedSecret(peerPublicKey []byte) ([]byte, error) {
	if kp.private == nil {
		return nil, ErrInvalidScalar
	}
	px, py, err := kp.curve.DecodePoint(peerPublicKey)
	if err != nil {
		return nil, err
	}
	sx, sy := kp.curve.curve.ScalarMult(px, py, kp.private.Bytes())
	if sx.Sign() == 0 && sy.Sign() == 0 {
		return nil, ErrSharedSecretAtInfty
	}
	secret := make([]byte, kp.curve.FieldSize)
	sx.FillBytes(secret)
	return secret, nil
}

// Clear zeroes the private scalar. The key pair is unusable afterwards.
func (kp *ECDHKeyPair) Clear() {
	if kp == nil {
		return
	}
	ClearScalar(kp.private)
	kp.private = nil
}

// ClearScalar zeroes the words backing a big.Int.
func ClearScalar(k *big.Int) {
	if k == nil {
		return
	}
	words := k.Bits()
	for i := range words {
		words[i] = 0
	}
	k.SetInt64(0)
}
