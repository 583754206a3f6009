// Package ecjpake implements the two-round elliptic curve J-PAKE
// password-authenticated key exchange with Schnorr zero-knowledge proofs.
//
// Both parties run the same code; the only asymmetry is the pair of signer
// identities each side binds into its proofs.
//
// Protocol flow:
//
//	Party A                               Party B
//	-------                               -------
//	New(curve, s, idA, idB)               New(curve, s, idB, idA)
//	s1 = GenerateStep1() ----s1---->      ProcessStep1(s1)
//	ProcessStep1(t1)     <---t1-----      t1 = GenerateStep1()
//	s2 = GenerateStep2() ----s2---->      ProcessStep2(s2)
//	ProcessStep2(t2)     <---t2-----      t2 = GenerateStep2()
//	K = SharedSecret()                    K = SharedSecret()
//
// Step 1 carries two commitments (X1 = x1*G, X2 = x2*G) with proofs of
// knowledge. Step 2 carries A = (X1 + X3 + X4) * (x2*s) with a proof over
// that combined generator. The shared secret is the x-coordinate of
// (B - X4*(x2*s)) * x2.
package ecjpake

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"math/big"

	"github.com/backkem/weave/pkg/crypto"
)

// Errors
var (
	ErrInvalidState       = errors.New("ecjpake: invalid protocol state for this operation")
	ErrInvalidSecret      = errors.New("ecjpake: secret reduces to zero")
	ErrInvalidCommitment  = errors.New("ecjpake: malformed commitment")
	ErrZKPVerifyFailed    = errors.New("ecjpake: zero-knowledge proof verification failed")
	ErrInvalidGenerator   = errors.New("ecjpake: combined generator is the point at infinity")
	ErrSharedSecretAtInft = errors.New("ecjpake: shared secret is the point at infinity")
)

// Commitment is a public group element together with a Schnorr proof of
// knowledge of its discrete logarithm.
//
// X and V are uncompressed X9.62 points; R is a big-endian scalar of the
// curve's order size.
type Commitment struct {
	X []byte
	V []byte
	R []byte
}

// Step1 is the first-round message.
type Step1 struct {
	X1 Commitment
	X2 Commitment
}

// Step2 is the second-round message.
type Step2 = Commitment

type point struct {
	x, y *big.Int
}

// ECJPAKE holds one party's state for a single exchange.
type ECJPAKE struct {
	curve   *crypto.Curve
	localID []byte
	peerID  []byte

	s  *big.Int
	x1 *big.Int
	x2 *big.Int

	localX1 *point
	localX2 *point
	peerX1  *point
	peerX2  *point
	peerB   *point

	secret []byte

	step1Generated bool
	step1Processed bool
	step2Generated bool
	step2Processed bool
	cleared        bool

	rand io.Reader
}

// New creates an EC J-PAKE context over the given curve.
//
// secret is the shared low-entropy password; it is interpreted as a
// big-endian integer and reduced modulo the group order.
func New(curve *crypto.Curve, secret, localID, peerID []byte) (*ECJPAKE, error) {
	s := new(big.Int).SetBytes(secret)
	s.Mod(s, curve.Params().N)
	if s.Sign() == 0 {
		return nil, ErrInvalidSecret
	}
	return &ECJPAKE{
		curve:   curve,
		localID: append([]byte{}, localID...),
		peerID:  append([]byte{}, peerID...),
		s:       s,
		rand:    rand.Reader,
	}, nil
}

// SetRandom replaces the random source. Intended for tests.
func (j *ECJPAKE) SetRandom(r io.Reader) {
	j.rand = r
}

// Curve returns the curve the exchange runs over.
func (j *ECJPAKE) Curve() *crypto.Curve {
	return j.curve
}

// GenerateStep1 creates this party's two first-round commitments.
func (j *ECJPAKE) GenerateStep1() (Step1, error) {
	if j.cleared || j.step1Generated {
		return Step1{}, ErrInvalidState
	}

	var err error
	if j.x1, err = j.curve.GenerateScalar(j.rand); err != nil {
		return Step1{}, err
	}
	if j.x2, err = j.curve.GenerateScalar(j.rand); err != nil {
		return Step1{}, err
	}

	g := j.generator()
	j.localX1 = j.mul(g, j.x1)
	j.localX2 = j.mul(g, j.x2)

	c1, err := j.prove(g, j.x1, j.localX1)
	if err != nil {
		return Step1{}, err
	}
	c2, err := j.prove(g, j.x2, j.localX2)
	if err != nil {
		return Step1{}, err
	}

	j.step1Generated = true
	return Step1{X1: c1, X2: c2}, nil
}

// ProcessStep1 verifies the peer's first-round commitments.
func (j *ECJPAKE) ProcessStep1(peer Step1) error {
	if j.cleared || j.step1Processed {
		return ErrInvalidState
	}

	g := j.generator()
	x1, err := j.verify(g, peer.X1)
	if err != nil {
		return err
	}
	x2, err := j.verify(g, peer.X2)
	if err != nil {
		return err
	}
	j.peerX1, j.peerX2 = x1, x2
	j.step1Processed = true
	return nil
}

// GenerateStep2 creates A = (X1 + X3 + X4) * (x2*s) with its proof.
// Both first-round messages must have been exchanged.
func (j *ECJPAKE) GenerateStep2() (Step2, error) {
	if !j.roundOneComplete() || j.step2Generated {
		return Step2{}, ErrInvalidState
	}

	gen, err := j.add3(j.localX1, j.peerX1, j.peerX2)
	if err != nil {
		return Step2{}, err
	}
	x2s := j.x2s()
	defer crypto.ClearScalar(x2s)

	a := j.mul(gen, x2s)
	c, err := j.prove(gen, x2s, a)
	if err != nil {
		return Step2{}, err
	}
	j.step2Generated = true
	return c, nil
}

// ProcessStep2 verifies the peer's second-round value and computes the
// shared secret.
func (j *ECJPAKE) ProcessStep2(peer Step2) error {
	if !j.roundOneComplete() || j.step2Processed {
		return ErrInvalidState
	}

	gen, err := j.add3(j.peerX1, j.localX1, j.localX2)
	if err != nil {
		return err
	}
	b, err := j.verify(gen, peer)
	if err != nil {
		return err
	}
	j.peerB = b
	j.step2Processed = true
	return j.computeSecret()
}

// SharedSecret returns the raw shared secret, or nil if the exchange has
// not completed.
func (j *ECJPAKE) SharedSecret() []byte {
	if j.secret == nil {
		return nil
	}
	return append([]byte{}, j.secret...)
}

// Clear zeroes all secret state. The context is unusable afterwards.
func (j *ECJPAKE) Clear() {
	crypto.ClearScalar(j.s)
	crypto.ClearScalar(j.x1)
	crypto.ClearScalar(j.x2)
	crypto.ClearSecretData(j.secret)
	j.s, j.x1, j.x2, j.secret = nil, nil, nil, nil
	j.cleared = true
}

func (j *ECJPAKE) roundOneComplete() bool {
	return !j.cleared && j.step1Generated && j.step1Processed
}

func (j *ECJPAKE) x2s() *big.Int {
	k := new(big.Int).Mul(j.x2, j.s)
	return k.Mod(k, j.curve.Params().N)
}

// computeSecret derives K = (B - X4*(x2*s)) * x2.
func (j *ECJPAKE) computeSecret() error {
	x2s := j.x2s()
	defer crypto.ClearScalar(x2s)

	t := j.mul(j.peerX2, x2s)
	t.y.Sub(j.curve.Params().P, t.y)
	kx, ky := j.curve.Elliptic().Add(j.peerB.x, j.peerB.y, t.x, t.y)
	kx, ky = j.curve.Elliptic().ScalarMult(kx, ky, j.x2.Bytes())
	if kx.Sign() == 0 && ky.Sign() == 0 {
		return ErrSharedSecretAtInft
	}
	j.secret = make([]byte, j.curve.FieldSize)
	kx.FillBytes(j.secret)
	return nil
}

func (j *ECJPAKE) generator() *point {
	p := j.curve.Params()
	return &point{x: p.Gx, y: p.Gy}
}

func (j *ECJPAKE) mul(p *point, k *big.Int) *point {
	x, y := j.curve.Elliptic().ScalarMult(p.x, p.y, k.Bytes())
	return &point{x: x, y: y}
}

func (j *ECJPAKE) add3(a, b, c *point) (*point, error) {
	e := j.curve.Elliptic()
	x, y := e.Add(a.x, a.y, b.x, b.y)
	x, y = e.Add(x, y, c.x, c.y)
	if x.Sign() == 0 && y.Sign() == 0 {
		return nil, ErrInvalidGenerator
	}
	return &point{x: x, y: y}, nil
}

// prove creates a Schnorr proof of knowledge of x for X = x*gen:
// V = v*gen, h = H(gen, V, X, localID), r = v - x*h mod n.
func (j *ECJPAKE) prove(gen *point, x *big.Int, X *point) (Commitment, error) {
	v, err := j.curve.GenerateScalar(j.rand)
	if err != nil {
		return Commitment{}, err
	}
	defer crypto.ClearScalar(v)

	V := j.mul(gen, v)
	h := j.challenge(gen, V, X, j.localID)

	n := j.curve.Params().N
	r := new(big.Int).Mul(x, h)
	r.Sub(v, r)
	r.Mod(r, n)

	rb := make([]byte, j.curve.OrderSize)
	r.FillBytes(rb)
	return Commitment{
		X: j.curve.EncodePoint(X.x, X.y),
		V: j.curve.EncodePoint(V.x, V.y),
		R: rb,
	}, nil
}

// verify checks V == r*gen + h*X and returns the decoded X.
func (j *ECJPAKE) verify(gen *point, c Commitment) (*point, error) {
	xx, xy, err := j.curve.DecodePoint(c.X)
	if err != nil {
		return nil, ErrInvalidCommitment
	}
	vx, vy, err := j.curve.DecodePoint(c.V)
	if err != nil {
		return nil, ErrInvalidCommitment
	}
	if len(c.R) != j.curve.OrderSize {
		return nil, ErrInvalidCommitment
	}
	r := new(big.Int).SetBytes(c.R)
	n := j.curve.Params().N
	if r.Cmp(n) >= 0 {
		return nil, ErrInvalidCommitment
	}

	X := &point{x: xx, y: xy}
	V := &point{x: vx, y: vy}
	h := j.challenge(gen, V, X, j.peerID)

	e := j.curve.Elliptic()
	var ax, ay *big.Int
	if r.Sign() == 0 {
		ax, ay = new(big.Int), new(big.Int)
	} else {
		ax, ay = e.ScalarMult(gen.x, gen.y, r.Bytes())
	}
	bx, by := e.ScalarMult(X.x, X.y, h.Bytes())
	cx, cy := e.Add(ax, ay, bx, by)
	if cx.Cmp(V.x) != 0 || cy.Cmp(V.y) != 0 {
		return nil, ErrZKPVerifyFailed
	}
	return X, nil
}

// challenge computes h = SHA256(len||G || len||V || len||X || len||id) mod n,
// with 4-byte big-endian length prefixes.
func (j *ECJPAKE) challenge(gen, V, X *point, id []byte) *big.Int {
	hash := crypto.NewSHA256()
	writeWithLen(hash, j.curve.EncodePoint(gen.x, gen.y))
	writeWithLen(hash, j.curve.EncodePoint(V.x, V.y))
	writeWithLen(hash, j.curve.EncodePoint(X.x, X.y))
	writeWithLen(hash, id)
	h := new(big.Int).SetBytes(hash.Sum(nil))
	h.Mod(h, j.curve.Params().N)
	if h.Sign() == 0 {
		h.SetInt64(1)
	}
	return h
}

func writeWithLen(w io.Writer, data []byte) {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(data)))
	w.Write(l[:])
	w.Write(data)
}
