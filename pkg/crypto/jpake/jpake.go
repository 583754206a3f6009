// Package jpake implements two-round J-PAKE over a fixed finite-field group.
//
// The group is the 1024-bit MODP group of RFC 2409 (Oakley group 2): p is a
// safe prime, q = (p-1)/2 and g = 2 generates the order-q subgroup. Proofs
// of knowledge are Schnorr signatures hashed with SHA-1.
//
// The message flow and API mirror package ecjpake; only the group differs.
package jpake

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"math/big"

	"github.com/backkem/weave/pkg/crypto"
)

// ElementSize is the encoded size of a group element and of a scalar.
const ElementSize = 128

// Errors
var (
	ErrInvalidState      = errors.New("jpake: invalid protocol state for this operation")
	ErrInvalidSecret     = errors.New("jpake: secret reduces to zero")
	ErrInvalidCommitment = errors.New("jpake: malformed commitment")
	ErrZKPVerifyFailed   = errors.New("jpake: zero-knowledge proof verification failed")
	ErrInvalidGenerator  = errors.New("jpake: combined generator is degenerate")
)

var (
	groupP = mustHexInt("" +
		"ffffffffffffffffc90fdaa22168c234c4c6628b80dc1cd1" +
		"29024e088a67cc74020bbea63b139b22514a08798e3404dd" +
		"ef9519b3cd3a431b302b0a6df25f14374fe1356d6d51c245" +
		"e485b576625e7ec6f44c42e9a637ed6b0bff5cb6f406b7ed" +
		"ee386bfb5a899fa5ae9f24117c4b1fe649286651ece65381" +
		"ffffffffffffffff")
	groupQ = new(big.Int).Rsh(groupP, 1)
	groupG = big.NewInt(2)
	one    = big.NewInt(1)
)

func mustHexInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("jpake: bad group constant")
	}
	return v
}

// P returns the group modulus.
func P() *big.Int { return new(big.Int).Set(groupP) }

// Q returns the subgroup order.
func Q() *big.Int { return new(big.Int).Set(groupQ) }

// Commitment is a group element with a Schnorr proof of knowledge of its
// discrete logarithm. All fields are ElementSize big-endian integers.
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

// JPAKE holds one party's state for a single exchange.
type JPAKE struct {
	localID []byte
	peerID  []byte

	s  *big.Int
	x1 *big.Int
	x2 *big.Int

	localX1, localX2 *big.Int
	peerX1, peerX2   *big.Int

	secret []byte

	step1Generated bool
	step1Processed bool
	step2Generated bool
	step2Processed bool
	cleared        bool

	rand io.Reader
}

// New creates a J-PAKE context. secret is reduced modulo q.
func New(secret, localID, peerID []byte) (*JPAKE, error) {
	s := new(big.Int).SetBytes(secret)
	s.Mod(s, groupQ)
	if s.Sign() == 0 {
		return nil, ErrInvalidSecret
	}
	return &JPAKE{
		localID: append([]byte{}, localID...),
		peerID:  append([]byte{}, peerID...),
		s:       s,
		rand:    rand.Reader,
	}, nil
}

// SetRandom replaces the random source. Intended for tests.
func (j *JPAKE) SetRandom(r io.Reader) {
	j.rand = r
}

// GenerateStep1 creates this party's two first-round commitments.
func (j *JPAKE) GenerateStep1() (Step1, error) {
	if j.cleared || j.step1Generated {
		return Step1{}, ErrInvalidState
	}

	var err error
	if j.x1, err = j.randomScalar(); err != nil {
		return Step1{}, err
	}
	if j.x2, err = j.randomScalar(); err != nil {
		return Step1{}, err
	}
	j.localX1 = new(big.Int).Exp(groupG, j.x1, groupP)
	j.localX2 = new(big.Int).Exp(groupG, j.x2, groupP)

	c1, err := j.prove(groupG, j.x1, j.localX1)
	if err != nil {
		return Step1{}, err
	}
	c2, err := j.prove(groupG, j.x2, j.localX2)
	if err != nil {
		return Step1{}, err
	}
	j.step1Generated = true
	return Step1{X1: c1, X2: c2}, nil
}

// ProcessStep1 verifies the peer's first-round commitments.
func (j *JPAKE) ProcessStep1(peer Step1) error {
	if j.cleared || j.step1Processed {
		return ErrInvalidState
	}
	x1, err := j.verify(groupG, peer.X1)
	if err != nil {
		return err
	}
	x2, err := j.verify(groupG, peer.X2)
	if err != nil {
		return err
	}
	j.peerX1, j.peerX2 = x1, x2
	j.step1Processed = true
	return nil
}

// GenerateStep2 creates A = (g^x1 * g^x3 * g^x4)^(x2*s) with its proof.
func (j *JPAKE) GenerateStep2() (Step2, error) {
	if !j.roundOneComplete() || j.step2Generated {
		return Step2{}, ErrInvalidState
	}
	gen, err := mul3(j.localX1, j.peerX1, j.peerX2)
	if err != nil {
		return Step2{}, err
	}
	x2s := j.x2s()
	defer crypto.ClearScalar(x2s)

	a := new(big.Int).Exp(gen, x2s, groupP)
	c, err := j.prove(gen, x2s, a)
	if err != nil {
		return Step2{}, err
	}
	j.step2Generated = true
	return c, nil
}

// ProcessStep2 verifies the peer's second-round value and computes the
// shared secret K = (B / g^(x4*x2*s))^x2.
func (j *JPAKE) ProcessStep2(peer Step2) error {
	if !j.roundOneComplete() || j.step2Processed {
		return ErrInvalidState
	}
	gen, err := mul3(j.peerX1, j.localX1, j.localX2)
	if err != nil {
		return err
	}
	b, err := j.verify(gen, peer)
	if err != nil {
		return err
	}
	j.step2Processed = true

	x2s := j.x2s()
	defer crypto.ClearScalar(x2s)

	t := new(big.Int).Exp(j.peerX2, x2s, groupP)
	t.ModInverse(t, groupP)
	t.Mul(t, b)
	t.Mod(t, groupP)
	k := t.Exp(t, j.x2, groupP)

	j.secret = make([]byte, ElementSize)
	k.FillBytes(j.secret)
	crypto.ClearScalar(k)
	return nil
}

// SharedSecret returns the raw shared secret, or nil if the exchange has
// not completed.
func (j *JPAKE) SharedSecret() []byte {
	if j.secret == nil {
		return nil
	}
	return append([]byte{}, j.secret...)
}

// Clear zeroes all secret state. The context is unusable afterwards.
func (j *JPAKE) Clear() {
	crypto.ClearScalar(j.s)
	crypto.ClearScalar(j.x1)
	crypto.ClearScalar(j.x2)
	crypto.ClearSecretData(j.secret)
	j.s, j.x1, j.x2, j.secret = nil, nil, nil, nil
	j.cleared = true
}

func (j *JPAKE) roundOneComplete() bool {
	return !j.cleared && j.step1Generated && j.step1Processed
}

func (j *JPAKE) x2s() *big.Int {
	k := new(big.Int).Mul(j.x2, j.s)
	return k.Mod(k, groupQ)
}

// randomScalar returns a uniformly random value in [1, q-1].
func (j *JPAKE) randomScalar() (*big.Int, error) {
	k, err := rand.Int(j.rand, new(big.Int).Sub(groupQ, one))
	if err != nil {
		return nil, err
	}
	return k.Add(k, one), nil
}

func mul3(a, b, c *big.Int) (*big.Int, error) {
	g := new(big.Int).Mul(a, b)
	g.Mul(g, c)
	g.Mod(g, groupP)
	if g.Cmp(one) == 0 {
		return nil, ErrInvalidGenerator
	}
	return g, nil
}

// validElement reports whether e lies in the order-q subgroup and is not
// the identity.
func validElement(e *big.Int) bool {
	if e.Cmp(one) <= 0 || e.Cmp(new(big.Int).Sub(groupP, one)) >= 0 {
		return false
	}
	return new(big.Int).Exp(e, groupQ, groupP).Cmp(one) == 0
}

func (j *JPAKE) prove(gen, x, X *big.Int) (Commitment, error) {
	v, err := j.randomScalar()
	if err != nil {
		return Commitment{}, err
	}
	defer crypto.ClearScalar(v)

	V := new(big.Int).Exp(gen, v, groupP)
	h := challenge(gen, V, X, j.localID)

	r := new(big.Int).Mul(x, h)
	r.Sub(v, r)
	r.Mod(r, groupQ)

	return Commitment{
		X: encode(X),
		V: encode(V),
		R: encode(r),
	}, nil
}

// verify checks V == gen^r * X^h and returns X.
func (j *JPAKE) verify(gen *big.Int, c Commitment) (*big.Int, error) {
	if len(c.X) != ElementSize || len(c.V) != ElementSize || len(c.R) != ElementSize {
		return nil, ErrInvalidCommitment
	}
	X := new(big.Int).SetBytes(c.X)
	V := new(big.Int).SetBytes(c.V)
	r := new(big.Int).SetBytes(c.R)
	if !validElement(X) || !validElement(V) || r.Cmp(groupQ) >= 0 {
		return nil, ErrInvalidCommitment
	}

	h := challenge(gen, V, X, j.peerID)
	lhs := new(big.Int).Exp(gen, r, groupP)
	lhs.Mul(lhs, new(big.Int).Exp(X, h, groupP))
	lhs.Mod(lhs, groupP)
	if lhs.Cmp(V) != 0 {
		return nil, ErrZKPVerifyFailed
	}
	return X, nil
}

// challenge computes h = SHA1(len||g || len||V || len||X || len||id) mod q,
// with 4-byte big-endian length prefixes.
func challenge(gen, V, X *big.Int, id []byte) *big.Int {
	hash := crypto.NewSHA1()
	writeWithLen(hash, encode(gen))
	writeWithLen(hash, encode(V))
	writeWithLen(hash, encode(X))
	writeWithLen(hash, id)
	h := new(big.Int).SetBytes(hash.Sum(nil))
	return h.Mod(h, groupQ)
}

func encode(v *big.Int) []byte {
	out := make([]byte, ElementSize)
	v.FillBytes(out)
	return out
}

func writeWithLen(w io.Writer, data []byte) {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(data)))
	w.Write(l[:])
	w.Write(data)
}
