package pase

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/backkem/weave/pkg/crypto"
	"github.com/backkem/weave/pkg/crypto/ecjpake"
	"github.com/backkem/weave/pkg/crypto/jpake"
)

// commitment is a J-PAKE group element with its Schnorr proof, in wire
// encoding.
type commitment struct {
	gx []byte
	gr []byte
	b  []byte
}

// exchange is one party's J-PAKE computation for a config.
type exchange interface {
	step1() ([2]commitment, error)
	processStep1(peer [2]commitment) error
	step2() (commitment, error)
	processStep2(peer commitment) error
	sharedSecret() []byte
	clear()
}

// suite holds everything that differs between configs.
type suite interface {
	config() ProtocolConfig
	strength() int

	// fieldSizes returns the wire sizes of gx, zkpGR and zkpB in bytes.
	// Each is a multiple of 4.
	fieldSizes() (gx, gr, b int)

	// hash is the protocol hash used for the session key salt and key
	// confirmation.
	hash(data []byte) []byte
	hashSize() int

	// context encodes the protocol context of one party.
	context(p contextParams) []byte

	newExchange(password, localContext, peerContext []byte, r io.Reader) (exchange, error)
}

var suites = []suite{
	testSuite{},
	ffSuite{},
	ecSuite{cfg: Config2, curve: crypto.SECP160R1, bits: 80},
	ecSuite{cfg: Config3, curve: crypto.Prime192V1, bits: 96},
	ecSuite{cfg: Config4, curve: crypto.SECP224R1, bits: 112},
	ecSuite{cfg: Config5, curve: crypto.Prime256V1, bits: 128},
}

func suiteFor(c ProtocolConfig) suite {
	for _, s := range suites {
		if s.config() == c {
			return s
		}
	}
	return nil
}

func roundUpToWord(n int) int {
	return (n + 3) &^ 3
}

func sha1Sum(data []byte) []byte {
	h := crypto.SHA1(data)
	return h[:]
}

func sha256Sum(data []byte) []byte {
	h := crypto.SHA256(data)
	return h[:]
}

// Config0: fixed sentinels in place of J-PAKE, SHA-256 of the password as
// the shared secret.

const testFieldSize = 16

type testSuite struct{}

func (testSuite) config() ProtocolConfig         { return Config0TestOnly }
func (testSuite) strength() int                  { return 10 }
func (testSuite) fieldSizes() (gx, gr, b int)    { return testFieldSize, testFieldSize, testFieldSize }
func (testSuite) hash(data []byte) []byte        { return sha256Sum(data) }
func (testSuite) hashSize() int                  { return crypto.SHA256LenBytes }
func (testSuite) context(p contextParams) []byte { return p.binary() }

func (testSuite) newExchange(password, localContext, peerContext []byte, r io.Reader) (exchange, error) {
	return &testExchange{password: append([]byte(nil), password...)}, nil
}

type testExchange struct {
	password []byte
	secret   []byte
}

func testCommitment(step byte) commitment {
	return commitment{
		gx: bytes.Repeat([]byte{'X' + step}, testFieldSize),
		gr: bytes.Repeat([]byte{'R' + step}, testFieldSize),
		b:  bytes.Repeat([]byte{'B' + step}, testFieldSize),
	}
}

func checkTestCommitment(c commitment, step byte) error {
	want := testCommitment(step)
	if !bytes.Equal(c.gx, want.gx) || !bytes.Equal(c.gr, want.gr) || !bytes.Equal(c.b, want.b) {
		return ErrPASEZKPVerificationFailed
	}
	return nil
}

func (x *testExchange) step1() ([2]commitment, error) {
	return [2]commitment{testCommitment(0), testCommitment(1)}, nil
}

func (x *testExchange) processStep1(peer [2]commitment) error {
	if err := checkTestCommitment(peer[0], 0); err != nil {
		return err
	}
	return checkTestCommitment(peer[1], 1)
}

func (x *testExchange) step2() (commitment, error) {
	return testCommitment(2), nil
}

func (x *testExchange) processStep2(peer commitment) error {
	if err := checkTestCommitment(peer, 2); err != nil {
		return err
	}
	x.secret = sha256Sum(x.password)
	return nil
}

func (x *testExchange) sharedSecret() []byte {
	return x.secret
}

func (x *testExchange) clear() {
	crypto.ClearSecretData(x.password)
	crypto.ClearSecretData(x.secret)
	x.password, x.secret = nil, nil
}

// Config1: finite-field J-PAKE.

type ffSuite struct{}

func (ffSuite) config() ProtocolConfig         { return Config1 }
func (ffSuite) strength() int                  { return 80 }
func (ffSuite) fieldSizes() (gx, gr, b int)    { return jpake.ElementSize, jpake.ElementSize, jpake.ElementSize }
func (ffSuite) hash(data []byte) []byte        { return sha1Sum(data) }
func (ffSuite) hashSize() int                  { return crypto.SHA1LenBytes }
func (ffSuite) context(p contextParams) []byte { return p.ascii() }

func (ffSuite) newExchange(password, localContext, peerContext []byte, r io.Reader) (exchange, error) {
	j, err := jpake.New(password, localContext, peerContext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if r != nil {
		j.SetRandom(r)
	}
	return &ffExchange{j: j}, nil
}

type ffExchange struct {
	j *jpake.JPAKE
}

func fromJPAKE(c jpake.Commitment) commitment {
	return commitment{gx: c.X, gr: c.V, b: c.R}
}

func toJPAKE(c commitment) jpake.Commitment {
	return jpake.Commitment{X: c.gx, V: c.gr, R: c.b}
}

func mapJPAKEError(err error) error {
	if errors.Is(err, jpake.ErrZKPVerifyFailed) || errors.Is(err, jpake.ErrInvalidCommitment) {
		return fmt.Errorf("%w: %v", ErrPASEZKPVerificationFailed, err)
	}
	return err
}

func (x *ffExchange) step1() ([2]commitment, error) {
	s, err := x.j.GenerateStep1()
	if err != nil {
		return [2]commitment{}, err
	}
	return [2]commitment{fromJPAKE(s.X1), fromJPAKE(s.X2)}, nil
}

func (x *ffExchange) processStep1(peer [2]commitment) error {
	return mapJPAKEError(x.j.ProcessStep1(jpake.Step1{X1: toJPAKE(peer[0]), X2: toJPAKE(peer[1])}))
}

func (x *ffExchange) step2() (commitment, error) {
	s, err := x.j.GenerateStep2()
	if err != nil {
		return commitment{}, err
	}
	return fromJPAKE(s), nil
}

func (x *ffExchange) processStep2(peer commitment) error {
	return mapJPAKEError(x.j.ProcessStep2(toJPAKE(peer)))
}

func (x *ffExchange) sharedSecret() []byte {
	return x.j.SharedSecret()
}

func (x *ffExchange) clear() {
	x.j.Clear()
}

// Config2-5: EC J-PAKE. Points travel as x | y without the format byte and
// scalars are left-padded to a word boundary.

type ecSuite struct {
	cfg   ProtocolConfig
	curve *crypto.Curve
	bits  int
}

func (s ecSuite) config() ProtocolConfig         { return s.cfg }
func (s ecSuite) strength() int                  { return s.bits }
func (s ecSuite) hash(data []byte) []byte        { return sha256Sum(data) }
func (s ecSuite) hashSize() int                  { return crypto.SHA256LenBytes }
func (s ecSuite) context(p contextParams) []byte { return p.binary() }

func (s ecSuite) fieldSizes() (gx, gr, b int) {
	point := 2 * s.curve.FieldSize
	return point, point, roundUpToWord(s.curve.OrderSize)
}

func (s ecSuite) newExchange(password, localContext, peerContext []byte, r io.Reader) (exchange, error) {
	j, err := ecjpake.New(s.curve, password, localContext, peerContext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if r != nil {
		j.SetRandom(r)
	}
	return &ecExchange{suite: s, j: j}, nil
}

type ecExchange struct {
	suite ecSuite
	j     *ecjpake.ECJPAKE
}

func (x *ecExchange) encode(c ecjpake.Commitment) commitment {
	_, _, bSize := x.suite.fieldSizes()
	b := make([]byte, bSize)
	copy(b[bSize-len(c.R):], c.R)
	return commitment{gx: c.X[1:], gr: c.V[1:], b: b}
}

func (x *ecExchange) decode(c commitment) (ecjpake.Commitment, error) {
	pad := len(c.b) - x.suite.curve.OrderSize
	if pad < 0 || !crypto.IsZero(c.b[:pad]) {
		return ecjpake.Commitment{}, fmt.Errorf("%w: zkp scalar out of range", ErrInvalidMessage)
	}
	return ecjpake.Commitment{
		X: append([]byte{0x04}, c.gx...),
		V: append([]byte{0x04}, c.gr...),
		R: c.b[pad:],
	}, nil
}

func mapECJPAKEError(err error) error {
	if errors.Is(err, ecjpake.ErrZKPVerifyFailed) || errors.Is(err, ecjpake.ErrInvalidCommitment) {
		return fmt.Errorf("%w: %v", ErrPASEZKPVerificationFailed, err)
	}
	return err
}

func (x *ecExchange) step1() ([2]commitment, error) {
	s, err := x.j.GenerateStep1()
	if err != nil {
		return [2]commitment{}, err
	}
	return [2]commitment{x.encode(s.X1), x.encode(s.X2)}, nil
}

func (x *ecExchange) processStep1(peer [2]commitment) error {
	x1, err := x.decode(peer[0])
	if err != nil {
		return err
	}
	x2, err := x.decode(peer[1])
	if err != nil {
		return err
	}
	return mapECJPAKEError(x.j.ProcessStep1(ecjpake.Step1{X1: x1, X2: x2}))
}

func (x *ecExchange) step2() (commitment, error) {
	s, err := x.j.GenerateStep2()
	if err != nil {
		return commitment{}, err
	}
	return x.encode(s), nil
}

func (x *ecExchange) processStep2(peer commitment) error {
	c, err := x.decode(peer)
	if err != nil {
		return err
	}
	return mapECJPAKEError(x.j.ProcessStep2(c))
}

func (x *ecExchange) sharedSecret() []byte {
	return x.j.SharedSecret()
}

func (x *ecExchange) clear() {
	x.j.Clear()
}
