package totp

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	pqtotp "github.com/pquerna/otp/totp"
)

const (
	defaultDigits   = 6
	defaultPeriod   = 30
	defaultSkew     = 1
	defaultQRSize   = 256
	secretSizeBytes = 20
	maxSkew         = 10
)

// ErrInvalidConfig is returned by NewManager for out-of-range parameters.
var ErrInvalidConfig = errors.New("invalid totp configuration")

// Config controls code shape and the accepted clock skew.
type Config struct {
	Digits    int
	Period    int
	Algorithm string
	// Skew is the number of adjacent time steps accepted on each side.
	Skew   int
	QRSize int
}

// Setup is the enrollment material shown to a user once.
type Setup struct {
	Secret        string
	ProvisionURI  string
	QRCodePNG     []byte
	QRCodeDataURI string
}

// Manager generates secrets and validates codes. It holds no mutable state.
type Manager struct {
	config    Config
	algorithm otp.Algorithm
	now       func() time.Time
}

// NewManager applies defaults to zero fields and validates the rest.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Digits == 0 {
		cfg.Digits = defaultDigits
	}
	if cfg.Period == 0 {
		cfg.Period = defaultPeriod
	}
	if cfg.QRSize == 0 {
		cfg.QRSize = defaultQRSize
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = "SHA1"
	}
	if cfg.Digits != 6 && cfg.Digits != 8 {
		return nil, ErrInvalidConfig
	}
	if cfg.Period <= 0 || cfg.Skew < 0 || cfg.Skew > maxSkew || cfg.QRSize < 64 {
		return nil, ErrInvalidConfig
	}

	algo, err := parseAlgorithm(cfg.Algorithm)
	if err != nil {
		return nil, err
	}

	return &Manager{config: cfg, algorithm: algo, now: time.Now}, nil
}

// NewDefaultManager returns a Manager with 6 digits, 30s period, SHA1 and skew 1.
func NewDefaultManager() *Manager {
	m, _ := NewManager(Config{Skew: defaultSkew})
	return m
}

// GenerateSetup creates a fresh random secret with its otpauth URI and a PNG QR code.
// Nothing is persisted.
func (m *Manager) GenerateSetup(identifier, issuer string) (*Setup, error) {
	key, err := pqtotp.Generate(pqtotp.GenerateOpts{
		Issuer:      issuer,
		AccountName: identifier,
		Period:      uint(m.config.Period),
		SecretSize:  secretSizeBytes,
		Digits:      otp.Digits(m.config.Digits),
		Algorithm:   m.algorithm,
	})
	if err != nil {
		return nil, err
	}

	img, err := key.Image(m.config.QRSize, m.config.QRSize)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}

	return &Setup{
		Secret:        key.Secret(),
		ProvisionURI:  key.URL(),
		QRCodePNG:     buf.Bytes(),
		QRCodeDataURI: "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// Validate reports whether code matches secret at the current time, accepting
// Skew adjacent steps. Empty or malformed input is simply false.
func (m *Manager) Validate(secret, code string) bool {
	if m == nil {
		return false
	}
	return m.ValidateAt(secret, code, m.now())
}

// ValidateAt is Validate against an explicit instant.
func (m *Manager) ValidateAt(secret, code string, at time.Time) bool {
	if m == nil {
		return false
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return false
	}
	code = strings.TrimSpace(code)
	if len(code) != m.config.Digits || !isNumeric(code) {
		return false
	}

	ok, err := pqtotp.ValidateCustom(code, secret, at, m.validateOpts())
	if err != nil {
		return false
	}
	return ok
}

// CodeAt returns the expected code for secret at the given instant.
func (m *Manager) CodeAt(secret string, at time.Time) (string, error) {
	return pqtotp.GenerateCodeCustom(secret, at, m.validateOpts())
}

// Digits reports the configured code length.
func (m *Manager) Digits() int {
	return m.config.Digits
}

func (m *Manager) validateOpts() pqtotp.ValidateOpts {
	return pqtotp.ValidateOpts{
		Period:    uint(m.config.Period),
		Skew:      uint(m.config.Skew),
		Digits:    otp.Digits(m.config.Digits),
		Algorithm: m.algorithm,
	}
}

func parseAlgorithm(name string) (otp.Algorithm, error) {
	switch strings.ToUpper(name) {
	case "SHA1":
		return otp.AlgorithmSHA1, nil
	case "SHA256":
		return otp.AlgorithmSHA256, nil
	case "SHA512":
		return otp.AlgorithmSHA512, nil
	default:
		return otp.AlgorithmSHA1, ErrInvalidConfig
	}
}

func isNumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
