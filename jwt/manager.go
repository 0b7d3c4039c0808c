package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the JWS algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over Ed25519 keys.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with a shared HMAC-SHA256 secret.
	MethodHS256 SigningMethod = "hs256"
)

// TokenType is carried in every token so access and refresh tokens are never interchangeable.
type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
)

var (
	// ErrTokenInvalid covers bad signatures, expiry, malformed input and unknown types.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrWrongTokenType is returned when a valid token has the other type.
	ErrWrongTokenType = errors.New("token has wrong type")
)

// Config defines token lifetimes and key material.
type Config struct {
	AccessTTL           time.Duration
	RememberMeAccessTTL time.Duration
	RefreshTTL          time.Duration
	SigningMethod       SigningMethod
	PrivateKey          []byte
	PublicKey           []byte
	Issuer              string
	Audience            string
	Leeway              time.Duration
	MaxFutureIAT        time.Duration
	KeyID               string
	VerifyKeys          map[string][]byte
}

// Manager issues and verifies typed access and refresh tokens. It keeps no
// server-side token state.
type Manager struct {
	config Config
	now    func() time.Time
}

// Claims is the payload of both token types. Refresh tokens carry only the
// subject, the remember-me flag and a jti.
type Claims struct {
	Type       TokenType `json:"token_type"`
	Role       string    `json:"role,omitempty"`
	Admin      bool      `json:"admin,omitempty"`
	RememberMe bool      `json:"remember_me,omitempty"`
	Email      string    `json:"email,omitempty"`
	FirstName  string    `json:"first_name,omitempty"`
	LastName   string    `json:"last_name,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	jwt.RegisteredClaims
}

// Subject is the principal fact set embedded in an access token.
type Subject struct {
	Identifier string
	Role       string
	Admin      bool
	Email      string
	FirstName  string
	LastName   string
	Phone      string
}

// Pair is one issued access/refresh token pair.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	RefreshID        string
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RememberMeAccessTTL == 0 {
		cfg.RememberMeAccessTTL = cfg.AccessTTL
	}
	if cfg.RememberMeAccessTTL < cfg.AccessTTL {
		return nil, errors.New("remember-me access TTL must be >= access TTL")
	}
	if cfg.RefreshTTL <= cfg.RememberMeAccessTTL {
		return nil, errors.New("refresh TTL must exceed access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 requires a key of at least 32 bytes")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("ed25519 requires private key")
		}
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.VerifyKeys) == 0 && len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	return &Manager{config: cfg, now: time.Now}, nil
}

// AccessTTL returns the access lifetime for the given remember-me choice.
func (j *Manager) AccessTTL(rememberMe bool) time.Duration {
	if rememberMe {
		return j.config.RememberMeAccessTTL
	}
	return j.config.AccessTTL
}

// RefreshTTL returns the refresh token lifetime.
func (j *Manager) RefreshTTL() time.Duration {
	return j.config.RefreshTTL
}

// Issue signs a fresh access token and refresh token for s.
func (j *Manager) Issue(s Subject, rememberMe bool) (*Pair, error) {
	if strings.TrimSpace(s.Identifier) == "" {
		return nil, errors.New("empty token subject")
	}
	now := j.now()
	accessExp := now.Add(j.AccessTTL(rememberMe))
	refreshExp := now.Add(j.config.RefreshTTL)

	access := Claims{
		Type:             TypeAccess,
		Role:             s.Role,
		Admin:            s.Admin,
		RememberMe:       rememberMe,
		Email:            s.Email,
		FirstName:        s.FirstName,
		LastName:         s.LastName,
		Phone:            s.Phone,
		RegisteredClaims: j.registered(s.Identifier, now, accessExp, ""),
	}
	accessToken, err := j.sign(access)
	if err != nil {
		return nil, err
	}

	refreshID := uuid.NewString()
	refresh := Claims{
		Type:             TypeRefresh,
		RememberMe:       rememberMe,
		RegisteredClaims: j.registered(s.Identifier, now, refreshExp, refreshID),
	}
	refreshToken, err := j.sign(refresh)
	if err != nil {
		return nil, err
	}

	return &Pair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		RefreshID:        refreshID,
	}, nil
}

// Validate checks signature, expiry, issuer and audience. It does not check the type.
func (j *Manager) Validate(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.getMethod().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(j.now),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, j.keyFunc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(j.now().Add(j.config.MaxFutureIAT)) {
		return nil, fmt.Errorf("%w: iat too far in the future", ErrTokenInvalid)
	}

	return claims, nil
}

// TypeOf returns the embedded type of a valid token.
func (j *Manager) TypeOf(tokenStr string) (TokenType, error) {
	claims, err := j.Validate(tokenStr)
	if err != nil {
		return "", err
	}
	switch claims.Type {
	case TypeAccess, TypeRefresh:
		return claims.Type, nil
	default:
		return "", fmt.Errorf("%w: unknown token type", ErrTokenInvalid)
	}
}

// ValidateAccess is Validate plus a type check for access tokens.
func (j *Manager) ValidateAccess(tokenStr string) (*Claims, error) {
	return j.validateTyped(tokenStr, TypeAccess)
}

// ValidateRefresh is Validate plus a type check for refresh tokens.
func (j *Manager) ValidateRefresh(tokenStr string) (*Claims, error) {
	return j.validateTyped(tokenStr, TypeRefresh)
}

func (j *Manager) validateTyped(tokenStr string, want TokenType) (*Claims, error) {
	claims, err := j.Validate(tokenStr)
	if err != nil {
		return nil, err
	}
	switch claims.Type {
	case want:
		return claims, nil
	case TypeAccess, TypeRefresh:
		return nil, ErrWrongTokenType
	default:
		return nil, fmt.Errorf("%w: unknown token type", ErrTokenInvalid)
	}
}

func (j *Manager) registered(subject string, now, exp time.Time, id string) jwt.RegisteredClaims {
	rc := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    j.config.Issuer,
		ID:        id,
	}
	if j.config.Audience != "" {
		rc.Audience = jwt.ClaimStrings{j.config.Audience}
	}
	return rc
}

func (j *Manager) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(j.getMethod(), claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	signKey, err := j.getSignKey()
	if err != nil {
		return "", err
	}
	return token.SignedString(signKey)
}

func (j *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != j.getMethod().Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	if len(j.config.VerifyKeys) > 0 {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := j.config.VerifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return j.keyBytesToVerifyKey(key)
	}

	if j.config.KeyID != "" {
		kid, _ := t.Header["kid"].(string)
		if kid != j.config.KeyID {
			return nil, errors.New("unknown kid")
		}
	}

	return j.getVerifyKey()
}

func (j *Manager) getMethod() jwt.SigningMethod {
	switch j.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (j *Manager) getSignKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(j.config.PrivateKey)
	}
}

func (j *Manager) getVerifyKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.config.PrivateKey, nil
	default:
		if len(j.config.PublicKey) == 0 {
			priv, err := parseEdPrivateKey(j.config.PrivateKey)
			if err != nil {
				return nil, err
			}
			return priv.Public(), nil
		}
		return parseEdPublicKey(j.config.PublicKey)
	}
}

func (j *Manager) keyBytesToVerifyKey(key []byte) (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return key, nil
	default:
		return parseEdPublicKey(key)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
