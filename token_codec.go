package community

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Action identifies the category of account operation a token authorizes.
// A token minted for one action is rejected by every other consumer.
type Action string

const (
	ActionConfirmAccount Action = "confirm-account"
	ActionResetPassword  Action = "reset-password"
	ActionChangeEmail    Action = "change-email"
	ActionInvite         Action = "invite"
	ActionSession        Action = "session"
)

// ActionClaims carries the subject user, the authorized action and the
// action-specific payload. Tokens embed the issue time only; age is
// evaluated against the codec's max age when the token is decoded, so a
// token string never pins an absolute expiry date.
type ActionClaims struct {
	jwt.RegisteredClaims
	Act         string `json:"act,omitempty"`
	TargetEmail string `json:"target_email,omitempty"`
	Confirmed   bool   `json:"cnf,omitempty"`
	Version     int    `json:"ver,omitempty"`
	Role        string `json:"role,omitempty"`
}

// SubjectUUID parses the subject claim into a user id
func (c *ActionClaims) SubjectUUID() (uuid.UUID, error) {
	return uuid.Parse(c.RegisteredClaims.Subject)
}

// Action returns the action claim
func (c *ActionClaims) Action() Action {
	return Action(c.Act)
}

// TokenCodec issues and decodes signed action tokens. It is a pure function
// of its signing key; the key is process configuration fixed at construction.
type TokenCodec struct {
	signingKey []byte
	maxAge     time.Duration
	issuer     string
	logger     Logger
}

// NewTokenCodec creates a codec for a class of tokens sharing a max age.
func NewTokenCodec(signingKey []byte, maxAge time.Duration, issuer string, logger Logger) *TokenCodec {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenCodec{
		signingKey: signingKey,
		maxAge:     maxAge,
		issuer:     issuer,
		logger:     logger,
	}
}

// MaxAge returns the validity window applied at decode time.
func (c *TokenCodec) MaxAge() time.Duration {
	return c.maxAge
}

// IssueOption customizes the claims of a minted token.
type IssueOption func(*ActionClaims)

// WithTargetEmail embeds the email address a change-email token will apply.
// The pending address lives only inside the token, never in storage.
func WithTargetEmail(email string) IssueOption {
	return func(claims *ActionClaims) {
		claims.TargetEmail = email
	}
}

// WithTokenVersion pins the token to the user's current token version.
// Decoders compare it against the stored version, so consuming one token of
// the class invalidates its siblings.
func WithTokenVersion(version int) IssueOption {
	return func(claims *ActionClaims) {
		claims.Version = version
	}
}

// WithConfirmedFlag records the account's confirmed state on session tokens.
func WithConfirmedFlag(confirmed bool) IssueOption {
	return func(claims *ActionClaims) {
		claims.Confirmed = confirmed
	}
}

// WithRole records the account's role on session tokens.
func WithRole(role UserRole) IssueOption {
	return func(claims *ActionClaims) {
		claims.Role = string(role)
	}
}

// WithIssuedAt overrides the issuance time. Zero uses time.Now().
func WithIssuedAt(issuedAt time.Time) IssueOption {
	return func(claims *ActionClaims) {
		claims.IssuedAt = jwt.NewNumericDate(issuedAt)
	}
}

// Issue mints a signed token authorizing action for the subject user.
// The result is URL-safe and self-contained.
func (c *TokenCodec) Issue(subject uuid.UUID, action Action, opts ...IssueOption) (string, error) {
	if subject == uuid.Nil {
		return "", errors.New("token subject is required", errors.CategoryBadInput)
	}

	claims := &ActionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   c.issuer,
			Subject:  subject.String(),
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
		Act: string(action),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(claims)
		}
	}

	ensureTokenID(&claims.RegisteredClaims)

	return c.SignClaims(claims)
}

// SignClaims signs arbitrary action claims using the configured signing key.
func (c *TokenCodec) SignClaims(claims *ActionClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(c.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign token")
	}

	return signedString, nil
}

// Decode verifies the signature, the token's age, and that the embedded
// action matches expected. It fails with ErrTokenMalformed, ErrTokenExpired,
// or ErrActionMismatch; any of them means the token must not be honored.
func (c *TokenCodec) Decode(tokenString string, expected Action) (*ActionClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 1)
	if c.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(c.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &ActionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			c.logger.Error("token codec rejected unexpected signing method: %v", t.Header["alg"])
			return nil, ErrTokenMalformed
		}
		return c.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode)
	}

	claims, ok := token.Claims.(*ActionClaims)
	if !ok || !token.Valid {
		c.logger.Error("token codec could not decode claims")
		return nil, ErrTokenMalformed
	}

	if claims.RegisteredClaims.IssuedAt == nil {
		return nil, ErrTokenMalformed
	}

	if c.maxAge > 0 && time.Since(claims.RegisteredClaims.IssuedAt.Time) > c.maxAge {
		return nil, ErrTokenExpired
	}

	if claims.Act != string(expected) {
		return nil, ErrActionMismatch
	}

	return claims, nil
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}
