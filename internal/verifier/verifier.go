package verifier

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aman-churiwal/x402-gateway/internal/apierror"
	"github.com/aman-churiwal/x402-gateway/internal/catalog"
	"github.com/aman-churiwal/x402-gateway/internal/models"
)

// proofClaims is the wire format of a payment proof: a JWT signed by the
// trust root, carrying the subscriber, the tier bought, and the amount
// paid. The jti is the uniqueness token consumed on acceptance.
type proofClaims struct {
	Tier     string `json:"tier"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	jwt.RegisteredClaims
}

// Receipt is the result of a successful verification.
type Receipt struct {
	ProofID    string
	Subscriber string
	Tier       models.Tier
	Amount     string
	Currency   string
	ExpiresAt  time.Time
}

// Verifier validates payment proofs against the trust root and the
// replay cache. It owns the seen-set; nothing else writes to it.
type Verifier struct {
	secret  []byte
	catalog *catalog.Catalog
	seen    ReplayCache
	now     func() time.Time
}

func New(trustSecret string, cat *catalog.Catalog, seen ReplayCache) *Verifier {
	return &Verifier{
		secret:  []byte(trustSecret),
		catalog: cat,
		seen:    seen,
		now:     time.Now,
	}
}

// Verify runs the proof checks in order, first failure short-circuits:
// well-formedness, validity window, signature, replay, catalog price.
// On acceptance the uniqueness token is claimed atomically with the
// decision, so two concurrent identical proofs can never both pass.
func (v *Verifier) Verify(ctx context.Context, token string) (*Receipt, error) {
	if token == "" {
		return nil, apierror.New(apierror.ReasonMalformed, "missing payment proof")
	}

	claims, err := v.inspect(token)
	if err != nil {
		return nil, err
	}

	def, ok := v.catalog.ByName(claims.Tier)
	if !ok {
		return nil, apierror.New(apierror.ReasonMalformed, "unknown tier %q", claims.Tier)
	}

	if err := v.checkWindow(claims); err != nil {
		return nil, err
	}

	if err := v.checkSignature(token); err != nil {
		return nil, err
	}

	seen, err := v.seen.Seen(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if seen {
		return nil, apierror.New(apierror.ReasonReplayed, "proof %s already consumed", claims.ID)
	}

	if !v.catalog.PriceMatches(def.Tier, claims.Amount, claims.Currency) {
		return nil, apierror.New(apierror.ReasonPriceMismatch,
			"tier %s costs %s %s, proof pays %s %s",
			def.Tier, def.Price, def.Currency, claims.Amount, claims.Currency)
	}

	expiry := claims.ExpiresAt.Time
	claimed, err := v.seen.Claim(ctx, claims.ID, expiry)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// Lost the race against a concurrent identical proof.
		return nil, apierror.New(apierror.ReasonReplayed, "proof %s already consumed", claims.ID)
	}

	return &Receipt{
		ProofID:    claims.ID,
		Subscriber: claims.Subject,
		Tier:       def.Tier,
		Amount:     claims.Amount,
		Currency:   claims.Currency,
		ExpiresAt:  expiry,
	}, nil
}

// inspect decodes the token without verifying the signature and checks
// that every required field is present.
func (v *Verifier) inspect(token string) (*proofClaims, error) {
	var claims proofClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return nil, apierror.New(apierror.ReasonMalformed, "undecodable proof: %v", err)
	}

	switch {
	case claims.Subject == "":
		return nil, apierror.New(apierror.ReasonMalformed, "proof missing subscriber")
	case claims.ID == "":
		return nil, apierror.New(apierror.ReasonMalformed, "proof missing uniqueness token")
	case claims.Tier == "":
		return nil, apierror.New(apierror.ReasonMalformed, "proof missing tier")
	case claims.Amount == "" || claims.Currency == "":
		return nil, apierror.New(apierror.ReasonMalformed, "proof missing amount or currency")
	case claims.ExpiresAt == nil:
		return nil, apierror.New(apierror.ReasonMalformed, "proof missing expiry")
	}

	return &claims, nil
}

func (v *Verifier) checkWindow(claims *proofClaims) error {
	now := v.now()
	if now.After(claims.ExpiresAt.Time) {
		return apierror.New(apierror.ReasonExpired, "proof expired at %s", claims.ExpiresAt.Format(time.RFC3339))
	}
	if claims.NotBefore != nil && now.Before(claims.NotBefore.Time) {
		return apierror.New(apierror.ReasonExpired, "proof not valid until %s", claims.NotBefore.Format(time.RFC3339))
	}
	return nil
}

func (v *Verifier) checkSignature(token string) error {
	_, err := jwt.ParseWithClaims(token, &proofClaims{}, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) || errors.Is(err, jwt.ErrTokenNotValidYet) {
			return apierror.New(apierror.ReasonExpired, "proof outside validity window")
		}
		return apierror.New(apierror.ReasonInvalid, "proof signature rejected")
	}
	return nil
}

// SignProof mints a proof token. The checkout flow and tests use this;
// the gateway itself only verifies.
func SignProof(trustSecret, subscriber, proofID string, def models.TierDefinition, issuedAt, expiresAt time.Time) (string, error) {
	claims := proofClaims{
		Tier:     def.Tier.String(),
		Amount:   def.Price,
		Currency: def.Currency,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subscriber,
			ID:        proofID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(trustSecret))
}
