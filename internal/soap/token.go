package soap

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"atd-sync/internal/model"
)

// TokenClaims is the payload of the place-order bearer token. Field order is
// the order the distributor documents.
type TokenClaims struct {
	Location   string `json:"location"`
	Name       string `json:"name"`
	Address1   string `json:"address1"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type tokenHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

// ClaimsFor builds token claims from a shipping address.
func ClaimsFor(location string, ship model.Address) TokenClaims {
	return TokenClaims{
		Location:   location,
		Name:       ship.FullName(),
		Address1:   ship.Street(),
		City:       strings.TrimSpace(ship.City),
		State:      strings.TrimSpace(ship.State),
		PostalCode: strings.TrimSpace(ship.Postcode),
		Country:    countryUS,
	}
}

// SignToken returns header.payload.signature, each segment base64url without
// padding, signed with HMAC-SHA256 over "header.payload".
func SignToken(claims TokenClaims, key string) (string, error) {
	header, err := json.Marshal(tokenHeader{Alg: "HS256", Typ: "JWT"})
	if err != nil {
		return "", fmt.Errorf("encoding token header: %w", err)
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("encoding token payload: %w", err)
	}

	signingInput := base64.RawURLEncoding.EncodeToString(header) + "." +
		base64.RawURLEncoding.EncodeToString(payload)

	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(signingInput))

	return signingInput + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}
