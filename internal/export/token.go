package export

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidToken indicates an export token that cannot identify a calendar.
var ErrInvalidToken = errors.New("invalid export token")

// Token identifies an outbound calendar: a property and optionally one of
// its rooms. It travels in the export URL as URL-safe base64 of its JSON
// form, so channel managers can store it as an opaque path segment.
type Token struct {
	PropertyID string `json:"propertyId"`
	RoomID     string `json:"roomId,omitempty"`
}

// EncodeToken builds the URL path token for a property/room calendar.
func EncodeToken(propertyID, roomID string) string {
	payload, _ := json.Marshal(Token{PropertyID: propertyID, RoomID: roomID})
	return base64.URLEncoding.EncodeToString(payload)
}

// DecodeToken parses an export URL token. Tokens that are empty, not
// base64, not JSON, or missing the property are rejected.
func DecodeToken(token string) (*Token, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		// Tolerate unpadded tokens from clients that strip '='.
		raw, err = base64.RawURLEncoding.DecodeString(token)
		if err != nil {
			return nil, fmt.Errorf("%w: not base64: %v", ErrInvalidToken, err)
		}
	}

	var t Token
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("%w: not a token payload: %v", ErrInvalidToken, err)
	}
	if t.PropertyID == "" {
		return nil, fmt.Errorf("%w: missing propertyId", ErrInvalidToken)
	}
	return &t, nil
}
