package query

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// cursorPayload is the opaque structure spec.md §4.7 describes as
// {lastScore, lastId, modeFingerprint}.
type cursorPayload struct {
	LastScore   float64 `json:"lastScore"`
	LastID      string  `json:"lastId"`
	Fingerprint string  `json:"modeFingerprint"`
}

// fingerprint identifies the query shape a cursor was issued for, so a
// cursor minted against one query can't silently be replayed against a
// different one.
func fingerprint(req Request) string {
	h := sha256.New()
	fmt.Fprintf(h, "%v|%v|%v|%s|%d", req.Like, req.Where, req.Connected, req.Mode, req.MaxDepth)
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))[:16]
}

func encodeCursor(lastScore float64, lastID, fp string) (string, error) {
	payload := cursorPayload{LastScore: lastScore, LastID: lastID, Fingerprint: fp}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func decodeCursor(cursor, fp string) (cursorPayload, error) {
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return cursorPayload{}, fmt.Errorf("query: malformed cursor: %w", err)
	}
	var payload cursorPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return cursorPayload{}, fmt.Errorf("query: malformed cursor: %w", err)
	}
	if payload.Fingerprint != fp {
		return cursorPayload{}, fmt.Errorf("query: cursor was issued for a different query")
	}
	return payload, nil
}

// isAfterCursor reports whether (score, id) belongs on the page after the
// one the cursor was issued from: results are ordered by score
// descending then id ascending, so a match belongs on the next page when
// its score is strictly lower, or tied with a lexicographically greater
// id. Everything else was already returned by an earlier page and must
// be skipped.
func isAfterCursor(score float64, id string, c cursorPayload) bool {
	if score < c.LastScore {
		return true
	}
	if score == c.LastScore && id > c.LastID {
		return true
	}
	return false
}
