package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Signature headers sent with every delivery that has a secret.
const (
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Signature-Timestamp"
)

// Sign returns "sha256=<hex>" over "<unix ts>.<body>". Binding the timestamp
// lets receivers reject replays older than their tolerance.
func Sign(secret string, ts time.Time, body []byte) string {
	return "sha256=" + hex.EncodeToString(mac(secret, strconv.FormatInt(ts.Unix(), 10), body))
}

// Verify checks a signature produced by Sign. A zero maxAge skips the age check.
func Verify(secret, timestamp string, body []byte, signature string, maxAge time.Duration, now time.Time) bool {
	sec, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if maxAge > 0 {
		if age := now.Sub(time.Unix(sec, 0)); age > maxAge || age < -maxAge {
			return false
		}
	}
	got, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return false
	}
	return hmac.Equal(mac(secret, timestamp, body), got)
}

func mac(secret, timestamp string, body []byte) []byte {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write([]byte(timestamp))
	m.Write([]byte{'.'})
	m.Write(body)
	return m.Sum(nil)
}
