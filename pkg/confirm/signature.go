package confirm

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/nodebridge/nodebridge/pkg/protocol"
)

// Signer computes command signatures: an HMAC-SHA256 over the canonical
// form of (type, params) under a server-side secret. HMAC keeps signatures
// unforgeable by clients even though they travel back over the wire inside
// confirmation tokens.
type Signer struct {
	secret []byte
}

// NewSigner creates a signer with a fresh random secret. Signatures are
// only compared within one server process, so the secret never needs to be
// shared or persisted.
func NewSigner() *Signer {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		// rand.Read failing means the platform RNG is broken; signatures
		// would be forgeable, so refuse to continue.
		panic(fmt.Sprintf("confirm: crypto/rand unavailable: %v", err))
	}
	return &Signer{secret: secret}
}

// NewSignerWithSecret creates a signer with a caller-provided secret,
// for tests that need stable signatures.
func NewSignerWithSecret(secret []byte) (*Signer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("signer secret must be at least 32 bytes")
	}
	return &Signer{secret: secret}, nil
}

// Signature returns the hex HMAC of the command's canonical form. The
// confirmation control keys are excluded so that a resubmission carrying a
// token hashes identically to the original submission.
func (s *Signer) Signature(cmdType string, params map[string]any) string {
	var b strings.Builder
	b.WriteString(cmdType)
	b.WriteByte('\n')
	writeCanonical(&b, stripControlKeys(params))

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(b.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

func stripControlKeys(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		if k == protocol.ParamConfirmationToken || k == protocol.ParamWhitelistForSession {
			continue
		}
		out[k] = v
	}
	return out
}

// writeCanonical renders a decoded-JSON value deterministically: object
// keys sorted, arrays in order, scalars via encoding/json.
func writeCanonical(b *strings.Builder, v any) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			keyJSON, _ := json.Marshal(k)
			b.Write(keyJSON)
			b.WriteByte(':')
			writeCanonical(b, val[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	default:
		scalar, err := json.Marshal(val)
		if err != nil {
			// Unmarshalable values cannot come from decoded JSON; render a
			// placeholder rather than silently diverging between calls.
			b.WriteString(fmt.Sprintf("%q", fmt.Sprintf("!%T", val)))
			return
		}
		b.Write(scalar)
	}
}
