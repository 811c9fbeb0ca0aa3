package execution

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BlockedExtrasKeys are extras keys rejected because they look like
// credentials. Matching is case-insensitive.
var BlockedExtrasKeys = map[string]struct{}{
	"api_key":       {},
	"api_secret":    {},
	"secret":        {},
	"token":         {},
	"password":      {},
	"authorization": {},
	"secret_key":    {},
	"access_token":  {},
	"refresh_token": {},
}

// Extras size limits.
const (
	MaxExtrasKeys  = 10
	MaxExtrasBytes = 4096
)

// ValidateExtras checks the extras map passed through to adapters: no
// credential-like keys, at most MaxExtrasKeys entries, and at most
// MaxExtrasBytes when JSON-serialized.
func ValidateExtras(extras map[string]any) error {
	for key := range extras {
		if _, blocked := BlockedExtrasKeys[strings.ToLower(key)]; blocked {
			return fmt.Errorf(
				"extras key %q is blocked because it looks like a secret or credential; secrets should be configured via environment variables, not passed in extras",
				key)
		}
	}

	if len(extras) > MaxExtrasKeys {
		return fmt.Errorf(
			"extras has %d keys, exceeding the limit of %d; consider reducing the number of extra parameters",
			len(extras), MaxExtrasKeys)
	}

	serialized, err := json.Marshal(extras)
	if err != nil {
		return fmt.Errorf("extras is not JSON-serializable: %w", err)
	}
	if len(serialized) > MaxExtrasBytes {
		return fmt.Errorf(
			"extras serialized size is %d bytes, exceeding the limit of %d bytes; consider reducing the size of extra parameter values",
			len(serialized), MaxExtrasBytes)
	}

	return nil
}
