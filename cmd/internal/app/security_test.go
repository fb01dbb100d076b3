package app

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateSecurityConfig(t *testing.T) {
	t.Parallel()

	goodKey := strings.Repeat("ab", 64)
	goodSecret := strings.Repeat("s", 32)

	cases := []struct {
		name string
		cfg  Config
		want error
	}{
		{name: "ephemeral allowed", cfg: Config{}},
		{name: "stable ok", cfg: stableCfg(goodKey, goodSecret)},
		{name: "missing key", cfg: stableCfg("", goodSecret), want: ErrSigningKeyMissing},
		{name: "bad hex", cfg: stableCfg("zz", goodSecret), want: ErrSigningKeyInvalid},
		{name: "missing secret", cfg: stableCfg(goodKey, ""), want: ErrResourceSecretMissing},
		{name: "short secret", cfg: stableCfg(goodKey, "short"), want: ErrResourceSecretShort},
	}

	for _, tc := range cases {
		err := ValidateSecurityConfig(tc.cfg)
		if tc.want == nil {
			if err != nil {
				t.Fatalf("%s: err=%v want=nil", tc.name, err)
			}
			continue
		}
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: err=%v want=%v", tc.name, err, tc.want)
		}
	}
}

func stableCfg(key, secret string) Config {
	cfg := Config{RequireStableKeys: true}
	cfg.Token.SecretKeyHex = key
	cfg.Token.ResourceSecret = secret
	return cfg
}
