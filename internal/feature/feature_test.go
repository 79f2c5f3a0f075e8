package feature

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDNSNegativeCache(t *testing.T) {
	cases := map[string]struct {
		envVal string
		want   bool
	}{
		// Default-on: only an explicit "false" turns it off.
		"unset_defaults_on": {
			want: true,
		},
		"explicitly_disabled": {
			envVal: "false",
			want:   false,
		},
		"explicitly_enabled": {
			envVal: "true",
			want:   true,
		},
		"garbage_falls_back_to_default": {
			envVal: "0",
			want:   true,
		},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("NOTIFYKIT_FF_DNS_NEGATIVE_CACHE", tt.envVal)
			require.Equal(t, tt.want, DNSNegativeCache())
		})
	}
}

func TestSinkOutcomeDebugLog(t *testing.T) {
	cases := map[string]struct {
		envVal string
		want   bool
	}{
		// Default-off: only an explicit "true" turns it on.
		"unset_defaults_off": {
			want: false,
		},
		"explicitly_enabled": {
			envVal: "true",
			want:   true,
		},
		"explicitly_disabled": {
			envVal: "false",
			want:   false,
		},
		"garbage_falls_back_to_default": {
			envVal: "yes",
			want:   false,
		},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("NOTIFYKIT_FF_SINK_OUTCOME_DEBUG_LOG", tt.envVal)
			require.Equal(t, tt.want, SinkOutcomeDebugLog())
		})
	}
}
