package change

import (
	"fmt"
	"testing"

	"github.com/cros-updates/cros-updates/internal/fingerprint"
	"github.com/stretchr/testify/require"
)

func fp(version, product string) fingerprint.Fingerprint {
	return fingerprint.Fingerprint{Version: version, Product: product}
}

func ptr(f fingerprint.Fingerprint) *fingerprint.Fingerprint {
	return &f
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name          string
		previous      *fingerprint.Fingerprint
		current       fingerprint.Fingerprint
		want          Kind
		shouldPersist bool
		shouldNotify  bool
	}{
		{
			name:          "nothing stored",
			previous:      nil,
			current:       fp("103.0.5060.132", "Samsung Galaxy Chromebook"),
			want:          FirstObservation,
			shouldPersist: true,
		},
		{
			name:     "same version",
			previous: ptr(fp("103.0.5060.132", "Samsung Galaxy Chromebook")),
			current:  fp("103.0.5060.132", "Samsung Galaxy Chromebook"),
			want:     Unchanged,
		},
		{
			name:     "same version different product label",
			previous: ptr(fp("103.0.5060.132", "kohaku")),
			current:  fp("103.0.5060.132", "Samsung Galaxy Chromebook"),
			want:     Unchanged,
		},
		{
			name:          "version changed",
			previous:      ptr(fp("14816.131.0", "Samsung Galaxy Chromebook")),
			current:       fp("103.0.5060.132", "Samsung Galaxy Chromebook"),
			want:          Updated,
			shouldPersist: true,
			shouldNotify:  true,
		},
		{
			name:          "version rolled back",
			previous:      ptr(fp("104.0.5112.83", "x")),
			current:       fp("103.0.5060.132", "x"),
			want:          Updated,
			shouldPersist: true,
			shouldNotify:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Detect("kohaku-001", tt.previous, tt.current)
			require.Equal(t, tt.want, ev.Kind)
			require.Equal(t, "kohaku-001", ev.DeviceID)
			require.Equal(t, tt.current, ev.Current)
			require.Equal(t, tt.previous, ev.Previous)
			require.Equal(t, tt.shouldPersist, ev.ShouldPersist())
			require.Equal(t, tt.shouldNotify, ev.ShouldNotify())
		})
	}
}

func TestDetectProductLabelNeverFlipsClassification(t *testing.T) {
	versions := []string{"", "1", "103.0.5060.132", "14816.131.0"}
	products := []string{"", "kohaku", "Samsung Galaxy Chromebook"}

	for _, pv := range versions {
		for _, cv := range versions {
			base := Detect("d", ptr(fp(pv, "")), fp(cv, "")).Kind
			for _, pp := range products {
				for _, cp := range products {
					t.Run(fmt.Sprintf("%s/%s/%s/%s", pv, cv, pp, cp), func(t *testing.T) {
						require.Equal(t, base, Detect("d", ptr(fp(pv, pp)), fp(cv, cp)).Kind)
					})
				}
			}
		}
	}
}

func TestDetectAbsentPreviousIsNeverUpdated(t *testing.T) {
	for _, current := range []fingerprint.Fingerprint{
		{},
		fp("103.0.5060.132", ""),
		{Version: "14816.131.0", Product: "kohaku", EOL: "2031-06-01"},
	} {
		require.Equal(t, FirstObservation, Detect("d", nil, current).Kind)
	}
}

func TestKindString(t *testing.T) {
	require.Equal(t, "first_observation", FirstObservation.String())
	require.Equal(t, "unchanged", Unchanged.String())
	require.Equal(t, "updated", Updated.String())
	require.Equal(t, "unknown", Kind(0).String())
}
