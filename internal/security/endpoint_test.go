package security

import "testing"

func TestValidateEndpointURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		// Public IP literals skip DNS resolution, so these work offline.
		{"https://93.184.216.34/v1", false},
		{"http://8.8.8.8:8545", false},

		{"ftp://example.com", true},
		{"https://localhost:9000", true},
		{"http://127.0.0.1:8545", true},
		{"http://10.0.0.5", true},
		{"http://192.168.1.1", true},
		{"http://169.254.169.254/latest/meta-data", true}, // cloud metadata
		{"http://metadata.google.internal", true},
		{"not a url at all://", true},
		{"https://", true},
	}

	for _, tc := range tests {
		err := ValidateEndpointURL(tc.url)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateEndpointURL(%q) err=%v, wantErr=%v", tc.url, err, tc.wantErr)
		}
	}
}
