package provider

import "testing"

func TestNormalizeVendorError(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    VendorError
		ok      bool
	}{
		{
			name:    "flat with code",
			payload: map[string]any{"message": "denied", "code": 50400},
			want:    VendorError{Code: "50400", Message: "denied"},
			ok:      true,
		},
		{
			name:    "flat with status",
			payload: map[string]any{"message": "nope", "status": "401"},
			want:    VendorError{Code: "401", Message: "nope"},
			ok:      true,
		},
		{
			name: "nested envelope",
			payload: map[string]any{
				"ResponseMetadata": map[string]any{
					"Error": map[string]any{"Code": "AccessDenied", "Message": "no permission"},
				},
			},
			want: VendorError{Code: "AccessDenied", Message: "no permission"},
			ok:   true,
		},
		{
			name:    "neither shape",
			payload: map[string]any{"data": map[string]any{}},
			ok:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeVendorError(tt.payload)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRequestIDFromPayload(t *testing.T) {
	payload := map[string]any{
		"ResponseMetadata": map[string]any{"RequestId": "req-123"},
	}
	if got := RequestIDFromPayload(payload); got != "req-123" {
		t.Errorf("request id = %q", got)
	}
	if got := RequestIDFromPayload(map[string]any{}); got != "" {
		t.Errorf("missing metadata should yield empty id, got %q", got)
	}
}
