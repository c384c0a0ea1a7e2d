package models

import "testing"

func TestEnvelopeFinalize(t *testing.T) {
	tests := []struct {
		name     string
		warnings []string
		errors   []EnvelopeError
		want     EnvelopeStatus
	}{
		{"clean", nil, nil, EnvelopeStatusOK},
		{"warnings only", []string{"partial"}, nil, EnvelopeStatusWarning},
		{"errors only", nil, []EnvelopeError{{Code: "NOT_FOUND"}}, EnvelopeStatusError},
		{"errors beat warnings", []string{"partial"}, []EnvelopeError{{Code: "IO_ERROR"}}, EnvelopeStatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := &Envelope{Warnings: tt.warnings, Errors: tt.errors}
			env.Finalize()
			if env.Status != tt.want {
				t.Errorf("Finalize() status = %q, want %q", env.Status, tt.want)
			}
		})
	}
}
