package api

import "testing"

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{name: "valid checksummed address", addr: "0xCD4c2FCB8af53d5DCcC95eD0230985431E3D2289"},
		{name: "valid lowercase address", addr: "0xcd4c2fcb8af53d5dccc95ed0230985431e3d2289"},
		{name: "missing 0x prefix", addr: "CD4c2FCB8af53d5DCcC95eD0230985431E3D2289", wantErr: true},
		{name: "too short", addr: "0x1234", wantErr: true},
		{name: "too long", addr: "0xCD4c2FCB8af53d5DCcC95eD0230985431E3D2289ab", wantErr: true},
		{name: "non-hex characters", addr: "0xZZ4c2FCB8af53d5DCcC95eD0230985431E3D2289", wantErr: true},
		{name: "empty", addr: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAddress(tt.addr)
			if tt.wantErr && err == nil {
				t.Fatalf("expected error for %q", tt.addr)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error for %q: %v", tt.addr, err)
			}
		})
	}
}

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		wantErr bool
	}{
		{name: "whole amount", amount: "20"},
		{name: "six decimal places", amount: "0.000001"},
		{name: "upper bound", amount: "1000000"},
		{name: "negative", amount: "-5", wantErr: true},
		{name: "zero", amount: "0", wantErr: true},
		{name: "above upper bound", amount: "1000000.01", wantErr: true},
		{name: "seven decimal places", amount: "1.0000001", wantErr: true},
		{name: "scientific notation", amount: "1e6", wantErr: true},
		{name: "not a number", amount: "twenty", wantErr: true},
		{name: "empty", amount: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAmount(tt.amount)
			if tt.wantErr && err == nil {
				t.Fatalf("expected error for %q", tt.amount)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error for %q: %v", tt.amount, err)
			}
		})
	}
}
