package risk

import (
	"errors"
	"testing"
)

func TestPositionSize(t *testing.T) {
	tests := []struct {
		name         string
		accountValue float64
		riskPerTrade float64
		entry, stop  float64
		want         int
		wantErr      error
	}{
		{
			name:         "risk bound",
			accountValue: 100000, riskPerTrade: 300, entry: 100, stop: 97,
			want: 100,
		},
		{
			name:         "short side uses absolute distance",
			accountValue: 100000, riskPerTrade: 300, entry: 100, stop: 103,
			want: 100,
		},
		{
			name:         "capped by account value",
			accountValue: 1000, riskPerTrade: 300, entry: 100, stop: 99,
			want: 10,
		},
		{
			name:         "too expensive yields zero",
			accountValue: 50, riskPerTrade: 300, entry: 100, stop: 97,
			want: 0,
		},
		{
			name:         "no account value",
			accountValue: 0, riskPerTrade: 300, entry: 100, stop: 97,
			wantErr: ErrNoAccountValue,
		},
		{
			name:         "negative account value",
			accountValue: -5, riskPerTrade: 300, entry: 100, stop: 97,
			wantErr: ErrNoAccountValue,
		},
		{
			name:         "stop at entry",
			accountValue: 100000, riskPerTrade: 300, entry: 100, stop: 100,
			wantErr: ErrZeroStopDistance,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PositionSize(tt.accountValue, tt.riskPerTrade, tt.entry, tt.stop)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("want %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("shares: got %d, want %d", got, tt.want)
			}
		})
	}
}
