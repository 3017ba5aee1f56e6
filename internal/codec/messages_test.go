package codec

import (
	"testing"
	"time"
)

func TestParseTrade(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{name: "valid buy", payload: `{"messageType":"trades","tradeType":"BUY","volume":"100","time":"2024-03-01T10:00:00Z"}`},
		{name: "valid sell fractional", payload: `{"messageType":"trades","tradeType":"SELL","volume":"0.25","time":"2024-03-01T10:00:05+01:00"}`},
		{name: "bad json", payload: `{"messageType":`, wantErr: true},
		{name: "wrong messageType", payload: `{"messageType":"market","tradeType":"BUY","volume":"1","time":"2024-03-01T10:00:00Z"}`, wantErr: true},
		{name: "unknown side", payload: `{"messageType":"trades","tradeType":"HOLD","volume":"1","time":"2024-03-01T10:00:00Z"}`, wantErr: true},
		{name: "zero volume", payload: `{"messageType":"trades","tradeType":"BUY","volume":"0","time":"2024-03-01T10:00:00Z"}`, wantErr: true},
		{name: "negative volume", payload: `{"messageType":"trades","tradeType":"BUY","volume":"-3","time":"2024-03-01T10:00:00Z"}`, wantErr: true},
		{name: "garbage volume", payload: `{"messageType":"trades","tradeType":"BUY","volume":"abc","time":"2024-03-01T10:00:00Z"}`, wantErr: true},
		{name: "bad time", payload: `{"messageType":"trades","tradeType":"BUY","volume":"1","time":"yesterday"}`, wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			trade, err := ParseTrade([]byte(tc.payload), 2, 41)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseTrade(%s) expected error, got %+v", tc.payload, trade)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTrade(%s) unexpected error: %v", tc.payload, err)
			}
			if trade.Partition != 2 || trade.Offset != 41 {
				t.Fatalf("bus coordinates not stamped: %+v", trade)
			}
		})
	}
}

func TestParseTradeKeepsVolumeString(t *testing.T) {
	t.Parallel()

	payload := `{"messageType":"trades","tradeType":"BUY","volume":"123.456789012345678901","time":"2024-03-01T10:00:00Z"}`
	trade, err := ParseTrade([]byte(payload), 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if trade.Volume != "123.456789012345678901" {
		t.Fatalf("volume precision lost: %q", trade.Volume)
	}
}

func TestParseMarket(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{name: "valid", payload: `{"messageType":"market","buyPrice":"50","sellPrice":"55","startTime":"2024-03-01T10:00:00Z","endTime":"2024-03-01T10:01:00Z"}`},
		{name: "wrong messageType", payload: `{"messageType":"trades","buyPrice":"50","sellPrice":"55","startTime":"2024-03-01T10:00:00Z","endTime":"2024-03-01T10:01:00Z"}`, wantErr: true},
		{name: "bad buyPrice", payload: `{"messageType":"market","buyPrice":"x","sellPrice":"55","startTime":"2024-03-01T10:00:00Z","endTime":"2024-03-01T10:01:00Z"}`, wantErr: true},
		{name: "bad sellPrice", payload: `{"messageType":"market","buyPrice":"50","sellPrice":"","startTime":"2024-03-01T10:00:00Z","endTime":"2024-03-01T10:01:00Z"}`, wantErr: true},
		{name: "start equals end", payload: `{"messageType":"market","buyPrice":"50","sellPrice":"55","startTime":"2024-03-01T10:00:00Z","endTime":"2024-03-01T10:00:00Z"}`, wantErr: true},
		{name: "start after end", payload: `{"messageType":"market","buyPrice":"50","sellPrice":"55","startTime":"2024-03-01T10:02:00Z","endTime":"2024-03-01T10:01:00Z"}`, wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m, err := ParseMarket([]byte(tc.payload), 1, 7)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseMarket(%s) expected error, got %+v", tc.payload, m)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMarket(%s) unexpected error: %v", tc.payload, err)
			}
			want, _ := time.Parse(time.RFC3339, "2024-03-01T10:00:00Z")
			if !m.StartTime.Equal(want) {
				t.Fatalf("startTime = %v, want %v", m.StartTime, want)
			}
			if m.Partition != 1 || m.Offset != 7 {
				t.Fatalf("bus coordinates not stamped: %+v", m)
			}
		})
	}
}
