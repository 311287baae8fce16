package symbols

import "testing"

func TestToCanonical(t *testing.T) {
	cases := []struct {
		exchange string
		in       string
		want     string
	}{
		{"binance", "BTCUSDT", "BTC"},
		{"binance", "1000PEPEUSDT", "PEPE"},
		{"binance", "1000SHIBUSDT", "SHIB"},
		{"bybit", "SHIB1000USDT", "SHIB"},
		{"bybit", "ETHUSDT", "ETH"},
		{"kucoin", "XBTUSDTM", "BTC"},
		{"kucoin", "KAITOUSDTM", "KAITO"},
		{"okx", "BTC-USDT-SWAP", "BTC"},
		{"okx", "KAITO-USDT-SWAP", "KAITO"},
		{"gate", "BTC_USDT", "BTC"},
		{"gate", "KAITO_USDT", "KAITO"},
		{"binance", "BTCUSDC", "BTC"},
		{"binance", "btcusdt", "BTC"},
	}

	for _, c := range cases {
		if got := ToCanonical(c.exchange, c.in); got != c.want {
			t.Errorf("ToCanonical(%q, %q) = %q, want %q", c.exchange, c.in, got, c.want)
		}
	}
}

func TestToCanonicalBareSymbolUnchanged(t *testing.T) {
	if got := ToCanonical("binance", "USDT"); got != "USDT" {
		t.Errorf("bare quote symbol should be left alone, got %q", got)
	}
}
