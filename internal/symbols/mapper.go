package symbols

import "strings"

// thousandAliases maps contracts quoted per 1000 units back to the plain
// base asset so they group with the other venues' listings.
var thousandAliases = map[string]string{
	"1000BONK": "BONK",
	"1000PEPE": "PEPE",
	"1000SHIB": "SHIB",
	"1000FLOKI": "FLOKI",
	"1000LUNC": "LUNC",
	"1000RATS": "RATS",
	"1000SATS": "SATS",
	"SHIB1000": "SHIB",
}

// ToCanonical converts an exchange-specific perpetual contract name to the
// canonical uppercase base-asset symbol used for cross-exchange matching,
// e.g. "BTC-USDT-SWAP" (okx), "XBTUSDTM" (kucoin) and "BTC_USDT" (gate)
// all map to "BTC". Currently supported exchanges: binance, bybit, kucoin,
// okx, gate.
func ToCanonical(exchange, sym string) string {
	sym = strings.ToUpper(strings.TrimSpace(sym))

	switch strings.ToLower(exchange) {
	case "kucoin":
		sym = strings.ReplaceAll(sym, "-", "")
		sym = strings.TrimSuffix(sym, "M")
		if strings.HasPrefix(sym, "XBT") {
			sym = "BTC" + sym[3:]
		}
	case "okx":
		sym = strings.TrimSuffix(sym, "-SWAP")
		sym = strings.ReplaceAll(sym, "-", "")
	case "gate":
		sym = strings.ReplaceAll(sym, "_", "")
	}

	base := trimQuote(sym)
	if alias, ok := thousandAliases[base]; ok {
		base = alias
	}
	return base
}

// trimQuote strips the settlement-currency suffix. USDC before USD so
// "BTCUSDC" does not leave a dangling "C".
func trimQuote(sym string) string {
	for _, quote := range []string{"USDT", "USDC", "USD"} {
		if strings.HasSuffix(sym, quote) && len(sym) > len(quote) {
			return strings.TrimSuffix(sym, quote)
		}
	}
	return sym
}
