package analysis

import (
	"testing"

	"fundingflow/internal/model"
)

func opp(symbol, fundingSpread, annualizedSpread string) model.ArbitrageOpportunity {
	return model.ArbitrageOpportunity{
		Symbol:           symbol,
		FundingSpread:    dec(fundingSpread),
		AnnualizedSpread: dec(annualizedSpread),
	}
}

func symbolsOf(opps []model.ArbitrageOpportunity) []string {
	out := make([]string, len(opps))
	for i, o := range opps {
		out[i] = o.Symbol
	}
	return out
}

func TestRankByFundingSpread(t *testing.T) {
	in := []model.ArbitrageOpportunity{
		opp("ETH", "0.0005", "0.5475"),
		opp("BTC", "0.0020", "2.19"),
		opp("SOL", "0.0010", "1.095"),
	}

	got := symbolsOf(Rank(in, SortByFundingSpread, 0))
	want := []string{"BTC", "SOL", "ETH"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestRankByAnnualizedSpreadReorders(t *testing.T) {
	// The hourly-settling pair wins on annualized basis despite the
	// smaller per-settlement spread.
	in := []model.ArbitrageOpportunity{
		opp("BTC", "0.0020", "2.19"),
		opp("HYPE", "0.0010", "8.76"),
	}

	byFunding := symbolsOf(Rank(in, SortByFundingSpread, 0))
	if byFunding[0] != "BTC" {
		t.Errorf("funding-spread order = %v", byFunding)
	}

	byAnnualized := symbolsOf(Rank(in, SortByAnnualizedSpread, 0))
	if byAnnualized[0] != "HYPE" {
		t.Errorf("annualized order = %v", byAnnualized)
	}
}

func TestRankTieBreaksBySymbol(t *testing.T) {
	in := []model.ArbitrageOpportunity{
		opp("ZRX", "0.0010", "1.095"),
		opp("AAVE", "0.0010", "1.095"),
	}

	got := symbolsOf(Rank(in, SortByFundingSpread, 0))
	if got[0] != "AAVE" || got[1] != "ZRX" {
		t.Errorf("tie break should be alphabetical, got %v", got)
	}
}

func TestRankTopN(t *testing.T) {
	in := []model.ArbitrageOpportunity{
		opp("A", "0.0003", "0.3285"),
		opp("B", "0.0002", "0.219"),
		opp("C", "0.0001", "0.1095"),
	}

	if got := Rank(in, SortByFundingSpread, 2); len(got) != 2 {
		t.Fatalf("topN=2 should truncate, got %d", len(got))
	}
	if got := Rank(in, SortByFundingSpread, 10); len(got) != 3 {
		t.Fatalf("topN beyond length should return all, got %d", len(got))
	}
	if got := Rank(in, SortByFundingSpread, 0); len(got) != 3 {
		t.Fatalf("topN=0 should return all, got %d", len(got))
	}
}

func TestRankDoesNotMutateInput(t *testing.T) {
	in := []model.ArbitrageOpportunity{
		opp("ETH", "0.0001", "0.1095"),
		opp("BTC", "0.0020", "2.19"),
	}

	Rank(in, SortByFundingSpread, 0)
	if in[0].Symbol != "ETH" {
		t.Errorf("input slice was reordered")
	}
}

func TestParseSortKey(t *testing.T) {
	if ParseSortKey("annualized_spread") != SortByAnnualizedSpread {
		t.Errorf("annualized_spread not recognized")
	}
	if ParseSortKey("funding_spread") != SortByFundingSpread {
		t.Errorf("funding_spread not recognized")
	}
	if ParseSortKey("bogus") != SortByFundingSpread {
		t.Errorf("unknown keys should fall back to funding spread")
	}
}
