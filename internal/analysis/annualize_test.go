package analysis

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"fundingflow/internal/model"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestAnnualize(t *testing.T) {
	cases := []struct {
		name     string
		rate     string
		interval string
		want     string
	}{
		{"8h positive", "0.0001", "8", "0.1095"},
		{"8h negative", "-0.0001", "8", "-0.1095"},
		{"1h cadence", "0.0001", "1", "0.876"},
		{"4h cadence", "0.0002", "4", "0.438"},
		{"zero rate", "0", "8", "0"},
		{"extreme negative", "-0.014078", "8", "-15.41541"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Annualize(dec(c.rate), dec(c.interval))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(dec(c.want)) {
				t.Errorf("Annualize(%s, %s) = %s, want %s", c.rate, c.interval, got, c.want)
			}
		})
	}
}

func TestAnnualizeInvalidInterval(t *testing.T) {
	for _, interval := range []string{"0", "-8"} {
		_, err := Annualize(dec("0.0001"), dec(interval))
		if !errors.Is(err, model.ErrInvalidInterval) {
			t.Errorf("interval %s: got %v, want ErrInvalidInterval", interval, err)
		}
	}
}

func TestAnnualizeLinearInRate(t *testing.T) {
	interval := dec("8")
	a, _ := Annualize(dec("0.0003"), interval)
	b, _ := Annualize(dec("0.0001"), interval)
	if !a.Equal(b.Mul(decimal.NewFromInt(3))) {
		t.Errorf("tripled rate should triple annualized value: %s vs 3*%s", a, b)
	}
}

func TestAnnualizeSignSymmetry(t *testing.T) {
	interval := dec("8")
	pos, _ := Annualize(dec("0.0025"), interval)
	neg, _ := Annualize(dec("-0.0025"), interval)
	if !pos.Equal(neg.Neg()) {
		t.Errorf("sign symmetry broken: %s vs %s", pos, neg)
	}
}

func TestAnnualizeShorterIntervalLargerMagnitude(t *testing.T) {
	rate := dec("0.0001")
	hourly, _ := Annualize(rate, dec("1"))
	eightHourly, _ := Annualize(rate, dec("8"))
	if hourly.Cmp(eightHourly) <= 0 {
		t.Errorf("hourly %s should exceed eight-hourly %s", hourly, eightHourly)
	}
}
