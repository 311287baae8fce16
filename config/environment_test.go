package config

import "testing"

func TestAppEnvironmentDefault(t *testing.T) {
	t.Setenv("APP_ENV", "")
	if env := AppEnvironment(); env != EnvironmentDevelopment {
		t.Errorf("expected development default, got %s", env)
	}
}

func TestAppEnvironmentAliases(t *testing.T) {
	cases := map[string]string{
		"prod":       EnvironmentProduction,
		"PRODUCTION": EnvironmentProduction,
		"stag":       EnvironmentStaging,
		"stagging":   EnvironmentStaging,
		" staging ":  EnvironmentStaging,
		"custom":     "custom",
	}
	for in, want := range cases {
		t.Setenv("APP_ENV", in)
		if got := AppEnvironment(); got != want {
			t.Errorf("APP_ENV=%q: expected %s, got %s", in, want, got)
		}
	}
}

func TestIsProductionLike(t *testing.T) {
	if !IsProductionLike(EnvironmentProduction) || !IsProductionLike(EnvironmentStaging) {
		t.Errorf("production and staging should be production-like")
	}
	if IsProductionLike(EnvironmentDevelopment) || IsProductionLike("custom") {
		t.Errorf("development and unknown environments are not production-like")
	}
}
