package adapter

import "testing"

func TestMatches(t *testing.T) {
	serverOnly := ServerOnly("needs filesystem access")
	both := &EnvironmentRequirements{SupportedEnvironments: []Environment{EnvServer, EnvBrowser}}
	none := &EnvironmentRequirements{}

	tests := []struct {
		name     string
		declared *EnvironmentRequirements
		env      Environment
		want     bool
	}{
		{"nil declaration is universal", nil, EnvBrowser, true},
		{"server only in server", serverOnly, EnvServer, true},
		{"server only in browser", serverOnly, EnvBrowser, false},
		{"both in browser", both, EnvBrowser, true},
		{"empty list matches nothing", none, EnvServer, false},
	}

	for _, tt := range tests {
		if got := Matches(tt.declared, tt.env); got != tt.want {
			t.Errorf("%s: Matches() = %v, want %v", tt.name, got, tt.want)
		}
	}

	if len(serverOnly.Limitations) != 1 {
		t.Errorf("expected limitation to be recorded, got %v", serverOnly.Limitations)
	}
}

func TestParseEnvironment(t *testing.T) {
	tests := []struct {
		in      string
		want    Environment
		wantErr bool
	}{
		{"server", EnvServer, false},
		{" Browser ", EnvBrowser, false},
		{"", "", true},
		{"mobile", "", true},
	}

	for _, tt := range tests {
		got, err := ParseEnvironment(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseEnvironment(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseEnvironment(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
