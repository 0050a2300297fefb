package config

import "testing"

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]string{"a.flac", "b.mp3"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cfg.Paths) != 2 {
		t.Errorf("Paths = %v, want 2 entries", cfg.Paths)
	}
	if cfg.Volume != 1.0 {
		t.Errorf("Volume default = %v, want 1.0", cfg.Volume)
	}
	if cfg.MPRISName != "tapedeck" {
		t.Errorf("MPRISName default = %q, want tapedeck", cfg.MPRISName)
	}
}

func TestParseVersionFlag(t *testing.T) {
	_, err := Parse([]string{"--version"})
	if err != ErrShowVersion {
		t.Errorf("Parse(--version) error = %v, want ErrShowVersion", err)
	}
}

func TestParseRejectsUnknownBackendFlagValue(t *testing.T) {
	// --alsa is a boolean-ish flag (NoOptDefVal "alsa"); passing an
	// explicit bogus value should still fail backend validation.
	_, err := Parse([]string{"--alsa=bogus"})
	if err == nil {
		t.Error("expected an error for an invalid backend value")
	}
}

func TestParseClampsOutOfRangeVolume(t *testing.T) {
	cfg, err := Parse([]string{"--volume", "100"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Volume != 2.0 {
		t.Errorf("Volume = %v, want clamped to MaxVolume 2.0", cfg.Volume)
	}
}
