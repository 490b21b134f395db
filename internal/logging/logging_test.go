package logging

import "testing"

func TestNew_BuildsForJSONAndText(t *testing.T) {
	for _, format := range []string{"json", "text", "JSON", ""} {
		logger, err := New("info", format)
		if err != nil {
			t.Fatalf("New(info, %q) error: %v", format, err)
		}
		if logger == nil {
			t.Fatalf("New(info, %q) returned a nil logger", format)
		}
	}
}

func TestNew_FallsBackToInfoOnInvalidLevel(t *testing.T) {
	logger, err := New("not-a-level", "text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !logger.Core().Enabled(0) {
		t.Error("expected info level (0) to be enabled by the fallback")
	}
}

func TestChainFields_OmitsEmptyValues(t *testing.T) {
	fields := ChainFields("", "", "")
	if len(fields) != 0 {
		t.Errorf("ChainFields with all empty args = %d fields, want 0", len(fields))
	}

	fields = ChainFields("ethereum", "", "1")
	if len(fields) != 2 {
		t.Errorf("ChainFields with blockchain+chainID = %d fields, want 2", len(fields))
	}
}
