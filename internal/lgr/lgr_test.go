package lgr

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestSetupFile(t *testing.T) {
	defer log.SetOutput(os.Stderr)
	defer log.SetLevel(log.InfoLevel)

	file := filepath.Join(t.TempDir(), "logs", "train.log")
	closer, err := Setup("debug", file)
	if err != nil {
		t.Fatal(err)
	}
	log.WithField("category", "female").Debug("Hello from the test")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Hello from the test") || !strings.Contains(string(data), "category=female") {
		t.Fatalf("log file = %q", data)
	}
	if log.GetLevel() != log.DebugLevel {
		t.Fatalf("level = %v", log.GetLevel())
	}
}

func TestSetupBadLevel(t *testing.T) {
	if _, err := Setup("loud", ""); err == nil {
		t.Fatal("expected error")
	}
}
