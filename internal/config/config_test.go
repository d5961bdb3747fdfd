package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadServiceDefaults(t *testing.T) {
	for _, key := range []string{"HOST", "PORT", "MODEL_PATH", "CORS_ORIGINS", "LOG_FILE"} {
		t.Setenv(key, "")
	}
	cfg := LoadService()
	if cfg.Host != "0.0.0.0" || cfg.Port != "8000" {
		t.Fatalf("listen = %s:%s", cfg.Host, cfg.Port)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[0] != "http://localhost:3000" {
		t.Fatalf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if cfg.LogFile != "" {
		t.Fatalf("LogFile = %q", cfg.LogFile)
	}
}

func TestLoadServiceOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("S3_ENDPOINT", "http://minio:9000")
	cfg := LoadService()
	if cfg.Port != "9000" {
		t.Fatalf("Port = %q", cfg.Port)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("CORSOrigins = %q", cfg.CORSOrigins)
	}
	if cfg.S3.Endpoint != "http://minio:9000" {
		t.Fatalf("S3 = %+v", cfg.S3)
	}
}

func TestLoadTrainingDefaults(t *testing.T) {
	cfg, err := LoadTraining("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BatchSize != 32 || cfg.Stage1.Epochs != 30 || cfg.Stage2.LearningRate != 1e-4 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Categories[0] != "male" || cfg.Categories[1] != "female" {
		t.Fatalf("Categories = %v", cfg.Categories)
	}
	if cfg.ModelPath("female") != filepath.Join("models", "beauty_model_female.ckpt") {
		t.Fatalf("ModelPath = %s", cfg.ModelPath("female"))
	}
	if cfg.Stage1Path("male") != filepath.Join("models", "beauty_model_male_stage1.ckpt") {
		t.Fatalf("Stage1Path = %s", cfg.Stage1Path("male"))
	}
}

func TestLoadTrainingOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.yaml")
	data := []byte(`
targetSize: 64
batchSize: 8
categories: [female]
stage1:
  epochs: 2
  learningRate: 0.01
  earlyStopPatience: 1
  plateauPatience: 1
  plateauFactor: 0.5
arch:
  widths: [4, 8]
  dropout: 0.1
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadTraining(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TargetSize != 64 || cfg.Arch.InputSize != 64 || len(cfg.Arch.Widths) != 2 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.Categories) != 1 || cfg.Categories[0] != "female" {
		t.Fatalf("Categories = %v", cfg.Categories)
	}
	if cfg.Stage2.Epochs != 30 {
		t.Fatalf("Stage2 not defaulted: %+v", cfg.Stage2)
	}

	tc := cfg.TrainerConfig("female", "run-1", cfg.ScoreRange)
	if tc.Stage2.Checkpoint != cfg.ModelPath("female") || tc.Stage1.Checkpoint != cfg.Stage1Path("female") {
		t.Fatalf("checkpoints = %q, %q", tc.Stage1.Checkpoint, tc.Stage2.Checkpoint)
	}
	if err := tc.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadTrainingInvalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"split":    "testFraction: 0.6\nvalFraction: 0.5\n",
		"category": "categories: [robot]\n",
		"range":    "scoreRange: {min: 5, max: 1}\n",
		"arch":     "targetSize: 100\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadTraining(path); !errors.Is(err, ErrInvalid) {
				t.Fatalf("err = %v, want ErrInvalid", err)
			}
		})
	}

	path := filepath.Join(dir, "unknown.yaml")
	if err := os.WriteFile(path, []byte("epochz: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTraining(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}
