package keepawake

import (
	"context"
	"os/exec"
	"reflect"
	"testing"
)

func TestWrap(t *testing.T) {
	argv := []string{"/bin/train", "-config", "train.yaml"}
	cases := []struct {
		goos string
		want []string
		ok   bool
	}{
		{"darwin", []string{"caffeinate", "-dims", "/bin/train", "-config", "train.yaml"}, true},
		{"linux", []string{"systemd-inhibit", "--what=idle:sleep", "--who=beauty-train", "--why=model training in progress", "/bin/train", "-config", "train.yaml"}, true},
		{"windows", argv, false},
	}
	for _, tc := range cases {
		got, ok := Wrap(tc.goos, argv)
		if ok != tc.ok || !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Wrap(%s) = %v, %v", tc.goos, got, ok)
		}
	}
	if len(argv) != 3 {
		t.Fatal("argv modified")
	}
}

func TestActive(t *testing.T) {
	t.Setenv(GuardEnv, "")
	if Active() {
		t.Fatal("active without guard")
	}
	t.Setenv(GuardEnv, "1")
	if !Active() {
		t.Fatal("inactive with guard")
	}
}

func TestRunEmpty(t *testing.T) {
	if err := Run(context.Background(), nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestRunFailingCommand(t *testing.T) {
	if _, err := exec.LookPath("false"); err != nil {
		t.Skip("false not available")
	}
	if err := Run(context.Background(), []string{"false"}); err == nil {
		t.Fatal("expected error from a failing command")
	}
}
