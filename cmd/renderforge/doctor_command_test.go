package main

import "testing"

func TestDoctorWithStubEncoder(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"doctor"}, env.configPath)
	if err != nil {
		t.Fatalf("doctor: %v", err)
	}
	requireContains(t, out, "FFmpeg")
	requireContains(t, out, "[OK]")
}

func TestDoctorMissingEncoder(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Encoding.FFmpegBinary = "definitely-not-ffmpeg"
	writeTestConfig(t, env.configPath, env.cfg)

	_, _, err := runCLI(t, []string{"doctor"}, env.configPath)
	if err == nil {
		t.Fatal("expected doctor to fail with missing encoder")
	}
}
