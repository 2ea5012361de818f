// Package xcheck cross-checks this module's own x86-64 encoder against
// an independent disassembler: shell out to objdump and compare its
// mnemonic-level reading of a text buffer against what the encoder
// believes it emitted. Mirrors a CUDA-vs-CPU verification
// split (pkg/gpu.SearchGPU's hits always get a second opinion from the
// CPU's ExhaustiveCheck) except the two "implementations" being
// cross-checked here are this module's encoder and a system tool.
package xcheck

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
)

// ErrToolUnavailable is returned by Disassemble when objdump cannot be
// found on PATH; callers that only need xcheck in tests should treat
// this as "skip", not "fail".
var ErrToolUnavailable = fmt.Errorf("xcheck: objdump not found on PATH")

// Available reports whether the objdump binary this package shells out
// to is reachable.
func Available() bool {
	_, err := exec.LookPath("objdump")
	return err == nil
}

// Disassemble runs objdump over a raw flat binary buffer containing
// x86-64 machine code and returns its Intel-syntax listing.
func Disassemble(text []byte) (string, error) {
	if !Available() {
		return "", ErrToolUnavailable
	}

	f, err := os.CreateTemp("", "xcheck-*.bin")
	if err != nil {
		return "", fmt.Errorf("xcheck: create temp file: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if _, err := f.Write(text); err != nil {
		return "", fmt.Errorf("xcheck: write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("xcheck: close temp file: %w", err)
	}

	cmd := exec.Command("objdump", "-D", "-b", "binary", "-m", "i386:x86-64", "-M", "intel", f.Name())
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("xcheck: objdump: %w: %s", err, stderr.String())
	}
	return out.String(), nil
}

// ContainsMnemonic reports whether objdump's listing mentions the given
// mnemonic anywhere, a coarse but cheap cross-check for "did the encoder
// emit the instruction family it claims to have emitted".
func ContainsMnemonic(listing, mnemonic string) bool {
	return bytes.Contains([]byte(listing), []byte(mnemonic))
}
