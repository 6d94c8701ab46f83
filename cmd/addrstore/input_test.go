package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"addrstore/internal/model"
)

func newFieldCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	addFieldFlags(cmd)
	cmd.Flags().StringSlice("clear", nil, "")
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	return cmd
}

func TestAddressFromFlags(t *testing.T) {
	cmd := newFieldCmd(t, "--street-address", "1 Main St", "--country", "US", "--organization", "")

	addr := addressFromFlags(cmd)
	if addr.StreetAddress == nil || *addr.StreetAddress != "1 Main St" {
		t.Errorf("StreetAddress = %v, want 1 Main St", addr.StreetAddress)
	}
	if addr.Organization == nil || *addr.Organization != "" {
		t.Error("explicit empty flag should set an empty field")
	}
	if addr.Name != nil {
		t.Error("unset flag should leave the field absent")
	}
}

func TestPatchFromFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    model.Patch
		wantErr bool
	}{
		{
			name: "set and clear",
			args: []string{"--email", "jane@example.com", "--clear", "tel", "--clear", "address-level3"},
			want: model.Patch{
				model.FieldEmail:         model.String("jane@example.com"),
				model.FieldTel:           nil,
				model.FieldAddressLevel3: nil,
			},
		},
		{name: "unknown clear", args: []string{"--clear", "zip"}, wantErr: true},
		{name: "set and clear same field", args: []string{"--tel", "1", "--clear", "tel"}, wantErr: true},
		{name: "nothing", args: nil, want: model.Patch{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := patchFromFlags(newFieldCmd(t, tt.args...))
			if (err != nil) != tt.wantErr {
				t.Fatalf("patchFromFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("patchFromFlags() = %v, want %v", got, tt.want)
			}
			for f, v := range tt.want {
				gv, ok := got[f]
				if !ok || !model.FieldEqual(gv, v) || (gv == nil) != (v == nil) {
					t.Errorf("patch[%s] = %v, want %v", f, gv, v)
				}
			}
		})
	}
}

func TestPromptPassphrase(t *testing.T) {
	t.Run("reads a line from piped input", func(t *testing.T) {
		t.Setenv("ADDRSTORE_PASSPHRASE", "")
		var w bytes.Buffer
		got, err := promptPassphrase(&w, strings.NewReader("secret\n"), "Passphrase: ")
		if err != nil {
			t.Fatalf("promptPassphrase() error = %v", err)
		}
		if got != "secret" {
			t.Errorf("promptPassphrase() = %q, want secret", got)
		}
		if !strings.HasPrefix(w.String(), "Passphrase: ") {
			t.Errorf("prompt = %q", w.String())
		}
	})

	t.Run("environment wins", func(t *testing.T) {
		t.Setenv("ADDRSTORE_PASSPHRASE", "from-env")
		got, err := promptPassphrase(&bytes.Buffer{}, strings.NewReader("typed\n"), "Passphrase: ")
		if err != nil || got != "from-env" {
			t.Errorf("promptPassphrase() = %q, %v, want from-env", got, err)
		}
	})
}

func TestNewPassphrase(t *testing.T) {
	t.Setenv("ADDRSTORE_PASSPHRASE", "")

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "matching", input: "pw\npw\n", want: "pw"},
		{name: "mismatch", input: "pw\nother\n", wantErr: true},
		{name: "empty", input: "\n\n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := newPassphrase(&bytes.Buffer{}, strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("newPassphrase() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("newPassphrase() = %q, want %q", got, tt.want)
			}
		})
	}
}
