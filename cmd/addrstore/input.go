package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"addrstore/internal/model"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// promptPassphrase reads a passphrase without echo. ADDRSTORE_PASSPHRASE
// takes precedence so sync can run unattended; when stdin is not a
// terminal a single line is read from it.
func promptPassphrase(w io.Writer, in io.Reader, prompt string) (string, error) {
	if pw := os.Getenv("ADDRSTORE_PASSPHRASE"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(w, prompt)
	defer fmt.Fprintln(w)

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		pw, err := readPassword(int(f.Fd()))
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return string(pw), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// newPassphrase asks twice and insists the answers match.
func newPassphrase(w io.Writer, in io.Reader) (string, error) {
	// Piped input is buffered once so both answers come from the same reader.
	var src io.Reader = bufio.NewReader(in)
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		src = f
	}

	first, err := promptPassphrase(w, src, "New passphrase: ")
	if err != nil {
		return "", err
	}
	if first == "" {
		return "", errors.New("passphrase must not be empty")
	}
	if os.Getenv("ADDRSTORE_PASSPHRASE") != "" {
		return first, nil
	}
	second, err := promptPassphrase(w, src, "Repeat passphrase: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passphrases do not match")
	}
	return first, nil
}

// flagName turns street_address into street-address.
func flagName(f model.FieldName) string {
	return strings.ReplaceAll(string(f), "_", "-")
}

// addFieldFlags registers one string flag per address field.
func addFieldFlags(cmd *cobra.Command) {
	for _, f := range model.AllFields {
		cmd.Flags().String(flagName(f), "", fmt.Sprintf("%s field", f))
	}
}

// addressFromFlags builds an Address from the field flags that were set.
func addressFromFlags(cmd *cobra.Command) model.Address {
	var addr model.Address
	for f, v := range changedFields(cmd) {
		addr.Set(f, v)
	}
	return addr
}

// patchFromFlags builds a Patch from set field flags and --clear.
func patchFromFlags(cmd *cobra.Command) (model.Patch, error) {
	patch := model.Patch(changedFields(cmd))

	clear, _ := cmd.Flags().GetStringSlice("clear")
	for _, name := range clear {
		f, err := model.ParseFieldName(strings.ReplaceAll(name, "-", "_"))
		if err != nil {
			return nil, err
		}
		if _, set := patch[f]; set {
			return nil, fmt.Errorf("field %s is both set and cleared", f)
		}
		patch[f] = nil
	}
	return patch, nil
}

func changedFields(cmd *cobra.Command) map[model.FieldName]*string {
	out := make(map[model.FieldName]*string)
	for _, f := range model.AllFields {
		if !cmd.Flags().Changed(flagName(f)) {
			continue
		}
		v, _ := cmd.Flags().GetString(flagName(f))
		out[f] = model.String(v)
	}
	return out
}
