package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestReadCredentialFromEnv(t *testing.T) {
	t.Setenv(envUsername, "budi")
	t.Setenv(envPassword, "rahasia")

	var prompt bytes.Buffer
	cred, err := readCredential(strings.NewReader(""), &prompt)
	if err != nil {
		t.Fatalf("readCredential falhou: %v", err)
	}
	if cred.Username != "budi" || cred.Password != "rahasia" {
		t.Errorf("credencial inesperada: %+v", cred)
	}
	if prompt.Len() != 0 {
		t.Errorf("não deveria perguntar nada com env completo: %q", prompt.String())
	}
}

func TestReadCredentialPromptsMissing(t *testing.T) {
	t.Setenv(envUsername, "budi")
	t.Setenv(envPassword, "")

	var prompt bytes.Buffer
	cred, err := readCredential(strings.NewReader("s3nha\n"), &prompt)
	if err != nil {
		t.Fatalf("readCredential falhou: %v", err)
	}
	if cred.Password != "s3nha" {
		t.Errorf("password = %q", cred.Password)
	}
	if !strings.Contains(prompt.String(), "Password") || strings.Contains(prompt.String(), "Username") {
		t.Errorf("prompt inesperado: %q", prompt.String())
	}
}

func TestReadCredentialEmptyInput(t *testing.T) {
	t.Setenv(envUsername, "")
	t.Setenv(envPassword, "")

	if _, err := readCredential(strings.NewReader(""), &bytes.Buffer{}); err == nil {
		t.Errorf("esperava erro sem credenciais")
	}
}

func TestMask(t *testing.T) {
	if mask("") != "" || mask("postgres://u:p@h/db") != "****" {
		t.Errorf("mask incorreto")
	}
}
