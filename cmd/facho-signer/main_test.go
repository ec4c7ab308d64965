package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testdata = "../../internal/infrastructure/dian/testdata/"

func run(args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestCLI_Firma(t *testing.T) {
	// sin documento configurado se usa el digest publicado de la política
	t.Setenv("DIAN_POLICY_DOCUMENT", "")

	out, _, err := run(testdata+"factura.xml", testdata+"firma.p12", "secreto")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, out, "<ds:Signature")
}

func TestCLI_FirmaConPEM(t *testing.T) {
	t.Setenv("DIAN_POLICY_DOCUMENT", "")

	out, _, err := run("--cert", testdata+"firma.pem", "--key", testdata+"firma.key", testdata+"factura.xml")
	require.NoError(t, err)
	assert.Contains(t, out, "<ds:Signature")
	assert.Contains(t, out, "<ds:X509Certificate>")
}

func TestCLI_PasswordIncorrectoNoEscribeSalida(t *testing.T) {
	out, stderr, err := run(testdata+"factura.xml", testdata+"firma.p12", "otra")
	assert.Error(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 1, strings.Count(stderr, "firma fallida"))

	var logged loggedError
	assert.ErrorAs(t, err, &logged)
}

func TestCLI_Argumentos(t *testing.T) {
	_, _, err := run(testdata + "factura.xml")
	assert.Error(t, err)

	_, _, err = run("--cert", testdata+"firma.pem", testdata+"factura.xml", testdata+"firma.p12", "secreto")
	assert.Error(t, err)
}

func TestCLI_Inspect(t *testing.T) {
	out, _, err := run("inspect", testdata+"firma.p12", "secreto")
	require.NoError(t, err)
	assert.Contains(t, out, "Facturador de Pruebas")
	assert.Contains(t, out, "425514233338541022216851")
	assert.Equal(t, 3, strings.Count(out, "CERTIFICATE"))
}
