package xades_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facho-signer/internal/domain/xades"
)

// Vector FIPS 180-2: SHA-256("abc").
const sha256ABC = "ungWv48Bz+pBQUDeXa4iI7ADYaOWF3qctBD/YfIAFa0="

func TestDigest_VectorSHA256(t *testing.T) {
	got, err := xades.SHA256.Digest([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, sha256ABC, got)
}

func TestDigestMethodByURI(t *testing.T) {
	m, err := xades.DigestMethodByURI("http://www.w3.org/2001/04/xmlenc#sha256")
	require.NoError(t, err)
	assert.Equal(t, xades.SHA256, m)

	_, err = xades.DigestMethodByURI("http://www.w3.org/2000/09/xmldsig#sha1")
	require.Error(t, err)
	assert.ErrorIs(t, err, xades.ErrUnsupportedDigestMethod)
}

func TestDigest_MetodoVacio(t *testing.T) {
	var m xades.DigestMethod
	_, err := m.Digest([]byte("abc"))
	assert.ErrorIs(t, err, xades.ErrDigestFailed)
	assert.ErrorIs(t, err, xades.ErrCertificate)
}

func TestError_IsKindAndCause(t *testing.T) {
	cause := errors.New("nodo duplicado")
	err := xades.Fail(xades.ErrAssemblyFailed, "xades:SigningCertificate", cause)
	err.State = "SkeletonBuilt"

	assert.ErrorIs(t, err, xades.ErrAssemblyFailed)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, xades.ErrKeyLoadFailed)
	assert.Contains(t, err.Error(), "xades:SigningCertificate")
	assert.Contains(t, err.Error(), "SkeletonBuilt")
	assert.Equal(t, xades.ErrAssemblyFailed, xades.KindOf(err))
}

func TestFail_ConservaClaseOriginal(t *testing.T) {
	inner := xades.Fail(xades.ErrNoCertificates, "xades:SigningCertificate", nil)
	outer := xades.Fail(xades.ErrSignEngineFailed, "otro", inner)

	assert.Equal(t, xades.ErrNoCertificates, xades.KindOf(outer))
	assert.Equal(t, "xades:SigningCertificate", outer.Op)
	assert.ErrorIs(t, outer, xades.ErrCertificate)
}

func TestDefaultPolicy(t *testing.T) {
	p := xades.DefaultPolicy()
	require.NoError(t, p.Validate())
	assert.Equal(t, "supplier", p.Role)
	assert.Equal(t, xades.SHA256.URI(), p.DigestMethodURI)

	p.Identifier = ""
	assert.Error(t, p.Validate())
}
