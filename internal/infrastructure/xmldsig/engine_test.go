package xmldsig_test

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"os"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facho-signer/internal/domain/xades"
	"github.com/jhoicas/facho-signer/internal/infrastructure/xmldsig"
	"github.com/jhoicas/facho-signer/internal/infrastructure/xmltree"
)

const plainDoc = `<r xmlns="urn:r"><a>1</a><!-- nota --><b Id="objetivo">2</b></r>`

func loadKey(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	keyPEM, err := os.ReadFile("../dian/testdata/firma.key")
	require.NoError(t, err)
	block, _ := pem.Decode(keyPEM)
	require.NotNil(t, block)
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	require.NoError(t, err)
	key, ok := parsed.(*rsa.PrivateKey)
	require.True(t, ok)

	certPEM, err := os.ReadFile("../dian/testdata/firma.pem")
	require.NoError(t, err)
	certBlock, _ := pem.Decode(certPEM)
	require.NotNil(t, certBlock)
	return key, certBlock.Bytes
}

func newSignedDoc(t *testing.T) (*etree.Document, *xmldsig.Signature) {
	t.Helper()
	doc, err := xmltree.Parse([]byte(plainDoc))
	require.NoError(t, err)
	sig := xmldsig.NewSignature("firma")
	doc.Root().AddChild(sig.Element())
	_, err = sig.AddReference("ref0", "", "", xades.SHA256, xmldsig.TransformEnveloped)
	require.NoError(t, err)
	_, err = sig.AddReference("ref1", "#objetivo", "", xades.SHA256, xmldsig.AlgC14N)
	require.NoError(t, err)
	sig.AddX509Data(sig.EnsureKeyInfo("ki"))
	return doc, sig
}

func TestEngine_SignFirmaVerificable(t *testing.T) {
	key, certDER := loadKey(t)
	doc, sig := newSignedDoc(t)

	engine := xmldsig.NewEngine()
	require.NoError(t, engine.Sign(doc, sig, key, [][]byte{certDER}))

	raw, err := base64.StdEncoding.DecodeString(sig.SignatureValue())
	require.NoError(t, err)
	canonical, err := engine.CanonicalSignedInfo(sig)
	require.NoError(t, err)
	hashed := sha256.Sum256(canonical)
	assert.NoError(t, rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, hashed[:], raw))

	cert := sig.KeyInfo().FindElement("./ds:X509Data/ds:X509Certificate")
	require.NotNil(t, cert)
	assert.Equal(t, base64.StdEncoding.EncodeToString(certDER), cert.Text())
}

func TestEngine_ReferenciaEnvelopedExcluyeFirmaYComentarios(t *testing.T) {
	key, certDER := loadKey(t)
	doc, sig := newSignedDoc(t)
	require.NoError(t, xmldsig.NewEngine().Sign(doc, sig, key, [][]byte{certDER}))

	expected := sha256.Sum256([]byte(`<r xmlns="urn:r"><a>1</a><b Id="objetivo">2</b></r>`))
	ref0 := sig.References()[0]
	assert.Equal(t, base64.StdEncoding.EncodeToString(expected[:]), ref0.FindElement("./ds:DigestValue").Text())

	fragment := sha256.Sum256([]byte(`<b xmlns="urn:r" Id="objetivo">2</b>`))
	ref1 := sig.References()[1]
	assert.Equal(t, base64.StdEncoding.EncodeToString(fragment[:]), ref1.FindElement("./ds:DigestValue").Text())
}

func TestEngine_ReferenciaDocumentoEsC14NInclusivo(t *testing.T) {
	key, certDER := loadKey(t)
	doc, err := xmltree.Parse([]byte(`<?xml version="1.0"?>
<?hoja tipo="x"?>
<Invoice xmlns="urn:i" xmlns:cbc="urn:cbc" xmlns:z="urn:sin-uso"><cbc:ID b="2" a="&#9;">1</cbc:ID><![CDATA[x<y]]></Invoice>`))
	require.NoError(t, err)
	sig := xmldsig.NewSignature("firma")
	doc.Root().AddChild(sig.Element())
	_, err = sig.AddReference("ref0", "", "", xades.SHA256, xmldsig.TransformEnveloped)
	require.NoError(t, err)
	require.NoError(t, xmldsig.NewEngine().Sign(doc, sig, key, [][]byte{certDER}))

	// las declaraciones quedan en la raíz, aunque no se usen
	canonical := "<?hoja tipo=\"x\"?>\n" +
		`<Invoice xmlns="urn:i" xmlns:cbc="urn:cbc" xmlns:z="urn:sin-uso"><cbc:ID a="&#x9;" b="2">1</cbc:ID>x&lt;y</Invoice>`
	expected := sha256.Sum256([]byte(canonical))
	assert.Equal(t, base64.StdEncoding.EncodeToString(expected[:]), sig.References()[0].FindElement("./ds:DigestValue").Text())
}

func TestEngine_DigestReferenceCoincideConLoEscrito(t *testing.T) {
	key, certDER := loadKey(t)
	doc, sig := newSignedDoc(t)
	engine := xmldsig.NewEngine()
	require.NoError(t, engine.Sign(doc, sig, key, [][]byte{certDER}))

	for _, ref := range sig.References() {
		got, err := engine.DigestReference(doc.Root(), sig.Element(), ref)
		require.NoError(t, err)
		assert.Equal(t, ref.FindElement("./ds:DigestValue").Text(), got)
	}
}

func TestEngine_Errores(t *testing.T) {
	key, certDER := loadKey(t)
	engine := xmldsig.NewEngine()

	t.Run("sin adjuntar", func(t *testing.T) {
		doc, err := xmltree.Parse([]byte(plainDoc))
		require.NoError(t, err)
		sig := xmldsig.NewSignature("firma")
		assert.ErrorIs(t, engine.Sign(doc, sig, key, [][]byte{certDER}), xmldsig.ErrNotAttached)
	})

	t.Run("destino inexistente", func(t *testing.T) {
		doc, err := xmltree.Parse([]byte(plainDoc))
		require.NoError(t, err)
		sig := xmldsig.NewSignature("firma")
		doc.Root().AddChild(sig.Element())
		_, err = sig.AddReference("", "#nada", "", xades.SHA256)
		require.NoError(t, err)
		assert.ErrorIs(t, engine.Sign(doc, sig, key, [][]byte{certDER}), xmldsig.ErrReferenceTarget)
	})

	t.Run("transformada desconocida", func(t *testing.T) {
		doc, err := xmltree.Parse([]byte(plainDoc))
		require.NoError(t, err)
		sig := xmldsig.NewSignature("firma")
		doc.Root().AddChild(sig.Element())
		_, err = sig.AddReference("", "", "", xades.SHA256, "urn:xpath")
		require.NoError(t, err)
		assert.ErrorIs(t, engine.Sign(doc, sig, key, [][]byte{certDER}), xmldsig.ErrUnsupportedTransform)
	})

	t.Run("llave no RSA", func(t *testing.T) {
		doc, sig := newSignedDoc(t)
		ec, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)
		assert.ErrorIs(t, engine.Sign(doc, sig, ec, [][]byte{certDER}), xmldsig.ErrUnsupportedKey)
	})
}

func TestSignature_ReferenciaDuplicada(t *testing.T) {
	sig := xmldsig.NewSignature("firma")
	_, err := sig.AddReference("a", "#x", "", xades.SHA256)
	require.NoError(t, err)
	_, err = sig.AddReference("b", "#x", "", xades.SHA256)
	assert.ErrorIs(t, err, xmldsig.ErrDuplicateReference)
	assert.Len(t, sig.References(), 1)
}

func TestSignature_KeyInfoDespuesDeSignatureValue(t *testing.T) {
	sig := xmldsig.NewSignature("firma")
	sig.AddObject("obj")
	ki := sig.EnsureKeyInfo("ki")
	assert.Same(t, ki, sig.EnsureKeyInfo("otro"))

	var tags []string
	for _, c := range sig.Element().ChildElements() {
		tags = append(tags, c.Tag)
	}
	assert.Equal(t, []string{"SignedInfo", "SignatureValue", "KeyInfo", "Object"}, tags)

	wrapped, err := xmldsig.Wrap(sig.Element())
	require.NoError(t, err)
	assert.Equal(t, "firma", wrapped.ID())
}
