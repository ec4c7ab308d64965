package signer_test

import (
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facho-signer/internal/domain/xades"
	"github.com/jhoicas/facho-signer/internal/infrastructure/dian/signer"
	"github.com/jhoicas/facho-signer/internal/infrastructure/xmldsig"
	"github.com/jhoicas/facho-signer/internal/infrastructure/xmltree"
)

func newAssembler() signer.Assembler {
	return signer.Assembler{
		Policy: xades.DefaultPolicy(),
		Clock:  clockwork.NewFakeClockAt(frozen),
	}
}

func TestAssemble_RetieneNodos(t *testing.T) {
	doc, err := xmltree.Parse([]byte(`<Invoice/>`))
	require.NoError(t, err)
	sig := xmldsig.NewSignature("firma")
	sig.DeclareNamespace(signer.PrefixXAdES, signer.NamespaceXAdES)
	doc.Root().AddChild(sig.Element())

	qp, err := newAssembler().Assemble(doc.Root(), sig, signer.NewIDs("firma"))
	require.NoError(t, err)

	assert.Equal(t, xades.PolicyIdentifierV2, qp.Identifier.Text())
	assert.Empty(t, qp.PolicyDigestValue.Text())
	assert.Empty(t, qp.SigningCertificate.ChildElements())
	assert.Same(t, sig.References()[0], qp.Reference)
	assert.Equal(t, "#firma-signed-props", qp.Reference.SelectAttrValue("URI", ""))
	assert.Equal(t, xmldsig.AlgC14N, qp.Reference.FindElement("./ds:Transforms/ds:Transform").SelectAttrValue("Algorithm", ""))
	assert.Same(t, sig.Element(), qp.Object.Parent())
}

func TestAssemble_RollbackConReferenciaDuplicada(t *testing.T) {
	doc, err := xmltree.Parse([]byte(`<Invoice/>`))
	require.NoError(t, err)
	sig := xmldsig.NewSignature("firma")
	doc.Root().AddChild(sig.Element())
	ids := signer.NewIDs("firma")

	_, err = sig.AddReference("previa", "#"+ids.SignedProperties, "", xades.SHA256)
	require.NoError(t, err)

	qp, err := newAssembler().Assemble(doc.Root(), sig, ids)
	assert.Nil(t, qp)
	require.ErrorIs(t, err, xades.ErrAssemblyFailed)
	assert.ErrorIs(t, err, xmldsig.ErrDuplicateReference)
	assert.Contains(t, err.Error(), "ds:Reference")

	assert.Equal(t, []string{"SignedInfo", "SignatureValue"}, localTags(sig.Element()), "no queda ds:Object")
	assert.Len(t, sig.References(), 1)
}

func TestAssemble_IDInvalidoODuplicado(t *testing.T) {
	doc, err := xmltree.Parse([]byte(`<Invoice><cbc:Note xmlns:cbc="urn:cbc" Id="firma-signed-props"/></Invoice>`))
	require.NoError(t, err)
	sig := xmldsig.NewSignature("firma")
	doc.Root().AddChild(sig.Element())

	_, err = newAssembler().Assemble(doc.Root(), sig, signer.NewIDs("firma"))
	assert.ErrorIs(t, err, xades.ErrAssemblyFailed)
	assert.ErrorIs(t, err, xmltree.ErrDuplicateNode)

	ids := signer.NewIDs("firma")
	ids.SignedProperties = "9 props"
	_, err = newAssembler().Assemble(doc.Root(), sig, ids)
	assert.ErrorIs(t, err, xades.ErrAssemblyFailed)
	assert.Empty(t, sig.References())
}

func TestCreateAnchor_PrefijoEnConflicto(t *testing.T) {
	doc, err := xmltree.Parse([]byte(`<Invoice xmlns:ext="urn:otro"/>`))
	require.NoError(t, err)
	_, err = signer.CreateAnchor(doc.Root())
	assert.ErrorIs(t, err, xades.ErrAssemblyFailed)
	assert.Empty(t, doc.Root().ChildElements())
}

func TestCreateAnchor_ConflictoAlSubirNoDejaCambios(t *testing.T) {
	input := `<Invoice xmlns="urn:i" xmlns:q="urn:q"><e:UBLExtensions xmlns:e="` + nsExt + `"><e:UBLExtension xmlns:q="urn:otro"><e:ExtensionContent/></e:UBLExtension></e:UBLExtensions></Invoice>`
	doc, err := xmltree.Parse([]byte(input))
	require.NoError(t, err)

	_, err = signer.CreateAnchor(doc.Root())
	assert.ErrorIs(t, err, xades.ErrAssemblyFailed)
	out, err := xmltree.Serialize(doc)
	require.NoError(t, err)
	assert.Equal(t, input, string(out))
}

func TestCreateAnchor_SubeDeclaraciones(t *testing.T) {
	doc, err := xmltree.Parse([]byte(`<Invoice><e:UBLExtensions xmlns:e="` + nsExt + `"><e:UBLExtension><e:ExtensionContent>  </e:ExtensionContent></e:UBLExtension></e:UBLExtensions></Invoice>`))
	require.NoError(t, err)

	anchor, err := signer.CreateAnchor(doc.Root())
	require.NoError(t, err)
	assert.True(t, anchor.Reused)
	assert.Empty(t, anchor.Content.Child)
	assert.Empty(t, xmltree.Declarations(anchor.Extensions))
	uri, ok := xmltree.LookupPrefix(doc.Root(), "e")
	require.True(t, ok)
	assert.Equal(t, nsExt, uri)

	sig := xmldsig.NewSignature("firma")
	doc.Root().AddChild(sig.Element())
	require.NoError(t, anchor.Relocate(sig.Element()))
	assert.Same(t, anchor.Content, sig.Element().Parent())
	assert.Len(t, doc.Root().ChildElements(), 1)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "AnchorCreated", signer.StateAnchorCreated.String())
	assert.Equal(t, "Failed", signer.StateFailed.String())
	assert.Equal(t, "Unknown", signer.State(99).String())
}
