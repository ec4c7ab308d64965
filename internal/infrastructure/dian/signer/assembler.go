package signer

import (
	"fmt"
	"time"

	"github.com/beevik/etree"
	"github.com/jonboulle/clockwork"

	"github.com/jhoicas/facho-signer/internal/domain/xades"
	"github.com/jhoicas/facho-signer/internal/infrastructure/xmldsig"
	"github.com/jhoicas/facho-signer/internal/infrastructure/xmltree"
)

// QualifyingProperties conserva los nodos creados por el ensamblador que se
// completan más adelante en la firma.
type QualifyingProperties struct {
	Object             *etree.Element
	Reference          *etree.Element
	SignedProperties   *etree.Element
	SigningTime        *etree.Element
	SigningCertificate *etree.Element
	Identifier         *etree.Element
	PolicyDigestMethod *etree.Element
	PolicyDigestValue  *etree.Element
}

// Assembler construye ds:Object/xades:QualifyingProperties.
type Assembler struct {
	Policy   xades.Policy
	Clock    clockwork.Clock
	Location *time.Location
}

// Assemble agrega las propiedades firmadas a sig y registra la Reference sobre
// SignedProperties. Si algún paso falla no queda nada de lo creado (ni el
// Object ni la Reference) y el error es ErrAssemblyFailed con el elemento.
func (a Assembler) Assemble(root *etree.Element, sig *xmldsig.Signature, ids IDs) (*QualifyingProperties, error) {
	scope := xmltree.NewScope()
	defer scope.Release()

	id := ids.SignedProperties
	if !xmltree.ValidNCName(id) {
		return nil, xades.Fail(xades.ErrAssemblyFailed, xadesTag(tagSignedProperties), fmt.Errorf("Id inválido %q", id))
	}
	if xmltree.FindByID(root, id) != nil {
		return nil, xades.Fail(xades.ErrAssemblyFailed, xadesTag(tagSignedProperties), fmt.Errorf("%w: Id %q", xmltree.ErrDuplicateNode, id))
	}

	qp := &QualifyingProperties{}
	qp.Object = scope.Track(sig.AddObject(""))

	props, err := scope.AddUnique(qp.Object, xadesTag(tagQualifyingProperties), NamespaceXAdES)
	if err != nil {
		return nil, xades.Fail(xades.ErrAssemblyFailed, xadesTag(tagQualifyingProperties), err)
	}
	if ids.QualifyingProperties != "" {
		props.CreateAttr("Id", ids.QualifyingProperties)
	}
	if sig.ID() != "" {
		props.CreateAttr("Target", "#"+sig.ID())
	}

	qp.SignedProperties, err = scope.AddUnique(props, xadesTag(tagSignedProperties), NamespaceXAdES)
	if err != nil {
		return nil, xades.Fail(xades.ErrAssemblyFailed, xadesTag(tagSignedProperties), err)
	}
	qp.SignedProperties.CreateAttr("Id", id)

	ref, err := sig.AddReference(ids.SignedPropertiesRef, "#"+id, SignedPropertiesType, xades.SHA256, xmldsig.AlgC14N)
	if err != nil {
		return nil, xades.Fail(xades.ErrAssemblyFailed, xmldsig.Prefix+":"+xmldsig.TagReference, err)
	}
	qp.Reference = scope.Track(ref)

	ssp := scope.Add(qp.SignedProperties, xadesTag(tagSignedSignatureProperties))
	qp.SigningTime = scope.Add(ssp, xadesTag(tagSigningTime))
	qp.SigningTime.SetText(a.signingTime())
	qp.SigningCertificate = scope.Add(ssp, xadesTag(tagSigningCertificate))

	spi := scope.Add(ssp, xadesTag(tagSignaturePolicyIdentifier))
	spid := scope.Add(spi, xadesTag(tagSignaturePolicyID))
	polID := scope.Add(spid, xadesTag(tagSigPolicyID))
	qp.Identifier = scope.Add(polID, xadesTag(tagIdentifier))
	qp.Identifier.SetText(a.Policy.Identifier)
	scope.Add(polID, xadesTag(tagDescription)).SetText(a.Policy.Description)

	hash := scope.Add(spid, xadesTag(tagSigPolicyHash))
	qp.PolicyDigestMethod = scope.Add(hash, xmldsig.Prefix+":"+xmldsig.TagDigestMethod)
	qp.PolicyDigestMethod.CreateAttr(xmldsig.AttrAlgorithm, a.Policy.DigestMethodURI)
	qp.PolicyDigestValue = scope.Add(hash, xmldsig.Prefix+":"+xmldsig.TagDigestValue)

	role := scope.Add(ssp, xadesTag(tagSignerRole))
	claimed := scope.Add(role, xadesTag(tagClaimedRoles))
	scope.Add(claimed, xadesTag(tagClaimedRole)).SetText(a.Policy.Role)

	scope.Commit()
	return qp, nil
}

func (a Assembler) signingTime() string {
	clock := a.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	loc := a.Location
	if loc == nil {
		loc = time.Local
	}
	return clock.Now().In(loc).Format(SigningTimeLayout)
}
