// Package xmldsig es el motor de firma XML-DSig: construye la plantilla
// ds:Signature (referencias, KeyInfo, Object) y la firma calculando los digests
// de cada Reference y el SignatureValue RSA-SHA256.
package xmldsig

import (
	"errors"
	"fmt"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/jhoicas/facho-signer/internal/domain/xades"
	"github.com/jhoicas/facho-signer/internal/infrastructure/xmltree"
)

// Namespace y algoritmos XMLDSig soportados.
const (
	Prefix             = "ds"
	Namespace          = dsig.Namespace
	AlgC14N            = string(dsig.CanonicalXML10RecAlgorithmId)
	AlgRSASHA256       = dsig.RSASHA256SignatureMethod
	TransformEnveloped = string(dsig.EnvelopedSignatureAltorithmId)
)

// Nombres locales de los elementos XMLDSig.
const (
	TagSignature              = "Signature"
	TagSignedInfo             = "SignedInfo"
	TagCanonicalizationMethod = "CanonicalizationMethod"
	TagSignatureMethod        = "SignatureMethod"
	TagReference              = "Reference"
	TagTransforms             = "Transforms"
	TagTransform              = "Transform"
	TagDigestMethod           = "DigestMethod"
	TagDigestValue            = "DigestValue"
	TagSignatureValue         = "SignatureValue"
	TagKeyInfo                = "KeyInfo"
	TagX509Data               = "X509Data"
	TagX509Certificate        = "X509Certificate"
	TagX509IssuerName         = "X509IssuerName"
	TagX509SerialNumber       = "X509SerialNumber"
	TagObject                 = "Object"

	AttrAlgorithm = "Algorithm"
)

var (
	ErrDuplicateReference   = errors.New("xmldsig: ya existe una Reference con ese URI")
	ErrReferenceTarget      = errors.New("xmldsig: no se encontró el destino de la Reference")
	ErrUnsupportedTransform = errors.New("xmldsig: transformada no soportada")
	ErrUnsupportedAlgorithm = errors.New("xmldsig: algoritmo no soportado")
	ErrNotAttached          = errors.New("xmldsig: la firma no está en el documento")
	ErrUnsupportedKey       = errors.New("xmldsig: la llave no es RSA")
)

// Signature es la plantilla ds:Signature en construcción.
type Signature struct {
	el             *etree.Element
	signedInfo     *etree.Element
	signatureValue *etree.Element
}

// NewSignature crea ds:Signature con SignedInfo (C14N inclusivo + RSA-SHA256)
// y un SignatureValue vacío. El elemento queda suelto: el llamador lo adjunta.
func NewSignature(id string) *Signature {
	el := etree.NewElement(Prefix + ":" + TagSignature)
	el.CreateAttr("xmlns:"+Prefix, Namespace)
	if id != "" {
		el.CreateAttr("Id", id)
	}
	si := el.CreateElement(Prefix + ":" + TagSignedInfo)
	si.CreateElement(Prefix+":"+TagCanonicalizationMethod).CreateAttr(AttrAlgorithm, AlgC14N)
	si.CreateElement(Prefix+":"+TagSignatureMethod).CreateAttr(AttrAlgorithm, AlgRSASHA256)
	sv := el.CreateElement(Prefix + ":" + TagSignatureValue)
	return &Signature{el: el, signedInfo: si, signatureValue: sv}
}

// Element devuelve el nodo ds:Signature.
func (s *Signature) Element() *etree.Element { return s.el }

// ID valor del atributo Id de la firma.
func (s *Signature) ID() string { return s.el.SelectAttrValue("Id", "") }

// SignatureValue devuelve el texto Base64 del SignatureValue (vacío antes de firmar).
func (s *Signature) SignatureValue() string { return s.signatureValue.Text() }

// DeclareNamespace declara prefix en el propio ds:Signature.
func (s *Signature) DeclareNamespace(prefix, uri string) {
	s.el.CreateAttr("xmlns:"+prefix, uri)
}

// AddReference registra una Reference en SignedInfo. El DigestValue queda vacío
// hasta Sign.
func (s *Signature) AddReference(id, uri, refType string, method xades.DigestMethod, transforms ...string) (*etree.Element, error) {
	for _, ref := range s.References() {
		if a := ref.SelectAttr("URI"); a != nil && a.Value == uri {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateReference, uri)
		}
	}
	if method.IsZero() {
		return nil, fmt.Errorf("%w: Reference %q sin método de digest", ErrUnsupportedAlgorithm, uri)
	}
	ref := etree.NewElement(Prefix + ":" + TagReference)
	if id != "" {
		ref.CreateAttr("Id", id)
	}
	ref.CreateAttr("URI", uri)
	if refType != "" {
		ref.CreateAttr("Type", refType)
	}
	if len(transforms) > 0 {
		ts := ref.CreateElement(Prefix + ":" + TagTransforms)
		for _, alg := range transforms {
			ts.CreateElement(Prefix+":"+TagTransform).CreateAttr(AttrAlgorithm, alg)
		}
	}
	ref.CreateElement(Prefix+":"+TagDigestMethod).CreateAttr(AttrAlgorithm, method.URI())
	ref.CreateElement(Prefix + ":" + TagDigestValue)
	s.signedInfo.AddChild(ref)
	return ref, nil
}

// References devuelve las ds:Reference de SignedInfo en orden de documento.
func (s *Signature) References() []*etree.Element {
	return xmltree.ChildrenNS(s.signedInfo, Namespace, TagReference)
}

// KeyInfo devuelve ds:KeyInfo o nil.
func (s *Signature) KeyInfo() *etree.Element {
	return xmltree.ChildNS(s.el, Namespace, TagKeyInfo)
}

// EnsureKeyInfo devuelve ds:KeyInfo creándolo, si falta, justo después de
// SignatureValue.
func (s *Signature) EnsureKeyInfo(id string) *etree.Element {
	if ki := s.KeyInfo(); ki != nil {
		return ki
	}
	ki := etree.NewElement(Prefix + ":" + TagKeyInfo)
	if id != "" {
		ki.CreateAttr("Id", id)
	}
	s.el.InsertChildAt(s.signatureValue.Index()+1, ki)
	return ki
}

// AddX509Data agrega KeyInfo/X509Data con un X509Certificate vacío que Sign
// completa con el certificado del firmante.
func (s *Signature) AddX509Data(keyInfo *etree.Element) *etree.Element {
	data := keyInfo.CreateElement(Prefix + ":" + TagX509Data)
	data.CreateElement(Prefix + ":" + TagX509Certificate)
	return data
}

// AddObject agrega un ds:Object al final de la firma.
func (s *Signature) AddObject(id string) *etree.Element {
	obj := s.el.CreateElement(Prefix + ":" + TagObject)
	if id != "" {
		obj.CreateAttr("Id", id)
	}
	return obj
}

// Wrap reconstruye el manejador de una firma ya existente en un árbol (por
// ejemplo en un documento firmado que se vuelve a leer).
func Wrap(el *etree.Element) (*Signature, error) {
	if el == nil || el.Tag != TagSignature || el.NamespaceURI() != Namespace {
		return nil, fmt.Errorf("xmldsig: el elemento no es ds:Signature")
	}
	si := xmltree.ChildNS(el, Namespace, TagSignedInfo)
	sv := xmltree.ChildNS(el, Namespace, TagSignatureValue)
	if si == nil || sv == nil {
		return nil, fmt.Errorf("xmldsig: ds:Signature sin SignedInfo o SignatureValue")
	}
	return &Signature{el: el, signedInfo: si, signatureValue: sv}, nil
}
