package xmldsig

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
	"github.com/russellhaering/goxmldsig/etreeutils"

	"github.com/jhoicas/facho-signer/internal/domain/xades"
	"github.com/jhoicas/facho-signer/internal/infrastructure/xmltree"
)

// Engine calcula los digests de las referencias y el valor de firma. No guarda
// estado entre firmas.
type Engine struct {
	canonicalizer dsig.Canonicalizer
	signature     xades.DigestMethod
}

// NewEngine crea el motor con C14N inclusivo y RSA-SHA256.
func NewEngine() *Engine {
	return &Engine{
		canonicalizer: dsig.MakeC14N10RecCanonicalizer(),
		signature:     xades.SHA256,
	}
}

// Sign completa la plantilla sig, que debe estar adjunta a doc: escribe el
// certificado del firmante en los X509Certificate vacíos, calcula el
// DigestValue de cada Reference en orden y firma el SignedInfo canonicalizado.
// chain es la cadena DER con el certificado del firmante primero.
func (e *Engine) Sign(doc *etree.Document, sig *Signature, key crypto.Signer, chain [][]byte) error {
	root := doc.Root()
	if root == nil {
		return fmt.Errorf("xmldsig: documento sin raíz")
	}
	if _, ok := xmltree.Path(root, sig.Element()); !ok && sig.Element() != root {
		return ErrNotAttached
	}
	if key == nil {
		return fmt.Errorf("xmldsig: llave de firma nula")
	}
	if _, ok := key.Public().(*rsa.PublicKey); !ok {
		return ErrUnsupportedKey
	}
	if len(chain) == 0 {
		return fmt.Errorf("xmldsig: no hay certificado para KeyInfo")
	}

	if ki := sig.KeyInfo(); ki != nil {
		for _, data := range xmltree.ChildrenNS(ki, Namespace, TagX509Data) {
			for _, c := range xmltree.ChildrenNS(data, Namespace, TagX509Certificate) {
				if strings.TrimSpace(c.Text()) == "" {
					c.SetText(base64.StdEncoding.EncodeToString(chain[0]))
				}
			}
		}
	}

	for _, ref := range sig.References() {
		value, err := e.DigestReference(root, sig.Element(), ref)
		if err != nil {
			return err
		}
		dv := xmltree.ChildNS(ref, Namespace, TagDigestValue)
		if dv == nil {
			dv = ref.CreateElement(Prefix + ":" + TagDigestValue)
		}
		dv.SetText(value)
	}

	canonical, err := e.CanonicalSignedInfo(sig)
	if err != nil {
		return err
	}
	method := xmltree.ChildNS(sig.signedInfo, Namespace, TagSignatureMethod)
	if method == nil || method.SelectAttrValue(AttrAlgorithm, "") != AlgRSASHA256 {
		return fmt.Errorf("%w: SignatureMethod", ErrUnsupportedAlgorithm)
	}
	hashed, err := e.signature.Sum(canonical)
	if err != nil {
		return err
	}
	value, err := key.Sign(rand.Reader, hashed, e.signature.Hash())
	if err != nil {
		return fmt.Errorf("xmldsig: firmar SignedInfo: %w", err)
	}
	sig.signatureValue.SetText(base64.StdEncoding.EncodeToString(value))
	return nil
}

// CanonicalSignedInfo devuelve la forma canónica del SignedInfo en su posición
// actual, con todos los namespaces en ámbito.
func (e *Engine) CanonicalSignedInfo(sig *Signature) ([]byte, error) {
	cm := xmltree.ChildNS(sig.signedInfo, Namespace, TagCanonicalizationMethod)
	if cm == nil || cm.SelectAttrValue(AttrAlgorithm, "") != AlgC14N {
		return nil, fmt.Errorf("%w: CanonicalizationMethod", ErrUnsupportedAlgorithm)
	}
	return e.canonicalFragment(sig.signedInfo, sig.signedInfo)
}

// DigestReference calcula el DigestValue (Base64) de una ds:Reference de la
// firma sigEl dentro del árbol con raíz root.
func (e *Engine) DigestReference(root, sigEl, ref *etree.Element) (string, error) {
	uri := ref.SelectAttrValue("URI", "")
	dm := xmltree.ChildNS(ref, Namespace, TagDigestMethod)
	if dm == nil {
		return "", fmt.Errorf("%w: Reference %q sin DigestMethod", ErrUnsupportedAlgorithm, uri)
	}
	method, err := xades.DigestMethodByURI(dm.SelectAttrValue(AttrAlgorithm, ""))
	if err != nil {
		return "", err
	}
	var transforms []string
	if ts := xmltree.ChildNS(ref, Namespace, TagTransforms); ts != nil {
		for _, t := range xmltree.ChildrenNS(ts, Namespace, TagTransform) {
			transforms = append(transforms, t.SelectAttrValue(AttrAlgorithm, ""))
		}
	}
	data, err := e.referenceData(root, sigEl, uri, transforms)
	if err != nil {
		return "", err
	}
	return method.Digest(data)
}

func (e *Engine) referenceData(root, sigEl *etree.Element, uri string, transforms []string) ([]byte, error) {
	var target *etree.Element
	switch {
	case uri == "":
		target = root
	case strings.HasPrefix(uri, "#"):
		target = xmltree.FindByID(root, strings.TrimPrefix(uri, "#"))
	default:
		return nil, fmt.Errorf("%w: URI externo %q", ErrReferenceTarget, uri)
	}
	if target == nil {
		return nil, fmt.Errorf("%w: %q", ErrReferenceTarget, uri)
	}

	node := target.Copy()
	for _, alg := range transforms {
		switch alg {
		case TransformEnveloped:
			path, ok := xmltree.Path(target, sigEl)
			if !ok {
				return nil, fmt.Errorf("%w: la firma no está dentro de %q", ErrReferenceTarget, uri)
			}
			inner := xmltree.Resolve(node, path)
			if inner == nil || inner.Parent() == nil {
				return nil, fmt.Errorf("%w: no se pudo excluir la firma", ErrUnsupportedTransform)
			}
			inner.Parent().RemoveChild(inner)
		case AlgC14N:
			// la canonicalización se aplica al final
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedTransform, alg)
		}
	}

	if uri == "" {
		return e.canonicalDocument(target, node)
	}
	return e.canonicalFragment(target, node)
}

// canonicalFragment canonicaliza node (una copia de orig, o orig mismo) con los
// namespaces en ámbito en la posición de orig.
func (e *Engine) canonicalFragment(orig, node *etree.Element) ([]byte, error) {
	ctx, err := etreeutils.NSBuildParentContext(orig)
	if err != nil {
		return nil, fmt.Errorf("xmldsig: contexto de namespaces: %w", err)
	}
	detached, err := etreeutils.NSDetatch(ctx, node)
	if err != nil {
		return nil, fmt.Errorf("xmldsig: desprender %s: %w", orig.FullTag(), err)
	}
	return e.canonicalizer.Canonicalize(detached)
}

// canonicalDocument canonicaliza el documento completo (URI ""): node es la
// copia transformada de root, y las instrucciones de procesamiento fuera de la
// raíz se conservan. Los comentarios no entran en la forma canónica.
func (e *Engine) canonicalDocument(root, node *etree.Element) ([]byte, error) {
	body, err := e.canonicalizer.Canonicalize(node)
	if err != nil {
		return nil, fmt.Errorf("xmldsig: canonicalizar documento: %w", err)
	}
	doc := root.Parent()
	if doc == nil {
		return body, nil
	}

	var out bytes.Buffer
	seen := false
	for _, t := range doc.Child {
		switch v := t.(type) {
		case *etree.Element:
			out.Write(body)
			seen = true
		case *etree.ProcInst:
			if v.Target == "xml" {
				continue
			}
			if seen {
				out.WriteByte('\n')
			}
			out.WriteString("<?" + v.Target)
			if inst := strings.TrimLeft(v.Inst, " \t\r\n"); inst != "" {
				out.WriteString(" " + inst)
			}
			out.WriteString("?>")
			if !seen {
				out.WriteByte('\n')
			}
		}
	}
	return out.Bytes(), nil
}
