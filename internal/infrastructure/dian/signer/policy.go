// Digest de la política de firma (xades:SigPolicyHash).

package signer

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/rs/zerolog"

	"github.com/jhoicas/facho-signer/internal/domain/xades"
	"github.com/jhoicas/facho-signer/internal/infrastructure/xmldsig"
)

//go:embed policy
var bundle embed.FS

const bundledPolicyFile = "policy/politicadefirmav2.pdf"

// ErrPolicyNotBundled el binario no incluye el PDF de la política.
var ErrPolicyNotBundled = errors.New("dian: el documento de la política no está incluido")

// PolicyResolver obtiene el documento que respalda un identificador de política.
type PolicyResolver interface {
	Resolve(identifier string) (xades.PolicyDocument, error)
}

// BundledPolicy resuelve cualquier identificador al único documento
// soportado: el archivo Path si se configuró, o el PDF incluido en el binario.
type BundledPolicy struct {
	Path string
}

// Resolve devuelve el documento de la política v2.
func (b BundledPolicy) Resolve(identifier string) (xades.PolicyDocument, error) {
	if b.Path != "" {
		data, err := os.ReadFile(b.Path)
		if err != nil {
			return xades.PolicyDocument{}, fmt.Errorf("dian: leer política %s: %w", b.Path, err)
		}
		return xades.PolicyDocument{Identifier: identifier, Content: data}, nil
	}
	data, err := bundle.ReadFile(bundledPolicyFile)
	if errors.Is(err, fs.ErrNotExist) {
		return xades.PolicyDocument{}, ErrPolicyNotBundled
	}
	if err != nil {
		return xades.PolicyDocument{}, fmt.Errorf("dian: leer política incluida: %w", err)
	}
	return xades.PolicyDocument{Identifier: identifier, Content: data}, nil
}

// PolicyDigester escribe el digest de la política en SigPolicyHash.
type PolicyDigester struct {
	Resolver PolicyResolver
	Method   xades.DigestMethod
	// Pinned es el digest publicado (Base64). Si no está vacío, el documento
	// resuelto debe coincidir; y si no hay documento incluido se usa este valor.
	Pinned string
	Log    zerolog.Logger
}

// Embed lee el identificador ya escrito por el ensamblador, valida el método
// de digest declarado y completa el DigestValue.
func (p PolicyDigester) Embed(qp *QualifyingProperties) error {
	const op = "xades:SigPolicyHash"
	if qp == nil || qp.Identifier == nil || qp.PolicyDigestMethod == nil || qp.PolicyDigestValue == nil {
		return xades.Fail(xades.ErrPolicyResolutionFailed, op, fmt.Errorf("faltan los nodos de la política"))
	}
	declared := qp.PolicyDigestMethod.SelectAttrValue(xmldsig.AttrAlgorithm, "")
	if declared != p.Method.URI() {
		return xades.Fail(xades.ErrUnsupportedDigestMethod, op, fmt.Errorf("%q (se esperaba %q)", declared, p.Method.URI()))
	}

	identifier := qp.Identifier.Text()
	doc, err := p.Resolver.Resolve(identifier)
	if errors.Is(err, ErrPolicyNotBundled) && p.Pinned != "" {
		p.Log.Warn().Str("identificador", identifier).
			Str("metodo", p.Method.Name()).Str("digest", p.Pinned).
			Msg("política: el PDF no está incluido ni configurado, se usa el digest publicado")
		qp.PolicyDigestValue.SetText(p.Pinned)
		return nil
	}
	if err != nil {
		return xades.Fail(xades.ErrPolicyResolutionFailed, op, err)
	}
	if len(doc.Content) == 0 {
		return xades.Fail(xades.ErrPolicyResolutionFailed, op, fmt.Errorf("documento de política vacío para %q", identifier))
	}
	value, err := p.Method.Digest(doc.Content)
	if err != nil {
		return xades.Fail(xades.ErrPolicyResolutionFailed, op, err)
	}
	if p.Pinned != "" && value != p.Pinned {
		return xades.Fail(xades.ErrPolicyResolutionFailed, op, fmt.Errorf("digest %s no coincide con el publicado %s", value, p.Pinned))
	}
	qp.PolicyDigestValue.SetText(value)
	return nil
}
