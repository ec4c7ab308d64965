// Servicio de firma digital XAdES-EPES para factura electrónica DIAN (Anexo 1.9).
// Inyecta <ds:Signature> en un <ext:ExtensionContent> del XML.

package signer

import (
	"crypto"
	"fmt"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/jhoicas/facho-signer/internal/domain/xades"
	"github.com/jhoicas/facho-signer/internal/infrastructure/xmldsig"
	"github.com/jhoicas/facho-signer/internal/infrastructure/xmltree"
	"github.com/jhoicas/facho-signer/pkg/dian"
)

// SignatureEngine calcula digests y el valor de firma sobre una plantilla
// ya adjunta al documento.
type SignatureEngine interface {
	Sign(doc *etree.Document, sig *xmldsig.Signature, key crypto.Signer, chain [][]byte) error
}

// Config valores inmutables del servicio. Los campos vacíos toman los valores
// por defecto de la política DIAN v2.
type Config struct {
	Policy xades.Policy
	// PinnedPolicyDigest digest publicado del PDF de la política ("" no verifica).
	PinnedPolicyDigest string
	IDPrefix           string
	Location           *time.Location
	Clock              clockwork.Clock
	Resolver           PolicyResolver
	Engine             SignatureEngine
	Logger             *zerolog.Logger
}

// DigitalSignatureService implementa la firma XAdES-EPES e inyecta el nodo en el XML.
// No guarda estado entre firmas; puede reutilizarse.
type DigitalSignatureService struct {
	ids       IDs
	assembler Assembler
	policy    PolicyDigester
	engine    SignatureEngine
	log       zerolog.Logger
}

// NewDigitalSignatureService crea el servicio.
func NewDigitalSignatureService(cfg Config) (*DigitalSignatureService, error) {
	if cfg.Policy == (xades.Policy{}) {
		cfg.Policy = xades.DefaultPolicy()
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	if cfg.IDPrefix == "" {
		cfg.IDPrefix = DefaultIDPrefix
	}
	if !xmltree.ValidNCName(cfg.IDPrefix) {
		return nil, fmt.Errorf("dian: prefijo de Id inválido %q", cfg.IDPrefix)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Resolver == nil {
		cfg.Resolver = BundledPolicy{}
	}
	if cfg.Engine == nil {
		cfg.Engine = xmldsig.NewEngine()
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	return &DigitalSignatureService{
		ids: NewIDs(cfg.IDPrefix),
		assembler: Assembler{
			Policy:   cfg.Policy,
			Clock:    cfg.Clock,
			Location: cfg.Location,
		},
		policy: PolicyDigester{
			Resolver: cfg.Resolver,
			Method:   xades.SHA256,
			Pinned:   cfg.PinnedPolicyDigest,
		},
		engine: cfg.Engine,
		log:    log,
	}, nil
}

// operation sigue el estado de una firma.
type operation struct {
	state State
	log   zerolog.Logger
}

func (o *operation) advance(s State) {
	o.state = s
	o.log.Debug().Str("estado", s.String()).Msg("firma: transición")
}

func (o *operation) fail(kind error, op string, err error) error {
	xe := xades.Fail(kind, op, err)
	xe.State = o.state.String()
	o.state = StateFailed
	o.log.Debug().Err(xe).Msg("firma: fallida")
	return xe
}

// Sign implementa pkg/dian.Signer. Firma el XML e inyecta ds:Signature en el
// ExtensionContent. Sólo retorna bytes si todas las etapas terminan.
func (s *DigitalSignatureService) Sign(xmlBytes []byte, keys dian.KeyLoader) (out []byte, err error) {
	o := &operation{
		state: StateInitialized,
		log:   s.log.With().Str("operacion", uuid.NewString()).Logger(),
	}

	doc, err := xmltree.Parse(xmlBytes)
	if err != nil {
		return nil, o.fail(xades.ErrDocumentParse, "documento", err)
	}
	root := doc.Root()

	// 1) Plantilla: Reference al documento y al KeyInfo
	sig := xmldsig.NewSignature(s.ids.Signature)
	sig.DeclareNamespace(PrefixXAdES, NamespaceXAdES)
	root.AddChild(sig.Element())
	defer func() {
		if err != nil {
			if p := sig.Element().Parent(); p != nil {
				p.RemoveChild(sig.Element())
			}
		}
	}()
	if _, err := sig.AddReference(s.ids.WholeDocumentRef, "", "", xades.SHA256, xmldsig.TransformEnveloped); err != nil {
		return nil, o.fail(xades.ErrAssemblyFailed, "ds:Reference", err)
	}
	keyInfo := sig.EnsureKeyInfo(s.ids.KeyInfo)
	sig.AddX509Data(keyInfo)
	if _, err := sig.AddReference(s.ids.KeyInfoRef, "#"+s.ids.KeyInfo, "", xades.SHA256); err != nil {
		return nil, o.fail(xades.ErrAssemblyFailed, "ds:Reference", err)
	}
	o.advance(StateSkeletonBuilt)

	// 2) QualifyingProperties (registra la Reference a SignedProperties)
	qp, err := s.assembler.Assemble(root, sig, s.ids)
	if err != nil {
		return nil, o.fail(xades.ErrAssemblyFailed, "xades:QualifyingProperties", err)
	}
	o.advance(StatePropertiesAssembled)

	// 3) Llave y cadena
	if keys == nil {
		return nil, o.fail(xades.ErrKeyLoadFailed, "llave", fmt.Errorf("no se indicó origen de la llave"))
	}
	cert, err := keys.Load()
	if err != nil {
		return nil, o.fail(xades.ErrKeyLoadFailed, "llave", err)
	}
	key, ok := cert.PrivateKey.(crypto.Signer)
	if !ok {
		return nil, o.fail(xades.ErrKeyLoadFailed, "llave", fmt.Errorf("la llave privada no puede firmar"))
	}
	o.advance(StateKeyLoaded)

	// 4) Ancla antes de firmar
	anchor, err := CreateAnchor(root)
	if err != nil {
		return nil, o.fail(xades.ErrAssemblyFailed, "ext:UBLExtensions", err)
	}
	o.advance(StateAnchorCreated)

	// 5) Certificados
	if err := EmbedCertificates(qp.SigningCertificate, cert.Certificate, xades.SHA256); err != nil {
		return nil, o.fail(xades.ErrCertificate, "xades:SigningCertificate", err)
	}
	o.advance(StateCertificatesEmbedded)

	// 6) Digest de la política
	digester := s.policy
	digester.Log = o.log
	if err := digester.Embed(qp); err != nil {
		return nil, o.fail(xades.ErrPolicyResolutionFailed, "xades:SigPolicyHash", err)
	}
	o.advance(StatePolicyDigestEmbedded)

	// 7) Firma
	if err := s.engine.Sign(doc, sig, key, cert.Certificate); err != nil {
		return nil, o.fail(xades.ErrSignEngineFailed, "ds:SignedInfo", err)
	}
	o.advance(StateSigned)

	// 8) Mover la firma al ExtensionContent
	if err := anchor.Relocate(sig.Element()); err != nil {
		return nil, o.fail(xades.ErrAssemblyFailed, "ext:ExtensionContent", err)
	}
	o.advance(StateRelocated)

	// 9) Serializar
	out, err = xmltree.Serialize(doc)
	if err != nil {
		return nil, o.fail(xades.ErrAssemblyFailed, "documento", err)
	}
	o.advance(StateDone)
	o.log.Info().
		Str("digest", s.policy.Method.Name()).
		Int("certificados", len(cert.Certificate)).
		Bool("extension_reservada", anchor.Reused).
		Msg("firma: documento firmado")
	return out, nil
}

var _ dian.Signer = (*DigitalSignatureService)(nil)
