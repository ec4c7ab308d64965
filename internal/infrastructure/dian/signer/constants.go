// Constantes para firma XAdES-EPES (Anexo Técnico 1.9 DIAN).

package signer

// Namespaces XAdES y de extensiones UBL.
const (
	NamespaceXAdES = "http://uri.etsi.org/01903/v1.3.2#"
	PrefixXAdES    = "xades"
	NamespaceExt   = "urn:oasis:names:specification:ubl:schema:xsd:CommonExtensionComponents-2"
	PrefixExt      = "ext"

	// SignedPropertiesType es el Type de la Reference sobre SignedProperties.
	SignedPropertiesType = "http://uri.etsi.org/01903#SignedProperties"
)

// SigningTimeLayout hora local a segundos, sin zona.
const SigningTimeLayout = "2006-01-02T15:04:05"

// DefaultIDPrefix prefijo de los Id de la firma.
const DefaultIDPrefix = "xmldsig-facho"

// IDs de los nodos de una firma, derivados de un prefijo.
type IDs struct {
	Signature            string
	WholeDocumentRef     string
	SignedPropertiesRef  string
	KeyInfoRef           string
	KeyInfo              string
	QualifyingProperties string
	SignedProperties     string
}

// NewIDs deriva los Id a partir de prefix.
func NewIDs(prefix string) IDs {
	if prefix == "" {
		prefix = DefaultIDPrefix
	}
	return IDs{
		Signature:            prefix,
		WholeDocumentRef:     prefix + "-ref0",
		SignedPropertiesRef:  prefix + "-ref1",
		KeyInfoRef:           prefix + "-ref2",
		KeyInfo:              prefix + "-KeyInfo",
		QualifyingProperties: prefix + "-qualifying-props",
		SignedProperties:     prefix + "-signed-props",
	}
}

// Nombres locales XAdES.
const (
	tagQualifyingProperties      = "QualifyingProperties"
	tagSignedProperties          = "SignedProperties"
	tagSignedSignatureProperties = "SignedSignatureProperties"
	tagSigningTime               = "SigningTime"
	tagSigningCertificate        = "SigningCertificate"
	tagCert                      = "Cert"
	tagCertDigest                = "CertDigest"
	tagIssuerSerial              = "IssuerSerial"
	tagSignaturePolicyIdentifier = "SignaturePolicyIdentifier"
	tagSignaturePolicyID         = "SignaturePolicyId"
	tagSigPolicyID               = "SigPolicyId"
	tagIdentifier                = "Identifier"
	tagDescription               = "Description"
	tagSigPolicyHash             = "SigPolicyHash"
	tagSignerRole                = "SignerRole"
	tagClaimedRoles              = "ClaimedRoles"
	tagClaimedRole               = "ClaimedRole"

	tagUBLExtensions    = "UBLExtensions"
	tagUBLExtension     = "UBLExtension"
	tagExtensionContent = "ExtensionContent"
)

func xadesTag(local string) string { return PrefixXAdES + ":" + local }
