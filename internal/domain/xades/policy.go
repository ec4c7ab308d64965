package xades

import "fmt"

// Valores publicados por la DIAN para la política de firma v2.
const (
	PolicyIdentifierV2  = "https://facturaelectronica.dian.gov.co/politicadefirma/v2/politicadefirmav2.pdf"
	PolicyDescriptionV2 = "Política de firma para facturas electrónicas de la República de Colombia."
	// PolicyDigestV2 es el SHA-256 (Base64) de politicadefirmav2.pdf.
	PolicyDigestV2 = "dMoMvtcG5aIzgYo0tIsSQeVJBDnUnfSOfBpxXrmor0Y="

	RoleSupplier = "supplier"
)

// Policy agrupa los literales de la política que se escriben en SignedProperties.
// Es un valor inmutable inyectado al construir el servicio de firma.
type Policy struct {
	Identifier  string
	Description string
	Role        string
	// DigestMethodURI es el algoritmo que se declara en SigPolicyHash/DigestMethod.
	DigestMethodURI string
}

// DefaultPolicy devuelve la política DIAN v2 con rol de facturador.
func DefaultPolicy() Policy {
	return Policy{
		Identifier:      PolicyIdentifierV2,
		Description:     PolicyDescriptionV2,
		Role:            RoleSupplier,
		DigestMethodURI: SHA256.URI(),
	}
}

// Validate exige los literales obligatorios.
func (p Policy) Validate() error {
	switch {
	case p.Identifier == "":
		return fmt.Errorf("xades: política sin identificador")
	case p.Role == "":
		return fmt.Errorf("xades: política sin rol de firmante")
	case p.DigestMethodURI == "":
		return fmt.Errorf("xades: política sin método de digest")
	}
	return nil
}

// PolicyDocument es el contenido autoritativo de una política (el PDF publicado).
type PolicyDocument struct {
	Identifier string
	Content    []byte
}
