// Package dian: interfaz para firma digital de documentos XML (XAdES-EPES, DIAN).

package dian

import "crypto/tls"

// KeyLoader entrega la llave privada del firmante y su cadena de certificados
// (firmante primero). Se invoca una vez por firma.
type KeyLoader interface {
	Load() (tls.Certificate, error)
}

// Signer firma un XML de factura y devuelve el XML con la firma inyectada en el ExtensionContent.
type Signer interface {
	// Sign toma el XML de la factura (sin firma) y el origen de la llave, y
	// retorna el XML con el nodo ds:Signature dentro de ext:ExtensionContent.
	// Si falla no retorna bytes.
	Sign(xmlBytes []byte, keys KeyLoader) ([]byte, error)
}
