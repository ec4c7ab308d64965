// Package xades contiene los valores de dominio de la firma XAdES para factura
// electrónica DIAN: métodos de digest, política de firma y taxonomía de errores.
// No depende de la representación XML.
package xades

import (
	"crypto"
	_ "crypto/sha256" // registra crypto.SHA256
	"encoding/base64"
	"fmt"
)

// DigestMethod es un método de digest soportado. El conjunto es cerrado: sólo
// existen los valores declarados en este paquete.
type DigestMethod struct {
	name string
	uri  string
	hash crypto.Hash
}

// SHA256 es el único método de digest de la política DIAN.
var SHA256 = DigestMethod{
	name: "SHA-256",
	uri:  "http://www.w3.org/2001/04/xmlenc#sha256",
	hash: crypto.SHA256,
}

var digestMethods = []DigestMethod{SHA256}

// DigestMethodByURI resuelve el identificador de algoritmo de un ds:DigestMethod.
func DigestMethodByURI(uri string) (DigestMethod, error) {
	for _, m := range digestMethods {
		if m.uri == uri {
			return m, nil
		}
	}
	return DigestMethod{}, fmt.Errorf("%w: %q", ErrUnsupportedDigestMethod, uri)
}

// Name nombre legible del método (para logs).
func (m DigestMethod) Name() string { return m.name }

// URI identificador del algoritmo para el atributo Algorithm.
func (m DigestMethod) URI() string { return m.uri }

// IsZero indica si el método no fue seleccionado.
func (m DigestMethod) IsZero() bool { return m.uri == "" }

// Sum calcula el digest crudo de data.
func (m DigestMethod) Sum(data []byte) ([]byte, error) {
	if m.IsZero() || !m.hash.Available() {
		return nil, fmt.Errorf("%w: método %q no disponible", ErrDigestFailed, m.uri)
	}
	h := m.hash.New()
	if _, err := h.Write(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDigestFailed, err)
	}
	return h.Sum(nil), nil
}

// Digest calcula el digest de data y lo devuelve en Base64 estándar.
func (m DigestMethod) Digest(data []byte) (string, error) {
	sum, err := m.Sum(data)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sum), nil
}

// Hash devuelve la función hash subyacente (para firmar con crypto.Signer).
func (m DigestMethod) Hash() crypto.Hash { return m.hash }
