// Cadena de certificados del firmante en xades:SigningCertificate.

package signer

import (
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/beevik/etree"

	"github.com/jhoicas/facho-signer/internal/domain/xades"
	"github.com/jhoicas/facho-signer/internal/infrastructure/xmldsig"
	"github.com/jhoicas/facho-signer/internal/infrastructure/xmltree"
)

// CertDigestAndIssuerSerial devuelve el digest del certificado (Base64), el
// nombre del emisor y el serial en decimal para XAdES.
func CertDigestAndIssuerSerial(cert *x509.Certificate, method xades.DigestMethod) (digestB64, issuerName, serial string, err error) {
	digestB64, err = method.Digest(cert.Raw)
	if err != nil {
		return "", "", "", err
	}
	if cert.SerialNumber == nil || cert.SerialNumber.Sign() < 0 {
		return "", "", "", xades.ErrSerialEncodingFailed
	}
	return digestB64, cert.Issuer.String(), cert.SerialNumber.String(), nil
}

// EmbedCertificates agrega un xades:Cert por cada certificado DER de chain, en
// el mismo orden (firmante primero). Si un certificado falla, el placeholder
// queda vacío.
func EmbedCertificates(placeholder *etree.Element, chain [][]byte, method xades.DigestMethod) error {
	const op = "xades:Cert"
	if len(chain) == 0 {
		return xades.Fail(xades.ErrNoCertificates, op, nil)
	}
	scope := xmltree.NewScope()
	defer scope.Release()

	for i, der := range chain {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return xades.Fail(xades.ErrCertificateParse, op, fmt.Errorf("certificado %d: %w", i, err))
		}
		digest, issuer, serial, err := CertDigestAndIssuerSerial(cert, method)
		if err != nil {
			kind := xades.ErrDigestFailed
			if errors.Is(err, xades.ErrSerialEncodingFailed) {
				kind = xades.ErrSerialEncodingFailed
			}
			return xades.Fail(kind, op, fmt.Errorf("certificado %d: %w", i, err))
		}

		entry := scope.Add(placeholder, xadesTag(tagCert))
		cd := entry.CreateElement(xadesTag(tagCertDigest))
		cd.CreateElement(xmldsig.Prefix+":"+xmldsig.TagDigestMethod).CreateAttr(xmldsig.AttrAlgorithm, method.URI())
		cd.CreateElement(xmldsig.Prefix + ":" + xmldsig.TagDigestValue).SetText(digest)
		is := entry.CreateElement(xadesTag(tagIssuerSerial))
		is.CreateElement(xmldsig.Prefix + ":" + xmldsig.TagX509IssuerName).SetText(issuer)
		is.CreateElement(xmldsig.Prefix + ":" + xmldsig.TagX509SerialNumber).SetText(serial)
	}
	scope.Commit()
	return nil
}
