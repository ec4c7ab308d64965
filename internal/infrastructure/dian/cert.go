// Package dian: almacén de llaves del firmante. Carga la llave privada y la
// cadena de certificados desde un contenedor PKCS#12 (.p12/.pfx) o desde PEM.
package dian

import (
	"bytes"
	"crypto"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	legacy "golang.org/x/crypto/pkcs12"
	"software.sslmate.com/src/go-pkcs12"
)

var (
	// ErrKeyMismatch la llave privada no corresponde al certificado del firmante.
	ErrKeyMismatch = errors.New("dian: la llave privada no corresponde al certificado")
	// ErrNotSigner la llave del contenedor no sirve para firmar.
	ErrNotSigner = errors.New("dian: la llave del contenedor no puede firmar")
)

// P12File carga llave y cadena desde un archivo .p12/.pfx.
// El password puede ser vacío si el archivo no está protegido.
type P12File struct {
	Path     string
	Password string
}

// Load decodifica el contenedor. La cadena resultante va en orden: firmante
// primero y luego cada emisor.
func (p P12File) Load() (tls.Certificate, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("dian: leer p12: %w", err)
	}
	priv, leaf, cas, err := pkcs12.DecodeChain(data, p.Password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("dian: decodificar p12 %s: %w", p.Path, err)
	}
	signer, ok := priv.(crypto.Signer)
	if !ok {
		return tls.Certificate{}, ErrNotSigner
	}
	if err := matchKey(signer, leaf); err != nil {
		return tls.Certificate{}, err
	}

	chain := OrderChain(leaf, cas)
	raw := make([][]byte, 0, len(chain))
	for _, c := range chain {
		raw = append(raw, c.Raw)
	}
	return tls.Certificate{
		Certificate: raw,
		PrivateKey:  signer,
		Leaf:        leaf,
	}, nil
}

// PEMFiles carga certificado(s) y llave desde PEM. Si KeyPath está vacío, la
// llave se busca en el mismo archivo del certificado. El archivo de
// certificados puede traer la cadena completa, firmante primero.
type PEMFiles struct {
	CertPath string
	KeyPath  string
}

// Load lee el par PEM.
func (p PEMFiles) Load() (tls.Certificate, error) {
	if p.CertPath == "" {
		return tls.Certificate{}, fmt.Errorf("dian: falta la ruta del certificado PEM")
	}
	keyPath := p.KeyPath
	if keyPath == "" {
		keyPath = p.CertPath
	}
	cert, err := tls.LoadX509KeyPair(p.CertPath, keyPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("dian: cargar PEM: %w", err)
	}
	if cert.Leaf == nil {
		leaf, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("dian: parsear certificado PEM: %w", err)
		}
		cert.Leaf = leaf
	}
	return cert, nil
}

// OrderChain arma la cadena desde leaf siguiendo el emisor de cada
// certificado. Los que no enlazan se agregan al final en el orden recibido.
func OrderChain(leaf *x509.Certificate, pool []*x509.Certificate) []*x509.Certificate {
	chain := []*x509.Certificate{leaf}
	used := make([]bool, len(pool))
	cur := leaf
	for {
		next := -1
		for i, c := range pool {
			if !used[i] && !bytes.Equal(cur.RawSubject, cur.RawIssuer) && bytes.Equal(c.RawSubject, cur.RawIssuer) {
				next = i
				break
			}
		}
		if next < 0 {
			break
		}
		used[next] = true
		cur = pool[next]
		chain = append(chain, cur)
	}
	for i, c := range pool {
		if !used[i] {
			chain = append(chain, c)
		}
	}
	return chain
}

func matchKey(signer crypto.Signer, leaf *x509.Certificate) error {
	pub, ok := signer.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok || leaf == nil {
		return nil
	}
	if !pub.Equal(leaf.PublicKey) {
		return ErrKeyMismatch
	}
	return nil
}

// Bag describe una entrada de un contenedor PKCS#12.
type Bag struct {
	Type         string
	FriendlyName string
	Subject      string
	Issuer       string
	Serial       string
	Digest       string // SHA-256 del DER en Base64
}

// Inspect lista las entradas del contenedor sin armar la cadena. Sirve para
// diagnosticar contraseñas y contenedores incompletos.
func Inspect(path, password string) ([]Bag, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dian: leer p12: %w", err)
	}
	blocks, err := legacy.ToPEM(data, password)
	if err != nil {
		return nil, fmt.Errorf("dian: decodificar p12 %s: %w", path, err)
	}
	bags := make([]Bag, 0, len(blocks))
	for _, b := range blocks {
		bag := Bag{Type: b.Type, FriendlyName: b.Headers["friendlyName"]}
		if b.Type == "CERTIFICATE" {
			c, err := x509.ParseCertificate(b.Bytes)
			if err != nil {
				return nil, fmt.Errorf("dian: parsear certificado del p12: %w", err)
			}
			sum := sha256.Sum256(c.Raw)
			bag.Subject = c.Subject.String()
			bag.Issuer = c.Issuer.String()
			bag.Serial = c.SerialNumber.String()
			bag.Digest = base64.StdEncoding.EncodeToString(sum[:])
		}
		bags = append(bags, bag)
	}
	return bags, nil
}
