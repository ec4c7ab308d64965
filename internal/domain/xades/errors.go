package xades

import (
	"errors"
	"fmt"
)

// Errores de la firma (sin dependencias externas). Todos son fatales: la
// operación de firma no reintenta ni produce salida parcial.
var (
	ErrDocumentParse           = errors.New("xades: documento XML inválido")
	ErrAssemblyFailed          = errors.New("xades: no se pudo construir QualifyingProperties")
	ErrKeyLoadFailed           = errors.New("xades: no se pudo cargar la llave de firma")
	ErrCertificate             = errors.New("xades: error de certificado")
	ErrUnsupportedDigestMethod = errors.New("xades: método de digest no soportado")
	ErrPolicyResolutionFailed  = errors.New("xades: no se pudo resolver la política de firma")
	ErrSignEngineFailed        = errors.New("xades: falló el motor de firma")
)

// Variantes de ErrCertificate.
var (
	ErrNoCertificates       = fmt.Errorf("%w: la cadena no contiene certificados", ErrCertificate)
	ErrDigestFailed         = fmt.Errorf("%w: no se pudo calcular el digest", ErrCertificate)
	ErrSerialEncodingFailed = fmt.Errorf("%w: no se pudo convertir el serial a decimal", ErrCertificate)
	ErrCertificateParse     = fmt.Errorf("%w: certificado DER inválido", ErrCertificate)
)

// Error describe un fallo de la firma: la clase (uno de los Err* del paquete),
// el elemento o paso que falló y el estado del orquestador en ese momento.
type Error struct {
	Kind  error
	Op    string
	State string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg += " [" + e.Op + "]"
	}
	if e.State != "" {
		msg += " (estado " + e.State + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap permite errors.Is/As tanto contra la clase como contra la causa.
func (e *Error) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Fail construye un *Error. Si err ya es un *Error se conserva su clase y su
// elemento, completando sólo el estado.
func Fail(kind error, op string, err error) *Error {
	var xe *Error
	if errors.As(err, &xe) {
		out := *xe
		if out.Op == "" {
			out.Op = op
		}
		return &out
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf devuelve la clase de un error de firma, o nil si no es un *Error.
func KindOf(err error) error {
	var xe *Error
	if errors.As(err, &xe) {
		return xe.Kind
	}
	return nil
}
