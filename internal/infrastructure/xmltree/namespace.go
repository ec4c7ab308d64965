package xmltree

import (
	"fmt"
	"regexp"

	"github.com/beevik/etree"
)

var ncName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.\-]*$`)

// ValidNCName indica si s puede usarse como Id o prefijo XML.
func ValidNCName(s string) bool { return ncName.MatchString(s) }

// LookupPrefix resuelve el namespace enlazado a prefix en el ámbito de el.
func LookupPrefix(el *etree.Element, prefix string) (string, bool) {
	for cur := el; cur != nil; cur = cur.Parent() {
		for _, a := range cur.Attr {
			if prefix == "" && a.Space == "" && a.Key == "xmlns" {
				return a.Value, true
			}
			if prefix != "" && a.Space == "xmlns" && a.Key == prefix {
				return a.Value, true
			}
		}
	}
	return "", false
}

// PrefixFor busca un prefijo (no vacío) enlazado a uri en el ámbito de el.
func PrefixFor(el *etree.Element, uri string) (string, bool) {
	for cur := el; cur != nil; cur = cur.Parent() {
		for _, a := range cur.Attr {
			if a.Space == "xmlns" && a.Value == uri {
				if bound, _ := LookupPrefix(el, a.Key); bound == uri {
					return a.Key, true
				}
			}
		}
	}
	return "", false
}

// Declarations devuelve las declaraciones xmlns propias del elemento.
func Declarations(el *etree.Element) []etree.Attr {
	var out []etree.Attr
	for _, a := range el.Attr {
		if a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns") {
			out = append(out, a)
		}
	}
	return out
}

// HoistDeclarations mueve a root las declaraciones de namespace de los
// elementos de chain (descendientes de root). Las redundantes se eliminan y un
// prefijo enlazado en root a otro namespace es un conflicto. Los cambios quedan
// registrados en scope para deshacerlos si algo falla.
func HoistDeclarations(scope *Scope, root *etree.Element, chain ...*etree.Element) error {
	for _, el := range chain {
		if el == nil || el == root {
			continue
		}
		for _, a := range Declarations(el) {
			prefix := a.Key
			if a.Space == "" {
				prefix = ""
			}
			bound, ok := LookupPrefix(root, prefix)
			switch {
			case !ok && prefix == "":
				// mover un namespace por defecto cambiaría el de la propia raíz
				return fmt.Errorf("xmltree: namespace por defecto %q en %s no se puede mover a la raíz", a.Value, el.FullTag())
			case !ok:
				scope.SetAttr(root, a.FullKey(), a.Value)
			case bound != a.Value:
				return fmt.Errorf("xmltree: prefijo %q enlazado a %q en la raíz y a %q en %s", prefix, bound, a.Value, el.FullTag())
			}
			scope.RemoveAttr(el, a.FullKey())
		}
	}
	return nil
}
