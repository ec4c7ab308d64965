// Package xmltree es el modelo de documento usado por la firma: lectura y
// escritura de documentos con etree, búsqueda de nodos por namespace y
// construcción de subárboles con deshacer automático.
package xmltree

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

const utf8Declaration = `version="1.0" encoding="UTF-8"`

// Parse lee un documento XML completo. Acepta UTF-8 y los juegos Latin-1 más
// comunes en facturadores locales; en ese caso la declaración XML se reescribe
// a UTF-8, que es la codificación en la que se serializa.
func Parse(data []byte) (*etree.Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("xmltree: documento vacío")
	}
	converted := false
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		switch strings.ToLower(charset) {
		case "utf-8", "utf8", "us-ascii":
			return input, nil
		case "iso-8859-1", "iso8859-1", "latin1":
			converted = true
			return transform.NewReader(input, charmap.ISO8859_1.NewDecoder()), nil
		case "windows-1252", "cp1252":
			converted = true
			return transform.NewReader(input, charmap.Windows1252.NewDecoder()), nil
		}
		return nil, fmt.Errorf("xmltree: codificación no soportada %q", charset)
	}
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("xmltree: parsear XML: %w", err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("xmltree: documento sin raíz")
	}
	if converted {
		for _, t := range doc.Child {
			if pi, ok := t.(*etree.ProcInst); ok && pi.Target == "xml" {
				pi.Inst = utf8Declaration
				break
			}
		}
	}
	return doc, nil
}

// Serialize escribe el documento tal cual, sin reindentar: cualquier cambio de
// espacios invalida los digests calculados. Tabuladores y saltos de línea en
// atributos, y retornos de carro en texto, salen como referencias de carácter
// para que un lector conforme recupere los mismos valores.
func Serialize(doc *etree.Document) ([]byte, error) {
	doc.WriteSettings.CanonicalAttrVal = true
	doc.WriteSettings.CanonicalText = true
	var out bytes.Buffer
	if _, err := doc.WriteTo(&out); err != nil {
		return nil, fmt.Errorf("xmltree: serializar: %w", err)
	}
	return out.Bytes(), nil
}

// ChildNS devuelve el primer hijo directo con el namespace y nombre local dados.
func ChildNS(parent *etree.Element, space, tag string) *etree.Element {
	if parent == nil {
		return nil
	}
	for _, c := range parent.ChildElements() {
		if c.Tag == tag && c.NamespaceURI() == space {
			return c
		}
	}
	return nil
}

// ChildrenNS devuelve todos los hijos directos con el namespace y nombre dados.
func ChildrenNS(parent *etree.Element, space, tag string) []*etree.Element {
	var out []*etree.Element
	for _, c := range parent.ChildElements() {
		if c.Tag == tag && c.NamespaceURI() == space {
			out = append(out, c)
		}
	}
	return out
}

// FindNS busca en profundidad, empezando por el propio elemento, el primer
// nodo con el namespace y nombre dados.
func FindNS(start *etree.Element, space, tag string) *etree.Element {
	if start == nil {
		return nil
	}
	if start.Tag == tag && start.NamespaceURI() == space {
		return start
	}
	for _, c := range start.ChildElements() {
		if found := FindNS(c, space, tag); found != nil {
			return found
		}
	}
	return nil
}

// FindByID busca el elemento cuyo atributo Id (o ID, id) vale id.
func FindByID(start *etree.Element, id string) *etree.Element {
	if start == nil || id == "" {
		return nil
	}
	for _, key := range []string{"Id", "ID", "id"} {
		if a := start.SelectAttr(key); a != nil && a.Space == "" && a.Value == id {
			return start
		}
	}
	for _, c := range start.ChildElements() {
		if found := FindByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

// HasElementChildren indica si el elemento tiene hijos que no sean texto en blanco.
func HasElementChildren(el *etree.Element) bool {
	for _, t := range el.Child {
		switch v := t.(type) {
		case *etree.CharData:
			if strings.TrimSpace(v.Data) != "" {
				return true
			}
		default:
			return true
		}
	}
	return false
}

// Path devuelve los índices de hijo (en el.Child) desde root hasta el.
func Path(root, el *etree.Element) ([]int, bool) {
	var idx []int
	for cur := el; cur != root; cur = cur.Parent() {
		if cur == nil || cur.Parent() == nil {
			return nil, false
		}
		idx = append(idx, cur.Index())
	}
	for i, j := 0, len(idx)-1; i < j; i, j = i+1, j-1 {
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx, true
}

// Resolve recorre una ruta obtenida con Path sobre otro árbol (típicamente una copia).
func Resolve(root *etree.Element, path []int) *etree.Element {
	cur := root
	for _, i := range path {
		if cur == nil || i < 0 || i >= len(cur.Child) {
			return nil
		}
		next, ok := cur.Child[i].(*etree.Element)
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}
