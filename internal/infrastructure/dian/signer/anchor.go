package signer

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/jhoicas/facho-signer/internal/domain/xades"
	"github.com/jhoicas/facho-signer/internal/infrastructure/xmltree"
)

// Anchor es el ext:UBLExtensions/ext:UBLExtension/ext:ExtensionContent que
// recibe la firma.
type Anchor struct {
	Extensions *etree.Element
	Extension  *etree.Element
	Content    *etree.Element
	// Reused indica que se tomó un ExtensionContent vacío reservado por el
	// generador de la factura.
	Reused bool
}

// CreateAnchor ubica o crea el ancla bajo root. Debe ejecutarse antes de
// calcular los digests: la Reference sobre el documento completo ya tiene que
// ver el ancla vacía. Las declaraciones de namespace del camino se suben a la
// raíz para que la firma tenga los mismos namespaces en ámbito antes y
// después de moverla.
func CreateAnchor(root *etree.Element) (*Anchor, error) {
	const op = "ext:UBLExtensions"
	scope := xmltree.NewScope()
	defer scope.Release()

	exts := xmltree.ChildNS(root, NamespaceExt, tagUBLExtensions)
	prefix, ok := xmltree.PrefixFor(root, NamespaceExt)
	switch {
	case exts != nil:
		prefix = exts.Space
	case !ok:
		prefix = PrefixExt
		if bound, taken := xmltree.LookupPrefix(root, prefix); taken && bound != NamespaceExt {
			return nil, xades.Fail(xades.ErrAssemblyFailed, op, fmt.Errorf("el prefijo %q ya está enlazado a %q", prefix, bound))
		}
		scope.SetAttr(root, "xmlns:"+prefix, NamespaceExt)
	}
	tag := func(local string) string {
		if prefix == "" {
			return local
		}
		return prefix + ":" + local
	}

	a := &Anchor{Extensions: exts}
	if exts == nil {
		a.Extensions = etree.NewElement(tag(tagUBLExtensions))
		root.InsertChildAt(0, a.Extensions)
		scope.Track(a.Extensions)
	}

	for _, ext := range xmltree.ChildrenNS(a.Extensions, NamespaceExt, tagUBLExtension) {
		content := xmltree.ChildNS(ext, NamespaceExt, tagExtensionContent)
		if content != nil && !xmltree.HasElementChildren(content) {
			a.Extension, a.Content, a.Reused = ext, content, true
			break
		}
	}
	if a.Content == nil {
		a.Extension = scope.Add(a.Extensions, tag(tagUBLExtension))
		a.Content = scope.Add(a.Extension, tag(tagExtensionContent))
	}

	if err := xmltree.HoistDeclarations(scope, root, a.Extensions, a.Extension, a.Content); err != nil {
		return nil, xades.Fail(xades.ErrAssemblyFailed, op, err)
	}
	// el ExtensionContent debe quedar sin hijos, también sin espacios
	clearChildren(a.Content)

	scope.Commit()
	return a, nil
}

// Relocate mueve sig desde su posición actual a ser el único hijo del
// ExtensionContent.
func (a *Anchor) Relocate(sig *etree.Element) error {
	if a == nil || a.Content == nil {
		return fmt.Errorf("dian: ancla sin ExtensionContent")
	}
	if p := sig.Parent(); p != nil {
		p.RemoveChild(sig)
	}
	clearChildren(a.Content)
	a.Content.AddChild(sig)
	return nil
}

func clearChildren(el *etree.Element) {
	for i := len(el.Child) - 1; i >= 0; i-- {
		el.RemoveChildAt(i)
	}
}
