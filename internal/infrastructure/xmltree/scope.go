package xmltree

import (
	"errors"
	"fmt"

	"github.com/beevik/etree"
)

// ErrDuplicateNode se devuelve al crear un nodo único que ya existe.
var ErrDuplicateNode = errors.New("xmltree: el nodo ya existe")

// Scope registra los nodos y atributos creados o quitados durante una
// construcción. Si la construcción no se confirma con Commit, Release deshace
// los cambios en orden inverso:
//
//	scope := xmltree.NewScope()
//	defer scope.Release()
//	...
//	scope.Commit()
type Scope struct {
	undo      []func()
	nodes     int
	committed bool
}

// NewScope crea un ámbito vacío.
func NewScope() *Scope {
	return &Scope{}
}

// Track registra un nodo creado por otro componente (p. ej. una Reference del motor).
func (s *Scope) Track(el *etree.Element) *etree.Element {
	if el != nil {
		s.nodes++
		s.undo = append(s.undo, func() {
			if p := el.Parent(); p != nil {
				p.RemoveChild(el)
			}
		})
	}
	return el
}

// SetAttr fija el atributo key ("prefijo:nombre") de el. Release restaura el
// valor y la posición anteriores, o lo quita si no existía.
func (s *Scope) SetAttr(el *etree.Element, key, value string) {
	s.saveAttr(el, key)
	el.CreateAttr(key, value)
}

// RemoveAttr quita el atributo key de el; Release lo devuelve a su posición.
func (s *Scope) RemoveAttr(el *etree.Element, key string) {
	s.saveAttr(el, key)
	el.RemoveAttr(key)
}

func (s *Scope) saveAttr(el *etree.Element, key string) {
	idx := -1
	for i, a := range el.Attr {
		if a.FullKey() == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.undo = append(s.undo, func() { el.RemoveAttr(key) })
		return
	}
	prev := el.Attr[idx]
	s.undo = append(s.undo, func() {
		el.RemoveAttr(key)
		if idx > len(el.Attr) {
			idx = len(el.Attr)
		}
		el.Attr = append(el.Attr[:idx], append([]etree.Attr{prev}, el.Attr[idx:]...)...)
	})
}

// Add crea parent/tag ("prefijo:nombre") y lo registra.
func (s *Scope) Add(parent *etree.Element, tag string) *etree.Element {
	return s.Track(parent.CreateElement(tag))
}

// AddUnique crea parent/tag sólo si no existe ya un hijo con ese nombre en el
// namespace space.
func (s *Scope) AddUnique(parent *etree.Element, tag, space string) (*etree.Element, error) {
	el := etree.NewElement(tag)
	if ChildNS(parent, space, el.Tag) != nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, tag)
	}
	parent.AddChild(el)
	return s.Track(el), nil
}

// Len número de nodos registrados.
func (s *Scope) Len() int { return s.nodes }

// Commit conserva los nodos creados.
func (s *Scope) Commit() { s.committed = true }

// Release deshace los cambios registrados si no hubo Commit. Es seguro
// llamarlo varias veces.
func (s *Scope) Release() {
	if s.committed {
		return
	}
	for i := len(s.undo) - 1; i >= 0; i-- {
		s.undo[i]()
	}
	s.undo = nil
	s.nodes = 0
}
