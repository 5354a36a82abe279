package document

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Kind identifica la variante almacenada en un Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindDoc
)

// Value es la unión etiquetada de los valores que puede guardar un documento
// de atributos: string, número, booleano, lista o documento anidado.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	list []Value
	doc  Document
}

// Document es un mapa libre clave→Value. Es el contenedor de `value` y
// `metadata` de un evento.
type Document map[string]Value

func Null() Value               { return Value{kind: KindNull} }
func String(s string) Value     { return Value{kind: KindString, str: s} }
func Number(f float64) Value    { return Value{kind: KindNumber, num: f} }
func Bool(b bool) Value         { return Value{kind: KindBool, b: b} }
func List(items ...Value) Value { return Value{kind: KindList, list: items} }
func Nested(d Document) Value   { return Value{kind: KindDoc, doc: d} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }
func (v Value) AsNumber() (float64, bool) {
	return v.num, v.kind == KindNumber
}
func (v Value) AsBool() (bool, bool)    { return v.b, v.kind == KindBool }
func (v Value) AsList() ([]Value, bool) { return v.list, v.kind == KindList }
func (v Value) AsDoc() (Document, bool) { return v.doc, v.kind == KindDoc }

func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == other.str
	case KindNumber:
		return v.num == other.num
	case KindBool:
		return v.b == other.b
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case KindDoc:
		return v.doc.Equal(other.doc)
	default:
		return false
	}
}

func (v Value) clone() Value {
	switch v.kind {
	case KindList:
		items := make([]Value, len(v.list))
		for i, item := range v.list {
			items[i] = item.clone()
		}
		return Value{kind: KindList, list: items}
	case KindDoc:
		return Value{kind: KindDoc, doc: v.doc.Clone()}
	default:
		return v
	}
}

// Clone devuelve una copia profunda del documento.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v.clone()
	}
	return out
}

// Merge aplica un patch sobre una copia del documento: cada clave top-level
// del patch sobreescribe la del documento; el resto se preserva. Es pura:
// ni el receptor ni el patch se modifican.
func (d Document) Merge(patch Document) Document {
	out := d.Clone()
	for k, v := range patch {
		out[k] = v.clone()
	}
	return out
}

func (d Document) Equal(other Document) bool {
	if len(d) != len(other) {
		return false
	}
	for k, v := range d {
		ov, ok := other[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Number busca la primera clave presente con un valor numérico (o string
// numérica) y lo devuelve. Útil para extraer cantidades de documentos libres.
func (d Document) Number(keys ...string) (float64, bool) {
	for _, key := range keys {
		v, ok := d[key]
		if !ok {
			continue
		}
		switch v.kind {
		case KindNumber:
			return v.num, true
		case KindString:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// Text busca la primera clave presente con texto no vacío.
func (d Document) Text(keys ...string) string {
	for _, key := range keys {
		v, ok := d[key]
		if !ok {
			continue
		}
		if s, ok := v.AsString(); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

// Flag devuelve el booleano guardado bajo key, si existe.
func (d Document) Flag(key string) (bool, bool) {
	v, ok := d[key]
	if !ok {
		return false, false
	}
	return v.AsBool()
}

func (v Value) toAny() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.toAny()
		}
		return out
	case KindDoc:
		return v.doc.toAny()
	default:
		return nil
	}
}

func (d Document) toAny() map[string]any {
	out := make(map[string]any, len(d))
	for k, v := range d {
		out[k] = v.toAny()
	}
	return out
}

func fromAny(raw any) Value {
	switch v := raw.(type) {
	case nil:
		return Null()
	case string:
		return String(v)
	case float64:
		return Number(v)
	case bool:
		return Bool(v)
	case []any:
		items := make([]Value, len(v))
		for i, item := range v {
			items[i] = fromAny(item)
		}
		return Value{kind: KindList, list: items}
	case map[string]any:
		doc := make(Document, len(v))
		for k, item := range v {
			doc[k] = fromAny(item)
		}
		return Nested(doc)
	default:
		return Null()
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.toAny())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = fromAny(raw)
	return nil
}

// Encode serializa el documento a JSON. Un documento nil serializa como {}.
func (d Document) Encode() []byte {
	if d == nil {
		return []byte("{}")
	}
	b, err := json.Marshal(d.toAny())
	if err != nil {
		// Los kinds soportados siempre son serializables.
		return []byte("{}")
	}
	return b
}

// Decode parsea JSON en un documento. Entradas vacías o malformadas devuelven
// un documento vacío (mismo contrato tolerante que la lectura de columnas
// JSONB heredadas).
func Decode(input []byte) Document {
	if len(input) == 0 {
		return Document{}
	}
	var raw map[string]any
	if err := json.Unmarshal(input, &raw); err != nil || raw == nil {
		return Document{}
	}
	doc := make(Document, len(raw))
	for k, v := range raw {
		doc[k] = fromAny(v)
	}
	return doc
}
