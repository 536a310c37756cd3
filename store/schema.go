package store

import (
	"encoding"
	"fmt"
	"reflect"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx/reflectx"
)

var mapper = reflectx.NewMapper("db")

type column struct {
	name  string
	index []int
}

// hidden columns start with an underscore and are left out of projections.
func (c column) hidden() bool { return strings.HasPrefix(c.name, "_") }

// schema is the column layout of a model type, in struct declaration order
// with the embedded Entity columns first.
type schema struct {
	table   string
	columns []column
	byName  map[string]column
}

func newSchema(t reflect.Type, table string) *schema {
	s := &schema{table: table, byName: map[string]column{}}
	var walk func(fi *reflectx.FieldInfo)
	walk = func(fi *reflectx.FieldInfo) {
		for _, child := range fi.Children {
			if child == nil {
				continue
			}
			if child.Embedded {
				walk(child)
				continue
			}
			if child.Name == "" || child.Name == "-" {
				continue
			}
			col := column{name: child.Name, index: child.Index}
			s.columns = append(s.columns, col)
			s.byName[col.name] = col
		}
	}
	walk(mapper.TypeMap(t).Tree)
	return s
}

func (s *schema) selectColumns() []any {
	cols := make([]any, len(s.columns))
	for i, c := range s.columns {
		cols[i] = goqu.C(c.name)
	}
	return cols
}

func (s *schema) has(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// set assigns value to the named column of the struct v points into.
func (s *schema) set(v reflect.Value, name string, value any) error {
	col, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("%s has no field %q", s.table, name)
	}
	field := reflectx.FieldByIndexes(v, col.index)
	if err := assign(field, value); err != nil {
		return fmt.Errorf("field %q: %w", name, err)
	}
	return nil
}

// record renders v as a goqu record, leaving out the skipped columns.
func (s *schema) record(v reflect.Value, skip ...string) exp.Record {
	rec := exp.Record{}
outer:
	for _, c := range s.columns {
		for _, name := range skip {
			if c.name == name {
				continue outer
			}
		}
		rec[c.name] = reflectx.FieldByIndexesReadOnly(v, c.index).Interface()
	}
	return rec
}

var textUnmarshaler = reflect.TypeFor[encoding.TextUnmarshaler]()

// assign stores value in dst. Besides plain assignment it converts between
// numeric kinds, wraps values into pointer fields, decodes strings into text
// unmarshalers such as Date, and resets dst to its zero value for nil.
func assign(dst reflect.Value, value any) error {
	if value == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	v := reflect.ValueOf(value)
	target := dst.Type()

	if v.Type().AssignableTo(target) {
		dst.Set(v)
		return nil
	}
	if target.Kind() == reflect.Pointer {
		elem := reflect.New(target.Elem())
		if err := assign(elem.Elem(), value); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}
	if s, ok := value.(string); ok && reflect.PointerTo(target).Implements(textUnmarshaler) {
		return dst.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s))
	}
	if sameFamily(v.Kind(), target.Kind()) {
		dst.Set(v.Convert(target))
		return nil
	}
	return fmt.Errorf("cannot use %T as %s", value, target)
}

func sameFamily(a, b reflect.Kind) bool {
	family := func(k reflect.Kind) int {
		switch k {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return 1
		case reflect.Float32, reflect.Float64:
			return 2
		case reflect.String:
			return 3
		case reflect.Bool:
			return 4
		}
		return 0
	}
	fa := family(a)
	return fa != 0 && fa == family(b)
}
