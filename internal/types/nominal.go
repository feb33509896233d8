package types

import (
	"fmt"

	"fortio.org/safecast"
)

// Field describes a named member of a struct or header type.
type Field struct {
	Name string
	Type TypeID
}

// NominalInfo stores metadata for types identified by their declaration name.
type NominalInfo struct {
	Kind   Kind
	Name   string
	Fields []Field
	// Owner names the table for KindApplyResult / KindActionEnum.
	Owner string
}

type nominalKey struct {
	Kind Kind
	Name string
}

// Nominal returns the TypeID for the named type of the given kind, allocating
// it on first use. Fields are attached separately with SetFields.
func (in *Interner) Nominal(kind Kind, name string) TypeID {
	key := nominalKey{Kind: kind, Name: name}
	if id, ok := in.nomIdx[key]; ok {
		return id
	}
	in.nominals = append(in.nominals, NominalInfo{Kind: kind, Name: name, Owner: name})
	slot, err := safecast.Conv[uint32](len(in.nominals) - 1)
	if err != nil {
		panic(fmt.Errorf("nominal info overflow: %w", err))
	}
	id := in.internRaw(Type{Kind: kind, Payload: slot})
	in.nomIdx[key] = id
	return id
}

// SetFields stores the resolved fields of a struct or header type.
func (in *Interner) SetFields(id TypeID, fields []Field) {
	info := in.nominalInfo(id)
	if info == nil {
		return
	}
	info.Fields = append([]Field(nil), fields...)
}

// NominalInfo returns metadata for a nominal TypeID.
func (in *Interner) NominalInfo(id TypeID) (*NominalInfo, bool) {
	info := in.nominalInfo(id)
	return info, info != nil
}

// Fields returns a copy of the fields of a struct or header type.
func (in *Interner) Fields(id TypeID) []Field {
	info := in.nominalInfo(id)
	if info == nil {
		return nil
	}
	return append([]Field(nil), info.Fields...)
}

// FieldType looks up a member type by name.
func (in *Interner) FieldType(id TypeID, name string) (TypeID, bool) {
	info := in.nominalInfo(id)
	if info == nil {
		return NoTypeID, false
	}
	for _, f := range info.Fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return NoTypeID, false
}

func (in *Interner) nominalInfo(id TypeID) *NominalInfo {
	tt, ok := in.Lookup(id)
	if !ok || !tt.Kind.IsNominal() {
		return nil
	}
	if tt.Payload == 0 || int(tt.Payload) >= len(in.nominals) {
		return nil
	}
	return &in.nominals[tt.Payload]
}
