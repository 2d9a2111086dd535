package ctree

import (
	"testing"

	"github.com/nalgeon/be"
)

func TestTypeNames(t *testing.T) {
	tests := []struct {
		typ  Type
		name string
	}{
		{VoidType(), "void"},
		{BoolType(), "bool"},
		{IntType(1, Signed), "char"},
		{IntType(4, Unsigned), "unsigned int"},
		{IntType(8, Signed), "__int64"},
		{UnknownType(4), "_DWORD"},
		{FloatType(8), "double"},
		{PtrTo(IntType(1, Signed), 8), "char *"},
		{PtrTo(PtrTo(VoidType(), 8), 8), "void **"},
		{ArrayOf(IntType(2, Unsigned), 4), "unsigned __int16[4]"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			be.Equal(t, test.typ.String(), test.name)
			back, err := ParseType(test.name, 8)
			be.Err(t, err, nil)
			be.True(t, back.Equal(test.typ))
		})
	}
}

func TestParseTypeAliases(t *testing.T) {
	tests := []struct {
		name string
		want Type
	}{
		{"short", IntType(2, Signed)},
		{"unsigned long", IntType(4, Unsigned)},
		{"__int8", IntType(1, Signed)},
		{"  int  ", IntType(4, Signed)},
		{"struct point:8", StructType("point", 8)},
		{"union value", UnionType("value", 0)},
	}
	for _, test := range tests {
		got, err := ParseType(test.name, 8)
		be.Err(t, err, nil)
		be.True(t, got.Equal(test.want))
	}

	for _, bad := range []string{"", "widget", "int[x]", "struct s:big"} {
		_, err := ParseType(bad, 8)
		be.Err(t, err)
	}
}

func TestTypeText(t *testing.T) {
	s := StructType("point", 8)
	be.Equal(t, typeText(s), "struct point:8")
	be.Equal(t, typeText(PtrTo(s, 4)), "struct point:8 *")
	be.Equal(t, typeText(ArrayOf(s, 2)), "struct point:8[2]")

	back, err := ParseType(typeText(PtrTo(s, 4)), 4)
	be.Err(t, err, nil)
	be.True(t, back.Equal(PtrTo(s, 4)))
}

func TestFuncTypes(t *testing.T) {
	ft := FuncType(IntType(4, Signed), PtrTo(IntType(1, Signed), 8), IntType(4, Signed))
	be.Equal(t, ft.String(), "int (char *, int)")
	be.Equal(t, PtrTo(ft, 8).String(), "int (*)(char *, int)")

	ret, ok := ft.Result()
	be.True(t, ok)
	be.Equal(t, ret.String(), "int")
	ret, ok = PtrTo(ft, 8).Result()
	be.True(t, ok)
	be.True(t, ret.IsInt())
	_, ok = IntType(4, Signed).Result()
	be.True(t, !ok)

	be.True(t, !ft.Equal(FuncType(IntType(4, Signed))))
}

func TestTypePredicates(t *testing.T) {
	be.True(t, !Type{}.IsDefined())
	be.True(t, UnknownType(4).IsDefined())
	be.True(t, UnknownType(4).IsPartial())
	be.True(t, UnknownType(4).IsIntegral())
	be.True(t, StructType("s", 8).IsSmallUDT())
	be.True(t, !StructType("s", 16).IsSmallUDT())
	be.True(t, PtrTo(VoidType(), 8).IsScalar())
	be.True(t, !ArrayOf(IntType(4, Signed), 2).IsScalar())

	elem, ok := ArrayOf(IntType(4, Signed), 2).Pointed()
	be.True(t, ok)
	be.Equal(t, elem.Size, 4)
	_, ok = IntType(8, Signed).Pointed()
	be.True(t, !ok)
}

func TestFlatTypes(t *testing.T) {
	var none *FlatTypes
	be.Equal(t, none.PointerSize(), 8)
	_, ok := none.ObjectType(0x10)
	be.True(t, !ok)

	ft := &FlatTypes{
		PtrSize: 4,
		Objects: map[uint64]Type{0x10: IntType(4, Signed)},
		Members: map[string]map[uint64]Type{"point": {4: IntType(4, Signed)}},
	}
	be.Equal(t, ft.PointerSize(), 4)
	obj, ok := ft.ObjectType(0x10)
	be.True(t, ok)
	be.True(t, obj.IsInt())
	_, ok = ft.MemberType(StructType("point", 8), 4)
	be.True(t, ok)
	_, ok = ft.MemberType(StructType("point", 8), 0)
	be.True(t, !ok)
	_, ok = ft.MemberType(IntType(4, Signed), 4)
	be.True(t, !ok)
}

func TestCalcType(t *testing.T) {
	ptr := PtrTo(IntType(4, Signed), 8)
	vars := Lvars{
		NewLvar("p", RegLoc(0), 0x10, ptr, 8, 1),
		NewLvar("q", RegLoc(8), 0x10, ptr, 8, 1),
		NewLvar("c", RegLoc(16), 0x10, IntType(1, Unsigned), 1, 1),
		NewLvar("u", RegLoc(24), 0x10, IntType(4, Unsigned), 4, 1),
	}
	tc := &TypeCtx{Oracle: &FlatTypes{PtrSize: 8}, Vars: vars}
	v := func(i int) *Expr { return NewVar(i, Type{}) }

	tests := []struct {
		name string
		e    *Expr
		want string
	}{
		{"pointer plus int", NewBinary(ExprAdd, v(0), NewNum(1, 4)), "int *"},
		{"pointer difference", NewBinary(ExprSub, v(0), v(1)), "__int64"},
		{"narrow operand promotes", NewUnary(ExprNeg, v(2)), "unsigned int"},
		{"unsigned wins", NewBinary(ExprMul, v(3), NewNum(2, 4)), "unsigned int"},
		{"comparison", NewBinary(ExprSlt, v(2), v(3)), "bool"},
		{"dereference", NewPtr(v(0), 4), "int"},
		{"address", NewUnary(ExprRef, v(3)), "unsigned int *"},
		{"assignment", NewBinary(ExprAsg, v(2), v(3)), "unsigned char"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			test.e.CalcType(tc, true)
			be.Equal(t, test.e.Type.String(), test.want)
		})
	}
}

func TestCalcRvalueType(t *testing.T) {
	wide := NewNum(1, 8)
	wide.Type = IntType(8, Signed)
	be.True(t, CalcRvalueType(IntType(4, Signed), wide).Equal(IntType(4, Signed)))

	same := NewNum(1, 4)
	same.Type = IntType(4, Unsigned)
	be.True(t, CalcRvalueType(IntType(4, Signed), same).Equal(IntType(4, Unsigned)))

	f := NewFNum(1.5, 4)
	be.True(t, CalcRvalueType(IntType(4, Signed), f).Equal(IntType(4, Signed)))
}
