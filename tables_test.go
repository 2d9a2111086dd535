package ctree

import (
	"encoding/json"
	"testing"

	"github.com/nalgeon/be"
)

func TestTableSetAndDelete(t *testing.T) {
	labels := NewUserLabels()
	labels.Set(3, "retry")
	labels.Set(1, "again")
	be.Equal(t, labels.Len(), 2)

	name, ok := labels.Get(3)
	be.True(t, ok)
	be.Equal(t, name, "retry")

	// the empty value deletes
	labels.Set(3, "")
	_, ok = labels.Get(3)
	be.True(t, !ok)
	be.Equal(t, labels.Len(), 1)

	be.True(t, labels.Delete(1))
	be.True(t, !labels.Delete(1))
	be.Equal(t, labels.Len(), 0)
}

func TestTableIteratesInKeyOrder(t *testing.T) {
	iflags := NewUserIflags()
	iflags.Set(ItemLocator{EA: 0x20, Op: InsnIf}, CitCollapsed)
	iflags.Set(ItemLocator{EA: 0x10, Op: InsnWhile}, CitCollapsed)
	iflags.Set(ItemLocator{EA: 0x10, Op: InsnBlock}, CitCollapsed)
	iflags.Set(ItemLocator{EA: 0x30, Op: InsnDo}, 0)

	var keys []ItemLocator
	for k := range iflags.All() {
		keys = append(keys, k)
	}
	be.Equal(t, keys, []ItemLocator{
		{EA: 0x10, Op: InsnBlock},
		{EA: 0x10, Op: InsnWhile},
		{EA: 0x20, Op: InsnIf},
	})
	be.Equal(t, iflags.Keys(), keys)
}

func TestNilTable(t *testing.T) {
	var labels *UserLabels
	_, ok := labels.Get(1)
	be.True(t, !ok)
	be.Equal(t, labels.Len(), 0)
	be.True(t, !labels.Delete(1))
	be.Equal(t, len(labels.Keys()), 0)
	labels.Set(1, "top")
	labels.Clear()
	be.Equal(t, labels.Len(), 0)
	be.True(t, labels.Equal(nil))
	be.True(t, labels.Equal(NewUserLabels()))
	be.True(t, NewUserLabels().Equal(labels))
}

func TestNilComments(t *testing.T) {
	var cmts *UserCmts
	loc := TreeLoc{EA: 0x10, Itp: ItpSemi}
	cmts.SetText(loc, "lost")
	be.Equal(t, cmts.Text(loc), "")
	be.Equal(t, cmts.Len(), 0)
	be.Equal(t, len(cmts.Keys()), 0)
	be.Equal(t, len(cmts.Unused()), 0)
	be.True(t, !cmts.Delete(loc))
	cmts.ResetUsed()
	cmts.Clear()

	be.True(t, cmts.Equal(nil))
	be.True(t, cmts.Equal(NewUserCmts()))
	be.True(t, NewUserCmts().Equal(cmts))
	other := NewUserCmts()
	other.SetText(loc, "kept")
	be.True(t, !other.Equal(cmts))
	be.True(t, !cmts.Equal(other))
}

func TestTableJSONIsSorted(t *testing.T) {
	labels := NewUserLabels()
	labels.Set(3, "c")
	labels.Set(1, "a")
	data, err := json.Marshal(labels)
	be.Err(t, err, nil)
	be.Equal(t, string(data), `[{"key":1,"value":"a"},{"key":3,"value":"c"}]`)

	back := NewUserLabels()
	be.Err(t, json.Unmarshal(data, back), nil)
	be.True(t, back.Equal(labels))

	be.Err(t, json.Unmarshal([]byte(`{"key":1}`), back))
}

func TestUnmarshalDropsEmptyEntries(t *testing.T) {
	unions := NewUserUnions()
	err := json.Unmarshal([]byte(`[{"key":16,"value":[1,0]},{"key":32,"value":[]}]`), unions)
	be.Err(t, err, nil)
	be.Equal(t, unions.Len(), 1)
	path, _ := unions.Get(16)
	be.Equal(t, path, []int{1, 0})
}

func TestNumformsTable(t *testing.T) {
	nfs := NewUserNumforms()
	loc := OperandLocator{EA: 0x401000, OpNum: 1}
	nfs.Set(loc, NumberFormat{Flags: NumHex, OpNum: 1, Props: NfFixed})
	nf, ok := nfs.Get(loc)
	be.True(t, ok)
	be.True(t, nf.IsHex())
	be.True(t, nf.IsFixed())

	nfs.Set(loc, NumberFormat{})
	be.Equal(t, nfs.Len(), 0)
}

func TestCommentRetrieval(t *testing.T) {
	cmts := NewUserCmts()
	semi := TreeLoc{EA: 0x10, Itp: ItpSemi}
	curly := TreeLoc{EA: 0x10, Itp: ItpCurly1}
	cmts.SetText(semi, "one")
	cmts.SetText(curly, "two")

	text, ok := cmts.Retrieve(semi, RetrieveOnce)
	be.True(t, ok)
	be.Equal(t, text, "one")
	_, ok = cmts.Retrieve(semi, RetrieveOnce)
	be.True(t, !ok)
	text, ok = cmts.Retrieve(semi, RetrieveAlways)
	be.True(t, ok)
	be.Equal(t, text, "one")

	be.Equal(t, cmts.Unused(), []TreeLoc{curly})
	cmts.ResetUsed()
	be.Equal(t, len(cmts.Unused()), 2)

	// the used bit is not part of the value
	other := NewUserCmts()
	other.SetText(semi, "one")
	other.SetText(curly, "two")
	be.True(t, cmts.Equal(other))

	cmts.SetText(semi, "")
	be.Equal(t, cmts.Text(semi), "")
	be.Equal(t, cmts.Len(), 1)
}

func TestCommentsJSON(t *testing.T) {
	cmts := NewUserCmts()
	cmts.SetText(TreeLoc{EA: 0x20, Itp: ItpElse}, "else branch")
	cmts.SetText(TreeLoc{EA: 0x10, Itp: ArgItp(2)}, "third argument")
	cmts.Retrieve(TreeLoc{EA: 0x20, Itp: ItpElse}, RetrieveOnce)

	data, err := json.Marshal(cmts)
	be.Err(t, err, nil)
	back := NewUserCmts()
	be.Err(t, json.Unmarshal(data, back), nil)
	be.True(t, back.Equal(cmts))
	be.Equal(t, len(back.Unused()), 2)
}

func TestItemPreciserNames(t *testing.T) {
	for _, itp := range []ItemPreciser{ItpSemi, ItpCurly1, ItpCurly2, ItpElse, ItpDo, ItpColon, ArgItp(0), ArgItp(5), CaseItp(3)} {
		back, err := ParseItemPreciser(itp.String())
		be.Err(t, err, nil)
		be.Equal(t, back, itp)
	}
	_, err := ParseItemPreciser("nowhere")
	be.Err(t, err, "unknown item preciser")
	be.True(t, ArgItp(1).IsInner())
	be.True(t, !ItpSemi.IsInner())
}
