package symbol

import (
	"debug/dwarf"
	"fmt"
	"strings"
	"sync"
)

// Root group ids handed out for top-level enumerations; child groups are
// derived from them so repeated queries at the same instruction always see
// the same numbering.
const (
	RootGroupLocals  int32 = 1000
	RootGroupGlobals int32 = 1001
)

// Composite expansion stops at this depth so self-referential types (a list
// node pointing at its own struct) terminate.
const maxExpandDepth = 4

// VariableName one row of a variable listing.
type VariableName struct {
	Name         string
	DisplayName  string
	TypeName     string
	GroupID      int32
	ChildGroupID int32 // 0 when the variable has no expandable children
}

const notParsedYet = "<<not parsed yet>>"

type varOpKind int

const (
	opExprLoc varOpKind = iota
	opConstValue
	opOffset
	opPointer
)

// varOp one step of a variable's location recipe. A variable's value is
// found by folding its ops left to right: an exprloc or const seeds the
// location, offsets displace it, and a pointer op dereferences through
// linear memory.
type varOp struct {
	kind     varOpKind
	expr     []byte
	constVal []byte
	offset   int64
}

// TypeDesc a reference to a type DIE, or a bare description when the DIE is
// missing.
type TypeDesc struct {
	Offset      dwarf.Offset
	HasOffset   bool
	Description string
}

// SymbolVariable a variable (or flattened composite member) visible at some
// scope.
type SymbolVariable struct {
	Name         string
	DisplayName  string
	Ops          []varOp
	Type         TypeDesc
	GroupID      int32
	ChildGroupID int32
}

type groupKey struct {
	die    dwarf.Offset
	rootID int32
}

// groupTable memoizes enumerations so group ids stay stable for the
// container's lifetime.
type groupTable struct {
	mu    sync.Mutex
	cache map[groupKey][]SymbolVariable
}

func newGroupTable() *groupTable {
	return &groupTable{cache: map[groupKey][]SymbolVariable{}}
}

func (g *groupTable) lookup(key groupKey) ([]SymbolVariable, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	vars, ok := g.cache[key]
	return vars, ok
}

func (g *groupTable) store(key groupKey, vars []SymbolVariable) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cache[key] = vars
}

// VariableNameList enumerates the variables in scope at the module offset.
// Every entry carries its stable group id; the caller filters on them when
// expanding composites.
func (c *DwarfContainer) VariableNameList(offset uint64, rootID int32) ([]VariableName, error) {
	vars, err := c.localVariables(offset, rootID)
	if err != nil {
		return nil, err
	}
	return c.nameList(vars), nil
}

// GlobalVariableNameList enumerates the globals of the compilation unit
// containing the module offset.
func (c *DwarfContainer) GlobalVariableNameList(offset uint64, rootID int32) ([]VariableName, error) {
	sub, err := c.FindSubroutine(offset)
	if err != nil {
		return nil, err
	}
	vars, err := c.globalVariables(sub.Unit, rootID)
	if err != nil {
		return nil, err
	}
	return c.nameList(vars), nil
}

// AllGlobalVariableNames enumerates the globals of every compilation unit,
// for modules the paused frame does not point into.
func (c *DwarfContainer) AllGlobalVariableNames(rootID int32) ([]VariableName, error) {
	var all []VariableName
	for _, unit := range c.units {
		vars, err := c.globalVariables(unit, rootID)
		if err != nil {
			return nil, err
		}
		all = append(all, c.nameList(vars)...)
	}
	return all, nil
}

func (c *DwarfContainer) nameList(vars []SymbolVariable) []VariableName {
	list := make([]VariableName, 0, len(vars))
	for _, v := range vars {
		n := VariableName{
			Name:         notParsedYet,
			DisplayName:  notParsedYet,
			TypeName:     notParsedYet,
			GroupID:      v.GroupID,
			ChildGroupID: v.ChildGroupID,
		}
		if v.Name != "" {
			n.Name = v.Name
		}
		if v.DisplayName != "" {
			n.DisplayName = v.DisplayName
		}
		if v.Type.HasOffset {
			if tn, err := c.typeName(v.Type.Offset); err == nil {
				n.TypeName = tn
			}
		} else if v.Type.Description != "" {
			n.TypeName = v.Type.Description
		}
		list = append(list, n)
	}
	return list
}

// localVariables walks the innermost subroutine's DIE subtree, descending
// into lexical blocks whose range covers the offset.
func (c *DwarfContainer) localVariables(offset uint64, rootID int32) ([]SymbolVariable, error) {
	sub, err := c.FindSubroutine(offset)
	if err != nil {
		return nil, err
	}
	key := groupKey{die: sub.Offset, rootID: rootID}
	if vars, ok := c.groups.lookup(key); ok {
		return vars, nil
	}

	reader := c.data.Reader()
	reader.Seek(sub.Offset)
	entry, err := reader.Next()
	if err != nil {
		return nil, err
	}
	if entry == nil || !entry.Children {
		return nil, nil
	}

	var vars []SymbolVariable
	group := rootID
	if err := c.collectScopeVariables(reader, offset, &vars, rootID, &group); err != nil {
		return nil, err
	}
	c.groups.store(key, vars)
	return vars, nil
}

// globalVariables walks a compilation unit's top-level variables and
// namespaces.
func (c *DwarfContainer) globalVariables(unit *unitInfo, rootID int32) ([]SymbolVariable, error) {
	key := groupKey{die: unit.offset, rootID: rootID}
	if vars, ok := c.groups.lookup(key); ok {
		return vars, nil
	}

	reader := c.data.Reader()
	reader.Seek(unit.offset)
	entry, err := reader.Next()
	if err != nil {
		return nil, err
	}
	if entry == nil || !entry.Children {
		return nil, nil
	}

	var vars []SymbolVariable
	group := rootID
	if err := c.collectScopeVariables(reader, 0, &vars, rootID, &group); err != nil {
		return nil, err
	}
	c.groups.store(key, vars)
	return vars, nil
}

// collectScopeVariables consumes the children of the entry the reader is
// positioned after. offset==0 means "no pc filter" (global walk).
func (c *DwarfContainer) collectScopeVariables(reader *dwarf.Reader, offset uint64, out *[]SymbolVariable, rootID int32, group *int32) error {
	bumpGroup(group)

	for {
		entry, err := reader.Next()
		if err != nil {
			return err
		}
		if entry == nil || entry.Tag == 0 {
			return nil
		}

		switch entry.Tag {
		case dwarf.TagVariable, dwarf.TagFormalParameter:
			v := c.transformVariable(entry, rootID)
			c.expandComposite(&v, out, group, 0)
			*out = append(*out, v)
			if entry.Children {
				reader.SkipChildren()
			}

		case dwarf.TagLexDwarfBlock:
			ranges, err := c.entryRanges(entry)
			if err != nil {
				return err
			}
			if offset != 0 && rangesContain(ranges, offset) && entry.Children {
				if err := c.collectScopeVariables(reader, offset, out, rootID, group); err != nil {
					return err
				}
			} else if entry.Children {
				reader.SkipChildren()
			}

		case dwarf.TagNamespace:
			ns := SymbolVariable{
				GroupID: rootID,
				Type:    TypeDesc{Description: "namespace"},
			}
			if name, ok := entry.Val(dwarf.AttrName).(string); ok {
				ns.Name = name
				ns.DisplayName = name
			}
			if entry.Children {
				ns.ChildGroupID = *group
				if err := c.collectScopeVariables(reader, offset, out, *group, group); err != nil {
					return err
				}
			}
			*out = append(*out, ns)

		default:
			if entry.Children {
				reader.SkipChildren()
			}
		}
	}
}

// bumpGroup advances the group counter the way child groups are derived
// from root ids: the first descent maps the root into its own 10000-block,
// later descents just increment.
func bumpGroup(group *int32) {
	if *group < 10000 {
		*group = (*group - 1000 + 1) * 10000
	} else {
		*group++
	}
}

func (c *DwarfContainer) transformVariable(entry *dwarf.Entry, groupID int32) SymbolVariable {
	v := SymbolVariable{
		GroupID: groupID,
		Type:    TypeDesc{Description: "<unnamed>"},
	}

	if name, ok := entry.Val(dwarf.AttrName).(string); ok {
		v.Name = name
		v.DisplayName = name
	}
	if off, ok := entry.Val(dwarf.AttrType).(dwarf.Offset); ok {
		v.Type = TypeDesc{Offset: off, HasOffset: true}
	}

	hasLocation := false
	if loc, ok := entry.Val(dwarf.AttrLocation).([]byte); ok {
		v.Ops = append(v.Ops, varOp{kind: opExprLoc, expr: loc})
		hasLocation = true
	} else if fields := memberLocation(entry); fields != nil {
		v.Ops = append(v.Ops, *fields)
		hasLocation = true
	}
	if !hasLocation {
		if bytes := constValueBytes(entry); bytes != nil {
			v.Ops = append(v.Ops, varOp{kind: opConstValue, constVal: bytes})
		}
	}
	return v
}

func memberLocation(entry *dwarf.Entry) *varOp {
	switch val := entry.Val(dwarf.AttrDataMemberLoc).(type) {
	case int64:
		return &varOp{kind: opOffset, offset: val}
	case []byte:
		return &varOp{kind: opExprLoc, expr: val}
	}
	return nil
}

func constValueBytes(entry *dwarf.Entry) []byte {
	switch val := entry.Val(dwarf.AttrConstValue).(type) {
	case int64:
		b := make([]byte, 8)
		for i := 0; i < 8; i++ {
			b[i] = byte(uint64(val) >> (8 * i))
		}
		return b
	case uint64:
		b := make([]byte, 8)
		for i := 0; i < 8; i++ {
			b[i] = byte(val >> (8 * i))
		}
		return b
	case []byte:
		return val
	case string:
		return []byte(val)
	}
	return nil
}

// expandComposite flattens a composite variable's members into the output
// list: struct/class/union members become "parent.member" entries carrying
// the parent's location recipe plus their own displacement; pointers record
// a deref step and expand the pointee.
func (c *DwarfContainer) expandComposite(parent *SymbolVariable, out *[]SymbolVariable, group *int32, depth int) {
	if !parent.Type.HasOffset || depth >= maxExpandDepth {
		return
	}
	c.expandType(parent.Type.Offset, parent, out, group, depth)
}

func (c *DwarfContainer) expandType(typeOff dwarf.Offset, parent *SymbolVariable, out *[]SymbolVariable, group *int32, depth int) {
	if depth >= maxExpandDepth {
		return
	}
	reader := c.data.Reader()
	reader.Seek(typeOff)
	entry, err := reader.Next()
	if err != nil || entry == nil {
		return
	}

	switch entry.Tag {
	case dwarf.TagStructType, dwarf.TagClassType, dwarf.TagUnionType:
		if !entry.Children {
			return
		}
		childGroup := *group
		parent.ChildGroupID = childGroup
		*group++

		parentName := parent.Name
		if parentName == "" {
			parentName = "<unnamed>"
		}
		for {
			m, err := reader.Next()
			if err != nil || m == nil || m.Tag == 0 {
				return
			}
			if m.Tag != dwarf.TagMember {
				if m.Children {
					reader.SkipChildren()
				}
				continue
			}
			member := c.transformVariable(m, childGroup)
			memberName := member.Name
			if memberName == "" {
				memberName = "<unnamed>"
			}
			ops := make([]varOp, 0, len(parent.Ops)+len(member.Ops))
			ops = append(ops, parent.Ops...)
			ops = append(ops, member.Ops...)
			member.Ops = ops
			member.DisplayName = parentName + "." + memberName

			if member.Type.HasOffset {
				c.expandType(member.Type.Offset, &member, out, group, depth+1)
			}
			*out = append(*out, member)
			if m.Children {
				reader.SkipChildren()
			}
		}

	case dwarf.TagPointerType, dwarf.TagReferenceType:
		// the pointer variable itself stays a scalar; members of the pointee
		// are reached through an extra deref step
		if off, ok := entry.Val(dwarf.AttrType).(dwarf.Offset); ok && off != typeOff {
			deref := *parent
			deref.Ops = append(append([]varOp{}, parent.Ops...), varOp{kind: opPointer})
			c.expandType(off, &deref, out, group, depth+1)
			parent.ChildGroupID = deref.ChildGroupID
		}

	case dwarf.TagConstType, dwarf.TagVolatileType, dwarf.TagTypedef:
		if off, ok := entry.Val(dwarf.AttrType).(dwarf.Offset); ok && off != typeOff {
			c.expandType(off, parent, out, group, depth)
		}
	}
}

// typeName resolves a display name for the type DIE at off.
func (c *DwarfContainer) typeName(off dwarf.Offset) (string, error) {
	reader := c.data.Reader()
	reader.Seek(off)
	entry, err := reader.Next()
	if err != nil {
		return "", err
	}
	if entry == nil {
		return "", fmt.Errorf("symbol: no DIE at %#x", off)
	}
	if name, ok := entry.Val(dwarf.AttrName).(string); ok {
		return name, nil
	}
	switch entry.Tag {
	case dwarf.TagPointerType:
		if inner, ok := entry.Val(dwarf.AttrType).(dwarf.Offset); ok && inner != off {
			name, err := c.typeName(inner)
			if err != nil {
				return "", err
			}
			return name + "*", nil
		}
		return "void*", nil
	case dwarf.TagConstType, dwarf.TagVolatileType, dwarf.TagTypedef:
		if inner, ok := entry.Val(dwarf.AttrType).(dwarf.Offset); ok && inner != off {
			return c.typeName(inner)
		}
	}
	return "", fmt.Errorf("symbol: unnamed type at %#x", off)
}

// findVariable looks an expression's base variable up by display name,
// accepting gdb style `->` and an implicit `this.` prefix.
func findVariable(vars []SymbolVariable, name string) *SymbolVariable {
	name = strings.ReplaceAll(name, "->", ".")
	thisName := "this." + name
	for i := range vars {
		if vars[i].DisplayName == name || vars[i].DisplayName == thisName {
			return &vars[i]
		}
	}
	return nil
}
