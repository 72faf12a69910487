// Copyright 2025 ilmut project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package il

import (
	"fmt"
	"sort"

	"golang.org/x/exp/maps"
)

// Var names a value produced by exactly one instruction in a program.
// Variables are program-scoped: a Var from one program means nothing
// in another, and a variable is never redefined within a program.
type Var uint32

// Opcode tags an operation. The zero value AnyOp is reserved for pattern
// shapes that match any operation; it never appears in a program.
type Opcode uint16

const (
	AnyOp Opcode = iota
	Nop
	LoadInt
	LoadFloat
	LoadBool
	LoadString
	LoadUndefined
	LoadBuiltin
	GetProperty
	SetProperty
	GetElement
	SetElement
	UnaryOp
	BinaryOp
	Compare
	CallFunction
	CallMethod
	Construct
	Return
	BeginFunction
	EndFunction
	BeginWhile
	EndWhile
	BeginIf
	BeginElse
	EndIf
	BeginTry
	BeginCatch
	BeginFinally
	EndTryCatch
	BeginClass
	EndClass

	// FirstUserOp is the first opcode available to host-registered operations.
	FirstUserOp Opcode = 1000
)

// BlockRole describes how an operation relates to lexical block structure.
type BlockRole uint8

const (
	BlockNone     BlockRole = iota
	BlockOpen               // opens a nested scope
	BlockClose              // closes the most recent unmatched open of the same kind
	BlockContinue           // else/catch/finally: ends the previous body, stays in the block
)

// BlockKind distinguishes block families so that a close can only match
// an open of the same family.
type BlockKind uint8

const (
	KindNone BlockKind = iota
	KindFunction
	KindLoop
	KindIf
	KindTry
	KindClass
)

// OpInfo is the static descriptor of an operation. Descriptors are
// registered once (at startup) in an OpSet and never mutated afterwards.
type OpInfo struct {
	Code Opcode
	Name string
	// NumInputs/NumOutputs of -1 mean a variable count,
	// bounded below by MinInputs/MinOutputs.
	NumInputs  int
	NumOutputs int
	MinInputs  int
	MinOutputs int
	// OuterOuts is the number of leading outputs of a block open that are
	// defined in the enclosing scope rather than the block body (e.g. the
	// function variable of BeginFunction). The remaining outputs are block
	// parameters, visible only inside the body.
	OuterOuts int
	HasVal    bool // carries an integer payload
	HasName   bool // carries a name payload
	Block     BlockRole
	Kind      BlockKind
}

// OpSet is the table of known operations, analogous to a syscall table.
// The operation set is open: hosts may register additional operations
// before constructing programs.
type OpSet struct {
	byCode map[Opcode]*OpInfo
	byName map[string]*OpInfo
}

func NewOpSet() *OpSet {
	return &OpSet{
		byCode: make(map[Opcode]*OpInfo),
		byName: make(map[string]*OpInfo),
	}
}

// Register adds an operation descriptor to the set.
// Misuse (duplicate code/name, malformed arity) is a programming error.
func (s *OpSet) Register(info *OpInfo) {
	if info.Code == AnyOp {
		panic("il: cannot register AnyOp")
	}
	if info.Name == "" {
		panic("il: operation without a name")
	}
	if s.byCode[info.Code] != nil {
		panic(fmt.Sprintf("il: duplicate opcode %v (%v)", info.Code, info.Name))
	}
	if s.byName[info.Name] != nil {
		panic(fmt.Sprintf("il: duplicate operation name %q", info.Name))
	}
	if info.NumInputs < -1 || info.NumOutputs < -1 {
		panic(fmt.Sprintf("il: bad arity for %v", info.Name))
	}
	if info.Block != BlockOpen && info.OuterOuts != 0 {
		panic(fmt.Sprintf("il: OuterOuts on non-open operation %v", info.Name))
	}
	if info.OuterOuts != 0 {
		min := info.NumOutputs
		if min < 0 {
			min = info.MinOutputs
		}
		if min < info.OuterOuts {
			panic(fmt.Sprintf("il: OuterOuts exceeds output arity of %v", info.Name))
		}
	}
	s.byCode[info.Code] = info
	s.byName[info.Name] = info
}

// Lookup returns the descriptor for code, or nil if unknown.
func (s *OpSet) Lookup(code Opcode) *OpInfo {
	return s.byCode[code]
}

// LookupName returns the descriptor for an operation name, or nil if unknown.
func (s *OpSet) LookupName(name string) *OpInfo {
	return s.byName[name]
}

// Names returns all registered operation names, sorted.
func (s *OpSet) Names() []string {
	names := maps.Keys(s.byName)
	sort.Strings(names)
	return names
}

var defaultOps = buildDefaultOps()

// DefaultOps returns the built-in operation table shared by all callers.
// It must not be extended; hosts wanting extra operations build their own
// set with RegisterDefaults.
func DefaultOps() *OpSet {
	return defaultOps
}

// RegisterDefaults registers the built-in operations into s.
func RegisterDefaults(s *OpSet) {
	for _, info := range defaultOpTable {
		s.Register(info)
	}
}

func buildDefaultOps() *OpSet {
	s := NewOpSet()
	RegisterDefaults(s)
	return s
}

var defaultOpTable = []*OpInfo{
	{Code: Nop, Name: "Nop"},
	{Code: LoadInt, Name: "LoadInt", NumOutputs: 1, HasVal: true},
	{Code: LoadFloat, Name: "LoadFloat", NumOutputs: 1, HasVal: true},
	{Code: LoadBool, Name: "LoadBool", NumOutputs: 1, HasVal: true},
	{Code: LoadString, Name: "LoadString", NumOutputs: 1, HasName: true},
	{Code: LoadUndefined, Name: "LoadUndefined", NumOutputs: 1},
	{Code: LoadBuiltin, Name: "LoadBuiltin", NumOutputs: 1, HasName: true},
	{Code: GetProperty, Name: "GetProperty", NumInputs: 1, NumOutputs: 1, HasName: true},
	{Code: SetProperty, Name: "SetProperty", NumInputs: 2, HasName: true},
	{Code: GetElement, Name: "GetElement", NumInputs: 2, NumOutputs: 1},
	{Code: SetElement, Name: "SetElement", NumInputs: 3},
	{Code: UnaryOp, Name: "UnaryOp", NumInputs: 1, NumOutputs: 1, HasName: true},
	{Code: BinaryOp, Name: "BinaryOp", NumInputs: 2, NumOutputs: 1, HasName: true},
	{Code: Compare, Name: "Compare", NumInputs: 2, NumOutputs: 1, HasName: true},
	{Code: CallFunction, Name: "CallFunction", NumInputs: -1, MinInputs: 1, NumOutputs: 1},
	{Code: CallMethod, Name: "CallMethod", NumInputs: -1, MinInputs: 1, NumOutputs: 1, HasName: true},
	{Code: Construct, Name: "Construct", NumInputs: -1, MinInputs: 1, NumOutputs: 1},
	{Code: Return, Name: "Return", NumInputs: 1},
	{Code: BeginFunction, Name: "BeginFunction", NumOutputs: -1, MinOutputs: 1, OuterOuts: 1,
		Block: BlockOpen, Kind: KindFunction},
	{Code: EndFunction, Name: "EndFunction", Block: BlockClose, Kind: KindFunction},
	{Code: BeginWhile, Name: "BeginWhile", NumInputs: 1, Block: BlockOpen, Kind: KindLoop},
	{Code: EndWhile, Name: "EndWhile", Block: BlockClose, Kind: KindLoop},
	{Code: BeginIf, Name: "BeginIf", NumInputs: 1, Block: BlockOpen, Kind: KindIf},
	{Code: BeginElse, Name: "BeginElse", Block: BlockContinue, Kind: KindIf},
	{Code: EndIf, Name: "EndIf", Block: BlockClose, Kind: KindIf},
	{Code: BeginTry, Name: "BeginTry", Block: BlockOpen, Kind: KindTry},
	{Code: BeginCatch, Name: "BeginCatch", NumOutputs: 1, Block: BlockContinue, Kind: KindTry},
	{Code: BeginFinally, Name: "BeginFinally", Block: BlockContinue, Kind: KindTry},
	{Code: EndTryCatch, Name: "EndTryCatch", Block: BlockClose, Kind: KindTry},
	{Code: BeginClass, Name: "BeginClass", NumOutputs: 1, OuterOuts: 1, HasName: true,
		Block: BlockOpen, Kind: KindClass},
	{Code: EndClass, Name: "EndClass", Block: BlockClose, Kind: KindClass},
}
