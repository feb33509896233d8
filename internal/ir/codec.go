package ir

import (
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"kestrel/internal/source"
)

// Current schema version - increment when the node encoding changes.
const codecSchemaVersion uint16 = 1

// ErrBadEncoding is returned for input that is not a well-formed tree.
var ErrBadEncoding = errors.New("malformed IR encoding")

type wireTree struct {
	Schema uint16       `msgpack:"v"`
	Root   NodeID       `msgpack:"root"`
	Files  source.Files `msgpack:"files"`
	Nodes  []wireNode   `msgpack:"nodes"`
}

type wireNode struct {
	Kind Kind               `msgpack:"k"`
	Span source.Span        `msgpack:"s"`
	Data msgpack.RawMessage `msgpack:"d"`
}

// Encode writes the nodes reachable from root as msgpack.
func Encode(w io.Writer, t *Tree, root NodeID) error {
	ct, croot, err := Compact(t, root)
	if err != nil {
		return err
	}
	wt := wireTree{
		Schema: codecSchemaVersion,
		Root:   croot,
		Files:  ct.Files,
		Nodes:  make([]wireNode, 0, ct.Len()-1),
	}
	for _, n := range ct.nodes[1:] {
		raw, err := msgpack.Marshal(n.Data)
		if err != nil {
			return fmt.Errorf("encode %s: %w", n.Kind, err)
		}
		wt.Nodes = append(wt.Nodes, wireNode{Kind: n.Kind, Span: n.Span, Data: raw})
	}
	return msgpack.NewEncoder(w).Encode(&wt)
}

// Decode reads a tree written by Encode and returns it with its root.
func Decode(r io.Reader) (*Tree, NodeID, error) {
	var wt wireTree
	if err := msgpack.NewDecoder(r).Decode(&wt); err != nil {
		return nil, NoNodeID, fmt.Errorf("%w: %w", ErrBadEncoding, err)
	}
	if wt.Schema != codecSchemaVersion {
		return nil, NoNodeID, fmt.Errorf("%w: schema %d, want %d", ErrBadEncoding, wt.Schema, codecSchemaVersion)
	}
	t := NewTree()
	t.Files = wt.Files
	for i, wn := range wt.Nodes {
		d, err := decodeData(wn.Kind, wn.Data)
		if err != nil {
			return nil, NoNodeID, fmt.Errorf("%w: node %d: %w", ErrBadEncoding, i+1, err)
		}
		t.Add(wn.Span, d)
	}
	if !wt.Root.IsValid() || int(wt.Root) >= t.Len() {
		return nil, NoNodeID, fmt.Errorf("%w: root %d out of range", ErrBadEncoding, wt.Root)
	}
	for id := NodeID(1); int(id) < t.Len(); id++ {
		for _, c := range t.Children(id) {
			if int(c) >= t.Len() || t.Kind(c) == KindSeq {
				return nil, NoNodeID, fmt.Errorf("%w: node %d has bad child %d", ErrBadEncoding, id, c)
			}
		}
	}
	return t, wt.Root, nil
}

func decodeAs[T Data](raw []byte) (Data, error) {
	var d T
	if err := msgpack.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return d, nil
}

var decoders = [kindCount]func([]byte) (Data, error){
	KindTypeBool:        decodeAs[TypeBool],
	KindTypeVoid:        decodeAs[TypeVoid],
	KindTypeError:       decodeAs[TypeError],
	KindTypeBits:        decodeAs[TypeBits],
	KindTypeName:        decodeAs[TypeName],
	KindTypeTuple:       decodeAs[TypeTuple],
	KindProgram:         decodeAs[Program],
	KindStructDecl:      decodeAs[StructDecl],
	KindHeaderDecl:      decodeAs[HeaderDecl],
	KindField:           decodeAs[Field],
	KindTypedef:         decodeAs[Typedef],
	KindErrorDecl:       decodeAs[ErrorDecl],
	KindExternDecl:      decodeAs[ExternDecl],
	KindMethodDecl:      decodeAs[MethodDecl],
	KindInstance:        decodeAs[Instance],
	KindConst:           decodeAs[Const],
	KindVar:             decodeAs[Var],
	KindParam:           decodeAs[Param],
	KindParser:          decodeAs[Parser],
	KindParserState:     decodeAs[ParserState],
	KindControl:         decodeAs[Control],
	KindAction:          decodeAs[Action],
	KindTable:           decodeAs[Table],
	KindKeyElement:      decodeAs[KeyElement],
	KindPath:            decodeAs[Path],
	KindMember:          decodeAs[Member],
	KindConstant:        decodeAs[Constant],
	KindBoolLit:         decodeAs[BoolLit],
	KindBinary:          decodeAs[Binary],
	KindUnary:           decodeAs[Unary],
	KindMethodCall:      decodeAs[MethodCall],
	KindConstructorCall: decodeAs[ConstructorCall],
	KindListExpr:        decodeAs[ListExpr],
	KindDefaultExpr:     decodeAs[DefaultExpr],
	KindSelectExpr:      decodeAs[SelectExpr],
	KindSelectCase:      decodeAs[SelectCase],
	KindBlock:           decodeAs[Block],
	KindIf:              decodeAs[If],
	KindSwitch:          decodeAs[Switch],
	KindSwitchCase:      decodeAs[SwitchCase],
	KindReturn:          decodeAs[Return],
	KindExit:            decodeAs[Exit],
	KindCallStmt:        decodeAs[CallStmt],
	KindAssign:          decodeAs[Assign],
	KindEmpty:           decodeAs[Empty],
}

func decodeData(k Kind, raw []byte) (Data, error) {
	if k >= kindCount || decoders[k] == nil {
		return nil, fmt.Errorf("unknown kind %d", k)
	}
	return decoders[k](raw)
}

// Compact copies the nodes reachable from root into a fresh arena, children
// before parents, and returns it with the new root. Shared sub-trees stay
// shared.
func Compact(t *Tree, root NodeID) (*Tree, NodeID, error) {
	out := NewTree()
	out.Files = t.Files
	remap := make(map[NodeID]NodeID)
	var copyNode func(id NodeID) (NodeID, error)
	copyNode = func(id NodeID) (NodeID, error) {
		if !id.IsValid() {
			return NoNodeID, nil
		}
		if nid, ok := remap[id]; ok {
			return nid, nil
		}
		n := t.Node(id)
		if n == nil {
			return NoNodeID, Bugf("compact: unknown node %d", id)
		}
		slots := n.Data.slots()
		next := make([]slot, len(slots))
		for i, s := range slots {
			if s.isList {
				items := make([]NodeID, len(s.list))
				for j, el := range s.list {
					nid, err := copyNode(el)
					if err != nil {
						return NoNodeID, err
					}
					items[j] = nid
				}
				next[i] = slot{list: items, isList: true}
				continue
			}
			nid, err := copyNode(s.id)
			if err != nil {
				return NoNodeID, err
			}
			next[i] = slot{id: nid, optional: s.optional}
		}
		d := n.Data
		if len(slots) > 0 {
			d = d.withSlots(next)
		}
		nid := out.Add(n.Span, d)
		remap[id] = nid
		return nid, nil
	}
	nroot, err := copyNode(root)
	if err != nil {
		return nil, NoNodeID, err
	}
	return out, nroot, nil
}
