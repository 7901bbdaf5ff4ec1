package ir

// InputKind discriminates block inputs.
type InputKind uint8

const (
	InputPure InputKind = iota + 1
	InputObject
)

// Input is one entry of a block's input table: either raw BCS bytes or a
// resolved object reference carried with its access mode.
type Input struct {
	Kind   InputKind
	Pure   []byte
	Object ObjectHandle
	Mode   AccessMode
}

// PureInput wraps already-encoded bytes.
func PureInput(b []byte) Input {
	return Input{Kind: InputPure, Pure: append([]byte(nil), b...)}
}

// ObjectInput references a resolved object under the given mode.
func ObjectInput(h ObjectHandle, mode AccessMode) Input {
	return Input{Kind: InputObject, Object: h, Mode: mode}
}

// IsObject reports whether the input references an object.
func (in Input) IsObject() bool {
	return in.Kind == InputObject
}
