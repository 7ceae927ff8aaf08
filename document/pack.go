package document

import (
	"github.com/tsawler/pdfrev/core"
)

// Object stream limits of a packed save.
const (
	objStmMembers = 100
	objStmBytes   = 1 << 16
)

// packable reports whether the object may live in an object stream. Streams
// and non-zero generations cannot; the encryption dictionary and signature
// dictionaries must stay readable without decoding a container.
func packable(so *saveObject, encrypt int, num int) bool {
	if so.gen != 0 || num == encrypt {
		return false
	}
	switch v := so.obj.(type) {
	case *core.Stream, core.IndirectRef:
		return false
	case core.Dict:
		return !v.IsType("Sig")
	}
	return true
}

// pack moves eligible objects into object streams numbered after the
// highest object number.
func (st *saveState) pack() error {
	encrypt := 0
	if ref, ok := st.trailer.GetIndirectRef("Encrypt"); ok {
		encrypt = ref.Number
	}

	next := st.maxNumber() + 1
	containers := make(map[int]*saveObject)
	b := core.NewObjectStreamBuilder(objStmMembers, objStmBytes)
	flush := func() error {
		if b.Len() == 0 {
			return nil
		}
		stream, err := b.Build()
		if err != nil {
			return &core.ObjectError{Num: next, Op: "pack", Err: err}
		}
		for i, num := range b.Members() {
			so := st.objects[num]
			so.container = next
			so.index = i
		}
		st.packed += b.Len()
		containers[next] = &saveObject{obj: stream}
		next++
		b.Reset()
		return nil
	}

	for _, num := range st.numbers() {
		so := st.objects[num]
		if !packable(so, encrypt, num) {
			continue
		}
		if _, ok := b.Add(num, so.obj); ok {
			continue
		}
		if err := flush(); err != nil {
			return err
		}
		b.Add(num, so.obj)
	}
	if err := flush(); err != nil {
		return err
	}

	for num, so := range containers {
		st.objects[num] = so
	}
	st.doc.logger.Debug("packed objects", "objects", st.packed, "containers", len(containers))
	return nil
}
